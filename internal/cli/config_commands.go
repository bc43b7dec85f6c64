package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alchemab/aab/internal/config"
	"github.com/alchemab/aab/internal/credentials"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show and change configuration",
	}
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigPathCmd())
	cmd.AddCommand(newConfigSetTokenCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			printConfig(cmd.OutOrStdout(), cfg)
			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long: "Set a configuration value and save the file.\n\nKeys:\n  " +
			strings.Join(config.Keys(), "\n  "),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			// Only the file layer is saved; env and flags stay out of it
			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			if err := cfg.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := config.Save(cfg, path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", strings.ToLower(args[0]), strings.TrimSpace(args[1]))
			return nil
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

func newConfigSetTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-token",
		Short: "Store tokens in the token file",
		Long: `Write the tokens given by --id-token and --access-token (or
AAB_ID_TOKEN and AAB_ACCESS_TOKEN) to the token file, so later commands
pick them up without flags. The file is re-read before every call, so
replacing it during an upload takes effect for the remaining parts.

Example:
  aab config set-token --id-token "$ID" --access-token "$ACCESS"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			c := credentials.Credentials{IDToken: cfg.IDToken, AccessToken: cfg.AccessToken}
			if !c.Valid() {
				return fmt.Errorf("%w: pass --id-token and --access-token", credentials.ErrNoCredentials)
			}
			if cfg.TokenFile == "" {
				return fmt.Errorf("no token file path: set --token-file or api.token_file")
			}
			if err := credentials.WriteFile(cfg.TokenFile, c); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cfg.TokenFile)
			return nil
		},
	}
}

func printConfig(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "[api]")
	fmt.Fprintf(w, "  url               = %s\n", cfg.APIBaseURL)
	fmt.Fprintf(w, "  token_file        = %s\n", cfg.TokenFile)
	fmt.Fprintf(w, "  pipeline_revision = %s\n", cfg.PipelineRevision)
	fmt.Fprintf(w, "  rate_per_sec      = %g\n", cfg.RatePerSec)
	fmt.Fprintf(w, "  rate_burst        = %d\n", cfg.RateBurst)
	fmt.Fprintf(w, "  id_token          = %s\n", mask(cfg.IDToken))
	fmt.Fprintf(w, "  access_token      = %s\n", mask(cfg.AccessToken))

	fmt.Fprintln(w, "[proxy]")
	fmt.Fprintf(w, "  mode     = %s\n", cfg.ProxyMode)
	fmt.Fprintf(w, "  host     = %s\n", cfg.ProxyHost)
	fmt.Fprintf(w, "  port     = %d\n", cfg.ProxyPort)
	fmt.Fprintf(w, "  user     = %s\n", cfg.ProxyUser)
	fmt.Fprintf(w, "  password = %s\n", mask(cfg.ProxyPassword))
	fmt.Fprintf(w, "  no_proxy = %s\n", cfg.NoProxy)
	fmt.Fprintf(w, "  warmup   = %t\n", cfg.ProxyWarmup)

	fmt.Fprintln(w, "[gateway]")
	fmt.Fprintf(w, "  listen                 = %s\n", cfg.Gateway.Listen)
	fmt.Fprintf(w, "  bucket                 = %s\n", cfg.Gateway.Bucket)
	fmt.Fprintf(w, "  results_bucket         = %s\n", cfg.Gateway.ResultsBucket)
	fmt.Fprintf(w, "  region                 = %s\n", cfg.Gateway.Region)
	fmt.Fprintf(w, "  endpoint               = %s\n", cfg.Gateway.Endpoint)
	fmt.Fprintf(w, "  presign_expiry_seconds = %d\n", cfg.Gateway.PresignExpirySeconds)
	fmt.Fprintf(w, "  allowed_groups         = %s\n", strings.Join(cfg.Gateway.AllowedGroups, ","))
	fmt.Fprintf(w, "  key_suffix             = %s\n", cfg.Gateway.KeySuffix)
	fmt.Fprintf(w, "  jwt_secret             = %s\n", mask(cfg.Gateway.JWTSecret))
}

// mask hides secrets, keeping only whether one is set.
func mask(s string) string {
	if s == "" {
		return "(not set)"
	}
	return "********"
}
