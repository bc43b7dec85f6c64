// Package cli provides the command-line interface for aab.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/alchemab/aab/internal/logging"
	"github.com/alchemab/aab/internal/version"
)

var (
	// Global flags
	cfgFile     string
	apiBaseURL  string
	idToken     string
	accessToken string
	tokenFile   string
	verbose     bool
	debug       bool
	logLevel    string

	// Global logger
	logger *logging.Logger

	// Global context for signal handling
	rootContext context.Context
	cancelFunc  context.CancelFunc
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "aab",
		Short: "Upload antibody repertoires and run the autoantibody pipeline",
		Long: `aab ` + version.Version + ` - Built: ` + version.BuildTime + `
Command-line client for the autoantibody classification service.

Files are uploaded in 20 MiB parts straight to object storage through
presigned URLs. An upload either completes whole or is discarded.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.NewDefaultCLILogger()
			logging.SetGlobalLevel(logging.ParseLevel(logLevel))
			if verbose || debug {
				logging.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&apiBaseURL, "api-url", "", "Control plane base URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&idToken, "id-token", "", "Identity token sent as Authorization: Bearer")
	rootCmd.PersistentFlags().StringVar(&accessToken, "access-token", "", "Access token sent as x-access-token")
	rootCmd.PersistentFlags().StringVar(&tokenFile, "token-file", "", "Path to INI file holding id_token and access_token")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug output (same as --verbose)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")

	rootCmd.Version = version.Version + " (" + version.BuildTime + ")"

	completionCmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for aab.

QUICK TEST (current session only):
  source <(aab completion bash)`,
	}
	completionCmd.AddCommand(&cobra.Command{
		Use:   "bash",
		Short: "Generate bash completion script",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.Root().GenBashCompletion(cmd.OutOrStdout())
		},
	})
	completionCmd.AddCommand(&cobra.Command{
		Use:   "zsh",
		Short: "Generate zsh completion script",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.Root().GenZshCompletion(cmd.OutOrStdout())
		},
	})
	completionCmd.AddCommand(&cobra.Command{
		Use:   "fish",
		Short: "Generate fish completion script",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.Root().GenFishCompletion(cmd.OutOrStdout(), true)
		},
	})
	completionCmd.AddCommand(&cobra.Command{
		Use:   "powershell",
		Short: "Generate PowerShell completion script",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.Root().GenPowerShellCompletion(cmd.OutOrStdout())
		},
	})
	rootCmd.AddCommand(completionCmd)
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	return rootCmd
}

// Execute runs the CLI.
func Execute() error {
	rootContext, cancelFunc = context.WithCancel(context.Background())
	defer cancelFunc()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Loop so repeated Ctrl+C does not kill the process before aborts finish
	go func() {
		for sig := range sigChan {
			if sig != nil {
				fmt.Fprintf(os.Stderr, "\n\nReceived signal %v, cancelling operations...\n", sig)
				fmt.Fprintf(os.Stderr, "   Please wait for open uploads to be aborted.\n\n")
				cancelFunc()
			}
		}
	}()

	rootCmd := NewRootCmd()
	AddCommands(rootCmd)
	err := rootCmd.ExecuteContext(rootContext)

	signal.Stop(sigChan)
	close(sigChan)

	return err
}

// AddCommands adds all subcommands to the root command.
func AddCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newUploadCmd())
	rootCmd.AddCommand(newSubmitCmd())
	rootCmd.AddCommand(newClassifyCmd())
	rootCmd.AddCommand(newReportsCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newConfigCmd())
}

// GetLogger returns the global CLI logger.
func GetLogger() *logging.Logger {
	if logger == nil {
		logger = logging.NewDefaultCLILogger()
	}
	return logger
}

// GetContext returns the command context, cancelled on Ctrl+C.
func GetContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	if rootContext == nil {
		return context.Background()
	}
	return rootContext
}
