package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/melbahja/got"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/alchemab/aab/internal/constants"
	"github.com/alchemab/aab/internal/events"
	"github.com/alchemab/aab/internal/http"
	"github.com/alchemab/aab/internal/progress"
)

// newReportsCmd creates the 'reports' command group.
func newReportsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "List, inspect and download pipeline reports",
		Long: `Report commands.

Commands:
  list      - List runs, optionally filtered
  show      - Show the data of one run
  download  - Download the annotated output of a run
  query     - Run the background results query and print its rows`,
	}

	cmd.AddCommand(newReportsListCmd())
	cmd.AddCommand(newReportsShowCmd())
	cmd.AddCommand(newReportsDownloadCmd())
	cmd.AddCommand(newReportsQueryCmd())
	return cmd
}

func newReportsListCmd() *cobra.Command {
	var search string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pipeline runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext(cmd)
			client, creds, err := getAPIClient()
			if err != nil {
				return err
			}
			c, err := creds.Resolve(ctx)
			if err != nil {
				return err
			}
			raw, err := client.GetReportList(ctx, c, search)
			if err != nil {
				return fmt.Errorf("failed to list reports: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), raw)
		},
	}
	cmd.Flags().StringVar(&search, "search", "", "Only list runs matching this string")
	return cmd
}

func newReportsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show the data of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext(cmd)
			client, creds, err := getAPIClient()
			if err != nil {
				return err
			}
			c, err := creds.Resolve(ctx)
			if err != nil {
				return err
			}
			raw, err := client.GetReportData(ctx, c, args[0])
			if err != nil {
				return fmt.Errorf("failed to get report %s: %w", args[0], err)
			}
			return printJSON(cmd.OutOrStdout(), raw)
		},
	}
}

func newReportsDownloadCmd() *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "download <hash-id>",
		Short: "Download the annotated output of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext(cmd)
			logger := GetLogger()
			hashID := args[0]

			client, creds, err := getAPIClient()
			if err != nil {
				return err
			}
			c, err := creds.Resolve(ctx)
			if err != nil {
				return err
			}
			presigned, err := client.GetDownloadURL(ctx, c, hashID)
			if err != nil {
				return fmt.Errorf("failed to get download URL for %s: %w", hashID, err)
			}

			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
			dest := filepath.Join(outDir, hashID+"_annotated.csv")

			httpClient, err := http.CreateOptimizedClient(client.GetConfig(), logger)
			if err != nil {
				return err
			}

			var bus *events.EventBus
			if verbose || debug {
				bus = events.NewEventBus(constants.EventBusDefaultBuffer)
				done := make(chan struct{})
				go func() {
					defer close(done)
					logEvents(bus.SubscribeAll(), logger)
				}()
				defer func() {
					bus.Close()
					<-done
				}()
			}

			// Size is unknown until the first response; start as a spinner
			reporter := progress.NewDownloadReporter(term.IsTerminal(int(os.Stderr.Fd())), bus, filepath.Base(dest))
			reporter.Start(-1, filepath.Base(dest))
			sized := false
			g := got.New()
			g.Client = httpClient
			g.ProgressFunc = func(d *got.Download) {
				if !sized {
					reporter.SetTotal(int64(d.TotalSize()))
					sized = d.TotalSize() > 0
				}
				reporter.Update(int64(d.Size()))
			}

			if err := g.Do(got.NewDownload(ctx, presigned, dest)); err != nil {
				reporter.Error(err)
				return fmt.Errorf("download failed: %w", err)
			}
			reporter.Finish()

			if info, err := os.Stat(dest); err == nil {
				logger.Info().Str("path", dest).Str("size", humanize.IBytes(uint64(info.Size()))).Msg("Report downloaded")
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "output", "o", ".", "Directory to write the report into")
	return cmd
}

func newReportsQueryCmd() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run the background results query and print its rows",
		Long: `Start the background results query and poll its status until it
finishes. Ctrl+C stops polling.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := GetContext(cmd)
			client, creds, err := getAPIClient()
			if err != nil {
				return err
			}
			c, err := creds.Resolve(ctx)
			if err != nil {
				return err
			}
			raw, err := client.QueryAthena(ctx, c, interval)
			if err != nil {
				return fmt.Errorf("query failed: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), raw)
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", constants.QueryPollInterval, "Status polling interval")
	return cmd
}
