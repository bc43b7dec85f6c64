package cli

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"path"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/alchemab/aab/internal/api"
	"github.com/alchemab/aab/internal/cloud/upload"
	"github.com/alchemab/aab/internal/constants"
	"github.com/alchemab/aab/internal/credentials"
	"github.com/alchemab/aab/internal/events"
	"github.com/alchemab/aab/internal/http"
	"github.com/alchemab/aab/internal/localfs"
	"github.com/alchemab/aab/internal/logging"
	"github.com/alchemab/aab/internal/progress"
)

// uploadOptions are the flags of `aab upload`.
type uploadOptions struct {
	destPrefix    string
	submit        bool
	revision      string
	single        bool
	skipTypeCheck bool
	includeHidden bool
}

// uploadOutcome is the result of one file in a batch.
type uploadOutcome struct {
	path   string
	result *upload.Result
	hashID string
	err    error
}

func newUploadCmd() *cobra.Command {
	var opts uploadOptions

	cmd := &cobra.Command{
		Use:   "upload <file|dir|glob>...",
		Short: "Upload files for classification",
		Long: `Upload one or more files. Globs such as 'runs/**/*.csv' are expanded
even when quoted; directories are walked, skipping hidden entries.

Each file is uploaded in 20 MiB parts. If any part fails, the upload is
aborted so no partial object is left behind. Files are uploaded one after
another.

Accepted types: .csv, .tsv, .parquet (use --skip-type-check to bypass).

Examples:
  aab upload repertoire.csv
  aab upload 'runs/**/*.parquet' --dest-prefix 2024-q3
  aab upload sample.tsv --submit`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUpload(GetContext(cmd), args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.destPrefix, "dest-prefix", "", "Prefix for the destination path sent to the control plane")
	cmd.Flags().BoolVar(&opts.submit, "submit", false, "Submit each uploaded file to the pipeline")
	cmd.Flags().StringVar(&opts.revision, "revision", "", "Pipeline revision used with --submit (default from config)")
	cmd.Flags().BoolVar(&opts.single, "single", false, "Upload each file with one PUT instead of multipart")
	cmd.Flags().BoolVar(&opts.skipTypeCheck, "skip-type-check", false, "Do not check file extensions before uploading")
	cmd.Flags().BoolVar(&opts.includeHidden, "include-hidden", false, "Include hidden files when walking directories")

	return cmd
}

// resolveUploadFiles expands args and checks extensions before anything
// touches the network.
func resolveUploadFiles(args []string, opts uploadOptions) ([]string, error) {
	files, err := localfs.Expand(args, localfs.ExpandOptions{IncludeHidden: opts.includeHidden})
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.New("no files to upload")
	}
	if !opts.skipTypeCheck {
		for _, f := range files {
			if err := localfs.CheckExtension(f, constants.AcceptedExtensions); err != nil {
				return nil, err
			}
		}
	}
	return files, nil
}

// destinationFor joins prefix and the file's base name with forward slashes.
func destinationFor(prefix, localPath string) string {
	base := filepath.Base(localPath)
	if prefix == "" {
		return base
	}
	return path.Join(filepath.ToSlash(prefix), base)
}

func runUpload(ctx context.Context, args []string, opts uploadOptions) error {
	logger := GetLogger()

	files, err := resolveUploadFiles(args, opts)
	if err != nil {
		return err
	}

	client, creds, err := getAPIClient()
	if err != nil {
		return err
	}

	// Part PUTs go to storage, not the control plane: same proxy, no retries, no rate limit
	storageClient, err := http.CreateOptimizedClient(client.GetConfig(), logger)
	if err != nil {
		return fmt.Errorf("failed to create storage HTTP client: %w", err)
	}

	bus := events.NewEventBus(constants.EventBusDefaultBuffer)
	var wg sync.WaitGroup
	if verbose || debug {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logEvents(bus.SubscribeAll(), logger)
		}()
	}
	defer func() {
		bus.Close()
		wg.Wait()
		if n := bus.DroppedEvents(); n > 0 {
			logger.Debug().Int64("dropped", n).Msg("Event subscribers fell behind")
		}
	}()

	ui := progress.NewUploadUI(len(files))
	outcomes := make([]uploadOutcome, 0, len(files))
	for _, f := range files {
		if ctx.Err() != nil {
			outcomes = append(outcomes, uploadOutcome{path: f, err: ctx.Err()})
			continue
		}
		out := uploadOne(ctx, client, creds, f, opts, ui, storageClient, bus, logger)
		outcomes = append(outcomes, out)
	}
	ui.Wait()

	return summarize(outcomes, logger)
}

func uploadOne(
	ctx context.Context,
	client *api.Client,
	creds credentials.Source,
	localPath string,
	opts uploadOptions,
	ui progress.ProgressUI,
	storageClient *nethttp.Client,
	bus *events.EventBus,
	logger *logging.Logger,
) uploadOutcome {
	out := uploadOutcome{path: localPath}

	file, err := localfs.Open(localPath)
	if err != nil {
		out.err = err
		return out
	}
	defer file.Close()

	dest := destinationFor(opts.destPrefix, localPath)
	bar := ui.AddFileBar(localPath, dest, file.Size())

	fileLogger := logger.Child(func(c zerolog.Context) zerolog.Context {
		return c.Str("dest", dest)
	})

	uopts := upload.Options{
		DestinationPath: dest,
		Logger:          fileLogger,
		Events:          bus,
		OnProgress: func(s upload.ProgressSnapshot) {
			bar.SetUploaded(s.UploadedBytes)
		},
		HTTPClient: storageClient,
	}

	if opts.single {
		out.result, out.err = upload.PutFile(ctx, client, creds, file, uopts)
	} else {
		out.result, out.err = upload.NewSession(client, creds, file, uopts).Run(ctx)
	}

	if out.err != nil {
		bar.Complete("", out.err)
		return out
	}
	bar.Complete(out.result.HashedName, nil)

	if opts.submit {
		c, err := creds.Resolve(ctx)
		if err != nil {
			out.err = fmt.Errorf("uploaded as %s but could not submit: %w", out.result.HashedName, err)
			return out
		}
		resp, err := client.SubmitPipeline(ctx, c, out.result.HashedName, opts.revision)
		if err != nil {
			out.err = fmt.Errorf("uploaded as %s but submission failed: %w", out.result.HashedName, err)
			return out
		}
		out.hashID = resp.HashID
		logger.Info().Str("file", file.Name()).Str("hash_id", resp.HashID).Msg("Pipeline submitted")
	}
	return out
}

// summarize logs the batch outcome and returns an error if any file failed.
func summarize(outcomes []uploadOutcome, logger *logging.Logger) error {
	var failed int
	var total int64
	for _, o := range outcomes {
		if o.err != nil {
			failed++
			logger.Error().Err(o.err).Str("file", o.path).Msg("Upload failed")
			continue
		}
		if o.result != nil {
			total += o.result.Bytes
			ev := logger.Info().Str("file", o.path).Str("hashed_name", o.result.HashedName)
			if o.hashID != "" {
				ev = ev.Str("hash_id", o.hashID)
			}
			ev.Msg("Uploaded")
		}
	}

	logger.Info().
		Int("uploaded", len(outcomes)-failed).
		Int("failed", failed).
		Str("bytes", humanize.IBytes(uint64(total))).
		Msg("Upload batch finished")

	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, len(outcomes))
	}
	return nil
}

// logEvents writes session events to the debug log until the bus closes.
func logEvents(ch <-chan events.Event, logger *logging.Logger) {
	for ev := range ch {
		switch e := ev.(type) {
		case *events.StateChangeEvent:
			logger.Debug().Str("file", e.File).Str("upload_id", e.UploadID).Str("from", e.From).Str("to", e.To).Msg("state")
		case *events.PartEvent:
			logger.Debug().Str("file", e.File).Int32("part", e.PartNumber).Str("etag", e.ETag).Msg("part")
		case *events.ProgressEvent:
			logger.Debug().Str("file", e.File).Float64("percent", e.Percentage).Int64("bytes", e.BytesUploaded).Msg("progress")
		case *events.ErrorEvent:
			logger.Debug().Str("file", e.File).Int32("part", e.PartNumber).Err(e.Error).Msg("error")
		}
	}
}
