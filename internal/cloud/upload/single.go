package upload

import (
	"context"
	nethttp "net/http"
	"net/url"
	"time"

	"github.com/alchemab/aab/internal/credentials"
	"github.com/alchemab/aab/internal/logging"
	"github.com/alchemab/aab/internal/models"
)

// SingleGateway issues presigned URLs for single-request uploads.
// *api.Client implements it.
type SingleGateway interface {
	GetUploadURL(ctx context.Context, creds credentials.Credentials, path string) (*models.SingleUploadURL, error)
}

// PutFile uploads file with one PUT to a presigned URL. Nothing needs
// cleaning up on failure. Suited to files well below the multipart size.
func PutFile(ctx context.Context, gateway SingleGateway, creds credentials.Source, file Source, opts Options) (*Result, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	dest := opts.DestinationPath
	if dest == "" {
		dest = file.Name()
	}
	start := time.Now()

	size := file.Size()
	if size == 0 {
		return nil, &Error{Kind: KindInvalidInput, Err: ErrEmptyFile}
	}

	c, err := creds.Resolve(ctx)
	if err != nil {
		return nil, &Error{Kind: KindBegin, Err: err}
	}

	target, err := gateway.GetUploadURL(ctx, c, dest)
	if err != nil {
		return nil, &Error{Kind: KindBegin, Err: err}
	}

	client := opts.HTTPClient
	if client == nil {
		client = nethttp.DefaultClient
	}

	etag, err := putRange(traceContext(ctx, logger, "single put"), client, target.URL, file, ByteRange{Start: 0, End: size}, file.ContentType(), 0)
	if err != nil {
		opts.Events.PublishError(file.Name(), "", 0, err)
		return nil, err
	}

	if opts.OnProgress != nil {
		opts.OnProgress(ProgressSnapshot{Percentage: 100, UploadedBytes: size, TotalBytes: size, PartNumber: 1})
	}

	res := &Result{
		HashedName: target.HashedName,
		Location:   stripQuery(target.URL),
		Bytes:      size,
		Parts:      1,
		Duration:   time.Since(start),
	}
	opts.Events.PublishComplete(file.Name(), res.HashedName, res.Location, res.Bytes, res.Parts, res.Duration)
	logger.Info().Str("file", file.Name()).Str("hashed_name", res.HashedName).Str("etag", etag).Msg("Upload complete")
	return res, nil
}

// stripQuery drops the signature from a presigned URL.
func stripQuery(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	return u.String()
}
