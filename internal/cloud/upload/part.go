package upload

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"net/http/httptrace"
	"os"
	"time"

	"github.com/alchemab/aab/internal/constants"
	"github.com/alchemab/aab/internal/credentials"
	"github.com/alchemab/aab/internal/logging"
	"github.com/alchemab/aab/internal/models"
)

// maxTransferErrorBody caps how much of a rejected PUT response is kept.
const maxTransferErrorBody = 64 * 1024

// Gateway is the part of the control plane a multipart session needs.
// *api.Client implements it.
type Gateway interface {
	BeginMultipartUpload(ctx context.Context, creds credentials.Credentials, path, contentType string) (*models.MultipartUploadStart, error)
	GetPartUploadURL(ctx context.Context, creds credentials.Credentials, hashedName, uploadID string, partNumber int32) (string, error)
	CompleteMultipartUpload(ctx context.Context, creds credentials.Credentials, hashedName, uploadID string, parts []models.CompletedPart) (*models.MultipartUploadResult, error)
	AbortMultipartUpload(ctx context.Context, creds credentials.Credentials, hashedName, uploadID string) error
}

// Source is a local file being uploaded. *localfs.File implements it.
type Source interface {
	io.ReaderAt
	Name() string
	Size() int64
	ContentType() string
}

// PartRecord is a part the storage backend has acknowledged.
type PartRecord struct {
	PartNumber     int32
	IntegrityToken string // ETag, never empty
	Range          ByteRange
}

// PartUploader moves one byte range to the storage backend.
type PartUploader struct {
	gateway    Gateway
	httpClient *nethttp.Client
	logger     *logging.Logger
}

// NewPartUploader creates a part uploader. httpClient carries the raw PUTs
// and should have no overall timeout.
func NewPartUploader(gateway Gateway, httpClient *nethttp.Client, logger *logging.Logger) *PartUploader {
	if httpClient == nil {
		httpClient = nethttp.DefaultClient
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &PartUploader{gateway: gateway, httpClient: httpClient, logger: logger}
}

// UploadPart obtains the authorized URL for partNumber, PUTs the bytes of r
// to it and returns the acknowledged record. It does not touch session state.
//
// A 2xx response without an ETag header is a KindMissingToken error, not an
// empty token: completion needs every ETag, so the session aborts instead of
// committing an object the backend would reject.
func (u *PartUploader) UploadPart(ctx context.Context, creds credentials.Credentials, hashedName, uploadID string, partNumber int32, r ByteRange, src Source, contentType string) (PartRecord, error) {
	target, err := u.gateway.GetPartUploadURL(ctx, creds, hashedName, uploadID, partNumber)
	if err != nil {
		return PartRecord{}, &Error{Kind: KindPartTarget, PartNumber: partNumber, Err: err}
	}

	etag, err := putRange(traceContext(ctx, u.logger, fmt.Sprintf("part %d", partNumber)), u.httpClient, target, src, r, contentType, partNumber)
	if err != nil {
		return PartRecord{}, err
	}

	return PartRecord{PartNumber: partNumber, IntegrityToken: etag, Range: r}, nil
}

// putRange sends the bytes of r as the full body of a PUT to target and
// returns the ETag response header.
func putRange(ctx context.Context, client *nethttp.Client, target string, src io.ReaderAt, r ByteRange, contentType string, partNumber int32) (string, error) {
	if contentType == "" {
		contentType = constants.DefaultContentType
	}

	body := &readTracker{r: io.NewSectionReader(src, r.Start, r.Len())}
	req, err := nethttp.NewRequestWithContext(ctx, nethttp.MethodPut, target, body)
	if err != nil {
		return "", &Error{Kind: KindPartTransfer, PartNumber: partNumber, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.ContentLength = r.Len()
	req.Header.Set("Content-Type", contentType)
	if r.Len() == 0 {
		req.Body = nethttp.NoBody
	}

	resp, err := client.Do(req)
	if err != nil {
		if body.err != nil {
			return "", &Error{Kind: KindRead, PartNumber: partNumber, Err: body.err}
		}
		return "", &Error{Kind: KindPartTransfer, PartNumber: partNumber, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxTransferErrorBody))
		return "", &Error{Kind: KindPartTransfer, PartNumber: partNumber, Err: &TransferError{
			PartNumber: partNumber,
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
		}}
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	etag := resp.Header.Get("ETag")
	if etag == "" {
		return "", &Error{Kind: KindMissingToken, PartNumber: partNumber, Err: ErrMissingETag}
	}
	return etag, nil
}

// readTracker remembers the first local read error so it can be told apart
// from network failures.
type readTracker struct {
	r   io.Reader
	err error
}

func (t *readTracker) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) && t.err == nil {
		t.err = err
	}
	return n, err
}

// traceContext adds HTTP connection tracing when DEBUG_HTTP=true
func traceContext(ctx context.Context, logger *logging.Logger, operation string) context.Context {
	if os.Getenv("DEBUG_HTTP") != "true" {
		return ctx
	}

	var handshakeStart time.Time
	return httptrace.WithClientTrace(ctx, &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			logger.Debug().Str("operation", operation).Bool("reused", info.Reused).Msg("[HTTP] got connection")
		},
		TLSHandshakeStart: func() {
			handshakeStart = time.Now()
		},
		TLSHandshakeDone: func(_ tls.ConnectionState, _ error) {
			logger.Debug().Str("operation", operation).Dur("took", time.Since(handshakeStart)).Msg("[HTTP] TLS handshake")
		},
	})
}
