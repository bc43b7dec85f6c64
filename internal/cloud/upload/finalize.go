package upload

import (
	"context"
	"errors"
	"time"

	"github.com/alchemab/aab/internal/models"
)

// abortTimeout bounds the best-effort abort call.
const abortTimeout = 30 * time.Second

var errAlreadyFinalized = errors.New("session already finalized")

// finalizer commits or discards a session's upload. Exactly one of a
// successful complete or an abort takes effect per session that reached
// Transferring; a failed complete leaves abort to run.
type finalizer struct {
	s         *Session
	attempted bool // complete was called
	committed bool // complete succeeded
	aborted   bool
}

// complete submits the recorded parts, in order, for assembly.
func (f *finalizer) complete(ctx context.Context) (*models.MultipartUploadResult, error) {
	if f.attempted || f.aborted {
		return nil, errAlreadyFinalized
	}
	f.attempted = true

	s := f.s
	creds, err := s.creds.Resolve(ctx)
	if err != nil {
		return nil, &Error{Kind: KindCompletion, Err: err}
	}

	parts := make([]models.CompletedPart, len(s.Parts))
	for i, p := range s.Parts {
		parts[i] = models.CompletedPart{ETag: p.IntegrityToken, PartNumber: p.PartNumber}
	}

	res, err := s.gateway.CompleteMultipartUpload(ctx, creds, s.HashedName, s.SessionID, parts)
	if err != nil {
		return nil, &Error{Kind: KindCompletion, Err: err}
	}
	f.committed = true
	return res, nil
}

// abort discards the upload upstream. Its own failure is logged and
// dropped; cause is always what the caller gets back.
func (f *finalizer) abort(ctx context.Context, cause error) error {
	if f.committed || f.aborted {
		return cause
	}
	f.aborted = true

	s := f.s
	// The caller's context may be what failed; the abort still goes out.
	abortCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abortTimeout)
	defer cancel()

	log := s.logger.With().Str("file", s.file.Name()).Str("upload_id", s.SessionID).Logger()

	creds, err := s.creds.Resolve(abortCtx)
	if err != nil {
		log.Warn().Err(err).Msg("Could not resolve credentials to abort upload")
		return cause
	}

	if err := s.gateway.AbortMultipartUpload(abortCtx, creds, s.HashedName, s.SessionID); err != nil {
		log.Warn().Err(err).Msg("Failed to abort multipart upload")
		return cause
	}

	log.Debug().Msg("Multipart upload aborted")
	return cause
}
