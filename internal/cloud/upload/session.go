// Package upload moves local files to object storage through presigned
// URLs issued by the control plane.
//
// A multipart Session runs the sequence begin, one presigned PUT per part
// in part order, then complete. Any failure after begin aborts the upload
// upstream, so a file is either committed whole or discarded.
package upload

import (
	"context"
	"fmt"
	nethttp "net/http"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/alchemab/aab/internal/constants"
	"github.com/alchemab/aab/internal/credentials"
	"github.com/alchemab/aab/internal/events"
	"github.com/alchemab/aab/internal/logging"
)

// State is a step of the session lifecycle.
type State int

const (
	StateNotStarted State = iota
	StatePlanning
	StateTransferring
	StateFinalizing
	StateCompleted
	StateAborting
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "NotStarted"
	case StatePlanning:
		return "Planning"
	case StateTransferring:
		return "Transferring"
	case StateFinalizing:
		return "Finalizing"
	case StateCompleted:
		return "Completed"
	case StateAborting:
		return "Aborting"
	case StateAborted:
		return "Aborted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateAborted
}

// ProgressSnapshot is reported once per stored part.
type ProgressSnapshot struct {
	Percentage    float64 // 0 to 100
	UploadedBytes int64
	TotalBytes    int64
	PartNumber    int32
}

// ProgressFunc receives progress snapshots. It is called from the
// goroutine running the session and must not block for long.
type ProgressFunc func(ProgressSnapshot)

// Options tune a Session. The zero value is ready to use.
type Options struct {
	// DestinationPath is the path sent to the control plane; defaults to the file name.
	DestinationPath string
	// ChunkSize overrides constants.PartSize. Intended for tests.
	ChunkSize int64
	// HTTPClient carries the raw part PUTs; defaults to http.DefaultClient.
	HTTPClient *nethttp.Client
	Logger     *logging.Logger
	Events     *events.EventBus
	OnProgress ProgressFunc
}

// Result describes a committed upload.
type Result struct {
	HashedName string
	Location   string
	Bytes      int64
	Parts      int
	Duration   time.Duration
}

// Session uploads one file. It lives only in memory and runs once.
type Session struct {
	SessionID       string // upload id assigned by the backend
	DestinationPath string
	HashedName      string
	TotalSize       int64
	ChunkSize       int64
	UploadedBytes   int64
	Parts           []PartRecord

	gateway  Gateway
	creds    credentials.Source
	file     Source
	uploader *PartUploader
	logger   *logging.Logger
	bus      *events.EventBus
	progress ProgressFunc

	mu    sync.Mutex
	state State
	used  bool
}

// NewSession prepares a session for file. Nothing is sent until Run.
func NewSession(gateway Gateway, creds credentials.Source, file Source, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	chunk := opts.ChunkSize
	if chunk == 0 {
		chunk = constants.PartSize
	}
	dest := opts.DestinationPath
	if dest == "" {
		dest = file.Name()
	}

	return &Session{
		DestinationPath: dest,
		TotalSize:       file.Size(),
		ChunkSize:       chunk,
		gateway:         gateway,
		creds:           creds,
		file:            file,
		uploader:        NewPartUploader(gateway, opts.HTTPClient, logger),
		logger:          logger,
		bus:             opts.Events,
		progress:        opts.OnProgress,
	}
}

// State returns the current lifecycle state. Safe for concurrent use.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) transition(to State) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.mu.Unlock()

	s.logger.Debug().Str("file", s.file.Name()).Str("from", from.String()).Str("to", to.String()).Msg("upload state")
	s.bus.PublishStateChange(s.file.Name(), s.SessionID, from.String(), to.String())
}

// fail publishes err and moves a session that never opened an upload
// straight to Aborted.
func (s *Session) fail(err error) error {
	s.bus.PublishError(s.file.Name(), s.SessionID, partOf(err), err)
	s.transition(StateAborted)
	return err
}

// Run uploads the file and returns the committed object. On failure the
// returned error is an *Error describing the first thing that went wrong.
func (s *Session) Run(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	if s.used {
		s.mu.Unlock()
		return nil, &Error{Kind: KindInvalidInput, Err: ErrSessionUsed}
	}
	s.used = true
	s.mu.Unlock()

	start := time.Now()

	// Local checks first, so a file that can never upload costs no calls.
	if s.TotalSize == 0 {
		return nil, s.fail(&Error{Kind: KindInvalidInput, Err: ErrEmptyFile})
	}
	plan, err := Plan(s.TotalSize, s.ChunkSize)
	if err != nil {
		return nil, s.fail(err)
	}
	if plan.Len() > constants.MaxParts {
		return nil, s.fail(&Error{Kind: KindInvalidInput, Err: fmt.Errorf("%w: %d parts of %s, limit %d",
			ErrTooManyParts, plan.Len(), humanize.IBytes(uint64(s.ChunkSize)), constants.MaxParts)})
	}

	s.transition(StatePlanning)
	if err := s.begin(ctx); err != nil {
		return nil, s.fail(err)
	}

	s.transition(StateTransferring)
	fin := &finalizer{s: s}
	s.Parts = make([]PartRecord, 0, plan.Len())

	for partNumber := int32(1); ; partNumber++ {
		r, ok := plan.Next()
		if !ok {
			break
		}
		if err := s.transferPart(ctx, partNumber, r); err != nil {
			return nil, s.abort(ctx, fin, err)
		}
	}

	s.transition(StateFinalizing)
	res, err := fin.complete(ctx)
	if err != nil {
		return nil, s.abort(ctx, fin, err)
	}

	s.transition(StateCompleted)

	result := &Result{
		HashedName: s.HashedName,
		Location:   res.Location,
		Bytes:      s.UploadedBytes,
		Parts:      len(s.Parts),
		Duration:   time.Since(start),
	}
	if res.HashedName != "" {
		result.HashedName = res.HashedName
	}
	s.bus.PublishComplete(s.file.Name(), result.HashedName, result.Location, result.Bytes, result.Parts, result.Duration)
	s.logger.Info().
		Str("file", s.file.Name()).
		Str("hashed_name", result.HashedName).
		Str("size", humanize.IBytes(uint64(result.Bytes))).
		Int("parts", result.Parts).
		Dur("took", result.Duration).
		Msg("Upload complete")

	return result, nil
}

func (s *Session) begin(ctx context.Context) error {
	creds, err := s.creds.Resolve(ctx)
	if err != nil {
		return &Error{Kind: KindBegin, Err: err}
	}

	start, err := s.gateway.BeginMultipartUpload(ctx, creds, s.DestinationPath, s.file.ContentType())
	if err != nil {
		return &Error{Kind: KindBegin, Err: err}
	}

	s.SessionID = start.UploadID
	s.HashedName = start.HashedName
	s.logger.Debug().
		Str("file", s.file.Name()).
		Str("upload_id", s.SessionID).
		Str("hashed_name", s.HashedName).
		Str("size", humanize.IBytes(uint64(s.TotalSize))).
		Msg("Multipart upload started")
	return nil
}

func (s *Session) transferPart(ctx context.Context, partNumber int32, r ByteRange) error {
	creds, err := s.creds.Resolve(ctx)
	if err != nil {
		return &Error{Kind: KindPartTarget, PartNumber: partNumber, Err: err}
	}

	rec, err := s.uploader.UploadPart(ctx, creds, s.HashedName, s.SessionID, partNumber, r, s.file, s.file.ContentType())
	if err != nil {
		return err
	}

	s.Parts = append(s.Parts, rec)
	s.UploadedBytes += r.Len()
	snap := ProgressSnapshot{
		Percentage:    float64(s.UploadedBytes) / float64(s.TotalSize) * 100,
		UploadedBytes: s.UploadedBytes,
		TotalBytes:    s.TotalSize,
		PartNumber:    partNumber,
	}

	s.logger.Debug().
		Str("file", s.file.Name()).
		Int32("part", partNumber).
		Str("bytes", humanize.IBytes(uint64(r.Len()))).
		Str("etag", rec.IntegrityToken).
		Msg("Part stored")
	s.bus.PublishPart(s.file.Name(), s.SessionID, partNumber, r.Len(), rec.IntegrityToken)
	s.bus.PublishProgress(s.file.Name(), snap.Percentage, snap.UploadedBytes, snap.TotalBytes)
	if s.progress != nil {
		s.progress(snap)
	}
	return nil
}

// abort runs the rollback path and returns the error that triggered it.
func (s *Session) abort(ctx context.Context, fin *finalizer, cause error) error {
	s.transition(StateAborting)
	s.bus.PublishError(s.file.Name(), s.SessionID, partOf(cause), cause)
	s.logger.Error().Err(cause).Str("file", s.file.Name()).Str("upload_id", s.SessionID).Msg("Upload failed, aborting")
	err := fin.abort(ctx, cause)
	s.transition(StateAborted)
	return err
}

func partOf(err error) int32 {
	if uerr, ok := err.(*Error); ok {
		return uerr.PartNumber
	}
	return 0
}
