package upload

import (
	"errors"
	"fmt"
)

// Kind classifies why an upload session failed.
type Kind int

const (
	// KindInvalidInput - the file or options cannot be uploaded (empty file, bad chunk size, too many parts)
	KindInvalidInput Kind = iota + 1
	// KindBegin - the control plane refused to open the upload; nothing exists upstream
	KindBegin
	// KindPartTarget - no authorized URL could be obtained for a part
	KindPartTarget
	// KindPartTransfer - the storage backend rejected or dropped a part PUT
	KindPartTransfer
	// KindMissingToken - a part PUT succeeded without returning an ETag
	KindMissingToken
	// KindCompletion - the control plane failed to commit the uploaded parts
	KindCompletion
	// KindRead - the local file could not be read
	KindRead
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "invalid input"
	case KindBegin:
		return "begin failed"
	case KindPartTarget:
		return "part target failed"
	case KindPartTransfer:
		return "part transfer failed"
	case KindMissingToken:
		return "missing integrity token"
	case KindCompletion:
		return "completion failed"
	case KindRead:
		return "read failed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Sentinel causes wrapped in *Error.
var (
	ErrEmptyFile        = errors.New("file is empty")
	ErrSessionUsed      = errors.New("upload session has already run")
	ErrInvalidChunkSize = errors.New("chunk size must be positive")
	ErrTooManyParts     = errors.New("file needs more parts than the storage backend allows")
	ErrMissingETag      = errors.New("storage backend returned no ETag")
)

// Error is the failure surfaced by a session. PartNumber is 0 when the
// failure is not tied to a part.
type Error struct {
	Kind       Kind
	PartNumber int32
	Err        error
}

func (e *Error) Error() string {
	if e.PartNumber > 0 {
		return fmt.Sprintf("upload %s (part %d): %v", e.Kind, e.PartNumber, e.Err)
	}
	return fmt.Sprintf("upload %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var uerr *Error
	return errors.As(err, &uerr) && uerr.Kind == k
}

// TransferError is a non-2xx answer from the storage backend to a PUT.
type TransferError struct {
	PartNumber int32 // 0 for single-request uploads
	StatusCode int
	Body       string
}

func (e *TransferError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("storage returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("storage returned status %d: %s", e.StatusCode, e.Body)
}
