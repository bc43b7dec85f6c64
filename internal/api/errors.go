package api

import (
	"errors"
	"fmt"
)

// GatewayError is returned when the control plane answers with a non-2xx status.
type GatewayError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *GatewayError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s failed: status %d", e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("%s failed: status %d: %s", e.Operation, e.StatusCode, e.Body)
}

// IsStatus reports whether err is a *GatewayError with the given status code.
func IsStatus(err error, status int) bool {
	var gerr *GatewayError
	return errors.As(err, &gerr) && gerr.StatusCode == status
}

// ErrQueryCancelled is returned when a background query was cancelled server side.
var ErrQueryCancelled = errors.New("query was cancelled")

// ErrQueryFailed is returned when a background query ended in FAILED.
var ErrQueryFailed = errors.New("query failed")
