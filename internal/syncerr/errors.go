// Package syncerr holds the error kinds shared by the sync adapters.
// Adapters wrap these with github.com/pkg/errors; callers match with errors.Is.
package syncerr

import "github.com/pkg/errors"

var (
	ErrAuth             = errors.New("auth")
	ErrNetwork          = errors.New("network")
	ErrDecode           = errors.New("decode")
	ErrDeadlineExceeded = errors.New("deadline exceeded")
	ErrSchedulingDenied = errors.New("scheduling denied")
)

// Unauthorized reports an auth error caused by the remote rejecting credentials,
// as opposed to a missing session.
type Unauthorized struct {
	StatusCode int
}

func (e *Unauthorized) Error() string { return "unauthorized" }

func (e *Unauthorized) Unwrap() error { return ErrAuth }
