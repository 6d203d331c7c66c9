package gateway

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies a remote failure.
type Kind int

const (
	// Unavailable is a transient failure: network, authentication, throttling.
	Unavailable Kind = iota
	// Rejected means the remote service answered with a business error.
	Rejected
)

var (
	// ErrJobNotFound is returned when the remote side does not know the job (expired or never existed).
	ErrJobNotFound = errors.New("job not found")
	// ErrObjectNotFound is returned when the remote side does not know the archive or the vault.
	ErrObjectNotFound = errors.New("object not found")
)

// An Error is a failed remote call.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	kind := "remote unavailable"
	if e.Kind == Rejected {
		kind = "remote rejected"
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

func unavailable(op string, err error) error {
	return &Error{Op: op, Kind: Unavailable, Err: err}
}

func rejected(op string, err error) error {
	return &Error{Op: op, Kind: Rejected, Err: err}
}

// IsUnavailable returns true if err is a transient remote failure.
func IsUnavailable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == Unavailable
}

// IsRejected returns true if the remote service refused the request.
func IsRejected(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == Rejected
}

// IsJobNotFound returns true if the remote side does not know the job.
func IsJobNotFound(err error) bool {
	return errors.Is(err, ErrJobNotFound)
}

// IsObjectNotFound returns true if the remote side does not know the archive.
func IsObjectNotFound(err error) bool {
	return errors.Is(err, ErrObjectNotFound)
}
