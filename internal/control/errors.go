package control

import (
	"fmt"

	"github.com/mdouchement/aletsch/internal/database"
	"github.com/mdouchement/aletsch/internal/gateway"
	"github.com/pkg/errors"
)

var (
	// ErrAmbiguousJob is returned when a job prefix matches several jobs.
	ErrAmbiguousJob = errors.New("ambiguous job")
	// ErrJobNotReady is returned when the output of an incomplete job is requested.
	ErrJobNotReady = errors.New("job is not ready")
	// ErrUnexpectedJob is returned when a job cannot be used for the requested operation.
	ErrUnexpectedJob = errors.New("unexpected job")
	// ErrInvalidFile is returned when the file to upload cannot be used.
	ErrInvalidFile = errors.New("invalid file")
)

// An InconsistencyError is returned when the remote side and the local database diverge
// in a way that cannot be repaired automatically.
type InconsistencyError struct {
	Container string
	Filename  string
	ArchiveID string
	JobID     string
	// Succeeded describes what has been applied, Failed what has not.
	Succeeded string
	Failed    string
	Err       error
}

func (e *InconsistencyError) Error() string {
	subject := "archive " + e.ArchiveID
	if e.Filename != "" {
		subject = fmt.Sprintf("%s (archive %s)", e.Filename, e.ArchiveID)
	}
	if e.JobID != "" {
		subject = "job " + e.JobID
	}
	return fmt.Sprintf("inconsistent state for %s in %s: %s succeeded but %s failed: %s",
		subject, e.Container, e.Succeeded, e.Failed, e.Err)
}

// Unwrap returns the underlying error.
func (e *InconsistencyError) Unwrap() error {
	return e.Err
}

// IsInconsistent returns true if err reports a divergence between remote and local state.
func IsInconsistent(err error) bool {
	var e *InconsistencyError
	return errors.As(err, &e)
}

// IsUserError returns true if err is a recoverable error caused by the user's input
// rather than an internal or transient failure.
func IsUserError(err error) bool {
	switch {
	case err == nil, IsInconsistent(err), gateway.IsUnavailable(err):
		return false
	case database.IsNotFound(err),
		database.IsConflict(err),
		gateway.IsRejected(err),
		errors.Is(err, ErrAmbiguousJob),
		errors.Is(err, ErrJobNotReady),
		errors.Is(err, ErrUnexpectedJob),
		errors.Is(err, ErrInvalidFile):
		return true
	}
	return false
}
