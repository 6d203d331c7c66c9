package model

import "github.com/pkg/errors"

// Action is the kind of asynchronous operation performed by a Job.
type Action string

// StatusCode is the completion status of a Job.
type StatusCode string

const (
	InventoryRetrieval Action = "InventoryRetrieval"
	ArchiveRetrieval   Action = "ArchiveRetrieval"

	InProgress StatusCode = "InProgress"
	Succeeded  StatusCode = "Succeeded"
	Failed     StatusCode = "Failed"
)

// A Job is the local handle of an asynchronous remote operation.
type Job struct {
	Base `json:",inline" storm:"inline"`

	JobID      string     `json:"job_id"      storm:"unique"`
	Action     Action     `json:"action"`
	StatusCode StatusCode `json:"status_code"`
	Container  string     `json:"container"   storm:"index"`
	// ArchiveID is only set for archive retrievals.
	ArchiveID string `json:"archive_id,omitempty"`
}

// Done returns true when the remote side has completed the job, successfully or not.
func (j *Job) Done() bool {
	return j.StatusCode == Succeeded || j.StatusCode == Failed
}

// ParseAction returns the Action for the given string.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case InventoryRetrieval, ArchiveRetrieval:
		return a, nil
	}
	return "", errors.Errorf("unknown job action %q", s)
}

// ParseStatusCode returns the StatusCode for the given string.
func ParseStatusCode(s string) (StatusCode, error) {
	switch c := StatusCode(s); c {
	case InProgress, Succeeded, Failed:
		return c, nil
	}
	return "", errors.Errorf("unknown job status %q", s)
}
