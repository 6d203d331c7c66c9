package gateway

import (
	"context"
	"io"
	"time"

	"github.com/mdouchement/aletsch/internal/model"
)

type (
	// A Gateway is the only component talking to the remote cold storage.
	// It never persists anything and every call may fail.
	Gateway interface {
		// Name returns the name of the gateway implementation.
		Name() string

		CreateContainer(ctx context.Context, name string) error
		DeleteContainer(ctx context.Context, name string) error

		// UploadObject stores the file content and returns the remote archive identifier.
		UploadObject(ctx context.Context, container, filename string) (string, error)
		DeleteObject(ctx context.Context, container, archiveID string) error

		SubmitInventoryJob(ctx context.Context, container string) (string, error)
		SubmitRetrievalJob(ctx context.Context, container, archiveID string) (string, error)
		// GetJobStatus returns ErrJobNotFound when the remote side does not know the job anymore.
		GetJobStatus(ctx context.Context, container, jobID string) (model.StatusCode, error)
		GetJobOutput(ctx context.Context, container, jobID string) (*JobOutput, error)
	}

	// A JobOutput is the result of a completed job.
	// Inventory is set for inventory retrievals, Body for archive retrievals.
	JobOutput struct {
		Inventory *Inventory
		Body      io.ReadCloser
	}

	// An Inventory lists the archives of a vault at a given date.
	Inventory struct {
		VaultARN      string             `json:"VaultARN,omitempty"`
		InventoryDate time.Time          `json:"InventoryDate"`
		ArchiveList   []InventoryArchive `json:"ArchiveList"`
	}

	// An InventoryArchive describes an archive listed by an inventory.
	InventoryArchive struct {
		ArchiveID          string    `json:"ArchiveId"`
		ArchiveDescription string    `json:"ArchiveDescription"`
		CreationDate       time.Time `json:"CreationDate"`
		Size               int64     `json:"Size"`
		SHA256TreeHash     string    `json:"SHA256TreeHash"`
	}
)

// Close releases the output's body if any.
func (o *JobOutput) Close() error {
	if o.Body == nil {
		return nil
	}
	return o.Body.Close()
}
