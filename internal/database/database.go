package database

import (
	"github.com/mdouchement/aletsch/internal/model"
	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when the record to insert already exists.
	ErrConflict = errors.New("already exists")
)

type (
	// A Client can interacts with the database.
	Client interface {
		// Close the database.
		Close() error

		ContainerInteraction
		BindingInteraction
		JobInteraction
	}

	// A ContainerInteraction defines all the methods used to interact with a container record.
	ContainerInteraction interface {
		// CreateContainer ensures the container is known locally. It is idempotent.
		CreateContainer(name string) (*model.Container, error)
		// DropContainer deletes the container and all its bindings.
		DropContainer(name string) error
		FindContainer(name string) (*model.Container, error)
		ListContainers() ([]*model.Container, error)
	}

	// A BindingInteraction defines all the methods used to interact with a binding record.
	BindingInteraction interface {
		// PutBinding fails with ErrConflict if the filename is already bound in the container.
		PutBinding(container, filename, archiveID string) (*model.Binding, error)
		GetBinding(container, filename string) (*model.Binding, error)
		FindBindingByArchiveID(container, archiveID string) (*model.Binding, error)
		DeleteBinding(container, filename string) error
		// EachBinding calls fn for every binding of the container in insertion order.
		// Returning an error from fn stops the iteration and is returned as is.
		EachBinding(container string, fn func(*model.Binding) error) error
		ListBindings(container string) ([]*model.Binding, error)
	}

	// A JobInteraction defines all the methods used to interact with a job record.
	JobInteraction interface {
		// RecordJob fails with ErrConflict if the job is already recorded.
		RecordJob(job *model.Job) error
		FindJob(id string) (*model.Job, error)
		// FindJobsByIDPrefix returns all the jobs whose identifier starts with prefix.
		FindJobsByIDPrefix(prefix string) ([]*model.Job, error)
		UpdateJobStatus(id string, status model.StatusCode) (*model.Job, error)
		// DeleteJob does not fail when the job does not exist.
		DeleteJob(id string) error
	}
)

// IsNotFound returns true if err is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict returns true if err is a conflict error.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}
