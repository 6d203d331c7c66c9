package control

import (
	"context"

	"github.com/mdouchement/aletsch/internal/database"
	"github.com/mdouchement/aletsch/internal/gateway"
	"github.com/mdouchement/aletsch/internal/model"
	"github.com/mdouchement/logger"
	"github.com/pkg/errors"
)

// A Controller binds the local database and the remote gateway together.
type Controller struct {
	Logger   logger.Logger
	Database database.Client
	Gateway  gateway.Gateway
}

func (c *Controller) log() logger.Logger {
	return c.Logger.WithPrefix("[control]")
}

// CreateContainer creates the remote vault and records it locally.
func (c *Controller) CreateContainer(ctx context.Context, name string) error {
	if err := c.Gateway.CreateContainer(ctx, name); err != nil {
		return errors.Wrapf(err, "could not create vault %s", name)
	}

	_, err := c.Database.CreateContainer(name)
	if err != nil {
		return &InconsistencyError{
			Container: name,
			Succeeded: "remote vault creation",
			Failed:    "local vault record",
			Err:       err,
		}
	}

	c.log().Infof("Created vault %s", name)
	return nil
}

// DeleteContainer deletes the remote vault and all the local bindings.
// A vault unknown locally is not an error.
func (c *Controller) DeleteContainer(ctx context.Context, name string) error {
	if err := c.Gateway.DeleteContainer(ctx, name); err != nil {
		return errors.Wrapf(err, "could not delete vault %s", name)
	}

	err := c.Database.DropContainer(name)
	switch {
	case database.IsNotFound(err):
		c.log().Infof("Vault %s was not known locally", name)
	case err != nil:
		return &InconsistencyError{
			Container: name,
			Succeeded: "remote vault deletion",
			Failed:    "local bindings deletion",
			Err:       err,
		}
	}

	c.log().Infof("Deleted vault %s", name)
	return nil
}

// ListContainers returns the vaults known locally.
func (c *Controller) ListContainers() ([]*model.Container, error) {
	return c.Database.ListContainers()
}

// RequestInventory submits an inventory retrieval job and records it.
func (c *Controller) RequestInventory(ctx context.Context, container string) (*model.Job, error) {
	id, err := c.Gateway.SubmitInventoryJob(ctx, container)
	if err != nil {
		return nil, errors.Wrapf(err, "could not request inventory of %s", container)
	}

	job := &model.Job{
		JobID:      id,
		Action:     model.InventoryRetrieval,
		StatusCode: model.InProgress,
		Container:  container,
	}
	return job, c.record(job)
}

func (c *Controller) record(job *model.Job) error {
	if err := c.Database.RecordJob(job); err != nil {
		return &InconsistencyError{
			Container: job.Container,
			ArchiveID: job.ArchiveID,
			JobID:     job.JobID,
			Succeeded: "remote job submission",
			Failed:    "local job record",
			Err:       err,
		}
	}

	c.log().Infof("Submitted %s job %s on %s", job.Action, job.JobID, job.Container)
	return nil
}
