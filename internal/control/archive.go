package control

import (
	"context"
	"os"

	"github.com/mdouchement/aletsch/internal/database"
	"github.com/mdouchement/aletsch/internal/gateway"
	"github.com/mdouchement/aletsch/internal/model"
	"github.com/pkg/errors"
)

type (
	// A Deletion describes a deleted archive.
	Deletion struct {
		ArchiveID string
		// Filename is set when the archive was bound to a local file.
		Filename string
		// Stale is true when the remote side did not know the archive anymore.
		Stale bool
	}

	// An Erasure is the report of a vault erasure.
	Erasure struct {
		Job      *model.Job
		Archives []*ErasedArchive
	}

	// An ErasedArchive is the outcome of the deletion of one archive listed by an inventory.
	ErasedArchive struct {
		ArchiveID string
		// Filename is the purged local binding, if any.
		Filename string
		Err      error
	}
)

// Upload stores the file in the vault and binds its filename to the new archive.
func (c *Controller) Upload(ctx context.Context, container, filename string) (*model.Binding, error) {
	info, err := os.Stat(filename)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidFile, err.Error())
	}
	if info.IsDir() {
		return nil, errors.Wrapf(ErrInvalidFile, "%s is a directory", filename)
	}

	// Checked before the upload so a duplicate does not leave an orphan archive.
	binding, err := c.Database.GetBinding(container, filename)
	if err == nil {
		return nil, errors.Wrapf(database.ErrConflict, "%s is already stored as %s in %s", filename, binding.ArchiveID, container)
	}
	if !database.IsNotFound(err) {
		return nil, err
	}

	archiveID, err := c.Gateway.UploadObject(ctx, container, filename)
	if err != nil {
		return nil, errors.Wrapf(err, "could not upload %s", filename)
	}

	binding, err = c.Database.PutBinding(container, filename, archiveID)
	if err != nil {
		return nil, &InconsistencyError{
			Container: container,
			Filename:  filename,
			ArchiveID: archiveID,
			Succeeded: "remote upload",
			Failed:    "local binding",
			Err:       err,
		}
	}

	c.log().Infof("Wrote %s (%s)", filename, archiveID)
	return binding, nil
}

// RequestRetrieval submits an archive retrieval job and records it.
// fileOrID is resolved through the local bindings and is used as an archive identifier otherwise.
func (c *Controller) RequestRetrieval(ctx context.Context, container, fileOrID string) (*model.Job, error) {
	archiveID, err := c.resolveArchive(container, fileOrID)
	if err != nil {
		return nil, err
	}

	id, err := c.Gateway.SubmitRetrievalJob(ctx, container, archiveID)
	if err != nil {
		return nil, errors.Wrapf(err, "could not request retrieval of %s", fileOrID)
	}

	job := &model.Job{
		JobID:      id,
		Action:     model.ArchiveRetrieval,
		StatusCode: model.InProgress,
		Container:  container,
		ArchiveID:  archiveID,
	}
	return job, c.record(job)
}

func (c *Controller) resolveArchive(container, fileOrID string) (string, error) {
	binding, err := c.Database.GetBinding(container, fileOrID)
	switch {
	case err == nil:
		return binding.ArchiveID, nil
	case database.IsNotFound(err):
		c.log().Debugf("No binding for %s in %s, using it as archive id", fileOrID, container)
		return fileOrID, nil
	}
	return "", err
}

// DeleteArchive deletes the archive from the vault and its local binding.
// fileOrID is resolved as a filename first, then as a bound archive identifier,
// and is used as a raw archive identifier otherwise.
func (c *Controller) DeleteArchive(ctx context.Context, container, fileOrID string) (*Deletion, error) {
	binding, err := c.Database.GetBinding(container, fileOrID)
	if database.IsNotFound(err) {
		binding, err = c.Database.FindBindingByArchiveID(container, fileOrID)
	}
	if err != nil && !database.IsNotFound(err) {
		return nil, err
	}

	deletion := &Deletion{ArchiveID: fileOrID}
	if binding != nil {
		deletion.ArchiveID = binding.ArchiveID
		deletion.Filename = binding.Filename
	}

	err = c.Gateway.DeleteObject(ctx, container, deletion.ArchiveID)
	switch {
	case gateway.IsObjectNotFound(err) && binding != nil:
		c.log().Infof("Archive %s was already deleted, dropping stale binding %s", deletion.ArchiveID, binding.Filename)
		deletion.Stale = true
	case err != nil:
		return nil, errors.Wrapf(err, "could not delete %s", fileOrID)
	}

	if binding == nil {
		c.log().Infof("Deleted %s", deletion.ArchiveID)
		return deletion, nil
	}

	if err = c.Database.DeleteBinding(container, binding.Filename); err != nil {
		return nil, &InconsistencyError{
			Container: container,
			Filename:  binding.Filename,
			ArchiveID: binding.ArchiveID,
			Succeeded: "remote deletion",
			Failed:    "local binding deletion",
			Err:       err,
		}
	}

	c.log().Infof("Deleted %s (%s)", binding.Filename, binding.ArchiveID)
	return deletion, nil
}

// EachArchive calls fn for every archive bound in the container, in upload order.
func (c *Controller) EachArchive(container string, fn func(*model.Binding) error) error {
	return c.Database.EachBinding(container, fn)
}

// ListArchives returns the archives bound in the container.
func (c *Controller) ListArchives(container string) ([]*model.Binding, error) {
	return c.Database.ListBindings(container)
}

// EraseContainer deletes every archive listed by a succeeded inventory job of the vault.
// jobPrefix may be empty when the vault has only one inventory job.
//
// Each archive is handled independently and its outcome is reported in the Erasure.
// The local binding of each archive deleted remotely (or already unknown remotely) is purged,
// the bindings of the archives that failed to be deleted are kept.
func (c *Controller) EraseContainer(ctx context.Context, container, jobPrefix string) (*Erasure, error) {
	job, err := c.resolveJob(jobPrefix, func(job *model.Job) bool {
		return job.Container == container && job.Action == model.InventoryRetrieval
	})
	if err != nil {
		if database.IsNotFound(err) {
			return nil, errors.Wrapf(ErrUnexpectedJob, "no inventory job %q for vault %s", jobPrefix, container)
		}
		return nil, err
	}

	job, err = c.completed(ctx, job)
	if err != nil {
		return nil, err
	}

	output, err := c.Gateway.GetJobOutput(ctx, container, job.JobID)
	if err != nil {
		return nil, errors.Wrapf(err, "could not get inventory of job %s", job.JobID)
	}
	defer output.Close()
	if output.Inventory == nil {
		return nil, errors.Wrapf(ErrUnexpectedJob, "job %s has no inventory", job.JobID)
	}

	bound := map[string]string{}
	err = c.Database.EachBinding(container, func(b *model.Binding) error {
		bound[b.ArchiveID] = b.Filename
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "could not list bindings of %s", container)
	}

	//

	erasure := &Erasure{Job: job}
	for _, entry := range output.Inventory.ArchiveList {
		erased := &ErasedArchive{ArchiveID: entry.ArchiveID}
		erasure.Archives = append(erasure.Archives, erased)

		err := c.Gateway.DeleteObject(ctx, container, entry.ArchiveID)
		if err != nil && !gateway.IsObjectNotFound(err) {
			c.log().Errorf("Could not delete %s: %s", entry.ArchiveID, err)
			erased.Err = errors.Wrapf(err, "could not delete %s", entry.ArchiveID)
			continue
		}
		c.log().Infof("Deleted %s", entry.ArchiveID)

		filename, ok := bound[entry.ArchiveID]
		if !ok {
			continue
		}

		if err = c.Database.DeleteBinding(container, filename); err != nil && !database.IsNotFound(err) {
			erased.Err = &InconsistencyError{
				Container: container,
				Filename:  filename,
				ArchiveID: entry.ArchiveID,
				Succeeded: "remote deletion",
				Failed:    "local binding deletion",
				Err:       err,
			}
			continue
		}
		erased.Filename = filename
	}

	return erasure, nil
}

// Failed returns the number of archives that could not be erased.
func (e *Erasure) Failed() int {
	var n int
	for _, archive := range e.Archives {
		if archive.Err != nil {
			n++
		}
	}
	return n
}
