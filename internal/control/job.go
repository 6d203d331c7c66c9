package control

import (
	"context"
	"sort"
	"strings"

	"github.com/mdouchement/aletsch/internal/database"
	"github.com/mdouchement/aletsch/internal/gateway"
	"github.com/mdouchement/aletsch/internal/model"
	"github.com/pkg/errors"
)

// A Reconciliation is the outcome of refreshing a job against the remote side.
type Reconciliation struct {
	// Job is the refreshed job, or the last known state when Evicted or Err is set.
	Job *model.Job
	// Evicted is true when the remote side does not know the job anymore
	// and it has been deleted from the local database.
	Evicted bool
	// Err is set when the job could not be refreshed. The job is left untouched.
	Err error
}

// Reconcile refreshes the status of the given job with the remote side.
// A job unknown by the remote side is evicted. Any other remote failure is returned and the job is kept.
func (c *Controller) Reconcile(ctx context.Context, id string) (*Reconciliation, error) {
	job, err := c.Database.FindJob(id)
	if err != nil {
		return nil, err
	}
	return c.reconcile(ctx, job)
}

func (c *Controller) reconcile(ctx context.Context, job *model.Job) (*Reconciliation, error) {
	status, err := c.Gateway.GetJobStatus(ctx, job.Container, job.JobID)
	switch {
	case gateway.IsJobNotFound(err):
		if err = c.Database.DeleteJob(job.JobID); err != nil {
			return nil, errors.Wrapf(err, "could not evict job %s", job.JobID)
		}

		c.log().Infof("Evicted job %s unknown by %s", job.JobID, c.Gateway.Name())
		return &Reconciliation{Job: job, Evicted: true}, nil
	case err != nil:
		return nil, errors.Wrapf(err, "could not reconcile job %s", job.JobID)
	}

	updated, err := c.Database.UpdateJobStatus(job.JobID, status)
	if err != nil {
		return nil, errors.Wrapf(err, "could not update job %s", job.JobID)
	}

	if updated.StatusCode != job.StatusCode {
		c.log().Debugf("Job %s: %s -> %s", job.JobID, job.StatusCode, updated.StatusCode)
	}
	return &Reconciliation{Job: updated}, nil
}

// ReconcileAll reconciles every recorded job.
// Each job is handled independently and failures are reported in Reconciliation.Err.
func (c *Controller) ReconcileAll(ctx context.Context) ([]*Reconciliation, error) {
	return c.ReconcileJobs(ctx, "")
}

// ReconcileJobs reconciles every job whose identifier starts with prefix.
// A non-empty prefix matching no job is a not found error.
func (c *Controller) ReconcileJobs(ctx context.Context, prefix string) ([]*Reconciliation, error) {
	jobs, err := c.Database.FindJobsByIDPrefix(prefix)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 && prefix != "" {
		return nil, errors.Wrapf(database.ErrNotFound, "job %s", prefix)
	}
	sortJobs(jobs)

	results := make([]*Reconciliation, 0, len(jobs))
	for _, job := range jobs {
		r, err := c.reconcile(ctx, job)
		if err != nil {
			c.log().Errorf("Job %s: %s", job.JobID, err)
			r = &Reconciliation{Job: job, Err: err}
		}
		results = append(results, r)
	}
	return results, nil
}

// ResolveJob returns the only job whose identifier starts with prefix.
func (c *Controller) ResolveJob(prefix string) (*model.Job, error) {
	return c.resolveJob(prefix, func(*model.Job) bool { return true })
}

func (c *Controller) resolveJob(prefix string, accept func(*model.Job) bool) (*model.Job, error) {
	jobs, err := c.Database.FindJobsByIDPrefix(prefix)
	if err != nil {
		return nil, err
	}

	candidates := make([]*model.Job, 0, len(jobs))
	for _, job := range jobs {
		if accept(job) {
			candidates = append(candidates, job)
		}
	}
	sortJobs(candidates)

	switch len(candidates) {
	case 0:
		return nil, errors.Wrapf(database.ErrNotFound, "job %q", prefix)
	case 1:
		return candidates[0], nil
	}

	ids := make([]string, 0, len(candidates))
	for _, job := range candidates {
		ids = append(ids, job.JobID)
	}
	return nil, errors.Wrapf(ErrAmbiguousJob, "%q matches %s", prefix, strings.Join(ids, ", "))
}

// JobOutput refreshes the job and returns its output. The caller must close the output.
func (c *Controller) JobOutput(ctx context.Context, prefix string) (*model.Job, *gateway.JobOutput, error) {
	job, err := c.ResolveJob(prefix)
	if err != nil {
		return nil, nil, err
	}
	return c.output(ctx, job)
}

// VaultJobOutput returns the output of a job of the given vault.
// When no local job of the vault matches, id is looked up directly on the remote side
// and the returned job is not recorded. The caller must close the output.
func (c *Controller) VaultJobOutput(ctx context.Context, container, id string) (*model.Job, *gateway.JobOutput, error) {
	job, err := c.resolveJob(id, func(job *model.Job) bool {
		return job.Container == container
	})
	switch {
	case err == nil:
		return c.output(ctx, job)
	case !database.IsNotFound(err) || id == "":
		return nil, nil, err
	}

	c.log().Debugf("Job %s is not known locally, asking %s", id, c.Gateway.Name())

	status, err := c.Gateway.GetJobStatus(ctx, container, id)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "could not get status of job %s", id)
	}

	job = &model.Job{JobID: id, Container: container, StatusCode: status}
	if status != model.Succeeded {
		return job, nil, errors.Wrapf(ErrJobNotReady, "job %s is %s", id, status)
	}

	output, err := c.Gateway.GetJobOutput(ctx, container, id)
	if err != nil {
		return job, nil, errors.Wrapf(err, "could not get output of job %s", id)
	}
	return job, output, nil
}

func (c *Controller) output(ctx context.Context, job *model.Job) (*model.Job, *gateway.JobOutput, error) {
	job, err := c.completed(ctx, job)
	if err != nil {
		return job, nil, err
	}

	output, err := c.Gateway.GetJobOutput(ctx, job.Container, job.JobID)
	if err != nil {
		return job, nil, errors.Wrapf(err, "could not get output of job %s", job.JobID)
	}
	return job, output, nil
}

// completed reconciles the job and ensures it has succeeded.
func (c *Controller) completed(ctx context.Context, job *model.Job) (*model.Job, error) {
	r, err := c.reconcile(ctx, job)
	if err != nil {
		return job, err
	}
	if r.Evicted {
		return job, errors.Wrapf(database.ErrNotFound, "job %s has expired", job.JobID)
	}
	if r.Job.StatusCode != model.Succeeded {
		return r.Job, errors.Wrapf(ErrJobNotReady, "job %s is %s", job.JobID, r.Job.StatusCode)
	}
	return r.Job, nil
}

// RemoveJob forgets the only job whose identifier starts with prefix.
func (c *Controller) RemoveJob(prefix string) (*model.Job, error) {
	job, err := c.ResolveJob(prefix)
	if err != nil {
		return nil, err
	}

	if err = c.Database.DeleteJob(job.JobID); err != nil {
		return nil, errors.Wrapf(err, "could not remove job %s", job.JobID)
	}

	c.log().Infof("Removed job %s", job.JobID)
	return job, nil
}

func sortJobs(jobs []*model.Job) {
	sort.SliceStable(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].JobID < jobs[j].JobID
		}
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
}
