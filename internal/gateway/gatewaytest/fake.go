// Package gatewaytest provides an in-memory Gateway for tests.
package gatewaytest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mdouchement/aletsch/internal/gateway"
	"github.com/mdouchement/aletsch/internal/model"
	"github.com/pkg/errors"
)

type (
	// A Fake is an in-memory gateway.Gateway. Failures can be injected per operation.
	Fake struct {
		mu       sync.Mutex
		sequence int
		vaults   map[string]map[string][]byte
		jobs     map[string]*FakeJob

		// Errors maps an operation name (e.g. "UploadObject") to the error it returns.
		Errors map[string]error
		// JobErrors maps a job identifier to the error returned by GetJobStatus.
		JobErrors map[string]error
		// Calls records the operations performed.
		Calls []string
	}

	// A FakeJob is a job known by the Fake.
	FakeJob struct {
		Container string
		Action    model.Action
		Status    model.StatusCode
		ArchiveID string
		Inventory *gateway.Inventory
	}
)

// NewFake returns a new Fake.
func NewFake() *Fake {
	return &Fake{
		vaults:    map[string]map[string][]byte{},
		jobs:      map[string]*FakeJob{},
		Errors:    map[string]error{},
		JobErrors: map[string]error{},
	}
}

// Unavailable returns a transient gateway error.
func Unavailable(op string) error {
	return &gateway.Error{Op: op, Kind: gateway.Unavailable, Err: errors.New("connection reset by peer")}
}

// JobNotFound returns the error of an expired job.
func JobNotFound(id string) error {
	return &gateway.Error{Op: "describe job " + id, Kind: gateway.Rejected, Err: gateway.ErrJobNotFound}
}

// AddJob registers a remote job.
func (f *Fake) AddJob(id string, job *FakeJob) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[id] = job
}

// Job returns the remote job.
func (f *Fake) Job(id string) (*FakeJob, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	return job, ok
}

// SetStatus changes the status of a remote job.
func (f *Fake) SetStatus(id string, status model.StatusCode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[id].Status = status
}

// Archives returns the archive identifiers stored in the vault.
func (f *Fake) Archives(container string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	var ids []string
	for id := range f.vaults[container] {
		ids = append(ids, id)
	}
	return ids
}

// PutArchive stores an archive and returns its identifier.
func (f *Fake) PutArchive(container string, data []byte) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.put(container, data)
}

func (f *Fake) put(container string, data []byte) string {
	if f.vaults[container] == nil {
		f.vaults[container] = map[string][]byte{}
	}
	f.sequence++
	id := fmt.Sprintf("arch-%03d", f.sequence)
	f.vaults[container][id] = data
	return id
}

func (f *Fake) call(op string) error {
	f.Calls = append(f.Calls, op)
	return f.Errors[op]
}

func (f *Fake) Name() string {
	return "fake"
}

func (f *Fake) CreateContainer(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("CreateContainer"); err != nil {
		return err
	}

	if f.vaults[name] == nil {
		f.vaults[name] = map[string][]byte{}
	}
	return nil
}

func (f *Fake) DeleteContainer(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("DeleteContainer"); err != nil {
		return err
	}

	delete(f.vaults, name)
	return nil
}

func (f *Fake) UploadObject(_ context.Context, container, filename string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("UploadObject"); err != nil {
		return "", err
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return "", errors.Wrap(err, "could not read file")
	}
	return f.put(container, data), nil
}

func (f *Fake) DeleteObject(_ context.Context, container, archiveID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("DeleteObject"); err != nil {
		return err
	}
	if err := f.Errors["DeleteObject:"+archiveID]; err != nil {
		return err
	}

	if _, ok := f.vaults[container][archiveID]; !ok {
		return &gateway.Error{Op: "delete archive " + archiveID, Kind: gateway.Rejected, Err: gateway.ErrObjectNotFound}
	}
	delete(f.vaults[container], archiveID)
	return nil
}

func (f *Fake) SubmitInventoryJob(_ context.Context, container string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("SubmitInventoryJob"); err != nil {
		return "", err
	}

	inventory := &gateway.Inventory{}
	for id, data := range f.vaults[container] {
		inventory.ArchiveList = append(inventory.ArchiveList, gateway.InventoryArchive{
			ArchiveID: id,
			Size:      int64(len(data)),
		})
	}
	return f.submit(&FakeJob{
		Container: container,
		Action:    model.InventoryRetrieval,
		Status:    model.InProgress,
		Inventory: inventory,
	}), nil
}

func (f *Fake) SubmitRetrievalJob(_ context.Context, container, archiveID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("SubmitRetrievalJob"); err != nil {
		return "", err
	}

	if _, ok := f.vaults[container][archiveID]; !ok {
		return "", &gateway.Error{Op: "initiate archive-retrieval", Kind: gateway.Rejected, Err: errors.Errorf("invalid archive id %s", archiveID)}
	}
	return f.submit(&FakeJob{
		Container: container,
		Action:    model.ArchiveRetrieval,
		Status:    model.InProgress,
		ArchiveID: archiveID,
	}), nil
}

func (f *Fake) submit(job *FakeJob) string {
	f.sequence++
	id := fmt.Sprintf("job-%03d", f.sequence)
	f.jobs[id] = job
	return id
}

func (f *Fake) GetJobStatus(_ context.Context, container, jobID string) (model.StatusCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("GetJobStatus"); err != nil {
		return "", err
	}
	if err := f.JobErrors[jobID]; err != nil {
		return "", err
	}

	job, ok := f.jobs[jobID]
	if !ok || job.Container != container {
		return "", JobNotFound(jobID)
	}
	return job.Status, nil
}

func (f *Fake) GetJobOutput(_ context.Context, container, jobID string) (*gateway.JobOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.call("GetJobOutput"); err != nil {
		return nil, err
	}

	job, ok := f.jobs[jobID]
	if !ok || job.Container != container {
		return nil, JobNotFound(jobID)
	}
	if job.Status != model.Succeeded {
		return nil, &gateway.Error{Op: "job output " + jobID, Kind: gateway.Rejected, Err: errors.New("job is not complete")}
	}

	if job.Action == model.InventoryRetrieval {
		return &gateway.JobOutput{Inventory: job.Inventory}, nil
	}
	return &gateway.JobOutput{Body: io.NopCloser(bytes.NewReader(f.vaults[container][job.ArchiveID]))}, nil
}
