package control_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/mdouchement/aletsch/internal/control"
	"github.com/mdouchement/aletsch/internal/database"
	"github.com/mdouchement/aletsch/internal/gateway"
	"github.com/mdouchement/aletsch/internal/gateway/gatewaytest"
	"github.com/mdouchement/aletsch/internal/model"
	"github.com/mdouchement/logger"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*control.Controller, *gatewaytest.Fake) {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	db, err := database.StormOpen(filepath.Join(t.TempDir(), "aletsch.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	fake := gatewaytest.NewFake()
	return &control.Controller{
		Logger:   logger.WrapLogrus(log),
		Database: db,
		Gateway:  fake,
	}, fake
}

func tempfile(t *testing.T, name, content string) string {
	t.Helper()

	filename := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(filename, []byte(content), 0644))
	return filename
}

type failingBindings struct {
	database.Client
}

func (failingBindings) PutBinding(_, _, _ string) (*model.Binding, error) {
	return nil, errors.New("disk full")
}

func TestCreateAndDeleteContainer(t *testing.T) {
	ctrl, fake := setup(t)
	ctx := context.Background()

	err := ctrl.CreateContainer(ctx, "vault1")
	assert.NoError(t, err)

	containers, err := ctrl.ListContainers()
	assert.NoError(t, err)
	if assert.Len(t, containers, 1) {
		assert.Equal(t, "vault1", containers[0].Name)
	}

	//

	err = ctrl.DeleteContainer(ctx, "vault1")
	assert.NoError(t, err)

	_, err = ctrl.Database.FindContainer("vault1")
	assert.True(t, database.IsNotFound(err))

	// Unknown locally is a no-op.
	err = ctrl.DeleteContainer(ctx, "vault1")
	assert.NoError(t, err)

	//

	fake.Errors["DeleteContainer"] = gatewaytest.Unavailable("delete vault")
	require.NoError(t, ctrl.CreateContainer(ctx, "vault2"))

	err = ctrl.DeleteContainer(ctx, "vault2")
	assert.True(t, gateway.IsUnavailable(err))

	_, err = ctrl.Database.FindContainer("vault2")
	assert.NoError(t, err)
}

func TestUpload(t *testing.T) {
	ctrl, fake := setup(t)
	ctx := context.Background()
	filename := tempfile(t, "a.txt", "hello")

	binding, err := ctrl.Upload(ctx, "vault1", filename)
	assert.NoError(t, err)
	assert.Equal(t, filename, binding.Filename)
	assert.Equal(t, []string{binding.ArchiveID}, fake.Archives("vault1"))

	stored, err := ctrl.Database.GetBinding("vault1", filename)
	assert.NoError(t, err)
	assert.Equal(t, binding.ArchiveID, stored.ArchiveID)

	//

	_, err = ctrl.Upload(ctx, "vault1", filename)
	assert.True(t, database.IsConflict(err))
	assert.True(t, control.IsUserError(err))
	assert.Len(t, fake.Archives("vault1"), 1)
}

func TestUploadInvalidFile(t *testing.T) {
	ctrl, fake := setup(t)
	ctx := context.Background()

	_, err := ctrl.Upload(ctx, "vault1", filepath.Join(t.TempDir(), "missing.txt"))
	assert.ErrorIs(t, err, control.ErrInvalidFile)

	_, err = ctrl.Upload(ctx, "vault1", t.TempDir())
	assert.ErrorIs(t, err, control.ErrInvalidFile)
	assert.True(t, control.IsUserError(err))

	assert.NotContains(t, fake.Calls, "UploadObject")
}

func TestUploadUnavailable(t *testing.T) {
	ctrl, fake := setup(t)
	ctx := context.Background()
	filename := tempfile(t, "a.txt", "hello")

	fake.Errors["UploadObject"] = gatewaytest.Unavailable("upload")

	_, err := ctrl.Upload(ctx, "vault1", filename)
	assert.True(t, gateway.IsUnavailable(err))
	assert.False(t, control.IsUserError(err))

	_, err = ctrl.Database.GetBinding("vault1", filename)
	assert.True(t, database.IsNotFound(err))
}

func TestUploadOrphan(t *testing.T) {
	ctrl, fake := setup(t)
	ctrl.Database = failingBindings{Client: ctrl.Database}
	ctx := context.Background()
	filename := tempfile(t, "a.txt", "hello")

	_, err := ctrl.Upload(ctx, "vault1", filename)
	require.Error(t, err)
	assert.True(t, control.IsInconsistent(err))
	assert.False(t, control.IsUserError(err))

	var inconsistency *control.InconsistencyError
	require.True(t, errors.As(err, &inconsistency))
	assert.Equal(t, "vault1", inconsistency.Container)
	assert.Equal(t, filename, inconsistency.Filename)
	assert.Equal(t, fake.Archives("vault1"), []string{inconsistency.ArchiveID})
	assert.Contains(t, err.Error(), inconsistency.ArchiveID)
	assert.Contains(t, err.Error(), "remote upload succeeded")
}

func TestRequestInventory(t *testing.T) {
	ctrl, _ := setup(t)
	ctx := context.Background()

	job, err := ctrl.RequestInventory(ctx, "vault1")
	assert.NoError(t, err)
	assert.Equal(t, model.InventoryRetrieval, job.Action)
	assert.Equal(t, model.InProgress, job.StatusCode)

	stored, err := ctrl.Database.FindJob(job.JobID)
	assert.NoError(t, err)
	assert.Equal(t, "vault1", stored.Container)
}

func TestRequestRetrieval(t *testing.T) {
	ctrl, fake := setup(t)
	ctx := context.Background()
	filename := tempfile(t, "a.txt", "hello")

	binding, err := ctrl.Upload(ctx, "vault1", filename)
	require.NoError(t, err)
	raw := fake.PutArchive("vault1", []byte("raw"))

	// By filename
	job, err := ctrl.RequestRetrieval(ctx, "vault1", filename)
	assert.NoError(t, err)
	assert.Equal(t, model.ArchiveRetrieval, job.Action)
	assert.Equal(t, binding.ArchiveID, job.ArchiveID)

	// By archive id
	job, err = ctrl.RequestRetrieval(ctx, "vault1", raw)
	assert.NoError(t, err)
	assert.Equal(t, raw, job.ArchiveID)

	// Invalid archive id
	_, err = ctrl.RequestRetrieval(ctx, "vault1", "bogus")
	assert.True(t, gateway.IsRejected(err))
	assert.True(t, control.IsUserError(err))

	jobs, err := ctrl.Database.FindJobsByIDPrefix("")
	assert.NoError(t, err)
	assert.Len(t, jobs, 2)
}

func TestDeleteArchive(t *testing.T) {
	ctrl, fake := setup(t)
	ctx := context.Background()
	a := tempfile(t, "a.txt", "a")
	b := tempfile(t, "b.txt", "b")

	ba, err := ctrl.Upload(ctx, "vault1", a)
	require.NoError(t, err)
	bb, err := ctrl.Upload(ctx, "vault1", b)
	require.NoError(t, err)
	raw := fake.PutArchive("vault1", []byte("raw"))

	// By filename
	deletion, err := ctrl.DeleteArchive(ctx, "vault1", a)
	assert.NoError(t, err)
	assert.Equal(t, ba.ArchiveID, deletion.ArchiveID)
	assert.Equal(t, a, deletion.Filename)
	_, err = ctrl.Database.GetBinding("vault1", a)
	assert.True(t, database.IsNotFound(err))

	// By bound archive id
	deletion, err = ctrl.DeleteArchive(ctx, "vault1", bb.ArchiveID)
	assert.NoError(t, err)
	assert.Equal(t, b, deletion.Filename)
	_, err = ctrl.Database.GetBinding("vault1", b)
	assert.True(t, database.IsNotFound(err))

	// By raw archive id
	deletion, err = ctrl.DeleteArchive(ctx, "vault1", raw)
	assert.NoError(t, err)
	assert.Empty(t, deletion.Filename)
	assert.Empty(t, fake.Archives("vault1"))

	// Unknown everywhere
	_, err = ctrl.DeleteArchive(ctx, "vault1", "bogus")
	assert.True(t, gateway.IsObjectNotFound(err))
}

func TestDeleteArchiveStaleBinding(t *testing.T) {
	ctrl, fake := setup(t)
	ctx := context.Background()
	a := tempfile(t, "a.txt", "a")

	binding, err := ctrl.Upload(ctx, "vault1", a)
	require.NoError(t, err)
	require.NoError(t, fake.DeleteObject(ctx, "vault1", binding.ArchiveID))

	deletion, err := ctrl.DeleteArchive(ctx, "vault1", a)
	assert.NoError(t, err)
	assert.True(t, deletion.Stale)

	_, err = ctrl.Database.GetBinding("vault1", a)
	assert.True(t, database.IsNotFound(err))
}

func TestDeleteArchiveUnavailable(t *testing.T) {
	ctrl, fake := setup(t)
	ctx := context.Background()
	a := tempfile(t, "a.txt", "a")

	_, err := ctrl.Upload(ctx, "vault1", a)
	require.NoError(t, err)

	fake.Errors["DeleteObject"] = gatewaytest.Unavailable("delete archive")
	_, err = ctrl.DeleteArchive(ctx, "vault1", a)
	assert.True(t, gateway.IsUnavailable(err))

	_, err = ctrl.Database.GetBinding("vault1", a)
	assert.NoError(t, err)
}

func TestReconcile(t *testing.T) {
	ctrl, fake := setup(t)
	ctx := context.Background()

	job, err := ctrl.RequestInventory(ctx, "vault1")
	require.NoError(t, err)

	r, err := ctrl.Reconcile(ctx, job.JobID)
	assert.NoError(t, err)
	assert.False(t, r.Evicted)
	assert.Equal(t, model.InProgress, r.Job.StatusCode)

	fake.SetStatus(job.JobID, model.Succeeded)

	r, err = ctrl.Reconcile(ctx, job.JobID)
	assert.NoError(t, err)
	assert.False(t, r.Evicted)
	assert.Equal(t, model.Succeeded, r.Job.StatusCode)

	stored, err := ctrl.Database.FindJob(job.JobID)
	assert.NoError(t, err)
	assert.Equal(t, model.Succeeded, stored.StatusCode)
}

func TestReconcileEvicted(t *testing.T) {
	ctrl, _ := setup(t)
	ctx := context.Background()

	err := ctrl.Database.RecordJob(&model.Job{
		JobID:      "job-expired",
		Action:     model.InventoryRetrieval,
		StatusCode: model.InProgress,
		Container:  "vault1",
	})
	require.NoError(t, err)

	r, err := ctrl.Reconcile(ctx, "job-expired")
	assert.NoError(t, err)
	assert.True(t, r.Evicted)

	jobs, err := ctrl.Database.FindJobsByIDPrefix("job-expired")
	assert.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestReconcileTransient(t *testing.T) {
	ctrl, fake := setup(t)
	ctx := context.Background()

	job, err := ctrl.RequestInventory(ctx, "vault1")
	require.NoError(t, err)
	fake.SetStatus(job.JobID, model.Succeeded)
	fake.JobErrors[job.JobID] = gatewaytest.Unavailable("describe job")

	_, err = ctrl.Reconcile(ctx, job.JobID)
	assert.True(t, gateway.IsUnavailable(err))

	stored, err := ctrl.Database.FindJob(job.JobID)
	assert.NoError(t, err)
	assert.Equal(t, model.InProgress, stored.StatusCode)
}

func TestReconcileUnknownLocally(t *testing.T) {
	ctrl, fake := setup(t)

	_, err := ctrl.Reconcile(context.Background(), "job-nope")
	assert.True(t, database.IsNotFound(err))
	assert.NotContains(t, fake.Calls, "GetJobStatus")
}

func TestReconcileAll(t *testing.T) {
	ctrl, fake := setup(t)
	ctx := context.Background()

	for _, id := range []string{"job-a", "job-b", "job-c"} {
		err := ctrl.Database.RecordJob(&model.Job{
			JobID:      id,
			Action:     model.InventoryRetrieval,
			StatusCode: model.InProgress,
			Container:  "vault1",
		})
		require.NoError(t, err)
	}
	fake.AddJob("job-a", &gatewaytest.FakeJob{Container: "vault1", Action: model.InventoryRetrieval, Status: model.Succeeded})
	fake.AddJob("job-c", &gatewaytest.FakeJob{Container: "vault1", Action: model.InventoryRetrieval, Status: model.Succeeded})
	fake.JobErrors["job-c"] = gatewaytest.Unavailable("describe job")

	results, err := ctrl.ReconcileAll(ctx)
	require.NoError(t, err)
	require.Len(t, results, 3)

	byID := map[string]*control.Reconciliation{}
	for _, r := range results {
		byID[r.Job.JobID] = r
	}

	assert.NoError(t, byID["job-a"].Err)
	assert.False(t, byID["job-a"].Evicted)
	assert.Equal(t, model.Succeeded, byID["job-a"].Job.StatusCode)

	assert.NoError(t, byID["job-b"].Err)
	assert.True(t, byID["job-b"].Evicted)

	assert.True(t, gateway.IsUnavailable(byID["job-c"].Err))
	assert.False(t, byID["job-c"].Evicted)

	//

	jobs, err := ctrl.Database.FindJobsByIDPrefix("")
	assert.NoError(t, err)
	ids := map[string]model.StatusCode{}
	for _, job := range jobs {
		ids[job.JobID] = job.StatusCode
	}
	assert.Equal(t, map[string]model.StatusCode{
		"job-a": model.Succeeded,
		"job-c": model.InProgress,
	}, ids)
}

func TestReconcileJobsPrefix(t *testing.T) {
	ctrl, _ := setup(t)
	ctx := context.Background()

	_, err := ctrl.ReconcileJobs(ctx, "job-nope")
	assert.True(t, database.IsNotFound(err))

	results, err := ctrl.ReconcileAll(ctx)
	assert.NoError(t, err)
	assert.Empty(t, results)
}

func TestResolveAndRemoveJob(t *testing.T) {
	ctrl, _ := setup(t)
	ctx := context.Background()

	j1, err := ctrl.RequestInventory(ctx, "vault1")
	require.NoError(t, err)
	j2, err := ctrl.RequestInventory(ctx, "vault1")
	require.NoError(t, err)

	_, err = ctrl.ResolveJob("job-")
	assert.ErrorIs(t, err, control.ErrAmbiguousJob)
	assert.Contains(t, err.Error(), j1.JobID)
	assert.Contains(t, err.Error(), j2.JobID)
	assert.True(t, control.IsUserError(err))

	job, err := ctrl.ResolveJob(j1.JobID)
	assert.NoError(t, err)
	assert.Equal(t, j1.JobID, job.JobID)

	//

	removed, err := ctrl.RemoveJob(j1.JobID)
	assert.NoError(t, err)
	assert.Equal(t, j1.JobID, removed.JobID)

	job, err = ctrl.ResolveJob("job-")
	assert.NoError(t, err)
	assert.Equal(t, j2.JobID, job.JobID)

	_, err = ctrl.RemoveJob(j1.JobID)
	assert.True(t, database.IsNotFound(err))
}

func TestJobOutput(t *testing.T) {
	ctrl, fake := setup(t)
	ctx := context.Background()
	filename := tempfile(t, "a.txt", "hello world")

	_, err := ctrl.Upload(ctx, "vault1", filename)
	require.NoError(t, err)

	job, err := ctrl.RequestRetrieval(ctx, "vault1", filename)
	require.NoError(t, err)

	_, _, err = ctrl.JobOutput(ctx, job.JobID)
	assert.ErrorIs(t, err, control.ErrJobNotReady)

	//

	fake.SetStatus(job.JobID, model.Succeeded)

	refreshed, output, err := ctrl.JobOutput(ctx, job.JobID)
	require.NoError(t, err)
	defer output.Close()
	assert.Equal(t, model.Succeeded, refreshed.StatusCode)

	data, err := io.ReadAll(output.Body)
	assert.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestVaultJobOutput(t *testing.T) {
	ctrl, fake := setup(t)
	ctx := context.Background()

	fake.AddJob("job-lost", &gatewaytest.FakeJob{
		Container: "vault1",
		Action:    model.InventoryRetrieval,
		Status:    model.InProgress,
		Inventory: &gateway.Inventory{
			ArchiveList: []gateway.InventoryArchive{{ArchiveID: "arch-042"}},
		},
	})

	_, _, err := ctrl.JobOutput(ctx, "job-lost")
	assert.True(t, database.IsNotFound(err), "not recorded locally")

	_, _, err = ctrl.VaultJobOutput(ctx, "vault1", "job-lost")
	assert.ErrorIs(t, err, control.ErrJobNotReady)

	fake.SetStatus("job-lost", model.Succeeded)

	job, output, err := ctrl.VaultJobOutput(ctx, "vault1", "job-lost")
	require.NoError(t, err)
	defer output.Close()
	assert.Equal(t, "vault1", job.Container)
	assert.Equal(t, model.Succeeded, job.StatusCode)
	require.NotNil(t, output.Inventory)
	assert.Equal(t, "arch-042", output.Inventory.ArchiveList[0].ArchiveID)

	_, err = ctrl.Database.FindJob("job-lost")
	assert.True(t, database.IsNotFound(err), "remote jobs are not recorded")

	//

	_, _, err = ctrl.VaultJobOutput(ctx, "vault2", "job-lost")
	assert.True(t, gateway.IsJobNotFound(err))
	assert.True(t, control.IsUserError(err))

	_, _, err = ctrl.VaultJobOutput(ctx, "vault1", "")
	assert.True(t, database.IsNotFound(err))
}

func TestVaultJobOutputRecorded(t *testing.T) {
	ctrl, fake := setup(t)
	ctx := context.Background()

	job, err := ctrl.RequestInventory(ctx, "vault1")
	require.NoError(t, err)
	fake.SetStatus(job.JobID, model.Succeeded)

	refreshed, output, err := ctrl.VaultJobOutput(ctx, "vault1", job.JobID[:5])
	require.NoError(t, err)
	defer output.Close()
	assert.Equal(t, job.JobID, refreshed.JobID)
	assert.NotNil(t, output.Inventory)
}

func TestJobOutputExpired(t *testing.T) {
	ctrl, _ := setup(t)
	ctx := context.Background()

	err := ctrl.Database.RecordJob(&model.Job{
		JobID:      "job-expired",
		Action:     model.ArchiveRetrieval,
		StatusCode: model.Succeeded,
		Container:  "vault1",
	})
	require.NoError(t, err)

	_, _, err = ctrl.JobOutput(ctx, "job-exp")
	assert.True(t, database.IsNotFound(err))

	_, err = ctrl.Database.FindJob("job-expired")
	assert.True(t, database.IsNotFound(err))
}

func TestEraseContainer(t *testing.T) {
	ctrl, fake := setup(t)
	ctx := context.Background()
	a := tempfile(t, "a.txt", "a")
	b := tempfile(t, "b.txt", "b")

	ba, err := ctrl.Upload(ctx, "vault1", a)
	require.NoError(t, err)
	bb, err := ctrl.Upload(ctx, "vault1", b)
	require.NoError(t, err)
	raw := fake.PutArchive("vault1", []byte("raw"))

	job, err := ctrl.RequestInventory(ctx, "vault1")
	require.NoError(t, err)

	_, err = ctrl.EraseContainer(ctx, "vault1", job.JobID)
	assert.ErrorIs(t, err, control.ErrJobNotReady)
	assert.Len(t, fake.Archives("vault1"), 3)

	//

	fake.SetStatus(job.JobID, model.Succeeded)
	fake.Errors["DeleteObject:"+bb.ArchiveID] = gatewaytest.Unavailable("delete archive")

	erasure, err := ctrl.EraseContainer(ctx, "vault1", "")
	require.NoError(t, err)
	assert.Equal(t, job.JobID, erasure.Job.JobID)
	assert.Len(t, erasure.Archives, 3)
	assert.Equal(t, 1, erasure.Failed())

	outcomes := map[string]*control.ErasedArchive{}
	for _, archive := range erasure.Archives {
		outcomes[archive.ArchiveID] = archive
	}
	assert.NoError(t, outcomes[ba.ArchiveID].Err)
	assert.Equal(t, a, outcomes[ba.ArchiveID].Filename)
	assert.True(t, gateway.IsUnavailable(outcomes[bb.ArchiveID].Err))
	assert.NoError(t, outcomes[raw].Err)
	assert.Empty(t, outcomes[raw].Filename)

	assert.Equal(t, []string{bb.ArchiveID}, fake.Archives("vault1"))

	bindings, err := ctrl.ListArchives("vault1")
	assert.NoError(t, err)
	if assert.Len(t, bindings, 1) {
		assert.Equal(t, b, bindings[0].Filename)
	}
}

func TestEraseContainerRequiresInventory(t *testing.T) {
	ctrl, fake := setup(t)
	ctx := context.Background()
	raw := fake.PutArchive("vault1", []byte("raw"))

	job, err := ctrl.RequestRetrieval(ctx, "vault1", raw)
	require.NoError(t, err)
	fake.SetStatus(job.JobID, model.Succeeded)

	_, err = ctrl.EraseContainer(ctx, "vault1", job.JobID)
	assert.ErrorIs(t, err, control.ErrUnexpectedJob)

	inventory, err := ctrl.RequestInventory(ctx, "vault1")
	require.NoError(t, err)
	fake.SetStatus(inventory.JobID, model.Succeeded)

	_, err = ctrl.EraseContainer(ctx, "vault2", inventory.JobID)
	assert.ErrorIs(t, err, control.ErrUnexpectedJob)
}

func TestIsUserError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil", err: nil, expected: false},
		{name: "not found", err: errors.Wrap(database.ErrNotFound, "binding"), expected: true},
		{name: "conflict", err: errors.Wrap(database.ErrConflict, "binding"), expected: true},
		{name: "rejected", err: &gateway.Error{Op: "op", Kind: gateway.Rejected, Err: errors.New("invalid")}, expected: true},
		{name: "unavailable", err: gatewaytest.Unavailable("op"), expected: false},
		{name: "ambiguous", err: errors.Wrap(control.ErrAmbiguousJob, "job"), expected: true},
		{name: "not ready", err: control.ErrJobNotReady, expected: true},
		{name: "inconsistent", err: &control.InconsistencyError{Err: database.ErrConflict}, expected: false},
		{name: "internal", err: errors.New("boom"), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, control.IsUserError(tt.err))
		})
	}
}
