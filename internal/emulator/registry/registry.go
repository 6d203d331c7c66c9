package registry

import (
	"time"

	"github.com/asdine/storm/v3"
	"github.com/asdine/storm/v3/q"
	"github.com/gofrs/uuid"
	"github.com/mdouchement/aletsch/internal/database"
	"github.com/mdouchement/aletsch/internal/gateway"
	"github.com/mdouchement/aletsch/internal/model"
	"github.com/pkg/errors"
)

type (
	// A Vault is an emulated remote vault.
	Vault struct {
		model.Base `json:",inline" storm:"inline"`

		Name string `json:"name" storm:"unique"`
	}

	// An Archive is an emulated remote archive. Its ID is the archive identifier.
	Archive struct {
		model.Base `json:",inline" storm:"inline"`

		Vault       string `json:"vault"       storm:"index"`
		Description string `json:"description"`
		Size        int64  `json:"size"`
		TreeHash    string `json:"tree_hash"`
	}

	// A Job is an emulated asynchronous job. Its ID is the job identifier.
	Job struct {
		model.Base `json:",inline" storm:"inline"`

		Vault     string       `json:"vault"      storm:"index"`
		Action    model.Action `json:"action"`
		ArchiveID string       `json:"archive_id"`
		// Inventory is the snapshot of the vault taken when the job was initiated.
		Inventory *gateway.Inventory `json:"inventory,omitempty"`
	}

	// A Registry stores the emulated remote state.
	Registry interface {
		Close() error

		CreateVault(name string) (*Vault, error)
		FindVault(name string) (*Vault, error)
		ListVaults() ([]*Vault, error)
		DeleteVault(name string) error

		SaveArchive(archive *Archive) error
		FindArchive(vault, id string) (*Archive, error)
		ListArchives(vault string) ([]*Archive, error)
		DeleteArchive(vault, id string) error

		SaveJob(job *Job) error
		FindJob(vault, id string) (*Job, error)
		AllJobs() ([]*Job, error)
		DeleteJob(id string) error
	}
)

type registry struct {
	db *storm.DB
}

// Open opens the emulator's database.
func Open(path string) (Registry, error) {
	db, err := storm.Open(path, database.StormCodec)
	if err != nil {
		return nil, errors.Wrap(err, "could not open emulator database")
	}
	return &registry{db: db}, nil
}

func (r *registry) Close() error {
	return r.db.Close()
}

func (r *registry) save(m model.Model) error {
	t := time.Now().UTC()
	m.SetUpdatedAt(t)

	if m.GetID() == "" {
		m.SetID(uuid.Must(uuid.NewV4()).String())
	}
	if m.GetCreatedAt().IsZero() {
		m.SetCreatedAt(t)
	}

	return errors.Wrap(r.db.Save(m), "could not save the model")
}

func notFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, storm.ErrNotFound) {
		return errors.Wrapf(database.ErrNotFound, format, args...)
	}
	return errors.Wrapf(err, format, args...)
}

//
// Vault
//

func (r *registry) CreateVault(name string) (*Vault, error) {
	vault, err := r.FindVault(name)
	if err == nil {
		return vault, nil
	}
	if !database.IsNotFound(err) {
		return nil, err
	}

	vault = &Vault{Name: name}
	return vault, r.save(vault)
}

func (r *registry) FindVault(name string) (*Vault, error) {
	var vault Vault
	if err := r.db.One("Name", name, &vault); err != nil {
		return nil, notFound(err, "vault %s", name)
	}
	return &vault, nil
}

func (r *registry) ListVaults() ([]*Vault, error) {
	vaults := make([]*Vault, 0)
	err := r.db.AllByIndex("Name", &vaults)
	return vaults, errors.Wrap(err, "could not get all vaults")
}

func (r *registry) DeleteVault(name string) error {
	vault, err := r.FindVault(name)
	if err != nil {
		return err
	}

	err = r.db.Select(q.Eq("Vault", name)).Delete(new(Job))
	if err != nil && !errors.Is(err, storm.ErrNotFound) {
		return errors.Wrap(err, "could not delete vault jobs")
	}
	return errors.Wrap(r.db.DeleteStruct(vault), "could not delete vault")
}

//
// Archive
//

func (r *registry) SaveArchive(archive *Archive) error {
	return r.save(archive)
}

func (r *registry) FindArchive(vault, id string) (*Archive, error) {
	var archive Archive
	if err := r.db.Select(q.Eq("ID", id), q.Eq("Vault", vault)).First(&archive); err != nil {
		return nil, notFound(err, "archive %s", id)
	}
	return &archive, nil
}

func (r *registry) ListArchives(vault string) ([]*Archive, error) {
	archives := make([]*Archive, 0)
	err := r.db.Select(q.Eq("Vault", vault)).OrderBy("CreatedAt").Find(&archives)
	if errors.Is(err, storm.ErrNotFound) {
		return archives, nil
	}
	return archives, errors.Wrap(err, "could not list archives")
}

func (r *registry) DeleteArchive(vault, id string) error {
	archive, err := r.FindArchive(vault, id)
	if err != nil {
		return err
	}
	return errors.Wrap(r.db.DeleteStruct(archive), "could not delete archive")
}

//
// Job
//

func (r *registry) SaveJob(job *Job) error {
	return r.save(job)
}

func (r *registry) FindJob(vault, id string) (*Job, error) {
	var job Job
	if err := r.db.Select(q.Eq("ID", id), q.Eq("Vault", vault)).First(&job); err != nil {
		return nil, notFound(err, "job %s", id)
	}
	return &job, nil
}

func (r *registry) AllJobs() ([]*Job, error) {
	jobs := make([]*Job, 0)
	err := r.db.All(&jobs)
	return jobs, errors.Wrap(err, "could not get all jobs")
}

func (r *registry) DeleteJob(id string) error {
	err := r.db.Select(q.Eq("ID", id)).Delete(new(Job))
	if errors.Is(err, storm.ErrNotFound) {
		return nil
	}
	return errors.Wrap(err, "could not delete job")
}
