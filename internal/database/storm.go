package database

import (
	"regexp"
	"time"

	"github.com/asdine/storm/v3"
	"github.com/asdine/storm/v3/codec/json"
	"github.com/asdine/storm/v3/q"
	"github.com/gofrs/uuid"
	"github.com/mdouchement/aletsch/internal/model"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

type strm struct {
	db *storm.DB
}

// StormCodec is the format used to store data in the database.
var StormCodec = storm.Codec(json.Codec)

// LockTimeout is how long a command waits for another invocation to release the database.
var LockTimeout = 2 * time.Second

func open(database string) (*storm.DB, error) {
	db, err := storm.Open(database, StormCodec, storm.BoltOptions(0600, &bolt.Options{Timeout: LockTimeout}))
	return db, errors.Wrap(err, "could not get database connection")
}

// StormInit initializes Storm database.
func StormInit(database string) error {
	db, err := open(database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Init(&model.Container{}); err != nil {
		return errors.Wrap(err, "could not init container index")
	}

	if err := db.Init(&model.Binding{}); err != nil {
		return errors.Wrap(err, "could not init binding index")
	}

	err = db.Init(&model.Job{})
	return errors.Wrap(err, "could not init job index")
}

// StormReIndex rebuilds all the indexes of the database.
func StormReIndex(database string) error {
	db, err := open(database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.ReIndex(&model.Container{}); err != nil {
		return errors.Wrap(err, "could not ReIndex containers")
	}

	if err := db.ReIndex(&model.Binding{}); err != nil {
		return errors.Wrap(err, "could not ReIndex bindings")
	}

	err = db.ReIndex(&model.Job{})
	return errors.Wrap(err, "could not ReIndex jobs")
}

// StormOpen opens the database. The returned Client must be closed.
func StormOpen(database string) (Client, error) {
	db, err := open(database)
	if err != nil {
		return nil, err
	}

	return &strm{
		db: db,
	}, nil
}

func (c *strm) Close() error {
	return c.db.Close()
}

// save inserts or updates m using the given node.
func save(n storm.Node, m model.Model) error {
	t := time.Now().UTC()
	m.SetUpdatedAt(t)

	if m.GetID() == "" {
		m.SetID(uuid.Must(uuid.NewV4()).String())
		m.SetCreatedAt(t)
	}

	return n.Save(m)
}

// transaction runs fn in a writable transaction committed only if fn succeeds.
func (c *strm) transaction(fn func(tx storm.Node) error) error {
	tx, err := c.db.Begin(true)
	if err != nil {
		return errors.Wrap(err, "could not begin transaction")
	}
	defer tx.Rollback()

	if err = fn(tx); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "could not commit transaction")
}

func notFound(err error, format string, args ...interface{}) error {
	if errors.Is(err, storm.ErrNotFound) {
		return errors.Wrapf(ErrNotFound, format, args...)
	}
	return errors.Wrapf(err, format, args...)
}

//
// Container
//

func ensureContainer(tx storm.Node, name string) (*model.Container, error) {
	var container model.Container
	err := tx.One("Name", name, &container)
	if err == nil {
		return &container, nil
	}
	if !errors.Is(err, storm.ErrNotFound) {
		return nil, errors.Wrap(err, "could not find container")
	}

	container = model.Container{Name: name}
	return &container, errors.Wrap(save(tx, &container), "could not save container")
}

func (c *strm) CreateContainer(name string) (container *model.Container, err error) {
	err = c.transaction(func(tx storm.Node) error {
		container, err = ensureContainer(tx, name)
		return err
	})
	return container, err
}

func (c *strm) DropContainer(name string) error {
	return c.transaction(func(tx storm.Node) error {
		var container model.Container
		if err := tx.One("Name", name, &container); err != nil {
			return notFound(err, "container %s", name)
		}

		err := tx.Select(q.Eq("Container", name)).Delete(new(model.Binding))
		if err != nil && !errors.Is(err, storm.ErrNotFound) {
			return errors.Wrapf(err, "could not delete bindings of %s", name)
		}

		return errors.Wrap(tx.DeleteStruct(&container), "could not delete container")
	})
}

func (c *strm) FindContainer(name string) (*model.Container, error) {
	var container model.Container
	err := c.db.One("Name", name, &container)
	if err != nil {
		return nil, notFound(err, "container %s", name)
	}
	return &container, nil
}

func (c *strm) ListContainers() ([]*model.Container, error) {
	containers := make([]*model.Container, 0)
	err := c.db.AllByIndex("Name", &containers)
	if errors.Is(err, storm.ErrNotFound) {
		return containers, nil
	}
	return containers, errors.Wrap(err, "could not get all containers")
}

//
// Binding
//

func findBinding(n storm.Node, container, filename string) (*model.Binding, error) {
	var binding model.Binding
	err := n.Select(q.Eq("Container", container), q.Eq("Filename", filename)).First(&binding)
	if err != nil {
		return nil, notFound(err, "binding %s in %s", filename, container)
	}
	return &binding, nil
}

func (c *strm) PutBinding(container, filename, archiveID string) (*model.Binding, error) {
	binding := &model.Binding{
		Container: container,
		Filename:  filename,
		ArchiveID: archiveID,
	}

	err := c.transaction(func(tx storm.Node) error {
		existing, err := findBinding(tx, container, filename)
		if err == nil {
			return errors.Wrapf(ErrConflict, "%s is already bound to %s in %s", filename, existing.ArchiveID, container)
		}
		if !IsNotFound(err) {
			return err
		}

		// Archives uploaded to a vault created outside of aletsch make it known locally.
		if _, err = ensureContainer(tx, container); err != nil {
			return err
		}
		return errors.Wrap(save(tx, binding), "could not save binding")
	})
	if err != nil {
		return nil, err
	}
	return binding, nil
}

func (c *strm) GetBinding(container, filename string) (*model.Binding, error) {
	return findBinding(c.db, container, filename)
}

func (c *strm) FindBindingByArchiveID(container, archiveID string) (*model.Binding, error) {
	var binding model.Binding
	err := c.db.Select(q.Eq("Container", container), q.Eq("ArchiveID", archiveID)).First(&binding)
	if err != nil {
		return nil, notFound(err, "binding of archive %s in %s", archiveID, container)
	}
	return &binding, nil
}

func (c *strm) DeleteBinding(container, filename string) error {
	return c.transaction(func(tx storm.Node) error {
		binding, err := findBinding(tx, container, filename)
		if err != nil {
			return err
		}
		return errors.Wrap(tx.DeleteStruct(binding), "could not delete binding")
	})
}

func (c *strm) EachBinding(container string, fn func(*model.Binding) error) error {
	err := c.db.Select(q.Eq("Container", container)).OrderBy("Sequence").Each(new(model.Binding), func(record interface{}) error {
		return fn(record.(*model.Binding))
	})
	if errors.Is(err, storm.ErrNotFound) {
		return nil
	}
	return err
}

func (c *strm) ListBindings(container string) ([]*model.Binding, error) {
	bindings := make([]*model.Binding, 0)
	err := c.EachBinding(container, func(b *model.Binding) error {
		bindings = append(bindings, b)
		return nil
	})
	return bindings, errors.Wrapf(err, "could not list bindings of %s", container)
}

//
// Job
//

func (c *strm) RecordJob(job *model.Job) error {
	return c.transaction(func(tx storm.Node) error {
		var existing model.Job
		err := tx.One("JobID", job.JobID, &existing)
		if err == nil {
			return errors.Wrapf(ErrConflict, "job %s", job.JobID)
		}
		if !errors.Is(err, storm.ErrNotFound) {
			return errors.Wrap(err, "could not find job")
		}

		return errors.Wrap(save(tx, job), "could not save job")
	})
}

func (c *strm) FindJob(id string) (*model.Job, error) {
	var job model.Job
	if err := c.db.One("JobID", id, &job); err != nil {
		return nil, notFound(err, "job %s", id)
	}
	return &job, nil
}

func (c *strm) FindJobsByIDPrefix(prefix string) ([]*model.Job, error) {
	jobs := make([]*model.Job, 0)

	var err error
	if prefix == "" {
		err = c.db.All(&jobs)
	} else {
		err = c.db.Select(q.Re("JobID", "^"+regexp.QuoteMeta(prefix))).Find(&jobs)
	}
	if errors.Is(err, storm.ErrNotFound) {
		return jobs, nil
	}
	return jobs, errors.Wrapf(err, "could not find jobs by prefix %q", prefix)
}

func (c *strm) UpdateJobStatus(id string, status model.StatusCode) (*model.Job, error) {
	var job model.Job
	err := c.transaction(func(tx storm.Node) error {
		if err := tx.One("JobID", id, &job); err != nil {
			return notFound(err, "job %s", id)
		}

		job.StatusCode = status
		return errors.Wrap(save(tx, &job), "could not save job")
	})
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *strm) DeleteJob(id string) error {
	err := c.db.Select(q.Eq("JobID", id)).Delete(new(model.Job))
	if errors.Is(err, storm.ErrNotFound) {
		return nil
	}
	return errors.Wrap(err, "could not delete job")
}
