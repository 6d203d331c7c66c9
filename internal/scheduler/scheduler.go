package scheduler

import (
	"time"

	"github.com/mdouchement/aletsch/internal/emulator/registry"
	"github.com/mdouchement/aletsch/internal/storage"
	"github.com/mdouchement/logger"
	"github.com/robfig/cron/v3"
)

// A Controller is an Iversion Of Control pattern used to init the scheduler package.
type Controller struct {
	Logger        logger.Logger
	Registry      registry.Registry
	Storage       storage.Backend
	Specification string
	// Expiration is how long a job is known after its creation.
	Expiration time.Duration
	// Now returns the current time, it defaults to time.Now.
	Now func() time.Time
}

// Start lauches the scheduler asynchronously.
func Start(c Controller) (*cron.Cron, error) {
	cron := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DiscardLogger),
	))

	log := c.Logger.WithPrefix("[scheduler]")

	_, err := cron.AddFunc(c.Specification, func() {
		if err := Sweep(c); err != nil {
			log.Error(err)
		}
	})
	if err != nil {
		return nil, err
	}
	log.Info("Job expiration task registred")

	cron.Start()
	log.Info("Scheduler is running")
	return cron, nil
}

// Sweep removes the expired jobs and cleans the storage.
func Sweep(c Controller) error {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}

	log := c.Logger.WithPrefix("[TTL]")

	if c.Expiration > 0 {
		jobs, err := c.Registry.AllJobs()
		if err != nil {
			return err
		}

		for _, job := range jobs {
			if !now().After(job.CreatedAt.Add(c.Expiration)) {
				continue
			}

			if err = c.Registry.DeleteJob(job.ID); err != nil {
				log.Errorf("Could not remove job %s: %s", job.ID, err)
				continue
			}

			log.Infof("Removed job %s of %s", job.ID, job.Vault)
		}
	}

	log.Debug("Storage cleanup")
	return c.Storage.Cleanup()
}
