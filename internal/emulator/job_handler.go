package emulator

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/mdouchement/aletsch/internal/database"
	"github.com/mdouchement/aletsch/internal/emulator/registry"
	"github.com/mdouchement/aletsch/internal/emulator/serializer"
	"github.com/mdouchement/aletsch/internal/emulator/weberror"
	"github.com/mdouchement/aletsch/internal/model"
	"github.com/mdouchement/aletsch/internal/storage"
	"github.com/mdouchement/logger"
)

type job struct {
	logger   logger.Logger
	registry registry.Registry
	storage  storage.Backend
	clock    clock
}

type jobParameters struct {
	Type      string `json:"type"`
	ArchiveID string `json:"archive_id"`
}

func (h *job) List(c echo.Context) error {
	c.Set("handler_method", "job.List")

	vault, err := loadVault(h.registry, c)
	if err != nil {
		return err
	}

	jobs, err := h.registry.AllJobs()
	if err != nil && !database.IsNotFound(err) {
		return weberror.New(http.StatusInternalServerError, err.Error())
	}

	list := make([]map[string]interface{}, 0, len(jobs))
	for _, job := range jobs {
		if job.Vault != vault.Name || h.clock.Expired(job) {
			continue
		}

		status, completion := h.status(job)
		list = append(list, serializer.Job(job, status, completion))
	}

	return c.JSON(http.StatusOK, echo.Map{
		"JobList": list,
	})
}

func (h *job) Create(c echo.Context) error {
	c.Set("handler_method", "job.Create")

	vault, err := loadVault(h.registry, c)
	if err != nil {
		return err
	}

	var params jobParameters
	if err = c.Bind(&params); err != nil {
		return weberror.New(http.StatusBadRequest, err.Error())
	}

	job := &registry.Job{Vault: vault.Name}

	switch params.Type {
	case "inventory-retrieval":
		archives, err := h.registry.ListArchives(vault.Name)
		if err != nil {
			return weberror.New(http.StatusInternalServerError, err.Error())
		}

		job.Action = model.InventoryRetrieval
		job.Inventory = serializer.Inventory(archives, h.clock.now().UTC())
	case "archive-retrieval":
		if _, err = h.registry.FindArchive(vault.Name, params.ArchiveID); err != nil {
			if database.IsNotFound(err) {
				return weberror.Newf(http.StatusBadRequest, "invalid archive id %s", params.ArchiveID)
			}
			return weberror.New(http.StatusInternalServerError, err.Error())
		}

		job.Action = model.ArchiveRetrieval
		job.ArchiveID = params.ArchiveID
	default:
		return weberror.Newf(http.StatusBadRequest, "invalid job type %q", params.Type)
	}

	if err = h.registry.SaveJob(job); err != nil {
		return weberror.New(http.StatusInternalServerError, err.Error())
	}

	c.Response().Header().Set("X-Job-Id", job.ID)
	return c.JSON(http.StatusAccepted, echo.Map{
		"job_id": job.ID,
	})
}

func (h *job) Show(c echo.Context) error {
	c.Set("handler_method", "job.Show")

	job, err := h.load(c)
	if err != nil {
		return err
	}

	status, completion := h.status(job)
	return c.JSON(http.StatusOK, serializer.Job(job, status, completion))
}

func (h *job) Output(c echo.Context) error {
	c.Set("handler_method", "job.Output")

	job, err := h.load(c)
	if err != nil {
		return err
	}

	if status, _ := h.status(job); status != model.Succeeded {
		return weberror.Newf(http.StatusBadRequest, "job %s is %s", job.ID, status)
	}

	//

	if job.Action == model.InventoryRetrieval {
		return c.JSON(http.StatusOK, job.Inventory)
	}

	archive, err := h.registry.FindArchive(job.Vault, job.ArchiveID)
	if err != nil {
		return weberror.New(http.StatusInternalServerError, err.Error())
	}

	r, err := h.storage.Reader(job.Vault, job.ArchiveID)
	if err != nil {
		return weberror.New(http.StatusUnprocessableEntity, "archive is corrupted")
	}
	defer r.Close()

	c.Response().Header().Set(echo.HeaderContentLength, strconv.FormatInt(archive.Size, 10))
	c.Response().Header().Set("X-Sha256-Tree-Hash", archive.TreeHash)
	return c.Stream(http.StatusOK, echo.MIMEOctetStream, r)
}

// load returns the non expired job of the request or a rendered error.
func (h *job) load(c echo.Context) (*registry.Job, error) {
	job, err := h.registry.FindJob(c.Param("vault"), c.Param("job"))
	if err != nil {
		if database.IsNotFound(err) {
			return nil, weberror.Newf(http.StatusNotFound, "job %s does not exist", c.Param("job"))
		}
		return nil, weberror.New(http.StatusInternalServerError, err.Error())
	}

	if h.clock.Expired(job) {
		return nil, weberror.Newf(http.StatusNotFound, "job %s does not exist", job.ID)
	}
	return job, nil
}

// status returns the job status. An archive retrieval fails when the archive
// has been deleted before the job completion.
func (h *job) status(job *registry.Job) (model.StatusCode, time.Time) {
	status, completion := h.clock.Status(job)
	if status == model.InProgress || job.Action != model.ArchiveRetrieval {
		return status, completion
	}

	if !h.storage.Exist(job.Vault, job.ArchiveID) {
		return model.Failed, completion
	}
	return status, completion
}
