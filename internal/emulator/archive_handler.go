package emulator

import (
	"io"
	"net/http"

	"github.com/gofrs/uuid"
	"github.com/labstack/echo/v4"
	"github.com/mdouchement/aletsch/internal/database"
	"github.com/mdouchement/aletsch/internal/emulator/registry"
	"github.com/mdouchement/aletsch/internal/emulator/weberror"
	"github.com/mdouchement/aletsch/internal/storage"
	"github.com/mdouchement/logger"
	"github.com/pkg/errors"
)

type archive struct {
	logger   logger.Logger
	registry registry.Registry
	storage  storage.Backend
}

func (h *archive) Upload(c echo.Context) error {
	c.Set("handler_method", "archive.Upload")

	vault, err := loadVault(h.registry, c)
	if err != nil {
		return err
	}

	archive := &registry.Archive{
		Vault:       vault.Name,
		Description: c.Request().Header.Get("X-Archive-Description"),
	}
	archive.ID = uuid.Must(uuid.NewV4()).String()

	if err = h.write(archive, c.Request().Body); err != nil {
		h.storage.Remove(archive.Vault, archive.ID)
		return weberror.New(http.StatusInternalServerError, err.Error())
	}

	if err := h.registry.SaveArchive(archive); err != nil {
		h.storage.Remove(archive.Vault, archive.ID)
		return weberror.New(http.StatusInternalServerError, err.Error())
	}

	c.Response().Header().Set("X-Archive-Id", archive.ID)
	c.Response().Header().Set("X-Sha256-Tree-Hash", archive.TreeHash)
	return c.JSON(http.StatusCreated, echo.Map{
		"archive_id": archive.ID,
		"checksum":   archive.TreeHash,
	})
}

// write stores the payload and fills the archive's size and checksum.
func (h *archive) write(archive *registry.Archive, r io.Reader) error {
	wc, err := h.storage.Writer(archive.Vault, archive.ID)
	if err != nil {
		return err
	}
	defer wc.Close()

	th := NewTreeHash()
	w := io.MultiWriter(th, wc)

	n, err := io.Copy(w, r)
	if err != nil {
		return errors.Wrap(err, "could not write archive")
	}

	archive.Size = n
	archive.TreeHash = th.Sum()
	return errors.Wrap(wc.Close(), "could not write archive")
}

func (h *archive) Delete(c echo.Context) error {
	c.Set("handler_method", "archive.Delete")

	vault, err := loadVault(h.registry, c)
	if err != nil {
		return err
	}

	archive, err := h.registry.FindArchive(vault.Name, c.Param("archive"))
	if err != nil {
		if database.IsNotFound(err) {
			return weberror.Newf(http.StatusNotFound, "archive %s does not exist", c.Param("archive"))
		}
		return weberror.New(http.StatusInternalServerError, err.Error())
	}

	//

	if err = h.storage.Remove(vault.Name, archive.ID); err != nil {
		return weberror.New(http.StatusInternalServerError, err.Error())
	}

	if err = h.registry.DeleteArchive(vault.Name, archive.ID); err != nil {
		return weberror.New(http.StatusInternalServerError, err.Error())
	}

	return c.NoContent(http.StatusNoContent)
}
