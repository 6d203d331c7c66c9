package emulator

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/mdouchement/aletsch/internal/database"
	"github.com/mdouchement/aletsch/internal/emulator/registry"
	"github.com/mdouchement/aletsch/internal/emulator/serializer"
	"github.com/mdouchement/aletsch/internal/emulator/weberror"
	"github.com/mdouchement/aletsch/internal/storage"
	"github.com/mdouchement/logger"
)

type vault struct {
	logger   logger.Logger
	registry registry.Registry
	storage  storage.Backend
}

// loadVault returns the vault of the request or a rendered error.
func loadVault(r registry.Registry, c echo.Context) (*registry.Vault, error) {
	vault, err := r.FindVault(c.Param("vault"))
	if err != nil {
		if database.IsNotFound(err) {
			return nil, weberror.Newf(http.StatusNotFound, "vault %s does not exist", c.Param("vault"))
		}
		return nil, weberror.New(http.StatusInternalServerError, err.Error())
	}
	return vault, nil
}

func (h *vault) List(c echo.Context) error {
	c.Set("handler_method", "vault.List")

	vaults, err := h.registry.ListVaults()
	if err != nil && !database.IsNotFound(err) {
		return weberror.New(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, echo.Map{
		"VaultList": serializer.Vaults(vaults),
	})
}

func (h *vault) Show(c echo.Context) error {
	c.Set("handler_method", "vault.Show")

	vault, err := loadVault(h.registry, c)
	if err != nil {
		return err
	}

	archives, err := h.registry.ListArchives(vault.Name)
	if err != nil {
		return weberror.New(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, serializer.Vault(vault, archives))
}

func (h *vault) Create(c echo.Context) error {
	c.Set("handler_method", "vault.Create")

	vault, err := h.registry.CreateVault(c.Param("vault"))
	if err != nil {
		return weberror.New(http.StatusInternalServerError, err.Error())
	}

	c.Response().Header().Set("Location", "/v1/vaults/"+vault.Name)
	return c.NoContent(http.StatusCreated)
}

func (h *vault) Delete(c echo.Context) error {
	c.Set("handler_method", "vault.Delete")

	vault, err := loadVault(h.registry, c)
	if err != nil {
		return err
	}

	archives, err := h.registry.ListArchives(vault.Name)
	if err != nil {
		return weberror.New(http.StatusInternalServerError, err.Error())
	}

	if len(archives) > 0 {
		return weberror.Newf(http.StatusConflict, "vault %s is not empty", vault.Name)
	}

	//

	if err = h.registry.DeleteVault(vault.Name); err != nil {
		return weberror.New(http.StatusInternalServerError, err.Error())
	}

	if err = h.storage.RemoveAll(vault.Name); err != nil {
		h.logger.Errorf("vault.Delete: %s", err)
	}

	return c.NoContent(http.StatusNoContent)
}
