package serializer

import (
	"time"

	"github.com/mdouchement/aletsch/internal/emulator/registry"
	"github.com/mdouchement/aletsch/internal/gateway"
	"github.com/mdouchement/aletsch/internal/model"
)

// Job returns the serialized form of the given model with its current status.
func Job(job *registry.Job, status model.StatusCode, completion time.Time) map[string]interface{} {
	m := map[string]interface{}{
		"JobId":        job.ID,
		"Action":       job.Action,
		"StatusCode":   status,
		"VaultName":    job.Vault,
		"CreationDate": job.CreatedAt,
		"Completed":    status != model.InProgress,
	}

	if job.ArchiveID != "" {
		m["ArchiveId"] = job.ArchiveID
	}
	if status != model.InProgress {
		m["CompletionDate"] = completion
	}
	return m
}

// Inventory returns the inventory of the given archives.
func Inventory(archives []*registry.Archive, date time.Time) *gateway.Inventory {
	inventory := &gateway.Inventory{
		InventoryDate: date,
		ArchiveList:   make([]gateway.InventoryArchive, 0, len(archives)),
	}

	for _, archive := range archives {
		inventory.ArchiveList = append(inventory.ArchiveList, gateway.InventoryArchive{
			ArchiveID:          archive.ID,
			ArchiveDescription: archive.Description,
			CreationDate:       archive.CreatedAt,
			Size:               archive.Size,
			SHA256TreeHash:     archive.TreeHash,
		})
	}

	return inventory
}
