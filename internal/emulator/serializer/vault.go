package serializer

import (
	"github.com/mdouchement/aletsch/internal/emulator/registry"
)

// Vaults returns the serialized form of the given models.
func Vaults(vaults []*registry.Vault) []map[string]interface{} {
	sl := make([]map[string]interface{}, 0, len(vaults))

	for _, vault := range vaults {
		sl = append(sl, map[string]interface{}{
			"VaultName":    vault.Name,
			"CreationDate": vault.CreatedAt,
		})
	}

	return sl
}

// Vault returns the serialized form of the given model.
func Vault(vault *registry.Vault, archives []*registry.Archive) map[string]interface{} {
	var size int64
	for _, archive := range archives {
		size += archive.Size
	}

	return map[string]interface{}{
		"VaultName":        vault.Name,
		"CreationDate":     vault.CreatedAt,
		"NumberOfArchives": len(archives),
		"SizeInBytes":      size,
	}
}
