package storage

import (
	"io"
	fspkg "io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

type fs struct {
	workspace string
}

// NewFileSystem returns a new File System backend.
func NewFileSystem(workspace string) Backend {
	return &fs{
		workspace: workspace,
	}
}

func (b *fs) Name() string {
	return "file_system"
}

func (b *fs) Reader(vault, archive string) (io.ReadCloser, error) {
	rc, err := os.Open(b.path(vault, archive))
	if err != nil {
		return nil, errors.Wrap(err, "could not open archive")
	}
	return rc, nil
}

func (b *fs) Writer(vault, archive string) (io.WriteCloser, error) {
	if err := os.MkdirAll(b.path(vault, ""), 0755); err != nil {
		return nil, errors.Wrap(err, "could not create vault folder")
	}

	wc, err := os.Create(b.path(vault, archive))
	if err != nil {
		return nil, errors.Wrap(err, "could not create archive")
	}
	return wc, nil
}

func (b *fs) Exist(vault, archive string) bool {
	_, err := os.Stat(b.path(vault, archive))
	if err == nil {
		return true
	}
	if os.IsNotExist(err) {
		return false
	}
	return true // ignoring error
}

func (b *fs) RemoveAll(vault string) error {
	return b.Remove(vault, "")
}

func (b *fs) Remove(vault, archive string) error {
	if b.path(vault, "") == filepath.Clean(b.workspace) {
		return errors.Errorf("invalid vault name %q", vault)
	}

	err := os.RemoveAll(b.path(vault, archive))
	if err != nil {
		return errors.Wrap(err, "could not delete archive")
	}
	return nil
}

func (b *fs) Cleanup() error {
	if _, err := os.Stat(b.workspace); os.IsNotExist(err) {
		return nil
	}

	// Find empty directories.
	//
	stats := map[string]int{}
	err := filepath.Walk(b.workspace, func(path string, info fspkg.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			if path == b.workspace {
				return nil
			}
			stats[path] = 0
			return nil
		}

		if strings.HasSuffix(path, ".DS_Store") {
			return nil
		}

		trimmedpath := strings.Replace(path, b.workspace, "", 1)
		base := b.workspace

		for _, segment := range strings.Split(filepath.Dir(trimmedpath), string(os.PathSeparator)) {
			base = filepath.Join(base, segment)
			if !strings.HasPrefix(base, b.workspace) {
				continue
			}
			stats[base]++
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "cleanup")
	}

	// Remove empty directories.
	//
	for dirname, count := range stats {
		if count == 0 {
			os.RemoveAll(dirname)
		}
	}
	return nil
}

// path returns the location of the archive. Vault and archive names are reduced
// to their base name so they cannot escape the workspace.
func (b *fs) path(vault, archive string) string {
	p := filepath.Join(b.workspace, filepath.Base(filepath.Clean("/"+vault)))
	if archive == "" {
		return p
	}
	return filepath.Join(p, filepath.Base(filepath.Clean("/"+archive)))
}
