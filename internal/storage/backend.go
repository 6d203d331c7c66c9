package storage

import "io"

// Backend is the interface that wraps the basic archive file operations.
type Backend interface {
	// Name returns the name of the backend implementation.
	Name() string

	// Reader returns a ReadCloser of the archive.
	Reader(vault, archive string) (io.ReadCloser, error)
	// Writer returns a WriteCloser of the archive.
	Writer(vault, archive string) (io.WriteCloser, error)
	// Exist returns true if the archive is stored.
	Exist(vault, archive string) bool

	// Remove deletes the given archive.
	Remove(vault, archive string) error
	// RemoveAll deletes the vault folder and all its archives.
	RemoveAll(vault string) error
	// Cleanup cleans useless artifacts in storage.
	Cleanup() error
}
