package storage

import (
	"io"
)

// Location identifies a stored upload. For LocalStorage it is the absolute
// path of the file on disk.
type Location string

// Storage defines the interface for keeping uploaded files until their single
// download happens.
type Storage interface {
	// Put stores the content under a name derived from the original file name
	// and returns where it was written.
	Put(name string, data []byte) (Location, error)
	// Open returns the original bytes of a stored upload.
	Open(loc Location) (io.ReadCloser, error)
	// Remove discards a stored upload. Removing a missing file is not an error.
	Remove(loc Location) error
}
