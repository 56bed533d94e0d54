package staging

import (
	"fmt"
	"os"
)

// fileStore spools to temp files in dir.
type fileStore struct {
	dir string
}

// NewFileSystemStagingArea creates a staging area that spools to files in dir.
// maxSize is the maximum total size in bytes; must be positive.
func NewFileSystemStagingArea(dir string, maxSize int64) (*Area, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	return newArea(&fileStore{dir: dir}, maxSize), nil
}

func (s *fileStore) Create() (buffer, error) {
	f, err := os.CreateTemp(s.dir, "spool-*")
	if err != nil {
		return nil, err
	}
	return &fileBuffer{File: f}, nil
}

type fileBuffer struct {
	*os.File
	removed bool
}

func (b *fileBuffer) Remove() error {
	if b.removed {
		return nil
	}
	b.removed = true
	b.File.Close()
	if err := os.Remove(b.Name()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing spool file: %w", err)
	}
	return nil
}
