package staging

import (
	"bytes"
	"io"
)

// NewMemoryStagingArea creates a staging area that spools in memory,
// making it useful for testing. maxSize is the maximum total size in bytes.
func NewMemoryStagingArea(maxSize int64) *Area {
	return newArea(memoryStore{}, maxSize)
}

type memoryStore struct{}

func (memoryStore) Create() (buffer, error) {
	return &memoryBuffer{}, nil
}

// memoryBuffer collects writes, then serves reads from the collected bytes.
type memoryBuffer struct {
	data []byte
	r    *bytes.Reader
}

func (b *memoryBuffer) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	b.r = nil
	return len(p), nil
}

func (b *memoryBuffer) reader() *bytes.Reader {
	if b.r == nil {
		b.r = bytes.NewReader(b.data)
	}
	return b.r
}

func (b *memoryBuffer) Read(p []byte) (int, error) {
	return b.reader().Read(p)
}

func (b *memoryBuffer) Seek(offset int64, whence int) (int64, error) {
	return b.reader().Seek(offset, whence)
}

func (b *memoryBuffer) Remove() error {
	b.data = nil
	b.r = bytes.NewReader(nil)
	return nil
}

var _ io.ReadWriteSeeker = (*memoryBuffer)(nil)
