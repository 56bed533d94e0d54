package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrFull is returned when spooling a stream would exceed the area's max size.
var ErrFull = errors.New("staging area full")

// buffer holds the content of one spool.
type buffer interface {
	io.Writer
	io.ReadSeeker

	// Remove discards the content. It is safe to call more than once.
	Remove() error
}

// bufferStore creates buffers. Concurrency is managed by Area.
type bufferStore interface {
	Create() (buffer, error)
}

// Area spools streams of unknown length so they can be chunked with a known
// size. The total size of open spools is bounded by maxSize.
type Area struct {
	store   bufferStore
	maxSize int64

	mu   sync.Mutex
	used int64
}

func newArea(store bufferStore, maxSize int64) *Area {
	return &Area{store: store, maxSize: maxSize}
}

// Stage copies r into a new spool. The caller must Close the spool.
// If r is longer than the space left in the area, the partial copy is
// discarded and ErrFull is returned.
func (a *Area) Stage(ctx context.Context, r io.Reader) (*Spool, error) {
	a.mu.Lock()
	room := a.maxSize - a.used
	a.mu.Unlock()

	buf, err := a.store.Create()
	if err != nil {
		return nil, fmt.Errorf("creating spool: %w", err)
	}

	// Read one byte past the room left so an overflow can be detected.
	n, err := io.Copy(buf, io.LimitReader(ctxReader{ctx: ctx, r: r}, room+1))
	if err != nil {
		buf.Remove()
		return nil, fmt.Errorf("spooling content: %w", err)
	}
	if n > room {
		buf.Remove()
		return nil, fmt.Errorf("%w: would exceed max size of %d bytes", ErrFull, a.maxSize)
	}

	a.mu.Lock()
	if a.used+n > a.maxSize {
		a.mu.Unlock()
		buf.Remove()
		return nil, fmt.Errorf("%w: would exceed max size of %d bytes", ErrFull, a.maxSize)
	}
	a.used += n
	a.mu.Unlock()

	if _, err := buf.Seek(0, io.SeekStart); err != nil {
		a.release(n)
		buf.Remove()
		return nil, fmt.Errorf("rewinding spool: %w", err)
	}
	return &Spool{area: a, buf: buf, size: n}, nil
}

// Used returns the bytes held by open spools.
func (a *Area) Used() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.used
}

func (a *Area) release(n int64) {
	a.mu.Lock()
	a.used -= n
	a.mu.Unlock()
}

// Spool is staged content. It reads and seeks like a file.
type Spool struct {
	area   *Area
	buf    buffer
	size   int64
	closed bool
}

// Size returns the number of bytes spooled.
func (s *Spool) Size() int64 { return s.size }

func (s *Spool) Read(p []byte) (int, error) { return s.buf.Read(p) }

func (s *Spool) Seek(offset int64, whence int) (int64, error) {
	return s.buf.Seek(offset, whence)
}

// Close discards the content and returns its space to the area.
func (s *Spool) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.area.release(s.size)
	return s.buf.Remove()
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
