package chunk

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// DefaultChunkSize is used when a write does not ask for a positive chunk size.
const DefaultChunkSize = 64 * 1024

// DefaultMimeType is stamped on chunks written without a content type.
const DefaultMimeType = "application/octet-stream"

// CommitMode selects when staged chunk rows are committed.
type CommitMode int

const (
	// Deferred stages rows and leaves the commit to the caller's SaveChanges.
	// Every chunk buffer stays in memory until then.
	Deferred CommitMode = iota

	// Eager commits and detaches each row as soon as it is staged, so only one
	// chunk buffer is held at a time at the cost of one round-trip per chunk.
	Eager
)

func (m CommitMode) String() string {
	switch m {
	case Deferred:
		return "deferred"
	case Eager:
		return "eager"
	default:
		return fmt.Sprintf("CommitMode(%d)", int(m))
	}
}

// ParseCommitMode parses "deferred"/"add" or "eager"/"save". Empty means Deferred.
func ParseCommitMode(s string) (CommitMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "deferred", "add":
		return Deferred, nil
	case "eager", "save":
		return Eager, nil
	default:
		return Deferred, fmt.Errorf("unknown commit mode: %q", s)
	}
}

// FilesOptions holds the optional collaborators of a Files service.
type FilesOptions struct {
	// Hasher, when set, fills ChunkRow.Hash on write.
	Hasher Hasher

	// Cache, when set, serves Info lookups and is invalidated on delete.
	// A file whose deferred delete is not yet committed bypasses the cache.
	Cache InfoCache

	// Strict turns dangling or cyclic NextID links into ErrBrokenChain
	// instead of ending the traversal early.
	Strict bool

	// VerifyHashes checks every hashed chunk against Hasher while reading.
	// Hasher defaults to SHA256Hasher when VerifyHashes is set.
	VerifyHashes bool
}

// Files implements the chunk chain protocol over a Store of rows of type T.
type Files[T Entity] struct {
	store  Store[T]
	newRow func() T
	logger Logger
	clock  Clock
	idgen  IDGenerator
	opts   FilesOptions

	mu       sync.Mutex
	removing map[string]struct{} // file IDs with a staged, uncommitted delete
}

// NewFiles creates a Files service. newRow must return a fresh, empty row each call.
func NewFiles[T Entity](store Store[T], newRow func() T, logger Logger, clock Clock, idgen IDGenerator, opts FilesOptions) *Files[T] {
	if logger == nil {
		logger = NewNopLogger()
	}
	if clock == nil {
		clock = RealClock{}
	}
	if idgen == nil {
		idgen = UUIDGenerator{}
	}
	if opts.VerifyHashes && opts.Hasher == nil {
		opts.Hasher = SHA256Hasher{}
	}
	return &Files[T]{
		store:    store,
		newRow:   newRow,
		logger:   logger,
		clock:    clock,
		idgen:    idgen,
		opts:     opts,
		removing: map[string]struct{}{},
	}
}

// Store returns the persistence context.
func (f *Files[T]) Store() Store[T] {
	return f.store
}

// SaveChanges commits the rows staged by Deferred writes and deletes, then
// drops cached info of the files it deleted.
func (f *Files[T]) SaveChanges(ctx context.Context) error {
	if err := f.store.SaveChanges(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	committed := make([]string, 0, len(f.removing))
	for id := range f.removing {
		committed = append(committed, id)
	}
	clear(f.removing)
	f.mu.Unlock()

	for _, id := range committed {
		f.invalidate(ctx, id)
	}
	return nil
}

func (f *Files[T]) markRemoving(fileID string) {
	f.mu.Lock()
	f.removing[fileID] = struct{}{}
	f.mu.Unlock()
}

func (f *Files[T]) isRemoving(fileID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.removing[fileID]
	return ok
}

func (f *Files[T]) doneRemoving(fileID string) {
	f.mu.Lock()
	delete(f.removing, fileID)
	f.mu.Unlock()
}

func (f *Files[T]) invalidate(ctx context.Context, fileID string) {
	if f.opts.Cache == nil {
		return
	}
	if err := f.opts.Cache.Invalidate(ctx, fileID); err != nil {
		f.logger.Warn("failed to invalidate cached file info", "file_id", fileID, "error", err)
	}
}

// breakOrStop handles a link that cannot be followed. When strict it returns
// ErrBrokenChain; otherwise it logs and returns nil so the traversal ends quietly.
func (f *Files[T]) breakOrStop(strict bool, op, fileID, id, reason string) error {
	if strict {
		return fmt.Errorf("%w: %s of file %s at chunk %s: %s", ErrBrokenChain, op, fileID, id, reason)
	}
	f.logger.Warn("chunk chain ended early", "op", op, "file_id", fileID, "chunk_id", id, "reason", reason)
	return nil
}
