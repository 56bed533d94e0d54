package chunk

import (
	"context"
	"time"
)

// Store is the persistence context the chain protocol runs against.
// It behaves as a unit of work: Add and Remove stage changes that become
// durable only when SaveChanges succeeds.
type Store[T Entity] interface {
	// Add stages a new row for insertion.
	Add(ctx context.Context, row T) error

	// Remove stages a row for deletion.
	Remove(ctx context.Context, row T) error

	// SaveChanges commits every staged change in a single transaction.
	SaveChanges(ctx context.Context) error

	// Detach stops tracking a row and drops any change still staged for it.
	Detach(row T)

	// FindByID returns the row with the given ID and tracks it.
	// The bool is false when no such row exists.
	FindByID(ctx context.Context, id string) (T, bool, error)

	// FindByIDUntracked returns the row with the given ID without tracking it.
	FindByIDUntracked(ctx context.Context, id string) (T, bool, error)

	// FindInfo returns the file metadata of the head row with the given ID
	// without loading its payload. Returns nil if not found.
	FindInfo(ctx context.Context, id string) (*FileInfo, error)

	// ListFiles returns head rows ordered by time stamp, and the total number of heads.
	ListFiles(ctx context.Context, offset, limit int, order ListOrder) ([]*FileInfo, int64, error)

	// CountByFileID returns the number of rows carrying the given file ID.
	CountByFileID(ctx context.Context, fileID string) (int64, error)
}

// ListOrder selects how listed files are sorted. Ties on the time stamp are
// broken by ID in the same direction.
type ListOrder int

const (
	OldestFirst ListOrder = iota
	NewestFirst
)

func (o ListOrder) String() string {
	if o == NewestFirst {
		return "newest"
	}
	return "oldest"
}

// FileInfo is the file-level metadata handed back to callers.
// It deliberately omits payload and chain fields.
type FileInfo struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	MimeType         string    `json:"mime_type"`
	TimeStamp        time.Time `json:"time_stamp"`
	TotalBytesLength int64     `json:"total_bytes_length"`
}

// Page is one page of stored files.
type Page struct {
	Items      []*FileInfo
	TotalItems int64
	Page       int
	Limit      int
}

// TotalPages returns the number of pages needed to list every file.
func (p *Page) TotalPages() int {
	if p.Limit <= 0 {
		return 0
	}
	return int((p.TotalItems + int64(p.Limit) - 1) / int64(p.Limit))
}
