package chunk

import "context"

// InfoCache caches file metadata in front of the store.
// Implementations return nil, nil on a miss.
type InfoCache interface {
	Get(ctx context.Context, fileID string) (*FileInfo, error)
	Set(ctx context.Context, info *FileInfo) error
	Invalidate(ctx context.Context, fileID string) error
}
