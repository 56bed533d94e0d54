package chunk

import (
	"context"
	"fmt"
)

// Info returns the metadata of a stored file without loading any chunk payload.
func (f *Files[T]) Info(ctx context.Context, fileID string) (*FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	useCache := f.opts.Cache != nil && !f.isRemoving(fileID)
	if useCache {
		cached, err := f.opts.Cache.Get(ctx, fileID)
		if err != nil {
			f.logger.Warn("file info cache lookup failed", "file_id", fileID, "error", err)
		} else if cached != nil {
			return cached, nil
		}
	}

	info, err := f.store.FindInfo(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("finding file info: %w", err)
	}
	if info == nil {
		// The delete was committed through the store directly.
		f.doneRemoving(fileID)
		return nil, fmt.Errorf("%w: %s", ErrNotFound, fileID)
	}

	if useCache {
		if err := f.opts.Cache.Set(ctx, info); err != nil {
			f.logger.Warn("failed to cache file info", "file_id", fileID, "error", err)
		}
	}
	return info, nil
}

// List returns one page of stored files in the given order. Pages start at 1.
func (f *Files[T]) List(ctx context.Context, page, limit int, order ListOrder) (*Page, error) {
	if page < 1 || limit < 1 {
		return nil, fmt.Errorf("%w: page=%d limit=%d", ErrInvalidPage, page, limit)
	}

	items, total, err := f.store.ListFiles(ctx, (page-1)*limit, limit, order)
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	return &Page{
		Items:      items,
		TotalItems: total,
		Page:       page,
		Limit:      limit,
	}, nil
}
