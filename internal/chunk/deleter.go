package chunk

import (
	"context"
	"fmt"
)

// Delete removes every chunk row of the file, walking the chain from the head.
// In Eager mode each removal is committed and detached immediately; in
// Deferred mode the removals stay staged until the caller's SaveChanges, and
// Info bypasses the cache for the file until then.
func (f *Files[T]) Delete(ctx context.Context, fileID string, mode CommitMode) error {
	return f.deleteChain(ctx, fileID, mode, f.opts.Strict)
}

func (f *Files[T]) deleteChain(ctx context.Context, fileID string, mode CommitMode, strict bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	head, ok, err := f.store.FindByID(ctx, fileID)
	if err != nil {
		return fmt.Errorf("finding head chunk: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, fileID)
	}

	if mode == Deferred {
		f.markRemoving(fileID)
		f.invalidate(ctx, fileID)
	}

	visited := map[string]struct{}{}
	row := head
	for {
		c := row.Row()
		visited[c.ID] = struct{}{}
		nextID := c.NextID

		if err := f.store.Remove(ctx, row); err != nil {
			return fmt.Errorf("removing chunk %s: %w", c.ID, err)
		}
		if mode == Eager {
			if err := f.store.SaveChanges(ctx); err != nil {
				return fmt.Errorf("saving removal of chunk %s: %w", c.ID, err)
			}
			f.store.Detach(row)
			if c.ID == fileID {
				f.invalidate(ctx, fileID)
			}
		}

		if nextID == "" {
			break
		}
		if _, seen := visited[nextID]; seen {
			if err := f.breakOrStop(strict, "delete", fileID, nextID, "cycle"); err != nil {
				return err
			}
			break
		}

		if err := ctx.Err(); err != nil {
			return err
		}
		next, ok, err := f.store.FindByID(ctx, nextID)
		if err != nil {
			return fmt.Errorf("finding chunk %s: %w", nextID, err)
		}
		if !ok {
			if err := f.breakOrStop(strict, "delete", fileID, nextID, "missing"); err != nil {
				return err
			}
			break
		}
		row = next
	}

	f.logger.Debug("file deleted", "file_id", fileID, "chunks", len(visited), "mode", mode.String())
	return nil
}
