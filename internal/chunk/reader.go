package chunk

import (
	"context"
	"fmt"
	"io"
)

// ReadInto writes the content of the file to w by walking its chunk chain from
// the head. Rows are read without tracking.
//
// A link to a missing or already visited row ends the walk early, unless the
// service is strict, in which case ErrBrokenChain is returned. When w can seek,
// it is rewound to its start afterwards; seek failures are ignored.
func (f *Files[T]) ReadInto(ctx context.Context, fileID string, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	head, ok, err := f.store.FindByIDUntracked(ctx, fileID)
	if err != nil {
		return fmt.Errorf("finding head chunk: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, fileID)
	}

	visited := map[string]struct{}{}
	c := head.Row()
	var written int64
	for {
		visited[c.ID] = struct{}{}

		payload := c.Payload()
		if f.opts.VerifyHashes && f.opts.Hasher != nil && c.Hash != "" {
			if sum := f.opts.Hasher.Sum(payload); sum != c.Hash {
				return fmt.Errorf("%w: file %s chunk %s", ErrChecksumMismatch, fileID, c.ID)
			}
		}
		n, err := w.Write(payload)
		written += int64(n)
		if err != nil {
			return fmt.Errorf("writing chunk %s: %w", c.ID, err)
		}

		if !c.HasNext() {
			break
		}
		nextID := c.NextID
		if _, seen := visited[nextID]; seen {
			if err := f.breakOrStop(f.opts.Strict, "read", fileID, nextID, "cycle"); err != nil {
				return err
			}
			break
		}

		if err := ctx.Err(); err != nil {
			return err
		}
		next, ok, err := f.store.FindByIDUntracked(ctx, nextID)
		if err != nil {
			return fmt.Errorf("finding chunk %s: %w", nextID, err)
		}
		if !ok {
			if err := f.breakOrStop(f.opts.Strict, "read", fileID, nextID, "missing"); err != nil {
				return err
			}
			break
		}
		c = next.Row()
	}

	if seeker, ok := w.(io.Seeker); ok {
		// Some sinks refuse to seek; the caller then owns the position.
		_, _ = seeker.Seek(0, io.SeekStart)
	}

	f.logger.Debug("file read", "file_id", fileID, "chunks", len(visited), "bytes", written)
	return nil
}
