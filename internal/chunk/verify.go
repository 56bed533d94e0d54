package chunk

import (
	"context"
	"fmt"
)

// ChainReport describes the state of a file's chunk chain.
type ChainReport struct {
	FileID        string
	Chunks        int   // rows reached from the head
	Rows          int64 // rows carrying the file ID
	Bytes         int64 // sum of chunk lengths along the chain
	DeclaredBytes int64 // TotalBytesLength of the head
	Problems      []string
}

// OK reports whether no problem was found.
func (r *ChainReport) OK() bool {
	return len(r.Problems) == 0
}

func (r *ChainReport) addProblem(format string, args ...any) {
	r.Problems = append(r.Problems, fmt.Sprintf(format, args...))
}

// Verify walks the chain of a file without emitting its content and reports
// dangling links, cycles, orphaned rows and length or offset inconsistencies.
// Problems are reported, not returned as errors; errors are reserved for a
// missing file and store failures.
func (f *Files[T]) Verify(ctx context.Context, fileID string) (*ChainReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	head, ok, err := f.store.FindByIDUntracked(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("finding head chunk: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, fileID)
	}

	h := head.Row()
	report := &ChainReport{FileID: fileID, DeclaredBytes: h.TotalBytesLength}
	visited := map[string]struct{}{}
	c := h
	for {
		visited[c.ID] = struct{}{}
		report.Chunks++

		if c.FileID != fileID {
			report.addProblem("chunk %s has file id %s", c.ID, c.FileID)
		}
		if c.Name != h.Name || c.MimeType != h.MimeType || c.TotalBytesLength != h.TotalBytesLength || !c.TimeStamp.Equal(h.TimeStamp) {
			report.addProblem("chunk %s metadata differs from head", c.ID)
		}
		if c.Start != report.Bytes {
			report.addProblem("chunk %s starts at %d, expected %d", c.ID, c.Start, report.Bytes)
		}
		if len(c.Data) < c.ChunkBytesLength {
			report.addProblem("chunk %s holds %d bytes, expected %d", c.ID, len(c.Data), c.ChunkBytesLength)
		}
		if f.opts.Hasher != nil && c.Hash != "" && f.opts.Hasher.Sum(c.Payload()) != c.Hash {
			report.addProblem("chunk %s checksum mismatch", c.ID)
		}
		report.Bytes += int64(c.ChunkBytesLength)

		if !c.HasNext() {
			break
		}
		if _, seen := visited[c.NextID]; seen {
			report.addProblem("chunk %s links back to %s", c.ID, c.NextID)
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next, ok, err := f.store.FindByIDUntracked(ctx, c.NextID)
		if err != nil {
			return nil, fmt.Errorf("finding chunk %s: %w", c.NextID, err)
		}
		if !ok {
			report.addProblem("chunk %s links to missing chunk %s", c.ID, c.NextID)
			break
		}
		c = next.Row()
	}

	if report.Bytes != report.DeclaredBytes {
		report.addProblem("chain holds %d bytes, head declares %d", report.Bytes, report.DeclaredBytes)
	}

	rows, err := f.store.CountByFileID(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("counting chunks: %w", err)
	}
	report.Rows = rows
	if rows != int64(report.Chunks) {
		report.addProblem("%d rows carry the file id but %d are reachable from the head", rows, report.Chunks)
	}

	return report, nil
}
