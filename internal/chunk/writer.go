package chunk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// WriteRequest describes a file to store.
type WriteRequest struct {
	Name      string
	MimeType  string     // defaults to DefaultMimeType
	FileID    string     // empty or the nil UUID generates one
	ChunkSize int        // <= 0 uses DefaultChunkSize
	Mode      CommitMode // Deferred leaves the commit to the caller
}

// Write splits r into a chain of chunk rows and stages them in the store.
//
// size is the number of bytes r will yield. A negative size asks Write to
// measure the remaining length, which requires r to implement io.Seeker.
//
// An empty source stages no rows; the returned metadata then has
// TotalBytesLength 0 and Info on its ID reports ErrNotFound.
//
// If the write fails part way, the rows it produced are detached (Deferred)
// or deleted again (Eager) before the error is returned.
func (f *Files[T]) Write(ctx context.Context, r io.Reader, size int64, req WriteRequest) (*FileInfo, error) {
	if size < 0 {
		measured, err := remainingSize(r)
		if err != nil {
			return nil, err
		}
		size = measured
	}

	chunkSize := req.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	fileID := req.FileID
	if isNilID(fileID) {
		fileID = f.idgen.New()
	}
	mimeType := req.MimeType
	if strings.TrimSpace(mimeType) == "" {
		mimeType = DefaultMimeType
	}

	info := &FileInfo{
		ID:               fileID,
		Name:             req.Name,
		MimeType:         mimeType,
		TimeStamp:        f.clock.Now().UTC(),
		TotalBytesLength: size,
	}

	w := &chainWriter[T]{files: f, info: info, mode: req.Mode}
	if err := w.write(ctx, r, size, chunkSize); err != nil {
		w.discard(ctx)
		return nil, err
	}

	if w.chunks == 0 {
		f.logger.Warn("empty file written, no chunks stored", "file_id", fileID, "name", info.Name)
	} else {
		f.logger.Debug("file chunked", "file_id", fileID, "chunks", w.chunks, "bytes", size, "mode", req.Mode.String())
	}
	return info, nil
}

// WriteFile stores the file at path. Name defaults to the base name of the path
// and MimeType to the type registered for its extension.
func (f *Files[T]) WriteFile(ctx context.Context, path string, req WriteRequest) (*FileInfo, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if stat.IsDir() {
		return nil, fmt.Errorf("path is a directory, not a file: %s", path)
	}

	if req.Name == "" {
		req.Name = filepath.Base(path)
	}
	if req.MimeType == "" {
		req.MimeType = MimeTypeByName(req.Name)
	}

	return f.Write(ctx, file, stat.Size(), req)
}

// MimeTypeByName returns the content type registered for the name's extension,
// or DefaultMimeType.
func MimeTypeByName(name string) string {
	ext := filepath.Ext(name)
	if ext == "" {
		return DefaultMimeType
	}
	if t := mime.TypeByExtension(strings.ToLower(ext)); t != "" {
		return t
	}
	return DefaultMimeType
}

// chainWriter holds the state of a single Write call.
type chainWriter[T Entity] struct {
	files  *Files[T]
	info   *FileInfo
	mode   CommitMode
	chunks int
	staged []T // rows staged but not committed (Deferred only)
}

func (w *chainWriter[T]) write(ctx context.Context, r io.Reader, size int64, chunkSize int) error {
	f := w.files
	id := w.info.ID
	var start int64
	remaining := size

	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		n := int64(chunkSize)
		if remaining < n {
			n = remaining
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return fmt.Errorf("%w: source ended at offset %d of %d", ErrSizeMismatch, start, size)
			}
			return fmt.Errorf("reading chunk at offset %d: %w", start, err)
		}
		remaining -= n

		row := f.newRow()
		c := row.Row()
		c.ID = id
		c.FileID = w.info.ID
		c.Name = w.info.Name
		c.MimeType = w.info.MimeType
		c.TimeStamp = w.info.TimeStamp
		c.TotalBytesLength = size
		c.Start = start
		c.ChunkBytesLength = int(n)
		c.Data = buf
		if f.opts.Hasher != nil {
			c.Hash = f.opts.Hasher.Sum(buf)
		}
		// The successor's ID is chosen before this row is staged, so the link
		// is written once and never patched.
		if remaining > 0 {
			id = f.idgen.New()
			c.NextID = id
		}

		if err := f.store.Add(ctx, row); err != nil {
			return fmt.Errorf("adding chunk %d: %w", w.chunks, err)
		}
		if w.mode == Eager {
			if err := f.store.SaveChanges(ctx); err != nil {
				f.store.Detach(row)
				return fmt.Errorf("saving chunk %d: %w", w.chunks, err)
			}
			f.store.Detach(row)
		} else {
			w.staged = append(w.staged, row)
		}

		w.chunks++
		start += n
	}

	return checkExhausted(r, size)
}

// checkExhausted fails when a seekable source still has bytes after the
// declared size. Sources that cannot seek are never read past size, since a
// stream left open would block the read.
func checkExhausted(r io.Reader, size int64) error {
	seeker, ok := r.(io.Seeker)
	if !ok {
		return nil
	}
	cur, err := seeker.Seek(0, io.SeekCurrent)
	if err != nil {
		// Pipes and sockets wrapped in *os.File refuse to seek.
		return nil
	}
	end, err := seeker.Seek(0, io.SeekEnd)
	if err != nil {
		return fmt.Errorf("seeking source: %w", err)
	}
	if _, err := seeker.Seek(cur, io.SeekStart); err != nil {
		return fmt.Errorf("seeking source: %w", err)
	}
	if end > cur {
		return fmt.Errorf("%w: source has %d bytes more than %d", ErrSizeMismatch, end-cur, size)
	}
	return nil
}

// discard undoes a failed write. Deferred rows are simply detached; eager rows
// are already committed and must be deleted. Cleanup ignores cancellation of ctx.
func (w *chainWriter[T]) discard(ctx context.Context) {
	f := w.files
	for _, row := range w.staged {
		f.store.Detach(row)
	}
	w.staged = nil

	if w.mode != Eager || w.chunks == 0 {
		return
	}
	cleanupCtx := context.WithoutCancel(ctx)
	// The committed prefix usually ends on a link to a chunk that was never
	// saved, so the walk is lenient regardless of the service setting.
	if err := f.deleteChain(cleanupCtx, w.info.ID, Eager, false); err != nil && !errors.Is(err, ErrNotFound) {
		f.logger.Error("failed to remove partial chunk chain", "file_id", w.info.ID, "chunks", w.chunks, "error", err)
		return
	}
	f.logger.Warn("removed partial chunk chain after failed write", "file_id", w.info.ID, "chunks", w.chunks)
}

// remainingSize measures how many bytes are left in a seekable source and
// restores its position.
func remainingSize(r io.Reader) (int64, error) {
	seeker, ok := r.(io.Seeker)
	if !ok {
		return 0, ErrUnknownSize
	}
	cur, err := seeker.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, fmt.Errorf("seeking source: %w", err)
	}
	end, err := seeker.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("seeking source: %w", err)
	}
	if _, err := seeker.Seek(cur, io.SeekStart); err != nil {
		return 0, fmt.Errorf("seeking source: %w", err)
	}
	return end - cur, nil
}
