package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"chunkdb/internal/chunk"
	"chunkdb/internal/model"
)

var tracer = otel.Tracer("chunkdb/internal/database")

type changeKind int

const (
	changeInsert changeKind = iota
	changeDelete
)

type change[T chunk.Entity] struct {
	kind changeKind
	row  T
}

// ChunkStore is a unit-of-work persistence context over one chunk table.
// Add and Remove stage changes in memory; SaveChanges applies them in a
// single transaction. Rows loaded with FindByID are tracked by ID until they
// are detached or their removal is saved. Safe for concurrent use.
type ChunkStore[T chunk.Entity] struct {
	db    *DB
	table Table[T]

	mu      sync.Mutex
	pending []change[T]
	tracked map[string]T
}

// NewChunkStore creates a store for the given table.
func NewChunkStore[T chunk.Entity](db *DB, table Table[T]) (*ChunkStore[T], error) {
	if err := table.validate(); err != nil {
		return nil, err
	}
	return &ChunkStore[T]{
		db:      db,
		table:   table,
		tracked: make(map[string]T),
	}, nil
}

// NewDefaultStore creates a store over the migrated file_chunks table.
func NewDefaultStore(db *DB) *ChunkStore[*model.ChunkRow] {
	s, err := NewChunkStore(db, DefaultTable())
	if err != nil {
		// DefaultTable is static; a failure here is a programming error.
		panic(err)
	}
	return s
}

// CreateTable creates the table and its file_id index if they do not exist.
// The default table is created by migrations; this is for custom row types.
func (s *ChunkStore[T]) CreateTable(ctx context.Context) error {
	for _, stmt := range s.table.createSQL(s.db.dialect) {
		if _, err := s.db.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating table %s: %w", s.table.Name, err)
		}
	}
	return nil
}

// Add stages a row for insertion.
func (s *ChunkStore[T]) Add(_ context.Context, row T) error {
	if row.Row().ID == "" {
		return fmt.Errorf("adding chunk: empty id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, change[T]{kind: changeInsert, row: row})
	return nil
}

// Remove stages a row for deletion. Removing a row whose insertion is still
// pending cancels the insertion instead.
func (s *ChunkStore[T]) Remove(_ context.Context, row T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, p := range s.pending {
		if p.kind == changeInsert && p.row.Row() == row.Row() {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return nil
		}
	}
	s.pending = append(s.pending, change[T]{kind: changeDelete, row: row})
	return nil
}

// SaveChanges applies every staged change in one transaction. On failure the
// transaction is rolled back and the changes stay staged.
func (s *ChunkStore[T]) SaveChanges(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return nil
	}

	ctx, span := tracer.Start(ctx, "chunkstore.save_changes",
		trace.WithAttributes(
			attribute.String("table", s.table.Name),
			attribute.Int("changes", len(s.pending)),
		),
	)
	defer span.End()

	tx, err := s.db.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	insert := s.table.insertSQL()
	remove := fmt.Sprintf("DELETE FROM %s WHERE id = ?", s.table.Name)

	for _, p := range s.pending {
		c := p.row.Row()
		switch p.kind {
		case changeInsert:
			if _, err := tx.ExecContext(ctx, insert, s.values(p.row)...); err != nil {
				span.RecordError(err)
				return fmt.Errorf("inserting chunk %s: %w", c.ID, err)
			}
		case changeDelete:
			if _, err := tx.ExecContext(ctx, remove, c.ID); err != nil {
				span.RecordError(err)
				return fmt.Errorf("deleting chunk %s: %w", c.ID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("committing transaction: %w", err)
	}

	for _, p := range s.pending {
		if p.kind == changeDelete {
			delete(s.tracked, p.row.Row().ID)
		}
	}
	s.pending = nil
	return nil
}

// Detach stops tracking the row and drops any change staged for it.
func (s *ChunkStore[T]) Detach(row T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := row.Row()
	kept := s.pending[:0]
	for _, p := range s.pending {
		if p.row.Row() != c {
			kept = append(kept, p)
		}
	}
	// Clear the tail so dropped rows and their buffers can be collected.
	for i := len(kept); i < len(s.pending); i++ {
		s.pending[i] = change[T]{}
	}
	s.pending = kept

	if t, ok := s.tracked[c.ID]; ok && t.Row() == c {
		delete(s.tracked, c.ID)
	}
}

// Pending returns the number of staged changes.
func (s *ChunkStore[T]) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Tracked returns the number of tracked rows.
func (s *ChunkStore[T]) Tracked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tracked)
}

// FindByID returns the row with the given ID, tracking it. An already
// tracked instance is returned without a query.
func (s *ChunkStore[T]) FindByID(ctx context.Context, id string) (T, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if row, ok := s.tracked[id]; ok {
		return row, true, nil
	}

	row, ok, err := s.queryByID(ctx, "chunkstore.find_by_id", id)
	if err != nil || !ok {
		return row, ok, err
	}
	s.tracked[id] = row
	return row, true, nil
}

// FindByIDUntracked returns the row with the given ID without tracking it.
func (s *ChunkStore[T]) FindByIDUntracked(ctx context.Context, id string) (T, bool, error) {
	return s.queryByID(ctx, "chunkstore.find_by_id_untracked", id)
}

func (s *ChunkStore[T]) queryByID(ctx context.Context, spanName, id string) (T, bool, error) {
	ctx, span := tracer.Start(ctx, spanName,
		trace.WithAttributes(
			attribute.String("table", s.table.Name),
			attribute.String("chunk_id", id),
		),
	)
	defer span.End()

	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", s.table.selectList(), s.table.Name)
	row, err := s.scan(s.db.db.QueryRowContext(ctx, query, id))
	if err != nil {
		var zero T
		if errors.Is(err, sql.ErrNoRows) {
			span.SetAttributes(attribute.Bool("found", false))
			return zero, false, nil
		}
		span.RecordError(err)
		return zero, false, fmt.Errorf("finding chunk by id: %w", err)
	}
	span.SetAttributes(attribute.Bool("found", true))
	return row, true, nil
}

// FindByFileID returns every row carrying the file ID, ordered by offset.
// Rows are not tracked.
func (s *ChunkStore[T]) FindByFileID(ctx context.Context, fileID string) ([]T, error) {
	ctx, span := tracer.Start(ctx, "chunkstore.find_by_file_id",
		trace.WithAttributes(
			attribute.String("table", s.table.Name),
			attribute.String("file_id", fileID),
		),
	)
	defer span.End()

	query := fmt.Sprintf("SELECT %s FROM %s WHERE file_id = ? ORDER BY start_offset, id", s.table.selectList(), s.table.Name)
	rows, err := s.db.db.QueryContext(ctx, query, fileID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("finding chunks by file id: %w", err)
	}
	defer rows.Close()

	var result []T
	for rows.Next() {
		row, err := s.scan(rows)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	span.SetAttributes(attribute.Int("chunk_count", len(result)))
	return result, nil
}

// FindInfo returns the metadata of the head row with the given ID without
// reading its payload. Returns nil if not found.
func (s *ChunkStore[T]) FindInfo(ctx context.Context, id string) (*chunk.FileInfo, error) {
	ctx, span := tracer.Start(ctx, "chunkstore.find_info",
		trace.WithAttributes(
			attribute.String("table", s.table.Name),
			attribute.String("file_id", id),
		),
	)
	defer span.End()

	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ? AND file_id = id", infoColumns, s.table.Name)
	info, err := scanInfo(s.db.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			span.SetAttributes(attribute.Bool("found", false))
			return nil, nil // Not found
		}
		span.RecordError(err)
		return nil, fmt.Errorf("finding file info: %w", err)
	}
	span.SetAttributes(attribute.Bool("found", true))
	return info, nil
}

// ListFiles returns head rows ordered by time stamp, and the number of heads.
func (s *ChunkStore[T]) ListFiles(ctx context.Context, offset, limit int, order chunk.ListOrder) ([]*chunk.FileInfo, int64, error) {
	ctx, span := tracer.Start(ctx, "chunkstore.list_files",
		trace.WithAttributes(
			attribute.String("table", s.table.Name),
			attribute.Int("offset", offset),
			attribute.Int("limit", limit),
			attribute.String("order", order.String()),
		),
	)
	defer span.End()

	var total int64
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE id = file_id", s.table.Name)
	if err := s.db.db.QueryRowContext(ctx, countQuery).Scan(&total); err != nil {
		span.RecordError(err)
		return nil, 0, fmt.Errorf("counting files: %w", err)
	}

	orderBy := "time_stamp, id"
	if order == chunk.NewestFirst {
		orderBy = "time_stamp DESC, id DESC"
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = file_id ORDER BY %s LIMIT ? OFFSET ?", infoColumns, s.table.Name, orderBy)
	rows, err := s.db.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		span.RecordError(err)
		return nil, 0, fmt.Errorf("listing files: %w", err)
	}
	defer rows.Close()

	result := []*chunk.FileInfo{}
	for rows.Next() {
		info, err := scanInfo(rows)
		if err != nil {
			span.RecordError(err)
			return nil, 0, fmt.Errorf("scanning file info: %w", err)
		}
		result = append(result, info)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, 0, fmt.Errorf("iterating files: %w", err)
	}

	span.SetAttributes(attribute.Int("file_count", len(result)))
	return result, total, nil
}

// CountByFileID returns the number of rows carrying the file ID.
func (s *ChunkStore[T]) CountByFileID(ctx context.Context, fileID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "chunkstore.count_by_file_id",
		trace.WithAttributes(
			attribute.String("table", s.table.Name),
			attribute.String("file_id", fileID),
		),
	)
	defer span.End()

	var n int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE file_id = ?", s.table.Name)
	if err := s.db.db.QueryRowContext(ctx, query, fileID).Scan(&n); err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *ChunkStore[T]) scan(sc scanner) (T, error) {
	row := s.table.New()
	c := row.Row()

	var nextID, hash sql.NullString
	targets := []any{
		&c.ID, &c.FileID, &c.Name, &c.MimeType, &c.TimeStamp, &nextID,
		&c.Start, &c.ChunkBytesLength, &c.TotalBytesLength, &c.Data, &hash,
	}
	for _, col := range s.table.Columns {
		targets = append(targets, col.Target(row))
	}

	if err := sc.Scan(targets...); err != nil {
		var zero T
		return zero, err
	}
	c.NextID = nextID.String
	c.Hash = hash.String
	c.TimeStamp = c.TimeStamp.UTC()
	return row, nil
}

func (s *ChunkStore[T]) values(row T) []any {
	c := row.Row()
	data := c.Data
	if data == nil {
		data = []byte{}
	}
	values := []any{
		c.ID, c.FileID, c.Name, c.MimeType, c.TimeStamp.UTC(), nullString(c.NextID),
		c.Start, c.ChunkBytesLength, c.TotalBytesLength, data, nullString(c.Hash),
	}
	for _, col := range s.table.Columns {
		values = append(values, col.Value(row))
	}
	return values
}

func scanInfo(sc scanner) (*chunk.FileInfo, error) {
	var info chunk.FileInfo
	if err := sc.Scan(&info.ID, &info.Name, &info.MimeType, &info.TimeStamp, &info.TotalBytesLength); err != nil {
		return nil, err
	}
	info.TimeStamp = info.TimeStamp.UTC()
	return &info, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Compile-time check that ChunkStore implements chunk.Store
var _ chunk.Store[*model.ChunkRow] = (*ChunkStore[*model.ChunkRow])(nil)
