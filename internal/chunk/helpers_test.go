package chunk_test

import (
	"bytes"
	"context"
	"testing"

	"chunkdb/internal/chunk"
	"chunkdb/internal/database"
	"chunkdb/internal/model"
	"chunkdb/internal/testutil"
)

type fixture struct {
	files *chunk.Files[*model.ChunkRow]
	store *database.ChunkStore[*model.ChunkRow]
	rec   *testutil.RecordingStore[*model.ChunkRow]
	ids   *testutil.StubIDGenerator
	clock *testutil.StubClock
}

func newFixture(t *testing.T, opts chunk.FilesOptions) *fixture {
	t.Helper()
	store := testutil.NewTestStore(t)
	rec := testutil.NewRecordingStore[*model.ChunkRow](store)
	ids := testutil.NewStubIDGenerator()
	clock := testutil.FixedClock()
	files := chunk.NewFiles[*model.ChunkRow](rec, model.NewChunkRow, nil, clock, ids, opts)
	return &fixture{files: files, store: store, rec: rec, ids: ids, clock: clock}
}

func (fx *fixture) write(t *testing.T, data []byte, req chunk.WriteRequest) *chunk.FileInfo {
	t.Helper()
	info, err := fx.files.Write(context.Background(), bytes.NewReader(data), int64(len(data)), req)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if req.Mode == chunk.Deferred {
		if err := fx.store.SaveChanges(context.Background()); err != nil {
			t.Fatalf("SaveChanges() error = %v", err)
		}
	}
	return info
}

func (fx *fixture) read(t *testing.T, fileID string) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := fx.files.ReadInto(context.Background(), fileID, &buf); err != nil {
		t.Fatalf("ReadInto() error = %v", err)
	}
	return buf.Bytes()
}

func (fx *fixture) rows(t *testing.T, fileID string) []*model.ChunkRow {
	t.Helper()
	rows, err := fx.store.FindByFileID(context.Background(), fileID)
	if err != nil {
		t.Fatalf("FindByFileID() error = %v", err)
	}
	return rows
}

// insert commits hand-built rows, bypassing the chain writer.
func (fx *fixture) insert(t *testing.T, rows ...*model.ChunkRow) {
	t.Helper()
	ctx := context.Background()
	for _, r := range rows {
		if err := fx.store.Add(ctx, r); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}
	if err := fx.store.SaveChanges(ctx); err != nil {
		t.Fatalf("SaveChanges() error = %v", err)
	}
}

// handRow builds a chunk row of a three-chunk "abcdefghi" file.
func handRow(id, nextID string, start int64, data string) *model.ChunkRow {
	return &model.ChunkRow{
		ID:               id,
		FileID:           "f",
		Name:             "hand.txt",
		MimeType:         "text/plain",
		TimeStamp:        testutil.FixedClock().Now(),
		NextID:           nextID,
		Start:            start,
		ChunkBytesLength: len(data),
		TotalBytesLength: 9,
		Data:             []byte(data),
	}
}
