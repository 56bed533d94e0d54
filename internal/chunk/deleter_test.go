package chunk_test

import (
	"context"
	"errors"
	"testing"

	"chunkdb/internal/cache"
	"chunkdb/internal/chunk"
	"chunkdb/internal/testutil"
)

func TestDelete_RemovesEveryChunk(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, chunk.FilesOptions{})
	keep := fx.write(t, testutil.Pattern(30), chunk.WriteRequest{ChunkSize: 10, Mode: chunk.Eager})
	doomed := fx.write(t, testutil.Pattern(1000), chunk.WriteRequest{ChunkSize: 7, Mode: chunk.Eager})

	if err := fx.files.Delete(ctx, doomed.ID, chunk.Eager); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if n, _ := fx.store.CountByFileID(ctx, doomed.ID); n != 0 {
		t.Errorf("rows left = %d, want 0", n)
	}
	if fx.rec.Removes() != 143 {
		t.Errorf("Remove() called %d times, want 143", fx.rec.Removes())
	}
	if fx.store.Tracked() != 0 {
		t.Errorf("Tracked() = %d, want 0", fx.store.Tracked())
	}
	if n, _ := fx.store.CountByFileID(ctx, keep.ID); n != 3 {
		t.Errorf("other file rows = %d, want 3", n)
	}
	if _, err := fx.files.Info(ctx, doomed.ID); !errors.Is(err, chunk.ErrNotFound) {
		t.Errorf("Info() after delete error = %v, want ErrNotFound", err)
	}
}

func TestDelete_Deferred(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, chunk.FilesOptions{})
	info := fx.write(t, testutil.Pattern(30), chunk.WriteRequest{ChunkSize: 10, Mode: chunk.Eager})
	savesBefore := fx.rec.Saves()

	if err := fx.files.Delete(ctx, info.ID, chunk.Deferred); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if fx.rec.Saves() != savesBefore {
		t.Errorf("Delete() in deferred mode called SaveChanges")
	}
	if n, _ := fx.store.CountByFileID(ctx, info.ID); n != 3 {
		t.Errorf("rows before commit = %d, want 3", n)
	}

	if err := fx.files.Store().SaveChanges(ctx); err != nil {
		t.Fatalf("SaveChanges() error = %v", err)
	}
	if n, _ := fx.store.CountByFileID(ctx, info.ID); n != 0 {
		t.Errorf("rows after commit = %d, want 0", n)
	}
}

func TestDelete_NotFound(t *testing.T) {
	fx := newFixture(t, chunk.FilesOptions{})
	err := fx.files.Delete(context.Background(), "nope", chunk.Eager)
	if !errors.Is(err, chunk.ErrNotFound) {
		t.Errorf("Delete() error = %v, want ErrNotFound", err)
	}
}

func TestDelete_BrokenChains(t *testing.T) {
	ctx := context.Background()

	t.Run("dangling link lenient", func(t *testing.T) {
		fx := newFixture(t, chunk.FilesOptions{})
		fx.insert(t, handRow("f", "c2", 0, "abc"), handRow("c2", "gone", 3, "def"))
		if err := fx.files.Delete(ctx, "f", chunk.Eager); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if n, _ := fx.store.CountByFileID(ctx, "f"); n != 0 {
			t.Errorf("rows left = %d, want 0", n)
		}
	})

	t.Run("dangling link strict", func(t *testing.T) {
		fx := newFixture(t, chunk.FilesOptions{Strict: true})
		fx.insert(t, handRow("f", "c2", 0, "abc"), handRow("c2", "gone", 3, "def"))
		err := fx.files.Delete(ctx, "f", chunk.Eager)
		if !errors.Is(err, chunk.ErrBrokenChain) {
			t.Errorf("Delete() error = %v, want ErrBrokenChain", err)
		}
	})

	t.Run("cycle", func(t *testing.T) {
		fx := newFixture(t, chunk.FilesOptions{})
		fx.insert(t, handRow("f", "c2", 0, "abc"), handRow("c2", "f", 3, "def"))
		if err := fx.files.Delete(ctx, "f", chunk.Eager); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if n, _ := fx.store.CountByFileID(ctx, "f"); n != 0 {
			t.Errorf("rows left = %d, want 0", n)
		}
	})
}

func TestDelete_InvalidatesCache(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemoryInfoCache(0)
	fx := newFixture(t, chunk.FilesOptions{Cache: c})
	info := fx.write(t, []byte("cached"), chunk.WriteRequest{Mode: chunk.Eager})

	if _, err := fx.files.Info(ctx, info.ID); err != nil {
		t.Fatalf("Info() error = %v", err)
	}
	if c.Len() != 1 {
		t.Fatalf("cache entries = %d, want 1", c.Len())
	}

	if err := fx.files.Delete(ctx, info.ID, chunk.Eager); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("cache entries after delete = %d, want 0", c.Len())
	}
}

func TestDelete_DeferredCacheNotRefilledBeforeCommit(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemoryInfoCache(0)
	fx := newFixture(t, chunk.FilesOptions{Cache: c})
	info := fx.write(t, testutil.Pattern(6), chunk.WriteRequest{Name: "a", ChunkSize: 2, Mode: chunk.Eager})

	if err := fx.files.Delete(ctx, info.ID, chunk.Deferred); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	// The rows stay in the database until the commit but are not cached.
	if _, err := fx.files.Info(ctx, info.ID); err != nil {
		t.Fatalf("Info() before commit error = %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("cache entries before commit = %d, want 0", c.Len())
	}

	if err := fx.store.SaveChanges(ctx); err != nil {
		t.Fatalf("SaveChanges() error = %v", err)
	}
	if _, err := fx.files.Info(ctx, info.ID); !errors.Is(err, chunk.ErrNotFound) {
		t.Errorf("Info() after committed delete error = %v, want ErrNotFound", err)
	}
}

func TestFiles_SaveChangesInvalidatesCommittedDeletes(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemoryInfoCache(0)
	fx := newFixture(t, chunk.FilesOptions{Cache: c})
	info := fx.write(t, testutil.Pattern(6), chunk.WriteRequest{ChunkSize: 2, Mode: chunk.Eager})

	if err := fx.files.Delete(ctx, info.ID, chunk.Deferred); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	// An entry written behind the service's back is dropped by the commit.
	if err := c.Set(ctx, info); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := fx.files.SaveChanges(ctx); err != nil {
		t.Fatalf("SaveChanges() error = %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("cache entries after commit = %d, want 0", c.Len())
	}
	if n, _ := fx.store.CountByFileID(ctx, info.ID); n != 0 {
		t.Errorf("rows after commit = %d, want 0", n)
	}

	// Files that are not being removed are cached again.
	kept := fx.write(t, []byte("kept"), chunk.WriteRequest{Mode: chunk.Eager})
	if _, err := fx.files.Info(ctx, kept.ID); err != nil {
		t.Fatalf("Info() error = %v", err)
	}
	if c.Len() != 1 {
		t.Errorf("cache entries = %d, want 1", c.Len())
	}
}

func TestDelete_CancelledBeforeHeadLookup(t *testing.T) {
	fx := newFixture(t, chunk.FilesOptions{})
	fx.insert(t, handRow("f", "", 0, "abc"))
	fx.rec.FailFind("f")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := fx.files.Delete(ctx, "f", chunk.Eager); !errors.Is(err, context.Canceled) {
		t.Errorf("Delete() error = %v, want context.Canceled", err)
	}
	if n, _ := fx.store.CountByFileID(context.Background(), "f"); n != 1 {
		t.Errorf("rows left = %d, want 1", n)
	}
}
