package chunk_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"chunkdb/internal/chunk"
	"chunkdb/internal/model"
	"chunkdb/internal/testutil"
)

func TestReadInto_NotFound(t *testing.T) {
	fx := newFixture(t, chunk.FilesOptions{})
	err := fx.files.ReadInto(context.Background(), "nope", &bytes.Buffer{})
	if !errors.Is(err, chunk.ErrNotFound) {
		t.Errorf("ReadInto() error = %v, want ErrNotFound", err)
	}
}

func TestReadInto_DoesNotTrack(t *testing.T) {
	fx := newFixture(t, chunk.FilesOptions{})
	info := fx.write(t, testutil.Pattern(40), chunk.WriteRequest{ChunkSize: 10, Mode: chunk.Eager})

	fx.read(t, info.ID)
	if fx.store.Tracked() != 0 {
		t.Errorf("Tracked() after read = %d, want 0", fx.store.Tracked())
	}
}

func TestReadInto_RewindsSeekableSink(t *testing.T) {
	fx := newFixture(t, chunk.FilesOptions{})
	info := fx.write(t, []byte("rewind me"), chunk.WriteRequest{ChunkSize: 4, Mode: chunk.Eager})

	sink := &testutil.SeekRecorder{}
	if err := fx.files.ReadInto(context.Background(), info.ID, sink); err != nil {
		t.Fatalf("ReadInto() error = %v", err)
	}
	if !sink.Rewound {
		t.Error("seekable sink was not rewound")
	}
	if string(sink.Data) != "rewind me" {
		t.Errorf("sink = %q, want %q", sink.Data, "rewind me")
	}
}

func TestReadInto_TruncatesOversizedPayload(t *testing.T) {
	fx := newFixture(t, chunk.FilesOptions{})
	head := handRow("f", "", 0, "abcdefghi")
	head.Data = []byte("abcdefghiXYZ")
	fx.insert(t, head)

	if got := fx.read(t, "f"); string(got) != "abcdefghi" {
		t.Errorf("ReadInto() = %q, want %q", got, "abcdefghi")
	}
}

func TestReadInto_BrokenChains(t *testing.T) {
	tests := []struct {
		name  string
		setup func(fx *fixture, t *testing.T)
		want  string // content produced in lenient mode
	}{
		{
			name: "dangling link",
			setup: func(fx *fixture, t *testing.T) {
				fx.insert(t, handRow("f", "c2", 0, "abc"), handRow("c2", "gone", 3, "def"))
			},
			want: "abcdef",
		},
		{
			name: "cycle back to head",
			setup: func(fx *fixture, t *testing.T) {
				fx.insert(t, handRow("f", "c2", 0, "abc"), handRow("c2", "c3", 3, "def"), handRow("c3", "f", 6, "ghi"))
			},
			want: "abcdefghi",
		},
		{
			name: "self link",
			setup: func(fx *fixture, t *testing.T) {
				fx.insert(t, handRow("f", "f", 0, "abc"))
			},
			want: "abc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name+"/lenient", func(t *testing.T) {
			fx := newFixture(t, chunk.FilesOptions{})
			tt.setup(fx, t)
			if got := fx.read(t, "f"); string(got) != tt.want {
				t.Errorf("ReadInto() = %q, want %q", got, tt.want)
			}
		})
		t.Run(tt.name+"/strict", func(t *testing.T) {
			fx := newFixture(t, chunk.FilesOptions{Strict: true})
			tt.setup(fx, t)
			err := fx.files.ReadInto(context.Background(), "f", &bytes.Buffer{})
			if !errors.Is(err, chunk.ErrBrokenChain) {
				t.Errorf("ReadInto() error = %v, want ErrBrokenChain", err)
			}
		})
	}
}

func TestReadInto_VerifyHashes(t *testing.T) {
	ctx := context.Background()
	opts := chunk.FilesOptions{Hasher: chunk.SHA256Hasher{}, VerifyHashes: true}
	fx := newFixture(t, opts)

	good := handRow("f", "c2", 0, "abc")
	good.Hash = testutil.SHA256Hex([]byte("abc"))
	bad := handRow("c2", "", 3, "def")
	bad.Hash = testutil.SHA256Hex([]byte("xyz"))
	fx.insert(t, good, bad)

	err := fx.files.ReadInto(ctx, "f", &bytes.Buffer{})
	if !errors.Is(err, chunk.ErrChecksumMismatch) {
		t.Errorf("ReadInto() error = %v, want ErrChecksumMismatch", err)
	}

	// Without verification the stored bytes are returned as they are.
	plain := chunk.NewFiles[*model.ChunkRow](fx.store, model.NewChunkRow, nil, nil, nil, chunk.FilesOptions{Hasher: chunk.SHA256Hasher{}})
	var buf bytes.Buffer
	if err := plain.ReadInto(ctx, "f", &buf); err != nil {
		t.Fatalf("ReadInto() without verification error = %v", err)
	}
	if buf.String() != "abcdef" {
		t.Errorf("ReadInto() = %q, want %q", buf.String(), "abcdef")
	}
}

func TestReadInto_VerifyHashesDefaultsToSHA256(t *testing.T) {
	fx := newFixture(t, chunk.FilesOptions{VerifyHashes: true})

	good := handRow("f", "c2", 0, "abc")
	good.Hash = testutil.SHA256Hex([]byte("abc"))
	bad := handRow("c2", "", 3, "def")
	bad.Hash = testutil.SHA256Hex([]byte("xyz"))
	fx.insert(t, good, bad)

	err := fx.files.ReadInto(context.Background(), "f", &bytes.Buffer{})
	if !errors.Is(err, chunk.ErrChecksumMismatch) {
		t.Errorf("ReadInto() error = %v, want ErrChecksumMismatch", err)
	}

	info := fx.write(t, []byte("hashed"), chunk.WriteRequest{Mode: chunk.Eager})
	if rows := fx.rows(t, info.ID); len(rows) != 1 || rows[0].Hash != testutil.SHA256Hex([]byte("hashed")) {
		t.Errorf("written row hash = %+v, want sha256 of the payload", rows)
	}
}

func TestReadInto_StoreFailure(t *testing.T) {
	fx := newFixture(t, chunk.FilesOptions{})
	fx.insert(t, handRow("f", "c2", 0, "abc"), handRow("c2", "", 3, "def"))
	fx.rec.FailFind("c2")

	err := fx.files.ReadInto(context.Background(), "f", &bytes.Buffer{})
	if !errors.Is(err, testutil.ErrInjected) {
		t.Errorf("ReadInto() error = %v, want ErrInjected", err)
	}
}

func TestReadInto_Cancellation(t *testing.T) {
	fx := newFixture(t, chunk.FilesOptions{})
	info := fx.write(t, testutil.Pattern(30), chunk.WriteRequest{ChunkSize: 10, Mode: chunk.Eager})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := fx.files.ReadInto(ctx, info.ID, &bytes.Buffer{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("ReadInto() error = %v, want context.Canceled", err)
	}
}

func TestReadInto_CancelledBeforeHeadLookup(t *testing.T) {
	fx := newFixture(t, chunk.FilesOptions{})
	fx.insert(t, handRow("f", "", 0, "abc"))
	fx.rec.FailFind("f")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := fx.files.ReadInto(ctx, "f", &bytes.Buffer{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("ReadInto() error = %v, want context.Canceled", err)
	}
}
