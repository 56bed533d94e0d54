package testutil

import (
	"errors"
	"io"
)

// ErrReaderFailed is returned by FailingReader once its budget is spent.
var ErrReaderFailed = errors.New("reader failed")

// FailingReader yields bytes from R until N bytes have been read, then fails.
type FailingReader struct {
	R io.Reader
	N int64
}

func (f *FailingReader) Read(p []byte) (int, error) {
	if f.N <= 0 {
		return 0, ErrReaderFailed
	}
	if int64(len(p)) > f.N {
		p = p[:f.N]
	}
	n, err := f.R.Read(p)
	f.N -= int64(n)
	return n, err
}

// SeekRecorder is an in-memory sink that records whether it was rewound.
type SeekRecorder struct {
	Data    []byte
	pos     int
	Rewound bool
}

func (s *SeekRecorder) Write(p []byte) (int, error) {
	s.Data = append(s.Data[:s.pos], p...)
	s.pos += len(p)
	return len(p), nil
}

func (s *SeekRecorder) Seek(offset int64, whence int) (int64, error) {
	if whence != io.SeekStart || offset != 0 {
		return 0, errors.New("only rewinding is supported")
	}
	s.pos = 0
	s.Rewound = true
	return 0, nil
}
