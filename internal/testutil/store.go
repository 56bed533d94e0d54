package testutil

import (
	"context"
	"errors"
	"sync"

	"chunkdb/internal/chunk"
)

// ErrInjected is returned by RecordingStore when a configured failure fires.
var ErrInjected = errors.New("injected failure")

// RecordingStore wraps a chunk.Store, counting calls and optionally failing
// the Nth SaveChanges.
type RecordingStore[T chunk.Entity] struct {
	chunk.Store[T]

	mu          sync.Mutex
	adds        int
	removes     int
	saves       int
	detaches    int
	failSaveAt  int
	failFindFor string
}

// NewRecordingStore wraps inner.
func NewRecordingStore[T chunk.Entity](inner chunk.Store[T]) *RecordingStore[T] {
	return &RecordingStore[T]{Store: inner}
}

// FailSaveAt makes the nth call to SaveChanges (1-based) return ErrInjected
// without reaching the inner store.
func (s *RecordingStore[T]) FailSaveAt(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSaveAt = n
}

// FailFind makes finds for id return ErrInjected.
func (s *RecordingStore[T]) FailFind(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failFindFor = id
}

func (s *RecordingStore[T]) Add(ctx context.Context, row T) error {
	s.mu.Lock()
	s.adds++
	s.mu.Unlock()
	return s.Store.Add(ctx, row)
}

func (s *RecordingStore[T]) Remove(ctx context.Context, row T) error {
	s.mu.Lock()
	s.removes++
	s.mu.Unlock()
	return s.Store.Remove(ctx, row)
}

func (s *RecordingStore[T]) SaveChanges(ctx context.Context) error {
	s.mu.Lock()
	s.saves++
	fail := s.saves == s.failSaveAt
	s.mu.Unlock()
	if fail {
		return ErrInjected
	}
	return s.Store.SaveChanges(ctx)
}

func (s *RecordingStore[T]) Detach(row T) {
	s.mu.Lock()
	s.detaches++
	s.mu.Unlock()
	s.Store.Detach(row)
}

func (s *RecordingStore[T]) FindByID(ctx context.Context, id string) (T, bool, error) {
	if s.shouldFailFind(id) {
		var zero T
		return zero, false, ErrInjected
	}
	return s.Store.FindByID(ctx, id)
}

func (s *RecordingStore[T]) FindByIDUntracked(ctx context.Context, id string) (T, bool, error) {
	if s.shouldFailFind(id) {
		var zero T
		return zero, false, ErrInjected
	}
	return s.Store.FindByIDUntracked(ctx, id)
}

func (s *RecordingStore[T]) shouldFailFind(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failFindFor != "" && s.failFindFor == id
}

// Adds returns the number of Add calls.
func (s *RecordingStore[T]) Adds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adds
}

// Removes returns the number of Remove calls.
func (s *RecordingStore[T]) Removes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removes
}

// Saves returns the number of SaveChanges calls.
func (s *RecordingStore[T]) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// Detaches returns the number of Detach calls.
func (s *RecordingStore[T]) Detaches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detaches
}
