// Package kvstore provides the persisted key-value store shared by the engine and the
// configuration surface. Backends are synchronous; Store wraps them in futures so callers
// never block on a round-trip.
package kvstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"trenko-panel/internal/config"
)

// Well-known keys.
const (
	KeyEndpointBaseURL = "endpointBaseUrl"
	KeyAuthToken       = "authToken"
	KeySessionStatus   = "sessionStatus"
)

// ErrClosed is returned by backends after Close.
var ErrClosed = errors.New("kvstore: closed")

// Backend is a whole-value key-value store. Set overwrites every given key; there is no
// read-modify-write.
type Backend interface {
	Get(ctx context.Context, keys ...string) (map[string]string, error)
	Set(ctx context.Context, values map[string]string) error
	Close() error
}

// Future is the pending result of an asynchronous store call.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) resolve(val T, err error) {
	f.val = val
	f.err = err
	close(f.done)
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Await blocks until the result is available or ctx ends.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Store issues backend calls on their own goroutine and hands back futures.
type Store struct {
	backend Backend
}

func New(backend Backend) *Store {
	return &Store{backend: backend}
}

// Get reads keys asynchronously. Missing keys are absent from the result map.
func (s *Store) Get(ctx context.Context, keys ...string) *Future[map[string]string] {
	f := newFuture[map[string]string]()
	go func() {
		f.resolve(s.backend.Get(ctx, keys...))
	}()
	return f
}

// Set writes values asynchronously.
func (s *Store) Set(ctx context.Context, values map[string]string) *Future[struct{}] {
	f := newFuture[struct{}]()
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	go func() {
		f.resolve(struct{}{}, s.backend.Set(ctx, copied))
	}()
	return f
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// Open builds the backend selected by cfg.
func Open(cfg config.StoreConfig) (Backend, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "file":
		return NewFileBackend(cfg.Path), nil
	case "sqlite":
		return NewSQLiteBackend(cfg.Path)
	case "memory":
		return NewMemoryBackend(nil), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
