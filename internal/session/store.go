package session

import (
	"context"
	"log"
	"sync"

	"trenko-panel/internal/kvstore"
)

// Listener observes status changes.
type Listener func(prev, next Status)

// Persister is the slice of kvstore.Store the session store needs.
type Persister interface {
	Get(ctx context.Context, keys ...string) *kvstore.Future[map[string]string]
	Set(ctx context.Context, values map[string]string) *kvstore.Future[struct{}]
}

// Store owns the process-wide SessionStatus. It is not safe for concurrent use: the
// engine loop is its only caller.
type Store struct {
	current   Status
	persist   Persister
	listeners []*subscription
	// touched is set by every local Set, equal or not, so a late hydrate cannot clobber it.
	touched bool
	// writes counts persisted writes requested, for diagnostics.
	writes int
	writer writer
}

// writer persists one value at a time. A value queued while a write is in flight replaces
// any older queued value, so the backend only ever sees writes in Set order.
type writer struct {
	mu      sync.Mutex
	pending Status
	dirty   bool
	running bool
}

type subscription struct {
	fn Listener
}

func NewStore(persist Persister) *Store {
	return &Store{current: Default, persist: persist}
}

// Get returns the cached status.
func (s *Store) Get() Status {
	return s.current
}

// Writes reports how many persisted writes have been requested. Queued values can coalesce,
// so the backend may see fewer.
func (s *Store) Writes() int {
	return s.writes
}

// Subscribe registers fn and returns a function that removes it.
func (s *Store) Subscribe(fn Listener) func() {
	sub := &subscription{fn: fn}
	s.listeners = append(s.listeners, sub)
	return func() {
		for i, l := range s.listeners {
			if l == sub {
				s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// Set changes the status, notifies listeners synchronously, then persists the new value
// asynchronously. next must already be normalized. Setting the current value neither
// notifies nor writes, but it still counts as a local set: a hydrate that lands later
// will not replace it.
func (s *Store) Set(ctx context.Context, next Status) {
	s.touched = true
	if next == s.current {
		return
	}
	prev := s.current
	s.current = next
	s.notify(prev, next)
	s.write(ctx, next)
}

// Hydrate starts the one-shot read of the persisted status. The result is applied through
// post, which must run the closure on the loop that owns the store. With nothing persisted
// the status stays at Default.
func (s *Store) Hydrate(ctx context.Context, post func(func())) {
	if s.persist == nil {
		return
	}
	future := s.persist.Get(ctx, kvstore.KeySessionStatus)
	go func() {
		values, err := future.Await(ctx)
		post(func() {
			if err != nil {
				log.Printf("[session] hydrate failed: %v", err)
				return
			}
			s.applyHydrated(values)
		})
	}()
}

func (s *Store) applyHydrated(values map[string]string) {
	raw, ok := values[kvstore.KeySessionStatus]
	if !ok {
		return
	}
	if s.touched {
		log.Printf("[session] ignoring persisted status %q: already set locally", raw)
		return
	}
	next := Normalize(raw)
	if next == s.current {
		return
	}
	prev := s.current
	s.current = next
	s.notify(prev, next)
}

func (s *Store) notify(prev, next Status) {
	for _, l := range append([]*subscription(nil), s.listeners...) {
		l.fn(prev, next)
	}
}

func (s *Store) write(ctx context.Context, next Status) {
	if s.persist == nil {
		return
	}
	s.writes++

	w := &s.writer
	w.mu.Lock()
	w.pending = next
	w.dirty = true
	start := !w.running
	w.running = true
	w.mu.Unlock()
	if start {
		go s.flush(ctx)
	}
}

// flush drains the writer until nothing is queued. Each write completes before the next
// is issued.
func (s *Store) flush(ctx context.Context) {
	w := &s.writer
	for {
		w.mu.Lock()
		if !w.dirty {
			w.running = false
			w.mu.Unlock()
			return
		}
		next := w.pending
		w.dirty = false
		w.mu.Unlock()

		future := s.persist.Set(ctx, map[string]string{kvstore.KeySessionStatus: string(next)})
		<-future.Done()
		if _, err := future.Await(context.Background()); err != nil {
			log.Printf("[session] persist status %q failed: %v", next, err)
		}
	}
}
