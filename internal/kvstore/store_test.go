package kvstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"trenko-panel/internal/config"
)

func awaitSet(t *testing.T, s *Store, values map[string]string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.Set(ctx, values).Await(ctx); err != nil {
		t.Fatalf("set: %v", err)
	}
}

func awaitGet(t *testing.T, s *Store, keys ...string) map[string]string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	got, err := s.Get(ctx, keys...).Await(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	return got
}

func TestBackendsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	sqlite, err := NewSQLiteBackend(filepath.Join(dir, "store.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	backends := map[string]Backend{
		"memory": NewMemoryBackend(nil),
		"file":   NewFileBackend(filepath.Join(dir, "store.json")),
		"sqlite": sqlite,
	}

	for name, backend := range backends {
		t.Run(name, func(t *testing.T) {
			s := New(backend)
			defer s.Close()

			awaitSet(t, s, map[string]string{KeyEndpointBaseURL: "https://x.example", KeyAuthToken: "T1"})
			awaitSet(t, s, map[string]string{KeyAuthToken: "T2"})

			got := awaitGet(t, s, KeyEndpointBaseURL, KeyAuthToken, KeySessionStatus)
			if got[KeyEndpointBaseURL] != "https://x.example" {
				t.Errorf("expected base url to survive overwrite of other key, got %q", got[KeyEndpointBaseURL])
			}
			if got[KeyAuthToken] != "T2" {
				t.Errorf("expected token T2, got %q", got[KeyAuthToken])
			}
			if _, ok := got[KeySessionStatus]; ok {
				t.Error("expected missing key to be absent")
			}
		})
	}
}

func TestFileBackendSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "store.json")

	first := New(NewFileBackend(path))
	awaitSet(t, first, map[string]string{KeySessionStatus: "checked_in"})
	first.Close()

	second := New(NewFileBackend(path))
	defer second.Close()
	if got := awaitGet(t, second, KeySessionStatus); got[KeySessionStatus] != "checked_in" {
		t.Errorf("expected checked_in after reopen, got %q", got[KeySessionStatus])
	}
}

func TestFileBackendAcceptsComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	content := `{
  // set by hand
  "endpointBaseUrl": "https://x.example",
  "authToken": "T1", /* trailing */
}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	s := New(NewFileBackend(path))
	got := awaitGet(t, s, KeyEndpointBaseURL, KeyAuthToken)
	if got[KeyEndpointBaseURL] != "https://x.example" || got[KeyAuthToken] != "T1" {
		t.Errorf("unexpected values: %v", got)
	}
}

func TestSQLiteBackendSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")

	b, err := NewSQLiteBackend(path)
	if err != nil {
		t.Fatal(err)
	}
	first := New(b)
	awaitSet(t, first, map[string]string{KeySessionStatus: "agenda_posted"})
	first.Close()

	b, err = NewSQLiteBackend(path)
	if err != nil {
		t.Fatal(err)
	}
	second := New(b)
	defer second.Close()
	if got := awaitGet(t, second, KeySessionStatus); got[KeySessionStatus] != "agenda_posted" {
		t.Errorf("expected agenda_posted after reopen, got %q", got[KeySessionStatus])
	}
}

func TestClosedBackendFails(t *testing.T) {
	s := New(NewMemoryBackend(nil))
	s.Close()

	ctx := context.Background()
	if _, err := s.Set(ctx, map[string]string{"k": "v"}).Await(ctx); err != ErrClosed {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestFutureAwaitHonorsContext(t *testing.T) {
	f := newFuture[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.Await(ctx); err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}

	f.resolve(7, nil)
	<-f.Done()
	if v, err := f.Await(context.Background()); v != 7 || err != nil {
		t.Errorf("expected 7, got %d (%v)", v, err)
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		backend string
		want    string
		wantErr bool
	}{
		{backend: "", want: "*kvstore.FileBackend"},
		{backend: "file", want: "*kvstore.FileBackend"},
		{backend: "memory", want: "*kvstore.MemoryBackend"},
		{backend: "sqlite", want: "*kvstore.SQLiteBackend"},
		{backend: "redis", wantErr: true},
	}
	for _, tc := range cases {
		b, err := Open(config.StoreConfig{Backend: tc.backend, Path: filepath.Join(dir, tc.backend+".store")})
		if tc.wantErr {
			if err == nil {
				t.Errorf("backend %q: expected error", tc.backend)
			}
			continue
		}
		if err != nil {
			t.Errorf("backend %q: %v", tc.backend, err)
			continue
		}
		if got := typeName(b); got != tc.want {
			t.Errorf("backend %q: expected %s, got %s", tc.backend, tc.want, got)
		}
		b.Close()
	}
}

func typeName(b Backend) string {
	switch b.(type) {
	case *FileBackend:
		return "*kvstore.FileBackend"
	case *MemoryBackend:
		return "*kvstore.MemoryBackend"
	case *SQLiteBackend:
		return "*kvstore.SQLiteBackend"
	}
	return "unknown"
}
