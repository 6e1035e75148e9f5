package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tidwall/jsonc"
)

// FileBackend stores every key in one JSON object on disk. Reads accept comments and
// trailing commas so the file can be edited by hand.
type FileBackend struct {
	path   string
	mu     sync.Mutex
	closed bool
}

func NewFileBackend(path string) *FileBackend {
	if path == "" {
		path = "trenko-store.json"
	}
	return &FileBackend{path: path}
}

func (b *FileBackend) Get(_ context.Context, keys ...string) (map[string]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	all, err := b.read()
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := all[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (b *FileBackend) Set(_ context.Context, values map[string]string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	all, err := b.read()
	if err != nil {
		return err
	}
	for k, v := range values {
		all[k] = v
	}

	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return err
	}

	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, b.path)
}

func (b *FileBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *FileBackend) read() (map[string]string, error) {
	raw, err := os.ReadFile(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	all := map[string]string{}
	if len(raw) == 0 {
		return all, nil
	}
	if err := json.Unmarshal(jsonc.ToJSON(raw), &all); err != nil {
		return nil, fmt.Errorf("parse store %s: %w", b.path, err)
	}
	return all, nil
}
