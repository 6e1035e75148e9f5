// Package recorder writes a rotating JSONL trace of engine events.
package recorder

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	MaxRotatedFiles = 3
	TraceDir        = "data/traces"
)

// Event kinds written by the engine.
const (
	ViewEntered     = "view_entered"
	ViewExited      = "view_exited"
	PanelInjected   = "panel_injected"
	StatusChanged   = "status_changed"
	Dispatch        = "dispatch"
	MessageRejected = "message_rejected"
	PageReloaded    = "page_reloaded"
)

// Event is a single trace line.
type Event struct {
	Timestamp time.Time   `json:"ts"`
	Type      string      `json:"type"`
	RunID     string      `json:"run_id"`
	Data      interface{} `json:"data,omitempty"`
}

// Recorder appends events to the current run's trace file. Safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	file     *os.File
	encoder  *json.Encoder
	basePath string
	runID    string
}

// NewRecorder ensures dir exists. Nothing is written until Start.
func NewRecorder(dir string) (*Recorder, error) {
	if dir == "" {
		dir = TraceDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Recorder{basePath: dir}, nil
}

// Start opens a trace for a new run and returns its id. Older traces beyond
// MaxRotatedFiles are removed first.
func (r *Recorder) Start() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file != nil {
		_ = r.file.Close()
		r.file = nil
		r.encoder = nil
	}
	if err := r.rotate(); err != nil {
		return "", fmt.Errorf("rotate traces: %w", err)
	}

	runID := uuid.NewString()
	name := fmt.Sprintf("trace_%s_%d.jsonl", runID, time.Now().UnixMilli())
	f, err := os.Create(filepath.Join(r.basePath, name))
	if err != nil {
		return "", err
	}
	r.file = f
	r.encoder = json.NewEncoder(f)
	r.runID = runID
	return runID, nil
}

// RunID returns the current run's id, or "" before Start.
func (r *Recorder) RunID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runID
}

// Record writes one event. It is a no-op before Start or after Close.
func (r *Recorder) Record(eventType string, data interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.encoder == nil {
		return
	}
	_ = r.encoder.Encode(Event{
		Timestamp: time.Now(),
		Type:      eventType,
		RunID:     r.runID,
		Data:      data,
	})
}

// rotate keeps the newest MaxRotatedFiles-1 traces, leaving room for the next one.
func (r *Recorder) rotate() error {
	entries, err := os.ReadDir(r.basePath)
	if err != nil {
		return err
	}

	type trace struct {
		name string
		mod  time.Time
	}
	var traces []trace
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".jsonl" || !strings.HasPrefix(e.Name(), "trace_") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		traces = append(traces, trace{e.Name(), info.ModTime()})
	}

	sort.Slice(traces, func(i, j int) bool {
		return traces[i].mod.After(traces[j].mod)
	})
	for i := MaxRotatedFiles - 1; i < len(traces); i++ {
		_ = os.Remove(filepath.Join(r.basePath, traces[i].name))
	}
	return nil
}

// Close finishes the current trace.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	r.encoder = nil
	return err
}
