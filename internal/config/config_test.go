package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	cfg := DefaultConfig()
	cfg.Browser.DebuggerURL = "ws://localhost:9222"
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Name != "trenko-panel" {
		t.Errorf("expected server name 'trenko-panel', got %q", cfg.Server.Name)
	}
	if cfg.Server.LogFile != "trenko-panel.log" {
		t.Errorf("expected log file 'trenko-panel.log', got %q", cfg.Server.LogFile)
	}

	if cfg.Host.AnchorSelector != `button[data-testid="card-back-labels-button"]` {
		t.Errorf("unexpected anchor selector %q", cfg.Host.AnchorSelector)
	}
	if cfg.Host.ContainerSelector != "section" {
		t.Errorf("expected container selector 'section', got %q", cfg.Host.ContainerSelector)
	}
	if cfg.Host.PanelTitle != "Trenko Actions" || cfg.Host.SectionTitle != "Trello Actions" {
		t.Errorf("unexpected titles %q / %q", cfg.Host.PanelTitle, cfg.Host.SectionTitle)
	}
	if cfg.Host.RecordSegment != "c" {
		t.Errorf("expected record segment 'c', got %q", cfg.Host.RecordSegment)
	}
	if cfg.Detector.Strategy != "poll" {
		t.Errorf("expected poll strategy, got %q", cfg.Detector.Strategy)
	}
	if cfg.Detector.GetPollInterval() != 500*time.Millisecond {
		t.Errorf("expected 500ms poll interval, got %v", cfg.Detector.GetPollInterval())
	}
	if cfg.Host.GetInjectDelay() != 2*time.Second {
		t.Errorf("expected 2s inject delay, got %v", cfg.Host.GetInjectDelay())
	}
	if cfg.Endpoint.ReportPath != "/reports/card_efforts" {
		t.Errorf("expected report path '/reports/card_efforts', got %q", cfg.Endpoint.ReportPath)
	}
	if cfg.Store.Backend != "file" {
		t.Errorf("expected file store, got %q", cfg.Store.Backend)
	}
	if cfg.MCP.Enable {
		t.Error("expected MCP to be disabled by default")
	}
}

func TestLoadNonExistentFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error for non-existent file")
	}
}

func TestLoadValidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  name: "test-panel"
  log_file: "test.log"

browser:
  debugger_url: "ws://localhost:9222"
  drain_interval: "250ms"

host:
  record_view_pattern: "https://boards.example/c/*/**"
  page_match: "https://boards.example/**"
  inject_delay: "1s"

detector:
  strategy: mutation

store:
  backend: sqlite
  path: "data/store.db"

endpoint:
  report_path: "/user/reports/card_efforts"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.Name != "test-panel" {
		t.Errorf("expected server name 'test-panel', got %q", cfg.Server.Name)
	}
	if cfg.Server.Version != "0.3.0" {
		t.Errorf("expected default version to survive overlay, got %q", cfg.Server.Version)
	}
	if cfg.Browser.GetDrainInterval() != 250*time.Millisecond {
		t.Errorf("expected 250ms drain interval, got %v", cfg.Browser.GetDrainInterval())
	}
	if cfg.Host.RecordViewPattern != "https://boards.example/c/*/**" {
		t.Errorf("unexpected record view pattern %q", cfg.Host.RecordViewPattern)
	}
	if cfg.Host.AnchorSelector == "" {
		t.Error("expected default anchor selector to survive overlay")
	}
	if cfg.Detector.Strategy != "mutation" {
		t.Errorf("expected mutation strategy, got %q", cfg.Detector.Strategy)
	}
	if cfg.Store.Backend != "sqlite" || cfg.Store.Path != "data/store.db" {
		t.Errorf("unexpected store config %+v", cfg.Store)
	}
	if cfg.Endpoint.ReportPath != "/user/reports/card_efforts" {
		t.Errorf("unexpected report path %q", cfg.Endpoint.ReportPath)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte("invalid: yaml: content:"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("TRENKO_BROWSER_DEBUGGER_URL", "ws://127.0.0.1:9333")
	t.Setenv("TRENKO_DETECTOR_STRATEGY", "mutation")
	t.Setenv("TRENKO_STORE_BACKEND", "memory")
	t.Setenv("TRENKO_ENDPOINT_REPORT_PATH", "/user/reports/card_efforts")
	t.Setenv("TRENKO_MCP_ENABLE", "true")
	t.Setenv("TRENKO_MCP_SSE_PORT", "8124")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load from environment: %v", err)
	}

	if cfg.Browser.DebuggerURL != "ws://127.0.0.1:9333" {
		t.Errorf("unexpected debugger url %q", cfg.Browser.DebuggerURL)
	}
	if cfg.Detector.Strategy != "mutation" {
		t.Errorf("expected mutation, got %q", cfg.Detector.Strategy)
	}
	if cfg.Store.Backend != "memory" {
		t.Errorf("expected memory, got %q", cfg.Store.Backend)
	}
	if cfg.Endpoint.ReportPath != "/user/reports/card_efforts" {
		t.Errorf("unexpected report path %q", cfg.Endpoint.ReportPath)
	}
	if !cfg.MCP.Enable || cfg.MCP.SSEPort != 8124 {
		t.Errorf("unexpected mcp config %+v", cfg.MCP)
	}
	if cfg.Host.AnchorSelector == "" {
		t.Error("expected anchor selector default to remain")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:   "empty server name",
			mutate: func(c *Config) { c.Server.Name = "" },
			errMsg: "server.name is required",
		},
		{
			name:   "no browser",
			mutate: func(c *Config) { c.Browser.DebuggerURL = "" },
			errMsg: "browser.debugger_url or browser.launch must be provided",
		},
		{
			name: "launch instead of debugger url",
			mutate: func(c *Config) {
				c.Browser.DebuggerURL = ""
				c.Browser.Launch = []string{"chrome"}
			},
		},
		{
			name:   "missing anchor",
			mutate: func(c *Config) { c.Host.AnchorSelector = "" },
			errMsg: "host.anchor_selector is required",
		},
		{
			name:   "bad glob",
			mutate: func(c *Config) { c.Host.RecordViewPattern = "https://trello.com/[c" },
			errMsg: "host.record_view_pattern",
		},
		{
			name:   "unknown strategy",
			mutate: func(c *Config) { c.Detector.Strategy = "websocket" },
			errMsg: "detector.strategy",
		},
		{
			name:   "unknown backend",
			mutate: func(c *Config) { c.Store.Backend = "redis" },
			errMsg: "store.backend",
		},
		{
			name:   "relative report path",
			mutate: func(c *Config) { c.Endpoint.ReportPath = "reports" },
			errMsg: "endpoint.report_path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.errMsg)
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("expected error containing %q, got %q", tt.errMsg, err.Error())
			}
		})
	}
}

func TestDurationFallbacks(t *testing.T) {
	b := BrowserConfig{DefaultAttachTimeout: "soon", DrainInterval: "-1s"}
	if b.AttachTimeout() != 10*time.Second {
		t.Errorf("expected 10s fallback, got %v", b.AttachTimeout())
	}
	if b.GetDrainInterval() != 500*time.Millisecond {
		t.Errorf("expected 500ms fallback, got %v", b.GetDrainInterval())
	}

	h := HostConfig{InjectAttempts: 0}
	if h.GetInjectAttempts() != 1 {
		t.Errorf("expected at least one attempt, got %d", h.GetInjectAttempts())
	}

	if (BrowserConfig{}).IsHeadless() {
		t.Error("expected headed Chrome by default")
	}
	yes := true
	if !(BrowserConfig{Headless: &yes}).IsHeadless() {
		t.Error("expected explicit headless to be honored")
	}
}
