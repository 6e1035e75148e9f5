package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override (e.g. TRENKO_BROWSER_DEBUGGER_URL).
const EnvPrefix = "TRENKO_"

// Config captures all tunable settings for the trenko panel engine.
type Config struct {
	Server   ServerConfig   `yaml:"server" envPrefix:"SERVER_"`
	Browser  BrowserConfig  `yaml:"browser" envPrefix:"BROWSER_"`
	Host     HostConfig     `yaml:"host" envPrefix:"HOST_"`
	Detector DetectorConfig `yaml:"detector" envPrefix:"DETECTOR_"`
	Store    StoreConfig    `yaml:"store" envPrefix:"STORE_"`
	Endpoint EndpointConfig `yaml:"endpoint" envPrefix:"ENDPOINT_"`
	Policy   PolicyConfig   `yaml:"policy" envPrefix:"POLICY_"`
	MCP      MCPConfig      `yaml:"mcp" envPrefix:"MCP_"`
	Recorder RecorderConfig `yaml:"recorder" envPrefix:"RECORDER_"`
}

type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	LogFile string `yaml:"log_file" env:"LOG_FILE"`
}

// BrowserConfig configures how we attach to or launch Chrome for Rod.
type BrowserConfig struct {
	// Control endpoint for Rod (e.g., ws://localhost:9222). Required when launch is empty.
	DebuggerURL string `yaml:"debugger_url" env:"DEBUGGER_URL"`
	// Optional launch command (e.g., ["chrome", "--remote-debugging-port=9222"]).
	Launch []string `yaml:"launch"`
	// Headless is only honored when launching; the panel is useless to a user otherwise.
	Headless *bool `yaml:"headless"`
	// Default timeout when attaching to the host tab (e.g., "10s").
	DefaultAttachTimeout string `yaml:"default_attach_timeout"`
	// How often the page hook buffer is drained (e.g., "500ms").
	DrainInterval string `yaml:"drain_interval"`
}

// HostConfig describes the host application page the panel is injected into.
type HostConfig struct {
	// Glob selecting which open tab to attach to.
	PageMatch string `yaml:"page_match" env:"PAGE_MATCH"`
	// Opened when no tab matches page_match.
	StartURL string `yaml:"start_url" env:"START_URL"`
	// Glob matching locations that display a record view.
	RecordViewPattern string `yaml:"record_view_pattern" env:"RECORD_VIEW_PATTERN"`
	// Path segment that precedes the record identifier (e.g. "c" in /c/ABC123/title).
	RecordSegment string `yaml:"record_segment"`
	// Interactive control that only exists inside the record view.
	AnchorSelector string `yaml:"anchor_selector" env:"ANCHOR_SELECTOR"`
	// Nearest ancestor of the anchor that receives the panel as its first child.
	ContainerSelector string `yaml:"container_selector" env:"CONTAINER_SELECTOR"`
	PanelTitle        string `yaml:"panel_title"`
	// Heading placed after the panel to label the host's own buttons. Empty omits it.
	SectionTitle string `yaml:"section_title"`
	// Settle delay between a view-entered signal and injection (e.g., "2s").
	InjectDelay    string `yaml:"inject_delay"`
	InjectAttempts int    `yaml:"inject_attempts"`
}

type DetectorConfig struct {
	// poll | mutation
	Strategy     string `yaml:"strategy" env:"STRATEGY"`
	PollInterval string `yaml:"poll_interval"`
}

type StoreConfig struct {
	// file | sqlite | memory
	Backend string `yaml:"backend" env:"BACKEND"`
	Path    string `yaml:"path" env:"PATH"`
}

type EndpointConfig struct {
	// Path of the card report action; the workflow app has served it from both
	// /reports/card_efforts and /user/reports/card_efforts.
	ReportPath string `yaml:"report_path" env:"REPORT_PATH"`
}

// PolicyConfig controls the visibility rule program.
type PolicyConfig struct {
	// Optional Mangle source appended to the built-in visibility rules.
	RulesPath string `yaml:"rules_path" env:"RULES_PATH"`
}

type MCPConfig struct {
	// Enable exposes the control tools over MCP.
	Enable bool `yaml:"enable" env:"ENABLE"`
	// When set, starts an SSE server on this port instead of stdio.
	SSEPort int `yaml:"sse_port" env:"SSE_PORT"`
}

type RecorderConfig struct {
	Enable bool   `yaml:"enable" env:"ENABLE"`
	Dir    string `yaml:"dir" env:"DIR"`
}

// ErrNoBrowser is returned by Validate when neither a debugger URL nor a launch command is set.
// Commands that never touch a browser may ignore it.
var ErrNoBrowser = errors.New("browser.debugger_url or browser.launch must be provided")

// DefaultConfig provides reasonable defaults for the Trello host.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Name:    "trenko-panel",
			Version: "0.3.0",
			LogFile: "trenko-panel.log",
		},
		Browser: BrowserConfig{
			DefaultAttachTimeout: "10s",
			DrainInterval:        "500ms",
		},
		Host: HostConfig{
			PageMatch:         "https://trello.com/**",
			StartURL:          "https://trello.com/",
			RecordViewPattern: "https://trello.com/c/*/**",
			RecordSegment:     "c",
			AnchorSelector:    `button[data-testid="card-back-labels-button"]`,
			ContainerSelector: "section",
			PanelTitle:        "Trenko Actions",
			SectionTitle:      "Trello Actions",
			InjectDelay:       "2s",
			InjectAttempts:    3,
		},
		Detector: DetectorConfig{
			Strategy:     "poll",
			PollInterval: "500ms",
		},
		Store: StoreConfig{
			Backend: "file",
			Path:    "trenko-store.json",
		},
		Endpoint: EndpointConfig{
			ReportPath: "/reports/card_efforts",
		},
		Recorder: RecorderConfig{
			Enable: false,
			Dir:    "data/traces",
		},
	}
}

// Load reads YAML config from disk, overlays defaults, then applies environment overrides.
// An empty path skips the file layer.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overlays TRENKO_* environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}

// Validate ensures the engine can start deterministically.
func (c *Config) Validate() error {
	if c.Server.Name == "" {
		return errors.New("server.name is required")
	}
	if c.Host.AnchorSelector == "" {
		return errors.New("host.anchor_selector is required")
	}
	if c.Host.ContainerSelector == "" {
		return errors.New("host.container_selector is required")
	}
	for name, pattern := range map[string]string{
		"host.page_match":          c.Host.PageMatch,
		"host.record_view_pattern": c.Host.RecordViewPattern,
	} {
		if pattern == "" {
			return fmt.Errorf("%s is required", name)
		}
		if _, err := glob.Compile(pattern, '/'); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	switch strings.ToLower(c.Detector.Strategy) {
	case "poll", "mutation":
	default:
		return fmt.Errorf("detector.strategy must be poll or mutation, got %q", c.Detector.Strategy)
	}
	switch strings.ToLower(c.Store.Backend) {
	case "file", "sqlite", "memory":
	default:
		return fmt.Errorf("store.backend must be file, sqlite or memory, got %q", c.Store.Backend)
	}
	if !strings.HasPrefix(c.Endpoint.ReportPath, "/") {
		return fmt.Errorf("endpoint.report_path must start with '/', got %q", c.Endpoint.ReportPath)
	}
	// Checked last so browser-less commands still get every other check.
	if c.Browser.DebuggerURL == "" && len(c.Browser.Launch) == 0 {
		return ErrNoBrowser
	}
	return nil
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// AttachTimeout returns the parsed attach timeout with a sane default.
func (b BrowserConfig) AttachTimeout() time.Duration {
	return parseDuration(b.DefaultAttachTimeout, 10*time.Second)
}

// GetDrainInterval returns the hook buffer drain cadence.
func (b BrowserConfig) GetDrainInterval() time.Duration {
	return parseDuration(b.DrainInterval, 500*time.Millisecond)
}

// IsHeadless returns whether a launched Chrome runs headless (default: false).
func (b BrowserConfig) IsHeadless() bool {
	if b.Headless == nil {
		return false
	}
	return *b.Headless
}

// GetInjectDelay returns the settle delay before injecting the panel.
func (h HostConfig) GetInjectDelay() time.Duration {
	return parseDuration(h.InjectDelay, 2*time.Second)
}

// GetInjectAttempts returns how many times injection is tried per entered signal.
func (h HostConfig) GetInjectAttempts() int {
	if h.InjectAttempts <= 0 {
		return 1
	}
	return h.InjectAttempts
}

// GetPollInterval returns the location sampling cadence.
func (d DetectorConfig) GetPollInterval() time.Duration {
	return parseDuration(d.PollInterval, 500*time.Millisecond)
}
