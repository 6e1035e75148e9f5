// Package browser drives the host browser tab over the DevTools protocol.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"trenko-panel/internal/config"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/gobwas/glob"
)

// ErrNotConnected is returned by calls that need a live browser.
var ErrNotConnected = errors.New("browser not connected")

// Manager owns the browser connection and the single host page.
type Manager struct {
	cfg  config.BrowserConfig
	host config.HostConfig

	mu         sync.RWMutex
	browser    *rod.Browser
	controlURL string
	// launched is true when this process started Chrome and must close it.
	launched bool
	cancel   context.CancelFunc
	page     *HostPage
}

func NewManager(cfg config.BrowserConfig, host config.HostConfig) *Manager {
	return &Manager{cfg: cfg, host: host}
}

// Start connects to an existing Chrome, or launches one using Rod's launcher.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser != nil {
		if _, err := m.browser.Version(); err == nil {
			return nil
		}
		log.Printf("[browser] stale connection detected, reconnecting")
		m.closeLocked()
	}

	controlURL := m.cfg.DebuggerURL
	launched := false
	if controlURL == "" && len(m.cfg.Launch) > 0 {
		u, err := m.launch()
		if err != nil {
			return err
		}
		controlURL = u
		launched = true
	}
	if controlURL == "" {
		return config.ErrNoBrowser
	}

	bctx, cancel := context.WithCancel(ctx)
	b := rod.New().ControlURL(controlURL).Context(bctx)
	if err := b.Connect(); err != nil {
		cancel()
		return fmt.Errorf("connect to chrome: %w", err)
	}

	m.browser = b
	m.controlURL = controlURL
	m.launched = launched
	m.cancel = cancel
	log.Printf("[browser] connected at %s", controlURL)
	return nil
}

func (m *Manager) launch() (string, error) {
	bin := m.cfg.Launch[0]
	l := launcher.New().Bin(bin).Headless(m.cfg.IsHeadless())
	for _, rawFlag := range m.cfg.Launch[1:] {
		name, val, hasVal := strings.Cut(strings.TrimLeft(rawFlag, "-"), "=")
		if hasVal {
			l = l.Set(flags.Flag(name), val)
		} else {
			l = l.Set(flags.Flag(name))
		}
	}
	u, err := l.Launch()
	if err == nil {
		return u, nil
	}
	// Fallback: let Rod pick the port and defaults.
	alt, altErr := launcher.New().Bin(bin).Headless(m.cfg.IsHeadless()).Launch()
	if altErr != nil {
		return "", fmt.Errorf("launch chrome: %w (fallback: %v)", err, altErr)
	}
	return alt, nil
}

// ControlURL returns the WebSocket debugger URL of the connected browser.
func (m *Manager) ControlURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.controlURL
}

func (m *Manager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser != nil
}

// HostPage returns the host tab, attaching to the first open tab that matches
// host.page_match or opening host.start_url when none does.
func (m *Manager) HostPage(ctx context.Context) (*HostPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.browser == nil {
		return nil, ErrNotConnected
	}
	if m.page != nil {
		return m.page, nil
	}

	match, err := glob.Compile(m.host.PageMatch, '/')
	if err != nil {
		return nil, fmt.Errorf("host.page_match: %w", err)
	}

	page, err := m.findPage(match)
	if err != nil {
		return nil, err
	}
	if page == nil {
		page, err = m.browser.Page(proto.TargetCreateTarget{URL: m.host.StartURL})
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", m.host.StartURL, err)
		}
		log.Printf("[browser] opened host page %s", m.host.StartURL)
	}
	// Best-effort load; the engine copes with a page that is still loading.
	_ = page.Context(ctx).Timeout(m.cfg.AttachTimeout()).WaitLoad()

	m.page = newHostPage(page, m.host, m.cfg.GetDrainInterval())
	return m.page, nil
}

func (m *Manager) findPage(match glob.Glob) (*rod.Page, error) {
	pages, err := m.browser.Pages()
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	for _, p := range pages {
		info, err := p.Info()
		if err != nil {
			continue
		}
		if match.Match(info.URL) {
			log.Printf("[browser] attached to %s (%s)", info.URL, info.TargetID)
			return p, nil
		}
	}
	return nil, nil
}

// Shutdown removes the page hook and releases the browser. A browser this process
// launched is closed; an attached one is left running for the user.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.page != nil {
		m.page.uninstall()
	}
	err := m.closeLocked()
	log.Printf("[browser] shutdown complete")
	return err
}

func (m *Manager) closeLocked() error {
	var err error
	if m.browser != nil && m.launched {
		err = m.browser.Close()
	}
	if m.cancel != nil {
		m.cancel()
	}
	m.browser = nil
	m.page = nil
	m.controlURL = ""
	m.launched = false
	m.cancel = nil
	return err
}
