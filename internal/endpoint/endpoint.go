// Package endpoint loads the workflow application's base URL and access token from the
// persisted store.
package endpoint

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"trenko-panel/internal/kvstore"
)

// ErrNotConfigured means the base URL or token is missing or unusable.
var ErrNotConfigured = errors.New("endpoint not configured")

// Config is the loaded endpoint. It is replaced whole on reload, never mutated.
type Config struct {
	BaseURL   *url.URL
	AuthToken string
}

// Parse validates raw store values.
func Parse(rawBase, token string) (Config, error) {
	rawBase = strings.TrimSpace(rawBase)
	token = strings.TrimSpace(token)
	if rawBase == "" || token == "" {
		return Config{}, ErrNotConfigured
	}
	u, err := url.Parse(rawBase)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrNotConfigured, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Config{}, fmt.Errorf("%w: base url %q is not an absolute http(s) url", ErrNotConfigured, rawBase)
	}
	return Config{BaseURL: u, AuthToken: token}, nil
}

// Origin returns scheme://host[:port] the way a browser serializes it: lowercase, with
// the scheme's default port omitted.
func (c Config) Origin() string {
	if c.BaseURL == nil {
		return ""
	}
	scheme := strings.ToLower(c.BaseURL.Scheme)
	host := strings.ToLower(c.BaseURL.Hostname())
	port := c.BaseURL.Port()
	if (scheme == "https" && port == "443") || (scheme == "http" && port == "80") {
		port = ""
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if port != "" {
		host += ":" + port
	}
	return scheme + "://" + host
}

// Source is the slice of kvstore.Store the provider needs.
type Source interface {
	Get(ctx context.Context, keys ...string) *kvstore.Future[map[string]string]
	Set(ctx context.Context, values map[string]string) *kvstore.Future[struct{}]
}

// Provider caches the current Config. Safe for concurrent use: reloads resolve on their
// own goroutine.
type Provider struct {
	source    Source
	current   atomic.Pointer[Config]
	reloading atomic.Bool
	wg        sync.WaitGroup

	// mu orders cache updates; saves bumps on every Save so an older read never
	// replaces a newer save.
	mu    sync.Mutex
	saves uint64
}

func NewProvider(source Source) *Provider {
	return &Provider{source: source}
}

// Current returns the loaded config, if any.
func (p *Provider) Current() (Config, bool) {
	c := p.current.Load()
	if c == nil {
		return Config{}, false
	}
	return *c, true
}

// Load reads both keys once and replaces the cached config. A missing or invalid config
// clears the cache and returns ErrNotConfigured.
func (p *Provider) Load(ctx context.Context) error {
	p.mu.Lock()
	saves := p.saves
	p.mu.Unlock()

	values, err := p.source.Get(ctx, kvstore.KeyEndpointBaseURL, kvstore.KeyAuthToken).Await(ctx)
	if err != nil {
		return fmt.Errorf("read endpoint config: %w", err)
	}
	cfg, err := Parse(values[kvstore.KeyEndpointBaseURL], values[kvstore.KeyAuthToken])

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.saves != saves {
		// A Save landed while reading; its config is newer.
		return nil
	}
	if err != nil {
		p.current.Store(nil)
		return err
	}
	p.current.Store(&cfg)
	return nil
}

// Reload starts a background Load unless one is already running.
func (p *Provider) Reload(ctx context.Context) {
	if !p.reloading.CompareAndSwap(false, true) {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.reloading.Store(false)
		if err := p.Load(ctx); err != nil {
			log.Printf("[endpoint] reload: %v", err)
			return
		}
		log.Printf("[endpoint] configuration loaded")
	}()
}

// Wait blocks until in-flight reloads finish.
func (p *Provider) Wait() {
	p.wg.Wait()
}

// Save validates and writes both keys, then caches the result. This is the path used by
// the configuration surface.
func (p *Provider) Save(ctx context.Context, rawBase, token string) (Config, error) {
	cfg, err := Parse(rawBase, token)
	if err != nil {
		return Config{}, err
	}
	if _, err := p.source.Set(ctx, map[string]string{
		kvstore.KeyEndpointBaseURL: cfg.BaseURL.String(),
		kvstore.KeyAuthToken:       cfg.AuthToken,
	}).Await(ctx); err != nil {
		return Config{}, fmt.Errorf("save endpoint config: %w", err)
	}
	p.mu.Lock()
	p.saves++
	p.current.Store(&cfg)
	p.mu.Unlock()
	return cfg, nil
}
