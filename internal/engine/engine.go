// Package engine runs the panel's single event loop. Detection signals, page events,
// timers and control-surface commands are all executed to completion, one at a time, on
// the goroutine that called Run.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"trenko-panel/internal/actions"
	"trenko-panel/internal/bridge"
	"trenko-panel/internal/config"
	"trenko-panel/internal/detect"
	"trenko-panel/internal/dispatch"
	"trenko-panel/internal/endpoint"
	"trenko-panel/internal/kvstore"
	"trenko-panel/internal/panel"
	"trenko-panel/internal/policy"
	"trenko-panel/internal/recorder"
	"trenko-panel/internal/session"
)

// ErrStopped is returned by façade calls once the loop has exited.
var ErrStopped = errors.New("engine stopped")

// Tracer receives engine events. *recorder.Recorder implements it.
type Tracer interface {
	Record(eventType string, data interface{})
}

type nopTracer struct{}

func (nopTracer) Record(string, interface{}) {}

// Store is the persisted store the engine reads its config and status from.
type Store interface {
	session.Persister
	endpoint.Source
}

// Options configures New.
type Options struct {
	Host    config.HostConfig
	Catalog *actions.Catalog
	Policy  *policy.Policy
	Store   Store
	DOM     panel.DOM
	Window  dispatch.Window
	Tracer  Tracer
}

// Inputs are the streams Run consumes. Nil channels are never selected.
type Inputs struct {
	Detector detect.Source
	Clicks   <-chan dispatch.Click
	Messages <-chan bridge.Message
	// Reloads signals that the host tab loaded a new document.
	Reloads <-chan struct{}
}

// RecordContext is derived from the location on every Entered signal.
type RecordContext struct {
	RecordID string `json:"record_id,omitempty"`
	Location string `json:"location,omitempty"`
}

type Engine struct {
	host     config.HostConfig
	catalog  *actions.Catalog
	dom      panel.DOM
	session  *session.Store
	endpoint *endpoint.Provider
	injector *panel.Injector
	renderer *panel.Renderer
	dispatch *dispatch.Dispatcher
	bridge   *bridge.Bridge
	tracer   Tracer

	loop chan func()
	done chan struct{}
	ctx  context.Context

	// Loop-owned state.
	open     bool
	record   RecordContext
	attached bool
	visible  []actions.ID
	renders  int
	// injectGen invalidates pending inject timers when the view closes or reopens.
	injectGen int
}

func New(opts Options) (*Engine, error) {
	if opts.Catalog == nil || opts.Policy == nil || opts.Store == nil || opts.DOM == nil || opts.Window == nil {
		return nil, errors.New("engine: catalog, policy, store, dom and window are required")
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = nopTracer{}
	}

	provider := endpoint.NewProvider(opts.Store)
	status := session.NewStore(opts.Store)
	e := &Engine{
		host:     opts.Host,
		catalog:  opts.Catalog,
		dom:      opts.DOM,
		session:  status,
		endpoint: provider,
		injector: panel.NewInjector(opts.DOM, opts.Catalog, opts.Host.AnchorSelector, opts.Host.ContainerSelector,
			panel.Titles{Panel: opts.Host.PanelTitle, Section: opts.Host.SectionTitle}),
		renderer: panel.NewRenderer(opts.DOM, opts.Catalog, opts.Policy),
		dispatch: dispatch.New(opts.Window, opts.Catalog, provider, opts.Host.RecordSegment),
		bridge:   bridge.New(provider, status),
		tracer:   tracer,
		loop:     make(chan func(), 64),
		done:     make(chan struct{}),
		ctx:      context.Background(),
	}
	status.Subscribe(e.onStatus)
	return e, nil
}

// Run starts config and status hydration, then serves the loop until ctx ends.
func (e *Engine) Run(ctx context.Context, in Inputs) error {
	e.ctx = ctx
	defer close(e.done)

	e.endpoint.Reload(ctx)
	e.session.Hydrate(ctx, e.post)

	var detections <-chan detect.Event
	if in.Detector != nil {
		detections = in.Detector.Events(ctx)
	}
	clicks, messages, reloads := in.Clicks, in.Messages, in.Reloads

	log.Printf("[engine] running (status %s)", e.session.Get())
	for {
		select {
		case <-ctx.Done():
			e.endpoint.Wait()
			log.Printf("[engine] stopped")
			return nil
		case fn := <-e.loop:
			fn()
		case ev, ok := <-detections:
			if !ok {
				detections = nil
				continue
			}
			e.handleDetection(ev)
		case c, ok := <-clicks:
			if !ok {
				clicks = nil
				continue
			}
			e.handleClick(c)
		case m, ok := <-messages:
			if !ok {
				messages = nil
				continue
			}
			e.handleMessage(m)
		case _, ok := <-reloads:
			if !ok {
				reloads = nil
				continue
			}
			e.handleReload()
		}
	}
}

// post queues fn on the loop. After the loop exits fn is dropped.
func (e *Engine) post(fn func()) {
	select {
	case e.loop <- fn:
	case <-e.done:
	}
}

// call runs fn on the loop and waits for it.
func (e *Engine) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case e.loop <- func() { fn(); close(finished) }:
	case <-e.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-e.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) handleDetection(ev detect.Event) {
	switch ev.Kind {
	case detect.Entered:
		e.open = true
		e.record = RecordContext{RecordID: dispatch.RecordID(ev.Location, e.host.RecordSegment), Location: ev.Location}
		e.tracer.Record(recorder.ViewEntered, e.record)
		log.Printf("[engine] record view entered %s", ev.Location)
		e.injectGen++
		e.scheduleInject(e.injectGen, 1)
	case detect.Exited:
		e.open = false
		e.injectGen++
		e.tracer.Record(recorder.ViewExited, e.record)
		e.record = RecordContext{}
		if e.attached {
			if err := e.injector.Remove(e.ctx); err != nil {
				log.Printf("[engine] remove panel: %v", err)
			}
			e.attached = false
		}
	}
}

// handleReload starts injection over after the host tab replaced its document. The old
// panel went away with the old document, and neither detector reports a reload of the
// same location.
func (e *Engine) handleReload() {
	e.attached = false
	e.visible = nil
	e.tracer.Record(recorder.PageReloaded, e.record)
	if !e.open {
		return
	}
	log.Printf("[engine] host document reloaded on %s, injecting again", e.record.Location)
	e.injectGen++
	e.scheduleInject(e.injectGen, 1)
}

// scheduleInject waits for the host view to settle before injecting.
func (e *Engine) scheduleInject(gen, attempt int) {
	time.AfterFunc(e.host.GetInjectDelay(), func() {
		e.post(func() { e.tryInject(gen, attempt) })
	})
}

func (e *Engine) tryInject(gen, attempt int) {
	if gen != e.injectGen || !e.open {
		return
	}
	handle, err := e.injector.Inject(e.ctx)
	if errors.Is(err, panel.ErrAnchorNotFound) {
		if attempt < e.host.GetInjectAttempts() {
			e.scheduleInject(gen, attempt+1)
			return
		}
		log.Printf("[engine] injection skipped after %d attempts: %v", attempt, err)
		return
	}
	if err != nil {
		log.Printf("[engine] inject panel: %v", err)
		return
	}
	e.attached = true
	if handle.Created {
		e.tracer.Record(recorder.PanelInjected, map[string]interface{}{
			"record_id": e.record.RecordID,
			"attempt":   attempt,
		})
	}
	e.render(e.session.Get())
}

func (e *Engine) render(status session.Status) {
	visible, err := e.renderer.Render(e.ctx, status)
	e.renders++
	e.visible = visible
	if err != nil {
		log.Printf("[engine] %v", err)
	}
}

func (e *Engine) onStatus(prev, next session.Status) {
	log.Printf("[engine] status %s -> %s", prev, next)
	e.tracer.Record(recorder.StatusChanged, map[string]string{"prev": string(prev), "next": string(next)})
	if e.attached {
		e.render(next)
	}
}

func (e *Engine) handleClick(c dispatch.Click) {
	e.dispatchAction(e.ctx, c.Action)
}

func (e *Engine) dispatchAction(ctx context.Context, id actions.ID) (dispatch.Opened, error) {
	opened, err := e.dispatch.Dispatch(ctx, id)
	data := map[string]interface{}{"action": id, "record_id": opened.RecordID}
	if err != nil {
		data["error"] = err.Error()
		log.Printf("[engine] dispatch %s: %v", id, err)
	}
	e.tracer.Record(recorder.Dispatch, data)
	return opened, err
}

func (e *Engine) handleMessage(m bridge.Message) {
	if _, err := e.bridge.Handle(e.ctx, m); err != nil {
		e.tracer.Record(recorder.MessageRejected, map[string]string{"origin": m.Origin, "reason": err.Error()})
	}
}

// Snapshot is a point-in-time view of engine state.
type Snapshot struct {
	Status             session.Status `json:"status"`
	ViewOpen           bool           `json:"view_open"`
	Record             RecordContext  `json:"record"`
	PanelAttached      bool           `json:"panel_attached"`
	Visible            []actions.ID   `json:"visible"`
	Renders            int            `json:"renders"`
	StatusWrites       int            `json:"status_writes"`
	EndpointConfigured bool           `json:"endpoint_configured"`
	EndpointOrigin     string         `json:"endpoint_origin,omitempty"`
}

// Snapshot reports engine state. PanelAttached comes from querying the document, so a
// panel the host dropped is reported as gone.
func (e *Engine) Snapshot(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	err := e.call(ctx, func() {
		present, qerr := e.dom.HasPanel(ctx)
		if qerr != nil {
			log.Printf("[engine] query panel: %v", qerr)
		}
		s = Snapshot{
			Status:        e.session.Get(),
			ViewOpen:      e.open,
			Record:        e.record,
			PanelAttached: present,
			Visible:       append([]actions.ID(nil), e.visible...),
			Renders:       e.renders,
			StatusWrites:  e.session.Writes(),
		}
		if cfg, ok := e.endpoint.Current(); ok {
			s.EndpointConfigured = true
			s.EndpointOrigin = cfg.Origin()
		}
	})
	return s, err
}

// SetStatus is the explicit local set. It returns the normalized status.
func (e *Engine) SetStatus(ctx context.Context, raw string) (session.Status, error) {
	status := session.Normalize(raw)
	err := e.call(ctx, func() { e.session.Set(e.ctx, status) })
	return status, err
}

// Dispatch runs an action as if its control had been clicked.
func (e *Engine) Dispatch(ctx context.Context, id actions.ID) (dispatch.Opened, error) {
	var (
		opened dispatch.Opened
		derr   error
	)
	if err := e.call(ctx, func() { opened, derr = e.dispatchAction(ctx, id) }); err != nil {
		return dispatch.Opened{}, err
	}
	return opened, derr
}

// ReloadEndpoint reads the endpoint keys again and reports whether they are usable.
func (e *Engine) ReloadEndpoint(ctx context.Context) (endpoint.Config, error) {
	if err := e.endpoint.Load(ctx); err != nil {
		return endpoint.Config{}, err
	}
	cfg, _ := e.endpoint.Current()
	return cfg, nil
}

// ConfigureEndpoint validates and persists a new endpoint.
func (e *Engine) ConfigureEndpoint(ctx context.Context, baseURL, token string) (endpoint.Config, error) {
	cfg, err := e.endpoint.Save(ctx, baseURL, token)
	if err != nil {
		return endpoint.Config{}, fmt.Errorf("configure endpoint: %w", err)
	}
	return cfg, nil
}

var _ Store = (*kvstore.Store)(nil)
