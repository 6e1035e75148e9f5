package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"trenko-panel/internal/actions"
	"trenko-panel/internal/bridge"
	"trenko-panel/internal/config"
	"trenko-panel/internal/detect"
	"trenko-panel/internal/dispatch"
	"trenko-panel/internal/panel"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// Stream carries the drained hook events. Channels close when the stream's ctx ends.
type Stream struct {
	Clicks    <-chan dispatch.Click
	Messages  <-chan bridge.Message
	Mutations <-chan detect.Mutation
	// Reloads fires once per main-frame document load. Loads that arrive while a signal
	// is still pending are coalesced into it.
	Reloads <-chan struct{}
}

// HostPage is the host tab. It implements panel.DOM and dispatch.Window, and
// Location doubles as the detector's sampler.
type HostPage struct {
	page     *rod.Page
	host     config.HostConfig
	interval time.Duration

	mu             sync.Mutex
	removeOnNewDoc func() error
}

var (
	_ panel.DOM       = (*HostPage)(nil)
	_ dispatch.Window = (*HostPage)(nil)
)

func newHostPage(page *rod.Page, host config.HostConfig, interval time.Duration) *HostPage {
	return &HostPage{page: page, host: host, interval: interval}
}

// TargetID identifies the tab.
func (p *HostPage) TargetID() string {
	return string(p.page.TargetID)
}

// eval calls fn in the page's main world and returns its value.
func (p *HostPage) eval(ctx context.Context, fn string, args ...interface{}) (*proto.RuntimeRemoteObject, error) {
	return p.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           fn,
		JSArgs:       args,
		ByValue:      true,
		AwaitPromise: true,
	})
}

// Install adds the hook to the current document and to every future one.
func (p *HostPage) Install(ctx context.Context) error {
	anchor, err := json.Marshal(p.host.AnchorSelector)
	if err != nil {
		return err
	}
	p.mu.Lock()
	if p.removeOnNewDoc == nil {
		remove, err := p.page.EvalOnNewDocument(fmt.Sprintf("(%s)(%s);", hookJS, anchor))
		if err != nil {
			p.mu.Unlock()
			return fmt.Errorf("register hook: %w", err)
		}
		p.removeOnNewDoc = remove
	}
	p.mu.Unlock()

	if _, err := p.eval(ctx, hookJS, p.host.AnchorSelector); err != nil {
		return fmt.Errorf("install hook: %w", err)
	}
	return nil
}

func (p *HostPage) uninstall() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.removeOnNewDoc != nil {
		_ = p.removeOnNewDoc()
		p.removeOnNewDoc = nil
	}
}

type hookEvent struct {
	Type    string  `json:"type"`
	Action  string  `json:"action"`
	Origin  string  `json:"origin"`
	Data    string  `json:"data"`
	Added   bool    `json:"added"`
	Removed bool    `json:"removed"`
	Initial bool    `json:"initial"`
	Href    string  `json:"href"`
	TS      float64 `json:"ts"`
}

// Stream starts draining the hook buffer every drain interval, and reinstalls the hook
// after each main-frame navigation.
func (p *HostPage) Stream(ctx context.Context) Stream {
	clicks := make(chan dispatch.Click, 16)
	messages := make(chan bridge.Message, 16)
	mutations := make(chan detect.Mutation, 16)
	reloads := make(chan struct{}, 1)

	go func() {
		var wg sync.WaitGroup
		wg.Add(2)
		defer close(reloads)

		waitNav := p.page.Context(ctx).EachEvent(func(ev *proto.PageFrameNavigated) {
			if ev.Frame.ParentID != "" {
				return
			}
			log.Printf("[browser] navigated to %s", ev.Frame.URL)
			select {
			case reloads <- struct{}{}:
			default:
			}
			// The new-document script covers most loads; this catches documents created
			// before it was registered.
			go func() {
				if err := p.Install(ctx); err != nil && ctx.Err() == nil {
					log.Printf("[browser] reinstall hook: %v", err)
				}
			}()
		})
		go func() {
			defer wg.Done()
			waitNav()
		}()
		go func() {
			defer wg.Done()
			defer close(clicks)
			defer close(messages)
			defer close(mutations)
			p.drainLoop(ctx, clicks, messages, mutations)
		}()
		wg.Wait()
	}()

	return Stream{Clicks: clicks, Messages: messages, Mutations: mutations, Reloads: reloads}
}

func (p *HostPage) drainLoop(ctx context.Context, clicks chan<- dispatch.Click, messages chan<- bridge.Message, mutations chan<- detect.Mutation) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	failing := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		events, err := p.drain(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !failing {
				log.Printf("[browser] drain hook buffer: %v", err)
				failing = true
			}
			continue
		}
		failing = false

		for _, ev := range events {
			at := time.UnixMilli(int64(ev.TS))
			var ok bool
			switch ev.Type {
			case "action":
				ok = deliver(ctx, clicks, dispatch.Click{Action: actions.ID(ev.Action), Location: ev.Href, At: at})
			case "message":
				ok = deliver(ctx, messages, bridge.Message{Origin: ev.Origin, Data: json.RawMessage(ev.Data)})
			case "mutation":
				ok = deliver(ctx, mutations, detect.Mutation{AnchorAdded: ev.Added, AnchorRemoved: ev.Removed, Initial: ev.Initial, Location: ev.Href, At: at})
			default:
				ok = true
			}
			if !ok {
				return
			}
		}
	}
}

func (p *HostPage) drain(ctx context.Context) ([]hookEvent, error) {
	res, err := p.eval(ctx, drainJS)
	if err != nil {
		return nil, err
	}
	if res == nil || res.Value.Nil() {
		return nil, nil
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var events []hookEvent
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, fmt.Errorf("decode hook events: %w", err)
	}
	return events, nil
}

func deliver[T any](ctx context.Context, ch chan<- T, v T) bool {
	select {
	case ch <- v:
		return true
	case <-ctx.Done():
		return false
	}
}

// Location returns the tab's current URL.
func (p *HostPage) Location(ctx context.Context) (string, error) {
	res, err := p.eval(ctx, locationJS)
	if err != nil {
		return "", err
	}
	return res.Value.Str(), nil
}

func (p *HostPage) Geometry(ctx context.Context) (dispatch.Geometry, error) {
	res, err := p.eval(ctx, geometryJS)
	if err != nil {
		return dispatch.Geometry{}, err
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return dispatch.Geometry{}, err
	}
	var g dispatch.Geometry
	if err := json.Unmarshal(raw, &g); err != nil {
		return dispatch.Geometry{}, fmt.Errorf("decode geometry: %w", err)
	}
	return g, nil
}

// Open calls window.open from the page so the popup's opener is the host page.
func (p *HostPage) Open(ctx context.Context, target, name, features string) (bool, error) {
	res, err := p.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           openJS,
		JSArgs:       []interface{}{target, name, features},
		ByValue:      true,
		AwaitPromise: true,
		UserGesture:  true,
	})
	if err != nil {
		return false, err
	}
	return res.Value.Bool(), nil
}

func (p *HostPage) Notify(ctx context.Context, message string) error {
	_, err := p.eval(ctx, notifyJS, message)
	return err
}

func (p *HostPage) HasPanel(ctx context.Context) (bool, error) {
	res, err := p.eval(ctx, hasPanelJS, panel.PanelSelector)
	if err != nil {
		return false, err
	}
	return res.Value.Bool(), nil
}

func (p *HostPage) ContainerHTML(ctx context.Context, anchor, container string) (string, error) {
	res, err := p.eval(ctx, containerHTMLJS, anchor, container)
	if err != nil {
		return "", err
	}
	if res.Value.Nil() {
		return "", fmt.Errorf("%w: %s in %s", panel.ErrAnchorNotFound, anchor, container)
	}
	return res.Value.Str(), nil
}

func (p *HostPage) InsertPanel(ctx context.Context, anchor, container, fragment string) error {
	res, err := p.eval(ctx, insertPanelJS, anchor, container, fragment)
	if err != nil {
		return err
	}
	if !res.Value.Bool() {
		return fmt.Errorf("%w: %s in %s", panel.ErrAnchorNotFound, anchor, container)
	}
	return nil
}

func (p *HostPage) RemovePanel(ctx context.Context) error {
	_, err := p.eval(ctx, removePanelJS, panel.PanelSelector)
	return err
}

func (p *HostPage) SetVisibility(ctx context.Context, visible map[actions.ID]bool) error {
	states := make(map[string]bool, len(visible))
	for id, show := range visible {
		states[string(id)] = show
	}
	_, err := p.eval(ctx, setVisibilityJS, panel.PanelSelector, panel.ActionAttr, states)
	return err
}
