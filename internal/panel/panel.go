// Package panel injects the action panel into the host page's record view and keeps each
// control's visibility in line with the session status.
package panel

import (
	"context"
	"errors"
	"fmt"

	"trenko-panel/internal/actions"
	"trenko-panel/internal/policy"
	"trenko-panel/internal/session"
)

// ErrAnchorNotFound means the anchor control or its container is not in the page yet.
var ErrAnchorNotFound = errors.New("anchor not found")

// DOM is the host page surface the panel needs. Implementations must treat every call as
// a fresh query against the live document.
type DOM interface {
	// HasPanel reports whether a panel fragment is attached anywhere in the document.
	HasPanel(ctx context.Context) (bool, error)
	// ContainerHTML returns the outer HTML of the anchor's nearest container, or
	// ErrAnchorNotFound.
	ContainerHTML(ctx context.Context, anchor, container string) (string, error)
	// InsertPanel inserts fragment as the container's first child.
	InsertPanel(ctx context.Context, anchor, container, fragment string) error
	RemovePanel(ctx context.Context) error
	// SetVisibility shows or hides each action's list item.
	SetVisibility(ctx context.Context, visible map[actions.ID]bool) error
}

// Handle describes the outcome of Inject.
type Handle struct {
	// Created is false when a panel was already attached.
	Created bool
	Styles  Styles
}

// Injector attaches at most one panel to the record view.
type Injector struct {
	dom       DOM
	catalog   *actions.Catalog
	anchor    string
	container string
	titles    Titles
}

func NewInjector(dom DOM, catalog *actions.Catalog, anchor, container string, titles Titles) *Injector {
	if titles.Panel == "" {
		titles.Panel = "Trenko Actions"
	}
	return &Injector{dom: dom, catalog: catalog, anchor: anchor, container: container, titles: titles}
}

// Inject builds and inserts the panel unless the page already holds one. The presence
// check queries the document every time, so a host re-render that drops the panel is
// healed on the next call.
func (i *Injector) Inject(ctx context.Context) (Handle, error) {
	present, err := i.dom.HasPanel(ctx)
	if err != nil {
		return Handle{}, fmt.Errorf("query panel: %w", err)
	}
	if present {
		return Handle{}, nil
	}

	markup, err := i.dom.ContainerHTML(ctx, i.anchor, i.container)
	if err != nil {
		return Handle{}, err
	}
	styles, err := ReadStyles(markup)
	if err != nil {
		return Handle{}, err
	}
	fragment, err := Build(i.titles, styles, i.catalog.All())
	if err != nil {
		return Handle{}, err
	}
	if err := i.dom.InsertPanel(ctx, i.anchor, i.container, fragment); err != nil {
		return Handle{}, fmt.Errorf("insert panel: %w", err)
	}
	return Handle{Created: true, Styles: styles}, nil
}

// Remove detaches the panel; absent panels are fine.
func (i *Injector) Remove(ctx context.Context) error {
	return i.dom.RemovePanel(ctx)
}

// Renderer applies the visibility policy to the attached panel.
type Renderer struct {
	dom     DOM
	catalog *actions.Catalog
	policy  *policy.Policy
}

func NewRenderer(dom DOM, catalog *actions.Catalog, p *policy.Policy) *Renderer {
	return &Renderer{dom: dom, catalog: catalog, policy: p}
}

// Render toggles every catalog action by membership in the status's visible set and
// returns that set.
func (r *Renderer) Render(ctx context.Context, status session.Status) ([]actions.ID, error) {
	visible := r.policy.Visible(status)
	shown := make(map[actions.ID]bool, len(visible))
	for _, id := range visible {
		shown[id] = true
	}

	states := make(map[actions.ID]bool, len(r.catalog.IDs()))
	for _, id := range r.catalog.IDs() {
		states[id] = shown[id]
	}
	if err := r.dom.SetVisibility(ctx, states); err != nil {
		return visible, fmt.Errorf("render %s: %w", status, err)
	}
	return visible, nil
}
