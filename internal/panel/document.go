package panel

import (
	"context"
	"fmt"
	"io"
	"sync"

	"trenko-panel/internal/actions"

	"github.com/PuerkitoBio/goquery"
)

// DocumentDOM implements DOM over a parsed HTML document. It backs the preview command,
// which replays the injector against a saved copy of the host page, and the tests.
type DocumentDOM struct {
	mu  sync.Mutex
	doc *goquery.Document
}

func NewDocumentDOM(r io.Reader) (*DocumentDOM, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return &DocumentDOM{doc: doc}, nil
}

func (d *DocumentDOM) HasPanel(context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.Find(PanelSelector).Length() > 0, nil
}

func (d *DocumentDOM) ContainerHTML(_ context.Context, anchor, container string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sel, err := d.container(anchor, container)
	if err != nil {
		return "", err
	}
	return goquery.OuterHtml(sel)
}

func (d *DocumentDOM) InsertPanel(_ context.Context, anchor, container, fragment string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	sel, err := d.container(anchor, container)
	if err != nil {
		return err
	}
	sel.PrependHtml(fragment)
	return nil
}

func (d *DocumentDOM) RemovePanel(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.doc.Find(PanelSelector).Remove()
	return nil
}

func (d *DocumentDOM) SetVisibility(_ context.Context, visible map[actions.ID]bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, show := range visible {
		item := d.doc.Find(ActionSelector(id)).Closest("li")
		if show {
			item.RemoveAttr("hidden")
		} else {
			item.SetAttr("hidden", "")
		}
	}
	return nil
}

// VisibleActions lists the action ids whose items are not hidden, in document order.
func (d *DocumentDOM) VisibleActions() []actions.ID {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []actions.ID
	d.doc.Find(PanelSelector + " li").Each(func(_ int, li *goquery.Selection) {
		if _, hidden := li.Attr("hidden"); hidden {
			return
		}
		if id, ok := li.Find("[" + ActionAttr + "]").Attr(ActionAttr); ok {
			out = append(out, actions.ID(id))
		}
	})
	return out
}

// PanelCount returns how many panel fragments are attached.
func (d *DocumentDOM) PanelCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.Find(PanelSelector).Length()
}

// Reset replaces the document, as a host page re-render would.
func (d *DocumentDOM) Reset(r io.Reader) error {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.doc = doc
	d.mu.Unlock()
	return nil
}

// HTML renders the whole document.
func (d *DocumentDOM) HTML() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.Html()
}

func (d *DocumentDOM) container(anchor, container string) (*goquery.Selection, error) {
	a := d.doc.Find(anchor).First()
	if a.Length() == 0 {
		return nil, fmt.Errorf("%w: no element matches %s", ErrAnchorNotFound, anchor)
	}
	c := a.Closest(container)
	if c.Length() == 0 {
		return nil, fmt.Errorf("%w: no %s encloses %s", ErrAnchorNotFound, container, anchor)
	}
	return c, nil
}
