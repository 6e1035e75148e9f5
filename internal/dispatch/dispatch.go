// Package dispatch opens the workflow application's popup for an activated action.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"trenko-panel/internal/actions"
	"trenko-panel/internal/endpoint"

	"github.com/google/uuid"
)

// ErrPopupBlocked means the browser refused to create the window.
var ErrPopupBlocked = errors.New("popup blocked")

// Notices shown to the user.
const (
	NoticeNotConfigured = "Trenko is not configured yet. Set the endpoint URL and access token, then try again."
	NoticeNoRecord      = "Open a card before using this action."
	NoticePopupBlocked  = "The Trenko window was blocked. Allow popups for this site and try again."
)

// Geometry is a window's outer position and size in screen pixels.
type Geometry struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Window is the caller window the dispatcher opens popups from.
type Window interface {
	Location(ctx context.Context) (string, error)
	Geometry(ctx context.Context) (Geometry, error)
	// Open creates a top-level window; false means the browser blocked it.
	Open(ctx context.Context, target, name, features string) (bool, error)
	// Notify shows a user-visible notice.
	Notify(ctx context.Context, message string) error
}

// Endpoint is the slice of endpoint.Provider the dispatcher needs.
type Endpoint interface {
	Current() (endpoint.Config, bool)
	Reload(ctx context.Context)
}

// Click is an activated panel control.
type Click struct {
	Action   actions.ID
	Location string
	At       time.Time
}

// Opened describes a dispatched popup. It is not tracked after return.
type Opened struct {
	Action   actions.ID
	RecordID string
	URL      string
	Name     string
	Geometry Geometry
}

type Dispatcher struct {
	window   Window
	catalog  *actions.Catalog
	endpoint Endpoint
	segment  string
}

func New(window Window, catalog *actions.Catalog, ep Endpoint, recordSegment string) *Dispatcher {
	if recordSegment == "" {
		recordSegment = "c"
	}
	return &Dispatcher{window: window, catalog: catalog, endpoint: ep, segment: recordSegment}
}

// Dispatch composes the action's URL and opens it in a centered popup. Every failure that
// matters to the user is also surfaced as a notice; nothing is retried.
func (d *Dispatcher) Dispatch(ctx context.Context, id actions.ID) (Opened, error) {
	def, err := d.catalog.Lookup(id)
	if err != nil {
		return Opened{}, err
	}

	cfg, ok := d.endpoint.Current()
	if !ok {
		d.endpoint.Reload(ctx)
		d.notify(ctx, NoticeNotConfigured)
		return Opened{}, endpoint.ErrNotConfigured
	}

	var recordID string
	if def.RequiresRecordID {
		location, err := d.window.Location(ctx)
		if err != nil {
			return Opened{}, fmt.Errorf("read location: %w", err)
		}
		recordID = RecordID(location, d.segment)
		if recordID == "" {
			d.notify(ctx, NoticeNoRecord)
			return Opened{}, fmt.Errorf("%w: %s", actions.ErrNoRecord, location)
		}
	}

	target, err := def.URL(cfg, recordID)
	if err != nil {
		return Opened{}, err
	}

	parent, err := d.window.Geometry(ctx)
	if err != nil {
		return Opened{}, fmt.Errorf("read window geometry: %w", err)
	}
	geo := Popup(parent)
	name := "trenko-" + uuid.NewString()

	opened, err := d.window.Open(ctx, target, name, Features(geo))
	if err != nil {
		return Opened{}, fmt.Errorf("open popup: %w", err)
	}
	if !opened {
		d.notify(ctx, NoticePopupBlocked)
		return Opened{}, ErrPopupBlocked
	}
	return Opened{Action: id, RecordID: recordID, URL: target, Name: name, Geometry: geo}, nil
}

func (d *Dispatcher) notify(ctx context.Context, msg string) {
	if err := d.window.Notify(ctx, msg); err != nil {
		log.Printf("[dispatch] notice failed: %v", err)
	}
}

// RecordID returns the path element that follows segment in location, or "" when the
// location has none.
func RecordID(location, segment string) string {
	u, err := url.Parse(location)
	if err != nil {
		return ""
	}
	parts := strings.Split(strings.Trim(u.EscapedPath(), "/"), "/")
	for i := 0; i+1 < len(parts); i++ {
		if parts[i] != segment {
			continue
		}
		id, err := url.PathUnescape(parts[i+1])
		if err != nil {
			return ""
		}
		return id
	}
	return ""
}

// Popup sizes a window to two thirds of the parent's width and half its height, centered
// over it.
func Popup(parent Geometry) Geometry {
	w := parent.Width * 2 / 3
	h := parent.Height / 2
	return Geometry{
		Left:   parent.Left + (parent.Width-w)/2,
		Top:    parent.Top + (parent.Height-h)/2,
		Width:  w,
		Height: h,
	}
}

// Features renders the window features string with browser chrome disabled.
func Features(g Geometry) string {
	return fmt.Sprintf(
		"toolbar=no,menubar=no,location=no,status=no,scrollbars=no,resizable=no,width=%d,height=%d,left=%d,top=%d",
		g.Width, g.Height, g.Left, g.Top,
	)
}
