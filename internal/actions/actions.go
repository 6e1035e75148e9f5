// Package actions defines the fixed set of panel actions and how each maps onto a
// workflow application URL.
package actions

import (
	"errors"
	"fmt"

	"trenko-panel/internal/endpoint"
	"trenko-panel/internal/session"
)

// ID identifies one action.
type ID string

const (
	CheckIn     ID = "check-in"
	AddToAgenda ID = "add-to-agenda"
	PostAgenda  ID = "post-agenda"
	ClockEffort ID = "clock-effort"
	AddBreak    ID = "add-break"
	CheckOut    ID = "check-out"
	Report      ID = "report"
)

// DefaultReportPath is where the workflow app serves card reports unless configured.
const DefaultReportPath = "/reports/card_efforts"

var (
	ErrUnknownAction = errors.New("unknown action")
	ErrNoRecord      = errors.New("action requires a record id")
)

// Definition describes one action.
type Definition struct {
	ID               ID
	Label            string
	Path             string
	RequiresRecordID bool
	VisibleIn        []session.Status
}

// URL composes the popup target for this action.
func (d Definition) URL(cfg endpoint.Config, recordID string) (string, error) {
	if cfg.BaseURL == nil || cfg.AuthToken == "" {
		return "", endpoint.ErrNotConfigured
	}
	if d.RequiresRecordID && recordID == "" {
		return "", fmt.Errorf("%s: %w", d.ID, ErrNoRecord)
	}

	u := cfg.BaseURL.JoinPath(d.Path)
	q := u.Query()
	if d.RequiresRecordID {
		q.Set("card_id", recordID)
	}
	q.Set("token", cfg.AuthToken)
	u.RawQuery = q.Encode()
	u.Fragment = ""
	return u.String(), nil
}

// Catalog is the ordered action table. It never changes after construction.
type Catalog struct {
	defs  []Definition
	index map[ID]int
}

// NewCatalog builds the table. reportPath overrides where the report action points;
// empty keeps DefaultReportPath.
func NewCatalog(reportPath string) *Catalog {
	if reportPath == "" {
		reportPath = DefaultReportPath
	}
	defs := []Definition{
		{ID: CheckIn, Label: "Check-In", Path: "/user/work_day/new", RequiresRecordID: true,
			VisibleIn: []session.Status{session.CheckedOut}},
		{ID: AddToAgenda, Label: "Add to Agenda", Path: "/user/agendas/new", RequiresRecordID: true,
			VisibleIn: []session.Status{session.CheckedIn}},
		{ID: PostAgenda, Label: "Post Agenda", Path: "/user/agendas",
			VisibleIn: []session.Status{session.CheckedIn}},
		{ID: ClockEffort, Label: "Clock Effort", Path: "/user/effort_entries/new", RequiresRecordID: true,
			VisibleIn: []session.Status{session.AgendaPosted}},
		{ID: AddBreak, Label: "Add Break", Path: "/user/break_entries/new",
			VisibleIn: []session.Status{session.AgendaPosted}},
		{ID: CheckOut, Label: "Check-Out", Path: "/user/work_day",
			VisibleIn: []session.Status{session.AgendaPosted}},
		{ID: Report, Label: "Card Report", Path: reportPath, RequiresRecordID: true,
			VisibleIn: session.Known()},
	}

	index := make(map[ID]int, len(defs))
	for i, d := range defs {
		index[d.ID] = i
	}
	return &Catalog{defs: defs, index: index}
}

// All returns the table in display order.
func (c *Catalog) All() []Definition {
	out := make([]Definition, len(c.defs))
	copy(out, c.defs)
	return out
}

// IDs returns every action id in display order.
func (c *Catalog) IDs() []ID {
	out := make([]ID, len(c.defs))
	for i, d := range c.defs {
		out[i] = d.ID
	}
	return out
}

// Lookup finds a definition by id.
func (c *Catalog) Lookup(id ID) (Definition, error) {
	i, ok := c.index[id]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrUnknownAction, id)
	}
	return c.defs[i], nil
}

// Fallback is shown when the status is unknown.
func (c *Catalog) Fallback() ID {
	return Report
}
