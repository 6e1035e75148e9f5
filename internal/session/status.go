// Package session holds the cached workflow status that gates which panel actions are shown.
package session

import "strings"

// Status is the workflow phase reported by the external system.
type Status string

const (
	CheckedOut   Status = "checked_out"
	CheckedIn    Status = "checked_in"
	AgendaPosted Status = "agenda_posted"
	Unknown      Status = "unknown"
)

// Default is assumed when nothing has been persisted yet.
const Default = CheckedOut

// Known lists the statuses the external system can report, in workflow order.
func Known() []Status {
	return []Status{CheckedOut, CheckedIn, AgendaPosted}
}

// Normalize maps raw input to a member of the enumeration. Anything unrecognized
// becomes Unknown.
func Normalize(raw string) Status {
	switch s := Status(strings.TrimSpace(raw)); s {
	case CheckedOut, CheckedIn, AgendaPosted, Unknown:
		return s
	default:
		return Unknown
	}
}

func (s Status) String() string { return string(s) }
