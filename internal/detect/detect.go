// Package detect raises idempotent entered/exited signals as the host page shows and
// hides the record view. Two interchangeable sources are provided: a location poller
// and a DOM mutation observer.
package detect

import (
	"context"
	"time"

	"github.com/gobwas/glob"
)

// Kind of a detection event.
type Kind int

const (
	Entered Kind = iota + 1
	Exited
)

func (k Kind) String() string {
	switch k {
	case Entered:
		return "entered"
	case Exited:
		return "exited"
	default:
		return "invalid"
	}
}

// Event is a record-view transition.
type Event struct {
	Kind     Kind
	Location string
	At       time.Time
}

// Source produces a lazy, infinite stream of transitions. The channel closes only when
// ctx ends. Calling Events again after that starts a fresh stream.
type Source interface {
	Events(ctx context.Context) <-chan Event
}

// gate enforces alternation: no Entered while open, no Exited while closed.
type gate struct {
	open bool
}

func (g *gate) enter() bool {
	if g.open {
		return false
	}
	g.open = true
	return true
}

func (g *gate) exit() bool {
	if !g.open {
		return false
	}
	g.open = false
	return true
}

// Matcher tells whether a location shows a record view.
type Matcher interface {
	Match(location string) bool
}

// PatternMatcher matches locations against a glob where '*' stops at '/'.
type PatternMatcher struct {
	pattern glob.Glob
	raw     string
}

func NewPatternMatcher(pattern string) (*PatternMatcher, error) {
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return nil, err
	}
	return &PatternMatcher{pattern: g, raw: pattern}, nil
}

func (m *PatternMatcher) Match(location string) bool {
	return m.pattern.Match(location)
}

func (m *PatternMatcher) String() string { return m.raw }

func send(ctx context.Context, out chan<- Event, ev Event) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
