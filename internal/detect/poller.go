package detect

import (
	"context"
	"log"
	"time"
)

// Sampler returns the host page's current location.
type Sampler func(ctx context.Context) (string, error)

// Poller samples the location at a fixed interval and emits a transition whenever the
// sample changes and the record-view predicate flips. Moving between two different
// record views emits Exited then Entered.
type Poller struct {
	sample   Sampler
	match    Matcher
	interval time.Duration
}

func NewPoller(sample Sampler, match Matcher, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &Poller{sample: sample, match: match, interval: interval}
}

func (p *Poller) Events(ctx context.Context) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)

		var (
			g        gate
			previous string
		)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			if !p.step(ctx, out, &g, &previous) {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return out
}

// step takes one sample; it returns false once ctx is done.
func (p *Poller) step(ctx context.Context, out chan<- Event, g *gate, previous *string) bool {
	location, err := p.sample(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		log.Printf("[detect] sample location: %v", err)
		return true
	}
	if location == *previous {
		return true
	}
	*previous = location

	now := time.Now()
	if p.match.Match(location) {
		// A different record replaces the open one.
		if g.open {
			g.exit()
			if !send(ctx, out, Event{Kind: Exited, Location: location, At: now}) {
				return false
			}
		}
		if g.enter() {
			return send(ctx, out, Event{Kind: Entered, Location: location, At: now})
		}
		return true
	}
	if g.exit() {
		return send(ctx, out, Event{Kind: Exited, Location: location, At: now})
	}
	return true
}
