package detect

import (
	"context"
	"time"
)

// Mutation summarizes one batch of DOM subtree changes with respect to the anchor.
type Mutation struct {
	// AnchorAdded is true when an added subtree contains the anchor.
	AnchorAdded bool
	// AnchorRemoved is true when a removed subtree contained the anchor.
	AnchorRemoved bool
	// Initial marks the first record of a new document. AnchorAdded then says whether the
	// anchor was present when the hook installed.
	Initial  bool
	Location string
	At       time.Time
}

// Observer turns anchor mutation records into transitions. Records come from the page
// hook's MutationObserver; the hook reports an initial record for every document it is
// installed into. A new document never carries the old view over, so an initial record
// closes a view that is still open before considering the anchor.
type Observer struct {
	records <-chan Mutation
}

func NewObserver(records <-chan Mutation) *Observer {
	return &Observer{records: records}
}

func (o *Observer) Events(ctx context.Context) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		var g gate
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-o.records:
				if !ok {
					// Producer gone; stay infinite until teardown.
					<-ctx.Done()
					return
				}
				at := m.At
				if at.IsZero() {
					at = time.Now()
				}
				// A batch can remove the old view and add a new one; removal first.
				if (m.AnchorRemoved || m.Initial) && g.exit() {
					if !send(ctx, out, Event{Kind: Exited, Location: m.Location, At: at}) {
						return
					}
				}
				if m.AnchorAdded && g.enter() {
					if !send(ctx, out, Event{Kind: Entered, Location: m.Location, At: at}) {
						return
					}
				}
			}
		}
	}()
	return out
}
