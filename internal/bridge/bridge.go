// Package bridge accepts status updates posted back by the workflow application's popup.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"trenko-panel/internal/endpoint"
	"trenko-panel/internal/session"
)

var (
	ErrUntrustedOrigin = errors.New("untrusted origin")
	ErrMalformed       = errors.New("malformed message")
)

// Message is one inbound cross-window message. Data holds the JSON form of the posted
// value.
type Message struct {
	Origin string          `json:"origin"`
	Data   json.RawMessage `json:"data"`
}

type payload struct {
	Type   string `json:"type"`
	Values *struct {
		Status *string `json:"status"`
	} `json:"values"`
}

// Endpoint is the slice of endpoint.Provider the bridge needs.
type Endpoint interface {
	Current() (endpoint.Config, bool)
	Reload(ctx context.Context)
}

// StatusSetter receives accepted statuses.
type StatusSetter interface {
	Set(ctx context.Context, next session.Status)
}

type Bridge struct {
	endpoint Endpoint
	status   StatusSetter
}

func New(ep Endpoint, status StatusSetter) *Bridge {
	return &Bridge{endpoint: ep, status: status}
}

// Handle validates msg and forwards its status. A nil error means the status was passed
// to the store; every rejection leaves the store untouched.
func (b *Bridge) Handle(ctx context.Context, msg Message) (session.Status, error) {
	cfg, ok := b.endpoint.Current()
	if !ok {
		b.endpoint.Reload(ctx)
		log.Printf("[bridge] dropping message from %s: endpoint not configured", msg.Origin)
		return "", endpoint.ErrNotConfigured
	}
	if msg.Origin != cfg.Origin() {
		return "", fmt.Errorf("%w: %s", ErrUntrustedOrigin, msg.Origin)
	}

	raw, err := Decode(msg.Data)
	if err != nil {
		log.Printf("[bridge] ignoring message: %v", err)
		return "", err
	}
	status := session.Normalize(raw)
	b.status.Set(ctx, status)
	return status, nil
}

// Decode extracts values.status from a session message. A JSON string holding the
// object is unwrapped once.
func Decode(data json.RawMessage) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		data = []byte(inner)
	}

	var p payload
	if err := json.Unmarshal(data, &p); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if p.Type != "session" {
		return "", fmt.Errorf("%w: type %q", ErrMalformed, p.Type)
	}
	if p.Values == nil || p.Values.Status == nil {
		return "", fmt.Errorf("%w: missing values.status", ErrMalformed)
	}
	return *p.Values.Status, nil
}
