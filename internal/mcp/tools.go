package mcp

import (
	"context"
	"fmt"

	"trenko-panel/internal/actions"
	"trenko-panel/internal/endpoint"
	"trenko-panel/internal/session"
)

type PanelStatusTool struct {
	ctl Controller
}

func (t *PanelStatusTool) Name() string { return "panel-status" }
func (t *PanelStatusTool) Description() string {
	return `Report the action panel's current state.

Returns: {status, view_open, record, panel_attached, visible, renders, status_writes,
endpoint_configured, endpoint_origin}. "visible" lists the action ids currently shown.`
}
func (t *PanelStatusTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *PanelStatusTool) Execute(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
	return t.ctl.Snapshot(ctx)
}

type SetSessionStatusTool struct {
	ctl Controller
}

func (t *SetSessionStatusTool) Name() string { return "set-session-status" }
func (t *SetSessionStatusTool) Description() string {
	return `Set the session status locally, as if the workflow application had posted it.

Under normal operation the status only advances through the popup's message. Use this to
recover from a lost message. Unrecognized values become "unknown", which shows the report
action only.`
}
func (t *SetSessionStatusTool) InputSchema() map[string]interface{} {
	known := make([]string, 0, 4)
	for _, s := range session.Known() {
		known = append(known, string(s))
	}
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"status": map[string]interface{}{
				"type":        "string",
				"description": "New status",
				"enum":        append(known, string(session.Unknown)),
			},
		},
		"required": []string{"status"},
	}
}
func (t *SetSessionStatusTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	raw := getStringArg(args, "status")
	if raw == "" {
		return nil, fmt.Errorf("status is required")
	}
	status, err := t.ctl.SetStatus(ctx, raw)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"success": true, "status": status}, nil
}

type DispatchActionTool struct {
	ctl     Controller
	catalog *actions.Catalog
}

func (t *DispatchActionTool) Name() string { return "dispatch-action" }
func (t *DispatchActionTool) Description() string {
	return `Activate a panel action: opens the workflow application's popup for it.

Actions that need a card read its id from the host page's current location.
The popup is not tracked after it opens.`
}
func (t *DispatchActionTool) InputSchema() map[string]interface{} {
	ids := make([]string, 0, 8)
	if t.catalog != nil {
		for _, id := range t.catalog.IDs() {
			ids = append(ids, string(id))
		}
	}
	action := map[string]interface{}{
		"type":        "string",
		"description": "Action id",
	}
	if len(ids) > 0 {
		action["enum"] = ids
	}
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"action": action},
		"required":   []string{"action"},
	}
}
func (t *DispatchActionTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	id := getStringArg(args, "action")
	if id == "" {
		return nil, fmt.Errorf("action is required")
	}
	opened, err := t.ctl.Dispatch(ctx, actions.ID(id))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"success":     true,
		"action":      opened.Action,
		"record_id":   opened.RecordID,
		"window_name": opened.Name,
		"geometry":    opened.Geometry,
	}, nil
}

type ReloadEndpointTool struct {
	ctl Controller
}

func (t *ReloadEndpointTool) Name() string { return "reload-endpoint" }
func (t *ReloadEndpointTool) Description() string {
	return `Re-read the endpoint base URL and access token from the persisted store.`
}
func (t *ReloadEndpointTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *ReloadEndpointTool) Execute(ctx context.Context, _ map[string]interface{}) (interface{}, error) {
	cfg, err := t.ctl.ReloadEndpoint(ctx)
	if err != nil {
		return map[string]interface{}{"configured": false, "error": err.Error()}, nil
	}
	return endpointPayload(cfg), nil
}

type ConfigureEndpointTool struct {
	ctl Controller
}

func (t *ConfigureEndpointTool) Name() string { return "configure-endpoint" }
func (t *ConfigureEndpointTool) Description() string {
	return `Save the workflow application's base URL and access token.

The base URL must be an absolute http(s) URL; its origin becomes the only origin whose
status messages are accepted. The token is never echoed back.`
}
func (t *ConfigureEndpointTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"base_url": map[string]interface{}{
				"type":        "string",
				"description": "Workflow application base URL, e.g. https://trenko.example.com",
			},
			"auth_token": map[string]interface{}{
				"type":        "string",
				"description": "Access token appended to every popup URL",
			},
		},
		"required": []string{"base_url", "auth_token"},
	}
}
func (t *ConfigureEndpointTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	cfg, err := t.ctl.ConfigureEndpoint(ctx, getStringArg(args, "base_url"), getStringArg(args, "auth_token"))
	if err != nil {
		return nil, err
	}
	return endpointPayload(cfg), nil
}

func endpointPayload(cfg endpoint.Config) map[string]interface{} {
	out := map[string]interface{}{"configured": cfg.BaseURL != nil}
	if cfg.BaseURL != nil {
		out["base_url"] = cfg.BaseURL.String()
		out["origin"] = cfg.Origin()
	}
	return out
}
