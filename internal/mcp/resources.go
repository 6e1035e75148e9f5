package mcp

import (
	"context"
	"encoding/json"
	"time"

	"trenko-panel/internal/session"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	resourceMIMEJSON = "application/json"
)

func (s *Server) registerAllResources() {
	if s == nil || s.mcpServer == nil {
		return
	}

	s.mcpServer.AddResource(
		mcp.NewResource(
			"trenko://about",
			"Trenko Panel About",
			mcp.WithMIMEType(resourceMIMEJSON),
			mcp.WithResourceDescription("Server info and the host page this engine drives."),
		),
		s.handleAboutResource,
	)

	s.mcpServer.AddResource(
		mcp.NewResource(
			"trenko://actions",
			"Panel Actions",
			mcp.WithMIMEType(resourceMIMEJSON),
			mcp.WithResourceDescription("The action catalog with the statuses each action is visible in."),
		),
		s.handleActionsResource,
	)
}

func (s *Server) handleAboutResource(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return jsonResource(request.Params.URI, map[string]interface{}{
		"name":                s.cfg.Server.Name,
		"version":             s.cfg.Server.Version,
		"page_match":          s.cfg.Host.PageMatch,
		"record_view_pattern": s.cfg.Host.RecordViewPattern,
		"detector":            s.cfg.Detector.Strategy,
		"timestamp_ms":        time.Now().UnixMilli(),
	})
}

func (s *Server) handleActionsResource(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	type entry struct {
		ID               string           `json:"id"`
		Label            string           `json:"label"`
		Path             string           `json:"path"`
		RequiresRecordID bool             `json:"requires_record_id"`
		VisibleIn        []session.Status `json:"visible_in"`
	}
	var out []entry
	if s.catalog != nil {
		for _, d := range s.catalog.All() {
			out = append(out, entry{
				ID:               string(d.ID),
				Label:            d.Label,
				Path:             d.Path,
				RequiresRecordID: d.RequiresRecordID,
				VisibleIn:        d.VisibleIn,
			})
		}
	}
	return jsonResource(request.Params.URI, map[string]interface{}{"actions": out})
}

func jsonResource(uri string, payload interface{}) ([]mcp.ResourceContents, error) {
	text, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: resourceMIMEJSON,
			Text:     string(text),
		},
	}, nil
}
