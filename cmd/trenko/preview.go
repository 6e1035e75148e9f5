package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"trenko-panel/internal/actions"
	"trenko-panel/internal/config"
	"trenko-panel/internal/panel"
	"trenko-panel/internal/policy"
	"trenko-panel/internal/session"
)

// runPreview injects the panel into a saved host page, renders it for status and
// writes the resulting document to out.
func runPreview(ctx context.Context, cfg config.Config, path, status string, out io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return renderPreview(ctx, cfg, f, session.Normalize(status), out)
}

func renderPreview(ctx context.Context, cfg config.Config, in io.Reader, status session.Status, out io.Writer) error {
	dom, err := panel.NewDocumentDOM(in)
	if err != nil {
		return err
	}

	catalog := actions.NewCatalog(cfg.Endpoint.ReportPath)
	rules, err := policy.LoadRulesFile(cfg.Policy.RulesPath)
	if err != nil {
		return err
	}
	pol, err := policy.Compile(catalog, rules)
	if err != nil {
		return err
	}

	injector := panel.NewInjector(dom, catalog, cfg.Host.AnchorSelector, cfg.Host.ContainerSelector,
		panel.Titles{Panel: cfg.Host.PanelTitle, Section: cfg.Host.SectionTitle})
	if _, err := injector.Inject(ctx); err != nil {
		return fmt.Errorf("inject: %w", err)
	}
	if _, err := panel.NewRenderer(dom, catalog, pol).Render(ctx, status); err != nil {
		return fmt.Errorf("render %s: %w", status, err)
	}

	doc, err := dom.HTML()
	if err != nil {
		return err
	}
	_, err = io.WriteString(out, doc)
	return err
}
