package main

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"trenko-panel/internal/actions"
	"trenko-panel/internal/browser"
	"trenko-panel/internal/config"
	"trenko-panel/internal/detect"
	"trenko-panel/internal/engine"
	"trenko-panel/internal/kvstore"
	mcpserver "trenko-panel/internal/mcp"
	"trenko-panel/internal/policy"
	"trenko-panel/internal/recorder"

	"github.com/spf13/pflag"
)

func main() {
	configPath := pflag.StringP("config", "c", "config.yaml", "Path to the trenko-panel config file")
	ssePort := pflag.Int("sse-port", 0, "Serve MCP over SSE on this port (implies --mcp)")
	enableMCP := pflag.Bool("mcp", false, "Expose the control tools over MCP")
	strategy := pflag.String("detector", "", "Record-view detector: poll or mutation")
	previewPath := pflag.String("preview", "", "Inject the panel into a saved HTML page and print the result, without a browser")
	previewStatus := pflag.String("status", "checked_out", "Session status rendered by --preview")
	pflag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	path := *configPath
	if !pflag.CommandLine.Changed("config") {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil && !(*previewPath != "" && errors.Is(err, config.ErrNoBrowser)) {
		log.Fatalf("failed to load config: %v", err)
	}
	if *ssePort != 0 {
		cfg.MCP.SSEPort = *ssePort
		cfg.MCP.Enable = true
	}
	if *enableMCP {
		cfg.MCP.Enable = true
	}
	if *strategy != "" {
		cfg.Detector.Strategy = *strategy
	}

	if *previewPath != "" {
		if err := runPreview(ctx, cfg, *previewPath, *previewStatus, os.Stdout); err != nil {
			log.Fatalf("preview: %v", err)
		}
		return
	}

	// Redirect logging to file for stdio mode (stderr interferes with MCP protocol)
	if cfg.MCP.Enable && cfg.MCP.SSEPort == 0 && cfg.Server.LogFile != "" {
		logFile, err := os.OpenFile(cfg.Server.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			log.SetOutput(logFile)
			defer logFile.Close()
		} else {
			log.SetOutput(io.Discard)
		}
	}

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("trenko-panel exited with error: %v", err)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	backend, err := kvstore.Open(cfg.Store)
	if err != nil {
		return err
	}
	store := kvstore.New(backend)
	defer store.Close()

	catalog := actions.NewCatalog(cfg.Endpoint.ReportPath)
	rules, err := policy.LoadRulesFile(cfg.Policy.RulesPath)
	if err != nil {
		return err
	}
	pol, err := policy.Compile(catalog, rules)
	if err != nil {
		return err
	}

	manager := browser.NewManager(cfg.Browser, cfg.Host)
	if err := manager.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := manager.Shutdown(context.Background()); err != nil {
			log.Printf("browser shutdown: %v", err)
		}
	}()

	page, err := manager.HostPage(ctx)
	if err != nil {
		return err
	}
	if err := page.Install(ctx); err != nil {
		return err
	}
	stream := page.Stream(ctx)

	var detector detect.Source
	switch strings.ToLower(cfg.Detector.Strategy) {
	case "mutation":
		detector = detect.NewObserver(stream.Mutations)
	default:
		matcher, err := detect.NewPatternMatcher(cfg.Host.RecordViewPattern)
		if err != nil {
			return err
		}
		detector = detect.NewPoller(page.Location, matcher, cfg.Detector.GetPollInterval())
		// Mutation records are unused; keep the drain loop from blocking on them.
		go func() {
			for range stream.Mutations {
			}
		}()
	}

	var tracer engine.Tracer
	if cfg.Recorder.Enable {
		rec, err := recorder.NewRecorder(cfg.Recorder.Dir)
		if err != nil {
			return err
		}
		runID, err := rec.Start()
		if err != nil {
			return err
		}
		defer rec.Close()
		log.Printf("recording engine trace %s in %s", runID, cfg.Recorder.Dir)
		tracer = rec
	}

	eng, err := engine.New(engine.Options{
		Host:    cfg.Host,
		Catalog: catalog,
		Policy:  pol,
		Store:   store,
		DOM:     page,
		Window:  page,
		Tracer:  tracer,
	})
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	engineErr := make(chan error, 1)
	go func() {
		engineErr <- eng.Run(runCtx, engine.Inputs{
			Detector: detector,
			Clicks:   stream.Clicks,
			Messages: stream.Messages,
			Reloads:  stream.Reloads,
		})
	}()

	if !cfg.MCP.Enable {
		log.Printf("trenko-panel driving %s (detector %s)", page.TargetID(), cfg.Detector.Strategy)
		return <-engineErr
	}

	server, err := mcpserver.NewServer(cfg, eng, catalog)
	if err != nil {
		return err
	}
	var serveErr error
	if cfg.MCP.SSEPort > 0 {
		log.Printf("starting trenko-panel MCP SSE server on port %d", cfg.MCP.SSEPort)
		serveErr = server.StartSSE(runCtx, cfg.MCP.SSEPort)
	} else {
		log.Printf("starting trenko-panel MCP stdio server")
		serveErr = server.Start(runCtx)
	}
	cancel()
	if err := <-engineErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return serveErr
}
