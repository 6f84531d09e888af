package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mmcdole/stash/internal/backend"
	"github.com/mmcdole/stash/internal/backend/fetch"
	"github.com/mmcdole/stash/internal/backend/store"
	"github.com/mmcdole/stash/internal/bridge"
	"github.com/mmcdole/stash/internal/bus"
	"github.com/mmcdole/stash/internal/config"
	"github.com/mmcdole/stash/internal/gateway"
	"github.com/mmcdole/stash/internal/log"
	"github.com/mmcdole/stash/internal/session"
	"github.com/mmcdole/stash/internal/tui"
)

// Version is set at build time via -ldflags
var Version = "dev"

func main() {
	// Handle version flag
	var showVersion bool
	flag.BoolVar(&showVersion, "v", false, "print version")
	flag.BoolVar(&showVersion, "version", false, "print version")
	flag.Parse()

	if showVersion {
		fmt.Printf("stash %s\n", Version)
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Setup logger
	logger, err := log.Setup(&cfg.Logging)
	if err != nil {
		// Fall back to null logger if file logging fails
		logger = log.Null()
	}
	slog.SetDefault(logger)

	logger.Info("starting stash", "version", Version, "backend_mode", cfg.Backend.Mode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := bus.NewDispatcher(logger)

	// Build the gateway invoker for the configured backend mode. Both modes
	// deliver push events through the same dispatcher, so everything above
	// this point is mode-agnostic.
	var invoker gateway.Invoker
	switch cfg.Backend.Mode {
	case config.BackendRemote:
		invoker = bridge.NewClient(cfg.Backend.URL, nil)
		stream := bridge.NewEventStream(cfg.Backend.URL, nil, events, logger)
		go func() {
			if err := stream.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("event stream stopped", "error", err)
			}
		}()

	default:
		st, err := store.Open(cfg.Backend.DataDir)
		if err != nil {
			return fmt.Errorf("failed to open data store: %w", err)
		}
		defer st.Close()

		svc := backend.New(st, fetch.NewFeedFetcher(nil), events, backend.Options{
			Logger: logger,
		})
		defer svc.Close()
		invoker = backend.NewLoopback(svc)
	}

	// The engine notifies the TUI through the program handle, which does not
	// exist yet; the notifier buffers the attachment.
	notifier := tui.NewNotifier()

	app := session.NewApp(ctx, session.Deps{
		Client:             gateway.NewClient(invoker),
		Bus:                events,
		Logger:             logger,
		SearchDebounce:     cfg.Engine.SearchDebounce,
		VisibilityDebounce: cfg.Engine.VisibilityDebounce,
		BackfillBatchLimit: cfg.Engine.BackfillBatchLimit,
		WatchdogTimeout:    cfg.Engine.WatchdogTimeout,
		OnChange:           notifier.Notify,
	})

	p := tea.NewProgram(
		tui.NewModel(app),
		tea.WithAltScreen(),
	)
	notifier.Attach(p)

	logger.Info("starting TUI")

	if _, err := p.Run(); err != nil {
		logger.Error("TUI error", "error", err)
		return fmt.Errorf("TUI error: %w", err)
	}

	logger.Info("shutting down")
	return nil
}
