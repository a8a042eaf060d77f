package app

import (
	"context"
	"fmt"

	"alphaseeker/internal/config"
	"alphaseeker/internal/logger"
	"alphaseeker/internal/prompt"
	"alphaseeker/internal/store/tracelog"
	"alphaseeker/internal/transport/http/api"

	"golang.org/x/sync/errgroup"
)

// App wires configuration, stores, the analysis engine and the HTTP API.
type App struct {
	cfg     *config.Config
	server  *api.Server
	prompts *prompt.Loader
	trace   *tracelog.Store
	Summary *StartupSummary
}

// NewApp builds the application without starting it.
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run serves HTTP (and watches prompt templates when enabled) until ctx is
// cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print()
	}
	defer func() {
		if err := a.trace.Close(); err != nil {
			logger.Warnf("[app] close trace db: %v", err)
		}
	}()

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.server.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	if a.cfg.Prompt.Watch {
		group.Go(func() error {
			if err := a.prompts.Watch(ctx); err != nil {
				logger.Warnf("[app] prompt watcher stopped: %v", err)
			}
			return nil
		})
	}
	return group.Wait()
}

// Server exposes the HTTP server (for tests).
func (a *App) Server() *api.Server {
	if a == nil {
		return nil
	}
	return a.server
}
