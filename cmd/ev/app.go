package main

import (
	"context"
	"fmt"

	"ev/internal/commands"
	"ev/internal/commands/builtin"
	"ev/internal/config"
	"ev/internal/history"
	"ev/internal/logger"
	"ev/internal/matrix"
	"ev/internal/shell"
)

// app is one assembled shell with its collaborators.
type app struct {
	cfg      *config.Config
	registry *commands.Registry
	history  *history.Store
	account  *matrix.Account
	session  *shell.Session

	// loaded is set once the history file has been read; until then
	// close leaves the file alone.
	loaded bool
}

// newApp builds the registry (Matrix commands first, unless disabled, then
// the builtins), loads the history and creates the session. quit ends the
// session; it is handed to /quit and to the Matrix account.
func newApp(ctx context.Context, cfg *config.Config, quit func(), opts ...shell.SessionOption) (*app, error) {
	a := &app{
		cfg:      cfg,
		registry: commands.NewRegistry(),
		history:  history.New(cfg.HistorySize),
	}

	if cfg.MatrixEnabled() {
		a.account = matrix.Open(ctx, cfg, quit)
		if err := a.registry.Register(a.account.Commands()...); err != nil {
			a.close()
			return nil, fmt.Errorf("failed to register matrix commands: %w", err)
		}
	} else {
		logger.Info("Matrix disabled")
	}

	builtins := builtin.Commands(builtin.Deps{
		Commands: a.registry,
		History:  a.history,
		Quit:     quit,
	})
	if err := a.registry.Register(builtins...); err != nil {
		a.close()
		return nil, fmt.Errorf("failed to register builtin commands: %w", err)
	}
	logger.Debug("Commands registered", "count", a.registry.Len())

	if err := a.history.Load(cfg.HistoryPath()); err != nil {
		logger.Warn("Could not load history", "path", cfg.HistoryPath(), "error", err)
	} else {
		a.loaded = true
	}

	a.session = shell.NewSession(a.registry, a.history, opts...)
	return a, nil
}

func (a *app) run(ctx context.Context) error {
	return a.session.Run(ctx)
}

// close saves the history, if it was loaded, and shuts the Matrix account
// down.
func (a *app) close() {
	if a.loaded {
		if err := a.history.Save(a.cfg.HistoryPath()); err != nil {
			logger.Error("Could not save history", "path", a.cfg.HistoryPath(), "error", err)
		}
	}
	if a.account != nil {
		if err := a.account.Close(); err != nil {
			logger.Warn("Could not close matrix account", "error", err)
		}
	}
}
