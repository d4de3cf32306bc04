// Package runtime wires configuration, storage, services and the HTTP server
// into one runnable process.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	app "github.com/simsynai/platform/internal/app"
	"github.com/simsynai/platform/internal/app/httpapi"
	"github.com/simsynai/platform/internal/app/storage/postgres"
	"github.com/simsynai/platform/internal/config"
	"github.com/simsynai/platform/pkg/logger"
)

// Application manages the process lifecycle around an assembled app.
type Application struct {
	cfg        *config.Config
	log        *logger.Logger
	app        *app.Application
	httpServer *http.Server
	pg         *postgres.Store
}

// NewApplication constructs a fully wired application from the process
// configuration. With no database DSN configured, state lives in memory.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePrefix: cfg.Logging.FilePrefix,
	}).WithField("service", "simsynai")

	var (
		stores app.Stores
		pg     *postgres.Store
	)
	if cfg.Database.DSN != "" {
		pg, err = postgres.Open(cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		stores = app.Stores{Tasks: pg, Results: pg, Users: pg, Chat: pg}
		log.Info("using postgres storage")
	} else {
		log.Warn("no database configured; using in-memory storage")
	}

	application, err := app.New(cfg, app.Options{Stores: stores, Logger: log})
	if err != nil {
		if pg != nil {
			_ = pg.Close()
		}
		return nil, fmt.Errorf("assemble application: %w", err)
	}

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           httpapi.NewHandler(application),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &Application{
		cfg:        cfg,
		log:        log,
		app:        application,
		httpServer: httpSrv,
		pg:         pg,
	}, nil
}

// Run starts the managed services and the HTTP server, blocking until the
// context is cancelled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	if err := a.app.Start(ctx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Infof("HTTP server listening on %s", a.httpServer.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown stops the HTTP server, the managed services and the database.
func (a *Application) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var firstErr error
	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		firstErr = err
	}
	if err := a.app.Stop(shutdownCtx); err != nil && firstErr == nil {
		firstErr = err
	}
	if a.pg != nil {
		if err := a.pg.Close(); err != nil {
			a.log.WithError(err).Warn("error closing database connection")
		}
	}
	return firstErr
}
