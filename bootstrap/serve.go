package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/victorteokw/docmap/core/schema"
	"github.com/victorteokw/docmap/web"
)

// Serve runs the HTTP server until the context is cancelled or a
// termination signal arrives, then shuts down gracefully.
func (a *App) Serve(ctx context.Context) error {
	handler := web.NewHandler(web.Deps{
		Engine:    a.Engine,
		Registry:  a.Registry,
		Tokens:    a.Tokens,
		Uploads:   a.Uploads,
		UploadDir: a.Uploads.Dir(),
		Metrics:   a.Metrics,
		Logger:    a.Logger,
	})

	metricsPath := ""
	if a.Config.Metrics.Enabled {
		metricsPath = a.Config.Metrics.Path
	}

	addr := fmt.Sprintf("%s:%d", a.Config.Server.Host, a.Config.Server.Port)
	a.HTTPServer = &http.Server{
		Addr:         addr,
		Handler:      handler.Router(metricsPath),
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}

	if a.holder != nil {
		if err := a.holder.WatchFile(); err != nil {
			a.Logger.Warn().Err(err).Msg("config watch unavailable")
		}
		a.holder.WatchSignals()
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("addr", addr).Msg("server listening")
		if err := a.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		a.Logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case <-ctx.Done():
		a.Logger.Info().Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := a.HTTPServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// SeedAdmin creates the first staff account when none exists. The create
// runs with a synthetic admin caller so the admin-only policy admits it.
func (a *App) SeedAdmin(ctx context.Context, username, password string) error {
	admins, err := a.Mediator.FindAll(ctx, "admins")
	if err != nil {
		return err
	}
	if len(admins) > 0 {
		return nil
	}

	caller := &schema.Identity{Entity: "admin", ID: "bootstrap"}
	doc, err := a.Engine.Create(ctx, "admin", map[string]any{
		"username": username,
		"password": password,
	}, caller)
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	a.Logger.Info().Str("id", doc["id"].(string)).Str("username", username).Msg("seeded first admin")
	return nil
}

// Close releases all held resources.
func (a *App) Close() {
	if a.holder != nil {
		a.holder.Stop()
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("close store")
		}
	}
}
