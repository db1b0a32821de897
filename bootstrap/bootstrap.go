// Package bootstrap wires all dependencies and starts the application.
package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/victorteokw/docmap/adapters/clock"
	"github.com/victorteokw/docmap/adapters/hasher"
	"github.com/victorteokw/docmap/adapters/idgen"
	"github.com/victorteokw/docmap/adapters/memory"
	"github.com/victorteokw/docmap/adapters/metrics"
	"github.com/victorteokw/docmap/adapters/random"
	"github.com/victorteokw/docmap/adapters/session"
	"github.com/victorteokw/docmap/adapters/sqlite"
	"github.com/victorteokw/docmap/adapters/upload"
	"github.com/victorteokw/docmap/config"
	"github.com/victorteokw/docmap/core/demo"
	"github.com/victorteokw/docmap/core/engine"
	"github.com/victorteokw/docmap/core/persist"
	"github.com/victorteokw/docmap/core/registry"
	"github.com/victorteokw/docmap/core/relation"
	"github.com/victorteokw/docmap/core/validation"
	"github.com/victorteokw/docmap/ports"
)

// App is the wired application.
type App struct {
	Logger     zerolog.Logger
	Config     *config.Config
	Registry   *registry.Registry
	Engine     *engine.Engine
	Store      ports.DocumentStore
	Mediator   *persist.Mediator
	Tokens     *session.TokenService
	Uploads    *upload.Local
	Metrics    *metrics.Collector
	HTTPServer *http.Server
	holder     *config.Holder
}

// NewLogger builds the process logger from logging config.
func NewLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if cfg.Format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}

// New wires the application from a loaded configuration. holder may be nil
// when config came from the environment.
func New(cfg *config.Config, holder *config.Holder, logger zerolog.Logger) (*App, error) {
	app := &App{Logger: logger, Config: cfg, holder: holder}

	// Document store
	var store ports.DocumentStore
	switch cfg.Store.Driver {
	case "memory":
		store = memory.NewDocStore()
	default:
		s, err := sqlite.Open(cfg.Store.DSN)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		store = s
	}
	app.Store = store
	app.Mediator = persist.New(store, cfg.Store.Timeout, logger)

	// Schema
	app.Registry = registry.New()
	if err := demo.Register(app.Registry); err != nil {
		store.Close()
		return nil, fmt.Errorf("register schema: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, ent := range app.Registry.All() {
		spec := ports.CollectionSpec{Name: ent.Collection, Unique: ent.UniqueGroups()}
		if err := store.EnsureCollection(ctx, spec); err != nil {
			store.Close()
			return nil, fmt.Errorf("prepare collection %s: %w", ent.Collection, err)
		}
	}

	// Domain collaborators
	uploads, err := upload.NewLocal(cfg.Upload.Dir, cfg.Upload.BaseURL)
	if err != nil {
		store.Close()
		return nil, err
	}
	app.Uploads = uploads
	app.Metrics = metrics.New()
	app.Tokens = session.NewTokenService(cfg.Auth.TokenSecret, cfg.Auth.TokenTTL)

	hash := hasher.NewBcrypt(cfg.Hashing.BcryptCost)
	clk := clock.Real{}
	codes := random.Real{}
	pipe := validation.New(app.Mediator, hash, clk, codes, uploads)
	res := relation.New(app.Mediator, app.Registry)
	app.Engine = engine.New(app.Registry, app.Mediator, pipe, res, idgen.UUID{}, hash, logger, app.Metrics)

	if holder != nil {
		holder.OnChange(func(c *config.Config) { app.Metrics.ConfigReloads.Inc() })
		holder.OnError(func(error) { app.Metrics.ConfigReloadErrors.Inc() })
	}

	return app, nil
}
