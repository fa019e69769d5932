package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"gorm.io/gorm"

	"github.com/yungbote/lakeflow/internal/data/db"
	"github.com/yungbote/lakeflow/internal/data/repos/runs"
	"github.com/yungbote/lakeflow/internal/jobs/pipeline/lake_build"
	"github.com/yungbote/lakeflow/internal/lake"
	"github.com/yungbote/lakeflow/internal/observability"
	"github.com/yungbote/lakeflow/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	Cfg      *Config
	Store    ObjectStore
	Session  *lake.Session
	DB       *gorm.DB
	Runs     runs.RunRepo
	Metrics  *observability.Metrics
	Pipeline *lake_build.Pipeline

	otelShutdown func(context.Context) error
}

func New(ctx context.Context, cfg *Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: missing config")
	}
	log, err := logger.New(cfg.LogMode, logger.Options{
		Redact:   cfg.LogRedaction || isProductionMode(cfg.LogMode),
		HashSalt: cfg.LogHashSalt,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init timezone: %w", err)
	}

	a := &App{Log: log, Cfg: cfg}
	a.otelShutdown = observability.InitOTel(ctx, log, cfg.Otel)

	a.Store, err = resolveObjectStore(ctx, log, cfg)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}
	a.Session, err = lake.NewSession(a.Store, log, lake.Options{
		Workers:   cfg.Workers,
		Location:  loc,
		MultiLine: cfg.MultiLine,
	})
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("init engine: %w", err)
	}

	if strings.TrimSpace(cfg.LedgerDSN) != "" {
		a.DB, err = db.Open(cfg.LedgerDSN, log)
		if err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("init run ledger: %w", err)
		}
		a.Runs = runs.NewRunRepo(a.DB, log)
	}

	a.Metrics = observability.NewMetrics()
	quality := observability.NewDataQualityReporter(log, a.Metrics, cfg.DataQuality)
	a.Pipeline = lake_build.New(log, a.Session, cfg.Profile, a.Runs, a.Metrics, quality)

	log.Info("App initialized",
		"profile", cfg.Profile,
		"workers", cfg.Workers,
		"timezone", loc.String(),
		"ledger", a.DB != nil,
	)
	return a, nil
}

// Build runs the pipeline over the active profile's paths.
func (a *App) Build(ctx context.Context, out io.Writer) (lake_build.Result, error) {
	if a == nil || a.Pipeline == nil {
		return lake_build.Result{}, fmt.Errorf("app not initialized")
	}
	p := a.Cfg.Paths()
	return a.Pipeline.Run(ctx, lake_build.Input{
		EventsInput:  p.EventsInput,
		CatalogInput: p.CatalogInput,
		OutputRoot:   p.OutputRoot,
	}, out)
}

// Close releases every resource New acquired. It is safe on a partially
// built App.
func (a *App) Close(ctx context.Context) error {
	if a == nil {
		return nil
	}
	var errs []error
	if a.Metrics != nil && a.Cfg != nil {
		if err := a.Metrics.WriteTextfile(a.Cfg.MetricsFile); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Session != nil {
		if err := a.Session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close engine: %w", err))
		}
		a.Session = nil
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close ledger: %w", err))
			}
		}
		a.DB = nil
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
		a.Store = nil
	}
	if a.otelShutdown != nil {
		if err := a.otelShutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("otel shutdown: %w", err))
		}
		a.otelShutdown = nil
	}
	if a.Log != nil {
		a.Log.Sync()
	}
	return errors.Join(errs...)
}

func isProductionMode(mode string) bool {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "prod", "production":
		return true
	}
	return false
}
