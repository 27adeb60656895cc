// Package app builds the roomlog component graph with a samber/do injector.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/samber/do/v2"

	"github.com/pypydance/roomlog/internal/logging"
	"github.com/pypydance/roomlog/pkg/analyzer"
	"github.com/pypydance/roomlog/pkg/config"
	"github.com/pypydance/roomlog/pkg/ingest"
	"github.com/pypydance/roomlog/pkg/metrics"
	"github.com/pypydance/roomlog/pkg/store"
	"github.com/pypydance/roomlog/pkg/titles"
)

const storeInitTimeout = 15 * time.Second

// Options selects how the runner is built.
type Options struct {
	// DryRun analyzes without writing records or progress.
	DryRun bool

	// FromLine starts every file at this line instead of its stored marker.
	// Negative means use the stored marker.
	FromLine int
}

// App owns the injector and the resources its providers opened.
type App struct {
	injector do.Injector
	opts     Options

	mu      sync.Mutex
	closers []closer
}

type closer struct {
	name  string
	close func() error
}

// New registers every provider. Nothing is opened until first use.
func New(ctx context.Context, cfg *config.Config, opts Options) *App {
	a := &App{injector: do.New(), opts: opts}
	i := a.injector

	do.ProvideValue(i, cfg)
	do.ProvideValue(i, metrics.New())

	do.Provide(i, func(i do.Injector) (store.Store, error) {
		cfg := do.MustInvoke[*config.Config](i)
		ctx, cancel := context.WithTimeout(ctx, storeInitTimeout)
		defer cancel()

		st, err := store.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		a.onClose("store", st.Close)
		return st, nil
	})

	do.Provide(i, func(i do.Injector) (titles.Cache, error) {
		cfg := do.MustInvoke[*config.Config](i)
		cache, err := titles.OpenCache(cfg.TitleCache)
		if err != nil {
			return nil, err
		}
		a.onClose("title cache", cache.Close)
		return cache, nil
	})

	do.Provide(i, func(i do.Injector) (*titles.Resolver, error) {
		cfg := do.MustInvoke[*config.Config](i)
		m := do.MustInvoke[*metrics.Metrics](i)
		cache, err := do.Invoke[titles.Cache](i)
		if err != nil {
			return nil, err
		}

		var lookup titles.Lookup
		if cfg.YouTube.APIKey != "" {
			yt, err := titles.NewYouTubeLookup(ctx, cfg.YouTube, m)
			if err != nil {
				return nil, err
			}
			lookup = yt
		} else {
			logging.Info().Msg("No YouTube API key configured, titles come from log metadata")
		}
		return titles.NewResolver(cache, lookup, m), nil
	})

	do.Provide(i, func(i do.Injector) (*analyzer.Analyzer, error) {
		cfg := do.MustInvoke[*config.Config](i)
		resolver, err := do.Invoke[*titles.Resolver](i)
		if err != nil {
			return nil, err
		}

		analyzerOpts := []analyzer.AnalyzerOption{analyzer.WithTitleResolver(resolver)}
		if cfg.Consent.FromStore {
			st, err := do.Invoke[store.Store](i)
			if err != nil {
				return nil, err
			}
			names, err := st.ConsentedNames(ctx)
			if err != nil {
				return nil, fmt.Errorf("loading consented names: %w", err)
			}
			logging.Debug().Int("names", len(names)).Msg("Loaded consented names from store")
			analyzerOpts = append(analyzerOpts, analyzer.WithConsent(names))
		}
		return analyzer.NewAnalyzer(cfg, analyzerOpts...)
	})

	do.Provide(i, func(i do.Injector) (*ingest.Runner, error) {
		cfg := do.MustInvoke[*config.Config](i)
		m := do.MustInvoke[*metrics.Metrics](i)
		an, err := do.Invoke[*analyzer.Analyzer](i)
		if err != nil {
			return nil, err
		}

		runnerOpts := []ingest.Option{ingest.WithMetrics(m)}
		if a.opts.FromLine >= 0 {
			runnerOpts = append(runnerOpts, ingest.WithFromLine(a.opts.FromLine))
		}

		var st store.Store
		if a.opts.DryRun {
			runnerOpts = append(runnerOpts, ingest.WithDryRun())
		} else {
			if st, err = do.Invoke[store.Store](i); err != nil {
				return nil, err
			}
		}
		return ingest.NewRunner(cfg, st, an, runnerOpts...)
	})

	return a
}

// Runner returns the ingest runner, opening its dependencies.
func (a *App) Runner() (*ingest.Runner, error) {
	return do.Invoke[*ingest.Runner](a.injector)
}

// Store returns the persistence store, opening it on first use.
func (a *App) Store() (store.Store, error) {
	return do.Invoke[store.Store](a.injector)
}

// TitleCache returns the title cache, opening it on first use.
func (a *App) TitleCache() (titles.Cache, error) {
	return do.Invoke[titles.Cache](a.injector)
}

// Metrics returns the process metrics.
func (a *App) Metrics() *metrics.Metrics {
	return do.MustInvoke[*metrics.Metrics](a.injector)
}

func (a *App) onClose(name string, fn func() error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closers = append(a.closers, closer{name: name, close: fn})
}

// Close releases opened resources in reverse order of opening.
func (a *App) Close() error {
	a.mu.Lock()
	closers := a.closers
	a.closers = nil
	a.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", closers[i].name, err))
		}
	}
	return errors.Join(errs...)
}
