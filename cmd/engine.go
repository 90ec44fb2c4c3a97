package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/forgepoint/gentuner/internal/genconfig"
	"github.com/forgepoint/gentuner/internal/recommend"
	"github.com/forgepoint/gentuner/internal/scorer"
	"github.com/forgepoint/gentuner/internal/store"
	"github.com/forgepoint/gentuner/internal/sweetspot"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.Path
		if path == "" {
			path = "gentuner.db"
		}
		return store.NewSQLite(path)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// engineEnv holds the migrated store and the tuning components built on top
// of it, as needed by the data commands and the server.
type engineEnv struct {
	Store      store.Store
	Scorer     *scorer.Scorer
	Analyzer   *sweetspot.Analyzer
	Resolver   *recommend.Resolver
	Calculator *genconfig.Calculator
}

// Close releases resources held by the engine environment.
func (e *engineEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEngine opens the store, applies migrations, and wires the scorer,
// analyzer, resolver, and calculator. Callers should defer env.Close().
func initEngine(ctx context.Context) (*engineEnv, error) {
	if err := cfg.Validate("cli"); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	sc, err := scorer.New(cfg.Scorer)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	analyzer := sweetspot.New(st, cfg.SweetSpot)

	// Threshold 0 defers to the analyzer's configured default.
	resolver := recommend.New(analyzer, 0)

	table := genconfig.DefaultTable()
	if cfg.GenConfig.DefaultsPath != "" {
		table, err = genconfig.LoadTable(cfg.GenConfig.DefaultsPath)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
	}

	calc, err := genconfig.New(resolver, table, cfg.GenConfig.Policy)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &engineEnv{
		Store:      st,
		Scorer:     sc,
		Analyzer:   analyzer,
		Resolver:   resolver,
		Calculator: calc,
	}, nil
}
