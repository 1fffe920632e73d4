package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/claimcheck/internal/inference"
	"github.com/sells-group/claimcheck/internal/pipeline"
	"github.com/sells-group/claimcheck/internal/quality"
	"github.com/sells-group/claimcheck/internal/store"
)

// env bundles the wired pipeline and its store for command use.
type env struct {
	Store    store.ClaimStore
	Pipeline *pipeline.Pipeline
}

func (e *env) Close() {
	_ = e.Store.Close()
}

// openStore creates the configured store backend.
func openStore(ctx context.Context) (store.ClaimStore, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL)
	case "dynamo":
		return store.NewDynamo(ctx, cfg.Store.Dynamo)
	}
	return nil, eris.Errorf("unknown store driver: %s", cfg.Store.Driver)
}

// initEnv wires the analyzer, engine, store, and pipeline from config.
func initEnv(ctx context.Context) (*env, error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}

	p := pipeline.New(
		cfg,
		quality.New(cfg.Validation, cfg.Quality),
		inference.NewEngine(cfg.Inference),
		st,
	)

	return &env{Store: st, Pipeline: p}, nil
}
