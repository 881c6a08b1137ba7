package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bid-intel/internal/config"
	"github.com/sells-group/bid-intel/internal/db"
	"github.com/sells-group/bid-intel/internal/resilience"
	"github.com/sells-group/bid-intel/internal/store"
)

// storeEnv is an open store plus the breaker-guarded read path handed to
// the engine and account service.
type storeEnv struct {
	Store   store.Store
	Querier db.Querier
	Breaker *resilience.Breaker
}

// Close releases the underlying connection.
func (e *storeEnv) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("close store", zap.Error(err))
	}
}

// initStore opens the configured backend, retrying transient connect
// failures.
func initStore(ctx context.Context, c *config.Config) (*storeEnv, error) {
	policy, breakerCfg := resilience.FromConfig(c.Resilience, c.Store.Driver)

	st, err := resilience.Retry(ctx, policy, func(ctx context.Context) (store.Store, error) {
		return store.Open(ctx, c.Store)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "open %s store", c.Store.Driver)
	}

	b := resilience.NewBreaker(breakerCfg)
	zap.L().Info("store ready", zap.String("driver", c.Store.Driver))
	return &storeEnv{
		Store:   st,
		Querier: resilience.GuardQuerier(st.Querier(), b),
		Breaker: b,
	}, nil
}
