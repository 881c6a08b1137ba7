package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/bid-intel/internal/access"
	"github.com/sells-group/bid-intel/internal/account"
	"github.com/sells-group/bid-intel/internal/api"
	"github.com/sells-group/bid-intel/internal/config"
	"github.com/sells-group/bid-intel/internal/estimator"
	"github.com/sells-group/bid-intel/internal/pricing"
)

const shutdownTimeout = 15 * time.Second

var (
	servePort    int
	serveMigrate bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the pricing API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer env.Close()

		if serveMigrate {
			if err := env.Store.Migrate(ctx); err != nil {
				return eris.Wrap(err, "migrate")
			}
		}

		handler, accounts := buildMux(cfg, env)

		pruner, err := startPruner(accounts, cfg.Usage)
		if err != nil {
			return err
		}
		if pruner != nil {
			defer pruner.Stop()
		}

		return startServer(ctx, handler, resolvePort(servePort, cfg.Server.Port), cfg.Server)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveMigrate, "migrate", false, "apply the schema before serving")
	rootCmd.AddCommand(serveCmd)
}

// buildMux wires the engine, gate, and estimator over the guarded querier.
func buildMux(c *config.Config, env *storeEnv) (http.Handler, *account.Service) {
	q := env.Querier
	accounts := account.New(q)
	engine := pricing.New(q, pricing.Options{
		WinningBidsOnly: c.Pricing.WinningBidsOnly,
		MaxResults:      c.Pricing.MaxResults,
	})
	est := estimator.New(engine, estimator.Options{
		MaxItems:    c.Estimator.MaxItems,
		Concurrency: c.Estimator.Concurrency,
	})

	return api.NewRouter(api.Deps{
		Engine:    engine,
		Gate:      access.NewGate(c.Access, accounts),
		Callers:   accounts,
		Estimator: est,
		Server:    c.Server,
		Pricing:   c.Pricing,
		Driver:    c.Store.Driver,
		Breaker:   env.Breaker,
	}), accounts
}

// resolvePort prefers the flag value over the configured port.
func resolvePort(flagPort, cfgPort int) int {
	if flagPort != 0 {
		return flagPort
	}
	return cfgPort
}

// startServer serves h until ctx is cancelled, then drains in-flight
// requests.
func startServer(ctx context.Context, h http.Handler, port int, sc config.ServerConfig) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Duration(sc.ReadTimeoutSecs) * time.Second,
		WriteTimeout:      time.Duration(sc.WriteTimeoutSecs) * time.Second,
	}

	done := make(chan error, 1)
	go func() {
		<-ctx.Done()
		zap.L().Info("shutting down server")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		done <- srv.Shutdown(sctx)
	}()

	zap.L().Info("starting server", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return eris.Wrap(err, "server listen")
	}
	return eris.Wrap(<-done, "server shutdown")
}

// startPruner schedules the daily usage cleanup. It returns nil when no
// schedule is configured.
func startPruner(accounts *account.Service, u config.UsageConfig) (*cron.Cron, error) {
	if u.PruneSchedule == "" || u.RetentionDays < 1 {
		return nil, nil
	}

	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(u.PruneSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := accounts.PruneUsage(ctx, u.RetentionDays); err != nil {
			zap.L().Error("prune search usage", zap.Error(err))
		}
	}); err != nil {
		return nil, eris.Wrapf(err, "usage.prune_schedule %q", u.PruneSchedule)
	}

	c.Start()
	zap.L().Info("usage pruning scheduled",
		zap.String("schedule", u.PruneSchedule),
		zap.Int("retention_days", u.RetentionDays),
	)
	return c, nil
}
