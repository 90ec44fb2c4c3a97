package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/forgepoint/gentuner/internal/api"
	"github.com/forgepoint/gentuner/internal/model"
	"github.com/forgepoint/gentuner/internal/monitoring"
	"github.com/forgepoint/gentuner/internal/store"
)

var (
	servePort      int
	serveNoMonitor bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long:  "Serves attempt ingestion, sweet-spot queries, recommendations, and plan computation over HTTP, with Prometheus metrics and a background drift checker.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		registry := prometheus.NewRegistry()
		metrics := monitoring.NewMetrics(registry)

		serverCfg := cfg.Server
		if servePort != 0 {
			serverCfg.Port = servePort
		}

		srv := api.NewServer(api.Deps{
			Store:      env.Store,
			Scorer:     env.Scorer,
			Analyzer:   env.Analyzer,
			Resolver:   env.Resolver,
			Calculator: env.Calculator,
			Metrics:    metrics,
			Registry:   registry,
		}, serverCfg)

		// Prime the sweet-spot cache so early requests hit warm entries.
		if scopes, err := warmScopes(ctx, env.Store); err != nil {
			zap.L().Warn("cache warm-up skipped", zap.Error(err))
		} else if len(scopes) > 0 {
			if err := env.Analyzer.WarmAll(ctx, scopes); err != nil {
				zap.L().Warn("cache warm-up incomplete", zap.Error(err))
			} else {
				zap.L().Info("sweet-spot cache warmed", zap.Int("scopes", len(scopes)))
			}
		}

		// Background drift checks.
		if !serveNoMonitor {
			checker := monitoring.NewChecker(
				monitoring.NewCollector(env.Store),
				monitoring.NewAlerter(cfg.Monitor),
				cfg.Monitor,
			)
			go checker.Run(ctx)
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", serverCfg.Port))
		return srv.Start()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveNoMonitor, "no-monitor", false, "disable the background drift checker")
	rootCmd.AddCommand(serveCmd)
}

// warmScopes lists the scopes worth priming, from recent store history.
func warmScopes(ctx context.Context, st store.Store) ([]model.Scope, error) {
	recs, err := st.Query(ctx, store.AttemptFilter{Limit: 10000})
	if err != nil {
		return nil, eris.Wrap(err, "serve: query scopes")
	}
	return distinctScopes(recs), nil
}
