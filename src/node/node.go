// Package node wires the ledger to its storage, feed, metrics and HTTP
// surfaces.
package node

import (
	"context"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/onemorebsmith/casha-node/src/api"
	"github.com/onemorebsmith/casha-node/src/feed"
	"github.com/onemorebsmith/casha-node/src/ledger"
	"github.com/onemorebsmith/casha-node/src/metrics"
	"github.com/onemorebsmith/casha-node/src/model"
	"github.com/onemorebsmith/casha-node/src/postgres"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Run starts the node and blocks until ctx is cancelled or the api server
// fails.
func Run(ctx context.Context, cfg NodeConfig, logger *zap.Logger) error {
	cfg = cfg.withDefaults()
	opts := []ledger.Option{}

	var history ledger.JournalLoader
	if cfg.PostgresConfig != "" {
		postgres.ConfigurePostgres(cfg.PostgresConfig)
		if err := postgres.EnsureSchema(ctx); err != nil {
			return errors.Wrap(err, "failed preparing postgres schema")
		}
		journal := postgres.NewJournal()
		opts = append(opts, ledger.WithJournal(journal))
		history = journal
	} else {
		logger.Warn("no postgres configured, the ledger will not survive a restart")
	}

	var rd *redis.Client
	var recent api.RecentSource
	if cfg.RedisConfig != "" {
		rd = redis.NewClient(&redis.Options{Addr: cfg.RedisConfig})
		defer rd.Close()
		if err := rd.Ping(ctx).Err(); err != nil {
			return errors.Wrapf(err, "failed to connect to redis at %s", cfg.RedisConfig)
		}
		f := feed.NewRecentFeed(rd, cfg.FeedPrefix, cfg.FeedKeep, logger)
		opts = append(opts, ledger.WithObserver(f))
		recent = f
		go f.StartTrimmer(ctx, time.Minute)
	}

	l := ledger.New(cfg.Ledger, logger, opts...)
	if history != nil {
		if err := l.Restore(ctx, history); err != nil {
			return err
		}
	}

	if cfg.PromPort != "" {
		metrics.StartPromServer(logger, cfg.PromPort)
	}
	if cfg.HealthCheckPort != "" {
		go beginReadyzHandler(cfg.HealthCheckPort, rd, logger)
	}
	go StartStatsReporter(ctx, l, cfg.StatsInterval, logger)

	srv := api.NewServer(l, api.Options{
		Environment: cfg.Environment,
		Version:     cfg.Version,
		Recent:      recent,
	}, logger)
	return srv.ListenAndServe(ctx, cfg.ListenAddress)
}

// ReadyzHandler reports 200 once every configured backend answers a ping.
func ReadyzHandler(rd *redis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if postgres.Configured() {
			if err := postgres.Ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(errors.Wrap(err, "failed pinging postgres").Error()))
				return
			}
		}
		if rd != nil {
			if err := rd.Ping(r.Context()).Err(); err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(errors.Wrap(err, "failed pinging redis").Error()))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	}
}

func beginReadyzHandler(addr string, rd *redis.Client, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/readyz", ReadyzHandler(rd))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("health check server stopped", zap.Error(err))
	}
}

func StartStatsReporter(ctx context.Context, l *ledger.Ledger, delay time.Duration, logger *zap.Logger) error {
	ticker := time.NewTicker(delay)
	defer ticker.Stop()
	logger = logger.Named("stats")
	for {
		select {
		case <-ticker.C:
			ReportStats(l, logger)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func ReportStats(l *ledger.Ledger, logger *zap.Logger) model.DAGStats {
	stats := l.Stats()
	accounts := l.AccountCount()
	metrics.UpdateDAGGauges(stats.TotalTransactions, stats.ConfirmedTransactions, stats.PendingTransactions,
		stats.TipsCount, accounts)
	logger.Info("dag stats", zap.Int("transactions", stats.TotalTransactions),
		zap.Int("confirmed", stats.ConfirmedTransactions), zap.Int("pending", stats.PendingTransactions),
		zap.Int("tips", stats.TipsCount), zap.Int("accounts", accounts),
		zap.Duration("avg_confirmation", stats.AverageConfirmationTime),
		zap.String("health", string(stats.Health())))
	return stats
}
