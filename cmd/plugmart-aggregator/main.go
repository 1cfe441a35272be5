// Command plugmart-aggregator runs the scheduled statistics rollup. It
// folds the purchase ledger into the per-plugin daily stats table and
// logs a weekly download leaderboard.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/plugmart/plugmart/pkg/analytics"
	"github.com/plugmart/plugmart/pkg/config"
	"github.com/plugmart/plugmart/pkg/database"
	"github.com/plugmart/plugmart/pkg/observability"
)

const (
	// Shortly after midnight UTC, once yesterday's ledger is final
	rollupSchedule = "15 0 * * *"
	// Monday mornings
	summarySchedule = "0 8 * * 1"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(cfg.Observability.LogLevel.String()); err == nil {
		log.SetLevel(level)
	}

	ctx := context.Background()
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		log.WithError(err).Fatal("failed to apply database schema")
	}

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	agg := analytics.NewAggregator(db, log, metrics)

	// Catch up immediately on start so a restarted aggregator never
	// leaves a gap for yesterday
	if err := agg.Run(ctx); err != nil {
		log.WithError(err).Error("initial aggregation failed")
	}

	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(rollupSchedule, func() {
		if err := agg.Run(ctx); err != nil {
			log.WithError(err).Error("daily aggregation failed")
		}
	}); err != nil {
		log.WithError(err).Fatal("failed to schedule daily rollup")
	}
	if _, err := c.AddFunc(summarySchedule, func() {
		agg.LogSummary(ctx)
	}); err != nil {
		log.WithError(err).Fatal("failed to schedule weekly summary")
	}

	c.Start()
	log.WithFields(logrus.Fields{
		"rollup_schedule":  rollupSchedule,
		"summary_schedule": summarySchedule,
	}).Info("aggregator started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("shutting down aggregator")
	<-c.Stop().Done()
}
