// Package main wires together the directory health monitor service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/listforge/dirwatch/internal/alert"
	pubsubsink "github.com/listforge/dirwatch/internal/alert/pubsub"
	"github.com/listforge/dirwatch/internal/api"
	"github.com/listforge/dirwatch/internal/catalog"
	"github.com/listforge/dirwatch/internal/clock/system"
	"github.com/listforge/dirwatch/internal/config"
	"github.com/listforge/dirwatch/internal/health"
	"github.com/listforge/dirwatch/internal/logging"
	"github.com/listforge/dirwatch/internal/metrics"
	"github.com/listforge/dirwatch/internal/monitor"
	"github.com/listforge/dirwatch/internal/probe"
	"github.com/listforge/dirwatch/internal/sched"
	gcsarchive "github.com/listforge/dirwatch/internal/storage/gcs"
	"github.com/listforge/dirwatch/internal/storage/postgres"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		logger.Fatal("load catalog failed", zap.Error(err))
	}
	logger.Info("catalog loaded", zap.Int("directories", cat.Len()))

	metrics.Init()
	clock := system.New()
	store := health.NewStore(cat, clock)

	engine := probe.New(probe.Config{
		Timeout:      cfg.ProbeTimeout(),
		UserAgent:    cfg.Probe.UserAgent,
		PerHostRPS:   cfg.Probe.PerHostRPS,
		PerHostBurst: cfg.Probe.PerHostBurst,
		MaxBodyBytes: cfg.Probe.MaxBodyBytes,
		Weights: probe.Weights{
			Captcha:         cfg.AntiBot.CaptchaWeight,
			Edge:            cfg.AntiBot.EdgeWeight,
			RateLimit:       cfg.AntiBot.RateLimitWeight,
			JSChallenge:     cfg.AntiBot.JSChallengeWeight,
			Denial:          cfg.AntiBot.DenialWeight,
			MediumThreshold: cfg.AntiBot.MediumThreshold,
			HighThreshold:   cfg.AntiBot.HighThreshold,
		},
	}, logger.Named("probe"))

	policy := alert.NewPolicy(alert.Thresholds{
		ResponseTimeWarnMs:   float64(cfg.Thresholds.ResponseTimeWarnMs),
		SuccessRateCritical:  cfg.Thresholds.SuccessRateCritical,
		SelectorAccuracyWarn: cfg.Thresholds.SelectorAccuracyWarn,
	}, clock)

	deliveryTimeout := time.Duration(cfg.Alerting.DeliveryTimeoutMs) * time.Millisecond
	sinks := []monitor.AlertSink{alert.NewLogSink(logger.Named("alerts"))}
	if cfg.Alerting.WebhookURL != "" {
		sinks = append(sinks, alert.NewWebhookSink(cfg.Alerting.WebhookURL, deliveryTimeout))
	}
	if cfg.Alerting.PubSubProjectID != "" && cfg.Alerting.PubSubTopic != "" {
		psSink, psErr := pubsubsink.Connect(ctx, cfg.Alerting.PubSubProjectID, cfg.Alerting.PubSubTopic)
		if psErr != nil {
			logger.Warn("pubsub sink init failed", zap.Error(psErr))
		} else {
			sinks = append(sinks, psSink)
		}
	}
	sink := alert.NewMulti(deliveryTimeout, logger.Named("delivery"), sinks...)

	var journal monitor.Journal
	if cfg.Storage.PostgresDSN != "" {
		history, hErr := postgres.NewHistoryStore(ctx, postgres.HistoryStoreConfig{
			DSN: cfg.Storage.PostgresDSN,
		})
		if hErr != nil {
			logger.Warn("history store init failed", zap.Error(hErr))
		} else {
			defer history.Close()
			journal = history
		}
	}

	var archiver monitor.Archiver
	if cfg.Storage.GCSBucket != "" {
		client, gErr := storage.NewClient(ctx)
		if gErr != nil {
			logger.Warn("gcs client init failed", zap.Error(gErr))
		} else {
			arc, aErr := gcsarchive.New(client, gcsarchive.Config{
				Bucket: cfg.Storage.GCSBucket,
				Prefix: cfg.Storage.GCSPrefix,
			})
			if aErr != nil {
				logger.Warn("archiver init failed", zap.Error(aErr))
			} else {
				archiver = arc
			}
		}
	}

	governor := sched.NewGovernor(
		time.Duration(cfg.Governor.MaxCostPerDirectoryMs)*time.Millisecond,
		cfg.Governor.WindowSize,
	)
	scheduler := sched.New(sched.Config{
		BatchSize:     cfg.Schedule.BatchSize,
		BatchInterval: cfg.BatchInterval(),
		CycleInterval: cfg.CycleInterval(),
	}, cat, engine, store, policy, sink, governor, archiver, journal, logger.Named("sched"))

	apiServer := api.NewServer(store, cat, logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("scheduler started")
		scheduler.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
