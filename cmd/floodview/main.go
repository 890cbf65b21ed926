package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	httpadapter "github.com/couchcryptid/flood-extent-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/flood-extent-service/internal/adapter/kafka"
	"github.com/couchcryptid/flood-extent-service/internal/app"
	"github.com/couchcryptid/flood-extent-service/internal/config"
	"github.com/couchcryptid/flood-extent-service/internal/domain"
	"github.com/couchcryptid/flood-extent-service/internal/observability"
	"github.com/couchcryptid/flood-extent-service/internal/session"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	deps, err := app.New(cfg, logger, metrics)
	if err != nil {
		logger.Error("failed to build components", "error", err)
		os.Exit(1)
	}

	memory := session.NewMemorySink(cfg.CommandBuffer)
	sinks := session.NewMultiSink(logger, metrics).
		Add("memory", memory).
		Add("log", session.NewLogSink(logger))

	var (
		publisher *kafkaadapter.Publisher
		kafkaSink *session.AsyncSink
	)
	if cfg.KafkaEnabled() {
		publisher = kafkaadapter.NewPublisher(cfg, logger)
		kafkaSink = session.NewAsyncSink("kafka", publisher, cfg.CommandBuffer, logger, metrics)
		sinks.Add("kafka", kafkaSink)
		logger.Info("kafka command sink enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaCommandTopic)
	} else {
		logger.Info("kafka command sink disabled")
	}

	var opts []session.Option
	store, err := deps.OpenArchive()
	if err != nil {
		logger.Error("failed to open archive", "path", cfg.ArchivePath, "error", err)
		os.Exit(1)
	}
	if store != nil {
		opts = append(opts, session.WithRecorder(store))
		logger.Info("discovery archive enabled", "path", store.Path())
	}

	sess := session.New(deps.Discovery, deps.Summaries, deps.Controller, sinks, deps.SessionConfig(), logger, metrics, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := sess.Start(ctx); err != nil && !errors.Is(err, domain.ErrNoData) {
		logger.Error("session start failed", "error", err)
		os.Exit(1)
	}

	var scheduler *cron.Cron
	if cfg.RefreshSchedule != "" {
		scheduler = cron.New()
		if _, err := scheduler.AddFunc(cfg.RefreshSchedule, func() {
			if err := sess.Refresh(ctx); err != nil {
				logger.Warn("scheduled refresh", "error", err)
			}
		}); err != nil {
			logger.Error("invalid refresh schedule", "schedule", cfg.RefreshSchedule, "error", err)
			os.Exit(1)
		}
		scheduler.Start()
		logger.Info("scheduled refresh enabled", "schedule", cfg.RefreshSchedule)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, sess, memory, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	sess.Close()
	if kafkaSink != nil {
		if err := kafkaSink.Close(shutdownCtx); err != nil {
			logger.Error("kafka sink drain error", "error", err)
		}
		if err := publisher.Close(); err != nil {
			logger.Error("kafka publisher close error", "error", err)
		}
	}
	if store != nil {
		if err := store.Close(); err != nil {
			logger.Error("archive close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
