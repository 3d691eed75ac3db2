package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"depot-backend/internal/cache"
	"depot-backend/internal/config"
	"depot-backend/internal/database"
	"depot-backend/internal/logger"
	"depot-backend/internal/metrics"
	"depot-backend/internal/telemetry"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	zlog, err := logger.New(cfg.LogLevel, cfg.LogEncoding, !cfg.IsProduction())
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = zlog.Sync() }()
	zap.ReplaceGlobals(zlog)

	for _, w := range cfg.Warnings() {
		zlog.Warn(w)
	}

	if err := run(cfg, zlog); err != nil {
		zlog.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, zlog *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Init(cfg); err != nil {
		return err
	}
	defer func() { _ = database.Close(database.DB) }()

	if cfg.RedisAddr != "" {
		client, err := cache.Connect(ctx, cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		cache.Default = cache.New(client, cfg.ReportCacheTTL)
		zlog.Info("report cache enabled", zap.String("addr", cfg.RedisAddr), zap.Duration("ttl", cfg.ReportCacheTTL))
	}

	m := metrics.New()

	var bridge *telemetry.Bridge
	if cfg.MQTTBrokerURL != "" {
		broker, err := telemetry.NewPahoBroker(cfg)
		if err != nil {
			return err
		}
		bridge = telemetry.NewBridge(broker, database.DB, telemetry.Options{
			Prefix:  cfg.MQTTTopicPrefix,
			QoS:     cfg.MQTTQoS,
			Metrics: m,
			Logger:  zlog,
		})
	} else {
		zlog.Info("MQTT_BROKER_URL not set, scale bridge disabled")
	}

	app := newApp(cfg, m, bridge)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		zlog.Info("http server listening", zap.String("port", cfg.HTTPPort))
		return app.Listen(":" + cfg.HTTPPort)
	})

	if bridge != nil {
		g.Go(func() error { return bridge.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		zlog.Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
