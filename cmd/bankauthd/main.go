// Command bankauthd serves the account authentication API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goBankAuth "github.com/MrEthical07/goBankAuth"
	"github.com/MrEthical07/goBankAuth/delivery"
	"github.com/MrEthical07/goBankAuth/httpapi"
	promexport "github.com/MrEthical07/goBankAuth/metrics/export/prometheus"
	"github.com/MrEthical07/goBankAuth/sqlstore"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "bankauthd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() { _ = rdb.Close() }()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping failed, continuing", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	}

	store, err := sqlstore.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open user store: %w", err)
	}
	defer func() { _ = store.Close() }()
	logger.Info("user store ready", zap.String("driver", cfg.Database.Driver))

	sender, err := newSender(cfg, logger)
	if err != nil {
		return err
	}

	builder := goBankAuth.New().
		WithConfig(cfg.Engine).
		WithRedis(rdb).
		WithUserStore(store).
		WithSender(sender).
		WithLogger(logger)
	if cfg.Engine.Audit.Enabled {
		builder = builder.WithAuditSink(goBankAuth.NewZapAuditSink(logger))
	}
	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	defer engine.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		promexport.NewCollector(engine),
	)

	api := httpapi.NewServer(engine, httpapi.Options{
		Logger:         logger,
		AllowedOrigins: cfg.AllowedOrigins,
		Registerer:     registry,
		Gatherer:       registry,
		RequestTimeout: cfg.RequestTimeout,
		Checks: map[string]httpapi.HealthCheck{
			"redis": func(ctx context.Context) error {
				return rdb.Ping(ctx).Err()
			},
			"database": store.Ping,
		},
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
		return err
	}
	logger.Info("stopped")
	return nil
}

// newSender routes email through Resend and SMS through the webhook
// gateway. In development a channel without provider settings logs codes
// instead; elsewhere it is a startup error.
func newSender(cfg *config, logger *zap.Logger) (*delivery.Router, error) {
	router := delivery.NewRouter()

	if cfg.Email.ResendAPIKey != "" {
		email, err := delivery.NewResendSender(delivery.ResendConfig{
			APIKey:    cfg.Email.ResendAPIKey,
			FromEmail: cfg.Email.From,
			FromName:  cfg.Email.FromName,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("email sender: %w", err)
		}
		router.Handle(delivery.ChannelEmail, email)
	} else {
		if !cfg.Log.Dev {
			return nil, errors.New("RESEND_API_KEY is required outside development")
		}
		logger.Warn("RESEND_API_KEY not set, email codes go to the log")
		router.Handle(delivery.ChannelEmail, delivery.NewLogSender(logger))
	}

	if cfg.SMS.WebhookURL != "" {
		sms, err := delivery.NewWebhookSender(delivery.WebhookConfig{
			URL:       cfg.SMS.WebhookURL,
			AuthToken: cfg.SMS.WebhookToken,
			Timeout:   cfg.SMS.Timeout,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("sms sender: %w", err)
		}
		router.Handle(delivery.ChannelSMS, sms)
	} else {
		if !cfg.Log.Dev {
			return nil, errors.New("SMS_WEBHOOK_URL is required outside development")
		}
		logger.Warn("SMS_WEBHOOK_URL not set, sms codes go to the log")
		router.Handle(delivery.ChannelSMS, delivery.NewLogSender(logger))
	}

	return router, nil
}
