// main wires high-level dependencies and keeps the server lifecycle small.
// Consent lifecycle logic lives in internal services packages; this process
// serves only the operational endpoints.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"obconsent/internal/assertion"
	"obconsent/internal/audit"
	"obconsent/internal/consent"
	consentmetrics "obconsent/internal/consent/metrics"
	"obconsent/internal/consent/service"
	httpapi "obconsent/internal/http"
	"obconsent/internal/platform/config"
	"obconsent/internal/platform/httpserver"
	"obconsent/internal/platform/logger"
	platformredis "obconsent/internal/platform/redis"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	checks := map[string]httpapi.HealthChecker{}

	store, closeStore, err := buildStore(cfg.Store, checks)
	if err != nil {
		log.Error("failed to build consent store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	keys, err := buildKeyProvider(cfg.Assertion, log)
	if err != nil {
		log.Error("failed to load signing key", "error", err)
		os.Exit(1)
	}
	codec := assertion.NewCodec(keys, assertion.Config{
		Issuer:         cfg.Assertion.Issuer,
		Audience:       cfg.Assertion.Audience,
		TokenTTL:       cfg.Assertion.TokenTTL,
		TrustedIssuers: cfg.Assertion.TrustedIssuers,
	})

	publisher, closeAudit, err := buildAudit(cfg.Audit, log)
	if err != nil {
		log.Error("failed to build audit publisher", "error", err)
		os.Exit(1)
	}
	defer closeAudit()

	svc := service.New(store, codec, log,
		service.WithMetrics(consentmetrics.New()),
		service.WithAuditPublisher(publisher),
	)

	srv := httpserver.New(cfg.Addr, httpapi.NewRouter(httpapi.NewHandler(svc), checks))

	log.Info("starting obconsent", "addr", cfg.Addr, "store", string(cfg.Store.Backend))
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}

// buildStore selects the consent store backend and registers its readiness
// check.
func buildStore(cfg config.StoreConfig, checks map[string]httpapi.HealthChecker) (consent.Store, func(), error) {
	switch cfg.Backend {
	case config.StorePostgres:
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		store := consent.NewPostgres(db)
		if err := store.EnsureSchema(context.Background()); err != nil {
			db.Close()
			return nil, nil, err
		}
		checks["postgres"] = db.PingContext
		return store, func() { db.Close() }, nil

	case config.StoreRedis:
		client, err := platformredis.New(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		if client == nil {
			return nil, nil, errors.New("redis store selected but OBCONSENT_REDIS_URL is not set")
		}
		checks["redis"] = client.Health
		return consent.NewRedis(client.Client), func() { client.Close() }, nil

	default:
		return consent.NewInMemoryStore(), func() {}, nil
	}
}

// buildAudit wires the Kafka sink when brokers are configured, otherwise an
// in-memory sink. Either way events flow through an async publisher.
func buildAudit(cfg config.AuditConfig, log *slog.Logger) (*audit.Publisher, func(), error) {
	if cfg.Brokers == "" {
		publisher := audit.NewPublisher(audit.NewInMemoryStore(), log, audit.WithAsyncBuffer(cfg.Buffer))
		return publisher, publisher.Close, nil
	}

	sink, err := audit.NewKafkaSink(audit.KafkaConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.Topic,
	})
	if err != nil {
		return nil, nil, err
	}
	publisher := audit.NewPublisher(sink, log, audit.WithAsyncBuffer(cfg.Buffer))
	return publisher, func() {
		publisher.Close()
		sink.Close()
	}, nil
}
