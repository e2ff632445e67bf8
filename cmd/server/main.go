package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sleepstage-service/internal/ingest/healthapi"
	"sleepstage-service/internal/ingest/mqttsub"
	"sleepstage-service/internal/nights"
	"sleepstage-service/internal/platform/config"
	"sleepstage-service/internal/platform/logger"
	"sleepstage-service/internal/platform/metrics"
	"sleepstage-service/internal/storage/pgstore"
	"sleepstage-service/internal/storage/redisstore"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	shutdownTimeout = 10 * time.Second
	startupTimeout  = 10 * time.Second
)

func main() {
	_ = config.Load()
	cfg := config.FromEnv()

	log := logger.New(cfg.LogLevel, cfg.LogFormat, "sleepstage-service")

	repo, closer, err := openRepository(cfg)
	if err != nil {
		log.Error("store init failed", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}
	defer closer.Close()

	svc := nights.NewService(repo, cfg.SummaryWindowDays)
	if cfg.HealthAPIURL != "" {
		svc.WithSampleSource(healthapi.NewClient(cfg.HealthAPIURL, cfg.HealthAPIToken, cfg.HealthAPITimeout, log))
	}
	met := metrics.New()
	h := nights.NewHandler(svc, log, met)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met, "/metrics"))
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler(func() {
			if n, err := svc.NightCount(r.Context()); err == nil {
				met.SetStoredNights(n)
			}
		}).ServeHTTP(w, r)
	})
	r.Post("/nights", h.CreateNight)
	r.Route("/nights/{night_id}", func(r chi.Router) {
		r.Post("/samples", h.AddSamples)
		r.Post("/import", h.ImportSamples)
		r.Post("/stage", h.StageNight)
		r.Get("/segments", h.GetSegments)
		r.Get("/segments.xlsx", h.ExportSegments)
	})
	r.Get("/summary", h.GetSummary)

	var sub *mqttsub.Subscriber
	if cfg.MQTTBroker != "" {
		client, err := mqttsub.Connect(cfg.MQTTBroker, cfg.MQTTClientID, cfg.MQTTUsername, cfg.MQTTPassword)
		if err != nil {
			log.Error("mqtt connect failed", "broker", cfg.MQTTBroker, "error", err)
			os.Exit(1)
		}
		sub = mqttsub.New(client, cfg.MQTTTopic, svc, log, met)
		if err := sub.Start(); err != nil {
			log.Error("mqtt subscribe failed", "error", err)
			os.Exit(1)
		}
	}

	addr := ":" + cfg.Port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", cfg.Port,
		"store_backend", cfg.StoreBackend,
		"summary_window_days", cfg.SummaryWindowDays,
		"mqtt_enabled", sub != nil,
		"health_api_enabled", cfg.HealthAPIURL != "",
		"log_level", cfg.LogLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	if sub != nil {
		sub.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openRepository builds the Repository for the configured backend. The
// returned Closer releases the backend's connections.
func openRepository(cfg config.Config) (nights.Repository, io.Closer, error) {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	switch cfg.StoreBackend {
	case "", "memory":
		return nights.NewInMemoryRepository(), nopCloser{}, nil
	case "redis":
		client, err := redisstore.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		return nights.NewRepository(redisstore.New(client, cfg.RedisTTL)), client, nil
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, nil, fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
		db, err := pgstore.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		store := pgstore.New(db)
		if err := store.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return nights.NewRepository(store), db, nil
	default:
		return nil, nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
}
