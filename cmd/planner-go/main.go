package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"airgrid/planner-go/internal/db"
	"airgrid/planner-go/internal/fleet"
	"airgrid/planner-go/internal/httpapi"
	"airgrid/planner-go/internal/inventory"
	"airgrid/planner-go/internal/metrics"
	"airgrid/planner-go/internal/telemetry"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	addr := envOr("HTTP_ADDR", ":8081")
	logLevel := envOr("LOG_LEVEL", "info")
	databaseURL := envOr("DATABASE_URL", "")
	zonesPath := envOr("ZONES_PATH", "")
	pollInterval := envDurationOr("INVENTORY_POLL_INTERVAL", 30*time.Second)
	mqttBroker := envOr("MQTT_BROKER", "")
	mqttTopic := envOr("MQTT_TOPIC", "airgrid/+/telemetry")
	mqttClientID := envOr("MQTT_CLIENT_ID", "planner-go")
	mqttUsername := envOr("MQTT_USERNAME", "")
	mqttPassword := envOr("MQTT_PASSWORD", "")

	logger := httpapi.NewLogger(logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	zones, err := fleet.LoadZoneRegistry(zonesPath)
	if err != nil {
		logger.Fatal().Err(err).Str("path", zonesPath).Msg("failed to load zone registry")
	}
	if names := zones.Zones(); len(names) > 0 {
		logger.Info().Strs("zones", names).Msg("zone registry loaded")
	}

	var pool *db.Pool
	if databaseURL != "" {
		p, err := db.Open(ctx, databaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer p.Close()
		pool = p
	}

	m := metrics.New()

	var q inventory.Queries
	if pool != nil {
		q = pool.Queries()
	}
	inv := inventory.New(logger, q, inventory.Options{
		PollInterval: pollInterval,
		Zones:        zones,
	}, m)
	if pool != nil {
		go inv.Run(ctx)
	}

	if mqttBroker != "" && pool != nil {
		ingest, err := telemetry.New(logger, pool.Queries(), telemetry.Config{
			Broker:   mqttBroker,
			ClientID: mqttClientID,
			Username: mqttUsername,
			Password: mqttPassword,
			Topic:    mqttTopic,
		})
		if err != nil {
			logger.Fatal().Err(err).Str("broker", mqttBroker).Msg("failed to connect to mqtt broker")
		}
		defer ingest.Close()
		if err := ingest.Subscribe(); err != nil {
			logger.Fatal().Err(err).Str("topic", mqttTopic).Msg("failed to subscribe to telemetry topic")
		}
	}

	h := httpapi.NewHandler(logger, pool, inv, m)
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("planner-go listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	logger.Info().Msg("shutdown complete")
}

func envOr(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
