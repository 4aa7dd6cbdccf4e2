// Package telemetry ingests device uptime/error-margin reports from an
// MQTT broker and folds them into the store's telemetry rollups, keeping
// the criticality inputs fresh between inventory polls. The ingest is
// optional; the planner works off whatever rollups the store has.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"airgrid/planner-go/internal/sqlcgen"
)

// Store is the minimal DB interface the ingest needs. *sqlcgen.Queries
// satisfies this.
type Store interface {
	UpsertDeviceTelemetry(ctx context.Context, arg sqlcgen.UpsertDeviceTelemetryParams) error
}

// Report is the wire payload a monitor publishes after each reporting
// window.
type Report struct {
	DeviceID       string  `json:"device_id"`
	UptimeHours    float64 `json:"uptime_hours"`
	ErrorMarginPct float64 `json:"error_margin_pct"`
}

// Config holds the MQTT ingest configuration.
type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	// Topic is the subscription pattern, e.g. "devices/+/telemetry"; the
	// wildcard segment carries the device id when the payload omits it.
	Topic        string
	WriteTimeout time.Duration
}

type Ingest struct {
	log          zerolog.Logger
	client       mqtt.Client
	store        Store
	topic        string
	writeTimeout time.Duration
}

// New connects to the broker and returns an ingest ready to Subscribe.
func New(log zerolog.Logger, store Store, cfg Config) (*Ingest, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("mqtt connection lost")
	})
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Info().Str("broker", cfg.Broker).Msg("mqtt connected")
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to mqtt broker: %w", token.Error())
	}

	wt := cfg.WriteTimeout
	if wt <= 0 {
		wt = 5 * time.Second
	}

	return &Ingest{
		log:          log,
		client:       client,
		store:        store,
		topic:        cfg.Topic,
		writeTimeout: wt,
	}, nil
}

// Subscribe starts consuming telemetry reports. Malformed messages are
// logged and dropped; a bad publisher must not stall the feed.
func (i *Ingest) Subscribe() error {
	token := i.client.Subscribe(i.topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		i.handleMessage(msg.Topic(), msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("subscribe %s: %w", i.topic, token.Error())
	}
	i.log.Info().Str("topic", i.topic).Msg("telemetry ingest subscribed")
	return nil
}

func (i *Ingest) handleMessage(topic string, payload []byte) {
	report, err := parseReport(topic, payload)
	if err != nil {
		i.log.Warn().Err(err).Str("topic", topic).Msg("dropping malformed telemetry report")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), i.writeTimeout)
	defer cancel()

	if err := i.store.UpsertDeviceTelemetry(ctx, sqlcgen.UpsertDeviceTelemetryParams{
		DeviceID:       report.DeviceID,
		UptimeHours:    report.UptimeHours,
		ErrorMarginPct: report.ErrorMarginPct,
	}); err != nil {
		i.log.Error().Err(err).Str("device_id", report.DeviceID).Msg("telemetry rollup write failed")
		return
	}

	i.log.Debug().
		Str("device_id", report.DeviceID).
		Float64("uptime_hours", report.UptimeHours).
		Float64("error_margin_pct", report.ErrorMarginPct).
		Msg("telemetry report ingested")
}

// Close disconnects from the broker, letting in-flight handlers finish.
func (i *Ingest) Close() {
	if i == nil || i.client == nil {
		return
	}
	i.client.Disconnect(250)
}

func parseReport(topic string, payload []byte) (Report, error) {
	var r Report
	if err := json.Unmarshal(payload, &r); err != nil {
		return Report{}, fmt.Errorf("decode report: %w", err)
	}

	if r.DeviceID == "" {
		r.DeviceID = deviceIDFromTopic(topic)
	}
	if r.DeviceID == "" {
		return Report{}, fmt.Errorf("report has no device id (topic %q)", topic)
	}
	if r.UptimeHours < 0 || r.UptimeHours > 24 {
		return Report{}, fmt.Errorf("uptime hours out of range: %v", r.UptimeHours)
	}
	if r.ErrorMarginPct < 0 {
		return Report{}, fmt.Errorf("negative error margin: %v", r.ErrorMarginPct)
	}
	return r, nil
}

// deviceIDFromTopic extracts the id from "devices/<id>/telemetry"-shaped
// topics; returns "" when the topic has no middle segment.
func deviceIDFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
