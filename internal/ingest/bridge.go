package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/riahtu/energy-saving/internal/infrastructure/config"
	"github.com/riahtu/energy-saving/internal/infrastructure/mqtt"
	"github.com/riahtu/energy-saving/internal/timeseries"
)

// defaultWriteTimeout bounds one write when the config leaves it unset.
const defaultWriteTimeout = 10 * time.Second

// strictWrites rejects telemetry for device types, measurements or devices
// unknown to metadata.
var strictWrites = true

// MQTTClient is the subset of the MQTT client the bridge needs.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	PublishRetained(topic string, payload []byte) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Writer stores telemetry. It is satisfied by *timeseries.Service.
type Writer interface {
	Create(ctx context.Context, req timeseries.CreateRequest) (bool, error)
}

// Logger defines the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configure a Bridge.
type Options struct {
	Config config.IngestConfig

	// Precision of numeric epoch timestamps in payloads.
	Precision string

	// QoS used for subscriptions and rejection notices.
	QoS byte

	MQTT   MQTTClient
	Writer Writer
	Logger Logger
}

// Stats counts messages handled by the bridge.
type Stats struct {
	Received uint64 `json:"received"`
	Written  uint64 `json:"written"`
	Rejected uint64 `json:"rejected"`
}

// Bridge states published on the ingest status topic.
const (
	StateRunning = "running"
	StateStopped = "stopped"
)

// State is the retained message on the ingest status topic.
type State struct {
	State       string    `json:"state"`
	Datacenters []string  `json:"datacenters,omitempty"`
	Stats       Stats     `json:"stats"`
	Time        time.Time `json:"time"`
}

// Rejection is published when a telemetry message cannot be stored.
type Rejection struct {
	Topic string    `json:"topic"`
	Error string    `json:"error"`
	Time  time.Time `json:"time"`
}

// Bridge subscribes to telemetry topics and writes each reading through the
// time-series service.
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	mqtt         MQTTClient
	writer       Writer
	precision    string
	qos          byte
	writeTimeout time.Duration
	datacenters  map[string]bool

	ctx       context.Context
	ctxCancel context.CancelFunc
	topics    []string
	mu        sync.Mutex
	stopOnce  sync.Once

	received atomic.Uint64
	written  atomic.Uint64
	rejected atomic.Uint64

	logger Logger
	now    func() time.Time
}

// NewBridge creates a bridge. Call Start to subscribe.
func NewBridge(opts Options) (*Bridge, error) {
	if opts.MQTT == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Writer == nil {
		return nil, fmt.Errorf("writer is required")
	}

	timeout := time.Duration(opts.Config.WriteTimeout) * time.Second
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}

	b := &Bridge{
		mqtt:         opts.MQTT,
		writer:       opts.Writer,
		precision:    opts.Precision,
		qos:          opts.QoS,
		writeTimeout: timeout,
		datacenters:  make(map[string]bool, len(opts.Config.Datacenters)),
		logger:       opts.Logger,
		now:          time.Now,
	}
	if b.logger == nil {
		b.logger = noopLogger{}
	}
	for _, dc := range opts.Config.Datacenters {
		b.datacenters[dc] = true
	}
	b.ctx, b.ctxCancel = context.WithCancel(context.Background())
	return b, nil
}

// Start subscribes to the telemetry of every accepted datacenter, or of all
// datacenters when none are configured.
func (b *Bridge) Start(ctx context.Context) error {
	topics := []string{mqtt.Topics{}.AllTelemetry()}
	if len(b.datacenters) > 0 {
		topics = topics[:0]
		for _, dc := range b.acceptedDatacenters() {
			topics = append(topics, mqtt.Topics{}.DatacenterTelemetry(dc))
		}
	}

	for _, topic := range topics {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.mqtt.Subscribe(topic, b.qos, b.handleMessage); err != nil {
			return fmt.Errorf("subscribe to %s: %w", topic, err)
		}
		b.mu.Lock()
		b.topics = append(b.topics, topic)
		b.mu.Unlock()
		b.logger.Info("subscribed to telemetry", "topic", topic)
	}
	b.publishState(StateRunning)
	return nil
}

// Stop unsubscribes and cancels in-flight writes.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		b.ctxCancel()

		b.mu.Lock()
		topics := b.topics
		b.topics = nil
		b.mu.Unlock()

		for _, topic := range topics {
			if err := b.mqtt.Unsubscribe(topic); err != nil {
				b.logger.Warn("unsubscribe failed", "topic", topic, "error", err)
			}
		}
		b.publishState(StateStopped)
		b.logger.Info("ingest bridge stopped")
	})
}

// Stats returns message counters.
func (b *Bridge) Stats() Stats {
	return Stats{
		Received: b.received.Load(),
		Written:  b.written.Load(),
		Rejected: b.rejected.Load(),
	}
}

func (b *Bridge) publishState(state string) {
	payload, err := json.Marshal(State{
		State:       state,
		Datacenters: b.acceptedDatacenters(),
		Stats:       b.Stats(),
		Time:        b.now().UTC(),
	})
	if err != nil {
		return
	}
	if err := b.mqtt.PublishRetained(mqtt.Topics{}.IngestStatus(), payload); err != nil {
		b.logger.Warn("publishing ingest state failed", "state", state, "error", err)
	}
}

// handleMessage stores one telemetry message. Failures are reported on the
// datacenter's rejection topic and returned for the MQTT client to log.
func (b *Bridge) handleMessage(topic string, payload []byte) error {
	b.received.Add(1)

	err := b.ingest(topic, payload)
	if err == nil {
		b.written.Add(1)
		return nil
	}

	b.rejected.Add(1)
	b.logger.Warn("telemetry rejected", "topic", topic, "error", err)
	b.publishRejection(topic, err)
	return err
}

func (b *Bridge) ingest(topic string, payload []byte) error {
	t, err := mqtt.ParseTelemetryTopic(topic)
	if err != nil {
		return err
	}
	if len(b.datacenters) > 0 && !b.datacenters[t.Datacenter] {
		return fmt.Errorf("%w: %s", ErrDatacenterNotAccepted, t.Datacenter)
	}

	points, err := decodeReadings(payload, b.precision, b.now)
	if err != nil {
		return err
	}

	req := timeseries.CreateRequest{
		Datacenter: t.Datacenter,
		DeviceType: timeseries.One(t.DeviceType),
		Data: timeseries.Result{
			{DeviceType: t.DeviceType, Measurement: t.Measurement, Device: t.Device}: points,
		},
		Precision: b.precision,
		Strict:    &strictWrites,
	}

	ctx, cancel := context.WithTimeout(b.ctx, b.writeTimeout)
	defer cancel()

	ok, err := b.writer.Create(ctx, req)
	if err != nil {
		return err
	}
	if !ok {
		return ErrWriteRejected
	}
	b.logger.Debug("telemetry stored", "topic", topic, "samples", len(points))
	return nil
}

func (b *Bridge) publishRejection(topic string, cause error) {
	t, err := mqtt.ParseTelemetryTopic(topic)
	if err != nil || errors.Is(cause, ErrDatacenterNotAccepted) {
		return
	}

	payload, err := json.Marshal(Rejection{Topic: topic, Error: cause.Error(), Time: b.now().UTC()})
	if err != nil {
		return
	}
	if err := b.mqtt.Publish(mqtt.Topics{}.IngestRejected(t.Datacenter), payload, b.qos, false); err != nil {
		b.logger.Error("publishing rejection failed", "topic", topic, "error", err)
	}
}

func (b *Bridge) acceptedDatacenters() []string {
	out := make([]string, 0, len(b.datacenters))
	for dc := range b.datacenters {
		out = append(out, dc)
	}
	sort.Strings(out)
	return out
}
