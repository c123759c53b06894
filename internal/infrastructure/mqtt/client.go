package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/riahtu/energy-saving/internal/infrastructure/config"
)

// Logger is the logging subset the client uses.
// Satisfied by *logging.Logger and *slog.Logger.
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

// MessageHandler receives one message. Handlers run on paho's delivery
// goroutines; a returned error is logged and the message is still acked.
type MessageHandler func(topic string, payload []byte) error

// Client is the broker connection shared by the ingest bridge and the
// status publisher. Subscriptions survive reconnects.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig

	connected atomic.Bool

	mu           sync.RWMutex
	handlers     map[string]route
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

type route struct {
	qos     byte
	handler MessageHandler
}

// Connect dials the broker and waits for the first connection. The broker
// is told to publish an "offline" status on energysaving/system/status if
// the process dies without closing the client.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{
		cfg:      cfg,
		handlers: make(map[string]route),
		logger:   noopLogger{},
	}

	opts := clientOptions(cfg)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.onConnected() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.onConnectionLost(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		c.log().Warn("MQTT reconnecting", "broker", brokerURL(cfg.Broker))
	})

	c.client = pahomqtt.NewClient(opts)
	if err := wait(c.client.Connect(), defaultConnectTimeout); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The connect handler runs asynchronously; callers may use the client
	// before it fires.
	c.connected.Store(true)
	return c, nil
}

func (c *Client) onConnected() {
	c.connected.Store(true)

	c.mu.RLock()
	routes := make(map[string]route, len(c.handlers))
	for topic, r := range c.handlers {
		routes[topic] = r
	}
	callback := c.onConnect
	c.mu.RUnlock()

	for topic, r := range routes {
		if err := wait(c.client.Subscribe(topic, r.qos, c.wrapHandler(r.handler)), defaultPublishTimeout); err != nil {
			c.log().Error("restoring subscription failed", "topic", topic, "error", err)
		}
	}
	c.publishStatus(StateOnline, "")

	if callback != nil {
		callback()
	}
}

func (c *Client) onConnectionLost(err error) {
	c.connected.Store(false)

	c.mu.RLock()
	callback := c.onDisconnect
	c.mu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

func (c *Client) publishStatus(state, reason string) {
	payload, err := newStatus(c.cfg.Broker.ClientID, state, reason).payload()
	if err != nil {
		c.log().Error("encoding status failed", "error", err)
		return
	}
	token := c.client.Publish(Topics{}.SystemStatus(), byte(c.cfg.QoS), true, payload)
	if err := wait(token, defaultPublishTimeout); err != nil {
		c.log().Warn("publishing status failed", "state", state, "error", err)
	}
}

// Close publishes a graceful offline status and disconnects.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	if c.IsConnected() {
		c.publishStatus(StateOffline, ReasonShutdown)
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	c.connected.Store(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the broker is unreachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected returns the last known connection state.
func (c *Client) IsConnected() bool {
	return c.client != nil && c.connected.Load() && c.client.IsConnected()
}

// SetOnConnect registers a callback for every (re)connection.
func (c *Client) SetOnConnect(callback func()) {
	c.mu.Lock()
	c.onConnect = callback
	c.mu.Unlock()
}

// SetOnDisconnect registers a callback for a lost connection.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.mu.Lock()
	c.onDisconnect = callback
	c.mu.Unlock()
}

// SetLogger sets the client's logger. Nil discards log output.
func (c *Client) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) log() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.logger == nil {
		return noopLogger{}
	}
	return c.logger
}

// wrapHandler adapts a MessageHandler to paho, recovering panics so one bad
// message cannot stop delivery.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.log().Error("MQTT handler panic recovered", "topic", msg.Topic(), "panic", r)
			}
		}()
		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.log().Debug("MQTT handler returned error", "topic", msg.Topic(), "error", err)
		}
	}
}
