package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/riahtu/energy-saving/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
	defaultKeepAlive      = 60 * time.Second

	// defaultDisconnectQuiesce is in milliseconds, as paho expects.
	defaultDisconnectQuiesce = 1000

	maxQoS = 2
)

func brokerURL(b config.MQTTBrokerConfig) string {
	scheme := "tcp"
	if b.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, b.Host, b.Port)
}

// clientOptions builds paho options: clean session, auto reconnect with the
// configured backoff bounds, optional TLS 1.2+ and a retained offline will.
func clientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions().
		AddBroker(brokerURL(cfg.Broker)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(defaultConnectTimeout).
		SetKeepAlive(defaultKeepAlive)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	if will, err := newStatus(cfg.Broker.ClientID, StateOffline, ReasonLost).payload(); err == nil {
		opts.SetBinaryWill(Topics{}.SystemStatus(), will, 1, true)
	}
	return opts
}

// wait blocks on a paho token for at most timeout.
func wait(token pahomqtt.Token, timeout time.Duration) error {
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("timeout after %v", timeout)
	}
	return token.Error()
}
