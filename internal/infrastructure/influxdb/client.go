package influxdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	client "github.com/influxdata/influxdb/client/v2"

	"github.com/riahtu/energy-saving/internal/infrastructure/config"
)

// Default timeouts for InfluxDB operations.
const (
	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second
	defaultRequestTimeout = 30 * time.Second

	// compatUsername is sent with the token when a 2.x server is queried
	// through its 1.x compatibility endpoint.
	compatUsername = "energysaving"
)

// Client is a time-series session over InfluxDB.
//
// Queries always use InfluxQL through the 1.x HTTP API. Against a 2.x server
// (api_version 2) they go through the 1.x compatibility endpoint with the
// token as password, and writes and deletes use the 2.x token API.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Writes are blocking; each call returns once the server has accepted the batch.
type Client struct {
	v1  client.Client
	v2  influxdb2.Client
	cfg config.InfluxDBConfig

	// database is the 1.x database (or mapped 2.x bucket) queries run against.
	database string

	// connected tracks current connection state.
	connected bool
	mu        sync.RWMutex
}

// Connect establishes a session with the InfluxDB server.
//
// It performs the following setup:
//  1. Creates the InfluxQL HTTP client (basic auth or token compatibility auth)
//  2. For api_version 2, creates the token client used for writes and deletes
//  3. Verifies connectivity with a ping
//
// Returns ErrDisabled if InfluxDB is disabled in configuration.
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	httpCfg := client.HTTPConfig{
		Addr:     cfg.URL,
		Username: cfg.Username,
		Password: cfg.Password,
		Timeout:  timeout,
	}
	database := cfg.Database
	if cfg.APIVersion == config.InfluxAPIv2 {
		if httpCfg.Username == "" {
			httpCfg.Username = compatUsername
		}
		httpCfg.Password = cfg.Token
		if database == "" {
			database = cfg.Bucket
		}
	}

	v1, err := client.NewHTTPClient(httpCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c := &Client{
		v1:       v1,
		cfg:      cfg,
		database: database,
	}

	if cfg.APIVersion == config.InfluxAPIv2 {
		c.v2 = influxdb2.NewClientWithOptions(
			cfg.URL,
			cfg.Token,
			influxdb2.DefaultOptions().
				SetHTTPRequestTimeout(uint(timeout/time.Second)). // #nosec G115 -- positive by construction
				SetPrecision(time.Nanosecond),
		)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()

	if err := c.ping(pingCtx); err != nil {
		c.closeClients()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c.connected = true
	return c, nil
}

// ping checks the server with whichever API the session writes through.
func (c *Client) ping(ctx context.Context) error {
	if c.v2 != nil {
		healthy, err := c.v2.Ping(ctx)
		if err != nil {
			return fmt.Errorf("ping failed: %w", err)
		}
		if !healthy {
			return fmt.Errorf("server not healthy")
		}
		return nil
	}

	timeout := defaultPingTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if _, _, err := c.v1.Ping(timeout); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

func (c *Client) closeClients() {
	if c.v1 != nil {
		c.v1.Close() //nolint:errcheck // HTTP client close never fails
	}
	if c.v2 != nil {
		c.v2.Close()
	}
}

// Close releases the underlying HTTP clients.
func (c *Client) Close() error {
	if c == nil || c.v1 == nil {
		return nil
	}

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	c.closeClients()
	return nil
}

// HealthCheck verifies the InfluxDB connection is alive and functioning.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	checkCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	if err := c.ping(checkCtx); err != nil {
		return fmt.Errorf("influxdb health check failed: %w", err)
	}
	return nil
}

// IsConnected returns the current connection state.
//
// Note: This reflects the last known state. For reliability,
// use HealthCheck which performs an active ping.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Tabular reports whether reads should be shaped as column-oriented frames.
func (c *Client) Tabular() bool {
	return c.cfg.Tabular
}

// Database returns the database queries run against.
func (c *Client) Database() string {
	return c.database
}
