// Energy Saving Core - datacenter metadata and time-series service.
//
// The daemon loads datacenter metadata from a SQL store, connects to
// InfluxDB and stores device telemetry received over MQTT. Run with
// -import to load a metadata document and exit, or -rollback to revert the
// latest schema migration and exit.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/riahtu/energy-saving/migrations"

	"github.com/riahtu/energy-saving/internal/audit"
	"github.com/riahtu/energy-saving/internal/infrastructure/config"
	"github.com/riahtu/energy-saving/internal/infrastructure/database"
	"github.com/riahtu/energy-saving/internal/infrastructure/influxdb"
	"github.com/riahtu/energy-saving/internal/infrastructure/logging"
	"github.com/riahtu/energy-saving/internal/infrastructure/mqtt"
	"github.com/riahtu/energy-saving/internal/ingest"
	"github.com/riahtu/energy-saving/internal/metadata"
	"github.com/riahtu/energy-saving/internal/timeseries"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options are the command-line flags.
type options struct {
	configPath string
	importPath string
	rollback   bool
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := flag.NewFlagSet("energysaving", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", getConfigPath(), "path to the YAML configuration file")
	fs.StringVar(&opts.importPath, "import", "", "import a metadata document and exit")
	fs.BoolVar(&opts.rollback, "rollback", false, "revert the latest schema migration and exit")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context, args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Energy Saving Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", opts.configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(ctx, database.Config{
		Driver:      cfg.Database.Driver,
		Path:        cfg.Database.Path,
		DSN:         cfg.Database.DSN,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "driver", db.Driver(), "path", db.Path())

	db.SetLogger(log.With("component", "database"))

	if opts.rollback {
		return rollbackSchema(ctx, db, log)
	}
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	status, err := db.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	log.Info("database migrations complete", "schema_version", status.Current())

	repo := metadata.NewRepository(db)
	repo.SetLogger(log)
	auditLog := audit.NewRepository(db, "energysaving")

	if opts.importPath != "" {
		return importMetadata(ctx, repo, auditLog, opts.importPath, log)
	}

	datacenters, err := repo.ListDatacenters(ctx)
	if err != nil {
		return fmt.Errorf("loading datacenters: %w", err)
	}
	log.Info("metadata loaded", "datacenters", len(datacenters))

	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"api_version", cfg.InfluxDB.APIVersion,
			"database", influxClient.Database(),
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	var svc *timeseries.Service
	if influxClient != nil {
		svc = timeseries.NewService(repo, influxClient, timeseries.Options{
			Precision:        cfg.Timeseries.Precision,
			StrictConversion: cfg.Timeseries.StrictConversion,
			MaxConcurrency:   cfg.Timeseries.MaxConcurrency,
		})
		svc.SetLogger(log.With("component", "timeseries"))
		svc.SetAuditor(auditLog)
	}

	var mqttClient *mqtt.Client
	if cfg.Ingest.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		bridge, err := startIngest(ctx, cfg, mqttClient, svc, log)
		if err != nil {
			return fmt.Errorf("starting ingest: %w", err)
		}
		defer func() {
			log.Info("stopping ingest bridge")
			bridge.Stop()
			stats := bridge.Stats()
			log.Info("ingest totals",
				"received", stats.Received,
				"written", stats.Written,
				"rejected", stats.Rejected,
			)
		}()
	} else {
		log.Info("telemetry ingest disabled")
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// ingest, MQTT, InfluxDB, database.

	log.Info("Energy Saving Core stopped")
	return nil
}

// rollbackSchema reverts the latest applied migration.
func rollbackSchema(ctx context.Context, db *database.DB, log *logging.Logger) error {
	m, err := db.Rollback(ctx)
	if err != nil {
		return fmt.Errorf("rolling back schema: %w", err)
	}
	if m == nil {
		log.Info("no migrations to roll back")
		return nil
	}
	log.Info("schema rolled back", "version", m.Version, "name", m.Name)
	return nil
}

// importMetadata loads a metadata document into the repository and records
// each replaced datacenter in the audit trail.
func importMetadata(ctx context.Context, repo *metadata.Repository, auditLog *audit.Repository, path string, log *logging.Logger) error {
	doc, err := metadata.LoadDocument(path)
	if err != nil {
		return fmt.Errorf("loading metadata document: %w", err)
	}
	if err := repo.Import(ctx, doc); err != nil {
		return fmt.Errorf("importing metadata: %w", err)
	}
	for _, dc := range doc.Datacenters {
		details := map[string]any{"file": path, "device_types": len(dc.DeviceTypes)}
		if err := auditLog.Record(ctx, audit.ActionImport, "datacenter", dc.Name, details); err != nil {
			log.Warn("recording import failed", "datacenter", dc.Name, "error", err)
		}
	}
	log.Info("metadata imported", "path", path, "datacenters", len(doc.Datacenters))
	return nil
}

// startIngest subscribes the telemetry bridge.
func startIngest(ctx context.Context, cfg *config.Config, client *mqtt.Client, svc *timeseries.Service, log *logging.Logger) (*ingest.Bridge, error) {
	if svc == nil {
		return nil, errors.New("ingest requires InfluxDB")
	}
	bridge, err := ingest.NewBridge(ingest.Options{
		Config:    cfg.Ingest,
		Precision: cfg.Timeseries.Precision,
		QoS:       byte(cfg.MQTT.QoS),
		MQTT:      client,
		Writer:    svc,
		Logger:    log.With("component", "ingest"),
	})
	if err != nil {
		return nil, err
	}
	if err := bridge.Start(ctx); err != nil {
		return nil, err
	}
	log.Info("ingest bridge started", "datacenters", cfg.Ingest.Datacenters, "subscriptions", client.Subscriptions())
	return bridge, nil
}

// getConfigPath returns the configuration file path.
// Uses ENERGYSAVING_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("ENERGYSAVING_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies all infrastructure connections are healthy.
// Clients that are disabled are passed as nil and skipped.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
