package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/riahtu/energy-saving/internal/audit"
	"github.com/riahtu/energy-saving/internal/infrastructure/database"
	"github.com/riahtu/energy-saving/internal/metadata"
)

// writeConfig writes a config with InfluxDB and ingest disabled so run needs
// no external services.
func writeConfig(t *testing.T, dbPath string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "test-config.yaml")
	configContent := `
database:
  driver: sqlite
  path: "` + dbPath + `"
  wal_mode: true
  busy_timeout: 5

influxdb:
  enabled: false

ingest:
  enabled: false

logging:
  level: info
  format: text
  output: stdout
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx, []string{"-config", "/nonexistent/path/config.yaml"}); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_MissingDatabasePath verifies run fails when database path is empty.
func TestRun_MissingDatabasePath(t *testing.T) {
	configPath := writeConfig(t, "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx, []string{"-config", configPath}); err == nil {
		t.Fatal("run() should fail with empty database path")
	}
}

// TestRun_UnknownFlag verifies flag errors are returned.
func TestRun_UnknownFlag(t *testing.T) {
	if err := run(context.Background(), []string{"-bogus"}); err == nil {
		t.Fatal("run() should fail with an unknown flag")
	}
}

// TestRun_StartupAndShutdown runs with only the metadata store and stops on
// context cancellation.
func TestRun_StartupAndShutdown(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	configPath := writeConfig(t, dbPath)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	if err := run(ctx, []string{"-config", configPath}); err != nil {
		t.Fatalf("run() error = %v", err)
	}
}

// TestRun_Import verifies -import loads a document and exits.
func TestRun_Import(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")
	configPath := writeConfig(t, dbPath)

	docPath := filepath.Join(tmpDir, "metadata.yaml")
	doc := `
datacenters:
  - name: dc1
    time_interval: 300
    device_types:
      power_supply_attribute:
        - name: power
          type: continuous
          unit: W
          pattern: "phase_.*"
          devices: [ps1]
`
	if err := os.WriteFile(docPath, []byte(doc), 0600); err != nil {
		t.Fatalf("failed to write document: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx, []string{"-config", configPath, "-import", docPath}); err != nil {
		t.Fatalf("run(-import) error = %v", err)
	}

	db, err := database.Open(ctx, database.Config{Path: dbPath, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("reopening database: %v", err)
	}
	defer db.Close()

	dc, err := metadata.NewRepository(db).Datacenter(ctx, "dc1")
	if err != nil {
		t.Fatalf("Datacenter() error = %v", err)
	}
	attr, ok := dc.DeviceTypes[metadata.PowerSupplyAttribute].Attribute("power")
	if !ok || attr.Pattern != "phase_.*" || !attr.HasDevice("ps1") {
		t.Errorf("imported attribute = %+v", attr)
	}

	entries, err := audit.NewRepository(db, "test").List(ctx, audit.Filter{Action: audit.ActionImport})
	if err != nil {
		t.Fatalf("audit List() error = %v", err)
	}
	if entries.Total != 1 || entries.Entries[0].EntityID != "dc1" {
		t.Errorf("audit entries = %+v", entries)
	}
}

// TestRun_ImportMissingFile verifies a missing document is an error.
func TestRun_ImportMissingFile(t *testing.T) {
	configPath := writeConfig(t, filepath.Join(t.TempDir(), "test.db"))
	if err := run(context.Background(), []string{"-config", configPath, "-import", "/nonexistent.yaml"}); err == nil {
		t.Fatal("run(-import) should fail for a missing document")
	}
}

// TestRun_Rollback verifies -rollback reverts only the latest migration.
func TestRun_Rollback(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	configPath := writeConfig(t, dbPath)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// An import migrates the schema and exits.
	docPath := filepath.Join(t.TempDir(), "metadata.yaml")
	if err := os.WriteFile(docPath, []byte("datacenters:\n  - name: dc1\n    time_interval: 60\n"), 0600); err != nil {
		t.Fatalf("failed to write document: %v", err)
	}
	if err := run(ctx, []string{"-config", configPath, "-import", docPath}); err != nil {
		t.Fatalf("run(-import) error = %v", err)
	}
	if err := run(ctx, []string{"-config", configPath, "-rollback"}); err != nil {
		t.Fatalf("run(-rollback) error = %v", err)
	}

	db, err := database.Open(ctx, database.Config{Path: dbPath, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("reopening database: %v", err)
	}
	defer db.Close()

	status, err := db.MigrationStatus(ctx)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if status.Current() != "20260101_000000" || len(status.Pending) != 1 || status.Pending[0].Name != "audit_logs" {
		t.Errorf("after rollback current = %q, pending = %+v", status.Current(), status.Pending)
	}
	if _, err := metadata.NewRepository(db).Datacenter(ctx, "dc1"); err != nil {
		t.Errorf("metadata lost by rollback: %v", err)
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("ENERGYSAVING_CONFIG", "")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	expected := "/custom/path/config.yaml"
	t.Setenv("ENERGYSAVING_CONFIG", expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}

	opts, err := parseFlags(nil)
	if err != nil {
		t.Fatal(err)
	}
	if opts.configPath != expected {
		t.Errorf("default -config = %q, want %q", opts.configPath, expected)
	}
}

// TestHealthCheck_DatabaseOnly verifies disabled clients are skipped.
func TestHealthCheck_DatabaseOnly(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open(ctx, database.Config{Path: filepath.Join(t.TempDir(), "health.db")})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	if err := healthCheck(ctx, db, nil, nil); err != nil {
		t.Errorf("healthCheck() error = %v", err)
	}
}
