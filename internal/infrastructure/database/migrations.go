package database

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

// Migrations is the schema source, set by the migrations package's init.
// Files are named YYYYMMDD_HHMMSS_name.up.sql with an optional matching
// .down.sql; anything else is ignored.
var Migrations fs.FS

// ErrNoDownMigration is returned by Rollback when the latest migration has
// no .down.sql file.
var ErrNoDownMigration = errors.New("database: migration has no down SQL")

// Migration is one schema step.
type Migration struct {
	Version string // YYYYMMDD_HHMMSS
	Name    string
	Up      string
	Down    string
}

// AppliedMigration is a row of schema_migrations.
type AppliedMigration struct {
	Version   string
	Name      string
	AppliedAt time.Time
}

// MigrationStatus compares the schema source with what has been applied.
type MigrationStatus struct {
	Applied []AppliedMigration
	Pending []Migration
}

// Current returns the latest applied version, or "" on an empty database.
func (s MigrationStatus) Current() string {
	if len(s.Applied) == 0 {
		return ""
	}
	return s.Applied[len(s.Applied)-1].Version
}

// Migrate applies pending migrations oldest first. Each migration commits
// on its own, so after a failure the earlier ones stay applied and a rerun
// resumes at the failed one.
func (db *DB) Migrate(ctx context.Context) error {
	status, err := db.MigrationStatus(ctx)
	if err != nil {
		return err
	}
	for _, m := range status.Pending {
		if err := db.step(ctx, m.Up, "INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Name, time.Now().UTC().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("applying migration %s_%s: %w", m.Version, m.Name, err)
		}
		db.log().Info("migration applied", "version", m.Version, "name", m.Name)
	}
	return nil
}

// Rollback reverts the most recently applied migration and returns it.
// It returns a nil migration when nothing has been applied.
func (db *DB) Rollback(ctx context.Context) (*Migration, error) {
	status, err := db.MigrationStatus(ctx)
	if err != nil {
		return nil, err
	}
	current := status.Current()
	if current == "" {
		return nil, nil
	}

	all, err := loadMigrations(Migrations)
	if err != nil {
		return nil, err
	}
	i := sort.Search(len(all), func(i int) bool { return all[i].Version >= current })
	if i == len(all) || all[i].Version != current {
		return nil, fmt.Errorf("migration %s is applied but missing from the schema source", current)
	}
	m := all[i]
	if m.Down == "" {
		return nil, fmt.Errorf("%w: %s_%s", ErrNoDownMigration, m.Version, m.Name)
	}

	if err := db.step(ctx, m.Down, "DELETE FROM schema_migrations WHERE version = ?", m.Version); err != nil {
		return nil, fmt.Errorf("reverting migration %s_%s: %w", m.Version, m.Name, err)
	}
	db.log().Info("migration reverted", "version", m.Version, "name", m.Name)
	return &m, nil
}

// MigrationStatus reports applied and pending migrations, creating the
// bookkeeping table on first use.
func (db *DB) MigrationStatus(ctx context.Context) (MigrationStatus, error) {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		applied_at TEXT NOT NULL
	)`); err != nil {
		return MigrationStatus{}, fmt.Errorf("creating schema_migrations: %w", err)
	}

	applied, err := db.appliedMigrations(ctx)
	if err != nil {
		return MigrationStatus{}, err
	}
	all, err := loadMigrations(Migrations)
	if err != nil {
		return MigrationStatus{}, err
	}

	done := make(map[string]bool, len(applied))
	for _, a := range applied {
		done[a.Version] = true
	}
	status := MigrationStatus{Applied: applied}
	for _, m := range all {
		if !done[m.Version] {
			status.Pending = append(status.Pending, m)
		}
	}
	return status, nil
}

func (db *DB) appliedMigrations(ctx context.Context) ([]AppliedMigration, error) {
	rows, err := db.QueryContext(ctx, "SELECT version, name, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("querying schema_migrations: %w", err)
	}
	defer rows.Close()

	var out []AppliedMigration
	for rows.Next() {
		var a AppliedMigration
		var at string
		if err := rows.Scan(&a.Version, &a.Name, &at); err != nil {
			return nil, fmt.Errorf("scanning schema_migrations: %w", err)
		}
		a.AppliedAt, _ = time.Parse(time.RFC3339, at) //nolint:errcheck // written by Migrate
		out = append(out, a)
	}
	return out, rows.Err()
}

// step runs a schema script and its bookkeeping statement in one
// transaction.
func (db *DB) step(ctx context.Context, script, record string, args ...any) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, script); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, db.Rebind(record), args...); err != nil {
		return fmt.Errorf("updating schema_migrations: %w", err)
	}
	return tx.Commit()
}

// loadMigrations reads every migration at the root of fsys, sorted by
// version. A nil source has no migrations.
func loadMigrations(fsys fs.FS) ([]Migration, error) {
	if fsys == nil {
		return nil, nil
	}
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("reading migrations: %w", err)
	}

	byVersion := make(map[string]*Migration)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		version, name, up, ok := parseMigrationFilename(e.Name())
		if !ok {
			continue
		}
		body, err := fs.ReadFile(fsys, path.Clean(e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", e.Name(), err)
		}

		m, seen := byVersion[version]
		if !seen {
			m = &Migration{Version: version, Name: name}
			byVersion[version] = m
		}
		if up {
			m.Up = string(body)
		} else {
			m.Down = string(body)
		}
	}

	out := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.Up == "" {
			return nil, fmt.Errorf("migration %s_%s has a down file but no up file", m.Version, m.Name)
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// parseMigrationFilename splits "20260101_000000_metadata_schema.up.sql"
// into its version, name and direction.
func parseMigrationFilename(filename string) (version, name string, up, ok bool) {
	base, found := strings.CutSuffix(filename, ".sql")
	if !found {
		return "", "", false, false
	}
	if base, found = strings.CutSuffix(base, ".up"); found {
		up = true
	} else if base, found = strings.CutSuffix(base, ".down"); !found {
		return "", "", false, false
	}

	parts := strings.SplitN(base, "_", 3)
	if len(parts) != 3 || len(parts[0]) != 8 || len(parts[1]) != 6 || parts[2] == "" {
		return "", "", false, false
	}
	return parts[0] + "_" + parts[1], parts[2], up, true
}
