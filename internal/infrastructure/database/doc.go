// Package database provides relational metadata storage for the energy saving core.
//
// This package manages:
//   - Connections to SQLite (mattn/go-sqlite3) or PostgreSQL (pgx stdlib driver)
//   - Schema migrations embedded in the binary
//   - Placeholder rebinding so queries are written once with ? markers
//   - Connection pooling and lifecycle management
//
// SQLite is the default and suits single-node deployments; WAL mode allows
// concurrent reads during writes. PostgreSQL is used when the datacenter
// catalogue is shared between several processes.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{
//	    Driver: cfg.Database.Driver,
//	    Path:   cfg.Database.Path,
//	    DSN:    cfg.Database.DSN,
//	})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are written in portable SQL (TEXT, INTEGER, DOUBLE PRECISION)
// so the same files apply to both drivers. Each migration has an .up.sql
// and a .down.sql file named YYYYMMDD_HHMMSS_description.
package database
