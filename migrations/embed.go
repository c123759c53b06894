// Package migrations embeds SQL migration files into the binary.
//
// The metadata schema is applied at startup without needing the SQL files
// on the filesystem. Importing this package for side effects registers
// the files with the database package.
package migrations

import (
	"embed"

	"github.com/riahtu/energy-saving/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.Migrations = migrationsFS
}
