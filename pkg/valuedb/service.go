// ValueDB is the optional journal of every value the bridge published.
// It is written by the bridge only and can be read by anything else.
package valuedb

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/NotCoffee418/dbmigrator"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// InitializeDatabase opens the journal at path and applies migrations.
func InitializeDatabase(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	// Verify connection, creates the file
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	// Apply migrations
	dbmigrator.SetDatabaseType(dbmigrator.SQLite)
	<-dbmigrator.MigrateUpCh(
		db,
		migrationFS,
		"migrations",
	)

	// Migrations report through their channel only, make sure the schema is there
	if _, err := db.Exec("SELECT 1 FROM published_values LIMIT 1;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal %s schema missing: %w", path, err)
	}

	// Single writer, sqlite does not benefit from more
	db.SetMaxOpenConns(1)
	return db, nil
}
