package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// EnsureTrigram makes sure the pg_trgm extension used by the name indexes
// exists. A role without CREATE privileges passes as long as a DBA has
// installed the extension beforehand.
func EnsureTrigram(dsn string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer db.Close()
	return ensureExtension(db, "pg_trgm")
}

func ensureExtension(db *sql.DB, name string) error {
	_, err := db.Exec("CREATE EXTENSION IF NOT EXISTS " + name)
	if err == nil {
		return nil
	}
	if !strings.Contains(err.Error(), "permission denied") {
		return fmt.Errorf("create %s extension: %w", name, err)
	}

	var exists bool
	qErr := db.QueryRow("SELECT EXISTS(SELECT 1 FROM pg_extension WHERE extname = $1)", name).Scan(&exists)
	if qErr != nil {
		return fmt.Errorf("check %s: %w (original: %w)", name, qErr, err)
	}
	if exists {
		return nil
	}
	return fmt.Errorf("%s extension is not installed and the current database user lacks permission to create it; "+
		"ask your database admin to run: CREATE EXTENSION %s; (original: %w)", name, name, err)
}

// RunMigrations applies the embedded SQL migrations to the database at dsn.
func RunMigrations(dsn string) error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("iofs.New: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("migrate.New: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate.Up: %w", err)
	}
	return nil
}
