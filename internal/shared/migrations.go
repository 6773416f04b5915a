package shared

import (
	"cmp"
	"context"
	"database/sql"
	"embed"
	"fmt"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"
)

//go:embed sql/*.sql
var migrationFiles embed.FS

// Migration is one embedded schema change, read from the pair of files
// sql/NNNN_<name>_up.sql and sql/NNNN_<name>_down.sql.
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// MigrationStatus reports whether a migration has been applied and when.
type MigrationStatus struct {
	Version   int
	Name      string
	AppliedAt *time.Time
}

// parseMigrationName splits "0001_create_transfers_up.sql" into (1, "create_transfers", true).
func parseMigrationName(file string) (version int, name string, up bool, err error) {
	base, ok := strings.CutSuffix(file, ".sql")
	if !ok {
		return 0, "", false, fmt.Errorf("%w: %s is not a .sql file", ErrInvalidInput, file)
	}

	switch {
	case strings.HasSuffix(base, "_up"):
		base, up = strings.TrimSuffix(base, "_up"), true
	case strings.HasSuffix(base, "_down"):
		base = strings.TrimSuffix(base, "_down")
	default:
		return 0, "", false, fmt.Errorf("%w: %s has no _up or _down suffix", ErrInvalidInput, file)
	}

	prefix, name, ok := strings.Cut(base, "_")
	if !ok || name == "" {
		return 0, "", false, fmt.Errorf("%w: %s has no name", ErrInvalidInput, file)
	}
	if version, err = strconv.Atoi(prefix); err != nil {
		return 0, "", false, fmt.Errorf("%w: %s has no numeric version", ErrInvalidInput, file)
	}
	return version, name, up, nil
}

// loadMigrations reads the embedded migrations sorted by version. Both directions are required.
func loadMigrations() ([]Migration, error) {
	entries, err := migrationFiles.ReadDir("sql")
	if err != nil {
		return nil, fmt.Errorf("failed to read migration directory: %w", err)
	}

	byVersion := make(map[int]*Migration)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version, name, up, err := parseMigrationName(entry.Name())
		if err != nil {
			return nil, err
		}
		content, err := migrationFiles.ReadFile(path.Join("sql", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", entry.Name(), err)
		}

		m, ok := byVersion[version]
		if !ok {
			m = &Migration{Version: version, Name: name}
			byVersion[version] = m
		}
		if m.Name != name {
			return nil, fmt.Errorf("%w: version %d is named both %q and %q", ErrInvalidInput, version, m.Name, name)
		}
		if up {
			m.Up = string(content)
		} else {
			m.Down = string(content)
		}
	}

	migrations := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.Up == "" || m.Down == "" {
			return nil, fmt.Errorf("incomplete migration for version %d", m.Version)
		}
		migrations = append(migrations, *m)
	}
	slices.SortFunc(migrations, func(a, b Migration) int { return cmp.Compare(a.Version, b.Version) })
	return migrations, nil
}

// RunMigrations applies every pending migration, tracking them in schema_migrations.
func RunMigrations(db *sql.DB) error {
	return RunMigrationsContext(context.Background(), db)
}

// RunMigrationsContext is [RunMigrations] bound to ctx.
func RunMigrationsContext(ctx context.Context, db *sql.DB) error {
	statuses, err := Migrations(ctx, db)
	if err != nil {
		return err
	}
	migrations, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	for i, m := range migrations {
		if statuses[i].AppliedAt != nil {
			continue
		}
		if err := execMigration(ctx, db, m.Version, m.Up, true); err != nil {
			return fmt.Errorf("failed to apply migration %d (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

// Migrations lists every embedded migration with the time it was applied, nil when pending.
func Migrations(ctx context.Context, db *sql.DB) ([]MigrationStatus, error) {
	migrations, err := loadMigrations()
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}
	if err := createMigrationsTable(ctx, db); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version, applied_at FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var at time.Time
		if err := rows.Scan(&version, &at); err != nil {
			return nil, fmt.Errorf("failed to scan applied migration: %w", err)
		}
		applied[version] = at
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	statuses := make([]MigrationStatus, 0, len(migrations))
	for _, m := range migrations {
		s := MigrationStatus{Version: m.Version, Name: m.Name}
		if at, ok := applied[m.Version]; ok {
			s.AppliedAt = &at
		}
		statuses = append(statuses, s)
	}
	return statuses, nil
}

// RollbackMigration reverts the most recently applied migration.
func RollbackMigration(db *sql.DB) error {
	_, err := RollbackMigrationContext(context.Background(), db)
	return err
}

// RollbackMigrationContext reverts the most recently applied migration and returns it.
func RollbackMigrationContext(ctx context.Context, db *sql.DB) (Migration, error) {
	statuses, err := Migrations(ctx, db)
	if err != nil {
		return Migration{}, err
	}
	migrations, err := loadMigrations()
	if err != nil {
		return Migration{}, fmt.Errorf("failed to load migrations: %w", err)
	}

	for i := len(statuses) - 1; i >= 0; i-- {
		if statuses[i].AppliedAt == nil {
			continue
		}
		m := migrations[i]
		if err := execMigration(ctx, db, m.Version, m.Down, false); err != nil {
			return Migration{}, fmt.Errorf("failed to rollback migration %d (%s): %w", m.Version, m.Name, err)
		}
		return m, nil
	}
	return Migration{}, fmt.Errorf("%w: no migrations to rollback", ErrRecordNotFound)
}

func createMigrationsTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

// execMigration runs one direction of a migration in a transaction and records or removes its version.
func execMigration(ctx context.Context, db *sql.DB, version int, script string, up bool) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range strings.Split(removeComments(script), ";") {
		if stmt = strings.TrimSpace(stmt); stmt == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute statement: %w\nStatement: %s", err, stmt)
		}
	}

	record := "DELETE FROM schema_migrations WHERE version = ?"
	if up {
		record = "INSERT INTO schema_migrations (version) VALUES (?)"
	}
	if _, err := tx.ExecContext(ctx, record, version); err != nil {
		return err
	}
	return tx.Commit()
}

// removeComments strips "--" line comments.
func removeComments(script string) string {
	lines := strings.Split(script, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if idx := strings.Index(line, "--"); idx >= 0 {
			line = line[:idx]
		}
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
