package shared

import (
	"context"
	"errors"
	"testing"
)

func TestParseMigrationName(t *testing.T) {
	tests := []struct {
		file    string
		version int
		name    string
		up      bool
		wantErr bool
	}{
		{file: "0000_create_kv_store_up.sql", version: 0, name: "create_kv_store", up: true},
		{file: "0001_create_transfers_down.sql", version: 1, name: "create_transfers"},
		{file: "0002_up.sql", wantErr: true},
		{file: "abcd_create_up.sql", wantErr: true},
		{file: "0003_create_sideways.sql", wantErr: true},
		{file: "README.md", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			version, name, up, err := parseMigrationName(tt.file)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidInput) {
					t.Fatalf("expected ErrInvalidInput, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if version != tt.version || name != tt.name || up != tt.up {
				t.Errorf("got (%d, %q, %v), want (%d, %q, %v)", version, name, up, tt.version, tt.name, tt.up)
			}
		})
	}
}

func TestMigrationRunner(t *testing.T) {
	ctx := context.Background()

	t.Run("loadMigrations", func(t *testing.T) {
		migrations, err := loadMigrations()
		if err != nil {
			t.Fatalf("failed to load migrations: %v", err)
		}
		if len(migrations) == 0 {
			t.Fatal("expected at least one migration")
		}

		for i := 1; i < len(migrations); i++ {
			if migrations[i].Version <= migrations[i-1].Version {
				t.Errorf("migrations not sorted: version %d comes after %d", migrations[i].Version, migrations[i-1].Version)
			}
		}
		for _, m := range migrations {
			if m.Name == "" || m.Up == "" || m.Down == "" {
				t.Errorf("migration %d is incomplete: %+v", m.Version, m)
			}
		}
	})

	t.Run("status before and after", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()

		before, err := Migrations(ctx, db)
		if err != nil {
			t.Fatalf("Migrations failed: %v", err)
		}
		for _, s := range before {
			if s.AppliedAt != nil {
				t.Errorf("expected %s to be pending", s.Name)
			}
		}

		if err := RunMigrationsContext(ctx, db); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}

		after, err := Migrations(ctx, db)
		if err != nil {
			t.Fatalf("Migrations failed: %v", err)
		}
		for _, s := range after {
			if s.AppliedAt == nil {
				t.Errorf("expected %s to be applied", s.Name)
			}
		}
	})

	t.Run("RunMigrations And Rollback", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()

		if err := RunMigrations(db); err != nil {
			t.Fatalf("failed to run migrations: %v", err)
		}
		if _, err := db.Exec("SELECT 1 FROM transfers LIMIT 1"); err != nil {
			t.Errorf("transfers table should exist after migrations: %v", err)
		}

		m, err := RollbackMigrationContext(ctx, db)
		if err != nil {
			t.Fatalf("failed to rollback migration: %v", err)
		}
		if m.Name != "create_transfers" {
			t.Errorf("expected create_transfers to be rolled back, got %q", m.Name)
		}
		if _, err := db.Exec("SELECT 1 FROM transfers LIMIT 1"); err == nil {
			t.Error("transfers table should be dropped by rollback")
		}
		if _, err := db.Exec("SELECT 1 FROM kv_store LIMIT 1"); err != nil {
			t.Errorf("kv_store table should survive rollback of the latest migration: %v", err)
		}

		if err := RollbackMigration(db); err != nil {
			t.Fatalf("failed to rollback second migration: %v", err)
		}
		if _, err := RollbackMigrationContext(ctx, db); !errors.Is(err, ErrRecordNotFound) {
			t.Errorf("expected ErrRecordNotFound with nothing applied, got %v", err)
		}
	})

	t.Run("removeComments", func(t *testing.T) {
		got := removeComments("-- header\nCREATE TABLE t (id INTEGER) -- trailing\n\n")
		if got != "CREATE TABLE t (id INTEGER)" {
			t.Errorf("unexpected statement %q", got)
		}
	})

	t.Run("Idempotent Migrations", func(t *testing.T) {
		db, err := NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		defer db.Close()

		for range 2 {
			if err := RunMigrations(db); err != nil {
				t.Fatalf("failed to run migrations: %v", err)
			}
		}

		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
			t.Fatalf("failed to query schema_migrations: %v", err)
		}
		migrations, _ := loadMigrations()
		if count != len(migrations) {
			t.Errorf("expected %d migrations to be applied, got %d", len(migrations), count)
		}
	})
}
