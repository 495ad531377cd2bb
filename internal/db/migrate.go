package db

import (
	"context"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Migration is one versioned schema change, loaded from the embedded
// migrations directory. Files follow NNN_description.up.sql and
// NNN_description.down.sql; the up and down halves of a version share
// one Migration.
type Migration struct {
	Version     int
	Description string
	UpSQL       string
	DownSQL     string
}

var migrationFileRe = regexp.MustCompile(`^(\d+)_(.+)\.(up|down)\.sql$`)

// loadMigrations parses the embedded migration files into Migrations
// sorted by version. Files that do not match the naming convention are
// skipped.
func loadMigrations() ([]Migration, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded migrations: %w", err)
	}

	byVersion := make(map[int]*Migration)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		matches := migrationFileRe.FindStringSubmatch(entry.Name())
		if matches == nil {
			continue
		}

		version, _ := strconv.Atoi(matches[1])
		m, ok := byVersion[version]
		if !ok {
			m = &Migration{
				Version:     version,
				Description: strings.ReplaceAll(matches[2], "_", " "),
			}
			byVersion[version] = m
		}

		content, err := fs.ReadFile(migrationsFS, "migrations/"+entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", entry.Name(), err)
		}
		if matches[3] == "up" {
			m.UpSQL = string(content)
		} else {
			m.DownSQL = string(content)
		}
	}

	migrations := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		migrations = append(migrations, *m)
	}
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

// MigrateUp applies every migration newer than the current schema
// version, in order, and returns how many were applied. Each migration
// runs in its own transaction together with its schema_version record,
// so a failure leaves the database at the last fully applied version.
func (db *DB) MigrateUp(ctx context.Context) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	migrations, current, err := db.migrationState(ctx)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if m.UpSQL == "" {
			return applied, fmt.Errorf("migration %d has no up script", m.Version)
		}
		if err := db.applyUp(ctx, m); err != nil {
			return applied, fmt.Errorf("failed to apply migration %d: %w", m.Version, err)
		}
		db.logger.Info().
			Int("version", m.Version).
			Str("description", m.Description).
			Msg("applied migration")
		applied++
	}

	return applied, nil
}

// MigrateDown reverts up to steps migrations, newest first, and
// returns how many were reverted.
func (db *DB) MigrateDown(ctx context.Context, steps int) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	migrations, current, err := db.migrationState(ctx)
	if err != nil {
		return 0, err
	}
	if current == 0 {
		return 0, nil
	}

	reverted := 0
	for i := len(migrations) - 1; i >= 0 && reverted < steps; i-- {
		m := migrations[i]
		if m.Version > current {
			continue
		}
		if m.DownSQL == "" {
			return reverted, fmt.Errorf("migration %d has no down script", m.Version)
		}
		if err := db.applyDown(ctx, m); err != nil {
			return reverted, fmt.Errorf("failed to revert migration %d: %w", m.Version, err)
		}
		db.logger.Info().
			Int("version", m.Version).
			Str("description", m.Description).
			Msg("reverted migration")
		reverted++
	}

	return reverted, nil
}

// migrationState ensures the schema_version table exists and returns
// the embedded migrations plus the current version. Callers hold db.mu.
func (db *DB) migrationState(ctx context.Context) ([]Migration, int, error) {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (datetime('now')),
			description TEXT
		)
	`); err != nil {
		return nil, 0, fmt.Errorf("failed to create schema_version table: %w", err)
	}

	migrations, err := loadMigrations()
	if err != nil {
		return nil, 0, err
	}

	var current int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&current); err != nil {
		return nil, 0, fmt.Errorf("failed to read schema version: %w", err)
	}

	return migrations, current, nil
}

// applyUp runs a migration's up script and records its version in one
// transaction.
func (db *DB) applyUp(ctx context.Context, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_version (version, description) VALUES (?, ?)",
		m.Version, m.Description); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}

	return tx.Commit()
}

// applyDown runs a migration's down script and removes its version
// record in one transaction.
func (db *DB) applyDown(ctx context.Context, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, m.DownSQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM schema_version WHERE version = ?", m.Version); err != nil {
		return fmt.Errorf("failed to remove schema version record: %w", err)
	}

	return tx.Commit()
}
