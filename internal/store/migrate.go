package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// All contains the ordered list of migrations to apply.
var All = []string{
	`CREATE TABLE launches (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		mode        TEXT NOT NULL,
		attributes  BLOB,
		rerun       INTEGER NOT NULL DEFAULT 0,
		rerun_of    TEXT NOT NULL DEFAULT '',
		start_time  TEXT NOT NULL,
		end_time    TEXT,
		status      TEXT
	)`,
	`CREATE TABLE items (
		id           TEXT PRIMARY KEY,
		launch_id    TEXT NOT NULL REFERENCES launches(id),
		parent_id    TEXT REFERENCES items(id),
		seq          INTEGER NOT NULL,
		name         TEXT NOT NULL,
		description  TEXT NOT NULL DEFAULT '',
		type         TEXT NOT NULL,
		code_ref     TEXT NOT NULL DEFAULT '',
		test_case_id TEXT NOT NULL DEFAULT '',
		has_stats    INTEGER NOT NULL DEFAULT 1,
		attributes   BLOB,
		parameters   BLOB,
		start_time   TEXT NOT NULL,
		end_time     TEXT,
		status       TEXT
	)`,
	`CREATE INDEX items_launch ON items(launch_id, seq)`,
	`CREATE INDEX items_parent ON items(parent_id)`,
	`CREATE TABLE logs (
		id        INTEGER PRIMARY KEY,
		launch_id TEXT NOT NULL REFERENCES launches(id),
		item_id   TEXT REFERENCES items(id),
		time      TEXT NOT NULL,
		level     TEXT NOT NULL,
		message   TEXT NOT NULL
	)`,
	`CREATE INDEX logs_item ON logs(item_id, id)`,
	`CREATE TABLE attachments (
		log_id     INTEGER PRIMARY KEY REFERENCES logs(id),
		name       TEXT NOT NULL DEFAULT '',
		media_type TEXT NOT NULL,
		size       INTEGER NOT NULL,
		data       BLOB NOT NULL
	)`,
}

// Migrate applies every migration newer than the recorded schema version,
// each in its own transaction.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	current, err := schemaVersion(ctx, db)
	if err != nil {
		return err
	}

	for i := current; i < len(All); i++ {
		if err := apply(ctx, db, i+1, All[i]); err != nil {
			return err
		}
	}
	return nil
}

func schemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	err := db.QueryRowContext(ctx, `SELECT version FROM schema_version`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := db.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (0)`); err != nil {
			return 0, fmt.Errorf("initializing schema version: %w", err)
		}
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

func apply(ctx context.Context, db *sql.DB, version int, stmt string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning migration %d: %w", version, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("migration %d failed: %w", version, err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE schema_version SET version = ?`, version); err != nil {
		return fmt.Errorf("updating schema version to %d: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migration %d: %w", version, err)
	}
	return nil
}
