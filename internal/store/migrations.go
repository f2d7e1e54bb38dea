package store

import (
	"context"
	"database/sql"
)

// schema contains the journal DDL. Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		id         TEXT NOT NULL UNIQUE,
		type       TEXT NOT NULL,
		task_id    INTEGER NOT NULL DEFAULT 0,
		task_name  TEXT NOT NULL DEFAULT '',
		kind       TEXT NOT NULL DEFAULT '',
		ram        INTEGER NOT NULL DEFAULT 0,
		storage    INTEGER NOT NULL DEFAULT 0,
		detail     TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_events_type ON events(type)`,
	`CREATE INDEX IF NOT EXISTS idx_events_task_id ON events(task_id)`,
}

func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
