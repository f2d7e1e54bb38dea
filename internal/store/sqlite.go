package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/me/amaos/pkg/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// Every pooled connection to ":memory:" would see its own empty database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// Record appends ev to the journal. It satisfies kernel.Recorder.
func (s *SQLiteStore) Record(ctx context.Context, ev model.Event) error {
	s.logger.Debug("sql", "op", "insert", "table", "events", "id", ev.ID, "type", ev.Type)

	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, type, task_id, task_name, kind, ram, storage, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, string(ev.Type), ev.TaskID, ev.TaskName, string(ev.Kind),
		ev.RAM, ev.Storage, ev.Detail, ev.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert event %s: %w", ev.ID, err)
	}
	return nil
}

// ListEvents returns one page of events, newest first, and the total matching count.
func (s *SQLiteStore) ListEvents(ctx context.Context, opts ListOptions) ([]model.Event, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "events", "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	var where []string
	var args []any
	if opts.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(opts.Type))
	}
	if opts.TaskID != 0 {
		where = append(where, "task_id = ?")
		args = append(args, opts.TaskID)
	}
	whereSQL := ""
	if len(where) > 0 {
		whereSQL = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT id, type, task_id, task_name, kind, ram, storage, detail, created_at
		FROM events` + whereSQL + ` ORDER BY seq DESC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, query, append(args, opts.Limit, opts.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var ev model.Event
		var typ, kind, createdAt string
		if err := rows.Scan(&ev.ID, &typ, &ev.TaskID, &ev.TaskName, &kind,
			&ev.RAM, &ev.Storage, &ev.Detail, &createdAt); err != nil {
			return nil, 0, err
		}
		ev.Type = model.EventType(typ)
		ev.Kind = model.Kind(kind)
		ev.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		events = append(events, ev)
	}
	return events, total, rows.Err()
}
