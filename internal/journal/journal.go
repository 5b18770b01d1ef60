// Package journal records every change fanned out by the mirrors into a
// SQLite database, together with the last version seen per collection.
//
// The journal is diagnostic. Mirrors never start from a stored cursor:
// activation always performs a forced resync.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQL statements.
const (
	sqlInsertEvent = `INSERT INTO events
		(session, collection, kind, version, subject, detail, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	sqlUpsertCursor = `INSERT INTO cursors (collection, version, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(collection) DO UPDATE SET
		 version = excluded.version,
		 updated_at = excluded.updated_at`

	sqlGetCursor = `SELECT version, updated_at FROM cursors WHERE collection = ?`

	sqlListCursors = `SELECT collection, version, updated_at FROM cursors ORDER BY collection`

	sqlPruneEvents = `DELETE FROM events WHERE recorded_at < ?`
)

// Event is one journaled change.
type Event struct {
	ID         int64     `json:"id"`
	Session    string    `json:"session"`
	Collection string    `json:"collection"`
	Kind       string    `json:"kind"`
	Version    uint64    `json:"version"`
	Subject    string    `json:"subject,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Cursor is the last version journaled for a collection.
type Cursor struct {
	Collection string    `json:"collection"`
	Version    uint64    `json:"version"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Query filters Events. Zero fields match everything; Limit 0 means no
// limit.
type Query struct {
	Collection string
	Session    string
	Since      time.Time
	Limit      int
}

// Journal is the sole writer to the journal database.
type Journal struct {
	db      *sql.DB
	logger  *slog.Logger
	session string
	nowFunc func() time.Time // injectable for deterministic tests
}

// Open opens or creates the journal at dbPath and applies pending
// migrations. Each Open starts a new session id.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"+
			"&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: opening database %s: %w", dbPath, err)
	}

	// Sole-writer pattern: only one connection writes at a time.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	j := &Journal{
		db:      db,
		logger:  logger,
		session: uuid.New().String(),
		nowFunc: time.Now,
	}

	logger.Info("journal opened",
		slog.String("db_path", dbPath),
		slog.String("session", j.session),
	)

	return j, nil
}

func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("journal: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("journal: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("journal: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

// Session returns the id stamped on events recorded through this Journal.
func (j *Journal) Session() string {
	return j.session
}

// Close closes the database.
func (j *Journal) Close() error {
	if err := j.db.Close(); err != nil {
		return fmt.Errorf("journal: closing database: %w", err)
	}

	return nil
}

// Record stores ev and advances the collection cursor in one transaction.
// Session and RecordedAt are filled in.
func (j *Journal) Record(ctx context.Context, ev Event) error {
	now := j.nowFunc().UnixNano()

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("journal: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, sqlInsertEvent,
		j.session, ev.Collection, ev.Kind, int64(ev.Version), ev.Subject, ev.Detail, now,
	); err != nil {
		return fmt.Errorf("journal: inserting %s event: %w", ev.Collection, err)
	}

	if _, err := tx.ExecContext(ctx, sqlUpsertCursor, ev.Collection, int64(ev.Version), now); err != nil {
		return fmt.Errorf("journal: advancing cursor for %s: %w", ev.Collection, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("journal: committing event: %w", err)
	}

	return nil
}

// SetCursor stores version as the cursor of collection.
func (j *Journal) SetCursor(ctx context.Context, collection string, version uint64) error {
	if _, err := j.db.ExecContext(ctx, sqlUpsertCursor, collection, int64(version), j.nowFunc().UnixNano()); err != nil {
		return fmt.Errorf("journal: setting cursor for %s: %w", collection, err)
	}

	return nil
}

// Cursor returns the stored cursor of collection. ok is false when none
// was recorded.
func (j *Journal) Cursor(ctx context.Context, collection string) (Cursor, bool, error) {
	var version, updated int64

	err := j.db.QueryRowContext(ctx, sqlGetCursor, collection).Scan(&version, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Cursor{}, false, nil
	}

	if err != nil {
		return Cursor{}, false, fmt.Errorf("journal: reading cursor for %s: %w", collection, err)
	}

	return Cursor{
		Collection: collection,
		Version:    uint64(version),
		UpdatedAt:  time.Unix(0, updated),
	}, true, nil
}

// Cursors returns every stored cursor sorted by collection.
func (j *Journal) Cursors(ctx context.Context) ([]Cursor, error) {
	rows, err := j.db.QueryContext(ctx, sqlListCursors)
	if err != nil {
		return nil, fmt.Errorf("journal: listing cursors: %w", err)
	}
	defer rows.Close()

	var out []Cursor

	for rows.Next() {
		var (
			c                Cursor
			version, updated int64
		)

		if err := rows.Scan(&c.Collection, &version, &updated); err != nil {
			return nil, fmt.Errorf("journal: scanning cursor: %w", err)
		}

		c.Version = uint64(version)
		c.UpdatedAt = time.Unix(0, updated)
		out = append(out, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterating cursors: %w", err)
	}

	return out, nil
}

// Events returns the events matching q, newest first.
func (j *Journal) Events(ctx context.Context, q Query) ([]Event, error) {
	var (
		where []string
		args  []any
	)

	if q.Collection != "" {
		where = append(where, "collection = ?")
		args = append(args, q.Collection)
	}

	if q.Session != "" {
		where = append(where, "session = ?")
		args = append(args, q.Session)
	}

	if !q.Since.IsZero() {
		where = append(where, "recorded_at >= ?")
		args = append(args, q.Since.UnixNano())
	}

	stmt := `SELECT id, session, collection, kind, version, subject, detail, recorded_at FROM events`
	if len(where) > 0 {
		stmt += " WHERE " + strings.Join(where, " AND ")
	}

	stmt += " ORDER BY id DESC"

	if q.Limit > 0 {
		stmt += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := j.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: querying events: %w", err)
	}
	defer rows.Close()

	var out []Event

	for rows.Next() {
		var (
			ev                Event
			version, recorded int64
		)

		if err := rows.Scan(&ev.ID, &ev.Session, &ev.Collection, &ev.Kind, &version,
			&ev.Subject, &ev.Detail, &recorded); err != nil {
			return nil, fmt.Errorf("journal: scanning event: %w", err)
		}

		ev.Version = uint64(version)
		ev.RecordedAt = time.Unix(0, recorded)
		out = append(out, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterating events: %w", err)
	}

	return out, nil
}

// Prune deletes events recorded more than olderThan ago and returns the
// number removed. Cursors are kept.
func (j *Journal) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := j.nowFunc().Add(-olderThan).UnixNano()

	res, err := j.db.ExecContext(ctx, sqlPruneEvents, cutoff)
	if err != nil {
		return 0, fmt.Errorf("journal: pruning events: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("journal: counting pruned events: %w", err)
	}

	j.logger.Info("journal pruned",
		slog.Int64("events", n),
		slog.Duration("older_than", olderThan),
	)

	return n, nil
}
