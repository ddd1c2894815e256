package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/andresmejia3/rollcall/internal/types"
	"github.com/jackc/pgx/v5"
)

// Postgres stores the ledger in two tables. The (name, day) unique key
// makes identity dedup atomic even across processes.
type Postgres struct {
	conn   *pgx.Conn
	Schema Schema

	mu sync.Mutex // pgx.Conn is not safe for concurrent use
}

// NewPostgres establishes a connection and ensures the schema is initialized.
func NewPostgres(ctx context.Context, connString string, schema Schema) (*Postgres, error) {
	if connString == "" {
		return nil, fmt.Errorf("postgres ledger needs a connection string (DATABASE_URL)")
	}
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Postgres{conn: conn, Schema: schema}, nil
}

// initSchema creates the ledger tables if they don't exist (Auto-Migration).
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE TABLE IF NOT EXISTS attendance_events (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			day TEXT NOT NULL,
			time_of_day TEXT NOT NULL,
			recorded_at TIMESTAMPTZ DEFAULT NOW(),
			UNIQUE (name, day)
		);
		CREATE TABLE IF NOT EXISTS presence_events (
			id BIGSERIAL PRIMARY KEY,
			ts TEXT NOT NULL,
			status TEXT NOT NULL,
			recorded_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS presence_events_ts_idx ON presence_events (ts);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (p *Postgres) Close(ctx context.Context) {
	p.conn.Close(ctx)
}

func (p *Postgres) RecordIfAbsent(ctx context.Context, ev types.AttendanceEvent) (bool, error) {
	if p.Schema.Mode != IdentitySchema.Mode {
		return false, ErrWrongMode
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	tag, err := p.conn.Exec(ctx, `
		INSERT INTO attendance_events (name, day, time_of_day)
		VALUES ($1, $2, $3)
		ON CONFLICT (name, day) DO NOTHING
	`, ev.Name, ev.Date, ev.Time)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (p *Postgres) RecordPresence(ctx context.Context, ev types.PresenceEvent) error {
	if p.Schema.Mode != PresenceSchema.Mode {
		return ErrWrongMode
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	_, err := p.conn.Exec(ctx, "INSERT INTO presence_events (ts, status) VALUES ($1, $2)", ev.Timestamp, ev.Status)
	return err
}

func (p *Postgres) Events(ctx context.Context, date string) ([]types.AttendanceEvent, error) {
	if p.Schema.Mode != IdentitySchema.Mode {
		return nil, ErrWrongMode
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	rows, err := p.conn.Query(ctx, `
		SELECT name, day, time_of_day FROM attendance_events
		WHERE $1::text = '' OR day = $1::text
		ORDER BY id
	`, date)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.AttendanceEvent, error) {
		var ev types.AttendanceEvent
		err := row.Scan(&ev.Name, &ev.Date, &ev.Time)
		return ev, err
	})
}

func (p *Postgres) Presence(ctx context.Context, date string) ([]types.PresenceEvent, error) {
	if p.Schema.Mode != PresenceSchema.Mode {
		return nil, ErrWrongMode
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	rows, err := p.conn.Query(ctx, `
		SELECT ts, status FROM presence_events
		WHERE $1::text = '' OR ts LIKE $1::text || '%'
		ORDER BY id
	`, date)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.PresenceEvent, error) {
		var ev types.PresenceEvent
		err := row.Scan(&ev.Timestamp, &ev.Status)
		return ev, err
	})
}

// Reset drops the ledger tables and recreates them empty.
func (p *Postgres) Reset(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, err := p.conn.Exec(ctx, `
		DROP TABLE IF EXISTS attendance_events CASCADE;
		DROP TABLE IF EXISTS presence_events CASCADE;
	`)
	if err != nil {
		return err
	}
	return initSchema(ctx, p.conn)
}
