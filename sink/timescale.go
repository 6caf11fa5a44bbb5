package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aeytom/hw2influx/config"
	"github.com/aeytom/hw2influx/meter"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Timescale writes points as rows into a PostgreSQL/TimescaleDB table.
type Timescale struct {
	db     execer
	pool   *pgxpool.Pool
	table  string
	insert string
}

// NewTimescale opens a connection pool. Connections are established lazily.
func NewTimescale(ctx context.Context, cfg config.TimescaleConfig) (*Timescale, error) {
	pool, err := pgxpool.New(ctx, cfg.ConnString)
	if err != nil {
		return nil, fmt.Errorf("timescale pool: %w", err)
	}
	s := newTimescale(pool, cfg.Table)
	s.pool = pool
	return s, nil
}

func newTimescale(db execer, table string) *Timescale {
	t := tableIdentifier(table)
	return &Timescale{
		db:     db,
		table:  t,
		insert: "INSERT INTO " + t + " (time, measurement, meter, fields) VALUES ($1, $2, $3, $4)",
	}
}

// Name …
func (s *Timescale) Name() string { return "timescale" }

// Migrate creates the target table when it does not exist.
func (s *Timescale) Migrate(ctx context.Context) error {
	_, err := s.db.Exec(ctx, "CREATE TABLE IF NOT EXISTS "+s.table+
		" (time TIMESTAMPTZ NOT NULL, measurement TEXT NOT NULL, meter TEXT NOT NULL, fields JSONB NOT NULL)")
	return err
}

// Write inserts one row.
func (s *Timescale) Write(ctx context.Context, p meter.DataPoint) error {
	fields, err := json.Marshal(p.Fields)
	if err != nil {
		return &WriteError{Sink: s.Name(), Meter: p.Meter(), Err: fmt.Errorf("marshal fields: %w", err)}
	}
	if _, err := s.db.Exec(ctx, s.insert, p.Time, p.Measurement, p.Meter(), fields); err != nil {
		return &WriteError{Sink: s.Name(), Meter: p.Meter(), Err: err}
	}
	return nil
}

// Close …
func (s *Timescale) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func tableIdentifier(table string) string {
	return pgx.Identifier(strings.Split(table, ".")).Sanitize()
}
