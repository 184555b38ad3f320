package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	_ "github.com/lib/pq"

	"github.com/skyking-delivery/skytrack/internal/config"
	"github.com/skyking-delivery/skytrack/internal/telemetry"
)

// Postgres is the durable telemetry store. Readings are append-only rows
// keyed by (metric name, timestamp); each operation is its own transaction
// and concurrent readers rely on Postgres snapshot consistency, not on any
// in-process lock.
type Postgres struct {
	db *sql.DB
}

// Open connects to Postgres using the configured DSN. The connection is
// verified with a ping so a misconfigured store fails at startup, not on
// the first fetch cycle.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (*Postgres, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, classifyReadError(err)
	}

	return &Postgres{db: db}, nil
}

// EnsureSchema creates the telemetry table and its indexes when missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS drone_telemetry (
			id BIGSERIAL PRIMARY KEY,
			telemetry_name TEXT NOT NULL,
			value TEXT NOT NULL,
			"timestamp" TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS drone_telemetry_ts_idx
			ON drone_telemetry ("timestamp")`,
		`CREATE INDEX IF NOT EXISTS drone_telemetry_name_ts_idx
			ON drone_telemetry (telemetry_name, "timestamp")`,
	}

	for _, stmt := range statements {
		if _, err := p.db.ExecContext(ctx, stmt); err != nil {
			return classifyWriteError(err)
		}
	}
	return nil
}

// AppendBatch bulk-inserts readings in a single transaction, all or
// nothing, and returns the number of rows written. An empty batch is a
// no-op. Connectivity failures classify as ErrUnavailable, rejected writes
// as ErrWriteFailed.
func (p *Postgres) AppendBatch(ctx context.Context, readings []telemetry.Reading) (int, error) {
	if len(readings) == 0 {
		return 0, nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, classifyReadError(err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO drone_telemetry (telemetry_name, value, "timestamp") VALUES ($1, $2, $3)`)
	if err != nil {
		tx.Rollback()
		return 0, classifyWriteError(err)
	}
	defer stmt.Close()

	for _, r := range readings {
		if _, err := stmt.ExecContext(ctx, r.Metric, valueText(r.Value), r.Timestamp.UTC()); err != nil {
			tx.Rollback()
			return 0, classifyWriteError(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, classifyWriteError(err)
	}

	return len(readings), nil
}

// MaxTimestamp returns the greatest stored timestamp. The second return is
// false when the store is empty.
func (p *Postgres) MaxTimestamp(ctx context.Context) (time.Time, bool, error) {
	var max sql.NullTime
	err := p.db.QueryRowContext(ctx,
		`SELECT MAX("timestamp") FROM drone_telemetry`).Scan(&max)
	if err != nil {
		return time.Time{}, false, classifyReadError(err)
	}
	if !max.Valid {
		return time.Time{}, false, nil
	}
	return max.Time.UTC(), true, nil
}

// Range returns readings with after < timestamp <= upto, ascending. An
// empty result is an empty slice, not an error.
func (p *Postgres) Range(ctx context.Context, after, upto time.Time) ([]telemetry.Reading, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT telemetry_name, value, "timestamp"
		   FROM drone_telemetry
		  WHERE "timestamp" > $1 AND "timestamp" <= $2
		  ORDER BY "timestamp" ASC`, after.UTC(), upto.UTC())
	if err != nil {
		return nil, classifyReadError(err)
	}
	defer rows.Close()

	return scanReadings(rows)
}

// Since returns readings from the trailing window, ascending.
func (p *Postgres) Since(ctx context.Context, window time.Duration) ([]telemetry.Reading, error) {
	cutoff := time.Now().UTC().Add(-window)
	rows, err := p.db.QueryContext(ctx,
		`SELECT telemetry_name, value, "timestamp"
		   FROM drone_telemetry
		  WHERE "timestamp" >= $1
		  ORDER BY "timestamp" ASC`, cutoff)
	if err != nil {
		return nil, classifyReadError(err)
	}
	defer rows.Close()

	return scanReadings(rows)
}

// Ping verifies store connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return classifyReadError(err)
	}
	return nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// scanReadings drains a result set into Reading values. Values come back as
// text; numeric coercion happens at the read-model edge (series package).
func scanReadings(rows *sql.Rows) ([]telemetry.Reading, error) {
	readings := make([]telemetry.Reading, 0)
	for rows.Next() {
		var (
			name  string
			value string
			ts    time.Time
		)
		if err := rows.Scan(&name, &value, &ts); err != nil {
			return nil, classifyReadError(err)
		}
		readings = append(readings, telemetry.Reading{
			Metric:    name,
			Value:     value,
			Timestamp: ts.UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, classifyReadError(err)
	}
	return readings, nil
}

// valueText renders a reading value for the text column. Upstream JSON
// scalars arrive as float64, string or bool.
func valueText(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case nil:
		return ""
	default:
		return fmt.Sprint(val)
	}
}
