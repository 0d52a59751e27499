package grid

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "modernc.org/sqlite"
)

// observation_log.sql creates the append-only observations table.
//
//go:embed observation_log.sql
var observationLogSchema string

// ObservationLog persists observations in insertion order so a restarted
// server can rebuild the same grid.
type ObservationLog struct {
	db *sql.DB
}

// OpenObservationLog opens (or creates) the SQLite database at path.
// ":memory:" gives a private in-memory log.
func OpenObservationLog(path string) (*ObservationLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening observation log: %w", err)
	}
	// An in-memory database lives per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(observationLogSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating observation log schema: %w", err)
	}
	return &ObservationLog{db: db}, nil
}

// Append stores observations in one transaction.
func (l *ObservationLog) Append(ctx context.Context, obs ...Observation) error {
	if len(obs) == 0 {
		return nil
	}
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO observations (x, y, heading, value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, o := range obs {
		if _, err := stmt.ExecContext(ctx, o.X, o.Y, o.Heading, o.Value); err != nil {
			return fmt.Errorf("inserting observation: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing append: %w", err)
	}
	return nil
}

// All returns every stored observation in insertion order.
func (l *ObservationLog) All(ctx context.Context) (Store, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT x, y, heading, value FROM observations ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("querying observations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var store Store
	for rows.Next() {
		var o Observation
		if err := rows.Scan(&o.X, &o.Y, &o.Heading, &o.Value); err != nil {
			return nil, fmt.Errorf("scanning observation: %w", err)
		}
		store = append(store, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading observations: %w", err)
	}
	return store, nil
}

// Count returns the number of stored observations.
func (l *ObservationLog) Count(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM observations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting observations: %w", err)
	}
	return n, nil
}

// Clear deletes all observations.
func (l *ObservationLog) Clear(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, `DELETE FROM observations`); err != nil {
		return fmt.Errorf("clearing observations: %w", err)
	}
	return nil
}

func (l *ObservationLog) Close() error {
	return l.db.Close()
}
