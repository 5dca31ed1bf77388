package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dernate/scadabridge/audit"
	_ "modernc.org/sqlite"
)

const timestampLayout = "2006-01-02 15:04:05.000"

const setpointKey = "applied_setpoint"

const createCommandsSQL = `
CREATE TABLE IF NOT EXISTS commands (
    id TEXT PRIMARY KEY,
    timestamp TEXT NOT NULL,
    source TEXT NOT NULL,
    action TEXT NOT NULL,
    point TEXT NOT NULL,
    point_index INTEGER NOT NULL,
    previous_value REAL,
    new_value REAL,
    status TEXT NOT NULL,
    detail TEXT
);`

const createStateSQL = `
CREATE TABLE IF NOT EXISTS state (
    key TEXT PRIMARY KEY,
    value REAL NOT NULL,
    updated TEXT NOT NULL
);`

// Journal persists handled commands and the last applied setpoint in SQLite.
type Journal struct {
	db *sql.DB
}

// Open opens or creates the journal database and its schema.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	for _, stmt := range []string{createCommandsSQL, createStateSQL} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create journal schema: %w", err)
		}
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

// Record stores an audit record. Records with an id already stored are ignored.
func (j *Journal) Record(ctx context.Context, rec audit.Record) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO commands(id, timestamp, source, action, point, point_index, previous_value, new_value, status, detail)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Time.UTC().Format(timestampLayout), rec.Source, rec.Action, rec.Point,
		int(rec.Index), rec.Previous, rec.Value, rec.Status, rec.Detail)
	if err != nil {
		return fmt.Errorf("journal record %s: %w", rec.ID, err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]audit.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, timestamp, source, action, point, point_index, previous_value, new_value, status, detail
		 FROM commands ORDER BY timestamp DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal query: %w", err)
	}
	defer rows.Close()

	var out []audit.Record
	for rows.Next() {
		var (
			rec    audit.Record
			ts     string
			index  int
			detail sql.NullString
		)
		if err := rows.Scan(&rec.ID, &ts, &rec.Source, &rec.Action, &rec.Point, &index,
			&rec.Previous, &rec.Value, &rec.Status, &detail); err != nil {
			return nil, fmt.Errorf("journal scan: %w", err)
		}
		rec.Index = uint16(index)
		rec.Detail = detail.String
		if rec.Time, err = time.ParseInLocation(timestampLayout, ts, time.UTC); err != nil {
			return nil, fmt.Errorf("journal timestamp %q: %w", ts, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SaveSetpoint retains the setpoint last published to the plant.
func (j *Journal) SaveSetpoint(ctx context.Context, v float64) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO state(key, value, updated) VALUES(?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated = excluded.updated`,
		setpointKey, v, time.Now().UTC().Format(timestampLayout))
	if err != nil {
		return fmt.Errorf("journal save setpoint: %w", err)
	}
	return nil
}

// LoadSetpoint returns the retained setpoint; ok is false when none was saved yet.
func (j *Journal) LoadSetpoint(ctx context.Context) (v float64, ok bool, err error) {
	err = j.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, setpointKey).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("journal load setpoint: %w", err)
	}
	return v, true, nil
}
