// Package persistence records theory evaluations in SQLite or PostgreSQL.
package persistence

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// DB wraps a database connection for run storage.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates the run store. driver is "sqlite" (dsn is a file
// path) or "pgx" (dsn is a PostgreSQL connection string).
func Open(driver, dsn string) (*DB, error) {
	source := dsn
	switch driver {
	case "sqlite":
		source = dsn + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	case "pgx":
	default:
		return nil, fmt.Errorf("open db: unsupported driver %q", driver)
	}
	conn, err := sqlx.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if driver == "sqlite" {
		// One writer; WAL readers go through the same handle.
		conn.SetMaxOpenConns(1)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			stamp TEXT NOT NULL,
			cosmology_json TEXT NOT NULL,
			params_json TEXT NOT NULL,
			loglike DOUBLE PRECISION
		)`,
		`CREATE TABLE IF NOT EXISTS spectra (
			run_id TEXT NOT NULL REFERENCES runs(id),
			tracer1 TEXT NOT NULL,
			tracer2 TEXT NOT NULL,
			ells_json TEXT NOT NULL,
			cls_json TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_spectra_run ON spectra(run_id)`,
	}
	for _, s := range stmts {
		if _, err := db.conn.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Spectrum is one angular power spectrum of a run.
type Spectrum struct {
	Tracer1 string    `json:"tracer1"`
	Tracer2 string    `json:"tracer2"`
	Ells    []float64 `json:"ells"`
	Cls     []float64 `json:"cls"`
}

// Run is one recorded evaluation.
type Run struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"` // "cls" or "loglike"
	CreatedAt time.Time      `json:"created_at"`
	Stamp     string         `json:"stamp"`
	Cosmology any            `json:"cosmology"`
	Params    map[string]any `json:"params"`
	LogLike   *float64       `json:"loglike,omitempty"`
	Spectra   []Spectrum     `json:"spectra,omitempty"`
}

type runRow struct {
	ID        string   `db:"id"`
	Kind      string   `db:"kind"`
	CreatedAt int64    `db:"created_at"`
	Stamp     string   `db:"stamp"`
	Cosmology string   `db:"cosmology_json"`
	Params    string   `db:"params_json"`
	LogLike   *float64 `db:"loglike"`
}

type spectrumRow struct {
	Tracer1 string `db:"tracer1"`
	Tracer2 string `db:"tracer2"`
	Ells    string `db:"ells_json"`
	Cls     string `db:"cls_json"`
}

// SaveRun stores r with its spectra, assigning an ID and timestamp when
// they are unset. It returns the run ID.
func (db *DB) SaveRun(r *Run) (string, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	cosJSON, err := json.Marshal(r.Cosmology)
	if err != nil {
		return "", fmt.Errorf("encode cosmology: %w", err)
	}
	parJSON, err := json.Marshal(r.Params)
	if err != nil {
		return "", fmt.Errorf("encode params: %w", err)
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	_, err = tx.Exec(tx.Rebind(`INSERT INTO runs
		(id, kind, created_at, stamp, cosmology_json, params_json, loglike)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		r.ID, r.Kind, r.CreatedAt.UnixNano(), r.Stamp, string(cosJSON), string(parJSON), r.LogLike,
	)
	if err != nil {
		return "", fmt.Errorf("insert run %s: %w", r.ID, err)
	}

	insert := tx.Rebind(`INSERT INTO spectra (run_id, tracer1, tracer2, ells_json, cls_json)
		VALUES (?, ?, ?, ?, ?)`)
	for _, s := range r.Spectra {
		ellsJSON, err := json.Marshal(s.Ells)
		if err != nil {
			return "", fmt.Errorf("encode ells %s x %s: %w", s.Tracer1, s.Tracer2, err)
		}
		clsJSON, err := json.Marshal(s.Cls)
		if err != nil {
			return "", fmt.Errorf("encode cls %s x %s: %w", s.Tracer1, s.Tracer2, err)
		}
		if _, err := tx.Exec(insert, r.ID, s.Tracer1, s.Tracer2, string(ellsJSON), string(clsJSON)); err != nil {
			return "", fmt.Errorf("insert spectrum %s x %s: %w", s.Tracer1, s.Tracer2, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", err
	}
	slog.Debug("run saved", "id", r.ID, "kind", r.Kind, "spectra", len(r.Spectra))
	return r.ID, nil
}

// GetRun loads one run with its spectra.
func (db *DB) GetRun(id string) (*Run, error) {
	var row runRow
	if err := db.conn.Get(&row, db.conn.Rebind("SELECT * FROM runs WHERE id = ?"), id); err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	r, err := row.decode()
	if err != nil {
		return nil, err
	}

	var rows []spectrumRow
	if err := db.conn.Select(&rows,
		db.conn.Rebind("SELECT tracer1, tracer2, ells_json, cls_json FROM spectra WHERE run_id = ?"), id,
	); err != nil {
		return nil, fmt.Errorf("get spectra %s: %w", id, err)
	}
	for _, sr := range rows {
		s := Spectrum{Tracer1: sr.Tracer1, Tracer2: sr.Tracer2}
		if err := json.Unmarshal([]byte(sr.Ells), &s.Ells); err != nil {
			return nil, fmt.Errorf("decode ells: %w", err)
		}
		if err := json.Unmarshal([]byte(sr.Cls), &s.Cls); err != nil {
			return nil, fmt.Errorf("decode cls: %w", err)
		}
		r.Spectra = append(r.Spectra, s)
	}
	return r, nil
}

// RecentRuns returns the most recent runs without their spectra.
func (db *DB) RecentRuns(limit int) ([]*Run, error) {
	var rows []runRow
	err := db.conn.Select(&rows,
		db.conn.Rebind("SELECT * FROM runs ORDER BY created_at DESC LIMIT ?"), limit)
	if err != nil {
		return nil, err
	}
	out := make([]*Run, 0, len(rows))
	for _, row := range rows {
		r, err := row.decode()
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (row runRow) decode() (*Run, error) {
	r := &Run{
		ID:        row.ID,
		Kind:      row.Kind,
		CreatedAt: time.Unix(0, row.CreatedAt).UTC(),
		Stamp:     row.Stamp,
		LogLike:   row.LogLike,
	}
	if err := json.Unmarshal([]byte(row.Cosmology), &r.Cosmology); err != nil {
		return nil, fmt.Errorf("decode cosmology: %w", err)
	}
	if err := json.Unmarshal([]byte(row.Params), &r.Params); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	return r, nil
}

// SaveMeta stores a key-value pair.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(db.conn.Rebind(
		`INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value`),
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, db.conn.Rebind("SELECT value FROM meta WHERE key = ?"), key)
	return value, err
}
