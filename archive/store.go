package archive

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// Cycle is an archived cycle. Stopped is zero while the cycle runs.
type Cycle struct {
	ID            string
	ProductType   uint32
	ProductNumber uint32
	ProductInfo   string
	Started       time.Time
	Stopped       time.Time
	Errors        uint32
	FailedSeams   int
	InspectionOK  bool
	Forced        bool
}

// Seam is an archived seam result.
type Seam struct {
	CycleID    string
	SeamSeries int
	Seam       int
	Errors     uint32
	Results    int
	Forced     bool
	Stopped    time.Time
}

// Store is the SQLite result archive.
type Store struct {
	db *sql.DB
}

// Open creates or opens the archive at path. The schema is created when missing.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect archive: %w", err)
	}

	// one writer, SQLite serializes anyway
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("archive %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		db.Close()
		return nil, fmt.Errorf("archive schema version: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}

	return s.db.Close()
}

// InsertCycle archives a started cycle. Writing the same id twice is a no-op.
func (s *Store) InsertCycle(ctx context.Context, c Cycle) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cycles (id, product_type, product_number, product_info, started_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, c.ID, c.ProductType, c.ProductNumber, c.ProductInfo, c.Started.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert cycle %s: %w", c.ID, err)
	}

	return nil
}

// FinishCycle stores the outcome of a cycle.
func (s *Store) FinishCycle(ctx context.Context, c Cycle) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE cycles
		SET stopped_at = ?, errors = ?, failed_seams = ?, inspection_ok = ?, forced = ?
		WHERE id = ?
	`, c.Stopped.UnixMilli(), c.Errors, c.FailedSeams, c.InspectionOK, c.Forced, c.ID)
	if err != nil {
		return fmt.Errorf("finish cycle %s: %w", c.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish cycle %s: %w", c.ID, ErrCycleNotFound)
	}

	return nil
}

// InsertSeam archives a seam result of a started cycle.
func (s *Store) InsertSeam(ctx context.Context, r Seam) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO seams (cycle_id, seam_series, seam, errors, results, forced, stopped_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.CycleID, r.SeamSeries, r.Seam, r.Errors, r.Results, r.Forced, r.Stopped.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert seam %d/%d of cycle %s: %w", r.SeamSeries, r.Seam, r.CycleID, err)
	}

	return nil
}

// Cycles returns the most recent cycles, newest first.
func (s *Store) Cycles(ctx context.Context, limit int) ([]Cycle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_type, product_number, product_info, started_at, stopped_at,
		       errors, failed_seams, inspection_ok, forced
		FROM cycles
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query cycles: %w", err)
	}
	defer rows.Close()

	var out []Cycle
	for rows.Next() {
		c, err := scanCycle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query cycles: %w", err)
	}

	return out, nil
}

// Cycle returns one archived cycle.
func (s *Store) Cycle(ctx context.Context, id string) (Cycle, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, product_type, product_number, product_info, started_at, stopped_at,
		       errors, failed_seams, inspection_ok, forced
		FROM cycles
		WHERE id = ?
	`, id)

	c, err := scanCycle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Cycle{}, fmt.Errorf("cycle %s: %w", id, ErrCycleNotFound)
	}

	return c, err
}

// Seams returns the seam results of a cycle in archive order.
func (s *Store) Seams(ctx context.Context, cycleID string) ([]Seam, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cycle_id, seam_series, seam, errors, results, forced, stopped_at
		FROM seams
		WHERE cycle_id = ?
		ORDER BY rowid
	`, cycleID)
	if err != nil {
		return nil, fmt.Errorf("query seams: %w", err)
	}
	defer rows.Close()

	var out []Seam
	for rows.Next() {
		var (
			r       Seam
			stopped int64
		)
		if err := rows.Scan(&r.CycleID, &r.SeamSeries, &r.Seam, &r.Errors, &r.Results, &r.Forced, &stopped); err != nil {
			return nil, fmt.Errorf("scan seam: %w", err)
		}
		r.Stopped = time.UnixMilli(stopped)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query seams: %w", err)
	}

	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCycle(row scanner) (Cycle, error) {
	var (
		c       Cycle
		started int64
		stopped sql.NullInt64
	)
	err := row.Scan(&c.ID, &c.ProductType, &c.ProductNumber, &c.ProductInfo, &started, &stopped,
		&c.Errors, &c.FailedSeams, &c.InspectionOK, &c.Forced)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Cycle{}, err
		}
		return Cycle{}, fmt.Errorf("scan cycle: %w", err)
	}
	c.Started = time.UnixMilli(started)
	if stopped.Valid {
		c.Stopped = time.UnixMilli(stopped.Int64)
	}

	return c, nil
}
