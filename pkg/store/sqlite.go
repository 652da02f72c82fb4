package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists records in a single table; structured fields are
// stored as JSON text.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if strings.Contains(dsn, ":memory:") {
		db.SetMaxOpenConns(1)
	}
	s := &SQLiteStore{db: db}
	if err := s.createTable(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL,
		dataset TEXT NOT NULL,
		problem_type TEXT NOT NULL,
		model_type TEXT NOT NULL,
		ga_version TEXT NOT NULL,
		metric TEXT NOT NULL,
		params TEXT NOT NULL,
		selected TEXT NOT NULL,
		score REAL NOT NULL,
		fitness REAL NOT NULL,
		history TEXT NOT NULL,
		generations INTEGER NOT NULL,
		stopped_early INTEGER NOT NULL,
		seed TEXT NOT NULL,
		baselines TEXT NOT NULL,
		plots TEXT NOT NULL,
		duration_ns INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
	CREATE INDEX IF NOT EXISTS idx_runs_dataset ON runs(dataset);
	`
	_, err := s.db.Exec(query)
	return err
}

const columns = `id, created_at, dataset, problem_type, model_type, ga_version, metric,
	params, selected, score, fitness, history, generations, stopped_early, seed,
	baselines, plots, duration_ns`

func (s *SQLiteStore) Save(r RunRecord) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	blobs := make([]string, 0, 5)
	for _, v := range []interface{}{r.Params, r.Selected, r.History, r.Baselines, r.Plots} {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode run %s: %w", r.ID, err)
		}
		blobs = append(blobs, string(b))
	}

	query := `INSERT OR REPLACE INTO runs (` + columns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.Exec(query,
		r.ID, r.CreatedAt.UTC(), r.Dataset, r.ProblemType, r.ModelType, r.GAVersion, r.Metric,
		blobs[0], blobs[1], r.Score, r.Fitness, blobs[2], r.Generations, r.StoppedEarly,
		fmt.Sprint(r.Seed), blobs[3], blobs[4], int64(r.Duration),
	)
	return err
}

func (s *SQLiteStore) Get(id string) (RunRecord, error) {
	row := s.db.QueryRow(`SELECT `+columns+` FROM runs WHERE id = ?`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, ErrNotFound
	}
	return r, err
}

func (s *SQLiteStore) List(filter Filter) ([]RunRecord, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Dataset != "" {
		where = append(where, "dataset = ?")
		args = append(args, filter.Dataset)
	}
	if filter.ProblemType != "" {
		where = append(where, "problem_type = ?")
		args = append(args, filter.ProblemType)
	}
	query := `SELECT ` + columns + ` FROM runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, max(filter.Offset, 0))
	} else if filter.Offset > 0 {
		query += " LIMIT -1 OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []RunRecord{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(sc scanner) (RunRecord, error) {
	var (
		r                                      RunRecord
		params, selected, history, base, plots string
		seed                                   string
		duration                               int64
	)
	err := sc.Scan(
		&r.ID, &r.CreatedAt, &r.Dataset, &r.ProblemType, &r.ModelType, &r.GAVersion, &r.Metric,
		&params, &selected, &r.Score, &r.Fitness, &history, &r.Generations, &r.StoppedEarly,
		&seed, &base, &plots, &duration,
	)
	if err != nil {
		return RunRecord{}, err
	}
	r.Duration = time.Duration(duration)
	if _, err := fmt.Sscan(seed, &r.Seed); err != nil {
		return RunRecord{}, fmt.Errorf("decode run %s seed: %w", r.ID, err)
	}
	fields := []struct {
		raw string
		dst interface{}
	}{
		{params, &r.Params}, {selected, &r.Selected}, {history, &r.History},
		{base, &r.Baselines}, {plots, &r.Plots},
	}
	for _, f := range fields {
		if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
			return RunRecord{}, fmt.Errorf("decode run %s: %w", r.ID, err)
		}
	}
	return r, nil
}
