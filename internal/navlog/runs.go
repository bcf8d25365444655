package navlog

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrRunNotFound is returned when a run ID is not in the database.
var ErrRunNotFound = errors.New("run not found")

// Run describes one navigation session: a live flight or an offline replay.
type Run struct {
	ID         string     `json:"run_id"`
	Source     string     `json:"source"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	ConfigJSON string     `json:"config_json"`
}

// StartRun inserts a new run with a random ID.
func (db *DB) StartRun(source, configJSON string, started time.Time) (Run, error) {
	if configJSON == "" {
		configJSON = "{}"
	}
	run := Run{
		ID:         uuid.NewString(),
		Source:     source,
		StartedAt:  started.UTC(),
		ConfigJSON: configJSON,
	}
	_, err := db.Exec(
		`INSERT INTO runs (run_id, source, started_at, config_json) VALUES (?, ?, ?, ?)`,
		run.ID, run.Source, run.StartedAt.UnixNano(), run.ConfigJSON,
	)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// FinishRun records the end time of a run.
func (db *DB) FinishRun(id string, finished time.Time) error {
	res, err := db.Exec(`UPDATE runs SET finished_at = ? WHERE run_id = ?`, finished.UTC().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// GetRun returns one run.
func (db *DB) GetRun(id string) (Run, error) {
	row := db.QueryRow(`SELECT run_id, source, started_at, finished_at, config_json FROM runs WHERE run_id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// ListRuns returns every run, newest first.
func (db *DB) ListRuns() ([]Run, error) {
	rows, err := db.Query(`SELECT run_id, source, started_at, finished_at, config_json FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		run      Run
		started  int64
		finished sql.NullInt64
	)
	if err := s.Scan(&run.ID, &run.Source, &started, &finished, &run.ConfigJSON); err != nil {
		return Run{}, err
	}
	run.StartedAt = time.Unix(0, started).UTC()
	if finished.Valid {
		t := time.Unix(0, finished.Int64).UTC()
		run.FinishedAt = &t
	}
	return run, nil
}
