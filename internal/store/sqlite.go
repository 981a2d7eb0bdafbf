package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lox/latamstats/internal/models"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens (creating if needed) the SQLite database at path and applies
// migrations.
func Open(path string) (*Store, *sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	st := New(db)
	if err := st.Migrate(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return st, db, nil
}

func (s *Store) StartPipelineRun(run models.PipelineRun) error {
	_, err := s.db.Exec(`
		INSERT INTO pipeline_runs (id, started_at, indicators, output_path, success)
		VALUES (?, ?, ?, ?, FALSE)
	`, run.ID, run.StartedAt.UTC(), run.Indicators, run.OutputPath)
	return err
}

func (s *Store) CompletePipelineRun(run models.PipelineRun) error {
	finished := run.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	var errMsg sql.NullString
	if run.ErrorMessage != "" {
		errMsg = sql.NullString{String: run.ErrorMessage, Valid: true}
	}

	_, err := s.db.Exec(`
		UPDATE pipeline_runs SET
			finished_at = ?,
			indicators_ok = ?,
			indicators_failed = ?,
			countries = ?,
			output_path = ?,
			success = ?,
			error_message = ?
		WHERE id = ?
	`, finished.UTC(), run.IndicatorsOK, run.IndicatorsFailed, run.Countries,
		run.OutputPath, run.Success, errMsg, run.ID)
	return err
}

// GetRecentPipelineRuns returns the latest runs, newest first.
func (s *Store) GetRecentPipelineRuns(limit int) ([]models.PipelineRun, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, finished_at, indicators, indicators_ok, indicators_failed,
		       countries, output_path, success, error_message
		FROM pipeline_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []models.PipelineRun
	for rows.Next() {
		var (
			r        models.PipelineRun
			finished sql.NullTime
			output   sql.NullString
			errMsg   sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.StartedAt, &finished, &r.Indicators, &r.IndicatorsOK,
			&r.IndicatorsFailed, &r.Countries, &output, &r.Success, &errMsg); err != nil {
			return nil, err
		}
		r.FinishedAt = finished.Time
		r.OutputPath = output.String
		r.ErrorMessage = errMsg.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// UpsertObservations archives observations, replacing the value of an
// existing (indicator, country, year) point. Returns the number stored.
func (s *Store) UpsertObservations(ingestRunID int64, obs []models.Observation) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO observations (indicator, iso3, country, year, value, ingest_run_id, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(indicator, iso3, year) DO UPDATE SET
			country = excluded.country,
			value = excluded.value,
			ingest_run_id = excluded.ingest_run_id,
			fetched_at = excluded.fetched_at
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	stored := 0
	for _, o := range obs {
		if _, err := stmt.Exec(o.Indicator, o.ISO3, o.Country, o.Year, o.Value, ingestRunID, now); err != nil {
			return 0, fmt.Errorf("upsert %s/%s/%d: %w", o.Indicator, o.ISO3, o.Year, err)
		}
		stored++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return stored, nil
}

// GetObservations returns archived observations of an indicator, optionally
// restricted to one country, ordered by country then year.
func (s *Store) GetObservations(indicator, iso3 string) ([]models.Observation, error) {
	rows, err := s.db.Query(`
		SELECT indicator, iso3, country, year, value
		FROM observations
		WHERE indicator = ? AND (? = '' OR iso3 = ?)
		ORDER BY iso3, year
	`, indicator, iso3, iso3)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Observation
	for rows.Next() {
		var o models.Observation
		if err := rows.Scan(&o.Indicator, &o.ISO3, &o.Country, &o.Year, &o.Value); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
