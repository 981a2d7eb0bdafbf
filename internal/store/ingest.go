package store

import (
	"database/sql"
	"log"
	"time"

	"github.com/lox/latamstats/internal/models"
	"github.com/lox/latamstats/internal/worldbank"
)

// IngestRun represents a single API fetch operation for auditing.
type IngestRun struct {
	ID                int64
	PipelineRunID     sql.NullString
	StartedAt         time.Time
	FinishedAt        sql.NullTime
	Source            string // "worldbank", "data360"
	Endpoint          string // "observations", "indicator"
	Indicator         sql.NullString
	URL               sql.NullString
	HTTPStatus        sql.NullInt64
	ResponseSizeBytes sql.NullInt64
	RecordsParsed     sql.NullInt64
	RecordsStored     sql.NullInt64
	NullValues        sql.NullInt64
	ParseErrors       sql.NullInt64
	Success           bool
	ErrorMessage      sql.NullString
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// StartIngestRun creates a new ingest run record and returns it.
func (s *Store) StartIngestRun(pipelineRunID, source, endpoint, indicator, url string) (*IngestRun, error) {
	run := &IngestRun{
		PipelineRunID: nullString(pipelineRunID),
		StartedAt:     time.Now().UTC(),
		Source:        source,
		Endpoint:      endpoint,
		Indicator:     nullString(indicator),
		URL:           nullString(url),
	}

	result, err := s.db.Exec(`
		INSERT INTO ingest_runs (pipeline_run_id, started_at, source, endpoint, indicator, url, success)
		VALUES (?, ?, ?, ?, ?, ?, FALSE)
	`, run.PipelineRunID, run.StartedAt, run.Source, run.Endpoint, run.Indicator, run.URL)
	if err != nil {
		return nil, err
	}

	run.ID, err = result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return run, nil
}

// CompleteIngestRun updates the ingest run with results.
func (s *Store) CompleteIngestRun(run *IngestRun) error {
	if run == nil {
		return nil
	}

	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}

	_, err := s.db.Exec(`
		UPDATE ingest_runs SET
			finished_at = ?,
			http_status = ?,
			response_size_bytes = ?,
			records_parsed = ?,
			records_stored = ?,
			null_values = ?,
			parse_errors = ?,
			success = ?,
			error_message = ?
		WHERE id = ?
	`, run.FinishedAt, run.HTTPStatus, run.ResponseSizeBytes, run.RecordsParsed,
		run.RecordsStored, run.NullValues, run.ParseErrors, run.Success, run.ErrorMessage, run.ID)
	return err
}

// RecordFetch archives one indicator fetch: the ingest run, its raw payload
// and the parsed observations. A failed fetch is recorded with its error.
func (s *Store) RecordFetch(pipelineRunID string, ind models.Indicator, res *worldbank.FetchResult, fetchErr error) error {
	url := ""
	if res != nil {
		url = res.URL
	}
	run, err := s.StartIngestRun(pipelineRunID, "worldbank", "observations", ind.Code, url)
	if err != nil {
		return err
	}

	run.Success = fetchErr == nil
	if fetchErr != nil {
		run.ErrorMessage = sql.NullString{String: fetchErr.Error(), Valid: true}
	}

	if res != nil {
		run.HTTPStatus = sql.NullInt64{Int64: int64(res.HTTPStatus), Valid: res.HTTPStatus > 0}
		run.ResponseSizeBytes = sql.NullInt64{Int64: int64(res.ResponseSize), Valid: res.ResponseSize > 0}
		run.RecordsParsed = sql.NullInt64{Int64: int64(len(res.Observations)), Valid: fetchErr == nil}
		run.NullValues = sql.NullInt64{Int64: int64(res.NullValues), Valid: fetchErr == nil}
		if res.ParseErrors > 0 {
			run.ParseErrors = sql.NullInt64{Int64: int64(res.ParseErrors), Valid: true}
			if !run.ErrorMessage.Valid {
				run.ErrorMessage = sql.NullString{String: res.ParseError, Valid: true}
			}
		}

		if len(res.RawBody) > 0 {
			id, err := s.StoreRawPayload(&run.ID, "worldbank", "observations", ind.Code, res.RawBody)
			switch {
			case err != nil:
				log.Printf("store: raw payload for %s: %v", ind.Code, err)
			case id == 0:
				if prev, err := s.GetRawPayloadByHash(PayloadHash(res.RawBody)); err == nil && prev != nil {
					log.Printf("store: %s payload unchanged since %s", ind.Code, prev.FetchedAt.Format(time.RFC3339))
				}
			}
		}

		if fetchErr == nil && len(res.Observations) > 0 {
			stored, err := s.UpsertObservations(run.ID, res.Observations)
			if err != nil {
				log.Printf("store: observations for %s: %v", ind.Code, err)
			} else {
				run.RecordsStored = sql.NullInt64{Int64: int64(stored), Valid: true}
			}
		}
	}

	return s.CompleteIngestRun(run)
}

// GetIngestRuns returns the ingest runs of one pipeline run in start order.
func (s *Store) GetIngestRuns(pipelineRunID string) ([]IngestRun, error) {
	rows, err := s.db.Query(`
		SELECT id, pipeline_run_id, started_at, finished_at, source, endpoint, indicator, url,
		       http_status, response_size_bytes, records_parsed, records_stored,
		       null_values, parse_errors, success, error_message
		FROM ingest_runs
		WHERE pipeline_run_id = ?
		ORDER BY id
	`, pipelineRunID)
	if err != nil {
		return nil, err
	}
	return scanIngestRuns(rows)
}

// IngestHealthSummary represents per-indicator ingest health over a window.
type IngestHealthSummary struct {
	Indicator        string
	TotalRuns        int
	SuccessRuns      int
	FailedRuns       int
	TotalRecords     int64
	TotalParseErrors int64
}

// GetIngestHealth returns per-indicator ingest summaries for the last N days.
func (s *Store) GetIngestHealth(days int) ([]IngestHealthSummary, error) {
	rows, err := s.db.Query(`
		SELECT
			COALESCE(indicator, ''),
			COUNT(*) as total_runs,
			SUM(CASE WHEN success THEN 1 ELSE 0 END) as success_runs,
			SUM(CASE WHEN NOT success THEN 1 ELSE 0 END) as failed_runs,
			COALESCE(SUM(records_stored), 0) as total_records,
			COALESCE(SUM(parse_errors), 0) as total_parse_errors
		FROM ingest_runs
		WHERE SUBSTR(started_at, 1, 19) > datetime('now', '-' || ? || ' days')
		GROUP BY indicator
		ORDER BY indicator
	`, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []IngestHealthSummary
	for rows.Next() {
		var h IngestHealthSummary
		if err := rows.Scan(&h.Indicator, &h.TotalRuns, &h.SuccessRuns, &h.FailedRuns,
			&h.TotalRecords, &h.TotalParseErrors); err != nil {
			return nil, err
		}
		results = append(results, h)
	}
	return results, rows.Err()
}

// GetRecentIngestErrors returns the most recent failed ingest runs.
func (s *Store) GetRecentIngestErrors(limit int) ([]IngestRun, error) {
	rows, err := s.db.Query(`
		SELECT id, pipeline_run_id, started_at, finished_at, source, endpoint, indicator, url,
		       http_status, response_size_bytes, records_parsed, records_stored,
		       null_values, parse_errors, success, error_message
		FROM ingest_runs
		WHERE NOT success
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	return scanIngestRuns(rows)
}

func scanIngestRuns(rows *sql.Rows) ([]IngestRun, error) {
	defer rows.Close()

	var results []IngestRun
	for rows.Next() {
		var r IngestRun
		if err := rows.Scan(&r.ID, &r.PipelineRunID, &r.StartedAt, &r.FinishedAt, &r.Source,
			&r.Endpoint, &r.Indicator, &r.URL, &r.HTTPStatus, &r.ResponseSizeBytes,
			&r.RecordsParsed, &r.RecordsStored, &r.NullValues, &r.ParseErrors,
			&r.Success, &r.ErrorMessage); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
