// Package pipeline runs the fetch, merge and derive stages over the configured
// indicators and produces the merged country table.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lox/latamstats/internal/config"
	"github.com/lox/latamstats/internal/dataset"
	"github.com/lox/latamstats/internal/merge"
	"github.com/lox/latamstats/internal/metrics"
	"github.com/lox/latamstats/internal/models"
	"github.com/lox/latamstats/internal/worldbank"
)

// ErrNoData is returned when no indicator contributed rows.
var ErrNoData = merge.ErrNoData

// ErrNoObservations marks an indicator whose fetch succeeded but yielded no
// usable rows, so it contributed no column.
var ErrNoObservations = errors.New("no observations")

// Fetcher retrieves the observations of one indicator.
type Fetcher interface {
	FetchObservations(ctx context.Context, indicator string, countries []string) (*worldbank.FetchResult, error)
	DateRange() (int, int)
}

// Recorder archives pipeline activity. Implemented by store.Store.
type Recorder interface {
	StartPipelineRun(run models.PipelineRun) error
	CompletePipelineRun(run models.PipelineRun) error
	RecordFetch(pipelineRunID string, ind models.Indicator, res *worldbank.FetchResult, fetchErr error) error
}

type Config struct {
	Fetcher     Fetcher
	Indicators  []models.Indicator
	Countries   []string
	ColumnOrder []string
	Derivations []merge.DerivedColumn

	// OutputPath, when set, receives the CSV of the final table. Nothing is
	// written when the run fails.
	OutputPath string

	// Recorder is optional.
	Recorder Recorder
}

// IndicatorReport is the outcome of one indicator fetch. Err is non-nil
// exactly when the indicator contributed no column.
type IndicatorReport struct {
	Indicator    models.Indicator
	Observations int
	Countries    int
	Flags        map[string]int
	Err          error
}

type Result struct {
	RunID        string
	Table        models.Table
	Header       []string
	Reports      []IndicatorReport
	Availability merge.Availability
	Skipped      []string
}

// Failed returns the reports of indicators that contributed no column.
func (r *Result) Failed() []IndicatorReport {
	var out []IndicatorReport
	for _, rep := range r.Reports {
		if rep.Err != nil {
			out = append(out, rep)
		}
	}
	return out
}

// Run fetches every indicator in turn, folding the successful series into one
// table. A failing indicator is logged and contributes no column; the run
// only fails when no indicator produced rows.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	if cfg.Fetcher == nil {
		return nil, errors.New("pipeline: no fetcher configured")
	}
	derivations := cfg.Derivations
	if derivations == nil {
		derivations = merge.DefaultDerivations
	}
	if cfg.ColumnOrder == nil {
		cfg.ColumnOrder = config.DefaultColumnOrder
	}

	run := models.PipelineRun{
		ID:         uuid.NewString(),
		StartedAt:  time.Now().UTC(),
		Indicators: len(cfg.Indicators),
		OutputPath: cfg.OutputPath,
	}
	if cfg.Recorder != nil {
		if err := cfg.Recorder.StartPipelineRun(run); err != nil {
			log.Printf("pipeline: record run start: %v", err)
		}
	}

	res := &Result{RunID: run.ID}
	table, err := collect(ctx, cfg, run.ID, res)
	if err == nil {
		table, err = finish(cfg, derivations, table, res)
	}

	for _, rep := range res.Reports {
		if rep.Err != nil {
			run.IndicatorsFailed++
		} else {
			run.IndicatorsOK++
		}
	}
	run.FinishedAt = time.Now().UTC()
	run.Success = err == nil
	if err != nil {
		run.ErrorMessage = err.Error()
	} else {
		run.Countries = len(res.Table.Rows)
	}
	if cfg.Recorder != nil {
		if rerr := cfg.Recorder.CompletePipelineRun(run); rerr != nil {
			log.Printf("pipeline: record run completion: %v", rerr)
		}
	}

	return res, err
}

func collect(ctx context.Context, cfg Config, runID string, res *Result) (models.Table, error) {
	dateFrom, dateTo := cfg.Fetcher.DateRange()
	series := make([]models.Table, 0, len(cfg.Indicators))

	for _, ind := range cfg.Indicators {
		if err := ctx.Err(); err != nil {
			return models.Table{}, err
		}

		log.Printf("pipeline: fetching %s (%s)", ind.Name, ind.Code)
		fr, err := cfg.Fetcher.FetchObservations(ctx, ind.Code, cfg.Countries)
		if cfg.Recorder != nil {
			if rerr := cfg.Recorder.RecordFetch(runID, ind, fr, err); rerr != nil {
				log.Printf("pipeline: record fetch %s: %v", ind.Code, rerr)
			}
		}

		rep := IndicatorReport{Indicator: ind}
		if err != nil {
			rep.Err = err
			log.Printf("pipeline: %s failed: %v", ind.Code, err)
			metrics.IndicatorFailures.WithLabelValues(ind.Code).Inc()
			res.Reports = append(res.Reports, rep)
			continue
		}

		rep.Observations = len(fr.Observations)
		rep.Flags = validate(fr.Observations, ind, dateFrom, dateTo)

		t := merge.Series(ind, fr.Observations)
		rep.Countries = len(t.Rows)
		if len(t.Rows) == 0 {
			rep.Err = ErrNoObservations
			log.Printf("pipeline: %s returned no observations", ind.Code)
			metrics.IndicatorFailures.WithLabelValues(ind.Code).Inc()
			res.Reports = append(res.Reports, rep)
			continue
		}
		log.Printf("pipeline: %s: %d observations, %d countries", ind.Code, rep.Observations, rep.Countries)
		res.Reports = append(res.Reports, rep)
		series = append(series, t)
	}

	return merge.Merge(series...)
}

func validate(obs []models.Observation, ind models.Indicator, dateFrom, dateTo int) map[string]int {
	var flags map[string]int
	for _, o := range obs {
		for _, flag := range worldbank.ValidateObservation(o, ind, dateFrom, dateTo) {
			if flags == nil {
				flags = make(map[string]int)
			}
			flags[flag]++
			metrics.ValidationFlags.WithLabelValues(ind.Code, flag).Inc()
		}
	}
	for flag, n := range flags {
		log.Printf("pipeline: %s: %d observations flagged %s", ind.Code, n, flag)
	}
	return flags
}

func finish(cfg Config, derivations []merge.DerivedColumn, merged models.Table, res *Result) (models.Table, error) {
	derived, skipped := merge.Derive(merged, derivations)
	if len(skipped) > 0 {
		log.Printf("pipeline: skipped derived columns: %s", strings.Join(skipped, ", "))
	}

	table, header := merge.Select(derived, cfg.ColumnOrder)
	res.Table = table
	res.Header = header
	res.Availability = merge.AvailabilityOf(table)
	res.Skipped = skipped
	metrics.MergedCountries.Set(float64(len(table.Rows)))

	if cfg.OutputPath != "" {
		if err := dataset.Write(cfg.OutputPath, table, header); err != nil {
			return table, fmt.Errorf("write dataset: %w", err)
		}
		log.Printf("pipeline: wrote %d countries to %s", len(table.Rows), cfg.OutputPath)
	}
	return table, nil
}
