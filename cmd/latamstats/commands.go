package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/lox/latamstats/internal/analysis"
	"github.com/lox/latamstats/internal/dataset"
	"github.com/lox/latamstats/internal/htmlutil"
	"github.com/lox/latamstats/internal/narrative"
	"github.com/lox/latamstats/internal/pipeline"
	"github.com/lox/latamstats/internal/publish"
	"github.com/lox/latamstats/internal/report"
	"github.com/lox/latamstats/internal/store"
	"github.com/lox/latamstats/internal/worldbank"
)

type FetchCmd struct {
	RetryMaxElapsed time.Duration `help:"Retry rate-limited and 5xx responses for up to this long. The default retries; set 0 for a single attempt per indicator." default:"30s" env:"LATAMSTATS_RETRY_MAX_ELAPSED"`
}

func (c *FetchCmd) Run(a *app) error {
	client := worldbank.NewClient(a.cfg.BaseURL, a.cfg.DateFrom, a.cfg.DateTo, a.cfg.PerPage)
	client.SetRetryMaxElapsed(c.RetryMaxElapsed)
	log.Printf("fetch: %d indicators for %s, %d:%d",
		len(a.cfg.Indicators), a.cfg.CountryCodes(), a.cfg.DateFrom, a.cfg.DateTo)

	pcfg := pipeline.Config{
		Fetcher:     client,
		Indicators:  a.cfg.Indicators,
		Countries:   a.cfg.Countries,
		ColumnOrder: a.cfg.ColumnOrder,
		OutputPath:  a.datasetPath(),
	}

	if a.cli.DB != "" {
		if err := os.MkdirAll(filepath.Dir(a.cli.DB), 0755); err != nil {
			return fmt.Errorf("create database directory: %w", err)
		}
		st, db, err := store.Open(a.cli.DB)
		if err != nil {
			return err
		}
		defer db.Close()
		pcfg.Recorder = st
	}

	res, err := pipeline.Run(a.ctx, pcfg)
	if err != nil {
		return err
	}

	for _, rep := range res.Reports {
		status := "ok"
		if rep.Err != nil {
			status = "failed: " + rep.Err.Error()
		}
		fmt.Printf("%-20s %-18s %4d obs %3d countries  %s\n",
			rep.Indicator.Name, rep.Indicator.Code, rep.Observations, rep.Countries, status)
	}
	for _, s := range res.Skipped {
		fmt.Printf("skipped derived column %s\n", s)
	}
	fmt.Printf("wrote %d countries to %s (run %s)\n", len(res.Table.Rows), pcfg.OutputPath, res.RunID)
	return nil
}

type DescribeCmd struct {
	Meta bool `help:"Fetch indicator metadata from the World Bank." default:"true" negatable:""`
}

func (c *DescribeCmd) Run(a *app) error {
	t, err := dataset.Read(a.datasetPath())
	if err != nil {
		return err
	}

	if c.Meta {
		client := worldbank.NewClient(a.cfg.BaseURL, a.cfg.DateFrom, a.cfg.DateTo, a.cfg.PerPage)
		for _, ind := range a.cfg.Indicators {
			meta, err := client.FetchIndicatorMeta(a.ctx, ind.Code)
			if err != nil {
				log.Printf("describe: metadata for %s: %v", ind.Code, err)
				continue
			}
			fmt.Printf("%s (%s)\n  %s\n", ind.Name, meta.Code, meta.Name)
			if meta.SourceOrganization != "" {
				fmt.Printf("  Source: %s\n", meta.SourceOrganization)
			}
			if meta.SourceNote != "" {
				fmt.Printf("  %s\n", htmlutil.Truncate(meta.SourceNote, 160))
			}
		}
		fmt.Println()
	}

	fmt.Printf("%d countries, columns: %s\n\n", len(t.Rows), strings.Join(t.Columns, ", "))
	fmt.Printf("%-20s %5s %12s %12s %12s %12s %12s %12s %12s\n",
		"", "count", "mean", "std", "min", "25%", "50%", "75%", "max")
	for _, s := range analysis.Describe(t, t.Columns) {
		fmt.Printf("%-20s %5d %12.4g %12.4g %12.4g %12.4g %12.4g %12.4g %12.4g\n",
			s.Column, s.Count, s.Mean, s.Std, s.Min, s.Q1, s.Median, s.Q3, s.Max)
	}
	return nil
}

type PlotsCmd struct {
	Out string `help:"Base directory for chart folders." default:"." type:"path"`
}

func (c *PlotsCmd) Run(a *app) error {
	t, err := dataset.Read(a.datasetPath())
	if err != nil {
		return err
	}
	written, err := report.Exploratory(t, c.Out)
	for _, p := range written {
		fmt.Println(p)
	}
	return err
}

type RegressCmd struct {
	Out string `help:"Directory for regression outputs." default:"regresion" type:"path"`
}

func (c *RegressCmd) Run(a *app) error {
	t, err := dataset.Read(a.datasetPath())
	if err != nil {
		return err
	}
	res, written, err := report.Regression(t, c.Out)
	if err != nil {
		return err
	}

	fmt.Printf("%s ~ %s (n=%d)\n", res.Response, strings.Join(res.Predictors, " + "), res.N)
	fmt.Printf("R² %.4f, adjusted %.4f\n\n", res.RSquared, res.AdjRSquared)
	if err := res.WriteCoefficientsCSV(os.Stdout); err != nil {
		return err
	}
	fmt.Println()
	for _, p := range written {
		fmt.Println(p)
	}
	return nil
}

type TrendCmd struct {
	Out             string        `help:"Directory for the trend chart." default:"." type:"path"`
	RetryMaxElapsed time.Duration `help:"Retry rate-limited and 5xx responses for up to this long. Zero makes a single attempt." default:"30s" env:"LATAMSTATS_RETRY_MAX_ELAPSED"`
}

func (c *TrendCmd) Run(a *app) error {
	tr := a.cfg.Trend
	client := worldbank.NewData360Client(a.cfg.Data360URL)
	client.SetRetryMaxElapsed(c.RetryMaxElapsed)
	series, err := client.FetchSeries(a.ctx, tr.Database, tr.Area, tr.Indicator)
	if err != nil {
		return err
	}
	if len(series) == 0 {
		return fmt.Errorf("no observations for %s in %s", tr.Indicator, tr.Area)
	}

	title := fmt.Sprintf("Tendencia del PIB (%s) con proyección %d", tr.Area, tr.Target)
	res, err := report.Trend(series, tr.Degree, tr.Target, title, c.Out)
	if err != nil {
		return err
	}
	fmt.Printf("Proyección del PIB para %d: %.2f mil millones\n", res.Target, res.Forecast/1e9)
	fmt.Println(res.Chart)
	return nil
}

type SummarizeCmd struct {
	Model    string        `help:"Chat model." default:"gpt-4o-mini" env:"LATAMSTATS_OPENAI_MODEL"`
	CacheDir string        `help:"Directory for cached summaries. Empty disables caching." default:"data/narrative" type:"path"`
	MaxAge   time.Duration `help:"Reuse cached summaries younger than this." default:"168h"`
	Output   string        `help:"Also write the summary to this file." type:"path"`
}

func (c *SummarizeCmd) Run(a *app) error {
	t, err := dataset.Read(a.datasetPath())
	if err != nil {
		return err
	}

	gen, err := narrative.NewGenerator()
	if err != nil {
		return err
	}
	gen.SetModel(c.Model)
	if c.CacheDir != "" {
		gen.SetCache(narrative.NewCache(c.CacheDir, c.MaxAge))
	}

	text, err := gen.Summarize(a.ctx, t)
	if err != nil {
		return err
	}
	fmt.Println(text)

	if c.Output != "" {
		if err := os.WriteFile(c.Output, []byte(text+"\n"), 0644); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	return nil
}

type PublishCmd struct {
	Host     string        `help:"FTP server as host:port." env:"LATAMSTATS_FTP_HOST" required:""`
	User     string        `help:"FTP user. Anonymous when empty." env:"LATAMSTATS_FTP_USER"`
	Password string        `help:"FTP password." env:"LATAMSTATS_FTP_PASSWORD"`
	Dir      string        `help:"Remote base directory." env:"LATAMSTATS_FTP_DIR" default:"/"`
	Base     string        `help:"Local directory holding the outputs." default:"."`
	Timeout  time.Duration `help:"Connection timeout." default:"30s"`
}

func (c *PublishCmd) Run(a *app) error {
	files, err := c.outputs(a.datasetPath())
	if err != nil {
		return err
	}

	p := publish.New(publish.Config{
		Host:     c.Host,
		User:     c.User,
		Password: c.Password,
		Dir:      c.Dir,
		Timeout:  c.Timeout,
	})
	written, err := p.Upload(a.ctx, c.Base, files)
	fmt.Printf("uploaded %d of %d files to %s\n", len(written), len(files), c.Host)
	return err
}

// outputs lists the dataset and every generated artifact under Base.
func (c *PublishCmd) outputs(datasetPath string) ([]string, error) {
	if _, err := os.Stat(datasetPath); err != nil {
		return nil, fmt.Errorf("dataset: %w", err)
	}
	files := []string{datasetPath}

	for _, dir := range []string{report.ChartsDir, report.ExtraDir, report.RegressionDir} {
		matches, err := filepath.Glob(filepath.Join(c.Base, dir, "*"))
		if err != nil {
			return nil, err
		}
		sort.Strings(matches)
		files = append(files, matches...)
	}
	if trend := filepath.Join(c.Base, "pbi_tendencia.png"); fileExists(trend) {
		files = append(files, trend)
	}
	return files, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

type RunsCmd struct {
	Limit     int    `help:"Number of pipeline runs to show." default:"10"`
	Days      int    `help:"Ingest health window in days." default:"30"`
	PruneDays int    `help:"Delete raw payloads older than this many days. Zero keeps everything." default:"0"`
	RunID     string `name:"run" help:"Show the ingest runs of this pipeline run. Defaults to the latest."`
	Indicator string `help:"Print the archived observations of this indicator code."`
	Country   string `help:"Restrict --indicator output to one ISO3 code."`
	Payload   int64  `help:"Write the raw payload with this ID to stdout and exit."`
}

func (c *RunsCmd) Run(a *app) error {
	if a.cli.DB == "" {
		return errors.New("no database configured")
	}
	if !fileExists(a.cli.DB) {
		return fmt.Errorf("database %s: %w", a.cli.DB, os.ErrNotExist)
	}
	st, db, err := store.Open(a.cli.DB)
	if err != nil {
		return err
	}
	defer db.Close()

	if c.Payload > 0 {
		body, err := st.GetRawPayload(c.Payload)
		if err != nil {
			return fmt.Errorf("raw payload %d: %w", c.Payload, err)
		}
		_, err = os.Stdout.Write(body)
		return err
	}
	if c.Indicator != "" {
		return printObservations(st, c.Indicator, c.Country)
	}

	runs, err := st.GetRecentPipelineRuns(c.Limit)
	if err != nil {
		return fmt.Errorf("pipeline runs: %w", err)
	}
	fmt.Println("Recent runs:")
	for _, r := range runs {
		status := "ok"
		if !r.Success {
			status = "failed"
			if r.ErrorMessage != "" {
				status += ": " + r.ErrorMessage
			}
		}
		fmt.Printf("  %s  %s  %d/%d indicators  %d countries  %s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04"), r.ID,
			r.IndicatorsOK, r.Indicators, r.Countries, status)
	}

	runID := c.RunID
	if runID == "" && len(runs) > 0 {
		runID = runs[0].ID
	}
	if runID != "" {
		ingests, err := st.GetIngestRuns(runID)
		if err != nil {
			return fmt.Errorf("ingest runs: %w", err)
		}
		fmt.Printf("\nIngest runs of %s:\n", runID)
		for _, r := range ingests {
			status := "ok"
			if !r.Success {
				status = "failed: " + r.ErrorMessage.String
			}
			fmt.Printf("  %-18s HTTP %3d  %5d bytes  %4d parsed  %4d stored  %3d null  %s\n",
				r.Indicator.String, r.HTTPStatus.Int64, r.ResponseSizeBytes.Int64,
				r.RecordsParsed.Int64, r.RecordsStored.Int64, r.NullValues.Int64, status)
		}
	}

	health, err := st.GetIngestHealth(c.Days)
	if err != nil {
		return fmt.Errorf("ingest health: %w", err)
	}
	fmt.Printf("\nIngest health (last %d days):\n", c.Days)
	for _, h := range health {
		fmt.Printf("  %-18s %3d runs  %3d failed  %6d records  %3d parse errors\n",
			h.Indicator, h.TotalRuns, h.FailedRuns, h.TotalRecords, h.TotalParseErrors)
	}

	failures, err := st.GetRecentIngestErrors(5)
	if err != nil {
		return fmt.Errorf("ingest errors: %w", err)
	}
	if len(failures) > 0 {
		fmt.Println("\nRecent errors:")
		for _, f := range failures {
			fmt.Printf("  %s  %s  %s\n", f.StartedAt.Local().Format("2006-01-02 15:04"),
				f.Indicator.String, f.ErrorMessage.String)
		}
	}

	if c.PruneDays > 0 {
		n, err := st.CleanupOldRawPayloads(c.PruneDays)
		if err != nil {
			return fmt.Errorf("prune raw payloads: %w", err)
		}
		log.Printf("runs: pruned %d raw payloads older than %d days", n, c.PruneDays)
	}

	stats, err := st.GetRawPayloadStats()
	if err != nil {
		return fmt.Errorf("raw payload stats: %w", err)
	}
	fmt.Printf("\nRaw payloads: %d (%.1f KiB compressed)\n", stats.TotalCount, float64(stats.TotalSizeBytes)/1024)
	return nil
}

func printObservations(st *store.Store, indicator, iso3 string) error {
	obs, err := st.GetObservations(indicator, iso3)
	if err != nil {
		return fmt.Errorf("observations: %w", err)
	}
	if len(obs) == 0 {
		return fmt.Errorf("no archived observations for %s", indicator)
	}
	for _, o := range obs {
		fmt.Printf("%s  %-20s %d  %s\n", o.ISO3, o.Country, o.Year, dataset.FormatFloat(o.Value))
	}
	return nil
}
