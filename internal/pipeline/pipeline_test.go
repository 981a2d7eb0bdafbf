package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	_ "modernc.org/sqlite"

	"github.com/lox/latamstats/internal/models"
	"github.com/lox/latamstats/internal/store"
	"github.com/lox/latamstats/internal/worldbank"
)

var testIndicators = []models.Indicator{
	{Code: "NY.GDP.MKTP.CD", Name: models.ColGDP},
	{Code: "SP.POP.TOTL", Name: models.ColPopulation},
	{Code: "SI.POV.NAHC", Name: models.ColPoverty},
}

func envelope(t *testing.T, obs ...models.Observation) string {
	t.Helper()
	type ref struct {
		ID    string `json:"id"`
		Value string `json:"value"`
	}
	type entry struct {
		Indicator ref     `json:"indicator"`
		Country   ref     `json:"country"`
		ISO3      string  `json:"countryiso3code"`
		Date      string  `json:"date"`
		Value     float64 `json:"value"`
	}
	entries := make([]entry, 0, len(obs))
	for _, o := range obs {
		entries = append(entries, entry{
			Indicator: ref{ID: o.Indicator},
			Country:   ref{Value: o.Country},
			ISO3:      o.ISO3,
			Date:      strconv.Itoa(o.Year),
			Value:     o.Value,
		})
	}
	body, err := json.Marshal([]any{map[string]any{"page": 1, "pages": 1}, entries})
	if err != nil {
		t.Fatal(err)
	}
	return string(body)
}

// newFakeAPI serves one canned body per indicator code. Indicators without a
// body answer 500.
func newFakeAPI(t *testing.T, bodies map[string]string) *worldbank.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(r.URL.Path, "/")
		code := parts[len(parts)-1]
		body, ok := bodies[code]
		if !ok {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	c := worldbank.NewClient(srv.URL, 2019, 2024, 1000)
	c.SetRetryMaxElapsed(0)
	return c
}

func standardBodies(t *testing.T) map[string]string {
	return map[string]string{
		"NY.GDP.MKTP.CD": envelope(t,
			models.Observation{Indicator: "NY.GDP.MKTP.CD", ISO3: "PER", Country: "Peru", Year: 2023, Value: 450e9},
			models.Observation{Indicator: "NY.GDP.MKTP.CD", ISO3: "BOL", Country: "Bolivia", Year: 2023, Value: 45e9},
		),
		"SP.POP.TOTL": envelope(t,
			models.Observation{Indicator: "SP.POP.TOTL", ISO3: "PER", Country: "Peru", Year: 2023, Value: 30e6},
			models.Observation{Indicator: "SP.POP.TOTL", ISO3: "BOL", Country: "Bolivia", Year: 2023, Value: 12e6},
		),
		"SI.POV.NAHC": envelope(t,
			models.Observation{Indicator: "SI.POV.NAHC", ISO3: "PER", Country: "Peru", Year: 2023, Value: 40.1},
			models.Observation{Indicator: "SI.POV.NAHC", ISO3: "PER", Country: "Peru", Year: 2024, Value: 41.5},
		),
	}
}

func TestRun(t *testing.T) {
	client := newFakeAPI(t, standardBodies(t))
	out := filepath.Join(t.TempDir(), "archivos csv", "datos_sudamerica.csv")

	res, err := Run(context.Background(), Config{
		Fetcher:    client,
		Indicators: testIndicators,
		Countries:  []string{"PER", "BOL"},
		OutputPath: out,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.RunID == "" {
		t.Error("RunID should be set")
	}

	wantHeader := []string{
		models.ColCountry, models.ColISO3, models.ColYear,
		models.ColGDPBillions, models.ColPopulationMillion,
		models.ColPoverty, models.ColGDPPerCapita,
	}
	if diff := cmp.Diff(wantHeader, res.Header); diff != "" {
		t.Errorf("header mismatch (-want +got):\n%s", diff)
	}

	per, ok := res.Table.Row("Peru")
	if !ok {
		t.Fatal("Peru missing from table")
	}
	if v, _ := per.Value(models.ColPoverty); v != 41.5 {
		t.Errorf("Peru poverty = %v, want 41.5", v)
	}
	if v, _ := per.Value(models.ColGDPPerCapita); v != 15000 {
		t.Errorf("Peru GDP per capita = %v, want 15000", v)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	want := "País,Codigo_ISO,Año,PBI_Billions,Poblacion_Millones,Pobreza_Nacional,PBI_Per_Capita\n" +
		"Bolivia,BOL,2023,45,12,,3750\n" +
		"Peru,PER,2024,450,30,41.5,15000\n"
	if string(data) != want {
		t.Errorf("output =\n%s\nwant\n%s", data, want)
	}
}

func TestRun_FailingIndicatorNarrowsTable(t *testing.T) {
	bodies := standardBodies(t)
	delete(bodies, "SI.POV.NAHC")
	client := newFakeAPI(t, bodies)

	res, err := Run(context.Background(), Config{
		Fetcher:    client,
		Indicators: testIndicators,
		Countries:  []string{"PER", "BOL"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Table.HasColumn(models.ColPoverty) {
		t.Error("poverty column should be absent")
	}
	if !res.Availability.Has(models.ColGDPPerCapita) {
		t.Error("per-capita column should still be derived")
	}

	failed := res.Failed()
	if len(failed) != 1 || failed[0].Indicator.Code != "SI.POV.NAHC" {
		t.Fatalf("Failed() = %+v, want SI.POV.NAHC only", failed)
	}
	if failed[0].Err == nil {
		t.Error("failed report should carry the error")
	}
}

func TestRun_MissingInputsSkipDerivations(t *testing.T) {
	bodies := standardBodies(t)
	delete(bodies, "SP.POP.TOTL")
	client := newFakeAPI(t, bodies)

	res, err := Run(context.Background(), Config{
		Fetcher:    client,
		Indicators: testIndicators,
		Countries:  []string{"PER", "BOL"},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{models.ColPopulationMillion, models.ColGDPPerCapita}
	if diff := cmp.Diff(want, res.Skipped); diff != "" {
		t.Errorf("skipped mismatch (-want +got):\n%s", diff)
	}
	if !res.Table.HasColumn(models.ColGDPBillions) {
		t.Error("GDP billions should be derived")
	}
}

func TestRun_AllIndicatorsFail(t *testing.T) {
	client := newFakeAPI(t, map[string]string{
		"SP.POP.TOTL": `[{"page":1}]`,
	})
	out := filepath.Join(t.TempDir(), "datos.csv")

	res, err := Run(context.Background(), Config{
		Fetcher:    client,
		Indicators: testIndicators,
		Countries:  []string{"PER"},
		OutputPath: out,
	})
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("Run() error = %v, want ErrNoData", err)
	}
	if len(res.Reports) != 3 {
		t.Errorf("len(Reports) = %d, want 3", len(res.Reports))
	}
	if _, err := os.Stat(out); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("output should not exist, stat error = %v", err)
	}
}

func TestRun_Idempotent(t *testing.T) {
	client := newFakeAPI(t, standardBodies(t))
	dir := t.TempDir()

	var outputs [][]byte
	for _, name := range []string{"a.csv", "b.csv"} {
		path := filepath.Join(dir, name)
		if _, err := Run(context.Background(), Config{
			Fetcher:    client,
			Indicators: testIndicators,
			Countries:  []string{"PER", "BOL"},
			OutputPath: path,
		}); err != nil {
			t.Fatalf("Run: %v", err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		outputs = append(outputs, data)
	}
	if string(outputs[0]) != string(outputs[1]) {
		t.Errorf("outputs differ:\n%s\nvs\n%s", outputs[0], outputs[1])
	}
}

func TestRun_CancelledContext(t *testing.T) {
	client := newFakeAPI(t, standardBodies(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, Config{
		Fetcher:    client,
		Indicators: testIndicators,
		Countries:  []string{"PER"},
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

type fakeRecorder struct {
	started   []models.PipelineRun
	completed []models.PipelineRun
	fetches   []string
}

func (f *fakeRecorder) StartPipelineRun(run models.PipelineRun) error {
	f.started = append(f.started, run)
	return nil
}

func (f *fakeRecorder) CompletePipelineRun(run models.PipelineRun) error {
	f.completed = append(f.completed, run)
	return nil
}

func (f *fakeRecorder) RecordFetch(runID string, ind models.Indicator, res *worldbank.FetchResult, err error) error {
	f.fetches = append(f.fetches, ind.Code)
	return errors.New("disk full")
}

func TestRun_Recorder(t *testing.T) {
	bodies := standardBodies(t)
	delete(bodies, "SI.POV.NAHC")
	client := newFakeAPI(t, bodies)
	rec := &fakeRecorder{}

	res, err := Run(context.Background(), Config{
		Fetcher:    client,
		Indicators: testIndicators,
		Countries:  []string{"PER", "BOL"},
		Recorder:   rec,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(rec.started) != 1 || len(rec.completed) != 1 {
		t.Fatalf("started/completed = %d/%d, want 1/1", len(rec.started), len(rec.completed))
	}
	done := rec.completed[0]
	if done.ID != res.RunID || rec.started[0].ID != res.RunID {
		t.Errorf("run IDs do not match result %q", res.RunID)
	}
	if !done.Success || done.IndicatorsOK != 2 || done.IndicatorsFailed != 1 || done.Countries != 2 {
		t.Errorf("completed run = %+v", done)
	}
	want := []string{"NY.GDP.MKTP.CD", "SP.POP.TOTL", "SI.POV.NAHC"}
	if diff := cmp.Diff(want, rec.fetches); diff != "" {
		t.Errorf("recorded fetches mismatch (-want +got):\n%s", diff)
	}
}

func TestRun_ShortEnvelopeCountsAsFailed(t *testing.T) {
	bodies := standardBodies(t)
	bodies["SI.POV.NAHC"] = `[{"message":[{"id":"120","key":"Invalid value","value":"The provided parameter value is not valid"}]}]`
	client := newFakeAPI(t, bodies)
	rec := &fakeRecorder{}

	res, err := Run(context.Background(), Config{
		Fetcher:    client,
		Indicators: testIndicators,
		Countries:  []string{"PER", "BOL"},
		Recorder:   rec,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Table.HasColumn(models.ColPoverty) {
		t.Error("poverty column should be absent")
	}

	failed := res.Failed()
	if len(failed) != 1 || failed[0].Indicator.Code != "SI.POV.NAHC" {
		t.Fatalf("Failed() = %+v, want SI.POV.NAHC only", failed)
	}
	if !errors.Is(failed[0].Err, ErrNoObservations) {
		t.Errorf("Err = %v, want ErrNoObservations", failed[0].Err)
	}

	done := rec.completed[0]
	if done.IndicatorsOK != 2 || done.IndicatorsFailed != 1 {
		t.Errorf("ok/failed = %d/%d, want 2/1", done.IndicatorsOK, done.IndicatorsFailed)
	}
}

func TestRun_SQLiteRecorder(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	st := store.New(db)
	if err := st.Migrate(); err != nil {
		t.Fatal(err)
	}

	client := newFakeAPI(t, standardBodies(t))
	res, err := Run(context.Background(), Config{
		Fetcher:    client,
		Indicators: testIndicators,
		Countries:  []string{"PER", "BOL"},
		Recorder:   st,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	runs, err := st.GetIngestRuns(res.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 3 {
		t.Fatalf("len(ingest runs) = %d, want 3", len(runs))
	}
	obs, err := st.GetObservations("SI.POV.NAHC", "PER")
	if err != nil {
		t.Fatal(err)
	}
	if len(obs) != 2 {
		t.Errorf("archived PER poverty points = %d, want 2", len(obs))
	}

	pipelineRuns, err := st.GetRecentPipelineRuns(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(pipelineRuns) != 1 || !pipelineRuns[0].Success || pipelineRuns[0].Countries != 2 {
		t.Errorf("pipeline runs = %+v", pipelineRuns)
	}
}
