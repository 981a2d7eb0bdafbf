package report

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lox/latamstats/internal/analysis"
	"github.com/lox/latamstats/internal/dataset"
	"github.com/lox/latamstats/internal/models"
)

func row(name, iso string, vals map[string]float64) models.CountryRecord {
	return models.CountryRecord{Name: name, ISO3: iso, Values: vals, Years: map[string]int{models.ColYear: 2023}}
}

func fullTable() models.Table {
	return models.Table{
		Columns: []string{
			models.ColGDPBillions, models.ColPopulationMillion,
			models.ColPoverty, models.ColInflation, models.ColGini,
		},
		Rows: []models.CountryRecord{
			row("Argentina", "ARG", map[string]float64{models.ColGDPBillions: 640, models.ColPopulationMillion: 46, models.ColPoverty: 40.1, models.ColInflation: 133.5, models.ColGini: 42.4}),
			row("Bolivia", "BOL", map[string]float64{models.ColGDPBillions: 45.9, models.ColPopulationMillion: 12.2, models.ColPoverty: 36.4, models.ColInflation: 2.6, models.ColGini: 40.9}),
			row("Brasil", "BRA", map[string]float64{models.ColGDPBillions: 2170, models.ColPopulationMillion: 216, models.ColPoverty: 27.4, models.ColInflation: 4.6, models.ColGini: 52}),
			row("Chile", "CHL", map[string]float64{models.ColGDPBillions: 335, models.ColPopulationMillion: 19.6, models.ColPoverty: 6.5, models.ColInflation: 7.6, models.ColGini: 43}),
			row("Colombia", "COL", map[string]float64{models.ColGDPBillions: 364, models.ColPopulationMillion: 52, models.ColPoverty: 33, models.ColInflation: 11.7, models.ColGini: 54.8}),
			row("Ecuador", "ECU", map[string]float64{models.ColGDPBillions: 118, models.ColPopulationMillion: 18, models.ColPoverty: 27, models.ColInflation: 2.2, models.ColGini: 45.5}),
			row("Peru", "PER", map[string]float64{models.ColGDPBillions: 267, models.ColPopulationMillion: 34, models.ColPoverty: 29, models.ColInflation: 6.5, models.ColGini: 40.3}),
			row("Uruguay", "URY", map[string]float64{models.ColGDPBillions: 77, models.ColPopulationMillion: 3.4, models.ColPoverty: 10.1, models.ColInflation: 5.9, models.ColGini: 40.6}),
		},
	}
}

func TestExploratory(t *testing.T) {
	dir := t.TempDir()
	written, err := Exploratory(fullTable(), dir)
	if err != nil {
		t.Fatalf("Exploratory: %v", err)
	}
	if len(written) != 8 {
		t.Fatalf("wrote %d charts, want 8: %v", len(written), written)
	}
	for _, want := range []string{
		filepath.Join(dir, ChartsDir, "inflacion_heatmap.png"),
		filepath.Join(dir, ChartsDir, "pbi_per_capita_ranking.png"),
		filepath.Join(dir, ExtraDir, "correlaciones_indicadores.png"),
		filepath.Join(dir, ExtraDir, "poblacion_histograma.png"),
	} {
		if _, err := os.Stat(want); err != nil {
			t.Errorf("missing %s: %v", want, err)
		}
	}
}

func TestExploratory_SkipsUnavailableCharts(t *testing.T) {
	tbl := models.Table{
		Columns: []string{models.ColGini},
		Rows: []models.CountryRecord{
			row("Peru", "PER", map[string]float64{models.ColGini: 40.3}),
			row("Chile", "CHL", map[string]float64{models.ColGini: 43}),
		},
	}
	written, err := Exploratory(tbl, t.TempDir())
	if err != nil {
		t.Fatalf("Exploratory: %v", err)
	}
	if len(written) != 1 || filepath.Base(written[0]) != "gini_ranking.png" {
		t.Errorf("written = %v, want only gini_ranking.png", written)
	}
}

func TestExploratory_FromFileWithMissingMarkers(t *testing.T) {
	csv := "País,Codigo_ISO,Año,PBI_Billions,Poblacion_Millones,Pobreza_Nacional,Inflacion_Anual,Indice_Gini\n" +
		"Argentina,ARG,2023,640,46,40.1,133.5,42.4\n" +
		"Bolivia,BOL,2023,45.9,12.2,36.4,2.6,40.9\n" +
		"Chile,CHL,2023,335,19.6,NA,7.6,43\n" +
		"Colombia,COL,2023,364,52,33,11.7,nan\n" +
		"Peru,PER,2024,267,NaN,29,6.5,40.3\n"
	tbl, err := dataset.Decode(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	dir := t.TempDir()
	if _, err := Exploratory(tbl, dir); err != nil {
		t.Fatalf("Exploratory: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ExtraDir, "poblacion_histograma.png")); err != nil {
		t.Errorf("population histogram not written: %v", err)
	}
}

func TestRanked(t *testing.T) {
	bars := ranked(fullTable(), models.ColGini)
	if bars[0].Label != "Colombia" || bars[len(bars)-1].Label != "Peru" {
		t.Errorf("ranking = %v, want Colombia first and Peru last", bars)
	}
}

func TestRegression(t *testing.T) {
	dir := t.TempDir()
	res, written, err := Regression(fullTable(), dir)
	if err != nil {
		t.Fatalf("Regression: %v", err)
	}
	if res.N != 8 {
		t.Errorf("N = %d, want 8", res.N)
	}
	if len(written) != 5 {
		t.Errorf("wrote %d files, want 5: %v", len(written), written)
	}

	coefs, err := os.ReadFile(filepath.Join(dir, "regresion_pobreza.csv"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(coefs)), "\n")
	if len(lines) != 5 {
		t.Fatalf("coefficient rows = %d, want header + 4", len(lines))
	}
	if !strings.HasPrefix(lines[1], "const,") || !strings.HasPrefix(lines[4], models.ColGDPPerCapita+",") {
		t.Errorf("coefficient rows = %q", lines)
	}

	dw, err := os.ReadFile(filepath.Join(dir, "durbin_watson.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(dw), "Durbin-Watson statistic: ") {
		t.Errorf("durbin_watson.txt = %q", dw)
	}
}

func TestRegression_InsufficientData(t *testing.T) {
	tbl := fullTable()
	tbl.Rows = tbl.Rows[:4]
	_, _, err := Regression(tbl, t.TempDir())
	if !errors.Is(err, analysis.ErrInsufficientData) {
		t.Errorf("Regression() error = %v, want ErrInsufficientData", err)
	}
}

func TestTrend(t *testing.T) {
	var series []models.SeriesPoint
	for year := 2000; year <= 2024; year++ {
		u := float64(year - 2000)
		series = append(series, models.SeriesPoint{Year: year, Value: 1e11 + 5e9*u + 1e8*u*u})
	}

	dir := t.TempDir()
	res, err := Trend(series, 3, 2025, "Evolución del PIB de Perú", dir)
	if err != nil {
		t.Fatalf("Trend: %v", err)
	}
	want := 1e11 + 5e9*25 + 1e8*625
	if math.Abs(res.Forecast-want)/want > 1e-6 {
		t.Errorf("Forecast = %v, want %v", res.Forecast, want)
	}
	if _, err := os.Stat(res.Chart); err != nil {
		t.Errorf("chart not written: %v", err)
	}
}
