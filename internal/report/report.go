// Package report renders the chart set and analysis artifacts of a merged
// dataset into output directories.
package report

import (
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lox/latamstats/internal/analysis"
	"github.com/lox/latamstats/internal/merge"
	"github.com/lox/latamstats/internal/models"
	"github.com/lox/latamstats/internal/plot"
)

// Default output directories.
const (
	ChartsDir     = "graficos"
	ExtraDir      = "imagenes_espaciales"
	RegressionDir = "regresion"
)

// CorrelationColumns are the indicators of the correlation heatmap.
var CorrelationColumns = []string{
	models.ColInflation, models.ColGini, models.ColGDPPerCapita, models.ColPoverty,
}

// RegressionPredictors explain poverty in the regression model.
var RegressionPredictors = []string{
	models.ColInflation, models.ColGini, models.ColGDPPerCapita,
}

type renderer interface {
	Render(w io.Writer) error
}

func writeFile(dir, name string, write func(io.Writer) error) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", name, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", name, err)
	}
	return path, nil
}

func render(dir, name string, r renderer) (string, error) {
	return writeFile(dir, name, r.Render)
}

// withPerCapita fills derived columns a dataset may lack, such as GDP per
// capita for files written before it was part of the column set.
func withPerCapita(t models.Table) models.Table {
	out, _ := merge.Derive(t, merge.DefaultDerivations)
	return out
}

func points(t models.Table, xcol, ycol string) []plot.Point {
	var pts []plot.Point
	for _, r := range t.Rows {
		x, okX := r.Values[xcol]
		y, okY := r.Values[ycol]
		if okX && okY {
			pts = append(pts, plot.Point{X: x, Y: y, Label: r.Name})
		}
	}
	return pts
}

// ranked returns the rows carrying col, highest value first. Ties keep table
// order.
func ranked(t models.Table, col string) []plot.Bar {
	countries, values := t.Column(col)
	bars := make([]plot.Bar, len(values))
	for i := range values {
		bars[i] = plot.Bar{Label: countries[i], Value: values[i]}
	}
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Value > bars[j].Value })
	return bars
}

type chart struct {
	name     string
	dir      string
	requires []string
	build    func(t models.Table) renderer
}

// Exploratory renders every chart whose columns are available into base/graficos
// and base/imagenes_espaciales. It returns the written paths.
func Exploratory(t models.Table, base string) ([]string, error) {
	t = withPerCapita(t)
	avail := merge.AvailabilityOf(t)

	charts := []chart{
		{
			name: "inflacion_heatmap.png", dir: ChartsDir,
			requires: []string{models.ColInflation},
			build: func(t models.Table) renderer {
				bars := ranked(t, models.ColInflation)
				h := plot.Heatmap{
					Title:     "Ranking: Inflación Anual (%)",
					ColLabels: []string{models.ColInflation},
					Ramp:      plot.Reds,
					Format:    "%.1f",
					BarLabel:  "Inflación Anual (%)",
					Width:     600,
					Height:    800,
				}
				for _, b := range bars {
					h.RowLabels = append(h.RowLabels, b.Label)
					h.Values = append(h.Values, []float64{b.Value})
				}
				return h
			},
		},
		{
			name: "gini_ranking.png", dir: ChartsDir,
			requires: []string{models.ColGini},
			build: func(t models.Table) renderer {
				return plot.BarRanking{
					Title:  "Desigualdad Social en Sudamérica (Índice Gini)",
					XLabel: "Índice Gini (0 = Igualdad Perfecta, 100 = Desigualdad Total)",
					Bars:   ranked(t, models.ColGini),
					Ramp:   plot.Viridis,
					Format: "%.1f",
					Width:  1200,
				}
			},
		},
		{
			name: "inflacion_vs_pobreza.png", dir: ChartsDir,
			requires: []string{models.ColInflation, models.ColPoverty},
			build: func(t models.Table) renderer {
				return plot.Scatter{
					Title:     "Análisis: Impacto de la Inflación en la Pobreza",
					XLabel:    "Inflación Anual (%)",
					YLabel:    "Tasa de Pobreza Nacional (%)",
					Points:    points(t, models.ColInflation, models.ColPoverty),
					Color:     plot.DarkOrange,
					MeanLines: true,
					Radius:    9,
					Width:     1200,
					Height:    800,
				}
			},
		},
		{
			name: "pbi_per_capita_ranking.png", dir: ChartsDir,
			requires: []string{models.ColGDPPerCapita},
			build: func(t models.Table) renderer {
				return plot.BarRanking{
					Title:  "Ranking de Riqueza Promedio: PBI Per Cápita (USD)",
					XLabel: "Dólares por Habitante (USD anual)",
					Bars:   ranked(t, models.ColGDPPerCapita),
					Ramp:   plot.Blues,
					Format: "$ %.0f",
					Width:  1200,
				}
			},
		},
		{
			name: "pbi_vs_pobreza.png", dir: ExtraDir,
			requires: []string{models.ColGDPPerCapita, models.ColPoverty},
			build: func(t models.Table) renderer {
				return plot.Scatter{
					Title:  "Relación PBI per Cápita vs. Pobreza Nacional",
					XLabel: "PBI per Cápita (USD)",
					YLabel: "Tasa de Pobreza (%)",
					Points: points(t, models.ColGDPPerCapita, models.ColPoverty),
					Color:  plot.Green,
				}
			},
		},
		{
			name: "inflacion_vs_gini.png", dir: ExtraDir,
			requires: []string{models.ColInflation, models.ColGini},
			build: func(t models.Table) renderer {
				return plot.Scatter{
					Title:  "Relación Inflación vs. Índice Gini",
					XLabel: "Inflación Anual (%)",
					YLabel: "Gini",
					Points: points(t, models.ColInflation, models.ColGini),
					Color:  plot.Purple,
				}
			},
		},
		{
			name: "poblacion_histograma.png", dir: ExtraDir,
			requires: []string{models.ColPopulationMillion},
			build: func(t models.Table) renderer {
				_, values := t.Column(models.ColPopulationMillion)
				h := analysis.NewHistogram(values, 8)
				return plot.Histogram{
					Title:  "Distribución de la Población (Millones)",
					XLabel: "Millones de Habitantes",
					YLabel: "Cantidad de Países",
					Edges:  h.Edges,
					Counts: h.Counts,
					Color:  plot.Orange,
				}
			},
		},
		{
			name: "correlaciones_indicadores.png", dir: ExtraDir,
			requires: CorrelationColumns,
			build: func(t models.Table) renderer {
				corr := analysis.CorrelationMatrix(t, CorrelationColumns)
				h := plot.Heatmap{
					Title:     "Mapa de Calor: Correlaciones entre Indicadores",
					RowLabels: CorrelationColumns,
					ColLabels: CorrelationColumns,
					Ramp:      plot.CoolWarm,
					Min:       -1,
					Max:       1,
					Format:    "%.2f",
					Width:     900,
					Height:    700,
				}
				for i := range CorrelationColumns {
					row := make([]float64, len(CorrelationColumns))
					for j := range row {
						row[j] = corr.At(i, j)
					}
					h.Values = append(h.Values, row)
				}
				return h
			},
		},
	}

	var written []string
	for _, c := range charts {
		if !avail.Has(c.requires...) {
			log.Printf("report: skipping %s: needs %s", c.name, strings.Join(c.requires, ", "))
			continue
		}
		path, err := render(filepath.Join(base, c.dir), c.name, c.build(t))
		if err != nil {
			return written, err
		}
		log.Printf("report: wrote %s", path)
		written = append(written, path)
	}
	return written, nil
}

// Regression fits poverty on inflation, Gini and GDP per capita and writes
// the coefficient table, the Durbin-Watson statistic and the residual
// diagnostic charts into dir.
func Regression(t models.Table, dir string) (*analysis.OLSResult, []string, error) {
	t = withPerCapita(t)
	res, err := analysis.FitOLS(t, models.ColPoverty, RegressionPredictors)
	if err != nil {
		return nil, nil, fmt.Errorf("fit regression: %w", err)
	}

	var written []string
	add := func(path string, err error) error {
		if err != nil {
			return err
		}
		written = append(written, path)
		return nil
	}

	if err := add(writeFile(dir, "regresion_pobreza.csv", res.WriteCoefficientsCSV)); err != nil {
		return res, written, err
	}

	dw := analysis.DurbinWatson(res.Residuals)
	if err := add(writeFile(dir, "durbin_watson.txt", func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "Durbin-Watson statistic: %.3f\n", dw)
		return err
	})); err != nil {
		return res, written, err
	}

	qq := analysis.QQPoints(res.Residuals)
	qqPoints := make([]plot.Point, len(qq.Sample))
	for i := range qq.Sample {
		qqPoints[i] = plot.Point{X: qq.Theoretical[i], Y: qq.Sample[i]}
	}
	if err := add(render(dir, "qq_residuos.png", plot.Scatter{
		Title:  "QQ Plot de los residuos",
		XLabel: "Cuantiles teóricos",
		YLabel: "Cuantiles de la muestra",
		Points: qqPoints,
		Color:  plot.Blue,
		Lines:  []plot.Line{{Slope: qq.Slope, Intercept: qq.Intercept, Color: plot.Red}},
		Radius: 5,
		Width:  800,
	})); err != nil {
		return res, written, err
	}

	fitted := make([]plot.Point, res.N)
	for i := range fitted {
		fitted[i] = plot.Point{X: res.Fitted[i], Y: res.Residuals[i]}
	}
	if err := add(render(dir, "residuos_vs_ajustados.png", plot.Scatter{
		Title:  "Residuos vs Valores Ajustados",
		XLabel: "Valores ajustados",
		YLabel: "Residuos",
		Points: fitted,
		Color:  plot.Blue,
		Lines:  []plot.Line{{Color: plot.Red, Dashed: true}},
		Radius: 5,
		Width:  800,
	})); err != nil {
		return res, written, err
	}

	bins := int(math.Ceil(math.Log2(float64(res.N)))) + 1
	h := analysis.NewHistogram(res.Residuals, bins)
	if err := add(render(dir, "hist_residuos.png", plot.Histogram{
		Title:  "Distribución de los residuos",
		XLabel: "Residuos",
		YLabel: "Frecuencia",
		Edges:  h.Edges,
		Counts: h.Counts,
		Color:  plot.Purple,
		Width:  800,
	})); err != nil {
		return res, written, err
	}

	log.Printf("report: regression on %d countries, R² %.3f, Durbin-Watson %.3f", res.N, res.RSquared, dw)
	return res, written, nil
}

// TrendResult is a polynomial trend fit with its forecast.
type TrendResult struct {
	Poly     analysis.Polynomial
	Target   int
	Forecast float64
	Chart    string
}

// Trend fits a polynomial of the given degree to a yearly series, forecasts
// target and writes the chart into dir.
func Trend(series []models.SeriesPoint, degree, target int, title, dir string) (*TrendResult, error) {
	poly, err := analysis.FitSeries(series, degree)
	if err != nil {
		return nil, fmt.Errorf("fit trend: %w", err)
	}
	res := &TrendResult{Poly: poly, Target: target, Forecast: poly.Eval(float64(target))}

	pts := make([]plot.Point, 0, len(series)+1)
	for _, p := range series {
		pts = append(pts, plot.Point{X: float64(p.Year), Y: p.Value})
	}
	pts = append(pts, plot.Point{
		X:     float64(target),
		Y:     res.Forecast,
		Label: fmt.Sprintf("%d: %.2f mil millones", target, res.Forecast/1e9),
		Color: plot.Red,
	})

	path, err := render(dir, "pbi_tendencia.png", plot.Scatter{
		Title:      title,
		XLabel:     "Año",
		YLabel:     "PIB",
		Points:     pts,
		Color:      plot.SteelBlue,
		Curve:      poly.Eval,
		CurveColor: plot.DarkOrange,
		CurveTo:    float64(target),
		Radius:     5,
		Width:      1200,
	})
	if err != nil {
		return res, err
	}
	res.Chart = path
	return res, nil
}
