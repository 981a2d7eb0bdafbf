package plot

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"testing"
)

type renderer interface {
	Render(w io.Writer) error
}

func decode(t *testing.T, r renderer) image.Image {
	t.Helper()
	var buf bytes.Buffer
	if err := r.Render(&buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	return img
}

func TestRender(t *testing.T) {
	tests := []struct {
		name   string
		chart  renderer
		width  int
		height int
	}{
		{
			name: "heatmap",
			chart: Heatmap{
				Title:     "Ranking: Inflación Anual (%)",
				RowLabels: []string{"Argentina", "Venezuela, RB", "Peru"},
				ColLabels: []string{"Inflacion_Anual"},
				Values:    [][]float64{{219.9}, {math.NaN()}, {2.4}},
				Ramp:      Reds,
				Format:    "%.1f",
				Width:     600,
				Height:    800,
			},
			width: 600, height: 800,
		},
		{
			name: "bar ranking",
			chart: BarRanking{
				Title: "Desigualdad Social en Sudamérica (Índice Gini)",
				Bars:  []Bar{{"Brasil", 52}, {"Colombia", 54.8}, {"Peru", 40.1}},
				Ramp:  Viridis,
			},
			width: DefaultWidth, height: DefaultHeight,
		},
		{
			name: "bar ranking with negative value",
			chart: BarRanking{
				Bars:   []Bar{{"A", 3}, {"B", -1.5}},
				Format: "$ %.0f",
				Width:  400,
				Height: 300,
			},
			width: 400, height: 300,
		},
		{
			name: "scatter with mean lines",
			chart: Scatter{
				Title:     "Análisis",
				XLabel:    "Inflación Anual (%)",
				YLabel:    "Tasa de Pobreza Nacional (%)",
				Points:    []Point{{X: 2.4, Y: 41.5, Label: "Peru"}, {X: 4.1, Y: 36.4, Label: "Bolivia"}, {X: 7.5, Y: 20, Label: "Chile"}},
				Color:     DarkOrange,
				MeanLines: true,
			},
			width: DefaultWidth, height: DefaultHeight,
		},
		{
			name: "scatter with curve and line",
			chart: Scatter{
				Points:  []Point{{X: 2019, Y: 1}, {X: 2020, Y: 0.5}, {X: 2021, Y: 2}, {X: 2025, Y: 3, Color: Red, Label: "2025"}},
				Curve:   func(x float64) float64 { return (x - 2019) / 2 },
				CurveTo: 2025,
				Lines:   []Line{{Slope: 0, Intercept: 0, Dashed: true}},
				Width:   500,
				Height:  400,
			},
			width: 500, height: 400,
		},
		{
			name:  "single point scatter",
			chart: Scatter{Points: []Point{{X: 1, Y: 1}}, Width: 300, Height: 200},
			width: 300, height: 200,
		},
		{
			name: "histogram",
			chart: Histogram{
				Title:  "Distribución de la Población (Millones)",
				Edges:  []float64{0, 25, 50, 75, 100},
				Counts: []float64{6, 2, 0, 1},
				Color:  Orange,
			},
			width: DefaultWidth, height: DefaultHeight,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := decode(t, tt.chart)
			b := img.Bounds()
			if b.Dx() != tt.width || b.Dy() != tt.height {
				t.Errorf("size = %dx%d, want %dx%d", b.Dx(), b.Dy(), tt.width, tt.height)
			}
		})
	}
}

func TestRender_NoData(t *testing.T) {
	charts := map[string]renderer{
		"heatmap":   Heatmap{},
		"bars":      BarRanking{},
		"scatter":   Scatter{},
		"histogram": Histogram{Edges: []float64{0, 1}},
	}
	for name, c := range charts {
		t.Run(name, func(t *testing.T) {
			if err := c.Render(io.Discard); !errors.Is(err, ErrNoData) {
				t.Errorf("Render() error = %v, want ErrNoData", err)
			}
		})
	}
}

func TestHeatmap_RaggedRows(t *testing.T) {
	h := Heatmap{
		RowLabels: []string{"a", "b"},
		ColLabels: []string{"x", "y"},
		Values:    [][]float64{{1, 2}, {3}},
	}
	if err := h.Render(io.Discard); err == nil || errors.Is(err, ErrNoData) {
		t.Errorf("Render() error = %v, want row length error", err)
	}
}

func TestHeatmap_CellColor(t *testing.T) {
	h := Heatmap{
		RowLabels: []string{"hot", "cold"},
		ColLabels: []string{"v"},
		Values:    [][]float64{{10}, {0}},
		Ramp:      Ramp{"#000000", "#ff0000"},
		Format:    "%.0f",
		Width:     400,
		Height:    400,
	}
	img := decode(t, h)

	// Sample near the left edge of each cell, away from the annotation.
	hot := color.RGBAModel.Convert(img.At(120, marginTop+20)).(color.RGBA)
	cold := color.RGBAModel.Convert(img.At(120, 400-marginBottom-20)).(color.RGBA)
	if hot.R != 255 || hot.G != 0 {
		t.Errorf("hot cell = %v, want red", hot)
	}
	if cold.R != 0 || cold.G != 0 || cold.B != 0 {
		t.Errorf("cold cell = %v, want black", cold)
	}
}

func TestRampAt(t *testing.T) {
	r := Ramp{"#000000", "#ffffff"}
	tests := []struct {
		t    float64
		want uint8
	}{
		{-1, 0},
		{0, 0},
		{0.5, 128},
		{1, 255},
		{2, 255},
		{math.NaN(), 0},
	}
	for _, tt := range tests {
		if got := r.At(tt.t); got.R != tt.want || got.A != 255 {
			t.Errorf("At(%v) = %v, want gray %d", tt.t, got, tt.want)
		}
	}
}

func TestParseHex(t *testing.T) {
	c, err := ParseHex("#4c72b0")
	if err != nil {
		t.Fatal(err)
	}
	if c != (color.RGBA{0x4c, 0x72, 0xb0, 255}) {
		t.Errorf("ParseHex = %v", c)
	}
	for _, bad := range []string{"", "4c72b0", "#4c72b", "#zzzzzz"} {
		if _, err := ParseHex(bad); err == nil {
			t.Errorf("ParseHex(%q) should fail", bad)
		}
	}
}

func TestNiceTicks(t *testing.T) {
	got := niceTicks(0, 100, 5)
	want := []float64{0, 20, 40, 60, 80, 100}
	if len(got) != len(want) {
		t.Fatalf("niceTicks = %v, want %v", got, want)
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Errorf("tick[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
