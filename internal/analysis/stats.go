package analysis

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/lox/latamstats/internal/models"
)

// Correlation is a symmetric Pearson correlation matrix over named columns.
type Correlation struct {
	Columns []string
	Matrix  *mat.SymDense
}

// At returns the correlation between columns i and j.
func (c Correlation) At(i, j int) float64 {
	return c.Matrix.At(i, j)
}

// CorrelationMatrix computes Pearson correlations using, for each pair, the
// rows where both columns are present. Pairs with fewer than two such rows,
// or with a constant column, are NaN.
func CorrelationMatrix(t models.Table, columns []string) Correlation {
	k := len(columns)
	m := mat.NewSymDense(k, nil)
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			x, y := pairwise(t, columns[i], columns[j])
			r := math.NaN()
			if len(x) >= 2 {
				r = stat.Correlation(x, y, nil)
			}
			m.SetSym(i, j, r)
		}
	}
	return Correlation{Columns: append([]string(nil), columns...), Matrix: m}
}

func pairwise(t models.Table, a, b string) (x, y []float64) {
	for _, r := range t.Rows {
		va, okA := r.Values[a]
		vb, okB := r.Values[b]
		if okA && okB {
			x = append(x, va)
			y = append(y, vb)
		}
	}
	return x, y
}

// Histogram holds equal-width bin counts. Edges has one more element than
// Counts; the last bin includes its upper edge.
type Histogram struct {
	Edges  []float64
	Counts []float64
}

// NewHistogram bins values into the given number of equal-width bins spanning
// their range. A constant sample is centred in a unit-width range. Non-finite
// values are ignored.
func NewHistogram(values []float64, bins int) Histogram {
	var sorted []float64
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			sorted = append(sorted, v)
		}
	}
	if bins < 1 || len(sorted) == 0 {
		return Histogram{}
	}
	sort.Float64s(sorted)

	lo, hi := sorted[0], sorted[len(sorted)-1]
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}
	edges := floats.Span(make([]float64, bins+1), lo, hi)

	dividers := append([]float64(nil), edges...)
	dividers[bins] = math.Nextafter(hi, math.Inf(1))

	counts := stat.Histogram(nil, dividers, sorted, nil)
	return Histogram{Edges: edges, Counts: counts}
}

// Summary describes one column, like a spreadsheet's descriptive statistics.
type Summary struct {
	Column string
	Count  int
	Mean   float64
	Std    float64
	Min    float64
	Q1     float64
	Median float64
	Q3     float64
	Max    float64
}

// Describe summarises the present values of each column. Columns without any
// values are omitted.
func Describe(t models.Table, columns []string) []Summary {
	var out []Summary
	for _, col := range columns {
		_, values := t.Column(col)
		if len(values) == 0 {
			continue
		}
		sort.Float64s(values)
		s := Summary{
			Column: col,
			Count:  len(values),
			Mean:   stat.Mean(values, nil),
			Min:    values[0],
			Max:    values[len(values)-1],
			Q1:     quantile(values, 0.25),
			Median: quantile(values, 0.5),
			Q3:     quantile(values, 0.75),
			Std:    math.NaN(),
		}
		if len(values) > 1 {
			s.Std = stat.StdDev(values, nil)
		}
		out = append(out, s)
	}
	return out
}

// quantile interpolates linearly between order statistics of sorted values.
func quantile(sorted []float64, p float64) float64 {
	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
