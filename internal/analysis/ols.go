// Package analysis holds the statistics run over the merged country table:
// least-squares regression with residual diagnostics, correlations,
// histograms, summary statistics and polynomial trend fitting.
package analysis

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/lox/latamstats/internal/dataset"
	"github.com/lox/latamstats/internal/models"
)

// ErrInsufficientData is returned when too few complete rows remain to fit a
// model.
var ErrInsufficientData = errors.New("insufficient data")

// ConstName labels the intercept in coefficient tables.
const ConstName = "const"

type Coefficient struct {
	Name     string
	Estimate float64
	StdErr   float64
	T        float64
	P        float64
	CILow    float64
	CIHigh   float64
}

// OLSResult is a fitted linear model. Residuals, Fitted and Countries are
// aligned with the rows used for the fit.
type OLSResult struct {
	Response     string
	Predictors   []string
	Countries    []string
	Coefficients []Coefficient
	N            int
	DF           int
	RSquared     float64
	AdjRSquared  float64
	Residuals    []float64
	Fitted       []float64
}

// FitOLS regresses response on predictors with an intercept, using only the
// rows where every variable is present. At least len(predictors)+2 complete
// rows are required.
func FitOLS(t models.Table, response string, predictors []string) (*OLSResult, error) {
	vars := append([]string{response}, predictors...)
	avail := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		avail[c] = true
	}
	for _, v := range vars {
		if !avail[v] {
			return nil, fmt.Errorf("column %s: %w", v, ErrInsufficientData)
		}
	}

	var (
		countries []string
		ys        []float64
		xs        []float64
	)
	p := len(predictors) + 1
	for _, r := range t.Rows {
		vals := make([]float64, len(vars))
		complete := true
		for i, v := range vars {
			val, ok := r.Values[v]
			if !ok {
				complete = false
				break
			}
			vals[i] = val
		}
		if !complete {
			continue
		}
		countries = append(countries, r.Name)
		ys = append(ys, vals[0])
		xs = append(xs, 1)
		xs = append(xs, vals[1:]...)
	}

	n := len(ys)
	if n <= p {
		return nil, fmt.Errorf("%d complete rows for %d parameters: %w", n, p, ErrInsufficientData)
	}

	X := mat.NewDense(n, p, xs)
	y := mat.NewVecDense(n, ys)

	var beta mat.VecDense
	if err := beta.SolveVec(X, y); err != nil {
		return nil, fmt.Errorf("solve least squares: %w", err)
	}

	var fittedVec mat.VecDense
	fittedVec.MulVec(X, &beta)

	res := &OLSResult{
		Response:   response,
		Predictors: append([]string(nil), predictors...),
		Countries:  countries,
		N:          n,
		DF:         n - p,
		Residuals:  make([]float64, n),
		Fitted:     make([]float64, n),
	}

	var mean float64
	for _, v := range ys {
		mean += v
	}
	mean /= float64(n)

	var sse, sst float64
	for i := 0; i < n; i++ {
		res.Fitted[i] = fittedVec.AtVec(i)
		res.Residuals[i] = ys[i] - res.Fitted[i]
		sse += res.Residuals[i] * res.Residuals[i]
		d := ys[i] - mean
		sst += d * d
	}
	if sst > 0 {
		res.RSquared = 1 - sse/sst
		res.AdjRSquared = 1 - (1-res.RSquared)*float64(n-1)/float64(res.DF)
	}

	var xtx, inv mat.Dense
	xtx.Mul(X.T(), X)
	if err := inv.Inverse(&xtx); err != nil {
		return nil, fmt.Errorf("invert normal matrix: %w", err)
	}

	sigma2 := sse / float64(res.DF)
	tdist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(res.DF)}
	crit := tdist.Quantile(0.975)

	names := append([]string{ConstName}, predictors...)
	for j, name := range names {
		est := beta.AtVec(j)
		se := math.Sqrt(sigma2 * inv.At(j, j))
		c := Coefficient{
			Name:     name,
			Estimate: est,
			StdErr:   se,
			CILow:    est - crit*se,
			CIHigh:   est + crit*se,
		}
		if se > 0 {
			c.T = est / se
			c.P = 2 * tdist.Survival(math.Abs(c.T))
		} else {
			c.T = math.Inf(1)
		}
		res.Coefficients = append(res.Coefficients, c)
	}
	return res, nil
}

// Coefficient returns the named coefficient.
func (r *OLSResult) Coefficient(name string) (Coefficient, bool) {
	for _, c := range r.Coefficients {
		if c.Name == name {
			return c, true
		}
	}
	return Coefficient{}, false
}

// WriteCoefficientsCSV writes one row per coefficient, intercept first.
func (r *OLSResult) WriteCoefficientsCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"", "Coef.", "Std.Err.", "t", "P>|t|", "[0.025", "0.975]"}); err != nil {
		return err
	}
	for _, c := range r.Coefficients {
		rec := []string{
			c.Name,
			dataset.FormatFloat(c.Estimate),
			dataset.FormatFloat(c.StdErr),
			dataset.FormatFloat(c.T),
			dataset.FormatFloat(c.P),
			dataset.FormatFloat(c.CILow),
			dataset.FormatFloat(c.CIHigh),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
