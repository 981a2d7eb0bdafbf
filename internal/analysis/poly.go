package analysis

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/lox/latamstats/internal/models"
)

// Polynomial is a least-squares polynomial in (x - Center). Coeffs are in
// ascending order of power.
type Polynomial struct {
	Center float64
	Coeffs []float64
}

// Degree returns the polynomial degree.
func (p Polynomial) Degree() int {
	return len(p.Coeffs) - 1
}

// Eval evaluates the polynomial at x.
func (p Polynomial) Eval(x float64) float64 {
	u := x - p.Center
	var v float64
	for i := len(p.Coeffs) - 1; i >= 0; i-- {
		v = v*u + p.Coeffs[i]
	}
	return v
}

// FitPolynomial fits a polynomial of the given degree to (xs, ys). The x
// values are centred on their mean, which keeps the Vandermonde system well
// conditioned for calendar years.
func FitPolynomial(xs, ys []float64, degree int) (Polynomial, error) {
	if degree < 0 {
		return Polynomial{}, fmt.Errorf("negative degree %d", degree)
	}
	if len(xs) != len(ys) {
		return Polynomial{}, fmt.Errorf("%d x values for %d y values", len(xs), len(ys))
	}
	n, p := len(xs), degree+1
	if n < p {
		return Polynomial{}, fmt.Errorf("%d points for degree %d: %w", n, degree, ErrInsufficientData)
	}

	center := stat.Mean(xs, nil)
	v := mat.NewDense(n, p, nil)
	for i, x := range xs {
		u, pow := x-center, 1.0
		for j := 0; j < p; j++ {
			v.Set(i, j, pow)
			pow *= u
		}
	}

	var beta mat.VecDense
	if err := beta.SolveVec(v, mat.NewVecDense(n, append([]float64(nil), ys...))); err != nil {
		return Polynomial{}, fmt.Errorf("solve polynomial fit: %w", err)
	}
	coeffs := make([]float64, p)
	for j := range coeffs {
		coeffs[j] = beta.AtVec(j)
	}
	return Polynomial{Center: center, Coeffs: coeffs}, nil
}

// FitSeries fits a polynomial to a yearly series.
func FitSeries(points []models.SeriesPoint, degree int) (Polynomial, error) {
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, pt := range points {
		xs[i] = float64(pt.Year)
		ys[i] = pt.Value
	}
	return FitPolynomial(xs, ys, degree)
}
