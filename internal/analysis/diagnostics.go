package analysis

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// DurbinWatson returns the Durbin-Watson statistic of residuals taken in
// order. Values near 2 indicate no first-order autocorrelation.
func DurbinWatson(resid []float64) float64 {
	var num, den float64
	for i, e := range resid {
		den += e * e
		if i > 0 {
			d := e - resid[i-1]
			num += d * d
		}
	}
	if den == 0 {
		return math.NaN()
	}
	return num / den
}

// QQ pairs theoretical normal quantiles with the sorted sample. The reference
// line Intercept + Slope*x uses the sample mean and standard deviation.
type QQ struct {
	Theoretical []float64
	Sample      []float64
	Slope       float64
	Intercept   float64
}

// QQPoints computes normal probability plot points using plotting positions
// i/(n+1).
func QQPoints(resid []float64) QQ {
	n := len(resid)
	q := QQ{
		Theoretical: make([]float64, n),
		Sample:      append([]float64(nil), resid...),
	}
	sort.Float64s(q.Sample)
	for i := range q.Sample {
		q.Theoretical[i] = distuv.UnitNormal.Quantile(float64(i+1) / float64(n+1))
	}
	if n > 1 {
		q.Intercept, q.Slope = stat.MeanStdDev(q.Sample, nil)
	}
	return q
}
