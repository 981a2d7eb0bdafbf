package plot

import (
	"image"
	"math"
	"strconv"
)

// Default chart geometry.
const (
	DefaultWidth  = 1000
	DefaultHeight = 600

	marginLeft   = 90
	marginRight  = 40
	marginTop    = 60
	marginBottom = 70
)

// scale maps a data interval onto a pixel interval.
type scale struct {
	min, max     float64
	pxMin, pxMax float64
}

func (s scale) px(v float64) float64 {
	if s.max == s.min {
		return (s.pxMin + s.pxMax) / 2
	}
	return s.pxMin + (v-s.min)/(s.max-s.min)*(s.pxMax-s.pxMin)
}

// extent returns the min and max of the finite values, padded by frac of the
// range on each side.
func extent(values []float64, frac float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if math.IsInf(lo, 1) {
		return 0, 1
	}
	if lo == hi {
		return lo - 1, hi + 1
	}
	pad := (hi - lo) * frac
	return lo - pad, hi + pad
}

// niceTicks returns roughly n round tick values covering [lo, hi].
func niceTicks(lo, hi float64, n int) []float64 {
	if hi <= lo || n < 1 {
		return []float64{lo}
	}
	step := niceNum((hi-lo)/float64(n), true)
	start := math.Ceil(lo/step) * step
	var ticks []float64
	for v := start; v <= hi+step*1e-9; v += step {
		if math.Abs(v) < step*1e-9 {
			v = 0
		}
		ticks = append(ticks, v)
	}
	return ticks
}

func niceNum(x float64, round bool) float64 {
	exp := math.Floor(math.Log10(x))
	f := x / math.Pow(10, exp)
	var nf float64
	switch {
	case round && f < 1.5, !round && f <= 1:
		nf = 1
	case round && f < 3, !round && f <= 2:
		nf = 2
	case round && f < 7, !round && f <= 5:
		nf = 5
	default:
		nf = 10
	}
	return nf * math.Pow(10, exp)
}

func formatTick(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

// frame is the plotting rectangle with its two scales.
type frame struct {
	rect image.Rectangle
	x, y scale
}

func newFrame(width, height int, xlo, xhi, ylo, yhi float64) frame {
	r := image.Rect(marginLeft, marginTop, width-marginRight, height-marginBottom)
	return frame{
		rect: r,
		x:    scale{min: xlo, max: xhi, pxMin: float64(r.Min.X), pxMax: float64(r.Max.X)},
		y:    scale{min: ylo, max: yhi, pxMin: float64(r.Max.Y), pxMax: float64(r.Min.Y)},
	}
}

// drawAxes fills the plot area, draws the grid and tick labels, and the axis
// titles.
func (c *canvas) drawAxes(f frame, xlabel, ylabel string, xgrid, ygrid bool) {
	c.fillRect(f.rect, mustHex(c.pal.Plot))
	grid := mustHex(c.pal.Grid)
	muted := mustHex(c.pal.TextMuted)

	if xgrid {
		for _, v := range niceTicks(f.x.min, f.x.max, 6) {
			px := f.x.px(v)
			c.line(px, float64(f.rect.Min.Y), px, float64(f.rect.Max.Y), 1, grid)
			c.text(formatTick(v), px, float64(f.rect.Max.Y)+18, alignCenter, fontTick, muted)
		}
	}
	if ygrid {
		for _, v := range niceTicks(f.y.min, f.y.max, 6) {
			py := f.y.px(v)
			c.line(float64(f.rect.Min.X), py, float64(f.rect.Max.X), py, 1, grid)
			c.text(formatTick(v), float64(f.rect.Min.X)-8, py+4, alignRight, fontTick, muted)
		}
	}

	text := mustHex(c.pal.Text)
	if xlabel != "" {
		c.text(xlabel, float64(f.rect.Min.X+f.rect.Max.X)/2, float64(f.rect.Max.Y)+50, alignCenter, fontLabel, text)
	}
	if ylabel != "" {
		c.text(ylabel, float64(f.rect.Min.X), float64(f.rect.Min.Y)-10, alignLeft, fontLabel, text)
	}
}
