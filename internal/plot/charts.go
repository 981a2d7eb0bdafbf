// Package plot renders the exploratory and diagnostic charts as PNG images.
package plot

import (
	"errors"
	"fmt"
	"image"
	"io"
	"math"
)

// ErrNoData is returned when a chart has nothing to draw.
var ErrNoData = errors.New("nothing to plot")

func size(w, h int) (int, int) {
	if w <= 0 {
		w = DefaultWidth
	}
	if h <= 0 {
		h = DefaultHeight
	}
	return w, h
}

func palette(p *Palette) Palette {
	if p == nil {
		return DefaultPalette
	}
	return *p
}

// Heatmap draws an annotated grid of values. NaN cells are left blank.
type Heatmap struct {
	Title     string
	RowLabels []string
	ColLabels []string
	Values    [][]float64
	Ramp      Ramp
	// Min and Max fix the color range; both zero means the data range.
	Min, Max float64
	// Format is the fmt verb used for cell annotations, e.g. "%.1f".
	Format   string
	BarLabel string
	Width    int
	Height   int
	Palette  *Palette
}

func (h Heatmap) Render(w io.Writer) error {
	rows, cols := len(h.RowLabels), len(h.ColLabels)
	if rows == 0 || cols == 0 || len(h.Values) != rows {
		return ErrNoData
	}
	for _, r := range h.Values {
		if len(r) != cols {
			return fmt.Errorf("heatmap row has %d values, want %d", len(r), cols)
		}
	}

	width, height := size(h.Width, h.Height)
	c, err := newCanvas(width, height, palette(h.Palette))
	if err != nil {
		return err
	}
	c.title(h.Title)

	lo, hi := h.Min, h.Max
	if lo == 0 && hi == 0 {
		var all []float64
		for _, r := range h.Values {
			all = append(all, r...)
		}
		lo, hi = extent(all, 0)
	}
	ramp := h.Ramp
	if len(ramp) == 0 {
		ramp = Reds
	}
	format := h.Format
	if format == "" {
		format = "%.2f"
	}

	labelW := 0
	for _, l := range h.RowLabels {
		labelW = max(labelW, textWidth(fontLabel, l))
	}
	left := labelW + 24
	const barW, barGap = 20, 30
	grid := image.Rect(left, marginTop, width-marginRight-barW-barGap-60, height-marginBottom)
	cellW := float64(grid.Dx()) / float64(cols)
	cellH := float64(grid.Dy()) / float64(rows)
	text := mustHex(c.pal.Text)
	border := mustHex(c.pal.Background)

	for i, row := range h.Values {
		y0 := float64(grid.Min.Y) + float64(i)*cellH
		c.text(h.RowLabels[i], float64(left-10), y0+cellH/2+5, alignRight, fontLabel, text)
		for j, v := range row {
			x0 := float64(grid.Min.X) + float64(j)*cellW
			cell := image.Rect(int(x0), int(y0), int(x0+cellW), int(y0+cellH))
			if math.IsNaN(v) {
				c.fillRect(cell, mustHex(c.pal.Plot))
			} else {
				bg := ramp.At(norm(v, lo, hi))
				c.fillRect(cell, bg)
				c.text(fmt.Sprintf(format, v), x0+cellW/2, y0+cellH/2+5, alignCenter, fontLabel, textOn(bg))
			}
			c.line(x0, y0, x0+cellW, y0, 1, border)
			c.line(x0, y0, x0, y0+cellH, 1, border)
		}
	}
	for j, l := range h.ColLabels {
		x := float64(grid.Min.X) + (float64(j)+0.5)*cellW
		c.text(l, x, float64(grid.Max.Y)+20, alignCenter, fontTick, text)
	}

	// Color bar.
	bar := image.Rect(grid.Max.X+barGap, grid.Min.Y, grid.Max.X+barGap+barW, grid.Max.Y)
	for y := bar.Min.Y; y < bar.Max.Y; y++ {
		t := 1 - float64(y-bar.Min.Y)/float64(bar.Dy())
		c.fillRect(image.Rect(bar.Min.X, y, bar.Max.X, y+1), ramp.At(t))
	}
	muted := mustHex(c.pal.TextMuted)
	c.text(formatTick(hi), float64(bar.Max.X+6), float64(bar.Min.Y+10), alignLeft, fontTick, muted)
	c.text(formatTick(lo), float64(bar.Max.X+6), float64(bar.Max.Y), alignLeft, fontTick, muted)
	if h.BarLabel != "" {
		c.text(h.BarLabel, float64(bar.Max.X), float64(bar.Max.Y+40), alignRight, fontTick, muted)
	}

	return c.encode(w)
}

func norm(v, lo, hi float64) float64 {
	if hi == lo {
		return 0.5
	}
	return (v - lo) / (hi - lo)
}

// Bar is one labelled bar of a ranking.
type Bar struct {
	Label string
	Value float64
}

// BarRanking draws horizontal bars in the given order, top to bottom, with
// the value printed past the end of each bar.
type BarRanking struct {
	Title  string
	XLabel string
	Bars   []Bar
	// Ramp colors bars by position; empty uses the palette accent.
	Ramp    Ramp
	Format  string
	Width   int
	Height  int
	Palette *Palette
}

func (b BarRanking) Render(w io.Writer) error {
	if len(b.Bars) == 0 {
		return ErrNoData
	}
	width, height := size(b.Width, b.Height)
	c, err := newCanvas(width, height, palette(b.Palette))
	if err != nil {
		return err
	}
	c.title(b.Title)

	values := make([]float64, 0, len(b.Bars)+1)
	labelW := 0
	for _, bar := range b.Bars {
		values = append(values, bar.Value)
		labelW = max(labelW, textWidth(fontLabel, bar.Label))
	}
	values = append(values, 0)
	lo, hi := extent(values, 0)
	hi += (hi - lo) * 0.15

	format := b.Format
	if format == "" {
		format = "%.1f"
	}

	f := newFrame(width, height, lo, hi, 0, 1)
	f.rect.Min.X = max(f.rect.Min.X, labelW+24)
	f.x.pxMin = float64(f.rect.Min.X)
	c.drawAxes(f, b.XLabel, "", true, false)

	text := mustHex(c.pal.Text)
	edge := mustHex(c.pal.Edge)
	slot := float64(f.rect.Dy()) / float64(len(b.Bars))
	zero := f.x.px(0)
	for i, bar := range b.Bars {
		fill := mustHex(c.pal.Accent)
		if len(b.Ramp) > 0 {
			fill = b.Ramp.At(float64(i) / math.Max(1, float64(len(b.Bars)-1)))
		}
		y0 := float64(f.rect.Min.Y) + float64(i)*slot + slot*0.1
		y1 := y0 + slot*0.8
		x0, x1 := zero, f.x.px(bar.Value)
		if x1 < x0 {
			x0, x1 = x1, x0
		}
		c.fillRect(image.Rect(int(x0), int(y0), int(x1), int(y1)), edge)
		c.fillRect(image.Rect(int(x0)+1, int(y0)+1, int(x1)-1, int(y1)-1), fill)

		c.text(bar.Label, float64(f.rect.Min.X-10), (y0+y1)/2+5, alignRight, fontLabel, text)
		c.text(fmt.Sprintf(format, bar.Value), x1+6, (y0+y1)/2+5, alignLeft, fontTick, text)
	}
	return c.encode(w)
}

// Point is a scatter marker. An empty Color uses the chart's color.
type Point struct {
	X, Y  float64
	Label string
	Color string
}

// Line is a straight reference line y = Intercept + Slope*x. Vertical lines
// set Vertical and use Intercept as the x position.
type Line struct {
	Slope     float64
	Intercept float64
	Vertical  bool
	Color     string
	Dashed    bool
	Label     string
}

// Scatter draws labelled markers with optional reference lines and a fitted
// curve.
type Scatter struct {
	Title  string
	XLabel string
	YLabel string
	Points []Point
	Color  string
	// MeanLines adds dashed lines at the mean of x and of y.
	MeanLines bool
	Lines     []Line
	// Curve is sampled across the x range, extended to CurveTo when set.
	Curve      func(float64) float64
	CurveColor string
	CurveTo    float64
	Radius     float64
	Width      int
	Height     int
	Palette    *Palette
}

func (s Scatter) Render(w io.Writer) error {
	if len(s.Points) == 0 {
		return ErrNoData
	}
	width, height := size(s.Width, s.Height)
	c, err := newCanvas(width, height, palette(s.Palette))
	if err != nil {
		return err
	}
	c.title(s.Title)

	xs := make([]float64, 0, len(s.Points)+1)
	ys := make([]float64, 0, len(s.Points))
	for _, p := range s.Points {
		xs = append(xs, p.X)
		ys = append(ys, p.Y)
	}
	xlo, xhi := extent(xs, 0.08)
	if s.Curve != nil && s.CurveTo > xhi {
		xhi = s.CurveTo + (s.CurveTo-xlo)*0.02
	}

	var curve [][2]float64
	if s.Curve != nil {
		const samples = 200
		for i := 0; i <= samples; i++ {
			x := xlo + (xhi-xlo)*float64(i)/samples
			y := s.Curve(x)
			if !math.IsNaN(y) && !math.IsInf(y, 0) {
				curve = append(curve, [2]float64{x, y})
				ys = append(ys, y)
			}
		}
	}
	ylo, yhi := extent(ys, 0.08)

	f := newFrame(width, height, xlo, xhi, ylo, yhi)
	c.drawAxes(f, s.XLabel, s.YLabel, true, true)

	lines := s.Lines
	if s.MeanLines {
		mx, my := mean(xs[:len(s.Points)]), mean(ys[:len(s.Points)])
		lines = append(lines,
			Line{Vertical: true, Intercept: mx, Color: Red, Dashed: true, Label: "Mean " + s.XLabel},
			Line{Intercept: my, Color: Blue, Dashed: true, Label: "Mean " + s.YLabel},
		)
	}
	legendY := float64(f.rect.Min.Y) + 20
	for _, l := range lines {
		col := mustHex(l.Color)
		if l.Color == "" {
			col = mustHex(c.pal.AccentAlt)
		}
		var x0, y0, x1, y1 float64
		if l.Vertical {
			x0, x1 = f.x.px(l.Intercept), f.x.px(l.Intercept)
			y0, y1 = float64(f.rect.Max.Y), float64(f.rect.Min.Y)
		} else {
			x0, x1 = float64(f.rect.Min.X), float64(f.rect.Max.X)
			y0 = f.y.px(l.Intercept + l.Slope*xlo)
			y1 = f.y.px(l.Intercept + l.Slope*xhi)
		}
		c.clipped(f.rect, func() {
			if l.Dashed {
				c.dashedLine(x0, y0, x1, y1, 1.5, col)
			} else {
				c.line(x0, y0, x1, y1, 1.5, col)
			}
		})
		if l.Label != "" {
			lx := float64(f.rect.Max.X) - 10
			tw := float64(textWidth(fontTick, l.Label))
			c.line(lx-tw-30, legendY-4, lx-tw-10, legendY-4, 2, col)
			c.text(l.Label, lx, legendY, alignRight, fontTick, mustHex(c.pal.Text))
			legendY += 18
		}
	}

	if len(curve) > 1 {
		col := mustHex(s.CurveColor)
		if s.CurveColor == "" {
			col = mustHex(c.pal.AccentAlt)
		}
		c.clipped(f.rect, func() {
			for i := 1; i < len(curve); i++ {
				c.line(f.x.px(curve[i-1][0]), f.y.px(curve[i-1][1]), f.x.px(curve[i][0]), f.y.px(curve[i][1]), 2, col)
			}
		})
	}

	radius := s.Radius
	if radius <= 0 {
		radius = 7
	}
	text := mustHex(c.pal.Text)
	for _, p := range s.Points {
		fill := s.Color
		if p.Color != "" {
			fill = p.Color
		}
		if fill == "" {
			fill = c.pal.Accent
		}
		px, py := f.x.px(p.X), f.y.px(p.Y)
		c.marker(px, py, radius, mustHex(fill))
		if p.Label != "" {
			c.text(p.Label, px+radius+4, py+4, alignLeft, fontTick, text)
		}
	}
	return c.encode(w)
}

// clipped runs draw with the canvas restricted to r.
func (c *canvas) clipped(r image.Rectangle, fn func()) {
	full := c.img
	c.img = full.SubImage(r).(*image.RGBA)
	defer func() { c.img = full }()
	fn()
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return math.NaN()
	}
	var s float64
	for _, x := range v {
		s += x
	}
	return s / float64(len(v))
}

// Histogram draws bin counts as adjacent bars. Edges has one more element
// than Counts.
type Histogram struct {
	Title   string
	XLabel  string
	YLabel  string
	Edges   []float64
	Counts  []float64
	Color   string
	Width   int
	Height  int
	Palette *Palette
}

func (h Histogram) Render(w io.Writer) error {
	if len(h.Counts) == 0 || len(h.Edges) != len(h.Counts)+1 {
		return ErrNoData
	}
	width, height := size(h.Width, h.Height)
	c, err := newCanvas(width, height, palette(h.Palette))
	if err != nil {
		return err
	}
	c.title(h.Title)

	maxCount := 0.0
	for _, n := range h.Counts {
		maxCount = math.Max(maxCount, n)
	}
	f := newFrame(width, height, h.Edges[0], h.Edges[len(h.Edges)-1], 0, math.Max(1, maxCount*1.1))
	c.drawAxes(f, h.XLabel, h.YLabel, true, true)

	fill := mustHex(h.Color)
	if h.Color == "" {
		fill = mustHex(c.pal.Accent)
	}
	edge := mustHex(c.pal.Edge)
	for i, n := range h.Counts {
		if n == 0 {
			continue
		}
		r := image.Rect(int(f.x.px(h.Edges[i])), int(f.y.px(n)), int(f.x.px(h.Edges[i+1])), int(f.y.px(0)))
		c.fillRect(r, edge)
		c.fillRect(r.Inset(1), fill)
	}
	return c.encode(w)
}
