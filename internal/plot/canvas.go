package plot

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

var (
	fontTitle font.Face
	fontLabel font.Face
	fontTick  font.Face
	fontOnce  sync.Once
	fontErr   error
)

func loadFonts() {
	fontOnce.Do(func() {
		regular, err := opentype.Parse(goregular.TTF)
		if err != nil {
			fontErr = fmt.Errorf("parse Go Regular: %w", err)
			return
		}
		bold, err := opentype.Parse(gobold.TTF)
		if err != nil {
			fontErr = fmt.Errorf("parse Go Bold: %w", err)
			return
		}

		fontTitle, err = opentype.NewFace(bold, &opentype.FaceOptions{Size: 20, DPI: 72, Hinting: font.HintingFull})
		if err != nil {
			fontErr = fmt.Errorf("create title face: %w", err)
			return
		}
		fontLabel, err = opentype.NewFace(regular, &opentype.FaceOptions{Size: 14, DPI: 72, Hinting: font.HintingFull})
		if err != nil {
			fontErr = fmt.Errorf("create label face: %w", err)
			return
		}
		fontTick, err = opentype.NewFace(regular, &opentype.FaceOptions{Size: 12, DPI: 72, Hinting: font.HintingFull})
		if err != nil {
			fontErr = fmt.Errorf("create tick face: %w", err)
			return
		}
	})
}

// canvas wraps an RGBA image with the drawing primitives the charts need.
type canvas struct {
	img *image.RGBA
	pal Palette
}

func newCanvas(width, height int, pal Palette) (*canvas, error) {
	loadFonts()
	if fontErr != nil {
		return nil, fmt.Errorf("load fonts: %w", fontErr)
	}
	c := &canvas{img: image.NewRGBA(image.Rect(0, 0, width, height)), pal: pal}
	draw.Draw(c.img, c.img.Bounds(), image.NewUniform(mustHex(pal.Background)), image.Point{}, draw.Src)
	return c, nil
}

func (c *canvas) encode(w io.Writer) error {
	if err := png.Encode(w, c.img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

func (c *canvas) fillRect(r image.Rectangle, col color.Color) {
	draw.Draw(c.img, r, image.NewUniform(col), image.Point{}, draw.Over)
}

// polygon fills the closed path through pts.
func (c *canvas) polygon(pts [][2]float64, col color.Color) {
	if len(pts) < 3 {
		return
	}
	b := c.img.Bounds()
	ox, oy := float64(b.Min.X), float64(b.Min.Y)
	r := vector.NewRasterizer(b.Dx(), b.Dy())
	r.DrawOp = draw.Over
	r.MoveTo(float32(pts[0][0]-ox), float32(pts[0][1]-oy))
	for _, p := range pts[1:] {
		r.LineTo(float32(p[0]-ox), float32(p[1]-oy))
	}
	r.ClosePath()
	r.Draw(c.img, b, image.NewUniform(col), image.Point{})
}

// line strokes a segment of the given width.
func (c *canvas) line(x0, y0, x1, y1, width float64, col color.Color) {
	dx, dy := x1-x0, y1-y0
	length := math.Hypot(dx, dy)
	if length == 0 {
		return
	}
	nx, ny := -dy/length*width/2, dx/length*width/2
	c.polygon([][2]float64{
		{x0 + nx, y0 + ny},
		{x1 + nx, y1 + ny},
		{x1 - nx, y1 - ny},
		{x0 - nx, y0 - ny},
	}, col)
}

// dashedLine strokes a segment as alternating dashes and gaps.
func (c *canvas) dashedLine(x0, y0, x1, y1, width float64, col color.Color) {
	const dash, gap = 8.0, 5.0
	length := math.Hypot(x1-x0, y1-y0)
	if length == 0 {
		return
	}
	ux, uy := (x1-x0)/length, (y1-y0)/length
	for s := 0.0; s < length; s += dash + gap {
		e := math.Min(s+dash, length)
		c.line(x0+ux*s, y0+uy*s, x0+ux*e, y0+uy*e, width, col)
	}
}

func (c *canvas) circle(cx, cy, radius float64, col color.Color) {
	const segments = 32
	pts := make([][2]float64, segments)
	for i := range pts {
		a := 2 * math.Pi * float64(i) / segments
		pts[i] = [2]float64{cx + radius*math.Cos(a), cy + radius*math.Sin(a)}
	}
	c.polygon(pts, col)
}

// marker draws a filled circle with an outline.
func (c *canvas) marker(cx, cy, radius float64, fill color.Color) {
	c.circle(cx, cy, radius+1, mustHex(c.pal.Edge))
	c.circle(cx, cy, radius, fill)
}

type align int

const (
	alignLeft align = iota
	alignCenter
	alignRight
)

// text draws s with its baseline at y, anchored horizontally at x.
func (c *canvas) text(s string, x, y float64, a align, face font.Face, col color.Color) {
	w := float64(font.MeasureString(face, s).Ceil())
	switch a {
	case alignCenter:
		x -= w / 2
	case alignRight:
		x -= w
	}
	d := &font.Drawer{
		Dst:  c.img,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(int(math.Round(x))), Y: fixed.I(int(math.Round(y)))},
	}
	d.DrawString(s)
}

func textWidth(face font.Face, s string) int {
	return font.MeasureString(face, s).Ceil()
}

func (c *canvas) title(s string) {
	c.text(s, float64(c.img.Bounds().Dx())/2, 34, alignCenter, fontTitle, mustHex(c.pal.Text))
}
