package plot

import (
	"fmt"
	"image/color"
	"math"
)

// Palette defines the color scheme shared by every chart.
type Palette struct {
	// Background is the canvas color
	Background string
	// Plot is the fill behind the axes
	Plot string
	// Grid is the color of grid lines
	Grid string
	// Text is the primary text color
	Text string
	// TextMuted is used for tick labels
	TextMuted string
	// Edge outlines markers and bars
	Edge string
	// Accent is the default marker and bar color
	Accent string
	// AccentAlt is used for reference lines and highlights
	AccentAlt string
}

// DefaultPalette is a light theme with a white grid.
var DefaultPalette = Palette{
	Background: "#ffffff",
	Plot:       "#eaeaf2",
	Grid:       "#ffffff",
	Text:       "#262626",
	TextMuted:  "#555555",
	Edge:       "#000000",
	Accent:     "#4c72b0",
	AccentAlt:  "#c44e52",
}

// Named marker colors used by the chart set.
const (
	DarkOrange = "#ff8c00"
	Green      = "#2ca02c"
	Purple     = "#800080"
	Orange     = "#ffa500"
	Blue       = "#1f77b4"
	Red        = "#d62728"
	SteelBlue  = "#2e86c1"
)

// Ramp is a sequential or diverging color map defined by evenly spaced stops.
type Ramp []string

// Color maps in the style of the usual scientific plotting defaults.
var (
	Reds     = Ramp{"#fff5f0", "#fcbba1", "#fb6a4a", "#cb181d", "#67000d"}
	Blues    = Ramp{"#08306b", "#2171b5", "#6baed6", "#c6dbef"}
	Viridis  = Ramp{"#440154", "#3b528b", "#21918c", "#5ec962", "#fde725"}
	CoolWarm = Ramp{"#3b4cc0", "#7b9ff9", "#c0d4f5", "#f2cbb7", "#ee8468", "#b40426"}
)

// At returns the color at position t in [0, 1], interpolating linearly
// between stops. NaN maps to the first stop.
func (r Ramp) At(t float64) color.RGBA {
	if len(r) == 0 {
		return color.RGBA{0, 0, 0, 255}
	}
	if len(r) == 1 || math.IsNaN(t) || t <= 0 {
		return mustHex(r[0])
	}
	if t >= 1 {
		return mustHex(r[len(r)-1])
	}
	pos := t * float64(len(r)-1)
	i := int(pos)
	frac := pos - float64(i)
	a, b := mustHex(r[i]), mustHex(r[i+1])
	lerp := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + frac*(float64(y)-float64(x))))
	}
	return color.RGBA{lerp(a.R, b.R), lerp(a.G, b.G), lerp(a.B, b.B), 255}
}

// ParseHex parses a #rrggbb color.
func ParseHex(s string) (color.RGBA, error) {
	var c color.RGBA
	c.A = 255
	if len(s) != 7 || s[0] != '#' {
		return c, fmt.Errorf("invalid color %q", s)
	}
	if _, err := fmt.Sscanf(s[1:], "%02x%02x%02x", &c.R, &c.G, &c.B); err != nil {
		return c, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return c, nil
}

func mustHex(s string) color.RGBA {
	c, err := ParseHex(s)
	if err != nil {
		return color.RGBA{0, 0, 0, 255}
	}
	return c
}

// textOn returns black or white, whichever reads better on bg.
func textOn(bg color.RGBA) color.RGBA {
	lum := 0.299*float64(bg.R) + 0.587*float64(bg.G) + 0.114*float64(bg.B)
	if lum > 140 {
		return color.RGBA{0x26, 0x26, 0x26, 255}
	}
	return color.RGBA{255, 255, 255, 255}
}
