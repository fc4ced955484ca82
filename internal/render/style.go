package render

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// Style sizes are fractions of the surface height (FontScale, Baseline) or
// of the font size (the rest).
type Style struct {
	FontScale   float64
	MinFontSize float64
	Baseline    float64
	WordGap     float64
	ChipPadding float64
	ChipRadius  float64
	StrokeWidth float64

	TextColor      color.RGBA
	StrokeColor    color.RGBA
	HighlightColor color.RGBA
}

func DefaultStyle() Style {
	return Style{
		FontScale:      0.05,
		MinFontSize:    16,
		Baseline:       0.85,
		WordGap:        0.3,
		ChipPadding:    0.2,
		ChipRadius:     0.25,
		StrokeWidth:    0.08,
		TextColor:      color.RGBA{0xff, 0xff, 0xff, 0xff},
		StrokeColor:    color.RGBA{0x00, 0x00, 0x00, 0xff},
		HighlightColor: color.RGBA{0xfa, 0xcc, 0x15, 0xff},
	}
}

func (s Style) withDefaults() Style {
	d := DefaultStyle()
	if s.FontScale <= 0 {
		s.FontScale = d.FontScale
	}
	if s.MinFontSize <= 0 {
		s.MinFontSize = d.MinFontSize
	}
	if s.Baseline <= 0 || s.Baseline > 1 {
		s.Baseline = d.Baseline
	}
	if s.WordGap <= 0 {
		s.WordGap = d.WordGap
	}
	if s.ChipPadding < 0 {
		s.ChipPadding = d.ChipPadding
	}
	if s.ChipRadius < 0 {
		s.ChipRadius = d.ChipRadius
	}
	if s.StrokeWidth < 0 {
		s.StrokeWidth = d.StrokeWidth
	}
	if s.TextColor.A == 0 {
		s.TextColor = d.TextColor
	}
	if s.StrokeColor.A == 0 {
		s.StrokeColor = d.StrokeColor
	}
	if s.HighlightColor.A == 0 {
		s.HighlightColor = d.HighlightColor
	}
	return s
}

// ParseHexColor accepts #RGB, #RRGGBB and #RRGGBBAA.
func ParseHexColor(s string) (color.RGBA, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) == 6 {
		h += "ff"
	}
	if len(h) != 8 {
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}
