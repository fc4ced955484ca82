// Package render composites decoded video frames and the word-highlighted
// caption overlay onto an RGBA rendering surface.
package render

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"github.com/forPelevin/clipcast/internal/domain/captions"
	"github.com/forPelevin/clipcast/internal/types"
)

// Snapshot is the read-only view of the active selection for one tick.
type Snapshot struct {
	Clip     *types.Clip
	Time     float64
	Captions bool
}

type Renderer struct {
	style   Style
	font    *opentype.Font
	faces   map[float64]font.Face
	surface *image.RGBA
	raster  *vector.Rasterizer
	frames  int
}

func New(style Style) (*Renderer, error) {
	f, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse caption font: %w", err)
	}
	return &Renderer{
		style:   style.withDefaults(),
		font:    f,
		faces:   map[float64]font.Face{},
		surface: image.NewRGBA(image.Rect(0, 0, 0, 0)),
	}, nil
}

// Surface is written only by Draw; the capture tap reads it between ticks.
func (r *Renderer) Surface() *image.RGBA { return r.surface }

// Frames counts composited frames.
func (r *Renderer) Frames() int { return r.frames }

// Draw composites one frame. Without a clip or a decoded frame it leaves the
// surface untouched.
func (r *Renderer) Draw(frame image.Image, s Snapshot) {
	if s.Clip == nil || frame == nil {
		return
	}
	b := frame.Bounds()
	if b.Empty() {
		return
	}
	r.resize(b.Dx(), b.Dy())
	draw.Draw(r.surface, r.surface.Bounds(), frame, b.Min, draw.Src)
	r.frames++

	if !s.Captions {
		return
	}
	ov, ok := captions.Resolve(s.Clip.Captions, s.Time)
	if !ok || len(ov.Words) == 0 {
		return
	}
	r.drawLine(ov)
}

func (r *Renderer) resize(w, h int) {
	cur := r.surface.Bounds()
	if cur.Dx() == w && cur.Dy() == h {
		return
	}
	r.surface = image.NewRGBA(image.Rect(0, 0, w, h))
}

func (r *Renderer) drawLine(ov captions.Overlay) {
	bounds := r.surface.Bounds()
	h := float64(bounds.Dy())
	size := math.Max(r.style.MinFontSize, h*r.style.FontScale)
	face, err := r.face(size)
	if err != nil {
		// skip the overlay for this tick only
		return
	}

	words := make([]string, len(ov.Words))
	widths := make([]int, len(ov.Words))
	total := 0
	gap := int(math.Round(size * r.style.WordGap))
	for i, w := range ov.Words {
		words[i] = strings.ToUpper(w)
		widths[i] = font.MeasureString(face, words[i]).Ceil()
		total += widths[i]
	}
	total += gap * (len(words) - 1)

	x := (bounds.Dx() - total) / 2
	y := int(h * r.style.Baseline)
	m := face.Metrics()
	pad := int(math.Round(size * r.style.ChipPadding))
	stroke := int(math.Max(1, math.Round(size*r.style.StrokeWidth)))

	xs := make([]int, len(words))
	for i := range words {
		xs[i] = x
		x += widths[i] + gap
	}

	// Chip first: it sits under every word of the line.
	if a := ov.Active; a >= 0 && a < len(words) {
		chip := image.Rect(xs[a]-pad, y-m.Ascent.Ceil()-pad, xs[a]+widths[a]+pad, y+m.Descent.Ceil()+pad)
		r.fillRoundedRect(chip, size*r.style.ChipRadius, r.style.HighlightColor)
	}
	for i, w := range words {
		mask := wordMask(face, w)
		r.strokeMask(mask, xs[i], y, stroke, r.style.StrokeColor)
		r.fillMask(mask, xs[i], y, r.style.TextColor)
	}
}

func (r *Renderer) face(size float64) (font.Face, error) {
	if f, ok := r.faces[size]; ok {
		return f, nil
	}
	f, err := opentype.NewFace(r.font, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, err
	}
	r.faces[size] = f
	return f, nil
}

// wordMask rasterizes text with its baseline origin at (0,0).
func wordMask(face font.Face, text string) *image.Alpha {
	b, _ := font.BoundString(face, text)
	rect := image.Rect(b.Min.X.Floor(), b.Min.Y.Floor(), b.Max.X.Ceil(), b.Max.Y.Ceil())
	mask := image.NewAlpha(rect)
	d := font.Drawer{Dst: mask, Src: image.Opaque, Face: face, Dot: fixed.Point26_6{}}
	d.DrawString(text)
	return mask
}

func (r *Renderer) fillMask(mask *image.Alpha, x, y int, c color.RGBA) {
	dr := mask.Bounds().Add(image.Pt(x, y))
	draw.DrawMask(r.surface, dr, image.NewUniform(c), image.Point{}, mask, mask.Bounds().Min, draw.Over)
}

// strokeMask stamps the glyph mask around a disc of the given radius, which
// reads as an outline once the fill is drawn on top.
func (r *Renderer) strokeMask(mask *image.Alpha, x, y, radius int, c color.RGBA) {
	src := image.NewUniform(c)
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx == 0 && dy == 0 || dx*dx+dy*dy > radius*radius {
				continue
			}
			dr := mask.Bounds().Add(image.Pt(x+dx, y+dy))
			draw.DrawMask(r.surface, dr, src, image.Point{}, mask, mask.Bounds().Min, draw.Over)
		}
	}
}

func (r *Renderer) fillRoundedRect(rect image.Rectangle, radius float64, c color.RGBA) {
	bounds := r.surface.Bounds()
	rect = rect.Intersect(bounds)
	if rect.Empty() {
		return
	}
	if r.raster == nil {
		r.raster = vector.NewRasterizer(bounds.Dx(), bounds.Dy())
	} else {
		r.raster.Reset(bounds.Dx(), bounds.Dy())
	}

	x0, y0 := float32(rect.Min.X), float32(rect.Min.Y)
	x1, y1 := float32(rect.Max.X), float32(rect.Max.Y)
	rad := float32(radius)
	rad = min(rad, (x1-x0)/2, (y1-y0)/2)

	z := r.raster
	z.MoveTo(x0+rad, y0)
	z.LineTo(x1-rad, y0)
	z.QuadTo(x1, y0, x1, y0+rad)
	z.LineTo(x1, y1-rad)
	z.QuadTo(x1, y1, x1-rad, y1)
	z.LineTo(x0+rad, y1)
	z.QuadTo(x0, y1, x0, y1-rad)
	z.LineTo(x0, y0+rad)
	z.QuadTo(x0, y0, x0+rad, y0)
	z.ClosePath()
	z.Draw(r.surface, bounds, image.NewUniform(c), image.Point{})
}
