package render

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/forPelevin/clipcast/internal/ports/portstest"
	"github.com/forPelevin/clipcast/internal/types"
)

func testClip() *types.Clip {
	return &types.Clip{
		Title:        "Scenario",
		StartSeconds: 10,
		EndSeconds:   40,
		Captions: []types.Caption{
			{Text: "this is a test", StartSeconds: 12, EndSeconds: 16},
		},
	}
}

func newRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := New(DefaultStyle())
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	return r
}

func countColor(img *image.RGBA, c color.RGBA) (n int, minX, maxX int) {
	minX, maxX = img.Bounds().Max.X, -1
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.RGBAAt(x, y) == c {
				n++
				minX = min(minX, x)
				maxX = max(maxX, x)
			}
		}
	}
	return n, minX, maxX
}

func TestDraw_NoClipLeavesSurfaceEmpty(t *testing.T) {
	r := newRenderer(t)
	src := portstest.NewSource(64, 36)
	r.Draw(src.Frame(), Snapshot{Time: 12, Captions: true})
	if !r.Surface().Bounds().Empty() || r.Frames() != 0 {
		t.Fatalf("expected untouched surface, got %v frames=%d", r.Surface().Bounds(), r.Frames())
	}
}

func TestDraw_ResizesToSource(t *testing.T) {
	r := newRenderer(t)
	clip := testClip()

	r.Draw(portstest.NewSource(320, 180).Frame(), Snapshot{Clip: clip, Time: 11})
	if got := r.Surface().Bounds(); got != image.Rect(0, 0, 320, 180) {
		t.Fatalf("surface = %v", got)
	}
	r.Draw(portstest.NewSource(180, 320).Frame(), Snapshot{Clip: clip, Time: 11})
	if got := r.Surface().Bounds(); got != image.Rect(0, 0, 180, 320) {
		t.Fatalf("surface after source change = %v", got)
	}
}

func TestDraw_CaptionOverlay(t *testing.T) {
	r := newRenderer(t)
	clip := testClip()
	frame := portstest.NewSource(640, 360).Frame().(*image.RGBA)
	hl := DefaultStyle().HighlightColor

	r.Draw(frame, Snapshot{Clip: clip, Time: 11, Captions: true})
	if !bytes.Equal(r.Surface().Pix, frame.Pix) {
		t.Fatalf("no caption active at t=11, surface must equal the frame")
	}

	r.Draw(frame, Snapshot{Clip: clip, Time: 12.0, Captions: true})
	n, minX, maxX := countColor(r.Surface(), hl)
	if n == 0 {
		t.Fatalf("expected highlight chip pixels")
	}
	// "THIS" is the leftmost word of a centered line.
	if maxX >= 320 {
		t.Fatalf("chip for first word extends past center: [%d,%d]", minX, maxX)
	}
	white := color.RGBA{0xff, 0xff, 0xff, 0xff}
	if w, _, _ := countColor(r.Surface(), white); w == 0 {
		t.Fatalf("expected white text fill")
	}

	r.Draw(frame, Snapshot{Clip: clip, Time: 15.9, Captions: true})
	_, minX, _ = countColor(r.Surface(), hl)
	if minX <= 320 {
		t.Fatalf("chip for last word should sit right of center, starts at %d", minX)
	}
}

func TestDraw_ChipStaysBehindNeighbours(t *testing.T) {
	st := DefaultStyle()
	st.ChipPadding = 10
	r, err := New(st)
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	frame := portstest.NewSource(640, 360).Frame()

	// "TEST" is active; its padded chip spans the whole line.
	r.Draw(frame, Snapshot{Clip: testClip(), Time: 15.9, Captions: true})
	n, minX, _ := countColor(r.Surface(), st.TextColor)
	if n == 0 || minX >= 320 {
		t.Fatalf("earlier words were painted over: white=%d minX=%d", n, minX)
	}
}

func TestDraw_CaptionsDisabled(t *testing.T) {
	r := newRenderer(t)
	frame := portstest.NewSource(640, 360).Frame().(*image.RGBA)
	r.Draw(frame, Snapshot{Clip: testClip(), Time: 12.5, Captions: false})
	if !bytes.Equal(r.Surface().Pix, frame.Pix) {
		t.Fatalf("captions disabled: surface must equal the frame")
	}
}

func TestDraw_ClipWithoutCaptionsRendersEveryFrame(t *testing.T) {
	r := newRenderer(t)
	clip := &types.Clip{StartSeconds: 0, EndSeconds: 5}
	frame := portstest.NewSource(160, 90).Frame()
	for i := 0; i < 150; i++ {
		r.Draw(frame, Snapshot{Clip: clip, Time: float64(i) / 30, Captions: true})
	}
	if r.Frames() != 150 {
		t.Fatalf("frames = %d, want 150", r.Frames())
	}
}

func TestDraw_TinySourceUsesMinimumFont(t *testing.T) {
	r := newRenderer(t)
	frame := portstest.NewSource(200, 60).Frame()
	r.Draw(frame, Snapshot{Clip: testClip(), Time: 12, Captions: true})
	if _, ok := r.faces[DefaultStyle().MinFontSize]; !ok {
		t.Fatalf("expected face at minimum size, have %v", r.faces)
	}
}

func TestParseHexColor(t *testing.T) {
	tests := []struct {
		in   string
		want color.RGBA
		err  bool
	}{
		{"#FACC15", color.RGBA{0xfa, 0xcc, 0x15, 0xff}, false},
		{"fff", color.RGBA{0xff, 0xff, 0xff, 0xff}, false},
		{"#00000080", color.RGBA{0, 0, 0, 0x80}, false},
		{"#12345", color.RGBA{}, true},
		{"#zzzzzz", color.RGBA{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseHexColor(tt.in)
			if tt.err {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
		})
	}
}
