package subtitles

import (
	"fmt"
	"strings"
	"time"

	"github.com/forPelevin/clipcast/internal/domain/captions"
	"github.com/forPelevin/clipcast/internal/types"
)

// RenderKaraokeASS writes the clip's captions as a karaoke ASS script with
// clip-local event times. Word durations come from the same inferred windows
// the live overlay uses, so the sidecar highlights in step with the export.
func RenderKaraokeASS(clip types.Clip, width, height int) string {
	var b strings.Builder
	b.WriteString(assHeader(width, height))
	b.WriteString("\n[Events]\n")
	b.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")

	clipStart := dur(clip.StartSeconds)
	clipEnd := dur(clip.EndSeconds)
	for _, c := range clip.Captions {
		cs := dur(c.StartSeconds)
		ce := dur(c.EndSeconds)
		if ce <= clipStart || cs >= clipEnd || ce <= cs {
			continue
		}
		ws := captions.Windows(c)
		if len(ws) == 0 {
			continue
		}
		start := max(cs, clipStart) - clipStart
		end := min(ce, clipEnd) - clipStart

		b.WriteString("Dialogue: 0,")
		b.WriteString(assTime(start))
		b.WriteString(",")
		b.WriteString(assTime(end))
		b.WriteString(",Overlay,,0,0,0,,")
		for _, w := range ws {
			durCS := int(dur(w.End-w.Start) / (10 * time.Millisecond))
			if durCS < 1 {
				durCS = 1
			}
			b.WriteString(fmt.Sprintf("{\\k%d}%s ", durCS, sanitizeASS(strings.ToUpper(w.Word))))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func assHeader(width, height int) string {
	if width <= 0 || height <= 0 {
		width, height = 1920, 1080
	}
	// Font size and bottom margin mirror the live overlay: 5% of height,
	// baseline at 85%.
	fontSize := max(16, height*5/100)
	marginV := height * 15 / 100
	return strings.TrimSpace(fmt.Sprintf(`
[Script Info]
ScriptType: v4.00+
PlayResX: %d
PlayResY: %d
ScaledBorderAndShadow: yes

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: Overlay, Go, %d, &H00FFFFFF, &H0015CCFA, &H00000000, &H64000000, 1,0,0,0,100,100,0,0,1,4,0,2, 40,40,%d,1
`, width, height, fontSize, marginV))
}

func assTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hs := int(d / time.Hour)
	d -= time.Duration(hs) * time.Hour
	ms := int(d / time.Minute)
	d -= time.Duration(ms) * time.Minute
	s := int(d / time.Second)
	d -= time.Duration(s) * time.Second
	cs := int(d / (10 * time.Millisecond))
	return fmt.Sprintf("%d:%02d:%02d.%02d", hs, ms, s, cs)
}

func sanitizeASS(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "{", "(")
	s = strings.ReplaceAll(s, "}", ")")
	return strings.TrimSpace(s)
}

func dur(sec float64) time.Duration { return time.Duration(sec * float64(time.Second)) }
