// Package captions resolves which caption, and which word inside it, is
// active at a given absolute source time.
//
// Source captions carry no word-level timestamps. Word timing is inferred by
// spreading the caption duration linearly over its characters.
package captions

import (
	"strings"
	"unicode/utf8"

	"github.com/forPelevin/clipcast/internal/types"
)

// tailFraction is the share of the caption duration after which an unmatched
// time falls back to the last word.
const tailFraction = 0.9

// Window is the inferred time span of one word, relative to the caption start.
type Window struct {
	Word  string
	Start float64
	End   float64
}

// Overlay is what the renderer draws for one tick.
type Overlay struct {
	Caption types.Caption
	Words   []string
	Active  int // index into Words, -1 when no word is highlighted
}

// Active returns the first caption with start <= t <= end.
func Active(caps []types.Caption, t float64) (types.Caption, bool) {
	for _, c := range caps {
		if c.StartSeconds <= t && t <= c.EndSeconds {
			return c, true
		}
	}
	return types.Caption{}, false
}

// Resolve combines Active and ActiveWord.
func Resolve(caps []types.Caption, t float64) (Overlay, bool) {
	c, ok := Active(caps, t)
	if !ok {
		return Overlay{}, false
	}
	return Overlay{
		Caption: c,
		Words:   strings.Fields(c.Text),
		Active:  ActiveWord(c, t),
	}, true
}

// Windows lays the caption's words out over its duration. Each word owns its
// characters plus one trailing space.
func Windows(c types.Caption) []Window {
	words := strings.Fields(c.Text)
	if len(words) == 0 {
		return nil
	}
	d := c.EndSeconds - c.StartSeconds
	perChar := d / float64(max(1, utf8.RuneCountInString(c.Text)))

	out := make([]Window, 0, len(words))
	acc := 0
	for _, w := range words {
		n := utf8.RuneCountInString(w)
		out = append(out, Window{
			Word:  w,
			Start: float64(acc) * perChar,
			End:   float64(acc+n+1) * perChar,
		})
		acc += n + 1
	}
	return out
}

// ActiveWord returns the index of the highlighted word at absolute time t,
// or -1.
func ActiveWord(c types.Caption, t float64) int {
	ws := Windows(c)
	if len(ws) == 0 {
		return -1
	}
	elapsed := max(0, t-c.StartSeconds)
	for i, w := range ws {
		if elapsed >= w.Start && elapsed < w.End {
			return i
		}
	}
	if elapsed >= tailFraction*(c.EndSeconds-c.StartSeconds) {
		return len(ws) - 1
	}
	return -1
}
