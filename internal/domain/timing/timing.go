// Package timing maps between absolute source-video time and clip-relative time.
package timing

import "github.com/forPelevin/clipcast/internal/types"

func ClipDuration(c types.Clip) float64 {
	return c.EndSeconds - c.StartSeconds
}

func RelativeTime(abs float64, c types.Clip) float64 {
	return max(0, abs-c.StartSeconds)
}

// ProgressRatio is the clip-relative position in [0,1]. A clip with a
// non-positive duration always reports 0.
func ProgressRatio(abs float64, c types.Clip) float64 {
	d := ClipDuration(c)
	if d <= 0 {
		return 0
	}
	return clamp(RelativeTime(abs, c)/d, 0, 1)
}

// AbsoluteAt converts a seek percentage in [0,100] to absolute source time.
func AbsoluteAt(c types.Clip, percent float64) float64 {
	percent = clamp(percent, 0, 100)
	return c.StartSeconds + max(0, ClipDuration(c))*percent/100
}

func clamp(x, a, b float64) float64 {
	if x < a {
		return a
	}
	if x > b {
		return b
	}
	return x
}
