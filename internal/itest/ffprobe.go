//go:build integration

package itest

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

type probed struct {
	Duration float64
	Video    bool
	Audio    bool
}

func probeMedia(path string) (probed, error) {
	cmd := exec.Command("ffprobe",
		"-v", "error",
		"-show_entries", "format=duration:stream=codec_type",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return probed{}, fmt.Errorf("ffprobe: %w\n%s", err, string(b))
	}
	var p probed
	for _, line := range strings.Fields(string(b)) {
		switch line {
		case "video":
			p.Video = true
		case "audio":
			p.Audio = true
		default:
			sec, err := strconv.ParseFloat(line, 64)
			if err != nil {
				return probed{}, fmt.Errorf("parse duration %q: %w", line, err)
			}
			p.Duration = sec
		}
	}
	return p, nil
}
