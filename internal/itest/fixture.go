//go:build integration

package itest

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

// makeSource renders a 12s 320x240 test pattern, with a sine tone when
// audio is set.
func makeSource(t *testing.T, dir string, audio bool) string {
	t.Helper()
	out := filepath.Join(dir, "source.mp4")
	args := []string{"-y", "-hide_banner", "-loglevel", "error",
		"-f", "lavfi", "-i", "testsrc=size=320x240:rate=30:duration=12",
	}
	if audio {
		args = append(args, "-f", "lavfi", "-i", "sine=frequency=440:duration=12", "-c:a", "aac")
	}
	args = append(args, "-c:v", "libx264", "-pix_fmt", "yuv420p", "-shortest", out)
	if b, err := exec.Command("ffmpeg", args...).CombinedOutput(); err != nil {
		t.Fatalf("ffmpeg fixture failed: %v\n%s", err, string(b))
	}
	return out
}

func writeManifest(t *testing.T, dir, source string) string {
	t.Helper()
	p := filepath.Join(dir, "clips.json")
	body := fmt.Sprintf(`{
  "source": %q,
  "clips": [
    {"id": "hook", "title": "The Hook!", "virality_score": 8, "start_sec": 2, "end_sec": 5,
     "captions": [{"text": "this is a test", "start_sec": 2.5, "end_sec": 4.5}]},
    {"id": "late", "title": "Too late", "start_sec": 30, "end_sec": 33}
  ]
}`, source)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return p
}
