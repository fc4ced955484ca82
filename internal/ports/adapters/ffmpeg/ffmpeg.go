package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/ixugo/goddd/pkg/queue"
	"github.com/rs/zerolog"

	"github.com/forPelevin/clipcast/internal/ports"
)

// stderrLines is how much ffmpeg diagnostic output is kept for error messages.
const stderrLines = 20

type Adapter struct {
	ffmpeg  string
	ffprobe string
	log     zerolog.Logger

	mu       sync.Mutex
	encoders map[string]bool
}

func New(ffmpegPath, ffprobePath string, log zerolog.Logger) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Adapter{ffmpeg: ffmpegPath, ffprobe: ffprobePath, log: log}
}

type VideoInfo struct {
	Path       string
	Width      int
	Height     int
	FPS        float64
	Duration   float64
	VideoCodec string
	HasAudio   bool
	AudioCodec string
}

type probeResult struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType  string `json:"codec_type"`
		CodecName  string `json:"codec_name"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
	} `json:"streams"`
}

func (a *Adapter) Probe(ctx context.Context, path string) (VideoInfo, error) {
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	b, err := cmd.Output()
	if err != nil {
		return VideoInfo{}, fmt.Errorf("ffprobe %s: %w\n%s", path, err, stderr.String())
	}
	info, err := parseProbe(b)
	if err != nil {
		return VideoInfo{}, err
	}
	info.Path = path
	return info, nil
}

func parseProbe(b []byte) (VideoInfo, error) {
	var pr probeResult
	if err := json.Unmarshal(b, &pr); err != nil {
		return VideoInfo{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	var info VideoInfo
	if d, err := strconv.ParseFloat(pr.Format.Duration, 64); err == nil {
		info.Duration = d
	}
	hasVideo := false
	for _, s := range pr.Streams {
		switch s.CodecType {
		case "video":
			if hasVideo {
				continue
			}
			hasVideo = true
			info.Width = s.Width
			info.Height = s.Height
			info.VideoCodec = s.CodecName
			info.FPS = parseFrameRate(s.RFrameRate)
		case "audio":
			if !info.HasAudio {
				info.HasAudio = true
				info.AudioCodec = s.CodecName
			}
		}
	}
	if !hasVideo || info.Width <= 0 || info.Height <= 0 {
		return VideoInfo{}, fmt.Errorf("no video stream")
	}
	return info, nil
}

// parseFrameRate reads ffprobe rates like "30/1" or "30000/1001".
func parseFrameRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !ok {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

// Encoders lists the encoder names the ffmpeg build provides. The result is
// cached after the first successful query.
func (a *Adapter) Encoders(ctx context.Context) (map[string]bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.encoders != nil {
		return a.encoders, nil
	}
	b, err := exec.CommandContext(ctx, a.ffmpeg, "-hide_banner", "-encoders").CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg encoders: %w\n%s", err, string(b))
	}
	a.encoders = parseEncoders(b)
	a.log.Debug().Int("count", len(a.encoders)).Msg("encoders listed")
	return a.encoders, nil
}

// parseEncoders reads the table printed by `ffmpeg -encoders`: a legend, a
// dashed separator, then one "<flags> <name> <description>" row per encoder.
func parseEncoders(b []byte) map[string]bool {
	out := map[string]bool{}
	sc := bufio.NewScanner(bytes.NewReader(b))
	table := false
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !table {
			table = strings.HasPrefix(line, "---")
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		out[fields[1]] = true
	}
	return out
}

// GrabFrame decodes the single frame shown at `at` seconds.
func (a *Adapter) GrabFrame(ctx context.Context, path string, at float64) (image.Image, error) {
	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-hide_banner",
		"-loglevel", "error",
		"-ss", fmtSeconds(at),
		"-i", path,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"pipe:1",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	b, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg grab frame at %s: %w\n%s", fmtSeconds(at), err, stderr.String())
	}
	if len(b) == 0 {
		return nil, fmt.Errorf("ffmpeg grab frame at %s: no frame (past the end?)", fmtSeconds(at))
	}
	img, err := png.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("decode grabbed frame: %w", err)
	}
	return img, nil
}

var _ ports.FrameGrabber = (*Adapter)(nil)

// pumpStderr keeps the tail of ffmpeg's diagnostics and mirrors it to the
// debug log.
func pumpStderr(r io.Reader, tail *queue.CirQueue[string], log zerolog.Logger) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		tail.Push(line)
		log.Debug().Str("stderr", line).Msg("ffmpeg")
	}
}

func withTail(err error, tail *queue.CirQueue[string]) error {
	lines := tail.Range()
	if len(lines) == 0 {
		return err
	}
	return fmt.Errorf("%w\n%s", err, strings.Join(lines, "\n"))
}

func fmtSeconds(sec float64) string {
	return strconv.FormatFloat(max(0, sec), 'f', 3, 64)
}
