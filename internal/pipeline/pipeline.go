package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/forPelevin/clipcast/internal/config"
	"github.com/forPelevin/clipcast/internal/eventloop"
	"github.com/forPelevin/clipcast/internal/ports"
	"github.com/forPelevin/clipcast/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/clipcast/internal/ports/adapters/filesaver"
	"github.com/forPelevin/clipcast/internal/render"
	"github.com/forPelevin/clipcast/internal/types"
	"github.com/forPelevin/clipcast/internal/usecase"
)

type Config struct {
	Manifest string
	// Clip selects by ID or 1-based index; empty means the first clip.
	Clip string
	// Source overrides the manifest's source video.
	Source    string
	OutDir    string
	Captions  bool
	Subtitles bool
	// At is the absolute source time for stills; negative means the clip
	// start.
	At float64

	Settings config.Config
	// Log is the base logger; components add their own field.
	Log zerolog.Logger
}

func (c Config) Validate() error {
	if c.Manifest == "" {
		return errors.New("manifest is empty")
	}
	if _, err := os.Stat(c.Manifest); err != nil {
		return fmt.Errorf("stat manifest: %w", err)
	}
	if c.Source != "" {
		if _, err := os.Stat(c.Source); err != nil {
			return fmt.Errorf("stat source: %w", err)
		}
	}
	return c.Settings.Validate()
}

type Result struct {
	Clip          types.Clip
	RunDir        string
	Path          string
	Size          int
	Frames        int
	SubtitlesPath string
}

// resolve loads the manifest and picks the clip and source video.
func resolve(cfg Config) (types.Clip, string, error) {
	m, err := types.LoadManifest(cfg.Manifest)
	if err != nil {
		return types.Clip{}, "", err
	}
	sel := cfg.Clip
	if sel == "" {
		sel = "1"
	}
	clip, err := m.Clip(sel)
	if err != nil {
		return types.Clip{}, "", err
	}
	if clip.EndSeconds <= clip.StartSeconds {
		return types.Clip{}, "", fmt.Errorf("clip %s: end %.3f is not after start %.3f", clip.ID, clip.EndSeconds, clip.StartSeconds)
	}
	src := m.Source
	if cfg.Source != "" {
		src = cfg.Source
	}
	if src == "" {
		return types.Clip{}, "", errors.New("no source video: set it in the manifest or pass --source")
	}
	abs, err := filepath.Abs(src)
	if err != nil {
		return types.Clip{}, "", err
	}
	return clip, abs, nil
}

// Export records one clip with its caption overlay into a fresh run
// directory under OutDir.
func Export(ctx context.Context, cfg Config) (Result, error) {
	log := cfg.Log.With().Str("component", "pipeline").Logger()
	clip, srcPath, err := resolve(cfg)
	if err != nil {
		return Result{}, err
	}
	style, err := cfg.Settings.Style()
	if err != nil {
		return Result{}, err
	}
	formats, err := cfg.Settings.Formats()
	if err != nil {
		return Result{}, err
	}

	v := ffmpeg.New(cfg.Settings.FFmpeg.Path, cfg.Settings.FFmpeg.ProbePath, cfg.Log.With().Str("component", "ffmpeg").Logger())
	info, err := v.Probe(ctx, srcPath)
	if err != nil {
		return Result{}, err
	}
	if info.Duration > 0 && clip.StartSeconds >= info.Duration {
		return Result{}, fmt.Errorf("clip %s starts at %.3fs, source is only %.3fs long", clip.ID, clip.StartSeconds, info.Duration)
	}
	log.Info().
		Str("source", srcPath).
		Int("width", info.Width).
		Int("height", info.Height).
		Float64("fps", info.FPS).
		Bool("audio", info.HasAudio).
		Msg("source probed")

	loop := eventloop.New()
	src, err := v.NewSource(ffmpeg.SourceConfig{
		Info:     info,
		FPS:      cfg.Settings.Capture.FPS,
		Realtime: cfg.Settings.Playback.Realtime,
		Post:     loop.Post,
	})
	if err != nil {
		return Result{}, err
	}
	defer src.Close()

	var sched ports.FrameScheduler = src
	if cfg.Settings.Playback.Refresh == config.RefreshVSync {
		vs := render.NewVSync(loop.Post, cfg.Settings.Playback.RefreshHz)
		defer vs.Close()
		sched = vs
	}

	runDir := buildRunOutDir(outRoot(cfg.OutDir), srcPath, time.Now().UTC())
	log.Info().Str("dir", runDir).Msg("output run dir")

	uc := usecase.New(usecase.Deps{
		Loop:     loop,
		Source:   src,
		Sched:    sched,
		Recorder: v.Recorder(),
		Saver:    filesaver.New(runDir),
		Grabber:  v,
		Log:      cfg.Log,
	})

	lastDecile := -1
	res, err := uc.Export(ctx, usecase.ExportInput{
		Clip:      clip,
		Captions:  cfg.Captions,
		Subtitles: cfg.Subtitles,
		Style:     style,
		FPS:       cfg.Settings.Capture.FPS,
		Bitrate:   cfg.Settings.Capture.Bitrate,
		Formats:   formats,
		OnProgress: func(p float64) {
			d := int(math.Floor(p / 10))
			if d > lastDecile {
				lastDecile = d
				log.Info().Str("clip", clip.ID).Msgf("export %d%%", d*10)
			}
		},
	})
	if err != nil {
		return Result{}, err
	}
	log.Info().
		Str("path", res.Output.Path).
		Str("size", humanize.Bytes(uint64(res.Output.Size))).
		Str("format", res.Output.Format.MIME).
		Msg("clip exported")

	return Result{
		Clip:          clip,
		RunDir:        runDir,
		Path:          res.Output.Path,
		Size:          res.Output.Size,
		Frames:        res.Output.Frames,
		SubtitlesPath: res.SubtitlesPath,
	}, nil
}

// Still renders the composited frame at cfg.At into OutDir as PNG.
func Still(ctx context.Context, cfg Config) (Result, error) {
	clip, srcPath, err := resolve(cfg)
	if err != nil {
		return Result{}, err
	}
	style, err := cfg.Settings.Style()
	if err != nil {
		return Result{}, err
	}
	at := cfg.At
	if at < 0 {
		at = clip.StartSeconds
	}

	v := ffmpeg.New(cfg.Settings.FFmpeg.Path, cfg.Settings.FFmpeg.ProbePath, cfg.Log.With().Str("component", "ffmpeg").Logger())
	dir := outRoot(cfg.OutDir)
	uc := usecase.New(usecase.Deps{
		Saver:   filesaver.New(dir),
		Grabber: v,
		Log:     cfg.Log,
	})
	p, err := uc.Still(ctx, usecase.StillInput{
		Source:   srcPath,
		Clip:     clip,
		At:       at,
		Captions: cfg.Captions,
		Style:    style,
	})
	if err != nil {
		return Result{}, err
	}
	cfg.Log.Info().Str("component", "pipeline").Str("path", p).Float64("at", at).Msg("still written")
	return Result{Clip: clip, RunDir: dir, Path: p}, nil
}

func outRoot(dir string) string {
	if dir == "" {
		return "out"
	}
	return dir
}

func buildRunOutDir(outRoot, source string, now time.Time) string {
	name := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	name = normalizePathSegment(name)
	if name == "" {
		name = "source"
	}
	ts := now.UTC().Format("20060102-150405Z")
	suffix := hash(fmt.Sprintf("%s|%d", source, now.UTC().UnixNano()))[:6]
	return filepath.Join(outRoot, fmt.Sprintf("%s-%s-%s", name, ts, suffix))
}

func normalizePathSegment(s string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}

// ensure adapters implement ports
var (
	_ ports.MediaSource  = (*ffmpeg.Source)(nil)
	_ ports.Recorder     = (*ffmpeg.Recorder)(nil)
	_ ports.FrameGrabber = (*ffmpeg.Adapter)(nil)
	_ ports.Saver        = (*filesaver.Saver)(nil)
)
