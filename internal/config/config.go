// Package config loads clipcast.yaml and environment overrides.
package config

import (
	"errors"
	"fmt"
	"image/color"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/forPelevin/clipcast/internal/capture"
	"github.com/forPelevin/clipcast/internal/ports"
	"github.com/forPelevin/clipcast/internal/render"
)

// DefaultFile is read from the working directory when no path is given.
const DefaultFile = "clipcast.yaml"

const (
	RefreshFrame = "frame"
	RefreshVSync = "vsync"
)

type Config struct {
	LogLevel string         `yaml:"log_level"`
	FFmpeg   FFmpegConfig   `yaml:"ffmpeg"`
	Render   RenderConfig   `yaml:"render"`
	Capture  CaptureConfig  `yaml:"capture"`
	Playback PlaybackConfig `yaml:"playback"`
}

type FFmpegConfig struct {
	Path      string `yaml:"path"`
	ProbePath string `yaml:"probe_path"`
}

type RenderConfig struct {
	FontScale      float64 `yaml:"font_scale"`
	MinFontSize    float64 `yaml:"min_font_size"`
	Baseline       float64 `yaml:"baseline"`
	WordGap        float64 `yaml:"word_gap"`
	ChipPadding    float64 `yaml:"chip_padding"`
	ChipRadius     float64 `yaml:"chip_radius"`
	StrokeWidth    float64 `yaml:"stroke_width"`
	TextColor      string  `yaml:"text_color"`
	StrokeColor    string  `yaml:"stroke_color"`
	HighlightColor string  `yaml:"highlight_color"`
}

type CaptureConfig struct {
	FPS     int `yaml:"fps"`
	Bitrate int `yaml:"bitrate"`
	// Formats is the codec preference, best first: vp9, vp8, h264.
	Formats []string `yaml:"formats"`
}

type PlaybackConfig struct {
	Realtime bool   `yaml:"realtime"`
	Refresh  string `yaml:"refresh"`
	// RefreshHz is the vsync rate.
	RefreshHz int `yaml:"refresh_hz"`
}

// formatNames maps config names to capture formats.
var formatNames = map[string]ports.Format{
	"vp9":  capture.DefaultFormats[0],
	"vp8":  capture.DefaultFormats[1],
	"h264": capture.DefaultFormats[2],
}

func Default() Config {
	return Config{
		LogLevel: "info",
		FFmpeg:   FFmpegConfig{Path: "ffmpeg", ProbePath: "ffprobe"},
		Render: RenderConfig{
			FontScale:      0.05,
			MinFontSize:    16,
			Baseline:       0.85,
			WordGap:        0.3,
			ChipPadding:    0.2,
			ChipRadius:     0.25,
			StrokeWidth:    0.08,
			TextColor:      "#ffffff",
			StrokeColor:    "#000000",
			HighlightColor: "#facc15",
		},
		Capture: CaptureConfig{
			FPS:     capture.DefaultFPS,
			Bitrate: capture.DefaultBitrate,
			Formats: []string{"vp9", "vp8", "h264"},
		},
		Playback: PlaybackConfig{
			Refresh:   RefreshFrame,
			RefreshHz: 60,
		},
	}
}

// Load layers the YAML file at path (or CLIPCAST_CONFIG, or ./clipcast.yaml
// when present) over the defaults, then applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if path == "" {
		path = os.Getenv("CLIPCAST_CONFIG")
		explicit = path != ""
	}
	if path == "" {
		path = DefaultFile
	}

	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("CLIPCAST_FFMPEG"); v != "" {
		cfg.FFmpeg.Path = v
	}
	if v := os.Getenv("CLIPCAST_FFPROBE"); v != "" {
		cfg.FFmpeg.ProbePath = v
	}
	if v := os.Getenv("CLIPCAST_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

func (c Config) Validate() error {
	if c.Capture.FPS <= 0 {
		return fmt.Errorf("capture.fps must be > 0")
	}
	if c.Capture.Bitrate <= 0 {
		return fmt.Errorf("capture.bitrate must be > 0")
	}
	if _, err := c.Formats(); err != nil {
		return err
	}
	switch c.Playback.Refresh {
	case RefreshFrame:
	case RefreshVSync:
		if c.Playback.RefreshHz <= 0 {
			return fmt.Errorf("playback.refresh_hz must be > 0")
		}
	default:
		return fmt.Errorf("playback.refresh must be %q or %q, got %q", RefreshFrame, RefreshVSync, c.Playback.Refresh)
	}
	if _, err := c.Style(); err != nil {
		return err
	}
	return nil
}

// Formats resolves the capture preference list.
func (c Config) Formats() ([]ports.Format, error) {
	if len(c.Capture.Formats) == 0 {
		return capture.DefaultFormats, nil
	}
	out := make([]ports.Format, 0, len(c.Capture.Formats))
	for _, name := range c.Capture.Formats {
		f, ok := formatNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("capture.formats: unknown format %q", name)
		}
		out = append(out, f)
	}
	return out, nil
}

func (c Config) Style() (render.Style, error) {
	r := c.Render
	s := render.Style{
		FontScale:   r.FontScale,
		MinFontSize: r.MinFontSize,
		Baseline:    r.Baseline,
		WordGap:     r.WordGap,
		ChipPadding: r.ChipPadding,
		ChipRadius:  r.ChipRadius,
		StrokeWidth: r.StrokeWidth,
	}
	var err error
	if s.TextColor, err = parseColor("render.text_color", r.TextColor); err != nil {
		return render.Style{}, err
	}
	if s.StrokeColor, err = parseColor("render.stroke_color", r.StrokeColor); err != nil {
		return render.Style{}, err
	}
	if s.HighlightColor, err = parseColor("render.highlight_color", r.HighlightColor); err != nil {
		return render.Style{}, err
	}
	return s, nil
}

// parseColor leaves unset colors zero so the renderer falls back to its
// defaults.
func parseColor(key, v string) (color.RGBA, error) {
	if strings.TrimSpace(v) == "" {
		return color.RGBA{}, nil
	}
	c, err := render.ParseHexColor(v)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("%s: %w", key, err)
	}
	return c, nil
}
