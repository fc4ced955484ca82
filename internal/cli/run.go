package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/forPelevin/clipcast/internal/config"
	"github.com/forPelevin/clipcast/internal/domain/timing"
	"github.com/forPelevin/clipcast/internal/logging"
	"github.com/forPelevin/clipcast/internal/pipeline"
	"github.com/forPelevin/clipcast/internal/types"
)

// setup loads config and the logger shared by every command.
func setup(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("config: %w", err)
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	if err := logging.Init(cfg.LogLevel); err != nil {
		return config.Config{}, err
	}
	log := logging.WithComponent("cli")
	log.Debug().
		Str("command", cmd.Name()).
		Str("ffmpeg", cfg.FFmpeg.Path).
		Str("refresh", cfg.Playback.Refresh).
		Msg("config loaded")
	return cfg, nil
}

func pipelineConfig(cmd *cobra.Command, manifest string, settings config.Config) (pipeline.Config, error) {
	clip, _ := cmd.Flags().GetString("clip")
	outDir, _ := cmd.Flags().GetString("out")
	source, _ := cmd.Flags().GetString("source")
	noCaptions, _ := cmd.Flags().GetBool("no-captions")

	absManifest, err := filepath.Abs(manifest)
	if err != nil {
		return pipeline.Config{}, err
	}
	cfg := pipeline.Config{
		Manifest: absManifest,
		Clip:     clip,
		Source:   source,
		OutDir:   outDir,
		Captions: !noCaptions,
		At:       -1,
		Settings: settings,
		Log:      logging.NewLogger(),
	}
	if err := cfg.Validate(); err != nil {
		return pipeline.Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// deadline bounds a run: export plays the clip once, so a few times its
// duration is plenty.
func deadline(cmd *cobra.Command, manifest, sel string) time.Duration {
	if d, _ := cmd.Flags().GetDuration("timeout"); d > 0 {
		return d
	}
	d := time.Hour
	if m, err := types.LoadManifest(manifest); err == nil {
		if sel == "" {
			sel = "1"
		}
		if c, err := m.Clip(sel); err == nil {
			d = time.Duration(3*timing.ClipDuration(c)*float64(time.Second)) + time.Minute
		}
	}
	return d
}

func runExport(cmd *cobra.Command, manifest string) error {
	settings, err := setup(cmd)
	if err != nil {
		return err
	}
	cfg, err := pipelineConfig(cmd, manifest, settings)
	if err != nil {
		return err
	}
	cfg.Subtitles, _ = cmd.Flags().GetBool("subs")

	ctx, cancel := context.WithTimeout(cmd.Context(), deadline(cmd, cfg.Manifest, cfg.Clip))
	defer cancel()

	res, err := pipeline.Export(ctx, cfg)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (%s, %d frames)\n", res.Path, humanize.Bytes(uint64(res.Size)), res.Frames)
	if res.SubtitlesPath != "" {
		fmt.Fprintln(out, res.SubtitlesPath)
	}
	return nil
}

func runFrame(cmd *cobra.Command, manifest string) error {
	settings, err := setup(cmd)
	if err != nil {
		return err
	}
	cfg, err := pipelineConfig(cmd, manifest, settings)
	if err != nil {
		return err
	}
	cfg.At, _ = cmd.Flags().GetFloat64("at")

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	res, err := pipeline.Still(ctx, cfg)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Path)
	return nil
}

func runClips(cmd *cobra.Command, manifest string) error {
	if _, err := setup(cmd); err != nil {
		return err
	}
	m, err := types.LoadManifest(manifest)
	if err != nil {
		return err
	}
	return printClips(cmd.OutOrStdout(), m)
}

func printClips(w io.Writer, m types.Manifest) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "#\tID\tSCORE\tWINDOW\tDURATION\tCAPTIONS\tTITLE\n")
	for i, c := range m.Clips {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s-%s\t%.1fs\t%d\t%s\n",
			i+1, c.ID, c.ViralityScore,
			clock(c.StartSeconds), clock(c.EndSeconds),
			timing.ClipDuration(c), len(c.Captions), c.Title)
	}
	if m.Source != "" {
		fmt.Fprintf(tw, "\nsource: %s\n", m.Source)
		if st, err := os.Stat(m.Source); err == nil {
			fmt.Fprintf(tw, "size:   %s\n", humanize.Bytes(uint64(st.Size())))
		}
	}
	return tw.Flush()
}

// clock formats seconds as m:ss.s.
func clock(sec float64) string {
	m := int(sec) / 60
	return fmt.Sprintf("%d:%04.1f", m, sec-float64(m*60))
}
