package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present

	if err := newRoot().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRoot() *cobra.Command {
	root := &cobra.Command{
		Use:          "clipcast",
		Short:        "Overlay timed captions on highlight clips and export them",
		SilenceUsage: true,
	}
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)
	root.SilenceErrors = true

	root.PersistentFlags().String("config", "", "Config file (default ./clipcast.yaml or $CLIPCAST_CONFIG)")
	root.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")

	export := &cobra.Command{
		Use:   "export <manifest>",
		Short: "Record a clip with its caption overlay to a video file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, args[0])
		},
	}
	addClipFlags(export)
	export.Flags().Bool("subs", false, "Also write the captions as a karaoke .ass file")

	frame := &cobra.Command{
		Use:   "frame <manifest>",
		Short: "Render the composited frame at a source time to PNG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFrame(cmd, args[0])
		},
	}
	addClipFlags(frame)
	frame.Flags().Float64("at", -1, "Absolute source time in seconds (default: clip start)")

	clips := &cobra.Command{
		Use:   "clips <manifest>",
		Short: "List the clips of a manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClips(cmd, args[0])
		},
	}

	root.AddCommand(export, frame, clips)
	return root
}

func addClipFlags(cmd *cobra.Command) {
	cmd.Flags().String("clip", "", "Clip id or 1-based index (default: first clip)")
	cmd.Flags().String("out", "out", "Output directory")
	cmd.Flags().String("source", "", "Source video (overrides the manifest)")
	cmd.Flags().Bool("no-captions", false, "Render without the caption overlay")

	// Hidden tuning flag (internal)
	cmd.Flags().Duration("timeout", 0, "Overall deadline (0 = 3x clip duration + 1m)")
	_ = cmd.Flags().MarkHidden("timeout")
}
