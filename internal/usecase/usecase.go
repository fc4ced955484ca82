package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/forPelevin/clipcast/internal/capture"
	"github.com/forPelevin/clipcast/internal/domain/subtitles"
	"github.com/forPelevin/clipcast/internal/eventloop"
	"github.com/forPelevin/clipcast/internal/player"
	"github.com/forPelevin/clipcast/internal/ports"
	"github.com/forPelevin/clipcast/internal/render"
	"github.com/forPelevin/clipcast/internal/types"
)

type Deps struct {
	// Loop runs every callback of Source, Sched and Recorder.
	Loop     *eventloop.Loop
	Source   ports.MediaSource
	Sched    ports.FrameScheduler
	Recorder ports.Recorder
	Saver    ports.Saver
	Grabber  ports.FrameGrabber
	Log      zerolog.Logger
}

type Usecase struct{ d Deps }

func New(d Deps) Usecase { return Usecase{d: d} }

type ExportInput struct {
	Clip      types.Clip
	Captions  bool
	Subtitles bool
	Style     render.Style

	FPS     int
	Bitrate int
	Formats []ports.Format

	OnProgress func(percent float64)
}

type ExportResult struct {
	Output        capture.Output
	SubtitlesPath string
}

// Export plays the clip once from its start while recording the composited
// frames, and returns when the file is saved.
func (u Usecase) Export(ctx context.Context, in ExportInput) (ExportResult, error) {
	r, err := render.New(in.Style)
	if err != nil {
		return ExportResult{}, err
	}
	ctrl := player.New(u.d.Source, u.d.Sched, r, u.d.Log.With().Str("component", "player").Logger())
	defer ctrl.Close()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		out    capture.Output
		runErr error
		done   bool
	)
	finish := func(o capture.Output, err error) {
		if done {
			return
		}
		out, runErr, done = o, err, true
		cancel()
	}

	pipe := capture.New(capture.Deps{
		Player:   ctrl,
		Source:   u.d.Source,
		Recorder: u.d.Recorder,
		Saver:    u.d.Saver,
		Post:     u.d.Loop.Post,
		Log:      u.d.Log.With().Str("component", "capture").Logger(),
	}, capture.Options{
		FPS:        in.FPS,
		Bitrate:    in.Bitrate,
		Formats:    in.Formats,
		OnProgress: in.OnProgress,
		OnDone:     finish,
	})

	u.d.Loop.Post(func() {
		ctrl.Select(in.Clip)
		ctrl.SetCaptions(in.Captions)
		if err := pipe.Start(runCtx); err != nil {
			finish(capture.Output{}, err)
		}
	})
	_ = u.d.Loop.Run(runCtx)

	// The loop has returned, so the pipeline can be touched from here.
	if !done {
		pipe.Abort(ctx.Err())
		return ExportResult{}, fmt.Errorf("export %s: %w", in.Clip.ID, ctx.Err())
	}
	if runErr != nil {
		return ExportResult{}, fmt.Errorf("export %s: %w", in.Clip.ID, runErr)
	}

	res := ExportResult{Output: out}
	if in.Subtitles {
		p, err := u.SaveSubtitles(in.Clip)
		if err != nil {
			return res, err
		}
		res.SubtitlesPath = p
	}
	return res, nil
}

// SaveSubtitles writes the clip captions as a karaoke ASS file sized to the
// source.
func (u Usecase) SaveSubtitles(clip types.Clip) (string, error) {
	w, h := u.d.Source.Size()
	ass := subtitles.RenderKaraokeASS(clip, w, h)
	name := capture.Filename(clip.Title, ports.Format{Ext: "ass"})
	p, err := u.d.Saver.Save(name, []byte(ass))
	if err != nil {
		return "", fmt.Errorf("save subtitles: %w", err)
	}
	return p, nil
}

type StillInput struct {
	Source   string
	Clip     types.Clip
	At       float64
	Captions bool
	Style    render.Style
}

// Still composites the frame at an absolute source time with the caption
// overlay and saves it as PNG.
func (u Usecase) Still(ctx context.Context, in StillInput) (string, error) {
	if u.d.Grabber == nil {
		return "", errors.New("no frame grabber configured")
	}
	frame, err := u.d.Grabber.GrabFrame(ctx, in.Source, in.At)
	if err != nil {
		return "", err
	}
	r, err := render.New(in.Style)
	if err != nil {
		return "", err
	}
	clip := in.Clip
	r.Draw(frame, render.Snapshot{Clip: &clip, Time: in.At, Captions: in.Captions})

	var buf bytes.Buffer
	if err := png.Encode(&buf, r.Surface()); err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}
	stem := strings.TrimSuffix(capture.Filename(clip.Title, ports.Format{Ext: "png"}), ".png")
	name := stem + "-" + strings.ReplaceAll(strconv.FormatFloat(in.At, 'f', 2, 64), ".", "_") + ".png"
	p, err := u.d.Saver.Save(name, buf.Bytes())
	if err != nil {
		return "", fmt.Errorf("save still: %w", err)
	}
	return p, nil
}
