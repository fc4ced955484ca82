// Package player owns the active selection: which clip is loaded, where the
// playhead is, and whether playback runs. It keeps the render loop alive
// while a clip is loaded and enforces the clip-boundary stop.
package player

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/forPelevin/clipcast/internal/domain/timing"
	"github.com/forPelevin/clipcast/internal/ports"
	"github.com/forPelevin/clipcast/internal/render"
	"github.com/forPelevin/clipcast/internal/types"
)

var (
	ErrNoClip      = errors.New("no clip selected")
	ErrClipChanged = errors.New("clip changed during export")
)

type State int

const (
	Stopped State = iota
	Playing
)

func (s State) String() string {
	if s == Playing {
		return "playing"
	}
	return "stopped"
}

// Exporter is the capture pipeline as seen from playback.
type Exporter interface {
	// Active reports an export that is recording or finalizing.
	Active() bool
	Recording() bool
	Tick(pos, ratio float64)
	Boundary()
	Abort(reason error)
}

type Controller struct {
	src      ports.MediaSource
	sched    ports.FrameScheduler
	renderer *render.Renderer
	log      zerolog.Logger

	clip     *types.Clip
	state    State
	captions bool
	relTime  float64
	progress float64

	loop     *render.Loop
	exporter Exporter
}

func New(src ports.MediaSource, sched ports.FrameScheduler, r *render.Renderer, log zerolog.Logger) *Controller {
	c := &Controller{
		src:      src,
		sched:    sched,
		renderer: r,
		log:      log,
		captions: true,
	}
	src.OnTimeUpdate(c.Tick)
	return c
}

func (c *Controller) SetExporter(e Exporter) { c.exporter = e }

// Select loads clip, parks the playhead at its start and restarts the render
// loop. Selecting during an export aborts the export.
func (c *Controller) Select(clip types.Clip) {
	if c.exporter != nil && c.exporter.Active() {
		c.exporter.Abort(ErrClipChanged)
	}
	c.clip = &clip
	if !c.src.Paused() {
		c.src.Pause()
	}
	c.state = Stopped
	c.src.Seek(clip.StartSeconds)
	c.relTime = 0
	c.progress = 0

	c.loop.Stop()
	c.loop = render.StartLoop(c.sched, c.draw)

	c.log.Debug().
		Str("clip", clip.ID).
		Float64("start", clip.StartSeconds).
		Float64("end", clip.EndSeconds).
		Int("captions", len(clip.Captions)).
		Msg("clip selected")
}

func (c *Controller) Play(ctx context.Context) error {
	if c.clip == nil {
		return ErrNoClip
	}
	if err := c.src.Play(ctx); err != nil {
		if errors.Is(err, ports.ErrPlaybackInterrupted) {
			return nil
		}
		c.log.Warn().Err(err).Str("clip", c.clip.ID).Msg("playback error")
		return err
	}
	c.state = Playing
	return nil
}

func (c *Controller) Pause() {
	c.src.Pause()
	c.state = Stopped
}

// Seek moves to a percentage in [0,100] of the active clip.
func (c *Controller) Seek(percent float64) {
	if c.clip == nil {
		return
	}
	c.SeekTo(timing.AbsoluteAt(*c.clip, percent))
}

// SeekTo moves to an absolute source time.
func (c *Controller) SeekTo(abs float64) {
	if c.clip == nil {
		return
	}
	c.src.Seek(abs)
	c.relTime = timing.RelativeTime(abs, *c.clip)
	c.progress = timing.ProgressRatio(abs, *c.clip)
}

// Tick handles one time-advance event from the source.
func (c *Controller) Tick(pos float64) {
	if c.clip == nil {
		return
	}
	clip := *c.clip
	c.relTime = timing.RelativeTime(pos, clip)
	c.progress = timing.ProgressRatio(pos, clip)
	if c.exporter != nil {
		c.exporter.Tick(pos, c.progress)
	}
	if pos < clip.EndSeconds {
		return
	}

	if c.exporter != nil && c.exporter.Recording() {
		c.exporter.Boundary()
		return
	}
	c.Pause()
	c.src.Seek(clip.StartSeconds)
	c.relTime = 0
	c.progress = 0
}

func (c *Controller) SetCaptions(on bool) { c.captions = on }

func (c *Controller) Clip() (types.Clip, bool) {
	if c.clip == nil {
		return types.Clip{}, false
	}
	return *c.clip, true
}

func (c *Controller) State() State               { return c.state }
func (c *Controller) Progress() float64          { return c.progress }
func (c *Controller) RelativeTime() float64      { return c.relTime }
func (c *Controller) Renderer() *render.Renderer { return c.renderer }

func (c *Controller) Snapshot() render.Snapshot {
	return render.Snapshot{
		Clip:     c.clip,
		Time:     c.src.Position(),
		Captions: c.captions,
	}
}

// Close stops the render loop and unloads the clip.
func (c *Controller) Close() {
	c.loop.Stop()
	c.loop = nil
	if !c.src.Paused() {
		c.src.Pause()
	}
	c.state = Stopped
	c.clip = nil
}

func (c *Controller) draw() {
	c.renderer.Draw(c.src.Frame(), c.Snapshot())
}
