// Package capture records the composited rendering surface, plus the source
// audio, for exactly the span of one clip and saves the result as a file.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/image/draw"

	"github.com/forPelevin/clipcast/internal/domain/timing"
	"github.com/forPelevin/clipcast/internal/player"
	"github.com/forPelevin/clipcast/internal/ports"
	"github.com/forPelevin/clipcast/internal/types"
)

var (
	ErrNoClip           = player.ErrNoClip
	ErrExportInProgress = errors.New("export already in progress")
	ErrAborted          = errors.New("export aborted")
)

type Status int

const (
	Idle Status = iota
	Recording
	Finalizing
	Aborted
)

func (s Status) String() string {
	switch s {
	case Recording:
		return "recording"
	case Finalizing:
		return "finalizing"
	case Aborted:
		return "aborted"
	default:
		return "idle"
	}
}

type Deps struct {
	Player   *player.Controller
	Source   ports.MediaSource
	Recorder ports.Recorder
	Saver    ports.Saver
	// Post runs a callback on the event loop. Recorder callbacks arrive on
	// adapter goroutines and are marshaled through it.
	Post func(func())
	Log  zerolog.Logger
}

type Options struct {
	FPS     int
	Bitrate int
	Formats []ports.Format

	OnProgress func(percent float64)
	// OnDone reports the end of every export that started successfully:
	// the saved output, or the reason it was aborted.
	OnDone func(Output, error)
}

type Output struct {
	SessionID string
	ClipID    string
	Path      string
	Size      int
	Frames    int
	Format    ports.Format
}

// session is one export. It is created by Start and dropped on finalize or
// abort; callbacks from a dropped session's recorder are ignored.
type session struct {
	id     string
	clip   types.Clip
	format ports.Format
	status Status
	rec    ports.Recording

	width, height int
	scaled        *image.RGBA
	nextFrame     int
	maxFrames     int

	chunks   [][]byte
	progress float64

	// Finalize waits for both: the recorder acknowledging stop and the
	// final chunk being delivered. They may arrive in either order.
	stopped bool
	drained bool
	stopErr error
}

type Pipeline struct {
	d    Deps
	opts Options
	sess *session
}

func New(d Deps, opts Options) *Pipeline {
	if opts.FPS <= 0 {
		opts.FPS = DefaultFPS
	}
	if opts.Bitrate <= 0 {
		opts.Bitrate = DefaultBitrate
	}
	if len(opts.Formats) == 0 {
		opts.Formats = DefaultFormats
	}
	p := &Pipeline{d: d, opts: opts}
	d.Player.SetExporter(p)
	return p
}

func (p *Pipeline) Status() Status {
	if p.sess == nil {
		return Idle
	}
	return p.sess.status
}

// Progress is the export completion in percent.
func (p *Pipeline) Progress() float64 {
	if p.sess == nil {
		return 0
	}
	return p.sess.progress
}

func (p *Pipeline) Active() bool {
	return p.sess != nil && (p.sess.status == Recording || p.sess.status == Finalizing)
}

func (p *Pipeline) Recording() bool {
	return p.sess != nil && p.sess.status == Recording
}

// Start begins exporting the active clip. Playback is rewound to the clip
// start and then drives the recording until the clip boundary.
func (p *Pipeline) Start(ctx context.Context) error {
	clip, ok := p.d.Player.Clip()
	if !ok {
		return ErrNoClip
	}
	if p.sess != nil {
		return ErrExportInProgress
	}

	p.d.Player.Pause()
	p.d.Player.SeekTo(clip.StartSeconds)

	format, err := PickFormat(p.d.Recorder, p.opts.Formats)
	if err != nil {
		return err
	}
	w, h := p.d.Source.Size()
	if w <= 0 || h <= 0 {
		return fmt.Errorf("source has no frame size (%dx%d)", w, h)
	}

	dur := timing.ClipDuration(clip)
	s := &session{
		id:        uuid.NewString(),
		clip:      clip,
		format:    format,
		status:    Recording,
		width:     w,
		height:    h,
		maxFrames: max(0, int(dur*float64(p.opts.FPS)+0.5)),
	}
	p.sess = s
	log := p.d.Log.With().Str("session", s.id).Str("clip", clip.ID).Logger()

	spec := ports.RecordSpec{
		Width:      w,
		Height:     h,
		FPS:        p.opts.FPS,
		Bitrate:    p.opts.Bitrate,
		Format:     format,
		AudioStart: clip.StartSeconds,
		Duration:   dur,
		OnData: func(chunk []byte) {
			p.d.Post(func() { p.onData(s, chunk) })
		},
		OnDataEnd: func() {
			p.d.Post(func() { p.onDataEnd(s) })
		},
		OnStop: func(err error) {
			p.d.Post(func() { p.onStop(s, err) })
		},
	}

	track, err := p.d.Source.AudioTrack()
	switch {
	case err == nil:
		spec.Audio = &track
	case errors.Is(err, ports.ErrNoAudioTrack):
		log.Info().Msg("source has no audio, exporting video only")
	default:
		log.Warn().Err(err).Msg("audio track unavailable, exporting video only")
	}

	rec, err := p.d.Recorder.Start(ctx, spec)
	if err != nil {
		p.sess = nil
		return fmt.Errorf("start recording: %w", err)
	}
	s.rec = rec

	log.Info().
		Str("format", format.MIME).
		Int("width", w).
		Int("height", h).
		Bool("audio", spec.Audio != nil).
		Float64("duration", dur).
		Msg("export started")

	if err := p.d.Player.Play(ctx); err != nil {
		p.abort(s, err)
		return fmt.Errorf("start playback: %w", err)
	}
	// An interrupted play leaves the source paused and nothing would ever
	// reach the boundary.
	if p.d.Source.Paused() {
		p.abort(s, ports.ErrPlaybackInterrupted)
		return fmt.Errorf("start playback: %w", ports.ErrPlaybackInterrupted)
	}
	return nil
}

// Tick samples the surface on the recording's frame grid and updates
// progress. It runs on every playback time update.
func (p *Pipeline) Tick(pos, ratio float64) {
	s := p.sess
	if s == nil || s.status != Recording {
		return
	}
	s.progress = ratio * 100
	if p.opts.OnProgress != nil {
		p.opts.OnProgress(s.progress)
	}

	slots := (pos - s.clip.StartSeconds) * float64(p.opts.FPS)
	for s.nextFrame < s.maxFrames && float64(s.nextFrame) < slots-1e-6 {
		if err := s.rec.WriteFrame(p.frame(s)); err != nil {
			p.fail(s, fmt.Errorf("write frame %d: %w", s.nextFrame, err))
			return
		}
		s.nextFrame++
	}
}

// Boundary ends the recording. Only the first call per export has an
// effect.
func (p *Pipeline) Boundary() {
	s := p.sess
	if s == nil || s.status != Recording {
		return
	}
	s.status = Finalizing
	s.rec.Stop()
	p.d.Player.Pause()
	p.d.Log.Debug().Str("session", s.id).Int("frames", s.nextFrame).Msg("clip boundary reached")
}

// Abort cancels the running export without saving anything.
func (p *Pipeline) Abort(reason error) {
	s := p.sess
	if s == nil {
		return
	}
	p.fail(s, reason)
}

// frame returns the surface sized to the recording. Before the first
// composite, or after the source changed size, it draws into a buffer of
// the recording size.
func (p *Pipeline) frame(s *session) *image.RGBA {
	surface := p.d.Player.Renderer().Surface()
	b := surface.Bounds()
	if b.Dx() == s.width && b.Dy() == s.height {
		return surface
	}
	if s.scaled == nil {
		s.scaled = image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	}
	if !b.Empty() {
		draw.ApproxBiLinear.Scale(s.scaled, s.scaled.Bounds(), surface, b, draw.Src, nil)
	}
	return s.scaled
}

func (p *Pipeline) onData(s *session, chunk []byte) {
	if s != p.sess || len(chunk) == 0 {
		return
	}
	s.chunks = append(s.chunks, chunk)
}

func (p *Pipeline) onDataEnd(s *session) {
	if s != p.sess {
		return
	}
	s.drained = true
	p.maybeFinalize(s)
}

func (p *Pipeline) onStop(s *session, err error) {
	if s != p.sess {
		return
	}
	s.stopped = true
	s.stopErr = err
	if s.status == Recording {
		if err == nil {
			err = errors.New("recorder stopped before the clip boundary")
		}
		p.fail(s, err)
		return
	}
	p.maybeFinalize(s)
}

func (p *Pipeline) maybeFinalize(s *session) {
	if s.status != Finalizing || !s.stopped || !s.drained {
		return
	}
	if s.stopErr != nil {
		p.fail(s, fmt.Errorf("recorder: %w", s.stopErr))
		return
	}
	p.finalize(s)
}

func (p *Pipeline) finalize(s *session) {
	blob := bytes.Join(s.chunks, nil)
	s.chunks = nil
	name := Filename(s.clip.Title, s.format)

	path, err := p.d.Saver.Save(name, blob)
	p.sess = nil
	if cur, ok := p.d.Player.Clip(); ok && cur.ID == s.clip.ID && cur.StartSeconds == s.clip.StartSeconds {
		p.d.Player.SeekTo(s.clip.StartSeconds)
	}

	out := Output{
		SessionID: s.id,
		ClipID:    s.clip.ID,
		Path:      path,
		Size:      len(blob),
		Frames:    s.nextFrame,
		Format:    s.format,
	}
	if err != nil {
		err = fmt.Errorf("save %s: %w", name, err)
		p.d.Log.Error().Err(err).Str("session", s.id).Msg("export failed")
	} else {
		p.d.Log.Info().
			Str("session", s.id).
			Str("path", path).
			Str("size", humanize.Bytes(uint64(len(blob)))).
			Int("frames", s.nextFrame).
			Msg("export saved")
	}
	if p.opts.OnDone != nil {
		p.opts.OnDone(out, err)
	}
}

// fail aborts a running export and reports it through OnDone.
func (p *Pipeline) fail(s *session, reason error) {
	if !p.abort(s, reason) {
		return
	}
	if p.opts.OnDone != nil {
		p.opts.OnDone(Output{SessionID: s.id, ClipID: s.clip.ID, Format: s.format}, fmt.Errorf("%w: %w", ErrAborted, reason))
	}
}

// abort discards the session. Partial output is never saved.
func (p *Pipeline) abort(s *session, reason error) bool {
	if s != p.sess {
		return false
	}
	s.status = Aborted
	s.chunks = nil
	p.sess = nil
	if s.rec != nil {
		s.rec.Stop()
	}
	p.d.Player.Pause()
	p.d.Log.Warn().Err(reason).Str("session", s.id).Msg("export aborted")
	return true
}
