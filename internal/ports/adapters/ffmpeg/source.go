package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"os/exec"
	"strconv"

	"github.com/ixugo/goddd/pkg/queue"
	"github.com/rs/zerolog"
	"golang.org/x/image/draw"

	"github.com/forPelevin/clipcast/internal/ports"
)

type SourceConfig struct {
	Info VideoInfo
	// FPS is the decode rate; 0 uses the probed rate.
	FPS int
	// Realtime paces decoding at the native frame rate (-re) instead of as
	// fast as the consumer keeps up.
	Realtime bool
	// Post runs fn on the event loop.
	Post func(fn func())
}

// Source is a MediaSource backed by an ffmpeg decoder process writing raw
// RGBA frames to stdout. Methods must be called on the event loop; decoded
// frames are posted back onto it one at a time.
//
// Source is also a FrameScheduler: pending requests fire right after each
// presented frame.
type Source struct {
	a   *Adapter
	cfg SourceConfig
	fps float64
	log zerolog.Logger

	pos      float64
	paused   bool
	frame    *image.RGBA
	handlers []func(float64)
	pending  []*frameRequest

	// gen invalidates frames from decoders that were paused or seeked away.
	gen    int
	cancel context.CancelFunc
}

type frameRequest struct {
	fn       func()
	canceled bool
}

func (a *Adapter) NewSource(cfg SourceConfig) (*Source, error) {
	if cfg.Info.Width <= 0 || cfg.Info.Height <= 0 {
		return nil, fmt.Errorf("source %s has no video size", cfg.Info.Path)
	}
	if cfg.Post == nil {
		return nil, errors.New("source needs an event loop")
	}
	fps := float64(cfg.FPS)
	if fps <= 0 {
		fps = math.Round(cfg.Info.FPS)
	}
	if fps <= 0 {
		fps = 30
	}
	return &Source{
		a:      a,
		cfg:    cfg,
		fps:    fps,
		log:    a.log.With().Str("role", "source").Str("path", cfg.Info.Path).Logger(),
		paused: true,
	}, nil
}

func (s *Source) Position() float64 { return s.pos }
func (s *Source) Paused() bool      { return s.paused }

func (s *Source) Size() (int, int) { return s.cfg.Info.Width, s.cfg.Info.Height }

func (s *Source) Frame() image.Image {
	if s.frame == nil {
		return nil
	}
	return s.frame
}

func (s *Source) OnTimeUpdate(fn func(pos float64)) { s.handlers = append(s.handlers, fn) }

func (s *Source) AudioTrack() (ports.AudioTrack, error) {
	if !s.cfg.Info.HasAudio {
		return ports.AudioTrack{}, ports.ErrNoAudioTrack
	}
	return ports.AudioTrack{Path: s.cfg.Info.Path, Stream: 0}, nil
}

func (s *Source) RequestFrame(fn func()) func() {
	r := &frameRequest{fn: fn}
	s.pending = append(s.pending, r)
	return func() { r.canceled = true }
}

func (s *Source) Play(ctx context.Context) error {
	if !s.paused {
		return nil
	}
	if s.cfg.Info.Duration > 0 && s.pos >= s.cfg.Info.Duration {
		return fmt.Errorf("position %.3fs is past the end of %s", s.pos, s.cfg.Info.Path)
	}
	s.stopDecoder()
	dctx, cancel := context.WithCancel(ctx)
	if err := s.startDecoder(dctx, s.gen, s.pos, s.cfg.Realtime, 0); err != nil {
		cancel()
		return err
	}
	s.cancel = cancel
	s.paused = false
	return nil
}

func (s *Source) Pause() {
	s.stopDecoder()
	s.paused = true
}

// Seek repositions the playhead. While paused, the frame at the new position
// is decoded and presented so the overlay can be redrawn over it.
func (s *Source) Seek(sec float64) {
	sec = max(0, sec)
	wasPlaying := !s.paused
	s.stopDecoder()
	s.pos = sec
	dctx, cancel := context.WithCancel(context.Background())
	limit := 1
	if wasPlaying {
		limit = 0
	}
	if err := s.startDecoder(dctx, s.gen, sec, s.cfg.Realtime && wasPlaying, limit); err != nil {
		cancel()
		s.paused = true
		s.log.Warn().Err(err).Float64("pos", sec).Msg("seek failed")
		return
	}
	s.cancel = cancel
}

// Close stops any running decoder.
func (s *Source) Close() {
	s.stopDecoder()
	s.paused = true
}

func (s *Source) stopDecoder() {
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Source) startDecoder(ctx context.Context, gen int, from float64, realtime bool, limit int) error {
	args := decodeArgs(s.cfg.Info.Path, from, s.fps, realtime, limit)
	cmd := exec.CommandContext(ctx, s.a.ffmpeg, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}
	s.log.Debug().Strs("args", args).Int("gen", gen).Msg("decoder started")

	tail := queue.NewCirQueue[string](stderrLines)
	done := make(chan struct{})
	go func() {
		defer close(done)
		pumpStderr(stderr, tail, s.log)
	}()
	go func() {
		n, rerr := s.readFrames(ctx, stdout, gen, from)
		<-done
		werr := cmd.Wait()
		if ctx.Err() != nil {
			return
		}
		if rerr == nil {
			rerr = werr
		}
		if rerr != nil {
			rerr = withTail(rerr, tail)
		}
		s.cfg.Post(func() { s.ended(gen, n, rerr) })
	}()
	return nil
}

// readFrames presents each decoded frame on the event loop and waits for it
// to be consumed before reading the next one.
func (s *Source) readFrames(ctx context.Context, r io.Reader, gen int, from float64) (int, error) {
	w, h := s.cfg.Info.Width, s.cfg.Info.Height
	br := bufio.NewReaderSize(r, w*h*4)
	for k := 0; ; k++ {
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		if _, err := io.ReadFull(br, img.Pix); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return k, nil
			}
			return k, fmt.Errorf("read frame %d: %w", k, err)
		}
		pos := from + float64(k)/s.fps
		presented := make(chan struct{})
		s.cfg.Post(func() {
			defer close(presented)
			s.present(gen, img, pos)
		})
		select {
		case <-presented:
		case <-ctx.Done():
			return k, nil
		}
	}
}

func (s *Source) present(gen int, img *image.RGBA, pos float64) {
	if gen != s.gen {
		return
	}
	if s.frame == nil || s.frame.Bounds() != img.Bounds() {
		s.frame = img
	} else {
		draw.Draw(s.frame, s.frame.Bounds(), img, image.Point{}, draw.Src)
	}
	if !s.paused {
		s.pos = pos
	}

	batch := s.pending
	s.pending = nil
	for _, r := range batch {
		if !r.canceled {
			r.fn()
		}
	}
	// A frame request callback may pause or seek.
	if gen != s.gen {
		return
	}
	for _, fn := range s.handlers {
		fn(s.pos)
		if gen != s.gen {
			return
		}
	}
}

// ended handles the decoder exiting on its own: end of media, a still frame
// that was delivered, or a failure.
func (s *Source) ended(gen, frames int, err error) {
	if gen != s.gen {
		return
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if err != nil {
		s.log.Warn().Err(err).Int("frames", frames).Msg("decoder failed")
	}
	if s.paused {
		return
	}
	s.paused = true
	s.log.Info().Float64("pos", s.pos).Msg("end of media")
	// Duration-bounded consumers still need to observe the end position.
	if s.cfg.Info.Duration > 0 && s.pos < s.cfg.Info.Duration {
		s.pos = s.cfg.Info.Duration
	}
	for _, fn := range s.handlers {
		fn(s.pos)
	}
}

func decodeArgs(path string, from, fps float64, realtime bool, limit int) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-ss", fmtSeconds(from),
	}
	if realtime {
		args = append(args, "-re")
	}
	args = append(args,
		"-i", path,
		"-an",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-r", strconv.FormatFloat(fps, 'f', -1, 64),
	)
	if limit > 0 {
		args = append(args, "-frames:v", strconv.Itoa(limit))
	}
	return append(args, "pipe:1")
}

var (
	_ ports.MediaSource    = (*Source)(nil)
	_ ports.FrameScheduler = (*Source)(nil)
)
