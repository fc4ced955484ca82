// Package portstest provides deterministic in-memory implementations of the
// ports for simulation-style tests. Nothing here starts goroutines; tests
// drive time explicitly.
package portstest

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/forPelevin/clipcast/internal/ports"
)

// Scheduler is a FrameScheduler fired by hand (or by Source.Advance).
type Scheduler struct {
	pending []*request
}

type request struct {
	fn       func()
	canceled bool
}

func (s *Scheduler) RequestFrame(fn func()) func() {
	r := &request{fn: fn}
	s.pending = append(s.pending, r)
	return func() { r.canceled = true }
}

// Fire runs the requests pending before the call and returns how many ran.
func (s *Scheduler) Fire() int {
	batch := s.pending
	s.pending = nil
	n := 0
	for _, r := range batch {
		if !r.canceled {
			r.fn()
			n++
		}
	}
	return n
}

func (s *Scheduler) Pending() int {
	n := 0
	for _, r := range s.pending {
		if !r.canceled {
			n++
		}
	}
	return n
}

// Source simulates a playable video. Advance moves the playhead in fixed
// steps, presenting a frame (firing Sched) and then emitting a time update
// for each step, like a decoder would.
type Source struct {
	Pos      float64
	IsPaused bool
	Img      image.Image
	PlayErr  error
	Audio    *ports.AudioTrack
	AudioErr error
	Sched    *Scheduler

	Seeks      []float64
	PlayCalls  int
	PauseCalls int

	handlers []func(float64)
}

func NewSource(w, h int) *Source {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{0x40, 0x40, 0x40, 0xff}), image.Point{}, draw.Src)
	return &Source{IsPaused: true, Img: img, Sched: &Scheduler{}}
}

func (s *Source) Position() float64 { return s.Pos }

func (s *Source) Seek(sec float64) {
	s.Pos = sec
	s.Seeks = append(s.Seeks, sec)
}

func (s *Source) Play(context.Context) error {
	s.PlayCalls++
	if s.PlayErr != nil {
		return s.PlayErr
	}
	s.IsPaused = false
	return nil
}

func (s *Source) Pause() {
	s.PauseCalls++
	s.IsPaused = true
}

func (s *Source) Paused() bool                  { return s.IsPaused }
func (s *Source) Size() (int, int)              { return s.Img.Bounds().Dx(), s.Img.Bounds().Dy() }
func (s *Source) Frame() image.Image            { return s.Img }
func (s *Source) OnTimeUpdate(fn func(float64)) { s.handlers = append(s.handlers, fn) }

func (s *Source) AudioTrack() (ports.AudioTrack, error) {
	if s.AudioErr != nil {
		return ports.AudioTrack{}, s.AudioErr
	}
	if s.Audio == nil {
		return ports.AudioTrack{}, ports.ErrNoAudioTrack
	}
	return *s.Audio, nil
}

// Advance plays forward to `to` in increments of step, stopping early when
// a handler pauses the source.
func (s *Source) Advance(to, step float64) {
	start := s.Pos
	if to <= start || step <= 0 {
		return
	}
	for k := 1; !s.IsPaused; k++ {
		p := start + float64(k)*step
		if p > to || to-p < 1e-9 {
			p = to
		}
		s.Pos = p
		s.Present()
		if p >= to {
			return
		}
	}
}

// Present fires pending frame requests, then the time update handlers.
func (s *Source) Present() {
	if s.Sched != nil {
		s.Sched.Fire()
	}
	for _, h := range s.handlers {
		h(s.Pos)
	}
}

// Recorder records RecordSpecs and hands out Recordings that emit a small
// chunk per frame.
type Recorder struct {
	Unsupported map[string]bool // keyed by MIME
	StartErr    error
	// StopFirst delivers OnStop before the final chunk, the reverse of the
	// default order.
	StopFirst bool

	Specs []ports.RecordSpec
	Last  *Recording
}

func (r *Recorder) Supports(f ports.Format) bool { return !r.Unsupported[f.MIME] }

func (r *Recorder) Start(_ context.Context, spec ports.RecordSpec) (ports.Recording, error) {
	if r.StartErr != nil {
		return nil, r.StartErr
	}
	r.Specs = append(r.Specs, spec)
	r.Last = &Recording{spec: spec, stopFirst: r.StopFirst}
	return r.Last, nil
}

type Recording struct {
	spec      ports.RecordSpec
	stopFirst bool

	Frames []image.Rectangle
	Stops  int
}

func (r *Recording) WriteFrame(img *image.RGBA) error {
	if r.Stops > 0 {
		return fmt.Errorf("write after stop")
	}
	r.Frames = append(r.Frames, img.Bounds())
	r.spec.OnData([]byte{'f'})
	return nil
}

func (r *Recording) Stop() {
	r.Stops++
	if r.Stops > 1 {
		return
	}
	if r.stopFirst {
		r.spec.OnStop(nil)
		r.spec.OnData([]byte("end"))
		r.spec.OnDataEnd()
		return
	}
	r.spec.OnData([]byte("end"))
	r.spec.OnDataEnd()
	r.spec.OnStop(nil)
}

// Saver keeps saved files in memory.
type Saver struct {
	mu    sync.Mutex
	Files map[string][]byte
	Err   error
}

func (s *Saver) Save(name string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return "", s.Err
	}
	if s.Files == nil {
		s.Files = map[string][]byte{}
	}
	s.Files[name] = append([]byte(nil), data...)
	return "mem://" + name, nil
}
