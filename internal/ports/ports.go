package ports

import (
	"context"
	"errors"
	"image"
)

var (
	// ErrPlaybackInterrupted reports a play request superseded by a newer
	// pause, seek or selection. Callers treat it as benign.
	ErrPlaybackInterrupted = errors.New("playback interrupted")
	// ErrNoAudioTrack reports a source without audio.
	ErrNoAudioTrack = errors.New("source has no audio track")
)

// MediaSource is the playable source video. All methods are called from the
// event loop; time-advance callbacks are delivered on it as well.
type MediaSource interface {
	Position() float64
	Seek(sec float64)
	Play(ctx context.Context) error
	Pause()
	Paused() bool
	// Size is the native frame size of the source.
	Size() (width, height int)
	// Frame is the most recently presented decoded frame, nil before the
	// first one.
	Frame() image.Image
	OnTimeUpdate(fn func(pos float64))
	AudioTrack() (AudioTrack, error)
}

type AudioTrack struct {
	Path   string
	Stream int
}

// FrameScheduler is the display-refresh primitive: fn runs once, on the
// event loop, at the next refresh. cancel drops a request that has not fired.
type FrameScheduler interface {
	RequestFrame(fn func()) (cancel func())
}

// Format is one output encoding the recorder may be asked for.
type Format struct {
	MIME       string
	Container  string
	Ext        string
	VideoCodec string
	AudioCodec string
}

type RecordSpec struct {
	Width   int
	Height  int
	FPS     int
	Bitrate int
	Format  Format

	// Audio is muxed from the source when set; AudioStart and Duration bound
	// the audio window in source time.
	Audio      *AudioTrack
	AudioStart float64
	Duration   float64

	// Callbacks may fire on any goroutine.
	OnData    func(chunk []byte)
	OnDataEnd func()
	OnStop    func(err error)
}

type Recorder interface {
	Supports(f Format) bool
	Start(ctx context.Context, spec RecordSpec) (Recording, error)
}

type Recording interface {
	WriteFrame(img *image.RGBA) error
	// Stop ends the recording. It is safe to call more than once; completion
	// is reported through OnStop and OnDataEnd.
	Stop()
}

type Saver interface {
	Save(name string, data []byte) (string, error)
}

type FrameGrabber interface {
	GrabFrame(ctx context.Context, path string, at float64) (image.Image, error)
}
