package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"
	"sync"

	"github.com/ixugo/goddd/pkg/queue"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/forPelevin/clipcast/internal/ports"
)

const (
	audioBitrate = "128k"
	chunkSize    = 64 << 10
)

// Recorder encodes raw RGBA frames written to an ffmpeg process, muxing in
// a window of the source audio, and streams the container bytes back.
type Recorder struct {
	a   *Adapter
	log zerolog.Logger
}

func (a *Adapter) Recorder() *Recorder {
	return &Recorder{a: a, log: a.log.With().Str("role", "recorder").Logger()}
}

// Supports reports whether the ffmpeg build has the encoders f needs.
func (r *Recorder) Supports(f ports.Format) bool {
	enc, err := r.a.Encoders(context.Background())
	if err != nil {
		r.log.Warn().Err(err).Msg("encoder query failed")
		return false
	}
	if !enc[f.VideoCodec] {
		return false
	}
	return f.AudioCodec == "" || enc[f.AudioCodec]
}

func (r *Recorder) Start(ctx context.Context, spec ports.RecordSpec) (ports.Recording, error) {
	if spec.Width <= 0 || spec.Height <= 0 {
		return nil, fmt.Errorf("invalid recording size %dx%d", spec.Width, spec.Height)
	}
	args := recordArgs(spec)
	r.log.Debug().Strs("args", args).Msg("starting encoder")

	cmd := exec.CommandContext(ctx, r.a.ffmpeg, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	rec := &recording{
		spec:  spec,
		stdin: stdin,
		tail:  queue.NewCirQueue[string](stderrLines),
	}

	var g errgroup.Group
	g.Go(func() error { return pumpChunks(stdout, spec.OnData, spec.OnDataEnd) })
	g.Go(func() error {
		pumpStderr(stderr, rec.tail, r.log)
		return nil
	})
	go func() {
		perr := g.Wait()
		err := cmd.Wait()
		if err == nil {
			err = perr
		}
		if err != nil {
			err = withTail(fmt.Errorf("ffmpeg encoder: %w", err), rec.tail)
		}
		spec.OnStop(err)
	}()
	return rec, nil
}

// pumpChunks forwards encoder output in copied chunks and reports the end of
// the stream once stdout closes.
func pumpChunks(r io.Reader, onData func([]byte), onEnd func()) error {
	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			onData(append([]byte(nil), buf[:n]...))
		}
		if errors.Is(err, io.EOF) {
			onEnd()
			return nil
		}
		if err != nil {
			onEnd()
			return fmt.Errorf("read encoder output: %w", err)
		}
	}
}

type recording struct {
	spec ports.RecordSpec
	tail *queue.CirQueue[string]

	mu      sync.Mutex
	stdin   io.WriteCloser
	stopped bool
}

func (r *recording) WriteFrame(img *image.RGBA) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return errors.New("recording stopped")
	}
	b := img.Bounds()
	if b.Dx() != r.spec.Width || b.Dy() != r.spec.Height {
		return fmt.Errorf("frame size %dx%d, recording is %dx%d", b.Dx(), b.Dy(), r.spec.Width, r.spec.Height)
	}
	rowLen := b.Dx() * 4
	if img.Stride == rowLen {
		off := img.PixOffset(b.Min.X, b.Min.Y)
		_, err := r.stdin.Write(img.Pix[off : off+rowLen*b.Dy()])
		return err
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := img.PixOffset(b.Min.X, y)
		if _, err := r.stdin.Write(img.Pix[off : off+rowLen]); err != nil {
			return err
		}
	}
	return nil
}

// Stop closes the frame input; ffmpeg then flushes and exits, which
// delivers OnDataEnd and OnStop.
func (r *recording) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.stopped = true
	_ = r.stdin.Close()
}

func recordArgs(spec ports.RecordSpec) []string {
	fps := spec.FPS
	if fps <= 0 {
		fps = 30
	}
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", strconv.Itoa(spec.Width) + "x" + strconv.Itoa(spec.Height),
		"-r", strconv.Itoa(fps),
		"-i", "pipe:0",
	}
	if spec.Audio != nil {
		args = append(args,
			"-ss", fmtSeconds(spec.AudioStart),
			"-t", fmtSeconds(spec.Duration),
			"-i", spec.Audio.Path,
			"-map", "0:v:0",
			"-map", "1:a:"+strconv.Itoa(spec.Audio.Stream),
		)
	}

	f := spec.Format
	args = append(args, "-c:v", f.VideoCodec, "-pix_fmt", "yuv420p")
	if spec.Bitrate > 0 {
		args = append(args, "-b:v", strconv.Itoa(spec.Bitrate))
	}
	switch f.VideoCodec {
	case "libvpx", "libvpx-vp9":
		args = append(args, "-deadline", "realtime", "-cpu-used", "8")
	case "libx264":
		args = append(args, "-preset", "veryfast")
	}
	if spec.Audio != nil && f.AudioCodec != "" {
		args = append(args, "-c:a", f.AudioCodec, "-b:a", audioBitrate, "-shortest")
	} else {
		args = append(args, "-an")
	}

	container := f.Container
	if container == "" {
		container = "webm"
	}
	args = append(args, "-f", container)
	if container == "mp4" {
		// stdout is not seekable
		args = append(args, "-movflags", "frag_keyframe+empty_moov")
	}
	return append(args, "pipe:1")
}

var _ ports.Recorder = (*Recorder)(nil)
