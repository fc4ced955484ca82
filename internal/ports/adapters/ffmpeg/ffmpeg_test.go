package ffmpeg

import (
	"bytes"
	"errors"
	"image"
	"slices"
	"strings"
	"testing"

	"github.com/ixugo/goddd/pkg/queue"
	"github.com/rs/zerolog"

	"github.com/forPelevin/clipcast/internal/ports"
)

func TestParseProbe(t *testing.T) {
	out := []byte(`{
  "streams": [
    {"codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080, "r_frame_rate": "30000/1001"},
    {"codec_type": "audio", "codec_name": "aac"},
    {"codec_type": "video", "codec_name": "mjpeg", "width": 320, "height": 240, "r_frame_rate": "90000/1"}
  ],
  "format": {"duration": "61.250000"}
}`)
	info, err := parseProbe(out)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if info.Width != 1920 || info.Height != 1080 || info.VideoCodec != "h264" {
		t.Fatalf("video = %+v", info)
	}
	if !info.HasAudio || info.AudioCodec != "aac" {
		t.Fatalf("audio = %+v", info)
	}
	if info.Duration != 61.25 {
		t.Fatalf("duration = %v", info.Duration)
	}
	if info.FPS < 29.97 || info.FPS > 29.98 {
		t.Fatalf("fps = %v", info.FPS)
	}
}

func TestParseProbe_NoVideo(t *testing.T) {
	_, err := parseProbe([]byte(`{"streams":[{"codec_type":"audio","codec_name":"mp3"}],"format":{"duration":"3"}}`))
	if err == nil {
		t.Fatalf("expected error for audio-only input")
	}
}

func TestParseFrameRate(t *testing.T) {
	tests := map[string]float64{
		"30/1": 30,
		"25":   25,
		"0/0":  0,
		"x/1":  0,
		"60/2": 30,
		"":     0,
	}
	for in, want := range tests {
		if got := parseFrameRate(in); got != want {
			t.Fatalf("parseFrameRate(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseEncoders(t *testing.T) {
	out := []byte(`Encoders:
 V..... = Video
 A..... = Audio
 ------
 V....D libx264              libx264 H.264 / AVC / MPEG-4 AVC (codec h264)
 V....D libvpx-vp9           libvpx VP9 (codec vp9)
 A....D aac                  AAC (Advanced Audio Coding)
 A....D libopus              libopus Opus (codec opus)
`)
	enc := parseEncoders(out)
	for _, name := range []string{"libx264", "libvpx-vp9", "aac", "libopus"} {
		if !enc[name] {
			t.Fatalf("missing encoder %q in %v", name, enc)
		}
	}
	if enc["Video"] || enc["="] || enc["libvpx"] {
		t.Fatalf("legend leaked into encoder set: %v", enc)
	}
}

func TestSupports_UsesCachedEncoders(t *testing.T) {
	a := New("/nonexistent/ffmpeg", "", zerolog.Nop())
	a.encoders = map[string]bool{"libvpx": true, "libvorbis": true, "libx264": true}
	r := a.Recorder()

	tests := []struct {
		f    ports.Format
		want bool
	}{
		{ports.Format{VideoCodec: "libvpx-vp9", AudioCodec: "libopus"}, false},
		{ports.Format{VideoCodec: "libvpx", AudioCodec: "libvorbis"}, true},
		{ports.Format{VideoCodec: "libx264", AudioCodec: "aac"}, false},
		{ports.Format{VideoCodec: "libx264"}, true},
	}
	for _, tt := range tests {
		if got := r.Supports(tt.f); got != tt.want {
			t.Fatalf("Supports(%+v) = %v, want %v", tt.f, got, tt.want)
		}
	}
}

func TestRecordArgs_WebMWithAudio(t *testing.T) {
	args := recordArgs(ports.RecordSpec{
		Width:      1280,
		Height:     720,
		FPS:        30,
		Bitrate:    2_500_000,
		Format:     ports.Format{Container: "webm", VideoCodec: "libvpx-vp9", AudioCodec: "libopus"},
		Audio:      &ports.AudioTrack{Path: "/in/talk.mp4", Stream: 0},
		AudioStart: 10,
		Duration:   30,
	})
	joined := strings.Join(args, " ")
	for _, want := range []string{
		"-f rawvideo -pix_fmt rgba -s 1280x720 -r 30 -i pipe:0",
		"-ss 10.000 -t 30.000 -i /in/talk.mp4",
		"-map 0:v:0 -map 1:a:0",
		"-c:v libvpx-vp9",
		"-b:v 2500000",
		"-c:a libopus",
		"-f webm pipe:1",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("args missing %q:\n%s", want, joined)
		}
	}
	if slices.Contains(args, "-an") {
		t.Fatalf("audio disabled despite audio track: %s", joined)
	}
}

func TestRecordArgs_MP4VideoOnly(t *testing.T) {
	args := recordArgs(ports.RecordSpec{
		Width:  640,
		Height: 360,
		Format: ports.Format{Container: "mp4", VideoCodec: "libx264", AudioCodec: "aac"},
	})
	joined := strings.Join(args, " ")
	for _, want := range []string{"-r 30", "-an", "-preset veryfast", "-movflags frag_keyframe+empty_moov"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("args missing %q:\n%s", want, joined)
		}
	}
	if strings.Contains(joined, "-map") || strings.Contains(joined, "-c:a") {
		t.Fatalf("unexpected audio args: %s", joined)
	}
	if args[len(args)-1] != "pipe:1" {
		t.Fatalf("output must be stdout: %s", joined)
	}
}

func TestDecodeArgs(t *testing.T) {
	got := strings.Join(decodeArgs("/in.mp4", 12.5, 30, true, 0), " ")
	want := "-hide_banner -loglevel error -ss 12.500 -re -i /in.mp4 -an -f rawvideo -pix_fmt rgba -r 30 pipe:1"
	if got != want {
		t.Fatalf("got  %s\nwant %s", got, want)
	}
	still := decodeArgs("/in.mp4", 3, 30, false, 1)
	if !slices.Contains(still, "-frames:v") || slices.Contains(still, "-re") {
		t.Fatalf("still frame args: %v", still)
	}
}

func TestPumpChunks(t *testing.T) {
	data := bytes.Repeat([]byte("x"), chunkSize*2+10)
	var got []byte
	chunks, ends := 0, 0
	err := pumpChunks(bytes.NewReader(data), func(b []byte) {
		chunks++
		got = append(got, b...)
	}, func() { ends++ })
	if err != nil {
		t.Fatalf("pump: %v", err)
	}
	if !bytes.Equal(got, data) || ends != 1 || chunks < 3 {
		t.Fatalf("chunks=%d ends=%d bytes=%d", chunks, ends, len(got))
	}
}

func TestWithTail(t *testing.T) {
	base := errors.New("exit status 1")
	tail := queue.NewCirQueue[string](2)
	if err := withTail(base, tail); err != base {
		t.Fatalf("empty tail changed error: %v", err)
	}
	tail.Push("first")
	tail.Push("Unknown encoder 'libfoo'")
	err := withTail(base, tail)
	if !errors.Is(err, base) || !strings.Contains(err.Error(), "Unknown encoder") {
		t.Fatalf("err = %v", err)
	}
}

func TestSource_LoopState(t *testing.T) {
	a := New("/nonexistent/ffmpeg", "", zerolog.Nop())
	if _, err := a.NewSource(SourceConfig{Info: VideoInfo{Path: "x.mp4"}, Post: func(func()) {}}); err == nil {
		t.Fatalf("expected error for missing size")
	}
	src, err := a.NewSource(SourceConfig{
		Info: VideoInfo{Path: "x.mp4", Width: 4, Height: 2, FPS: 29.97},
		Post: func(fn func()) { fn() },
	})
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	if src.fps != 30 {
		t.Fatalf("fps = %v", src.fps)
	}
	if src.Frame() != nil {
		t.Fatalf("frame before first decode must be nil")
	}
	if _, err := src.AudioTrack(); !errors.Is(err, ports.ErrNoAudioTrack) {
		t.Fatalf("audio err = %v", err)
	}
	if w, h := src.Size(); w != 4 || h != 2 {
		t.Fatalf("size = %dx%d", w, h)
	}
}

func TestSource_PresentFiresRequestsThenHandlers(t *testing.T) {
	a := New("", "", zerolog.Nop())
	src, err := a.NewSource(SourceConfig{
		Info: VideoInfo{Path: "x.mp4", Width: 2, Height: 2},
		Post: func(fn func()) { fn() },
	})
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	src.paused = false

	var order []string
	src.RequestFrame(func() { order = append(order, "frame") })
	cancel := src.RequestFrame(func() { order = append(order, "canceled") })
	cancel()
	src.OnTimeUpdate(func(pos float64) { order = append(order, "time") })

	img := newRGBA(2, 2)
	src.present(src.gen, img, 1.5)
	if got := strings.Join(order, ","); got != "frame,time" {
		t.Fatalf("order = %s", got)
	}
	if src.Position() != 1.5 || src.Frame() == nil {
		t.Fatalf("pos=%v frame=%v", src.Position(), src.Frame())
	}

	// Frames from a superseded decoder are dropped.
	stale := src.gen
	src.Pause()
	src.present(stale, img, 9)
	if src.Position() != 1.5 {
		t.Fatalf("stale frame moved the playhead to %v", src.Position())
	}
}

func newRGBA(w, h int) *image.RGBA { return image.NewRGBA(image.Rect(0, 0, w, h)) }
