package capture

import (
	"errors"
	"strings"

	"github.com/forPelevin/clipcast/internal/ports"
)

const (
	DefaultFPS     = 30
	DefaultBitrate = 2_500_000
)

// DefaultFormats is ordered by preference: higher quality first, the
// baseline codec last.
var DefaultFormats = []ports.Format{
	{MIME: "video/webm;codecs=vp9,opus", Container: "webm", Ext: "webm", VideoCodec: "libvpx-vp9", AudioCodec: "libopus"},
	{MIME: "video/webm;codecs=vp8,vorbis", Container: "webm", Ext: "webm", VideoCodec: "libvpx", AudioCodec: "libvorbis"},
	{MIME: "video/mp4;codecs=avc1,mp4a", Container: "mp4", Ext: "mp4", VideoCodec: "libx264", AudioCodec: "aac"},
}

var ErrNoFormat = errors.New("no supported output format")

// PickFormat returns the first format the recorder supports.
func PickFormat(rec ports.Recorder, prefs []ports.Format) (ports.Format, error) {
	if len(prefs) == 0 {
		prefs = DefaultFormats
	}
	for _, f := range prefs {
		if rec.Supports(f) {
			return f, nil
		}
	}
	return ports.Format{}, ErrNoFormat
}

// Filename derives the download name: every character outside ASCII
// letters and digits becomes an underscore.
func Filename(title string, f ports.Format) string {
	var b strings.Builder
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	name := b.String()
	if name == "" {
		name = "clip"
	}
	ext := f.Ext
	if ext == "" {
		ext = f.Container
	}
	return name + "." + ext
}
