package media

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/giongto35/cloud-player/pkg/os"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/h264writer"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
)

// Writer saves RTP packets of a single track.
type Writer interface {
	WriteRTP(packet *rtp.Packet) error
	Close() error
}

var reUnsafe = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)

// NewWriter makes a file writer for the track codec in the dir folder.
// It returns nil writer for codecs that can't be saved.
func NewWriter(dir string, t Track) (Writer, string, error) {
	codec := t.Codec()
	mime := strings.ToLower(codec.MimeType)
	var ext string
	switch mime {
	case strings.ToLower(webrtc.MimeTypeVP8), strings.ToLower(webrtc.MimeTypeVP9), strings.ToLower(webrtc.MimeTypeAV1):
		ext = "ivf"
	case strings.ToLower(webrtc.MimeTypeOpus):
		ext = "ogg"
	case strings.ToLower(webrtc.MimeTypeH264):
		ext = "h264"
	default:
		return nil, "", nil
	}

	if err := os.CheckCreateDir(dir); err != nil {
		return nil, "", err
	}
	name := fmt.Sprintf("%s_%s.%s", safe(t.StreamID()), safe(t.ID()), ext)
	path := filepath.Join(dir, name)

	var w Writer
	var err error
	switch ext {
	case "ivf":
		w, err = ivfwriter.New(path, ivfwriter.WithCodec(codec.MimeType))
	case "ogg":
		channels := codec.Channels
		if channels == 0 {
			channels = 2
		}
		w, err = oggwriter.New(path, codec.ClockRate, channels)
	case "h264":
		w, err = h264writer.New(path)
	}
	return w, path, err
}

func safe(name string) string {
	name = reUnsafe.ReplaceAllString(name, "_")
	if name == "" {
		return "_"
	}
	return name
}
