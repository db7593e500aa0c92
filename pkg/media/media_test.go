package media

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/giongto35/cloud-player/pkg/config"
	"github.com/giongto35/cloud-player/pkg/logger"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

type fakeTrack struct {
	id, stream string
	kind       webrtc.RTPCodecType
	codec      webrtc.RTPCodecParameters
	packets    []*rtp.Packet
	read       int
}

func (f *fakeTrack) ID() string                       { return f.id }
func (f *fakeTrack) StreamID() string                 { return f.stream }
func (f *fakeTrack) Kind() webrtc.RTPCodecType        { return f.kind }
func (f *fakeTrack) Codec() webrtc.RTPCodecParameters { return f.codec }
func (f *fakeTrack) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	if f.read >= len(f.packets) {
		return nil, nil, io.EOF
	}
	p := f.packets[f.read]
	f.read++
	return p, nil, nil
}

var _ Track = (*webrtc.TrackRemote)(nil)

func opusTrack(id, stream string, n int) *fakeTrack {
	t := &fakeTrack{id: id, stream: stream, kind: webrtc.RTPCodecTypeAudio,
		codec: webrtc.RTPCodecParameters{RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}}}
	for i := 0; i < n; i++ {
		t.packets = append(t.packets, &rtp.Packet{
			Header:  rtp.Header{Version: 2, SequenceNumber: uint16(i), Timestamp: uint32(i * 960)},
			Payload: []byte{0xfc, 0xff, 0xfe},
		})
	}
	return t
}

func videoTrack(id, stream, mime string) *fakeTrack {
	return &fakeTrack{id: id, stream: stream, kind: webrtc.RTPCodecTypeVideo,
		codec: webrtc.RTPCodecParameters{RTPCodecCapability: webrtc.RTPCodecCapability{MimeType: mime, ClockRate: 90000}}}
}

func TestStream(t *testing.T) {
	s := NewStream("s1")
	if !s.AddTrack(opusTrack("a", "s1", 0)) {
		t.Errorf("a track of the stream wasn't added")
	}
	if s.AddTrack(opusTrack("b", "s2", 0)) {
		t.Errorf("a track of another stream was added")
	}
	if s.AddTrack(nil) {
		t.Errorf("nil track was added")
	}
	s.Close()
	s.Close()
	if s.AddTrack(opusTrack("c", "s1", 0)) {
		t.Errorf("a track was added to the closed stream")
	}
	n := 0
	for range s.Tracks() {
		n++
	}
	if n != 1 {
		t.Errorf("got %v tracks, want 1", n)
	}
}

func TestStreamFull(t *testing.T) {
	s := NewStream("s")
	for i := 0; i < maxTracks; i++ {
		if !s.AddTrack(opusTrack("a", "s", 0)) {
			t.Fatalf("track %v wasn't added", i)
		}
	}
	if s.AddTrack(opusTrack("a", "s", 0)) {
		t.Errorf("track over the limit was added")
	}
}

func TestPlayerRecording(t *testing.T) {
	dir := t.TempDir()
	p := NewPlayer(config.Recording{Enabled: true, Folder: dir}, logger.Nop())
	p.Prepare(false)

	s := NewStream("stream 1")
	p.Attach(s)
	s.AddTrack(opusTrack("audio/1", "stream 1", 10))
	s.AddTrack(videoTrack("video", "stream 1", webrtc.MimeTypeVP8))

	if err := p.Close(); err != nil {
		t.Fatalf("close error: %v", err)
	}

	files := p.Files()
	if len(files) != 1 {
		t.Fatalf("want only the audio file, got %v", files)
	}
	want := filepath.Join(dir, "stream_1_audio_1.ogg")
	if files[0] != want {
		t.Errorf("file %v, want %v", files[0], want)
	}
	info, err := os.Stat(want)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() == 0 {
		t.Errorf("empty recording")
	}
}

func TestPlayerNoRecording(t *testing.T) {
	dir := t.TempDir()
	p := NewPlayer(config.Recording{Folder: dir}, logger.Nop())
	s := NewStream("s")
	p.Attach(s)
	track := opusTrack("a", "s", 5)
	s.AddTrack(track)
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if track.read != 5 {
		t.Errorf("track wasn't drained, read %v", track.read)
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Errorf("unexpected files %v", entries)
	}
}

func TestPlayerReattach(t *testing.T) {
	p := NewPlayer(config.Recording{}, logger.Nop())
	first, second := NewStream("1"), NewStream("2")
	p.Attach(first)
	p.Attach(second)
	if first.AddTrack(opusTrack("a", "1", 0)) {
		t.Errorf("the replaced stream should be closed")
	}
	if !second.AddTrack(opusTrack("a", "2", 0)) {
		t.Errorf("the attached stream should accept tracks")
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNewWriter(t *testing.T) {
	tests := []struct {
		name string
		mime string
		ext  string
	}{
		{name: "vp8", mime: webrtc.MimeTypeVP8, ext: ".ivf"},
		{name: "h264", mime: webrtc.MimeTypeH264, ext: ".h264"},
		{name: "opus", mime: webrtc.MimeTypeOpus, ext: ".ogg"},
		{name: "unsupported", mime: webrtc.MimeTypePCMU},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			track := videoTrack("t", "s", tt.mime)
			if tt.mime == webrtc.MimeTypeOpus {
				track = opusTrack("t", "s", 0)
			}
			w, path, err := NewWriter(t.TempDir(), track)
			if err != nil {
				t.Fatal(err)
			}
			if tt.ext == "" {
				if w != nil {
					t.Errorf("writer for %v", tt.mime)
				}
				return
			}
			if w == nil {
				t.Fatalf("no writer for %v", tt.mime)
			}
			defer func() { _ = w.Close() }()
			if filepath.Ext(path) != tt.ext {
				t.Errorf("path %v, want %v extension", path, tt.ext)
			}
		})
	}
}
