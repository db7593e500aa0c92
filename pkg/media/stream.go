// Package media receives the remote media of a playback session.
package media

import (
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// Track is a remote media track, *webrtc.TrackRemote is one.
type Track interface {
	ID() string
	StreamID() string
	Kind() webrtc.RTPCodecType
	Codec() webrtc.RTPCodecParameters
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// Renderer plays a remote stream.
// Only one stream is attached at a time.
type Renderer interface {
	Attach(stream *Stream)
	Detach()
}

const maxTracks = 8

// Stream groups the tracks of one remote media stream.
type Stream struct {
	id     string
	mu     sync.Mutex
	tracks chan Track
	closed bool
}

func NewStream(id string) *Stream {
	return &Stream{id: id, tracks: make(chan Track, maxTracks)}
}

func (s *Stream) ID() string { return s.id }

// AddTrack adds a track of the same stream.
// It returns false if the stream is closed, full or the track is from another stream.
func (s *Stream) AddTrack(t Track) bool {
	if t == nil || t.StreamID() != s.id {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.tracks <- t:
		return true
	default:
		return false
	}
}

// Tracks returns all the tracks of the stream, the channel is closed
// with the stream.
func (s *Stream) Tracks() <-chan Track { return s.tracks }

func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.tracks)
}
