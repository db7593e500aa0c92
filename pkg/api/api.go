// Package api defines the control channel protocol between the player and
// the media server.
//
// Each message is a JSON object sent as a single websocket text frame and
// tagged with its type:
//
//	type - (required) one of the predefined message types;
//	   * - message fields, flat, next to the type tag.
//
// Session lifecycle messages (newSession, sessionConnected, endSession,
// sessionEnded) are only meaningful for the control channel itself, while
// negotiation messages (newSdp, iceCandidate) carry WebRTC offer/answer and
// trickled candidates in both directions.
//
// Example:
//
//	{"type":"sessionEnded","sessionId":"cfv68irdrc3ifu3jn6bg","reason":"EOF"}
package api

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/pion/webrtc/v4"
)

// Kind is the message type tag.
type Kind string

const (
	KindNewSession       Kind = "newSession"
	KindSessionConnected Kind = "sessionConnected"
	KindEndSession       Kind = "endSession"
	KindSessionEnded     Kind = "sessionEnded"
	KindNewSdp           Kind = "newSdp"
	KindIceCandidate     Kind = "iceCandidate"
)

func (k Kind) String() string { return string(k) }

// Message is any of the control channel messages.
type Message interface {
	Kind() Kind
}

// Envelope holds the type tag, it's embedded into every message.
type Envelope struct {
	T Kind `json:"type"`
}

func (e Envelope) Kind() Kind { return e.T }

type (
	// NewSession asks the server to start playback of a video.
	NewSession struct {
		Envelope
		VideoUrl  string `json:"videoUrl"`
		WantVideo bool   `json:"wantVideo"`
	}
	// SessionConnected is the server acknowledgement of a new session.
	SessionConnected struct {
		Envelope
		SessionId string `json:"sessionId"`
	}
	// EndSession asks the server to stop the current session.
	EndSession struct {
		Envelope
	}
	// SessionEnded tells that a session is over.
	// SessionId is set only when the server knows which session ended.
	SessionEnded struct {
		Envelope
		SessionId string `json:"sessionId,omitempty"`
		Reason    string `json:"reason"`
	}
	// NewSdp carries an offer or an answer.
	NewSdp struct {
		Envelope
		Sdp webrtc.SessionDescription `json:"sdp"`
	}
	// IceCandidate carries a single trickled candidate.
	IceCandidate struct {
		Envelope
		Candidate webrtc.ICECandidateInit `json:"candidate"`
	}
)

func NewSessionRequest(videoUrl string, wantVideo bool) NewSession {
	return NewSession{Envelope: Envelope{KindNewSession}, VideoUrl: videoUrl, WantVideo: wantVideo}
}

func EndSessionRequest() EndSession { return EndSession{Envelope{KindEndSession}} }

func NewSessionConnected(id string) SessionConnected {
	return SessionConnected{Envelope: Envelope{KindSessionConnected}, SessionId: id}
}

func NewSessionEnded(id string, reason string) SessionEnded {
	return SessionEnded{Envelope: Envelope{KindSessionEnded}, SessionId: id, Reason: reason}
}

func NewSdpMessage(sdp webrtc.SessionDescription) NewSdp {
	return NewSdp{Envelope: Envelope{KindNewSdp}, Sdp: sdp}
}

func NewIceCandidate(c webrtc.ICECandidateInit) IceCandidate {
	return IceCandidate{Envelope: Envelope{KindIceCandidate}, Candidate: c}
}

var (
	// ErrLinkNotOpen means a send attempt while the control channel is down.
	ErrLinkNotOpen = errors.New("link is not open")
	// ErrMalformed means an undecodable or wrong-shape message.
	ErrMalformed = errors.New("malformed")
	// ErrBinaryFrame means the server has sent a binary frame.
	ErrBinaryFrame = fmt.Errorf("%w: binary frame", ErrMalformed)
	// ErrStaleSession marks events for a session that was already superseded.
	ErrStaleSession = errors.New("stale session event")
	// ErrNegotiation means a local description couldn't be made.
	ErrNegotiation = errors.New("negotiation failure")
	// ErrLinkLost means the control channel closed unexpectedly.
	ErrLinkLost = errors.New("link lost")
	// ErrSessionBusy rejects a request that doesn't fit the current session state.
	ErrSessionBusy = errors.New("session is busy")
	// ErrNoSession rejects a stop without a session.
	ErrNoSession = errors.New("no session")
)

// Encode serializes a message and stamps its type tag.
func Encode(m Message) ([]byte, error) {
	switch msg := m.(type) {
	case NewSession:
		msg.T = KindNewSession
		return json.Marshal(msg)
	case SessionConnected:
		msg.T = KindSessionConnected
		return json.Marshal(msg)
	case EndSession:
		msg.T = KindEndSession
		return json.Marshal(msg)
	case SessionEnded:
		msg.T = KindSessionEnded
		return json.Marshal(msg)
	case NewSdp:
		msg.T = KindNewSdp
		return json.Marshal(msg)
	case IceCandidate:
		msg.T = KindIceCandidate
		return json.Marshal(msg)
	case nil:
		return nil, fmt.Errorf("%w: nil message", ErrMalformed)
	default:
		return nil, fmt.Errorf("%w: unsupported message %T", ErrMalformed, m)
	}
}

// Decode reads a message of any known type.
// All decoding problems are reported as ErrMalformed.
func Decode(data []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch env.T {
	case KindNewSession:
		m, err := unwrap[NewSession](data)
		if err == nil && m.VideoUrl == "" {
			err = missing("videoUrl")
		}
		return m, err
	case KindSessionConnected:
		m, err := unwrap[SessionConnected](data)
		if err == nil && m.SessionId == "" {
			err = missing("sessionId")
		}
		return m, err
	case KindEndSession:
		return unwrap[EndSession](data)
	case KindSessionEnded:
		return unwrap[SessionEnded](data)
	case KindNewSdp:
		m, err := unwrap[NewSdp](data)
		if err == nil && m.Sdp.Type == webrtc.SDPTypeUnknown {
			err = missing("sdp.type")
		}
		return m, err
	case KindIceCandidate:
		// an empty candidate is the end of remote candidates
		return unwrap[IceCandidate](data)
	case "":
		return nil, missing("type")
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformed, env.T)
	}
}

func unwrap[T Message](data []byte) (T, error) {
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return out, nil
}

func missing(field string) error { return fmt.Errorf("%w: no %s", ErrMalformed, field) }
