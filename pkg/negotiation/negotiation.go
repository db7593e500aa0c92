// Package negotiation speaks the peer negotiation protocol of a playback
// session as the polite peer: remote offers are always accepted, local
// candidates are trickled, nothing is ever rolled back.
package negotiation

import (
	"fmt"
	"sync"

	"github.com/giongto35/cloud-player/pkg/api"
	"github.com/giongto35/cloud-player/pkg/logger"
	"github.com/giongto35/cloud-player/pkg/media"
	"github.com/giongto35/cloud-player/pkg/network"
	"github.com/pion/webrtc/v4"
)

// PeerConnection is the part of a WebRTC peer connection the negotiation needs.
type PeerConnection interface {
	SetRemoteDescription(webrtc.SessionDescription) error
	SetLocalDescription(webrtc.SessionDescription) error
	LocalDescription() *webrtc.SessionDescription
	CreateOffer(*webrtc.OfferOptions) (webrtc.SessionDescription, error)
	CreateAnswer(*webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	AddICECandidate(webrtc.ICECandidateInit) error
	OnNegotiationNeeded(func())
	OnICECandidate(func(*webrtc.ICECandidate))
	OnTrack(func(*webrtc.TrackRemote, *webrtc.RTPReceiver))
	OnConnectionStateChange(func(webrtc.PeerConnectionState))
	Close() error
}

// Events of the peer connection.
// They are called from the peer connection goroutines, so the owner
// should move them into its own queue and call the matching Handle
// function from there.
type Events struct {
	NegotiationNeeded func()
	LocalCandidate    func(*webrtc.ICECandidate)
	RemoteTrack       func(media.Track)
}

// Engine wraps a single peer connection of one session.
// Handle functions are not safe for concurrent use.
type Engine struct {
	id       network.Uid
	pc       PeerConnection
	send     func(api.Message) error
	renderer media.Renderer
	log      *logger.Logger

	stream   *media.Stream
	once     sync.Once
	closed   bool
	closeErr error
}

func New(pc PeerConnection, send func(api.Message) error, renderer media.Renderer, log *logger.Logger) *Engine {
	id := network.NewUid()
	return &Engine{
		id:       id,
		pc:       pc,
		send:     send,
		renderer: renderer,
		log:      log.Extend(log.With().Str(logger.ModuleField, "neg").Str("pc", id.Short())),
	}
}

func (e *Engine) Id() network.Uid { return e.id }

// Listen binds the peer connection callbacks.
func (e *Engine) Listen(ev Events) {
	e.pc.OnNegotiationNeeded(func() {
		if ev.NegotiationNeeded != nil {
			ev.NegotiationNeeded()
		}
	})
	e.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if ev.LocalCandidate != nil {
			ev.LocalCandidate(c)
		}
	})
	e.pc.OnTrack(func(t *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if t != nil && ev.RemoteTrack != nil {
			ev.RemoteTrack(t)
		}
	})
	e.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		e.log.Debug().Msgf("Peer connection is %v", s)
	})
}

// HandleRemoteDescription applies a remote description.
// A remote offer is always accepted and answered with exactly one message.
func (e *Engine) HandleRemoteDescription(desc webrtc.SessionDescription) error {
	if e.closed {
		return nil
	}
	e.log.Debug().Msgf("Remote %v", desc.Type)
	if err := e.pc.SetRemoteDescription(desc); err != nil {
		return e.fail("remote description", err)
	}
	if desc.Type != webrtc.SDPTypeOffer {
		return nil
	}
	answer, err := e.pc.CreateAnswer(nil)
	if err != nil {
		return e.fail("answer", err)
	}
	if err = e.pc.SetLocalDescription(answer); err != nil {
		return e.fail("local answer", err)
	}
	return e.emitLocal(answer)
}

// HandleRemoteCandidate adds a trickled remote candidate.
func (e *Engine) HandleRemoteCandidate(c webrtc.ICECandidateInit) error {
	if e.closed {
		return nil
	}
	if err := e.pc.AddICECandidate(c); err != nil {
		e.log.Warn().Err(err).Msgf("Couldn't add remote candidate %v", c.Candidate)
		return err
	}
	return nil
}

// HandleNegotiationNeeded makes a local offer and sends it.
// On failure nothing is sent.
func (e *Engine) HandleNegotiationNeeded() {
	if e.closed {
		return
	}
	offer, err := e.pc.CreateOffer(nil)
	if err != nil {
		_ = e.fail("offer", err)
		return
	}
	if err = e.pc.SetLocalDescription(offer); err != nil {
		_ = e.fail("local offer", err)
		return
	}
	_ = e.emitLocal(offer)
}

// HandleLocalCandidate sends a gathered local candidate.
// The nil candidate marks the end of gathering and isn't sent.
func (e *Engine) HandleLocalCandidate(c *webrtc.ICECandidate) {
	if e.closed {
		return
	}
	if c == nil {
		e.log.Debug().Msg("ICE gathering is complete")
		return
	}
	if err := e.send(api.NewIceCandidate(c.ToJSON())); err != nil {
		e.log.Warn().Err(err).Msg("Local candidate is dropped")
	}
}

// HandleRemoteTrack hands a remote track to the renderer.
// Only the first stream is played, its first track attaches it.
func (e *Engine) HandleRemoteTrack(t media.Track) {
	if e.closed || t == nil {
		return
	}
	log := e.log.Extend(e.log.With().Str("track", t.ID()).Str("stream", t.StreamID()))
	if e.stream == nil {
		e.stream = media.NewStream(t.StreamID())
		e.stream.AddTrack(t)
		if e.renderer != nil {
			e.renderer.Attach(e.stream)
		}
		log.Info().Msgf("New %v track, stream attached", t.Kind())
		return
	}
	if t.StreamID() != e.stream.ID() {
		log.Warn().Msgf("Only one stream is supported, %v track ignored", t.Kind())
		return
	}
	if !e.stream.AddTrack(t) {
		log.Warn().Msg("Track wasn't added")
		return
	}
	log.Info().Msgf("New %v track", t.Kind())
}

// Close detaches the media and closes the peer connection.
func (e *Engine) Close() error {
	e.once.Do(func() {
		e.closed = true
		if e.stream != nil {
			if e.renderer != nil {
				e.renderer.Detach()
			}
			e.stream.Close()
		}
		e.closeErr = e.pc.Close()
		e.log.Debug().Msg("Closed")
	})
	return e.closeErr
}

func (e *Engine) emitLocal(desc webrtc.SessionDescription) error {
	if ld := e.pc.LocalDescription(); ld != nil {
		desc = *ld
	}
	if err := e.send(api.NewSdpMessage(desc)); err != nil {
		e.log.Warn().Err(err).Msgf("Local %v is dropped", desc.Type)
		return err
	}
	return nil
}

func (e *Engine) fail(step string, err error) error {
	err = fmt.Errorf("%w: %s: %v", api.ErrNegotiation, step, err)
	e.log.Error().Err(err).Send()
	return err
}
