package webrtc

import (
	"sync/atomic"

	"github.com/pion/webrtc/v4"
)

// Peer is a pion peer connection that accepts a remote offer in any
// signaling state.
//
// Browsers roll a pending local offer back when a remote offer comes in,
// pion can't roll back a local description. So the pending offer is dropped
// together with its peer connection: a fresh one with the same settings and
// callbacks takes its place and gets the remote offer. Callbacks of a
// replaced connection are never called.
//
// Not safe for concurrent use, except for the callbacks.
type Peer struct {
	*webrtc.PeerConnection

	renew func() (*webrtc.PeerConnection, error)
	gen   atomic.Uint64

	onNegotiationNeeded func()
	onICECandidate      func(*webrtc.ICECandidate)
	onTrack             func(*webrtc.TrackRemote, *webrtc.RTPReceiver)
	onConnectionState   func(webrtc.PeerConnectionState)
}

func NewPeer(pc *webrtc.PeerConnection, renew func() (*webrtc.PeerConnection, error)) *Peer {
	return &Peer{PeerConnection: pc, renew: renew}
}

func (p *Peer) SetRemoteDescription(desc webrtc.SessionDescription) error {
	if desc.Type == webrtc.SDPTypeOffer && p.SignalingState() == webrtc.SignalingStateHaveLocalOffer && p.renew != nil {
		if err := p.replace(); err != nil {
			return err
		}
	}
	return p.PeerConnection.SetRemoteDescription(desc)
}

// Replaced tells how many times the peer connection was swapped.
func (p *Peer) Replaced() uint64 { return p.gen.Load() }

func (p *Peer) replace() error {
	pc, err := p.renew()
	if err != nil {
		return err
	}
	old := p.PeerConnection
	p.gen.Add(1)
	p.PeerConnection = pc
	p.bind()
	_ = old.Close()
	return nil
}

func (p *Peer) OnNegotiationNeeded(fn func()) {
	p.onNegotiationNeeded = fn
	p.bindNegotiationNeeded()
}

func (p *Peer) OnICECandidate(fn func(*webrtc.ICECandidate)) {
	p.onICECandidate = fn
	p.bindICECandidate()
}

func (p *Peer) OnTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	p.onTrack = fn
	p.bindTrack()
}

func (p *Peer) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	p.onConnectionState = fn
	p.bindConnectionState()
}

func (p *Peer) bind() {
	p.bindNegotiationNeeded()
	p.bindICECandidate()
	p.bindTrack()
	p.bindConnectionState()
}

func (p *Peer) bindNegotiationNeeded() {
	if fn, gen := p.onNegotiationNeeded, p.gen.Load(); fn != nil {
		p.PeerConnection.OnNegotiationNeeded(func() {
			if p.current(gen) {
				fn()
			}
		})
	}
}

func (p *Peer) bindICECandidate() {
	if fn, gen := p.onICECandidate, p.gen.Load(); fn != nil {
		p.PeerConnection.OnICECandidate(func(c *webrtc.ICECandidate) {
			if p.current(gen) {
				fn(c)
			}
		})
	}
}

func (p *Peer) bindTrack() {
	if fn, gen := p.onTrack, p.gen.Load(); fn != nil {
		p.PeerConnection.OnTrack(func(t *webrtc.TrackRemote, r *webrtc.RTPReceiver) {
			if p.current(gen) {
				fn(t, r)
			}
		})
	}
}

func (p *Peer) bindConnectionState() {
	if fn, gen := p.onConnectionState, p.gen.Load(); fn != nil {
		p.PeerConnection.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
			if p.current(gen) {
				fn(s)
			}
		})
	}
}

func (p *Peer) current(gen uint64) bool { return p.gen.Load() == gen }
