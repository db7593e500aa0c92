package session

import (
	"github.com/giongto35/cloud-player/pkg/api"
	"github.com/giongto35/cloud-player/pkg/media"
	"github.com/pion/webrtc/v4"
)

// Events of the coordinator loop.
// Link events carry the generation of the link that produced them,
// negotiation events the generation of their peer connection, so
// anything from a replaced link or connection is dropped.
type (
	event any

	linkOpened  struct{ gen uint64 }
	linkMessage struct {
		gen uint64
		msg api.Message
	}
	linkError struct {
		gen uint64
		err error
	}
	linkClosed struct {
		gen uint64
		err error
	}
	reconnectDue struct{ gen uint64 }

	negotiationNeeded struct{ gen uint64 }
	localCandidate    struct {
		gen       uint64
		candidate *webrtc.ICECandidate
	}
	remoteTrack struct {
		gen   uint64
		track media.Track
	}

	startRequest struct {
		videoUrl  string
		wantVideo bool
		reply     chan error
	}
	stopRequest     struct{ reply chan error }
	snapshotRequest struct{ reply chan Snapshot }
)
