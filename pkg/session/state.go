package session

import "github.com/giongto35/cloud-player/pkg/network"

// State of the playback session.
type State int

const (
	Idle State = iota
	Starting
	Active
	Ending
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Active:
		return "active"
	case Ending:
		return "ending"
	default:
		return "unknown"
	}
}

// Controls tell which user actions are allowed right now.
type Controls struct {
	CanStart bool
	CanStop  bool
}

// Observer is the user interface of the coordinator.
// Its functions are called from the coordinator loop and should not block.
type Observer interface {
	Status(text string)
	Controls(c Controls)
}

type nopObserver struct{}

func (nopObserver) Status(string)     {}
func (nopObserver) Controls(Controls) {}

// Snapshot is a copy of the coordinator state.
type Snapshot struct {
	State     State
	SessionId string
	LinkOpen  bool
	// Attempt is the number of reconnects since the last open link.
	Attempt int
	// Negotiation is the id of the current peer negotiation.
	Negotiation network.Uid
}
