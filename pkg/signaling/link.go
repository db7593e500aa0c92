// Package signaling keeps a single control channel connection to the media
// server.
//
// A Link never reconnects by itself: it reports the close to its owner which
// decides what to do next, usually throwing the link away and making a new one.
package signaling

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"unicode/utf8"

	"github.com/giongto35/cloud-player/pkg/api"
	"github.com/giongto35/cloud-player/pkg/logger"
	"github.com/giongto35/cloud-player/pkg/network/websocket"
)

type State int32

const (
	Closed State = iota
	Connecting
	Open
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	default:
		return "unknown"
	}
}

// Events are called from the link goroutines.
// OnOpen always comes before any OnMessage of the same connection, and
// OnClose is the last event of it. An explicit Close suppresses all the
// following events.
type Events struct {
	OnOpen    func()
	OnMessage func(api.Message)
	OnError   func(error)
	OnClose   func(error)
}

type Link struct {
	address url.URL
	events  Events
	log     *logger.Logger

	mu     sync.Mutex
	state  State
	conn   *websocket.WS
	cancel context.CancelFunc
	gen    uint64
}

func New(address url.URL, events Events, log *logger.Logger) *Link {
	if events.OnOpen == nil {
		events.OnOpen = func() {}
	}
	if events.OnMessage == nil {
		events.OnMessage = func(api.Message) {}
	}
	if events.OnError == nil {
		events.OnError = func(error) {}
	}
	if events.OnClose == nil {
		events.OnClose = func(error) {}
	}
	return &Link{address: address, events: events, log: log.Module("link")}
}

// Connect starts dialing the server in the background.
// Any existing connection of the link is closed first.
func (l *Link) Connect() {
	l.mu.Lock()
	l.release()
	l.gen++
	gen := l.gen
	ctx, cancel := context.WithCancel(context.Background())
	l.cancel = cancel
	l.state = Connecting
	l.mu.Unlock()

	l.log.Debug().Msgf("Connecting to %v", l.address.String())
	go l.dial(ctx, gen)
}

func (l *Link) dial(ctx context.Context, gen uint64) {
	conn, err := websocket.NewClient(ctx, l.address, l.log)

	l.mu.Lock()
	if gen != l.gen {
		l.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		l.state = Closed
		l.cancel = nil
		l.mu.Unlock()
		l.log.Warn().Err(err).Msg("Dial failed")
		l.events.OnClose(fmt.Errorf("%w: %v", api.ErrLinkLost, err))
		return
	}
	conn.SetMessageHandler(l.handleFrame(gen))
	l.conn = conn
	l.state = Open
	l.mu.Unlock()

	l.log.Info().Msgf("Connected to %v", l.address.String())
	l.events.OnOpen()
	done := conn.Listen()

	<-done
	l.mu.Lock()
	current := gen == l.gen
	if current {
		l.state = Closed
		l.conn = nil
		l.cancel = nil
	}
	l.mu.Unlock()
	if !current {
		return
	}
	reason := api.ErrLinkLost
	if cerr := conn.Err(); cerr != nil {
		reason = fmt.Errorf("%w: %v", api.ErrLinkLost, cerr)
	}
	l.log.Warn().Err(reason).Msg("Disconnected")
	l.events.OnClose(reason)
}

func (l *Link) handleFrame(gen uint64) websocket.MessageHandler {
	return func(kind websocket.MessageKind, data []byte) {
		if !l.isCurrent(gen) {
			return
		}
		if kind != websocket.TextMessage {
			l.log.Warn().Msgf("Dropped %v frame of %v bytes", kind, len(data))
			l.events.OnError(api.ErrBinaryFrame)
			return
		}
		if !utf8.Valid(data) {
			l.events.OnError(fmt.Errorf("%w: not UTF-8", api.ErrMalformed))
			return
		}
		msg, err := api.Decode(data)
		if err != nil {
			l.log.Warn().Err(err).Msg("Dropped message")
			l.events.OnError(err)
			return
		}
		messages.WithLabelValues("in", msg.Kind().String()).Inc()
		l.events.OnMessage(msg)
	}
}

// Send writes a message into the open link.
func (l *Link) Send(msg api.Message) error {
	l.mu.Lock()
	conn, state := l.conn, l.state
	l.mu.Unlock()
	if state != Open || conn == nil {
		return api.ErrLinkNotOpen
	}
	data, err := api.Encode(msg)
	if err != nil {
		return err
	}
	if err = conn.Write(data); err != nil {
		if err == websocket.ErrClosed {
			return api.ErrLinkNotOpen
		}
		return err
	}
	messages.WithLabelValues("out", msg.Kind().String()).Inc()
	return nil
}

// Close drops the connection without notifying the owner.
func (l *Link) Close() {
	l.mu.Lock()
	l.gen++
	l.release()
	l.state = Closed
	l.mu.Unlock()
}

func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Link) isCurrent(gen uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return gen == l.gen
}

// release must be called with the lock held.
func (l *Link) release() {
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	if l.conn != nil {
		l.conn.Close()
		l.conn = nil
	}
}
