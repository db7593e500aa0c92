package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/giongto35/cloud-player/pkg/logger"
	"github.com/giongto35/cloud-player/pkg/network"
	"github.com/gorilla/websocket"
)

const (
	maxMessageSize = 64 * 1024
	pingTime       = pongTime * 9 / 10
	pongTime       = 60 * time.Second
	writeWait      = 10 * time.Second
	closeWait      = 1 * time.Second
	sendQueue      = 64
)

type MessageKind int

const (
	TextMessage   = MessageKind(websocket.TextMessage)
	BinaryMessage = MessageKind(websocket.BinaryMessage)
)

func (k MessageKind) String() string {
	switch k {
	case TextMessage:
		return "text"
	case BinaryMessage:
		return "binary"
	default:
		return "unknown"
	}
}

type MessageHandler func(kind MessageKind, message []byte)

var (
	ErrClosed    = errors.New("socket is closed")
	ErrQueueFull = errors.New("socket send queue is full")
)

type WS struct {
	id   network.Uid
	conn deadlinedConn
	send chan []byte
	quit chan struct{}
	done chan struct{}

	onMessage MessageHandler
	pingPong  bool

	stopOnce   sync.Once
	listenOnce sync.Once
	mu         sync.Mutex
	err        error

	log *logger.Logger
}

var DefaultUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	WriteBufferPool: &sync.Pool{},
}

var DefaultDialer = websocket.Dialer{
	Proxy:            http.ProxyFromEnvironment,
	HandshakeTimeout: 10 * time.Second,
}

// NewServer upgrades an HTTP request into a websocket peer.
// Server sockets keep the connection alive with pings.
func NewServer(w http.ResponseWriter, r *http.Request, log *logger.Logger) (*WS, error) {
	conn, err := DefaultUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return newSocket(conn, true, log), nil
}

// NewClient dials a websocket server.
func NewClient(ctx context.Context, address url.URL, log *logger.Logger) (*WS, error) {
	conn, _, err := DefaultDialer.DialContext(ctx, address.String(), nil)
	if err != nil {
		return nil, err
	}
	return newSocket(conn, false, log), nil
}

func newSocket(conn *websocket.Conn, pingPong bool, log *logger.Logger) *WS {
	if log == nil {
		log = logger.Default()
	}
	id := network.NewUid()
	return &WS{
		id:        id,
		conn:      deadlinedConn{sock: conn, wt: writeWait},
		send:      make(chan []byte, sendQueue),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		onMessage: func(MessageKind, []byte) {},
		pingPong:  pingPong,
		log:       log.Extend(log.With().Str(logger.LinkField, id.Short())),
	}
}

func (ws *WS) Id() network.Uid { return ws.id }

// SetMessageHandler should be called before Listen.
func (ws *WS) SetMessageHandler(fn MessageHandler) { ws.onMessage = fn }

// Listen starts the read and write pumps.
// The returned channel is closed when both pumps have stopped and the
// underlying connection is released.
func (ws *WS) Listen() chan struct{} {
	ws.listenOnce.Do(func() {
		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); ws.writer() }()
		go func() { defer wg.Done(); ws.reader() }()
		go func() {
			wg.Wait()
			_ = ws.conn.close()
			ws.log.Debug().Msg("[ws] closed")
			close(ws.done)
		}()
	})
	return ws.done
}

// reader pumps messages from the websocket connection to the message handler.
// Blocking, must be called as goroutine. Serializes all websocket reads.
func (ws *WS) reader() {
	defer ws.stop()
	ws.conn.setup(func(conn *websocket.Conn) {
		conn.SetReadLimit(maxMessageSize)
		if ws.pingPong {
			_ = conn.SetReadDeadline(time.Now().Add(pongTime))
			conn.SetPongHandler(func(string) error { _ = conn.SetReadDeadline(time.Now().Add(pongTime)); return nil })
		}
	})
	for {
		kind, message, err := ws.conn.read()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				ws.setErr(err)
				ws.log.Warn().Err(err).Msg("[ws] read")
			} else {
				ws.log.Debug().Err(err).Msg("[ws] read stop")
			}
			return
		}
		ws.log.Trace().Str(logger.DirectionField, "←").Msgf("%s", message)
		ws.onMessage(kind, message)
	}
}

// writer pumps messages from the send queue to the websocket connection.
// Blocking, must be called as goroutine. Serializes all websocket writes.
func (ws *WS) writer() {
	var tick <-chan time.Time
	if ws.pingPong {
		ticker := time.NewTicker(pingTime)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case message := <-ws.send:
			ws.log.Trace().Str(logger.DirectionField, "→").Msgf("%s", message)
			if err := ws.conn.write(websocket.TextMessage, message); err != nil {
				ws.setErr(err)
				ws.stop()
				ws.conn.expire(0)
				return
			}
		case <-tick:
			if err := ws.conn.write(websocket.PingMessage, nil); err != nil {
				ws.log.Warn().Err(err).Msg("[ws] ping")
				ws.conn.expire(0)
				return
			}
		case <-ws.quit:
			_ = ws.conn.write(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			// wait a bit for the close reply
			ws.conn.expire(closeWait)
			return
		}
	}
}

// Write queues a text message.
func (ws *WS) Write(data []byte) error {
	select {
	case <-ws.quit:
		return ErrClosed
	default:
	}
	select {
	case ws.send <- data:
		return nil
	case <-ws.quit:
		return ErrClosed
	default:
		return ErrQueueFull
	}
}

// Close asks the peer to close the connection.
// Use the Listen channel to wait for the shutdown.
func (ws *WS) Close() {
	ws.log.Debug().Msg("[ws] close")
	ws.stop()
	ws.listenOnce.Do(func() {
		_ = ws.conn.close()
		close(ws.done)
	})
}

// Err returns the reason of an abnormal close if any.
func (ws *WS) Err() error {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.err
}

func (ws *WS) stop() { ws.stopOnce.Do(func() { close(ws.quit) }) }

func (ws *WS) setErr(err error) {
	ws.mu.Lock()
	if ws.err == nil {
		ws.err = err
	}
	ws.mu.Unlock()
}
