package signaling

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/giongto35/cloud-player/pkg/api"
	"github.com/giongto35/cloud-player/pkg/logger"
	"github.com/gorilla/websocket"
)

const wait = 5 * time.Second

// server is a fake media server control endpoint.
type server struct {
	*httptest.Server
	conns chan *websocket.Conn
}

func newServer(t *testing.T) *server {
	t.Helper()
	s := &server{conns: make(chan *websocket.Conn, 4)}
	upgrader := websocket.Upgrader{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		s.conns <- conn
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *server) address() url.URL {
	u, _ := url.Parse(s.URL)
	u.Scheme, u.Path = "ws", "/ws"
	return *u
}

func (s *server) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-s.conns:
		return c
	case <-time.After(wait):
		t.Fatalf("no connection")
	}
	return nil
}

type recorder struct {
	open     chan struct{}
	messages chan api.Message
	errors   chan error
	closed   chan error
}

func newRecorder() *recorder {
	return &recorder{
		open:     make(chan struct{}, 4),
		messages: make(chan api.Message, 16),
		errors:   make(chan error, 16),
		closed:   make(chan error, 4),
	}
}

func (r *recorder) events() Events {
	return Events{
		OnOpen:    func() { r.open <- struct{}{} },
		OnMessage: func(m api.Message) { r.messages <- m },
		OnError:   func(err error) { r.errors <- err },
		OnClose:   func(err error) { r.closed <- err },
	}
}

func expect[T any](t *testing.T, ch chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(wait):
		t.Fatalf("no %v", what)
	}
	var zero T
	return zero
}

func TestLinkLifecycle(t *testing.T) {
	srv := newServer(t)
	rec := newRecorder()
	link := New(srv.address(), rec.events(), logger.Nop())

	if err := link.Send(api.EndSessionRequest()); !errors.Is(err, api.ErrLinkNotOpen) {
		t.Errorf("send before connect: %v, want %v", err, api.ErrLinkNotOpen)
	}

	link.Connect()
	remote := srv.accept(t)
	expect(t, rec.open, "open")
	if link.State() != Open {
		t.Errorf("state %v, want %v", link.State(), Open)
	}

	// client -> server
	if err := link.Send(api.NewSessionRequest("http://x/a.mp4", true)); err != nil {
		t.Fatalf("send: %v", err)
	}
	_ = remote.SetReadDeadline(time.Now().Add(wait))
	_, data, err := remote.ReadMessage()
	if err != nil {
		t.Fatalf("server read: %v", err)
	}
	if want := `{"type":"newSession","videoUrl":"http://x/a.mp4","wantVideo":true}`; string(data) != want {
		t.Errorf("got %s, want %s", data, want)
	}

	// server -> client, bad frames don't close the link
	_ = remote.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3})
	if err := expect(t, rec.errors, "binary error"); !errors.Is(err, api.ErrBinaryFrame) {
		t.Errorf("binary frame error: %v", err)
	}
	_ = remote.WriteMessage(websocket.TextMessage, []byte(`{"type":"sessionConnected"}`))
	if err := expect(t, rec.errors, "malformed error"); !errors.Is(err, api.ErrMalformed) {
		t.Errorf("malformed error: %v", err)
	}
	_ = remote.WriteMessage(websocket.TextMessage, []byte(`{"type":"sessionConnected","sessionId":"s1"}`))
	msg := expect(t, rec.messages, "message")
	if m, ok := msg.(api.SessionConnected); !ok || m.SessionId != "s1" {
		t.Errorf("wrong message %#v", msg)
	}
	if link.State() != Open {
		t.Errorf("state %v after bad frames, want %v", link.State(), Open)
	}

	// server goes away
	_ = remote.Close()
	if err := expect(t, rec.closed, "close"); !errors.Is(err, api.ErrLinkLost) {
		t.Errorf("close reason: %v", err)
	}
	if link.State() != Closed {
		t.Errorf("state %v, want %v", link.State(), Closed)
	}
	if err := link.Send(api.EndSessionRequest()); !errors.Is(err, api.ErrLinkNotOpen) {
		t.Errorf("send after close: %v", err)
	}
}

func TestLinkDialFailure(t *testing.T) {
	rec := newRecorder()
	link := New(url.URL{Scheme: "ws", Host: "127.0.0.1:1", Path: "/ws"}, rec.events(), logger.Nop())
	link.Connect()
	if err := expect(t, rec.closed, "close"); !errors.Is(err, api.ErrLinkLost) {
		t.Errorf("close reason: %v", err)
	}
	select {
	case <-rec.open:
		t.Errorf("unexpected open")
	default:
	}
}

func TestLinkReconnectIsIdempotent(t *testing.T) {
	srv := newServer(t)
	rec := newRecorder()
	link := New(srv.address(), rec.events(), logger.Nop())

	link.Connect()
	first := srv.accept(t)
	expect(t, rec.open, "first open")

	link.Connect()
	second := srv.accept(t)
	expect(t, rec.open, "second open")

	// the old socket is gone and its end is not reported
	_ = first.SetReadDeadline(time.Now().Add(wait))
	if _, _, err := first.ReadMessage(); err == nil {
		t.Errorf("first connection is still alive")
	}
	select {
	case err := <-rec.closed:
		t.Errorf("unexpected close %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	_ = second.WriteMessage(websocket.TextMessage, []byte(`{"type":"sessionEnded","reason":"EOF"}`))
	if m, ok := expect(t, rec.messages, "message").(api.SessionEnded); !ok || m.Reason != "EOF" {
		t.Errorf("wrong message %#v", m)
	}

	link.Close()
	if link.State() != Closed {
		t.Errorf("state %v, want %v", link.State(), Closed)
	}
	select {
	case err := <-rec.closed:
		t.Errorf("explicit close was reported: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
}
