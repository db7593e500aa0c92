// Package session keeps a single playback session consistent with the
// control channel and the peer negotiation.
//
// All the state lives in the Coordinator and changes only on its loop
// goroutine: link callbacks, peer connection callbacks, timers and user
// requests are posted into one queue and handled one by one in the order
// of arrival.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/giongto35/cloud-player/pkg/api"
	"github.com/giongto35/cloud-player/pkg/logger"
	"github.com/giongto35/cloud-player/pkg/media"
	"github.com/giongto35/cloud-player/pkg/negotiation"
	"github.com/giongto35/cloud-player/pkg/network"
	"github.com/giongto35/cloud-player/pkg/signaling"
	"github.com/pion/webrtc/v4"
)

// Link is a single control channel connection.
type Link interface {
	Connect()
	Send(api.Message) error
	Close()
}

// LinkFactory makes a brand-new link for each (re)connect.
type LinkFactory func(events signaling.Events) Link

// Negotiator is the peer negotiation of one session.
type Negotiator interface {
	Id() network.Uid
	Listen(negotiation.Events)
	HandleRemoteDescription(webrtc.SessionDescription) error
	HandleRemoteCandidate(webrtc.ICECandidateInit) error
	HandleNegotiationNeeded()
	HandleLocalCandidate(*webrtc.ICECandidate)
	HandleRemoteTrack(media.Track)
	Close() error
}

// NegotiatorFactory makes a new negotiator that sends its messages with send.
type NegotiatorFactory func(send func(api.Message) error) (Negotiator, error)

// Scheduler calls f after d, the returned stop cancels the call.
type Scheduler func(d time.Duration, f func()) (stop func() bool)

// Preparer gets the media side ready for a new session.
type Preparer interface {
	Prepare(wantVideo bool)
}

func AfterFunc(d time.Duration, f func()) func() bool { return time.AfterFunc(d, f).Stop }

var (
	ErrRunning = errors.New("coordinator is already running")
	ErrStopped = errors.New("coordinator is stopped")
)

const queueSize = 256

type Options struct {
	Links        LinkFactory
	Negotiations NegotiatorFactory
	Schedule     Scheduler
	Observer     Observer
	Media        Preparer
	Backoff      network.Backoff
	Log          *logger.Logger
}

type Option func(*Options)

func WithLinks(f LinkFactory) Option              { return func(o *Options) { o.Links = f } }
func WithNegotiations(f NegotiatorFactory) Option { return func(o *Options) { o.Negotiations = f } }
func WithScheduler(s Scheduler) Option            { return func(o *Options) { o.Schedule = s } }
func WithObserver(ob Observer) Option             { return func(o *Options) { o.Observer = ob } }
func WithMedia(p Preparer) Option                 { return func(o *Options) { o.Media = p } }
func WithBackoff(b network.Backoff) Option        { return func(o *Options) { o.Backoff = b } }
func WithLogger(l *logger.Logger) Option          { return func(o *Options) { o.Log = l } }

type Coordinator struct {
	opts    Options
	log     *logger.Logger
	events  chan event
	done    chan struct{}
	running atomic.Bool

	// loop state
	state     State
	sessionId string

	link     Link
	linkGen  uint64
	linkOpen bool
	retry    network.Retry
	timer    func() bool

	neg    Negotiator
	negGen uint64
}

// New makes a coordinator, it does nothing until Run.
func New(opts ...Option) (*Coordinator, error) {
	o := Options{
		Schedule: AfterFunc,
		Observer: nopObserver{},
		Backoff:  network.NewBackoff(network.DefaultBackoffBase, network.DefaultBackoffMax),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Links == nil {
		return nil, errors.New("no link factory")
	}
	if o.Negotiations == nil {
		return nil, errors.New("no negotiation factory")
	}
	if o.Log == nil {
		o.Log = logger.Default()
	}
	return &Coordinator{
		opts:   o,
		log:    o.Log.Module("session"),
		events: make(chan event, queueSize),
		done:   make(chan struct{}),
		retry:  network.NewRetry(o.Backoff),
	}, nil
}

// Run connects to the server and processes all the events until the
// context is done. It can be called only once.
func (c *Coordinator) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer close(c.done)

	if err := c.resetNegotiation(); err != nil {
		c.log.Error().Err(err).Msg("No peer connection")
	}
	c.connect()
	c.notify()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil
		case e := <-c.events:
			c.handle(e)
			c.notify()
		}
	}
}

// Start asks the server for a new playback session.
func (c *Coordinator) Start(ctx context.Context, videoUrl string, wantVideo bool) error {
	reply := make(chan error, 1)
	return c.ask(ctx, startRequest{videoUrl: videoUrl, wantVideo: wantVideo, reply: reply}, reply)
}

// Stop asks the server to end the current session.
// Without the control channel the session is dropped locally.
func (c *Coordinator) Stop(ctx context.Context) error {
	reply := make(chan error, 1)
	return c.ask(ctx, stopRequest{reply: reply}, reply)
}

// Snapshot returns the current state.
func (c *Coordinator) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	if err := c.post(ctx, snapshotRequest{reply: reply}); err != nil {
		return Snapshot{}, err
	}
	select {
	case s := <-reply:
		return s, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	case <-c.done:
		return Snapshot{}, ErrStopped
	}
}

// Done is closed when the loop exits.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

func (c *Coordinator) ask(ctx context.Context, e event, reply chan error) error {
	if err := c.post(ctx, e); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrStopped
	}
}

func (c *Coordinator) post(ctx context.Context, e event) error {
	select {
	case c.events <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrStopped
	}
}

// push queues events of the link, the peer connection and the timer.
func (c *Coordinator) push(e event) {
	select {
	case c.events <- e:
	case <-c.done:
	}
}

func (c *Coordinator) handle(e event) {
	switch ev := e.(type) {
	case linkOpened:
		if c.currentLink(ev.gen, "open") {
			c.onLinkOpened()
		}
	case linkMessage:
		if c.currentLink(ev.gen, ev.msg.Kind().String()) {
			c.onMessage(ev.msg)
		}
	case linkError:
		if c.currentLink(ev.gen, "error") {
			c.onLinkError(ev.err)
		}
	case linkClosed:
		if c.currentLink(ev.gen, "close") {
			c.onLinkClosed(ev.err)
		}
	case reconnectDue:
		if c.currentLink(ev.gen, "reconnect") {
			c.timer = nil
			c.connect()
		}
	case negotiationNeeded:
		if c.currentNegotiation(ev.gen, "negotiationNeeded") {
			c.neg.HandleNegotiationNeeded()
		}
	case localCandidate:
		if c.currentNegotiation(ev.gen, "localCandidate") {
			c.neg.HandleLocalCandidate(ev.candidate)
		}
	case remoteTrack:
		if c.currentNegotiation(ev.gen, "remoteTrack") {
			c.neg.HandleRemoteTrack(ev.track)
		}
	case startRequest:
		ev.reply <- c.start(ev.videoUrl, ev.wantVideo)
	case stopRequest:
		ev.reply <- c.stop()
	case snapshotRequest:
		ev.reply <- c.snapshot()
	default:
		c.log.Warn().Msgf("Unknown event %T", e)
	}
}

func (c *Coordinator) start(videoUrl string, wantVideo bool) error {
	if c.state != Idle {
		return fmt.Errorf("%w: %v", api.ErrSessionBusy, c.state)
	}
	if !c.linkOpen {
		return api.ErrLinkNotOpen
	}
	if videoUrl == "" {
		return fmt.Errorf("%w: no video url", api.ErrMalformed)
	}
	if err := c.resetNegotiation(); err != nil {
		return err
	}
	if c.opts.Media != nil {
		c.opts.Media.Prepare(wantVideo)
	}
	if err := c.link.Send(api.NewSessionRequest(videoUrl, wantVideo)); err != nil {
		return err
	}
	c.setState(Starting)
	sessionStarts.Inc()
	c.status("Starting playback...")
	c.log.Info().Str("url", videoUrl).Bool("video", wantVideo).Msg("New session")
	return nil
}

func (c *Coordinator) stop() error {
	if c.state == Idle {
		return api.ErrNoSession
	}
	if !c.linkOpen {
		if c.state == Starting {
			sessionDrops.Inc()
			c.resetSession()
		} else {
			c.endSession()
		}
		c.status("Playback reset.")
		return nil
	}
	if c.state != Active {
		return fmt.Errorf("%w: %v", api.ErrSessionBusy, c.state)
	}
	if err := c.link.Send(api.EndSessionRequest()); err != nil {
		return err
	}
	c.setState(Ending)
	c.status("Stopping playback...")
	return nil
}

func (c *Coordinator) onLinkOpened() {
	c.linkOpen = true
	c.retry.Success()

	switch c.state {
	case Starting:
		// the server never saw the session request
		sessionDrops.Inc()
		c.resetSession()
	case Ending:
		c.setState(Active)
	}

	if c.sessionId != "" {
		c.status("Connected, but session resumption is not yet implemented.")
	} else {
		c.status("Connected to server.")
	}
}

func (c *Coordinator) onLinkError(err error) {
	c.log.Warn().Err(err).Msg("Bad message")
	if errors.Is(err, api.ErrBinaryFrame) {
		c.status("Server sent binary data.")
	}
}

func (c *Coordinator) onLinkClosed(err error) {
	c.linkOpen = false
	delay := c.retry.Fail()
	reconnects.Inc()
	gen := c.linkGen
	c.timer = c.opts.Schedule(delay, func() { c.push(reconnectDue{gen: gen}) })
	c.log.Warn().Err(err).Msgf("Reconnect in %v, attempt %v", delay, c.retry.Attempt())
	c.status(fmt.Sprintf("Connection unexpectedly closed. Trying to reconnect in %vs.", delay.Seconds()))
}

func (c *Coordinator) onMessage(msg api.Message) {
	switch m := msg.(type) {
	case api.SessionConnected:
		c.onSessionConnected(m)
	case api.SessionEnded:
		c.onSessionEnded(m)
	case api.NewSdp:
		if c.neg == nil {
			c.log.Warn().Msgf("No peer connection for remote %v", m.Sdp.Type)
			return
		}
		if err := c.neg.HandleRemoteDescription(m.Sdp); err != nil {
			negotiationErrors.WithLabelValues(m.Sdp.Type.String()).Inc()
		}
	case api.IceCandidate:
		if c.neg == nil {
			c.log.Warn().Msg("No peer connection for remote candidate")
			return
		}
		if err := c.neg.HandleRemoteCandidate(m.Candidate); err != nil {
			negotiationErrors.WithLabelValues("candidate").Inc()
		}
	default:
		c.log.Warn().Msgf("Unexpected %v message", msg.Kind())
	}
}

func (c *Coordinator) onSessionConnected(m api.SessionConnected) {
	if c.state != Starting {
		c.stale(m.Kind(), fmt.Sprintf("session %v connected while %v", m.SessionId, c.state))
		return
	}
	c.sessionId = m.SessionId
	c.setState(Active)
	c.status("Playback started.")
	c.log.Info().Str("session", m.SessionId).Msg("Session connected")
}

func (c *Coordinator) onSessionEnded(m api.SessionEnded) {
	if c.state == Idle {
		c.stale(m.Kind(), "no session")
		return
	}
	if m.SessionId != "" && m.SessionId != c.sessionId {
		c.stale(m.Kind(), fmt.Sprintf("session %v ended, current is %q", m.SessionId, c.sessionId))
		return
	}
	c.log.Info().Str("session", c.sessionId).Str("reason", m.Reason).Msg("Session ended")
	c.endSession()
	c.status("Playback ended: " + m.Reason)
}

// endSession drops the session and the peer connection it used.
func (c *Coordinator) endSession() {
	sessionEnds.Inc()
	c.resetSession()
}

func (c *Coordinator) resetSession() {
	c.sessionId = ""
	c.setState(Idle)
	if err := c.resetNegotiation(); err != nil {
		c.log.Error().Err(err).Msg("No peer connection")
	}
}

// connect replaces the link with a new one.
func (c *Coordinator) connect() {
	if c.link != nil {
		c.link.Close()
	}
	c.linkGen++
	c.linkOpen = false
	gen := c.linkGen
	c.link = c.opts.Links(signaling.Events{
		OnOpen:    func() { c.push(linkOpened{gen: gen}) },
		OnMessage: func(m api.Message) { c.push(linkMessage{gen: gen, msg: m}) },
		OnError:   func(err error) { c.push(linkError{gen: gen, err: err}) },
		OnClose:   func(err error) { c.push(linkClosed{gen: gen, err: err}) },
	})
	c.link.Connect()
}

// resetNegotiation replaces the peer negotiation with a new one.
func (c *Coordinator) resetNegotiation() error {
	if c.neg != nil {
		if err := c.neg.Close(); err != nil {
			c.log.Warn().Err(err).Msg("Peer connection close")
		}
		c.neg = nil
	}
	c.negGen++
	gen := c.negGen
	n, err := c.opts.Negotiations(func(m api.Message) error { return c.sendNegotiation(gen, m) })
	if err != nil {
		return fmt.Errorf("%w: %v", api.ErrNegotiation, err)
	}
	n.Listen(negotiation.Events{
		NegotiationNeeded: func() { c.push(negotiationNeeded{gen: gen}) },
		LocalCandidate:    func(ic *webrtc.ICECandidate) { c.push(localCandidate{gen: gen, candidate: ic}) },
		RemoteTrack:       func(t media.Track) { c.push(remoteTrack{gen: gen, track: t}) },
	})
	c.neg = n
	return nil
}

// sendNegotiation forwards negotiation messages in any session state,
// but only of the current peer connection and only into an open link.
func (c *Coordinator) sendNegotiation(gen uint64, m api.Message) error {
	if gen != c.negGen {
		c.stale(m.Kind(), "replaced peer connection")
		return api.ErrStaleSession
	}
	if !c.linkOpen {
		c.log.Debug().Msgf("Dropped outgoing %v, no link", m.Kind())
		return api.ErrLinkNotOpen
	}
	return c.link.Send(m)
}

func (c *Coordinator) shutdown() {
	if c.timer != nil {
		c.timer()
		c.timer = nil
	}
	if c.link != nil {
		c.link.Close()
	}
	c.linkOpen = false
	if c.neg != nil {
		if err := c.neg.Close(); err != nil {
			c.log.Warn().Err(err).Msg("Peer connection close")
		}
		c.neg = nil
	}
	c.log.Debug().Msg("Stopped")
}

func (c *Coordinator) currentLink(gen uint64, what string) bool {
	if gen == c.linkGen {
		return true
	}
	c.stale(api.Kind(what), "replaced link")
	return false
}

func (c *Coordinator) currentNegotiation(gen uint64, what string) bool {
	if gen == c.negGen && c.neg != nil {
		return true
	}
	c.stale(api.Kind(what), "replaced peer connection")
	return false
}

func (c *Coordinator) stale(kind api.Kind, why string) {
	staleEvents.WithLabelValues(kind.String()).Inc()
	c.log.Debug().Err(api.ErrStaleSession).Msgf("Ignored %v: %v", kind, why)
}

func (c *Coordinator) setState(s State) {
	if c.state != s {
		c.log.Debug().Msgf("State %v -> %v", c.state, s)
	}
	c.state = s
	stateGauge.Set(float64(s))
}

func (c *Coordinator) status(text string) { c.opts.Observer.Status(text) }

func (c *Coordinator) notify() {
	c.opts.Observer.Controls(Controls{
		CanStart: c.linkOpen && c.state == Idle,
		CanStop:  c.state == Active,
	})
}

func (c *Coordinator) snapshot() Snapshot {
	s := Snapshot{State: c.state, SessionId: c.sessionId, LinkOpen: c.linkOpen, Attempt: c.retry.Attempt()}
	if c.neg != nil {
		s.Negotiation = c.neg.Id()
	}
	return s
}
