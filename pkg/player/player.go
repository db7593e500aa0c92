// Package player is a headless media player application that plays one
// video of the media server.
package player

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/giongto35/cloud-player/pkg/api"
	"github.com/giongto35/cloud-player/pkg/config"
	"github.com/giongto35/cloud-player/pkg/logger"
	"github.com/giongto35/cloud-player/pkg/media"
	"github.com/giongto35/cloud-player/pkg/monitoring"
	"github.com/giongto35/cloud-player/pkg/negotiation"
	"github.com/giongto35/cloud-player/pkg/network"
	"github.com/giongto35/cloud-player/pkg/service"
	"github.com/giongto35/cloud-player/pkg/session"
	"github.com/giongto35/cloud-player/pkg/signaling"
	"github.com/giongto35/cloud-player/pkg/webrtc"
	"github.com/hashicorp/go-multierror"
)

const pollInterval = 100 * time.Millisecond

type Player struct {
	conf     config.PlayerConfig
	log      *logger.Logger
	session  *session.Coordinator
	media    *media.Player
	console  *console
	services service.Group

	cancel context.CancelFunc
	done   chan struct{}
}

func New(conf config.PlayerConfig, log *logger.Logger) (*Player, error) {
	address, err := conf.Signaling.URL()
	if err != nil {
		return nil, err
	}
	peers, err := webrtc.NewApiFactory(conf.Webrtc, log, nil,
		config.Replacement{From: "server-ip", To: address.Hostname()})
	if err != nil {
		return nil, fmt.Errorf("webrtc: %w", err)
	}

	p := &Player{
		conf:    conf,
		log:     log,
		media:   media.NewPlayer(conf.Recording, log),
		console: newConsole(log),
		done:    make(chan struct{}),
	}

	p.session, err = session.New(
		session.WithLinks(func(ev signaling.Events) session.Link { return signaling.New(address, ev, log) }),
		session.WithNegotiations(func(send func(api.Message) error) (session.Negotiator, error) {
			pc, err := peers.NewPeer()
			if err != nil {
				return nil, err
			}
			return negotiation.New(pc, send, p.media, log), nil
		}),
		session.WithObserver(p.console),
		session.WithMedia(p.media),
		session.WithBackoff(network.NewBackoff(conf.Signaling.Reconnect.Base, conf.Signaling.Reconnect.Max)),
		session.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}

	if conf.Monitoring.IsEnabled() {
		p.services.Add(monitoring.New(conf.Monitoring, log))
	}
	return p, nil
}

func (p *Player) Run() {
	p.services.Start()

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go func() {
		defer close(p.done)
		if err := p.session.Run(ctx); err != nil {
			p.log.Error().Err(err).Msg("Session loop")
		}
	}()
	if p.conf.Player.VideoUrl != "" {
		go p.autoplay(ctx, p.conf.Player.VideoUrl, !p.conf.Player.AudioOnly)
	}
}

// autoplay starts a session for the video as soon as it's allowed.
// Only one attempt is made for each time the start becomes allowed.
func (p *Player) autoplay(ctx context.Context, url string, wantVideo bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case ctl := <-p.console.controls:
			if !ctl.CanStart {
				continue
			}
			err := p.session.Start(ctx, url, wantVideo)
			switch {
			case err == nil:
				return
			case errors.Is(err, context.Canceled), errors.Is(err, session.ErrStopped):
				return
			default:
				p.log.Warn().Err(err).Msg("Couldn't start playback")
			}
		}
	}
}

// Shutdown ends the current session and waits for the server to
// confirm it within the stop timeout.
func (p *Player) Shutdown(ctx context.Context) error {
	var result *multierror.Error

	if err := p.stopSession(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	if p.cancel != nil {
		p.cancel()
		<-p.done
	}
	if err := p.media.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("media: %w", err))
	}
	if err := p.services.Shutdown(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

func (p *Player) stopSession(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.conf.Player.StopTimeout)
	defer cancel()

	err := p.session.Stop(ctx)
	if errors.Is(err, api.ErrNoSession) || errors.Is(err, session.ErrStopped) {
		return nil
	}
	if err != nil {
		return err
	}

	t := time.NewTicker(pollInterval)
	defer t.Stop()
	for {
		s, err := p.session.Snapshot(ctx)
		if err != nil {
			return fmt.Errorf("session wasn't ended: %w", err)
		}
		if s.State == session.Idle {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("session wasn't ended: %w", ctx.Err())
		case <-t.C:
		}
	}
}

// Snapshot returns the session state.
func (p *Player) Snapshot(ctx context.Context) (session.Snapshot, error) {
	return p.session.Snapshot(ctx)
}

func (p *Player) String() string { return "player" }
