package media

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/giongto35/cloud-player/pkg/config"
	"github.com/giongto35/cloud-player/pkg/logger"
	"github.com/hashicorp/go-multierror"
	"github.com/pion/webrtc/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mediaPackets = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "player_media_packets_total",
		Help: "RTP packets played per media kind.",
	}, []string{"kind"})
	mediaBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "player_media_bytes_total",
		Help: "RTP payload bytes played per media kind.",
	}, []string{"kind"})
	mediaTracks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "player_media_tracks",
		Help: "Tracks being played.",
	})
)

// Player is a headless renderer.
// It drains RTP of every attached track and optionally saves it to files.
type Player struct {
	log       *logger.Logger
	rec       config.Recording
	wantVideo atomic.Bool

	mu     sync.Mutex
	stream *Stream
	wg     sync.WaitGroup
	errs   *multierror.Error

	files []string
}

func NewPlayer(rec config.Recording, log *logger.Logger) *Player {
	p := &Player{rec: rec, log: log.Module("media")}
	p.wantVideo.Store(true)
	return p
}

// Prepare sets up the player for the next session.
func (p *Player) Prepare(wantVideo bool) { p.wantVideo.Store(wantVideo) }

func (p *Player) Attach(stream *Stream) {
	if stream == nil {
		return
	}
	p.mu.Lock()
	prev := p.stream
	p.stream = stream
	p.mu.Unlock()
	if prev != nil && prev != stream {
		prev.Close()
	}

	p.log.Info().Str("stream", stream.ID()).Msg("Stream attached")
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for t := range stream.Tracks() {
			p.wg.Add(1)
			go func(t Track) {
				defer p.wg.Done()
				p.play(t)
			}(t)
		}
	}()
}

// Detach stops accepting new tracks.
// Running tracks end together with the peer connection.
func (p *Player) Detach() {
	p.mu.Lock()
	s := p.stream
	p.stream = nil
	p.mu.Unlock()
	if s != nil {
		s.Close()
		p.log.Info().Str("stream", s.ID()).Msg("Stream detached")
	}
}

// Close waits for all tracks to end and returns writer errors.
func (p *Player) Close() error {
	p.Detach()
	p.wg.Wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.errs.ErrorOrNil()
}

// Files returns the paths of saved recordings.
func (p *Player) Files() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.files...)
}

func (p *Player) play(t Track) {
	kind := t.Kind()
	log := p.log.Extend(p.log.With().Str("track", t.ID()).Str("codec", t.Codec().MimeType))
	skip := kind == webrtc.RTPCodecTypeVideo && !p.wantVideo.Load()
	if skip {
		log.Info().Msg("Video is not wanted, the track is skipped")
	} else {
		log.Info().Msgf("Playing %v track", kind)
	}

	var w Writer
	if p.rec.Enabled && !skip {
		var path string
		var err error
		w, path, err = NewWriter(p.rec.Folder, t)
		switch {
		case err != nil:
			log.Error().Err(err).Msg("No recording")
			p.fail(err)
		case w == nil:
			log.Warn().Msg("Unsupported recording codec")
		default:
			log.Info().Msgf("Recording into %v", path)
			p.mu.Lock()
			p.files = append(p.files, path)
			p.mu.Unlock()
		}
	}

	packets, bytes := mediaPackets.WithLabelValues(kind.String()), mediaBytes.WithLabelValues(kind.String())
	mediaTracks.Inc()
	defer mediaTracks.Dec()

	writeErr := false
	for {
		pkt, _, err := t.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug().Err(err).Msg("Track read")
			}
			break
		}
		if skip {
			continue
		}
		packets.Inc()
		bytes.Add(float64(len(pkt.Payload)))
		if w != nil && !writeErr {
			if err := w.WriteRTP(pkt); err != nil {
				log.Error().Err(err).Msg("Recording write failed, stopped")
				p.fail(err)
				writeErr = true
			}
		}
	}
	if w != nil {
		if err := w.Close(); err != nil {
			p.fail(err)
		}
	}
	log.Info().Msg("Track ended")
}

func (p *Player) fail(err error) {
	p.mu.Lock()
	p.errs = multierror.Append(p.errs, err)
	p.mu.Unlock()
}
