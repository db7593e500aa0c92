package webrtc

import (
	"strings"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rtpPackets = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "player_rtp_received_packets_total",
		Help: "RTP packets received by the transport, before any media handling.",
	}, []string{"kind"})
	rtpLost = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "player_rtp_sequence_gaps_total",
		Help: "RTP packets missing by sequence number.",
	}, []string{"kind"})
)

// ReceiveStats interceptor counts all incoming RTP packets per media kind
// and notes sequence gaps.
type ReceiveStats struct {
	interceptor.NoOp
}

func (i *ReceiveStats) NewInterceptor(_ string) (interceptor.Interceptor, error) { return i, nil }

// BindRemoteStream watches incoming RTP packets.
func (i *ReceiveStats) BindRemoteStream(info *interceptor.StreamInfo, reader interceptor.RTPReader) interceptor.RTPReader {
	kind := mediaKind(info.MimeType)
	packets, lost := rtpPackets.WithLabelValues(kind), rtpLost.WithLabelValues(kind)
	var seq sequence
	return interceptor.RTPReaderFunc(func(b []byte, a interceptor.Attributes) (int, interceptor.Attributes, error) {
		n, attr, err := reader.Read(b, a)
		if err != nil {
			return n, attr, err
		}
		var h rtp.Header
		if _, err := h.Unmarshal(b[:n]); err == nil {
			packets.Inc()
			if gap := seq.next(h.SequenceNumber); gap > 0 {
				lost.Add(float64(gap))
			}
		}
		return n, attr, nil
	})
}

// sequence tracks RTP sequence numbers with 16-bit wraparound.
type sequence struct {
	last uint16
	init bool
}

// next returns the number of skipped packets before sn.
// Reordered or duplicate packets are not counted.
func (s *sequence) next(sn uint16) int {
	if !s.init {
		s.last, s.init = sn, true
		return 0
	}
	diff := sn - s.last
	if diff == 0 || diff >= 1<<15 {
		return 0
	}
	s.last = sn
	return int(diff) - 1
}

func mediaKind(mime string) string {
	switch {
	case strings.HasPrefix(mime, "video/"):
		return "video"
	case strings.HasPrefix(mime, "audio/"):
		return "audio"
	}
	return "unknown"
}
