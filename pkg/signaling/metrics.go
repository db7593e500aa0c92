package signaling

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var messages = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "player",
	Subsystem: "signaling",
	Name:      "messages_total",
	Help:      "Control channel messages by direction and type.",
}, []string{"direction", "type"})
