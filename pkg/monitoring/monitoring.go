package monitoring

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/giongto35/cloud-player/pkg/config"
	"github.com/giongto35/cloud-player/pkg/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Monitoring struct {
	conf   config.Monitoring
	server *http.Server
	addr   string
	log    *logger.Logger
}

// New creates new monitoring service.
func New(conf config.Monitoring, log *logger.Logger) *Monitoring {
	m := &Monitoring{conf: conf, log: log.Module("monitoring")}
	m.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", conf.Port),
		Handler:           m.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return m
}

func (m *Monitoring) handler() http.Handler {
	h := http.NewServeMux()

	if m.conf.ProfilingEnabled {
		prefix := fmt.Sprintf("%s/debug/pprof", m.conf.URLPrefix)
		m.log.Info().Msgf("Profiling is enabled at %v", m.server.Addr+prefix)
		h.HandleFunc(prefix+"/", pprof.Index)
		h.HandleFunc(prefix+"/cmdline", pprof.Cmdline)
		h.HandleFunc(prefix+"/profile", pprof.Profile)
		h.HandleFunc(prefix+"/symbol", pprof.Symbol)
		h.HandleFunc(prefix+"/trace", pprof.Trace)
		// pprof handlers for a custom path need to be explicitly specified
		h.Handle(prefix+"/allocs", pprof.Handler("allocs"))
		h.Handle(prefix+"/block", pprof.Handler("block"))
		h.Handle(prefix+"/goroutine", pprof.Handler("goroutine"))
		h.Handle(prefix+"/heap", pprof.Handler("heap"))
		h.Handle(prefix+"/mutex", pprof.Handler("mutex"))
		h.Handle(prefix+"/threadcreate", pprof.Handler("threadcreate"))
	}

	if m.conf.MetricEnabled {
		metricPath := fmt.Sprintf("%s/metrics", m.conf.URLPrefix)
		m.log.Info().Msgf("Prometheus metric is enabled at %v", m.server.Addr+metricPath)
		h.Handle(metricPath, promhttp.Handler())
	}
	return h
}

// Run starts listening in the background.
func (m *Monitoring) Run() {
	ln, err := net.Listen("tcp", m.server.Addr)
	if err != nil {
		m.log.Error().Err(err).Msg("Monitoring server couldn't start")
		return
	}
	m.addr = ln.Addr().String()
	m.log.Info().Msgf("Starting monitoring server at %v", m.addr)
	go func() {
		if err := m.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.log.Error().Err(err).Msg("Monitoring server")
		}
	}()
}

func (m *Monitoring) Shutdown(ctx context.Context) error {
	m.log.Debug().Msg("Shutting down monitoring server")
	return m.server.Shutdown(ctx)
}

// Addr is the actual listening address, set after Run.
func (m *Monitoring) Addr() string { return m.addr }

func (m *Monitoring) String() string {
	return fmt.Sprintf("monitoring::%s:%d", m.conf.URLPrefix, m.conf.Port)
}
