// internal/metrics/metrics.go
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	resultOK    = "ok"
	resultError = "error"
)

// Metrics records polling and write activity. It satisfies poller.Recorder.
type Metrics struct {
	reg *prometheus.Registry

	reads     *prometheus.CounterVec
	writes    *prometheus.CounterVec
	attempts  *prometheus.CounterVec
	cycles    *prometheus.HistogramVec
	available *prometheus.GaugeVec
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		reads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "modbus_reads_total",
			Help: "Parameter reads by result.",
		}, []string{"device", "result"}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "modbus_writes_total",
			Help: "Write commands by final result.",
		}, []string{"device", "result"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "modbus_write_attempts_total",
			Help: "Write dispatch attempts, retries included.",
		}, []string{"device"}),
		cycles: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "modbus_cycle_duration_seconds",
			Help:    "Duration of one polling cycle.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"device"}),
		available: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "modbus_device_available",
			Help: "1 when the last cycle of the device completed.",
		}, []string{"device"}),
	}
	m.reg.MustRegister(m.reads, m.writes, m.attempts, m.cycles, m.available)
	return m
}

func result(err error) string {
	if err != nil {
		return resultError
	}
	return resultOK
}

func (m *Metrics) ReadDone(device string, err error) {
	m.reads.WithLabelValues(device, result(err)).Inc()
}

func (m *Metrics) WriteAttempt(device string) {
	m.attempts.WithLabelValues(device).Inc()
}

func (m *Metrics) WriteDone(device string, err error) {
	m.writes.WithLabelValues(device, result(err)).Inc()
}

func (m *Metrics) CycleDone(device string, d time.Duration) {
	m.cycles.WithLabelValues(device).Observe(d.Seconds())
}

func (m *Metrics) Available(device string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	m.available.WithLabelValues(device).Set(v)
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Serve runs the /metrics endpoint on listen until ctx is done.
func (m *Metrics) Serve(ctx context.Context, listen string, log zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	log.Info().Str("listen", listen).Msg("metrics endpoint up")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
