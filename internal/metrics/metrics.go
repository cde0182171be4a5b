// Package metrics exposes the Prometheus counters both clients update.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type Metrics struct {
	framesReceived prometheus.Counter
	parseErrors    prometheus.Counter
	recordsStored  prometheus.Counter
	storeErrors    prometheus.Counter
	acksSent       prometheus.Counter
	reconnects     prometheus.Counter
	rowsLogged     prometheus.Counter
	lastAverage    prometheus.Gauge
	latency        prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gait_frames_received_total",
			Help: "Frames read from the relay.",
		}),
		parseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gait_parse_errors_total",
			Help: "Frames that were not a JSON object.",
		}),
		recordsStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gait_records_stored_total",
			Help: "Processed records accepted by every configured store.",
		}),
		storeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gait_store_errors_total",
			Help: "Processed records at least one store rejected.",
		}),
		acksSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gait_acks_sent_total",
			Help: "Acknowledgement or reply frames sent back to the relay.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gait_reconnects_total",
			Help: "Reconnect attempts after a lost or failed connection.",
		}),
		rowsLogged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gait_rows_logged_total",
			Help: "Rows appended to the recorder data log.",
		}),
		lastAverage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gait_last_average",
			Help: "Average of the numeric sensor values in the last processed reading.",
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gait_process_latency_seconds",
			Help:    "Time from frame read to acknowledgement sent.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
	}
	reg.MustRegister(
		m.framesReceived, m.parseErrors, m.recordsStored, m.storeErrors,
		m.acksSent, m.reconnects, m.rowsLogged, m.lastAverage, m.latency,
	)
	return m
}

func (m *Metrics) FrameReceived() {
	if m != nil {
		m.framesReceived.Inc()
	}
}

func (m *Metrics) ParseError() {
	if m != nil {
		m.parseErrors.Inc()
	}
}

func (m *Metrics) Stored(average float64) {
	if m != nil {
		m.recordsStored.Inc()
		m.lastAverage.Set(average)
	}
}

func (m *Metrics) StoreError() {
	if m != nil {
		m.storeErrors.Inc()
	}
}

func (m *Metrics) AckSent() {
	if m != nil {
		m.acksSent.Inc()
	}
}

func (m *Metrics) Reconnect() {
	if m != nil {
		m.reconnects.Inc()
	}
}

func (m *Metrics) RowLogged() {
	if m != nil {
		m.rowsLogged.Inc()
	}
}

func (m *Metrics) ObserveLatency(d time.Duration) {
	if m != nil {
		m.latency.Observe(d.Seconds())
	}
}

func Handler(g prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Serve runs the metrics endpoint until ctx is cancelled.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer, logger zerolog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(g),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("metrics server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrapf(err, "metrics server %s", addr)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "metrics server shutdown")
		}
		return nil
	}
}
