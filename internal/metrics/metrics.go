// Package metrics exposes market counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"match-market/internal/model"
)

// Recorder counts session outcomes and event pipeline errors.
// It satisfies market.Recorder.
type Recorder struct {
	accepted      *prometheus.CounterVec
	rejected      *prometheus.CounterVec
	fetchFailures *prometheus.CounterVec
	eventErrors   *prometheus.CounterVec
	feedEvents    prometheus.Counter
}

// NewRecorder creates the market counters and registers them on reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		accepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "market_wagers_accepted_total",
			Help: "Wagers stored, by market type.",
		}, []string{"type"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "market_wagers_rejected_total",
			Help: "Wager submissions refused, by reason.",
		}, []string{"reason"}),
		fetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "market_fetch_failures_total",
			Help: "Failed session loads, by resource.",
		}, []string{"resource"}),
		eventErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "market_event_errors_total",
			Help: "Wager event publish and consume errors, by stage.",
		}, []string{"stage"}),
		feedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "market_feed_events_total",
			Help: "Wager events delivered to the live feed.",
		}),
	}
	reg.MustRegister(r.accepted, r.rejected, r.fetchFailures, r.eventErrors, r.feedEvents)
	return r
}

func (r *Recorder) WagerAccepted(t model.GameType) {
	r.accepted.WithLabelValues(string(t)).Inc()
}

func (r *Recorder) WagerRejected(reason string) {
	r.rejected.WithLabelValues(reason).Inc()
}

func (r *Recorder) FetchFailed(op string) {
	r.fetchFailures.WithLabelValues(op).Inc()
}

// EventError counts a failure in the event pipeline ("publish", "read", "decode").
func (r *Recorder) EventError(stage string) {
	r.eventErrors.WithLabelValues(stage).Inc()
}

// FeedEvent counts an event delivered to the feed.
func (r *Recorder) FeedEvent() {
	r.feedEvents.Inc()
}

// HealthFunc reports whether a dependency is usable.
type HealthFunc func(ctx context.Context) error

// NewHandler serves gatherer at /metrics and the health check at /healthz.
func NewHandler(gatherer prometheus.Gatherer, healthFn HealthFunc) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()

		if healthFn != nil {
			if err := healthFn(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = fmt.Fprintf(w, "unhealthy: %v", err)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return mux
}

// StartServer serves the handler on port in a goroutine.
// Shut it down with the returned server.
func StartServer(port int, handler http.Handler) *http.Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Int("port", port).Msg("Metrics server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server stopped")
		}
	}()

	return srv
}
