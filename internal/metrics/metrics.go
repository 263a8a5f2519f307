// Package metrics exposes Prometheus instrumentation for the player.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Rejection reasons for votes that were ignored.
const (
	ReasonGrace    = "grace_period"
	ReasonInactive = "no_active_statement"
)

// Metrics holds the player's collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	Votes         *prometheus.CounterVec
	VotesRejected *prometheus.CounterVec
	Activations   prometheus.Counter
	Position      prometheus.Gauge
}

// New creates and registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Votes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "polis_votes_total",
			Help: "Accepted votes by kind.",
		}, []string{"kind"}),
		VotesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "polis_votes_rejected_total",
			Help: "Ignored vote attempts by reason.",
		}, []string{"reason"}),
		Activations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "polis_statement_activations_total",
			Help: "Times a statement became the active statement.",
		}),
		Position: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "polis_playback_position_seconds",
			Help: "Last sampled playback position.",
		}),
	}
	reg.MustRegister(m.Votes, m.VotesRejected, m.Activations, m.Position)
	return m
}

// VoteAccepted counts an accepted vote.
func (m *Metrics) VoteAccepted(kind string) {
	if m == nil {
		return
	}
	m.Votes.WithLabelValues(kind).Inc()
}

// VoteRejected counts an ignored vote.
func (m *Metrics) VoteRejected(reason string) {
	if m == nil {
		return
	}
	m.VotesRejected.WithLabelValues(reason).Inc()
}

// StatementActivated counts an activation.
func (m *Metrics) StatementActivated() {
	if m == nil {
		return
	}
	m.Activations.Inc()
}

// SetPosition records the sampled position.
func (m *Metrics) SetPosition(seconds float64) {
	if m == nil {
		return
	}
	m.Position.Set(seconds)
}

// Serve exposes /metrics for gatherer on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve metrics: %w", err)
	}
	return nil
}
