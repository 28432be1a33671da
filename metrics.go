package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	updates    *prometheus.CounterVec
	pollErrors *prometheus.CounterVec
	cards      *prometheus.CounterVec
	archived   prometheus.Counter
	failures   *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "navbot_updates_total",
			Help: "Processed updates by kind.",
		}, []string{"kind"}),
		pollErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "navbot_poll_errors_total",
			Help: "Failed poll cycles by stage.",
		}, []string{"stage"}),
		cards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "navbot_cards_posted_total",
			Help: "Navigation cards posted by label.",
		}, []string{"label"}),
		archived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "navbot_messages_archived_total",
			Help: "Messages passed to the archive.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "navbot_failures_total",
			Help: "Failed side effects by operation.",
		}, []string{"op"}),
	}
	if reg != nil {
		reg.MustRegister(m.updates, m.pollErrors, m.cards, m.archived, m.failures)
	}
	return m
}

// serveMetrics отдаёт /metrics до отмены ctx.
func serveMetrics(ctx context.Context, addr string, gatherer prometheus.Gatherer) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	slog.Info("Metrics server starting", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Metrics server failed", "err", err)
	}
}
