// Package metrics exposes the process-wide Prometheus registry consumed
// by the chain scraper and checkpoint quorum syncer, served over HTTP on
// metrics_port.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tos-network/ichain-scraper/log"
)

// Metrics bundles every gauge/counter the scraper and quorum syncer emit.
type Metrics struct {
	ChainTip            *prometheus.GaugeVec
	CursorHeight        *prometheus.GaugeVec
	MissedMessages      *prometheus.CounterVec
	MessagesStored      *prometheus.CounterVec
	DeliveriesStored    *prometheus.CounterVec
	CheckpointQuorumIdx *prometheus.GaugeVec
}

// New registers and returns the metrics bundle.
func New() *Metrics {
	return &Metrics{
		ChainTip: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ichain_scraper",
			Name:      "chain_tip",
			Help:      "Block height the sync loop has scanned to, per chain (set with cursor_height; not the chain's reported head).",
		}, []string{"chain"}),
		CursorHeight: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ichain_scraper",
			Name:      "cursor_height",
			Help:      "Highest height consumed by a committed batch, per chain.",
		}, []string{"chain"}),
		MissedMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ichain_scraper",
			Name:      "missed_messages_total",
			Help:      "Count of continuity breaks (InvalidContinuation + ContainsGaps), per chain.",
		}, []string{"chain"}),
		MessagesStored: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ichain_scraper",
			Name:      "messages_stored_total",
			Help:      "Messages persisted, per chain.",
		}, []string{"chain"}),
		DeliveriesStored: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ichain_scraper",
			Name:      "deliveries_stored_total",
			Help:      "Deliveries persisted, per chain.",
		}, []string{"chain"}),
		CheckpointQuorumIdx: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ichain_scraper",
			Name:      "checkpoint_quorum_index",
			Help:      "Highest checkpoint index with a confirmed quorum, per mailbox.",
		}, []string{"mailbox"}),
	}
}

// Serve starts the /metrics HTTP exporter and blocks until ctx is
// cancelled, then shuts the server down gracefully.
func Serve(ctx context.Context, port int) error {
	if port == 0 {
		log.Info("metrics exporter disabled (metrics_port=0)")
		<-ctx.Done()
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("metrics: serve: %w", err)
		}
		return nil
	}
}
