package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// New registers into the default Prometheus registry, which panics on a
// second registration of the same metric name; share one instance
// across this package's tests the same way chainscraper's tests do.
var metricsOnce sync.Once
var metricsInst *Metrics

func sharedMetrics() *Metrics {
	metricsOnce.Do(func() { metricsInst = New() })
	return metricsInst
}

func TestNew_CollectorsAreUsable(t *testing.T) {
	m := sharedMetrics()
	m.ChainTip.WithLabelValues("ethereum").Set(42)
	m.MissedMessages.WithLabelValues("ethereum").Inc()

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"ichain_scraper_chain_tip",
		"ichain_scraper_cursor_height",
		"ichain_scraper_missed_messages_total",
		"ichain_scraper_messages_stored_total",
		"ichain_scraper_deliveries_stored_total",
		"ichain_scraper_checkpoint_quorum_index",
	} {
		if !names[want] {
			t.Errorf("expected metric family %q to be registered", want)
		}
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("find a free port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestServe_PortZeroDisablesExporterUntilCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, 0) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve(port=0) returned %v, want nil on cancel", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve(port=0) did not return after context cancellation")
	}
}

func TestServe_ServesMetricsEndpointUntilCancel(t *testing.T) {
	sharedMetrics() // ensure the registry has at least one collector

	port := freePort(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, port) }()

	url := "http://127.0.0.1:" + strconv.Itoa(port) + "/metrics"
	var resp *http.Response
	var err error
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d, body %q", url, resp.StatusCode, body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve returned %v, want nil on graceful shutdown", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not shut down after context cancellation")
	}
}
