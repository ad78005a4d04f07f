package server

import (
	"math/big"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hoku-labs/blobengine/core"
)

// MetricsServer exports GetStats as prometheus gauges on /metrics,
// refreshed on every scrape, grounded on the teacher's
// core/system_health_logging.go HealthLogger (same registry/gauge-per-field
// shape, minus the JSON file logging that engine adds for its own reasons).
type MetricsServer struct {
	ledger *core.Ledger

	registry            *prometheus.Registry
	capacityFreeGauge   prometheus.Gauge
	capacityUsedGauge   prometheus.Gauge
	creditSoldGauge     prometheus.Gauge
	creditCommitted     prometheus.Gauge
	creditDebitedGauge  prometheus.Gauge
	numAccountsGauge    prometheus.Gauge
	numBlobsGauge       prometheus.Gauge
	numResolvingGauge   prometheus.Gauge
	bytesResolvingGauge prometheus.Gauge
	numAddedGauge       prometheus.Gauge
	bytesAddedGauge     prometheus.Gauge
}

// NewMetricsServer registers every gauge against a fresh registry.
func NewMetricsServer(ledger *core.Ledger) *MetricsServer {
	m := &MetricsServer{
		ledger:   ledger,
		registry: prometheus.NewRegistry(),
	}
	newGauge := func(name, help string) prometheus.Gauge {
		g := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "blobengine", Name: name, Help: help})
		m.registry.MustRegister(g)
		return g
	}
	m.capacityFreeGauge = newGauge("capacity_free_bytes", "subnet storage capacity not yet committed")
	m.capacityUsedGauge = newGauge("capacity_used_bytes", "subnet storage capacity currently committed")
	m.creditSoldGauge = newGauge("credit_sold_total", "cumulative credit minted by buy_credit")
	m.creditCommitted = newGauge("credit_committed_total", "credit currently reserved for active storage")
	m.creditDebitedGauge = newGauge("credit_debited_total", "cumulative credit consumed by debit_accounts")
	m.numAccountsGauge = newGauge("accounts", "number of accounts with a ledger entry")
	m.numBlobsGauge = newGauge("blobs", "number of tracked blobs")
	m.numResolvingGauge = newGauge("blobs_resolving", "blobs currently in the pending queue")
	m.bytesResolvingGauge = newGauge("bytes_resolving", "total size of blobs currently in the pending queue")
	m.numAddedGauge = newGauge("blobs_added", "blobs currently in the added queue")
	m.bytesAddedGauge = newGauge("bytes_added", "total size of blobs currently in the added queue")
	return m
}

// bigIntToFloat converts a *big.Int counter to a float64 for prometheus
// export. Operational dashboards tolerate the precision loss this implies
// for values beyond 2^53; the ledger's own accounting stays exact big.Int
// arithmetic (core/bigint.go) and is never touched here.
func bigIntToFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f := new(big.Float).SetInt(v)
	out, _ := f.Float64()
	return out
}

// refresh pulls a fresh Stats snapshot and updates every gauge.
func (m *MetricsServer) refresh() {
	stats := m.ledger.GetStats()
	m.capacityFreeGauge.Set(bigIntToFloat(stats.CapacityFree))
	m.capacityUsedGauge.Set(bigIntToFloat(stats.CapacityUsed))
	m.creditSoldGauge.Set(bigIntToFloat(stats.CreditSold))
	m.creditCommitted.Set(bigIntToFloat(stats.CreditCommitted))
	m.creditDebitedGauge.Set(bigIntToFloat(stats.CreditDebited))
	m.numAccountsGauge.Set(float64(stats.NumAccounts))
	m.numBlobsGauge.Set(float64(stats.NumBlobs))
	m.numResolvingGauge.Set(float64(stats.NumResolving))
	m.bytesResolvingGauge.Set(float64(stats.BytesResolving))
	m.numAddedGauge.Set(float64(stats.NumAdded))
	m.bytesAddedGauge.Set(float64(stats.BytesAdded))
}

// Handler returns the /metrics http.Handler, refreshing gauges on every
// scrape so a slow-polling operator never sees stale counters.
func (m *MetricsServer) Handler() http.Handler {
	inner := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.refresh()
		inner.ServeHTTP(w, r)
	})
}
