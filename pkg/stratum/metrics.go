package stratum

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes the index's operation counters (puts, gets, removes,
// splits) as Prometheus collectors, plus the gauges and histogram the
// layered design adds: active sessions, pending garbage, and scan
// result size. A nil *Metrics is never passed to a live
// operation; every call site in put.go/get.go/remove.go/scan.go guards
// with `if t.metrics != nil`, so Metrics itself carries no nil-receiver
// handling.
type Metrics struct {
	puts      *prometheus.CounterVec
	gets      *prometheus.CounterVec
	removes   *prometheus.CounterVec
	splits    prometheus.Counter
	promotes  prometheus.Counter
	reclaimed prometheus.Counter

	activeSessions prometheus.Gauge
	pendingGarbage prometheus.Gauge

	scanSize prometheus.Histogram
}

// NewMetrics constructs a Metrics bound to reg, namespaced "stratum".
// Registering the same namespace twice against the same registry is a
// caller error (prometheus.Register will panic on collision); callers
// that open multiple independent storages share one Metrics instance
// rather than constructing one per storage.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		puts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stratum",
			Name:      "puts_total",
			Help:      "Put operations, partitioned by outcome.",
		}, []string{"outcome"}),
		gets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stratum",
			Name:      "gets_total",
			Help:      "Get operations, partitioned by outcome.",
		}, []string{"outcome"}),
		removes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stratum",
			Name:      "removes_total",
			Help:      "Remove operations, partitioned by outcome.",
		}, []string{"outcome"}),
		splits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stratum",
			Name:      "node_splits_total",
			Help:      "Border and interior node splits performed.",
		}),
		promotes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stratum",
			Name:      "layer_promotions_total",
			Help:      "Value slots promoted into a next-layer pointer on a 9-byte prefix collision.",
		}),
		reclaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "stratum",
			Name:      "nodes_reclaimed_total",
			Help:      "Retired nodes freed by the epoch reclaimer.",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "stratum",
			Name:      "active_sessions",
			Help:      "Currently entered sessions.",
		}),
		pendingGarbage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "stratum",
			Name:      "pending_garbage",
			Help:      "Retired nodes awaiting a safe epoch to be freed.",
		}),
		scanSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "stratum",
			Name:      "scan_result_size",
			Help:      "Number of tuples returned per scan.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
	}
	if reg != nil {
		reg.MustRegister(m.puts, m.gets, m.removes, m.splits, m.promotes,
			m.reclaimed, m.activeSessions, m.pendingGarbage, m.scanSize)
	}
	return m
}

func (m *Metrics) recordPut(ok bool) {
	m.puts.WithLabelValues(outcomeLabel(ok)).Inc()
}

func (m *Metrics) recordGet(ok bool) {
	m.gets.WithLabelValues(outcomeLabel(ok)).Inc()
}

func (m *Metrics) recordRemove(ok bool) {
	m.removes.WithLabelValues(outcomeLabel(ok)).Inc()
}

func (m *Metrics) recordSplit() {
	m.splits.Inc()
}

func (m *Metrics) recordPromotion() {
	m.promotes.Inc()
}

func (m *Metrics) recordReclaimed(n int) {
	if n > 0 {
		m.reclaimed.Add(float64(n))
	}
}

func (m *Metrics) recordScan(size int) {
	m.scanSize.Observe(float64(size))
}

func (m *Metrics) setActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

func (m *Metrics) setPendingGarbage(n int) {
	m.pendingGarbage.Set(float64(n))
}

func outcomeLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "miss"
}
