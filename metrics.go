package zbatch

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Operation names a batch operation in logs and metrics.
type Operation string

const (
	OpManyToMany Operation = "many_to_many"
	OpGeneric    Operation = "generic"
	OpForward    Operation = "forward"
)

// Observer receives batch counters. Implementations must be safe for
// concurrent use.
type Observer interface {
	// QueryIssued is called once per round trip to the store.
	QueryIssued(op Operation, relation string)

	// RowsFetched reports how many rows a round trip returned.
	RowsFetched(op Operation, relation string, n int)

	// MissingTargets reports forward references whose target row no longer
	// exists. They are skipped rather than failing the batch.
	MissingTargets(relation string, typeTag string, n int)
}

// Stats is the in-process Observer every Batcher keeps.
type Stats struct {
	queries atomic.Int64
	rows    atomic.Int64
	missing atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Queries        int64
	Rows           int64
	MissingTargets int64
}

func (s *Stats) QueryIssued(Operation, string) {
	s.queries.Add(1)
}

func (s *Stats) RowsFetched(_ Operation, _ string, n int) {
	s.rows.Add(int64(n))
}

func (s *Stats) MissingTargets(_ string, _ string, n int) {
	s.missing.Add(int64(n))
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Queries:        s.queries.Load(),
		Rows:           s.rows.Load(),
		MissingTargets: s.missing.Load(),
	}
}

// PrometheusObserver exports batch counters as Prometheus metrics.
type PrometheusObserver struct {
	queries *prometheus.CounterVec
	rows    *prometheus.CounterVec
	missing *prometheus.CounterVec
}

// NewPrometheusObserver creates the zbatch counters and registers them with reg.
func NewPrometheusObserver(reg prometheus.Registerer) (*PrometheusObserver, error) {
	o := &PrometheusObserver{
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zbatch",
			Name:      "queries_total",
			Help:      "Bulk queries issued to the relational store.",
		}, []string{"operation", "relation"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zbatch",
			Name:      "rows_total",
			Help:      "Rows returned by bulk queries.",
		}, []string{"operation", "relation"}),
		missing: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zbatch",
			Name:      "missing_targets_total",
			Help:      "Polymorphic references whose target row was not found.",
		}, []string{"relation", "type_tag"}),
	}

	for _, c := range []prometheus.Collector{o.queries, o.rows, o.missing} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func (o *PrometheusObserver) QueryIssued(op Operation, relation string) {
	o.queries.WithLabelValues(string(op), relation).Inc()
}

func (o *PrometheusObserver) RowsFetched(op Operation, relation string, n int) {
	o.rows.WithLabelValues(string(op), relation).Add(float64(n))
}

func (o *PrometheusObserver) MissingTargets(relation string, typeTag string, n int) {
	o.missing.WithLabelValues(relation, typeTag).Add(float64(n))
}

// multiObserver fans out to several observers.
type multiObserver []Observer

func (m multiObserver) QueryIssued(op Operation, relation string) {
	for _, o := range m {
		o.QueryIssued(op, relation)
	}
}

func (m multiObserver) RowsFetched(op Operation, relation string, n int) {
	for _, o := range m {
		o.RowsFetched(op, relation, n)
	}
}

func (m multiObserver) MissingTargets(relation string, typeTag string, n int) {
	for _, o := range m {
		o.MissingTargets(relation, typeTag, n)
	}
}
