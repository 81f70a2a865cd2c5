package zbatch

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusObserver(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs, err := NewPrometheusObserver(reg)
	if err != nil {
		t.Fatalf("NewPrometheusObserver failed: %v", err)
	}

	b, _ := newTestBatcher(t, WithObserver(obs), WithMaxInClause(2))
	ctx := context.Background()

	if _, err := b.BatchManyToMany(ctx, "Article", []any{1, 2, 3}, "tags"); err != nil {
		t.Fatalf("BatchManyToMany failed: %v", err)
	}
	records := []Row{{"content_type": "video", "object_pk": 999}}
	if _, err := ResolveForward(ctx, b, records, RowRef("", "", "")); err != nil {
		t.Fatalf("ResolveForward failed: %v", err)
	}

	if got := testutil.ToFloat64(obs.queries.WithLabelValues("many_to_many", "Article.tags")); got != 2 {
		t.Errorf("expected 2 chunked queries, got %v", got)
	}
	if got := testutil.ToFloat64(obs.rows.WithLabelValues("many_to_many", "Article.tags")); got != 3 {
		t.Errorf("expected 3 rows, got %v", got)
	}
	if got := testutil.ToFloat64(obs.queries.WithLabelValues("forward", "content_object")); got != 1 {
		t.Errorf("expected 1 forward load, got %v", got)
	}
	if got := testutil.ToFloat64(obs.missing.WithLabelValues("content_object", "video")); got != 1 {
		t.Errorf("expected 1 missing target, got %v", got)
	}

	// Stats keep counting next to the extra observer.
	if s := b.Stats(); s.Queries != 3 || s.MissingTargets != 1 {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestPrometheusObserver_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPrometheusObserver(reg); err != nil {
		t.Fatalf("first registration failed: %v", err)
	}
	if _, err := NewPrometheusObserver(reg); err == nil {
		t.Error("expected duplicate registration to fail")
	}
}

func TestStats_Snapshot(t *testing.T) {
	var s Stats
	s.QueryIssued(OpGeneric, "a.b")
	s.RowsFetched(OpGeneric, "a.b", 4)
	s.MissingTargets("x", "y", 2)

	want := StatsSnapshot{Queries: 1, Rows: 4, MissingTargets: 2}
	if got := s.Snapshot(); got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}
