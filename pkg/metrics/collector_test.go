package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Tributary-ai-services/sitengine/pkg/classify"
)

func TestCollector_DetectorEvaluated(t *testing.T) {
	c := NewCollector()

	c.DetectorEvaluated(classify.SourceSample, true)
	c.DetectorEvaluated(classify.SourceSample, false)
	c.DetectorEvaluated(classify.SourceRulePack, true)
	c.DetectorEvaluated(classify.SourceRulePack, true)

	tests := []struct {
		source string
		fired  string
		want   float64
	}{
		{"sample", "true", 1},
		{"sample", "false", 1},
		{"rulepack", "true", 2},
		{"manual", "true", 0},
	}

	for _, tt := range tests {
		got := testutil.ToFloat64(c.evaluations.WithLabelValues(tt.source, tt.fired))
		if got != tt.want {
			t.Errorf("evaluations{source=%s,fired=%s} = %v, want %v", tt.source, tt.fired, got, tt.want)
		}
	}
}

func TestCollector_RunCompleted(t *testing.T) {
	c := NewCollector()
	c.RunCompleted(3*time.Millisecond, 10, 2)
	c.RunCompleted(time.Millisecond, 10, 0)

	if n := testutil.CollectAndCount(c.runDuration); n != 1 {
		t.Errorf("Expected 1 duration series, got %d", n)
	}

	expected := `
# HELP sitengine_run_matches Number of firing detectors per classification run
# TYPE sitengine_run_matches histogram
sitengine_run_matches_bucket{le="0"} 1
sitengine_run_matches_bucket{le="1"} 1
sitengine_run_matches_bucket{le="2"} 2
sitengine_run_matches_bucket{le="5"} 2
sitengine_run_matches_bucket{le="10"} 2
sitengine_run_matches_bucket{le="25"} 2
sitengine_run_matches_bucket{le="50"} 2
sitengine_run_matches_bucket{le="100"} 2
sitengine_run_matches_bucket{le="+Inf"} 2
sitengine_run_matches_sum 2
sitengine_run_matches_count 2
`
	if err := testutil.CollectAndCompare(c.runMatches, strings.NewReader(expected)); err != nil {
		t.Errorf("Unexpected run_matches: %v", err)
	}
}

func TestCollector_CacheAndEvents(t *testing.T) {
	c := NewCollector()

	c.CacheHit()
	c.CacheMiss()
	c.CacheMiss()
	c.CacheError()
	c.EventsPublished(3, nil)
	c.EventsPublished(2, errors.New("broker down"))
	c.EventDelivered("sit.classifications", "SSN", nil)
	c.EventDelivered("sit.classifications", "SSN", nil)
	c.EventDelivered("sit.classifications", "EMAIL", errors.New("broker down"))
	c.InvalidDetectors([]classify.InvalidDetector{{ID: "a", Source: classify.SourceManual}, {ID: "b", Source: classify.SourceRulePack}})
	c.Request("http", "ok")

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"cache hit", testutil.ToFloat64(c.cacheRequests.WithLabelValues("hit")), 1},
		{"cache miss", testutil.ToFloat64(c.cacheRequests.WithLabelValues("miss")), 2},
		{"cache error", testutil.ToFloat64(c.cacheRequests.WithLabelValues("error")), 1},
		{"events ok", testutil.ToFloat64(c.eventsPublished.WithLabelValues("ok")), 3},
		{"events error", testutil.ToFloat64(c.eventsPublished.WithLabelValues("error")), 2},
		{"delivered ssn", testutil.ToFloat64(c.eventsDelivered.WithLabelValues("sit.classifications", "SSN", "ok")), 2},
		{"rejected email", testutil.ToFloat64(c.eventsDelivered.WithLabelValues("sit.classifications", "EMAIL", "error")), 1},
		{"invalid manual", testutil.ToFloat64(c.invalid.WithLabelValues("manual")), 1},
		{"invalid rulepack", testutil.ToFloat64(c.invalid.WithLabelValues("rulepack")), 1},
		{"http requests", testutil.ToFloat64(c.requests.WithLabelValues("http", "ok")), 1},
	}

	for _, tt := range checks {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector()
	c.DetectorEvaluated(classify.SourceManual, true)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `sitengine_detector_evaluations_total{fired="true",source="manual"} 1`) {
		t.Errorf("Expected evaluation counter in exposition, got:\n%s", rec.Body.String())
	}
}
