package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_RecordAttempt(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordAttempt("caption", true, 88.0)
	m.RecordAttempt("caption", true, 91.5)
	m.RecordAttempt("caption", false, 30.0)
	m.RecordAttempt("blog_post", true, 75.0)

	assert.InDelta(t, 2.0, testutil.ToFloat64(m.attemptsIngested.WithLabelValues("caption", "success")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.attemptsIngested.WithLabelValues("caption", "failure")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.attemptsIngested.WithLabelValues("blog_post", "success")), 1e-9)

	// One histogram series per component type.
	assert.Equal(t, 2, testutil.CollectAndCount(m.attemptScores))
}

func TestMetrics_RecordResolution(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordResolution("item")
	m.RecordResolution("item")
	m.RecordResolution("global")
	m.RecordResolution("none")

	assert.InDelta(t, 2.0, testutil.ToFloat64(m.resolutions.WithLabelValues("item")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.resolutions.WithLabelValues("global")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.resolutions.WithLabelValues("none")), 1e-9)
}

func TestMetrics_RecordPlan(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordPlan("caption", "learned")
	m.RecordPlan("caption", "defaults")
	m.RecordPlan("caption", "learned")

	assert.InDelta(t, 2.0, testutil.ToFloat64(m.plansComputed.WithLabelValues("caption", "learned")), 1e-9)
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.plansComputed.WithLabelValues("caption", "defaults")), 1e-9)
}

func TestMetrics_ObserveRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveRequest("/v1/attempts", "POST", 201, 15*time.Millisecond)
	m.ObserveRequest("/v1/plan", "POST", 200, 3*time.Millisecond)
	m.ObserveRequest("/v1/plan", "POST", 400, 1*time.Millisecond)

	assert.Equal(t, 3, testutil.CollectAndCount(m.requestDuration))
}

func TestMetrics_RegistersAgainstProvidedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordAttempt("caption", true, 80.0)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["gentuner_attempts_ingested_total"])
	assert.True(t, names["gentuner_attempt_composite_score"])
}
