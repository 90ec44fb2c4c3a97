// Package monitoring collects attempt-flow health metrics, evaluates them
// against configured thresholds, and raises webhook alerts when the numbers
// drift. It also owns the Prometheus instruments served by the HTTP API.
package monitoring

import (
	"context"
	"math"
	"time"

	"github.com/rotisserie/eris"

	"github.com/forgepoint/gentuner/internal/store"
)

// MetricsSnapshot holds a point-in-time view of attempt flow health.
type MetricsSnapshot struct {
	// Attempt metrics (within lookback window).
	AttemptsTotal    int     `json:"attempts_total"`
	AttemptsSuccess  int     `json:"attempts_success"`
	AttemptsFailed   int     `json:"attempts_failed"`
	AttemptsArchived int     `json:"attempts_archived"`
	FailRate         float64 `json:"fail_rate"`
	AvgScore         float64 `json:"avg_score"`
	MaxScore         float64 `json:"max_score"`

	// Attempt counts per component type.
	ByComponentType map[string]int `json:"by_component_type"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// collectLimit caps how many attempts a single snapshot scans.
const collectLimit = 10000

// Collector gathers attempt metrics from the store.
type Collector struct {
	store store.Store
}

// NewCollector creates a new metrics collector.
func NewCollector(st store.Store) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot of attempt metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		ByComponentType: make(map[string]int),
		LookbackHours:   lookbackHours,
		CollectedAt:     time.Now().UTC(),
	}

	cutoff := time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)

	recs, err := c.store.Query(ctx, store.AttemptFilter{
		Since: cutoff,
		Limit: collectLimit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: query attempts")
	}

	snap.AttemptsTotal = len(recs)
	var totalScore float64

	for _, r := range recs {
		if r.Success {
			snap.AttemptsSuccess++
		} else {
			snap.AttemptsFailed++
		}
		totalScore += r.CompositeScore
		if r.CompositeScore > snap.MaxScore {
			snap.MaxScore = r.CompositeScore
		}
		snap.ByComponentType[r.ComponentType]++
	}

	if snap.AttemptsTotal > 0 {
		snap.FailRate = float64(snap.AttemptsFailed) / float64(snap.AttemptsTotal)
		snap.AvgScore = math.Round(totalScore/float64(snap.AttemptsTotal)*100) / 100 // 2 decimal places
	}

	// Archived attempts in the same window.
	all, err := c.store.Count(ctx, store.AttemptFilter{Since: cutoff, IncludeArchived: true})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: count attempts")
	}
	if n := all - snap.AttemptsTotal; n > 0 {
		snap.AttemptsArchived = n
	}

	return snap, nil
}
