// Package sweetspot mines historical generation attempts for the parameter
// ranges that produced acceptable output, grading each result by how much
// history backs it.
package sweetspot

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/forgepoint/gentuner/internal/model"
	"github.com/forgepoint/gentuner/internal/store"
)

// ErrNotEnoughData indicates a scope has fewer qualifying attempts than the
// analyzer requires. Callers treat it as a normal outcome and widen or fall
// back, not as a failure.
var ErrNotEnoughData = eris.New("not enough data")

// Config tunes the analyzer. Zero values fall back to defaults.
type Config struct {
	// SuccessThreshold is the minimum composite score an attempt needs to
	// count toward a sweet spot when the caller does not pass its own.
	SuccessThreshold float64 `yaml:"success_threshold" mapstructure:"success_threshold"`
	// MinSamples is the smallest qualifying set the analyzer will mine.
	MinSamples int `yaml:"min_samples" mapstructure:"min_samples"`
	// HighTier and MediumTier are the sample counts at which confidence
	// reaches each grade.
	HighTier   int `yaml:"high_tier" mapstructure:"high_tier"`
	MediumTier int `yaml:"medium_tier" mapstructure:"medium_tier"`
	// CacheTTL bounds how long a mined sweet spot may be served without a
	// freshness probe against the store.
	CacheTTL time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
	// RecomputeDelta is how many new qualifying attempts force a recompute
	// even inside the TTL window.
	RecomputeDelta int `yaml:"recompute_delta" mapstructure:"recompute_delta"`
	// IncludeFailed widens mining to attempts not flagged successful.
	IncludeFailed bool `yaml:"include_failed" mapstructure:"include_failed"`
}

// DefaultConfig returns the analyzer defaults.
func DefaultConfig() Config {
	return Config{
		SuccessThreshold: 80,
		MinSamples:       1,
		HighTier:         30,
		MediumTier:       10,
		CacheTTL:         5 * time.Minute,
		RecomputeDelta:   1,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = def.SuccessThreshold
	}
	if c.MinSamples <= 0 {
		c.MinSamples = def.MinSamples
	}
	if c.HighTier <= 0 {
		c.HighTier = def.HighTier
	}
	if c.MediumTier <= 0 {
		c.MediumTier = def.MediumTier
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = def.CacheTTL
	}
	if c.RecomputeDelta <= 0 {
		c.RecomputeDelta = def.RecomputeDelta
	}
	return c
}

// Analyzer computes sweet spots from the attempt store and caches them per
// (scope, threshold) pair.
type Analyzer struct {
	store store.Store
	cfg   Config
	cache *spotCache
}

// New creates an Analyzer backed by the given store.
func New(st store.Store, cfg Config) *Analyzer {
	return &Analyzer{
		store: st,
		cfg:   cfg.withDefaults(),
		cache: newSpotCache(),
	}
}

// Threshold returns the configured default success threshold.
func (a *Analyzer) Threshold() float64 {
	return a.cfg.SuccessThreshold
}

func (a *Analyzer) filterFor(scope model.Scope, threshold float64) store.AttemptFilter {
	return store.AttemptFilter{
		Scope:       scope,
		SuccessOnly: !a.cfg.IncludeFailed,
		MinScore:    threshold,
	}
}

// Analyze returns the sweet spot for a scope, serving a cached result while
// it is still fresh. A threshold <= 0 uses the configured default. Scopes
// with fewer than MinSamples qualifying attempts yield ErrNotEnoughData;
// Analyze never widens a scope on its own.
func (a *Analyzer) Analyze(ctx context.Context, scope model.Scope, threshold float64) (*model.SweetSpot, error) {
	if threshold <= 0 {
		threshold = a.cfg.SuccessThreshold
	}
	key := cacheKey{scope: scope, threshold: threshold}

	if entry, ok := a.cache.get(key); ok && time.Since(entry.fetchedAt) < a.cfg.CacheTTL {
		// An entry inside its TTL is still only served if the qualifying
		// population has not grown past the recompute delta.
		count, err := a.store.Count(ctx, a.filterFor(scope, threshold))
		if err == nil && count-entry.count < a.cfg.RecomputeDelta {
			return entry.spot, nil
		}
	}

	return a.cache.compute(key, func() (*model.SweetSpot, int, error) {
		return a.mine(ctx, scope, threshold)
	})
}

// mine queries the store and derives per-parameter ranges. It returns the
// qualifying record count alongside the sweet spot for staleness probes.
func (a *Analyzer) mine(ctx context.Context, scope model.Scope, threshold float64) (*model.SweetSpot, int, error) {
	recs, err := a.store.Query(ctx, a.filterFor(scope, threshold))
	if err != nil {
		return nil, 0, eris.Wrap(err, "sweetspot: query attempts")
	}
	if len(recs) < a.cfg.MinSamples {
		return nil, 0, eris.Wrapf(ErrNotEnoughData,
			"scope %s has %d qualifying attempt(s), need %d", scope, len(recs), a.cfg.MinSamples)
	}

	// Collect observed values per parameter. A parameter only has to appear
	// in some of the records to earn a range.
	values := make(map[string][]float64)
	var maxScore, sumScore float64
	for i := range recs {
		for name, v := range recs[i].Parameters {
			values[name] = append(values[name], v)
		}
		if recs[i].CompositeScore > maxScore {
			maxScore = recs[i].CompositeScore
		}
		sumScore += recs[i].CompositeScore
	}

	ranges := make(map[string]model.ParameterRange, len(values))
	for name, vals := range values {
		ranges[name] = rangeOf(vals)
	}

	spot := &model.SweetSpot{
		Scope:           scope,
		ParameterRanges: ranges,
		SampleCount:     len(recs),
		MaxScore:        maxScore,
		AvgScore:        math.Round(sumScore/float64(len(recs))*100) / 100, // 2 decimal places
		Confidence:      a.confidence(len(recs)),
		LastUpdated:     time.Now().UTC(),
	}

	zap.L().Debug("mined sweet spot",
		zap.String("scope", scope.String()),
		zap.Float64("threshold", threshold),
		zap.Int("samples", spot.SampleCount),
		zap.String("confidence", string(spot.Confidence)))

	return spot, len(recs), nil
}

func (a *Analyzer) confidence(samples int) model.Confidence {
	switch {
	case samples >= a.cfg.HighTier:
		return model.ConfidenceHigh
	case samples >= a.cfg.MediumTier:
		return model.ConfidenceMedium
	default:
		return model.ConfidenceLow
	}
}

// Invalidate drops every cached sweet spot for the scope, across thresholds.
// Call it after archiving attempts; plain appends age out through the
// recompute delta probe on their own.
func (a *Analyzer) Invalidate(scope model.Scope) {
	a.cache.invalidate(scope)
}

// rangeOf reduces observed values to their min, max and median. The median
// of an even count is the mean of the two middle values. Sorts in place.
func rangeOf(vals []float64) model.ParameterRange {
	sort.Float64s(vals)
	n := len(vals)
	median := vals[n/2]
	if n%2 == 0 {
		median = (vals[n/2-1] + vals[n/2]) / 2
	}
	return model.ParameterRange{Min: vals[0], Max: vals[n-1], Median: median}
}
