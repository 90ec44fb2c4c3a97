package sweetspot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgepoint/gentuner/internal/model"
	"github.com/forgepoint/gentuner/internal/store"
)

// stubStore is an in-memory Store that counts reads so tests can observe
// cache hits and recomputes.
type stubStore struct {
	mu         sync.Mutex
	recs       []model.AttemptRecord
	queryCalls int
	countCalls int
}

var _ store.Store = (*stubStore)(nil)

func (s *stubStore) add(rec model.AttemptRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = int64(len(s.recs) + 1)
	s.recs = append(s.recs, rec)
}

func (s *stubStore) matches(rec model.AttemptRecord, f store.AttemptFilter) bool {
	if rec.Archived && !f.IncludeArchived {
		return false
	}
	if f.SuccessOnly && !rec.Success {
		return false
	}
	if f.MinScore > 0 && rec.CompositeScore < f.MinScore {
		return false
	}
	if !f.Since.IsZero() && rec.CreatedAt.Before(f.Since) {
		return false
	}
	if f.Scope.ComponentType != "" && !f.Scope.IsGlobal() {
		if rec.ComponentType != f.Scope.ComponentType {
			return false
		}
		if f.Scope.ItemKey != "" && rec.ItemKey != f.Scope.ItemKey {
			return false
		}
	}
	return true
}

func (s *stubStore) Query(_ context.Context, f store.AttemptFilter) ([]model.AttemptRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queryCalls++
	var out []model.AttemptRecord
	for _, rec := range s.recs {
		if s.matches(rec, f) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *stubStore) Count(_ context.Context, f store.AttemptFilter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.countCalls++
	n := 0
	for _, rec := range s.recs {
		if s.matches(rec, f) {
			n++
		}
	}
	return n, nil
}

func (s *stubStore) Append(_ context.Context, rec *model.AttemptRecord) (int64, error) {
	s.add(*rec)
	return int64(len(s.recs)), nil
}

func (s *stubStore) AppendBulk(_ context.Context, recs []model.AttemptRecord) (int64, error) {
	for i := range recs {
		s.add(recs[i])
	}
	return int64(len(recs)), nil
}

func (s *stubStore) Get(context.Context, int64) (*model.AttemptRecord, error) { return nil, nil }
func (s *stubStore) Archive(context.Context, int64) error                     { return nil }
func (s *stubStore) Ping(context.Context) error                               { return nil }
func (s *stubStore) Migrate(context.Context) error                            { return nil }
func (s *stubStore) Close() error                                             { return nil }

func (s *stubStore) queries() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queryCalls
}

func attempt(componentType, itemKey string, score float64, params map[string]float64) model.AttemptRecord {
	return model.AttemptRecord{
		ComponentType:  componentType,
		ItemKey:        itemKey,
		Parameters:     params,
		RawSignals:     map[string]float64{"human_likeness": 0.9},
		CompositeScore: score,
		Success:        score >= 80,
	}
}

func TestAnalyzeRanges(t *testing.T) {
	st := &stubStore{}
	st.add(attempt("caption", "", 85, map[string]float64{"temperature": 0.7, "top_p": 0.9}))
	st.add(attempt("caption", "", 90, map[string]float64{"temperature": 0.9, "top_p": 0.95}))
	st.add(attempt("caption", "", 82, map[string]float64{"temperature": 0.8, "top_p": 0.92}))

	a := New(st, DefaultConfig())
	spot, err := a.Analyze(context.Background(), model.TypeScope("caption"), 0)
	require.NoError(t, err)

	assert.Equal(t, 3, spot.SampleCount)
	assert.Equal(t, model.ConfidenceLow, spot.Confidence)
	assert.InDelta(t, 90, spot.MaxScore, 0.001)
	assert.InDelta(t, 85.67, spot.AvgScore, 0.001)

	temp := spot.ParameterRanges["temperature"]
	assert.InDelta(t, 0.7, temp.Min, 1e-9)
	assert.InDelta(t, 0.9, temp.Max, 1e-9)
	assert.InDelta(t, 0.8, temp.Median, 1e-9)
}

func TestAnalyzeMedianEvenCount(t *testing.T) {
	st := &stubStore{}
	for _, v := range []float64{0.6, 0.7, 0.9, 1.0} {
		st.add(attempt("caption", "", 85, map[string]float64{"temperature": v}))
	}

	a := New(st, DefaultConfig())
	spot, err := a.Analyze(context.Background(), model.TypeScope("caption"), 0)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, spot.ParameterRanges["temperature"].Median, 1e-9)
}

func TestAnalyzeSingleSample(t *testing.T) {
	st := &stubStore{}
	st.add(attempt("caption", "pump-a100", 88, map[string]float64{"temperature": 0.75}))

	a := New(st, DefaultConfig())
	spot, err := a.Analyze(context.Background(), model.ItemScope("caption", "pump-a100"), 0)
	require.NoError(t, err)

	assert.Equal(t, 1, spot.SampleCount)
	assert.Equal(t, model.ConfidenceLow, spot.Confidence)
	r := spot.ParameterRanges["temperature"]
	assert.Equal(t, r.Min, r.Max)
	assert.Equal(t, r.Min, r.Median)
}

func TestAnalyzeNotEnoughData(t *testing.T) {
	st := &stubStore{}
	a := New(st, DefaultConfig())

	_, err := a.Analyze(context.Background(), model.TypeScope("caption"), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotEnoughData)
}

func TestAnalyzeMinSamplesGate(t *testing.T) {
	st := &stubStore{}
	st.add(attempt("caption", "", 85, map[string]float64{"temperature": 0.7}))
	st.add(attempt("caption", "", 90, map[string]float64{"temperature": 0.8}))

	cfg := DefaultConfig()
	cfg.MinSamples = 3
	a := New(st, cfg)

	_, err := a.Analyze(context.Background(), model.TypeScope("caption"), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotEnoughData)
}

func TestAnalyzeThresholdFilters(t *testing.T) {
	st := &stubStore{}
	st.add(attempt("caption", "", 95, map[string]float64{"temperature": 0.7}))
	st.add(attempt("caption", "", 85, map[string]float64{"temperature": 1.5}))

	a := New(st, DefaultConfig())
	spot, err := a.Analyze(context.Background(), model.TypeScope("caption"), 90)
	require.NoError(t, err)

	assert.Equal(t, 1, spot.SampleCount)
	assert.InDelta(t, 0.7, spot.ParameterRanges["temperature"].Max, 1e-9)
}

func TestAnalyzeDoesNotWiden(t *testing.T) {
	st := &stubStore{}
	st.add(attempt("caption", "", 85, map[string]float64{"temperature": 0.7}))

	a := New(st, DefaultConfig())

	// Data exists at the component-type scope but not for this item; the
	// analyzer must not widen on its own.
	_, err := a.Analyze(context.Background(), model.ItemScope("caption", "unseen"), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotEnoughData)
}

func TestAnalyzeExcludesFailedByDefault(t *testing.T) {
	st := &stubStore{}
	st.add(attempt("caption", "", 85, map[string]float64{"temperature": 0.7}))
	rec := attempt("caption", "", 85, map[string]float64{"temperature": 1.9})
	rec.Success = false
	st.add(rec)

	a := New(st, DefaultConfig())
	spot, err := a.Analyze(context.Background(), model.TypeScope("caption"), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, spot.SampleCount)

	cfg := DefaultConfig()
	cfg.IncludeFailed = true
	spot, err = New(st, cfg).Analyze(context.Background(), model.TypeScope("caption"), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, spot.SampleCount)
}

func TestAnalyzePartialParameterPresence(t *testing.T) {
	st := &stubStore{}
	st.add(attempt("caption", "", 85, map[string]float64{"temperature": 0.7, "top_p": 0.9}))
	st.add(attempt("caption", "", 90, map[string]float64{"temperature": 0.9}))

	a := New(st, DefaultConfig())
	spot, err := a.Analyze(context.Background(), model.TypeScope("caption"), 0)
	require.NoError(t, err)

	// top_p appeared in a single record; its range covers just that record.
	topP := spot.ParameterRanges["top_p"]
	assert.InDelta(t, 0.9, topP.Min, 1e-9)
	assert.InDelta(t, 0.9, topP.Max, 1e-9)
	temp := spot.ParameterRanges["temperature"]
	assert.InDelta(t, 0.7, temp.Min, 1e-9)
	assert.InDelta(t, 0.9, temp.Max, 1e-9)
}

func TestConfidenceTiers(t *testing.T) {
	cases := []struct {
		samples int
		want    model.Confidence
	}{
		{1, model.ConfidenceLow},
		{9, model.ConfidenceLow},
		{10, model.ConfidenceMedium},
		{29, model.ConfidenceMedium},
		{30, model.ConfidenceHigh},
	}
	for _, tc := range cases {
		st := &stubStore{}
		for i := 0; i < tc.samples; i++ {
			st.add(attempt("caption", "", 85, map[string]float64{"temperature": 0.8}))
		}
		spot, err := New(st, DefaultConfig()).Analyze(context.Background(), model.TypeScope("caption"), 0)
		require.NoError(t, err)
		assert.Equal(t, tc.want, spot.Confidence, "samples=%d", tc.samples)
	}
}

func TestAnalyzeServesCachedResult(t *testing.T) {
	st := &stubStore{}
	st.add(attempt("caption", "", 85, map[string]float64{"temperature": 0.7}))
	st.add(attempt("caption", "", 90, map[string]float64{"temperature": 0.9}))

	a := New(st, DefaultConfig())
	ctx := context.Background()
	scope := model.TypeScope("caption")

	first, err := a.Analyze(ctx, scope, 0)
	require.NoError(t, err)
	require.Equal(t, 1, st.queries())

	// No new data: the probe sees no growth and the cached spot is reused.
	second, err := a.Analyze(ctx, scope, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, st.queries())
	assert.Same(t, first, second)
}

func TestAnalyzeRecomputesOnGrowth(t *testing.T) {
	st := &stubStore{}
	st.add(attempt("caption", "", 85, map[string]float64{"temperature": 0.7}))

	a := New(st, DefaultConfig())
	ctx := context.Background()
	scope := model.TypeScope("caption")

	spot, err := a.Analyze(ctx, scope, 0)
	require.NoError(t, err)
	require.Equal(t, 1, spot.SampleCount)

	st.add(attempt("caption", "", 92, map[string]float64{"temperature": 0.9}))

	spot, err = a.Analyze(ctx, scope, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, spot.SampleCount)
	assert.Equal(t, 2, st.queries())
}

func TestAnalyzeRecomputesAfterTTL(t *testing.T) {
	st := &stubStore{}
	st.add(attempt("caption", "", 85, map[string]float64{"temperature": 0.7}))

	cfg := DefaultConfig()
	cfg.CacheTTL = time.Nanosecond
	a := New(st, cfg)
	ctx := context.Background()
	scope := model.TypeScope("caption")

	_, err := a.Analyze(ctx, scope, 0)
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	_, err = a.Analyze(ctx, scope, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, st.queries())
}

func TestAnalyzeCacheKeyedByThreshold(t *testing.T) {
	st := &stubStore{}
	st.add(attempt("caption", "", 95, map[string]float64{"temperature": 0.7}))
	st.add(attempt("caption", "", 85, map[string]float64{"temperature": 1.5}))

	a := New(st, DefaultConfig())
	ctx := context.Background()
	scope := model.TypeScope("caption")

	loose, err := a.Analyze(ctx, scope, 80)
	require.NoError(t, err)
	strict, err := a.Analyze(ctx, scope, 90)
	require.NoError(t, err)

	assert.Equal(t, 2, loose.SampleCount)
	assert.Equal(t, 1, strict.SampleCount)
	assert.Equal(t, 2, st.queries())
}

func TestInvalidateForcesRecompute(t *testing.T) {
	st := &stubStore{}
	st.add(attempt("caption", "", 85, map[string]float64{"temperature": 0.7}))

	a := New(st, DefaultConfig())
	ctx := context.Background()
	scope := model.TypeScope("caption")

	_, err := a.Analyze(ctx, scope, 0)
	require.NoError(t, err)
	require.Equal(t, 1, st.queries())

	a.Invalidate(scope)

	_, err = a.Analyze(ctx, scope, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, st.queries())
}

func TestWarmAll(t *testing.T) {
	st := &stubStore{}
	st.add(attempt("caption", "", 85, map[string]float64{"temperature": 0.7}))

	a := New(st, DefaultConfig())
	ctx := context.Background()

	// Warming a scope without data must not fail the pass.
	scopes := []model.Scope{
		model.TypeScope("caption"),
		model.TypeScope("blog_post"),
		model.GlobalScope(),
	}
	require.NoError(t, a.WarmAll(ctx, scopes))

	before := st.queries()
	_, err := a.Analyze(ctx, model.TypeScope("caption"), 0)
	require.NoError(t, err)
	assert.Equal(t, before, st.queries())
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	assert.InDelta(t, 80.0, cfg.SuccessThreshold, 0.001)
	assert.Equal(t, 1, cfg.MinSamples)
	assert.Equal(t, 30, cfg.HighTier)
	assert.Equal(t, 10, cfg.MediumTier)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 1, cfg.RecomputeDelta)
	assert.False(t, cfg.IncludeFailed)
}
