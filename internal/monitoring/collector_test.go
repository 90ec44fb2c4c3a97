package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgepoint/gentuner/internal/model"
	"github.com/forgepoint/gentuner/internal/store"
)

// stubStore implements store.Store for testing.
type stubStore struct {
	recs     []model.AttemptRecord
	queryErr error
}

func (s *stubStore) Query(_ context.Context, filter store.AttemptFilter) ([]model.AttemptRecord, error) {
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	var filtered []model.AttemptRecord
	for _, r := range s.recs {
		if !filter.Since.IsZero() && r.CreatedAt.Before(filter.Since) {
			continue
		}
		if r.Archived && !filter.IncludeArchived {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered, nil
}

func (s *stubStore) Count(ctx context.Context, filter store.AttemptFilter) (int, error) {
	recs, err := s.Query(ctx, filter)
	return len(recs), err
}

// Unused store methods, satisfy the interface.
func (s *stubStore) Append(context.Context, *model.AttemptRecord) (int64, error) { return 0, nil }
func (s *stubStore) AppendBulk(context.Context, []model.AttemptRecord) (int64, error) {
	return 0, nil
}
func (s *stubStore) Get(context.Context, int64) (*model.AttemptRecord, error) { return nil, nil }
func (s *stubStore) Archive(context.Context, int64) error                     { return nil }
func (s *stubStore) Ping(context.Context) error                               { return nil }
func (s *stubStore) Migrate(context.Context) error                            { return nil }
func (s *stubStore) Close() error                                             { return nil }

var _ store.Store = (*stubStore)(nil)

func rec(componentType string, score float64, success bool, age time.Duration) model.AttemptRecord {
	return model.AttemptRecord{
		ComponentType:  componentType,
		Parameters:     map[string]float64{model.ParamTemperature: 0.8},
		RawSignals:     map[string]float64{"human_likeness": 0.9},
		CompositeScore: score,
		Success:        success,
		CreatedAt:      time.Now().UTC().Add(-age),
	}
}

func TestCollector_Collect(t *testing.T) {
	st := &stubStore{recs: []model.AttemptRecord{
		rec("caption", 90, true, time.Hour),
		rec("caption", 70, true, 2*time.Hour),
		rec("blog_post", 40.5, false, 3*time.Hour),
		rec("blog_post", 85, true, 4*time.Hour),
	}}

	c := NewCollector(st)
	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 4, snap.AttemptsTotal)
	assert.Equal(t, 3, snap.AttemptsSuccess)
	assert.Equal(t, 1, snap.AttemptsFailed)
	assert.InDelta(t, 0.25, snap.FailRate, 1e-9)
	assert.InDelta(t, 71.38, snap.AvgScore, 1e-9) // (90+70+40.5+85)/4 rounded
	assert.InDelta(t, 90, snap.MaxScore, 1e-9)
	assert.Equal(t, map[string]int{"caption": 2, "blog_post": 2}, snap.ByComponentType)
	assert.Equal(t, 24, snap.LookbackHours)
	assert.False(t, snap.CollectedAt.IsZero())
}

func TestCollector_CollectRespectsLookback(t *testing.T) {
	st := &stubStore{recs: []model.AttemptRecord{
		rec("caption", 90, true, time.Hour),
		rec("caption", 10, false, 48*time.Hour),
	}}

	c := NewCollector(st)
	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 1, snap.AttemptsTotal)
	assert.Equal(t, 0, snap.AttemptsFailed)
	assert.InDelta(t, 90, snap.AvgScore, 1e-9)
}

func TestCollector_CollectExcludesArchived(t *testing.T) {
	archived := rec("caption", 20, false, time.Hour)
	archived.Archived = true

	st := &stubStore{recs: []model.AttemptRecord{
		rec("caption", 90, true, time.Hour),
		archived,
	}}

	c := NewCollector(st)
	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 1, snap.AttemptsTotal)
	assert.Equal(t, 1, snap.AttemptsArchived)
	assert.InDelta(t, 0, snap.FailRate, 1e-9)
}

func TestCollector_CollectEmpty(t *testing.T) {
	c := NewCollector(&stubStore{})
	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 0, snap.AttemptsTotal)
	assert.InDelta(t, 0, snap.FailRate, 1e-9)
	assert.InDelta(t, 0, snap.AvgScore, 1e-9)
	assert.Empty(t, snap.ByComponentType)
}

func TestCollector_CollectQueryError(t *testing.T) {
	c := NewCollector(&stubStore{queryErr: eris.New("disk gone")})
	snap, err := c.Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Nil(t, snap)
	assert.Contains(t, err.Error(), "query attempts")
}
