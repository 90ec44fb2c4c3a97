package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/forgepoint/gentuner/internal/model"
)

// ErrNotFound marks lookups and archives that matched no attempt.
var ErrNotFound = eris.New("attempt not found")

// AttemptFilter selects attempt records for Query and Count.
//
// Scope narrows by the widening rule: an item scope matches only its exact
// (component_type, item_key) pair, a component-type scope matches every
// attempt of that type whatever its item, and the global scope (or the zero
// value) matches the whole corpus.
type AttemptFilter struct {
	Scope           model.Scope `json:"scope,omitempty"`
	SuccessOnly     bool        `json:"success_only,omitempty"`
	MinScore        float64     `json:"min_score,omitempty"`
	Since           time.Time   `json:"since,omitempty"`
	IncludeArchived bool        `json:"include_archived,omitempty"`
	Limit           int         `json:"limit,omitempty"`
	Offset          int         `json:"offset,omitempty"`
}

// Store is the append-only persistence boundary for generation attempts.
//
// Append validates, stamps and inserts one record, returning the
// store-assigned monotonically increasing id; appending the same payload
// twice yields two records with distinct ids. Archive flips the soft-delete
// flag and is the only mutation permitted after insert. Query returns
// records newest-first. Get and Archive report misses as ErrNotFound.
type Store interface {
	Append(ctx context.Context, rec *model.AttemptRecord) (int64, error)
	AppendBulk(ctx context.Context, recs []model.AttemptRecord) (int64, error)
	Get(ctx context.Context, id int64) (*model.AttemptRecord, error)
	Query(ctx context.Context, filter AttemptFilter) ([]model.AttemptRecord, error)
	Count(ctx context.Context, filter AttemptFilter) (int, error)
	Archive(ctx context.Context, id int64) error

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
