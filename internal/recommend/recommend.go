// Package recommend resolves the best available sweet spot for a generation
// request by widening from item history to component-type history to the
// global corpus. The widening order lives here and nowhere else.
package recommend

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/forgepoint/gentuner/internal/model"
	"github.com/forgepoint/gentuner/internal/sweetspot"
)

// ErrNoPriorKnowledge indicates no scope on the widening path had enough
// history to recommend from. Callers fall back to static defaults.
var ErrNoPriorKnowledge = eris.New("no prior knowledge")

// Analyzer is the slice of the sweet-spot analyzer the resolver needs.
type Analyzer interface {
	Analyze(ctx context.Context, scope model.Scope, threshold float64) (*model.SweetSpot, error)
}

var _ Analyzer = (*sweetspot.Analyzer)(nil)

// Resolver picks the most specific sweet spot available for a request.
type Resolver struct {
	analyzer  Analyzer
	threshold float64
}

// New creates a Resolver. A threshold <= 0 defers to the analyzer default.
func New(analyzer Analyzer, threshold float64) *Resolver {
	return &Resolver{analyzer: analyzer, threshold: threshold}
}

// WideningScopes returns the fallback path for a request, most specific
// first: item, component type, then global. The item step drops out when no
// item key is given, and a global component type collapses to one lookup.
func WideningScopes(componentType, itemKey string) []model.Scope {
	scopes := make([]model.Scope, 0, 3)
	typeScope := model.TypeScope(componentType)
	if !typeScope.IsGlobal() {
		if itemKey != "" {
			scopes = append(scopes, model.ItemScope(componentType, itemKey))
		}
		scopes = append(scopes, typeScope)
	}
	return append(scopes, model.GlobalScope())
}

// Resolve returns the sweet spot from the most specific scope that has
// enough history, or ErrNoPriorKnowledge when the whole path comes up
// empty. At most three analyzer lookups are made.
func (r *Resolver) Resolve(ctx context.Context, componentType, itemKey string) (*model.SweetSpot, error) {
	if componentType == "" {
		return nil, eris.New("recommend: component type required")
	}

	for _, scope := range WideningScopes(componentType, itemKey) {
		spot, err := r.analyzer.Analyze(ctx, scope, r.threshold)
		if err == nil {
			zap.L().Debug("resolved recommendation",
				zap.String("component_type", componentType),
				zap.String("item_key", itemKey),
				zap.String("scope", scope.String()),
				zap.String("confidence", string(spot.Confidence)))
			return spot, nil
		}
		if !eris.Is(err, sweetspot.ErrNotEnoughData) {
			return nil, eris.Wrapf(err, "recommend: analyze %s", scope)
		}
		zap.L().Debug("widening recommendation scope",
			zap.String("component_type", componentType),
			zap.String("item_key", itemKey),
			zap.String("exhausted", scope.String()))
	}

	return nil, eris.Wrapf(ErrNoPriorKnowledge,
		"component_type %s item %q", componentType, itemKey)
}
