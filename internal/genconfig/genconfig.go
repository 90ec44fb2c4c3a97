// Package genconfig turns a sweet-spot recommendation plus request context
// into the concrete parameter set handed to the generator.
package genconfig

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/forgepoint/gentuner/internal/model"
	"github.com/forgepoint/gentuner/internal/recommend"
)

var validate = validator.New()

// Selection strategies for drawing a value out of a mined parameter range.
const (
	SelectMedian  = "median"
	SelectExplore = "explore"
)

// Policy controls how the calculator picks values inside a recommendation.
type Policy struct {
	// Selection is "median" (take the recommended operating point) or
	// "explore" (sample uniformly inside the mined range). Defaults to
	// median.
	Selection string `yaml:"selection" mapstructure:"selection"`
	// Seed fixes the explore sampler for reproducible runs. Zero seeds
	// from the clock.
	Seed uint64 `yaml:"seed" mapstructure:"seed"`
}

// Resolver is the slice of the recommendation resolver the calculator needs.
type Resolver interface {
	Resolve(ctx context.Context, componentType, itemKey string) (*model.SweetSpot, error)
}

var _ Resolver = (*recommend.Resolver)(nil)

// Request describes one upcoming generation.
type Request struct {
	ComponentType string `json:"component_type" validate:"required"`
	ItemKey       string `json:"item_key,omitempty"`
	// LengthHint is the expected word count of the finished piece. Zero
	// means no hint.
	LengthHint int `json:"length_hint,omitempty" validate:"omitempty,min=0,max=100000"`
	// Locale is a BCP 47 tag such as "en-GB" or "de".
	Locale string `json:"locale,omitempty" validate:"omitempty,bcp47_language_tag"`
}

// Plan parameter sources.
const (
	SourceLearned  = "learned"
	SourceDefaults = "defaults"
)

// Plan is a computed parameter assignment plus where it came from.
type Plan struct {
	Parameters model.ParameterSet `json:"parameters"`
	// Source is "learned" when a mined recommendation seeded the plan and
	// "defaults" when only the static table did.
	Source      string           `json:"source"`
	Scope       string           `json:"scope,omitempty"`
	Confidence  model.Confidence `json:"confidence,omitempty"`
	SampleCount int              `json:"sample_count,omitempty"`
}

// Calculator computes generation parameters from learned history where it
// exists and static defaults where it does not.
type Calculator struct {
	resolver Resolver
	defaults Table
	policy   Policy

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a Calculator. An empty policy selection means median.
func New(resolver Resolver, defaults Table, policy Policy) (*Calculator, error) {
	if policy.Selection == "" {
		policy.Selection = SelectMedian
	}
	if policy.Selection != SelectMedian && policy.Selection != SelectExplore {
		return nil, eris.Errorf("genconfig: unknown selection policy %q", policy.Selection)
	}
	seed := policy.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Calculator{
		resolver: resolver,
		defaults: defaults,
		policy:   policy,
		rng:      rand.New(rand.NewPCG(seed, seed)),
	}, nil
}

// Defaults exposes the static table, for status displays.
func (c *Calculator) Defaults() Table {
	return c.defaults
}

// Compute resolves the best available recommendation for the request and
// folds in the deterministic length and locale adjustments. When no prior
// knowledge exists anywhere on the widening path it falls back to the static
// defaults table rather than failing. The result always carries every
// required parameter, clamped to model bounds.
func (c *Calculator) Compute(ctx context.Context, req Request) (model.ParameterSet, error) {
	plan, err := c.ComputePlan(ctx, req)
	if err != nil {
		return nil, err
	}
	return plan.Parameters, nil
}

// ComputePlan is Compute plus provenance: which source seeded the plan and,
// for learned plans, the resolved scope and its backing statistics.
func (c *Calculator) ComputePlan(ctx context.Context, req Request) (*Plan, error) {
	if err := validate.Struct(req); err != nil {
		return nil, eris.Wrap(err, "genconfig: invalid request")
	}

	// Static defaults first; mined parameters overwrite them so anything
	// history has not covered keeps a sane value.
	params := c.defaults.For(req.ComponentType)
	plan := &Plan{Source: SourceDefaults}

	spot, err := c.resolver.Resolve(ctx, req.ComponentType, req.ItemKey)
	switch {
	case err == nil:
		for name, r := range spot.ParameterRanges {
			params[name] = c.pick(r)
		}
		plan.Source = SourceLearned
		plan.Scope = spot.Scope.String()
		plan.Confidence = spot.Confidence
		plan.SampleCount = spot.SampleCount
		zap.L().Debug("computed parameters from learned history",
			zap.String("component_type", req.ComponentType),
			zap.String("item_key", req.ItemKey),
			zap.String("scope", spot.Scope.String()),
			zap.String("confidence", string(spot.Confidence)),
			zap.Int("samples", spot.SampleCount))
	case eris.Is(err, recommend.ErrNoPriorKnowledge):
		zap.L().Info("operating without learned priors",
			zap.String("component_type", req.ComponentType),
			zap.String("item_key", req.ItemKey))
	default:
		return nil, eris.Wrap(err, "genconfig: resolve recommendation")
	}

	applyLengthHint(params, req.LengthHint)
	applyLocale(params, req.Locale)

	params.Clamp()
	if err := params.Validate(); err != nil {
		return nil, eris.Wrap(err, "genconfig: computed parameters")
	}
	plan.Parameters = params
	return plan, nil
}

// pick draws one value from a mined range according to the policy.
func (c *Calculator) pick(r model.ParameterRange) float64 {
	if c.policy.Selection == SelectExplore && r.Max > r.Min {
		c.mu.Lock()
		defer c.mu.Unlock()
		return r.Min + c.rng.Float64()*(r.Max-r.Min)
	}
	return r.Median
}

// applyLengthHint widens the token budget and revision cap for longer
// targets. The hint is the expected word count of the finished piece.
func applyLengthHint(params model.ParameterSet, hint int) {
	if hint <= 0 {
		return
	}
	// Roughly 1.5 tokens per word, with headroom left to the clamp.
	budget := math.Ceil(float64(hint) * 1.5)
	if budget > params[model.ParamMaxTokens] {
		params[model.ParamMaxTokens] = budget
	}
	switch {
	case hint >= 1500:
		params[model.ParamMaxRevisions] += 2
	case hint >= 600:
		params[model.ParamMaxRevisions]++
	}
}

// localeOffsets holds fixed per-locale nudges to the expressiveness
// parameters. The matcher resolves regional variants to the nearest entry;
// locales outside the table leave the parameters untouched.
var localeOffsets = []struct {
	tag         language.Tag
	temperature float64
	presence    float64
}{
	{tag: language.English},
	{tag: language.BritishEnglish, temperature: -0.05},
	{tag: language.German, temperature: -0.10, presence: -0.05},
	{tag: language.French, temperature: 0.05, presence: 0.05},
	{tag: language.Spanish, temperature: 0.10, presence: 0.05},
	{tag: language.Italian, temperature: 0.10, presence: 0.05},
	{tag: language.Japanese, temperature: -0.15, presence: -0.10},
}

var localeMatcher = language.NewMatcher(func() []language.Tag {
	tags := make([]language.Tag, len(localeOffsets))
	for i, entry := range localeOffsets {
		tags[i] = entry.tag
	}
	return tags
}())

func applyLocale(params model.ParameterSet, locale string) {
	if locale == "" {
		return
	}
	tag, err := language.Parse(locale)
	if err != nil {
		zap.L().Warn("unrecognized locale, skipping offsets", zap.String("locale", locale))
		return
	}
	_, idx, conf := localeMatcher.Match(tag)
	if conf == language.No {
		return
	}
	params[model.ParamTemperature] += localeOffsets[idx].temperature
	params[model.ParamPresencePenalty] += localeOffsets[idx].presence
}
