package scorer

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/forgepoint/gentuner/internal/config"
)

// Known signal names. Detectors report a subset of these per attempt.
const (
	SignalHumanLikeness     = "human_likeness"
	SignalSubjectiveQuality = "subjective_quality"
	SignalReadability       = "readability"
)

// AnchorSignal must be present on every scorable attempt. When other signals
// are absent their weight folds into it rather than silently shrinking the
// scale.
const AnchorSignal = SignalHumanLikeness

// ErrMissingAnchorSignal is returned when an attempt arrives without the
// anchor signal. There is no default value for it.
var ErrMissingAnchorSignal = eris.New("anchor signal missing")

// signalSpec describes one known signal: its native detector range and its
// configured share of the composite.
type signalSpec struct {
	name   string
	min    float64
	max    float64
	weight float64
	anchor bool
}

// Result is the composite score plus the per-signal breakdown that produced
// it, kept for transparency in API responses and reports.
type Result struct {
	Composite        float64            `json:"composite"`
	Normalized       map[string]float64 `json:"normalized"`
	EffectiveWeights map[string]float64 `json:"effective_weights"`
}

// Scorer computes composite quality scores from raw signal values.
type Scorer struct {
	// Slice order is the fixed redistribution order; two scorers built from
	// the same config fold absent weights identically.
	signals []signalSpec
}

// New builds a Scorer from validated config.
func New(cfg config.ScorerConfig) (*Scorer, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return &Scorer{
		signals: []signalSpec{
			{name: SignalHumanLikeness, min: 0, max: 1, weight: cfg.HumanLikenessWeight, anchor: true},
			{name: SignalSubjectiveQuality, min: 0, max: 10, weight: cfg.SubjectiveQualityWeight},
			{name: SignalReadability, min: 0, max: 100, weight: cfg.ReadabilityWeight},
		},
	}, nil
}

// SignalNames returns the known signal names in registry order.
func (s *Scorer) SignalNames() []string {
	names := make([]string, len(s.signals))
	for i, spec := range s.signals {
		names[i] = spec.name
	}
	return names
}

// Score folds the given raw signals into a composite on [0,100].
//
// Present signals are normalized from their native range onto 0-100. Weights
// of absent signals are added to the anchor's weight in registry order, so
// the effective weights always sum to 1.0. An attempt carrying only the
// anchor returns the anchor's normalized value unchanged.
func (s *Scorer) Score(raw map[string]float64) (*Result, error) {
	if len(raw) == 0 {
		return nil, eris.Wrap(ErrMissingAnchorSignal, "scorer: no signals present")
	}
	for name := range raw {
		if !s.knows(name) {
			return nil, eris.Errorf("scorer: unknown signal %q", name)
		}
	}
	if _, ok := raw[AnchorSignal]; !ok {
		return nil, eris.Wrapf(ErrMissingAnchorSignal, "scorer: attempt carries %d signal(s)", len(raw))
	}

	normalized := make(map[string]float64, len(raw))
	for _, spec := range s.signals {
		v, present := raw[spec.name]
		if !present {
			continue
		}
		if v < spec.min || v > spec.max || math.IsNaN(v) {
			return nil, eris.Errorf("scorer: signal %s value %v outside native range [%v,%v]",
				spec.name, v, spec.min, spec.max)
		}
		normalized[spec.name] = normalizeSignal(v, spec.min, spec.max)
	}

	// Anchor-only attempts return the normalized anchor directly; repeated
	// scoring must reproduce the stored value bit for bit.
	if len(normalized) == 1 {
		return &Result{
			Composite:        normalized[AnchorSignal],
			Normalized:       normalized,
			EffectiveWeights: map[string]float64{AnchorSignal: 1.0},
		}, nil
	}

	effective := make(map[string]float64, len(normalized))
	for _, spec := range s.signals {
		if _, present := normalized[spec.name]; present {
			effective[spec.name] = spec.weight
		}
	}
	for _, spec := range s.signals {
		if _, present := normalized[spec.name]; !present {
			effective[AnchorSignal] += spec.weight
		}
	}

	// Sum in registry order so identical inputs always produce the identical
	// float result.
	var total float64
	for _, spec := range s.signals {
		if nv, present := normalized[spec.name]; present {
			total += nv * effective[spec.name]
		}
	}
	total = math.Max(0, math.Min(100, total))

	return &Result{
		Composite:        math.Round(total*100) / 100, // 2 decimal places
		Normalized:       normalized,
		EffectiveWeights: effective,
	}, nil
}

func (s *Scorer) knows(name string) bool {
	for _, spec := range s.signals {
		if spec.name == name {
			return true
		}
	}
	return false
}

// normalizeSignal maps v from its native [min,max] range onto [0,100].
func normalizeSignal(v, min, max float64) float64 {
	return (v - min) / (max - min) * 100
}
