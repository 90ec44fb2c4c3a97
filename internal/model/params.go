package model

import (
	"math"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// Canonical generation parameter names. Categorical choices are carried as
// integral-valued parameters (structure_variant) so the same range statistics
// apply to every knob.
const (
	ParamTemperature      = "temperature"
	ParamTopP             = "top_p"
	ParamFrequencyPenalty = "frequency_penalty"
	ParamPresencePenalty  = "presence_penalty"
	ParamMaxTokens        = "max_tokens"
	ParamMaxRevisions     = "max_revisions"
	ParamStructureVariant = "structure_variant"
)

// ParameterBounds limits a parameter to the range the generator accepts.
type ParameterBounds struct {
	Min      float64
	Max      float64
	Integral bool
}

// parameterBounds holds the hard limits per known parameter. Unknown
// parameters pass through unclamped; they are assumed to be experiment-local.
var parameterBounds = map[string]ParameterBounds{
	ParamTemperature:      {Min: 0, Max: 2},
	ParamTopP:             {Min: 0.01, Max: 1},
	ParamFrequencyPenalty: {Min: -2, Max: 2},
	ParamPresencePenalty:  {Min: -2, Max: 2},
	ParamMaxTokens:        {Min: 64, Max: 8192, Integral: true},
	ParamMaxRevisions:     {Min: 1, Max: 6, Integral: true},
	ParamStructureVariant: {Min: 0, Max: 5, Integral: true},
}

// RequiredParameters are the knobs every computed parameter set must carry.
// A recommendation that cannot produce them is a hard error, not a silent
// partial config.
var RequiredParameters = []string{ParamTemperature, ParamTopP, ParamMaxTokens}

// BoundsFor returns the bounds for a known parameter.
func BoundsFor(name string) (ParameterBounds, bool) {
	b, ok := parameterBounds[name]
	return b, ok
}

// ParameterSet is a complete set of generation parameters ready to hand to
// the generator.
type ParameterSet map[string]float64

// Clamp snaps every known parameter into its bounds and rounds integral
// parameters to whole values. Unknown parameters are left as-is.
func (p ParameterSet) Clamp() {
	for name, v := range p {
		b, ok := parameterBounds[name]
		if !ok {
			continue
		}
		v = math.Max(b.Min, math.Min(b.Max, v))
		if b.Integral {
			v = math.Round(v)
		}
		p[name] = v
	}
}

// Validate checks that every required parameter is present and every known
// parameter sits inside its bounds.
func (p ParameterSet) Validate() error {
	var errs []string

	for _, name := range RequiredParameters {
		if _, ok := p[name]; !ok {
			errs = append(errs, "missing required parameter "+name)
		}
	}
	for name, v := range p {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			errs = append(errs, "parameter "+name+" is not finite")
			continue
		}
		b, ok := parameterBounds[name]
		if !ok {
			continue
		}
		if v < b.Min || v > b.Max {
			errs = append(errs, "parameter "+name+" out of bounds")
		}
		if b.Integral && v != math.Trunc(v) {
			errs = append(errs, "parameter "+name+" must be integral")
		}
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return eris.Errorf("model: invalid parameter set: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Names returns the parameter names in sorted order for stable output.
func (p ParameterSet) Names() []string {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
