package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParameterSetClamp(t *testing.T) {
	t.Parallel()

	p := ParameterSet{
		ParamTemperature:      2.7,
		ParamTopP:             0,
		ParamMaxTokens:        511.6,
		ParamStructureVariant: 2.4,
		"experiment_knob":     99.9,
	}
	p.Clamp()

	assert.InDelta(t, 2.0, p[ParamTemperature], 1e-9)
	assert.InDelta(t, 0.01, p[ParamTopP], 1e-9)
	assert.InDelta(t, 512, p[ParamMaxTokens], 1e-9)
	assert.InDelta(t, 2, p[ParamStructureVariant], 1e-9)
	// Unknown parameters pass through untouched.
	assert.InDelta(t, 99.9, p["experiment_knob"], 1e-9)
}

func TestParameterSetValidate(t *testing.T) {
	t.Parallel()

	t.Run("complete set passes", func(t *testing.T) {
		t.Parallel()
		p := ParameterSet{
			ParamTemperature: 0.8,
			ParamTopP:        0.95,
			ParamMaxTokens:   400,
		}
		require.NoError(t, p.Validate())
	})

	t.Run("missing required parameter", func(t *testing.T) {
		t.Parallel()
		p := ParameterSet{ParamTemperature: 0.8, ParamTopP: 0.95}
		err := p.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), ParamMaxTokens)
	})

	t.Run("out of bounds", func(t *testing.T) {
		t.Parallel()
		p := ParameterSet{
			ParamTemperature: 3.5,
			ParamTopP:        0.95,
			ParamMaxTokens:   400,
		}
		err := p.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "out of bounds")
	})

	t.Run("fractional integral parameter", func(t *testing.T) {
		t.Parallel()
		p := ParameterSet{
			ParamTemperature: 0.8,
			ParamTopP:        0.95,
			ParamMaxTokens:   400.5,
		}
		err := p.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "integral")
	})
}

func TestParameterSetNames(t *testing.T) {
	t.Parallel()

	p := ParameterSet{ParamTopP: 0.9, ParamTemperature: 0.7, ParamMaxTokens: 300}
	assert.Equal(t, []string{ParamMaxTokens, ParamTemperature, ParamTopP}, p.Names())
}

func TestBoundsFor(t *testing.T) {
	t.Parallel()

	b, ok := BoundsFor(ParamMaxRevisions)
	require.True(t, ok)
	assert.True(t, b.Integral)
	assert.InDelta(t, 1, b.Min, 1e-9)
	assert.InDelta(t, 6, b.Max, 1e-9)

	_, ok = BoundsFor("nonexistent")
	assert.False(t, ok)
}
