package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/forgepoint/gentuner/internal/scorer"
)

func TestPrintScoreResult(t *testing.T) {
	result := &scorer.Result{
		Composite: 88.5,
		Normalized: map[string]float64{
			"human_likeness": 92,
			"readability":    71,
		},
		EffectiveWeights: map[string]float64{
			"human_likeness": 0.857,
			"readability":    0.143,
		},
	}

	var buf bytes.Buffer
	printScoreResult(&buf, result)

	output := buf.String()
	assert.Contains(t, output, "Composite: 88.50 / 100")
	assert.Contains(t, output, "human_likeness")
	assert.Contains(t, output, "92.00")
	assert.Contains(t, output, "weight 0.857")
}

func TestSortedKeys(t *testing.T) {
	keys := sortedKeys(map[string]float64{"top_p": 1, "temperature": 2, "max_tokens": 3})
	assert.Equal(t, []string{"max_tokens", "temperature", "top_p"}, keys)
}
