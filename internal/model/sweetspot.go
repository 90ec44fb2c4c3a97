package model

import "time"

// Confidence grades how much history backs a sweet spot.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ParameterRange is the observed spread of one parameter across qualifying
// attempts: the band that produced acceptable output, with the median as the
// recommended operating point.
type ParameterRange struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Median float64 `json:"median"`
}

// SweetSpot is the mined parameter profile for one scope: per-parameter
// ranges plus the sample statistics that back them.
type SweetSpot struct {
	Scope           Scope                     `json:"scope"`
	ParameterRanges map[string]ParameterRange `json:"parameter_ranges"`
	SampleCount     int                       `json:"sample_count"`
	MaxScore        float64                   `json:"max_score"`
	AvgScore        float64                   `json:"avg_score"`
	Confidence      Confidence                `json:"confidence"`
	LastUpdated     time.Time                 `json:"last_updated"`
}
