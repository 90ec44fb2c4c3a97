package model

import (
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// ErrInvalidAttempt marks an attempt record that violates the store's
// invariants. Callers detect it with errors.Is; the wrapped message carries
// the field-level detail.
var ErrInvalidAttempt = eris.New("invalid attempt record")

// AttemptRecord is one generation attempt: the parameters the generator used
// and the quality outcome it produced. Records are append-only; Archived is
// the only field that ever changes after insert.
type AttemptRecord struct {
	ID             int64              `json:"id"`
	UID            string             `json:"uid"`
	ComponentType  string             `json:"component_type"`
	ItemKey        string             `json:"item_key,omitempty"`
	Parameters     map[string]float64 `json:"parameters"`
	RawSignals     map[string]float64 `json:"raw_signals"`
	CompositeScore float64            `json:"composite_score"`
	Success        bool               `json:"success"`
	Archived       bool               `json:"archived,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
}

// Scope returns the scope this attempt was recorded under.
func (a *AttemptRecord) Scope() Scope {
	return Scope{ComponentType: a.ComponentType, ItemKey: a.ItemKey}
}

// Validate checks the record invariants before it is persisted. Violations
// are collected and returned as a single ErrInvalidAttempt.
func (a *AttemptRecord) Validate() error {
	var errs []string

	if strings.TrimSpace(a.ComponentType) == "" {
		errs = append(errs, "component_type is required")
	}
	if a.ComponentType == GlobalComponentType {
		errs = append(errs, "component_type 'global' is reserved")
	}
	if len(a.Parameters) == 0 {
		errs = append(errs, "parameters must not be empty")
	}
	for name, v := range a.Parameters {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			errs = append(errs, "parameter "+name+" is not finite")
		}
	}
	if len(a.RawSignals) == 0 {
		errs = append(errs, "raw_signals must not be empty")
	}
	for name, v := range a.RawSignals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			errs = append(errs, "raw signal "+name+" is not finite")
		}
	}
	if a.CompositeScore < 0 || a.CompositeScore > 100 {
		errs = append(errs, "composite_score must be within [0,100]")
	}
	if math.IsNaN(a.CompositeScore) {
		errs = append(errs, "composite_score is not finite")
	}

	if len(errs) > 0 {
		return eris.Wrapf(ErrInvalidAttempt, "%s", strings.Join(errs, "; "))
	}
	return nil
}
