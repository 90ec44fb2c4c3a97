package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// GlobalComponentType is the reserved component type for the corpus-wide
// scope. Attempt records must never be written under it; it exists only as
// the terminal fallback level for analysis and recommendations.
const GlobalComponentType = "global"

// Scope identifies the granularity at which attempts are grouped: a concrete
// item within a component type, the whole component type, or the global
// corpus.
type Scope struct {
	ComponentType string `json:"component_type"`
	ItemKey       string `json:"item_key,omitempty"`
}

// ItemScope returns the scope for a single item within a component type.
func ItemScope(componentType, itemKey string) Scope {
	return Scope{ComponentType: componentType, ItemKey: itemKey}
}

// TypeScope returns the scope covering every item of a component type.
func TypeScope(componentType string) Scope {
	return Scope{ComponentType: componentType}
}

// GlobalScope returns the reserved corpus-wide scope.
func GlobalScope() Scope {
	return Scope{ComponentType: GlobalComponentType}
}

// IsGlobal reports whether the scope is the reserved corpus-wide scope.
func (s Scope) IsGlobal() bool {
	return s.ComponentType == GlobalComponentType
}

// IsItem reports whether the scope names a concrete item.
func (s Scope) IsItem() bool {
	return s.ItemKey != ""
}

// String renders the scope as "component_type" or "component_type/item_key".
func (s Scope) String() string {
	if s.ItemKey == "" {
		return s.ComponentType
	}
	return s.ComponentType + "/" + s.ItemKey
}

// ParseScope parses "component_type" or "component_type/item_key" as produced
// by Scope.String. Used by the CLI flags and API paths.
func ParseScope(raw string) (Scope, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Scope{}, eris.New("model: empty scope")
	}
	parts := strings.SplitN(raw, "/", 2)
	s := Scope{ComponentType: strings.TrimSpace(parts[0])}
	if len(parts) == 2 {
		s.ItemKey = strings.TrimSpace(parts[1])
	}
	if s.ComponentType == "" {
		return Scope{}, eris.Errorf("model: malformed scope %q", raw)
	}
	if s.IsGlobal() && s.ItemKey != "" {
		return Scope{}, eris.Errorf("model: global scope cannot carry an item key: %q", raw)
	}
	return s, nil
}
