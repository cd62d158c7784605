package arch

import (
	"fmt"
	"time"
)

// Component is a single service identified in the diagram.
type Component struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	ServiceType string         `json:"service_type"`
	Category    string         `json:"category,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`
	Location    string         `json:"location,omitempty"`
	Confidence  float64        `json:"confidence,omitempty"`
}

// Clone returns a deep copy of the component.
func (c Component) Clone() Component {
	clone := c
	if len(c.Properties) > 0 {
		clone.Properties = make(map[string]any, len(c.Properties))
		for key, value := range c.Properties {
			clone.Properties[key] = value
		}
	}
	return clone
}

// Relationship is a directed connection between two components, referenced by
// component name as the analysis capability reports them.
type Relationship struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Kind   string `json:"kind,omitempty"`
}

// Metadata carries run-scoped facts about how the architecture was produced.
type Metadata struct {
	Environment     string    `json:"environment"`
	GeneratedAt     time.Time `json:"generated_at"`
	TotalComponents int       `json:"total_components"`
	AccuracyScore   float64   `json:"accuracy_score,omitempty"`
	// FixesApplied lists human-readable descriptions of compliance fixes
	// that mutated this architecture after analysis.
	FixesApplied []string `json:"fixes_applied,omitempty"`
}

// Architecture is the structured description produced by the analysis stage
// and consumed by every stage after it.
type Architecture struct {
	Components    []Component    `json:"components"`
	Relationships []Relationship `json:"relationships,omitempty"`
	Metadata      Metadata       `json:"metadata"`
}

// Clone returns a deep copy so cached architectures are never mutated in
// place. Compliance fixes operate on a clone and replace the whole value.
func (a Architecture) Clone() Architecture {
	clone := Architecture{Metadata: a.Metadata}
	if len(a.Components) > 0 {
		clone.Components = make([]Component, len(a.Components))
		for i, comp := range a.Components {
			clone.Components[i] = comp.Clone()
		}
	}
	if len(a.Relationships) > 0 {
		clone.Relationships = make([]Relationship, len(a.Relationships))
		copy(clone.Relationships, a.Relationships)
	}
	if len(a.Metadata.FixesApplied) > 0 {
		clone.Metadata.FixesApplied = make([]string, len(a.Metadata.FixesApplied))
		copy(clone.Metadata.FixesApplied, a.Metadata.FixesApplied)
	}
	return clone
}

// Validate ensures component IDs are present and unique.
func (a Architecture) Validate() error {
	seen := make(map[string]struct{}, len(a.Components))
	for idx, comp := range a.Components {
		if comp.ID == "" {
			return fmt.Errorf("arch: component[%d] %q is missing an id", idx, comp.Name)
		}
		if _, exists := seen[comp.ID]; exists {
			return fmt.Errorf("arch: duplicate component id %s", comp.ID)
		}
		seen[comp.ID] = struct{}{}
	}
	return nil
}

// Component retrieves a component by ID.
func (a Architecture) Component(id string) (Component, bool) {
	for _, comp := range a.Components {
		if comp.ID == id {
			return comp, true
		}
	}
	return Component{}, false
}

// ServiceTypes returns the set of distinct service types in the architecture.
func (a Architecture) ServiceTypes() []string {
	seen := make(map[string]struct{}, len(a.Components))
	out := make([]string, 0, len(a.Components))
	for _, comp := range a.Components {
		if _, ok := seen[comp.ServiceType]; ok {
			continue
		}
		seen[comp.ServiceType] = struct{}{}
		out = append(out, comp.ServiceType)
	}
	return out
}
