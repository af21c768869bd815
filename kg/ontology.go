package kg

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Label is an entity label declared by an ontology. A bare label has no
// description.
type Label struct {
	Name        string
	Description string
}

// MarshalJSON encodes a bare label as a string and a described label as a
// one-key object {"<name>": "<description>"}.
func (l Label) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.value())
}

// UnmarshalJSON accepts both encodings produced by MarshalJSON.
func (l *Label) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*l = Label{Name: name}
		return nil
	}

	var described map[string]string
	if err := json.Unmarshal(data, &described); err != nil {
		return fmt.Errorf("label must be a string or a single-key object: %w", err)
	}
	if len(described) != 1 {
		return fmt.Errorf("label object must have exactly one key, got %d", len(described))
	}
	for name, desc := range described {
		*l = Label{Name: name, Description: desc}
	}
	return nil
}

// MarshalYAML mirrors MarshalJSON for YAML config files.
func (l Label) MarshalYAML() (any, error) {
	return l.value(), nil
}

// UnmarshalYAML accepts a scalar or a single-key mapping.
func (l *Label) UnmarshalYAML(unmarshal func(any) error) error {
	var name string
	if err := unmarshal(&name); err == nil {
		*l = Label{Name: name}
		return nil
	}
	var described map[string]string
	if err := unmarshal(&described); err != nil {
		return err
	}
	if len(described) != 1 {
		return fmt.Errorf("label mapping must have exactly one key, got %d", len(described))
	}
	for name, desc := range described {
		*l = Label{Name: name, Description: desc}
	}
	return nil
}

func (l Label) value() any {
	if l.Description == "" {
		return l.Name
	}
	return map[string]string{l.Name: l.Description}
}

// Ontology is the extraction schema: the entity labels and relationship types
// the extraction service should use. An Ontology is a value; the edit helpers
// return a modified copy and never touch the receiver.
type Ontology struct {
	labels        []Label
	relationships []string
}

// NewOntology copies labels and relationships into a new Ontology.
func NewOntology(labels []Label, relationships []string) Ontology {
	return Ontology{
		labels:        slices.Clone(labels),
		relationships: slices.Clone(relationships),
	}
}

// BareLabels is a convenience for ontologies whose labels carry no
// description.
func BareLabels(names ...string) []Label {
	labels := make([]Label, len(names))
	for i, n := range names {
		labels[i] = Label{Name: n}
	}
	return labels
}

// Labels returns a copy of the declared labels.
func (o Ontology) Labels() []Label { return slices.Clone(o.labels) }

// Relationships returns a copy of the declared relationship types.
func (o Ontology) Relationships() []string { return slices.Clone(o.relationships) }

// HasLabel reports whether name is a declared label. An ontology without
// labels accepts every label.
func (o Ontology) HasLabel(name string) bool {
	if len(o.labels) == 0 {
		return true
	}
	return o.labelIndex(name) >= 0
}

func (o Ontology) labelIndex(name string) int {
	return slices.IndexFunc(o.labels, func(l Label) bool { return l.Name == name })
}

// WithLabel returns a copy with label appended, or replaced in place when a
// label of the same name already exists.
func (o Ontology) WithLabel(label Label) Ontology {
	out := NewOntology(o.labels, o.relationships)
	if i := out.labelIndex(label.Name); i >= 0 {
		out.labels[i] = label
		return out
	}
	out.labels = append(out.labels, label)
	return out
}

// WithoutLabel returns a copy without the named label.
func (o Ontology) WithoutLabel(name string) Ontology {
	out := NewOntology(o.labels, o.relationships)
	out.labels = slices.DeleteFunc(out.labels, func(l Label) bool { return l.Name == name })
	return out
}

// WithRelationship returns a copy with rel appended unless already present.
func (o Ontology) WithRelationship(rel string) Ontology {
	out := NewOntology(o.labels, o.relationships)
	if !slices.Contains(out.relationships, rel) {
		out.relationships = append(out.relationships, rel)
	}
	return out
}

// WithoutRelationship returns a copy without rel.
func (o Ontology) WithoutRelationship(rel string) Ontology {
	out := NewOntology(o.labels, o.relationships)
	out.relationships = slices.DeleteFunc(out.relationships, func(r string) bool { return r == rel })
	return out
}

// Serialize returns the plain mapping used in prompts. "labels" is always
// present; "relationships" only when at least one is declared, so the prompt
// does not imply a constraint that does not exist.
func (o Ontology) Serialize() map[string]any {
	labels := make([]any, len(o.labels))
	for i, l := range o.labels {
		labels[i] = l.value()
	}
	m := map[string]any{"labels": labels}
	if len(o.relationships) > 0 {
		m["relationships"] = slices.Clone(o.relationships)
	}
	return m
}

// PromptString renders Serialize as compact JSON.
func (o Ontology) PromptString() string {
	data, err := json.Marshal(o.Serialize())
	if err != nil {
		// Only strings are serialized; this cannot fail.
		return "{}"
	}
	return string(data)
}

type ontologyJSON struct {
	Labels        []Label  `json:"labels" yaml:"labels"`
	Relationships []string `json:"relationships" yaml:"relationships"`
}

// MarshalJSON stores both fields, including an empty relationship list, so a
// stored ontology round-trips exactly.
func (o Ontology) MarshalJSON() ([]byte, error) {
	labels := o.labels
	if labels == nil {
		labels = []Label{}
	}
	rels := o.relationships
	if rels == nil {
		rels = []string{}
	}
	return json.Marshal(ontologyJSON{Labels: labels, Relationships: rels})
}

// UnmarshalJSON decodes the form written by MarshalJSON.
func (o *Ontology) UnmarshalJSON(data []byte) error {
	var raw ontologyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*o = NewOntology(raw.Labels, raw.Relationships)
	return nil
}

// UnmarshalYAML decodes {labels: [...], relationships: [...]}.
func (o *Ontology) UnmarshalYAML(unmarshal func(any) error) error {
	var raw ontologyJSON
	if err := unmarshal(&raw); err != nil {
		return err
	}
	*o = NewOntology(raw.Labels, raw.Relationships)
	return nil
}

// MarshalYAML encodes the same shape as MarshalJSON.
func (o Ontology) MarshalYAML() (any, error) {
	return ontologyJSON{Labels: o.Labels(), Relationships: o.Relationships()}, nil
}
