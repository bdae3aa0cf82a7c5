// Package record turns per-chunk extraction output into typed, provenance
// tagged entities. It performs no deduplication.
package record

import (
	"fmt"

	"github.com/brunobiangulo/nasgraph/model"
)

// ChunkRecord is the extraction output for one source chunk. Every section
// is optional.
type ChunkRecord struct {
	ChunkID              string             `json:"chunk_id,omitempty"`
	Source               string             `json:"source,omitempty"`
	Section              string             `json:"section,omitempty"`
	NetworkElements      []ElementItem      `json:"network_elements,omitempty"`
	States               []StateItem        `json:"states,omitempty"`
	Transitions          []TransitionItem   `json:"transitions,omitempty"`
	ElementRelationships []RelationshipItem `json:"element_relationships,omitempty"`
	Triggers             []AnnotationItem   `json:"triggers,omitempty"`
	Conditions           []AnnotationItem   `json:"conditions,omitempty"`
	Timing               []AnnotationItem   `json:"timing,omitempty"`
	RegistrationFlow     []FlowStep         `json:"registration_flow,omitempty"`
	Metadata             Metadata           `json:"metadata,omitempty"`
	Embedding            []float32          `json:"embedding,omitempty"`

	// items that failed to decode, reported by the Ingestor
	invalid []MalformedRecord
}

// Metadata is the provenance block attached by the extraction collaborator.
type Metadata struct {
	Source        string `json:"source,omitempty"`
	ChunkIndex    *int   `json:"chunk_index,omitempty"`
	TotalChunks   int    `json:"total_chunks,omitempty"`
	ProcedureName string `json:"procedure_name,omitempty"`
	Section       string `json:"section,omitempty"`
}

type ElementItem struct {
	Name        string `json:"name" validate:"required"`
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
}

type StateItem struct {
	Name        string `json:"name" validate:"required"`
	Type        string `json:"type,omitempty"`
	Side        string `json:"side,omitempty"`
	Description string `json:"description,omitempty"`
}

type TransitionItem struct {
	FromState   string `json:"from_state,omitempty"`
	ToState     string `json:"to_state" validate:"required"`
	Message     string `json:"message" validate:"required"`
	FromElement string `json:"from_element,omitempty"`
	ToElement   string `json:"to_element,omitempty"`
	Trigger     string `json:"trigger,omitempty"`
	Condition   string `json:"condition,omitempty"`
	Timing      string `json:"timing,omitempty"`
	Step        *Int   `json:"step,omitempty"`
	Side        string `json:"side,omitempty"`
}

type RelationshipItem struct {
	Element1     string `json:"element1" validate:"required"`
	Element2     string `json:"element2" validate:"required"`
	Relationship string `json:"relationship,omitempty"`
}

// AnnotationItem is an entry of the triggers, conditions or timing sections.
// Exactly one of Trigger, Condition and Timing is expected to be set,
// matching the section it came from.
type AnnotationItem struct {
	State     string `json:"state" validate:"required"`
	Trigger   string `json:"trigger,omitempty"`
	Condition string `json:"condition,omitempty"`
	Timing    string `json:"timing,omitempty"`
}

// FlowStep is one step of a registration_flow section: a message exchange
// between two elements that may change state.
type FlowStep struct {
	SequenceNumber     *Int       `json:"sequence_number,omitempty"`
	StepName           string     `json:"step_name,omitempty"`
	SourceElement      string     `json:"source_element,omitempty"`
	DestinationElement string     `json:"destination_element,omitempty"`
	Message            string     `json:"message" validate:"required"`
	SourceState        string     `json:"source_state,omitempty"`
	DestinationState   string     `json:"destination_state" validate:"required"`
	Description        string     `json:"description,omitempty"`
	Trigger            string     `json:"trigger,omitempty"`
	Conditions         StringList `json:"conditions,omitempty"`
	Timing             string     `json:"timing,omitempty"`
	Side               string     `json:"side,omitempty"`
}

// RawElement is a network element sighting.
type RawElement struct {
	ChunkID     string
	Name        string
	Type        string
	Description string
}

// RawState is a state declaration.
type RawState struct {
	ChunkID     string
	Name        string
	Kind        model.Kind
	Side        model.Side
	Description string
}

// RawTransition is a single transition claim. From may be a sentinel.
type RawTransition struct {
	ChunkID     string
	Side        model.Side
	From        string
	To          string
	Message     string
	FromElement string
	ToElement   string
	Trigger     string
	Condition   string
	Timing      string
	Step        *int
}

// Evidence returns the evidence record carried by t.
func (t RawTransition) Evidence() model.Evidence {
	return model.Evidence{
		ChunkID:     t.ChunkID,
		Trigger:     t.Trigger,
		Condition:   t.Condition,
		Timing:      t.Timing,
		Step:        t.Step,
		FromElement: t.FromElement,
		ToElement:   t.ToElement,
		RawFrom:     t.From,
		RawTo:       t.To,
	}
}

// RawRelationship is an element-to-element relationship claim.
type RawRelationship struct {
	ChunkID  string
	Element1 string
	Element2 string
	Text     string
}

// RawAnnotation attaches a trigger, condition or timing note to a state.
type RawAnnotation struct {
	ChunkID   string
	State     string
	Trigger   string
	Condition string
	Timing    string
}

// Evidence returns the state evidence carried by a.
func (a RawAnnotation) Evidence() model.Evidence {
	return model.Evidence{
		ChunkID:   a.ChunkID,
		Trigger:   a.Trigger,
		Condition: a.Condition,
		Timing:    a.Timing,
	}
}

// MalformedRecord describes a single dropped item.
type MalformedRecord struct {
	ChunkID string `json:"chunk_id"`
	Section string `json:"section"`
	Index   int    `json:"index"`
	Reason  string `json:"reason"`
}

func (m MalformedRecord) Error() string {
	return fmt.Sprintf("record: malformed %s[%d] in chunk %s: %s", m.Section, m.Index, m.ChunkID, m.Reason)
}

// Stats counts what an ingestion pass saw.
type Stats struct {
	Chunks            int            `json:"chunks"`
	Elements          int            `json:"elements"`
	States            int            `json:"states"`
	Transitions       int            `json:"transitions"`
	Relationships     int            `json:"relationships"`
	Annotations       int            `json:"annotations"`
	Malformed         int            `json:"malformed"`
	MalformedByReason map[string]int `json:"malformed_by_reason,omitempty"`
}

// Batch is the ordered, typed output of one ingestion pass.
type Batch struct {
	Elements      []RawElement
	States        []RawState
	Transitions   []RawTransition
	Relationships []RawRelationship
	Annotations   []RawAnnotation
	Malformed     []MalformedRecord
	Stats         Stats
}
