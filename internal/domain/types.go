// Package domain provides the canonical types shared by the gateway,
// healing engine, and stores.
package domain

import (
	"encoding/json"
	"time"
)

// Transform names a value conversion applied while mapping a field.
type Transform string

const (
	TransformToInt     Transform = "to_int"
	TransformToStr     Transform = "to_str"
	TransformToFloat   Transform = "to_float"
	TransformToBool    Transform = "to_bool"
	TransformParseDate Transform = "parse_date"
)

// Valid reports whether t is one of the supported transform tokens.
func (t Transform) Valid() bool {
	switch t {
	case TransformToInt, TransformToStr, TransformToFloat, TransformToBool, TransformParseDate:
		return true
	}
	return false
}

// FieldMapping moves the value at SourceField to TargetField, optionally
// converting it first. Immutable once created.
type FieldMapping struct {
	SourceField string     `json:"source_field"`
	TargetField string     `json:"target_field"`
	Transform   *Transform `json:"transform,omitempty"`
	Confidence  float64    `json:"confidence"`
}

// MappingOrigin records who created a mapping.
type MappingOrigin string

const (
	OriginAuto   MappingOrigin = "auto"
	OriginManual MappingOrigin = "manual"
)

// SchemaMapping is the complete repair recipe for one endpoint. It is owned
// by the healing engine at creation and read-only everywhere else.
type SchemaMapping struct {
	Endpoint       string         `json:"endpoint"`
	Version        int            `json:"version"`
	FieldMappings  []FieldMapping `json:"field_mappings"`
	CreatedAt      time.Time      `json:"created_at"`
	CreatedBy      MappingOrigin  `json:"created_by"`
	ReasoningModel string         `json:"reasoning_model,omitempty"`
}

// EventType categorizes a healing event.
type EventType string

const (
	EventSchemaMismatch  EventType = "schema_mismatch"
	EventHTTPError       EventType = "http_error"
	EventValidationError EventType = "validation_error"
	EventHealingStarted  EventType = "healing_started"
	EventHealingSuccess  EventType = "healing_success"
	EventHealingFailed   EventType = "healing_failed"
)

// HealingEvent is an append-only record of one step in the drift/healing
// lifecycle. Never mutated after insertion.
type HealingEvent struct {
	ID               string          `json:"id,omitempty"`
	Type             EventType       `json:"event_type"`
	Endpoint         string          `json:"endpoint"`
	Timestamp        time.Time       `json:"timestamp"`
	OriginalError    string          `json:"original_error,omitempty"`
	OriginalResponse json.RawMessage `json:"original_response,omitempty"`
	AppliedMapping   *SchemaMapping  `json:"applied_mapping,omitempty"`
	Success          bool            `json:"success"`
	DurationMS       float64         `json:"duration_ms,omitempty"`
	Metadata         map[string]any  `json:"metadata,omitempty"`
}

// ThoughtType styles a thought for observers.
type ThoughtType string

const (
	ThoughtAlert      ThoughtType = "alert"
	ThoughtAnalyzing  ThoughtType = "analyzing"
	ThoughtScanning   ThoughtType = "scanning"
	ThoughtHypothesis ThoughtType = "hypothesis"
	ThoughtPatching   ThoughtType = "patching"
	ThoughtRetrying   ThoughtType = "retrying"
	ThoughtSuccess    ThoughtType = "success"
	ThoughtFailure    ThoughtType = "failure"
	ThoughtWaiting    ThoughtType = "waiting"
	ThoughtInfo       ThoughtType = "info"
)

// Thought is a single structured progress event emitted during a healing
// sequence.
type Thought struct {
	ID               string         `json:"id"`
	Type             ThoughtType    `json:"type"`
	Message          string         `json:"message"`
	Timestamp        time.Time      `json:"timestamp"`
	Details          map[string]any `json:"details,omitempty"`
	Confidence       *float64       `json:"confidence,omitempty"`
	Cost             *float64       `json:"cost_usd,omitempty"`
	RequiresApproval bool           `json:"requires_approval"`
}
