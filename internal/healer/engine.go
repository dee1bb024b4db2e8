// Package healer orchestrates the healing sequence: when a response fails
// shape validation, it asks the reasoning service for candidate field
// mappings, filters them by confidence, optionally waits for human approval,
// verifies the repair against the triggering payload, and persists the
// mapping for future requests.
package healer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/sainideep1234/self-healing-agent/internal/cache"
	"github.com/sainideep1234/self-healing-agent/internal/domain"
	"github.com/sainideep1234/self-healing-agent/internal/events"
	"github.com/sainideep1234/self-healing-agent/internal/mapping"
	"github.com/sainideep1234/self-healing-agent/internal/reasoning"
	"github.com/sainideep1234/self-healing-agent/internal/schema"
	"github.com/sainideep1234/self-healing-agent/internal/stream"
)

// Config tunes the engine's acceptance and approval behavior.
type Config struct {
	// ConfidenceThreshold drops proposed mappings below this confidence.
	ConfidenceThreshold float64

	// ApprovalThreshold triggers the approval gate when approval mode is on
	// and the weakest accepted mapping is below it.
	ApprovalThreshold float64

	// RequireApproval enables the human-in-the-loop gate.
	RequireApproval bool

	// MappingTTL is the cache lifetime for persisted mappings.
	MappingTTL time.Duration

	// Pace, when non-nil, is called between narration steps. Demo builds
	// inject a short sleep so observers can follow along; production leaves
	// it nil.
	Pace func(ctx context.Context)
}

// Engine is the healing orchestrator. Safe for concurrent use; concurrent
// healings of the same endpoint race benignly, last write wins.
type Engine struct {
	cfg      Config
	reasoner reasoning.Client
	mappings cache.Store
	log      events.Log
	thoughts *stream.Broadcaster
	logger   *slog.Logger

	mu              sync.Mutex
	requireApproval bool
}

// New creates an engine. The event log and thought broadcaster are required;
// wrap fallible stores with their degrading wrappers before passing them in.
func New(cfg Config, reasoner reasoning.Client, mappings cache.Store, log events.Log, thoughts *stream.Broadcaster, logger *slog.Logger) *Engine {
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = 0.8
	}
	if cfg.ApprovalThreshold <= 0 {
		cfg.ApprovalThreshold = 0.7
	}
	if cfg.MappingTTL <= 0 {
		cfg.MappingTTL = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:             cfg,
		reasoner:        reasoner,
		mappings:        mappings,
		log:             log,
		thoughts:        thoughts,
		logger:          logger,
		requireApproval: cfg.RequireApproval,
	}
}

// SetApprovalMode toggles the human-in-the-loop gate at runtime.
func (e *Engine) SetApprovalMode(require bool) {
	e.mu.Lock()
	e.requireApproval = require
	e.mu.Unlock()
}

// ApprovalMode reports whether the gate is currently enabled.
func (e *Engine) ApprovalMode() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.requireApproval
}

func (e *Engine) pace(ctx context.Context) {
	if e.cfg.Pace != nil {
		e.cfg.Pace(ctx)
	}
}

// Heal runs the full sequence for one failed validation. It returns the
// persisted mapping on success, or nil when healing was not possible
// (cannot-heal verdict, no acceptable mappings, rejection, or a repair that
// still fails validation). Only infrastructure failures return an error.
func (e *Engine) Heal(ctx context.Context, endpoint string, shape *schema.Shape, raw []byte, result schema.Result) (*domain.SchemaMapping, error) {
	start := time.Now()
	totalCost := 0.0

	e.thoughts.Emit(domain.Thought{
		Type:    domain.ThoughtAlert,
		Message: fmt.Sprintf("Schema validation failed for %s", endpoint),
		Details: map[string]any{
			"endpoint":       endpoint,
			"error_count":    len(result.Errors),
			"expected_shape": shape.Name,
		},
	})

	e.appendEvent(ctx, &domain.HealingEvent{
		Type:             domain.EventHealingStarted,
		Endpoint:         endpoint,
		OriginalError:    result.ErrorText(),
		OriginalResponse: json.RawMessage(raw),
		Metadata:         map[string]any{"shape": shape.Name},
	})

	e.pace(ctx)

	e.thoughts.Emit(domain.Thought{
		Type:    domain.ThoughtAnalyzing,
		Message: fmt.Sprintf("Analyzing validation errors... Missing/invalid fields: %s", strings.Join(result.ErrorFields(), ", ")),
	})

	e.pace(ctx)

	available := topLevelFields(raw)
	e.thoughts.Emit(domain.Thought{
		Type:    domain.ThoughtScanning,
		Message: fmt.Sprintf("Scanning response payload... Found fields: %s", strings.Join(available, ", ")),
		Details: map[string]any{"available_fields": available},
	})

	e.pace(ctx)

	e.thoughts.Emit(domain.Thought{
		Type:    domain.ThoughtAnalyzing,
		Message: "Consulting reasoning service to analyze the schema mismatch...",
	})

	proposal, err := e.reasoner.Propose(ctx, &reasoning.Request{
		Endpoint:        endpoint,
		ExpectedFields:  shape.Fields,
		RawPayload:      json.RawMessage(raw),
		ValidationError: result.ErrorText(),
	})
	if err != nil {
		e.failed(ctx, endpoint, result, fmt.Sprintf("Healing error: %s", truncate(err.Error(), 100)), totalCost,
			map[string]any{"error": err.Error()})
		return nil, domain.ErrReasoning("reasoning service call failed", err)
	}
	totalCost += proposal.Cost

	if !proposal.CanHeal {
		e.failed(ctx, endpoint, result, fmt.Sprintf("Cannot heal: %s", orDefault(proposal.Analysis, "unknown reason")), totalCost,
			map[string]any{"reason": "reasoning service determined healing not possible", "analysis": proposal.Analysis})
		return nil, nil
	}

	analysis := orDefault(proposal.Analysis, "Field names changed")
	e.thoughts.Emit(domain.Thought{
		Type:    domain.ThoughtHypothesis,
		Message: fmt.Sprintf("Hypothesis: %s", analysis),
		Cost:    &proposal.Cost,
	})

	e.pace(ctx)

	accepted, minConfidence := e.filterMappings(proposal.FieldMappings)
	if len(accepted) == 0 {
		e.failed(ctx, endpoint, result, "No valid mappings could be generated", totalCost,
			map[string]any{"reason": "all proposed mappings below confidence threshold"})
		return nil, nil
	}

	if e.ApprovalMode() && minConfidence < e.cfg.ApprovalThreshold {
		approved, err := e.awaitApproval(ctx, minConfidence)
		if err != nil {
			e.failed(ctx, endpoint, result, fmt.Sprintf("Healing aborted: %s", truncate(err.Error(), 100)), totalCost,
				map[string]any{"reason": "approval gate unavailable", "error": err.Error()})
			return nil, err
		}
		if !approved {
			e.failed(ctx, endpoint, result, "Healing rejected by user", totalCost,
				map[string]any{"reason": "rejected by observer"})
			return nil, nil
		}
	}

	e.thoughts.Emit(domain.Thought{
		Type:    domain.ThoughtPatching,
		Message: fmt.Sprintf("Hot-patching schema mapping with %d field(s)...", len(accepted)),
	})

	schemaMapping := &domain.SchemaMapping{
		Endpoint:       endpoint,
		Version:        1,
		FieldMappings:  accepted,
		CreatedAt:      time.Now().UTC(),
		CreatedBy:      domain.OriginAuto,
		ReasoningModel: e.reasoner.Model(),
	}

	healed := mapping.Apply(raw, schemaMapping)

	e.pace(ctx)

	e.thoughts.Emit(domain.Thought{
		Type:    domain.ThoughtRetrying,
		Message: "Validating healed data against expected schema...",
	})

	if recheck := schema.Validate(healed, shape); !recheck.Valid {
		e.failed(ctx, endpoint, result, fmt.Sprintf("Healed data still fails validation: %s", truncate(recheck.ErrorText(), 100)), totalCost,
			map[string]any{"reason": "healed data still fails validation"})
		return nil, nil
	}

	if err := e.mappings.Put(ctx, endpoint, schemaMapping, e.cfg.MappingTTL); err != nil {
		e.logger.Warn("failed to cache mapping",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
		)
	}

	durationMS := float64(time.Since(start)) / float64(time.Millisecond)
	e.thoughts.IncrementHealingCount()

	e.thoughts.Emit(domain.Thought{
		Type:       domain.ThoughtSuccess,
		Message:    "Schema healed successfully! Cached for future requests.",
		Cost:       &totalCost,
		Confidence: &minConfidence,
		Details: map[string]any{
			"mappings_count": len(accepted),
			"duration_ms":    round2(durationMS),
			"cached":         true,
		},
	})

	e.appendEvent(ctx, &domain.HealingEvent{
		Type:           domain.EventHealingSuccess,
		Endpoint:       endpoint,
		AppliedMapping: schemaMapping,
		Success:        true,
		DurationMS:     durationMS,
		Metadata: map[string]any{
			"mappings_count": len(accepted),
			"analysis":       analysis,
			"cost_usd":       totalCost,
		},
	})

	return schemaMapping, nil
}

// filterMappings narrates each proposed mapping and keeps those at or above
// the confidence threshold. The returned minimum is over accepted mappings.
func (e *Engine) filterMappings(proposed []domain.FieldMapping) ([]domain.FieldMapping, float64) {
	accepted := make([]domain.FieldMapping, 0, len(proposed))
	minConfidence := 1.0

	for _, fm := range proposed {
		confidence := fm.Confidence
		details := map[string]any{
			"source": fm.SourceField,
			"target": fm.TargetField,
		}
		if fm.Transform != nil {
			details["transform"] = string(*fm.Transform)
		}
		e.thoughts.Emit(domain.Thought{
			Type:       domain.ThoughtScanning,
			Message:    fmt.Sprintf("Mapping: '%s' -> '%s'", fm.SourceField, fm.TargetField),
			Confidence: &confidence,
			Details:    details,
		})

		if fm.Confidence < e.cfg.ConfidenceThreshold {
			e.thoughts.Emit(domain.Thought{
				Type:    domain.ThoughtInfo,
				Message: fmt.Sprintf("Skipping low-confidence mapping (%.0f%%)", fm.Confidence*100),
			})
			continue
		}

		if fm.Confidence < minConfidence {
			minConfidence = fm.Confidence
		}
		accepted = append(accepted, fm)
	}

	return accepted, minConfidence
}

// awaitApproval blocks on the single-slot approval gate. A timeout counts as
// approval; a concurrent pending approval aborts this healing.
func (e *Engine) awaitApproval(ctx context.Context, minConfidence float64) (bool, error) {
	approved, err := e.thoughts.EmitForApproval(ctx, domain.Thought{
		Type:       domain.ThoughtWaiting,
		Message:    fmt.Sprintf("Low confidence (%.0f%%). Waiting for human approval...", minConfidence*100),
		Confidence: &minConfidence,
	})
	if err != nil {
		return false, domain.ErrHealingFailed("approval gate unavailable", err)
	}
	return approved, nil
}

// failed emits the failure thought and records a healing_failed event.
func (e *Engine) failed(ctx context.Context, endpoint string, result schema.Result, message string, cost float64, metadata map[string]any) {
	thought := domain.Thought{Type: domain.ThoughtFailure, Message: message}
	if cost > 0 {
		thought.Cost = &cost
	}
	e.thoughts.Emit(thought)

	e.appendEvent(ctx, &domain.HealingEvent{
		Type:          domain.EventHealingFailed,
		Endpoint:      endpoint,
		OriginalError: result.ErrorText(),
		Metadata:      metadata,
	})
}

func (e *Engine) appendEvent(ctx context.Context, event *domain.HealingEvent) {
	if _, err := e.log.Append(ctx, event); err != nil {
		e.logger.Warn("failed to append healing event",
			slog.String("type", string(event.Type)),
			slog.String("error", err.Error()),
		)
	}
}

// topLevelFields lists the keys of a JSON object payload in document order.
func topLevelFields(raw []byte) []string {
	var fields []string
	gjson.ParseBytes(raw).ForEach(func(key, _ gjson.Result) bool {
		fields = append(fields, key.String())
		return true
	})
	return fields
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// truncate caps s at n bytes without splitting a multi-byte rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}
