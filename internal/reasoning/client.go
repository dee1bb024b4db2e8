// Package reasoning calls the external reasoning service that proposes
// candidate field mappings for a drifted response.
package reasoning

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sainideep1234/self-healing-agent/internal/domain"
	"github.com/sainideep1234/self-healing-agent/internal/schema"
)

// Request carries the mismatch context the service reasons over.
type Request struct {
	Endpoint        string
	ExpectedFields  []schema.Field
	RawPayload      json.RawMessage
	ValidationError string
}

// Proposal is the service's answer: candidate mappings plus a verdict on
// whether healing is possible at all.
type Proposal struct {
	FieldMappings []domain.FieldMapping `json:"field_mappings"`
	Analysis      string                `json:"analysis"`
	CanHeal       bool                  `json:"can_heal"`

	// Cost is the estimated spend for this call in USD, derived from
	// input/output size.
	Cost float64 `json:"-"`
}

// Client proposes field mappings for a validation failure. Implementations
// must retry transient transport failures internally; a well-formed
// "cannot heal" answer is a successful call, not an error.
type Client interface {
	Propose(ctx context.Context, req *Request) (*Proposal, error)

	// Model identifies the reasoning model, recorded on persisted mappings.
	Model() string
}

// parseProposal decodes the service's strict-JSON answer and sanitizes
// transform tokens: anything outside the supported set is treated as "no
// transform".
func parseProposal(raw []byte) (*Proposal, error) {
	var proposal Proposal
	if err := json.Unmarshal(raw, &proposal); err != nil {
		return nil, fmt.Errorf("failed to parse reasoning answer: %w", err)
	}

	for i := range proposal.FieldMappings {
		fm := &proposal.FieldMappings[i]
		if fm.Transform != nil && !fm.Transform.Valid() {
			fm.Transform = nil
		}
	}

	return &proposal, nil
}
