package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sainideep1234/self-healing-agent/internal/schema"
)

func testRequest() *Request {
	return &Request{
		Endpoint: "/api/users/1",
		ExpectedFields: []schema.Field{
			{Name: "user_id", Type: schema.TypeInt, Required: true},
			{Name: "name", Type: schema.TypeString, Required: true},
		},
		RawPayload:      json.RawMessage(`{"uid":1,"full_name":"Alice"}`),
		ValidationError: "user_id: field is missing",
	}
}

func chatAnswer(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
	return string(b)
}

func TestParseProposal(t *testing.T) {
	raw := []byte(`{
		"field_mappings": [
			{"source_field": "uid", "target_field": "user_id", "transform": "to_int", "confidence": 0.9},
			{"source_field": "full_name", "target_field": "name", "transform": "reverse", "confidence": 0.85}
		],
		"analysis": "renamed fields",
		"can_heal": true
	}`)

	proposal, err := parseProposal(raw)
	if err != nil {
		t.Fatalf("parseProposal() error = %v", err)
	}
	if !proposal.CanHeal {
		t.Error("CanHeal = false, want true")
	}
	if len(proposal.FieldMappings) != 2 {
		t.Fatalf("len(FieldMappings) = %d, want 2", len(proposal.FieldMappings))
	}
	if proposal.FieldMappings[0].Transform == nil || *proposal.FieldMappings[0].Transform != "to_int" {
		t.Errorf("FieldMappings[0].Transform = %v, want to_int", proposal.FieldMappings[0].Transform)
	}
	// Unknown transform tokens degrade to no transform.
	if proposal.FieldMappings[1].Transform != nil {
		t.Errorf("FieldMappings[1].Transform = %q, want nil", *proposal.FieldMappings[1].Transform)
	}
}

func TestParseProposalInvalidJSON(t *testing.T) {
	if _, err := parseProposal([]byte("not json")); err == nil {
		t.Fatal("parseProposal() expected error for invalid JSON")
	}
}

func TestOpenAIPropose(t *testing.T) {
	var gotReq chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q, want Bearer test-key", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		fmt.Fprint(w, chatAnswer(`{"field_mappings":[{"source_field":"uid","target_field":"user_id","transform":null,"confidence":0.9}],"analysis":"renamed","can_heal":true}`))
	}))
	defer server.Close()

	client := NewOpenAI("test-key", slog.Default(), WithBaseURL(server.URL))
	proposal, err := client.Propose(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Propose() error = %v", err)
	}
	if !proposal.CanHeal {
		t.Error("CanHeal = false, want true")
	}
	if proposal.Cost <= 0 {
		t.Errorf("Cost = %v, want > 0", proposal.Cost)
	}
	if gotReq.Temperature != 0.1 {
		t.Errorf("Temperature = %v, want 0.1", gotReq.Temperature)
	}
	if gotReq.ResponseFormat == nil || gotReq.ResponseFormat.Type != "json_object" {
		t.Errorf("ResponseFormat = %+v, want json_object", gotReq.ResponseFormat)
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" {
		t.Errorf("Messages = %+v, want system+user pair", gotReq.Messages)
	}
}

func TestOpenAIProposeRetriesServerError(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, chatAnswer(`{"field_mappings":[],"analysis":"no changes","can_heal":false}`))
	}))
	defer server.Close()

	client := NewOpenAI("test-key", slog.Default(), WithBaseURL(server.URL))
	client.retryDelay = time.Millisecond
	proposal, err := client.Propose(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Propose() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if proposal.CanHeal {
		t.Error("CanHeal = true, want false")
	}
}

func TestOpenAIProposeNoRetryOnClientError(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewOpenAI("bad-key", slog.Default(), WithBaseURL(server.URL))
	if _, err := client.Propose(context.Background(), testRequest()); err == nil {
		t.Fatal("Propose() expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestOpenAIProposeExhaustsAttempts(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewOpenAI("test-key", slog.Default(), WithBaseURL(server.URL))
	client.retryDelay = time.Millisecond
	if _, err := client.Propose(context.Background(), testRequest()); err == nil {
		t.Fatal("Propose() expected error after exhausting attempts")
	}
	if calls != maxAttempts {
		t.Errorf("calls = %d, want %d", calls, maxAttempts)
	}
}
