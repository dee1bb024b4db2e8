// Package proxy is the gateway's forwarding path: it relays requests to the
// upstream API, validates responses against registered shapes, repairs
// drifted payloads from cached mappings, and invokes the healing engine on a
// fresh mismatch.
package proxy

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/sainideep1234/self-healing-agent/internal/cache"
	"github.com/sainideep1234/self-healing-agent/internal/domain"
	"github.com/sainideep1234/self-healing-agent/internal/events"
	"github.com/sainideep1234/self-healing-agent/internal/healer"
	"github.com/sainideep1234/self-healing-agent/internal/mapping"
	"github.com/sainideep1234/self-healing-agent/internal/schema"
	"github.com/sainideep1234/self-healing-agent/internal/server"
)

const (
	headerHealed        = "X-Healed"
	headerHealingSource = "X-Healing-Source"

	sourceCache = "cache"
	sourceFresh = "fresh"

	errorBodyLimit = 500
)

// Option configures the handler.
type Option func(*Handler)

// WithHTTPClient sets a custom upstream HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(h *Handler) { h.client = client }
}

// WithAutoHeal sets the initial auto-healing toggle.
func WithAutoHeal(enabled bool) Option {
	return func(h *Handler) { h.autoHeal = enabled }
}

// Handler proxies requests to one upstream base URL. Safe for concurrent use.
type Handler struct {
	upstreamURL string
	client      *http.Client
	registry    *schema.Registry
	mappings    cache.Store
	log         events.Log
	engine      *healer.Engine
	logger      *slog.Logger

	mu       sync.Mutex
	autoHeal bool
}

// New creates a proxy handler. The mapping store and event log should be
// wrapped in their degrading variants so store failures never break
// forwarding.
func New(upstreamURL string, registry *schema.Registry, mappings cache.Store, log events.Log, engine *healer.Engine, logger *slog.Logger, opts ...Option) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		upstreamURL: strings.TrimSuffix(upstreamURL, "/"),
		client:      &http.Client{Timeout: 30 * time.Second},
		registry:    registry,
		mappings:    mappings,
		log:         log,
		engine:      engine,
		logger:      logger,
		autoHeal:    true,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetAutoHeal toggles automatic healing at runtime.
func (h *Handler) SetAutoHeal(enabled bool) {
	h.mu.Lock()
	h.autoHeal = enabled
	h.mu.Unlock()
}

// AutoHeal reports whether automatic healing is enabled.
func (h *Handler) AutoHeal() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.autoHeal
}

// ServeHTTP forwards the request and returns the possibly-healed response.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	path := r.URL.Path

	resp, err := h.forward(r)
	if err != nil {
		h.logger.Error("upstream request failed",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		h.writeGatewayError(w, r, domain.ErrUpstream(fmt.Sprintf("upstream request failed: %v", err), err))
		return
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		h.writeGatewayError(w, r, domain.ErrUpstream("failed to read upstream response", err))
		return
	}

	if resp.StatusCode >= 400 {
		h.appendEvent(r, &domain.HealingEvent{
			Type:          domain.EventHTTPError,
			Endpoint:      path,
			OriginalError: fmt.Sprintf("HTTP %d", resp.StatusCode),
			Metadata: map[string]any{
				"status_code":   resp.StatusCode,
				"response_text": truncate(string(raw), errorBodyLimit),
			},
		})
		h.passThrough(w, resp, raw)
		return
	}

	parsed := gjson.ParseBytes(raw)
	if !parsed.IsObject() && !parsed.IsArray() {
		// Not a structured payload; nothing to validate or heal.
		h.passThrough(w, resp, raw)
		return
	}

	shape := h.registry.Resolve(path)
	if shape == nil {
		h.logger.Debug("no shape registered", slog.String("path", path))
		h.passThrough(w, resp, raw)
		return
	}

	representative, ok := representativeElement(parsed, raw)
	if !ok {
		// Empty list; trivially conformant.
		h.passThrough(w, resp, raw)
		return
	}

	if cached, err := h.mappings.Get(ctx, path); err == nil && cached != nil {
		healed := mapping.ApplyPayload(raw, cached)
		h.logger.Info("applied cached mapping",
			slog.String("path", path),
			slog.Int("version", cached.Version),
			slog.Duration("duration", time.Since(start)),
		)
		h.writeHealed(w, r, resp, healed, sourceCache)
		return
	}

	result := schema.Validate(representative, shape)
	if result.Valid {
		h.passThrough(w, resp, raw)
		return
	}

	h.logger.Warn("schema validation failed",
		slog.String("path", path),
		slog.Int("errors", len(result.Errors)),
	)
	h.appendEvent(r, &domain.HealingEvent{
		Type:             domain.EventSchemaMismatch,
		Endpoint:         path,
		OriginalError:    result.ErrorText(),
		OriginalResponse: json.RawMessage(representative),
		Metadata:         map[string]any{"expected_shape": shape.Name},
	})

	if !h.AutoHeal() {
		h.logger.Info("auto healing disabled", slog.String("path", path))
		h.writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":            "schema validation failed",
			"details":          result.ErrorText(),
			"healing_disabled": true,
		})
		return
	}

	newMapping, err := h.engine.Heal(ctx, path, shape, representative, result)
	if err != nil {
		h.logger.Error("healing engine error",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
	if newMapping == nil {
		h.writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":             "schema healing failed",
			"original_response": json.RawMessage(raw),
			"validation_error":  result.ErrorText(),
		})
		return
	}

	healed := mapping.ApplyPayload(raw, newMapping)
	h.logger.Info("healing applied",
		slog.String("path", path),
		slog.Duration("duration", time.Since(start)),
	)
	h.writeHealed(w, r, resp, healed, sourceFresh)
}

// forward relays the inbound request to the upstream, preserving method,
// query, body, and headers except Host and Content-Length.
func (h *Handler) forward(r *http.Request) (*http.Response, error) {
	upstreamURL := h.upstreamURL + r.URL.Path
	if r.URL.RawQuery != "" {
		upstreamURL += "?" + r.URL.RawQuery
	}

	var body io.Reader
	if r.Body != nil {
		body = r.Body
	}

	req, err := http.NewRequestWithContext(r.Context(), r.Method, upstreamURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream request: %w", err)
	}
	for name, values := range r.Header {
		if strings.EqualFold(name, "Host") || strings.EqualFold(name, "Content-Length") {
			continue
		}
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}

	return h.client.Do(req)
}

// representativeElement picks the payload validated against the shape: the
// object itself, or the first element of a list. ok is false for an empty
// list.
func representativeElement(parsed gjson.Result, raw []byte) ([]byte, bool) {
	if !parsed.IsArray() {
		return raw, true
	}
	first := parsed.Get("0")
	if !first.Exists() {
		return nil, false
	}
	return []byte(first.Raw), true
}

// passThrough relays the upstream response unchanged.
func (h *Handler) passThrough(w http.ResponseWriter, resp *http.Response, body []byte) {
	copyHeaders(w, resp)
	w.WriteHeader(resp.StatusCode)
	w.Write(body)
}

// writeHealed relays a repaired payload with the diagnostic headers. The
// healing outcome is also attached to the request log line.
func (h *Handler) writeHealed(w http.ResponseWriter, r *http.Request, resp *http.Response, body []byte, source string) {
	server.AddLogField(r.Context(), "healed", "true")
	server.AddLogField(r.Context(), "healing_source", source)

	copyHeaders(w, resp)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(headerHealed, "true")
	w.Header().Set(headerHealingSource, source)
	w.WriteHeader(resp.StatusCode)
	w.Write(body)
}

func (h *Handler) writeGatewayError(w http.ResponseWriter, r *http.Request, gwErr *domain.GatewayError) {
	server.AddError(r.Context(), gwErr)
	h.writeJSON(w, gwErr.HTTPStatusCode(), map[string]any{
		"error": gwErr.Message,
		"type":  gwErr.Type,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// appendEvent records an event, stamped with the request's correlation ID so
// operators can join event-log entries to request log lines.
func (h *Handler) appendEvent(r *http.Request, event *domain.HealingEvent) {
	if id := server.GetRequestID(r.Context()); id != "" {
		if event.Metadata == nil {
			event.Metadata = map[string]any{}
		}
		event.Metadata["request_id"] = id
	}
	if _, err := h.log.Append(r.Context(), event); err != nil {
		h.logger.Warn("failed to append event",
			slog.String("type", string(event.Type)),
			slog.String("error", err.Error()),
		)
	}
}

// copyHeaders relays upstream headers, dropping ones the transport owns.
func copyHeaders(w http.ResponseWriter, resp *http.Response) {
	for name, values := range resp.Header {
		if strings.EqualFold(name, "Content-Length") ||
			strings.EqualFold(name, "Transfer-Encoding") ||
			strings.EqualFold(name, "Connection") {
			continue
		}
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
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
