// Package admin exposes the management surface: component health, registered
// shapes, cached mappings, the event log, healing statistics, runtime
// configuration toggles, and the agent thought stream.
package admin

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sainideep1234/self-healing-agent/internal/cache"
	"github.com/sainideep1234/self-healing-agent/internal/config"
	"github.com/sainideep1234/self-healing-agent/internal/domain"
	"github.com/sainideep1234/self-healing-agent/internal/events"
	"github.com/sainideep1234/self-healing-agent/internal/healer"
	"github.com/sainideep1234/self-healing-agent/internal/proxy"
	"github.com/sainideep1234/self-healing-agent/internal/schema"
	"github.com/sainideep1234/self-healing-agent/internal/stream"
)

// Handler serves the /admin and /agent route groups.
type Handler struct {
	registry *schema.Registry
	mappings cache.Store
	log      events.Log
	thoughts *stream.Broadcaster
	engine   *healer.Engine
	gateway  *proxy.Handler
	cfg      *config.Config
	client   *http.Client
	logger   *slog.Logger
}

// New creates the admin handler.
func New(registry *schema.Registry, mappings cache.Store, log events.Log, thoughts *stream.Broadcaster, engine *healer.Engine, gateway *proxy.Handler, cfg *config.Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		registry: registry,
		mappings: mappings,
		log:      log,
		thoughts: thoughts,
		engine:   engine,
		gateway:  gateway,
		cfg:      cfg,
		client:   &http.Client{Timeout: 5 * time.Second},
		logger:   logger,
	}
}

// AdminRoutes returns the /admin route group.
func (h *Handler) AdminRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/health", h.health)
	r.Get("/schemas", h.listSchemas)
	r.Get("/mappings", h.listMappings)
	r.Delete("/mappings", h.clearMappings)
	r.Delete("/mappings/*", h.invalidateMapping)
	r.Get("/events", h.listEvents)
	r.Get("/stats", h.healingStats)
	r.Get("/config", h.getConfig)
	r.Post("/healing", h.setHealing)
	return r
}

// AgentRoutes returns the /agent route group.
func (h *Handler) AgentRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/stream", h.thoughts.ServeSSE)
	r.Get("/history", h.thoughtHistory)
	r.Delete("/clear", h.clearStream)
	r.Post("/approve", h.approve)
	r.Get("/approval-mode", h.getApprovalMode)
	r.Post("/approval-mode", h.setApprovalMode)
	r.Get("/stats", h.agentStats)
	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	upstreamOK := false
	if resp, err := h.client.Get(h.cfg.Upstream.URL + "/health"); err == nil {
		upstreamOK = resp.StatusCode < 500
		resp.Body.Close()
	}

	eventsOK := true
	if _, err := h.log.Stats(r.Context(), time.Minute); err != nil {
		eventsOK = false
	}

	status := "healthy"
	if !eventsOK {
		status = "degraded"
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":             status,
		"events_store_ok":    eventsOK,
		"upstream_reachable": upstreamOK,
	})
}

func (h *Handler) listSchemas(w http.ResponseWriter, r *http.Request) {
	schemas := h.registry.List()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"schemas": schemas,
		"total":   len(schemas),
	})
}

func (h *Handler) listMappings(w http.ResponseWriter, r *http.Request) {
	mappings, err := h.mappings.ListAll(r.Context())
	if err != nil {
		h.writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	if mappings == nil {
		mappings = []*domain.SchemaMapping{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"mappings": mappings,
		"total":    len(mappings),
	})
}

func (h *Handler) invalidateMapping(w http.ResponseWriter, r *http.Request) {
	endpoint := chi.URLParam(r, "*")
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}

	deleted, err := h.mappings.Invalidate(r.Context(), endpoint)
	if err != nil {
		h.writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"endpoint": endpoint,
		"deleted":  deleted,
	})
}

func (h *Handler) clearMappings(w http.ResponseWriter, r *http.Request) {
	count, err := h.mappings.ClearAll(r.Context())
	if err != nil {
		h.writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"cleared": count})
}

func (h *Handler) listEvents(w http.ResponseWriter, r *http.Request) {
	hours := queryInt(r, "hours", 24)
	limit := queryInt(r, "limit", 100)
	endpoint := r.URL.Query().Get("endpoint")
	eventType := r.URL.Query().Get("event_type")

	filter := events.Filter{
		Endpoint: endpoint,
		Type:     domain.EventType(eventType),
		Since:    time.Now().UTC().Add(-time.Duration(hours) * time.Hour),
	}

	recorded, err := h.log.Query(r.Context(), filter, limit)
	if err != nil {
		h.writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	if recorded == nil {
		recorded = []*domain.HealingEvent{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"events": recorded,
		"total":  len(recorded),
		"filters": map[string]any{
			"endpoint":   endpoint,
			"event_type": eventType,
			"hours":      hours,
		},
	})
}

func (h *Handler) healingStats(w http.ResponseWriter, r *http.Request) {
	hours := queryInt(r, "hours", 24)
	stats, err := h.log.Stats(r.Context(), time.Duration(hours)*time.Hour)
	if err != nil {
		h.writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) getConfig(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"server": map[string]any{
			"port": h.cfg.Server.Port,
		},
		"upstream": map[string]any{
			"url":             h.cfg.Upstream.URL,
			"timeout_seconds": h.cfg.Upstream.TimeoutSeconds,
		},
		"cache": map[string]any{
			"ttl_seconds": h.cfg.Cache.TTLSeconds,
		},
		"healing": map[string]any{
			"enabled":              h.gateway.AutoHeal(),
			"confidence_threshold": h.cfg.Healing.ConfidenceThreshold,
			"approval_threshold":   h.cfg.Healing.ApprovalThreshold,
			"require_approval":     h.engine.ApprovalMode(),
			"reasoning_model":      h.cfg.Reasoning.Model,
		},
	})
}

func (h *Handler) setHealing(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.ErrInvalidRequest("invalid request body", err))
		return
	}

	h.gateway.SetAutoHeal(req.Enabled)
	h.logger.Info("auto healing toggled", slog.Bool("enabled", req.Enabled))
	h.writeJSON(w, http.StatusOK, map[string]any{"enabled": req.Enabled})
}

func (h *Handler) thoughtHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	if limit > 100 {
		limit = 100
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"thoughts": h.thoughts.History(limit),
		"stats":    h.thoughts.GetStats(),
	})
}

func (h *Handler) clearStream(w http.ResponseWriter, r *http.Request) {
	h.thoughts.Clear()
	h.writeJSON(w, http.StatusOK, map[string]any{"message": "Stream cleared"})
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Approved bool `json:"approved"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.ErrInvalidRequest("invalid request body", err))
		return
	}

	if !h.thoughts.Approve(req.Approved) {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "No pending approval"})
		return
	}

	verdict := "approved"
	if !req.Approved {
		verdict = "rejected"
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"message": "Healing " + verdict})
}

func (h *Handler) getApprovalMode(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"enabled":   h.engine.ApprovalMode(),
		"threshold": h.cfg.Healing.ApprovalThreshold,
	})
}

func (h *Handler) setApprovalMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.ErrInvalidRequest("invalid request body", err))
		return
	}

	h.engine.SetApprovalMode(req.Enabled)

	state := "disabled"
	if req.Enabled {
		state = "enabled"
	}
	h.thoughts.Emit(domain.Thought{
		Type:    domain.ThoughtInfo,
		Message: fmt.Sprintf("Human-in-the-loop %s (threshold: %.0f%%)", state, h.cfg.Healing.ApprovalThreshold*100),
	})

	h.writeJSON(w, http.StatusOK, map[string]any{
		"enabled":   req.Enabled,
		"threshold": h.cfg.Healing.ApprovalThreshold,
	})
}

func (h *Handler) agentStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.thoughts.GetStats())
}

func (h *Handler) writeError(w http.ResponseWriter, gwErr *domain.GatewayError) {
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

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
