// ABOUTME: HTTP control surface for the outreach pipeline behind a single chi router.
// ABOUTME: Exposes run control, live status, SSE events, data listings, exports, and targeting rules.
package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/2389-research/outreach/pipeline"
	"github.com/2389-research/outreach/stages"
	"github.com/2389-research/outreach/store"
)

// Server is the outreach HTTP server.
type Server struct {
	store       *store.Store
	controller  *pipeline.Controller
	broadcaster *pipeline.Broadcaster
	rules       *stages.Rules
	defaults    pipeline.RunConfig
	logger      *slog.Logger
	router      chi.Router
	addr        string
}

// ServerConfig holds the configuration for the web server.
type ServerConfig struct {
	Addr        string
	Store       *store.Store
	Controller  *pipeline.Controller
	Broadcaster *pipeline.Broadcaster
	Rules       *stages.Rules
	Defaults    pipeline.RunConfig // applied when a start request omits fields
	Logger      *slog.Logger
}

// NewServer creates a Server and sets up routing.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8000"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		store:       cfg.Store,
		controller:  cfg.Controller,
		broadcaster: cfg.Broadcaster,
		rules:       cfg.Rules,
		defaults:    cfg.Defaults,
		logger:      logger,
		addr:        cfg.Addr,
	}
	s.router = s.buildRouter()
	return s
}

// ServeHTTP delegates to the chi router, satisfying http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe starts the HTTP server with timeouts sized for long-lived
// SSE connections.
func (s *Server) ListenAndServe() error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return srv.ListenAndServe()
}

// buildRouter constructs the chi router with all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Post("/pipeline/start", s.handlePipelineStart)
	r.Post("/pipeline/stop", s.handlePipelineStop)
	r.Get("/pipeline/status", s.handlePipelineStatus)
	r.Get("/events", s.handleEvents)
	r.Post("/run", s.handleRunSync)

	r.Get("/leads", s.handleLeadList)
	r.Get("/leads/{leadID}/messages", s.handleLeadMessages)
	r.Get("/logs", s.handleLogs)
	r.Post("/reset", s.handleReset)

	r.Get("/mcp/tools", s.handleToolList)
	r.Post("/tools/generate_leads", s.handleToolGenerateLeads)
	r.Post("/tools/enrich_leads", s.handleToolEnrichLeads)
	r.Post("/tools/generate_messages", s.handleToolGenerateMessages)
	r.Post("/tools/send_outreach", s.handleToolSendOutreach)
	r.Get("/tools/get_status", s.handleToolGetStatus)

	r.Get("/metrics", s.handleMetrics)
	r.Handle("/prometheus", promhttp.Handler())

	r.Get("/config/targeting-rules", s.handleRulesGet)
	r.Put("/config/targeting-rules", s.handleRulesPut)

	r.Get("/export/leads", s.handleExportLeads)
	r.Get("/export/messages", s.handleExportMessages)

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"status": "error", "message": message})
}

// handleHealth returns a JSON health check response.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// startRequest uses pointers so omitted fields fall back to server defaults.
type startRequest struct {
	DryRun *bool  `json:"dry_run"`
	AIMode *bool  `json:"ai_mode"`
	Seed   *int64 `json:"seed"`
	Count  *int   `json:"count"`
}

func (s *Server) runConfigFrom(req startRequest) pipeline.RunConfig {
	cfg := s.defaults
	if req.DryRun != nil {
		cfg.DryRun = *req.DryRun
	}
	if req.AIMode != nil {
		cfg.AIMode = *req.AIMode
	}
	if req.Seed != nil {
		cfg.Seed = req.Seed
	}
	if req.Count != nil && *req.Count > 0 {
		cfg.Count = *req.Count
	}
	return cfg
}

// handlePipelineStart kicks off a background run.
func (s *Server) handlePipelineStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if err := s.controller.Start(s.runConfigFrom(req)); err != nil {
		if errors.Is(err, pipeline.ErrBusy) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handlePipelineStop requests cancellation of the active run.
func (s *Server) handlePipelineStop(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Stop(); err != nil {
		if errors.Is(err, pipeline.ErrNotRunning) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handlePipelineStatus returns the live snapshot plus store-wide counts.
func (s *Server) handlePipelineStatus(w http.ResponseWriter, r *http.Request) {
	snap, counts, err := s.controller.Status()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pipeline_state": snap,
		"metrics": map[string]any{
			"total":         total,
			"status_counts": counts,
		},
	})
}

// handleRunSync runs the whole pipeline inline and returns a summary once it
// finishes. Kept for scripted callers that predate the async control surface.
func (s *Server) handleRunSync(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	sub := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(sub)

	if err := s.controller.Start(s.runConfigFrom(req)); err != nil {
		if errors.Is(err, pipeline.ErrBusy) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	for {
		select {
		case evt, ok := <-sub.Events():
			if !ok {
				writeError(w, http.StatusInternalServerError, "event stream closed")
				return
			}
			switch evt.Type {
			case pipeline.EventPipelineCompleted:
				writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "summary": evt.Data})
				return
			case pipeline.EventPipelineStopped:
				writeJSON(w, http.StatusOK, map[string]any{"status": "stopped"})
				return
			case pipeline.EventPipelineError:
				writeJSON(w, http.StatusInternalServerError, map[string]any{
					"status": "error", "message": fmt.Sprint(evt.Data["error"]),
				})
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

// handleMetrics returns domain metrics as JSON. Prometheus exposition lives
// at /prometheus.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.CountStatuses()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":         total,
		"status_counts": counts,
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

// handleLeadList returns leads newest first with optional status filter and
// pagination.
func (s *Server) handleLeadList(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	leads, err := s.store.ListLeads(status, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]leadJSON, len(leads))
	for i := range leads {
		out[i] = toLeadJSON(&leads[i])
	}
	writeJSON(w, http.StatusOK, out)
}

// handleLeadMessages returns every composed message for one lead.
func (s *Server) handleLeadMessages(w http.ResponseWriter, r *http.Request) {
	leadID := chi.URLParam(r, "leadID")
	if _, err := s.store.GetLead(leadID); err != nil {
		writeError(w, http.StatusNotFound, "lead not found")
		return
	}

	msgs, err := s.store.MessagesForLead(leadID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]messageJSON, len(msgs))
	for i := range msgs {
		out[i] = toMessageJSON(&msgs[i])
	}
	writeJSON(w, http.StatusOK, out)
}

// handleLogs returns recent audit entries, newest first.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	entries, err := s.store.RecentAudit(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]auditJSON, len(entries))
	for i := range entries {
		out[i] = toAuditJSON(&entries[i])
	}
	writeJSON(w, http.StatusOK, out)
}

// handleReset clears leads, messages, and the audit log. Refused while a run
// is active.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if s.controller.Snapshot().Running {
		writeError(w, http.StatusConflict, "pipeline already running")
		return
	}
	if err := s.store.Reset(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("store reset via API")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleRulesGet returns the active targeting rules.
func (s *Server) handleRulesGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.rules.Current())
}

// handleRulesPut validates, persists, and activates a replacement rule set.
func (s *Server) handleRulesPut(w http.ResponseWriter, r *http.Request) {
	var rs stages.RuleSet
	if err := json.NewDecoder(r.Body).Decode(&rs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.rules.Replace(&rs); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
