// ABOUTME: Ad hoc single-stage tool endpoints with MCP-style schema discovery.
// ABOUTME: Each tool runs one pipeline stage synchronously through the controller.
package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/2389-research/outreach/pipeline"
	"github.com/2389-research/outreach/store"
)

// toolSchema describes one tool for discovery clients.
type toolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Endpoint    string         `json:"endpoint"`
	Method      string         `json:"method"`
	InputSchema map[string]any `json:"inputSchema"`
}

// handleToolList returns the tool catalog with JSON input schemas.
func (s *Server) handleToolList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"tools": []toolSchema{
			{
				Name:        "generate_leads",
				Description: "Generate synthetic B2B leads with realistic company and contact data",
				Endpoint:    "/tools/generate_leads",
				Method:      http.MethodPost,
				InputSchema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"count": map[string]any{"type": "integer", "description": "Number of leads to generate"},
						"seed":  map[string]any{"type": "integer", "description": "Random seed for reproducibility", "nullable": true},
					},
				},
			},
			{
				Name:        "enrich_leads",
				Description: "Enrich leads with company size, persona, pain points, and triggers",
				Endpoint:    "/tools/enrich_leads",
				Method:      http.MethodPost,
				InputSchema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"ai_mode": map[string]any{"type": "boolean", "description": "Use AI for enrichment", "default": false},
					},
				},
			},
			{
				Name:        "generate_messages",
				Description: "Generate personalized email and DM messages with A/B variants",
				Endpoint:    "/tools/generate_messages",
				Method:      http.MethodPost,
				InputSchema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"ai_mode": map[string]any{"type": "boolean", "description": "Use AI for message generation", "default": false},
					},
				},
			},
			{
				Name:        "send_outreach",
				Description: "Send outreach messages via email and simulated DM",
				Endpoint:    "/tools/send_outreach",
				Method:      http.MethodPost,
				InputSchema: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"dry_run": map[string]any{"type": "boolean", "description": "Simulate sending without actual delivery", "default": true},
					},
				},
			},
			{
				Name:        "get_status",
				Description: "Get current pipeline status and metrics",
				Endpoint:    "/tools/get_status",
				Method:      http.MethodGet,
				InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
			},
		},
		"version":  "1.0",
		"protocol": "MCP",
	})
}

// runTool executes one stage through the controller and writes the tool
// response envelope. A concurrent run maps to 409.
func (s *Server) runTool(w http.ResponseWriter, r *http.Request, stage string, cfg pipeline.RunConfig,
	result func(res pipeline.StageResult) map[string]any) {
	res, err := s.controller.RunStage(r.Context(), stage, cfg)
	if err != nil {
		if errors.Is(err, pipeline.ErrBusy) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "result": result(res)})
}

func (s *Server) handleToolGenerateLeads(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	cfg := s.defaults
	cfg.Seed = req.Seed
	if req.Count != nil && *req.Count > 0 {
		cfg.Count = *req.Count
	}
	s.runTool(w, r, "generate", cfg, func(res pipeline.StageResult) map[string]any {
		return map[string]any{
			"generated": res.Count,
			"message":   fmt.Sprintf("Successfully generated %d leads", res.Count),
		}
	})
}

func (s *Server) handleToolEnrichLeads(w http.ResponseWriter, r *http.Request) {
	cfg, ok := s.aiModeConfig(w, r)
	if !ok {
		return
	}
	s.runTool(w, r, "enrich", cfg, func(res pipeline.StageResult) map[string]any {
		return map[string]any{
			"enriched": res.Count,
			"ai_mode":  cfg.AIMode,
			"message":  fmt.Sprintf("Successfully enriched %d leads", res.Count),
		}
	})
}

func (s *Server) handleToolGenerateMessages(w http.ResponseWriter, r *http.Request) {
	cfg, ok := s.aiModeConfig(w, r)
	if !ok {
		return
	}
	s.runTool(w, r, "compose", cfg, func(res pipeline.StageResult) map[string]any {
		return map[string]any{
			"messages": res.Count,
			"ai_mode":  cfg.AIMode,
			"message":  fmt.Sprintf("Generated messages for %d leads", res.Count),
		}
	})
}

func (s *Server) handleToolSendOutreach(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	cfg := s.defaults
	if req.DryRun != nil {
		cfg.DryRun = *req.DryRun
	}
	s.runTool(w, r, "deliver", cfg, func(res pipeline.StageResult) map[string]any {
		verb := "Sent"
		if cfg.DryRun {
			verb = "Simulated"
		}
		return map[string]any{
			"sent":    res.Count,
			"dry_run": cfg.DryRun,
			"message": fmt.Sprintf("%s outreach for %d leads", verb, res.Count),
		}
	})
}

// aiModeConfig merges an optional {"ai_mode": bool} body onto the defaults.
func (s *Server) aiModeConfig(w http.ResponseWriter, r *http.Request) (pipeline.RunConfig, bool) {
	var req startRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return pipeline.RunConfig{}, false
		}
	}
	cfg := s.defaults
	if req.AIMode != nil {
		cfg.AIMode = *req.AIMode
	}
	return cfg, true
}

// handleToolGetStatus returns status counts plus the stage order, in the tool
// response envelope.
func (s *Server) handleToolGetStatus(w http.ResponseWriter, r *http.Request) {
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
		"status": "ok",
		"result": map[string]any{
			"status_counts": counts,
			"total":         total,
			"pipeline_stages": []string{
				string(store.StatusNew), string(store.StatusEnriched),
				string(store.StatusComposed), string(store.StatusDelivered),
				string(store.StatusFailed),
			},
		},
	})
}
