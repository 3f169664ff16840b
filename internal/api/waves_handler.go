// File path: internal/api/waves_handler.go
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	chi "github.com/go-chi/chi/v5"

	"github.com/nicodishanthj/Peregrine_phase1/internal/assessment"
	"github.com/nicodishanthj/Peregrine_phase1/internal/common"
	"github.com/nicodishanthj/Peregrine_phase1/internal/inventory"
)

func (s *Server) handleWaves(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reportID := strings.TrimSpace(chi.URLParam(r, "reportID"))
	waves, err := s.catalog.WavesForReport(ctx, reportID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("load waves: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"report_id": reportID, "waves": waves})
}

// handleWavesPlan recomputes the wave plan with caller-supplied options and
// persists the result as the report's new plan.
func (s *Server) handleWavesPlan(w http.ResponseWriter, r *http.Request) {
	logger := common.Logger()
	ctx := r.Context()
	reportID := strings.TrimSpace(chi.URLParam(r, "reportID"))
	var req planRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	target, ok := assessment.ParseTarget(req.Target)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown target %q", req.Target))
		return
	}
	_, inv, err := s.inventory.LoadInventory(ctx, reportID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, inventory.ErrReportNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	result, err := s.assessor.Assess(ctx, inv, target)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("assess estate: %w", err))
		return
	}
	waves, err := s.assessor.Replan(ctx, inv, result.Scores, req.Options)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("plan waves: %w", err))
		return
	}
	if err := s.catalog.SaveWaves(ctx, reportID, waves); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("save waves: %w", err))
		return
	}
	detail := fmt.Sprintf("waves=%d max_size=%d include_templates=%t exclude_powered_off=%t",
		len(waves), req.Options.MaxWaveSize, req.Options.IncludeTemplates, req.Options.ExcludePoweredOff)
	if err := s.catalog.RecordAudit(ctx, reportID, "waves_replanned", detail); err != nil {
		logger.Warn("api: record replan audit failed", "report", reportID, "error", err)
	}
	logger.Info("api: waves replanned", "report", reportID, "waves", len(waves))
	writeJSON(w, http.StatusOK, map[string]interface{}{"report_id": reportID, "waves": waves})
}
