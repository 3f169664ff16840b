// File path: internal/api/insights_handler.go
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/nicodishanthj/Peregrine_phase1/internal/assessment"
	"github.com/nicodishanthj/Peregrine_phase1/internal/common"
	"github.com/nicodishanthj/Peregrine_phase1/internal/insights"
	"github.com/nicodishanthj/Peregrine_phase1/internal/inventory"
)

// handleInsights produces one narrative section on demand. Provider failures
// surface as 502 so callers can distinguish them from bad requests.
func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	logger := common.Logger()
	ctx := r.Context()
	if s.insights == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("insights provider unavailable"))
		return
	}
	var req insightsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	reportID := strings.TrimSpace(req.ReportID)
	if reportID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("report_id is required"))
		return
	}
	section := strings.ToLower(strings.TrimSpace(req.Section))
	if section == "" {
		section = insights.SectionSummary
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
	data := &insights.ReportData{ReportID: reportID, Assessment: result}
	if s.estimator != nil {
		if estate, err := s.estimator.EstimateEstate(ctx, inv, result.Scores, target); err == nil {
			data.Estate = estate
		} else {
			logger.Warn("api: estate estimate for insights failed", "report", reportID, "error", err)
		}
	}
	narrative, err := s.insights.Section(ctx, section, data)
	if err != nil {
		if strings.Contains(err.Error(), "unknown section") {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeError(w, http.StatusBadGateway, fmt.Errorf("generate insight: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"report_id": reportID,
		"section":   section,
		"narrative": narrative,
	})
}
