// File path: internal/api/costs_handler.go
package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	chi "github.com/go-chi/chi/v5"

	"github.com/nicodishanthj/Peregrine_phase1/internal/assessment"
	"github.com/nicodishanthj/Peregrine_phase1/internal/cost"
	"github.com/nicodishanthj/Peregrine_phase1/internal/inventory"
)

func (s *Server) handleReportCosts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reportID := strings.TrimSpace(chi.URLParam(r, "reportID"))
	target, ok := assessment.ParseTarget(r.URL.Query().Get("target"))
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown target %q", r.URL.Query().Get("target")))
		return
	}
	if s.estimator == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("cost estimator unavailable"))
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
	estate, err := s.estimator.EstimateEstate(ctx, inv, result.Scores, target)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, cost.ErrEmptyInventory) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, fmt.Errorf("estimate estate: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, estate)
}

func (s *Server) handleTargetProfiles(w http.ResponseWriter, r *http.Request) {
	target, ok := assessment.ParseTarget(r.URL.Query().Get("target"))
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown target %q", r.URL.Query().Get("target")))
		return
	}
	profiles := s.targets.Profiles(target)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"target":   target,
		"profiles": profiles,
		"live":     s.cloud != nil && s.cloud.Available(),
	})
}

func (s *Server) handleProfilePricing(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	profile := strings.TrimSpace(chi.URLParam(r, "profile"))
	if profile == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("profile required"))
		return
	}
	target, ok := assessment.ParseTarget(r.URL.Query().Get("target"))
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown target %q", r.URL.Query().Get("target")))
		return
	}
	if s.cloud == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("pricing service unavailable"))
		return
	}
	region := strings.TrimSpace(r.URL.Query().Get("region"))
	var (
		price interface{}
		err   error
	)
	if target == assessment.TargetROKS {
		price, err = s.cloud.ROKSWorkerPrice(ctx, profile, region)
	} else {
		price, err = s.cloud.VSIPrice(ctx, profile, region)
	}
	if err != nil {
		status := http.StatusBadGateway
		if strings.Contains(err.Error(), "no price known") {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, price)
}
