// File path: internal/api/vms_handler.go
package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	chi "github.com/go-chi/chi/v5"

	"github.com/nicodishanthj/Peregrine_phase1/internal/assessment"
	"github.com/nicodishanthj/Peregrine_phase1/internal/catalog"
	"github.com/nicodishanthj/Peregrine_phase1/internal/common"
	"github.com/nicodishanthj/Peregrine_phase1/internal/inventory"
	"github.com/nicodishanthj/Peregrine_phase1/internal/targets"
	"github.com/nicodishanthj/Peregrine_phase1/internal/topology"
)

const neighborLimit = 8

func (s *Server) handleVMList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()
	opts := catalog.QueryOptions{
		ReportID:    strings.TrimSpace(chi.URLParam(r, "reportID")),
		Target:      strings.TrimSpace(query.Get("target")),
		Bands:       splitParam(query.Get("band")),
		Support:     splitParam(query.Get("support")),
		Clusters:    splitParam(query.Get("cluster")),
		OSFamilies:  splitParam(query.Get("os_family")),
		NamePattern: strings.TrimSpace(query.Get("name")),
		Sort:        strings.TrimSpace(query.Get("sort")),
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		opts.Limit = limit
	}
	if raw := strings.TrimSpace(query.Get("offset")); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid offset %q", raw))
			return
		}
		opts.Offset = offset
	}
	page, err := s.catalog.QueryVMs(ctx, opts)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, catalog.ErrReportNotFound):
			status = http.StatusNotFound
		case strings.Contains(err.Error(), "required") || strings.Contains(err.Error(), "unknown sort"):
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func splitParam(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func (s *Server) handleVMDetail(w http.ResponseWriter, r *http.Request) {
	logger := common.Logger()
	ctx := r.Context()
	reportID := strings.TrimSpace(chi.URLParam(r, "reportID"))
	name := strings.TrimSpace(chi.URLParam(r, "name"))
	record, err := s.catalog.VMByName(ctx, reportID, name)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, catalog.ErrVMNotFound) || errors.Is(err, catalog.ErrReportNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	targetRaw := strings.TrimSpace(r.URL.Query().Get("target"))
	if targetRaw == "" {
		targetRaw = record.Target
	}
	target, ok := assessment.ParseTarget(targetRaw)
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown target %q", targetRaw))
		return
	}

	detail := vmDetail{Record: record}
	_, inv, err := s.inventory.LoadInventory(ctx, reportID)
	if err != nil {
		if !errors.Is(err, inventory.ErrReportNotFound) {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		// The catalog row survives without the raw inventory; serve what we have.
		writeJSON(w, http.StatusOK, detail)
		return
	}
	result, err := s.assessor.Assess(ctx, inv, target)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("assess estate: %w", err))
		return
	}
	if score, ok := result.Scores[record.Name]; ok {
		detail.Score = &score
	}
	if verdict, ok := result.Verdicts[record.Name]; ok {
		detail.Verdict = &verdict
	}
	for _, item := range result.Remediations {
		if item.VMName == record.Name {
			detail.Remediations = append(detail.Remediations, item)
		}
	}

	topo := topology.NewService()
	topo.Refresh(inv)
	neighbors, err := topo.Neighbors(ctx, record.Name, neighborLimit)
	if err != nil {
		logger.Warn("api: neighbor lookup failed", "report", reportID, "vm", record.Name, "error", err)
	} else {
		detail.Neighbors = neighbors
	}

	if vm, ok := inv.VMByName(record.Name); ok {
		if diskMiB := inv.TotalDiskMiB(vm); diskMiB > 0 {
			vm.ProvisionedMiB = diskMiB
		}
		if match, err := s.targets.Match(targets.ForVM(vm, target)); err == nil {
			detail.Profile = &match
		}
		if s.estimator != nil {
			if estimate, err := s.estimator.EstimateVM(ctx, vm, target); err == nil {
				detail.Estimate = &estimate
			} else {
				logger.Warn("api: vm estimate failed", "report", reportID, "vm", record.Name, "error", err)
			}
		}
	}
	writeJSON(w, http.StatusOK, detail)
}
