// File path: internal/api/exports_handler.go
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	chi "github.com/go-chi/chi/v5"

	"github.com/nicodishanthj/Peregrine_phase1/internal/common"
	"github.com/nicodishanthj/Peregrine_phase1/internal/workflow"
)

func (s *Server) handleExportStart(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	start := workflow.Request{
		ReportID:        strings.TrimSpace(req.ReportID),
		Target:          req.Target,
		Formats:         req.Formats,
		IncludeInsights: req.IncludeInsights,
		Namespace:       req.Namespace,
		StorageClass:    req.StorageClass,
		WaveOptions:     req.WaveOptions,
		Flow:            "export",
	}
	if err := s.workflow.Start(start); err != nil {
		writeError(w, workflowErrStatus(err), err)
		return
	}
	common.Logger().Info("api: export workflow started", "report", start.ReportID, "formats", strings.Join(req.Formats, ","))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started", "report_id": start.ReportID})
}

func (s *Server) handleExportStatus(w http.ResponseWriter, r *http.Request) {
	reportID := strings.TrimSpace(chi.URLParam(r, "reportID"))
	if reportID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("report id required"))
		return
	}
	writeJSON(w, http.StatusOK, s.workflow.Status(reportID))
}

func (s *Server) handleExportDownload(w http.ResponseWriter, r *http.Request) {
	reportID := strings.TrimSpace(chi.URLParam(r, "reportID"))
	if reportID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("report id required"))
		return
	}
	artifact := strings.TrimSpace(r.URL.Query().Get("artifact"))
	artifactPath, err := s.workflow.ArtifactPath(reportID, artifact)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, workflow.ErrArtifactNotFound):
			status = http.StatusNotFound
		case errors.Is(err, workflow.ErrArtifactInvalid):
			status = http.StatusForbidden
		case errors.Is(err, os.ErrNotExist):
			status = http.StatusNotFound
		default:
			if strings.Contains(err.Error(), "required") {
				status = http.StatusBadRequest
			}
		}
		writeError(w, status, err)
		return
	}
	file, err := os.Open(artifactPath)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, os.ErrNotExist) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	name := filepath.Base(artifactPath)
	w.Header().Set("Content-Type", detectContentType(name))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", name))
	http.ServeContent(w, r, name, info.ModTime(), file)
}

func detectContentType(name string) string {
	switch strings.ToLower(filepath.Ext(strings.TrimSpace(name))) {
	case ".zip":
		return "application/zip"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".pdf":
		return "application/pdf"
	case ".yaml", ".yml":
		return "application/yaml"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

func workflowErrStatus(err error) int {
	switch {
	case errors.Is(err, workflow.ErrWorkflowRunning):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrWorkflowNotFound):
		return http.StatusNotFound
	case errors.Is(err, workflow.ErrWorkflowNotRunning):
		return http.StatusConflict
	default:
		if strings.Contains(err.Error(), "required") || strings.Contains(err.Error(), "unknown") {
			return http.StatusBadRequest
		}
		return http.StatusInternalServerError
	}
}
