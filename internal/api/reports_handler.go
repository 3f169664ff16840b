// File path: internal/api/reports_handler.go
package api

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	chi "github.com/go-chi/chi/v5"

	"github.com/nicodishanthj/Peregrine_phase1/internal/assessment"
	"github.com/nicodishanthj/Peregrine_phase1/internal/catalog"
	"github.com/nicodishanthj/Peregrine_phase1/internal/common"
	"github.com/nicodishanthj/Peregrine_phase1/internal/inventory"
	"github.com/nicodishanthj/Peregrine_phase1/internal/rvtools"
	"github.com/nicodishanthj/Peregrine_phase1/internal/workflow"
)

func (s *Server) handleReportUpload(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		s.handleReportUploadJSON(w, r)
		return
	}
	logger := common.Logger()
	const maxMemory = 64 << 20 // 64 MiB of in-memory file parts
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		logger.Warn("api: upload form parse failed", "error", err)
		writeError(w, http.StatusBadRequest, fmt.Errorf("failed to parse upload form: %w", err))
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("workbook file required: %w", err))
		return
	}
	defer file.Close()

	name := strings.TrimSpace(header.Filename)
	if name == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("file name required"))
		return
	}
	cleaned := filepath.Clean(name)
	if cleaned == "." || cleaned == "" || filepath.IsAbs(cleaned) || strings.HasPrefix(cleaned, "..") {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid file path: %s", name))
		return
	}
	name = filepath.Base(cleaned)

	workspace, err := os.MkdirTemp(s.uploadRoot, "upload-")
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("create workspace: %w", err))
		return
	}
	defer func() {
		if err := os.RemoveAll(workspace); err != nil {
			logger.Warn("api: cleanup workspace failed", "workspace", workspace, "error", err)
		}
	}()
	stagedPath := filepath.Join(workspace, name)
	staged, err := os.OpenFile(stagedPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("create staged file: %w", err))
		return
	}
	if _, err := io.Copy(staged, file); err != nil {
		_ = staged.Close()
		writeError(w, http.StatusInternalServerError, fmt.Errorf("write staged file: %w", err))
		return
	}
	if err := staged.Close(); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("close staged file: %w", err))
		return
	}

	workbook, err := os.Open(stagedPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("open staged file: %w", err))
		return
	}
	defer workbook.Close()
	s.ingestWorkbook(w, r, workbook, name, r.FormValue("target"))
}

func (s *Server) handleReportUploadJSON(w http.ResponseWriter, r *http.Request) {
	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	name := strings.TrimSpace(req.FileName)
	if name == "" {
		name = "rvtools.xlsx"
	}
	name = filepath.Base(filepath.Clean(name))
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("content required"))
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode content: %w", err))
		return
	}
	s.ingestWorkbook(w, r, bytes.NewReader(data), name, req.Target)
}

// ingestWorkbook parses one workbook, persists it as a new report, and kicks
// off the assessment workflow for it.
func (s *Server) ingestWorkbook(w http.ResponseWriter, r *http.Request, workbook io.Reader, name, target string) {
	logger := common.Logger()
	ctx := r.Context()
	if _, ok := assessment.ParseTarget(target); !ok {
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown target %q", target))
		return
	}
	inv, err := rvtools.ParseWorkbook(ctx, workbook, name)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("parse workbook: %w", err))
		return
	}
	reportID := newReportID()
	now := time.Now().UTC()
	meta := inventory.Meta{ReportID: reportID, SourceFile: name, UploadedAt: now}
	if err := s.inventory.SaveInventory(ctx, meta, inv); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("save inventory: %w", err))
		return
	}
	if err := s.catalog.UpsertReport(ctx, catalog.ReportUpsert{
		ReportID:   reportID,
		SourceFile: name,
		UploadedAt: now,
		VMCount:    len(inv.VMs),
	}); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("catalog report: %w", err))
		return
	}
	if err := s.catalog.RecordAudit(ctx, reportID, "report_uploaded", fmt.Sprintf("source=%s vms=%d", name, len(inv.VMs))); err != nil {
		logger.Warn("api: record upload audit failed", "report", reportID, "error", err)
	}

	resp := uploadResponse{
		ReportID:   reportID,
		SourceFile: name,
		VMCount:    len(inv.VMs),
		Warnings:   inv.Warnings,
	}
	if err := s.workflow.Start(workflow.Request{ReportID: reportID, Target: target}); err != nil {
		logger.Warn("api: assessment workflow not started", "report", reportID, "error", err)
	} else {
		resp.Workflow = "started"
	}
	logger.Info("api: report uploaded", "report", reportID, "source", name, "vms", len(inv.VMs), "warnings", len(inv.Warnings))
	writeJSON(w, http.StatusAccepted, resp)
}

func newReportID() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("rpt-%d", time.Now().UnixNano())
	}
	return "rpt-" + hex.EncodeToString(buf)
}

func (s *Server) handleReportList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reports, err := s.catalog.ListReports(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("list reports: %w", err))
		return
	}
	states := s.workflow.ReportStates()
	entries := make([]reportSummaryEntry, 0, len(reports))
	seen := make(map[string]struct{}, len(reports))
	for _, rep := range reports {
		entry := reportSummaryEntry{Report: rep}
		if state, ok := states[rep.ReportID]; ok {
			stateCopy := state
			entry.State = &stateCopy
		}
		seen[rep.ReportID] = struct{}{}
		entries = append(entries, entry)
	}
	// Reports known only to the workflow history still show up in the list.
	extra := make([]string, 0)
	for id := range states {
		if _, ok := seen[id]; !ok {
			extra = append(extra, id)
		}
	}
	sort.Strings(extra)
	for _, id := range extra {
		state := states[id]
		entries = append(entries, reportSummaryEntry{
			Report: catalog.Report{ReportID: id},
			State:  &state,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reports": entries})
}

func (s *Server) handleReportGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reportID := strings.TrimSpace(chi.URLParam(r, "reportID"))
	rep, err := s.catalog.GetReport(ctx, reportID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, catalog.ErrReportNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	entry := reportSummaryEntry{Report: rep}
	state := s.workflow.Status(reportID)
	if state.Status != "idle" {
		entry.State = &state
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleReportDelete(w http.ResponseWriter, r *http.Request) {
	logger := common.Logger()
	ctx := r.Context()
	reportID := strings.TrimSpace(chi.URLParam(r, "reportID"))
	if reportID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("report id required"))
		return
	}
	if err := s.catalog.DeleteReport(ctx, reportID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, catalog.ErrReportNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, fmt.Errorf("delete catalog report: %w", err))
		return
	}
	if err := s.inventory.DeleteReport(reportID); err != nil && !errors.Is(err, inventory.ErrReportNotFound) {
		logger.Warn("api: delete stored inventory failed", "report", reportID, "error", err)
	}
	s.workflow.DropHistory(reportID)
	logger.Info("api: report deleted", "report", reportID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "report_id": reportID})
}

func (s *Server) handleReportSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reportID := strings.TrimSpace(chi.URLParam(r, "reportID"))
	target, ok := assessment.ParseTarget(r.URL.Query().Get("target"))
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Errorf("unknown target %q", r.URL.Query().Get("target")))
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
	writeJSON(w, http.StatusOK, result.Summary)
}
