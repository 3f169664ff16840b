// File path: internal/workflow/runner.go
package workflow

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nicodishanthj/Peregrine_phase1/internal/assessment"
	"github.com/nicodishanthj/Peregrine_phase1/internal/catalog"
	"github.com/nicodishanthj/Peregrine_phase1/internal/common/telemetry"
	"github.com/nicodishanthj/Peregrine_phase1/internal/cost"
	"github.com/nicodishanthj/Peregrine_phase1/internal/export"
	"github.com/nicodishanthj/Peregrine_phase1/internal/export/mtv"
	"github.com/nicodishanthj/Peregrine_phase1/internal/insights"
	"github.com/nicodishanthj/Peregrine_phase1/internal/rvtools"
)

func (m *Manager) runWorkflow(ctx context.Context, reportID string, req Request) {
	switch req.kind {
	case KindExportBundle:
		m.runExportBundleWorkflow(ctx, reportID, req)
	default:
		m.runAssessmentWorkflow(ctx, reportID, req)
	}
}

func (m *Manager) runAssessmentWorkflow(ctx context.Context, reportID string, req Request) {
	const (
		loadStep    = 0
		assessStep  = 1
		costStep    = 2
		persistStep = 3
	)
	if m.workflowCanceled(ctx, reportID) {
		return
	}
	m.setWorkflowStep(reportID, loadStep, StepRunning, "Loading stored inventory")
	meta, inv, err := m.inventory.LoadInventory(ctx, reportID)
	if err != nil {
		if isCanceledErr(err) {
			m.markWorkflowCanceled(reportID, err)
		} else {
			m.failWorkflow(reportID, loadStep, err)
		}
		return
	}
	loadMsg := fmt.Sprintf("Loaded %d VMs from %s", len(inv.VMs), meta.SourceFile)
	if len(inv.Warnings) > 0 {
		loadMsg += fmt.Sprintf(" (%d parser warnings)", len(inv.Warnings))
	}
	m.setWorkflowStep(reportID, loadStep, StepCompleted, loadMsg)

	if m.workflowCanceled(ctx, reportID) {
		return
	}
	m.setWorkflowStep(reportID, assessStep, StepRunning, fmt.Sprintf("Scoring estate against %s", req.target))
	result, err := m.assess(ctx, inv, req)
	if err != nil {
		if isCanceledErr(err) {
			m.markWorkflowCanceled(reportID, err)
		} else {
			m.failWorkflow(reportID, assessStep, err)
		}
		return
	}
	m.setSummary(reportID, result.Summary)
	m.setWorkflowStep(reportID, assessStep, StepCompleted, fmt.Sprintf(
		"Assessed %d VMs: %d blockers, %d waves, %.0f%% ready",
		result.Summary.VMCount, result.Summary.Bands[assessment.BandBlocker],
		len(result.Waves), result.Summary.ReadinessPercent))

	if m.workflowCanceled(ctx, reportID) {
		return
	}
	var estate *cost.Estate
	if m.estimator == nil {
		m.setWorkflowStep(reportID, costStep, StepSkipped, "No cost estimator configured")
	} else {
		m.setWorkflowStep(reportID, costStep, StepRunning, "Pricing matched profiles")
		estate, err = m.estimator.EstimateEstate(ctx, inv, result.Scores, req.target)
		if err != nil {
			if isCanceledErr(err) {
				m.markWorkflowCanceled(reportID, err)
				return
			}
			m.failWorkflow(reportID, costStep, err)
			return
		}
		m.setWorkflowStep(reportID, costStep, StepCompleted, estateMessage(estate))
	}

	if m.workflowCanceled(ctx, reportID) {
		return
	}
	if m.catalog == nil {
		m.setWorkflowStep(reportID, persistStep, StepSkipped, "No catalog store configured")
		m.completeWorkflow(reportID)
		return
	}
	m.setWorkflowStep(reportID, persistStep, StepRunning, "Persisting assessment to catalog")
	if err := m.persistCatalog(ctx, reportID, meta.SourceFile, meta.UploadedAt, inv, result, estate); err != nil {
		if isCanceledErr(err) {
			m.markWorkflowCanceled(reportID, err)
		} else {
			m.failWorkflow(reportID, persistStep, err)
		}
		return
	}
	m.setWorkflowStep(reportID, persistStep, StepCompleted, fmt.Sprintf(
		"Cataloged %d VMs, %d waves, %d remediation items",
		len(inv.VMs), len(result.Waves), len(result.Remediations)))
	m.completeWorkflow(reportID)
}

func (m *Manager) runExportBundleWorkflow(ctx context.Context, reportID string, req Request) {
	const (
		loadStep      = 0
		costStep      = 1
		narrativeStep = 2
		renderStep    = 3
		packageStep   = 4
	)
	if m.workflowCanceled(ctx, reportID) {
		return
	}
	m.setWorkflowStep(reportID, loadStep, StepRunning, "Loading report data")
	meta, inv, err := m.inventory.LoadInventory(ctx, reportID)
	if err != nil {
		if isCanceledErr(err) {
			m.markWorkflowCanceled(reportID, err)
		} else {
			m.failWorkflow(reportID, loadStep, err)
		}
		return
	}
	result, err := m.assess(ctx, inv, req)
	if err != nil {
		if isCanceledErr(err) {
			m.markWorkflowCanceled(reportID, err)
		} else {
			m.failWorkflow(reportID, loadStep, err)
		}
		return
	}
	m.setSummary(reportID, result.Summary)
	m.setWorkflowStep(reportID, loadStep, StepCompleted, fmt.Sprintf(
		"Assessed %d VMs against %s", result.Summary.VMCount, req.target))

	if m.workflowCanceled(ctx, reportID) {
		return
	}
	var estate *cost.Estate
	if m.estimator == nil {
		m.setWorkflowStep(reportID, costStep, StepSkipped, "No cost estimator configured")
	} else {
		m.setWorkflowStep(reportID, costStep, StepRunning, "Pricing matched profiles")
		estate, err = m.estimator.EstimateEstate(ctx, inv, result.Scores, req.target)
		if err != nil {
			if isCanceledErr(err) {
				m.markWorkflowCanceled(reportID, err)
				return
			}
			m.failWorkflow(reportID, costStep, err)
			return
		}
		m.setWorkflowStep(reportID, costStep, StepCompleted, estateMessage(estate))
	}

	if m.workflowCanceled(ctx, reportID) {
		return
	}
	narrative := ""
	switch {
	case !req.IncludeInsights:
		m.setWorkflowStep(reportID, narrativeStep, StepSkipped, "Narrative not requested")
	case m.insights == nil:
		m.setWorkflowStep(reportID, narrativeStep, StepSkipped, "No insights runner configured")
	default:
		m.setWorkflowStep(reportID, narrativeStep, StepRunning, "Composing narrative sections")
		data := &insights.ReportData{ReportID: reportID, Assessment: result, Estate: estate}
		sections, err := m.insights.Report(ctx, data)
		if err != nil {
			if isCanceledErr(err) {
				m.markWorkflowCanceled(reportID, err)
				return
			}
			// The bundle stays useful without prose; degrade instead of failing.
			m.AppendLog("warn", "Narrative generation failed for report %s: %v", reportID, err)
			m.setWorkflowStep(reportID, narrativeStep, StepSkipped, fmt.Sprintf("Narrative unavailable: %v", err))
		} else {
			narrative = joinSections(sections)
			m.setWorkflowStep(reportID, narrativeStep, StepCompleted, fmt.Sprintf("Composed %d narrative sections", len(sections)))
		}
	}

	if m.workflowCanceled(ctx, reportID) {
		return
	}
	m.setWorkflowStep(reportID, renderStep, StepRunning, "Rendering report artifacts")
	rep := export.FromResult(reportID, meta.SourceFile, inv, result, estate)
	rep.Insight = narrative
	stageDir, artifacts, rendered, err := m.renderArtifacts(ctx, reportID, req, inv, result, rep)
	if err != nil {
		if isCanceledErr(err) {
			m.markWorkflowCanceled(reportID, err)
		} else {
			m.failWorkflow(reportID, renderStep, err)
		}
		return
	}
	m.setArtifacts(reportID, artifacts)
	m.setWorkflowStep(reportID, renderStep, StepCompleted, fmt.Sprintf("Rendered artifacts: %s", strings.Join(rendered, ", ")))

	if m.workflowCanceled(ctx, reportID) {
		return
	}
	m.setWorkflowStep(reportID, packageStep, StepRunning, "Packaging download bundle")
	bundlePath, err := m.packageBundle(ctx, reportID, stageDir)
	if err != nil {
		if isCanceledErr(err) {
			m.markWorkflowCanceled(reportID, err)
		} else {
			m.failWorkflow(reportID, packageStep, err)
		}
		return
	}
	m.setBundle(reportID, bundlePath)
	m.setWorkflowStep(reportID, packageStep, StepCompleted, fmt.Sprintf("Bundle ready: %s", filepath.Base(bundlePath)))
	m.completeWorkflow(reportID)
}

// assess runs the pipeline, applying a per-run wave override when requested.
func (m *Manager) assess(ctx context.Context, inv *rvtools.Inventory, req Request) (*assessment.Result, error) {
	result, err := m.assessor.Assess(ctx, inv, req.target)
	if err != nil {
		return nil, err
	}
	if req.WaveOptions != nil {
		waves, err := m.assessor.Replan(ctx, inv, result.Scores, *req.WaveOptions)
		if err != nil {
			return nil, err
		}
		result.Waves = waves
	}
	return result, nil
}

func (m *Manager) persistCatalog(ctx context.Context, reportID, sourceFile string, uploadedAt time.Time, inv *rvtools.Inventory, result *assessment.Result, estate *cost.Estate) error {
	if uploadedAt.IsZero() {
		uploadedAt = time.Now().UTC()
	}
	if err := m.catalog.UpsertReport(ctx, catalog.ReportUpsert{
		ReportID:   reportID,
		SourceFile: sourceFile,
		UploadedAt: uploadedAt,
		VMCount:    len(inv.VMs),
	}); err != nil {
		return fmt.Errorf("upsert report: %w", err)
	}

	estimates := make(map[string]cost.VMEstimate)
	if estate != nil {
		for _, est := range estate.VMs {
			estimates[est.VMName] = est
		}
	}
	upserts := make([]catalog.VMUpsert, 0, len(inv.VMs))
	for _, vm := range inv.VMs {
		score := result.Scores[vm.Name]
		verdict := result.Verdicts[vm.Name]
		upsert := catalog.VMUpsert{
			Name:        vm.Name,
			MoRef:       vm.MoRef,
			Cluster:     vm.Cluster,
			Host:        vm.Host,
			PowerState:  vm.PowerState,
			GuestOS:     vm.GuestOS,
			OSFamily:    assessment.FamilyOf(verdict.Key),
			CPUs:        vm.CPUs,
			MemoryMiB:   vm.MemoryMiB,
			DiskMiB:     inv.TotalDiskMiB(vm),
			Template:    vm.Template || vm.SRMPlaceholder,
			Fingerprint: vm.Fingerprint(),
			Assessment: &catalog.AssessmentUpsert{
				Target:    string(result.Target),
				Score:     score.Total,
				Band:      string(score.Band),
				HardBlock: score.HardBlock,
				Support:   string(verdict.Level),
				Caveats:   strings.Join(verdict.Caveats, "; "),
			},
		}
		if est, ok := estimates[vm.Name]; ok {
			upsert.Assessment.Profile = est.Profile
			upsert.Assessment.MonthlyUSD = est.TotalMonthlyUSD
		}
		upserts = append(upserts, upsert)
	}
	if err := m.catalog.BatchUpsertVMs(ctx, reportID, upserts); err != nil {
		return fmt.Errorf("upsert vms: %w", err)
	}
	if err := m.catalog.SaveWaves(ctx, reportID, result.Waves); err != nil {
		return fmt.Errorf("save waves: %w", err)
	}
	if err := m.catalog.SaveRemediations(ctx, reportID, result.Remediations); err != nil {
		return fmt.Errorf("save remediations: %w", err)
	}
	detail := fmt.Sprintf("target=%s vms=%d blockers=%d waves=%d",
		result.Target, result.Summary.VMCount,
		result.Summary.Bands[assessment.BandBlocker], len(result.Waves))
	if err := m.catalog.RecordAudit(ctx, reportID, "assessment_completed", detail); err != nil {
		return fmt.Errorf("record audit: %w", err)
	}
	return nil
}

// renderArtifacts writes every requested format into a fresh staging
// directory and returns it with the per-format artifact paths.
func (m *Manager) renderArtifacts(ctx context.Context, reportID string, req Request, inv *rvtools.Inventory, result *assessment.Result, rep export.Report) (string, map[string]string, []string, error) {
	root, err := m.ensureArtifactRoot()
	if err != nil {
		return "", nil, nil, err
	}
	safeReport := safeFileComponent(reportID)
	timestamp := time.Now().UTC().Format("20060102T150405Z")
	stageDir := filepath.Join(root, "exports", safeReport, timestamp)
	if err := os.MkdirAll(stageDir, 0o755); err != nil {
		return "", nil, nil, fmt.Errorf("create staging directory: %w", err)
	}

	artifacts := make(map[string]string, len(req.Formats))
	rendered := make([]string, 0, len(req.Formats))
	for _, format := range req.Formats {
		if err := ctx.Err(); err != nil {
			return "", nil, nil, err
		}
		started := time.Now()
		if format == "mtv" {
			opts := mtv.Options{
				ReportID:     reportID,
				Namespace:    req.Namespace,
				StorageClass: req.StorageClass,
			}
			bundle, err := mtv.Generate(inv, result.Waves, opts)
			if err != nil {
				if errors.Is(err, mtv.ErrNoWaves) {
					m.AppendLog("warn", "MTV plans skipped for report %s: no migratable waves", reportID)
					continue
				}
				return "", nil, nil, fmt.Errorf("generate mtv plans: %w", err)
			}
			mtvDir := filepath.Join(stageDir, "mtv")
			if _, err := bundle.WriteBundle(ctx, mtvDir); err != nil {
				return "", nil, nil, fmt.Errorf("write mtv plans: %w", err)
			}
			artifacts["mtv"] = filepath.Join(mtvDir, "all.yaml")
			rendered = append(rendered, format)
			telemetry.RecordExport(format, time.Since(started))
			continue
		}
		exporter, err := export.For(format)
		if err != nil {
			return "", nil, nil, err
		}
		path := filepath.Join(stageDir, artifactFileName(format))
		if err := renderToFile(ctx, exporter, rep, path); err != nil {
			return "", nil, nil, fmt.Errorf("render %s: %w", format, err)
		}
		artifacts[format] = path
		rendered = append(rendered, format)
		telemetry.RecordExport(format, time.Since(started))
	}
	if len(rendered) == 0 {
		return "", nil, nil, fmt.Errorf("no artifacts rendered")
	}
	return stageDir, artifacts, rendered, nil
}

func renderToFile(ctx context.Context, exporter export.Exporter, rep export.Report, path string) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := exporter.Export(ctx, rep, file); err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return err
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(path)
		return err
	}
	return nil
}

func artifactFileName(format string) string {
	switch format {
	case "xlsx":
		return "assessment.xlsx"
	case "pdf":
		return "assessment.pdf"
	case "docx":
		return "runbook.docx"
	default:
		return "assessment." + format
	}
}

// packageBundle zips the staged artifacts into the report's download bundle.
func (m *Manager) packageBundle(ctx context.Context, reportID, stageDir string) (string, error) {
	info, err := os.Stat(stageDir)
	if err != nil {
		return "", fmt.Errorf("locate staged artifacts: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("staged artifact path %s is not a directory", stageDir)
	}
	root, err := m.ensureArtifactRoot()
	if err != nil {
		return "", err
	}
	safeReport := safeFileComponent(reportID)
	timestamp := time.Now().UTC().Format("20060102T150405Z")
	artifactName := fmt.Sprintf("%s-bundle-%s.zip", safeReport, timestamp)
	finalPath := filepath.Join(root, "exports", safeReport, artifactName)
	tempPath := finalPath + ".tmp"

	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("create artifact: %w", err)
	}
	zipWriter := zip.NewWriter(file)
	walkErr := filepath.WalkDir(stageDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		rel, err := filepath.Rel(stageDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if !strings.HasSuffix(rel, "/") {
				rel += "/"
			}
			_, err := zipWriter.Create(rel)
			return err
		}
		fileInfo, err := d.Info()
		if err != nil {
			return err
		}
		header, err := zip.FileInfoHeader(fileInfo)
		if err != nil {
			return err
		}
		header.Name = rel
		header.Method = zip.Deflate
		writer, err := zipWriter.CreateHeader(header)
		if err != nil {
			return err
		}
		inFile, err := os.Open(path)
		if err != nil {
			return err
		}
		_, copyErr := io.Copy(writer, inFile)
		closeErr := inFile.Close()
		if copyErr != nil {
			return copyErr
		}
		return closeErr
	})
	if walkErr != nil {
		_ = zipWriter.Close()
		_ = file.Close()
		_ = os.Remove(tempPath)
		return "", fmt.Errorf("package bundle: %w", walkErr)
	}
	if err := zipWriter.Close(); err != nil {
		_ = file.Close()
		_ = os.Remove(tempPath)
		return "", fmt.Errorf("finalize artifact: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tempPath)
		return "", fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		_ = os.Remove(tempPath)
		return "", fmt.Errorf("finalize artifact: %w", err)
	}
	absPath, err := filepath.Abs(finalPath)
	if err != nil {
		_ = os.Remove(finalPath)
		return "", fmt.Errorf("resolve artifact path: %w", err)
	}
	m.AppendLog("info", "Packaged export bundle for report %s: %s", reportID, absPath)
	return absPath, nil
}

func (m *Manager) ensureArtifactRoot() (string, error) {
	root := strings.TrimSpace(m.artifactRoot)
	if root == "" {
		root = filepath.Join(os.TempDir(), "peregrine_artifacts")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return "", fmt.Errorf("create artifact directory: %w", err)
	}
	if strings.TrimSpace(m.artifactRoot) == "" {
		m.workflowMu.Lock()
		if m.artifactRoot == "" {
			m.artifactRoot = root
		}
		m.workflowMu.Unlock()
	}
	return root, nil
}

func estateMessage(estate *cost.Estate) string {
	msg := fmt.Sprintf("Estimated %s %.2f/month for %d VMs", estate.Currency, estate.TotalMonthlyUSD, len(estate.VMs))
	if len(estate.ExcludedVMs) > 0 {
		msg += fmt.Sprintf(", %d excluded", len(estate.ExcludedVMs))
	}
	if estate.Incomplete {
		msg += fmt.Sprintf(" (%d lookups failed)", len(estate.Errors))
	}
	return msg
}

func joinSections(sections map[string]string) string {
	parts := make([]string, 0, len(sections))
	for _, section := range insights.Sections {
		if text := strings.TrimSpace(sections[section]); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n")
}

func (m *Manager) setSummary(reportID string, summary assessment.Summary) {
	m.workflowMu.Lock()
	session, ok := m.workflows[reportID]
	if !ok {
		m.workflowMu.Unlock()
		return
	}
	session.state.Summary = &summary
	m.workflowMu.Unlock()
}

func (m *Manager) setArtifacts(reportID string, artifacts map[string]string) {
	m.workflowMu.Lock()
	session, ok := m.workflows[reportID]
	if !ok {
		m.workflowMu.Unlock()
		return
	}
	if len(artifacts) == 0 {
		session.state.Artifacts = nil
		m.workflowMu.Unlock()
		return
	}
	clean := make(map[string]string, len(artifacts))
	for key, value := range artifacts {
		trimmedKey := strings.ToLower(strings.TrimSpace(key))
		trimmedValue := strings.TrimSpace(value)
		if trimmedKey == "" || trimmedValue == "" {
			continue
		}
		clean[trimmedKey] = trimmedValue
	}
	if len(clean) == 0 {
		session.state.Artifacts = nil
		m.workflowMu.Unlock()
		return
	}
	session.state.Artifacts = clean
	m.workflowMu.Unlock()
}

func (m *Manager) setBundle(reportID, path string) {
	m.workflowMu.Lock()
	session, ok := m.workflows[reportID]
	if !ok {
		m.workflowMu.Unlock()
		return
	}
	session.state.Bundle = strings.TrimSpace(path)
	m.workflowMu.Unlock()
}

func (m *Manager) setWorkflowStep(reportID string, index int, status StepStatus, message string) {
	m.workflowMu.Lock()
	defer m.workflowMu.Unlock()
	session, ok := m.workflows[reportID]
	if !ok {
		return
	}
	if session.state.Status == "canceled" {
		return
	}
	if index < 0 || index >= len(session.state.Steps) {
		return
	}
	now := time.Now().UTC()
	step := &session.state.Steps[index]
	switch status {
	case StepRunning:
		step.StartedAt = &now
	case StepCompleted, StepSkipped, StepError:
		if step.StartedAt == nil {
			step.StartedAt = &now
		}
		step.CompletedAt = &now
	}
	step.Status = status
	if message != "" {
		step.Message = message
	}
}

func (m *Manager) failWorkflow(reportID string, index int, err error) {
	m.AppendLog("error", "Workflow failed for report %s: %v", reportID, err)
	m.setWorkflowStep(reportID, index, StepError, err.Error())
	m.workflowMu.Lock()
	session, ok := m.workflows[reportID]
	if !ok {
		m.workflowMu.Unlock()
		return
	}
	if session.state.Status == "canceled" {
		m.workflowMu.Unlock()
		return
	}
	now := time.Now().UTC()
	session.state.Status = "error"
	session.state.Running = false
	session.state.CompletedAt = &now
	if err != nil {
		session.state.Error = err.Error()
	} else {
		session.state.Error = ""
	}
	session.cancel = nil
	snapshot := cloneState(session.state)
	m.workflowMu.Unlock()
	m.persistReportState(reportID, snapshot)
}

func (m *Manager) completeWorkflow(reportID string) {
	m.AppendLog("info", "Workflow completed successfully for report %s", reportID)
	m.workflowMu.Lock()
	session, ok := m.workflows[reportID]
	if !ok {
		m.workflowMu.Unlock()
		return
	}
	if session.state.Status == "canceled" {
		m.workflowMu.Unlock()
		return
	}
	now := time.Now().UTC()
	session.state.Status = "completed"
	session.state.Running = false
	session.state.CompletedAt = &now
	session.state.Error = ""
	session.cancel = nil
	snapshot := cloneState(session.state)
	m.workflowMu.Unlock()
	m.persistReportState(reportID, snapshot)
}

func (m *Manager) workflowCanceled(ctx context.Context, reportID string) bool {
	select {
	case <-ctx.Done():
		m.markWorkflowCanceled(reportID, ctx.Err())
		return true
	default:
		return false
	}
}

func (m *Manager) markWorkflowCanceled(reportID string, cause error) {
	m.workflowMu.Lock()
	session, ok := m.workflows[reportID]
	if !ok {
		m.workflowMu.Unlock()
		return
	}
	if session.state.Status == "canceled" {
		m.workflowMu.Unlock()
		return
	}
	now := time.Now().UTC()
	session.state.Status = "canceled"
	session.state.Running = false
	session.state.CompletedAt = &now
	if cause != nil && !isCanceledErr(cause) {
		session.state.Error = cause.Error()
	} else {
		session.state.Error = ""
	}
	for i := range session.state.Steps {
		step := &session.state.Steps[i]
		if step.Status == StepRunning {
			if step.StartedAt == nil {
				step.StartedAt = &now
			}
			step.CompletedAt = &now
			step.Status = StepError
			if step.Message == "" {
				step.Message = "Canceled"
			}
			break
		}
	}
	cancel := session.cancel
	session.cancel = nil
	snapshot := cloneState(session.state)
	m.workflowMu.Unlock()
	if cancel != nil {
		cancel()
	}
	if cause != nil && !isCanceledErr(cause) {
		m.AppendLog("error", "Workflow canceled for report %s: %v", reportID, cause)
	} else {
		m.AppendLog("info", "Workflow canceled for report %s", reportID)
	}
	m.persistReportState(reportID, snapshot)
}

func isCanceledErr(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
