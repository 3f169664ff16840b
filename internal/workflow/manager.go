// File path: internal/workflow/manager.go
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nicodishanthj/Peregrine_phase1/internal/assessment"
	"github.com/nicodishanthj/Peregrine_phase1/internal/catalog"
	"github.com/nicodishanthj/Peregrine_phase1/internal/common"
	"github.com/nicodishanthj/Peregrine_phase1/internal/cost"
	"github.com/nicodishanthj/Peregrine_phase1/internal/insights"
	"github.com/nicodishanthj/Peregrine_phase1/internal/inventory"
)

const maxLogEntries = 500

var (
	ErrWorkflowRunning    = errors.New("workflow already running")
	ErrWorkflowNotFound   = errors.New("workflow not found")
	ErrWorkflowNotRunning = errors.New("workflow not running")
	ErrArtifactNotFound   = errors.New("artifact not available")
	ErrArtifactInvalid    = errors.New("artifact invalid")
)

type Kind string

const (
	KindAssessment   Kind = "assessment"
	KindExportBundle Kind = "export-bundle"
)

type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepSkipped   StepStatus = "skipped"
	StepError     StepStatus = "error"
)

type LogEntry struct {
	Time    time.Time `json:"time"`
	Level   string    `json:"level"`
	Message string    `json:"message"`
}

type Step struct {
	Name        string     `json:"name"`
	Status      StepStatus `json:"status"`
	Message     string     `json:"message,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// State is the externally visible snapshot of one report's workflow run.
type State struct {
	Status      string              `json:"status"`
	Running     bool                `json:"running"`
	StartedAt   *time.Time          `json:"started_at,omitempty"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
	Steps       []Step              `json:"steps"`
	Error       string              `json:"error,omitempty"`
	Summary     *assessment.Summary `json:"summary,omitempty"`
	Artifacts   map[string]string   `json:"artifacts,omitempty"`
	Bundle      string              `json:"bundle,omitempty"`
	Request     Request             `json:"request"`
}

type session struct {
	state  State
	cancel context.CancelFunc
}

// Manager owns the background assessment and export runs, one at a time per
// report, and persists finished states so status survives restarts.
type Manager struct {
	inventory *inventory.Store
	catalog   catalog.Store
	assessor  *assessment.Assessor
	estimator *cost.Estimator
	insights  *insights.Runner

	historyPath string
	historyMu   sync.Mutex
	history     map[string]State

	logMu sync.Mutex
	logs  []LogEntry

	workflowMu sync.Mutex
	workflows  map[string]*session

	artifactRoot string
}

func NewManager(inv *inventory.Store, cat catalog.Store, assessor *assessment.Assessor, estimator *cost.Estimator, runner *insights.Runner, artifactRoot string) *Manager {
	mgr := &Manager{
		inventory: inv,
		catalog:   cat,
		assessor:  assessor,
		estimator: estimator,
		insights:  runner,
		logs:      make([]LogEntry, 0, 32),
		workflows: make(map[string]*session),
		history:   make(map[string]State),
	}
	root := strings.TrimSpace(artifactRoot)
	if root == "" {
		root = filepath.Join(os.TempDir(), "peregrine_artifacts")
	}
	mgr.artifactRoot = root
	if err := os.MkdirAll(root, 0o755); err != nil {
		common.Logger().Warn("workflow: create artifact root failed", "error", err, "path", root)
		mgr.artifactRoot = ""
	} else {
		mgr.historyPath = filepath.Join(root, "reports_history.json")
	}
	if err := mgr.loadHistory(); err != nil {
		common.Logger().Warn("workflow: load history failed", "error", err)
	}
	return mgr
}

// ArtifactRoot returns the directory exported artifacts are written under.
func (m *Manager) ArtifactRoot() string {
	return m.artifactRoot
}

func (m *Manager) AppendLog(level, format string, args ...interface{}) {
	text := fmt.Sprintf(format, args...)
	entry := LogEntry{Time: time.Now().UTC(), Level: level, Message: text}
	m.logMu.Lock()
	m.logs = append(m.logs, entry)
	if len(m.logs) > maxLogEntries {
		m.logs = m.logs[len(m.logs)-maxLogEntries:]
	}
	m.logMu.Unlock()
	logger := common.Logger()
	switch level {
	case "error":
		logger.Error(text)
	case "warn":
		logger.Warn(text)
	case "debug":
		logger.Debug(text)
	default:
		logger.Info(text)
	}
}

func (m *Manager) Logs() []LogEntry {
	m.logMu.Lock()
	defer m.logMu.Unlock()
	entries := make([]LogEntry, len(m.logs))
	copy(entries, m.logs)
	return entries
}

// Start launches the workflow described by the request in the background.
// One workflow per report runs at a time regardless of kind.
func (m *Manager) Start(req Request) error {
	normalized, err := normalizeRequest(req)
	if err != nil {
		return err
	}
	steps := buildWorkflowSteps(normalized.kind)
	if len(steps) == 0 {
		return fmt.Errorf("no steps configured for workflow %s", normalized.Flow)
	}
	now := time.Now().UTC()
	state := State{
		Status:      "running",
		Running:     true,
		StartedAt:   &now,
		CompletedAt: nil,
		Steps:       steps,
		Error:       "",
		Request:     normalized,
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.workflowMu.Lock()
	if existing, ok := m.workflows[normalized.ReportID]; ok && existing.state.Running {
		m.workflowMu.Unlock()
		cancel()
		return ErrWorkflowRunning
	}
	m.workflows[normalized.ReportID] = &session{state: state, cancel: cancel}
	m.workflowMu.Unlock()
	go m.runWorkflow(ctx, normalized.ReportID, normalized)
	m.AppendLog("info", "Workflow started (%s) for report %s targeting %s", normalized.kind, normalized.ReportID, normalized.Target)
	return nil
}

func (m *Manager) Stop(reportID string) error {
	reportID = strings.TrimSpace(reportID)
	if reportID == "" {
		return fmt.Errorf("report id required")
	}
	m.workflowMu.Lock()
	session, ok := m.workflows[reportID]
	if !ok {
		m.workflowMu.Unlock()
		return ErrWorkflowNotFound
	}
	if !session.state.Running || session.cancel == nil {
		m.workflowMu.Unlock()
		return ErrWorkflowNotRunning
	}
	if session.state.Status != "canceling" {
		session.state.Status = "canceling"
	}
	cancel := session.cancel
	m.workflowMu.Unlock()
	cancel()
	m.AppendLog("info", "Cancellation requested for report %s", reportID)
	return nil
}

// Status returns the live session when one exists, the persisted history
// entry otherwise, and an idle state when the report has never run.
func (m *Manager) Status(reportID string) State {
	reportID = strings.TrimSpace(reportID)
	if reportID == "" {
		return newState()
	}

	m.workflowMu.Lock()
	session, ok := m.workflows[reportID]
	if ok {
		snapshot := cloneState(session.state)
		m.workflowMu.Unlock()
		return snapshot
	}
	m.workflowMu.Unlock()

	m.historyMu.Lock()
	historyState, ok := m.history[reportID]
	if ok {
		snapshot := cloneState(historyState)
		m.historyMu.Unlock()
		return snapshot
	}
	m.historyMu.Unlock()

	result := newState()
	result.Request.ReportID = reportID
	return result
}

// BundlePath resolves the packaged export bundle for download.
func (m *Manager) BundlePath(reportID string) (string, error) {
	reportID = strings.TrimSpace(reportID)
	if reportID == "" {
		return "", fmt.Errorf("report id required")
	}
	state := m.Status(reportID)
	bundle := strings.TrimSpace(state.Bundle)
	if bundle == "" {
		return "", ErrArtifactNotFound
	}
	return m.validateArtifactPath(bundle)
}

// ArtifactPath resolves a single rendered artifact by format name.
func (m *Manager) ArtifactPath(reportID, format string) (string, error) {
	reportID = strings.TrimSpace(reportID)
	if reportID == "" {
		return "", fmt.Errorf("report id required")
	}
	formatKey := strings.ToLower(strings.TrimSpace(format))
	if formatKey == "" || formatKey == "bundle" {
		return m.BundlePath(reportID)
	}
	state := m.Status(reportID)
	var artifact string
	for key, value := range state.Artifacts {
		if strings.EqualFold(strings.TrimSpace(key), formatKey) {
			artifact = strings.TrimSpace(value)
			break
		}
	}
	if artifact == "" {
		return "", ErrArtifactNotFound
	}
	return m.validateArtifactPath(artifact)
}

func (m *Manager) validateArtifactPath(path string) (string, error) {
	absPath, err := filepath.Abs(strings.TrimSpace(path))
	if err != nil {
		return "", fmt.Errorf("resolve artifact path: %w", err)
	}
	root := strings.TrimSpace(m.artifactRoot)
	if root != "" {
		rootAbs, err := filepath.Abs(root)
		if err != nil {
			return "", fmt.Errorf("resolve artifact root: %w", err)
		}
		rel, err := filepath.Rel(rootAbs, absPath)
		if err != nil {
			return "", fmt.Errorf("resolve artifact path: %w", err)
		}
		if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
			return "", ErrArtifactInvalid
		}
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("stat artifact: %w", err)
	}
	if info.IsDir() {
		return "", ErrArtifactInvalid
	}
	return absPath, nil
}

func newState() State {
	return State{Status: "idle", Steps: []Step{}}
}

func cloneState(src State) State {
	clone := src
	if len(src.Steps) > 0 {
		clone.Steps = append([]Step(nil), src.Steps...)
	}
	if src.Summary != nil {
		summary := *src.Summary
		clone.Summary = &summary
	}
	if len(src.Artifacts) > 0 {
		clone.Artifacts = make(map[string]string, len(src.Artifacts))
		for key, value := range src.Artifacts {
			clone.Artifacts[key] = value
		}
	}
	clone.Request.Formats = append([]string(nil), src.Request.Formats...)
	if src.Request.WaveOptions != nil {
		opts := *src.Request.WaveOptions
		clone.Request.WaveOptions = &opts
	}
	return clone
}

func (m *Manager) loadHistory() error {
	if m.historyPath == "" {
		return nil
	}
	data, err := os.ReadFile(m.historyPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if len(data) == 0 {
		return nil
	}
	var stored map[string]State
	if err := json.Unmarshal(data, &stored); err != nil {
		return err
	}
	for id, state := range stored {
		trimmed := strings.TrimSpace(id)
		if trimmed == "" {
			continue
		}
		snapshot := cloneState(state)
		if snapshot.Request.ReportID == "" {
			snapshot.Request.ReportID = trimmed
		}
		m.history[trimmed] = snapshot
	}
	return nil
}

func (m *Manager) saveHistoryLocked() error {
	if m.historyPath == "" {
		return nil
	}
	tmpPath := m.historyPath + ".tmp"
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(file)
	if err := enc.Encode(m.history); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, m.historyPath)
}

func (m *Manager) persistReportState(reportID string, state State) {
	reportID = strings.TrimSpace(reportID)
	if reportID == "" {
		return
	}
	snapshot := cloneState(state)
	if snapshot.Request.ReportID == "" {
		snapshot.Request.ReportID = reportID
	}
	m.historyMu.Lock()
	if m.history == nil {
		m.history = make(map[string]State)
	}
	m.history[reportID] = snapshot
	if err := m.saveHistoryLocked(); err != nil {
		common.Logger().Warn("workflow: save history failed", "error", err)
	}
	m.historyMu.Unlock()
}

// ReportStates merges persisted history with live sessions, live winning.
func (m *Manager) ReportStates() map[string]State {
	result := make(map[string]State)
	m.historyMu.Lock()
	for id, state := range m.history {
		result[id] = cloneState(state)
	}
	m.historyMu.Unlock()
	m.workflowMu.Lock()
	for id, session := range m.workflows {
		result[id] = cloneState(session.state)
	}
	m.workflowMu.Unlock()
	return result
}

// DropHistory removes the stored state for a deleted report. A workflow
// that is still running keeps its session.
func (m *Manager) DropHistory(reportID string) {
	reportID = strings.TrimSpace(reportID)
	if reportID == "" {
		return
	}
	m.workflowMu.Lock()
	if existing, ok := m.workflows[reportID]; ok && !existing.state.Running {
		delete(m.workflows, reportID)
	}
	m.workflowMu.Unlock()
	m.historyMu.Lock()
	if _, ok := m.history[reportID]; ok {
		delete(m.history, reportID)
		if err := m.saveHistoryLocked(); err != nil {
			common.Logger().Warn("workflow: save history failed", "error", err)
		}
	}
	m.historyMu.Unlock()
}

func safeFileComponent(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "report"
	}
	var builder strings.Builder
	for _, r := range trimmed {
		switch {
		case r >= 'a' && r <= 'z':
			builder.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			builder.WriteRune(r + 32)
		case r >= '0' && r <= '9':
			builder.WriteRune(r)
		case r == '-', r == '_':
			builder.WriteRune('-')
		default:
			builder.WriteRune('-')
		}
	}
	sanitized := strings.Trim(builder.String(), "-")
	if sanitized == "" {
		return "report"
	}
	return sanitized
}
