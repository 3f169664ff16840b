// File path: internal/api/server.go
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	chi "github.com/go-chi/chi/v5"

	"github.com/nicodishanthj/Peregrine_phase1/internal/assessment"
	"github.com/nicodishanthj/Peregrine_phase1/internal/catalog"
	"github.com/nicodishanthj/Peregrine_phase1/internal/common"
	"github.com/nicodishanthj/Peregrine_phase1/internal/cost"
	"github.com/nicodishanthj/Peregrine_phase1/internal/data/orchestrator"
	"github.com/nicodishanthj/Peregrine_phase1/internal/ibmcloud"
	"github.com/nicodishanthj/Peregrine_phase1/internal/insights"
	"github.com/nicodishanthj/Peregrine_phase1/internal/inventory"
	"github.com/nicodishanthj/Peregrine_phase1/internal/llm"
	"github.com/nicodishanthj/Peregrine_phase1/internal/targets"
	"github.com/nicodishanthj/Peregrine_phase1/internal/workflow"
)

type Server struct {
	router     chi.Router
	inventory  *inventory.Store
	catalog    catalog.Store
	assessor   *assessment.Assessor
	targets    *targets.Catalog
	estimator  *cost.Estimator
	cloud      ibmcloud.Service
	provider   llm.Provider
	insights   *insights.Runner
	workflow   *workflow.Manager
	uploadRoot string
	uiRoot     string

	orchestrator *orchestrator.Orchestrator
}

// Config controls upload staging and optional UI asset serving.
type Config struct {
	UploadRoot string
	UIRoot     string
}

// DefaultConfig returns the standard configuration used when no overrides are
// provided.
func DefaultConfig() Config {
	return Config{
		UploadRoot: filepath.Join(os.TempDir(), "peregrine_uploads"),
		UIRoot:     filepath.Join("web", "ui"),
	}
}

// Merge overlays non-empty configuration values from the override onto the
// base configuration.
func (c Config) Merge(override Config) Config {
	result := c
	if strings.TrimSpace(override.UploadRoot) != "" {
		result.UploadRoot = strings.TrimSpace(override.UploadRoot)
	}
	if strings.TrimSpace(override.UIRoot) != "" {
		result.UIRoot = strings.TrimSpace(override.UIRoot)
	}
	return result
}

func NewServer(ctx context.Context, orch *orchestrator.Orchestrator, provider llm.Provider, cfg *Config) (*Server, error) {
	logger := common.Logger()
	if orch == nil {
		return nil, fmt.Errorf("orchestrator required")
	}
	invStore := orch.Inventory()
	if invStore == nil {
		return nil, fmt.Errorf("inventory store unavailable")
	}
	catalogStore := orch.Catalog()
	if catalogStore == nil {
		return nil, fmt.Errorf("catalog store unavailable")
	}
	configuration := DefaultConfig()
	if cfg != nil {
		configuration = configuration.Merge(*cfg)
	}
	reports, err := invStore.Reports(ctx)
	if err != nil {
		logger.Error("api: failed to list stored reports", "error", err)
		return nil, err
	}
	providerName := "none"
	var runner *insights.Runner
	if provider != nil {
		providerName = provider.Name()
		runner = insights.NewRunner(provider)
	}
	cloud := orch.Cloud()
	logger.Info(
		"api: building server",
		"reports", len(reports),
		"provider", providerName,
		"cloud_available", cloud != nil && cloud.Available(),
	)
	manager := workflow.NewManager(invStore, catalogStore, orch.Assessor(), orch.Estimator(), runner, orch.ArtifactRoot())

	uploadRoot := configuration.UploadRoot
	if strings.TrimSpace(uploadRoot) == "" {
		uploadRoot = filepath.Join(os.TempDir(), "peregrine_uploads")
	}
	if err := os.MkdirAll(uploadRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create upload root: %w", err)
	}
	srv := &Server{
		router:       chi.NewRouter(),
		inventory:    invStore,
		catalog:      catalogStore,
		assessor:     orch.Assessor(),
		targets:      orch.Targets(),
		estimator:    orch.Estimator(),
		cloud:        cloud,
		provider:     provider,
		insights:     runner,
		workflow:     manager,
		uploadRoot:   uploadRoot,
		uiRoot:       configuration.UIRoot,
		orchestrator: orch,
	}
	srv.routes()
	logger.Info("api: server ready", "routes", true)
	return srv, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Workflow returns the background workflow manager.
func (s *Server) Workflow() *workflow.Manager {
	if s == nil {
		return nil
	}
	return s.workflow
}

func (s *Server) routes() {
	logger := common.Logger()
	logger.Info("api: configuring routes")
	s.router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("request", "method", r.Method, "path", r.URL.Path, "dur", time.Since(start), "remote", r.RemoteAddr)
		})
	})

	s.router.Get("/healthz", s.handleHealth)

	uiPath := s.uiRoot
	if _, err := os.Stat(filepath.Join(uiPath, "index.html")); err != nil {
		logger.Warn("api: ui index missing", "path", filepath.Join(uiPath, "index.html"), "error", err)
	} else {
		logger.Info("api: ui assets located", "path", uiPath)
	}
	fileServer := http.FileServer(http.Dir(uiPath))
	s.router.Get("/ui", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusMovedPermanently)
	})
	s.router.Get("/ui/*", func(w http.ResponseWriter, r *http.Request) {
		trimmed := strings.TrimPrefix(r.URL.Path, "/ui/")
		if trimmed == "" || trimmed == "/" {
			http.ServeFile(w, r, filepath.Join(uiPath, "index.html"))
			return
		}
		http.StripPrefix("/ui/", fileServer).ServeHTTP(w, r)
	})
	s.router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusFound)
	})

	s.router.Post("/v1/reports", s.handleReportUpload)
	s.router.Get("/v1/reports", s.handleReportList)
	s.router.Get("/v1/reports/{reportID}", s.handleReportGet)
	s.router.Delete("/v1/reports/{reportID}", s.handleReportDelete)
	s.router.Get("/v1/reports/{reportID}/summary", s.handleReportSummary)
	s.router.Get("/v1/reports/{reportID}/vms", s.handleVMList)
	s.router.Get("/v1/reports/{reportID}/vms/{name}", s.handleVMDetail)
	s.router.Get("/v1/reports/{reportID}/waves", s.handleWaves)
	s.router.Post("/v1/reports/{reportID}/waves/plan", s.handleWavesPlan)
	s.router.Get("/v1/reports/{reportID}/costs", s.handleReportCosts)
	s.router.Get("/v1/targets/profiles", s.handleTargetProfiles)
	s.router.Get("/v1/pricing/{profile}", s.handleProfilePricing)
	s.router.Post("/v1/insights", s.handleInsights)
	s.router.Post("/v1/exports", s.handleExportStart)
	s.router.Get("/v1/exports/{reportID}/status", s.handleExportStatus)
	s.router.Get("/v1/exports/{reportID}/download", s.handleExportDownload)
	s.router.Get("/v1/workflow/status", s.handleWorkflowStatus)
	s.router.Post("/v1/workflow/stop", s.handleWorkflowStop)
	s.router.Get("/v1/logs", s.handleLogs)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	providerName := "none"
	if s.provider != nil {
		providerName = s.provider.Name()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"dependencies": map[string]interface{}{
			"catalog":  s.catalog != nil,
			"cloud":    s.cloud != nil && s.cloud.Available(),
			"provider": providerName,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	logger := common.Logger()
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
	} else {
		logger.Warn("request failed", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
