// File path: cmd/vma/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/nicodishanthj/Peregrine_phase1/internal/api"
	"github.com/nicodishanthj/Peregrine_phase1/internal/common"
	"github.com/nicodishanthj/Peregrine_phase1/internal/data/orchestrator"
	"github.com/nicodishanthj/Peregrine_phase1/internal/llm"
)

func main() {
	logger := common.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		logger.Warn("peregrine: .env file not loaded", "error", err)
	} else {
		logger.Info("peregrine: environment loaded from .env")
	}

	addr := flag.String("addr", ":8084", "listen address")
	storePath := flag.String("store", "", "directory for stored report inventories")
	catalogPath := flag.String("catalog", "", "path to the SQLite catalog database")
	artifactRoot := flag.String("artifacts", "", "directory for rendered export artifacts")
	uploadRoot := flag.String("uploads", "", "staging directory for workbook uploads")
	uiRoot := flag.String("ui", "", "directory with console UI assets")
	offline := flag.Bool("offline", false, "ignore IBM Cloud credentials and quote from the static price tables")

	flag.Parse()

	logger.Info("peregrine: startup initiated", "addr", *addr)

	orchCfg, err := orchestrator.LoadConfig()
	if err != nil {
		logger.Error("peregrine: orchestrator config load failed", "error", err)
		fmt.Println("orchestrator config error:", err)
		os.Exit(1)
	}
	if trimmed := strings.TrimSpace(*storePath); trimmed != "" {
		orchCfg.StorePath = trimmed
	}
	if trimmed := strings.TrimSpace(*catalogPath); trimmed != "" {
		orchCfg.CatalogPath = trimmed
	}
	if trimmed := strings.TrimSpace(*artifactRoot); trimmed != "" {
		orchCfg.ArtifactRoot = trimmed
	}
	if trimmed := strings.TrimSpace(*uploadRoot); trimmed != "" {
		orchCfg.UploadRoot = trimmed
	}
	if *offline {
		orchCfg.DisableCloud = true
	}

	orch, err := orchestrator.New(ctx, orchCfg)
	if err != nil {
		logger.Error("peregrine: orchestrator initialization failed", "error", err)
		fmt.Println("orchestrator error:", err)
		os.Exit(1)
	}
	defer orch.Close()

	provider := llm.NewProvider()
	logger.Info("peregrine: llm provider ready", "provider", provider.Name())

	if cloud := orch.Cloud(); cloud != nil && cloud.Available() {
		logger.Info("peregrine: ibm cloud pricing live")
	} else {
		logger.Warn("peregrine: ibm cloud unavailable, static price tables in effect")
	}

	cfg := api.DefaultConfig()
	cfg.UploadRoot = orch.UploadRoot()
	if trimmed := strings.TrimSpace(*uiRoot); trimmed != "" {
		cfg.UIRoot = trimmed
	}

	server, err := api.NewServer(ctx, orch, provider, &cfg)
	if err != nil {
		logger.Error("peregrine: server construction failed", "error", err)
		fmt.Println("server error:", err)
		os.Exit(1)
	}

	httpServer := &http.Server{Addr: *addr, Handler: server}
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	logger.Info("peregrine: server listening", "addr", *addr, "ui", "/ui/", "health", "/healthz")
	fmt.Printf("Serving on %s\n", *addr)
	reachable := *addr
	if strings.HasPrefix(reachable, ":") {
		reachable = "localhost" + reachable
	}
	logger.Info("peregrine: verify reachability", "suggestion", fmt.Sprintf("curl http://%s/healthz", reachable))

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("peregrine: server stopped", "error", err)
			fmt.Println("server stopped:", err)
		}
	case <-ctx.Done():
		logger.Info("peregrine: shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("peregrine: graceful shutdown failed", "error", err)
		}
	}
}
