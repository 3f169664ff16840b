// File path: internal/data/orchestrator/config.go
package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config controls which paths the orchestrator stores data under and whether
// the IBM Cloud client is constructed with live connectivity.
type Config struct {
	StorePath    string
	CatalogPath  string
	ArtifactRoot string
	UploadRoot   string
	DisableCloud bool
}

// DefaultConfig returns the baseline configuration used when no overrides are
// supplied.
func DefaultConfig() Config {
	return Config{
		StorePath:    filepath.Join("data", "reports"),
		CatalogPath:  filepath.Join("data", "catalog.db"),
		ArtifactRoot: filepath.Join("data", "artifacts"),
		UploadRoot:   filepath.Join(os.TempDir(), "peregrine_uploads"),
	}
}

// LoadConfig builds a Config from defaults and environment variables.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	if value := strings.TrimSpace(os.Getenv("PEREGRINE_STORE_PATH")); value != "" {
		cfg.StorePath = value
	}
	if value := strings.TrimSpace(os.Getenv("PEREGRINE_CATALOG_PATH")); value != "" {
		cfg.CatalogPath = value
	}
	if value := strings.TrimSpace(os.Getenv("PEREGRINE_ARTIFACT_ROOT")); value != "" {
		cfg.ArtifactRoot = value
	}
	if value := strings.TrimSpace(os.Getenv("PEREGRINE_UPLOAD_ROOT")); value != "" {
		cfg.UploadRoot = value
	}
	if value := strings.TrimSpace(os.Getenv("IBMCLOUD_DISABLE")); value != "" {
		disabled, err := strconv.ParseBool(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse IBMCLOUD_DISABLE: %w", err)
		}
		cfg.DisableCloud = disabled
	}
	return applyDefaults(cfg), nil
}

func applyDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if strings.TrimSpace(cfg.StorePath) == "" {
		cfg.StorePath = defaults.StorePath
	}
	if strings.TrimSpace(cfg.CatalogPath) == "" {
		cfg.CatalogPath = defaults.CatalogPath
	}
	if strings.TrimSpace(cfg.ArtifactRoot) == "" {
		cfg.ArtifactRoot = defaults.ArtifactRoot
	}
	if strings.TrimSpace(cfg.UploadRoot) == "" {
		cfg.UploadRoot = defaults.UploadRoot
	}
	return cfg
}

func (c Config) validate() error {
	if strings.TrimSpace(c.StorePath) == "" {
		return fmt.Errorf("store path required")
	}
	if strings.TrimSpace(c.CatalogPath) == "" {
		return fmt.Errorf("catalog path required")
	}
	if strings.TrimSpace(c.ArtifactRoot) == "" {
		return fmt.Errorf("artifact root required")
	}
	return nil
}
