// File path: internal/ibmcloud/config.go
package ibmcloud

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	APIKey                string `json:"api_key"`
	Region                string `json:"region"`
	IAMEndpoint           string `json:"iam_endpoint"`
	GlobalCatalogEndpoint string `json:"catalog_endpoint"`
	VPCEndpoint           string `json:"vpc_endpoint"`

	Timeout       time.Duration `json:"-"`
	TimeoutString string        `json:"timeout"`

	CacheTTL       time.Duration `json:"-"`
	CacheTTLString string        `json:"cache_ttl"`

	HTTPMaxIdleConns       int           `json:"http_max_idle_conns"`
	HTTPMaxIdlePerHost     int           `json:"http_max_idle_per_host"`
	HTTPMaxConnsPerHost    int           `json:"http_max_conns_per_host"`
	HTTPIdleConnTimeout    time.Duration `json:"-"`
	HTTPIdleConnTimeoutStr string        `json:"http_idle_conn_timeout"`
}

func (c Config) Merge(override Config) Config {
	result := c
	if strings.TrimSpace(override.APIKey) != "" {
		result.APIKey = override.APIKey
	}
	if strings.TrimSpace(override.Region) != "" {
		result.Region = strings.TrimSpace(override.Region)
	}
	if strings.TrimSpace(override.IAMEndpoint) != "" {
		result.IAMEndpoint = strings.TrimSpace(override.IAMEndpoint)
	}
	if strings.TrimSpace(override.GlobalCatalogEndpoint) != "" {
		result.GlobalCatalogEndpoint = strings.TrimSpace(override.GlobalCatalogEndpoint)
	}
	if strings.TrimSpace(override.VPCEndpoint) != "" {
		result.VPCEndpoint = strings.TrimSpace(override.VPCEndpoint)
	}
	if override.Timeout > 0 {
		result.Timeout = override.Timeout
	}
	if strings.TrimSpace(override.TimeoutString) != "" {
		result.TimeoutString = strings.TrimSpace(override.TimeoutString)
	}
	if override.CacheTTL > 0 {
		result.CacheTTL = override.CacheTTL
	}
	if strings.TrimSpace(override.CacheTTLString) != "" {
		result.CacheTTLString = strings.TrimSpace(override.CacheTTLString)
	}
	if override.HTTPMaxIdleConns > 0 {
		result.HTTPMaxIdleConns = override.HTTPMaxIdleConns
	}
	if override.HTTPMaxIdlePerHost > 0 {
		result.HTTPMaxIdlePerHost = override.HTTPMaxIdlePerHost
	}
	if override.HTTPMaxConnsPerHost > 0 {
		result.HTTPMaxConnsPerHost = override.HTTPMaxConnsPerHost
	}
	if override.HTTPIdleConnTimeout > 0 {
		result.HTTPIdleConnTimeout = override.HTTPIdleConnTimeout
	}
	if strings.TrimSpace(override.HTTPIdleConnTimeoutStr) != "" {
		result.HTTPIdleConnTimeoutStr = strings.TrimSpace(override.HTTPIdleConnTimeoutStr)
	}
	return result
}

func LoadConfig() (Config, error) {
	cfg := Config{}
	if path := strings.TrimSpace(os.Getenv("IBMCLOUD_CONFIG_FILE")); path != "" {
		fileCfg, err := loadConfigFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg = cfg.Merge(fileCfg)
	}
	envCfg, err := loadConfigEnv()
	if err != nil {
		return Config{}, err
	}
	cfg = cfg.Merge(envCfg)
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Region) == "" {
		c.Region = "us-south"
	}
	if strings.TrimSpace(c.IAMEndpoint) == "" {
		c.IAMEndpoint = "https://iam.cloud.ibm.com"
	}
	if strings.TrimSpace(c.GlobalCatalogEndpoint) == "" {
		c.GlobalCatalogEndpoint = "https://globalcatalog.cloud.ibm.com"
	}
	if strings.TrimSpace(c.VPCEndpoint) == "" {
		c.VPCEndpoint = fmt.Sprintf("https://%s.iaas.cloud.ibm.com/v1", c.Region)
	}
	if c.Timeout <= 0 {
		if c.TimeoutString != "" {
			if parsed, err := time.ParseDuration(c.TimeoutString); err == nil {
				c.Timeout = parsed
			}
		}
		if c.Timeout <= 0 {
			c.Timeout = 10 * time.Second
		}
	}
	if c.CacheTTL <= 0 {
		if c.CacheTTLString != "" {
			if parsed, err := time.ParseDuration(c.CacheTTLString); err == nil {
				c.CacheTTL = parsed
			}
		}
		if c.CacheTTL <= 0 {
			c.CacheTTL = 15 * time.Minute
		}
	}
	if c.HTTPMaxIdleConns <= 0 {
		c.HTTPMaxIdleConns = 64
	}
	if c.HTTPMaxIdlePerHost <= 0 {
		c.HTTPMaxIdlePerHost = 16
	}
	if c.HTTPIdleConnTimeout <= 0 {
		if c.HTTPIdleConnTimeoutStr != "" {
			if parsed, err := time.ParseDuration(c.HTTPIdleConnTimeoutStr); err == nil {
				c.HTTPIdleConnTimeout = parsed
			}
		}
		if c.HTTPIdleConnTimeout <= 0 {
			c.HTTPIdleConnTimeout = 90 * time.Second
		}
	}
}

func loadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("read ibmcloud config: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse ibmcloud config: %w", err)
	}
	return cfg, nil
}

func loadConfigEnv() (Config, error) {
	cfg := Config{}
	if apiKey := strings.TrimSpace(os.Getenv("IBMCLOUD_API_KEY")); apiKey != "" {
		cfg.APIKey = apiKey
	}
	if region := strings.TrimSpace(os.Getenv("IBMCLOUD_REGION")); region != "" {
		cfg.Region = region
	}
	if endpoint := strings.TrimSpace(os.Getenv("IBMCLOUD_IAM_ENDPOINT")); endpoint != "" {
		cfg.IAMEndpoint = endpoint
	}
	if endpoint := strings.TrimSpace(os.Getenv("IBMCLOUD_CATALOG_ENDPOINT")); endpoint != "" {
		cfg.GlobalCatalogEndpoint = endpoint
	}
	if endpoint := strings.TrimSpace(os.Getenv("IBMCLOUD_VPC_ENDPOINT")); endpoint != "" {
		cfg.VPCEndpoint = endpoint
	}
	if timeout := strings.TrimSpace(os.Getenv("IBMCLOUD_HTTP_TIMEOUT")); timeout != "" {
		cfg.TimeoutString = timeout
		if parsed, err := time.ParseDuration(timeout); err == nil {
			cfg.Timeout = parsed
		}
	}
	if ttl := strings.TrimSpace(os.Getenv("IBMCLOUD_CACHE_TTL")); ttl != "" {
		cfg.CacheTTLString = ttl
		if parsed, err := time.ParseDuration(ttl); err == nil {
			cfg.CacheTTL = parsed
		}
	}
	if maxIdle := strings.TrimSpace(os.Getenv("IBMCLOUD_HTTP_MAX_IDLE_CONNS")); maxIdle != "" {
		value, err := strconv.Atoi(maxIdle)
		if err != nil {
			return Config{}, fmt.Errorf("parse IBMCLOUD_HTTP_MAX_IDLE_CONNS: %w", err)
		}
		if value > 0 {
			cfg.HTTPMaxIdleConns = value
		}
	}
	if maxIdleHost := strings.TrimSpace(os.Getenv("IBMCLOUD_HTTP_MAX_IDLE_PER_HOST")); maxIdleHost != "" {
		value, err := strconv.Atoi(maxIdleHost)
		if err != nil {
			return Config{}, fmt.Errorf("parse IBMCLOUD_HTTP_MAX_IDLE_PER_HOST: %w", err)
		}
		if value > 0 {
			cfg.HTTPMaxIdlePerHost = value
		}
	}
	if maxConns := strings.TrimSpace(os.Getenv("IBMCLOUD_HTTP_MAX_CONNS_PER_HOST")); maxConns != "" {
		value, err := strconv.Atoi(maxConns)
		if err != nil {
			return Config{}, fmt.Errorf("parse IBMCLOUD_HTTP_MAX_CONNS_PER_HOST: %w", err)
		}
		if value > 0 {
			cfg.HTTPMaxConnsPerHost = value
		}
	}
	if idleTimeout := strings.TrimSpace(os.Getenv("IBMCLOUD_HTTP_IDLE_CONN_TIMEOUT")); idleTimeout != "" {
		cfg.HTTPIdleConnTimeoutStr = idleTimeout
		if parsed, err := time.ParseDuration(idleTimeout); err == nil {
			cfg.HTTPIdleConnTimeout = parsed
		}
	}
	return cfg, nil
}
