// File path: internal/ibmcloud/client.go
package ibmcloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/nicodishanthj/Peregrine_phase1/internal/assessment"
	"github.com/nicodishanthj/Peregrine_phase1/internal/common"
	"github.com/nicodishanthj/Peregrine_phase1/internal/common/telemetry"
	"github.com/nicodishanthj/Peregrine_phase1/internal/targets"
)

// Service is the pricing/profile surface consumers wire against. Client
// implements it and degrades to the compiled-in tables when IBM Cloud is
// unreachable or no credentials are configured.
type Service interface {
	Available() bool
	VSIPrice(ctx context.Context, profileName, region string) (Price, error)
	ROKSWorkerPrice(ctx context.Context, flavorName, region string) (Price, error)
	InstanceProfiles(ctx context.Context) ([]targets.Profile, error)
	Close() error
}

// vpcVersion pins the VPC API date parameter every request must carry.
const vpcVersion = "2025-03-25"

type Client struct {
	httpClient *http.Client
	transport  *http.Transport

	iam *iamClient
	cfg Config

	priceCache   *ttlCache
	profileCache *ttlCache

	mu        sync.RWMutex
	available bool
}

func NewFromEnv(ctx context.Context) (*Client, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg)
}

// New constructs a client using the provided configuration. Construction
// never fails on connectivity: an unreachable or unauthenticated endpoint
// yields a degraded client whose consumers fall back to static data.
func New(ctx context.Context, cfg Config) (*Client, error) {
	logger := common.Logger()
	transport := &http.Transport{
		MaxIdleConns:        cfg.HTTPMaxIdleConns,
		MaxIdleConnsPerHost: cfg.HTTPMaxIdlePerHost,
		MaxConnsPerHost:     cfg.HTTPMaxConnsPerHost,
		IdleConnTimeout:     cfg.HTTPIdleConnTimeout,
	}
	httpClient := &http.Client{Timeout: cfg.Timeout, Transport: transport}

	client := &Client{
		httpClient:   httpClient,
		transport:    transport,
		iam:          newIAMClient(cfg.IAMEndpoint, cfg.APIKey, httpClient),
		cfg:          cfg,
		priceCache:   newTTLCache(cfg.CacheTTL),
		profileCache: newTTLCache(cfg.CacheTTL),
	}

	if strings.TrimSpace(cfg.APIKey) == "" {
		logger.Info("ibmcloud: no api key configured; static pricing only", "region", cfg.Region)
		return client, nil
	}

	logger.Info("ibmcloud: initializing client",
		"region", cfg.Region, "iam", cfg.IAMEndpoint, "timeout", cfg.Timeout)
	if err := client.ensureReady(ctx); err != nil {
		logger.Warn("ibmcloud: initialization failed; degraded to static pricing",
			"region", cfg.Region, "error", err)
		return client, nil
	}
	logger.Info("ibmcloud: connection established", "region", cfg.Region)
	return client, nil
}

func (c *Client) Available() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.available
}

func (c *Client) ensureReady(ctx context.Context) error {
	if c == nil {
		return errors.New("ibmcloud client not configured")
	}
	if c.Available() {
		return nil
	}
	const maxAttempts = 3
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		_, err = c.iam.Token(ctx)
		if err == nil {
			break
		}
		if errors.Is(err, errNoAPIKey) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 250 * time.Millisecond):
		}
	}
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.available = true
	c.mu.Unlock()
	return nil
}

// VSIPrice quotes an instance profile. Live quotes come from the Global
// Catalog and are cached for the configured TTL; on any failure the static
// table answers with Source=static.
func (c *Client) VSIPrice(ctx context.Context, profileName, region string) (Price, error) {
	return c.price(ctx, profileName, region)
}

// ROKSWorkerPrice quotes a worker-pool flavor through the same lookup path.
func (c *Client) ROKSWorkerPrice(ctx context.Context, flavorName, region string) (Price, error) {
	return c.price(ctx, flavorName, region)
}

func (c *Client) price(ctx context.Context, name, region string) (Price, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Price{}, errors.New("ibmcloud: empty profile name")
	}
	if strings.TrimSpace(region) == "" {
		region = c.cfg.Region
	}
	start := time.Now()
	key := fmt.Sprintf("price|%s|%s", region, name)
	if cached, ok := c.priceCache.get(key); ok {
		if price, ok := cached.(Price); ok {
			price.Source = SourceCached
			telemetry.RecordPricingLookup(SourceCached, time.Since(start))
			return price, nil
		}
	}

	if c.Available() {
		price, err := c.lookupCatalogPrice(ctx, name, region)
		if err == nil {
			c.priceCache.set(key, price)
			telemetry.RecordPricingLookup(SourceLive, time.Since(start))
			return price, nil
		}
		common.Logger().Warn("ibmcloud: live price lookup failed; serving static",
			"profile", name, "region", region, "error", err)
	}

	price, ok := StaticPrice(name)
	if !ok {
		return Price{}, fmt.Errorf("ibmcloud: no price known for profile %q", name)
	}
	telemetry.RecordPricingLookup(SourceStatic, time.Since(start))
	return price, nil
}

func (c *Client) lookupCatalogPrice(ctx context.Context, name, region string) (Price, error) {
	base := strings.TrimRight(c.cfg.GlobalCatalogEndpoint, "/")
	var search struct {
		Resources []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"resources"`
	}
	endpoint := fmt.Sprintf("%s/api/v1?q=%s&limit=10", base, url.QueryEscape(name))
	if err := c.doGet(ctx, endpoint, &search); err != nil {
		return Price{}, err
	}
	entryID := ""
	for _, resource := range search.Resources {
		if strings.EqualFold(resource.Name, name) {
			entryID = resource.ID
			break
		}
	}
	if entryID == "" {
		return Price{}, fmt.Errorf("ibmcloud: catalog entry %q not found", name)
	}

	var pricing struct {
		Metrics []struct {
			Amounts []struct {
				Country  string `json:"country"`
				Currency string `json:"currency"`
				Prices   []struct {
					Price float64 `json:"price"`
				} `json:"prices"`
			} `json:"amounts"`
		} `json:"metrics"`
	}
	endpoint = fmt.Sprintf("%s/api/v1/%s/pricing", base, url.PathEscape(entryID))
	if err := c.doGet(ctx, endpoint, &pricing); err != nil {
		return Price{}, err
	}
	for _, metric := range pricing.Metrics {
		for _, amount := range metric.Amounts {
			if amount.Currency != "" && !strings.EqualFold(amount.Currency, "USD") {
				continue
			}
			for _, p := range amount.Prices {
				if p.Price > 0 {
					return Price{
						Profile:    name,
						HourlyUSD:  p.Price,
						MonthlyUSD: p.Price * hoursPerMonth,
						Currency:   "USD",
						Source:     SourceLive,
					}, nil
				}
			}
		}
	}
	return Price{}, fmt.Errorf("ibmcloud: catalog entry %q carries no USD price", name)
}

// InstanceProfiles fetches the live VPC profile list for catalog refreshes.
// Degraded clients return an error so callers keep the builtin catalog.
func (c *Client) InstanceProfiles(ctx context.Context) ([]targets.Profile, error) {
	if !c.Available() {
		return nil, errors.New("ibmcloud: unavailable")
	}
	key := "profiles|" + c.cfg.Region
	if cached, ok := c.profileCache.get(key); ok {
		if profiles, ok := cached.([]targets.Profile); ok {
			out := make([]targets.Profile, len(profiles))
			copy(out, profiles)
			return out, nil
		}
	}

	var resp struct {
		Profiles []struct {
			Name      string `json:"name"`
			Family    string `json:"family"`
			VCPUCount struct {
				Value int `json:"value"`
			} `json:"vcpu_count"`
			Memory struct {
				Value int `json:"value"`
			} `json:"memory"`
			Bandwidth struct {
				Value int `json:"value"`
			} `json:"bandwidth"`
		} `json:"profiles"`
	}
	endpoint := fmt.Sprintf("%s/instance/profiles?version=%s&generation=2",
		strings.TrimRight(c.cfg.VPCEndpoint, "/"), vpcVersion)
	if err := c.doGet(ctx, endpoint, &resp); err != nil {
		return nil, err
	}

	profiles := make([]targets.Profile, 0, len(resp.Profiles))
	for _, p := range resp.Profiles {
		if p.Name == "" || p.VCPUCount.Value <= 0 || p.Memory.Value <= 0 {
			continue
		}
		profiles = append(profiles, targets.Profile{
			Name:          p.Name,
			Family:        p.Family,
			VCPUs:         p.VCPUCount.Value,
			MemoryGiB:     p.Memory.Value,
			BandwidthGbps: p.Bandwidth.Value / 1000,
			Generation:    2,
			Targets:       []assessment.Target{assessment.TargetVSI},
		})
	}
	c.profileCache.set(key, profiles)
	out := make([]targets.Profile, len(profiles))
	copy(out, profiles)
	return out, nil
}

func (c *Client) doGet(ctx context.Context, endpoint string, out interface{}) error {
	if c == nil {
		return errors.New("ibmcloud client not configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	token, err := c.iam.Token(ctx)
	if err != nil && !errors.Is(err, errNoAPIKey) {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		c.iam.invalidate()
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ibmcloud: GET %s failed: %s", endpoint, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Close releases pooled resources associated with the client.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	if c.transport != nil {
		c.transport.CloseIdleConnections()
	}
	return nil
}

var _ Service = (*Client)(nil)
