// File path: internal/ibmcloud/client_test.go
package ibmcloud

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nicodishanthj/Peregrine_phase1/internal/assessment"
)

type fakeIBM struct {
	t *testing.T

	mu            sync.Mutex
	tokenCalls    int
	tokenFailures int
	searchCalls   int
	pricingCalls  int
	pricingFail   bool
	profileCalls  int
	hourly        float64
	expiresIn     int64
}

func newFakeIBM(t *testing.T) *fakeIBM {
	t.Helper()
	return &fakeIBM{t: t, hourly: 0.123, expiresIn: 3600}
}

func (f *fakeIBM) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/identity/token":
		f.handleToken(w, r)
	case r.URL.Path == "/api/v1":
		f.handleSearch(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/v1/") && strings.HasSuffix(r.URL.Path, "/pricing"):
		f.handlePricing(w)
	case r.URL.Path == "/instance/profiles":
		f.handleProfiles(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeIBM) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if r.PostFormValue("grant_type") != "urn:ibm:params:oauth:grant-type:apikey" {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("wrong grant type"))
		return
	}
	if r.PostFormValue("apikey") == "" {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("missing apikey"))
		return
	}
	f.mu.Lock()
	f.tokenCalls++
	shouldFail := f.tokenFailures > 0
	if shouldFail {
		f.tokenFailures--
	}
	expires := f.expiresIn
	f.mu.Unlock()
	if shouldFail {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("iam outage"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"access_token": "tok-1",
		"expires_in":   expires,
	})
}

func (f *fakeIBM) handleSearch(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.searchCalls++
	f.mu.Unlock()
	name := r.URL.Query().Get("q")
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"resources": []map[string]string{{"id": "entry-1", "name": name}},
	})
}

func (f *fakeIBM) handlePricing(w http.ResponseWriter) {
	f.mu.Lock()
	f.pricingCalls++
	fail := f.pricingFail
	hourly := f.hourly
	f.mu.Unlock()
	if fail {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("pricing outage"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"metrics": []map[string]interface{}{{
			"amounts": []map[string]interface{}{{
				"country":  "USA",
				"currency": "USD",
				"prices":   []map[string]interface{}{{"quantity": 1, "price": hourly}},
			}},
		}},
	})
}

func (f *fakeIBM) handleProfiles(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.profileCalls++
	f.mu.Unlock()
	if r.Header.Get("Authorization") == "" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"profiles": []map[string]interface{}{{
			"name":       "bx2-4x16",
			"family":     "balanced",
			"vcpu_count": map[string]int{"value": 4},
			"memory":     map[string]int{"value": 16},
			"bandwidth":  map[string]int{"value": 8000},
		}},
	})
}

func testConfig(serverURL string) Config {
	cfg := Config{
		APIKey:                "test-key",
		Region:                "us-south",
		IAMEndpoint:           serverURL,
		GlobalCatalogEndpoint: serverURL,
		VPCEndpoint:           serverURL,
		Timeout:               2 * time.Second,
		CacheTTL:              time.Minute,
	}
	cfg.applyDefaults()
	return cfg
}

func TestClientLivePricingAndCache(t *testing.T) {
	fake := newFakeIBM(t)
	server := httptest.NewServer(fake)
	defer server.Close()

	client, err := New(context.Background(), testConfig(server.URL))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer client.Close()
	if !client.Available() {
		t.Fatalf("client should be available")
	}

	price, err := client.VSIPrice(context.Background(), "bx2-4x16", "")
	if err != nil {
		t.Fatalf("vsi price: %v", err)
	}
	if price.Source != SourceLive || price.HourlyUSD != 0.123 {
		t.Fatalf("expected live quote, got %+v", price)
	}
	if price.MonthlyUSD != 0.123*hoursPerMonth {
		t.Fatalf("monthly not derived from hourly: %+v", price)
	}

	again, err := client.VSIPrice(context.Background(), "bx2-4x16", "")
	if err != nil {
		t.Fatalf("cached price: %v", err)
	}
	if again.Source != SourceCached {
		t.Fatalf("expected cached quote, got %+v", again)
	}
	fake.mu.Lock()
	pricingCalls := fake.pricingCalls
	fake.mu.Unlock()
	if pricingCalls != 1 {
		t.Fatalf("cache miss hit the server again: %d calls", pricingCalls)
	}
}

func TestClientDegradedWithoutKey(t *testing.T) {
	cfg := Config{Region: "us-south"}
	cfg.applyDefaults()
	client, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer client.Close()
	if client.Available() {
		t.Fatalf("keyless client should be degraded")
	}

	price, err := client.VSIPrice(context.Background(), "bx2-2x8", "")
	if err != nil {
		t.Fatalf("static price: %v", err)
	}
	if price.Source != SourceStatic || price.HourlyUSD != 0.0962 {
		t.Fatalf("expected static quote, got %+v", price)
	}

	flavor, err := client.ROKSWorkerPrice(context.Background(), "bx2.4x16", "")
	if err != nil {
		t.Fatalf("static flavor price: %v", err)
	}
	if flavor.Source != SourceStatic {
		t.Fatalf("expected static flavor quote, got %+v", flavor)
	}

	if _, err := client.VSIPrice(context.Background(), "no-such-profile", ""); err == nil {
		t.Fatalf("unknown profile should fail")
	}
	if _, err := client.InstanceProfiles(context.Background()); err == nil {
		t.Fatalf("degraded profile fetch should fail")
	}
}

func TestClientFallsBackToStaticOnError(t *testing.T) {
	fake := newFakeIBM(t)
	fake.pricingFail = true
	server := httptest.NewServer(fake)
	defer server.Close()

	client, err := New(context.Background(), testConfig(server.URL))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer client.Close()

	price, err := client.VSIPrice(context.Background(), "mx2-4x32", "")
	if err != nil {
		t.Fatalf("fallback price: %v", err)
	}
	if price.Source != SourceStatic {
		t.Fatalf("expected static fallback, got %+v", price)
	}
}

func TestClientRetriesPing(t *testing.T) {
	fake := newFakeIBM(t)
	fake.tokenFailures = 2
	server := httptest.NewServer(fake)
	defer server.Close()

	client, err := New(context.Background(), testConfig(server.URL))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer client.Close()
	if !client.Available() {
		t.Fatalf("client should recover within retry budget")
	}
	fake.mu.Lock()
	calls := fake.tokenCalls
	fake.mu.Unlock()
	if calls != 3 {
		t.Fatalf("expected 3 token attempts, got %d", calls)
	}
}

func TestInstanceProfiles(t *testing.T) {
	fake := newFakeIBM(t)
	server := httptest.NewServer(fake)
	defer server.Close()

	client, err := New(context.Background(), testConfig(server.URL))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer client.Close()

	profiles, err := client.InstanceProfiles(context.Background())
	if err != nil {
		t.Fatalf("instance profiles: %v", err)
	}
	if len(profiles) != 1 {
		t.Fatalf("expected one profile, got %d", len(profiles))
	}
	p := profiles[0]
	if p.Name != "bx2-4x16" || p.VCPUs != 4 || p.MemoryGiB != 16 || p.BandwidthGbps != 8 {
		t.Fatalf("profile mapped wrong: %+v", p)
	}
	if !p.SupportsTarget(assessment.TargetVSI) {
		t.Fatalf("VPC profiles should carry the VSI target: %+v", p)
	}

	if _, err := client.InstanceProfiles(context.Background()); err != nil {
		t.Fatalf("cached profiles: %v", err)
	}
	fake.mu.Lock()
	calls := fake.profileCalls
	fake.mu.Unlock()
	if calls != 1 {
		t.Fatalf("profile cache miss hit the server again: %d calls", calls)
	}
}

func TestIAMTokenCaching(t *testing.T) {
	fake := newFakeIBM(t)
	server := httptest.NewServer(fake)
	defer server.Close()

	httpClient := &http.Client{Timeout: 2 * time.Second}
	iam := newIAMClient(server.URL, "test-key", httpClient)
	if _, err := iam.Token(context.Background()); err != nil {
		t.Fatalf("token: %v", err)
	}
	if _, err := iam.Token(context.Background()); err != nil {
		t.Fatalf("token cached: %v", err)
	}
	fake.mu.Lock()
	calls := fake.tokenCalls
	fake.mu.Unlock()
	if calls != 1 {
		t.Fatalf("token should be cached, got %d calls", calls)
	}

	// A token expiring inside the refresh skew is never reused.
	fake.mu.Lock()
	fake.expiresIn = 60
	fake.tokenCalls = 0
	fake.mu.Unlock()
	short := newIAMClient(server.URL, "test-key", httpClient)
	if _, err := short.Token(context.Background()); err != nil {
		t.Fatalf("short token: %v", err)
	}
	if _, err := short.Token(context.Background()); err != nil {
		t.Fatalf("short token refresh: %v", err)
	}
	fake.mu.Lock()
	calls = fake.tokenCalls
	fake.mu.Unlock()
	if calls != 2 {
		t.Fatalf("near-expiry token should refresh, got %d calls", calls)
	}

	empty := newIAMClient(server.URL, "", httpClient)
	if _, err := empty.Token(context.Background()); !errors.Is(err, errNoAPIKey) {
		t.Fatalf("expected errNoAPIKey, got %v", err)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("IBMCLOUD_API_KEY", "")
	t.Setenv("IBMCLOUD_REGION", "eu-de")
	t.Setenv("IBMCLOUD_CONFIG_FILE", "")
	t.Setenv("IBMCLOUD_IAM_ENDPOINT", "")
	t.Setenv("IBMCLOUD_CATALOG_ENDPOINT", "")
	t.Setenv("IBMCLOUD_VPC_ENDPOINT", "")
	t.Setenv("IBMCLOUD_HTTP_TIMEOUT", "5s")
	t.Setenv("IBMCLOUD_CACHE_TTL", "")
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Region != "eu-de" {
		t.Fatalf("region not read from env: %+v", cfg)
	}
	if cfg.VPCEndpoint != "https://eu-de.iaas.cloud.ibm.com/v1" {
		t.Fatalf("vpc endpoint should derive from region: %s", cfg.VPCEndpoint)
	}
	if cfg.Timeout != 5*time.Second {
		t.Fatalf("timeout not parsed: %v", cfg.Timeout)
	}
	if cfg.CacheTTL != 15*time.Minute {
		t.Fatalf("cache ttl default wrong: %v", cfg.CacheTTL)
	}
	if cfg.IAMEndpoint != "https://iam.cloud.ibm.com" {
		t.Fatalf("iam default wrong: %s", cfg.IAMEndpoint)
	}
}
