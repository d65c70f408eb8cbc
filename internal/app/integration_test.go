package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ikkim/marketplace-ingest/config"
	"github.com/ikkim/marketplace-ingest/internal/db"
	"github.com/ikkim/marketplace-ingest/internal/scraper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type TestServer struct {
	Router *gin.Engine
	App    *App
	Shop   *httptest.Server
	APIKey string
}

// shopPages serves a two-item catalog. Prices change when price is set.
func shopPages(price *string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/products", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><ul>
			<li><a class="item" href="/p/ring">Ring</a></li>
			<li><a class="item" href="/p/chain">Chain</a></li>
			<li><a class="item" href="/p/ring#reviews">Ring again</a></li>
		</ul></body></html>`)
	})
	mux.HandleFunc("/p/ring", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body><h1> Gold  Ring </h1><span class="price">%s</span>
			<span data-sku="R-1"></span></body></html>`, *price)
	})
	mux.HandleFunc("/p/chain", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><h1>Silver Chain</h1><span class="price">₩ 89,000</span></body></html>`)
	})
	return mux
}

func setupIntegrationTest(t *testing.T, price *string) *TestServer {
	gin.SetMode(gin.TestMode)

	// Setup database
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() {
		db.CleanupTestDB(testDB)
	})

	shop := httptest.NewServer(shopPages(price))
	t.Cleanup(shop.Close)

	profiles, err := scraper.NewProfileSet(&scraper.Profile{
		Site:     "test-shop",
		Currency: "KRW",
		Tags:     []string{"jewelry"},
		Store: scraper.StoreSpec{
			Name:    "Test Shop",
			Type:    "physical",
			Address: "서울특별시 종로구 1",
		},
		Listing: scraper.ListingSpec{
			URLs:      []string{shop.URL + "/products"},
			ItemLinks: []scraper.Selector{{CSS: "a.item", Attr: "href"}},
		},
		Fields: map[string][]scraper.Selector{
			scraper.FieldName:  {{CSS: "h1"}},
			scraper.FieldPrice: {{CSS: "span.price"}},
			scraper.FieldSKU:   {{CSS: "[data-sku]", Attr: "data-sku"}},
		},
	})
	require.NoError(t, err)

	cfg := &config.Config{
		Server: config.ServerConfig{GinMode: gin.TestMode},
		CORS:   config.CORSConfig{AllowedOrigins: []string{"*"}},
		Scraper: config.ScraperConfig{
			HTTPTimeout:       5 * time.Second,
			ItemTimeout:       5 * time.Second,
			MaxPages:          5,
			Workers:           1,
			MaxConcurrentRuns: 2,
			Actor:             "scraper",
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	application := New(ctx, cfg, Options{DB: testDB, Profiles: profiles})
	issued, err := application.Credentials.Issue(ctx, "alice")
	require.NoError(t, err)

	return &TestServer{
		Router: application.Handler(ctx),
		App:    application,
		Shop:   shop,
		APIKey: issued.Key,
	}
}

func (ts *TestServer) request(t *testing.T, method, path string, authed bool) (int, map[string]interface{}) {
	req := httptest.NewRequest(method, path, strings.NewReader(""))
	if authed {
		req.Header.Set("Authorization", "Bearer "+ts.APIKey)
	}
	w := httptest.NewRecorder()
	ts.Router.ServeHTTP(w, req)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return w.Code, body
}

func TestScrapeToCatalogJourney(t *testing.T) {
	price := "₩ 1,250,000"
	ts := setupIntegrationTest(t, &price)

	// Step 1: Run the site and wait for the summary
	code, body := ts.request(t, http.MethodPost, "/api/v1/scrape/runs/test-shop?wait=true", true)
	require.Equal(t, http.StatusOK, code, body)
	summary := body["summary"].(map[string]interface{})
	assert.Equal(t, float64(2), summary["enumerated"])
	assert.Equal(t, float64(2), summary["inserted"])
	assert.Equal(t, float64(0), summary["failed"])

	// Step 2: The store was created from the profile
	code, body = ts.request(t, http.MethodGet, "/api/v1/stores", false)
	require.Equal(t, http.StatusOK, code)
	stores := body["stores"].([]interface{})
	require.Len(t, stores, 1)
	store := stores[0].(map[string]interface{})
	assert.Equal(t, "test-shop", store["slug"])
	assert.Equal(t, "alice", store["created_by"])

	// Step 3: Products are tagged with provenance
	code, body = ts.request(t, http.MethodGet, "/api/v1/products?tag=source:test-shop", false)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), body["total"])

	code, body = ts.request(t, http.MethodGet, "/api/v1/products?tag=in-store&search=Ring", false)
	require.Equal(t, http.StatusOK, code)
	products := body["products"].([]interface{})
	require.Len(t, products, 1)
	ring := products[0].(map[string]interface{})
	assert.Equal(t, "Gold Ring", ring["name"])
	assert.Equal(t, "R-1", ring["sku"])
	assert.Equal(t, "1250000", ring["price"])
	assert.Equal(t, "KRW", ring["currency"])
	assert.Equal(t, "alice", ring["created_by"])

	// Step 4: Re-running unchanged pages skips, a price change updates
	price = "₩ 1,300,000"
	code, body = ts.request(t, http.MethodPost, "/api/v1/scrape/runs/test-shop?wait=true", true)
	require.Equal(t, http.StatusOK, code)
	summary = body["summary"].(map[string]interface{})
	assert.Equal(t, float64(0), summary["inserted"])
	assert.Equal(t, float64(1), summary["updated"])
	assert.Equal(t, float64(1), summary["skipped"])

	code, body = ts.request(t, http.MethodGet, "/api/v1/products", false)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), body["total"])

	// Step 5: Last run is kept per site
	code, body = ts.request(t, http.MethodGet, "/api/v1/scrape/runs/test-shop/last", true)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["summary"].(map[string]interface{})["updated"])

	// Step 6: A store with products cannot be deleted
	code, body = ts.request(t, http.MethodDelete, fmt.Sprintf("/api/v1/stores/%v", store["id"]), true)
	assert.Equal(t, http.StatusConflict, code)
}

func TestOperatorEndpointsRequireAPIKey(t *testing.T) {
	price := "1000"
	ts := setupIntegrationTest(t, &price)

	tests := []struct {
		name   string
		method string
		path   string
	}{
		{"List profiles", http.MethodGet, "/api/v1/scrape/profiles"},
		{"Trigger run", http.MethodPost, "/api/v1/scrape/runs/test-shop"},
		{"Trigger all", http.MethodPost, "/api/v1/scrape/runs"},
		{"Delete store", http.MethodDelete, "/api/v1/stores/1"},
		{"Tag product", http.MethodPost, "/api/v1/products/1/tags"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := ts.request(t, tt.method, tt.path, false)
			assert.Equal(t, http.StatusUnauthorized, code)
			assert.Equal(t, "AUTH_UNAUTHORIZED", body["error"])
		})
	}

	// Revoked keys stop working
	keys, err := ts.App.Credentials.ListKeys("alice")
	require.NoError(t, err)
	require.Len(t, keys, 1)
	require.NoError(t, ts.App.Credentials.Revoke(context.Background(), keys[0].ID))

	code, body := ts.request(t, http.MethodGet, "/api/v1/scrape/profiles", true)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "AUTH_KEY_REVOKED", body["error"])
}

func TestPublicCatalogEndpoints(t *testing.T) {
	price := "1000"
	ts := setupIntegrationTest(t, &price)

	code, body := ts.request(t, http.MethodGet, "/health", false)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])

	code, body = ts.request(t, http.MethodGet, "/api/v1/tags", false)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), body["count"])

	code, _ = ts.request(t, http.MethodGet, "/api/v1/products/42", false)
	assert.Equal(t, http.StatusNotFound, code)
}
