package controller

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

	"github.com/gin-gonic/gin"
	"github.com/ikkim/marketplace-ingest/internal/app/service"
	"github.com/ikkim/marketplace-ingest/internal/scraper"
	ws "github.com/ikkim/marketplace-ingest/internal/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRunner struct {
	mu    sync.Mutex
	err   error
	sites []string
	hold  chan struct{}
}

func (r *stubRunner) Run(ctx context.Context, profile *scraper.Profile) (*scraper.RunSummary, error) {
	if r.hold != nil {
		<-r.hold
	}
	r.mu.Lock()
	r.sites = append(r.sites, profile.Site)
	r.mu.Unlock()
	return &scraper.RunSummary{RunID: "run-" + profile.Site, Site: profile.Site, Inserted: 3}, r.err
}

func (r *stubRunner) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sites)
}

func setupScrapeControllerTest(t *testing.T, runErr error) (*gin.Engine, *stubRunner) {
	var profiles []*scraper.Profile
	for _, site := range []string{"alpha", "beta"} {
		profiles = append(profiles, &scraper.Profile{
			Site:    site,
			Store:   scraper.StoreSpec{Name: site, Type: "online"},
			Listing: scraper.ListingSpec{URLs: []string{"https://" + site + ".test/"}, ItemLinks: []scraper.Selector{{CSS: "a"}}},
			Fields:  map[string][]scraper.Selector{scraper.FieldName: {{CSS: "h1"}}},
		})
	}
	set, err := scraper.NewProfileSet(profiles...)
	require.NoError(t, err)

	runner := &stubRunner{err: runErr}
	scrapeService := service.NewScrapeService(set, runner, nil, service.ScrapeServiceOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ctrl := NewScrapeController(scrapeService, ws.NewHub(), nil, ctx)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("operator", "alice")
		c.Next()
	})
	router.GET("/scrape/profiles", ctrl.ListProfiles)
	router.POST("/scrape/runs/:site", ctrl.TriggerRun)
	router.POST("/scrape/runs", ctrl.TriggerAll)
	router.GET("/scrape/runs/:site/last", ctrl.GetLastRun)

	return router, runner
}

func doJSON(t *testing.T, router *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func TestScrapeController_ListProfiles(t *testing.T) {
	router, _ := setupScrapeControllerTest(t, nil)

	w, resp := doJSON(t, router, http.MethodGet, "/scrape/profiles", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), resp["count"])
	first := resp["profiles"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "alpha", first["site"])
}

func TestScrapeController_TriggerRunWait(t *testing.T) {
	router, _ := setupScrapeControllerTest(t, nil)

	w, resp := doJSON(t, router, http.MethodGet, "/scrape/runs/alpha/last", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "RESOURCE_NOT_FOUND", resp["error"])

	w, resp = doJSON(t, router, http.MethodPost, "/scrape/runs/alpha?wait=true", "")
	assert.Equal(t, http.StatusOK, w.Code)
	summary := resp["summary"].(map[string]interface{})
	assert.Equal(t, "run-alpha", summary["run_id"])
	assert.Equal(t, float64(3), summary["inserted"])

	w, resp = doJSON(t, router, http.MethodGet, "/scrape/runs/alpha/last", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "run-alpha", resp["summary"].(map[string]interface{})["run_id"])
}

func TestScrapeController_TriggerRunAsync(t *testing.T) {
	router, runner := setupScrapeControllerTest(t, nil)

	w, resp := doJSON(t, router, http.MethodPost, "/scrape/runs/beta", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "beta", resp["site"])
	assert.Eventually(t, func() bool { return runner.calls() == 1 }, time.Second, 5*time.Millisecond)
}

func TestScrapeController_TriggerRunAsyncConflict(t *testing.T) {
	router, runner := setupScrapeControllerTest(t, nil)
	runner.hold = make(chan struct{})

	w, _ := doJSON(t, router, http.MethodPost, "/scrape/runs/alpha", "")
	assert.Equal(t, http.StatusAccepted, w.Code)

	// 진행 중인 사이트는 비동기 요청도 바로 409
	w, resp := doJSON(t, router, http.MethodPost, "/scrape/runs/alpha", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "SCRAPE_RUN_IN_PROGRESS", resp["error"])

	w, resp = doJSON(t, router, http.MethodPost, "/scrape/runs/alpha?wait=true", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "SCRAPE_RUN_IN_PROGRESS", resp["error"])

	close(runner.hold)
	assert.Eventually(t, func() bool {
		w, _ := doJSON(t, router, http.MethodPost, "/scrape/runs/alpha?wait=true", "")
		return w.Code == http.StatusOK
	}, time.Second, 5*time.Millisecond)
}

func TestScrapeController_TriggerRunErrors(t *testing.T) {
	router, _ := setupScrapeControllerTest(t, errors.New("store resolution failed"))

	w, resp := doJSON(t, router, http.MethodPost, "/scrape/runs/unknown?wait=true", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "SCRAPE_PROFILE_NOT_FOUND", resp["error"])

	w, resp = doJSON(t, router, http.MethodPost, "/scrape/runs/alpha?wait=true", "")
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "SCRAPE_RUN_FAILED", resp["error"])
	assert.NotNil(t, resp["summary"])
}

func TestScrapeController_TriggerAll(t *testing.T) {
	router, _ := setupScrapeControllerTest(t, nil)

	w, resp := doJSON(t, router, http.MethodPost, "/scrape/runs?wait=true", `{"sites":["alpha","beta"]}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), resp["count"])

	w, resp = doJSON(t, router, http.MethodPost, "/scrape/runs?wait=true", `{"sites":["gamma"]}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "SCRAPE_PROFILE_NOT_FOUND", resp["error"])

	w, _ = doJSON(t, router, http.MethodPost, "/scrape/runs", `{"sites":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
