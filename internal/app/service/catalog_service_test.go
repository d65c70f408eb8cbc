package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ikkim/marketplace-ingest/internal/app/model"
	"github.com/ikkim/marketplace-ingest/internal/app/repository"
	"github.com/ikkim/marketplace-ingest/internal/db"
	"github.com/ikkim/marketplace-ingest/internal/scraper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// minimal PNG header; enough for content sniffing
var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89")

type fakeMirror struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (m *fakeMirror) PutImage(_ context.Context, key string, _ []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.keys = append(m.keys, key)
	return "https://mirror.test/" + key, nil
}

type imageServer struct {
	*httptest.Server
	mu    sync.Mutex
	hits  int
	serve []byte
}

func newImageServer(t *testing.T, body []byte) *imageServer {
	s := &imageServer{serve: body}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits++
		s.mu.Unlock()
		// content type header deliberately wrong; bytes decide
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(s.serve)
	}))
	t.Cleanup(s.Close)
	return s
}

func setupCatalogTest(t *testing.T, mirror ImageMirror) (*gorm.DB, *CatalogService, uint) {
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { db.CleanupTestDB(testDB) })

	stores := NewStoreService(testDB, repository.NewStoreRepository(testDB), nil)
	fetcher := scraper.NewHTTPFetcher(scraper.HTTPFetcherOptions{Timeout: 5 * time.Second})

	catalog := NewCatalogService(testDB, stores, fetcher, mirror)

	info, err := catalog.EnsureStore(context.Background(), scraper.StoreSpec{Name: "Gold Shop", Type: "physical", Address: "서울 종로구 1"}, "scraper")
	require.NoError(t, err)
	assert.True(t, info.InStore)

	return testDB, catalog, info.ID
}

func TestCatalogService_EnsureStoreInStore(t *testing.T) {
	_, catalog, _ := setupCatalogTest(t, nil)
	ctx := context.Background()

	online, err := catalog.EnsureStore(ctx, scraper.StoreSpec{Name: "Web Shop", Type: "online", Address: "서울 중구 2"}, "scraper")
	require.NoError(t, err)
	assert.False(t, online.InStore)

	// 주소 없는 오프라인 매장은 in-store 아님
	noAddress, err := catalog.EnsureStore(ctx, scraper.StoreSpec{Name: "Pop-up", Type: "physical"}, "scraper")
	require.NoError(t, err)
	assert.False(t, noAddress.InStore)
}

func TestCatalogService_ApplyUpsertsAndTags(t *testing.T) {
	testDB, catalog, storeID := setupCatalogTest(t, nil)
	ctx := context.Background()
	opts := scraper.ApplyOptions{Tags: []string{"in-store", "source:goldshop"}, Actor: "scraper"}

	rec := scraper.Normalized{Name: "Ring", Price: price("350000"), Currency: "KRW"}

	first, err := catalog.Apply(ctx, storeID, rec, opts)
	require.NoError(t, err)
	assert.Equal(t, scraper.OutcomeInserted, first.Outcome)

	second, err := catalog.Apply(ctx, storeID, rec, opts)
	require.NoError(t, err)
	assert.Equal(t, scraper.OutcomeSkipped, second.Outcome)

	var links int64
	require.NoError(t, testDB.Model(&model.ProductTag{}).Where("product_id = ?", first.ProductID).Count(&links).Error)
	assert.Equal(t, int64(2), links)
}

func TestCatalogService_ApplyDownloadsImage(t *testing.T) {
	mirror := &fakeMirror{}
	testDB, catalog, storeID := setupCatalogTest(t, mirror)
	srv := newImageServer(t, pngBytes)
	ctx := context.Background()

	rec := scraper.Normalized{Name: "Ring", ImageURL: srv.URL + "/img/ring.png?v=2"}
	opts := scraper.ApplyOptions{Actor: "scraper", DownloadImages: true}

	result, err := catalog.Apply(ctx, storeID, rec, opts)
	require.NoError(t, err)
	assert.Empty(t, result.Warnings)

	var product model.Product
	require.NoError(t, testDB.First(&product, result.ProductID).Error)
	assert.Equal(t, "image/png", product.ImageContentType)
	assert.Equal(t, "ring.png", product.ImageFilename)
	assert.Equal(t, pngBytes, product.ImageData)
	require.Len(t, mirror.keys, 1)
	assert.True(t, strings.HasSuffix(mirror.keys[0], ".png"))
	assert.Equal(t, "https://mirror.test/"+mirror.keys[0], product.ImageMirrorURL)

	// same URL: no second download
	_, err = catalog.Apply(ctx, storeID, rec, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, srv.hits)
}

func TestCatalogService_ApplyImageWarnings(t *testing.T) {
	testDB, catalog, storeID := setupCatalogTest(t, &fakeMirror{err: errors.New("bucket gone")})
	ctx := context.Background()
	opts := scraper.ApplyOptions{Actor: "scraper", DownloadImages: true}

	html := newImageServer(t, []byte("<html><body>not found</body></html>"))
	result, err := catalog.Apply(ctx, storeID, scraper.Normalized{Name: "Ring", ImageURL: html.URL + "/a.jpg"}, opts)
	require.NoError(t, err)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "not an image")

	png := newImageServer(t, pngBytes)
	result, err = catalog.Apply(ctx, storeID, scraper.Normalized{Name: "Chain", ImageURL: png.URL + "/c.png"}, opts)
	require.NoError(t, err)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "mirror failed")

	// the payload is kept even when mirroring fails
	var product model.Product
	require.NoError(t, testDB.First(&product, result.ProductID).Error)
	assert.NotEmpty(t, product.ImageData)
	assert.Empty(t, product.ImageMirrorURL)
}

func TestCatalogService_TaggingFailureRollsBackUpsert(t *testing.T) {
	testDB, catalog, storeID := setupCatalogTest(t, nil)

	require.NoError(t, testDB.Migrator().DropTable(&model.ProductTag{}))

	_, err := catalog.Apply(context.Background(), storeID, scraper.Normalized{Name: "Ring"}, scraper.ApplyOptions{
		Tags:  []string{"in-store"},
		Actor: "scraper",
	})
	require.Error(t, err)

	var se *scraper.StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, scraper.StageTagging, se.Stage)

	var count int64
	require.NoError(t, testDB.Model(&model.Product{}).Count(&count).Error)
	assert.Zero(t, count)
}
