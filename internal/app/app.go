// Package app wires the ingestion pipeline and the HTTP API together. The
// server and the scrape CLI build the same graph from config.
package app

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/ikkim/marketplace-ingest/config"
	"github.com/ikkim/marketplace-ingest/internal/app/controller"
	"github.com/ikkim/marketplace-ingest/internal/app/repository"
	"github.com/ikkim/marketplace-ingest/internal/app/service"
	"github.com/ikkim/marketplace-ingest/internal/middleware"
	"github.com/ikkim/marketplace-ingest/internal/router"
	"github.com/ikkim/marketplace-ingest/internal/scraper"
	"github.com/ikkim/marketplace-ingest/internal/websocket"
	"github.com/ikkim/marketplace-ingest/pkg/logger"
	appredis "github.com/ikkim/marketplace-ingest/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Options carries the collaborators that depend on the environment. Nil
// fields disable the matching feature.
type Options struct {
	DB       *gorm.DB
	Profiles *scraper.ProfileSet
	Redis    *goredis.Client     // API key cache + cross-process run lock
	Geocoder service.Geocoder    // 좌표 없는 매장 지오코딩
	Mirror   service.ImageMirror // 이미지 S3 미러
	Browser  scraper.Fetcher     // render_js 프로필용 헤드리스 브라우저
	Observer scraper.Observer    // 추가 이벤트 수신자 (hub와 함께 호출)
}

// App is the assembled object graph.
type App struct {
	Hub         *websocket.Hub
	Coordinator *scraper.Coordinator
	Stores      service.StoreService
	Products    service.ProductService
	Tags        service.TagService
	Credentials service.CredentialService
	Scrape      service.ScrapeService

	cfg *config.Config
}

// New builds the graph. ctx bounds background work (hub loop, async runs).
func New(ctx context.Context, cfg *config.Config, opts Options) *App {
	database := opts.DB

	storeRepo := repository.NewStoreRepository(database)
	productRepo := repository.NewProductRepository(database)
	tagRepo := repository.NewTagRepository(database)
	apiKeyRepo := repository.NewAPIKeyRepository(database)

	var keyCache service.KeyCache
	var runLock service.RunLock
	if opts.Redis != nil {
		keyCache = appredis.NewKeyCache(opts.Redis, "apikey:")
		runLock = appredis.NewRunLock(opts.Redis, "scrape:lock:")
	}

	stores := service.NewStoreService(database, storeRepo, opts.Geocoder)
	products := service.NewProductService(database, productRepo)
	tags := service.NewTagService(database, tagRepo)
	credentials := service.NewCredentialService(apiKeyRepo, keyCache)

	httpFetcher := scraper.NewHTTPFetcher(scraper.HTTPFetcherOptions{
		UserAgent: cfg.Scraper.UserAgent,
		Timeout:   cfg.Scraper.HTTPTimeout,
	})
	catalog := service.NewCatalogService(database, stores, httpFetcher, opts.Mirror)

	hub := websocket.NewHub()
	go hub.Run(ctx)

	var observer scraper.Observer = hub
	if opts.Observer != nil {
		extra := opts.Observer
		observer = scraper.ObserverFunc(func(e scraper.RunEvent) {
			hub.OnEvent(e)
			extra.OnEvent(e)
		})
	}

	coordinator := scraper.NewCoordinator(
		&scraper.Switch{HTTP: httpFetcher, Browser: opts.Browser},
		catalog,
		scraper.CoordinatorOptions{
			MaxPages:    cfg.Scraper.MaxPages,
			ItemTimeout: cfg.Scraper.ItemTimeout,
			RunTimeout:  cfg.Scraper.RunTimeout,
			Workers:     cfg.Scraper.Workers,
			Actor:       cfg.Scraper.Actor,
			Normalizer:  scraper.NewNormalizer(cfg.Scraper.PlaceholderDomains...),
			Observer:    observer,
			Logger:      logger.Get(),
		},
	)

	scrape := service.NewScrapeService(opts.Profiles, coordinator, runLock, service.ScrapeServiceOptions{
		MaxConcurrentRuns: cfg.Scraper.MaxConcurrentRuns,
		LockTTL:           cfg.Scraper.RunLockTTL,
	})

	return &App{
		Hub:         hub,
		Coordinator: coordinator,
		Stores:      stores,
		Products:    products,
		Tags:        tags,
		Credentials: credentials,
		Scrape:      scrape,
		cfg:         cfg,
	}
}

// Handler builds the HTTP API. ctx is the parent of runs started with 202.
func (a *App) Handler(ctx context.Context) *gin.Engine {
	r := router.NewRouter(
		controller.NewStoreController(a.Stores, a.Products),
		controller.NewProductController(a.Products),
		controller.NewTagController(a.Tags, a.Products),
		controller.NewScrapeController(a.Scrape, a.Hub, a.cfg.CORS.AllowedOrigins, ctx),
		middleware.NewAuthMiddleware(a.Credentials),
		a.cfg,
	)
	return r.Setup()
}
