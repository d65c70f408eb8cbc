package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ikkim/marketplace-ingest/config"
	"github.com/ikkim/marketplace-ingest/internal/app/controller"
	"github.com/ikkim/marketplace-ingest/internal/middleware"
)

type Router struct {
	storeController   *controller.StoreController
	productController *controller.ProductController
	tagController     *controller.TagController
	scrapeController  *controller.ScrapeController
	authMiddleware    *middleware.AuthMiddleware
	config            *config.Config
}

func NewRouter(
	storeController *controller.StoreController,
	productController *controller.ProductController,
	tagController *controller.TagController,
	scrapeController *controller.ScrapeController,
	authMiddleware *middleware.AuthMiddleware,
	cfg *config.Config,
) *Router {
	return &Router{
		storeController:   storeController,
		productController: productController,
		tagController:     tagController,
		scrapeController:  scrapeController,
		authMiddleware:    authMiddleware,
		config:            cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	gin.SetMode(r.config.Server.GinMode)

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.LoggingMiddleware())
	router.Use(corsMiddleware(r.config.CORS.AllowedOrigins))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"message": "marketplace ingest API is running",
		})
	})

	v1 := router.Group("/api/v1")
	{
		stores := v1.Group("/stores")
		{
			stores.GET("", r.storeController.ListStores)
			stores.GET("/:id", r.storeController.GetStoreByID)
			stores.GET("/:id/products", r.storeController.ListStoreProducts)
			stores.DELETE("/:id", r.authMiddleware.RequireAPIKey(), r.storeController.DeleteStore)
		}

		products := v1.Group("/products")
		{
			products.GET("", r.productController.ListProducts)
			products.GET("/:id", r.productController.GetProductByID)
			products.GET("/:id/image", r.productController.GetProductImage)
			products.POST("/:id/tags", r.authMiddleware.RequireAPIKey(), r.tagController.AddProductTags)
		}

		v1.GET("/tags", r.tagController.ListTags)

		// 수집 실행/조회는 운영자 API 키 필요
		scrape := v1.Group("/scrape")
		scrape.Use(r.authMiddleware.RequireAPIKey())
		{
			scrape.GET("/profiles", r.scrapeController.ListProfiles)
			scrape.POST("/runs", r.scrapeController.TriggerAll)
			scrape.POST("/runs/:site", r.scrapeController.TriggerRun)
			scrape.GET("/runs/:site/last", r.scrapeController.GetLastRun)
			scrape.GET("/ws", r.scrapeController.Stream)
		}
	}

	return router
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		allowed := false
		for _, allowedOrigin := range allowedOrigins {
			if origin == allowedOrigin || allowedOrigin == "*" {
				allowed = true
				break
			}
		}

		if allowed {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}

		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, X-API-Key, X-Request-ID, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE, PATCH")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
