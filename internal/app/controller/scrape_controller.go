package controller

import (
	"context"
	stderrors "errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/ikkim/marketplace-ingest/internal/app/service"
	"github.com/ikkim/marketplace-ingest/internal/errors"
	"github.com/ikkim/marketplace-ingest/internal/middleware"
	"github.com/ikkim/marketplace-ingest/internal/scraper"
	ws "github.com/ikkim/marketplace-ingest/internal/websocket"
	"github.com/ikkim/marketplace-ingest/pkg/logger"
)

// ScrapeController 수집 실행/조회 API
type ScrapeController struct {
	scrapeService service.ScrapeService
	hub           *ws.Hub
	upgrader      *websocket.Upgrader

	// 비동기 실행의 상위 컨텍스트 (서버 종료 시 취소)
	baseCtx context.Context
}

func NewScrapeController(scrapeService service.ScrapeService, hub *ws.Hub, allowedOrigins []string, baseCtx context.Context) *ScrapeController {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &ScrapeController{
		scrapeService: scrapeService,
		hub:           hub,
		upgrader:      ws.NewUpgrader(allowedOrigins),
		baseCtx:       baseCtx,
	}
}

type profileView struct {
	Site           string   `json:"site"`
	Store          string   `json:"store"`
	StoreType      string   `json:"store_type"`
	RenderJS       bool     `json:"render_js"`
	Currency       string   `json:"currency,omitempty"`
	MaxPages       int      `json:"max_pages,omitempty"`
	MaxItems       int      `json:"max_items,omitempty"`
	DownloadImages bool     `json:"download_images"`
	Tags           []string `json:"tags,omitempty"`
	ListingURLs    []string `json:"listing_urls"`
}

// ListProfiles 설정된 사이트 프로필 목록
func (ctrl *ScrapeController) ListProfiles(c *gin.Context) {
	sites := ctrl.scrapeService.Sites()
	profiles := make([]profileView, 0, len(sites))
	for _, site := range sites {
		p, err := ctrl.scrapeService.Profile(site)
		if err != nil {
			continue
		}
		profiles = append(profiles, profileView{
			Site:           p.Site,
			Store:          p.Store.Name,
			StoreType:      p.Store.Type,
			RenderJS:       p.RenderJS,
			Currency:       p.Currency,
			MaxPages:       p.MaxPages,
			MaxItems:       p.MaxItems,
			DownloadImages: p.DownloadImages,
			Tags:           p.Tags,
			ListingURLs:    p.Listing.URLs,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"profiles": profiles,
		"count":    len(profiles),
	})
}

// TriggerRun 사이트 1건 수집 실행. ?wait=true 이면 완료까지 기다려 요약을 반환합니다.
func (ctrl *ScrapeController) TriggerRun(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	site := c.Param("site")
	if _, err := ctrl.scrapeService.Profile(site); err != nil {
		errors.NotFound(c, errors.ScrapeProfileNotFound, "수집 프로필이 없는 사이트입니다")
		return
	}
	operator, _ := middleware.GetOperator(c)

	if !wantsWait(c) {
		done, err := ctrl.scrapeService.Start(ctrl.baseCtx, site, operator)
		if err != nil {
			ctrl.respondRunError(c, site, nil, err)
			return
		}
		go ctrl.awaitBackground(site, operator, done)
		log.Info("Scrape run accepted", map[string]interface{}{
			"site":     site,
			"operator": operator,
		})
		c.JSON(http.StatusAccepted, gin.H{
			"message": "수집이 시작되었습니다",
			"site":    site,
		})
		return
	}

	summary, err := ctrl.scrapeService.Run(c.Request.Context(), site, operator)
	if err != nil {
		ctrl.respondRunError(c, site, summary, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"summary": summary,
	})
}

// TriggerAll 여러 사이트 동시 수집 (body의 sites가 비어 있으면 전체)
func (ctrl *ScrapeController) TriggerAll(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	var req struct {
		Sites []string `json:"sites"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			errors.BadRequest(c, errors.ValidationInvalidInput, "요청 형식이 올바르지 않습니다")
			return
		}
	}
	for _, site := range req.Sites {
		if _, err := ctrl.scrapeService.Profile(site); err != nil {
			errors.NotFound(c, errors.ScrapeProfileNotFound, "수집 프로필이 없는 사이트입니다: "+site)
			return
		}
	}
	operator, _ := middleware.GetOperator(c)

	if !wantsWait(c) {
		go func() {
			summaries, err := ctrl.scrapeService.RunAll(ctrl.baseCtx, req.Sites, operator)
			if err != nil {
				logger.Error("Background scrape runs reported errors", err, map[string]interface{}{
					"runs": len(summaries),
				})
			}
		}()
		log.Info("Scrape runs accepted", map[string]interface{}{
			"sites":    req.Sites,
			"operator": operator,
		})
		c.JSON(http.StatusAccepted, gin.H{
			"message": "수집이 시작되었습니다",
			"sites":   req.Sites,
		})
		return
	}

	summaries, err := ctrl.scrapeService.RunAll(c.Request.Context(), req.Sites, operator)
	resp := gin.H{
		"summaries": summaries,
		"count":     len(summaries),
	}
	if err != nil {
		resp["error"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// GetLastRun 사이트의 마지막 수집 요약
func (ctrl *ScrapeController) GetLastRun(c *gin.Context) {
	site := c.Param("site")
	if _, err := ctrl.scrapeService.Profile(site); err != nil {
		errors.NotFound(c, errors.ScrapeProfileNotFound, "수집 프로필이 없는 사이트입니다")
		return
	}

	summary := ctrl.scrapeService.LastRun(site)
	if summary == nil {
		errors.NotFound(c, errors.ResourceNotFound, "아직 수집 기록이 없습니다")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"summary": summary,
	})
}

// Stream 수집 진행 이벤트 WebSocket (?site=a,b 또는 전체)
func (ctrl *ScrapeController) Stream(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	sites := []string{ws.AllSites}
	if raw := strings.TrimSpace(c.Query("site")); raw != "" {
		sites = strings.Split(raw, ",")
	}

	conn, err := ctrl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn("WebSocket upgrade failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	operator, _ := middleware.GetOperator(c)
	client := ws.NewClient(ctrl.hub, &ws.Conn{Conn: conn}, operator, sites...)
	ctrl.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}

func (ctrl *ScrapeController) awaitBackground(site, operator string, done <-chan service.RunResult) {
	result := <-done
	summary, err := result.Summary, result.Err
	fields := map[string]interface{}{
		"site":     site,
		"operator": operator,
	}
	if summary != nil {
		fields["run_id"] = summary.RunID
		fields["failed"] = summary.Failed
	}
	if err != nil {
		logger.Error("Background scrape run failed", err, fields)
		return
	}
	logger.Info("Background scrape run finished", fields)
}

func (ctrl *ScrapeController) respondRunError(c *gin.Context, site string, summary *scraper.RunSummary, err error) {
	log := middleware.GetLoggerFromContext(c)

	switch {
	case stderrors.Is(err, service.ErrRunInProgress):
		errors.Conflict(c, errors.ScrapeRunInProgress, err.Error())
	case scraper.IsConfigurationError(err):
		errors.UnprocessableEntity(c, errors.ScrapeProfileInvalid, err.Error())
	default:
		log.Error("Scrape run failed", err, map[string]interface{}{
			"site": site,
		})
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   errors.ScrapeRunFailed,
			"message": err.Error(),
			"summary": summary,
		})
	}
}

func wantsWait(c *gin.Context) bool {
	return strings.EqualFold(c.Query("wait"), "true")
}
