package scheduler

import (
	"context"
	"errors"

	"github.com/ikkim/marketplace-ingest/internal/app/service"
	"github.com/ikkim/marketplace-ingest/pkg/logger"
	"github.com/robfig/cron/v3"
)

// ScrapeScheduler 정기 수집 스케줄러
type ScrapeScheduler struct {
	cron   *cron.Cron
	scrape service.ScrapeService
	spec   string
	sites  []string
	actor  string
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScrapeScheduler 수집 스케줄러 생성. sites가 비어 있으면 전체 프로필을 수집합니다.
func NewScrapeScheduler(scrape service.ScrapeService, spec string, sites []string, actor string) *ScrapeScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &ScrapeScheduler{
		// 이전 실행이 끝나지 않았으면 건너뜀
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		scrape: scrape,
		spec:   spec,
		sites:  sites,
		actor:  actor,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start 스케줄러 시작
func (s *ScrapeScheduler) Start() error {
	_, err := s.cron.AddFunc(s.spec, s.runOnce)
	if err != nil {
		logger.Error("Failed to add cron job for scraping", err, map[string]interface{}{
			"cron": s.spec,
		})
		return err
	}

	s.cron.Start()
	logger.Info("Scrape scheduler started", map[string]interface{}{
		"cron":  s.spec,
		"sites": s.sites,
	})
	return nil
}

func (s *ScrapeScheduler) runOnce() {
	logger.Info("Starting scheduled scrape", map[string]interface{}{
		"sites": s.sites,
	})

	summaries, err := s.scrape.RunAll(s.ctx, s.sites, s.actor)
	for _, summary := range summaries {
		logger.Info("Scheduled scrape finished", map[string]interface{}{
			"site":     summary.Site,
			"run_id":   summary.RunID,
			"inserted": summary.Inserted,
			"updated":  summary.Updated,
			"skipped":  summary.Skipped,
			"failed":   summary.Failed,
		})
	}
	if err != nil && !errors.Is(err, service.ErrRunInProgress) {
		logger.Error("Scheduled scrape reported errors", err)
	}
}

// Stop 스케줄러 중지. 진행 중인 수집은 취소 후 종료를 기다립니다.
func (s *ScrapeScheduler) Stop() {
	logger.Info("Stopping scrape scheduler...", nil)
	s.cancel()
	<-s.cron.Stop().Done()
	logger.Info("Scrape scheduler stopped", nil)
}
