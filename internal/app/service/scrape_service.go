package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ikkim/marketplace-ingest/internal/scraper"
	"github.com/ikkim/marketplace-ingest/pkg/logger"
	"golang.org/x/sync/errgroup"
)

const defaultRunLockTTL = 45 * time.Minute

var ErrRunInProgress = errors.New("이미 수집이 진행 중인 사이트입니다")

// RunLock serialises runs of one site across processes. The Redis-backed
// implementation lives in pkg/redis.
type RunLock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

// Runner runs one profile. *scraper.Coordinator satisfies it.
type Runner interface {
	Run(ctx context.Context, profile *scraper.Profile) (*scraper.RunSummary, error)
}

type ScrapeServiceOptions struct {
	MaxConcurrentRuns int
	LockTTL           time.Duration
}

type ScrapeService interface {
	Sites() []string
	Profile(site string) (*scraper.Profile, error)
	Run(ctx context.Context, site, actor string) (*scraper.RunSummary, error)
	Start(ctx context.Context, site, actor string) (<-chan RunResult, error)
	RunAll(ctx context.Context, sites []string, actor string) ([]*scraper.RunSummary, error)
	LastRun(site string) *scraper.RunSummary
}

type scrapeService struct {
	profiles *scraper.ProfileSet
	runner   Runner
	lock     RunLock
	opts     ScrapeServiceOptions

	mu      sync.RWMutex
	running map[string]bool
	last    map[string]*scraper.RunSummary
}

// NewScrapeService lock may be nil; runs are then only guarded within this
// process.
func NewScrapeService(profiles *scraper.ProfileSet, runner Runner, lock RunLock, opts ScrapeServiceOptions) ScrapeService {
	if opts.MaxConcurrentRuns <= 0 {
		opts.MaxConcurrentRuns = 1
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaultRunLockTTL
	}
	return &scrapeService{
		profiles: profiles,
		runner:   runner,
		lock:     lock,
		opts:     opts,
		running:  make(map[string]bool),
		last:     make(map[string]*scraper.RunSummary),
	}
}

func (s *scrapeService) Sites() []string {
	return s.profiles.Sites()
}

func (s *scrapeService) Profile(site string) (*scraper.Profile, error) {
	return s.profiles.Get(site)
}

// RunResult is what a run started with Start reports once it finishes.
type RunResult struct {
	Summary *scraper.RunSummary
	Err     error
}

// Run scrapes one site. A site already being scraped, here or by another
// process holding the lock, yields ErrRunInProgress.
func (s *scrapeService) Run(ctx context.Context, site, actor string) (*scraper.RunSummary, error) {
	profile, release, err := s.reserve(ctx, site)
	if err != nil {
		return nil, err
	}
	defer release()
	return s.execute(ctx, profile, actor)
}

// Start reserves the site before returning, so ErrRunInProgress surfaces to
// the caller, then runs it in the background under ctx. The channel receives
// exactly one result.
func (s *scrapeService) Start(ctx context.Context, site, actor string) (<-chan RunResult, error) {
	profile, release, err := s.reserve(ctx, site)
	if err != nil {
		return nil, err
	}

	done := make(chan RunResult, 1)
	go func() {
		summary, err := s.execute(ctx, profile, actor)
		release()
		done <- RunResult{Summary: summary, Err: err}
		close(done)
	}()
	return done, nil
}

// reserve marks the site running in this process and takes the shared lock.
func (s *scrapeService) reserve(ctx context.Context, site string) (*scraper.Profile, func(), error) {
	profile, err := s.profiles.Get(site)
	if err != nil {
		return nil, nil, err
	}

	if !s.markRunning(site) {
		return nil, nil, ErrRunInProgress
	}
	if s.lock == nil {
		return profile, func() { s.clearRunning(site) }, nil
	}

	token, ok, err := s.lock.Acquire(ctx, site, s.opts.LockTTL)
	if err != nil || !ok {
		s.clearRunning(site)
		if err == nil {
			err = ErrRunInProgress
		}
		return nil, nil, err
	}

	release := func() {
		defer s.clearRunning(site)
		// 요청 컨텍스트가 끝났어도 락은 풀어야 함
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.lock.Release(releaseCtx, site, token); err != nil {
			logger.Warn("Failed to release run lock", map[string]interface{}{
				"site":  site,
				"error": err.Error(),
			})
		}
	}
	return profile, release, nil
}

func (s *scrapeService) execute(ctx context.Context, profile *scraper.Profile, actor string) (*scraper.RunSummary, error) {
	if actor != "" {
		ctx = scraper.WithActor(ctx, actor)
	}
	summary, err := s.runner.Run(ctx, profile)
	if summary != nil {
		s.mu.Lock()
		s.last[profile.Site] = summary
		s.mu.Unlock()
	}
	return summary, err
}

// RunAll scrapes sites concurrently, all configured sites when sites is
// empty. One site's failure does not cancel the others; the first run-level
// error is returned together with every summary produced.
func (s *scrapeService) RunAll(ctx context.Context, sites []string, actor string) ([]*scraper.RunSummary, error) {
	if len(sites) == 0 {
		sites = s.profiles.Sites()
	}

	summaries := make([]*scraper.RunSummary, len(sites))
	var g errgroup.Group
	g.SetLimit(s.opts.MaxConcurrentRuns)

	for i, site := range sites {
		g.Go(func() error {
			summary, err := s.Run(ctx, site, actor)
			summaries[i] = summary
			if err != nil {
				logger.Error("Scrape run failed", err, map[string]interface{}{
					"site": site,
				})
			}
			return err
		})
	}
	err := g.Wait()

	out := summaries[:0]
	for _, summary := range summaries {
		if summary != nil {
			out = append(out, summary)
		}
	}
	return out, err
}

func (s *scrapeService) LastRun(site string) *scraper.RunSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last[site]
}

func (s *scrapeService) markRunning(site string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running[site] {
		return false
	}
	s.running[site] = true
	return true
}

func (s *scrapeService) clearRunning(site string) {
	s.mu.Lock()
	delete(s.running, site)
	s.mu.Unlock()
}
