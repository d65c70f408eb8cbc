package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/ikkim/marketplace-ingest/pkg/logger"
	"golang.org/x/sync/errgroup"
)

const (
	defaultMaxPages    = 10
	defaultItemTimeout = 30 * time.Second

	TagInStore      = "in-store"
	SourceTagPrefix = "source:"
)

// CoordinatorOptions tunes a Coordinator. Zero values fall back to defaults.
type CoordinatorOptions struct {
	MaxPages    int           // listing page cap when the profile sets none
	ItemTimeout time.Duration // per-fetch bound, listing pages included
	RunTimeout  time.Duration // whole-run bound, 0 means unbounded
	Workers     int           // concurrent fetches; processing stays in order
	Actor       string
	Normalizer  *Normalizer
	Observer    Observer
	Logger      *logger.Logger
}

// Coordinator drives one site through enumeration and the per-item stages.
// It keeps no per-run state, so one value may serve concurrent runs of
// different sites.
type Coordinator struct {
	fetcher    Fetcher
	catalog    Catalog
	normalizer *Normalizer
	opts       CoordinatorOptions
	log        *logger.Logger
}

func NewCoordinator(fetcher Fetcher, catalog Catalog, opts CoordinatorOptions) *Coordinator {
	if opts.MaxPages <= 0 {
		opts.MaxPages = defaultMaxPages
	}
	if opts.ItemTimeout <= 0 {
		opts.ItemTimeout = defaultItemTimeout
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Actor == "" {
		opts.Actor = "scraper"
	}
	normalizer := opts.Normalizer
	if normalizer == nil {
		normalizer = NewNormalizer()
	}
	log := opts.Logger
	if log == nil {
		log = logger.Get()
	}
	return &Coordinator{
		fetcher:    fetcher,
		catalog:    catalog,
		normalizer: normalizer,
		opts:       opts,
		log:        log,
	}
}

// run is the mutable state of a single invocation.
type run struct {
	c       *Coordinator
	profile *Profile
	actor   string
	store   *StoreInfo
	tags    []string
	summary *RunSummary
	state   State
	log     *logger.Logger
}

type fetchResult struct {
	page     *Page
	err      error
	acquired bool
}

// Run scrapes profile's site once. The summary is always returned; the error
// is non-nil only for run-level failures (bad profile, store resolution,
// cancellation). Per-item failures land in summary.Failures.
func (c *Coordinator) Run(ctx context.Context, profile *Profile) (*RunSummary, error) {
	summary := &RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
	}
	if profile == nil {
		err := &ConfigurationError{Reason: "nil profile"}
		return c.finish(summary, err), err
	}
	summary.Site = profile.Site

	r := &run{
		c:       c,
		profile: profile,
		summary: summary,
		actor:   c.actor(ctx),
		state:   StateIdle,
		log: c.log.WithContext(map[string]interface{}{
			"run_id": summary.RunID,
			"site":   profile.Site,
		}),
	}

	if err := profile.Validate(); err != nil {
		r.log.Error("Invalid selector profile", err)
		return c.finish(summary, err), err
	}

	if c.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.RunTimeout)
		defer cancel()
	}

	r.log.Info("Scrape run started", map[string]interface{}{
		"render_js": profile.RenderJS,
		"workers":   c.opts.Workers,
	})
	c.publish(RunEvent{Type: EventRunStarted, RunID: summary.RunID, Site: profile.Site})

	store, err := c.catalog.EnsureStore(ctx, profile.Store, r.actor)
	if err != nil {
		r.log.Error("Failed to resolve store", err, map[string]interface{}{
			"store": profile.Store.Name,
		})
		return c.finish(summary, err), fmt.Errorf("resolve store: %w", err)
	}
	r.store = store
	r.tags = itemTags(profile, store)
	summary.StoreID = store.ID

	r.setState(StateEnumerating)
	urls := r.enumerate(ctx)
	summary.Enumerated = len(urls)
	r.log.Info("Enumeration finished", map[string]interface{}{
		"items":          len(urls),
		"listing_pages":  summary.ListingPages,
		"listing_errors": summary.ListingErrors,
	})
	c.publish(RunEvent{Type: EventEnumerated, RunID: summary.RunID, Site: profile.Site, Count: len(urls)})

	r.setState(StatePerItem)
	if c.opts.Workers > 1 && len(urls) > 1 {
		r.processPrefetched(ctx, urls)
	} else {
		for _, u := range urls {
			if ctx.Err() != nil {
				r.process(ctx, u, fetchResult{err: ctx.Err()})
				continue
			}
			page, err := r.fetch(ctx, u)
			r.process(ctx, u, fetchResult{page: page, err: err})
		}
	}
	r.setState(StateIdle)

	var runErr error
	if err := ctx.Err(); err != nil {
		runErr = fmt.Errorf("run interrupted: %w", err)
	}
	c.finish(summary, runErr)
	r.log.Info("Scrape run finished", map[string]interface{}{
		"enumerated": summary.Enumerated,
		"inserted":   summary.Inserted,
		"updated":    summary.Updated,
		"skipped":    summary.Skipped,
		"failed":     summary.Failed,
		"elapsed_ms": summary.FinishedAt.Sub(summary.StartedAt).Milliseconds(),
	})
	return summary, runErr
}

type actorKey struct{}

// WithActor sets the identity stamped on rows written by runs started with ctx.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func (c *Coordinator) actor(ctx context.Context) string {
	if a, ok := ctx.Value(actorKey{}).(string); ok && a != "" {
		return a
	}
	return c.opts.Actor
}

func (c *Coordinator) finish(summary *RunSummary, err error) *RunSummary {
	summary.FinishedAt = time.Now()
	if err != nil {
		summary.Error = err.Error()
	}
	s := *summary
	c.publish(RunEvent{Type: EventRunFinished, RunID: summary.RunID, Site: summary.Site, Summary: &s})
	return summary
}

func (c *Coordinator) publish(e RunEvent) {
	if c.opts.Observer != nil {
		c.opts.Observer.OnEvent(e)
	}
}

func (r *run) setState(s State) {
	r.log.Debug("Run state changed", map[string]interface{}{
		"from": string(r.state),
		"to":   string(s),
	})
	r.state = s
}

// enumerate walks the listing pages breadth-first, following next-page links up
// to the page cap. A failing listing page is counted and skipped.
func (r *run) enumerate(ctx context.Context) []string {
	maxPages := r.profile.MaxPages
	if maxPages <= 0 {
		maxPages = r.c.opts.MaxPages
	}

	queue := append([]string(nil), r.profile.Listing.URLs...)
	visited := make(map[string]bool)
	seen := make(map[string]bool)
	var items []string

	for len(queue) > 0 && r.summary.ListingPages < maxPages {
		if ctx.Err() != nil {
			break
		}
		listURL := queue[0]
		queue = queue[1:]
		if visited[listURL] {
			continue
		}
		visited[listURL] = true
		r.summary.ListingPages++

		page, err := r.fetch(ctx, listURL)
		if err != nil {
			r.summary.ListingErrors++
			r.log.Warn("Listing page fetch failed", map[string]interface{}{
				"url":   listURL,
				"error": err.Error(),
			})
			continue
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
		if err != nil {
			r.summary.ListingErrors++
			r.log.Warn("Listing page parse failed", map[string]interface{}{
				"url":   listURL,
				"error": err.Error(),
			})
			continue
		}
		base := page.FinalURL
		if base == "" {
			base = listURL
		}

		for _, link := range linksFromDocument(doc, r.profile.Listing.ItemLinks) {
			abs, ok := r.c.normalizer.ResolveURL(base, link)
			if !ok || seen[abs] {
				continue
			}
			seen[abs] = true
			items = append(items, abs)
			if r.profile.MaxItems > 0 && len(items) >= r.profile.MaxItems {
				return items
			}
		}

		for _, link := range linksFromDocument(doc, r.profile.Listing.NextPage) {
			if abs, ok := r.c.normalizer.ResolveURL(base, link); ok && !visited[abs] {
				queue = append(queue, abs)
			}
		}
	}
	return items
}

// fetch applies the per-item bound. Deadline errors are wrapped so they are
// reported as fetch failures.
func (r *run) fetch(ctx context.Context, url string) (*Page, error) {
	itemCtx, cancel := context.WithTimeout(ctx, r.c.opts.ItemTimeout)
	defer cancel()

	page, err := r.c.fetcher.Fetch(itemCtx, url, r.profile.RenderJS)
	if err != nil {
		var fe *FetchError
		if !errors.As(err, &fe) {
			err = &FetchError{URL: url, Err: err}
		}
		return nil, err
	}
	if page == nil {
		return nil, &FetchError{URL: url, Err: errors.New("empty response")}
	}
	return page, nil
}

// processPrefetched fetches up to Workers pages concurrently while records are
// still processed one by one in enumeration order. At most 2*Workers fetched
// pages wait unprocessed.
func (r *run) processPrefetched(ctx context.Context, urls []string) {
	workers := r.c.opts.Workers
	ahead := make(chan struct{}, workers*2)
	slots := make([]chan fetchResult, len(urls))
	for i := range slots {
		slots[i] = make(chan fetchResult, 1)
	}

	go func() {
		g := new(errgroup.Group)
		g.SetLimit(workers)
		for i, u := range urls {
			select {
			case ahead <- struct{}{}:
			case <-ctx.Done():
				for j := i; j < len(urls); j++ {
					slots[j] <- fetchResult{err: ctx.Err()}
				}
				_ = g.Wait()
				return
			}
			i, u := i, u
			g.Go(func() error {
				page, err := r.fetch(ctx, u)
				slots[i] <- fetchResult{page: page, err: err, acquired: true}
				return nil
			})
		}
		_ = g.Wait()
	}()

	for i, u := range urls {
		res := <-slots[i]
		r.process(ctx, u, res)
		if res.acquired {
			<-ahead
		}
	}
}

// process moves one item from a fetched page to a terminal outcome.
func (r *run) process(ctx context.Context, url string, res fetchResult) {
	rec := &Record{SourceURL: url, StoreID: r.store.ID, Stage: StageFetching}
	start := time.Now()

	if res.err != nil {
		r.fail(rec, res.err)
		return
	}

	rec.Stage = StageExtracting
	raw, err := Extract(res.page.HTML, r.profile)
	rec.Raw = raw
	if err != nil {
		r.fail(rec, err)
		return
	}

	rec.Stage = StageNormalizing
	pageURL := res.page.FinalURL
	if pageURL == "" {
		pageURL = url
	}
	norm, warnings := r.c.normalizer.Normalize(raw, pageURL, r.profile.Currency)
	if norm.SourceURL == "" {
		norm.SourceURL = url
	}
	rec.Normalized = norm
	rec.Warnings = warnings
	if norm.Name == "" {
		r.fail(rec, fmt.Errorf("%w: %s is blank after cleaning", ErrExtractionMiss, FieldName))
		return
	}

	if err := ctx.Err(); err != nil {
		r.fail(rec, err)
		return
	}

	rec.Stage = StageUpserting
	result, err := r.c.catalog.Apply(ctx, r.store.ID, norm, ApplyOptions{
		Tags:           r.tags,
		Actor:          r.actor,
		DownloadImages: r.profile.DownloadImages,
	})
	if err != nil {
		var se *StageError
		if errors.As(err, &se) {
			rec.Stage = se.Stage
		}
		r.fail(rec, err)
		return
	}

	rec.Stage = StageDone
	rec.Outcome = result.Outcome
	rec.ProductID = result.ProductID
	rec.Warnings = append(rec.Warnings, result.Warnings...)
	r.summary.record(rec)

	r.log.Debug("Item processed", map[string]interface{}{
		"url":        url,
		"outcome":    string(rec.Outcome),
		"product_id": rec.ProductID,
		"elapsed_ms": time.Since(start).Milliseconds(),
	})
	r.c.publish(RunEvent{
		Type:    EventItemDone,
		RunID:   r.summary.RunID,
		Site:    r.profile.Site,
		URL:     url,
		Stage:   StageDone,
		Outcome: rec.Outcome,
	})
}

func (r *run) fail(rec *Record, err error) {
	rec.Outcome = OutcomeFailed
	rec.Reason = err.Error()
	r.summary.record(rec)

	r.log.Warn("Item failed", map[string]interface{}{
		"url":   rec.SourceURL,
		"stage": string(rec.Stage),
		"error": rec.Reason,
	})
	r.c.publish(RunEvent{
		Type:    EventItemFailed,
		RunID:   r.summary.RunID,
		Site:    r.profile.Site,
		URL:     rec.SourceURL,
		Stage:   rec.Stage,
		Outcome: OutcomeFailed,
		Reason:  rec.Reason,
	})
}

// itemTags is the tag set applied to every product of a run: the profile's
// tags, the site provenance tag and in-store for physical stores with an address.
func itemTags(profile *Profile, store *StoreInfo) []string {
	seen := make(map[string]bool)
	var tags []string
	add := func(name string) {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		tags = append(tags, name)
	}
	for _, t := range profile.Tags {
		add(t)
	}
	add(SourceTagPrefix + profile.Site)
	if store.InStore {
		add(TagInStore)
	}
	return tags
}
