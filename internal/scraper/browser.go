package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ikkim/marketplace-ingest/pkg/logger"
)

// BrowserOptions configures the headless browser fetcher.
type BrowserOptions struct {
	BinPath     string
	Headless    bool
	UserAgent   string
	PageTimeout time.Duration // navigation + load bound per page
	IdleTimeout time.Duration // how long to wait for the network to settle
}

// BrowserFetcher renders JS-driven catalog pages with a headless Chromium.
// One browser process is shared; every Fetch opens and closes its own page.
type BrowserFetcher struct {
	browser     *rod.Browser
	userAgent   string
	pageTimeout time.Duration
	idleTimeout time.Duration
}

// NewBrowserFetcher launches (or downloads, when BinPath is empty) Chromium and
// connects to it. Call Close to release the process.
func NewBrowserFetcher(opts BrowserOptions) (*BrowserFetcher, error) {
	bin := opts.BinPath
	if bin == "" {
		logger.Info("No browser binary specified, downloading default")
		path, err := launcher.NewBrowser().Get()
		if err != nil {
			return nil, fmt.Errorf("download browser: %w", err)
		}
		bin = path
	}

	l := launcher.New().
		Headless(opts.Headless).
		Bin(bin).
		NoSandbox(true).
		Set("remote-allow-origins", "*")

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	pageTimeout := opts.PageTimeout
	if pageTimeout <= 0 {
		pageTimeout = 40 * time.Second
	}
	idleTimeout := opts.IdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = 8 * time.Second
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}

	logger.Info("Browser started", map[string]interface{}{
		"bin":      bin,
		"headless": opts.Headless,
	})

	return &BrowserFetcher{
		browser:     browser,
		userAgent:   ua,
		pageTimeout: pageTimeout,
		idleTimeout: idleTimeout,
	}, nil
}

// Fetch navigates to url and returns the serialized DOM after the network goes idle
// or the idle bound elapses, whichever comes first.
func (b *BrowserFetcher) Fetch(ctx context.Context, url string, _ bool) (*Page, error) {
	raw, err := stealth.Page(b.browser)
	if err != nil {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("open page: %w", err)}
	}
	// Closed through the unbounded handle so an expired ctx cannot leak the tab.
	defer func() {
		if cerr := raw.Close(); cerr != nil {
			logger.Warn("Failed to close browser page", map[string]interface{}{
				"url":   url,
				"error": cerr.Error(),
			})
		}
	}()

	tab := raw.Context(ctx).Timeout(b.pageTimeout)
	defer tab.CancelTimeout()

	if err := tab.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: b.userAgent}); err != nil {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("set user agent: %w", err)}
	}

	idle := tab.Timeout(b.idleTimeout)
	waitIdle := idle.WaitRequestIdle(500*time.Millisecond, nil, nil, nil)

	if err := tab.Navigate(url); err != nil {
		idle.CancelTimeout()
		return nil, &FetchError{URL: url, Err: fmt.Errorf("navigate: %w", err)}
	}
	if err := tab.WaitLoad(); err != nil {
		idle.CancelTimeout()
		return nil, &FetchError{URL: url, Err: fmt.Errorf("wait load: %w", err)}
	}
	// Returns early on the idle bound; a still-busy page is serialized as-is.
	waitIdle()
	idle.CancelTimeout()

	html, err := tab.HTML()
	if err != nil {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("serialize dom: %w", err)}
	}

	finalURL := url
	if info, err := tab.Info(); err == nil && info.URL != "" {
		finalURL = info.URL
	}

	return &Page{HTML: html, FinalURL: finalURL, StatusCode: 200}, nil
}

// Close terminates the browser process.
func (b *BrowserFetcher) Close() error {
	if b.browser == nil {
		return nil
	}
	logger.Info("Closing browser")
	return b.browser.Close()
}
