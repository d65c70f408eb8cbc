package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultUserAgent   = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	defaultHTTPTimeout = 20 * time.Second
	maxBodyBytes       = 16 << 20
)

// Page is a retrieved document.
type Page struct {
	HTML       string
	FinalURL   string
	StatusCode int
}

// Fetcher retrieves raw or rendered markup for a URL. Implementations do not retry.
type Fetcher interface {
	Fetch(ctx context.Context, url string, renderJS bool) (*Page, error)
}

// HTTPFetcherOptions configures HTTPFetcher.
type HTTPFetcherOptions struct {
	UserAgent string
	Timeout   time.Duration
	Client    *http.Client
}

// HTTPFetcher performs plain GET requests.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
}

func NewHTTPFetcher(opts HTTPFetcherOptions) *HTTPFetcher {
	ua := opts.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPFetcher{client: client, userAgent: ua, timeout: timeout}
}

// Fetch ignores renderJS; use Switch to route JS pages to a browser.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string, _ bool) (*Page, error) {
	body, finalURL, status, _, err := f.get(ctx, url, "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")
	if err != nil {
		return nil, err
	}
	return &Page{HTML: string(body), FinalURL: finalURL, StatusCode: status}, nil
}

// Download fetches a binary resource (product images) and returns its bytes and
// the server-declared content type.
func (f *HTTPFetcher) Download(ctx context.Context, url string) ([]byte, string, error) {
	body, _, _, contentType, err := f.get(ctx, url, "image/*,*/*;q=0.8")
	if err != nil {
		return nil, "", err
	}
	return body, contentType, nil
}

func (f *HTTPFetcher) get(ctx context.Context, url, accept string) ([]byte, string, int, string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", 0, "", &FetchError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, "", 0, "", &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, "", resp.StatusCode, "", &FetchError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, "", resp.StatusCode, "", &FetchError{URL: url, Err: fmt.Errorf("read body: %w", err)}
	}

	return body, resp.Request.URL.String(), resp.StatusCode, resp.Header.Get("Content-Type"), nil
}

// Switch routes a fetch to the HTTP or browser implementation.
type Switch struct {
	HTTP    Fetcher
	Browser Fetcher // nil when headless rendering is disabled
}

func (s *Switch) Fetch(ctx context.Context, url string, renderJS bool) (*Page, error) {
	if renderJS {
		if s.Browser == nil {
			return nil, &FetchError{URL: url, Err: ErrBrowserUnavailable}
		}
		return s.Browser.Fetch(ctx, url, true)
	}
	if s.HTTP == nil {
		return nil, &FetchError{URL: url, Err: errors.New("no http fetcher configured")}
	}
	return s.HTTP.Fetch(ctx, url, false)
}
