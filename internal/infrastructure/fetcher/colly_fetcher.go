package fetcher

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"job-pipeline/internal/config"

	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"
)

// CollyFetcher serves server-rendered career pages.
type CollyFetcher struct {
	userAgent string
	timeout   time.Duration
	limiter   *rate.Limiter
	logger    *log.Logger
}

func NewCollyFetcher(cfg config.FetchConfig, limiter *rate.Limiter, logger *log.Logger) *CollyFetcher {
	if logger == nil {
		logger = log.Default()
	}
	return &CollyFetcher{
		userAgent: cfg.UserAgent,
		timeout:   cfg.Timeout,
		limiter:   limiter,
		logger:    logger,
	}
}

func (f *CollyFetcher) FetchHTML(ctx context.Context, pageURL string, selectors []string) (string, error) {
	doc, err := f.visit(ctx, pageURL, normalizeSelectors(selectors), nil)
	if err != nil {
		return "", err
	}
	return doc, nil
}

// visit loads pageURL once and collects the inner HTML of each selector. extra
// hooks run against the same response.
func (f *CollyFetcher) visit(ctx context.Context, pageURL string, selectors []string, extra map[string]colly.HTMLCallback) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	var c *colly.Collector
	if allowed := hostFromURL(pageURL); allowed == "" {
		c = colly.NewCollector()
	} else {
		c = colly.NewCollector(colly.AllowedDomains(allowed))
	}
	_ = c.Limit(&colly.LimitRule{DomainGlob: "*", Parallelism: 1, RandomDelay: 500 * time.Millisecond})
	if f.timeout > 0 {
		c.SetRequestTimeout(f.timeout)
	}

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		if f.userAgent != "" {
			r.Headers.Set("User-Agent", f.userAgent)
		}
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9,es;q=0.8")
	})

	var mu sync.Mutex
	parts := make(map[string][]string, len(selectors))
	for _, sel := range selectors {
		sel := sel
		c.OnHTML(sel, func(e *colly.HTMLElement) {
			html, err := e.DOM.Html()
			if err != nil || strings.TrimSpace(html) == "" {
				return
			}
			mu.Lock()
			parts[sel] = append(parts[sel], html)
			mu.Unlock()
		})
	}
	for sel, cb := range extra {
		c.OnHTML(sel, cb)
	}

	var reqErr error
	c.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		reqErr = &FetchError{URL: pageURL, StatusCode: status, Err: err}
	})

	if err := c.Visit(pageURL); err != nil {
		if reqErr != nil {
			return "", reqErr
		}
		return "", &FetchError{URL: pageURL, Err: err}
	}
	c.Wait()
	if reqErr != nil {
		return "", reqErr
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var b strings.Builder
	for _, sel := range selectors {
		for _, html := range parts[sel] {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(html)
		}
	}
	if b.Len() == 0 {
		f.logger.Printf("[Fetch] no content url=%s selectors=%v", pageURL, selectors)
		return "", fmt.Errorf("fetch %s: %w", pageURL, ErrNoContent)
	}
	return b.String(), nil
}
