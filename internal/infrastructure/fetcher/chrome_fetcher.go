package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"job-pipeline/internal/config"

	"github.com/chromedp/chromedp"
	"golang.org/x/time/rate"
)

// ChromeFetcher renders client-side applications in headless Chrome before
// applying the selectors.
type ChromeFetcher struct {
	userAgent string
	timeout   time.Duration
	wait      time.Duration
	limiter   *rate.Limiter
	logger    *log.Logger
}

func NewChromeFetcher(cfg config.FetchConfig, limiter *rate.Limiter, logger *log.Logger) *ChromeFetcher {
	if logger == nil {
		logger = log.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ChromeFetcher{
		userAgent: cfg.UserAgent,
		timeout:   timeout,
		wait:      cfg.HeadlessWait,
		limiter:   limiter,
		logger:    logger,
	}
}

func (f *ChromeFetcher) FetchHTML(ctx context.Context, pageURL string, selectors []string) (string, error) {
	selectors = normalizeSelectors(selectors)
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if f.userAgent != "" {
		opts = append(opts, chromedp.UserAgent(f.userAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	reqCtx, reqCancel := context.WithTimeout(browserCtx, f.timeout)
	defer reqCancel()

	script, err := selectorScript(selectors)
	if err != nil {
		return "", err
	}

	var parts []string
	err = chromedp.Run(reqCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(f.wait),
		chromedp.EvaluateAsDevTools(script, &parts),
	)
	if err != nil {
		return "", &FetchError{URL: pageURL, Err: err}
	}

	out := strings.TrimSpace(strings.Join(parts, "\n"))
	if out == "" {
		f.logger.Printf("[Fetch] headless no content url=%s selectors=%v", pageURL, selectors)
		return "", fmt.Errorf("fetch %s: %w", pageURL, ErrNoContent)
	}
	return out, nil
}

func selectorScript(selectors []string) (string, error) {
	b, err := json.Marshal(selectors)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`(() => {
	const out = [];
	for (const sel of %s) {
		document.querySelectorAll(sel).forEach(el => {
			const html = el.innerHTML.trim();
			if (html) out.push(html);
		});
	}
	return out;
})()`, b), nil
}
