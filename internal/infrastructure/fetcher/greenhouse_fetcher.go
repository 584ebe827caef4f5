package fetcher

import (
	"context"
	"errors"
	"strings"

	"github.com/gocolly/colly/v2"
)

const greenhouseFrameSelector = `iframe#grnhse_iframe, iframe[src*="greenhouse.io"]`

// GreenhouseFetcher follows the embedded Greenhouse board iframe and applies
// the selectors inside it, falling back to the host page.
type GreenhouseFetcher struct {
	inner *CollyFetcher
}

func (f *GreenhouseFetcher) FetchHTML(ctx context.Context, pageURL string, selectors []string) (string, error) {
	selectors = normalizeSelectors(selectors)

	var frameSrc string
	hooks := map[string]colly.HTMLCallback{
		greenhouseFrameSelector: func(e *colly.HTMLElement) {
			if frameSrc == "" {
				if src := strings.TrimSpace(e.Attr("src")); src != "" {
					frameSrc = e.Request.AbsoluteURL(src)
				}
			}
		},
	}

	host, err := f.inner.visit(ctx, pageURL, selectors, hooks)
	if err != nil && !errors.Is(err, ErrNoContent) {
		return "", err
	}
	if frameSrc == "" {
		return host, err
	}

	framed, ferr := f.inner.visit(ctx, frameSrc, selectors, nil)
	if ferr == nil {
		return framed, nil
	}
	f.inner.logger.Printf("[Fetch] greenhouse iframe failed url=%s err=%v, using host page", frameSrc, ferr)
	if err != nil {
		return "", ferr
	}
	return host, nil
}
