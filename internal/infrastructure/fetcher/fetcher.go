package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/url"
	"strings"

	"job-pipeline/internal/company"
	"job-pipeline/internal/config"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/time/rate"
)

var ErrNoContent = errors.New("no content matched selectors")

// Fetcher returns the HTML of every element on the page matching one of the
// selectors, concatenated in selector order.
type Fetcher interface {
	FetchHTML(ctx context.Context, pageURL string, selectors []string) (string, error)
}

// FetchError carries the upstream status so callers can decide on retries.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s: status=%d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Temporary reports throttling, server errors and network failures.
func (e *FetchError) Temporary() bool {
	if e.StatusCode == 429 || e.StatusCode >= 500 {
		return true
	}
	if e.StatusCode > 0 {
		return false
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) || errors.Is(e.Err, context.DeadlineExceeded)
}

type Registry struct {
	fetchers map[company.ParserType]Fetcher
}

func NewRegistry(cfg config.FetchConfig, logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.Default()
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	limiter := rate.NewLimiter(limit, 1)

	static := NewCollyFetcher(cfg, limiter, logger)
	return &Registry{fetchers: map[company.ParserType]Fetcher{
		company.ParserDefault:    static,
		company.ParserGreenhouse: &GreenhouseFetcher{inner: static},
		company.ParserAngular:    NewChromeFetcher(cfg, limiter, logger),
	}}
}

func NewStaticRegistry(fetchers map[company.ParserType]Fetcher) *Registry {
	return &Registry{fetchers: fetchers}
}

func (r *Registry) For(p company.ParserType) (Fetcher, error) {
	if r == nil {
		return nil, fmt.Errorf("nil fetcher registry")
	}
	if p == "" {
		p = company.ParserDefault
	}
	f, ok := r.fetchers[p]
	if !ok {
		return nil, fmt.Errorf("no fetcher for parser type %q", p)
	}
	return f, nil
}

// ToMarkdown condenses fetched HTML for prompting; links survive as
// [text](href). Falls back to the raw HTML when conversion fails.
func ToMarkdown(html string, maxChars int) string {
	text := html
	if md, err := htmltomarkdown.ConvertString(html); err == nil && strings.TrimSpace(md) != "" {
		text = md
	}
	text = strings.TrimSpace(text)
	if maxChars > 0 && len(text) > maxChars {
		text = truncateUTF8(text, maxChars)
	}
	return text
}

func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

func hostFromURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(u.Host); err == nil {
		return h
	}
	return u.Host
}

func normalizeSelectors(selectors []string) []string {
	out := make([]string, 0, len(selectors))
	for _, s := range selectors {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		out = append(out, "body")
	}
	return out
}
