package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/markdave123-py/botwise/internal/core"
	"github.com/markdave123-py/botwise/internal/core/extractor"
)

const (
	fetchConcurrency = 4
	maxBodyBytes     = 5 << 20
)

type Config struct {
	MaxDepth    int
	MaxPages    int
	PageTimeout time.Duration
	Retries     int
	Timeout     time.Duration
	UserAgent   string
	// Backoff is multiplied by the attempt number between retries.
	Backoff time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxDepth < 0 {
		c.MaxDepth = 1
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 50
	}
	if c.PageTimeout <= 0 {
		c.PageTimeout = 15 * time.Second
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Minute
	}
	if c.UserAgent == "" {
		c.UserAgent = "BotwiseCrawler/1.0"
	}
	if c.Backoff <= 0 {
		c.Backoff = 500 * time.Millisecond
	}
	return c
}

// Page is one fetched page with its extracted text.
type Page struct {
	URL   string
	Title string
	Depth int
	Units []core.Unit
}

type Crawler struct {
	cfg    Config
	client *http.Client
	log    *zap.Logger
}

func New(cfg Config, client *http.Client, log *zap.Logger) *Crawler {
	if client == nil {
		client = &http.Client{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Crawler{cfg: cfg.withDefaults(), client: client, log: log}
}

type fetched struct {
	page *extractor.HTMLPage
	err  error
}

// Crawl walks same-origin links breadth first from rawURL down to maxDepth
// (negative means the configured default). Pages without text are skipped.
func (c *Crawler) Crawl(ctx context.Context, rawURL string, maxDepth int) ([]Page, error) {
	seed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (seed.Scheme != "http" && seed.Scheme != "https") || seed.Host == "" {
		return nil, core.NewError(core.KindInvalidInput, fmt.Sprintf("invalid crawl url %q", rawURL), err)
	}
	if maxDepth < 0 {
		maxDepth = c.cfg.MaxDepth
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := normalize(seed)
	visited := map[string]bool{start: true}
	frontier := []string{start}

	var pages []Page
	for depth := 0; depth <= maxDepth && len(frontier) > 0; depth++ {
		results := c.fetchLevel(ctx, frontier)

		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, core.NewError(core.KindCrawlTimeout,
					fmt.Sprintf("crawl of %s exceeded %s", start, c.cfg.Timeout), err)
			}
			return nil, err
		}
		if depth == 0 && results[0].err != nil {
			return nil, seedError(start, results[0].err)
		}

		var next []string
		for i, res := range results {
			if res.err != nil {
				c.log.Warn("crawl page failed", zap.String("url", frontier[i]), zap.Error(res.err))
				continue
			}
			if res.page == nil {
				continue
			}
			if strings.TrimSpace(res.page.Text) != "" {
				pages = append(pages, Page{
					URL:   frontier[i],
					Title: res.page.Title,
					Depth: depth,
					Units: []core.Unit{{Text: res.page.Text, PageIndex: len(pages) + 1, SourceLabel: frontier[i]}},
				})
			}
			if depth == maxDepth {
				continue
			}
			base, _ := url.Parse(frontier[i])
			for _, href := range res.page.Links {
				link, ok := resolve(base, href)
				if !ok || visited[link] || len(visited) >= c.cfg.MaxPages {
					continue
				}
				visited[link] = true
				next = append(next, link)
			}
		}
		c.log.Debug("crawl level done", zap.String("seed", start), zap.Int("depth", depth),
			zap.Int("fetched", len(frontier)), zap.Int("queued", len(next)))
		frontier = next
	}

	if len(pages) == 0 {
		return nil, core.NewError(core.KindEmptyContent, fmt.Sprintf("no readable text found at %s", start), nil)
	}
	return pages, nil
}

// seedError tells a seed that never answered in time apart from one that
// could not be reached at all.
func seedError(start string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return core.NewError(core.KindCrawlTimeout, fmt.Sprintf("%s did not respond in time", start), err)
	}
	return core.NewError(core.KindCrawlConnectivity, fmt.Sprintf("could not reach %s", start), err)
}

// fetchLevel fetches urls with bounded concurrency; results keep input order.
func (c *Crawler) fetchLevel(ctx context.Context, urls []string) []fetched {
	results := make([]fetched, len(urls))

	g := new(errgroup.Group)
	g.SetLimit(fetchConcurrency)
	for i, u := range urls {
		g.Go(func() error {
			page, err := c.fetch(ctx, u)
			results[i] = fetched{page: page, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

type retryable struct{ err error }

func (r *retryable) Error() string { return r.err.Error() }
func (r *retryable) Unwrap() error { return r.err }

// fetch returns (nil, nil) for responses that are not HTML.
func (c *Crawler) fetch(ctx context.Context, u string) (*extractor.HTMLPage, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * c.cfg.Backoff):
			}
		}
		page, err := c.fetchOnce(ctx, u)
		if err == nil {
			return page, nil
		}
		lastErr = err
		var r *retryable
		if !errors.As(err, &r) || ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (c *Crawler) fetchOnce(ctx context.Context, u string) (*extractor.HTMLPage, error) {
	pctx, cancel := context.WithTimeout(ctx, c.cfg.PageTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(pctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &retryable{err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, &retryable{err: fmt.Errorf("GET %s: status %d", u, resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("GET %s: status %d", u, resp.StatusCode)
	}
	if !isHTML(resp.Header.Get("Content-Type")) {
		return nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &retryable{err: fmt.Errorf("read %s: %w", u, err)}
	}
	return extractor.ParseHTML(u, body)
}

func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "text/html" || mt == "application/xhtml+xml"
}

var excludedSegments = map[string]bool{
	"login": true, "logout": true, "signin": true, "signup": true, "register": true,
	"account": true, "cart": true, "checkout": true, "basket": true,
}

var excludedExt = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".svg": true, ".webp": true, ".ico": true, ".bmp": true,
	".css": true, ".js": true, ".json": true, ".xml": true,
	".woff": true, ".woff2": true, ".ttf": true, ".eot": true, ".otf": true,
	".mp3": true, ".mp4": true, ".wav": true, ".avi": true, ".mov": true, ".webm": true,
	".zip": true, ".tar": true, ".gz": true, ".rar": true, ".7z": true,
	".pdf": true,
}

// resolve turns href into a normalized same-origin URL, or reports false when
// the link should not be followed.
func resolve(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	lower := strings.ToLower(href)
	if href == "" || strings.HasPrefix(href, "#") ||
		strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") || strings.HasPrefix(lower, "javascript:") {
		return "", false
	}
	u, err := base.Parse(href)
	if err != nil {
		return "", false
	}
	if u.Scheme != base.Scheme || !strings.EqualFold(u.Host, base.Host) {
		return "", false
	}
	if excluded(u) {
		return "", false
	}
	return normalize(u), true
}

func excluded(u *url.URL) bool {
	if u.RawQuery != "" || u.ForceQuery {
		return true
	}
	p := strings.ToLower(u.Path)
	if excludedExt[path.Ext(p)] {
		return true
	}
	for _, seg := range strings.Split(p, "/") {
		if excludedSegments[strings.TrimSuffix(seg, path.Ext(seg))] {
			return true
		}
	}
	return false
}

func normalize(u *url.URL) string {
	n := *u
	n.Fragment = ""
	n.RawFragment = ""
	n.Host = strings.ToLower(n.Host)
	n.Path = strings.TrimRight(n.Path, "/")
	n.RawPath = ""
	return n.String()
}
