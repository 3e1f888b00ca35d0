package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/markdave123-py/botwise/internal/core"
)

func html(title, body string) string {
	return fmt.Sprintf("<html><head><title>%s</title></head><body>%s</body></html>", title, body)
}

func newSite(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, html("Home", `
			<nav><a href="/about">About</a></nav>
			<p>Welcome to the shop.</p>
			<a href="/pricing#plans">Pricing</a>
			<a href="/login">Log in</a>
			<a href="/search?q=x">Search</a>
			<a href="/logo.png">Logo</a>
			<a href="mailto:hi@example.com">Mail</a>
			<a href="https://elsewhere.example.org/">Other site</a>
			<a href="#top">Top</a>
			<a href="/about/">Again</a>`))
	})
	mux.HandleFunc("/about", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, html("About", `<p>We sell tea.</p><a href="/deep">Deeper</a>`))
	})
	mux.HandleFunc("/pricing", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, html("Pricing", `<p>Plans start at $5.</p>`))
	})
	mux.HandleFunc("/deep", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, html("Deep", `<p>Too deep.</p>`))
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("excluded path fetched: %s", r.URL)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &hits
}

func testConfig() Config {
	return Config{MaxDepth: 1, PageTimeout: 2 * time.Second, Retries: 1, Timeout: 5 * time.Second, Backoff: time.Millisecond}
}

func TestCrawlDepthOneSameOrigin(t *testing.T) {
	srv, _ := newSite(t)
	c := New(testConfig(), srv.Client(), zap.NewNop())

	pages, err := c.Crawl(context.Background(), srv.URL+"/", -1)
	require.NoError(t, err)

	var urls []string
	for _, p := range pages {
		urls = append(urls, p.URL)
	}
	assert.Equal(t, []string{srv.URL, srv.URL + "/about", srv.URL + "/pricing"}, urls)
	assert.Equal(t, "Home", pages[0].Title)
	assert.Equal(t, 0, pages[0].Depth)
	assert.Equal(t, 1, pages[1].Depth)
	require.Len(t, pages[0].Units, 1)
	assert.Contains(t, pages[0].Units[0].Text, "Welcome to the shop.")
	assert.NotContains(t, pages[0].Units[0].Text, "About", "nav text is removed")
	assert.Equal(t, srv.URL, pages[0].Units[0].SourceLabel)
}

func TestCrawlDepthZeroFetchesOnlySeed(t *testing.T) {
	srv, hits := newSite(t)
	c := New(testConfig(), srv.Client(), zap.NewNop())

	pages, err := c.Crawl(context.Background(), srv.URL, 0)
	require.NoError(t, err)
	assert.Len(t, pages, 1)
	assert.Equal(t, int32(1), hits.Load())
}

func TestCrawlMaxPages(t *testing.T) {
	srv, _ := newSite(t)
	cfg := testConfig()
	cfg.MaxPages = 2
	c := New(cfg, srv.Client(), zap.NewNop())

	pages, err := c.Crawl(context.Background(), srv.URL, 1)
	require.NoError(t, err)
	assert.Len(t, pages, 2)
}

func TestCrawlRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, html("Ok", "<p>Recovered.</p>"))
	}))
	defer srv.Close()

	c := New(testConfig(), srv.Client(), zap.NewNop())
	pages, err := c.Crawl(context.Background(), srv.URL, 0)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCrawlTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(3 * time.Second):
		}
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.Timeout = 100 * time.Millisecond
	c := New(cfg, srv.Client(), zap.NewNop())

	_, err := c.Crawl(context.Background(), srv.URL, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrCrawlTimeout))
	assert.False(t, errors.Is(err, core.ErrCrawlConnectivity))
	assert.Contains(t, err.Error(), "CrawlTimeoutError")
}

func TestCrawlSeedPageTimeoutsBeforeCrawlDeadline(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(3 * time.Second):
		}
	}))
	defer srv.Close()

	// 3 attempts of 100ms finish well inside the 2s crawl deadline.
	cfg := Config{MaxDepth: 1, PageTimeout: 100 * time.Millisecond, Retries: 2, Timeout: 2 * time.Second, Backoff: time.Millisecond}
	c := New(cfg, srv.Client(), zap.NewNop())

	_, err := c.Crawl(context.Background(), srv.URL, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrCrawlTimeout), err.Error())
	assert.False(t, errors.Is(err, core.ErrCrawlConnectivity))
	assert.Equal(t, int32(3), calls.Load())
}

func TestCrawlConnectivity(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	c := New(testConfig(), nil, zap.NewNop())
	_, err := c.Crawl(context.Background(), addr, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrCrawlConnectivity))
	assert.False(t, errors.Is(err, core.ErrCrawlTimeout))
}

func TestCrawlEmptySite(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, html("Blank", "<script>var x = 1;</script>"))
	}))
	defer srv.Close()

	c := New(testConfig(), srv.Client(), zap.NewNop())
	_, err := c.Crawl(context.Background(), srv.URL, 1)
	assert.True(t, errors.Is(err, core.ErrEmptyContent))
}

func TestCrawlRejectsBadURL(t *testing.T) {
	c := New(testConfig(), nil, zap.NewNop())
	_, err := c.Crawl(context.Background(), "ftp://example.com", 1)
	assert.True(t, errors.Is(err, core.ErrInvalidInput))
}

func TestResolve(t *testing.T) {
	base, err := url.Parse("https://example.com/docs/")
	require.NoError(t, err)

	tests := []struct {
		href string
		want string
		ok   bool
	}{
		{"intro", "https://example.com/docs/intro", true},
		{"/faq/#billing", "https://example.com/faq", true},
		{"HTTPS://EXAMPLE.COM/Team", "https://example.com/Team", true},
		{"http://example.com/insecure", "", false},
		{"https://cdn.example.com/a", "", false},
		{"/account/settings", "", false},
		{"/checkout", "", false},
		{"/style.css", "", false},
		{"/manual.PDF", "", false},
		{"/list?page=2", "", false},
		{"tel:+123", "", false},
		{"javascript:void(0)", "", false},
	}
	for _, tt := range tests {
		got, ok := resolve(base, tt.href)
		assert.Equal(t, tt.ok, ok, tt.href)
		assert.Equal(t, tt.want, got, tt.href)
	}
}
