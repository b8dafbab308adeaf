package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperifyio/parsedom/internal/cache"
)

// getPage issues a plain GET and returns body and content type.
func getPage(ctx context.Context, c *Client, u string) ([]byte, string, error) {
	resp, err := c.Do(ctx, Request{URL: u})
	if err != nil {
		return nil, "", err
	}
	return resp.Body, resp.ContentType, nil
}

func TestGet_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(200)
		_, _ = w.Write([]byte("<html><body>ok</body></html>"))
	}))
	defer srv.Close()

	c := &Client{UserAgent: "parsedom-test", MaxAttempts: 2, PerRequestTimeout: 2 * time.Second}
	body, ct, err := getPage(context.Background(), c, srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ct == "" || string(body) == "" {
		t.Fatalf("expected content type and body")
	}
}

func TestGet_RetryOn5xx(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(502)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(200)
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	c := &Client{UserAgent: "parsedom-test", MaxAttempts: 2, PerRequestTimeout: 2 * time.Second}
	_, _, err := getPage(context.Background(), c, srv.URL)
	if err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
}

func TestGet_Conditional304_UsesCache(t *testing.T) {
	// First return 200 with ETag. Subsequent requests that include If-None-Match should get 304.
	var calls int
	etag := `"abc123"`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "text/html")
		if calls == 1 {
			w.Header().Set("ETag", etag)
			_, _ = w.Write([]byte("first"))
			return
		}
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		// Should not happen if cache sends conditional headers
		fmt.Fprintln(w, "unexpected")
	}))
	defer srv.Close()

	tmp := t.TempDir()
	c := &Client{UserAgent: "parsedom-test", MaxAttempts: 1, PerRequestTimeout: 2 * time.Second, Cache: &cache.HTTPCache{Dir: tmp}}

	// First fetch populates cache
	b1, _, err := getPage(context.Background(), c, srv.URL)
	if err != nil {
		t.Fatalf("first get error: %v", err)
	}
	if string(b1) != "first" {
		t.Fatalf("unexpected body1: %q", string(b1))
	}

	// Second fetch should send conditional headers and get 304, returning cached body
	b2, _, err := getPage(context.Background(), c, srv.URL)
	if err != nil {
		t.Fatalf("second get error: %v", err)
	}
	if string(b2) != "first" {
		t.Fatalf("expected cached body, got %q", string(b2))
	}
}

func TestGet_RejectsNonHTTP(t *testing.T) {
	c := &Client{UserAgent: "parsedom-test", MaxAttempts: 1, PerRequestTimeout: 1 * time.Second}
	_, _, err := getPage(context.Background(), c, "file:///etc/hosts")
	if err == nil {
		t.Fatalf("expected error for non-http scheme")
	}
}

func TestGet_ContentTypeGating(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		w.WriteHeader(200)
		_, _ = w.Write([]byte("%PDF-1.7"))
	}))
	defer srv.Close()

	c := &Client{UserAgent: "parsedom-test", MaxAttempts: 1, PerRequestTimeout: 2 * time.Second}
	_, _, err := getPage(context.Background(), c, srv.URL)
	if err == nil {
		t.Fatalf("expected error for unsupported content type")
	}
}

func TestGet_RedirectLimit(t *testing.T) {
	// First path redirects once to /next; with RedirectMaxHops=1 this should fail immediately
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.Redirect(w, r, "/next", http.StatusFound)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := &Client{UserAgent: "parsedom-test", MaxAttempts: 1, PerRequestTimeout: 2 * time.Second, RedirectMaxHops: 1}
	_, _, err := getPage(context.Background(), c, srv.URL)
	if err == nil {
		t.Fatalf("expected redirect limit error")
	}
}

func TestGet_MaxConcurrent(t *testing.T) {
	var inFlight int32
	var maxObserved int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		curr := atomic.AddInt32(&inFlight, 1)
		for {
			prev := atomic.LoadInt32(&maxObserved)
			if curr > prev {
				if atomic.CompareAndSwapInt32(&maxObserved, prev, curr) {
					break
				}
				continue
			}
			break
		}
		time.Sleep(150 * time.Millisecond)
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("ok"))
		atomic.AddInt32(&inFlight, -1)
	}))
	defer srv.Close()

	c := &Client{UserAgent: "parsedom-test", MaxAttempts: 1, PerRequestTimeout: 2 * time.Second, MaxConcurrent: 2}

	var wg sync.WaitGroup
	start := make(chan struct{})
	num := 6
	wg.Add(num)
	for i := 0; i < num; i++ {
		go func() {
			defer wg.Done()
			<-start
			_, _, _ = getPage(context.Background(), c, srv.URL)
		}()
	}
	close(start)
	wg.Wait()

	if maxObserved > 2 {
		t.Fatalf("expected max concurrency <= 2, got %d", maxObserved)
	}
}

func TestDo_PostWithHeadersAndCookies(t *testing.T) {
	var got struct {
		method, ua, ct, extra, token, cookie, form, query string
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.method = r.Method
		got.ua = r.Header.Get("User-Agent")
		got.ct = r.Header.Get("Content-Type")
		got.extra = r.Header.Get("X-Extra")
		got.token = r.Header.Get("X-Token")
		if c, err := r.Cookie("session"); err == nil {
			got.cookie = c.Value
		}
		b, _ := io.ReadAll(r.Body)
		got.form = string(b)
		got.query = r.URL.Query().Get("page")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<p>posted</p>"))
	}))
	defer srv.Close()

	c := &Client{MaxAttempts: 1, PerRequestTimeout: 2 * time.Second}
	resp, err := c.Do(context.Background(), Request{
		URL:               srv.URL,
		Params:            url.Values{"page": {"2"}},
		Data:              url.Values{"q": {"term"}},
		Headers:           map[string]string{"X-Token": "base", "User-Agent": "overridden"},
		AdditionalHeaders: map[string]string{"X-Extra": "yes", "X-Token": "extra"},
		Cookies:           map[string]string{"session": "abc"},
		UserAgent:         "custom/1.0",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp.Body) != "<p>posted</p>" {
		t.Fatalf("unexpected body %q", resp.Body)
	}
	if got.method != http.MethodPost {
		t.Fatalf("expected POST, got %s", got.method)
	}
	if got.ua != "custom/1.0" {
		t.Fatalf("expected request user agent, got %q", got.ua)
	}
	if !strings.HasPrefix(got.ct, "application/x-www-form-urlencoded") || got.form != "q=term" {
		t.Fatalf("unexpected form body %q (%s)", got.form, got.ct)
	}
	if got.extra != "yes" || got.token != "extra" {
		t.Fatalf("additional headers not applied last: extra=%q token=%q", got.extra, got.token)
	}
	if got.cookie != "abc" {
		t.Fatalf("expected cookie, got %q", got.cookie)
	}
	if got.query != "2" {
		t.Fatalf("expected query param page=2, got %q", got.query)
	}
}

func TestDo_RandomUserAgentWhenUnset(t *testing.T) {
	var ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := &Client{MaxAttempts: 1, PerRequestTimeout: 2 * time.Second}
	if _, _, err := getPage(context.Background(), c, srv.URL); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	known := false
	for _, candidate := range userAgents {
		if ua == candidate {
			known = true
		}
	}
	if !known {
		t.Fatalf("expected one of the built-in user agents, got %q", ua)
	}
}

func TestDo_NoRedirects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			http.Redirect(w, r, "/stream.m3u8", http.StatusFound)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("followed"))
	}))
	defer srv.Close()

	c := &Client{MaxAttempts: 1, PerRequestTimeout: 2 * time.Second}
	resp, err := c.Do(context.Background(), Request{URL: srv.URL, NoRedirects: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("expected 302, got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/stream.m3u8" {
		t.Fatalf("unexpected location %q", loc)
	}

	resp, err = c.Do(context.Background(), Request{URL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(resp.Body) != "followed" {
		t.Fatalf("expected redirect to be followed, got %q", resp.Body)
	}
}

func TestDo_StatusErrorNotRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := &Client{MaxAttempts: 3, PerRequestTimeout: 2 * time.Second}
	_, err := c.Do(context.Background(), Request{URL: srv.URL})
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusNotFound {
		t.Fatalf("expected 404 StatusError, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestDo_CacheOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("live"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	warm := &Client{MaxAttempts: 1, Cache: &cache.HTTPCache{Dir: dir}}
	if _, _, err := getPage(context.Background(), warm, srv.URL); err != nil {
		t.Fatalf("warm cache: %v", err)
	}

	offline := &Client{MaxAttempts: 1, Cache: &cache.HTTPCache{Dir: dir}, CacheOnly: true}
	resp, err := offline.Do(context.Background(), Request{URL: srv.URL})
	if err != nil {
		t.Fatalf("cache-only hit failed: %v", err)
	}
	if !resp.FromCache || string(resp.Body) != "live" {
		t.Fatalf("expected cached body, got %q (fromCache=%v)", resp.Body, resp.FromCache)
	}
	_, err = offline.Do(context.Background(), Request{URL: srv.URL + "/missing"})
	if !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected ErrCacheMiss, got %v", err)
	}
}

func TestDo_AllowedContentTypes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"a":1}`))
	}))
	defer srv.Close()

	c := &Client{MaxAttempts: 1, AllowedContentTypes: []string{"application/json"}}
	if _, _, err := getPage(context.Background(), c, srv.URL); err != nil {
		t.Fatalf("expected json to be accepted: %v", err)
	}
	c = &Client{MaxAttempts: 1, AllowedContentTypes: []string{"*"}}
	if _, _, err := getPage(context.Background(), c, srv.URL); err != nil {
		t.Fatalf("expected wildcard to accept json: %v", err)
	}
}
