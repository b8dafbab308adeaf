package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hyperifyio/parsedom/internal/cache"
)

// DefaultContentTypes are the Content-Type prefixes accepted when
// Client.AllowedContentTypes is empty.
var DefaultContentTypes = []string{"text/html", "application/xhtml+xml", "application/xml", "text/xml"}

// Client wraps http.Client and provides timeouts and limited retry on transient errors.
type Client struct {
	HTTPClient *http.Client
	// UserAgent is sent when a Request does not carry its own. Empty picks a
	// random desktop browser string per request.
	UserAgent string
	// MaxAttempts includes the initial attempt. Minimum 1.
	MaxAttempts int
	// PerRequestTimeout bounds each request.
	PerRequestTimeout time.Duration
	// Optional on-disk cache for GET bodies and headers.
	Cache *cache.HTTPCache
	// If true, bypass cache entirely and fetch fresh (no conditional headers),
	// but still save the latest response to cache.
	BypassCache bool
	// CacheOnly serves GET requests from the cache and fails on a miss.
	CacheOnly bool

	// RedirectMaxHops caps redirect following to avoid loops. Zero means default (5).
	RedirectMaxHops int
	// MaxConcurrent limits concurrent in-flight requests per client instance.
	// Zero means unlimited.
	MaxConcurrent int
	// AllowedContentTypes lists accepted Content-Type prefixes; "*" accepts
	// anything.
	AllowedContentTypes []string

	// internal limiter initialized on first use when MaxConcurrent > 0
	limiter     chan struct{}
	limiterOnce sync.Once
}

// Request describes one page request. A non-empty Data turns it into a
// form-encoded POST.
type Request struct {
	URL    string
	Params url.Values
	Data   url.Values
	// Headers are applied first, then User-Agent, then AdditionalHeaders.
	Headers           map[string]string
	AdditionalHeaders map[string]string
	Cookies           map[string]string
	UserAgent         string
	// NoRedirects returns the first response as is instead of following
	// Location headers.
	NoRedirects bool
}

// Response is the outcome of a successful request.
type Response struct {
	StatusCode  int
	ContentType string
	Header      http.Header
	Body        []byte
	// FromCache is set when the body came from the on-disk cache.
	FromCache bool
}

// ErrCacheMiss is returned in CacheOnly mode when no cached body exists.
var ErrCacheMiss = errors.New("fetch: not in cache")

// StatusError reports a response status the client does not accept.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	if e.Code >= 500 {
		return fmt.Sprintf("server error: %d", e.Code)
	}
	return fmt.Sprintf("unexpected status: %d", e.Code)
}

func (r Request) method() string {
	if len(r.Data) > 0 {
		return http.MethodPost
	}
	return http.MethodGet
}

// cacheable reports whether the response to r may be stored under its URL.
func (r Request) cacheable() bool {
	return r.method() == http.MethodGet && len(r.Cookies) == 0 && !r.NoRedirects
}

func (c *Client) getHTTPClient(noRedirects bool) *http.Client {
	if c.HTTPClient != nil {
		// Clone to attach our redirect policy without mutating caller's client
		base := *c.HTTPClient
		base.CheckRedirect = c.checkRedirectFunc(noRedirects)
		return &base
	}
	return &http.Client{Timeout: c.PerRequestTimeout, CheckRedirect: c.checkRedirectFunc(noRedirects)}
}

// Do performs r with bounded retry for transient errors. Cacheable GETs are
// revalidated against the on-disk cache when one is configured.
func (c *Client) Do(ctx context.Context, r Request) (Response, error) {
	target, err := buildURL(r.URL, r.Params)
	if err != nil {
		return Response{}, err
	}
	useCache := c.Cache != nil && r.cacheable()

	var etag, lastMod string
	if useCache && !c.BypassCache {
		if meta, err := c.Cache.LoadMeta(ctx, target); err == nil && meta != nil {
			if c.CacheOnly {
				if body, err := c.Cache.LoadBody(ctx, target); err == nil {
					return Response{StatusCode: http.StatusOK, ContentType: meta.ContentType, Body: body, FromCache: true}, nil
				}
			}
			etag = meta.ETag
			lastMod = meta.LastModified
		}
	}
	if c.CacheOnly {
		return Response{}, fmt.Errorf("%w: %s", ErrCacheMiss, target)
	}

	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		resp, err := c.tryOnce(ctx, r, target, etag, lastMod)
		if err == nil {
			if useCache && resp.StatusCode == http.StatusOK {
				_ = c.Cache.Save(ctx, target, resp.ContentType, resp.Header.Get("ETag"), resp.Header.Get("Last-Modified"), resp.Body)
			}
			// If 304 and cache available, return cached body
			if resp.StatusCode == http.StatusNotModified && useCache {
				if cached, err := c.Cache.LoadBody(ctx, target); err == nil {
					resp.Body = cached
					resp.FromCache = true
					if meta, err := c.Cache.LoadMeta(ctx, target); err == nil && resp.ContentType == "" {
						resp.ContentType = meta.ContentType
					}
				}
			}
			return resp, nil
		}
		if !isTransient(err) || i == attempts-1 {
			return Response{}, err
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case <-time.After(time.Duration(i+1) * 200 * time.Millisecond):
		}
	}
	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return Response{}, lastErr
}

func (c *Client) tryOnce(ctx context.Context, r Request, target, etag, lastMod string) (Response, error) {
	// Concurrency gate per client instance
	c.acquire()
	defer c.release()

	var body io.Reader
	if len(r.Data) > 0 {
		body = strings.NewReader(r.Data.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, r.method(), target, body)
	if err != nil {
		return Response{}, fmt.Errorf("new request: %w", err)
	}
	// Reject non-HTTP(S) schemes early
	if req.URL == nil || !isHTTPScheme(req.URL) {
		return Response{}, fmt.Errorf("unsupported URL scheme: %q", target)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("User-Agent", c.userAgent(r))
	for k, v := range r.AdditionalHeaders {
		req.Header.Set(k, v)
	}
	for _, name := range sortedKeys(r.Cookies) {
		req.AddCookie(&http.Cookie{Name: name, Value: r.Cookies[name]})
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if lastMod != "" {
		req.Header.Set("If-Modified-Since", lastMod)
	}

	httpClient := c.getHTTPClient(r.NoRedirects)
	if c.PerRequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(req.Context(), c.PerRequestTimeout)
		defer cancel()
		req = req.WithContext(ctx)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	out := Response{StatusCode: resp.StatusCode, ContentType: resp.Header.Get("Content-Type"), Header: resp.Header}
	switch {
	case resp.StatusCode >= 500:
		return Response{}, &StatusError{Code: resp.StatusCode}
	case resp.StatusCode == http.StatusNotModified:
		// 304: no body expected
		return out, nil
	case resp.StatusCode >= 300 && resp.StatusCode < 400 && r.NoRedirects:
		// unfollowed redirect; the caller reads Location from Header
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return Response{}, &StatusError{Code: resp.StatusCode}
	default:
		if !c.isAllowedContentType(out.ContentType) {
			return Response{}, fmt.Errorf("unsupported content type: %s", out.ContentType)
		}
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read body: %w", err)
	}
	out.Body = b
	return out, nil
}

func (c *Client) userAgent(r Request) string {
	if r.UserAgent != "" {
		return r.UserAgent
	}
	if c.UserAgent != "" {
		return c.UserAgent
	}
	return RandomUserAgent()
}

func buildURL(raw string, params url.Values) (string, error) {
	if len(params) == 0 {
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func isTransient(err error) bool {
	// Treat HTTP 5xx and context deadline as transient.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var se *StatusError
	return errors.As(err, &se) && se.Code >= 500
}

func (c *Client) checkRedirectFunc(noRedirects bool) func(req *http.Request, via []*http.Request) error {
	max := c.RedirectMaxHops
	if max <= 0 {
		max = 5
	}
	return func(req *http.Request, via []*http.Request) error {
		if noRedirects {
			return http.ErrUseLastResponse
		}
		if len(via) >= max {
			return errors.New("too many redirects")
		}
		// Only allow http/https during redirects
		if req.URL == nil || !isHTTPScheme(req.URL) {
			return errors.New("redirect to unsupported scheme")
		}
		return nil
	}
}

func isHTTPScheme(u *url.URL) bool {
	if u == nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

func (c *Client) isAllowedContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	allowed := c.AllowedContentTypes
	if len(allowed) == 0 {
		allowed = DefaultContentTypes
	}
	for _, prefix := range allowed {
		if prefix == "*" {
			return true
		}
		if strings.HasPrefix(ct, strings.ToLower(prefix)) {
			return true
		}
	}
	return false
}

func (c *Client) acquire() {
	if c.MaxConcurrent <= 0 {
		return
	}
	c.limiterOnce.Do(func() {
		c.limiter = make(chan struct{}, c.MaxConcurrent)
	})
	c.limiter <- struct{}{}
}

func (c *Client) release() {
	if c.MaxConcurrent <= 0 || c.limiter == nil {
		return
	}
	select {
	case <-c.limiter:
	default:
		// should not happen, but avoid blocking
	}
}
