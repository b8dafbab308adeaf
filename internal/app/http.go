package app

import (
	"net"
	"net/http"
	"time"
)

// newHTTPClient returns an HTTP client with a pooled transport shared by all
// source fetches of a run. The overall timeout is left to fetch.Client, which
// applies it per attempt.
func newHTTPClient(maxConcurrent int) *http.Client {
	perHost := 16
	if maxConcurrent > perHost {
		perHost = maxConcurrent
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConnsPerHost:   perHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	// Cookies are set per request; no jar so nothing leaks between sources.
	return &http.Client{Transport: transport}
}
