package cache

import (
	"bytes"
	"io"
	"log"
	"net/http"
	"strings"
)

// Transport applies the per-route caching policy as an http.RoundTripper.
// Precedence:
//  1. non-GET requests are never intercepted
//  2. cross-origin requests pass through, except audio-storage URLs,
//     which are cache-first in the audio tier
//  3. same-origin API, OAuth callback, and admin routes always hit the
//     network (they carry auth semantics that must not be served stale)
//  4. same-origin navigations are network-first with an offline fallback
//  5. all other same-origin GETs are stale-while-revalidate
type Transport struct {
	inner       http.RoundTripper
	store       *Store
	appHost     string
	audioHost   string
	offlinePath string
}

// NewTransport builds the policy transport. appHost is the application's
// own origin host; audioHost identifies the audio storage origin.
func NewTransport(inner http.RoundTripper, store *Store, appHost, audioHost string) *Transport {
	if inner == nil {
		inner = http.DefaultTransport
	}
	return &Transport{
		inner:       inner,
		store:       store,
		appHost:     appHost,
		audioHost:   audioHost,
		offlinePath: "/offline",
	}
}

// RoundTrip implements http.RoundTripper
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet {
		return t.inner.RoundTrip(req)
	}

	if req.URL.Host != t.appHost {
		if t.isAudioURL(req) {
			return t.cacheFirst(req)
		}
		return t.inner.RoundTrip(req)
	}

	path := req.URL.Path
	if strings.HasPrefix(path, "/api/") || strings.HasPrefix(path, "/callback") || strings.HasPrefix(path, "/admin") {
		return t.inner.RoundTrip(req)
	}

	if isNavigation(req) {
		return t.networkFirst(req)
	}

	return t.staleWhileRevalidate(req)
}

func (t *Transport) isAudioURL(req *http.Request) bool {
	if t.audioHost == "" {
		return false
	}
	return strings.Contains(req.URL.Host, t.audioHost) && strings.Contains(req.URL.Path, "audio")
}

// isNavigation detects full-page loads
func isNavigation(req *http.Request) bool {
	if req.Header.Get("Sec-Fetch-Mode") == "navigate" {
		return true
	}
	return strings.Contains(req.Header.Get("Accept"), "text/html")
}

// cacheFirst serves audio from the audio tier when present; fetches and
// stores it otherwise.
func (t *Transport) cacheFirst(req *http.Request) (*http.Response, error) {
	url := req.URL.String()
	if cached, ok := t.store.Get(TierAudio, url); ok {
		return cached.toResponse(req), nil
	}

	resp, err := t.inner.RoundTrip(req)
	if err != nil {
		return syntheticResponse(req, http.StatusServiceUnavailable, "text/plain", "Audio not available offline"), nil
	}
	if resp.StatusCode == http.StatusOK {
		resp = t.storeResponse(TierAudio, url, resp)
	}
	return resp, nil
}

// networkFirst tries the network, caching successes; on failure it falls
// back to the cached page, then the offline page, then a synthetic 503.
func (t *Transport) networkFirst(req *http.Request) (*http.Response, error) {
	url := req.URL.String()
	resp, err := t.inner.RoundTrip(req)
	if err == nil {
		if resp.StatusCode == http.StatusOK {
			resp = t.storeResponse(TierPages, url, resp)
		}
		return resp, nil
	}

	if cached, ok := t.store.Get(TierPages, url); ok {
		return cached.toResponse(req), nil
	}

	offlineURL := *req.URL
	offlineURL.Path = t.offlinePath
	offlineURL.RawQuery = ""
	if cached, ok := t.store.Get(TierPages, offlineURL.String()); ok {
		return cached.toResponse(req), nil
	}

	return syntheticResponse(req, http.StatusServiceUnavailable, "text/html", "Offline"), nil
}

// staleWhileRevalidate returns the cached asset immediately while
// refreshing it in the background; with nothing cached it waits for the
// network.
func (t *Transport) staleWhileRevalidate(req *http.Request) (*http.Response, error) {
	url := req.URL.String()
	if cached, ok := t.store.Get(TierPages, url); ok {
		go t.revalidate(req.Clone(req.Context()))
		return cached.toResponse(req), nil
	}

	resp, err := t.inner.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusOK {
		resp = t.storeResponse(TierPages, url, resp)
	}
	return resp, nil
}

func (t *Transport) revalidate(req *http.Request) {
	resp, err := t.inner.RoundTrip(req)
	if err != nil {
		return
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return
	}
	cached := &CachedResponse{Status: resp.StatusCode, Header: resp.Header.Clone(), Body: body}
	if err := t.store.Put(TierPages, req.URL.String(), cached); err != nil {
		log.Printf("Cache revalidation store failed for %s: %v", req.URL, err)
	}
}

// storeResponse caches the response body and returns the response with a
// fresh, readable body
func (t *Transport) storeResponse(tier, url string, resp *http.Response) *http.Response {
	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		resp.Body = io.NopCloser(bytes.NewReader(nil))
		return resp
	}

	cached := &CachedResponse{Status: resp.StatusCode, Header: resp.Header.Clone(), Body: body}
	if err := t.store.Put(tier, url, cached); err != nil {
		log.Printf("Cache store failed for %s: %v", url, err)
	}

	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	return resp
}

// Precache fetches the given same-origin paths and seeds the pages tier.
// Used at install time for the app shell routes; failures are logged and
// skipped.
func (t *Transport) Precache(baseURL string, paths []string) {
	client := &http.Client{Transport: t.inner}
	for _, path := range paths {
		url := strings.TrimSuffix(baseURL, "/") + path
		resp, err := client.Get(url)
		if err != nil {
			log.Printf("Precache fetch failed for %s: %v", url, err)
			continue
		}
		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil || resp.StatusCode != http.StatusOK {
			log.Printf("Precache skipped %s (status %d)", url, resp.StatusCode)
			continue
		}
		cached := &CachedResponse{Status: resp.StatusCode, Header: resp.Header.Clone(), Body: body}
		if err := t.store.Put(TierPages, url, cached); err != nil {
			log.Printf("Precache store failed for %s: %v", url, err)
		}
	}
}

func (cr *CachedResponse) toResponse(req *http.Request) *http.Response {
	header := cr.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		Status:        http.StatusText(cr.Status),
		StatusCode:    cr.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(cr.Body)),
		ContentLength: int64(len(cr.Body)),
		Request:       req,
	}
}

func syntheticResponse(req *http.Request, status int, contentType, body string) *http.Response {
	header := http.Header{}
	header.Set("Content-Type", contentType)
	return &http.Response{
		Status:        http.StatusText(status),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}
