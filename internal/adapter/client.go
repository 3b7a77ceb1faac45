package adapter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// userAgent identifies the crawler to the boards it reads.
const userAgent = "Rolewatch/1.0 (+https://rolewatch.app)"

// maxFetchBytes caps how much of a response body is read. Job postings are
// tens of kilobytes; anything near this limit is not a posting.
const maxFetchBytes = 10 << 20

// client is the shared HTTP plumbing behind every adapter. One client per
// adapter instance, so the rate limiter spaces out requests per board
// regardless of how many workers are crawling.
type client struct {
	http    *http.Client
	limiter *rate.Limiter
	accept  string
}

func newClient(accept string, timeout, minInterval time.Duration) *client {
	if minInterval <= 0 {
		minInterval = time.Second
	}
	return &client{
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Every(minInterval), 1),
		accept:  accept,
	}
}

// Get fetches one URL, classifying failures into the adapter error taxonomy.
func (c *client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &UnavailableError{Reason: "request canceled", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FormatError{Reason: "invalid url", Err: err}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", c.accept)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &UnavailableError{Reason: "request failed", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, &UnavailableError{Reason: "reading response body", Err: err}
	}

	if err := classify(resp.StatusCode, resp.Header, body); err != nil {
		return nil, err
	}
	return body, nil
}

// classify maps a response onto the adapter error taxonomy. Blocked statuses
// are refined with the challenge marker that produced them when one is
// recognizable, and a 200 whose body is a challenge interstitial is treated
// as blocked too.
func classify(status int, header http.Header, body []byte) error {
	switch {
	case status == http.StatusTooManyRequests:
		return &RateLimitedError{RetryAfter: retryAfter(header)}
	case status == http.StatusForbidden:
		return &UnavailableError{Reason: blockReason(header, body, "access denied (HTTP 403)")}
	case status == http.StatusServiceUnavailable:
		return &UnavailableError{Reason: blockReason(header, body, "service unavailable (HTTP 503)")}
	case status >= 400:
		return &UnavailableError{Reason: fmt.Sprintf("unexpected status %d", status)}
	}

	if marker := challengeMarker(body); marker != "" {
		return &UnavailableError{Reason: marker}
	}
	return nil
}

func blockReason(h http.Header, body []byte, fallback string) string {
	if h.Get("cf-ray") != "" && h.Get("cf-mitigated") == "challenge" {
		return "cloudflare challenge"
	}
	if marker := challengeMarker(body); marker != "" {
		return marker
	}
	return fallback
}

// challengeMarkers are body fragments that identify bot-protection
// interstitials. Matched case-insensitively.
var challengeMarkers = []struct {
	pattern string
	reason  string
}{
	{"challenge-platform", "cloudflare challenge"},
	{"cf-browser-verification", "cloudflare challenge"},
	{"checking your browser", "cloudflare challenge"},
	{"just a moment", "cloudflare challenge"},
	{"cf-turnstile", "captcha challenge"},
	{"g-recaptcha", "captcha challenge"},
	{"h-captcha", "captcha challenge"},
}

func challengeMarker(body []byte) string {
	content := strings.ToLower(string(body))
	for _, m := range challengeMarkers {
		if strings.Contains(content, m.pattern) {
			return m.reason
		}
	}
	return ""
}

// retryAfter parses a Retry-After header, in either delta-seconds or
// HTTP-date form. Zero means the board gave no guidance.
func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
