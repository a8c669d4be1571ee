// Package browser defines the narrow browser-automation capability the
// access layer consumes, and a chromedp-backed implementation of it.
package browser

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// Response is the shape-agnostic result of either a page navigation or an
// in-page scripted fetch, so downstream status and challenge logic does not
// care which transport produced it.
type Response struct {
	Status  int
	Headers http.Header
	Body    string
}

// Client is the capability set the access layer depends on. Implementations
// must share one cookie jar across all operations.
type Client interface {
	// Navigate loads a page and returns the rendered document.
	Navigate(ctx context.Context, url string) (Response, error)

	// FetchJSON performs an in-page GET that carries the live session
	// cookies, for same-origin API endpoints.
	FetchJSON(ctx context.Context, url string) (Response, error)

	// PostForm performs an in-page form POST carrying the live session
	// cookies.
	PostForm(ctx context.Context, url string, form url.Values) (Response, error)

	// Cookies returns the current cookie jar as name->value pairs.
	Cookies(ctx context.Context) (map[string]string, error)

	// SetCookies seeds the jar with a previously captured session.
	SetCookies(ctx context.Context, cookies map[string]string) error

	// ClearCookies empties the jar, used after an identity rotation.
	ClearCookies(ctx context.Context) error

	// SolveChallenge attempts to get past the anti-bot interstitial.
	// Returns true when the subsequent page loads clean.
	SolveChallenge(ctx context.Context) (bool, error)
}

// challengeMarkers are the body substrings that identify the anti-bot
// interstitial.
var challengeMarkers = []string{
	"just a moment",
	"checking your browser",
	"ray id",
	"cf-challenge",
}

// IsChallengePage reports whether a response is the anti-bot interstitial
// rather than real content, by header or body signature.
func IsChallengePage(resp Response) bool {
	if resp.Headers.Get("cf-mitigated") == "challenge" {
		return true
	}
	body := strings.ToLower(resp.Body)
	for _, marker := range challengeMarkers {
		if strings.Contains(body, marker) {
			return true
		}
	}
	return false
}
