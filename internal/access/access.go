// Package access is the sole gateway to the target site. It stacks rate
// limiting, response classification, anti-bot challenge recovery, and
// identity rotation in front of the browser collaborator so callers only
// ever see clean content or a final error.
package access

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"rymeta/internal/access/ratelimit"
	"rymeta/internal/browser"
	"rymeta/internal/metrics"
	"rymeta/internal/session"
)

// Kind selects the transport a request uses.
type Kind string

const (
	// KindHTML renders a full page navigation.
	KindHTML Kind = "html"
	// KindJSON issues an in-page GET against a same-origin API endpoint.
	KindJSON Kind = "json"
	// KindForm issues an in-page form POST.
	KindForm Kind = "form"
)

// Request describes one outbound call.
type Request struct {
	URL  string
	Kind Kind
	Form url.Values
}

var (
	// ErrPoolExhausted means every identity in the rotation pool has been
	// blocked; the run cannot continue.
	ErrPoolExhausted = errors.New("identity pool exhausted")

	// ErrPermanent marks a response that retrying will not change, such
	// as a 404 for a release that does not exist.
	ErrPermanent = errors.New("permanent response")

	// ErrBlocked is returned when every attempt came back as a block
	// signal despite recovery.
	ErrBlocked = errors.New("request blocked")
)

// ProxyRestarter is implemented by browser clients that must relaunch to
// route through a different egress port.
type ProxyRestarter interface {
	RestartWithProxy(ctx context.Context, server string) error
}

// Options tunes the fetcher.
type Options struct {
	MinInterval    time.Duration
	JitterInterval bool
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration

	// RotationMethod is "port" or "username"; port rotation relaunches
	// the browser against the next pool port.
	RotationMethod string
	ProxyHost      string

	// AutoRotate rotates identities on block signals. When disabled a
	// block signal only backs off and retries on the same identity.
	AutoRotate bool
}

// Fetcher coordinates all outbound traffic.
type Fetcher struct {
	browser browser.Client
	session *session.Manager
	limiter *ratelimit.Limiter
	policy  retryPolicy
	opts    Options
	logger  *zap.Logger

	challengeGuard fixGuard
	rotationGuard  fixGuard
}

// NewFetcher wires the access layer around a browser and session manager.
func NewFetcher(b browser.Client, sess *session.Manager, opts Options, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	policy := defaultRetryPolicy()
	if opts.MaxAttempts > 0 {
		policy.maxAttempts = opts.MaxAttempts
	}
	if opts.BackoffInitial > 0 {
		policy.baseDelay = opts.BackoffInitial
	}
	if opts.BackoffMax > 0 {
		policy.maxDelay = opts.BackoffMax
	}
	return &Fetcher{
		browser: b,
		session: sess,
		limiter: ratelimit.New(opts.MinInterval, opts.JitterInterval),
		policy:  policy,
		opts:    opts,
		logger:  logger.Named("access"),
	}
}

// EnsureSession prepares the browser before the first real request: a
// fresh-enough saved session is replayed into the cookie jar, otherwise a
// challenge solve establishes a new one.
func (f *Fetcher) EnsureSession(ctx context.Context) error {
	if f.session.IsValid() {
		err := f.browser.SetCookies(ctx, f.session.Cookies())
		if err == nil {
			f.logger.Info("restored saved session",
				zap.Int("cookies", len(f.session.Cookies())))
			return nil
		}
		f.logger.Warn("could not replay saved cookies", zap.Error(err))
	}
	return f.handleChallenge(ctx, time.Now())
}

// Fetch performs one logical request with the full recovery stack. The
// returned response is always a non-challenge 2xx.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (browser.Response, error) {
	var lastErr error
	for attempt := 0; attempt < f.policy.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, f.policy.backoff(attempt-1)); err != nil {
				return browser.Response{}, err
			}
		}

		delay, err := f.limiter.Wait(ctx)
		if err != nil {
			return browser.Response{}, err
		}
		metrics.ObserveRateLimitDelay(delay)

		observed := time.Now()
		resp, err := f.dispatch(ctx, req)
		f.limiter.Done()
		if err != nil {
			lastErr = err
			f.logger.Warn("transport error",
				zap.String("url", req.URL),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			continue
		}

		if browser.IsChallengePage(resp) {
			metrics.RecordFetch(string(req.Kind), "challenge")
			f.logger.Info("challenge page served",
				zap.String("url", req.URL), zap.Int("status", resp.Status))
			if err := f.handleChallenge(ctx, observed); err != nil {
				return browser.Response{}, err
			}
			lastErr = ErrBlocked
			continue
		}

		switch classify(resp.Status) {
		case classOK:
			f.session.IncrementRequestCount()
			metrics.RecordFetch(string(req.Kind), "ok")
			return resp, nil
		case classPermanent:
			metrics.RecordFetch(string(req.Kind), "permanent")
			return resp, fmt.Errorf("%w: status %d for %s", ErrPermanent, resp.Status, req.URL)
		default:
			metrics.RecordFetch(string(req.Kind), "blocked")
			f.logger.Warn("block signal",
				zap.String("url", req.URL),
				zap.Int("status", resp.Status),
				zap.String("session", f.session.String()))
			if err := f.handleBlock(ctx, observed); err != nil {
				return browser.Response{}, err
			}
			lastErr = ErrBlocked
		}
	}
	if lastErr == nil {
		lastErr = ErrBlocked
	}
	return browser.Response{}, fmt.Errorf("fetch %s: %d attempts failed: %w",
		req.URL, f.policy.maxAttempts, lastErr)
}

func (f *Fetcher) dispatch(ctx context.Context, req Request) (browser.Response, error) {
	switch req.Kind {
	case KindJSON:
		return f.browser.FetchJSON(ctx, req.URL)
	case KindForm:
		return f.browser.PostForm(ctx, req.URL, req.Form)
	default:
		return f.browser.Navigate(ctx, req.URL)
	}
}

// handleChallenge serializes interstitial solves; goroutines that observed
// the challenge before another's fix landed skip their own attempt. A
// failed solve escalates to identity rotation.
func (f *Fetcher) handleChallenge(ctx context.Context, observed time.Time) error {
	solved, err := f.challengeGuard.do(observed, func() (bool, error) {
		return f.solveAndCapture(ctx)
	})
	if err != nil {
		return fmt.Errorf("solve challenge: %w", err)
	}
	if !solved {
		f.logger.Warn("challenge solve failed, rotating identity")
		return f.handleBlock(ctx, observed)
	}
	return nil
}

// handleBlock serializes identity rotation the same way. The blocked port
// is retired for the life of the state file; the pool never wraps.
func (f *Fetcher) handleBlock(ctx context.Context, observed time.Time) error {
	if !f.opts.AutoRotate {
		f.logger.Warn("block signal with auto-rotation disabled, retrying on same identity")
		return nil
	}
	_, err := f.rotationGuard.do(observed, func() (bool, error) {
		f.session.MarkBlocked()
		if !f.session.Rotate() {
			return false, ErrPoolExhausted
		}
		metrics.RecordRotation()
		f.logger.Info("rotated identity", zap.String("session", f.session.String()))

		if err := f.browser.ClearCookies(ctx); err != nil {
			f.logger.Warn("could not clear cookies after rotation", zap.Error(err))
		}
		if f.opts.RotationMethod == "port" && f.opts.ProxyHost != "" {
			if r, ok := f.browser.(ProxyRestarter); ok {
				server := fmt.Sprintf("http://%s:%d", f.opts.ProxyHost, f.session.CurrentPort())
				if err := r.RestartWithProxy(ctx, server); err != nil {
					return false, fmt.Errorf("relaunch on port %d: %w", f.session.CurrentPort(), err)
				}
			}
		}

		// Warm the new identity; a failed solve here is not fatal, the
		// next fetch will report whatever the site serves.
		if _, err := f.solveAndCapture(ctx); err != nil {
			f.logger.Warn("warm-up solve after rotation failed", zap.Error(err))
		}
		return true, nil
	})
	return err
}

func (f *Fetcher) solveAndCapture(ctx context.Context) (bool, error) {
	ok, err := f.browser.SolveChallenge(ctx)
	metrics.RecordChallengeSolve(err == nil && ok)
	if err != nil || !ok {
		return false, err
	}
	cookies, err := f.browser.Cookies(ctx)
	if err != nil {
		f.logger.Warn("could not capture session cookies", zap.Error(err))
		return true, nil
	}
	f.session.SetCookies(cookies)
	return true, nil
}

const (
	classOK = iota
	classPermanent
	classBlock
)

// classify maps a status code to its handling class: success, a permanent
// failure retrying cannot change, or a block signal worth recovery. 403 is
// the anti-bot gate, not a real client error, so it lands with the 5xx.
func classify(status int) int {
	switch {
	case status >= 200 && status < 300:
		return classOK
	case status == 403:
		return classBlock
	case status >= 400 && status < 500:
		return classPermanent
	default:
		return classBlock
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
