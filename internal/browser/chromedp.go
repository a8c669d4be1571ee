package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Config controls the behavior of the Chrome-backed client.
type Config struct {
	Headless        bool
	UserAgent       string
	BaseURL         string
	NavTimeout      time.Duration
	ChallengeWait   time.Duration
	NetworkIdleWait time.Duration
	BlockResources  bool
	Proxy           ProxyCredentials
}

// blockedHosts are third-party hosts that only serve assets the parsers
// never read.
var blockedHosts = []string{
	"e.snmc.io",
	"fonts.gstatic.com",
	"www.googletagmanager.com",
	"www.google-analytics.com",
}

// blockedExtensions are resource suffixes skipped when resource blocking is
// enabled.
var blockedExtensions = []string{
	".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg",
	".woff", ".woff2", ".ttf", ".otf", ".mp3", ".mp4",
}

// Chrome implements Client on a single persistent Chrome process so every
// tab shares one cookie jar.
type Chrome struct {
	cfg         Config
	logger      *zap.Logger
	allocCtx    context.Context
	allocCancel context.CancelFunc

	// apiMu serializes in-page fetches, which all run on the one tab that
	// stays parked on the site origin.
	apiMu  sync.Mutex
	apiCtx context.Context

	// stateMu guards the state RestartWithProxy replaces while plain page
	// fetches stay in flight on other goroutines.
	stateMu      sync.RWMutex
	browserCtx   context.Context
	browserClose context.CancelFunc
	sessionToken string
}

// NewChrome builds the allocator but does not launch the process; call
// Start before the first operation.
func NewChrome(cfg Config, logger *zap.Logger) (*Chrome, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("browser: base URL is required")
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 45 * time.Second
	}
	if cfg.ChallengeWait <= 0 {
		cfg.ChallengeWait = 30 * time.Second
	}
	if cfg.NetworkIdleWait <= 0 {
		cfg.NetworkIdleWait = 500 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Chrome{
		cfg:          cfg,
		logger:       logger.Named("browser"),
		sessionToken: newSessionToken(cfg.Proxy.SessionIDLength),
	}
	c.allocCtx, c.allocCancel = chromedp.NewExecAllocator(context.Background(), c.allocOptions()...)
	return c, nil
}

func (c *Chrome) allocOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", c.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if c.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(c.cfg.UserAgent))
	}
	if c.cfg.Proxy.Server != "" {
		opts = append(opts, chromedp.ProxyServer(c.cfg.Proxy.Server))
	}
	return opts
}

// Start launches Chrome and parks one tab on the site origin for in-page
// API calls.
func (c *Chrome) Start(ctx context.Context) error {
	return c.start()
}

func (c *Chrome) start() error {
	browserCtx, cancel := chromedp.NewContext(c.allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		return fmt.Errorf("launch chrome: %w", err)
	}
	c.stateMu.Lock()
	c.browserCtx = browserCtx
	c.browserClose = cancel
	c.stateMu.Unlock()

	apiCtx, _ := chromedp.NewContext(browserCtx)
	c.installInterceptor(apiCtx)
	if err := chromedp.Run(apiCtx,
		c.tabSetup(),
		chromedp.Navigate(c.cfg.BaseURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		c.logger.Warn("initial navigation failed", zap.Error(err))
	}
	c.apiCtx = apiCtx
	return nil
}

// RestartWithProxy relaunches Chrome routed through a different egress
// endpoint, used by port-based identity rotation. The cookie jar does not
// survive the relaunch, which is intended.
func (c *Chrome) RestartWithProxy(ctx context.Context, server string) error {
	c.apiMu.Lock()
	defer c.apiMu.Unlock()

	c.stateMu.Lock()
	if c.browserClose != nil {
		c.browserClose()
		c.browserClose = nil
	}
	c.cfg.Proxy.Server = server
	c.sessionToken = newSessionToken(c.cfg.Proxy.SessionIDLength)
	c.stateMu.Unlock()
	c.allocCancel()
	c.apiCtx = nil

	c.allocCtx, c.allocCancel = chromedp.NewExecAllocator(context.Background(), c.allocOptions()...)
	c.logger.Info("relaunching browser", zap.String("proxy", server))
	return c.start()
}

// Close tears the browser process down.
func (c *Chrome) Close() {
	c.stateMu.Lock()
	if c.browserClose != nil {
		c.browserClose()
		c.browserClose = nil
	}
	c.stateMu.Unlock()
	c.allocCancel()
}

// browserContext returns the live browser-wide context; RestartWithProxy
// swaps it, so callers must take a fresh read per operation.
func (c *Chrome) browserContext() context.Context {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.browserCtx
}

func (c *Chrome) currentSessionToken() string {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.sessionToken
}

func (c *Chrome) rotateSessionToken() {
	c.stateMu.Lock()
	c.sessionToken = newSessionToken(c.cfg.Proxy.SessionIDLength)
	c.stateMu.Unlock()
}

// Navigate loads a page in a fresh tab and returns the rendered document
// with the document response status and headers.
func (c *Chrome) Navigate(ctx context.Context, pageURL string) (Response, error) {
	tabCtx, cancel := chromedp.NewContext(c.browserContext())
	defer cancel()
	tabCtx, tcancel := context.WithTimeout(tabCtx, c.cfg.NavTimeout)
	defer tcancel()

	meta := newResponseMeta(pageURL)
	chromedp.ListenTarget(tabCtx, meta.captureEvent)
	c.installInterceptor(tabCtx)

	var html string
	err := chromedp.Run(tabCtx,
		c.tabSetup(),
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(c.cfg.NetworkIdleWait),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return Response{}, fmt.Errorf("navigate %s: %w", pageURL, err)
	}

	status, headers := meta.snapshot()
	return Response{Status: status, Headers: headers, Body: html}, nil
}

// FetchJSON performs a same-origin GET from inside the parked tab so the
// request carries the live session cookies.
func (c *Chrome) FetchJSON(ctx context.Context, apiURL string) (Response, error) {
	script := fmt.Sprintf(`fetch(%q, {
		method: 'GET',
		headers: {'Accept': 'application/json'},
		credentials: 'include',
	}).then(r => r.text().then(body => ({status: r.status, body: body})))`, apiURL)
	return c.evalFetch(ctx, script)
}

// PostForm performs a same-origin form POST from inside the parked tab.
func (c *Chrome) PostForm(ctx context.Context, postURL string, form url.Values) (Response, error) {
	script := fmt.Sprintf(`fetch(%q, {
		method: 'POST',
		headers: {
			'Content-Type': 'application/x-www-form-urlencoded; charset=UTF-8',
			'X-Requested-With': 'XMLHttpRequest',
		},
		body: %q,
		credentials: 'include',
	}).then(r => r.text().then(body => ({status: r.status, body: body})))`, postURL, form.Encode())
	return c.evalFetch(ctx, script)
}

type evalResult struct {
	Status int    `json:"status"`
	Body   string `json:"body"`
}

func (c *Chrome) evalFetch(ctx context.Context, script string) (Response, error) {
	c.apiMu.Lock()
	defer c.apiMu.Unlock()
	if c.apiCtx == nil {
		return Response{}, fmt.Errorf("browser not started")
	}

	evalCtx, cancel := context.WithTimeout(c.apiCtx, c.cfg.NavTimeout)
	defer cancel()

	var res evalResult
	err := chromedp.Run(evalCtx, chromedp.Evaluate(script, &res,
		func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}))
	if err != nil {
		return Response{}, fmt.Errorf("in-page fetch: %w", err)
	}
	return Response{Status: res.Status, Headers: http.Header{}, Body: res.Body}, nil
}

// Cookies reads the shared jar from the browser-wide storage domain.
func (c *Chrome) Cookies(ctx context.Context) (map[string]string, error) {
	out := map[string]string{}
	err := chromedp.Run(c.browserContext(), chromedp.ActionFunc(func(ctx context.Context) error {
		cookies, err := storage.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		for _, ck := range cookies {
			out[ck.Name] = ck.Value
		}
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}
	return out, nil
}

// SetCookies seeds the jar with a previously saved session.
func (c *Chrome) SetCookies(ctx context.Context, cookies map[string]string) error {
	domain := c.cookieDomain()
	params := make([]*network.CookieParam, 0, len(cookies))
	for name, value := range cookies {
		params = append(params, &network.CookieParam{
			Name:   name,
			Value:  value,
			Domain: domain,
			Path:   "/",
		})
	}
	err := chromedp.Run(c.browserContext(), chromedp.ActionFunc(func(ctx context.Context) error {
		return storage.SetCookies(params).Do(ctx)
	}))
	if err != nil {
		return fmt.Errorf("set cookies: %w", err)
	}
	return nil
}

// ClearCookies empties the jar after an identity rotation and mints a new
// sticky-session token so the next connection gets a fresh exit.
func (c *Chrome) ClearCookies(ctx context.Context) error {
	c.rotateSessionToken()
	err := chromedp.Run(c.browserContext(), chromedp.ActionFunc(func(ctx context.Context) error {
		return storage.ClearCookies().Do(ctx)
	}))
	if err != nil {
		return fmt.Errorf("clear cookies: %w", err)
	}
	return nil
}

// SolveChallenge loads the site root in a fresh tab and polls until the
// interstitial clears or the wait budget runs out.
func (c *Chrome) SolveChallenge(ctx context.Context) (bool, error) {
	tabCtx, cancel := chromedp.NewContext(c.browserContext())
	defer cancel()
	tabCtx, tcancel := context.WithTimeout(tabCtx, c.cfg.ChallengeWait+c.cfg.NavTimeout)
	defer tcancel()

	c.installInterceptor(tabCtx)
	if err := chromedp.Run(tabCtx,
		c.tabSetup(),
		chromedp.Navigate(c.cfg.BaseURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		return false, fmt.Errorf("challenge navigation: %w", err)
	}

	deadline := time.Now().Add(c.cfg.ChallengeWait)
	for time.Now().Before(deadline) {
		var html string
		if err := chromedp.Run(tabCtx,
			chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		); err != nil {
			return false, fmt.Errorf("challenge poll: %w", err)
		}
		if !IsChallengePage(Response{Headers: http.Header{}, Body: html}) {
			c.logger.Info("challenge cleared")
			return true, nil
		}
		// Some variants need a click on the verification widget; errors
		// here just mean the widget is not present yet.
		clickCtx, clickCancel := context.WithTimeout(tabCtx, 2*time.Second)
		_ = chromedp.Run(clickCtx, chromedp.Click(`input[type="checkbox"]`, chromedp.ByQuery))
		clickCancel()

		select {
		case <-tabCtx.Done():
			return false, tabCtx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	c.logger.Warn("challenge did not clear within wait budget",
		zap.Duration("wait", c.cfg.ChallengeWait))
	return false, nil
}

// tabSetup enables the needed CDP domains on a new tab before navigation.
func (c *Chrome) tabSetup() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if c.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(c.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if c.needsInterceptor() {
			enable := fetch.Enable()
			if c.cfg.Proxy.Username != "" {
				enable = enable.WithHandleAuthRequests(true)
			}
			if err := enable.Do(ctx); err != nil {
				return fmt.Errorf("enable fetch domain: %w", err)
			}
		}
		return nil
	})
}

func (c *Chrome) needsInterceptor() bool {
	return c.cfg.BlockResources || c.cfg.Proxy.Username != ""
}

// installInterceptor wires the fetch-domain listener that answers proxy
// auth challenges and fails requests for blocked asset hosts.
func (c *Chrome) installInterceptor(tabCtx context.Context) {
	if !c.needsInterceptor() {
		return
	}
	chromedp.ListenTarget(tabCtx, func(ev any) {
		switch e := ev.(type) {
		case *fetch.EventRequestPaused:
			go func() {
				target := chromedp.FromContext(tabCtx)
				ectx := cdp.WithExecutor(tabCtx, target.Target)
				if c.cfg.BlockResources && shouldBlock(e.Request.URL) {
					_ = fetch.FailRequest(e.RequestID, network.ErrorReasonBlockedByClient).Do(ectx)
					return
				}
				_ = fetch.ContinueRequest(e.RequestID).Do(ectx)
			}()
		case *fetch.EventAuthRequired:
			go func() {
				target := chromedp.FromContext(tabCtx)
				ectx := cdp.WithExecutor(tabCtx, target.Target)
				_ = fetch.ContinueWithAuth(e.RequestID, &fetch.AuthChallengeResponse{
					Response: fetch.AuthChallengeResponseResponseProvideCredentials,
					Username: c.cfg.Proxy.sessionUsername(c.currentSessionToken()),
					Password: c.cfg.Proxy.Password,
				}).Do(ectx)
			}()
		}
	})
}

func (c *Chrome) cookieDomain() string {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return "." + strings.TrimPrefix(u.Hostname(), "www.")
}

func shouldBlock(requestURL string) bool {
	u, err := url.Parse(requestURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, blocked := range blockedHosts {
		if host == blocked {
			return true
		}
	}
	path := strings.ToLower(u.Path)
	for _, ext := range blockedExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

type responseMeta struct {
	mu      sync.RWMutex
	url     string
	status  int
	headers http.Header
}

func newResponseMeta(requestURL string) *responseMeta {
	return &responseMeta{url: requestURL, headers: http.Header{}}
}

func (m *responseMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	headers := http.Header{}
	for key, value := range resp.Response.Headers {
		switch v := value.(type) {
		case string:
			headers.Add(key, v)
		case []any:
			for _, entry := range v {
				headers.Add(key, fmt.Sprint(entry))
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	m.mu.Lock()
	m.status = int(resp.Response.Status)
	m.headers = headers
	m.url = resp.Response.URL
	m.mu.Unlock()
}

func (m *responseMeta) snapshot() (int, http.Header) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status := m.status
	if status == 0 {
		// The document event can be missed on cached loads; treat a
		// rendered body with no metadata as a success.
		status = http.StatusOK
	}
	headers := http.Header{}
	for key, values := range m.headers {
		for _, value := range values {
			headers.Add(key, value)
		}
	}
	return status, headers
}
