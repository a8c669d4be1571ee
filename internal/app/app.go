// Package app initializes and holds the long-lived services, acting as a
// dependency injection container for the CLI commands.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"rymeta/internal/access"
	"rymeta/internal/browser"
	"rymeta/internal/cache"
	"rymeta/internal/config"
	"rymeta/internal/genres"
	"rymeta/internal/logging"
	"rymeta/internal/metrics"
	"rymeta/internal/scraper"
	"rymeta/internal/session"
)

// App wires configuration, logging, the content cache, the session
// manager, the browser, and the access layer into one scraper instance.
// Built once at startup, torn down by Close.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	cache   *cache.Store
	session *session.Manager
	genres  *genres.Manager
	browser *browser.Chrome
	scraper *scraper.Scraper

	metricsSrv *http.Server
}

// NewApp builds every service from configuration, failing fast when a
// critical one cannot come up. The browser process is launched here so the
// first lookup does not pay the startup cost.
func NewApp(ctx context.Context, cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	metrics.Init()

	a := &App{cfg: cfg, logger: logger}

	if cfg.Cache.Enabled {
		store, err := cache.Open(cfg.Cache.Dir, logger)
		if err != nil {
			return nil, fmt.Errorf("open cache: %w", err)
		}
		if cfg.Cache.ExpiryDays > 0 {
			store.SetExpiry(time.Duration(cfg.Cache.ExpiryDays) * 24 * time.Hour)
		}
		a.cache = store
	}

	a.session = session.New(cfg.Proxy.StateFile,
		cfg.Proxy.PortRangeStart, cfg.Proxy.PortRangeEnd, logger)
	a.genres = genres.NewManager(cfg.Cache.Dir, cfg.Genres.CacheExpiryDays, logger)

	chrome, err := browser.NewChrome(browser.Config{
		Headless:        cfg.Browser.Headless,
		UserAgent:       cfg.Browser.UserAgent,
		BaseURL:         cfg.Browser.BaseURL,
		NavTimeout:      cfg.Browser.NavTimeout(),
		ChallengeWait:   cfg.Browser.ChallengeWait(),
		NetworkIdleWait: time.Duration(cfg.Browser.NetworkIdleWaitMS) * time.Millisecond,
		BlockResources:  cfg.Browser.BlockResources,
		Proxy:           a.proxyCredentials(),
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init browser: %w", err)
	}
	if err := chrome.Start(ctx); err != nil {
		return nil, fmt.Errorf("start browser: %w", err)
	}
	a.browser = chrome

	fetcher := access.NewFetcher(chrome, a.session, access.Options{
		MinInterval:    cfg.Fetch.MinInterval(),
		JitterInterval: cfg.Fetch.HumanizeInterval,
		MaxAttempts:    cfg.Fetch.MaxAttempts,
		BackoffInitial: time.Duration(cfg.Fetch.BackoffInitialMs) * time.Millisecond,
		BackoffMax:     time.Duration(cfg.Fetch.BackoffMaxMs) * time.Millisecond,
		RotationMethod: cfg.Proxy.RotationMethod,
		ProxyHost:      cfg.Proxy.Host,
		AutoRotate:     cfg.Proxy.AutoRotate,
	}, logger)

	a.scraper = scraper.New(fetcher, a.cache, a.genres, scraper.Options{
		BaseURL:      cfg.Browser.BaseURL,
		Threshold:    cfg.Matching.Threshold,
		ExpandGenres: cfg.Genres.ExpandParents,
	}, logger)

	if cfg.Metrics.Enabled {
		a.startMetricsServer(cfg.Metrics.Addr)
	}

	logger.Info("application initialized",
		zap.Bool("cache", cfg.Cache.Enabled),
		zap.Bool("proxy", cfg.Proxy.Enabled),
		zap.String("base_url", cfg.Browser.BaseURL))
	return a, nil
}

// proxyCredentials resolves the egress endpoint the browser should launch
// with. Port rotation starts on whatever port the persisted session state
// says is current.
func (a *App) proxyCredentials() browser.ProxyCredentials {
	if !a.cfg.Proxy.Enabled {
		return browser.ProxyCredentials{}
	}
	creds := browser.ProxyCredentials{
		Server:          a.cfg.Proxy.ServerURL(),
		Username:        a.cfg.Proxy.Username,
		Password:        a.cfg.Proxy.Password,
		SessionType:     a.cfg.Proxy.SessionType,
		SessionIDLength: a.cfg.Proxy.SessionIDLength,
	}
	if a.cfg.Proxy.RotationMethod == "port" {
		scheme := "http"
		if a.cfg.Proxy.UseTLS {
			scheme = "https"
		}
		creds.Server = fmt.Sprintf("%s://%s:%d", scheme, a.cfg.Proxy.Host, a.session.CurrentPort())
	}
	return creds
}

func (a *App) startMetricsServer(addr string) {
	a.metricsSrv = &http.Server{Addr: addr, Handler: metrics.Router()}
	go func() {
		if err := a.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	a.logger.Info("metrics server listening", zap.String("addr", addr))
}

// Config returns the loaded configuration.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Cache returns the content cache, nil when disabled.
func (a *App) Cache() *cache.Store { return a.cache }

// Session returns the session/rotation manager.
func (a *App) Session() *session.Manager { return a.session }

// Genres returns the genre hierarchy manager.
func (a *App) Genres() *genres.Manager { return a.genres }

// Scraper returns the lookup orchestrator.
func (a *App) Scraper() *scraper.Scraper { return a.scraper }

// Close shuts the services down in reverse initialization order.
func (a *App) Close() {
	if a.metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = a.metricsSrv.Shutdown(ctx)
		cancel()
	}
	if a.browser != nil {
		a.browser.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}
