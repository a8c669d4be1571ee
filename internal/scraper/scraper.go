// Package scraper is the top-level use case: locate an artist or release on
// the target site and return its genre and descriptor tags, using the cache
// first, a direct URL guess second, and the cascading discography search
// last.
package scraper

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"rymeta/internal/access"
	"rymeta/internal/browser"
	"rymeta/internal/cache"
	"rymeta/internal/genres"
	"rymeta/internal/metrics"
)

// Fetcher is the slice of the access layer the scraper consumes; tests
// stub it with canned responses.
type Fetcher interface {
	Fetch(ctx context.Context, req access.Request) (browser.Response, error)
	EnsureSession(ctx context.Context) error
}

// Metadata is what a caller receives for a located record.
type Metadata struct {
	Artist      string
	Album       string
	Genres      []string
	Descriptors []string
	URL         string
	Kind        ReleaseKind
}

// Options tunes the orchestrator.
type Options struct {
	BaseURL      string
	Threshold    float64
	ExpandGenres bool
}

// Scraper coordinates cache, access layer, and genre expansion. A single
// lock serializes entire multi-step lookups so challenge-sensitive request
// sequences never interleave.
type Scraper struct {
	mu      sync.Mutex
	fetcher Fetcher
	cache   *cache.Store
	genres  *genres.Manager
	opts    Options
	logger  *zap.Logger
}

// New wires a scraper; cache and genre manager may be nil to disable those
// layers.
func New(fetcher Fetcher, store *cache.Store, hierarchy *genres.Manager, opts Options, logger *zap.Logger) *Scraper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Threshold <= 0 {
		opts.Threshold = 0.8
	}
	return &Scraper{
		fetcher: fetcher,
		cache:   store,
		genres:  hierarchy,
		opts:    opts,
		logger:  logger.Named("scraper"),
	}
}

// EnsureSession warms the underlying access layer before a batch.
func (s *Scraper) EnsureSession(ctx context.Context) error {
	return s.fetcher.EnsureSession(ctx)
}

// AlbumMetadata locates a release and returns its tags, or nil when the
// record cannot be found. Hard failures (exhausted identity pool, canceled
// context) surface as errors; an absent record does not.
func (s *Scraper) AlbumMetadata(ctx context.Context, artist, album string, year int, kind ReleaseKind) (*Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.albumMetadataLocked(ctx, artist, album, year, kind)
	switch {
	case err != nil:
		metrics.RecordLookup("album", "error")
	case meta == nil:
		metrics.RecordLookup("album", "miss")
	default:
		metrics.RecordLookup("album", "hit")
	}
	return meta, err
}

func (s *Scraper) albumMetadataLocked(ctx context.Context, artist, album string, year int, kind ReleaseKind) (*Metadata, error) {
	log := s.logger.With(zap.String("artist", artist), zap.String("album", album))

	if body, ok := s.cacheGet(cache.KindRelease, artist, album); ok {
		if g, d := ParseReleaseTags(body); len(g) > 0 || len(d) > 0 {
			log.Debug("release served from cache")
			return s.buildMeta(artist, album, "", kind, g, d), nil
		}
	}

	// Direct URL guess.
	directURL := BuildReleaseURL(s.opts.BaseURL, artist, album, kind)
	body, err := s.fetchHTML(ctx, directURL)
	if err != nil {
		return nil, err
	}
	if g, d := ParseReleaseTags(body); len(g) > 0 || len(d) > 0 {
		s.cachePut(cache.KindRelease, artist, album, body)
		return s.buildMeta(artist, album, directURL, kind, g, d), nil
	}
	log.Debug("direct release URL missed", zap.String("url", directURL))

	// Artist-ID shortcut: a cached identifier lets the discography search
	// run without loading the artist page at all.
	if artistID, ok := s.lookupArtistID(artist); ok {
		meta, err := s.lookupViaDiscography(ctx, artistID, artist, album, year, kind)
		if err != nil || meta != nil {
			return meta, err
		}
		log.Debug("cached artist id search missed", zap.String("artist_id", artistID))
	}

	// Full artist page approach: resolve the artist page, harvest its
	// identifier and visible listing, then search the discography.
	pageURL, pageHTML, err := s.resolveArtistPage(ctx, artist)
	if err != nil {
		return nil, err
	}
	if pageURL == "" {
		log.Info("artist page not found")
		return nil, nil
	}

	// Tier 1: the visible listing costs no extra request.
	if c, ok := pickBest(ParseDiscography(pageHTML), album, year, s.opts.Threshold); ok {
		meta, err := s.fetchRelease(ctx, AbsoluteURL(s.opts.BaseURL, c.URL), artist, album, kind)
		if err != nil || meta != nil {
			return meta, err
		}
	}

	artistID, ok := ExtractArtistID(pageHTML)
	if !ok {
		log.Warn("artist page carries no identifier, search exhausted")
		return nil, nil
	}
	s.saveArtistID(artist, artistID)

	return s.lookupViaDiscography(ctx, artistID, artist, album, year, kind)
}

// ArtistMetadata locates an artist page and returns its genres.
func (s *Scraper) ArtistMetadata(ctx context.Context, artist string) (*Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta, err := s.artistMetadataLocked(ctx, artist)
	switch {
	case err != nil:
		metrics.RecordLookup("artist", "error")
	case meta == nil:
		metrics.RecordLookup("artist", "miss")
	default:
		metrics.RecordLookup("artist", "hit")
	}
	return meta, err
}

func (s *Scraper) artistMetadataLocked(ctx context.Context, artist string) (*Metadata, error) {
	if body, ok := s.cacheGet(cache.KindArtist, artist, ""); ok {
		if g, _ := ParseArtistTags(body); len(g) > 0 {
			return s.buildMeta(artist, "", "", "", g, nil), nil
		}
	}

	pageURL, pageHTML, err := s.resolveArtistPage(ctx, artist)
	if err != nil {
		return nil, err
	}
	if pageURL == "" {
		return nil, nil
	}
	g, _ := ParseArtistTags(pageHTML)
	if len(g) == 0 {
		s.logger.Info("artist page has no genres", zap.String("artist", artist))
		return nil, nil
	}
	if id, ok := ExtractArtistID(pageHTML); ok {
		s.saveArtistID(artist, id)
	}
	return s.buildMeta(artist, "", pageURL, "", g, nil), nil
}

// Lookup resolves an album with a fall back to artist-level genres when the
// release cannot be found, which is the behavior batch tagging wants.
func (s *Scraper) Lookup(ctx context.Context, artist, album string, year int, kind ReleaseKind) (*Metadata, error) {
	meta, err := s.AlbumMetadata(ctx, artist, album, year, kind)
	if err != nil || meta != nil {
		return meta, err
	}
	s.logger.Info("falling back to artist genres",
		zap.String("artist", artist), zap.String("album", album))
	return s.ArtistMetadata(ctx, artist)
}

// resolveArtistPage returns the artist page URL and HTML, trying the direct
// slug first and the site search second. An empty URL means not found.
func (s *Scraper) resolveArtistPage(ctx context.Context, artist string) (string, string, error) {
	directURL := BuildArtistURL(s.opts.BaseURL, artist)
	body, err := s.fetchHTML(ctx, directURL)
	if err != nil {
		return "", "", err
	}
	if LooksLikeArtistPage(body) {
		s.cachePut(cache.KindArtist, artist, "", body)
		return directURL, body, nil
	}

	searchURL := BuildArtistSearchURL(s.opts.BaseURL, artist)
	searchBody, err := s.fetchHTML(ctx, searchURL)
	if err != nil {
		return "", "", err
	}
	href, ok := ParseArtistSearch(searchBody, artist)
	if !ok {
		return "", "", nil
	}
	pageURL := AbsoluteURL(s.opts.BaseURL, href)
	body, err = s.fetchHTML(ctx, pageURL)
	if err != nil {
		return "", "", err
	}
	if !LooksLikeArtistPage(body) {
		return "", "", nil
	}
	s.cachePut(cache.KindArtist, artist, "", body)
	return pageURL, body, nil
}

// lookupViaDiscography runs the search tiers against a known artist id and,
// on a match, fetches and parses the release page.
func (s *Scraper) lookupViaDiscography(ctx context.Context, artistID, artist, album string, year int, kind ReleaseKind) (*Metadata, error) {
	releaseURL, found, err := s.searchDiscography(ctx, artistID, album, year)
	if err != nil || !found {
		return nil, err
	}
	return s.fetchRelease(ctx, releaseURL, artist, album, kind)
}

// fetchRelease loads a located release page and extracts its tags, writing
// through to the cache on success.
func (s *Scraper) fetchRelease(ctx context.Context, releaseURL, artist, album string, kind ReleaseKind) (*Metadata, error) {
	body, err := s.fetchHTML(ctx, releaseURL)
	if err != nil {
		return nil, err
	}
	g, d := ParseReleaseTags(body)
	if len(g) == 0 && len(d) == 0 {
		return nil, nil
	}
	s.cachePut(cache.KindRelease, artist, album, body)
	return s.buildMeta(artist, album, releaseURL, kind, g, d), nil
}

// fetchHTML runs one page fetch through the access layer. A permanent
// status (404 and friends) and an implausibly small body both read as
// "nothing here", not as failures.
func (s *Scraper) fetchHTML(ctx context.Context, pageURL string) (string, error) {
	resp, err := s.fetcher.Fetch(ctx, access.Request{URL: pageURL, Kind: access.KindHTML})
	if err != nil {
		if errors.Is(err, access.ErrPermanent) {
			return "", nil
		}
		return "", err
	}
	if len(resp.Body) < cache.MinContentBytes {
		s.logger.Debug("body below content threshold",
			zap.String("url", pageURL), zap.Int("bytes", len(resp.Body)))
		return "", nil
	}
	return resp.Body, nil
}

func (s *Scraper) buildMeta(artist, album, pageURL string, kind ReleaseKind, genreNames, descriptors []string) *Metadata {
	return &Metadata{
		Artist:      artist,
		Album:       album,
		Genres:      s.expandGenres(genreNames),
		Descriptors: descriptors,
		URL:         pageURL,
		Kind:        kind,
	}
}

// expandGenres enriches a flat genre list with its ancestors, most
// specific first. Always fails open.
func (s *Scraper) expandGenres(names []string) []string {
	if !s.opts.ExpandGenres || s.genres == nil || len(names) == 0 {
		return names
	}
	return s.genres.Expand(names)
}

func (s *Scraper) cacheGet(kind cache.Kind, artist, album string) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	return s.cache.Get(kind, artist, album)
}

func (s *Scraper) cachePut(kind cache.Kind, artist, album, body string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Put(kind, artist, album, body); err != nil {
		s.logger.Warn("cache write failed", zap.Error(err))
	}
}

func (s *Scraper) lookupArtistID(artist string) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	return s.cache.LookupArtistID(artist)
}

func (s *Scraper) saveArtistID(artist, id string) {
	if s.cache == nil {
		return
	}
	s.cache.SaveArtistID(artist, id)
}
