package scraper

import (
	"context"
	"errors"
	"net/url"

	"go.uber.org/zap"

	"rymeta/internal/access"
	"rymeta/internal/textnorm"
)

// discoSections are the listing sections expanded one request at a time in
// the last search tier, cheapest first.
var discoSections = []struct {
	Code  string
	Label string
}{
	{"s", "albums"},
	{"e", "eps"},
	{"i", "singles"},
	{"c", "compilations"},
	{"l", "live albums"},
}

// searchDiscography runs the two network tiers of the cascading search: a
// filtered query against the artist's catalog, then exhaustive per-section
// expansion. Returns the matched release URL.
func (s *Scraper) searchDiscography(ctx context.Context, artistID, album string, year int) (string, bool, error) {
	log := s.logger.With(zap.String("artist_id", artistID), zap.String("album", album))

	// Tier 2: one filtered query. The search term is aggressively
	// normalized because the site's substring search misses near-matches.
	candidates, err := s.filterDiscography(ctx, artistID, textnorm.SearchQuery(album))
	if err != nil {
		return "", false, err
	}
	log.Debug("filtered query candidates", zap.Int("count", len(candidates)))
	if c, ok := pickBest(candidates, album, year, s.opts.Threshold); ok {
		return AbsoluteURL(s.opts.BaseURL, c.URL), true, nil
	}

	// Tier 3: expand each listing section in full, scoring after each so
	// a hit in the albums section never pays for the singles one.
	for _, section := range discoSections {
		candidates, err := s.expandSection(ctx, artistID, section.Code)
		if err != nil {
			return "", false, err
		}
		log.Debug("expanded section",
			zap.String("section", section.Label), zap.Int("count", len(candidates)))
		if c, ok := pickBest(candidates, album, year, s.opts.Threshold); ok {
			return AbsoluteURL(s.opts.BaseURL, c.URL), true, nil
		}
	}
	log.Info("discography search exhausted")
	return "", false, nil
}

// filterDiscography POSTs the catalog-scoped search endpoint and parses
// the candidates out of its JavaScript callback response.
func (s *Scraper) filterDiscography(ctx context.Context, artistID, term string) ([]Candidate, error) {
	form := url.Values{
		"artist_id":        {artistID},
		"sort":             {"release_date.a,title.a"},
		"searchterm":       {term},
		"show_appearances": {"true"},
		"action":           {"FilterDiscography"},
		"rym_ajax_req":     {"1"},
		"request_token":    {""},
	}
	return s.postDiscography(ctx, form)
}

// expandSection POSTs the full contents of one discography section.
func (s *Scraper) expandSection(ctx context.Context, artistID, sectionCode string) ([]Candidate, error) {
	form := url.Values{
		"artist_id":        {artistID},
		"sort":             {"release_date.a,title.a"},
		"type":             {sectionCode},
		"show_appearances": {"false"},
		"action":           {"ExpandDiscographySection"},
		"rym_ajax_req":     {"1"},
		"request_token":    {""},
	}
	return s.postDiscography(ctx, form)
}

func (s *Scraper) postDiscography(ctx context.Context, form url.Values) ([]Candidate, error) {
	endpoint := s.opts.BaseURL + "/httprequest/" + form.Get("action")
	resp, err := s.fetcher.Fetch(ctx, access.Request{
		URL:  endpoint,
		Kind: access.KindForm,
		Form: form,
	})
	if err != nil {
		if errors.Is(err, access.ErrPermanent) {
			return nil, nil
		}
		return nil, err
	}
	fragment, ok := UnwrapSearchCallback(resp.Body)
	if !ok {
		s.logger.Warn("unrecognized discography response shape",
			zap.String("action", form.Get("action")))
		return nil, nil
	}
	return ParseDiscography(fragment), nil
}
