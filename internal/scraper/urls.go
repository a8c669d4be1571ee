package scraper

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"rymeta/internal/textnorm"
)

// ReleaseKind selects the release-type segment of a direct release URL.
type ReleaseKind string

const (
	KindAlbum       ReleaseKind = "album"
	KindSingle      ReleaseKind = "single"
	KindEP          ReleaseKind = "ep"
	KindCompilation ReleaseKind = "compilation"
)

// releaseKindPaths maps release kinds to their URL path segment. The site
// abbreviates compilations.
var releaseKindPaths = map[ReleaseKind]string{
	KindAlbum:       "album",
	KindSingle:      "single",
	KindEP:          "ep",
	KindCompilation: "comp",
}

// PathSegment returns the URL segment for the kind, defaulting unknown
// kinds to "album".
func (k ReleaseKind) PathSegment() string {
	if seg, ok := releaseKindPaths[ReleaseKind(strings.ToLower(string(k)))]; ok {
		return seg
	}
	return "album"
}

// BuildReleaseURL guesses the direct release page URL from slugified names.
func BuildReleaseURL(base, artist, album string, kind ReleaseKind) string {
	return fmt.Sprintf("%s/release/%s/%s/%s/",
		strings.TrimRight(base, "/"), kind.PathSegment(),
		textnorm.Slug(artist), textnorm.Slug(album))
}

// BuildArtistURL guesses the direct artist page URL.
func BuildArtistURL(base, artist string) string {
	return fmt.Sprintf("%s/artist/%s",
		strings.TrimRight(base, "/"), textnorm.Slug(artist))
}

var nonWordRe = regexp.MustCompile(`[^\w\s]`)
var multiSpaceRe = regexp.MustCompile(`\s+`)

// BuildArtistSearchURL builds the site search URL scoped to artists.
func BuildArtistSearchURL(base, artist string) string {
	cleaned := nonWordRe.ReplaceAllString(artist, " ")
	cleaned = strings.TrimSpace(multiSpaceRe.ReplaceAllString(cleaned, " "))
	return fmt.Sprintf("%s/search?searchtype=a&searchterm=%s",
		strings.TrimRight(base, "/"), url.QueryEscape(cleaned))
}

// AbsoluteURL resolves a possibly site-relative href against the base.
func AbsoluteURL(base, href string) string {
	if strings.HasPrefix(href, "/") {
		return strings.TrimRight(base, "/") + href
	}
	return href
}
