package scraper

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"rymeta/internal/textnorm"
)

// Candidate is one discography entry parsed from a listing or search
// response, consumed immediately by scoring.
type Candidate struct {
	Album string
	Year  int // 0 when the listing carries no year
	URL   string
}

var (
	artistIDRe = regexp.MustCompile(`(?i)<input[^>]*class="[^"]*rym_shortcut[^"]*"[^>]*value="\[Artist(\d+)\]"[^>]*>`)
	callbackRe = regexp.MustCompile(`RYMartistPage\._searchCallback\('(?:\\.|[^'\\])*',\s*'((?:\\.|[^'\\])*)'\)`)
)

func parseDoc(html string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

// ParseReleaseTags extracts genres and descriptors from a release page. An
// empty genre list means the page is not a valid release page.
func ParseReleaseTags(html string) (genres, descriptors []string) {
	doc, err := parseDoc(html)
	if err != nil {
		return nil, nil
	}
	doc.Find("tr.release_genres a.genre").Each(func(_ int, s *goquery.Selection) {
		if name := strings.TrimSpace(s.Text()); name != "" {
			genres = append(genres, name)
		}
	})
	doc.Find("tr.release_descriptors meta").Each(func(_ int, s *goquery.Selection) {
		if content, ok := s.Attr("content"); ok {
			if d := strings.TrimSpace(content); d != "" {
				descriptors = append(descriptors, d)
			}
		}
	})
	if len(descriptors) == 0 {
		// Older page layouts put descriptors in plain cells.
		doc.Find("tr.release_descriptors td span").Each(func(_ int, s *goquery.Selection) {
			if d := strings.TrimSpace(s.Text()); d != "" && d != "," {
				descriptors = append(descriptors, d)
			}
		})
	}
	return dedupe(genres), dedupe(descriptors)
}

// ParseArtistTags extracts genres from the artist info panel.
func ParseArtistTags(html string) (genres, descriptors []string) {
	doc, err := parseDoc(html)
	if err != nil {
		return nil, nil
	}
	doc.Find("div.artist_info_main div.info_hdr").Each(func(_ int, hdr *goquery.Selection) {
		if !strings.EqualFold(strings.TrimSpace(hdr.Text()), "genres") {
			return
		}
		hdr.NextFiltered("div.info_content").Find("a.genre").Each(func(_ int, s *goquery.Selection) {
			if name := strings.TrimSpace(s.Text()); name != "" {
				genres = append(genres, name)
			}
		})
	})
	return dedupe(genres), nil
}

// ExtractArtistID pulls the site-assigned artist identifier from the
// shortcut widget a logged-out artist page still renders.
func ExtractArtistID(html string) (string, bool) {
	m := artistIDRe.FindStringSubmatch(html)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// LooksLikeArtistPage reports whether the document has artist-page
// structure, distinguishing a real page from a soft 404.
func LooksLikeArtistPage(html string) bool {
	doc, err := parseDoc(html)
	if err != nil {
		return false
	}
	return doc.Find("div.artist_info_main").Length() > 0 ||
		doc.Find("div#discography").Length() > 0
}

// UnwrapSearchCallback extracts the HTML payload from the JavaScript
// callback wrapper the discography endpoint answers with.
func UnwrapSearchCallback(text string) (string, bool) {
	m := callbackRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	html := strings.ReplaceAll(m[1], `\'`, `'`)
	html = strings.ReplaceAll(html, `\"`, `"`)
	return html, true
}

// ParseDiscography extracts release candidates from a discography listing
// fragment or a full artist page.
func ParseDiscography(html string) []Candidate {
	doc, err := parseDoc(html)
	if err != nil {
		return nil
	}
	var candidates []Candidate
	doc.Find(".disco_release").Each(func(_ int, rel *goquery.Selection) {
		link := rel.Find(".disco_info a.album").First()
		title := strings.TrimSpace(link.Text())
		href, _ := link.Attr("href")
		if title == "" || href == "" {
			return
		}
		c := Candidate{Album: title, URL: href}
		yearText := strings.TrimSpace(rel.Find(".disco_year_ymd").First().Text())
		if y, err := strconv.Atoi(yearText); err == nil {
			c.Year = y
		}
		candidates = append(candidates, c)
	})
	return candidates
}

// ParseArtistSearch picks the artist page URL out of a site search result
// page, preferring an exact normalized name match over the first hit.
func ParseArtistSearch(html, artist string) (string, bool) {
	doc, err := parseDoc(html)
	if err != nil {
		return "", false
	}
	want := textnorm.Key(artist)
	var first, exact string
	doc.Find(`a.searchpage[href*="/artist/"]`).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		if first == "" {
			first = href
		}
		if exact == "" && textnorm.Key(s.Text()) == want {
			exact = href
		}
	})
	if exact != "" {
		return exact, true
	}
	if first != "" {
		return first, true
	}
	return "", false
}

// ParseGenreIDs extracts the top-level genre identifiers from the genre
// index page; each list item's element id ends with the numeric id.
func ParseGenreIDs(html string) []string {
	doc, err := parseDoc(html)
	if err != nil {
		return nil
	}
	var ids []string
	doc.Find("ul.page_genre_index_hierarchy li").Each(func(_ int, s *goquery.Selection) {
		elemID, ok := s.Attr("id")
		if !ok {
			return
		}
		parts := strings.Split(elemID, "_")
		last := parts[len(parts)-1]
		if last != "" && isNumeric(last) {
			ids = append(ids, last)
		}
	})
	return ids
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return in
	}
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, v := range in {
		key := strings.ToLower(v)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}
