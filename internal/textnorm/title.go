package textnorm

import (
	"regexp"
	"strconv"
	"strings"
)

// Abbreviations expanded during title matching. Keys are compared after
// punctuation stripping, so "vol." and "vol" collapse to the same entry.
var titleAbbreviations = map[string]string{
	"vol":  "volume",
	"vols": "volumes",
	"pt":   "part",
	"pts":  "parts",
	"ft":   "featuring",
	"feat": "featuring",
	"no":   "number",
	"nos":  "numbers",
}

// Words dropped entirely by the aggressive search normalization. The target's
// substring search is fragile around articles and volume numbering, so the
// query keeps only the distinctive words of a title.
var searchStopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {},
	"vol": {}, "vols": {}, "volume": {}, "volumes": {},
	"pt": {}, "pts": {}, "part": {}, "parts": {},
}

var romanValues = []struct {
	value  int
	symbol string
}{
	{1000, "m"}, {900, "cm"}, {500, "d"}, {400, "cd"},
	{100, "c"}, {90, "xc"}, {50, "l"}, {40, "xl"},
	{10, "x"}, {9, "ix"}, {5, "v"}, {4, "iv"}, {1, "i"},
}

// toRoman converts n to a lowercase Roman numeral. Values outside the
// classical range are returned as decimal strings unchanged.
func toRoman(n int) string {
	if n <= 0 || n > 3999 {
		return strconv.Itoa(n)
	}
	var b strings.Builder
	for _, rv := range romanValues {
		for n >= rv.value {
			b.WriteString(rv.symbol)
			n -= rv.value
		}
	}
	return b.String()
}

var romanRe = regexp.MustCompile(`^m{0,3}(cm|cd|d?c{0,3})(xc|xl|l?x{0,3})(ix|iv|v?i{0,3})$`)

// isRomanNumeral requires a structurally valid numeral, not just numeral
// letters, so words like "civil" survive query normalization.
func isRomanNumeral(token string) bool {
	return token != "" && romanRe.MatchString(token)
}

func isDigits(token string) bool {
	if token == "" {
		return false
	}
	for _, r := range token {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// TitleKey applies the moderate normalization used when scoring candidate
// titles against the target: accents and punctuation removed, abbreviations
// expanded, and Arabic numbers converted to Roman numerals so that
// "Vol. 2" and "Volume II" compare equal.
func TitleKey(title string) string {
	base := Normalize(title, Options{
		RemoveAccents:     true,
		Lowercase:         true,
		RemovePunctuation: true,
	})
	if base == "" {
		return ""
	}

	words := strings.Fields(base)
	out := make([]string, 0, len(words))
	for _, w := range words {
		if full, ok := titleAbbreviations[w]; ok {
			w = full
		}
		if isDigits(w) {
			if n, err := strconv.Atoi(w); err == nil {
				w = toRoman(n)
			}
		}
		out = append(out, w)
	}
	return strings.Join(out, " ")
}

// SearchQuery applies the aggressive normalization used for the target's
// scoped discography search: articles, volume/part words, and every numeral
// token (Arabic or Roman) are stripped.
func SearchQuery(title string) string {
	base := Normalize(title, Options{
		RemoveAccents:     true,
		Lowercase:         true,
		RemovePunctuation: true,
	})
	if base == "" {
		return ""
	}

	words := strings.Fields(base)
	out := make([]string, 0, len(words))
	for _, w := range words {
		if _, drop := searchStopWords[w]; drop {
			continue
		}
		if isDigits(w) || isRomanNumeral(w) {
			continue
		}
		out = append(out, w)
	}
	return strings.Join(out, " ")
}
