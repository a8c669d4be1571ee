// Package textnorm implements the text normalization tiers used for cache
// keys, URL slugs, and fuzzy title matching.
package textnorm

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Options selects which normalization steps Normalize applies.
type Options struct {
	RemoveAccents        bool
	Lowercase            bool
	RemoveParentheticals bool
	RemovePunctuation    bool
	FilesystemSafe       bool
}

const maxFilenameLen = 200

var (
	parenRe       = regexp.MustCompile(`\s*\([^)]*\)\s*`)
	bracketRe     = regexp.MustCompile(`\s*\[[^\]]*\]\s*`)
	punctRe       = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)
	spaceRe       = regexp.MustCompile(`\s+`)
	unsafeFileRe  = regexp.MustCompile(`[<>:"/\\|?*]`)
	accentRemover = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// Normalize applies the selected steps to text and collapses whitespace.
// The same option set must be used on write and read for keys to be stable.
func Normalize(text string, opts Options) string {
	result := strings.TrimSpace(text)
	if result == "" {
		return ""
	}

	if opts.RemoveParentheticals {
		result = parenRe.ReplaceAllString(result, " ")
		result = bracketRe.ReplaceAllString(result, " ")
	}

	if opts.RemoveAccents {
		if stripped, _, err := transform.String(accentRemover, result); err == nil {
			result = stripped
		}
	}

	if opts.Lowercase {
		result = strings.ToLower(result)
	}

	if opts.RemovePunctuation {
		result = punctRe.ReplaceAllString(result, " ")
	}
	result = strings.TrimSpace(spaceRe.ReplaceAllString(result, " "))

	if opts.FilesystemSafe {
		result = unsafeFileRe.ReplaceAllString(result, "_")
		result = spaceRe.ReplaceAllString(result, "_")
		if len(result) > maxFilenameLen {
			cut := maxFilenameLen
			for cut > 0 && !utf8.RuneStart(result[cut]) {
				cut--
			}
			result = strings.TrimRight(result[:cut], "_")
		}
	}

	return result
}

// Slug produces the lowercase hyphenated form used in target URLs,
// e.g. "Café Tacvba" -> "cafe-tacvba".
func Slug(text string) string {
	cleaned := Normalize(text, Options{
		RemoveAccents:     true,
		Lowercase:         true,
		RemovePunctuation: true,
	})
	return strings.ReplaceAll(cleaned, " ", "-")
}

// Key is the lookup-key normalization shared by the artist-ID index:
// accents stripped and lowercased, punctuation kept.
func Key(text string) string {
	return Normalize(text, Options{RemoveAccents: true, Lowercase: true})
}
