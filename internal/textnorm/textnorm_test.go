package textnorm

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlug(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
	}{
		{"Café Tacvba", "cafe-tacvba"},
		{"OK Computer", "ok-computer"},
		{"R.E.M.", "r-e-m"},
		{"Sigur Rós", "sigur-ros"},
		{"  Radiohead  ", "radiohead"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Slug(tt.in), "Slug(%q)", tt.in)
	}
}

func TestKeyAccentAndCaseInsensitive(t *testing.T) {
	t.Parallel()
	require.Equal(t, Key("Café Tacvba"), Key("cafe tacvba"))
	require.Equal(t, Key("Björk"), Key("BJORK"))
	require.NotEqual(t, Key("Low"), Key("Blur"))
}

func TestNormalizeParentheticals(t *testing.T) {
	t.Parallel()
	got := Normalize("Nevermind (Remastered) [Deluxe]", Options{
		RemoveParentheticals: true,
		Lowercase:            true,
	})
	assert.Equal(t, "nevermind", got)
}

func TestNormalizeFilesystemSafe(t *testing.T) {
	t.Parallel()
	got := Normalize(`AC/DC: Back in "Black"`, Options{
		Lowercase:      true,
		FilesystemSafe: true,
	})
	assert.NotContains(t, got, "/")
	assert.NotContains(t, got, ":")
	assert.NotContains(t, got, `"`)
	assert.NotContains(t, got, " ")

	long := Normalize(strings.Repeat("a ", 300), Options{FilesystemSafe: true})
	assert.LessOrEqual(t, len(long), maxFilenameLen)

	// Truncation must land on a rune boundary; each of these runes is
	// three bytes, so 200 is mid-rune.
	cjk := Normalize(strings.Repeat("音", 100), Options{FilesystemSafe: true})
	assert.True(t, utf8.ValidString(cjk))
	assert.LessOrEqual(t, len(cjk), maxFilenameLen)
}

func TestTitleKeyEquivalences(t *testing.T) {
	t.Parallel()
	tests := []struct {
		a, b string
	}{
		{"Vol. 2", "Volume II"},
		{"Pt. 3", "Part III"},
		{"Greatest Hits Vol 1", "Greatest Hits Volume I"},
		{"OK Computer", "ok computer"},
	}
	for _, tt := range tests {
		require.Equal(t, TitleKey(tt.a), TitleKey(tt.b), "TitleKey(%q) vs TitleKey(%q)", tt.a, tt.b)
	}
}

func TestSearchQueryStripsNoise(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "dark side of moon", SearchQuery("The Dark Side of the Moon"))
	assert.Equal(t, "led zeppelin", SearchQuery("Led Zeppelin IV"))
	assert.Equal(t, "greatest hits", SearchQuery("Greatest Hits, Vol. 2"))
	// Words that merely contain numeral letters survive.
	assert.Equal(t, "civil war", SearchQuery("Civil War"))
}

func TestToRoman(t *testing.T) {
	t.Parallel()
	tests := []struct {
		n    int
		want string
	}{
		{1, "i"}, {4, "iv"}, {9, "ix"}, {14, "xiv"},
		{40, "xl"}, {90, "xc"}, {1999, "mcmxcix"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, toRoman(tt.n))
	}
	// Out of range falls back to decimal.
	assert.Equal(t, "4000", toRoman(4000))
	assert.Equal(t, "0", toRoman(0))
}

func TestIsRomanNumeral(t *testing.T) {
	t.Parallel()
	assert.True(t, isRomanNumeral("iv"))
	assert.True(t, isRomanNumeral("xiii"))
	assert.False(t, isRomanNumeral("civil"))
	assert.False(t, isRomanNumeral("led"))
	assert.False(t, isRomanNumeral(""))
}
