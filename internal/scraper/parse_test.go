package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const releasePageFixture = `<html><body>
<table>
<tr class="release_genres"><td>
  <a class="genre" href="/genre/alternative-rock/">Alternative Rock</a>,
  <a class="genre" href="/genre/art-rock/">Art Rock</a>,
  <a class="genre" href="/genre/art-rock/">Art Rock</a>
</td></tr>
<tr class="release_descriptors"><td>
  <meta content="melancholic"/>
  <meta content="futuristic"/>
</td></tr>
</table>
</body></html>`

const releasePageSpanDescriptors = `<html><body>
<table>
<tr class="release_genres"><td><a class="genre" href="/genre/jazz/">Jazz</a></td></tr>
<tr class="release_descriptors"><td><span>warm</span><span>,</span><span>nocturnal</span></td></tr>
</table>
</body></html>`

const artistPageFixture = `<html><body>
<input type="text" class="rym_shortcut" value="[Artist64]"/>
<div class="artist_info_main">
  <div class="info_hdr">Formed</div>
  <div class="info_content">1985</div>
  <div class="info_hdr">Genres</div>
  <div class="info_content">
    <a class="genre" href="/genre/alternative-rock/">Alternative Rock</a>,
    <a class="genre" href="/genre/electronic/">Electronic</a>
  </div>
</div>
<div id="discography">
  <div class="disco_release">
    <div class="disco_info"><a class="album" href="/release/album/radiohead/ok-computer/">OK Computer</a></div>
    <span class="disco_year_ymd">1997</span>
  </div>
  <div class="disco_release">
    <div class="disco_info"><a class="album" href="/release/album/radiohead/kid-a/">Kid A</a></div>
    <span class="disco_year_ymd">2000</span>
  </div>
  <div class="disco_release">
    <div class="disco_info"><a class="album" href="/release/album/radiohead/unreleased/">Unreleased</a></div>
    <span class="disco_year_ymd"></span>
  </div>
</div>
</body></html>`

const searchPageFixture = `<html><body>
<a class="searchpage" href="/artist/radiohead-tribute-band">Radiohead Tribute Band</a>
<a class="searchpage" href="/artist/radiohead">Radiohead</a>
<a class="searchpage" href="/film/radiohead-documentary">Radiohead Documentary</a>
</body></html>`

func TestParseReleaseTags(t *testing.T) {
	t.Parallel()
	genres, descriptors := ParseReleaseTags(releasePageFixture)
	assert.Equal(t, []string{"Alternative Rock", "Art Rock"}, genres)
	assert.Equal(t, []string{"melancholic", "futuristic"}, descriptors)
}

func TestParseReleaseTagsSpanFallback(t *testing.T) {
	t.Parallel()
	genres, descriptors := ParseReleaseTags(releasePageSpanDescriptors)
	assert.Equal(t, []string{"Jazz"}, genres)
	assert.Equal(t, []string{"warm", "nocturnal"}, descriptors)
}

func TestParseReleaseTagsEmptyPage(t *testing.T) {
	t.Parallel()
	genres, descriptors := ParseReleaseTags("<html><body>nothing here</body></html>")
	assert.Empty(t, genres)
	assert.Empty(t, descriptors)
}

func TestParseArtistTags(t *testing.T) {
	t.Parallel()
	genres, descriptors := ParseArtistTags(artistPageFixture)
	assert.Equal(t, []string{"Alternative Rock", "Electronic"}, genres)
	assert.Nil(t, descriptors)
}

func TestExtractArtistID(t *testing.T) {
	t.Parallel()
	id, ok := ExtractArtistID(artistPageFixture)
	require.True(t, ok)
	assert.Equal(t, "64", id)

	_, ok = ExtractArtistID("<html><body>no widget</body></html>")
	assert.False(t, ok)
}

func TestLooksLikeArtistPage(t *testing.T) {
	t.Parallel()
	assert.True(t, LooksLikeArtistPage(artistPageFixture))
	assert.False(t, LooksLikeArtistPage("<html><body><h1>Page not found</h1></body></html>"))
}

func TestParseDiscography(t *testing.T) {
	t.Parallel()
	got := ParseDiscography(artistPageFixture)
	require.Len(t, got, 3)
	assert.Equal(t, Candidate{Album: "OK Computer", Year: 1997, URL: "/release/album/radiohead/ok-computer/"}, got[0])
	assert.Equal(t, Candidate{Album: "Kid A", Year: 2000, URL: "/release/album/radiohead/kid-a/"}, got[1])
	assert.Zero(t, got[2].Year, "missing year parses as zero")
}

func TestUnwrapSearchCallback(t *testing.T) {
	t.Parallel()
	payload := `RYMartistPage._searchCallback('ok computer', '<div class=\'disco\'>It\'s here</div>')`
	html, ok := UnwrapSearchCallback(payload)
	require.True(t, ok)
	assert.Equal(t, `<div class='disco'>It's here</div>`, html)

	_, ok = UnwrapSearchCallback("alert('not the callback')")
	assert.False(t, ok)
}

func TestParseArtistSearchPrefersExactMatch(t *testing.T) {
	t.Parallel()
	url, ok := ParseArtistSearch(searchPageFixture, "Radiohead")
	require.True(t, ok)
	assert.Equal(t, "/artist/radiohead", url)
}

func TestParseArtistSearchFallsBackToFirstHit(t *testing.T) {
	t.Parallel()
	url, ok := ParseArtistSearch(searchPageFixture, "Completely Different")
	require.True(t, ok)
	assert.Equal(t, "/artist/radiohead-tribute-band", url, "film links must be ignored")

	_, ok = ParseArtistSearch("<html><body>no results</body></html>", "Radiohead")
	assert.False(t, ok)
}

func TestParseGenreIDs(t *testing.T) {
	t.Parallel()
	html := `<html><body><ul class="page_genre_index_hierarchy">
	<li id="item_12">Rock</li>
	<li id="item_34">Electronic</li>
	<li id="header">not a genre</li>
	</ul></body></html>`
	assert.Equal(t, []string{"12", "34"}, ParseGenreIDs(html))
}
