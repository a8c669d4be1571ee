package scraper

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rymeta/internal/browser"
	"rymeta/internal/cache"
	"rymeta/internal/genres"
)

const genreIndexFixture = `<html><body><ul class="page_genre_index_hierarchy">
<li id="genre_12">Rock</li>
<li id="genre_34">Electronic</li>
<li id="genre_56">Field Recordings</li>
</ul></body></html>`

const rockSubtreeJSON = `{
  "name_display": "Rock",
  "url": "/genre/rock/",
  "genre_id": 12,
  "children": [
    {
      "name_display": "Alternative Rock",
      "url": "/genre/alternative-rock/",
      "genre_id": 120,
      "children": [
        {"name_display": "Shoegaze", "url": "/genre/shoegaze/", "genre_id": 1201, "children": []}
      ]
    }
  ]
}`

const electronicSubtreeJSON = `{
  "name_display": "Electronic",
  "url": "/genre/electronic/",
  "genre_id": 34,
  "children": []
}`

func TestBuildGenreHierarchy(t *testing.T) {
	t.Parallel()
	stub := &stubFetcher{pages: map[string]browser.Response{
		testBase + "/genres": page(genreIndexFixture),
		testBase + "/api/1/genre/hierarchy/12/": {Status: 200, Body: rockSubtreeJSON},
		testBase + "/api/1/genre/hierarchy/34/": {Status: 200, Body: electronicSubtreeJSON},
		// id 56 has no fixture: the API refuses it and the build tolerates
		// the lost branch.
	}}
	store, err := cache.Open(t.TempDir(), nil)
	require.NoError(t, err)
	hierarchy := genres.NewManager(t.TempDir(), 0, nil)
	s := New(stub, store, hierarchy, Options{BaseURL: testBase, ExpandGenres: true}, nil)

	count, err := s.BuildGenreHierarchy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	assert.Equal(t, 4, hierarchy.Count())

	expanded := hierarchy.Expand([]string{"Shoegaze"})
	assert.Equal(t, []string{"Shoegaze", "Alternative Rock", "Rock"}, expanded,
		"depths recorded during the crawl must drive expansion order")
}

func TestBuildGenreHierarchyRequiresIndex(t *testing.T) {
	t.Parallel()
	stub := &stubFetcher{pages: map[string]browser.Response{}}
	hierarchy := genres.NewManager(t.TempDir(), 0, nil)
	s := New(stub, nil, hierarchy, Options{BaseURL: testBase}, nil)

	_, err := s.BuildGenreHierarchy(context.Background())
	require.Error(t, err)
}

func TestBuildGenreHierarchyWithoutManager(t *testing.T) {
	t.Parallel()
	s := New(&stubFetcher{}, nil, nil, Options{BaseURL: testBase}, nil)
	_, err := s.BuildGenreHierarchy(context.Background())
	require.Error(t, err)
}
