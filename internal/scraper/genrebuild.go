package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"rymeta/internal/access"
	"rymeta/internal/genres"
)

// genreAPINode is the shape the public genre hierarchy API answers with;
// children nest recursively.
type genreAPINode struct {
	NameDisplay      string         `json:"name_display"`
	URL              string         `json:"url"`
	GenreID          json.Number    `json:"genre_id"`
	DescriptionShort string         `json:"description_short"`
	Children         []genreAPINode `json:"children"`
}

// BuildGenreHierarchy crawls the genre index page for top-level genre ids,
// fetches each subtree from the hierarchy API, flattens the result into a
// name-keyed depth table, and saves it. Returns the number of genres.
func (s *Scraper) BuildGenreHierarchy(ctx context.Context) (int, error) {
	if s.genres == nil {
		return 0, errors.New("no genre manager configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	body, err := s.fetchHTML(ctx, s.opts.BaseURL+"/genres")
	if err != nil {
		return 0, err
	}
	ids := ParseGenreIDs(body)
	if len(ids) == 0 {
		return 0, errors.New("no genre ids found on index page")
	}
	s.logger.Info("building genre hierarchy", zap.Int("top_level", len(ids)))

	nodes := map[string]genres.Node{}
	for i, id := range ids {
		root, err := s.fetchGenreSubtree(ctx, id)
		if err != nil {
			return 0, err
		}
		if root == nil {
			continue
		}
		flattenGenre(*root, 0, nil, nodes)
		s.logger.Debug("fetched genre subtree",
			zap.String("genre_id", id),
			zap.Int("progress", i+1), zap.Int("total", len(ids)))
	}
	if len(nodes) == 0 {
		return 0, errors.New("genre hierarchy crawl produced no data")
	}
	if err := s.genres.Save(nodes); err != nil {
		return 0, fmt.Errorf("save hierarchy: %w", err)
	}
	return len(nodes), nil
}

// fetchGenreSubtree returns nil without error for a subtree the API will
// not serve; losing one branch beats losing the whole table.
func (s *Scraper) fetchGenreSubtree(ctx context.Context, id string) (*genreAPINode, error) {
	apiURL := fmt.Sprintf("%s/api/1/genre/hierarchy/%s/", s.opts.BaseURL, id)
	resp, err := s.fetcher.Fetch(ctx, access.Request{URL: apiURL, Kind: access.KindJSON})
	if err != nil {
		if errors.Is(err, access.ErrPermanent) {
			s.logger.Warn("genre subtree unavailable", zap.String("genre_id", id))
			return nil, nil
		}
		return nil, err
	}
	var node genreAPINode
	if err := json.Unmarshal([]byte(resp.Body), &node); err != nil {
		s.logger.Warn("genre subtree unparseable",
			zap.String("genre_id", id), zap.Error(err))
		return nil, nil
	}
	return &node, nil
}

func flattenGenre(node genreAPINode, depth int, parents []string, out map[string]genres.Node) {
	if node.NameDisplay == "" {
		return
	}
	out[node.NameDisplay] = genres.Node{
		Name:             node.NameDisplay,
		Depth:            depth,
		Parents:          append([]string(nil), parents...),
		URL:              node.URL,
		GenreID:          node.GenreID.String(),
		DescriptionShort: node.DescriptionShort,
	}
	childParents := append(append([]string(nil), parents...), node.NameDisplay)
	for _, child := range node.Children {
		flattenGenre(child, depth+1, childParents, out)
	}
}
