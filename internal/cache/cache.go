// Package cache is the on-disk content cache: one file per fetched page,
// keyed by normalized entity names, plus the artist-name to artist-ID index.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"rymeta/internal/metrics"
	"rymeta/internal/textnorm"
)

// Kind distinguishes the two cached entity types.
type Kind string

// Cached entity kinds.
const (
	KindArtist  Kind = "artist"
	KindRelease Kind = "release"
)

// MinContentBytes is the smallest body considered a real page. Anything
// shorter is assumed to be a block or error page and treated as a miss.
const MinContentBytes = 1000

const artistIDIndexFile = "artist_id_cache.json"

// Store is a content cache rooted at a directory.
type Store struct {
	dir    string
	expiry time.Duration // 0 means entries never age out
	logger *zap.Logger

	mu        sync.Mutex
	artistIDs map[string]string
}

// Stats summarizes cache contents.
type Stats struct {
	HTMLFiles    int    `json:"html_files"`
	ArtistPages  int    `json:"artist_pages"`
	ReleasePages int    `json:"release_pages"`
	ArtistIDs    int    `json:"artist_ids"`
	TotalBytes   int64  `json:"total_bytes"`
	Dir          string `json:"dir"`
}

// Open creates the cache directory if needed and loads the artist-ID index.
func Open(dir string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	s := &Store{
		dir:       dir,
		logger:    logger,
		artistIDs: map[string]string{},
	}
	s.loadArtistIDs()
	return s, nil
}

// Dir returns the cache root directory.
func (s *Store) Dir() string { return s.dir }

// SetExpiry enables age-based invalidation; entries older than d read as
// misses and are removed. Zero keeps the default never-expires policy.
func (s *Store) SetExpiry(d time.Duration) { s.expiry = d }

// filename builds the normalized cache filename for a key. Artist and album
// names run through the same normalization on read and write so hits are
// independent of casing, accents, and edition parentheticals.
func (s *Store) filename(kind Kind, artist, album string) (string, error) {
	artistPart := textnorm.Normalize(artist, textnorm.Options{
		RemoveAccents:     true,
		Lowercase:         true,
		RemovePunctuation: true,
		FilesystemSafe:    true,
	})

	switch kind {
	case KindArtist:
		return fmt.Sprintf("artist_%s.html", artistPart), nil
	case KindRelease:
		if album == "" {
			return "", fmt.Errorf("album name required for release cache key")
		}
		albumPart := textnorm.Normalize(album, textnorm.Options{
			RemoveAccents:        true,
			Lowercase:            true,
			RemoveParentheticals: true,
			RemovePunctuation:    true,
			FilesystemSafe:       true,
		})
		return fmt.Sprintf("release_%s_%s.html", artistPart, albumPart), nil
	default:
		return "", fmt.Errorf("unknown cache kind %q", kind)
	}
}

// Get returns the cached body for the key, or ok=false on a miss. Bodies
// below MinContentBytes are deleted and reported as misses.
func (s *Store) Get(kind Kind, artist, album string) (string, bool) {
	name, err := s.filename(kind, artist, album)
	if err != nil {
		s.logger.Warn("bad cache key", zap.Error(err))
		return "", false
	}
	path := filepath.Join(s.dir, name)

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("read cached content", zap.String("file", name), zap.Error(err))
		}
		metrics.RecordCacheEvent("content", "miss")
		return "", false
	}

	if s.expiry > 0 {
		if fi, err := os.Stat(path); err == nil && time.Since(fi.ModTime()) > s.expiry {
			s.logger.Info("cached content expired, removing", zap.String("file", name))
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				s.logger.Warn("remove expired cache file", zap.Error(err))
			}
			metrics.RecordCacheEvent("content", "miss")
			return "", false
		}
	}

	if len(data) < MinContentBytes {
		s.logger.Warn("cached content too short, removing",
			zap.String("file", name), zap.Int("bytes", len(data)))
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("remove stale cache file", zap.Error(err))
		}
		metrics.RecordCacheEvent("content", "miss")
		return "", false
	}

	s.logger.Info("content cache hit",
		zap.String("kind", string(kind)), zap.String("artist", artist))
	metrics.RecordCacheEvent("content", "hit")
	return string(data), true
}

// Put writes a body through to disk under the normalized key.
func (s *Store) Put(kind Kind, artist, album, body string) error {
	name, err := s.filename(kind, artist, album)
	if err != nil {
		return err
	}
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		return fmt.Errorf("write cache file %s: %w", name, err)
	}
	s.logger.Debug("cached content",
		zap.String("kind", string(kind)), zap.String("artist", artist))
	return nil
}

func (s *Store) artistIDIndexPath() string {
	return filepath.Join(s.dir, artistIDIndexFile)
}

func (s *Store) loadArtistIDs() {
	data, err := os.ReadFile(s.artistIDIndexPath())
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("load artist ID index", zap.Error(err))
		}
		return
	}
	if err := json.Unmarshal(data, &s.artistIDs); err != nil {
		s.logger.Warn("corrupt artist ID index, starting empty", zap.Error(err))
		s.artistIDs = map[string]string{}
	}
}

// saveArtistIDs must be called with the lock held.
func (s *Store) saveArtistIDs() {
	data, err := json.MarshalIndent(s.artistIDs, "", "  ")
	if err != nil {
		s.logger.Error("marshal artist ID index", zap.Error(err))
		return
	}
	if err := os.WriteFile(s.artistIDIndexPath(), data, 0o644); err != nil {
		s.logger.Error("save artist ID index", zap.Error(err))
	}
}

// LookupArtistID returns the target-assigned identifier cached for an artist.
func (s *Store) LookupArtistID(artist string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.artistIDs[textnorm.Key(artist)]
	if ok {
		s.logger.Info("artist ID cache hit", zap.String("artist", artist))
		metrics.RecordCacheEvent("artist_id", "hit")
	} else {
		metrics.RecordCacheEvent("artist_id", "miss")
	}
	return id, ok
}

// SaveArtistID records the artist-name to identifier mapping; append-only.
func (s *Store) SaveArtistID(artist, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.artistIDs[textnorm.Key(artist)] = id
	s.saveArtistIDs()
	s.logger.Debug("cached artist ID",
		zap.String("artist", artist), zap.String("id", id))
}

// Clear removes all cached pages and the artist-ID index, returning the
// number of files removed.
func (s *Store) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Error("read cache dir", zap.Error(err))
		return 0
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".html") {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err == nil {
			removed++
		}
	}
	if err := os.Remove(s.artistIDIndexPath()); err == nil {
		removed++
	}
	s.artistIDs = map[string]string{}
	s.logger.Info("cleared cache", zap.Int("files", removed))
	return removed
}

// Info returns cache statistics.
func (s *Store) Info() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{Dir: s.dir, ArtistIDs: len(s.artistIDs)}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.logger.Error("read cache dir", zap.Error(err))
		return stats
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".html") {
			continue
		}
		stats.HTMLFiles++
		switch {
		case strings.HasPrefix(name, "artist_"):
			stats.ArtistPages++
		case strings.HasPrefix(name, "release_"):
			stats.ReleasePages++
		}
		if fi, err := entry.Info(); err == nil {
			stats.TotalBytes += fi.Size()
		}
	}
	return stats
}
