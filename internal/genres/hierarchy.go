// Package genres manages the genre hierarchy table and the expansion of flat
// genre lists into themselves plus all ancestor genres.
package genres

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// HierarchyFile is the table's filename inside the cache directory.
const HierarchyFile = "genre_hierarchy.json"

// Node is one genre in the hierarchy table.
type Node struct {
	Name             string   `json:"name"`
	Depth            int      `json:"depth"`
	Parents          []string `json:"parents"`
	URL              string   `json:"url"`
	GenreID          string   `json:"genre_id"`
	DescriptionShort string   `json:"description_short,omitempty"`
}

// Manager loads the hierarchy table and answers expansion queries.
// Read-only during normal operation; Save is only used by the bulk build.
type Manager struct {
	dir    string
	expiry time.Duration // 0 disables expiry
	logger *zap.Logger

	mu     sync.RWMutex
	nodes  map[string]Node
	loaded bool
}

// NewManager creates a manager over dir with the given table expiry.
func NewManager(dir string, expiryDays int, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		dir:    dir,
		expiry: time.Duration(expiryDays) * 24 * time.Hour,
		logger: logger,
		nodes:  map[string]Node{},
	}
}

// Path returns the hierarchy table location.
func (m *Manager) Path() string {
	return filepath.Join(m.dir, HierarchyFile)
}

// CacheValid reports whether the table file exists and is within its expiry
// window (or expiry is disabled).
func (m *Manager) CacheValid() bool {
	fi, err := os.Stat(m.Path())
	if err != nil {
		return false
	}
	if m.expiry <= 0 {
		return true
	}
	return time.Since(fi.ModTime()) < m.expiry
}

// Load reads the table from disk. Returns false (never an error) when the
// file is missing, empty, or malformed; expansion then passes input through.
func (m *Manager) Load() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loaded && len(m.nodes) > 0 {
		return true
	}

	data, err := os.ReadFile(m.Path())
	if err != nil {
		if !os.IsNotExist(err) {
			m.logger.Warn("read genre hierarchy", zap.Error(err))
		}
		return false
	}

	var nodes map[string]Node
	if err := json.Unmarshal(data, &nodes); err != nil {
		m.logger.Error("invalid genre hierarchy file", zap.Error(err))
		return false
	}
	if len(nodes) == 0 {
		m.logger.Warn("genre hierarchy file is empty")
		return false
	}

	m.nodes = nodes
	m.loaded = true
	m.logger.Info("loaded genre hierarchy", zap.Int("genres", len(nodes)))
	return true
}

// Save writes a freshly built table and swaps it in.
func (m *Manager) Save(nodes map[string]Node) error {
	if len(nodes) == 0 {
		return fmt.Errorf("refusing to save empty genre hierarchy")
	}
	data, err := json.MarshalIndent(nodes, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal genre hierarchy: %w", err)
	}
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	if err := os.WriteFile(m.Path(), data, 0o644); err != nil {
		return fmt.Errorf("write genre hierarchy: %w", err)
	}

	m.mu.Lock()
	m.nodes = nodes
	m.loaded = true
	m.mu.Unlock()

	m.logger.Info("wrote genre hierarchy",
		zap.String("path", m.Path()), zap.Int("genres", len(nodes)))
	return nil
}

// Expand returns the input genres plus all their ancestors, deduplicated and
// sorted most-specific first. Genres absent from the table are kept as-is at
// depth 0; ancestors absent from the table are kept at their ancestry
// position. If the table cannot be loaded the input is returned unchanged.
func (m *Manager) Expand(names []string) []string {
	m.mu.RLock()
	loaded := m.loaded
	m.mu.RUnlock()
	if !loaded && !m.Load() {
		return names
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	depths := map[string]int{}
	for _, name := range names {
		node, ok := m.nodes[name]
		if !ok {
			m.logger.Debug("genre not in hierarchy", zap.String("genre", name))
			depths[name] = 0
			continue
		}
		depths[name] = node.Depth
		for i, parent := range node.Parents {
			if parentNode, ok := m.nodes[parent]; ok {
				depths[parent] = parentNode.Depth
				continue
			}
			// Parents are stored root-first, so the slice index is the
			// ancestor's depth even when its own entry is missing.
			if _, seen := depths[parent]; !seen {
				m.logger.Debug("ancestor not in hierarchy", zap.String("genre", parent))
				depths[parent] = i
			}
		}
	}

	out := make([]string, 0, len(depths))
	for name := range depths {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool {
		if depths[out[i]] != depths[out[j]] {
			return depths[out[i]] > depths[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}

// Count returns the number of genres in the loaded table.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.nodes)
}
