package genres

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTable() map[string]Node {
	return map[string]Node{
		"Rock": {Name: "Rock", Depth: 0},
		"Alternative Rock": {
			Name: "Alternative Rock", Depth: 1, Parents: []string{"Rock"},
		},
		"Shoegaze": {
			Name: "Shoegaze", Depth: 2, Parents: []string{"Rock", "Alternative Rock"},
		},
		"Electronic": {Name: "Electronic", Depth: 0},
	}
}

func newLoadedManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(t.TempDir(), 30, nil)
	require.NoError(t, m.Save(testTable()))
	return m
}

func TestExpandAddsAncestorsMostSpecificFirst(t *testing.T) {
	t.Parallel()
	m := newLoadedManager(t)

	got := m.Expand([]string{"Shoegaze"})
	assert.Equal(t, []string{"Shoegaze", "Alternative Rock", "Rock"}, got)
}

func TestExpandIsSupersetUniqueAndDepthSorted(t *testing.T) {
	t.Parallel()
	m := newLoadedManager(t)
	in := []string{"Shoegaze", "Alternative Rock", "Electronic", "Shoegaze"}

	got := m.Expand(in)

	seen := map[string]int{}
	for _, name := range got {
		seen[name]++
	}
	for _, name := range in {
		assert.Contains(t, seen, name)
	}
	for name, count := range seen {
		assert.Equal(t, 1, count, "%s appears %d times", name, count)
	}

	table := testTable()
	depthOf := func(name string) int {
		if node, ok := table[name]; ok {
			return node.Depth
		}
		return 0
	}
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, depthOf(got[i-1]), depthOf(got[i]),
			"output not depth-descending at %d: %v", i, got)
	}
}

func TestExpandKeepsUnknownGenres(t *testing.T) {
	t.Parallel()
	m := newLoadedManager(t)

	got := m.Expand([]string{"Shoegaze", "Zeuhl"})
	assert.Contains(t, got, "Zeuhl")
	// Unknown genres sit at depth 0, after the specific ones.
	assert.Equal(t, "Shoegaze", got[0])
}

func TestExpandKeepsAncestorsMissingFromTable(t *testing.T) {
	t.Parallel()
	m := NewManager(t.TempDir(), 30, nil)
	require.NoError(t, m.Save(map[string]Node{
		"Rock": {Name: "Rock", Depth: 0},
		"Shoegaze": {
			// "Alternative Rock" never made it into the table; the
			// ancestor list still names it at position 1.
			Name: "Shoegaze", Depth: 2, Parents: []string{"Rock", "Alternative Rock"},
		},
	}))

	got := m.Expand([]string{"Shoegaze"})
	assert.Equal(t, []string{"Shoegaze", "Alternative Rock", "Rock"}, got)
}

func TestExpandFailsOpenWithoutTable(t *testing.T) {
	t.Parallel()
	m := NewManager(t.TempDir(), 30, nil)

	in := []string{"Alternative Rock", "Dream Pop"}
	assert.Equal(t, in, m.Expand(in))
	assert.False(t, m.Load())
}

func TestExpandFailsOpenOnCorruptTable(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, HierarchyFile), []byte("{nope"), 0o644))
	m := NewManager(dir, 30, nil)

	in := []string{"Rock"}
	assert.Equal(t, in, m.Expand(in))
}

func TestCacheValid(t *testing.T) {
	t.Parallel()
	m := NewManager(t.TempDir(), 30, nil)
	assert.False(t, m.CacheValid(), "missing file is never valid")

	require.NoError(t, m.Save(testTable()))
	assert.True(t, m.CacheValid())

	// Expiry disabled: any existing file is valid.
	forever := NewManager(m.dir, 0, nil)
	assert.True(t, forever.CacheValid())
}

func TestSaveRejectsEmptyTable(t *testing.T) {
	t.Parallel()
	m := NewManager(t.TempDir(), 30, nil)
	require.Error(t, m.Save(map[string]Node{}))
}

func TestLoadRoundTrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	m := NewManager(dir, 30, nil)
	require.NoError(t, m.Save(testTable()))

	fresh := NewManager(dir, 30, nil)
	require.True(t, fresh.Load())
	assert.Equal(t, 4, fresh.Count())
}
