package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.json")
	return New(path, 10001, 10005, nil)
}

func TestRotateMonotonicNeverWraps(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	require.Equal(t, 10001, m.CurrentPort())

	seen := map[int]struct{}{10001: {}}
	for m.Rotate() {
		port := m.CurrentPort()
		_, dup := seen[port]
		require.False(t, dup, "port %d returned twice", port)
		seen[port] = struct{}{}
	}
	require.Len(t, seen, 5)
	// Exhausted pool stays exhausted.
	require.False(t, m.Rotate())
	require.Equal(t, 10005, m.CurrentPort())
}

func TestRotateSkipsBlockedAndClearsSession(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	m.SetCookies(map[string]string{"cf_clearance": "tok"})
	require.True(t, m.IsValid())

	m.MarkBlocked(10002, 10003)
	require.True(t, m.Rotate())
	assert.Equal(t, 10004, m.CurrentPort())

	// A rotated identity starts unauthenticated.
	assert.False(t, m.IsValid())
	assert.Empty(t, m.Cookies())
	assert.True(t, m.Snapshot().SessionStartTime.IsZero())
}

func TestRotatedPortNeverBlocked(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	m.MarkBlocked() // defaults to current
	require.True(t, m.Rotate())

	snap := m.Snapshot()
	assert.NotContains(t, snap.BlockedPorts, snap.CurrentPort)
}

func TestMarkBlockedIdempotent(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	m.MarkBlocked(10002)
	m.MarkBlocked(10002)
	assert.Equal(t, []int{10002}, m.Snapshot().BlockedPorts)
}

func TestValidityBoundary(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	m.SetCookies(map[string]string{"cf_clearance": "tok"})

	now := time.Now()
	m.now = func() time.Time { return now }

	m.state.SessionStartTime = now.Add(-Freshness - time.Second)
	assert.False(t, m.IsValid(), "one second past the window must be invalid")

	m.state.SessionStartTime = now.Add(-Freshness + time.Second)
	assert.True(t, m.IsValid(), "one second inside the window must be valid")
}

func TestValidityRequiresSolvedAndCookies(t *testing.T) {
	t.Parallel()
	m := newTestManager(t)
	assert.False(t, m.IsValid())

	m.SetCookies(map[string]string{})
	assert.False(t, m.IsValid(), "empty cookie set is not a session")

	m.SetCookies(map[string]string{"sid": "x"})
	assert.True(t, m.IsValid())

	m.Reset()
	assert.False(t, m.IsValid())
}

func TestStateSurvivesReload(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "state.json")
	m := New(path, 10001, 10010, nil)
	m.MarkBlocked(10002)
	require.True(t, m.Rotate())
	m.SetCookies(map[string]string{"sid": "abc"})
	m.IncrementRequestCount()

	reloaded := New(path, 1, 2, nil)
	snap := reloaded.Snapshot()
	assert.Equal(t, 10003, snap.CurrentPort)
	assert.Equal(t, 10001, snap.PortRangeMin)
	assert.Equal(t, 10010, snap.PortRangeMax)
	assert.Equal(t, []int{10002}, snap.BlockedPorts)
	assert.Equal(t, map[string]string{"sid": "abc"}, snap.Cookies)
	assert.Equal(t, 1, snap.RequestCount)
	assert.True(t, snap.ChallengeSolved)
}

func TestStateFileWritesLegacyRangeShape(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "state.json")
	m := New(path, 20001, 20005, nil)
	m.IncrementRequestCount()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	nested, ok := raw["port_range"].(map[string]any)
	require.True(t, ok, "legacy port_range shape missing")
	assert.Equal(t, float64(20001), nested["min"])
	assert.Equal(t, float64(20005), nested["max"])
	assert.Equal(t, float64(20001), raw["port_range_min"])
}

func TestStateReadsLegacyRangeShape(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "state.json")
	legacy := `{
		"current_port": 30002,
		"port_range": {"min": 30001, "max": 30010},
		"cookies": {},
		"blocked_ports": [30001],
		"challenge_solved": false,
		"session_start_time": null,
		"last_success_time": null,
		"request_count": 7
	}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	m := New(path, 1, 2, nil)
	snap := m.Snapshot()
	assert.Equal(t, 30002, snap.CurrentPort)
	assert.Equal(t, 30001, snap.PortRangeMin)
	assert.Equal(t, 30010, snap.PortRangeMax)
	assert.Equal(t, []int{30001}, snap.BlockedPorts)
	assert.Equal(t, 7, snap.RequestCount)
}
