// Package session owns the durable egress-identity state: which proxy port is
// active, which ports the target has blocked, and whether the cookie set from
// the last challenge solve is still usable. Every mutation persists
// synchronously so a crash never loses a rotation decision.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Freshness returns how long a solved cookie set stays valid.
const Freshness = 2 * time.Hour

// Manager serializes access to the session state and persists it to disk.
type Manager struct {
	mu     sync.Mutex
	path   string
	state  State
	logger *zap.Logger
	now    func() time.Time
}

// New loads existing state from path or initializes a fresh pool over
// [rangeStart, rangeEnd].
func New(path string, rangeStart, rangeEnd int, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		path:   path,
		logger: logger,
		now:    time.Now,
	}
	m.state = m.load(rangeStart, rangeEnd)
	return m
}

func (m *Manager) load(rangeStart, rangeEnd int) State {
	data, err := os.ReadFile(m.path)
	if err == nil {
		var s State
		if jsonErr := json.Unmarshal(data, &s); jsonErr == nil && s.CurrentPort != 0 {
			m.logger.Debug("loaded session state", zap.String("path", m.path))
			return s
		} else if jsonErr != nil {
			m.logger.Warn("corrupt session state file, starting fresh",
				zap.String("path", m.path), zap.Error(jsonErr))
		}
	}

	return State{
		CurrentPort:  rangeStart,
		PortRangeMin: rangeStart,
		PortRangeMax: rangeEnd,
		Cookies:      map[string]string{},
		BlockedPorts: []int{},
	}
}

// persist must be called with the lock held.
func (m *Manager) persist() {
	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		m.logger.Error("marshal session state", zap.Error(err))
		return
	}
	if err := os.WriteFile(m.path, data, 0o644); err != nil {
		m.logger.Error("save session state", zap.String("path", m.path), zap.Error(err))
	}
}

// CurrentPort returns the active egress port.
func (m *Manager) CurrentPort() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.CurrentPort
}

// Rotate scans upward from the current port for the next unblocked one.
// On success the new identity starts unauthenticated: cookies, the solved
// flag, and the session start time are cleared and the state is persisted.
// Returns false when the pool is exhausted; the pool never wraps.
func (m *Manager) Rotate() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	blocked := make(map[int]struct{}, len(m.state.BlockedPorts))
	for _, p := range m.state.BlockedPorts {
		blocked[p] = struct{}{}
	}

	for port := m.state.CurrentPort + 1; port <= m.state.PortRangeMax; port++ {
		if _, isBlocked := blocked[port]; isBlocked {
			continue
		}
		m.state.CurrentPort = port
		m.state.Cookies = map[string]string{}
		m.state.ChallengeSolved = false
		m.state.SessionStartTime = time.Time{}
		m.persist()
		m.logger.Info("rotated egress port", zap.Int("port", port))
		return true
	}

	m.logger.Error("no more ports available in range",
		zap.Int("range_max", m.state.PortRangeMax))
	return false
}

// MarkBlocked adds ports to the blacklist (default: the current port).
// Idempotent; persists.
func (m *Manager) MarkBlocked(ports ...int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(ports) == 0 {
		ports = []int{m.state.CurrentPort}
	}
	changed := false
	for _, port := range ports {
		if m.blockedLocked(port) {
			continue
		}
		m.state.BlockedPorts = append(m.state.BlockedPorts, port)
		m.logger.Warn("marked port blocked", zap.Int("port", port))
		changed = true
	}
	if changed {
		m.persist()
	}
}

func (m *Manager) blockedLocked(port int) bool {
	for _, p := range m.state.BlockedPorts {
		if p == port {
			return true
		}
	}
	return false
}

// SetCookies records cookies captured from a successful challenge solve and
// marks the session solved as of now.
func (m *Manager) SetCookies(cookies map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Cookies = make(map[string]string, len(cookies))
	for name, value := range cookies {
		m.state.Cookies[name] = value
	}
	m.state.ChallengeSolved = true
	now := m.now()
	m.state.SessionStartTime = now
	m.state.LastSuccessTime = now
	m.persist()
	m.logger.Info("saved session cookies", zap.Int("count", len(cookies)))
}

// Cookies returns a copy of the current cookie set.
func (m *Manager) Cookies() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]string, len(m.state.Cookies))
	for name, value := range m.state.Cookies {
		out[name] = value
	}
	return out
}

// IsValid reports whether the current session can be reused: challenge
// solved, cookies present, and younger than the freshness window.
func (m *Manager) IsValid() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.ChallengeSolved || len(m.state.Cookies) == 0 {
		return false
	}
	if m.state.SessionStartTime.IsZero() {
		return false
	}
	if m.now().Sub(m.state.SessionStartTime) > Freshness {
		m.logger.Debug("session expired due to age")
		return false
	}
	return true
}

// IncrementRequestCount bumps the advisory request counter and persists.
func (m *Manager) IncrementRequestCount() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.RequestCount++
	m.state.LastSuccessTime = m.now()
	m.persist()
}

// Reset clears the authenticated portion of the session, keeping the
// identity and the blacklist.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.state.Cookies = map[string]string{}
	m.state.ChallengeSolved = false
	m.state.SessionStartTime = time.Time{}
	m.persist()
	m.logger.Info("session reset")
}

// Snapshot returns a copy of the full state for reporting.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.state
	s.Cookies = make(map[string]string, len(m.state.Cookies))
	for name, value := range m.state.Cookies {
		s.Cookies[name] = value
	}
	s.BlockedPorts = append([]int(nil), m.state.BlockedPorts...)
	return s
}

// String describes the pool for operator-facing errors.
func (m *Manager) String() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fmt.Sprintf("port %d of [%d,%d], %d blocked",
		m.state.CurrentPort, m.state.PortRangeMin, m.state.PortRangeMax,
		len(m.state.BlockedPorts))
}
