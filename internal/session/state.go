package session

import (
	"encoding/json"
	"time"
)

// State is the durable session record: the active egress port, the rotation
// pool bounds, the blacklist, and the cookie set captured after a successful
// challenge solve.
type State struct {
	CurrentPort      int
	PortRangeMin     int
	PortRangeMax     int
	Cookies          map[string]string
	SessionStartTime time.Time // zero when no solved session
	RequestCount     int
	BlockedPorts     []int
	LastSuccessTime  time.Time
	ChallengeSolved  bool
}

// legacyRange is the nested {min,max} shape older state files used.
type legacyRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// stateFile is the on-disk representation. Both the flat range fields and the
// legacy nested shape are written so older readers keep working.
type stateFile struct {
	CurrentPort      int               `json:"current_port"`
	PortRangeMin     int               `json:"port_range_min"`
	PortRangeMax     int               `json:"port_range_max"`
	PortRange        *legacyRange      `json:"port_range,omitempty"`
	Cookies          map[string]string `json:"cookies"`
	SessionStartTime *string           `json:"session_start_time"`
	RequestCount     int               `json:"request_count"`
	BlockedPorts     []int             `json:"blocked_ports"`
	LastSuccessTime  *string           `json:"last_success_time"`
	ChallengeSolved  bool              `json:"challenge_solved"`
}

// MarshalJSON writes the dual-shape record.
func (s State) MarshalJSON() ([]byte, error) {
	f := stateFile{
		CurrentPort:      s.CurrentPort,
		PortRangeMin:     s.PortRangeMin,
		PortRangeMax:     s.PortRangeMax,
		PortRange:        &legacyRange{Min: s.PortRangeMin, Max: s.PortRangeMax},
		Cookies:          s.Cookies,
		RequestCount:     s.RequestCount,
		BlockedPorts:     s.BlockedPorts,
		ChallengeSolved:  s.ChallengeSolved,
		SessionStartTime: formatTime(s.SessionStartTime),
		LastSuccessTime:  formatTime(s.LastSuccessTime),
	}
	if f.Cookies == nil {
		f.Cookies = map[string]string{}
	}
	if f.BlockedPorts == nil {
		f.BlockedPorts = []int{}
	}
	return json.Marshal(f)
}

// UnmarshalJSON accepts both the flat range fields and the legacy nested
// shape, preferring the flat fields when present.
func (s *State) UnmarshalJSON(data []byte) error {
	var f stateFile
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}

	min, max := f.PortRangeMin, f.PortRangeMax
	if min == 0 && max == 0 && f.PortRange != nil {
		min, max = f.PortRange.Min, f.PortRange.Max
	}

	*s = State{
		CurrentPort:      f.CurrentPort,
		PortRangeMin:     min,
		PortRangeMax:     max,
		Cookies:          f.Cookies,
		RequestCount:     f.RequestCount,
		BlockedPorts:     f.BlockedPorts,
		ChallengeSolved:  f.ChallengeSolved,
		SessionStartTime: parseTime(f.SessionStartTime),
		LastSuccessTime:  parseTime(f.LastSuccessTime),
	}
	if s.Cookies == nil {
		s.Cookies = map[string]string{}
	}
	return nil
}

func formatTime(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	v := t.Format(time.RFC3339)
	return &v
}

func parseTime(v *string) time.Time {
	if v == nil || *v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, *v)
	if err != nil {
		return time.Time{}
	}
	return t
}
