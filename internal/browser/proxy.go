package browser

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ProxyCredentials describes how to authenticate against the upstream proxy
// pool. For username-routed pools the session token is appended to the
// username so the provider pins or rotates the exit address.
type ProxyCredentials struct {
	Server   string
	Username string
	Password string

	// SessionType is one of "const", "sticky", or "rotate".
	SessionType string

	// SessionIDLength sizes the sticky-session token; providers cap it.
	SessionIDLength int
}

// sessionUsername builds the proxy username for the configured session type.
// "const" uses the bare username, "rotate" asks the pool for a fresh exit on
// every connection, and "sticky" pins the given token until the next
// rotation.
func (p ProxyCredentials) sessionUsername(token string) string {
	switch strings.ToLower(p.SessionType) {
	case "rotate":
		return p.Username + "-session-rotate"
	case "sticky":
		return fmt.Sprintf("%s-session-%s", p.Username, token)
	default:
		return p.Username
	}
}

// newSessionToken mints the identifier a sticky proxy session is keyed on.
func newSessionToken(length int) string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	if length <= 0 || length > len(token) {
		length = 16
	}
	return token[:length]
}
