package parse

import "strings"

// IsOnlineFlag reports whether an upstream status value means online.
// Unrecognized values are treated as offline.
func IsOnlineFlag(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "online", "on", "up", "1", "true", "alive":
		return true
	}
	return false
}
