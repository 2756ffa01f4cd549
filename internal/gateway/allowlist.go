// Package gateway implements the browser-to-backend token bridge: the proxy
// that converts a session credential into a one-shot service token and
// forwards allow-listed calls to the scanner backend.
package gateway

import "strings"

// AllowList bounds which backend path prefixes the bridge may forward to.
// Without it the proxy is an open relay into the backend.
type AllowList []string

// DefaultAllowList matches the backend resources the dashboard uses.
var DefaultAllowList = AllowList{"users/", "scanner/", "stats/"}

// Allows reports whether path starts with one of the allowed prefixes.
// Pure prefix comparison: no wildcards, no patterns, evaluated before any
// signing or network work. Leading slashes are rejected rather than
// normalized so "/users/x" and "users/../x" never sneak past.
func (a AllowList) Allows(path string) bool {
	if path == "" || strings.HasPrefix(path, "/") {
		return false
	}
	if strings.Contains(path, "..") {
		return false
	}
	for _, prefix := range a {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
