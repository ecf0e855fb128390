package handlers

import "strings"

// extractTokenFromCookie extracts a named cookie value from the "Cookie"
// header, or returns empty if not found.
func extractTokenFromCookie(cookieHeader string) string {
	parts := strings.Split(cookieHeader, "auth_token=")
	if len(parts) < 2 {
		return ""
	}
	token := parts[1]
	if idx := strings.Index(token, ";"); idx != -1 {
		token = token[:idx]
	}
	return token
}
