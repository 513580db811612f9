package utils

import "strings"

// ExtractTokenFromHeader returns the token of a "Bearer <token>" header, or
// "" when the header has any other shape.
func ExtractTokenFromHeader(authHeader string) string {
	if authHeader == "" {
		return ""
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}

	return parts[1]
}
