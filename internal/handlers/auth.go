package handlers

import "strings"

// tokenCookie is set by clients that prefer not to carry the token in every
// URL.
const tokenCookie = "termgate_token"

// authRejection is the plain-text frame written on the established socket
// before closing an unauthenticated connection, so the client's terminal
// widget has something to show.
const authRejection = "Invalid token or TERMGATE_TOKEN not set."

// tokenSource is the slice of an upgraded connection credentials are read
// from. *websocket.Conn satisfies it.
type tokenSource interface {
	Headers(key string, defaultValue ...string) string
	Cookies(key string, defaultValue ...string) string
	Query(key string, defaultValue ...string) string
}

// extractToken tries the offered token from various sources: Authorization
// header, then cookie, then query parameter (the form the terminal page
// uses).
func extractToken(src tokenSource) string {
	if authHeader := src.Headers("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
	}

	if cookie := src.Cookies(tokenCookie); cookie != "" {
		return cookie
	}

	if token := src.Query("token"); token != "" {
		return token
	}

	return ""
}
