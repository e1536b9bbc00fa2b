package httputil

import (
	"net/http"
	"strings"
)

// AccessTokenCookie is the cookie browser clients carry the bearer token in.
const AccessTokenCookie = "access_token"

// BearerToken extracts the access token from the Authorization header,
// falling back to the access token cookie for web clients.
func BearerToken(r *http.Request) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") && token != "" {
			return strings.TrimSpace(token), true
		}
	}

	cookie, err := r.Cookie(AccessTokenCookie)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}
