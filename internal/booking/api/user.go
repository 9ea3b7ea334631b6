package api

import (
	"net/http"

	"buzz/internal/auth"
)

// userIDFromContext prefers the OIDC middleware's verified subject and falls
// back to parsing the bearer token directly when auth is disabled locally.
func userIDFromContext(r *http.Request) string {
	if uid := auth.UserID(r.Context()); uid != "" {
		return uid
	}
	token, err := auth.ExtractTokenFromRequest(r)
	if err != nil {
		return ""
	}
	uid, err := auth.ExtractUserIDFromJWT(token)
	if err != nil {
		return ""
	}
	return uid
}
