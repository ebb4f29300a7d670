package httpadapter

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// requireAPIKey guards mutating routes. An empty key disables the check.
func (rt *Router) requireAPIKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if rt.cfg.APIKey == "" || isAuthorizedBearerHeader(r.Header.Get("Authorization"), rt.cfg.APIKey) {
			next(w, r)
			return
		}
		rt.reject("unauthorized")
		w.Header().Set("WWW-Authenticate", `Bearer realm="thesis-analysis"`)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	}
}

func isAuthorizedBearerHeader(headerValue, expectedToken string) bool {
	headerValue = strings.TrimSpace(headerValue)
	if headerValue == "" || expectedToken == "" {
		return false
	}
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(headerValue, bearerPrefix) {
		return false
	}
	token := strings.TrimSpace(strings.TrimPrefix(headerValue, bearerPrefix))
	return subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) == 1
}
