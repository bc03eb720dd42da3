package middleware

import (
	"net/http"
	"strings"
)

// publicPaths are reachable without a login.
var publicPaths = map[string]bool{
	"/login":      true,
	"/auth/login": true,
	"/ws":         true,
}

// AuthMiddleware requires the 'authenticated=true' cookie on every request
// except the login endpoints and the subscriber WebSocket. Browsers without
// the cookie are redirected to /login.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if publicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie("authenticated")
		if err != nil || cookie.Value != "true" {
			// API and AJAX callers get a status code instead of a redirect
			if strings.HasPrefix(r.URL.Path, "/api/") ||
				r.Header.Get("X-Requested-With") == "XMLHttpRequest" ||
				r.Header.Get("Content-Type") == "application/json" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}
