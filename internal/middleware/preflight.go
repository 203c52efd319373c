package middleware

import "net/http"

// Preflight answers every OPTIONS request with 200 and an empty body. It runs
// after the CORS handler, which has already set the Access-Control headers.
func Preflight() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// MethodNotAllowed is the JSON 405 handler for the router.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSONError(w, http.StatusMethodNotAllowed, "method "+r.Method+" not allowed", "method_not_allowed")
}

// NotFound is the JSON 404 handler for the router.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeJSONError(w, http.StatusNotFound, "route not found", "not_found")
}
