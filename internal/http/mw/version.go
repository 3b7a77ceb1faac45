package mw

import (
	"net/http"

	"github.com/rolewatch/rolewatch-api/internal/version"
)

// APIVersion stamps every response with an X-API-Version header so clients
// can tell which build answered them. The value cannot change while the
// process runs, so it is computed once.
func APIVersion() func(http.Handler) http.Handler {
	short := version.Get().Short()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-API-Version", short)
			next.ServeHTTP(w, r)
		})
	}
}
