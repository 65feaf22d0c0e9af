package middleware

import (
	"net/http"
	"strings"

	"github.com/rs/cors"
	"go.uber.org/zap"
)

// APIPrefix is the path prefix of the JSON endpoints.
const APIPrefix = "/api/"

// APICORS returns middleware that answers cross-origin requests to /api/
// for the given origins. Pages are never exposed cross-origin. With no
// origins configured the middleware is a pass-through.
func APICORS(origins []string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(origins) == 0 {
			return next
		}
		if logger != nil {
			logger.Info("CORS enabled for API", zap.Strings("origins", origins))
		}
		c := cors.New(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{http.MethodGet, http.MethodOptions},
			AllowedHeaders:   []string{"Content-Type", "Authorization"},
			AllowCredentials: true,
			MaxAge:           600,
		})
		api := c.Handler(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, APIPrefix) {
				api.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
