package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/hkdb/nolas-go/internal/models"
	"github.com/hkdb/nolas-go/internal/repo"
)

type contextKey string

const contextKeyApp contextKey = "app"

// authMiddleware extracts the bearer API key from the Authorization header
// and resolves it to an App, rejecting the request with 401 otherwise.
// Adapted from the JWT bearer-parsing shape of messie-messenger's
// AuthMiddleware, swapped for a direct API-key repo lookup since this
// service's auth model is a single static key per App, not a signed token.
func authMiddleware(apps repo.AppRepo) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				writeError(w, unauthorized("missing Authorization header"))
				return
			}

			apiKey, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || apiKey == "" {
				writeError(w, unauthorized("Authorization header must be 'Bearer <api_key>'"))
				return
			}

			app, err := apps.GetByAPIKey(r.Context(), apiKey)
			if err != nil {
				writeError(w, internalError("failed to validate api key"))
				return
			}
			if app == nil {
				writeError(w, unauthorized("invalid api key"))
				return
			}

			ctx := context.WithValue(r.Context(), contextKeyApp, app)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func appFromContext(r *http.Request) *models.App {
	app, _ := r.Context().Value(contextKeyApp).(*models.App)
	return app
}
