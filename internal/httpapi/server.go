// Package httpapi exposes the minimal chi-routed HTTP surface that drives
// the authorization, message-read, and send components end to end, with
// the same bearer-API-key auth model and error envelope as the full
// specification's out-of-scope /v3 surface.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hkdb/nolas-go/internal/authz"
	"github.com/hkdb/nolas-go/internal/connpool"
	"github.com/hkdb/nolas-go/internal/messagectl"
	"github.com/hkdb/nolas-go/internal/repo"
	"github.com/hkdb/nolas-go/internal/smtpsender"
)

// Server bundles every collaborator the routed handlers call into.
type Server struct {
	Apps     repo.AppRepo
	Accounts repo.AccountRepo
	Emails   repo.EmailRepo
	Pool     *connpool.Pool

	Authz    *authz.Controller
	Messages *messagectl.Controller
	Sender   *smtpsender.Sender
}

// NewRouter builds the chi router: request logging and panic recovery
// unconditionally (grounded on messie-messenger's main.go), bearer-API-key
// auth on every route except /health.
func NewRouter(s *Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", s.handleHealth)

	r.Route("/v3", func(r chi.Router) {
		r.Use(authMiddleware(s.Apps))

		r.Post("/connect/process", s.handleConnectProcess)
		r.Post("/connect/token", s.handleConnectToken)

		r.Route("/grants/{grant_id}", func(r chi.Router) {
			r.Delete("/", s.handleRevokeGrant)
			r.Get("/messages", s.handleListMessages)
			r.Get("/messages/{message_id}", s.handleGetMessage)
			r.Post("/messages/send", s.handleSendMessage)
			r.Get("/attachments/{attachment_id}/download", s.handleDownloadAttachment)
			r.Get("/folders", s.handleListFolders)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
