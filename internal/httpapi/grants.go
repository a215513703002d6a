package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hkdb/nolas-go/internal/folderutil"
	"github.com/hkdb/nolas-go/internal/models"
)

// resolveAccount looks up the Account named by the grant_id path param and
// confirms it belongs to the calling App — an Account is never visible
// across Apps, even by a caller that knows its UUID.
func (s *Server) resolveAccount(w http.ResponseWriter, r *http.Request) *models.Account {
	app := appFromContext(r)
	grantID := chi.URLParam(r, "grant_id")

	account, err := s.Accounts.GetByUUID(r.Context(), grantID)
	if err != nil {
		writeError(w, internalError("failed to look up grant"))
		return nil
	}
	if account == nil || account.AppID != app.ID {
		writeError(w, notFound("grant not found"))
		return nil
	}
	return account
}

func (s *Server) handleRevokeGrant(w http.ResponseWriter, r *http.Request) {
	account := s.resolveAccount(w, r)
	if account == nil {
		return
	}
	if account.Status == models.AccountInactive {
		writeError(w, badRequest("invalid grant"))
		return
	}

	if err := s.Authz.RevokeGrant(r.Context(), account.UUID); err != nil {
		writeError(w, internalError("failed to revoke grant"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListFolders(w http.ResponseWriter, r *http.Request) {
	account := s.resolveAccount(w, r)
	if account == nil {
		return
	}

	conn, err := s.Pool.GetConnection(r.Context(), account.UUID, account.ProviderContext.ImapHost)
	if err != nil {
		writeError(w, providerError("failed to connect to imap server"))
		return
	}
	folders := folderutil.ListFolders(r.Context(), conn.Client())
	s.Pool.Release(conn)

	writeJSON(w, http.StatusOK, map[string][]string{"folders": folders})
}
