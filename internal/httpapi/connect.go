package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/hkdb/nolas-go/internal/authz"
)

type connectProcessRequest struct {
	ClientID    string `json:"client_id"`
	RedirectURI string `json:"redirect_uri"`
	State       string `json:"state"`
	Scope       string `json:"scope"`

	Email    string `json:"email"`
	Password string `json:"password"`
	ImapHost string `json:"imap_host"`
	ImapPort int    `json:"imap_port"`
	SmtpHost string `json:"smtp_host"`
	SmtpPort int    `json:"smtp_port"`
}

type connectProcessResponse struct {
	AuthorizationRequestID int64  `json:"authorization_request_id"`
	Code                   string `json:"code"`
}

// handleConnectProcess combines BeginAuthorization and ProcessCredentials
// into a single call: the HTML authorization form that would normally call
// BeginAuthorization on its own is an explicitly out-of-scope collaborator
// (see SPEC_FULL.md §6), so this is the only entry point that creates the
// pending request, mirroring the original controller's single
// process_authorization operation.
func (s *Server) handleConnectProcess(w http.ResponseWriter, r *http.Request) {
	app := appFromContext(r)

	var req connectProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, badRequest("malformed request body"))
		return
	}
	if req.ClientID == "" || req.RedirectURI == "" || req.Email == "" || req.Password == "" {
		writeError(w, badRequest("client_id, redirect_uri, email, and password are required"))
		return
	}

	authzReq, err := s.Authz.BeginAuthorization(r.Context(), app, req.ClientID, req.RedirectURI, req.State, req.Scope)
	if err != nil {
		writeError(w, internalError("failed to begin authorization"))
		return
	}

	creds := authz.Credentials{
		Email:    req.Email,
		Password: req.Password,
		ImapHost: req.ImapHost,
		ImapPort: req.ImapPort,
		SmtpHost: req.SmtpHost,
		SmtpPort: req.SmtpPort,
	}

	code, err := s.Authz.ProcessCredentials(r.Context(), authzReq.ID, app, creds)
	if err != nil {
		writeError(w, providerError(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, connectProcessResponse{AuthorizationRequestID: authzReq.ID, Code: code})
}

type connectTokenRequest struct {
	GrantType   string `json:"grant_type"`
	Code        string `json:"code"`
	RedirectURI string `json:"redirect_uri"`
	ClientID    string `json:"client_id"`
}

type connectTokenResponse struct {
	RequestID int64  `json:"request_id"`
	GrantID   string `json:"grant_id"`
}

func (s *Server) handleConnectToken(w http.ResponseWriter, r *http.Request) {
	app := appFromContext(r)

	var req connectTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, badRequest("malformed request body"))
		return
	}

	result, err := s.Authz.ExchangeToken(r.Context(), app, req.GrantType, req.Code, req.RedirectURI, req.ClientID)
	switch err {
	case nil:
		writeJSON(w, http.StatusOK, connectTokenResponse{RequestID: result.RequestID, GrantID: result.GrantID})
	case authz.ErrUnsupportedGrant:
		writeError(w, badRequest(err.Error()))
	case authz.ErrNotFound:
		writeError(w, notFound(err.Error()))
	case authz.ErrExpired, authz.ErrGrantMismatch:
		writeError(w, badRequest(err.Error()))
	default:
		writeError(w, internalError("failed to exchange token"))
	}
}
