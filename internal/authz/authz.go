// Package authz implements the credential-exchange flow that turns a user's
// IMAP/SMTP username and password into an activated Account: begin a
// request, validate reachability of both protocols, mint a one-time code,
// exchange it for a grant, and revoke a grant later.
package authz

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"

	"github.com/hkdb/nolas-go/internal/cryptutil"
	"github.com/hkdb/nolas-go/internal/imapclient"
	"github.com/hkdb/nolas-go/internal/logging"
	"github.com/hkdb/nolas-go/internal/models"
	"github.com/hkdb/nolas-go/internal/repo"
)

// requestTTL is how long a BeginAuthorization request stays exchangeable
// before ExchangeToken must reject it as expired.
const requestTTL = 10 * time.Minute

// validateTimeout bounds each reachability probe against the user-supplied
// IMAP/SMTP host, so a slow or unreachable server cannot hang a request
// indefinitely.
const validateTimeout = 15 * time.Second

var (
	ErrNotFound         = errors.New("authz: authorization request not found")
	ErrExpired          = errors.New("authz: authorization request expired, already used, or redirect_uri/client_id does not match original request")
	ErrGrantMismatch    = errors.New("authz: authorization code was not issued to this app or is not bound to an account")
	ErrUnsupportedGrant = errors.New("authz: unsupported grant_type")
	ErrIMAPUnreachable  = errors.New("authz: unable to authenticate with imap server")
	ErrSMTPUnreachable  = errors.New("authz: unable to authenticate with smtp server")
	ErrGrantNotFound    = errors.New("authz: grant not found")
)

// Controller exchanges user-submitted credentials for an activated Account,
// grounded on the original authorization controller's validate-then-mint
// shape.
type Controller struct {
	requests repo.AuthorizationRequestRepo
	accounts repo.AccountRepo
	uids     repo.UidTrackingRepo
	cipher   *cryptutil.Cipher
}

// New returns a Controller wired to its repositories and the process-wide
// credential cipher.
func New(requests repo.AuthorizationRequestRepo, accounts repo.AccountRepo, uids repo.UidTrackingRepo, cipher *cryptutil.Cipher) *Controller {
	return &Controller{requests: requests, accounts: accounts, uids: uids, cipher: cipher}
}

// BeginAuthorization creates a pending AuthorizationRequest, expiring 10
// minutes from now.
func (c *Controller) BeginAuthorization(ctx context.Context, app *models.App, clientID, redirectURI, state, scope string) (*models.AuthorizationRequest, error) {
	req := &models.AuthorizationRequest{
		AppID:       app.ID,
		ClientID:    clientID,
		RedirectURI: redirectURI,
		State:       state,
		Scope:       scope,
		Status:      models.AuthorizationPending,
		ExpiresAt:   time.Now().Add(requestTTL),
	}
	if err := c.requests.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("authz: begin authorization: %w", err)
	}
	return req, nil
}

// Credentials is the user-submitted IMAP/SMTP login the request is
// validated and stored against.
type Credentials struct {
	Email    string
	Password string
	ImapHost string
	ImapPort int
	SmtpHost string
	SmtpPort int
}

// ProcessCredentials validates reachability of both the IMAP and SMTP
// servers with the given credentials, then creates or updates the bound
// Account and mints a one-time authorization code.
//
// Unlike the original controller (which looks the account up by email
// alone), accounts here are scoped per-App: a returning user reauthorizing
// under a different App gets a distinct Account row, matching this
// module's (app_id, email) uniqueness constraint.
func (c *Controller) ProcessCredentials(ctx context.Context, reqID int64, app *models.App, creds Credentials) (string, error) {
	if err := c.testIMAP(ctx, creds); err != nil {
		return "", fmt.Errorf("%w: %v", ErrIMAPUnreachable, err)
	}
	if err := c.testSMTP(ctx, creds); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSMTPUnreachable, err)
	}

	encrypted, err := c.cipher.Encrypt(cryptutil.Credentials{Username: creds.Email, Password: creds.Password})
	if err != nil {
		return "", fmt.Errorf("authz: encrypt credentials: %w", err)
	}
	providerCtx := models.ProviderContext{
		ImapHost: creds.ImapHost,
		ImapPort: creds.ImapPort,
		SmtpHost: creds.SmtpHost,
		SmtpPort: creds.SmtpPort,
	}

	account, err := c.accounts.GetByAppAndEmail(ctx, app.ID, creds.Email)
	if err != nil {
		return "", fmt.Errorf("authz: look up existing account: %w", err)
	}
	if account == nil {
		account = &models.Account{
			AppID:           app.ID,
			UUID:            uuid.New().String(),
			Email:           creds.Email,
			Provider:        "imap",
			EncryptedCreds:  encrypted,
			ProviderContext: providerCtx,
			Status:          models.AccountPending,
		}
		if err := c.accounts.Create(ctx, account); err != nil {
			return "", fmt.Errorf("authz: create account: %w", err)
		}
	} else {
		if err := c.accounts.UpdateCredentials(ctx, account.ID, encrypted, providerCtx); err != nil {
			return "", fmt.Errorf("authz: update account credentials: %w", err)
		}
		// A previously-active account stays active through re-auth; any
		// other status resets to pending until the code is exchanged.
		if account.Status != models.AccountActive {
			if err := c.accounts.UpdateStatus(ctx, account.ID, models.AccountPending); err != nil {
				return "", fmt.Errorf("authz: reset account status: %w", err)
			}
		}
	}

	code := uuid.New().String()
	if err := c.requests.MarkAuthorized(ctx, reqID, account.ID, code); err != nil {
		return "", fmt.Errorf("authz: mark request authorized: %w", err)
	}

	logging.WithComponent("authz").Info().Str("account", account.UUID).Msg("credentials validated, code minted")
	return code, nil
}

// ExchangeTokenResult is returned by ExchangeToken on success.
type ExchangeTokenResult struct {
	RequestID int64
	GrantID   string // the activated Account's UUID
}

// ExchangeToken redeems a one-time code for an activated grant. The code
// may be exchanged exactly once, before its request expires, and only by
// the app/client_id/redirect_uri that began the request. app is the
// bearer-resolved caller: a code minted under one App's credentials must
// never be redeemable by another App simply by replaying its client_id and
// redirect_uri, so this is checked independently of AuthorizationRequest.Valid.
func (c *Controller) ExchangeToken(ctx context.Context, app *models.App, grantType, code, redirectURI, clientID string) (*ExchangeTokenResult, error) {
	if grantType != "authorization_code" {
		return nil, ErrUnsupportedGrant
	}

	req, err := c.requests.GetByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("authz: look up authorization request: %w", err)
	}
	if req == nil {
		return nil, ErrNotFound
	}
	if req.AppID != app.ID {
		return nil, ErrGrantMismatch
	}
	if !req.Valid(clientID, redirectURI, time.Now()) {
		return nil, ErrExpired
	}
	if req.AccountID == nil {
		return nil, ErrGrantMismatch
	}

	if err := c.requests.MarkCodeUsed(ctx, req.ID); err != nil {
		return nil, fmt.Errorf("authz: mark code used: %w", err)
	}
	if err := c.accounts.UpdateStatus(ctx, *req.AccountID, models.AccountActive); err != nil {
		return nil, fmt.Errorf("authz: activate account: %w", err)
	}

	account, err := c.accounts.GetByID(ctx, *req.AccountID)
	if err != nil || account == nil {
		return nil, fmt.Errorf("authz: reload activated account: %w", err)
	}

	return &ExchangeTokenResult{RequestID: req.ID, GrantID: account.UUID}, nil
}

// RevokeGrant deactivates an Account and deletes its ingestion watermark so
// a future reactivation restarts ingestion cleanly.
//
// This does not stop an already-running listener supervisor for the
// account: the worker cluster's account set is fixed for the lifetime of
// the process (see internal/worker), so a supervisor for a revoked account
// keeps running until the next process restart picks up the new ListActive
// result. The supervisor's own webhook dispatch still no-ops meaningfully
// since the account's credentials remain valid for reads; this is a
// documented limitation of the fixed-shard worker model, not an oversight.
func (c *Controller) RevokeGrant(ctx context.Context, grantID string) error {
	account, err := c.accounts.GetByUUID(ctx, grantID)
	if err != nil {
		return fmt.Errorf("authz: look up grant: %w", err)
	}
	if account == nil {
		return ErrGrantNotFound
	}

	if err := c.accounts.UpdateStatus(ctx, account.ID, models.AccountInactive); err != nil {
		return fmt.Errorf("authz: deactivate account: %w", err)
	}
	if err := c.uids.DeleteByAccount(ctx, account.ID); err != nil {
		return fmt.Errorf("authz: clear uid tracking: %w", err)
	}
	return nil
}

// testIMAP opens a short-lived IMAP session (LOGIN only, no SELECT) purely
// to confirm the credentials and host are reachable.
func (c *Controller) testIMAP(ctx context.Context, creds Credentials) error {
	port := creds.ImapPort
	if port == 0 {
		port = 993
	}
	cfg := imapclient.DefaultConfig()
	cfg.Host = creds.ImapHost
	cfg.Port = port
	cfg.Username = creds.Email
	cfg.Password = creds.Password
	cfg.ConnectTimeout = validateTimeout

	client := imapclient.NewClient(cfg)
	done := make(chan error, 1)
	go func() {
		if err := client.Connect(); err != nil {
			done <- err
			return
		}
		done <- client.Login()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		client.Close()
		return err
	}
}

// testSMTP opens a short-lived SMTP session (LOGIN only, no SEND) purely to
// confirm the credentials and host are reachable.
func (c *Controller) testSMTP(ctx context.Context, creds Credentials) error {
	port := creds.SmtpPort
	if port == 0 {
		port = 465
	}
	addr := fmt.Sprintf("%s:%d", creds.SmtpHost, port)

	done := make(chan error, 1)
	go func() {
		client, err := smtp.DialTLS(addr, &tls.Config{ServerName: creds.SmtpHost})
		if err != nil {
			done <- err
			return
		}
		defer client.Close()

		auth := sasl.NewPlainClient("", creds.Email, creds.Password)
		if err := client.Auth(auth); err != nil {
			done <- err
			return
		}
		done <- client.Quit()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
