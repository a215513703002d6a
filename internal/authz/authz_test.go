package authz

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/hkdb/nolas-go/internal/models"
)

type fakeRequestRepo struct {
	byID   map[int64]*models.AuthorizationRequest
	byCode map[string]*models.AuthorizationRequest
	nextID int64
}

func newFakeRequestRepo() *fakeRequestRepo {
	return &fakeRequestRepo{byID: map[int64]*models.AuthorizationRequest{}, byCode: map[string]*models.AuthorizationRequest{}}
}

func (f *fakeRequestRepo) Create(ctx context.Context, req *models.AuthorizationRequest) error {
	f.nextID++
	req.ID = f.nextID
	req.CreatedAt = time.Now()
	cp := *req
	f.byID[req.ID] = &cp
	return nil
}

func (f *fakeRequestRepo) GetByCode(ctx context.Context, code string) (*models.AuthorizationRequest, error) {
	req, ok := f.byCode[code]
	if !ok {
		return nil, nil
	}
	cp := *req
	return &cp, nil
}

func (f *fakeRequestRepo) MarkAuthorized(ctx context.Context, id, accountID int64, code string) error {
	req := f.byID[id]
	req.Status = models.AuthorizationAuthorized
	req.AccountID = &accountID
	req.Code = code
	f.byCode[code] = req
	return nil
}

func (f *fakeRequestRepo) MarkCodeUsed(ctx context.Context, id int64) error {
	f.byID[id].CodeUsed = true
	return nil
}

type fakeAccountRepo struct {
	byID           map[int64]*models.Account
	byAppAndEmail  map[string]*models.Account
	nextID         int64
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{byID: map[int64]*models.Account{}, byAppAndEmail: map[string]*models.Account{}}
}

func (f *fakeAccountRepo) key(appID int64, email string) string {
	return fmt.Sprintf("%d/%s", appID, email)
}

func (f *fakeAccountRepo) Create(ctx context.Context, a *models.Account) error {
	f.nextID++
	a.ID = f.nextID
	cp := *a
	f.byID[a.ID] = &cp
	f.byAppAndEmail[f.key(a.AppID, a.Email)] = &cp
	return nil
}

func (f *fakeAccountRepo) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	a, ok := f.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAccountRepo) GetByUUID(ctx context.Context, uuid string) (*models.Account, error) {
	for _, a := range f.byID {
		if a.UUID == uuid {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeAccountRepo) GetByAppAndEmail(ctx context.Context, appID int64, email string) (*models.Account, error) {
	a, ok := f.byAppAndEmail[f.key(appID, email)]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAccountRepo) ListActive(ctx context.Context) ([]models.Account, error) { return nil, nil }

func (f *fakeAccountRepo) UpdateStatus(ctx context.Context, id int64, status models.AccountStatus) error {
	f.byID[id].Status = status
	return nil
}

func (f *fakeAccountRepo) UpdateCredentials(ctx context.Context, id int64, encryptedCreds []byte, providerCtx models.ProviderContext) error {
	f.byID[id].EncryptedCreds = encryptedCreds
	f.byID[id].ProviderContext = providerCtx
	return nil
}

type fakeUidTrackingRepo struct {
	deletedFor []int64
}

func (f *fakeUidTrackingRepo) Get(ctx context.Context, accountID int64, folder string) (*models.UidTracking, error) {
	return nil, nil
}
func (f *fakeUidTrackingRepo) Advance(ctx context.Context, accountID int64, folder string, uid uint32) error {
	return nil
}
func (f *fakeUidTrackingRepo) DeleteByAccount(ctx context.Context, accountID int64) error {
	f.deletedFor = append(f.deletedFor, accountID)
	return nil
}

func seedAuthorizedRequest(t *testing.T, requests *fakeRequestRepo, accounts *fakeAccountRepo) (*models.AuthorizationRequest, string) {
	t.Helper()
	ctx := context.Background()

	account := &models.Account{AppID: 1, UUID: "grant-uuid", Email: "user@example.com", Status: models.AccountPending}
	if err := accounts.Create(ctx, account); err != nil {
		t.Fatalf("create account: %v", err)
	}

	req := &models.AuthorizationRequest{
		AppID:       1,
		ClientID:    "client-1",
		RedirectURI: "https://app.example.com/callback",
		Status:      models.AuthorizationPending,
		ExpiresAt:   time.Now().Add(10 * time.Minute),
	}
	if err := requests.Create(ctx, req); err != nil {
		t.Fatalf("create request: %v", err)
	}

	code := "one-time-code"
	if err := requests.MarkAuthorized(ctx, req.ID, account.ID, code); err != nil {
		t.Fatalf("mark authorized: %v", err)
	}
	return req, code
}

func TestExchangeTokenActivatesAccount(t *testing.T) {
	requests := newFakeRequestRepo()
	accounts := newFakeAccountRepo()
	uids := &fakeUidTrackingRepo{}
	c := New(requests, accounts, uids, nil)

	req, code := seedAuthorizedRequest(t, requests, accounts)
	app := &models.App{ID: 1}

	result, err := c.ExchangeToken(context.Background(), app, "authorization_code", code, req.RedirectURI, req.ClientID)
	if err != nil {
		t.Fatalf("exchange token: %v", err)
	}
	if result.GrantID != "grant-uuid" {
		t.Errorf("expected grant id grant-uuid, got %q", result.GrantID)
	}

	account, _ := accounts.GetByUUID(context.Background(), "grant-uuid")
	if account.Status != models.AccountActive {
		t.Errorf("expected account active, got %v", account.Status)
	}
}

func TestExchangeTokenRejectsWrongGrantType(t *testing.T) {
	requests := newFakeRequestRepo()
	accounts := newFakeAccountRepo()
	uids := &fakeUidTrackingRepo{}
	c := New(requests, accounts, uids, nil)

	req, code := seedAuthorizedRequest(t, requests, accounts)
	app := &models.App{ID: 1}

	if _, err := c.ExchangeToken(context.Background(), app, "client_credentials", code, req.RedirectURI, req.ClientID); err != ErrUnsupportedGrant {
		t.Errorf("expected ErrUnsupportedGrant, got %v", err)
	}
}

func TestExchangeTokenRejectsMismatchedRedirect(t *testing.T) {
	requests := newFakeRequestRepo()
	accounts := newFakeAccountRepo()
	uids := &fakeUidTrackingRepo{}
	c := New(requests, accounts, uids, nil)

	req, code := seedAuthorizedRequest(t, requests, accounts)
	app := &models.App{ID: 1}

	if _, err := c.ExchangeToken(context.Background(), app, "authorization_code", code, "https://evil.example.com", req.ClientID); err != ErrExpired {
		t.Errorf("expected ErrExpired (invalid redirect), got %v", err)
	}
}

func TestExchangeTokenRejectsUnknownCode(t *testing.T) {
	requests := newFakeRequestRepo()
	accounts := newFakeAccountRepo()
	uids := &fakeUidTrackingRepo{}
	c := New(requests, accounts, uids, nil)
	app := &models.App{ID: 1}

	if _, err := c.ExchangeToken(context.Background(), app, "authorization_code", "no-such-code", "https://x", "client"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestExchangeTokenRejectsOtherAppsCode(t *testing.T) {
	requests := newFakeRequestRepo()
	accounts := newFakeAccountRepo()
	uids := &fakeUidTrackingRepo{}
	c := New(requests, accounts, uids, nil)

	req, code := seedAuthorizedRequest(t, requests, accounts)
	otherApp := &models.App{ID: 2}

	if _, err := c.ExchangeToken(context.Background(), otherApp, "authorization_code", code, req.RedirectURI, req.ClientID); err != ErrGrantMismatch {
		t.Errorf("expected ErrGrantMismatch for a code minted under a different app, got %v", err)
	}
}

func TestRevokeGrantDeactivatesAndClearsWatermark(t *testing.T) {
	requests := newFakeRequestRepo()
	accounts := newFakeAccountRepo()
	uids := &fakeUidTrackingRepo{}
	c := New(requests, accounts, uids, nil)

	account := &models.Account{AppID: 1, UUID: "grant-to-revoke", Status: models.AccountActive}
	if err := accounts.Create(context.Background(), account); err != nil {
		t.Fatalf("create account: %v", err)
	}

	if err := c.RevokeGrant(context.Background(), "grant-to-revoke"); err != nil {
		t.Fatalf("revoke grant: %v", err)
	}

	got, _ := accounts.GetByUUID(context.Background(), "grant-to-revoke")
	if got.Status != models.AccountInactive {
		t.Errorf("expected inactive, got %v", got.Status)
	}
	if len(uids.deletedFor) != 1 || uids.deletedFor[0] != account.ID {
		t.Errorf("expected uid tracking cleared for account %d, got %v", account.ID, uids.deletedFor)
	}
}

func TestRevokeGrantUnknownGrant(t *testing.T) {
	requests := newFakeRequestRepo()
	accounts := newFakeAccountRepo()
	uids := &fakeUidTrackingRepo{}
	c := New(requests, accounts, uids, nil)

	if err := c.RevokeGrant(context.Background(), "does-not-exist"); err != ErrGrantNotFound {
		t.Errorf("expected ErrGrantNotFound, got %v", err)
	}
}

func TestBeginAuthorizationSetsExpiry(t *testing.T) {
	requests := newFakeRequestRepo()
	accounts := newFakeAccountRepo()
	uids := &fakeUidTrackingRepo{}
	c := New(requests, accounts, uids, nil)

	app := &models.App{ID: 1}
	req, err := c.BeginAuthorization(context.Background(), app, "client-1", "https://app.example.com/cb", "state-1", "")
	if err != nil {
		t.Fatalf("begin authorization: %v", err)
	}
	if req.Status != models.AuthorizationPending {
		t.Errorf("expected pending status, got %v", req.Status)
	}
	if !req.ExpiresAt.After(time.Now().Add(9 * time.Minute)) {
		t.Errorf("expected ~10m expiry, got %v", req.ExpiresAt)
	}
}
