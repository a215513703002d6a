package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hkdb/nolas-go/internal/models"
)

type fakeAppRepo struct {
	byKey map[string]*models.App
}

func (f *fakeAppRepo) Create(ctx context.Context, app *models.App) error { return nil }
func (f *fakeAppRepo) GetByID(ctx context.Context, id int64) (*models.App, error) { return nil, nil }
func (f *fakeAppRepo) GetByUUID(ctx context.Context, uuid string) (*models.App, error) { return nil, nil }
func (f *fakeAppRepo) GetByAPIKey(ctx context.Context, apiKey string) (*models.App, error) {
	return f.byKey[apiKey], nil
}

func TestAuthMiddlewareRejectsMissingHeader(t *testing.T) {
	apps := &fakeAppRepo{byKey: map[string]*models.App{}}
	handler := authMiddleware(apps)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestAuthMiddlewareRejectsUnknownKey(t *testing.T) {
	apps := &fakeAppRepo{byKey: map[string]*models.App{}}
	handler := authMiddleware(apps)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestAuthMiddlewarePassesValidKey(t *testing.T) {
	app := &models.App{ID: 1, APIKey: "secret"}
	apps := &fakeAppRepo{byKey: map[string]*models.App{"secret": app}}

	var sawApp *models.App
	handler := authMiddleware(apps)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawApp = appFromContext(r)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if sawApp == nil || sawApp.ID != 1 {
		t.Errorf("expected app injected into context, got %v", sawApp)
	}
}

func TestHealthEndpointNeedsNoAuth(t *testing.T) {
	s := &Server{Apps: &fakeAppRepo{byKey: map[string]*models.App{}}}
	router := NewRouter(s)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}
