package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hkdb/nolas-go/internal/models"
)

type fakeWebhookLogRepo struct {
	created []*models.WebhookLog
}

func (f *fakeWebhookLogRepo) Create(ctx context.Context, log *models.WebhookLog) error {
	log.ID = int64(len(f.created) + 1)
	f.created = append(f.created, log)
	return nil
}

func (f *fakeWebhookLogRepo) ListByAccount(ctx context.Context, accountID int64, limit int) ([]models.WebhookLog, error) {
	return nil, nil
}

func TestDeliverSucceedsOnFirstAttempt(t *testing.T) {
	var gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("x-nylas-signature")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	logs := &fakeWebhookLogRepo{}
	d := New(Config{MaxRetries: 3, BaseDelay: time.Millisecond, Timeout: time.Second}, logs)

	app := &models.App{ID: 1, UUID: "app-uuid", WebhookURL: srv.URL, WebhookSecret: "s3cr3t"}
	msg := &models.CanonicalMessage{MessageID: "abc"}

	if err := d.Deliver(context.Background(), app, 1, "INBOX", 42, msg); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if gotSig == "" {
		t.Error("expected signature header to be set")
	}
	if len(logs.created) != 1 {
		t.Fatalf("expected 1 log row, got %d", len(logs.created))
	}
	if logs.created[0].DeliveredAt == nil {
		t.Error("expected DeliveredAt to be set on 2xx")
	}
}

func TestDeliverStopsOn4xxWithoutRetry(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	logs := &fakeWebhookLogRepo{}
	d := New(Config{MaxRetries: 3, BaseDelay: time.Millisecond, Timeout: time.Second}, logs)
	app := &models.App{ID: 1, UUID: "app-uuid", WebhookURL: srv.URL}

	if err := d.Deliver(context.Background(), app, 1, "INBOX", 1, &models.CanonicalMessage{}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected exactly 1 attempt on 4xx, got %d", attempts)
	}
}

func TestDeliverRetriesOn5xxThenSucceeds(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	logs := &fakeWebhookLogRepo{}
	d := New(Config{MaxRetries: 3, BaseDelay: time.Millisecond, Timeout: time.Second}, logs)
	app := &models.App{ID: 1, UUID: "app-uuid", WebhookURL: srv.URL}

	if err := d.Deliver(context.Background(), app, 1, "INBOX", 7, &models.CanonicalMessage{}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
	if len(logs.created) != 2 {
		t.Fatalf("expected 2 log rows, got %d", len(logs.created))
	}
}

func TestDeliverSkipsWhenNoWebhookURL(t *testing.T) {
	logs := &fakeWebhookLogRepo{}
	d := New(DefaultConfig(), logs)
	app := &models.App{ID: 1, UUID: "app-uuid"}

	if err := d.Deliver(context.Background(), app, 1, "INBOX", 1, &models.CanonicalMessage{}); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if len(logs.created) != 0 {
		t.Errorf("expected no log rows when webhook url is empty, got %d", len(logs.created))
	}
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	body := []byte(`{"hello":"world"}`)
	sig := sign("secret", body)
	if !Verify("secret", body, sig) {
		t.Error("expected signature to verify")
	}
	if Verify("wrong-secret", body, sig) {
		t.Error("expected signature verification to fail with wrong secret")
	}
}
