// Package webhook builds, signs, and delivers the event envelope for newly
// ingested messages, with bounded retry and durable per-attempt logging.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hkdb/nolas-go/internal/logging"
	"github.com/hkdb/nolas-go/internal/models"
	"github.com/hkdb/nolas-go/internal/repo"
)

// maxConcurrentDeliveries bounds the process-wide number of in-flight
// webhook POSTs, matching the teacher's folderStatusWorkers semaphore idiom.
const maxConcurrentDeliveries = 10

// Config tunes the retry policy.
type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
	Timeout    time.Duration
}

// DefaultConfig returns the spec's default retry policy: 3 attempts with
// 1s then 2s backoff between them, 10s per-request timeout.
func DefaultConfig() Config {
	return Config{MaxRetries: 3, BaseDelay: time.Second, Timeout: 10 * time.Second}
}

// Envelope is the JSON body POSTed to an App's webhook URL.
type Envelope struct {
	SpecVersion            string       `json:"specversion"`
	Type                   string       `json:"type"`
	Source                 string       `json:"source"`
	ID                     string       `json:"id"`
	Time                   int64        `json:"time"`
	WebhookDeliveryAttempt int          `json:"webhook_delivery_attempt"`
	Data                   EnvelopeData `json:"data"`
}

// EnvelopeData wraps the canonical message under the application identity
// it belongs to.
type EnvelopeData struct {
	ApplicationID string                   `json:"application_id"`
	Object        *models.CanonicalMessage `json:"object"`
}

// Dispatcher delivers canonical messages to an App's webhook endpoint.
type Dispatcher struct {
	config Config
	client *http.Client
	logs   repo.WebhookLogRepo
	sem    chan struct{}
	log    zerolog.Logger
}

// New returns a Dispatcher bounded to maxConcurrentDeliveries in-flight
// POSTs process-wide.
func New(config Config, logs repo.WebhookLogRepo) *Dispatcher {
	return &Dispatcher{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logs:   logs,
		sem:    make(chan struct{}, maxConcurrentDeliveries),
		log:    logging.WithComponent("webhook"),
	}
}

// Deliver signs and POSTs the canonical message to app.WebhookURL, retrying
// on 5xx/timeout/transport errors for up to config.MaxRetries attempts in
// total. Delivery failure is terminal-but-non-fatal (the listener still
// advances its watermark): it returns nil and is instead recorded as a
// sequence of WebhookLog rows the caller can inspect or the app can re-pull
// against via the read API. It returns an error only when the envelope
// cannot be marshalled or ctx is cancelled.
func (d *Dispatcher) Deliver(ctx context.Context, app *models.App, accountID int64, folder string, uid uint32, msg *models.CanonicalMessage) error {
	if app.WebhookURL == "" {
		return nil
	}

	select {
	case d.sem <- struct{}{}:
		defer func() { <-d.sem }()
	case <-ctx.Done():
		return ctx.Err()
	}

	sentAt := time.Now().Unix()
	for attempt := 1; attempt <= d.config.MaxRetries; attempt++ {
		body, err := json.Marshal(Envelope{
			SpecVersion:            "1.0",
			Type:                   "message.created",
			Source:                 "imap",
			ID:                     uuid.NewString(),
			Time:                   sentAt,
			WebhookDeliveryAttempt: attempt,
			Data:                   EnvelopeData{ApplicationID: app.UUID, Object: msg},
		})
		if err != nil {
			return fmt.Errorf("webhook: marshal envelope: %w", err)
		}

		status, deliverErr := d.post(ctx, app, body)
		d.record(ctx, app, accountID, folder, uid, body, status, attempt, deliverErr)

		if deliverErr == nil && status >= 200 && status < 300 {
			return nil
		}
		if status >= 400 && status < 500 {
			d.log.Warn().Str("app", app.UUID).Int("status", status).Msg("webhook rejected, not retrying")
			return nil
		}

		if attempt < d.config.MaxRetries {
			delay := d.config.BaseDelay * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	d.log.Warn().Str("app", app.UUID).Int("uid", int(uid)).Msg("webhook delivery exhausted retries")
	return nil
}

func (d *Dispatcher) post(ctx context.Context, app *models.App, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, app.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if app.WebhookSecret != "" {
		req.Header.Set("x-nylas-signature", sign(app.WebhookSecret, body))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (d *Dispatcher) record(ctx context.Context, app *models.App, accountID int64, folder string, uid uint32, body []byte, status int, attempt int, deliverErr error) {
	log := &models.WebhookLog{
		AppID:     app.ID,
		AccountID: accountID,
		Folder:    folder,
		UID:       uid,
		TargetURL: app.WebhookURL,
		Body:      truncateBody(body),
		Attempt:   attempt,
	}
	if status > 0 {
		log.HTTPStatus = &status
	}
	if status >= 200 && status < 300 {
		now := time.Now()
		log.DeliveredAt = &now
	}
	if err := d.logs.Create(ctx, log); err != nil {
		d.log.Error().Err(err).Str("app", app.UUID).Msg("failed to persist webhook log")
	}
	if deliverErr != nil {
		d.log.Warn().Err(deliverErr).Str("app", app.UUID).Int("attempt", attempt).Msg("webhook delivery attempt failed")
	}
}

// sign computes the hex HMAC-SHA256 of body, matching the signature format
// the spec requires receivers to verify with a constant-time comparison.
func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether sigHeader is the correct hex HMAC-SHA256 of body
// under secret, using a constant-time comparison to avoid timing leaks.
func Verify(secret string, body []byte, sigHeader string) bool {
	expected, err := hex.DecodeString(sigHeader)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}

const maxLoggedBodyLen = 4096

func truncateBody(body []byte) string {
	if len(body) <= maxLoggedBodyLen {
		return string(body)
	}
	return string(body[:maxLoggedBodyLen]) + "...[truncated]"
}
