// Package models defines the persisted data model shared across repositories
// and the ingestion/delivery pipeline.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// AccountStatus is the lifecycle state of an Account.
type AccountStatus string

const (
	AccountPending  AccountStatus = "pending"
	AccountActive   AccountStatus = "active"
	AccountInactive AccountStatus = "inactive"
)

// AuthorizationStatus is the lifecycle state of an AuthorizationRequest.
type AuthorizationStatus string

const (
	AuthorizationPending    AuthorizationStatus = "pending"
	AuthorizationAuthorized AuthorizationStatus = "authorized"
	AuthorizationDenied     AuthorizationStatus = "denied"
	AuthorizationExpired    AuthorizationStatus = "expired"
)

// App is the identity of a calling application.
type App struct {
	ID            int64     `db:"id"`
	UUID          string    `db:"uuid"`
	Name          string    `db:"name"`
	APIKey        string    `db:"api_key"`
	WebhookURL    string    `db:"webhook_url"`
	WebhookSecret string    `db:"webhook_secret"`
	CreatedAt     time.Time `db:"created_at"`
}

// ProviderContext carries the free-form IMAP/SMTP connection parameters for
// an Account.
type ProviderContext struct {
	ImapHost string `json:"imap_host"`
	ImapPort int    `json:"imap_port"`
	SmtpHost string `json:"smtp_host"`
	SmtpPort int    `json:"smtp_port"`
}

// Value implements driver.Valuer so ProviderContext can be stored as JSONB.
func (p ProviderContext) Value() (driver.Value, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("models: marshal provider context: %w", err)
	}
	return b, nil
}

// Scan implements sql.Scanner so ProviderContext can be read back from JSONB.
func (p *ProviderContext) Scan(src interface{}) error {
	if src == nil {
		*p = ProviderContext{}
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("models: cannot scan %T into ProviderContext", src)
	}
	if len(raw) == 0 {
		*p = ProviderContext{}
		return nil
	}
	return json.Unmarshal(raw, p)
}

// Account is a single end-user mailbox owned by an App.
type Account struct {
	ID              int64           `db:"id"`
	AppID           int64           `db:"app_id"`
	UUID            string          `db:"uuid"` // grant_id exposed to apps
	Email           string          `db:"email"`
	Provider        string          `db:"provider"` // currently always "imap"
	EncryptedCreds  []byte          `db:"encrypted_creds"`
	ProviderContext ProviderContext `db:"provider_context"`
	Status          AccountStatus   `db:"status"`
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"`
}

// Domain returns the domain portion of the account's email address, used to
// build outbound Message-ID values.
func (a Account) Domain() string {
	for i := len(a.Email) - 1; i >= 0; i-- {
		if a.Email[i] == '@' {
			return a.Email[i+1:]
		}
	}
	return "local"
}

// AuthorizationRequest is an ephemeral OAuth2-style exchange record.
type AuthorizationRequest struct {
	ID          int64               `db:"id"`
	AppID       int64               `db:"app_id"`
	ClientID    string              `db:"client_id"`
	RedirectURI string              `db:"redirect_uri"`
	State       string              `db:"state"`
	Scope       string              `db:"scope"`
	Status      AuthorizationStatus `db:"status"`
	Code        string              `db:"code"`
	CodeUsed    bool                `db:"code_used"`
	ExpiresAt   time.Time           `db:"expires_at"`
	AccountID   *int64              `db:"account_id"`
	CreatedAt   time.Time           `db:"created_at"`
}

// Valid reports whether this authorization code may still be exchanged by
// the given client/redirect combination, per the one-shot-code invariant.
func (r AuthorizationRequest) Valid(clientID, redirectURI string, now time.Time) bool {
	return !r.CodeUsed &&
		now.Before(r.ExpiresAt) &&
		r.RedirectURI == redirectURI &&
		r.ClientID == clientID
}

// UidTracking is the per-(account, folder) high-watermark.
type UidTracking struct {
	AccountID     int64     `db:"account_id"`
	Folder        string    `db:"folder"`
	LastSeenUID   uint32    `db:"last_seen_uid"`
	LastCheckedAt time.Time `db:"last_checked_at"`
}

// Address is a single display-name/email pair.
type Address struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Attachment is lightweight attachment metadata (no content stored).
type Attachment struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}

// CanonicalMessage is the vendor-neutral JSON shape produced by the message
// translator and used uniformly by the read API and webhooks.
type CanonicalMessage struct {
	GrantID     string       `json:"grant_id"`
	MessageID   string       `json:"message_id"`
	ThreadID    string       `json:"thread_id"`
	Subject     string       `json:"subject"`
	From        []Address    `json:"from"`
	To          []Address    `json:"to"`
	Cc          []Address    `json:"cc"`
	Bcc         []Address    `json:"bcc"`
	ReplyTo     []Address    `json:"reply_to"`
	Date        int64        `json:"date"`
	Body        string       `json:"body"`
	Snippet     string       `json:"snippet"`
	Attachments []Attachment `json:"attachments"`
	Folders     []string     `json:"folders"`
	Starred     bool         `json:"starred"`
	Unread      bool         `json:"unread"`
}

// Email is the lightweight local index row for a message (not a content
// store — see CanonicalMessage for the full translated shape, which is
// never itself persisted).
type Email struct {
	ID        int64     `db:"id"`
	AccountID int64     `db:"account_id"`
	MessageID string    `db:"message_id"`
	ThreadID  string    `db:"thread_id"`
	Folder    string    `db:"folder"`
	UID       uint32    `db:"uid"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// ConnectionHealth is the per-(account, folder) rolling health record.
type ConnectionHealth struct {
	AccountID           int64      `db:"account_id"`
	Folder              string     `db:"folder"`
	LastSuccessAt       *time.Time `db:"last_success_at"`
	ConsecutiveFailures int        `db:"consecutive_failures"`
	LastError           string     `db:"last_error"`
	IsActive            bool       `db:"is_active"`
}

// MaxConsecutiveFailures is the threshold at which a supervisor retires and
// ConnectionHealth.IsActive flips to false.
const MaxConsecutiveFailures = 5

// WebhookLog is one row per delivery attempt (append-only, audit trail).
type WebhookLog struct {
	ID          int64      `db:"id"`
	AppID       int64      `db:"app_id"`
	AccountID   int64      `db:"account_id"`
	Folder      string     `db:"folder"`
	UID         uint32     `db:"uid"`
	TargetURL   string     `db:"target_url"`
	HTTPStatus  *int       `db:"http_status"`
	Body        string     `db:"body"`
	Attempt     int        `db:"attempt"`
	DeliveredAt *time.Time `db:"delivered_at"`
	CreatedAt   time.Time  `db:"created_at"`
}
