package smtpsender

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/hkdb/nolas-go/internal/connpool"
	"github.com/hkdb/nolas-go/internal/cryptutil"
	"github.com/hkdb/nolas-go/internal/logging"
	"github.com/hkdb/nolas-go/internal/models"
)

// sentFolderCandidates is the ordered list of folder names APPEND tries,
// first match wins.
var sentFolderCandidates = []string{"Sent", "SENT", "Sent Items", "Sent Mail", "Sent Messages"}

// RepliedMessage carries the thread context of the message being replied
// to, when Send is composing a reply.
type RepliedMessage struct {
	MessageID  string
	ThreadID   string
	References []string
}

// Result is what Send returns on success.
type Result struct {
	MessageID string
	ThreadID  string
	Folder    string // Sent-like folder the message was appended to, "" if none
}

// Sender composes and submits outbound mail for an account.
type Sender struct {
	pool   *connpool.Pool
	cipher *cryptutil.Cipher
}

// New returns a Sender that uses pool for the best-effort Sent-folder
// APPEND and cipher to decrypt the account's stored credentials.
func New(pool *connpool.Pool, cipher *cryptutil.Cipher) *Sender {
	return &Sender{pool: pool, cipher: cipher}
}

// Send composes msg, submits it over SMTPS, and best-effort APPENDs it to
// the account's Sent-like folder. The returned ThreadID continues an
// existing thread when replied is non-nil, otherwise starts a new one at
// the freshly minted Message-ID.
func (s *Sender) Send(ctx context.Context, account *models.Account, msg Message, replied *RepliedMessage) (*Result, error) {
	if replied != nil {
		msg.InReplyTo = fmt.Sprintf("<%s>", replied.MessageID)
		msg.References = append(append([]string{}, replied.References...), msg.InReplyTo)
	}

	built, err := compose(msg, account.Domain())
	if err != nil {
		return nil, err
	}

	creds, err := s.cipher.Decrypt(account.EncryptedCreds)
	if err != nil {
		return nil, fmt.Errorf("smtpsender: decrypt credentials: %w", err)
	}

	recipients := make([]string, 0, len(msg.To)+len(msg.Cc)+len(msg.Bcc))
	for _, a := range msg.To {
		recipients = append(recipients, a.Email)
	}
	for _, a := range msg.Cc {
		recipients = append(recipients, a.Email)
	}
	for _, a := range msg.Bcc {
		recipients = append(recipients, a.Email)
	}

	if err := s.submit(ctx, account, creds, msg.From.Email, recipients, built.raw); err != nil {
		return nil, fmt.Errorf("smtpsender: submit: %w", err)
	}

	threadID := built.messageID
	if replied != nil && replied.ThreadID != "" {
		threadID = replied.ThreadID
	}

	folder := s.appendToSentFolder(ctx, account, built.raw)

	return &Result{MessageID: built.messageID, ThreadID: threadID, Folder: folder}, nil
}

// submit dials provider_context.smtp_host:smtp_port over implicit TLS,
// authenticates with SASL PLAIN, and submits raw via SendMail.
func (s *Sender) submit(ctx context.Context, account *models.Account, creds cryptutil.Credentials, from string, recipients []string, raw []byte) error {
	host := account.ProviderContext.SmtpHost
	port := account.ProviderContext.SmtpPort
	if port == 0 {
		port = 465
	}
	addr := fmt.Sprintf("%s:%d", host, port)

	client, err := smtp.DialTLS(addr, &tls.Config{ServerName: host})
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer client.Close()

	auth := sasl.NewPlainClient("", creds.Username, creds.Password)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}

	if err := client.SendMail(from, recipients, strings.NewReader(string(raw))); err != nil {
		return fmt.Errorf("sendmail: %w", err)
	}

	return client.Quit()
}

// appendToSentFolder tries each candidate Sent-like folder in turn via a
// pooled IMAP connection, returning the first one APPEND succeeds against,
// or "" if all fail. Failure here is logged, never fatal: the message has
// already been sent.
func (s *Sender) appendToSentFolder(ctx context.Context, account *models.Account, raw []byte) string {
	log := logging.WithComponent("smtpsender")

	conn, err := s.pool.GetConnection(ctx, account.UUID, account.ProviderContext.ImapHost)
	if err != nil {
		log.Warn().Err(err).Str("account", account.UUID).Msg("failed to acquire connection for sent-folder append")
		return ""
	}
	defer s.pool.Release(conn)

	client := conn.Client()
	for _, folder := range sentFolderCandidates {
		if _, err := client.AppendMessage(folder, []imap.Flag{imap.FlagSeen}, time.Now(), crlf(raw)); err == nil {
			return folder
		}
	}
	log.Warn().Str("account", account.UUID).Msg("no sent-like folder accepted append")
	return ""
}

// crlf normalizes line endings to CRLF, which IMAP APPEND requires.
func crlf(raw []byte) []byte {
	s := strings.ReplaceAll(string(raw), "\r\n", "\n")
	s = strings.ReplaceAll(s, "\n", "\r\n")
	return []byte(s)
}
