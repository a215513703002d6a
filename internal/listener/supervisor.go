// Package listener runs one long-lived task per (account, folder) pair:
// discover new UIDs, fetch, translate, dispatch to the owning app's
// webhook, and advance the per-folder watermark exactly once per UID.
package listener

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/hkdb/nolas-go/internal/connpool"
	"github.com/hkdb/nolas-go/internal/logging"
	"github.com/hkdb/nolas-go/internal/models"
	"github.com/hkdb/nolas-go/internal/repo"
	"github.com/hkdb/nolas-go/internal/translator"
	"github.com/hkdb/nolas-go/internal/webhook"
)

// maxConsecutiveFailures matches models.MaxConsecutiveFailures: a supervisor
// stops permanently once reached, deferring to operator or re-authorization
// intervention rather than retrying forever against a dead mailbox.
const maxConsecutiveFailures = models.MaxConsecutiveFailures

// Config tunes poll cadence; the zero value is never used, see DefaultConfig.
type Config struct {
	PollInterval time.Duration
	PollJitter   time.Duration
}

// DefaultConfig matches the specification's defaults (60s poll, up to 30s
// startup jitter).
func DefaultConfig() Config {
	return Config{PollInterval: 60 * time.Second, PollJitter: 30 * time.Second}
}

// Deps bundles the supervisor's collaborators.
type Deps struct {
	Pool       *connpool.Pool
	Emails     repo.EmailRepo
	UIDs       repo.UidTrackingRepo
	Health     repo.ConnectionHealthRepo
	Dispatcher *webhook.Dispatcher
}

// Supervisor drives ingestion for one (account, folder) pair.
type Supervisor struct {
	account *models.Account
	app     *models.App
	folder  string
	host    string
	config  Config
	deps    Deps
	log     zerolog.Logger
}

// New returns a Supervisor for account's folder. host is the IMAP host the
// connection pool should charge this connection's capacity against.
func New(account *models.Account, app *models.App, folder, host string, config Config, deps Deps) *Supervisor {
	return &Supervisor{
		account: account,
		app:     app,
		folder:  folder,
		host:    host,
		config:  config,
		deps:    deps,
		log: logging.WithComponent("listener").With().
			Str("account", account.UUID).Str("folder", folder).Logger(),
	}
}

// Run blocks until ctx is cancelled or the failure cap is reached,
// implementing the poll-loop strategy: jittered startup, then
// acquire-search-fetch-translate-deliver-advance, sleeping between cycles in
// short slices so shutdown is prompt.
func (s *Supervisor) Run(ctx context.Context) {
	jitter := time.Duration(rand.Int63n(int64(s.config.PollJitter) + 1))
	if !sleepCooperatively(ctx, jitter, 500*time.Millisecond) {
		return
	}

	failures := 0
	for {
		if ctx.Err() != nil {
			return
		}

		if err := s.pollOnce(ctx); err != nil {
			failures++
			s.log.Warn().Err(err).Int("consecutiveFailures", failures).Msg("poll cycle failed")
			if _, hErr := s.deps.Health.RecordFailure(ctx, s.account.ID, s.folder, err.Error()); hErr != nil {
				s.log.Error().Err(hErr).Msg("failed to record connection health failure")
			}
			if failures >= maxConsecutiveFailures {
				s.log.Error().Msg("max consecutive failures reached, stopping supervisor")
				return
			}
			backoff := time.Duration(min(120, 10*failures)) * time.Second
			if !sleepCooperatively(ctx, backoff, 100*time.Millisecond) {
				return
			}
			continue
		}

		failures = 0
		if err := s.deps.Health.RecordSuccess(ctx, s.account.ID, s.folder); err != nil {
			s.log.Error().Err(err).Msg("failed to record connection health success")
		}
		if !sleepCooperatively(ctx, s.config.PollInterval, 500*time.Millisecond) {
			return
		}
	}
}

// pollOnce runs exactly one acquire/search/fetch/deliver/advance cycle.
func (s *Supervisor) pollOnce(ctx context.Context) error {
	conn, err := s.deps.Pool.GetConnection(ctx, s.account.UUID, s.host)
	if err != nil {
		return fmt.Errorf("listener: acquire connection: %w", err)
	}

	client := conn.Client()
	if _, err := client.SelectMailbox(ctx, s.folder); err != nil {
		s.deps.Pool.Discard(conn)
		return fmt.Errorf("listener: select %s: %w", s.folder, err)
	}

	watermark, err := s.deps.UIDs.Get(ctx, s.account.ID, s.folder)
	if err != nil {
		s.deps.Pool.Discard(conn)
		return fmt.Errorf("listener: get watermark: %w", err)
	}
	var lastSeen uint32
	if watermark != nil {
		lastSeen = watermark.LastSeenUID
	}

	uids, err := client.SearchUIDRange(ctx, lastSeen+1)
	if err != nil {
		s.deps.Pool.Discard(conn)
		return fmt.Errorf("listener: search: %w", err)
	}

	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })

	for _, uid := range uids {
		raw, err := client.FetchMessageRFC822(ctx, uid)
		if err != nil {
			s.deps.Pool.Discard(conn)
			return fmt.Errorf("listener: fetch uid %d: %w", uid, err)
		}
		if err := s.processMessage(ctx, uint32(uid), raw); err != nil {
			s.log.Error().Err(err).Uint32("uid", uint32(uid)).Msg("failed to process message, skipping")
			continue
		}
	}

	s.deps.Pool.Release(conn)
	return nil
}

// processMessage translates one fetched message and dispatches/advances the
// watermark for it. Errors here do not abort the batch — SEARCH already
// returned the tagged UID, so a translate failure on one message must not
// block watermark advancement for messages already processed or leave the
// whole folder stuck retrying a single malformed message forever.
func (s *Supervisor) processMessage(ctx context.Context, uid uint32, raw []byte) error {
	msg, err := translator.Translate(raw, s.account.UUID, s.folder, false, true)
	if err != nil {
		return fmt.Errorf("translate: %w", err)
	}

	// OR-composed on (folder, uid) as well as message_id so a message that
	// moved folders or was renumbered since last seen still matches its
	// existing index row instead of being treated as new.
	existing, err := s.deps.Emails.GetByAccountAndUIDOrMessageID(ctx, s.account.ID, s.folder, uid, msg.MessageID)
	if err != nil {
		return fmt.Errorf("lookup existing index row: %w", err)
	}

	selfSent := existing != nil
	if !selfSent && s.app != nil {
		if err := s.deps.Dispatcher.Deliver(ctx, s.app, s.account.ID, s.folder, uid, msg); err != nil {
			s.log.Warn().Err(err).Msg("webhook delivery returned an error")
		}
	}

	if err := s.deps.Emails.Upsert(ctx, &models.Email{
		AccountID: s.account.ID,
		MessageID: msg.MessageID,
		ThreadID:  msg.ThreadID,
		Folder:    s.folder,
		UID:       uid,
	}); err != nil {
		return fmt.Errorf("upsert index row: %w", err)
	}

	if err := s.deps.UIDs.Advance(ctx, s.account.ID, s.folder, uid); err != nil {
		return fmt.Errorf("advance watermark: %w", err)
	}
	return nil
}

// sleepCooperatively sleeps total, checking ctx every slice so shutdown
// lands promptly instead of blocking for the whole interval. Returns false
// if ctx was cancelled before total elapsed.
func sleepCooperatively(ctx context.Context, total, slice time.Duration) bool {
	deadline := time.Now().Add(total)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		wait := slice
		if remaining < wait {
			wait = remaining
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
		}
	}
}
