// Package worker owns a fixed shard of accounts and runs one listener
// supervisor per (account, folder) pair belonging to them.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hkdb/nolas-go/internal/connpool"
	"github.com/hkdb/nolas-go/internal/folderutil"
	"github.com/hkdb/nolas-go/internal/listener"
	"github.com/hkdb/nolas-go/internal/logging"
	"github.com/hkdb/nolas-go/internal/models"
	"github.com/hkdb/nolas-go/internal/repo"
	"github.com/hkdb/nolas-go/internal/webhook"
)

// drainTimeout is how long Run waits for supervisors to exit on their own
// before returning anyway (the caller's context cancellation forces them).
const drainTimeout = 30 * time.Second

// Deps bundles the collaborators every supervisor started by a Worker needs.
type Deps struct {
	Pool       *connpool.Pool
	Apps       repo.AppRepo
	Emails     repo.EmailRepo
	UIDs       repo.UidTrackingRepo
	Health     repo.ConnectionHealthRepo
	Dispatcher *webhook.Dispatcher
	Listener   listener.Config
}

// Worker owns a fixed list of accounts and starts one supervisor goroutine
// per (account, folder) pair among them. Workers share no in-memory state;
// a cluster of Workers is the unit of horizontal scaling.
type Worker struct {
	id       int
	accounts []models.Account
	deps     Deps
	log      zerolog.Logger

	wg sync.WaitGroup
}

// New returns a Worker numbered id, responsible for the given accounts.
func New(id int, accounts []models.Account, deps Deps) *Worker {
	return &Worker{
		id:       id,
		accounts: accounts,
		deps:     deps,
		log:      logging.WithComponent("worker").With().Int("worker", id).Logger(),
	}
}

// Run discovers each account's folder set and starts one supervisor per
// folder, then blocks until ctx is cancelled and every supervisor has
// drained (or drainTimeout has elapsed, whichever comes first).
func (w *Worker) Run(ctx context.Context) {
	w.log.Info().Int("accounts", len(w.accounts)).Msg("worker starting")

	for _, account := range w.accounts {
		account := account
		app, err := w.deps.Apps.GetByID(ctx, account.AppID)
		if err != nil {
			w.log.Error().Err(err).Str("account", account.UUID).Msg("failed to load owning app, skipping account")
			continue
		}

		folders := w.discoverFolders(ctx, account)
		for _, folder := range folders {
			w.wg.Add(1)
			go func(folder string) {
				defer w.wg.Done()
				sup := listener.New(&account, app, folder, account.ProviderContext.ImapHost, w.deps.Listener, listener.Deps{
					Pool:       w.deps.Pool,
					Emails:     w.deps.Emails,
					UIDs:       w.deps.UIDs,
					Health:     w.deps.Health,
					Dispatcher: w.deps.Dispatcher,
				})
				sup.Run(ctx)
			}(folder)
		}
	}

	<-ctx.Done()
	w.log.Info().Msg("worker draining supervisors")
	w.waitWithTimeout(drainTimeout)
	w.log.Info().Msg("worker stopped")
}

// discoverFolders lists an account's listenable folders using a short-lived
// connection, falling back to folderutil's built-in default on any failure
// so one account's broken LIST never prevents its INBOX from being tailed.
func (w *Worker) discoverFolders(ctx context.Context, account models.Account) []string {
	conn, err := w.deps.Pool.GetConnection(ctx, account.UUID, account.ProviderContext.ImapHost)
	if err != nil {
		w.log.Warn().Err(err).Str("account", account.UUID).Msg("failed to acquire connection for folder discovery, using fallback")
		return []string{"INBOX", "Sent"}
	}
	folders := folderutil.ListFolders(ctx, conn.Client())
	w.deps.Pool.Release(conn)
	return folders
}

func (w *Worker) waitWithTimeout(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		w.log.Warn().Msg("drain timeout exceeded, some supervisors did not exit in time")
	}
}
