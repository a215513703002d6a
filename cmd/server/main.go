// Command server wires every collaborator together: config, database,
// repositories, the connection pool, the worker cluster that drives
// ingestion, and the HTTP API that drives authorization, on-demand reads,
// and sending.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hkdb/nolas-go/internal/authz"
	"github.com/hkdb/nolas-go/internal/config"
	"github.com/hkdb/nolas-go/internal/connpool"
	"github.com/hkdb/nolas-go/internal/cryptutil"
	"github.com/hkdb/nolas-go/internal/db"
	"github.com/hkdb/nolas-go/internal/httpapi"
	"github.com/hkdb/nolas-go/internal/imapclient"
	"github.com/hkdb/nolas-go/internal/listener"
	"github.com/hkdb/nolas-go/internal/logging"
	"github.com/hkdb/nolas-go/internal/messagectl"
	"github.com/hkdb/nolas-go/internal/ratelimit"
	"github.com/hkdb/nolas-go/internal/repo"
	"github.com/hkdb/nolas-go/internal/smtpsender"
	"github.com/hkdb/nolas-go/internal/webhook"
	"github.com/hkdb/nolas-go/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{Level: cfg.LogLevel, Console: cfg.Environment == "development"})
	log := logging.WithComponent("main")

	conn, err := db.Open(cfg.DatabaseURL, cfg.DatabaseMinPoolSize, cfg.DatabaseMaxPoolSize)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	if err := db.Migrate(conn, cfg.DatabaseURL); err != nil {
		log.Fatal().Err(err).Msg("failed to apply migrations")
	}

	cipher, err := cryptutil.NewCipher(cfg.PasswordEncryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize credential cipher")
	}

	apps := repo.NewAppRepo(conn)
	accounts := repo.NewAccountRepo(conn)
	emails := repo.NewEmailRepo(conn)
	uidTracking := repo.NewUidTrackingRepo(conn)
	health := repo.NewConnectionHealthRepo(conn)
	webhookLogs := repo.NewWebhookLogRepo(conn)
	authzRequests := repo.NewAuthorizationRequestRepo(conn)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	limiter := ratelimit.NewHostLimiter(9, 10)
	poolCfg := connpool.DefaultConfig()
	poolCfg.MaxConnectionsPerHost = cfg.WorkerMaxConnectionsPerHost
	pool := connpool.NewPool(poolCfg, limiter, credentialLookup(accounts, cipher, cfg))
	pool.StartCleanupRoutine(ctx)

	dispatcher := webhook.New(webhook.DefaultConfig(), webhookLogs)

	authzCtl := authz.New(authzRequests, accounts, uidTracking, cipher)
	messageCtl := messagectl.New(pool, emails)
	sender := smtpsender.New(pool, cipher)

	numWorkers := cfg.WorkersNum
	if cfg.ImapListenerMode == "single" {
		numWorkers = 1
	}
	cluster := worker.NewCluster(numWorkers, accounts, worker.Deps{
		Pool:       pool,
		Apps:       apps,
		Emails:     emails,
		UIDs:       uidTracking,
		Health:     health,
		Dispatcher: dispatcher,
		Listener:   listener.DefaultConfig(),
	})

	go func() {
		if err := cluster.Start(ctx); err != nil {
			log.Error().Err(err).Msg("worker cluster exited with error")
		}
	}()

	srv := &httpapi.Server{
		Apps:     apps,
		Accounts: accounts,
		Emails:   emails,
		Pool:     pool,
		Authz:    authzCtl,
		Messages: messageCtl,
		Sender:   sender,
	}

	httpServer := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: httpapi.NewRouter(srv),
	}

	go func() {
		log.Info().Str("port", cfg.HTTPPort).Msg("http server starting")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http server did not shut down cleanly")
	}

	pool.CloseAll()
	log.Info().Msg("shutdown complete")
}

// credentialLookup resolves a connpool accountID (the Account's UUID) into
// connection parameters by decrypting the account's stored credentials, the
// indirection connpool.CredentialLookup expects since the pool itself holds
// no database handle.
func credentialLookup(accounts repo.AccountRepo, cipher *cryptutil.Cipher, cfg config.Config) connpool.CredentialLookup {
	return func(accountID string) (imapclient.ClientConfig, error) {
		account, err := accounts.GetByUUID(context.Background(), accountID)
		if err != nil {
			return imapclient.ClientConfig{}, fmt.Errorf("main: look up account %s: %w", accountID, err)
		}
		if account == nil {
			return imapclient.ClientConfig{}, fmt.Errorf("main: account %s not found", accountID)
		}

		creds, err := cipher.Decrypt(account.EncryptedCreds)
		if err != nil {
			return imapclient.ClientConfig{}, fmt.Errorf("main: decrypt credentials for %s: %w", accountID, err)
		}

		clientCfg := imapclient.DefaultConfig()
		clientCfg.Host = account.ProviderContext.ImapHost
		if account.ProviderContext.ImapPort != 0 {
			clientCfg.Port = account.ProviderContext.ImapPort
		}
		clientCfg.Username = creds.Username
		clientCfg.Password = creds.Password
		clientCfg.ConnectTimeout = cfg.ImapTimeout
		return clientCfg, nil
	}
}
