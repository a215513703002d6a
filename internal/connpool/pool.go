// Package connpool manages pooled IMAP connections, capping concurrent
// connections per remote host rather than per account so that many
// accounts hosted on the same provider (e.g. several Gmail accounts) share
// one capacity budget instead of each getting their own.
//
// This is a deliberate re-keying of the teacher's per-account pool
// (internal/imap/pool.go in the teacher lineage): a connection is still
// authenticated as one specific account and cannot be handed to a
// different account's waiter, but the MAX CONCURRENT CONNECTIONS limit —
// and the token-bucket rate limit — are enforced at the host level.
package connpool

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hkdb/nolas-go/internal/imapclient"
	"github.com/hkdb/nolas-go/internal/logging"
	"github.com/hkdb/nolas-go/internal/ratelimit"
)

// IsConnectionError reports whether err indicates a dead or broken
// connection, warranting Discard rather than Release.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	for _, marker := range []string{
		"use of closed network connection",
		"connection reset",
		"broken pipe",
		"EOF",
		"i/o timeout",
		"connection refused",
		"no such host",
		"network is unreachable",
	} {
		if strings.Contains(errStr, marker) {
			return true
		}
	}
	return false
}

// Config configures the pool.
type Config struct {
	MaxConnectionsPerHost int
	IdleTimeout           time.Duration
	WaiterTimeout         time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConnectionsPerHost: 50,
		IdleTimeout:           5 * time.Minute,
		WaiterTimeout:         2 * time.Minute,
	}
}

// CredentialLookup resolves the connection parameters for an account.
type CredentialLookup func(accountID string) (imapclient.ClientConfig, error)

// PooledConnection wraps an imapclient.Client with pool bookkeeping.
type PooledConnection struct {
	client    *imapclient.Client
	accountID string
	host      string
	lastUsed  time.Time
	inUse     bool
	mu        sync.Mutex
}

// Client returns the underlying IMAP client.
func (pc *PooledConnection) Client() *imapclient.Client {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.client
}

func (pc *PooledConnection) isHealthyLocked() bool {
	return pc.client != nil
}

// Pool manages IMAP connections for multiple accounts with per-host
// capacity limits.
type Pool struct {
	config      Config
	connections map[string][]*PooledConnection // accountID -> connections
	hostInUse   map[string]int
	waiters     map[string][]chan struct{} // host -> wake signals
	mu          sync.Mutex
	log         zerolog.Logger

	getCredentials CredentialLookup
	limiter        *ratelimit.HostLimiter
}

// NewPool creates a connection pool gated by a per-host rate limiter.
func NewPool(config Config, limiter *ratelimit.HostLimiter, getCredentials CredentialLookup) *Pool {
	return &Pool{
		config:         config,
		connections:    make(map[string][]*PooledConnection),
		hostInUse:      make(map[string]int),
		waiters:        make(map[string][]chan struct{}),
		log:            logging.WithComponent("connpool"),
		getCredentials: getCredentials,
		limiter:        limiter,
	}
}

// GetConnection returns a connection authenticated as accountID, reusing an
// idle one if available, otherwise creating a new connection once the
// account's host has spare capacity.
func (p *Pool) GetConnection(ctx context.Context, accountID, host string) (*PooledConnection, error) {
	deadline := time.Now().Add(p.config.WaiterTimeout)

	for {
		if conn := p.tryReuse(accountID); conn != nil {
			return conn, nil
		}

		p.mu.Lock()
		if p.hostInUse[host] < p.config.MaxConnectionsPerHost {
			p.hostInUse[host]++
			p.mu.Unlock()

			conn, err := p.createConnection(ctx, accountID, host)
			if err != nil {
				p.mu.Lock()
				p.hostInUse[host]--
				p.mu.Unlock()
				return nil, err
			}
			return conn, nil
		}

		waiter := make(chan struct{}, 1)
		p.waiters[host] = append(p.waiters[host], waiter)
		p.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("connpool: timed out waiting for host capacity")
		}

		select {
		case <-waiter:
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(remaining):
			return nil, fmt.Errorf("connpool: timed out waiting for host capacity")
		}
	}
}

func (p *Pool) tryReuse(accountID string) *PooledConnection {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, conn := range p.connections[accountID] {
		conn.mu.Lock()
		if !conn.inUse && conn.isHealthyLocked() {
			conn.inUse = true
			conn.lastUsed = time.Now()
			conn.mu.Unlock()
			return conn
		}
		conn.mu.Unlock()
	}
	return nil
}

func (p *Pool) createConnection(ctx context.Context, accountID, host string) (*PooledConnection, error) {
	if err := p.limiter.Wait(ctx, host); err != nil {
		return nil, fmt.Errorf("connpool: rate limit wait: %w", err)
	}

	config, err := p.getCredentials(accountID)
	if err != nil {
		return nil, fmt.Errorf("connpool: get credentials: %w", err)
	}

	client := imapclient.NewClient(config)

	done := make(chan error, 1)
	go func() {
		if err := client.Connect(); err != nil {
			done <- err
			return
		}
		if err := client.Login(); err != nil {
			client.ForceClose()
			done <- err
			return
		}
		done <- nil
	}()

	select {
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("connpool: connect account %s: %w", accountID, err)
		}
	case <-ctx.Done():
		go client.ForceClose()
		return nil, ctx.Err()
	}

	conn := &PooledConnection{
		client:    client,
		accountID: accountID,
		host:      host,
		lastUsed:  time.Now(),
		inUse:     true,
	}

	p.mu.Lock()
	p.connections[accountID] = append(p.connections[accountID], conn)
	p.mu.Unlock()

	p.log.Info().Str("account", accountID).Str("host", host).Msg("new connection created")
	return conn, nil
}

// Release returns a healthy connection to the pool for later reuse by the
// same account. It does not free host capacity — the connection stays
// open, still occupying its slot, until Discard or idle cleanup closes it.
func (p *Pool) Release(conn *PooledConnection) {
	if conn == nil {
		return
	}
	conn.mu.Lock()
	conn.inUse = false
	conn.lastUsed = time.Now()
	conn.mu.Unlock()
}

// Discard force-closes a known-bad connection and frees its host capacity
// slot, waking one waiter for that host if any are queued.
func (p *Pool) Discard(conn *PooledConnection) {
	if conn == nil {
		return
	}

	conn.mu.Lock()
	if conn.client != nil {
		conn.client.ForceClose()
		conn.client = nil
	}
	conn.mu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	if conns, ok := p.connections[conn.accountID]; ok {
		for i, c := range conns {
			if c == conn {
				p.connections[conn.accountID] = append(conns[:i], conns[i+1:]...)
				break
			}
		}
		if len(p.connections[conn.accountID]) == 0 {
			delete(p.connections, conn.accountID)
		}
	}

	if p.hostInUse[conn.host] > 0 {
		p.hostInUse[conn.host]--
	}
	p.wakeOneLocked(conn.host)

	p.log.Debug().Str("account", conn.accountID).Str("host", conn.host).Msg("discarded connection")
}

func (p *Pool) wakeOneLocked(host string) {
	waiters := p.waiters[host]
	if len(waiters) == 0 {
		return
	}
	waiter := waiters[0]
	p.waiters[host] = waiters[1:]
	select {
	case waiter <- struct{}{}:
	default:
	}
}

// CloseAccount force-closes every connection for accountID and frees their
// host capacity slots.
func (p *Pool) CloseAccount(accountID string) {
	p.mu.Lock()
	conns := p.connections[accountID]
	delete(p.connections, accountID)
	p.mu.Unlock()

	for _, conn := range conns {
		conn.mu.Lock()
		host := conn.host
		if conn.client != nil {
			conn.client.ForceClose()
			conn.client = nil
		}
		conn.mu.Unlock()

		p.mu.Lock()
		if p.hostInUse[host] > 0 {
			p.hostInUse[host]--
		}
		p.wakeOneLocked(host)
		p.mu.Unlock()
	}
}

// CloseAll force-closes every pooled connection.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	accountIDs := make([]string, 0, len(p.connections))
	for accountID := range p.connections {
		accountIDs = append(accountIDs, accountID)
	}
	p.mu.Unlock()

	for _, accountID := range accountIDs {
		p.CloseAccount(accountID)
	}
}

// CleanupIdle closes connections that have been idle longer than
// IdleTimeout, freeing their host capacity.
func (p *Pool) CleanupIdle() {
	p.mu.Lock()
	var toDiscard []*PooledConnection
	now := time.Now()
	for _, conns := range p.connections {
		for _, conn := range conns {
			conn.mu.Lock()
			idle := !conn.inUse && now.Sub(conn.lastUsed) > p.config.IdleTimeout
			conn.mu.Unlock()
			if idle {
				toDiscard = append(toDiscard, conn)
			}
		}
	}
	p.mu.Unlock()

	for _, conn := range toDiscard {
		p.Discard(conn)
	}
}

// StartCleanupRoutine periodically calls CleanupIdle until ctx is done.
func (p *Pool) StartCleanupRoutine(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.CleanupIdle()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stats summarizes pool occupancy.
type Stats struct {
	TotalConnections  int
	ActiveConnections int
	IdleConnections   int
	AccountCount      int
	HostInUse         map[string]int
}

// GetStats returns current pool statistics.
func (p *Pool) GetStats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := Stats{
		AccountCount: len(p.connections),
		HostInUse:    make(map[string]int, len(p.hostInUse)),
	}
	for host, n := range p.hostInUse {
		stats.HostInUse[host] = n
	}
	for _, conns := range p.connections {
		for _, conn := range conns {
			stats.TotalConnections++
			conn.mu.Lock()
			if conn.inUse {
				stats.ActiveConnections++
			} else {
				stats.IdleConnections++
			}
			conn.mu.Unlock()
		}
	}
	return stats
}
