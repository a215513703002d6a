package imapclient

import (
	"context"
	"fmt"
	"time"

	"github.com/emersion/go-imap/v2/imapclient"
)

// IdleSession drives RFC 2177 IDLE on an already-selected mailbox for a
// single connection. Unlike the teacher's IdleManager, which multiplexes
// many accounts behind one goroutine pool, an IdleSession covers exactly one
// connection and one selected mailbox. internal/listener does not create
// IdleSessions; its supervisors discover new mail by polling.
type IdleSession struct {
	client      *Client
	newMessages chan uint32 // count from the most recent EXISTS notification
}

// NewIdleCapableClient returns a Client with its EXISTS notification
// callback already wired, and the IdleSession that will receive them. The
// caller must Connect/Login/SelectMailbox on the returned Client before
// calling Watch — the callback must be registered before Connect, since
// go-imap bakes the unilateral-data handler into the connection at dial
// time.
func NewIdleCapableClient(config ClientConfig) (*Client, *IdleSession) {
	c := NewClient(config)
	session := &IdleSession{client: c, newMessages: make(chan uint32, 8)}
	c.EnableIdleNotifications(func(count uint32) {
		select {
		case session.newMessages <- count:
		default:
		}
	})
	return c, session
}

// Ready confirms the wrapped client supports IDLE; call after Connect.
func (s *IdleSession) Ready() error {
	if s.client.client == nil {
		return fmt.Errorf("imapclient: idle requires a connected client")
	}
	if !s.client.SupportsIdle() {
		return fmt.Errorf("imapclient: server does not support idle")
	}
	return nil
}

// Watch runs one IDLE cycle, returning when maxDuration elapses (so the
// caller can issue a fresh IDLE command per RFC 2177's 29-minute guidance),
// ctx is cancelled, or the server reports new messages on the mailbox.
//
// It returns true if new messages were observed during the cycle.
func (s *IdleSession) Watch(ctx context.Context, maxDuration time.Duration) (bool, error) {
	idleCmd, err := s.client.client.Idle()
	if err != nil {
		return false, fmt.Errorf("imapclient: start idle: %w", err)
	}

	timer := time.NewTimer(maxDuration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		idleCmd.Close()
		return false, ctx.Err()
	case <-timer.C:
		return false, idleCmd.Close()
	case <-s.newMessages:
		return true, idleCmd.Close()
	}
}

// attachUnilateralHandler must be called before Connect/Login so the
// options are in place when the underlying imapclient.Client is created.
// It is a package-level helper rather than a Client method so callers can
// opt into IDLE notifications only when constructing a listener connection.
func attachUnilateralHandler(options *imapclient.Options, onExists func(count uint32)) {
	options.UnilateralDataHandler = &imapclient.UnilateralDataHandler{
		Mailbox: func(data *imapclient.UnilateralDataMailbox) {
			if data.NumMessages != nil && onExists != nil {
				onExists(*data.NumMessages)
			}
		},
	}
}
