// Package imapclient wraps emersion/go-imap/v2 with deadline-protected
// connections, password-only authentication, and the mailbox/flag/append
// operations the ingestion and send paths need.
package imapclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-sasl"
	"github.com/rs/zerolog"

	"github.com/hkdb/nolas-go/internal/logging"
)

// maxMessageSize caps the RFC-822 body read per message, guarding against a
// misbehaving server streaming an unbounded literal.
const maxMessageSize = 32 * 1024 * 1024

// deadlineConn wraps a net.Conn to set a fresh read/write deadline before
// each operation, since go-imap v2 does not enforce timeouts itself.
type deadlineConn struct {
	net.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func (c *deadlineConn) Read(b []byte) (int, error) {
	if c.readTimeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(b)
}

func (c *deadlineConn) Write(b []byte) (int, error) {
	if c.writeTimeout > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(b)
}

// SecurityType is the connection security method.
type SecurityType string

const (
	SecurityNone     SecurityType = "none"
	SecurityTLS      SecurityType = "tls"
	SecurityStartTLS SecurityType = "starttls"
)

// ClientConfig configures a connection to a single IMAP account.
type ClientConfig struct {
	Host     string
	Port     int
	Security SecurityType
	Username string
	Password string

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration

	TLSConfig *tls.Config
}

// DefaultConfig returns a ClientConfig with sensible defaults.
func DefaultConfig() ClientConfig {
	return ClientConfig{
		Port:           993,
		Security:       SecurityTLS,
		ConnectTimeout: 30 * time.Second,
		ReadTimeout:    3 * time.Minute,
		WriteTimeout:   30 * time.Second,
	}
}

// Client wraps an imapclient.Client with deadline protection and logging.
type Client struct {
	config ClientConfig
	client *imapclient.Client
	caps   imap.CapSet
	log    zerolog.Logger

	onNewMessages func(count uint32)
}

// NewClient creates a Client but does not connect.
func NewClient(config ClientConfig) *Client {
	return &Client{
		config: config,
		log:    logging.WithComponent("imapclient"),
	}
}

// EnableIdleNotifications registers a callback invoked whenever the server
// sends an untagged EXISTS while this connection is idling. Must be called
// before Connect.
func (c *Client) EnableIdleNotifications(onNewMessages func(count uint32)) {
	c.onNewMessages = onNewMessages
}

// Connect dials the IMAP server per the configured security mode and waits
// for the server greeting.
func (c *Client) Connect() error {
	addr := fmt.Sprintf("%s:%d", c.config.Host, c.config.Port)

	c.log.Debug().
		Str("host", c.config.Host).
		Int("port", c.config.Port).
		Str("security", string(c.config.Security)).
		Msg("connecting to imap server")

	var err error
	options := &imapclient.Options{}
	if c.onNewMessages != nil {
		attachUnilateralHandler(options, c.onNewMessages)
	}
	dialer := &net.Dialer{Timeout: c.config.ConnectTimeout}

	switch c.config.Security {
	case SecurityTLS:
		tlsConfig := c.config.TLSConfig
		if tlsConfig == nil {
			tlsConfig = &tls.Config{ServerName: c.config.Host}
		}
		rawConn, dialErr := tls.DialWithDialer(dialer, "tcp", addr, tlsConfig)
		if dialErr != nil {
			return fmt.Errorf("imapclient: connect with tls: %w", dialErr)
		}
		wrapped := &deadlineConn{Conn: rawConn, readTimeout: c.config.ReadTimeout, writeTimeout: c.config.WriteTimeout}
		c.client = imapclient.New(wrapped, options)

	case SecurityStartTLS:
		if c.config.TLSConfig != nil {
			options.TLSConfig = c.config.TLSConfig
		}
		c.client, err = imapclient.DialStartTLS(addr, options)
		if err != nil {
			return fmt.Errorf("imapclient: connect with starttls: %w", err)
		}

	case SecurityNone:
		rawConn, dialErr := dialer.Dial("tcp", addr)
		if dialErr != nil {
			return fmt.Errorf("imapclient: connect: %w", dialErr)
		}
		wrapped := &deadlineConn{Conn: rawConn, readTimeout: c.config.ReadTimeout, writeTimeout: c.config.WriteTimeout}
		c.client = imapclient.New(wrapped, options)

	default:
		return fmt.Errorf("imapclient: unknown security type %q", c.config.Security)
	}

	if err := c.client.WaitGreeting(); err != nil {
		c.client.Close()
		return fmt.Errorf("imapclient: greeting: %w", err)
	}

	c.caps = c.client.Caps()
	c.log.Debug().Msg("connected to imap server")
	return nil
}

// Login authenticates with a username/password, falling back to SASL PLAIN
// when the server advertises LOGINDISABLED.
func (c *Client) Login() error {
	if c.client == nil {
		return fmt.Errorf("imapclient: not connected")
	}

	if c.caps.Has(imap.CapLoginDisabled) {
		c.log.Debug().Msg("login disabled, using authenticate plain")
		saslClient := sasl.NewPlainClient("", c.config.Username, c.config.Password)
		if err := c.client.Authenticate(saslClient); err != nil {
			return fmt.Errorf("imapclient: authenticate: %w", err)
		}
	} else {
		if err := c.client.Login(c.config.Username, c.config.Password).Wait(); err != nil {
			return fmt.Errorf("imapclient: login: %w", err)
		}
	}

	c.caps = c.client.Caps()
	c.log.Info().Str("username", c.config.Username).Msg("logged in")
	return nil
}

// Close logs out gracefully and closes the underlying connection.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	if err := c.client.Logout().Wait(); err != nil {
		c.log.Warn().Err(err).Msg("logout failed, closing anyway")
	}
	return c.client.Close()
}

// ForceClose closes the underlying connection without attempting a graceful
// logout, for use when the connection is already known to be broken (a
// connpool Discard).
func (c *Client) ForceClose() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Caps returns the server's advertised capabilities.
func (c *Client) Caps() imap.CapSet {
	return c.caps
}

// SupportsIdle reports whether the server advertises the IDLE capability.
func (c *Client) SupportsIdle() bool {
	return c.caps.Has(imap.CapIdle)
}

// Mailbox is a folder and, when populated via Select/Status, its counters.
type Mailbox struct {
	Name          string
	UIDValidity   uint32
	UIDNext       uint32
	Messages      uint32
	Unseen        uint32
	HighestModSeq uint64
}

// RawListEntry is a single untyped LIST response line, consumed by
// internal/folderutil to apply the ignore set.
type RawListEntry struct {
	Mailbox    string
	Delimiter  string
	Attributes []imap.MailboxAttr
}

// ListMailboxes returns every mailbox the server reports via LIST "" "*".
func (c *Client) ListMailboxes() ([]RawListEntry, error) {
	if c.client == nil {
		return nil, fmt.Errorf("imapclient: not connected")
	}

	listCmd := c.client.List("", "*", nil)

	var entries []RawListEntry
	for {
		mbox := listCmd.Next()
		if mbox == nil {
			break
		}
		entries = append(entries, RawListEntry{
			Mailbox:    mbox.Mailbox,
			Delimiter:  string(mbox.Delim),
			Attributes: mbox.Attrs,
		})
	}
	if err := listCmd.Close(); err != nil {
		return nil, fmt.Errorf("imapclient: list mailboxes: %w", err)
	}
	return entries, nil
}

// SelectMailbox selects a mailbox, racing the blocking Wait() against ctx
// cancellation since go-imap v2 does not accept a context directly.
func (c *Client) SelectMailbox(ctx context.Context, name string) (*Mailbox, error) {
	if c.client == nil {
		return nil, fmt.Errorf("imapclient: not connected")
	}

	type result struct {
		data *imap.SelectData
		err  error
	}
	resultCh := make(chan result, 1)
	go func() {
		data, err := c.client.Select(name, nil).Wait()
		resultCh <- result{data, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultCh:
		if res.err != nil {
			return nil, fmt.Errorf("imapclient: select %s: %w", name, res.err)
		}
		return &Mailbox{
			Name:          name,
			UIDValidity:   res.data.UIDValidity,
			UIDNext:       uint32(res.data.UIDNext),
			Messages:      res.data.NumMessages,
			HighestModSeq: res.data.HighestModSeq,
		}, nil
	}
}

// GetMailboxStatus retrieves mailbox counters without selecting it.
func (c *Client) GetMailboxStatus(ctx context.Context, name string) (*Mailbox, error) {
	if c.client == nil {
		return nil, fmt.Errorf("imapclient: not connected")
	}

	options := &imap.StatusOptions{
		NumMessages: true,
		UIDNext:     true,
		UIDValidity: true,
		NumUnseen:   true,
	}

	type result struct {
		data *imap.StatusData
		err  error
	}
	resultCh := make(chan result, 1)
	go func() {
		data, err := c.client.Status(name, options).Wait()
		resultCh <- result{data, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultCh:
		if res.err != nil {
			return nil, fmt.Errorf("imapclient: status %s: %w", name, res.err)
		}
		mb := &Mailbox{Name: name, UIDValidity: res.data.UIDValidity}
		if res.data.UIDNext != 0 {
			mb.UIDNext = uint32(res.data.UIDNext)
		}
		if res.data.NumMessages != nil {
			mb.Messages = *res.data.NumMessages
		}
		if res.data.NumUnseen != nil {
			mb.Unseen = *res.data.NumUnseen
		}
		return mb, nil
	}
}

// SearchUIDRange returns message UIDs in [startUID, *] via UID SEARCH,
// the primary discovery operation used by the listener's poll loop.
func (c *Client) SearchUIDRange(ctx context.Context, startUID uint32) ([]imap.UID, error) {
	if c.client == nil {
		return nil, fmt.Errorf("imapclient: not connected")
	}

	uidSet := imap.UIDSet{}
	uidSet.AddRange(imap.UID(startUID), 0) // 0 means "*" (no upper bound)

	criteria := &imap.SearchCriteria{
		UID: []imap.UIDSet{uidSet},
	}

	type result struct {
		data *imap.SearchData
		err  error
	}
	resultCh := make(chan result, 1)
	go func() {
		data, err := c.client.UIDSearch(criteria, nil).Wait()
		resultCh <- result{data, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultCh:
		if res.err != nil {
			return nil, fmt.Errorf("imapclient: uid search: %w", res.err)
		}
		// A "N:*" range always matches the mailbox's highest UID, even when
		// that UID is below N, so drop anything under startUID.
		uids := res.data.AllUIDs()
		filtered := uids[:0]
		for _, uid := range uids {
			if uid >= imap.UID(startUID) {
				filtered = append(filtered, uid)
			}
		}
		return filtered, nil
	}
}

// SearchHeader returns the UIDs of messages whose header field matches
// value, used by the message controller's folder-enumeration fallback when
// looking up a message by Message-ID without a folder/UID hint.
func (c *Client) SearchHeader(ctx context.Context, field, value string) ([]imap.UID, error) {
	if c.client == nil {
		return nil, fmt.Errorf("imapclient: not connected")
	}

	criteria := &imap.SearchCriteria{
		Header: []imap.SearchCriteriaHeaderField{{Key: field, Value: value}},
	}

	type result struct {
		data *imap.SearchData
		err  error
	}
	resultCh := make(chan result, 1)
	go func() {
		data, err := c.client.UIDSearch(criteria, nil).Wait()
		resultCh <- result{data, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultCh:
		if res.err != nil {
			return nil, fmt.Errorf("imapclient: header search: %w", res.err)
		}
		return res.data.AllUIDs(), nil
	}
}

// SearchAll returns the UIDs of every message in the currently selected
// mailbox, ascending.
func (c *Client) SearchAll(ctx context.Context) ([]imap.UID, error) {
	if c.client == nil {
		return nil, fmt.Errorf("imapclient: not connected")
	}

	criteria := &imap.SearchCriteria{}

	type result struct {
		data *imap.SearchData
		err  error
	}
	resultCh := make(chan result, 1)
	go func() {
		data, err := c.client.UIDSearch(criteria, nil).Wait()
		resultCh <- result{data, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultCh:
		if res.err != nil {
			return nil, fmt.Errorf("imapclient: search all: %w", res.err)
		}
		return res.data.AllUIDs(), nil
	}
}

// FetchMessageRFC822 fetches the full RFC-822 source of a single message by
// UID.
func (c *Client) FetchMessageRFC822(ctx context.Context, uid imap.UID) ([]byte, error) {
	if c.client == nil {
		return nil, fmt.Errorf("imapclient: not connected")
	}

	uidSet := imap.UIDSet{}
	uidSet.AddNum(uid)

	fetchOptions := &imap.FetchOptions{
		BodySection: []*imap.FetchItemBodySection{{}},
	}

	type result struct {
		body []byte
		err  error
	}
	resultCh := make(chan result, 1)
	go func() {
		fetchCmd := c.client.Fetch(uidSet, fetchOptions)
		defer fetchCmd.Close()

		msg := fetchCmd.Next()
		if msg == nil {
			resultCh <- result{nil, fmt.Errorf("imapclient: message uid %d not found", uid)}
			return
		}
		var raw []byte
		var readErr error
		for {
			item := msg.Next()
			if item == nil {
				break
			}
			if data, ok := item.(imapclient.FetchItemDataBodySection); ok && data.Literal != nil {
				raw, readErr = io.ReadAll(io.LimitReader(data.Literal, maxMessageSize))
			}
		}
		if readErr != nil {
			resultCh <- result{nil, fmt.Errorf("imapclient: read body literal: %w", readErr)}
			return
		}
		if raw == nil {
			resultCh <- result{nil, fmt.Errorf("imapclient: no body section in fetch response")}
			return
		}
		resultCh <- result{raw, nil}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultCh:
		return res.body, res.err
	}
}

// AppendMessage appends a message to a mailbox and returns its assigned UID.
func (c *Client) AppendMessage(mailbox string, flags []imap.Flag, date time.Time, msg []byte) (imap.UID, error) {
	if c.client == nil {
		return 0, fmt.Errorf("imapclient: not connected")
	}

	options := &imap.AppendOptions{Flags: flags}
	if !date.IsZero() {
		options.Time = date
	}

	appendCmd := c.client.Append(mailbox, int64(len(msg)), options)
	if _, err := appendCmd.Write(msg); err != nil {
		return 0, fmt.Errorf("imapclient: write append data: %w", err)
	}
	if err := appendCmd.Close(); err != nil {
		return 0, fmt.Errorf("imapclient: close append command: %w", err)
	}
	data, err := appendCmd.Wait()
	if err != nil {
		return 0, fmt.Errorf("imapclient: append: %w", err)
	}
	return data.UID, nil
}

// AddFlags adds flags to the given UIDs in the currently selected mailbox.
func (c *Client) AddFlags(uids []imap.UID, flags []imap.Flag) error {
	if c.client == nil {
		return fmt.Errorf("imapclient: not connected")
	}
	if len(uids) == 0 {
		return nil
	}
	uidSet := imap.UIDSet{}
	for _, uid := range uids {
		uidSet.AddNum(uid)
	}
	storeCmd := c.client.Store(uidSet, &imap.StoreFlags{Op: imap.StoreFlagsAdd, Flags: flags, Silent: true}, nil)
	if err := storeCmd.Close(); err != nil {
		return fmt.Errorf("imapclient: add flags: %w", err)
	}
	return nil
}
