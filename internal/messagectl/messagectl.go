// Package messagectl serves on-demand message reads: fetch a single message
// by Message-ID (optionally hinted by folder/UID) or list a folder's
// messages page by page.
package messagectl

import (
	"context"
	"fmt"

	"github.com/emersion/go-imap/v2"

	"github.com/hkdb/nolas-go/internal/connpool"
	"github.com/hkdb/nolas-go/internal/folderutil"
	"github.com/hkdb/nolas-go/internal/models"
	"github.com/hkdb/nolas-go/internal/repo"
	"github.com/hkdb/nolas-go/internal/translator"
)

// Controller serves reads against a live IMAP session, consulting the local
// index first when a hint narrows the search.
type Controller struct {
	pool   *connpool.Pool
	emails repo.EmailRepo
}

// New returns a Controller.
func New(pool *connpool.Pool, emails repo.EmailRepo) *Controller {
	return &Controller{pool: pool, emails: emails}
}

// GetByMessageId fetches the single message identified by messageID
// (without surrounding angle brackets). If folderHint/uidHint are supplied,
// it tries a direct FETCH there first; otherwise, and on any hint miss, it
// enumerates the account's folders and SEARCHes each by Message-ID header.
// Returns (nil, nil) if the message cannot be found anywhere.
func (c *Controller) GetByMessageId(ctx context.Context, account *models.Account, messageID, folderHint string, uidHint uint32) (*models.CanonicalMessage, error) {
	host := account.ProviderContext.ImapHost

	if folderHint != "" && uidHint != 0 {
		msg, err := c.fetchAndVerify(ctx, account, host, folderHint, imap.UID(uidHint), messageID)
		if err != nil {
			return nil, err
		}
		if msg != nil {
			return msg, nil
		}
	}

	conn, err := c.pool.GetConnection(ctx, account.UUID, host)
	if err != nil {
		return nil, fmt.Errorf("messagectl: acquire connection: %w", err)
	}
	folders := folderutil.ListFolders(ctx, conn.Client())
	c.pool.Release(conn)

	for _, folder := range folders {
		if folder == folderHint {
			continue
		}
		msg, err := c.searchAndFetch(ctx, account, host, folder, messageID)
		if err != nil {
			return nil, err
		}
		if msg != nil {
			return msg, nil
		}
	}
	return nil, nil
}

// fetchAndVerify opens folder, FETCHes uid, and returns the translated
// message only if its actual Message-ID matches messageID — the hint can be
// stale (a message can move or be renumbered between ingestion and read).
func (c *Controller) fetchAndVerify(ctx context.Context, account *models.Account, host, folder string, uid imap.UID, messageID string) (*models.CanonicalMessage, error) {
	conn, err := c.pool.GetConnection(ctx, account.UUID, host)
	if err != nil {
		return nil, fmt.Errorf("messagectl: acquire connection: %w", err)
	}
	client := conn.Client()

	if _, err := client.SelectMailbox(ctx, folder); err != nil {
		c.pool.Discard(conn)
		return nil, fmt.Errorf("messagectl: select %s: %w", folder, err)
	}

	raw, err := client.FetchMessageRFC822(ctx, uid)
	if err != nil {
		// Hint may be stale (message moved/expunged); treat as a miss, not an error.
		c.pool.Discard(conn)
		return nil, nil
	}
	c.pool.Release(conn)

	msg, err := translator.Translate(raw, account.UUID, folder, false, true)
	if err != nil {
		return nil, fmt.Errorf("messagectl: translate: %w", err)
	}
	if msg.MessageID != messageID {
		return nil, nil
	}
	return msg, nil
}

// searchAndFetch issues SEARCH HEADER Message-ID "<id>" against folder,
// taking the first match.
func (c *Controller) searchAndFetch(ctx context.Context, account *models.Account, host, folder, messageID string) (*models.CanonicalMessage, error) {
	raw, err := c.fetchRawBySearch(ctx, account, host, folder, messageID)
	if err != nil || raw == nil {
		return nil, err
	}
	return translator.Translate(raw, account.UUID, folder, false, true)
}

// fetchRawBySearch selects folder, issues SEARCH HEADER Message-ID "<id>",
// and FETCHes the first match's raw RFC-822 bytes. Returns (nil, nil) on
// any miss (no such folder, no match, expunged between SEARCH and FETCH).
func (c *Controller) fetchRawBySearch(ctx context.Context, account *models.Account, host, folder, messageID string) ([]byte, error) {
	conn, err := c.pool.GetConnection(ctx, account.UUID, host)
	if err != nil {
		return nil, fmt.Errorf("messagectl: acquire connection: %w", err)
	}
	client := conn.Client()

	if _, err := client.SelectMailbox(ctx, folder); err != nil {
		c.pool.Discard(conn)
		return nil, nil
	}

	uids, err := client.SearchHeader(ctx, "Message-ID", "<"+messageID+">")
	if err != nil {
		c.pool.Discard(conn)
		return nil, nil
	}
	if len(uids) == 0 {
		c.pool.Release(conn)
		return nil, nil
	}

	raw, err := client.FetchMessageRFC822(ctx, uids[0])
	if err != nil {
		c.pool.Discard(conn)
		return nil, nil
	}
	c.pool.Release(conn)
	return raw, nil
}

// GetRawByMessageId enumerates the account's folders searching for
// messageID and returns the first match's raw RFC-822 bytes, for callers
// that need the original bytes rather than the translated canonical form
// (attachment content download, which is never retained post-translation).
func (c *Controller) GetRawByMessageId(ctx context.Context, account *models.Account, messageID string) ([]byte, error) {
	host := account.ProviderContext.ImapHost

	conn, err := c.pool.GetConnection(ctx, account.UUID, host)
	if err != nil {
		return nil, fmt.Errorf("messagectl: acquire connection: %w", err)
	}
	folders := folderutil.ListFolders(ctx, conn.Client())
	c.pool.Release(conn)

	for _, folder := range folders {
		raw, err := c.fetchRawBySearch(ctx, account, host, folder, messageID)
		if err != nil {
			return nil, err
		}
		if raw != nil {
			return raw, nil
		}
	}
	return nil, nil
}

// ListMessages returns a page of translated messages from folder, newest
// UID first, honoring limit/offset over the folder's SEARCH ALL result.
func (c *Controller) ListMessages(ctx context.Context, account *models.Account, folder string, limit, offset int) ([]*models.CanonicalMessage, error) {
	host := account.ProviderContext.ImapHost

	conn, err := c.pool.GetConnection(ctx, account.UUID, host)
	if err != nil {
		return nil, fmt.Errorf("messagectl: acquire connection: %w", err)
	}
	client := conn.Client()

	if _, err := client.SelectMailbox(ctx, folder); err != nil {
		c.pool.Discard(conn)
		return nil, fmt.Errorf("messagectl: select %s: %w", folder, err)
	}

	uids, err := client.SearchAll(ctx)
	if err != nil {
		c.pool.Discard(conn)
		return nil, fmt.Errorf("messagectl: search all: %w", err)
	}

	// Newest first, per the read API's documented ordering.
	for i, j := 0, len(uids)-1; i < j; i, j = i+1, j-1 {
		uids[i], uids[j] = uids[j], uids[i]
	}

	page := paginate(uids, limit, offset)

	messages := make([]*models.CanonicalMessage, 0, len(page))
	for _, uid := range page {
		raw, err := client.FetchMessageRFC822(ctx, uid)
		if err != nil {
			continue // skip messages expunged between SEARCH and FETCH
		}
		msg, err := translator.Translate(raw, account.UUID, folder, false, true)
		if err != nil {
			continue
		}
		messages = append(messages, msg)
	}
	c.pool.Release(conn)

	return messages, nil
}

func paginate(uids []imap.UID, limit, offset int) []imap.UID {
	if offset >= len(uids) {
		return nil
	}
	end := offset + limit
	if end > len(uids) || limit <= 0 {
		end = len(uids)
	}
	return uids[offset:end]
}
