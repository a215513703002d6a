package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/hkdb/nolas-go/internal/models"
)

// EmailRepo persists the lightweight local message index.
type EmailRepo interface {
	Upsert(ctx context.Context, email *models.Email) error
	GetByMessageID(ctx context.Context, accountID int64, messageID string) (*models.Email, error)
	GetByAccountAndUIDOrMessageID(ctx context.Context, accountID int64, folder string, uid uint32, messageID string) (*models.Email, error)
	ListByAccount(ctx context.Context, accountID int64, folder string, limit, offset int) ([]models.Email, error)
}

type postgresEmailRepo struct {
	db *sqlx.DB
}

// NewEmailRepo returns a Postgres-backed EmailRepo.
func NewEmailRepo(db *sqlx.DB) EmailRepo {
	return &postgresEmailRepo{db: db}
}

// Upsert inserts a row for (account_id, message_id), or updates the folder
// and UID if the message has since moved, per the idempotent-index
// invariant: re-ingesting the same message must never create a duplicate.
func (r *postgresEmailRepo) Upsert(ctx context.Context, email *models.Email) error {
	const query = `
		INSERT INTO emails (account_id, message_id, thread_id, folder, uid)
		VALUES (:account_id, :message_id, :thread_id, :folder, :uid)
		ON CONFLICT (account_id, message_id) DO UPDATE
			SET thread_id = EXCLUDED.thread_id,
			    folder = EXCLUDED.folder,
			    uid = EXCLUDED.uid,
			    updated_at = now()
		RETURNING id, created_at, updated_at
	`
	rows, err := r.db.NamedQueryContext(ctx, query, email)
	if err != nil {
		return fmt.Errorf("repo: upsert email: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&email.ID, &email.CreatedAt, &email.UpdatedAt); err != nil {
			return fmt.Errorf("repo: scan upserted email: %w", err)
		}
	}
	return nil
}

func (r *postgresEmailRepo) GetByMessageID(ctx context.Context, accountID int64, messageID string) (*models.Email, error) {
	var e models.Email
	const query = `
		SELECT id, account_id, message_id, thread_id, folder, uid, created_at, updated_at
		FROM emails WHERE account_id = $1 AND message_id = $2
	`
	if err := r.db.GetContext(ctx, &e, query, accountID, messageID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("repo: get email by message id: %w", err)
	}
	return &e, nil
}

// GetByAccountAndUIDOrMessageID looks up the index row matching either the
// current (folder, uid) position or the message's own Message-ID, whichever
// hits first. The OR composition lets the listener recognize a message it
// already indexed even after a folder move or UID renumbering shifted its
// uid out from under the original row, instead of only ever matching on
// Message-ID.
func (r *postgresEmailRepo) GetByAccountAndUIDOrMessageID(ctx context.Context, accountID int64, folder string, uid uint32, messageID string) (*models.Email, error) {
	var e models.Email
	const query = `
		SELECT id, account_id, message_id, thread_id, folder, uid, created_at, updated_at
		FROM emails
		WHERE account_id = $1 AND ((folder = $2 AND uid = $3) OR message_id = $4)
		LIMIT 1
	`
	if err := r.db.GetContext(ctx, &e, query, accountID, folder, uid, messageID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("repo: get email by uid or message id: %w", err)
	}
	return &e, nil
}

func (r *postgresEmailRepo) ListByAccount(ctx context.Context, accountID int64, folder string, limit, offset int) ([]models.Email, error) {
	var emails []models.Email
	query := `
		SELECT id, account_id, message_id, thread_id, folder, uid, created_at, updated_at
		FROM emails WHERE account_id = $1
	`
	args := []interface{}{accountID}
	if folder != "" {
		query += ` AND folder = $2 ORDER BY uid DESC LIMIT $3 OFFSET $4`
		args = append(args, folder, limit, offset)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		args = append(args, limit, offset)
	}
	if err := r.db.SelectContext(ctx, &emails, query, args...); err != nil {
		return nil, fmt.Errorf("repo: list emails: %w", err)
	}
	return emails, nil
}
