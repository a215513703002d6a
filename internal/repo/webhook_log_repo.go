package repo

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/hkdb/nolas-go/internal/models"
)

// WebhookLogRepo persists an append-only audit trail of delivery attempts.
type WebhookLogRepo interface {
	Create(ctx context.Context, log *models.WebhookLog) error
	ListByAccount(ctx context.Context, accountID int64, limit int) ([]models.WebhookLog, error)
}

type postgresWebhookLogRepo struct {
	db *sqlx.DB
}

// NewWebhookLogRepo returns a Postgres-backed WebhookLogRepo.
func NewWebhookLogRepo(db *sqlx.DB) WebhookLogRepo {
	return &postgresWebhookLogRepo{db: db}
}

func (r *postgresWebhookLogRepo) Create(ctx context.Context, log *models.WebhookLog) error {
	const query = `
		INSERT INTO webhook_logs (app_id, account_id, folder, uid, target_url, http_status, body, attempt, delivered_at)
		VALUES (:app_id, :account_id, :folder, :uid, :target_url, :http_status, :body, :attempt, :delivered_at)
		RETURNING id, created_at
	`
	rows, err := r.db.NamedQueryContext(ctx, query, log)
	if err != nil {
		return fmt.Errorf("repo: create webhook log: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&log.ID, &log.CreatedAt); err != nil {
			return fmt.Errorf("repo: scan created webhook log: %w", err)
		}
	}
	return nil
}

func (r *postgresWebhookLogRepo) ListByAccount(ctx context.Context, accountID int64, limit int) ([]models.WebhookLog, error) {
	var logs []models.WebhookLog
	const query = `
		SELECT id, app_id, account_id, folder, uid, target_url, http_status, body, attempt, delivered_at, created_at
		FROM webhook_logs WHERE account_id = $1 ORDER BY created_at DESC LIMIT $2
	`
	if err := r.db.SelectContext(ctx, &logs, query, accountID, limit); err != nil {
		return nil, fmt.Errorf("repo: list webhook logs: %w", err)
	}
	return logs, nil
}
