package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/hkdb/nolas-go/internal/models"
)

// ConnectionHealthRepo persists listener supervisor health state.
type ConnectionHealthRepo interface {
	Get(ctx context.Context, accountID int64, folder string) (*models.ConnectionHealth, error)
	RecordSuccess(ctx context.Context, accountID int64, folder string) error
	RecordFailure(ctx context.Context, accountID int64, folder string, errMsg string) (*models.ConnectionHealth, error)
	SetActive(ctx context.Context, accountID int64, folder string, active bool) error
}

type postgresConnectionHealthRepo struct {
	db *sqlx.DB
}

// NewConnectionHealthRepo returns a Postgres-backed ConnectionHealthRepo.
func NewConnectionHealthRepo(db *sqlx.DB) ConnectionHealthRepo {
	return &postgresConnectionHealthRepo{db: db}
}

func (r *postgresConnectionHealthRepo) Get(ctx context.Context, accountID int64, folder string) (*models.ConnectionHealth, error) {
	var h models.ConnectionHealth
	const query = `
		SELECT account_id, folder, last_success_at, consecutive_failures, last_error, is_active
		FROM connection_health WHERE account_id = $1 AND folder = $2
	`
	if err := r.db.GetContext(ctx, &h, query, accountID, folder); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("repo: get connection health: %w", err)
	}
	return &h, nil
}

func (r *postgresConnectionHealthRepo) RecordSuccess(ctx context.Context, accountID int64, folder string) error {
	const query = `
		INSERT INTO connection_health (account_id, folder, last_success_at, consecutive_failures, last_error, is_active)
		VALUES ($1, $2, now(), 0, '', true)
		ON CONFLICT (account_id, folder) DO UPDATE
			SET last_success_at = now(), consecutive_failures = 0, last_error = '', is_active = true
	`
	if _, err := r.db.ExecContext(ctx, query, accountID, folder); err != nil {
		return fmt.Errorf("repo: record connection success: %w", err)
	}
	return nil
}

// RecordFailure increments the consecutive failure counter, sets is_active
// to false once the counter reaches models.MaxConsecutiveFailures, and
// returns the resulting row so the caller can decide whether to retire the
// supervisor.
func (r *postgresConnectionHealthRepo) RecordFailure(ctx context.Context, accountID int64, folder string, errMsg string) (*models.ConnectionHealth, error) {
	const query = `
		INSERT INTO connection_health (account_id, folder, consecutive_failures, last_error, is_active)
		VALUES ($1, $2, 1, $3, true)
		ON CONFLICT (account_id, folder) DO UPDATE
			SET consecutive_failures = connection_health.consecutive_failures + 1,
			    last_error = $3,
			    is_active = connection_health.consecutive_failures + 1 < $4
		RETURNING account_id, folder, last_success_at, consecutive_failures, last_error, is_active
	`
	var h models.ConnectionHealth
	if err := r.db.GetContext(ctx, &h, query, accountID, folder, errMsg, models.MaxConsecutiveFailures); err != nil {
		return nil, fmt.Errorf("repo: record connection failure: %w", err)
	}
	return &h, nil
}

func (r *postgresConnectionHealthRepo) SetActive(ctx context.Context, accountID int64, folder string, active bool) error {
	const query = `
		INSERT INTO connection_health (account_id, folder, is_active)
		VALUES ($1, $2, $3)
		ON CONFLICT (account_id, folder) DO UPDATE SET is_active = $3
	`
	if _, err := r.db.ExecContext(ctx, query, accountID, folder, active); err != nil {
		return fmt.Errorf("repo: set connection active: %w", err)
	}
	return nil
}
