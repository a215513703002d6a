package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/hkdb/nolas-go/internal/models"
)

// UidTrackingRepo persists the per-(account, folder) ingestion watermark.
type UidTrackingRepo interface {
	Get(ctx context.Context, accountID int64, folder string) (*models.UidTracking, error)
	Advance(ctx context.Context, accountID int64, folder string, uid uint32) error
	DeleteByAccount(ctx context.Context, accountID int64) error
}

type postgresUidTrackingRepo struct {
	db *sqlx.DB
}

// NewUidTrackingRepo returns a Postgres-backed UidTrackingRepo.
func NewUidTrackingRepo(db *sqlx.DB) UidTrackingRepo {
	return &postgresUidTrackingRepo{db: db}
}

func (r *postgresUidTrackingRepo) Get(ctx context.Context, accountID int64, folder string) (*models.UidTracking, error) {
	var t models.UidTracking
	const query = `SELECT account_id, folder, last_seen_uid, last_checked_at FROM uid_tracking WHERE account_id = $1 AND folder = $2`
	if err := r.db.GetContext(ctx, &t, query, accountID, folder); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("repo: get uid tracking: %w", err)
	}
	return &t, nil
}

// Advance moves the watermark forward monotonically. It never regresses an
// existing watermark, even if called with a smaller uid, matching the
// exactly-once-per-UID listener invariant.
func (r *postgresUidTrackingRepo) Advance(ctx context.Context, accountID int64, folder string, uid uint32) error {
	const query = `
		INSERT INTO uid_tracking (account_id, folder, last_seen_uid, last_checked_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (account_id, folder) DO UPDATE
			SET last_seen_uid = GREATEST(uid_tracking.last_seen_uid, EXCLUDED.last_seen_uid),
			    last_checked_at = now()
	`
	if _, err := r.db.ExecContext(ctx, query, accountID, folder, uid); err != nil {
		return fmt.Errorf("repo: advance uid tracking: %w", err)
	}
	return nil
}

// DeleteByAccount removes every watermark row for an account, so a later
// reactivation restarts ingestion from scratch rather than resuming at a
// stale high-water mark.
func (r *postgresUidTrackingRepo) DeleteByAccount(ctx context.Context, accountID int64) error {
	const query = `DELETE FROM uid_tracking WHERE account_id = $1`
	if _, err := r.db.ExecContext(ctx, query, accountID); err != nil {
		return fmt.Errorf("repo: delete uid tracking for account: %w", err)
	}
	return nil
}
