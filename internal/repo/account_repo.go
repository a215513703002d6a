package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/hkdb/nolas-go/internal/models"
)

// AccountRepo persists Account rows.
type AccountRepo interface {
	Create(ctx context.Context, account *models.Account) error
	GetByID(ctx context.Context, id int64) (*models.Account, error)
	GetByUUID(ctx context.Context, uuid string) (*models.Account, error)
	GetByAppAndEmail(ctx context.Context, appID int64, email string) (*models.Account, error)
	ListActive(ctx context.Context) ([]models.Account, error)
	UpdateStatus(ctx context.Context, id int64, status models.AccountStatus) error
	UpdateCredentials(ctx context.Context, id int64, encryptedCreds []byte, providerCtx models.ProviderContext) error
}

type postgresAccountRepo struct {
	db *sqlx.DB
}

// NewAccountRepo returns a Postgres-backed AccountRepo.
func NewAccountRepo(db *sqlx.DB) AccountRepo {
	return &postgresAccountRepo{db: db}
}

const accountColumns = `id, app_id, uuid, email, provider, encrypted_creds, provider_context, status, created_at, updated_at`

func (r *postgresAccountRepo) Create(ctx context.Context, account *models.Account) error {
	const query = `
		INSERT INTO accounts (app_id, uuid, email, provider, encrypted_creds, provider_context, status)
		VALUES (:app_id, :uuid, :email, :provider, :encrypted_creds, :provider_context, :status)
		RETURNING id, created_at, updated_at
	`
	rows, err := r.db.NamedQueryContext(ctx, query, account)
	if err != nil {
		return fmt.Errorf("repo: create account: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt); err != nil {
			return fmt.Errorf("repo: scan created account: %w", err)
		}
	}
	return nil
}

func (r *postgresAccountRepo) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	var a models.Account
	query := fmt.Sprintf(`SELECT %s FROM accounts WHERE id = $1`, accountColumns)
	if err := r.db.GetContext(ctx, &a, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("repo: get account by id: %w", err)
	}
	return &a, nil
}

func (r *postgresAccountRepo) GetByUUID(ctx context.Context, uuid string) (*models.Account, error) {
	var a models.Account
	query := fmt.Sprintf(`SELECT %s FROM accounts WHERE uuid = $1`, accountColumns)
	if err := r.db.GetContext(ctx, &a, query, uuid); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("repo: get account by uuid: %w", err)
	}
	return &a, nil
}

func (r *postgresAccountRepo) GetByAppAndEmail(ctx context.Context, appID int64, email string) (*models.Account, error) {
	var a models.Account
	query := fmt.Sprintf(`SELECT %s FROM accounts WHERE app_id = $1 AND email = $2`, accountColumns)
	if err := r.db.GetContext(ctx, &a, query, appID, email); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("repo: get account by app and email: %w", err)
	}
	return &a, nil
}

func (r *postgresAccountRepo) ListActive(ctx context.Context) ([]models.Account, error) {
	var accounts []models.Account
	query := fmt.Sprintf(`SELECT %s FROM accounts WHERE status = $1 ORDER BY id`, accountColumns)
	if err := r.db.SelectContext(ctx, &accounts, query, models.AccountActive); err != nil {
		return nil, fmt.Errorf("repo: list active accounts: %w", err)
	}
	return accounts, nil
}

func (r *postgresAccountRepo) UpdateStatus(ctx context.Context, id int64, status models.AccountStatus) error {
	const query = `UPDATE accounts SET status = $1, updated_at = now() WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, status, id); err != nil {
		return fmt.Errorf("repo: update account status: %w", err)
	}
	return nil
}

// UpdateCredentials rewrites an existing account's encrypted credentials and
// connection parameters, used when a user re-runs the authorization flow for
// an account that was already created.
func (r *postgresAccountRepo) UpdateCredentials(ctx context.Context, id int64, encryptedCreds []byte, providerCtx models.ProviderContext) error {
	const query = `
		UPDATE accounts
		SET encrypted_creds = $1, provider_context = $2, updated_at = now()
		WHERE id = $3
	`
	if _, err := r.db.ExecContext(ctx, query, encryptedCreds, providerCtx, id); err != nil {
		return fmt.Errorf("repo: update account credentials: %w", err)
	}
	return nil
}
