package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/hkdb/nolas-go/internal/models"
)

// AuthorizationRequestRepo persists ephemeral OAuth2-style exchange records.
type AuthorizationRequestRepo interface {
	Create(ctx context.Context, req *models.AuthorizationRequest) error
	GetByCode(ctx context.Context, code string) (*models.AuthorizationRequest, error)
	MarkAuthorized(ctx context.Context, id, accountID int64, code string) error
	MarkCodeUsed(ctx context.Context, id int64) error
}

type postgresAuthorizationRequestRepo struct {
	db *sqlx.DB
}

// NewAuthorizationRequestRepo returns a Postgres-backed AuthorizationRequestRepo.
func NewAuthorizationRequestRepo(db *sqlx.DB) AuthorizationRequestRepo {
	return &postgresAuthorizationRequestRepo{db: db}
}

func (r *postgresAuthorizationRequestRepo) Create(ctx context.Context, req *models.AuthorizationRequest) error {
	const query = `
		INSERT INTO oauth2_authorization_requests (app_id, client_id, redirect_uri, state, scope, status, expires_at)
		VALUES (:app_id, :client_id, :redirect_uri, :state, :scope, :status, :expires_at)
		RETURNING id, created_at
	`
	rows, err := r.db.NamedQueryContext(ctx, query, req)
	if err != nil {
		return fmt.Errorf("repo: create authorization request: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&req.ID, &req.CreatedAt); err != nil {
			return fmt.Errorf("repo: scan created authorization request: %w", err)
		}
	}
	return nil
}

func (r *postgresAuthorizationRequestRepo) GetByCode(ctx context.Context, code string) (*models.AuthorizationRequest, error) {
	var req models.AuthorizationRequest
	const query = `
		SELECT id, app_id, client_id, redirect_uri, state, scope, status, code, code_used, expires_at, account_id, created_at
		FROM oauth2_authorization_requests WHERE code = $1
	`
	if err := r.db.GetContext(ctx, &req, query, code); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("repo: get authorization request by code: %w", err)
	}
	return &req, nil
}

// MarkAuthorized transitions a pending request to authorized, attaching the
// resolved account and the one-time code the client will later exchange.
func (r *postgresAuthorizationRequestRepo) MarkAuthorized(ctx context.Context, id, accountID int64, code string) error {
	const query = `
		UPDATE oauth2_authorization_requests
		SET status = $1, account_id = $2, code = $3
		WHERE id = $4
	`
	if _, err := r.db.ExecContext(ctx, query, models.AuthorizationAuthorized, accountID, code, id); err != nil {
		return fmt.Errorf("repo: mark authorization authorized: %w", err)
	}
	return nil
}

// MarkCodeUsed flips code_used, enforcing the one-shot-code invariant.
func (r *postgresAuthorizationRequestRepo) MarkCodeUsed(ctx context.Context, id int64) error {
	const query = `UPDATE oauth2_authorization_requests SET code_used = true WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("repo: mark authorization code used: %w", err)
	}
	return nil
}
