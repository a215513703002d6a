// Package repo implements Postgres-backed persistence for every model in
// internal/models, following the interface-plus-sqlx-struct pattern used
// throughout the wider corpus (e.g. messenger/backend/internal/user/repository).
package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/hkdb/nolas-go/internal/models"
)

// AppRepo persists App rows.
type AppRepo interface {
	Create(ctx context.Context, app *models.App) error
	GetByID(ctx context.Context, id int64) (*models.App, error)
	GetByUUID(ctx context.Context, uuid string) (*models.App, error)
	GetByAPIKey(ctx context.Context, apiKey string) (*models.App, error)
}

type postgresAppRepo struct {
	db *sqlx.DB
}

// NewAppRepo returns a Postgres-backed AppRepo.
func NewAppRepo(db *sqlx.DB) AppRepo {
	return &postgresAppRepo{db: db}
}

func (r *postgresAppRepo) Create(ctx context.Context, app *models.App) error {
	const query = `
		INSERT INTO apps (uuid, name, api_key, webhook_url, webhook_secret)
		VALUES (:uuid, :name, :api_key, :webhook_url, :webhook_secret)
		RETURNING id, created_at
	`
	rows, err := r.db.NamedQueryContext(ctx, query, app)
	if err != nil {
		return fmt.Errorf("repo: create app: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&app.ID, &app.CreatedAt); err != nil {
			return fmt.Errorf("repo: scan created app: %w", err)
		}
	}
	return nil
}

func (r *postgresAppRepo) GetByID(ctx context.Context, id int64) (*models.App, error) {
	var app models.App
	const query = `SELECT id, uuid, name, api_key, webhook_url, webhook_secret, created_at FROM apps WHERE id = $1`
	if err := r.db.GetContext(ctx, &app, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("repo: get app by id: %w", err)
	}
	return &app, nil
}

func (r *postgresAppRepo) GetByUUID(ctx context.Context, uuid string) (*models.App, error) {
	var app models.App
	const query = `SELECT id, uuid, name, api_key, webhook_url, webhook_secret, created_at FROM apps WHERE uuid = $1`
	if err := r.db.GetContext(ctx, &app, query, uuid); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("repo: get app by uuid: %w", err)
	}
	return &app, nil
}

func (r *postgresAppRepo) GetByAPIKey(ctx context.Context, apiKey string) (*models.App, error) {
	var app models.App
	const query = `SELECT id, uuid, name, api_key, webhook_url, webhook_secret, created_at FROM apps WHERE api_key = $1`
	if err := r.db.GetContext(ctx, &app, query, apiKey); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("repo: get app by api key: %w", err)
	}
	return &app, nil
}
