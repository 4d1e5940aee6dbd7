package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/tembohq/sms-gateway/internal/model"
)

// Credential is an API credential joined with its owning tenant, the unit the
// auth middleware resolves a key to.
type Credential struct {
	model.APICredential
	TenantName    string `db:"tenant_name"`
	TenantStatus  string `db:"tenant_status"`
	CountryCode   string `db:"country_code"`
}

type CredentialsRepository interface {
	GetByAPIKey(ctx context.Context, apiKey string) (*Credential, error)
}

type CredentialsRepositoryImpl struct {
	db *sqlx.DB
}

func NewCredentialsRepository(db *sqlx.DB) *CredentialsRepositoryImpl {
	return &CredentialsRepositoryImpl{db: db}
}

var _ CredentialsRepository = (*CredentialsRepositoryImpl)(nil)

func (r *CredentialsRepositoryImpl) GetByAPIKey(ctx context.Context, apiKey string) (*Credential, error) {
	var c Credential
	err := r.db.GetContext(ctx, &c, `
		SELECT k.id, k.tenant_id, k.api_key, k.status, k.can_read, k.can_write,
		       k.limit_per_minute, k.limit_per_hour, k.limit_per_day,
		       k.created_at, k.updated_at,
		       t.name AS tenant_name, t.status AS tenant_status, t.country_code
		  FROM api_credentials k
		  JOIN tenants t ON t.id = k.tenant_id
		 WHERE k.api_key = ? LIMIT 1
	`, apiKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
