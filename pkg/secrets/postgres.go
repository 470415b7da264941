package secrets

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tenantgate/pkg/db"
)

type pgStore struct {
	dbPool *pgxpool.Pool
	sealer Sealer
}

// NewPostgresStore keeps secrets in tenant_secrets, sealed with sealer.
func NewPostgresStore(dbPool *pgxpool.Pool, sealer Sealer) Store {
	return &pgStore{dbPool: dbPool, sealer: sealer}
}

func (p *pgStore) Active(ctx context.Context, tenantID string) (Secret, error) {
	row := p.dbPool.QueryRow(ctx, `SELECT id::text, tenant_id, secret_sealed, label, created_at
	  FROM tenant_secrets WHERE tenant_id=$1 AND active`, tenantID)
	s := Secret{Active: true}
	var sealed []byte
	if err := row.Scan(&s.ID, &s.TenantID, &sealed, &s.Label, &s.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Secret{}, ErrNoActiveSecret
		}
		return Secret{}, fmt.Errorf("load active secret: %w", err)
	}
	plain, err := p.sealer.Open(sealed)
	if err != nil {
		return Secret{}, fmt.Errorf("open secret %s: %w", s.ID, err)
	}
	s.Value = string(plain)
	return s, nil
}

func (p *pgStore) Rotate(ctx context.Context, next Secret) error {
	sealed, err := p.sealer.Seal([]byte(next.Value))
	if err != nil {
		return fmt.Errorf("seal secret: %w", err)
	}
	tx, err := db.BeginTxWithTenant(ctx, p.dbPool, next.TenantID)
	if err != nil {
		return fmt.Errorf("begin rotate: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `UPDATE tenant_secrets SET active=false WHERE tenant_id=$1 AND active`, next.TenantID); err != nil {
		return fmt.Errorf("deactivate secrets: %w", err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO tenant_secrets(id,tenant_id,secret_sealed,label,active,created_at)
	  VALUES ($1,$2,$3,$4,true,$5)`, next.ID, next.TenantID, sealed, next.Label, next.CreatedAt); err != nil {
		return fmt.Errorf("insert secret: %w", err)
	}
	return tx.Commit(ctx)
}
