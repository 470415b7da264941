package tenantctx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tenantgate/pkg/db"
)

type pgRepository struct {
	dbPool *pgxpool.Pool
}

// NewPostgresRepository stores each context as a jsonb document in tenant_contexts.
func NewPostgresRepository(dbPool *pgxpool.Pool) Repository {
	return &pgRepository{dbPool: dbPool}
}

func decode(raw []byte) (Context, error) {
	var c Context
	if err := json.Unmarshal(raw, &c); err != nil {
		return Context{}, fmt.Errorf("decode tenant context: %w", err)
	}
	return c, nil
}

func (p *pgRepository) Load(ctx context.Context, tenantID string) (Context, error) {
	var raw []byte
	err := p.dbPool.QueryRow(ctx, `SELECT document FROM tenant_contexts WHERE tenant_id=$1`, tenantID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return Context{}, ErrNotFound
	}
	if err != nil {
		return Context{}, fmt.Errorf("load tenant context: %w", err)
	}
	return decode(raw)
}

func (p *pgRepository) Insert(ctx context.Context, c Context) (bool, error) {
	raw, err := encodeDurable(c)
	if err != nil {
		return false, err
	}
	tag, err := p.dbPool.Exec(ctx, `INSERT INTO tenant_contexts(tenant_id, document, created_at, updated_at)
	  VALUES ($1,$2,$3,$4) ON CONFLICT (tenant_id) DO NOTHING`,
		c.TenantID, raw, c.Metadata.CreatedAt, c.Metadata.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("insert tenant context: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (p *pgRepository) Mutate(ctx context.Context, tenantID string, fn func(*Context) error) (Context, error) {
	tx, err := db.BeginTxWithTenant(ctx, p.dbPool, tenantID)
	if err != nil {
		return Context{}, fmt.Errorf("begin context update: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var raw []byte
	err = tx.QueryRow(ctx, `SELECT document FROM tenant_contexts WHERE tenant_id=$1 FOR UPDATE`, tenantID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return Context{}, ErrNotFound
	}
	if err != nil {
		return Context{}, fmt.Errorf("lock tenant context: %w", err)
	}
	c, err := decode(raw)
	if err != nil {
		return Context{}, err
	}
	if err := fn(&c); err != nil {
		return Context{}, err
	}
	out, err := encodeDurable(c)
	if err != nil {
		return Context{}, err
	}
	if _, err := tx.Exec(ctx, `UPDATE tenant_contexts SET document=$2, updated_at=$3 WHERE tenant_id=$1`,
		tenantID, out, c.Metadata.UpdatedAt); err != nil {
		return Context{}, fmt.Errorf("write tenant context: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Context{}, fmt.Errorf("commit tenant context: %w", err)
	}
	return c, nil
}

func (p *pgRepository) Delete(ctx context.Context, tenantID string) error {
	if _, err := p.dbPool.Exec(ctx, `DELETE FROM tenant_contexts WHERE tenant_id=$1`, tenantID); err != nil {
		return fmt.Errorf("delete tenant context: %w", err)
	}
	return nil
}
