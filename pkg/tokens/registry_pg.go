package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgRegistry struct {
	dbPool *pgxpool.Pool
}

// NewPostgresRegistry stores registry rows in the access_tokens table.
func NewPostgresRegistry(dbPool *pgxpool.Pool) Registry {
	return &pgRegistry{dbPool: dbPool}
}

func (p *pgRegistry) Register(ctx context.Context, rec Record) error {
	perms := rec.Permissions
	if perms == nil {
		perms = []string{}
	}
	_, err := p.dbPool.Exec(ctx, `INSERT INTO access_tokens(jti,tenant_id,site_id,origin,permissions,issued_at,expires_at)
	  VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		rec.JTI, rec.TenantID, rec.SiteID, rec.Origin, perms, rec.IssuedAt, rec.ExpiresAt)
	if err != nil {
		return fmt.Errorf("register token: %w", err)
	}
	return nil
}

func (p *pgRegistry) Lookup(ctx context.Context, jti string) (Record, error) {
	row := p.dbPool.QueryRow(ctx, `SELECT jti,tenant_id,site_id,origin,permissions,issued_at,expires_at,revoked,revoked_at,COALESCE(revocation_reason,'')
	  FROM access_tokens WHERE jti=$1`, jti)
	var rec Record
	if err := row.Scan(&rec.JTI, &rec.TenantID, &rec.SiteID, &rec.Origin, &rec.Permissions, &rec.IssuedAt, &rec.ExpiresAt,
		&rec.Revoked, &rec.RevokedAt, &rec.RevocationReason); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrUnknownToken
		}
		return Record{}, fmt.Errorf("lookup token: %w", err)
	}
	return rec, nil
}

func (p *pgRegistry) Revoke(ctx context.Context, jti, reason string, at time.Time) error {
	tag, err := p.dbPool.Exec(ctx, `UPDATE access_tokens
	  SET revoked = true,
	      revoked_at = COALESCE(revoked_at, $2),
	      revocation_reason = COALESCE(revocation_reason, $3)
	  WHERE jti=$1`, jti, at, reason)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUnknownToken
	}
	return nil
}

func (p *pgRegistry) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := p.dbPool.Exec(ctx, `DELETE FROM access_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("purge tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
