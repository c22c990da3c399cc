package localstore

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"tiketloka-storefront/internal/domain"
)

type postgresRepo struct {
	pool      *pgxpool.Pool
	namespace string
}

// NewPostgres returns a Repository whose keys live under namespace in the
// local_store table. Several devices can share one database this way.
func NewPostgres(pool *pgxpool.Pool, namespace string) Repository {
	return &postgresRepo{pool: pool, namespace: namespace}
}

func (r *postgresRepo) Get(ctx context.Context, key string) ([]byte, error) {
	const q = `
SELECT value
FROM local_store
WHERE namespace = $1 AND key = $2
`
	var value []byte
	if err := r.pool.QueryRow(ctx, q, r.namespace, key).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return value, nil
}

func (r *postgresRepo) Set(ctx context.Context, key string, value []byte) error {
	const q = `
INSERT INTO local_store (namespace, key, value, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (namespace, key) DO UPDATE
SET value = EXCLUDED.value,
    updated_at = EXCLUDED.updated_at
`
	if value == nil {
		value = []byte{}
	}
	_, err := r.pool.Exec(ctx, q, r.namespace, key, value)
	return err
}

func (r *postgresRepo) Delete(ctx context.Context, key string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM local_store WHERE namespace = $1 AND key = $2`, r.namespace, key)
	return err
}
