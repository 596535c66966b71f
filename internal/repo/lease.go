package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LeaseRepo - эксклюзивная аренда с TTL поверх таблицы leases.
// Упавший держатель не блокирует навсегда: просроченную аренду можно перехватить.
type LeaseRepo struct {
	pool   *pgxpool.Pool
	holder string
}

func NewLeaseRepo(pool *pgxpool.Pool) *LeaseRepo {
	return &LeaseRepo{
		pool:   pool,
		holder: uuid.NewString(), // идентичность процесса
	}
}

func (r *LeaseRepo) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	cmd, err := r.pool.Exec(ctx, `
		INSERT INTO leases (name, holder, expires_at)
		VALUES ($1, $2, now() + make_interval(secs => $3))
		ON CONFLICT (name) DO UPDATE
		SET holder = EXCLUDED.holder, expires_at = EXCLUDED.expires_at
		WHERE leases.expires_at < now() OR leases.holder = $2
	`, name, r.holder, ttl.Seconds())
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *LeaseRepo) Release(ctx context.Context, name string) error {
	// Чужую аренду не трогаем
	_, err := r.pool.Exec(ctx,
		"DELETE FROM leases WHERE name = $1 AND holder = $2", name, r.holder)
	return err
}
