package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type locksRepo struct{ pool *pgxpool.Pool }

// TryAcquire takes a lease via conditional upsert: the insert wins when the
// lock is absent, the update wins only when the current lease has expired.
func (r *locksRepo) TryAcquire(ctx context.Context, name, ownerID string, ttl time.Duration) (bool, error) {
	ct, err := r.pool.Exec(ctx,
		`INSERT INTO distributed_locks (lock_name, owner_id, expires_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (lock_name) DO UPDATE
		    SET owner_id=EXCLUDED.owner_id, acquired_at=now(),
		        expires_at=EXCLUDED.expires_at
		  WHERE distributed_locks.expires_at < now()`,
		name, ownerID, time.Now().Add(ttl))
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (r *locksRepo) Release(ctx context.Context, name, ownerID string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM distributed_locks WHERE lock_name=$1 AND owner_id=$2`,
		name, ownerID)
	return err
}
