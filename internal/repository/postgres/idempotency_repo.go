package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type idempotencyRepo struct{ pool *pgxpool.Pool }

func (r *idempotencyRepo) Get(ctx context.Context, keyHash string) (bool, []byte, error) {
	var response []byte
	err := r.pool.QueryRow(ctx,
		`SELECT response_data FROM idempotency_keys
		  WHERE key_hash=$1 AND expires_at > now() AND response_data IS NOT NULL`,
		keyHash,
	).Scan(&response)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, err
	}
	return true, response, nil
}

// Claim is the conditional write that closes the duplicate-submission window:
// the insert wins when the key is absent, the update wins when a previous
// lease expired, and a lost claim hands back whatever the winner has stored
// so far (NULL response_data while the winner is still executing).
func (r *idempotencyRepo) Claim(ctx context.Context, keyHash, entityID string, ttl time.Duration) (bool, []byte, error) {
	expiresAt := time.Now().Add(ttl)
	ct, err := r.pool.Exec(ctx,
		`INSERT INTO idempotency_keys (key_hash, entity_id, response_data, expires_at)
		 VALUES ($1, $2, NULL, $3)
		 ON CONFLICT (key_hash) DO UPDATE
		    SET entity_id=EXCLUDED.entity_id, response_data=NULL,
		        created_at=now(), expires_at=EXCLUDED.expires_at
		  WHERE idempotency_keys.expires_at < now()`,
		keyHash, entityID, expiresAt)
	if err != nil {
		return false, nil, err
	}
	if ct.RowsAffected() > 0 {
		return true, nil, nil
	}

	var existing []byte
	err = r.pool.QueryRow(ctx,
		`SELECT response_data FROM idempotency_keys WHERE key_hash=$1`, keyHash,
	).Scan(&existing)
	if errors.Is(err, pgx.ErrNoRows) {
		// Row vanished between the upsert and the read; treat as in flight.
		return false, nil, nil
	}
	if err != nil {
		return false, nil, err
	}
	return false, existing, nil
}

// Release only deletes claims still waiting on a response; a resolved key
// keeps answering retries until it expires.
func (r *idempotencyRepo) Release(ctx context.Context, keyHash string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM idempotency_keys WHERE key_hash=$1 AND response_data IS NULL`, keyHash)
	return err
}

func (r *idempotencyRepo) StoreResponse(ctx context.Context, keyHash string, response []byte, ttl time.Duration) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO idempotency_keys (key_hash, entity_id, response_data, expires_at)
		 VALUES ($1, '', $2, $3)
		 ON CONFLICT (key_hash) DO UPDATE
		    SET response_data=EXCLUDED.response_data, expires_at=EXCLUDED.expires_at`,
		keyHash, response, time.Now().Add(ttl))
	return err
}
