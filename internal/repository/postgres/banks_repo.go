package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/suuupra/upi-switch/internal/models"
)

type banksRepo struct{ pool *pgxpool.Pool }

const bankColumns = `
  id, bank_code, bank_name, ifsc_prefix, endpoint_url, public_key, status,
  last_heartbeat, success_rate, avg_response_time_ms, created_at, updated_at`

func scanBank(row pgx.Row) (*models.Bank, error) {
	var b models.Bank
	err := row.Scan(&b.ID, &b.BankCode, &b.BankName, &b.IFSCPrefix,
		&b.EndpointURL, &b.PublicKey, &b.Status, &b.LastHeartbeat,
		&b.SuccessRate, &b.AvgResponseTimeMS, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrBankNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *banksRepo) GetByCode(ctx context.Context, bankCode string) (*models.Bank, error) {
	return scanBank(r.pool.QueryRow(ctx,
		`SELECT`+bankColumns+` FROM banks WHERE bank_code=$1`, bankCode))
}

func (r *banksRepo) ListActive(ctx context.Context) ([]*models.Bank, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT`+bankColumns+` FROM banks WHERE status='ACTIVE' ORDER BY bank_code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Bank
	for rows.Next() {
		b, err := scanBank(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *banksRepo) UpdateStatus(ctx context.Context, bankCode string, status models.BankStatus) error {
	ct, err := r.pool.Exec(ctx,
		`UPDATE banks SET status=$2, updated_at=now() WHERE bank_code=$1`, bankCode, status)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return models.ErrBankNotFound
	}
	return nil
}

func (r *banksRepo) UpdateHealth(ctx context.Context, bankCode string, successRate, avgResponseTimeMS int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE banks SET success_rate=$2, avg_response_time_ms=$3, updated_at=now()
		  WHERE bank_code=$1`, bankCode, successRate, avgResponseTimeMS)
	return err
}

func (r *banksRepo) Heartbeat(ctx context.Context, bankCode string, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE banks SET last_heartbeat=$2, updated_at=now() WHERE bank_code=$1`, bankCode, at)
	return err
}
