package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/suuupra/upi-switch/internal/models"
)

type vpaRepo struct{ pool *pgxpool.Pool }

func (r *vpaRepo) Get(ctx context.Context, vpa string) (*models.VPAMapping, error) {
	var m models.VPAMapping
	err := r.pool.QueryRow(ctx,
		`SELECT id, vpa, bank_code, account_number, account_holder_name,
		        mobile_number, is_active, created_at, updated_at
		   FROM vpa_mappings
		  WHERE vpa=$1 AND is_active=true`, vpa,
	).Scan(&m.ID, &m.VPA, &m.BankCode, &m.AccountNumber, &m.AccountHolderName,
		&m.MobileNumber, &m.IsActive, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrVPANotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}
