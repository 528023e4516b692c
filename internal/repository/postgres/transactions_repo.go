package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/suuupra/upi-switch/internal/models"
)

type transactionsRepo struct{ pool *pgxpool.Pool }

const txnColumns = `
  id, transaction_id, rrn, payer_vpa, payee_vpa, amount_paisa, currency,
  transaction_type, status, description, reference, payer_bank_code,
  payee_bank_code, switch_fee_paisa, bank_fee_paisa, total_fee_paisa,
  settlement_id, error_code, error_message, signature, metadata,
  initiated_at, processed_at, expires_at, created_at, updated_at`

func scanTransaction(row pgx.Row) (*models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(
		&t.ID, &t.TransactionID, &t.RRN, &t.PayerVPA, &t.PayeeVPA,
		&t.AmountPaisa, &t.Currency, &t.Type, &t.Status, &t.Description,
		&t.Reference, &t.PayerBankCode, &t.PayeeBankCode, &t.SwitchFeePaisa,
		&t.BankFeePaisa, &t.TotalFeePaisa, &t.SettlementID, &t.ErrorCode,
		&t.ErrorMessage, &t.Signature, &t.Metadata, &t.InitiatedAt,
		&t.ProcessedAt, &t.ExpiresAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *transactionsRepo) GetByID(ctx context.Context, transactionID string) (*models.Transaction, error) {
	return scanTransaction(r.pool.QueryRow(ctx,
		`SELECT`+txnColumns+` FROM transactions WHERE transaction_id=$1`, transactionID))
}

func (r *transactionsRepo) GetByRRN(ctx context.Context, rrn string) (*models.Transaction, error) {
	return scanTransaction(r.pool.QueryRow(ctx,
		`SELECT`+txnColumns+` FROM transactions WHERE rrn=$1`, rrn))
}

func (r *transactionsRepo) ListByVPA(ctx context.Context, vpa string, limit int) ([]*models.Transaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT`+txnColumns+`
		   FROM transactions
		  WHERE payer_vpa=$1 OR payee_vpa=$1
		  ORDER BY created_at DESC
		  LIMIT $2`, vpa, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func (r *transactionsRepo) ListByStatus(ctx context.Context, status models.TransactionStatus, limit int) ([]*models.Transaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT`+txnColumns+`
		   FROM transactions
		  WHERE status=$1
		  ORDER BY created_at
		  LIMIT $2`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTransactions(rows)
}

func (r *transactionsRepo) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	ct, err := r.pool.Exec(ctx,
		`UPDATE transactions
		    SET status='TIMEOUT', error_code='TIMEOUT',
		        error_message='transaction expired before completion',
		        processed_at=$1, updated_at=$1
		  WHERE status='PENDING' AND expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

func collectTransactions(rows pgx.Rows) ([]*models.Transaction, error) {
	var out []*models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
