package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/suuupra/upi-switch/internal/models"
	repo "github.com/suuupra/upi-switch/internal/repository"
)

type store struct{ pool *pgxpool.Pool }

func (s *store) Begin(ctx context.Context) (repo.StoreTx, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, err
	}
	return &storeTx{tx}, nil
}

type storeTx struct{ tx pgx.Tx }

func (s *storeTx) CreateTransaction(ctx context.Context, txn *models.Transaction) error {
	const q = `
INSERT INTO transactions (
  transaction_id, rrn, payer_vpa, payee_vpa, amount_paisa, currency,
  transaction_type, status, description, reference, payer_bank_code,
  payee_bank_code, switch_fee_paisa, bank_fee_paisa, total_fee_paisa,
  signature, metadata, initiated_at, expires_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
RETURNING id, created_at, updated_at`
	return s.tx.QueryRow(ctx, q,
		txn.TransactionID, txn.RRN, txn.PayerVPA, txn.PayeeVPA, txn.AmountPaisa,
		txn.Currency, txn.Type, txn.Status, txn.Description, txn.Reference,
		txn.PayerBankCode, txn.PayeeBankCode, txn.SwitchFeePaisa,
		txn.BankFeePaisa, txn.TotalFeePaisa, txn.Signature, txn.Metadata,
		txn.InitiatedAt, txn.ExpiresAt,
	).Scan(&txn.ID, &txn.CreatedAt, &txn.UpdatedAt)
}

// UpdateStatus moves a PENDING record to its next state. The WHERE guard is
// what makes terminal records immutable; processed_at is stamped on every
// terminal transition.
func (s *storeTx) UpdateStatus(ctx context.Context, transactionID string, status models.TransactionStatus, errorCode, errorMessage string) error {
	const q = `
UPDATE transactions
   SET status=$2, error_code=$3, error_message=$4,
       processed_at = CASE WHEN $2 <> 'PENDING' THEN now() ELSE processed_at END,
       updated_at = now()
 WHERE transaction_id=$1 AND status='PENDING'`
	ct, err := s.tx.Exec(ctx, q, transactionID, status, errorCode, errorMessage)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return repo.ErrStateConflict
	}
	return nil
}

func (s *storeTx) AppendAudit(ctx context.Context, entry models.AuditLog) error {
	const q = `
INSERT INTO audit_logs (entity_type, entity_id, action, actor, old_values, new_values, correlation_id)
VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err := s.tx.Exec(ctx, q,
		entry.EntityType, entry.EntityID, entry.Action, entry.Actor,
		entry.OldValues, entry.NewValues, entry.CorrelationID)
	return err
}

func (s *storeTx) Commit(ctx context.Context) error   { return s.tx.Commit(ctx) }
func (s *storeTx) Rollback(ctx context.Context) error { return s.tx.Rollback(ctx) }
