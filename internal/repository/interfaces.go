package repository

import (
	"context"
	"errors"
	"time"

	"github.com/suuupra/upi-switch/internal/models"
)

// ErrStateConflict is returned when a status update would move a record out
// of a terminal state. Terminal records are immutable.
var ErrStateConflict = errors.New("transaction already in a terminal state")

// Store opens ACID store transactions spanning the two-phase exchange.
type Store interface {
	// Begin opens a READ COMMITTED transaction.
	Begin(ctx context.Context) (StoreTx, error)
}

// StoreTx is the handle the orchestrator works through between Begin and
// Commit. Terminal outcomes (FAILED, REVERSED included) are committed, not
// rolled back; Rollback is for the paths where no terminal outcome was
// reached.
type StoreTx interface {
	CreateTransaction(ctx context.Context, txn *models.Transaction) error
	UpdateStatus(ctx context.Context, transactionID string, status models.TransactionStatus, errorCode, errorMessage string) error
	AppendAudit(ctx context.Context, entry models.AuditLog) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Transactions is the read side of the transaction store.
type Transactions interface {
	GetByID(ctx context.Context, transactionID string) (*models.Transaction, error)
	GetByRRN(ctx context.Context, rrn string) (*models.Transaction, error)
	ListByVPA(ctx context.Context, vpa string, limit int) ([]*models.Transaction, error)
	ListByStatus(ctx context.Context, status models.TransactionStatus, limit int) ([]*models.Transaction, error)
	// ExpirePending moves PENDING records past their expiry to TIMEOUT and
	// reports how many it touched. Used by the sweeper, never the request
	// path.
	ExpirePending(ctx context.Context, now time.Time) (int64, error)
}

type VPAs interface {
	Get(ctx context.Context, vpa string) (*models.VPAMapping, error)
}

type Banks interface {
	GetByCode(ctx context.Context, bankCode string) (*models.Bank, error)
	ListActive(ctx context.Context) ([]*models.Bank, error)
	UpdateStatus(ctx context.Context, bankCode string, status models.BankStatus) error
	UpdateHealth(ctx context.Context, bankCode string, successRate, avgResponseTimeMS int) error
	Heartbeat(ctx context.Context, bankCode string, at time.Time) error
}

// Idempotency maps a request fingerprint to a previously computed response.
// Durable: legitimate retries can arrive minutes later, across restarts.
type Idempotency interface {
	// Get returns the cached response for an unexpired fingerprint.
	Get(ctx context.Context, keyHash string) (found bool, response []byte, err error)
	// Claim atomically takes ownership of a fingerprint: it succeeds when the
	// key is absent or its lease expired. On a lost claim it returns the
	// winner's response bytes, which are empty while the winner is still in
	// flight.
	Claim(ctx context.Context, keyHash, entityID string, ttl time.Duration) (claimed bool, existing []byte, err error)
	// StoreResponse resolves a claimed fingerprint with the final response.
	StoreResponse(ctx context.Context, keyHash string, response []byte, ttl time.Duration) error
	// Release abandons an unresolved claim so the next retry of the same
	// request can re-execute. Claims that already hold a response are left
	// untouched.
	Release(ctx context.Context, keyHash string) error
}

// Locks is a lease-based mutex for collaborators (settlement, sweeping); it
// is never taken on the per-transaction path.
type Locks interface {
	TryAcquire(ctx context.Context, name, ownerID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name, ownerID string) error
}
