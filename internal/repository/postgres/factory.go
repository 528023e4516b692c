package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"

	repo "github.com/suuupra/upi-switch/internal/repository"
)

type Repositories struct {
	Store        repo.Store
	Transactions repo.Transactions
	VPAs         repo.VPAs
	Banks        repo.Banks
	Idempotency  repo.Idempotency
	Locks        repo.Locks
}

func NewRepositories(pool *pgxpool.Pool) Repositories {
	return Repositories{
		Store:        &store{pool},
		Transactions: &transactionsRepo{pool},
		VPAs:         &vpaRepo{pool},
		Banks:        &banksRepo{pool},
		Idempotency:  &idempotencyRepo{pool},
		Locks:        &locksRepo{pool},
	}
}
