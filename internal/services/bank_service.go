package services

import (
	"context"
	"fmt"
	"time"

	"github.com/suuupra/upi-switch/internal/models"
	repo "github.com/suuupra/upi-switch/internal/repository"
)

// BankService reads the bank registry for admission gating and carries the
// external health monitor's write path. Circuit breaking belongs to the bank
// client transport, not here.
type BankService struct {
	banks repo.Banks
}

func NewBankService(banks repo.Banks) *BankService {
	return &BankService{banks: banks}
}

// EnsureAvailable verifies every given bank is registered and ACTIVE and
// returns them in input order.
func (s *BankService) EnsureAvailable(ctx context.Context, bankCodes ...string) ([]*models.Bank, error) {
	out := make([]*models.Bank, 0, len(bankCodes))
	for _, code := range bankCodes {
		b, err := s.banks.GetByCode(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("bank %s: %w", code, err)
		}
		if !b.Available() {
			return nil, fmt.Errorf("bank %s is %s: %w", code, b.Status, models.ErrBankUnavailable)
		}
		out = append(out, b)
	}
	return out, nil
}

func (s *BankService) ListActive(ctx context.Context) ([]*models.Bank, error) {
	return s.banks.ListActive(ctx)
}

func (s *BankService) UpdateStatus(ctx context.Context, bankCode string, status models.BankStatus) error {
	return s.banks.UpdateStatus(ctx, bankCode, status)
}

func (s *BankService) RecordHeartbeat(ctx context.Context, bankCode string, at time.Time) error {
	return s.banks.Heartbeat(ctx, bankCode, at)
}

func (s *BankService) RecordHealth(ctx context.Context, bankCode string, successRate, avgResponseTimeMS int) error {
	return s.banks.UpdateHealth(ctx, bankCode, successRate, avgResponseTimeMS)
}
