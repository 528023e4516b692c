package models

import "time"

type TransactionType string

const (
	TypeP2P    TransactionType = "P2P"
	TypeP2M    TransactionType = "P2M"
	TypeM2P    TransactionType = "M2P"
	TypeRefund TransactionType = "REFUND"
)

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "PENDING"
	StatusSuccess   TransactionStatus = "SUCCESS"
	StatusFailed    TransactionStatus = "FAILED"
	StatusReversed  TransactionStatus = "REVERSED"
	StatusTimeout   TransactionStatus = "TIMEOUT"
	StatusCancelled TransactionStatus = "CANCELLED"
)

// Terminal reports whether a status admits no further transitions.
func (s TransactionStatus) Terminal() bool {
	return s != StatusPending
}

// Transaction is the switch-side record of a funds movement between two VPAs.
// Created PENDING inside the store transaction, mutated only by the
// orchestrator, never deleted.
type Transaction struct {
	ID             string            `json:"id"`
	TransactionID  string            `json:"transaction_id"`
	RRN            string            `json:"rrn"`
	PayerVPA       string            `json:"payer_vpa"`
	PayeeVPA       string            `json:"payee_vpa"`
	AmountPaisa    int64             `json:"amount_paisa"`
	Currency       string            `json:"currency"`
	Type           TransactionType   `json:"type"`
	Status         TransactionStatus `json:"status"`
	Description    string            `json:"description,omitempty"`
	Reference      string            `json:"reference,omitempty"`
	PayerBankCode  string            `json:"payer_bank_code"`
	PayeeBankCode  string            `json:"payee_bank_code"`
	SwitchFeePaisa int64             `json:"switch_fee_paisa"`
	BankFeePaisa   int64             `json:"bank_fee_paisa"`
	TotalFeePaisa  int64             `json:"total_fee_paisa"`
	SettlementID   string            `json:"settlement_id,omitempty"`
	ErrorCode      string            `json:"error_code,omitempty"`
	ErrorMessage   string            `json:"error_message,omitempty"`
	Signature      string            `json:"signature,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	InitiatedAt    time.Time         `json:"initiated_at"`
	ProcessedAt    *time.Time        `json:"processed_at,omitempty"`
	ExpiresAt      time.Time         `json:"expires_at"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// SwitchFee is 0.1% of the amount with a 1 paisa floor.
func SwitchFee(amountPaisa int64) int64 {
	fee := amountPaisa / 1000
	if fee < 1 {
		fee = 1
	}
	return fee
}

// BankFee is 0.05% of the amount with a 1 paisa floor.
func BankFee(amountPaisa int64) int64 {
	fee := amountPaisa / 2000
	if fee < 1 {
		fee = 1
	}
	return fee
}

// ApplyFees recomputes all three fee fields from the amount. Always called
// before the record is persisted so total_fee never drifts from its parts.
func (t *Transaction) ApplyFees() {
	t.SwitchFeePaisa = SwitchFee(t.AmountPaisa)
	t.BankFeePaisa = BankFee(t.AmountPaisa)
	t.TotalFeePaisa = t.SwitchFeePaisa + t.BankFeePaisa
}
