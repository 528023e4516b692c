package models

import "time"

// Error codes carried on failure responses. Stable, part of the external
// contract.
const (
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeVPAResolution   = "VPA_RESOLUTION_ERROR"
	ErrCodeBankUnavailable = "BANK_UNAVAILABLE"
	ErrCodeProcessing      = "PROCESSING_ERROR"
	ErrCodeSystem          = "SYSTEM_ERROR"
	ErrCodeCritical        = "CRITICAL_ERROR"
)

// TransactionRequest is the inbound payment instruction between two VPAs.
type TransactionRequest struct {
	TransactionID string            `json:"transaction_id"`
	PayerVPA      string            `json:"payer_vpa"`
	PayeeVPA      string            `json:"payee_vpa"`
	AmountPaisa   int64             `json:"amount_paisa"`
	Type          TransactionType   `json:"type"`
	Reference     string            `json:"reference,omitempty"`
	Description   string            `json:"description,omitempty"`
	Signature     string            `json:"signature,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	InitiatedAt   time.Time         `json:"initiated_at"`
}

// TransactionFees breaks the total fee into its parts.
type TransactionFees struct {
	SwitchFeePaisa int64 `json:"switch_fee_paisa"`
	BankFeePaisa   int64 `json:"bank_fee_paisa"`
	TotalFeePaisa  int64 `json:"total_fee_paisa"`
}

// TransactionResponse is what the caller gets back, success or failure.
// Failures always carry a stable ErrorCode and a readable ErrorMessage.
type TransactionResponse struct {
	TransactionID string            `json:"transaction_id"`
	RRN           string            `json:"rrn,omitempty"`
	Status        TransactionStatus `json:"status"`
	PayerBankCode string            `json:"payer_bank_code,omitempty"`
	PayeeBankCode string            `json:"payee_bank_code,omitempty"`
	Fees          *TransactionFees  `json:"fees,omitempty"`
	SettlementID  string            `json:"settlement_id,omitempty"`
	ErrorCode     string            `json:"error_code,omitempty"`
	ErrorMessage  string            `json:"error_message,omitempty"`
	ProcessedAt   time.Time         `json:"processed_at"`
}

// TransactionEvent is the fire-and-forget lifecycle event emitted per
// sub-step; consumed externally.
type TransactionEvent struct {
	TransactionID string         `json:"transaction_id"`
	EventType     string         `json:"event_type"`
	Description   string         `json:"description"`
	Timestamp     time.Time      `json:"timestamp"`
	Details       map[string]any `json:"details,omitempty"`
}
