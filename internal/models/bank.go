package models

import (
	"errors"
	"time"
)

var (
	ErrBankNotFound = errors.New("bank not found")
	// ErrBankUnavailable gates admission when a participating bank is
	// registered but not ACTIVE.
	ErrBankUnavailable = errors.New("bank unavailable")
)

type BankStatus string

const (
	BankActive      BankStatus = "ACTIVE"
	BankInactive    BankStatus = "INACTIVE"
	BankMaintenance BankStatus = "MAINTENANCE"
	BankSuspended   BankStatus = "SUSPENDED"
)

// Bank is a participating bank as the switch sees it. Status and health
// stats are mutated by the external health monitor; the request path only
// reads them for admission gating.
type Bank struct {
	ID                string     `json:"id"`
	BankCode          string     `json:"bank_code"`
	BankName          string     `json:"bank_name"`
	IFSCPrefix        string     `json:"ifsc_prefix,omitempty"`
	EndpointURL       string     `json:"endpoint_url"`
	PublicKey         string     `json:"-"`
	Status            BankStatus `json:"status"`
	LastHeartbeat     *time.Time `json:"last_heartbeat,omitempty"`
	SuccessRate       int        `json:"success_rate"`
	AvgResponseTimeMS int        `json:"avg_response_time_ms"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Available reports whether the bank may admit new legs.
func (b *Bank) Available() bool {
	return b.Status == BankActive
}
