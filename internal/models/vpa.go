package models

import (
	"errors"
	"time"
)

// ErrVPANotFound distinguishes an unregistered or inactive VPA from a
// transport failure while looking one up.
var ErrVPANotFound = errors.New("vpa not found")

// VPAMapping ties a virtual payment address to a bank account. Provisioned
// externally, read-mostly; the store is the source of truth, the cache is
// advisory.
type VPAMapping struct {
	ID                string    `json:"id"`
	VPA               string    `json:"vpa"`
	BankCode          string    `json:"bank_code"`
	AccountNumber     string    `json:"account_number"`
	AccountHolderName string    `json:"account_holder_name"`
	MobileNumber      string    `json:"mobile_number,omitempty"`
	IsActive          bool      `json:"is_active"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
