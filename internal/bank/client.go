package bank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client is the capability the switch holds against one participating bank.
// The bank side is an independently-operated, unreliable system; every call
// must carry a caller-side deadline through ctx.
type Client interface {
	ProcessTransaction(ctx context.Context, req *TransactionRequest) (*TransactionResponse, error)
	GetAccountBalance(ctx context.Context, bankCode, accountNumber string) (int64, error)
	CheckAccountStatus(ctx context.Context, bankCode, accountNumber string) (string, error)
}

const (
	LegDebit  = "DEBIT"
	LegCredit = "CREDIT"
)

type TransactionRequest struct {
	TransactionID string    `json:"transaction_id"`
	BankCode      string    `json:"bank_code"`
	AccountNumber string    `json:"account_number"`
	AmountPaisa   int64     `json:"amount_paisa"`
	Type          string    `json:"type"` // DEBIT or CREDIT
	Reference     string    `json:"reference,omitempty"`
	Description   string    `json:"description,omitempty"`
	Signature     string    `json:"signature,omitempty"`
	InitiatedAt   time.Time `json:"initiated_at"`
}

type TransactionResponse struct {
	TransactionID       string    `json:"transaction_id"`
	BankReferenceID     string    `json:"bank_reference_id"`
	Status              string    `json:"status"`
	AccountBalancePaisa int64     `json:"account_balance_paisa"`
	ErrorCode           string    `json:"error_code,omitempty"`
	ErrorMessage        string    `json:"error_message,omitempty"`
	ProcessedAt         time.Time `json:"processed_at"`
}

// HTTPClient talks JSON over HTTP to a bank endpoint. Framing beyond that is
// the bank simulator's concern.
type HTTPClient struct {
	baseURL string
	hc      *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		hc:      &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) ProcessTransaction(ctx context.Context, req *TransactionRequest) (*TransactionResponse, error) {
	var resp TransactionResponse
	if err := c.post(ctx, "/v1/transactions", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) GetAccountBalance(ctx context.Context, bankCode, accountNumber string) (int64, error) {
	var out struct {
		BalancePaisa int64 `json:"balance_paisa"`
	}
	in := map[string]string{"bank_code": bankCode, "account_number": accountNumber}
	if err := c.post(ctx, "/v1/accounts/balance", in, &out); err != nil {
		return 0, err
	}
	return out.BalancePaisa, nil
}

func (c *HTTPClient) CheckAccountStatus(ctx context.Context, bankCode, accountNumber string) (string, error) {
	var out struct {
		Status string `json:"status"`
	}
	in := map[string]string{"bank_code": bankCode, "account_number": accountNumber}
	if err := c.post(ctx, "/v1/accounts/status", in, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("bank endpoint %s returned %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
