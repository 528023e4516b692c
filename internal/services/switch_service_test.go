package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suuupra/upi-switch/internal/bank"
	"github.com/suuupra/upi-switch/internal/events"
	"github.com/suuupra/upi-switch/internal/models"
	repo "github.com/suuupra/upi-switch/internal/repository"
	"github.com/suuupra/upi-switch/internal/worker"
)

// --- stubs ---

type stubStore struct {
	mu            sync.Mutex
	beginFailures int
	txs           []*stubStoreTx
}

func (s *stubStore) Begin(ctx context.Context) (repo.StoreTx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.beginFailures > 0 {
		s.beginFailures--
		return nil, errors.New("connection refused")
	}
	tx := &stubStoreTx{}
	s.txs = append(s.txs, tx)
	return tx, nil
}

func (s *stubStore) beginCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.txs)
}

func (s *stubStore) lastTx() *stubStoreTx {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.txs) == 0 {
		return nil
	}
	return s.txs[len(s.txs)-1]
}

type stubStoreTx struct {
	mu         sync.Mutex
	created    *models.Transaction
	audits     []models.AuditLog
	committed  bool
	rolledBack bool
}

func (t *stubStoreTx) CreateTransaction(ctx context.Context, txn *models.Transaction) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	cp := *txn
	t.created = &cp
	return nil
}

func (t *stubStoreTx) UpdateStatus(ctx context.Context, transactionID string, status models.TransactionStatus, errorCode, errorMessage string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.created == nil || t.created.Status.Terminal() {
		return repo.ErrStateConflict
	}
	t.created.Status = status
	t.created.ErrorCode = errorCode
	t.created.ErrorMessage = errorMessage
	return nil
}

func (t *stubStoreTx) AppendAudit(ctx context.Context, entry models.AuditLog) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.audits = append(t.audits, entry)
	return nil
}

func (t *stubStoreTx) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.committed = true
	return nil
}

func (t *stubStoreTx) Rollback(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rolledBack = true
	return nil
}

type idemEntry struct {
	response []byte
	expires  time.Time
}

type stubIdem struct {
	mu      sync.Mutex
	entries map[string]idemEntry
}

func newStubIdem() *stubIdem {
	return &stubIdem{entries: make(map[string]idemEntry)}
}

func (s *stubIdem) Get(ctx context.Context, keyHash string) (bool, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[keyHash]
	if !ok || len(e.response) == 0 || time.Now().After(e.expires) {
		return false, nil, nil
	}
	return true, e.response, nil
}

func (s *stubIdem) Claim(ctx context.Context, keyHash, entityID string, ttl time.Duration) (bool, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[keyHash]; ok && time.Now().Before(e.expires) {
		return false, e.response, nil
	}
	s.entries[keyHash] = idemEntry{expires: time.Now().Add(ttl)}
	return true, nil, nil
}

func (s *stubIdem) StoreResponse(ctx context.Context, keyHash string, response []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[keyHash] = idemEntry{response: response, expires: time.Now().Add(ttl)}
	return nil
}

func (s *stubIdem) Release(ctx context.Context, keyHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[keyHash]; ok && len(e.response) == 0 {
		delete(s.entries, keyHash)
	}
	return nil
}

func (s *stubIdem) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

type stubVPAs struct {
	mappings map[string]*models.VPAMapping
}

func (s *stubVPAs) Get(ctx context.Context, vpa string) (*models.VPAMapping, error) {
	if m, ok := s.mappings[vpa]; ok {
		return m, nil
	}
	return nil, models.ErrVPANotFound
}

type stubBanks struct {
	banks map[string]*models.Bank
}

func (s *stubBanks) GetByCode(ctx context.Context, code string) (*models.Bank, error) {
	if b, ok := s.banks[code]; ok {
		return b, nil
	}
	return nil, models.ErrBankNotFound
}

func (s *stubBanks) ListActive(ctx context.Context) ([]*models.Bank, error) { return nil, nil }
func (s *stubBanks) UpdateStatus(ctx context.Context, code string, status models.BankStatus) error {
	return nil
}
func (s *stubBanks) UpdateHealth(ctx context.Context, code string, sr, ms int) error { return nil }
func (s *stubBanks) Heartbeat(ctx context.Context, code string, at time.Time) error  { return nil }

type legScript struct {
	err       error
	rejectMsg string
	bankRef   string
}

// scriptedClient answers ProcessTransaction according to the script for the
// leg type and records every call.
type scriptedClient struct {
	mu      sync.Mutex
	calls   []bank.TransactionRequest
	scripts map[string]legScript
}

func (c *scriptedClient) ProcessTransaction(ctx context.Context, req *bank.TransactionRequest) (*bank.TransactionResponse, error) {
	c.mu.Lock()
	c.calls = append(c.calls, *req)
	c.mu.Unlock()

	script := c.scripts[req.Type]
	if script.err != nil {
		return nil, script.err
	}
	if script.rejectMsg != "" {
		return &bank.TransactionResponse{
			TransactionID: req.TransactionID,
			Status:        "FAILED",
			ErrorCode:     "ACCOUNT_ERROR",
			ErrorMessage:  script.rejectMsg,
			ProcessedAt:   time.Now(),
		}, nil
	}
	return &bank.TransactionResponse{
		TransactionID:   req.TransactionID,
		BankReferenceID: script.bankRef,
		Status:          "SUCCESS",
		ProcessedAt:     time.Now(),
	}, nil
}

func (c *scriptedClient) GetAccountBalance(ctx context.Context, bankCode, accountNumber string) (int64, error) {
	return 0, nil
}

func (c *scriptedClient) CheckAccountStatus(ctx context.Context, bankCode, accountNumber string) (string, error) {
	return "ACTIVE", nil
}

func (c *scriptedClient) callsOfType(legType string) []bank.TransactionRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []bank.TransactionRequest
	for _, call := range c.calls {
		if call.Type == legType {
			out = append(out, call)
		}
	}
	return out
}

type discardPublisher struct{}

func (discardPublisher) Publish(ctx context.Context, ev models.TransactionEvent) error { return nil }
func (discardPublisher) Close() error                                                  { return nil }

// --- fixture ---

type fixture struct {
	svc         *SwitchService
	store       *stubStore
	idem        *stubIdem
	vpas        *stubVPAs
	banks       *stubBanks
	payerClient *scriptedClient
	payeeClient *scriptedClient
	lazyClient  *scriptedClient
	lazyBuilds  []string
	pool        *worker.Pool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := &stubStore{}
	idem := newStubIdem()
	log := slog.Default()

	vpas := &stubVPAs{mappings: map[string]*models.VPAMapping{
		"a@bank": {VPA: "a@bank", BankCode: "HDFC", AccountNumber: "111", AccountHolderName: "A", IsActive: true},
		"b@bank": {VPA: "b@bank", BankCode: "ICIC", AccountNumber: "222", AccountHolderName: "B", IsActive: true},
	}}
	banks := &stubBanks{banks: map[string]*models.Bank{
		"HDFC": {BankCode: "HDFC", Status: models.BankActive},
		"ICIC": {BankCode: "ICIC", Status: models.BankActive},
	}}

	payerClient := &scriptedClient{scripts: map[string]legScript{
		bank.LegDebit:  {bankRef: "HDFC-REF-1"},
		bank.LegCredit: {bankRef: "HDFC-REF-2"},
	}}
	payeeClient := &scriptedClient{scripts: map[string]legScript{
		bank.LegCredit: {bankRef: "ICIC-REF-1"},
	}}
	registry := bank.NewRegistry(map[string]bank.Client{
		"HDFC": payerClient,
		"ICIC": payeeClient,
	})

	pool := worker.NewPool(1)
	t.Cleanup(pool.Stop)
	emitter := events.NewEmitter(discardPublisher{}, pool, log)

	f := &fixture{
		store:       store,
		idem:        idem,
		vpas:        vpas,
		banks:       banks,
		payerClient: payerClient,
		payeeClient: payeeClient,
		lazyClient: &scriptedClient{scripts: map[string]legScript{
			bank.LegDebit:  {bankRef: "LAZY-REF-D"},
			bank.LegCredit: {bankRef: "LAZY-REF-C"},
		}},
		pool: pool,
	}
	newClient := func(endpointURL string) bank.Client {
		f.lazyBuilds = append(f.lazyBuilds, endpointURL)
		return f.lazyClient
	}

	f.svc = NewSwitchService(
		store, nil, idem,
		NewVPAService(vpas, nil, time.Hour, log),
		NewBankService(banks),
		registry, newClient, emitter, log,
		SwitchConfig{
			BankCallTimeout: time.Second,
			TransactionTTL:  5 * time.Minute,
			IdempotencyTTL:  24 * time.Hour,
		},
	)
	return f
}

func paymentRequest() *models.TransactionRequest {
	return &models.TransactionRequest{
		TransactionID: "TXN1",
		PayerVPA:      "a@bank",
		PayeeVPA:      "b@bank",
		AmountPaisa:   50000,
		Type:          models.TypeP2P,
		Reference:     "ORDER-42",
		InitiatedAt:   time.Now(),
	}
}

// --- tests ---

func TestProcessTransactionSuccess(t *testing.T) {
	f := newFixture(t)

	resp := f.svc.ProcessTransaction(context.Background(), paymentRequest())

	require.Equal(t, models.StatusSuccess, resp.Status)
	assert.Equal(t, "TXN1", resp.TransactionID)
	assert.NotEmpty(t, resp.RRN)
	assert.Equal(t, "HDFC", resp.PayerBankCode)
	assert.Equal(t, "ICIC", resp.PayeeBankCode)
	require.NotNil(t, resp.Fees)
	assert.Equal(t, int64(50), resp.Fees.SwitchFeePaisa)
	assert.Equal(t, int64(25), resp.Fees.BankFeePaisa)
	assert.Equal(t, int64(75), resp.Fees.TotalFeePaisa)

	tx := f.store.lastTx()
	require.NotNil(t, tx)
	assert.True(t, tx.committed)
	assert.False(t, tx.rolledBack)
	assert.Equal(t, models.StatusSuccess, tx.created.Status)
	assert.Equal(t, tx.created.SwitchFeePaisa+tx.created.BankFeePaisa, tx.created.TotalFeePaisa)

	require.Len(t, f.payerClient.callsOfType(bank.LegDebit), 1)
	require.Len(t, f.payeeClient.callsOfType(bank.LegCredit), 1)
	assert.Empty(t, f.payerClient.callsOfType(bank.LegCredit), "no reversal on the happy path")
}

func TestProcessTransactionIdempotentReplay(t *testing.T) {
	f := newFixture(t)
	req := paymentRequest()

	first := f.svc.ProcessTransaction(context.Background(), req)
	second := f.svc.ProcessTransaction(context.Background(), req)

	// The replay is decoded from the cached bytes; compare serialized forms so
	// lost clock internals do not count as a difference.
	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)
	assert.JSONEq(t, string(firstJSON), string(secondJSON))
	assert.Equal(t, models.StatusSuccess, second.Status)
	assert.Equal(t, first.RRN, second.RRN)
	assert.Equal(t, 1, f.store.beginCount(), "replay must not open a second store transaction")
	assert.Len(t, f.payerClient.callsOfType(bank.LegDebit), 1, "replay must not re-run the debit leg")
}

func TestProcessTransactionRetryAfterTransientFailure(t *testing.T) {
	f := newFixture(t)
	f.store.beginFailures = 1
	req := paymentRequest()

	first := f.svc.ProcessTransaction(context.Background(), req)
	assert.Equal(t, models.ErrCodeSystem, first.ErrorCode)
	assert.Equal(t, 0, f.idem.size(), "a transient failure must not be cached against retries")

	second := f.svc.ProcessTransaction(context.Background(), req)
	assert.Equal(t, models.StatusSuccess, second.Status)
	assert.Empty(t, second.ErrorCode)
	assert.Len(t, f.payerClient.callsOfType(bank.LegDebit), 1, "money moves exactly once across the retry")
}

func TestProcessTransactionActivatedBankGetsClient(t *testing.T) {
	f := newFixture(t)
	// SBIN was activated after startup: present in the bank directory but
	// absent from the client registry.
	f.banks.banks["SBIN"] = &models.Bank{
		BankCode:    "SBIN",
		Status:      models.BankActive,
		EndpointURL: "http://sbin.example",
	}
	f.vpas.mappings["c@bank"] = &models.VPAMapping{
		VPA: "c@bank", BankCode: "SBIN", AccountNumber: "333", IsActive: true,
	}
	req := paymentRequest()
	req.PayeeVPA = "c@bank"

	resp := f.svc.ProcessTransaction(context.Background(), req)

	require.Equal(t, models.StatusSuccess, resp.Status)
	assert.Equal(t, []string{"http://sbin.example"}, f.lazyBuilds,
		"the client must be built from the bank's registered endpoint")
	assert.Len(t, f.lazyClient.callsOfType(bank.LegCredit), 1)
}

func TestProcessTransactionValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*models.TransactionRequest)
	}{
		{"missing transaction id", func(r *models.TransactionRequest) { r.TransactionID = "" }},
		{"missing payer vpa", func(r *models.TransactionRequest) { r.PayerVPA = "" }},
		{"missing payee vpa", func(r *models.TransactionRequest) { r.PayeeVPA = "" }},
		{"same payer and payee", func(r *models.TransactionRequest) { r.PayeeVPA = r.PayerVPA }},
		{"zero amount", func(r *models.TransactionRequest) { r.AmountPaisa = 0 }},
		{"negative amount", func(r *models.TransactionRequest) { r.AmountPaisa = -5 }},
		{"expired request", func(r *models.TransactionRequest) { r.InitiatedAt = time.Now().Add(-10 * time.Minute) }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			req := paymentRequest()
			tc.mutate(req)

			resp := f.svc.ProcessTransaction(context.Background(), req)

			assert.Equal(t, models.StatusFailed, resp.Status)
			assert.Equal(t, models.ErrCodeValidation, resp.ErrorCode)
			assert.NotEmpty(t, resp.ErrorMessage)
			assert.Equal(t, 0, f.store.beginCount(), "refused requests must not touch the store")
			assert.Empty(t, f.payerClient.calls)
		})
	}
}

func TestProcessTransactionUnknownPayee(t *testing.T) {
	f := newFixture(t)
	req := paymentRequest()
	req.PayeeVPA = "nobody@bank"

	resp := f.svc.ProcessTransaction(context.Background(), req)

	assert.Equal(t, models.StatusFailed, resp.Status)
	assert.Equal(t, models.ErrCodeVPAResolution, resp.ErrorCode)
	assert.Equal(t, 0, f.store.beginCount())
}

func TestProcessTransactionInactiveBank(t *testing.T) {
	f := newFixture(t)
	// Payee bank goes down for maintenance.
	f.banks.banks["ICIC"].Status = models.BankInactive

	resp := f.svc.ProcessTransaction(context.Background(), paymentRequest())

	assert.Equal(t, models.ErrCodeBankUnavailable, resp.ErrorCode)
	assert.Equal(t, 0, f.store.beginCount())
	assert.Empty(t, f.payerClient.calls)
}

func TestProcessTransactionDebitFailure(t *testing.T) {
	f := newFixture(t)
	f.payerClient.scripts[bank.LegDebit] = legScript{rejectMsg: "insufficient balance"}

	resp := f.svc.ProcessTransaction(context.Background(), paymentRequest())

	assert.Equal(t, models.StatusFailed, resp.Status)
	assert.Equal(t, models.ErrCodeProcessing, resp.ErrorCode)

	tx := f.store.lastTx()
	require.NotNil(t, tx)
	assert.True(t, tx.committed, "a failed debit is still a committed terminal outcome")
	assert.Equal(t, models.StatusFailed, tx.created.Status)

	assert.Empty(t, f.payeeClient.calls, "credit must not run after a failed debit")
	assert.Empty(t, f.payerClient.callsOfType(bank.LegCredit), "nothing to reverse after a failed debit")
}

func TestProcessTransactionCreditFailureReversed(t *testing.T) {
	f := newFixture(t)
	f.payeeClient.scripts[bank.LegCredit] = legScript{rejectMsg: "account frozen"}

	resp := f.svc.ProcessTransaction(context.Background(), paymentRequest())

	assert.Equal(t, models.StatusFailed, resp.Status)
	assert.Equal(t, models.ErrCodeProcessing, resp.ErrorCode)

	tx := f.store.lastTx()
	require.NotNil(t, tx)
	assert.True(t, tx.committed)
	assert.Equal(t, models.StatusReversed, tx.created.Status)

	reversals := f.payerClient.callsOfType(bank.LegCredit)
	require.Len(t, reversals, 1)
	assert.Equal(t, "TXN1_REVERSE", reversals[0].TransactionID)
	assert.Equal(t, "REVERSAL_HDFC-REF-1", reversals[0].Reference,
		"reversal must reference the original debit's bank reference")
	assert.Equal(t, int64(50000), reversals[0].AmountPaisa)
}

func TestProcessTransactionCreditAndReversalFailure(t *testing.T) {
	f := newFixture(t)
	f.payeeClient.scripts[bank.LegCredit] = legScript{rejectMsg: "account frozen"}
	f.payerClient.scripts[bank.LegCredit] = legScript{err: errors.New("connection reset")}

	resp := f.svc.ProcessTransaction(context.Background(), paymentRequest())

	assert.Equal(t, models.StatusFailed, resp.Status)
	assert.Equal(t, models.ErrCodeCritical, resp.ErrorCode)
	assert.Contains(t, resp.ErrorMessage, "account frozen")
	assert.Contains(t, resp.ErrorMessage, "connection reset")

	tx := f.store.lastTx()
	require.NotNil(t, tx)
	assert.True(t, tx.committed)
	assert.Equal(t, models.StatusFailed, tx.created.Status)
	assert.Equal(t, models.ErrCodeCritical, tx.created.ErrorCode)
}

func TestProcessTransactionBankLegTimeout(t *testing.T) {
	f := newFixture(t)
	f.payerClient.scripts[bank.LegDebit] = legScript{err: context.DeadlineExceeded}

	resp := f.svc.ProcessTransaction(context.Background(), paymentRequest())

	assert.Equal(t, models.ErrCodeProcessing, resp.ErrorCode)
	tx := f.store.lastTx()
	require.NotNil(t, tx)
	assert.Equal(t, models.StatusFailed, tx.created.Status)
	assert.True(t, tx.committed)
}

func TestProcessTransactionConcurrentDuplicates(t *testing.T) {
	f := newFixture(t)
	req := paymentRequest()

	const n = 8
	responses := make([]*models.TransactionResponse, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			responses[i] = f.svc.ProcessTransaction(context.Background(), req)
		}(i)
	}
	wg.Wait()

	// Exactly one submission may move money.
	assert.Len(t, f.payerClient.callsOfType(bank.LegDebit), 1)
	assert.LessOrEqual(t, f.store.beginCount(), 1)

	var winners, retryable int
	for _, resp := range responses {
		require.NotNil(t, resp)
		switch {
		case resp.Status == models.StatusSuccess:
			winners++
		case resp.ErrorCode == models.ErrCodeSystem:
			retryable++
		default:
			t.Fatalf("unexpected response: %+v", resp)
		}
	}
	assert.GreaterOrEqual(t, winners, 1)
	assert.Equal(t, n, winners+retryable)
}

func TestRequestFingerprintStable(t *testing.T) {
	a := paymentRequest()
	b := *a
	assert.Equal(t, requestFingerprint(a), requestFingerprint(&b))

	b.AmountPaisa++
	assert.NotEqual(t, requestFingerprint(a), requestFingerprint(&b))
}
