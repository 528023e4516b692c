package services

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/suuupra/upi-switch/internal/bank"
	"github.com/suuupra/upi-switch/internal/events"
	"github.com/suuupra/upi-switch/internal/metrics"
	"github.com/suuupra/upi-switch/internal/models"
	repo "github.com/suuupra/upi-switch/internal/repository"
)

// SwitchService is the transaction orchestrator: it validates a payment
// request, resolves both VPAs, gates on bank availability, and runs the
// two-phase debit/credit exchange under a store transaction, compensating
// with a reversal when only the debit leg lands.
type SwitchService struct {
	store     repo.Store
	txns      repo.Transactions
	idem      repo.Idempotency
	vpas      *VPAService
	banks     *BankService
	registry  *bank.Registry
	newClient func(endpointURL string) bank.Client
	emitter   *events.Emitter
	log       *slog.Logger

	bankTimeout time.Duration
	txnTTL      time.Duration
	idemTTL     time.Duration
}

type SwitchConfig struct {
	BankCallTimeout time.Duration
	TransactionTTL  time.Duration
	IdempotencyTTL  time.Duration
}

func NewSwitchService(
	store repo.Store,
	txns repo.Transactions,
	idem repo.Idempotency,
	vpas *VPAService,
	banks *BankService,
	registry *bank.Registry,
	newClient func(endpointURL string) bank.Client,
	emitter *events.Emitter,
	log *slog.Logger,
	cfg SwitchConfig,
) *SwitchService {
	return &SwitchService{
		store:       store,
		txns:        txns,
		idem:        idem,
		vpas:        vpas,
		banks:       banks,
		registry:    registry,
		newClient:   newClient,
		emitter:     emitter,
		log:         log,
		bankTimeout: cfg.BankCallTimeout,
		txnTTL:      cfg.TransactionTTL,
		idemTTL:     cfg.IdempotencyTTL,
	}
}

// ProcessTransaction runs the full pipeline. It never returns an error: every
// internal failure is translated into a response with a stable error code.
func (s *SwitchService) ProcessTransaction(ctx context.Context, req *models.TransactionRequest) *models.TransactionResponse {
	correlationID := uuid.NewString()
	log := s.log.With(
		"transaction_id", req.TransactionID,
		"correlation_id", correlationID,
		"payer_vpa", req.PayerVPA,
		"payee_vpa", req.PayeeVPA,
		"amount_paisa", req.AmountPaisa,
	)
	log.Info("processing transaction")

	// Step 1: durable idempotency check. A non-expired cached response is
	// returned unchanged, surviving restarts.
	fingerprint := requestFingerprint(req)
	found, cached, err := s.idem.Get(ctx, fingerprint)
	if err != nil {
		log.Error("idempotency lookup failed", "err", err)
		return errorResponse(req.TransactionID, models.ErrCodeSystem, "internal system error")
	}
	if found {
		if resp := decodeResponse(cached); resp != nil {
			log.Info("returning cached response")
			return resp
		}
	}

	// Steps 2-4 refuse without any store write.
	if err := validateRequest(req, s.txnTTL); err != nil {
		log.Warn("validation failed", "err", err)
		return errorResponse(req.TransactionID, models.ErrCodeValidation, err.Error())
	}

	payer, err := s.resolveParty(ctx, req.PayerVPA, "payer")
	if err != nil {
		return s.resolutionFailure(log, req.TransactionID, err)
	}
	payee, err := s.resolveParty(ctx, req.PayeeVPA, "payee")
	if err != nil {
		return s.resolutionFailure(log, req.TransactionID, err)
	}

	participants, err := s.banks.EnsureAvailable(ctx, payer.BankCode, payee.BankCode)
	if err != nil {
		if errors.Is(err, models.ErrBankUnavailable) || errors.Is(err, models.ErrBankNotFound) {
			log.Warn("bank availability gate refused", "err", err)
			return errorResponse(req.TransactionID, models.ErrCodeBankUnavailable, err.Error())
		}
		log.Error("bank availability check failed", "err", err)
		return errorResponse(req.TransactionID, models.ErrCodeSystem, "internal system error")
	}

	// A bank activated after startup gets its client built on first use, so
	// passing the availability gate always implies a reachable client.
	for _, b := range participants {
		if _, ok := s.registry.Lookup(b.BankCode); !ok {
			s.registry.Register(b.BankCode, s.newClient(b.EndpointURL))
		}
	}

	// Claim the fingerprint before execution so two concurrent duplicates
	// cannot both move money. The loser either replays the winner's response
	// or is told to retry. The lease is short: a process that dies mid-flight
	// must not block retries until the response TTL runs out.
	claimed, existing, err := s.idem.Claim(ctx, fingerprint, req.TransactionID, s.claimLease())
	if err != nil {
		log.Error("idempotency claim failed", "err", err)
		return errorResponse(req.TransactionID, models.ErrCodeSystem, "internal system error")
	}
	if !claimed {
		if resp := decodeResponse(existing); resp != nil {
			log.Info("lost idempotency claim, returning winner's response")
			return resp
		}
		log.Info("duplicate request in flight")
		return errorResponse(req.TransactionID, models.ErrCodeSystem, "transaction already in progress, retry with the same transaction id")
	}

	// Step 5: the two-phase exchange.
	resp, evts := s.execute(ctx, req, payer, payee, correlationID, log)

	// Step 6: resolve the claim. Only business outcomes are cached; a
	// SYSTEM_ERROR is a transient fault and must stay retryable, so its claim
	// is released instead of answering retries for a day.
	if resp.ErrorCode == models.ErrCodeSystem {
		if err := s.idem.Release(ctx, fingerprint); err != nil {
			log.Warn("idempotency claim release failed", "err", err)
		}
	} else if raw, err := json.Marshal(resp); err == nil {
		if err := s.idem.StoreResponse(ctx, fingerprint, raw, s.idemTTL); err != nil {
			log.Warn("idempotency cache write failed", "err", err)
		}
	}

	// Step 7: lifecycle events, fire-and-forget.
	s.emitter.Emit(evts...)

	metrics.TransactionsTotal.WithLabelValues(string(resp.Status)).Inc()
	log.Info("transaction processed", "status", resp.Status, "error_code", resp.ErrorCode)
	return resp
}

// execute opens the store transaction, inserts the PENDING record and drives
// the debit and credit legs. Terminal outcomes, FAILED and REVERSED
// included, are committed; rollback happens only when no terminal outcome
// was reached.
func (s *SwitchService) execute(
	ctx context.Context,
	req *models.TransactionRequest,
	payer, payee *models.VPAMapping,
	correlationID string,
	log *slog.Logger,
) (*models.TransactionResponse, []models.TransactionEvent) {
	var evts eventList
	evts.transactionID = req.TransactionID

	stx, err := s.store.Begin(ctx)
	if err != nil {
		log.Error("begin store transaction failed", "err", err)
		return errorResponse(req.TransactionID, models.ErrCodeSystem, "internal system error"), evts.items
	}

	txn := &models.Transaction{
		TransactionID: req.TransactionID,
		RRN:           generateRRN(),
		PayerVPA:      req.PayerVPA,
		PayeeVPA:      req.PayeeVPA,
		AmountPaisa:   req.AmountPaisa,
		Currency:      "INR",
		Type:          transactionType(req.Type),
		Status:        models.StatusPending,
		Description:   req.Description,
		Reference:     req.Reference,
		PayerBankCode: payer.BankCode,
		PayeeBankCode: payee.BankCode,
		Signature:     req.Signature,
		Metadata:      req.Metadata,
		InitiatedAt:   req.InitiatedAt,
		ExpiresAt:     req.InitiatedAt.Add(s.txnTTL),
	}
	txn.ApplyFees()

	if err := stx.CreateTransaction(ctx, txn); err != nil {
		_ = stx.Rollback(ctx)
		log.Error("create transaction record failed", "err", err)
		return errorResponse(req.TransactionID, models.ErrCodeSystem, "internal system error"), evts.items
	}
	_ = stx.AppendAudit(ctx, models.AuditLog{
		EntityType: "transaction",
		EntityID:   req.TransactionID,
		Action:     "CREATE",
		Actor:      "SYSTEM",
		NewValues: map[string]any{
			"status":       string(txn.Status),
			"amount_paisa": txn.AmountPaisa,
			"payer_bank":   txn.PayerBankCode,
			"payee_bank":   txn.PayeeBankCode,
		},
		CorrelationID: correlationID,
	})

	// Once the debit leg is attempted the exchange is no longer externally
	// cancellable: it runs to a terminal or reversed state even if the
	// caller goes away.
	ctx = context.WithoutCancel(ctx)

	// Debit leg.
	evts.add("DEBIT_INITIATED", "initiating debit from payer account", map[string]any{
		"bank_code": payer.BankCode,
		"account":   payer.AccountNumber,
	})
	debitResp, err := s.callLeg(ctx, txn, payer, bank.LegDebit, txn.TransactionID, txn.Reference)
	if err != nil {
		// Nothing moved; commit the failure as-is.
		evts.add("DEBIT_FAILED", "debit leg failed", map[string]any{"error": err.Error()})
		return s.settle(ctx, stx, txn, models.StatusFailed, models.ErrCodeProcessing,
			fmt.Sprintf("debit failed: %v", err), correlationID, &evts, log), evts.items
	}
	evts.add("DEBIT_SUCCESS", "debit leg completed", map[string]any{
		"bank_reference_id": debitResp.BankReferenceID,
	})

	// Credit leg.
	evts.add("CREDIT_INITIATED", "initiating credit to payee account", map[string]any{
		"bank_code": payee.BankCode,
		"account":   payee.AccountNumber,
	})
	creditResp, creditErr := s.callLeg(ctx, txn, payee, bank.LegCredit, txn.TransactionID, txn.Reference)
	if creditErr != nil {
		evts.add("CREDIT_FAILED", "credit leg failed, initiating reversal", map[string]any{
			"error": creditErr.Error(),
		})

		// Compensating reversal: credit the payer back, referencing the
		// debit's bank reference.
		evts.add("REVERSAL_INITIATED", "reversing debit at payer bank", map[string]any{
			"bank_reference_id": debitResp.BankReferenceID,
		})
		metrics.ReversalsTotal.Inc()
		_, revErr := s.callLeg(ctx, txn, payer, bank.LegCredit,
			txn.TransactionID+"_REVERSE", "REVERSAL_"+debitResp.BankReferenceID)
		if revErr != nil {
			// Both credit and reversal failed: money left the payer and is
			// stranded. Never auto-retried; manual reconciliation only.
			evts.add("REVERSAL_FAILED", "debit reversal failed", map[string]any{
				"reversal_error": revErr.Error(),
			})
			msg := fmt.Sprintf("credit failed: %v; reversal failed: %v", creditErr, revErr)
			log.Error("credit and reversal both failed", "err", msg, "reconcile", true)
			return s.settle(ctx, stx, txn, models.StatusFailed, models.ErrCodeCritical,
				msg, correlationID, &evts, log), evts.items
		}

		evts.add("REVERSAL_SUCCESS", "debit reversed", nil)
		return s.settle(ctx, stx, txn, models.StatusReversed, models.ErrCodeProcessing,
			fmt.Sprintf("credit failed, debit reversed: %v", creditErr), correlationID, &evts, log), evts.items
	}
	evts.add("CREDIT_SUCCESS", "credit leg completed", map[string]any{
		"bank_reference_id": creditResp.BankReferenceID,
	})

	if err := stx.UpdateStatus(ctx, txn.TransactionID, models.StatusSuccess, "", ""); err != nil {
		_ = stx.Rollback(ctx)
		log.Error("status update failed after funds movement", "err", err, "reconcile", true)
		return errorResponse(req.TransactionID, models.ErrCodeSystem, "internal system error"), evts.items
	}
	_ = stx.AppendAudit(ctx, models.AuditLog{
		EntityType: "transaction",
		EntityID:   txn.TransactionID,
		Action:     "STATUS_CHANGE",
		Actor:      "SYSTEM",
		OldValues:  map[string]any{"status": string(models.StatusPending)},
		NewValues:  map[string]any{"status": string(models.StatusSuccess)},
		CorrelationID: correlationID,
	})
	if err := stx.Commit(ctx); err != nil {
		// Funds moved at both banks but the record did not commit. Flag for
		// reconciliation; never silently dropped.
		log.Error("commit failed after funds movement", "err", err, "reconcile", true)
		return errorResponse(req.TransactionID, models.ErrCodeSystem, "internal system error"), evts.items
	}

	now := time.Now()
	txn.Status = models.StatusSuccess
	txn.ProcessedAt = &now
	evts.add("TRANSACTION_SUCCESS", "transaction completed", map[string]any{"rrn": txn.RRN})

	return &models.TransactionResponse{
		TransactionID: txn.TransactionID,
		RRN:           txn.RRN,
		Status:        models.StatusSuccess,
		PayerBankCode: txn.PayerBankCode,
		PayeeBankCode: txn.PayeeBankCode,
		Fees: &models.TransactionFees{
			SwitchFeePaisa: txn.SwitchFeePaisa,
			BankFeePaisa:   txn.BankFeePaisa,
			TotalFeePaisa:  txn.TotalFeePaisa,
		},
		SettlementID: txn.SettlementID,
		ProcessedAt:  now,
	}, evts.items
}

// settle records a non-success terminal outcome and commits it. The caller
// still gets a FAILED response; the record keeps the precise status.
func (s *SwitchService) settle(
	ctx context.Context,
	stx repo.StoreTx,
	txn *models.Transaction,
	status models.TransactionStatus,
	errorCode, errorMessage, correlationID string,
	evts *eventList,
	log *slog.Logger,
) *models.TransactionResponse {
	if err := stx.UpdateStatus(ctx, txn.TransactionID, status, errorCode, errorMessage); err != nil {
		_ = stx.Rollback(ctx)
		log.Error("terminal status update failed", "status", status, "err", err, "reconcile", true)
		return errorResponse(txn.TransactionID, models.ErrCodeSystem, "internal system error")
	}
	_ = stx.AppendAudit(ctx, models.AuditLog{
		EntityType: "transaction",
		EntityID:   txn.TransactionID,
		Action:     "STATUS_CHANGE",
		Actor:      "SYSTEM",
		OldValues:  map[string]any{"status": string(models.StatusPending)},
		NewValues:  map[string]any{"status": string(status), "error_code": errorCode},
		CorrelationID: correlationID,
	})
	if err := stx.Commit(ctx); err != nil {
		log.Error("commit of terminal outcome failed", "status", status, "err", err, "reconcile", true)
		return errorResponse(txn.TransactionID, models.ErrCodeSystem, "internal system error")
	}

	switch status {
	case models.StatusReversed:
		evts.add("TRANSACTION_REVERSED", "transaction reversed", nil)
	default:
		evts.add("TRANSACTION_FAILED", "transaction failed", map[string]any{"error_code": errorCode})
	}
	return errorResponse(txn.TransactionID, errorCode, errorMessage)
}

// callLeg issues one bank-side movement with its own deadline. A timeout is
// indistinguishable from a rejection here: both surface as a leg failure and
// take the same compensation path.
func (s *SwitchService) callLeg(
	ctx context.Context,
	txn *models.Transaction,
	party *models.VPAMapping,
	legType, legTransactionID, reference string,
) (*bank.TransactionResponse, error) {
	client, ok := s.registry.Lookup(party.BankCode)
	if !ok {
		return nil, fmt.Errorf("no client registered for bank %s", party.BankCode)
	}

	legCtx, cancel := context.WithTimeout(ctx, s.bankTimeout)
	defer cancel()

	start := time.Now()
	resp, err := client.ProcessTransaction(legCtx, &bank.TransactionRequest{
		TransactionID: legTransactionID,
		BankCode:      party.BankCode,
		AccountNumber: party.AccountNumber,
		AmountPaisa:   txn.AmountPaisa,
		Type:          legType,
		Reference:     reference,
		Description:   txn.Description,
		Signature:     txn.Signature,
		InitiatedAt:   txn.InitiatedAt,
	})
	metrics.BankLegLatency.WithLabelValues(party.BankCode, legType).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%s request to bank %s failed: %w", strings.ToLower(legType), party.BankCode, err)
	}
	if resp.Status != "SUCCESS" {
		return nil, fmt.Errorf("%s rejected by bank %s: %s - %s",
			strings.ToLower(legType), party.BankCode, resp.ErrorCode, resp.ErrorMessage)
	}
	return resp, nil
}

func (s *SwitchService) resolveParty(ctx context.Context, vpa, role string) (*models.VPAMapping, error) {
	m, err := s.vpas.Resolve(ctx, vpa)
	if err != nil {
		return nil, fmt.Errorf("%s VPA %s: %w", role, vpa, err)
	}
	return m, nil
}

func (s *SwitchService) resolutionFailure(log *slog.Logger, transactionID string, err error) *models.TransactionResponse {
	if errors.Is(err, models.ErrVPANotFound) {
		log.Warn("vpa resolution failed", "err", err)
		return errorResponse(transactionID, models.ErrCodeVPAResolution, err.Error())
	}
	log.Error("vpa lookup transport failure", "err", err)
	return errorResponse(transactionID, models.ErrCodeSystem, "internal system error")
}

// GetTransaction, GetTransactionByRRN and ListTransactionsByVPA expose the
// read side for the API surface.
func (s *SwitchService) GetTransaction(ctx context.Context, transactionID string) (*models.Transaction, error) {
	return s.txns.GetByID(ctx, transactionID)
}

func (s *SwitchService) GetTransactionByRRN(ctx context.Context, rrn string) (*models.Transaction, error) {
	return s.txns.GetByRRN(ctx, rrn)
}

func (s *SwitchService) ListTransactionsByVPA(ctx context.Context, vpa string, limit int) ([]*models.Transaction, error) {
	return s.txns.ListByVPA(ctx, vpa, limit)
}

func (s *SwitchService) ListTransactionsByStatus(ctx context.Context, status models.TransactionStatus, limit int) ([]*models.Transaction, error) {
	return s.txns.ListByStatus(ctx, status, limit)
}

// claimLease bounds how long a crashed process can block retries of the same
// request: room for all three bank legs plus store work.
func (s *SwitchService) claimLease() time.Duration {
	return 3*s.bankTimeout + 10*time.Second
}

// --- helpers ---

func validateRequest(req *models.TransactionRequest, ttl time.Duration) error {
	switch {
	case strings.TrimSpace(req.TransactionID) == "":
		return errors.New("transaction id is required")
	case strings.TrimSpace(req.PayerVPA) == "":
		return errors.New("payer vpa is required")
	case strings.TrimSpace(req.PayeeVPA) == "":
		return errors.New("payee vpa is required")
	case req.PayerVPA == req.PayeeVPA:
		return errors.New("payer and payee vpa cannot be the same")
	case req.AmountPaisa <= 0:
		return errors.New("amount must be positive")
	case req.InitiatedAt.IsZero():
		return errors.New("initiated_at is required")
	case time.Now().After(req.InitiatedAt.Add(ttl)):
		return errors.New("transaction request has expired")
	}
	return nil
}

func transactionType(t models.TransactionType) models.TransactionType {
	switch t {
	case models.TypeP2P, models.TypeP2M, models.TypeM2P, models.TypeRefund:
		return t
	default:
		return models.TypeP2P
	}
}

// requestFingerprint hashes the identifying fields of a request so retries
// of the same instruction map to the same idempotency key.
func requestFingerprint(req *models.TransactionRequest) string {
	data := fmt.Sprintf("%s|%s|%s|%d|%d",
		req.TransactionID, req.PayerVPA, req.PayeeVPA, req.AmountPaisa, req.InitiatedAt.UnixNano())
	return fmt.Sprintf("%x", sha256.Sum256([]byte(data)))
}

func generateRRN() string {
	return "RRN" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
}

func errorResponse(transactionID, code, message string) *models.TransactionResponse {
	return &models.TransactionResponse{
		TransactionID: transactionID,
		Status:        models.StatusFailed,
		ErrorCode:     code,
		ErrorMessage:  message,
		ProcessedAt:   time.Now(),
	}
}

func decodeResponse(raw []byte) *models.TransactionResponse {
	if len(raw) == 0 {
		return nil
	}
	var resp models.TransactionResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil
	}
	return &resp
}

type eventList struct {
	transactionID string
	items         []models.TransactionEvent
}

func (l *eventList) add(eventType, description string, details map[string]any) {
	l.items = append(l.items, models.TransactionEvent{
		TransactionID: l.transactionID,
		EventType:     eventType,
		Description:   description,
		Timestamp:     time.Now(),
		Details:       details,
	})
}
