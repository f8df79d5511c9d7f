package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"dovepay/internal/domain"
	"dovepay/internal/models"
	"dovepay/internal/repository"
	"dovepay/pkg/payment"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const notifyTimeout = 30 * time.Second

// RejectedError is a synchronous business rejection from the gateway. Nothing
// is persisted when it is returned.
type RejectedError struct {
	Code    string
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("gateway rejected push (%s): %s", e.Code, e.Message)
}

// CallbackOutcome describes what a callback did to the store.
type CallbackOutcome int

const (
	CallbackApplied   CallbackOutcome = iota // pending row moved to a terminal state
	CallbackDuplicate                        // row already held the same terminal state
	CallbackConflict                         // row already terminal with a different outcome; ignored
	CallbackUnmatched                        // no row for the correlation id
)

func (o CallbackOutcome) String() string {
	switch o {
	case CallbackApplied:
		return "applied"
	case CallbackDuplicate:
		return "duplicate"
	case CallbackConflict:
		return "conflict"
	case CallbackUnmatched:
		return "unmatched"
	}
	return "unknown"
}

type InitiateRequest struct {
	Phone  string
	Amount string
}

type InitiateResult struct {
	Reference       string
	CorrelationID   string
	CustomerMessage string
	Transaction     *models.Transaction
}

// PaymentService runs the push payment lifecycle: initiation, callback
// resolution and status lookup.
type PaymentService struct {
	gateway  Gateway
	store    TransactionStore
	notifier Notifier

	now          func() time.Time
	newReference func() string
}

func NewPaymentService(gateway Gateway, store TransactionStore, notifier Notifier) *PaymentService {
	return &PaymentService{
		gateway:      gateway,
		store:        store,
		notifier:     notifier,
		now:          func() time.Time { return time.Now().UTC() },
		newReference: NewReference,
	}
}

// NewReference returns a payer-facing reference such as DP-3F9A1C2.
func NewReference() string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return domain.ReferencePrefix + id[:7]
}

// Initiate validates input, sends the STK push and records a pending
// transaction. Once the gateway has accepted, a storage failure is logged but
// not returned: the prompt is already on the payer's phone.
func (s *PaymentService) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	phone, err := payment.NormalizePhone(req.Phone)
	if err != nil {
		return nil, err
	}
	amount, err := payment.ParseAmount(req.Amount)
	if err != nil {
		return nil, err
	}
	reference := s.newReference()

	resp, err := s.gateway.InitiatePayment(ctx, payment.PaymentRequest{
		Phone:     phone,
		Amount:    amount,
		Reference: reference,
	})
	if err != nil {
		return nil, fmt.Errorf("initiate stk push: %w", err)
	}
	if !resp.Accepted() {
		code := resp.ResponseCode
		if code == "" {
			code = resp.ErrorCode
		}
		log.Printf("[MPESA] STK push rejected reference=%s code=%s reason=%q", reference, code, resp.Reason())
		return nil, &RejectedError{Code: code, Message: resp.Reason()}
	}

	now := s.now()
	t := &models.Transaction{
		ID:                uuid.NewString(),
		Reference:         reference,
		CorrelationID:     resp.CheckoutRequestID,
		MerchantRequestID: resp.MerchantRequestID,
		Phone:             phone,
		Amount:            amount,
		Status:            domain.StatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.store.Create(ctx, t); err != nil {
		log.Printf("[MPESA] failed to save pending payment reference=%s checkout_request_id=%s: %v", reference, t.CorrelationID, err)
	} else {
		log.Printf("[MPESA] pending payment saved reference=%s checkout_request_id=%s", reference, t.CorrelationID)
	}
	return &InitiateResult{
		Reference:       reference,
		CorrelationID:   resp.CheckoutRequestID,
		CustomerMessage: resp.CustomerMessage,
		Transaction:     t,
	}, nil
}

// HandleCallback resolves the transaction named by a gateway callback. A
// terminal transaction is never changed: an identical replay is a duplicate,
// a contradicting one is a conflict, and both are left as they are.
func (s *PaymentService) HandleCallback(ctx context.Context, body []byte) (CallbackOutcome, error) {
	cb, err := payment.ParseSTKCallback(body)
	if err != nil {
		return CallbackUnmatched, err
	}
	res := s.resolution(cb, body)

	existing, err := s.store.GetByCorrelationID(ctx, cb.CheckoutRequestID)
	if errors.Is(err, repository.ErrNotFound) {
		log.Printf("[MPESA callback] reconciliation anomaly: no payment for checkout_request_id=%s result_code=%d", cb.CheckoutRequestID, cb.ResultCode)
		return CallbackUnmatched, nil
	}
	if err != nil {
		return CallbackUnmatched, fmt.Errorf("lookup %s: %w", cb.CheckoutRequestID, err)
	}

	if domain.IsTerminal(existing.Status) {
		if sameOutcome(existing, res) {
			log.Printf("[MPESA callback] duplicate delivery for checkout_request_id=%s status=%s", cb.CheckoutRequestID, existing.Status)
			return CallbackDuplicate, nil
		}
		log.Printf("[MPESA callback] conflicting delivery ignored for checkout_request_id=%s stored=%s incoming=%s", cb.CheckoutRequestID, existing.Status, res.Status)
		return CallbackConflict, nil
	}

	applied, err := s.store.Resolve(ctx, cb.CheckoutRequestID, res)
	if err != nil {
		return CallbackUnmatched, fmt.Errorf("resolve %s: %w", cb.CheckoutRequestID, err)
	}
	if !applied {
		// A concurrent delivery resolved the row between lookup and update.
		log.Printf("[MPESA callback] checkout_request_id=%s already resolved by a concurrent delivery", cb.CheckoutRequestID)
		return CallbackDuplicate, nil
	}
	log.Printf("[MPESA callback] payment reference=%s checkout_request_id=%s marked %s", existing.Reference, cb.CheckoutRequestID, res.Status)

	existing.Status = res.Status
	existing.Receipt = res.Receipt
	existing.FailureReason = res.FailureReason
	existing.ResultCode = &res.ResultCode
	existing.UpdatedAt = res.ResolvedAt
	if res.Status == domain.StatusCompleted {
		s.notifyCompleted(existing)
	}
	return CallbackApplied, nil
}

func (s *PaymentService) resolution(cb *payment.STKCallback, raw []byte) models.Resolution {
	res := models.Resolution{
		ResultCode: cb.ResultCode,
		Payload:    datatypes.JSON(raw),
		ResolvedAt: s.now(),
	}
	if cb.Succeeded() {
		res.Status = domain.StatusCompleted
		if receipt := cb.Receipt(); receipt != "" {
			res.Receipt = &receipt
		} else {
			log.Printf("[MPESA callback] anomaly: success without MpesaReceiptNumber for checkout_request_id=%s", cb.CheckoutRequestID)
		}
		return res
	}
	reason := cb.ResultDesc
	if reason == "" {
		reason = domain.DefaultFailureMessage
	}
	res.Status = domain.StatusFailed
	res.FailureReason = &reason
	return res
}

func sameOutcome(t *models.Transaction, res models.Resolution) bool {
	if t.Status != res.Status {
		return false
	}
	if res.Status == domain.StatusCompleted {
		if t.Receipt == nil || res.Receipt == nil {
			return t.Receipt == nil && res.Receipt == nil
		}
		return *t.Receipt == *res.Receipt
	}
	return true
}

// notifyCompleted hands the finished transaction to the notifier without
// blocking the callback response.
func (s *PaymentService) notifyCompleted(t *models.Transaction) {
	if s.notifier == nil {
		return
	}
	snapshot := *t
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := s.notifier.PaymentCompleted(ctx, &snapshot); err != nil {
			log.Printf("[NOTIFY] payment reference=%s: %v", snapshot.Reference, err)
		}
	}()
}

// Status returns the transaction for a correlation id, or repository.ErrNotFound.
func (s *PaymentService) Status(ctx context.Context, correlationID string) (*models.Transaction, error) {
	return s.store.GetByCorrelationID(ctx, correlationID)
}

func (s *PaymentService) List(ctx context.Context, f repository.ListFilter) ([]models.Transaction, error) {
	return s.store.List(ctx, f)
}

// QueryGateway asks the gateway about a push without touching the store.
func (s *PaymentService) QueryGateway(ctx context.Context, correlationID string) (*payment.QueryResponse, error) {
	return s.gateway.QueryPayment(ctx, correlationID)
}

// CompletedTotal sums the amounts of completed transactions.
func CompletedTotal(txns []models.Transaction) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range txns {
		if t.Status == domain.StatusCompleted {
			sum = sum.Add(t.Amount)
		}
	}
	return sum
}
