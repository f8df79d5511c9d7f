package payment

import (
	"context"
	"log"
	"strings"

	"github.com/google/uuid"
)

// StubProvider accepts every push without calling Safaricom. Used with
// MPESA_ENV=stub for local development; callbacks must be posted by hand.
type StubProvider struct{}

func (s *StubProvider) InitiatePayment(ctx context.Context, req PaymentRequest) (*PaymentResponse, error) {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	out := &PaymentResponse{
		MerchantRequestID:   "stub-" + id[:12],
		CheckoutRequestID:   "ws_CO_stub_" + id,
		ResponseCode:        "0",
		ResponseDescription: "Success. Request accepted for processing",
		CustomerMessage:     "Success. Request accepted for processing",
	}
	log.Printf("[MPESA stub] accepted reference=%s phone=%s amount=%s checkout_request_id=%s", req.Reference, req.Phone, req.Amount, out.CheckoutRequestID)
	return out, nil
}

func (s *StubProvider) QueryPayment(ctx context.Context, checkoutRequestID string) (*QueryResponse, error) {
	return &QueryResponse{
		CheckoutRequestID:   checkoutRequestID,
		ResponseCode:        "0",
		ResponseDescription: "The service request has been accepted successsfully",
		ResultCode:          "1037",
		ResultDesc:          "stub gateway does not track pushes",
	}, nil
}
