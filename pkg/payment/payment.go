package payment

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrNotConfigured is returned when gateway credentials are absent.
var ErrNotConfigured = errors.New("mpesa configuration is incomplete")

// PaymentRequest is an STK push for a single payer.
type PaymentRequest struct {
	Phone       string // canonical 2547XXXXXXXX
	Amount      decimal.Decimal
	Reference   string
	Description string
}

// PaymentResponse is the gateway's synchronous envelope. Business failures
// arrive here too, in ResponseCode or ErrorCode, not as a Go error.
type PaymentResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`

	RequestID    string `json:"requestId,omitempty"`
	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// Accepted reports whether the push reached the payer's device.
func (r *PaymentResponse) Accepted() bool {
	return r.ResponseCode == "0" && r.CheckoutRequestID != ""
}

// Reason is the human-readable rejection text.
func (r *PaymentResponse) Reason() string {
	switch {
	case r.ErrorMessage != "":
		return r.ErrorMessage
	case r.CustomerMessage != "" && r.ResponseCode != "0":
		return r.CustomerMessage
	case r.ResponseDescription != "":
		return r.ResponseDescription
	}
	return "Failed to initiate STK Push"
}

// QueryResponse is the gateway's view of a previously initiated push.
type QueryResponse struct {
	MerchantRequestID   string      `json:"MerchantRequestID"`
	CheckoutRequestID   string      `json:"CheckoutRequestID"`
	ResponseCode        string      `json:"ResponseCode"`
	ResponseDescription string      `json:"ResponseDescription"`
	ResultCode          json.Number `json:"ResultCode"`
	ResultDesc          string      `json:"ResultDesc"`

	ErrorCode    string `json:"errorCode,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

type Provider interface {
	InitiatePayment(ctx context.Context, req PaymentRequest) (*PaymentResponse, error)
	QueryPayment(ctx context.Context, checkoutRequestID string) (*QueryResponse, error)
}
