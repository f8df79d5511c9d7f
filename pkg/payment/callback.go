package payment

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ResultCodeSuccess is the stkCallback ResultCode for a settled payment.
const ResultCodeSuccess = 0

const receiptItemName = "MpesaReceiptNumber"

// STKCallbackEnvelope is the body Daraja posts to the CallBackURL.
type STKCallbackEnvelope struct {
	Body struct {
		STKCallback STKCallback `json:"stkCallback"`
	} `json:"Body"`
}

type STKCallback struct {
	MerchantRequestID string            `json:"MerchantRequestID"`
	CheckoutRequestID string            `json:"CheckoutRequestID"`
	ResultCode        int               `json:"ResultCode"`
	ResultDesc        string            `json:"ResultDesc"`
	CallbackMetadata  *CallbackMetadata `json:"CallbackMetadata,omitempty"`
}

type CallbackMetadata struct {
	Item []CallbackItem `json:"Item"`
}

// CallbackItem values are numbers or strings depending on Name.
type CallbackItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value,omitempty"`
}

var ErrMalformedCallback = errors.New("malformed stk callback")

// resultCodePresence tells an absent ResultCode apart from an explicit 0.
type resultCodePresence struct {
	Body struct {
		STKCallback struct {
			ResultCode *int `json:"ResultCode"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// ParseSTKCallback decodes a raw callback body. CheckoutRequestID and
// ResultCode are both required.
func ParseSTKCallback(body []byte) (*STKCallback, error) {
	var env STKCallbackEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCallback, err)
	}
	cb := env.Body.STKCallback
	if cb.CheckoutRequestID == "" {
		return nil, fmt.Errorf("%w: missing CheckoutRequestID", ErrMalformedCallback)
	}
	var presence resultCodePresence
	if err := json.Unmarshal(body, &presence); err != nil || presence.Body.STKCallback.ResultCode == nil {
		return nil, fmt.Errorf("%w: missing ResultCode", ErrMalformedCallback)
	}
	return &cb, nil
}

// Succeeded reports whether the payer authorised and the payment settled.
func (c *STKCallback) Succeeded() bool {
	return c.ResultCode == ResultCodeSuccess
}

// Item returns the metadata value for name as a string, or "" when absent.
func (c *STKCallback) Item(name string) string {
	if c.CallbackMetadata == nil {
		return ""
	}
	for _, it := range c.CallbackMetadata.Item {
		if it.Name != name || len(it.Value) == 0 {
			continue
		}
		var s string
		if err := json.Unmarshal(it.Value, &s); err == nil {
			return s
		}
		return strings.TrimSpace(string(it.Value))
	}
	return ""
}

// Receipt is the M-Pesa settlement receipt; only present on success.
func (c *STKCallback) Receipt() string {
	return c.Item(receiptItemName)
}
