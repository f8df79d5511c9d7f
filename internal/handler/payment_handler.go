package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"dovepay/internal/models"
	"dovepay/internal/repository"
	"dovepay/internal/service"
	"dovepay/pkg/payment"

	"github.com/gin-gonic/gin"
)

type PaymentHandler struct {
	payments *service.PaymentService
}

func NewPaymentHandler(payments *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// paymentView is the JSON shape of a transaction in API responses.
type paymentView struct {
	ID            string      `json:"id"`
	Reference     string      `json:"reference"`
	CorrelationID string      `json:"correlation_id"`
	Phone         string      `json:"phone"`
	Amount        json.Number `json:"amount"`
	Status        string      `json:"status"`
	Receipt       *string     `json:"receipt"`
	FailureReason *string     `json:"failure_reason"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

func newPaymentView(t *models.Transaction) paymentView {
	return paymentView{
		ID:            t.ID,
		Reference:     t.Reference,
		CorrelationID: t.CorrelationID,
		Phone:         t.Phone,
		Amount:        json.Number(t.Amount.String()),
		Status:        t.Status,
		Receipt:       t.Receipt,
		FailureReason: t.FailureReason,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

// Initiate sends an STK push for {phone, amount} and records it as pending.
func (h *PaymentHandler) Initiate(c *gin.Context) {
	var req struct {
		Phone  string          `json:"phone"`
		Amount json.RawMessage `json:"amount"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request body"})
		return
	}
	amount := rawAmount(req.Amount)
	if strings.TrimSpace(req.Phone) == "" || amount == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Phone and amount are required"})
		return
	}

	res, err := h.payments.Initiate(c.Request.Context(), service.InitiateRequest{Phone: req.Phone, Amount: amount})
	var rejected *service.RejectedError
	switch {
	case err == nil:
	case errors.Is(err, payment.ErrInvalidPhone):
		log.Printf("[MPESA] initiate: invalid phone %q", req.Phone)
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid phone format"})
		return
	case errors.Is(err, payment.ErrAmountTooLarge):
		c.JSON(http.StatusBadRequest, gin.H{"message": "Amount must not exceed " + payment.MaxAmount.String()})
		return
	case errors.Is(err, payment.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{"message": "Amount must be a positive whole number"})
		return
	case errors.As(err, &rejected):
		c.JSON(http.StatusBadRequest, gin.H{"message": rejected.Message, "code": rejected.Code})
		return
	default:
		log.Printf("[MPESA] initiate error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to initiate payment, please try again"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":          "STK Push initiated successfully",
		"reference":        res.Reference,
		"correlation_id":   res.CorrelationID,
		"customer_message": res.CustomerMessage,
	})
}

// CheckStatus returns the current state of a transaction. A missing row is a
// 404 with status not_found; pollers treat it as still pending.
func (h *PaymentHandler) CheckStatus(c *gin.Context) {
	id := c.Query("checkoutRequestId")
	if id == "" {
		id = c.Query("correlation_id")
	}
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Checkout Request ID is required"})
		return
	}
	t, err := h.payments.Status(c.Request.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"status": "not_found", "correlation_id": id})
		return
	}
	if err != nil {
		log.Printf("[MPESA] check-status %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal Server Error"})
		return
	}
	v := newPaymentView(t)
	c.JSON(http.StatusOK, gin.H{
		"status":         v.Status,
		"phone":          v.Phone,
		"amount":         v.Amount,
		"reference":      v.Reference,
		"receipt":        v.Receipt,
		"failure_reason": v.FailureReason,
		"updated_at":     v.UpdatedAt,
	})
}

// rawAmount accepts 500 or "500" and returns the text; null or absent is "".
func rawAmount(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return ""
	}
	if strings.HasPrefix(s, `"`) {
		var unquoted string
		if err := json.Unmarshal(raw, &unquoted); err != nil {
			return ""
		}
		return strings.TrimSpace(unquoted)
	}
	return s
}
