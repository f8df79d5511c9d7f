package handler

import (
	"io"
	"log"
	"net/http"

	"dovepay/internal/service"

	"github.com/gin-gonic/gin"
)

type MpesaWebhookHandler struct {
	payments *service.PaymentService
}

func NewMpesaWebhookHandler(payments *service.PaymentService) *MpesaWebhookHandler {
	return &MpesaWebhookHandler{payments: payments}
}

// Handle processes the Daraja stkCallback. It always acknowledges with
// ResultCode 0 so Safaricom does not keep redelivering; failures are logged.
func (h *MpesaWebhookHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		log.Printf("[MPESA callback] ReadBody error: %v", err)
		acknowledge(c)
		return
	}
	log.Printf("[MPESA callback] raw body: %s", string(body))
	outcome, err := h.payments.HandleCallback(c.Request.Context(), body)
	if err != nil {
		log.Printf("[MPESA callback] error: %v", err)
	} else {
		log.Printf("[MPESA callback] outcome=%s", outcome)
	}
	acknowledge(c)
}

func acknowledge(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ResultCode": 0, "ResultDesc": "Success"})
}
