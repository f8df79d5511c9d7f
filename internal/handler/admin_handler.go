package handler

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"dovepay/internal/auth"
	"dovepay/internal/domain"
	"dovepay/internal/middleware"
	"dovepay/internal/repository"
	"dovepay/internal/service"

	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type AdminHandler struct {
	authn    *auth.AdminAuthenticator
	cookie   middleware.AdminCookie
	payments *service.PaymentService
}

func NewAdminHandler(authn *auth.AdminAuthenticator, cookie middleware.AdminCookie, payments *service.PaymentService) *AdminHandler {
	return &AdminHandler{authn: authn, cookie: cookie, payments: payments}
}

// Login exchanges the shared admin password for a token, returned in the body
// and set as a cookie.
func (h *AdminHandler) Login(c *gin.Context) {
	var req struct {
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Password is required"})
		return
	}
	token, err := h.authn.Login(req.Password)
	if errors.Is(err, auth.ErrAdminDisabled) {
		log.Printf("[ADMIN] login attempted but ADMIN_PASSWORD/ADMIN_SECRET are not set")
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid password"})
		return
	}
	if err != nil {
		log.Printf("[ADMIN] failed login from %s", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"message": "Invalid password"})
		return
	}
	h.cookie.Set(c, token, int(h.authn.Expiry()/time.Second))
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Login successful", "token": token})
}

func (h *AdminHandler) Logout(c *gin.Context) {
	h.cookie.Clear(c)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ListPayments returns payments newest first, optionally filtered by ?status= and ?limit=.
func (h *AdminHandler) ListPayments(c *gin.Context) {
	f, ok := listFilter(c)
	if !ok {
		return
	}
	txns, err := h.payments.List(c.Request.Context(), f)
	if err != nil {
		log.Printf("[ADMIN] list payments: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal Server Error"})
		return
	}
	views := make([]paymentView, 0, len(txns))
	for i := range txns {
		views = append(views, newPaymentView(&txns[i]))
	}
	c.JSON(http.StatusOK, gin.H{"payments": views})
}

// ExportPayments streams the same listing as an Excel workbook.
func (h *AdminHandler) ExportPayments(c *gin.Context) {
	f, ok := listFilter(c)
	if !ok {
		return
	}
	txns, err := h.payments.List(c.Request.Context(), f)
	if err != nil {
		log.Printf("[ADMIN] export payments: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal Server Error"})
		return
	}
	book, err := buildPaymentsWorkbook(txns)
	if err != nil {
		log.Printf("[ADMIN] build workbook: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to generate Excel file"})
		return
	}
	defer book.Close()
	filename := fmt.Sprintf("payments_%s.xlsx", time.Now().UTC().Format("20060102_150405"))
	c.Header("Content-Type", xlsxContentType)
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Status(http.StatusOK)
	if err := book.Write(c.Writer); err != nil {
		log.Printf("[ADMIN] write workbook: %v", err)
	}
}

// GatewayStatus asks Daraja about a push. Local records are not changed.
func (h *AdminHandler) GatewayStatus(c *gin.Context) {
	id := c.Param("correlation_id")
	out, err := h.payments.QueryGateway(c.Request.Context(), id)
	if err != nil {
		log.Printf("[ADMIN] gateway status %s: %v", id, err)
		c.JSON(http.StatusBadGateway, gin.H{"message": "Gateway query failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}

func listFilter(c *gin.Context) (repository.ListFilter, bool) {
	var f repository.ListFilter
	if s := c.Query("status"); s != "" {
		if s != domain.StatusPending && s != domain.StatusCompleted && s != domain.StatusFailed {
			c.JSON(http.StatusBadRequest, gin.H{"message": "status must be pending, completed or failed"})
			return f, false
		}
		f.Status = s
	}
	if l := c.Query("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"message": "limit must be a non-negative integer"})
			return f, false
		}
		f.Limit = n
	}
	return f, true
}
