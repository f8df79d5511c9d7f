package router

import (
	"net/http"

	"dovepay/config"
	"dovepay/internal/auth"
	"dovepay/internal/handler"
	"dovepay/internal/middleware"
	"dovepay/internal/service"

	"github.com/gin-gonic/gin"
)

// Setup wires handlers onto a gin engine. The caller owns limiter and closes it
// on shutdown.
func Setup(cfg *config.Config, payments *service.PaymentService, authn *auth.AdminAuthenticator, limiter *middleware.InMemoryRateLimiter) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	// Skip gin.Logger() to reduce log noise; handlers log what matters

	cookie := middleware.AdminCookie{Name: cfg.Admin.CookieName, Secure: cfg.IsProduction()}
	rateLimit := middleware.RateLimit(limiter)

	paymentHandler := handler.NewPaymentHandler(payments)
	webhookHandler := handler.NewMpesaWebhookHandler(payments)
	adminHandler := handler.NewAdminHandler(authn, cookie, payments)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.POST("/initiate-payment", rateLimit, paymentHandler.Initiate)
		api.POST("/payment-callback", webhookHandler.Handle)
		api.GET("/check-status", paymentHandler.CheckStatus)

		admin := api.Group("/admin")
		{
			admin.POST("/login", rateLimit, adminHandler.Login)
			admin.POST("/logout", adminHandler.Logout)

			authed := admin.Group("")
			authed.Use(middleware.AdminRequired(authn, cookie))
			{
				authed.GET("/payments", adminHandler.ListPayments)
				authed.GET("/payments/export", adminHandler.ExportPayments)
				authed.GET("/payments/:correlation_id/gateway-status", adminHandler.GatewayStatus)
			}
		}
	}
	return r
}
