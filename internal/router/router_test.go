package router_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dovepay/config"
	"dovepay/internal/auth"
	"dovepay/internal/database"
	"dovepay/internal/middleware"
	"dovepay/internal/repository"
	"dovepay/internal/router"
	"dovepay/internal/service"
	"dovepay/internal/service/mocks"
	"dovepay/pkg/payment"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig() *config.Config {
	return &config.Config{
		Server:    config.ServerConfig{Env: "test"},
		Admin:     config.AdminConfig{Password: "s3cret", Secret: "signing-key", TokenExpiry: time.Hour, CookieName: "admin_token"},
		RateLimit: config.RateLimitConfig{Limit: 100, Window: time.Minute},
	}
}

func newEngine(t *testing.T, gateway service.Gateway, store service.TransactionStore) *gin.Engine {
	cfg := testConfig()
	authn, err := auth.NewAdminAuthenticator(&cfg.Admin)
	require.NoError(t, err)
	limiter := middleware.NewInMemoryRateLimiter(cfg.RateLimit.Limit, cfg.RateLimit.Window)
	t.Cleanup(limiter.Close)
	payments := service.NewPaymentService(gateway, store, service.NewNotificationService(cfg.SMTP))
	return router.Setup(cfg, payments, authn, limiter)
}

func newSQLiteStore(t *testing.T) *repository.TransactionRepository {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, database.AutoMigrate(db))
	return repository.NewTransactionRepository(db)
}

type response struct {
	code    int
	body    map[string]interface{}
	raw     *bytes.Buffer
	headers http.Header
}

func call(t *testing.T, r http.Handler, method, path, body string, header ...string) response {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	out := response{code: w.Code, raw: w.Body, headers: w.Header()}
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out.body), w.Body.String())
	}
	return out
}

func stkCallback(id string, code int, desc, receipt string) string {
	meta := ""
	if receipt != "" {
		meta = fmt.Sprintf(`,"CallbackMetadata":{"Item":[{"Name":"Amount","Value":500},{"Name":"MpesaReceiptNumber","Value":%q},{"Name":"PhoneNumber","Value":254712345678}]}`, receipt)
	}
	return fmt.Sprintf(`{"Body":{"stkCallback":{"MerchantRequestID":"m-1","CheckoutRequestID":%q,"ResultCode":%d,"ResultDesc":%q%s}}}`, id, code, desc, meta)
}

func TestPaymentLifecycle(t *testing.T) {
	r := newEngine(t, &payment.StubProvider{}, newSQLiteStore(t))

	res := call(t, r, http.MethodPost, "/api/initiate-payment", `{"phone":"0712345678","amount":500}`)
	require.Equal(t, http.StatusOK, res.code, res.raw.String())
	id, _ := res.body["correlation_id"].(string)
	require.True(t, strings.HasPrefix(id, "ws_CO_stub_"), id)
	assert.Regexp(t, `^DP-[0-9A-F]{7}$`, res.body["reference"])

	res = call(t, r, http.MethodGet, "/api/check-status?checkoutRequestId="+id, "")
	require.Equal(t, http.StatusOK, res.code)
	assert.Equal(t, "pending", res.body["status"])
	assert.Equal(t, "254712345678", res.body["phone"])
	assert.EqualValues(t, 500, res.body["amount"])
	assert.Nil(t, res.body["receipt"])

	res = call(t, r, http.MethodPost, "/api/payment-callback", stkCallback(id, 0, "The service request is processed successfully.", "NLJ7RT61SV"))
	require.Equal(t, http.StatusOK, res.code)
	assert.EqualValues(t, 0, res.body["ResultCode"])
	assert.Equal(t, "Success", res.body["ResultDesc"])

	res = call(t, r, http.MethodGet, "/api/check-status?correlation_id="+id, "")
	require.Equal(t, http.StatusOK, res.code)
	assert.Equal(t, "completed", res.body["status"])
	assert.Equal(t, "NLJ7RT61SV", res.body["receipt"])

	// A contradicting late callback is acknowledged but changes nothing.
	res = call(t, r, http.MethodPost, "/api/payment-callback", stkCallback(id, 1032, "Request cancelled by user", ""))
	require.Equal(t, http.StatusOK, res.code)
	res = call(t, r, http.MethodGet, "/api/check-status?checkoutRequestId="+id, "")
	assert.Equal(t, "completed", res.body["status"])
	assert.Nil(t, res.body["failure_reason"])
}

func TestPaymentLifecycle_Failed(t *testing.T) {
	r := newEngine(t, &payment.StubProvider{}, newSQLiteStore(t))

	res := call(t, r, http.MethodPost, "/api/initiate-payment", `{"phone":"254712345678","amount":"100"}`)
	require.Equal(t, http.StatusOK, res.code)
	id := res.body["correlation_id"].(string)

	call(t, r, http.MethodPost, "/api/payment-callback", stkCallback(id, 1032, "Request cancelled by user", ""))

	res = call(t, r, http.MethodGet, "/api/check-status?checkoutRequestId="+id, "")
	assert.Equal(t, "failed", res.body["status"])
	assert.Equal(t, "Request cancelled by user", res.body["failure_reason"])
	assert.Nil(t, res.body["receipt"])
}

func TestPaymentCallback_MissingResultCodeLeavesPending(t *testing.T) {
	r := newEngine(t, &payment.StubProvider{}, newSQLiteStore(t))

	res := call(t, r, http.MethodPost, "/api/initiate-payment", `{"phone":"0712345678","amount":500}`)
	require.Equal(t, http.StatusOK, res.code)
	id := res.body["correlation_id"].(string)

	res = call(t, r, http.MethodPost, "/api/payment-callback", fmt.Sprintf(`{"Body":{"stkCallback":{"CheckoutRequestID":%q}}}`, id))
	require.Equal(t, http.StatusOK, res.code)
	assert.EqualValues(t, 0, res.body["ResultCode"])

	res = call(t, r, http.MethodGet, "/api/check-status?checkoutRequestId="+id, "")
	assert.Equal(t, "pending", res.body["status"])
	assert.Nil(t, res.body["receipt"])
}

func TestInitiatePayment_Validation(t *testing.T) {
	r := newEngine(t, &payment.StubProvider{}, newSQLiteStore(t))

	tests := []struct {
		name    string
		body    string
		message string
	}{
		{name: "missing phone", body: `{"amount":500}`, message: "Phone and amount are required"},
		{name: "missing amount", body: `{"phone":"0712345678"}`, message: "Phone and amount are required"},
		{name: "bad phone", body: `{"phone":"12345","amount":500}`, message: "Invalid phone format"},
		{name: "bad amount", body: `{"phone":"0712345678","amount":"abc"}`, message: "Amount must be a positive whole number"},
		{name: "fractional amount", body: `{"phone":"0712345678","amount":10.5}`, message: "Amount must be a positive whole number"},
		{name: "amount above limit", body: `{"phone":"0712345678","amount":"18446744073709551617"}`, message: "Amount must not exceed 250000"},
		{name: "not json", body: `phone=0712345678`, message: "Invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := call(t, r, http.MethodPost, "/api/initiate-payment", tt.body)
			assert.Equal(t, http.StatusBadRequest, res.code)
			assert.Equal(t, tt.message, res.body["message"])
		})
	}
}

func TestInitiatePayment_GatewayFailures(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	gateway := mocks.NewMockGateway(ctrl)
	store := mocks.NewMockTransactionStore(ctrl)
	r := newEngine(t, gateway, store)

	gateway.EXPECT().InitiatePayment(gomock.Any(), gomock.Any()).Return(&payment.PaymentResponse{
		ResponseCode:        "1",
		ResponseDescription: "Insufficient balance",
	}, nil)
	res := call(t, r, http.MethodPost, "/api/initiate-payment", `{"phone":"0712345678","amount":500}`)
	assert.Equal(t, http.StatusBadRequest, res.code)
	assert.Equal(t, "Insufficient balance", res.body["message"])
	assert.Equal(t, "1", res.body["code"])

	gateway.EXPECT().InitiatePayment(gomock.Any(), gomock.Any()).Return(nil, errors.New("connection reset"))
	res = call(t, r, http.MethodPost, "/api/initiate-payment", `{"phone":"0712345678","amount":500}`)
	assert.Equal(t, http.StatusInternalServerError, res.code)
}

func TestCheckStatus(t *testing.T) {
	r := newEngine(t, &payment.StubProvider{}, newSQLiteStore(t))

	res := call(t, r, http.MethodGet, "/api/check-status", "")
	assert.Equal(t, http.StatusBadRequest, res.code)

	res = call(t, r, http.MethodGet, "/api/check-status?checkoutRequestId=ws_CO_unknown", "")
	assert.Equal(t, http.StatusNotFound, res.code)
	assert.Equal(t, "not_found", res.body["status"])
}

func TestPaymentCallback_AlwaysAcknowledges(t *testing.T) {
	r := newEngine(t, &payment.StubProvider{}, newSQLiteStore(t))

	for _, body := range []string{
		`not json`,
		`{"Body":{}}`,
		stkCallback("ws_CO_unknown", 0, "ok", "NLJ7RT61SV"),
	} {
		res := call(t, r, http.MethodPost, "/api/payment-callback", body)
		assert.Equal(t, http.StatusOK, res.code)
		assert.EqualValues(t, 0, res.body["ResultCode"])
	}
}

func TestAdminEndpoints(t *testing.T) {
	r := newEngine(t, &payment.StubProvider{}, newSQLiteStore(t))

	res := call(t, r, http.MethodGet, "/api/admin/payments", "")
	assert.Equal(t, http.StatusUnauthorized, res.code)

	res = call(t, r, http.MethodPost, "/api/admin/login", `{"password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, res.code)
	res = call(t, r, http.MethodPost, "/api/admin/login", `{}`)
	assert.Equal(t, http.StatusBadRequest, res.code)

	res = call(t, r, http.MethodPost, "/api/admin/login", `{"password":"s3cret"}`)
	require.Equal(t, http.StatusOK, res.code)
	token := res.body["token"].(string)
	assert.Contains(t, res.headers.Get("Set-Cookie"), "admin_token=")
	bearer := []string{"Authorization", "Bearer " + token}

	var ids []string
	for _, amount := range []string{"500", "250"} {
		res = call(t, r, http.MethodPost, "/api/initiate-payment", `{"phone":"0712345678","amount":`+amount+`}`)
		require.Equal(t, http.StatusOK, res.code)
		ids = append(ids, res.body["correlation_id"].(string))
	}
	call(t, r, http.MethodPost, "/api/payment-callback", stkCallback(ids[0], 0, "ok", "NLJ7RT61SV"))

	res = call(t, r, http.MethodGet, "/api/admin/payments", "", bearer...)
	require.Equal(t, http.StatusOK, res.code)
	assert.Len(t, res.body["payments"], 2)

	res = call(t, r, http.MethodGet, "/api/admin/payments?status=completed", "", bearer...)
	require.Equal(t, http.StatusOK, res.code)
	list := res.body["payments"].([]interface{})
	require.Len(t, list, 1)
	assert.Equal(t, ids[0], list[0].(map[string]interface{})["correlation_id"])

	res = call(t, r, http.MethodGet, "/api/admin/payments?status=bogus", "", bearer...)
	assert.Equal(t, http.StatusBadRequest, res.code)
	res = call(t, r, http.MethodGet, "/api/admin/payments?limit=-1", "", bearer...)
	assert.Equal(t, http.StatusBadRequest, res.code)

	res = call(t, r, http.MethodGet, "/api/admin/payments/export", "", bearer...)
	require.Equal(t, http.StatusOK, res.code)
	assert.Contains(t, res.headers.Get("Content-Disposition"), ".xlsx")
	book, err := excelize.OpenReader(res.raw)
	require.NoError(t, err)
	defer book.Close()
	rows, err := book.GetRows("Payments")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Reference", rows[0][0])
	total, err := book.GetCellValue("Payments", "D4")
	require.NoError(t, err)
	assert.Equal(t, "500", total)

	res = call(t, r, http.MethodGet, "/api/admin/payments/"+ids[1]+"/gateway-status", "", bearer...)
	require.Equal(t, http.StatusOK, res.code)
	assert.EqualValues(t, 1037, res.body["ResultCode"])

	res = call(t, r, http.MethodPost, "/api/admin/logout", "")
	assert.Equal(t, http.StatusOK, res.code)
}

func TestHealthz(t *testing.T) {
	r := newEngine(t, &payment.StubProvider{}, newSQLiteStore(t))
	res := call(t, r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, res.code)
	assert.Equal(t, "ok", res.body["status"])
}
