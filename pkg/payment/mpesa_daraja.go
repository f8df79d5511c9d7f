package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"
)

const (
	DarajaProductionURL = "https://api.safaricom.co.ke"
	DarajaSandboxURL    = "https://sandbox.safaricom.co.ke"

	transactionTypePaybill = "CustomerPayBillOnline"
	timestampLayout        = "20060102150405"
	tokenExpirySkew        = 60 * time.Second
)

// eat is the gateway's local time zone; passwords are derived from EAT timestamps.
var eat = time.FixedZone("EAT", 3*60*60)

// DarajaConfig carries the credentials for Safaricom's Daraja API.
type DarajaConfig struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	Shortcode      string
	Passkey        string
	PartyB         string // defaults to Shortcode
	CallbackURL    string
	Timeout        time.Duration
}

// DarajaProvider implements M-Pesa Express (STK push) against Daraja. It does
// not retry; a network failure goes straight back to the caller.
type DarajaProvider struct {
	cfg    DarajaConfig
	client *http.Client
	now    func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewDarajaProvider(cfg DarajaConfig) *DarajaProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DarajaProductionURL
	}
	if cfg.PartyB == "" {
		cfg.PartyB = cfg.Shortcode
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &DarajaProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		now:    time.Now,
	}
}

type darajaTokenResp struct {
	AccessToken  string      `json:"access_token"`
	ExpiresIn    json.Number `json:"expires_in"`
	ErrorCode    string      `json:"errorCode"`
	ErrorMessage string      `json:"errorMessage"`
}

// Authenticate exchanges the consumer key/secret for a bearer token. Tokens are
// reused until shortly before Daraja expires them. The cache is read and
// written under p.mu; the OAuth round trip runs outside it.
func (p *DarajaProvider) Authenticate(ctx context.Context) (string, error) {
	if p.cfg.ConsumerKey == "" || p.cfg.ConsumerSecret == "" {
		return "", fmt.Errorf("%w: consumer key/secret missing", ErrNotConfigured)
	}
	p.mu.Lock()
	if p.token != "" && p.now().Before(p.tokenExpiry) {
		token := p.token
		p.mu.Unlock()
		return token, nil
	}
	p.mu.Unlock()

	token, ttl, err := p.fetchToken(ctx)
	if err != nil {
		return "", err
	}
	p.mu.Lock()
	p.token = token
	p.tokenExpiry = p.now().Add(ttl - tokenExpirySkew)
	p.mu.Unlock()
	return token, nil
}

func (p *DarajaProvider) fetchToken(ctx context.Context) (string, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", 0, err
	}
	req.SetBasicAuth(p.cfg.ConsumerKey, p.cfg.ConsumerSecret)
	resp, err := p.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("mpesa oauth: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	log.Printf("[MPESA] oauth response status=%d", resp.StatusCode)

	var out darajaTokenResp
	if err := json.Unmarshal(body, &out); err != nil {
		return "", 0, fmt.Errorf("mpesa oauth: status %d: %w", resp.StatusCode, err)
	}
	if out.AccessToken == "" {
		reason := out.ErrorMessage
		if reason == "" {
			reason = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return "", 0, fmt.Errorf("failed to get access token: %s", reason)
	}

	ttl := time.Hour
	if secs, err := out.ExpiresIn.Int64(); err == nil && time.Duration(secs)*time.Second > tokenExpirySkew {
		ttl = time.Duration(secs) * time.Second
	}
	return out.AccessToken, ttl, nil
}

// password returns the base64(shortcode+passkey+timestamp) request password.
func (p *DarajaProvider) password(timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(p.cfg.Shortcode + p.cfg.Passkey + timestamp))
}

type stkPushReq struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkQueryReq struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

func (p *DarajaProvider) InitiatePayment(ctx context.Context, req PaymentRequest) (*PaymentResponse, error) {
	if p.cfg.Shortcode == "" || p.cfg.Passkey == "" {
		return nil, fmt.Errorf("%w: shortcode/passkey missing", ErrNotConfigured)
	}
	if err := ValidateAmount(req.Amount); err != nil {
		return nil, err
	}
	token, err := p.Authenticate(ctx)
	if err != nil {
		return nil, err
	}
	timestamp := p.now().In(eat).Format(timestampLayout)
	desc := req.Description
	if desc == "" {
		desc = "Payment for " + req.Reference
	}
	payload := stkPushReq{
		BusinessShortCode: p.cfg.Shortcode,
		Password:          p.password(timestamp),
		Timestamp:         timestamp,
		TransactionType:   transactionTypePaybill,
		Amount:            req.Amount.IntPart(),
		PartyA:            req.Phone,
		PartyB:            p.cfg.PartyB,
		PhoneNumber:       req.Phone,
		CallBackURL:       p.cfg.CallbackURL,
		AccountReference:  req.Reference,
		TransactionDesc:   desc,
	}
	log.Printf("[MPESA] STK push reference=%s phone=%s amount=%d callback=%s", req.Reference, req.Phone, payload.Amount, payload.CallBackURL)

	var out PaymentResponse
	status, err := p.post(ctx, token, "/mpesa/stkpush/v1/processrequest", payload, &out)
	if err != nil {
		return nil, fmt.Errorf("mpesa stk push: %w", err)
	}
	log.Printf("[MPESA] STK push response status=%d code=%s checkout_request_id=%s desc=%q", status, out.ResponseCode, out.CheckoutRequestID, out.Reason())
	return &out, nil
}

// QueryPayment asks Daraja for the current state of a push. It never mutates local records.
func (p *DarajaProvider) QueryPayment(ctx context.Context, checkoutRequestID string) (*QueryResponse, error) {
	if p.cfg.Shortcode == "" || p.cfg.Passkey == "" {
		return nil, fmt.Errorf("%w: shortcode/passkey missing", ErrNotConfigured)
	}
	token, err := p.Authenticate(ctx)
	if err != nil {
		return nil, err
	}
	timestamp := p.now().In(eat).Format(timestampLayout)
	var out QueryResponse
	if _, err := p.post(ctx, token, "/mpesa/stkpushquery/v1/query", stkQueryReq{
		BusinessShortCode: p.cfg.Shortcode,
		Password:          p.password(timestamp),
		Timestamp:         timestamp,
		CheckoutRequestID: checkoutRequestID,
	}, &out); err != nil {
		return nil, fmt.Errorf("mpesa stk query: %w", err)
	}
	return &out, nil
}

// post sends a JSON body with the bearer token and decodes the reply into out.
// Daraja reports business rejections as JSON on 4xx/5xx, so those are decoded
// too; only auth failures and non-JSON bodies become errors.
func (p *DarajaProvider) post(ctx context.Context, token, path string, in, out interface{}) (int, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		p.mu.Lock()
		p.token = ""
		p.mu.Unlock()
		return resp.StatusCode, fmt.Errorf("unauthorized: %d %s", resp.StatusCode, string(respBody))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %d response: %w", resp.StatusCode, err)
	}
	return resp.StatusCode, nil
}
