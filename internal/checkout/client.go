package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNotFound means the portal has no record for the correlation id yet.
var ErrNotFound = errors.New("payment not found")

type InitiateResult struct {
	Reference       string `json:"reference"`
	CorrelationID   string `json:"correlation_id"`
	CustomerMessage string `json:"customer_message"`
	Message         string `json:"message"`
}

type StatusResult struct {
	Status        string      `json:"status"`
	Phone         string      `json:"phone"`
	Amount        json.Number `json:"amount"`
	Reference     string      `json:"reference"`
	Receipt       *string     `json:"receipt"`
	FailureReason *string     `json:"failure_reason"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// API is the part of the portal a Session talks to.
type API interface {
	Initiate(ctx context.Context, phone, amount string) (*InitiateResult, error)
	Status(ctx context.Context, correlationID string) (*StatusResult, error)
}

// APIError carries the portal's message for a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("portal returned %d: %s", e.StatusCode, e.Message)
}

// Client calls the portal's JSON endpoints over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) Initiate(ctx context.Context, phone, amount string) (*InitiateResult, error) {
	body, err := json.Marshal(map[string]string{"phone": phone, "amount": amount})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/initiate-payment", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	var out InitiateResult
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status returns ErrNotFound when the portal answers 404.
func (c *Client) Status(ctx context.Context, correlationID string) (*StatusResult, error) {
	u := c.baseURL + "/api/check-status?checkoutRequestId=" + url.QueryEscape(correlationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	var out StatusResult
	if err := c.do(req, &out); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var msg struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(body, &msg)
		if msg.Message == "" {
			msg.Message = http.StatusText(resp.StatusCode)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg.Message}
	}
	return json.Unmarshal(body, out)
}
