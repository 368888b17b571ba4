package mercadopago

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/loomperapp-jpg/loomper-backend/internal/model"
)

type Client struct {
	baseURL     string
	accessToken string
	client      *http.Client
}

func NewClient(baseURL, accessToken string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:     baseURL,
		accessToken: accessToken,
		client:      &http.Client{Timeout: timeout},
	}
}

type Item struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	CurrencyID  string  `json:"currency_id"`
	UnitPrice   float64 `json:"unit_price"`
}

type Payer struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type BackURLs struct {
	Success string `json:"success"`
	Failure string `json:"failure"`
	Pending string `json:"pending"`
}

type PreferenceMetadata struct {
	UserID    string `json:"user_id"`
	PackageID string `json:"package_id"`
	Credits   int64  `json:"credits"`
}

type PreferenceRequest struct {
	Items             []Item             `json:"items"`
	Payer             Payer              `json:"payer"`
	BackURLs          BackURLs           `json:"back_urls"`
	AutoReturn        string             `json:"auto_return,omitempty"`
	ExternalReference string             `json:"external_reference"`
	Metadata          PreferenceMetadata `json:"metadata"`
	NotificationURL   string             `json:"notification_url,omitempty"`
}

type preferenceResponse struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

type paymentResponse struct {
	ID                json.Number            `json:"id"`
	Status            string                 `json:"status"`
	TransactionAmount float64                `json:"transaction_amount"`
	CurrencyID        string                 `json:"currency_id"`
	PaymentMethodID   string                 `json:"payment_method_id"`
	ExternalReference string                 `json:"external_reference"`
	Metadata          map[string]interface{} `json:"metadata"`
}

// GetPayment fetches payment details. Any transport or non-2xx failure wraps model.ErrUpstream.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*model.GatewayPayment, error) {
	var resp paymentResponse
	if err := c.do(ctx, http.MethodGet, "/v1/payments/"+url.PathEscape(paymentID), nil, &resp); err != nil {
		return nil, err
	}

	payment := &model.GatewayPayment{
		ID:                resp.ID.String(),
		Status:            resp.Status,
		TransactionAmount: resp.TransactionAmount,
		CurrencyID:        resp.CurrencyID,
		PaymentMethodID:   resp.PaymentMethodID,
		ExternalReference: resp.ExternalReference,
		Metadata: model.GatewayMetadata{
			UserID:    metadataString(resp.Metadata["user_id"]),
			PackageID: metadataString(resp.Metadata["package_id"]),
			Credits:   metadataInt(resp.Metadata["credits"]),
		},
	}
	if payment.ID == "" {
		payment.ID = paymentID
	}
	return payment, nil
}

func (c *Client) CreatePreference(ctx context.Context, req PreferenceRequest) (*model.Preference, error) {
	var resp preferenceResponse
	if err := c.do(ctx, http.MethodPost, "/checkout/preferences", req, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("create preference: empty preference id: %w", model.ErrUpstream)
	}
	return &model.Preference{
		PreferenceID:     resp.ID,
		InitPoint:        resp.InitPoint,
		SandboxInitPoint: resp.SandboxInitPoint,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %v: %w", method, path, err, model.ErrUpstream)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s %s: read body: %v: %w", method, path, err, model.ErrUpstream)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: status %d: %w", method, path, resp.StatusCode, model.ErrUpstream)
	}

	dec := json.NewDecoder(bytes.NewReader(respBody))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %v: %w", method, path, err, model.ErrUpstream)
	}
	return nil
}

func metadataString(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	}
	return ""
}

// metadataInt accepts numbers and numeric strings; anything else is 0.
func metadataInt(v interface{}) int64 {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		if f, err := x.Float64(); err == nil {
			return int64(f)
		}
	case string:
		if n, err := strconv.ParseInt(x, 10, 64); err == nil {
			return n
		}
	}
	return 0
}
