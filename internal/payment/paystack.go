package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrProvider marks a transient provider failure: the intent stays
// initialized and verification may be retried later. No partial credit is
// ever applied on this path.
var ErrProvider = errors.New("payment provider error")

// ProviderStatus is the authoritative payment state reported by the gateway.
type ProviderStatus struct {
	Status  string // success / failed / abandoned / pending
	Channel string
	Message string
}

// Provider abstracts the external payment gateway.
type Provider interface {
	Initialize(ctx context.Context, email string, amountMinor int64, reference, callbackURL string) (redirectURL string, err error)
	Verify(ctx context.Context, reference string) (*ProviderStatus, error)
}

// PaystackClient talks to the Paystack REST API.
type PaystackClient struct {
	baseURL   string
	secretKey string
	http      *http.Client
}

func NewPaystackClient(baseURL, secretKey string) *PaystackClient {
	return &PaystackClient{
		baseURL:   baseURL,
		secretKey: secretKey,
		http:      &http.Client{Timeout: 15 * time.Second},
	}
}

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type paystackInitData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type paystackVerifyData struct {
	Status          string `json:"status"`
	GatewayResponse string `json:"gateway_response"`
	Channel         string `json:"channel"`
}

// Initialize opens a transaction and returns the checkout redirect URL.
func (c *PaystackClient) Initialize(ctx context.Context, email string, amountMinor int64, reference, callbackURL string) (string, error) {
	payload := map[string]interface{}{
		"email":     email,
		"amount":    amountMinor,
		"reference": reference,
	}
	if callbackURL != "" {
		payload["callback_url"] = callbackURL
	}

	var data paystackInitData
	if err := c.call(ctx, http.MethodPost, "/transaction/initialize", payload, &data); err != nil {
		return "", err
	}
	if data.AuthorizationURL == "" {
		return "", fmt.Errorf("%w: missing authorization url", ErrProvider)
	}
	return data.AuthorizationURL, nil
}

// Verify queries the authoritative status of a transaction by reference.
func (c *PaystackClient) Verify(ctx context.Context, reference string) (*ProviderStatus, error) {
	var data paystackVerifyData
	if err := c.call(ctx, http.MethodGet, "/transaction/verify/"+reference, nil, &data); err != nil {
		return nil, err
	}
	return &ProviderStatus{
		Status:  data.Status,
		Channel: data.Channel,
		Message: data.GatewayResponse,
	}, nil
}

func (c *PaystackClient) call(ctx context.Context, method, path string, payload interface{}, out interface{}) error {
	var body *bytes.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 500 {
		return fmt.Errorf("%w: gateway returned %d", ErrProvider, res.StatusCode)
	}

	var env paystackEnvelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrProvider, err)
	}
	if !env.Status {
		return fmt.Errorf("%w: %s", ErrProvider, env.Message)
	}
	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%w: decode data: %v", ErrProvider, err)
		}
	}
	return nil
}
