package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/shopcore/checkout/internal/domain"
)

// Session is the provider-hosted checkout session handle.
type Session struct {
	ID              string `json:"id"`
	URL             string `json:"url"`
	Status          string `json:"status"`
	PaymentStatus   string `json:"payment_status"`
	PaymentIntentID string `json:"payment_intent_id"`
}

// Paid reports whether the provider considers the session settled.
func (s *Session) Paid() bool {
	return s.PaymentStatus == "paid"
}

// SessionLineItem is one display line on the provider's hosted page.
type SessionLineItem struct {
	Name            string `json:"name"`
	Quantity        int    `json:"quantity"`
	UnitAmountCents int64  `json:"unit_amount_cents"`
}

// CreateSessionRequest is the session creation payload. IdempotencyKey is
// the order id, so a retried request can never produce a duplicate session.
type CreateSessionRequest struct {
	OrderID        string            `json:"order_id"`
	OrderNumber    string            `json:"order_number"`
	AmountCents    int64             `json:"amount_cents"`
	Currency       string            `json:"currency"`
	LineItems      []SessionLineItem `json:"line_items"`
	SuccessURL     string            `json:"success_url"`
	CancelURL      string            `json:"cancel_url"`
	IdempotencyKey string            `json:"-"`
}

// Gateway is the thin interface over the payment provider.
type Gateway interface {
	CreateSession(ctx context.Context, req CreateSessionRequest) (*Session, error)
	RetrieveSession(ctx context.Context, sessionID string) (*Session, error)
}

// GatewayConfig is passed in at construction; no process-global provider
// state.
type GatewayConfig struct {
	BaseURL  string
	APIKey   string
	Provider string
	Timeout  time.Duration
}

// RestGateway implements Gateway against the provider's REST API.
type RestGateway struct {
	cfg    GatewayConfig
	client *resty.Client
}

func NewRestGateway(cfg GatewayConfig) *RestGateway {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetAuthToken(cfg.APIKey)
	return &RestGateway{cfg: cfg, client: client}
}

func (g *RestGateway) CreateSession(ctx context.Context, req CreateSessionRequest) (*Session, error) {
	var session Session
	resp, err := g.client.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", req.IdempotencyKey).
		SetBody(req).
		SetResult(&session).
		Post("/v1/checkout/sessions")
	if err != nil {
		return nil, fmt.Errorf("%w: create session: %v", domain.ErrProviderFailure, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: create session returned %d", domain.ErrProviderFailure, resp.StatusCode())
	}
	return &session, nil
}

func (g *RestGateway) RetrieveSession(ctx context.Context, sessionID string) (*Session, error) {
	var session Session
	resp, err := g.client.R().
		SetContext(ctx).
		SetResult(&session).
		Get("/v1/checkout/sessions/" + sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: retrieve session: %v", domain.ErrProviderFailure, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: retrieve session returned %d", domain.ErrProviderFailure, resp.StatusCode())
	}
	return &session, nil
}
