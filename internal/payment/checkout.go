package payment

import (
	"context"
	"log"

	"github.com/google/uuid"

	"github.com/shopcore/checkout/internal/domain"
	"github.com/shopcore/checkout/internal/order"
)

// OrderService is what the payment layer needs from the order use case.
type OrderService interface {
	CreateFromCart(ctx context.Context, userID uuid.UUID, shipping order.Address) (*order.Order, error)
	GetOwned(ctx context.Context, userID, orderID uuid.UUID) (*order.Order, error)
	Transition(ctx context.Context, orderID uuid.UUID, cmd order.TransitionCommand) (*order.Order, error)
	FindByCorrelation(ctx context.Context, paymentIntentID, checkoutSessionID string) (uuid.UUID, error)
}

// CheckoutConfig holds the redirect targets handed to the provider.
type CheckoutConfig struct {
	SuccessURL string
	CancelURL  string
	Currency   string
}

// CheckoutService converts carts into orders and attaches provider sessions.
type CheckoutService struct {
	orders   OrderService
	gateway  Gateway
	provider string
	cfg      CheckoutConfig
}

func NewCheckoutService(orders OrderService, gateway Gateway, provider string, cfg CheckoutConfig) *CheckoutService {
	return &CheckoutService{
		orders:   orders,
		gateway:  gateway,
		provider: provider,
		cfg:      cfg,
	}
}

// Checkout converts the user's cart into an order and creates the hosted
// payment session. If session creation fails the order stays PENDING and the
// caller retries through RetrySession; the expiry sweep is the backstop.
func (s *CheckoutService) Checkout(ctx context.Context, userID uuid.UUID, shipping order.Address) (*order.Order, string, error) {
	o, err := s.orders.CreateFromCart(ctx, userID, shipping)
	if err != nil {
		return nil, "", err
	}

	url, err := s.EnsureSession(ctx, o)
	if err != nil {
		return o, "", err
	}
	return o, url, nil
}

// RetrySession re-attempts session creation for an order whose checkout
// previously failed at the provider.
func (s *CheckoutService) RetrySession(ctx context.Context, userID, orderID uuid.UUID) (*order.Order, string, error) {
	o, err := s.orders.GetOwned(ctx, userID, orderID)
	if err != nil {
		return nil, "", err
	}
	if !o.Status.PaymentEligible() {
		return nil, "", domain.ErrOrderNotPayable
	}

	url, err := s.EnsureSession(ctx, o)
	if err != nil {
		return o, "", err
	}
	return o, url, nil
}

// EnsureSession is idempotent per order: an order that already carries a
// session id gets that same session back, never a duplicate. The total is
// recomputed strictly from the persisted lines before anything is sent to
// the provider.
func (s *CheckoutService) EnsureSession(ctx context.Context, o *order.Order) (string, error) {
	if o.CheckoutSessionID != "" {
		session, err := s.gateway.RetrieveSession(ctx, o.CheckoutSessionID)
		if err != nil {
			return "", err
		}
		log.Printf("ℹ️  [CHECKOUT] order %s already has session %s", o.ID, session.ID)
		return session.URL, nil
	}

	if len(o.Lines) == 0 {
		return "", domain.ErrCartEmpty
	}
	total := o.ItemsTotalCents() + o.ShippingCents + o.TaxCents
	if total <= 0 {
		return "", domain.ErrInvalidTotal
	}

	req := CreateSessionRequest{
		OrderID:        o.ID.String(),
		OrderNumber:    o.Number,
		AmountCents:    total,
		Currency:       s.cfg.Currency,
		SuccessURL:     s.cfg.SuccessURL,
		CancelURL:      s.cfg.CancelURL,
		IdempotencyKey: o.ID.String(),
	}
	for _, l := range o.Lines {
		req.LineItems = append(req.LineItems, SessionLineItem{
			Name:            l.ProductName,
			Quantity:        l.Quantity,
			UnitAmountCents: l.UnitPriceCents,
		})
	}

	session, err := s.gateway.CreateSession(ctx, req)
	if err != nil {
		return "", err
	}

	if _, err := s.orders.Transition(ctx, o.ID, order.TransitionCommand{
		Target:            order.StatusCheckoutCreated,
		Provider:          s.provider,
		CheckoutSessionID: session.ID,
		PaymentIntentID:   session.PaymentIntentID,
	}); err != nil {
		return "", err
	}

	o.CheckoutSessionID = session.ID
	log.Printf("🚀 [CHECKOUT] session %s created for order %s (%d cents)", session.ID, o.ID, total)
	return session.URL, nil
}
