package payment

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/shopcore/checkout/internal/domain"
	"github.com/shopcore/checkout/internal/order"
)

// Event is the provider's webhook envelope.
type Event struct {
	ID   string    `json:"id"`
	Type string    `json:"type"`
	Data EventData `json:"data"`
}

// EventData carries the correlation ids, resolved in priority order:
// order id, then payment intent id, then checkout session id.
type EventData struct {
	OrderID           string `json:"order_id"`
	PaymentIntentID   string `json:"payment_intent_id"`
	CheckoutSessionID string `json:"checkout_session_id"`
	FailureCode       string `json:"failure_code"`
	FailureMessage    string `json:"failure_message"`
}

var eventTargets = map[string]order.Status{
	"checkout.session.completed":            order.StatusPaid,
	"checkout.session.expired":              order.StatusExpired,
	"checkout.session.async_payment_failed": order.StatusFailed,
	"payment.failed":                        order.StatusFailed,
	"payment.canceled":                      order.StatusCancelled,
}

// Reconciler funnels asynchronous webhook events and synchronous finalize
// requests into the same order transition, so behavior is uniform regardless
// of delivery path.
type Reconciler struct {
	orders  OrderService
	gateway Gateway
	events  metric.Int64Counter
}

func NewReconciler(orders OrderService, gateway Gateway) *Reconciler {
	counter, err := otel.Meter("payment").Int64Counter("payment_events_processed")
	if err != nil {
		log.Printf("failed to create payment events counter: %v", err)
	}
	return &Reconciler{
		orders:  orders,
		gateway: gateway,
		events:  counter,
	}
}

// HandleEvent maps a provider event onto a state transition. Unrecognized
// event types are acknowledged and skipped; processing errors propagate so
// the delivery layer can have the provider retry.
func (r *Reconciler) HandleEvent(ctx context.Context, evt Event) error {
	target, ok := eventTargets[evt.Type]
	if !ok {
		log.Printf("ℹ️  [WEBHOOK] ignoring unhandled event type %q (%s)", evt.Type, evt.ID)
		return nil
	}

	orderID, err := r.resolveOrder(ctx, evt.Data)
	if err != nil {
		return fmt.Errorf("event %s: %w", evt.ID, err)
	}

	_, err = r.orders.Transition(ctx, orderID, order.TransitionCommand{
		Target:            target,
		PaymentIntentID:   evt.Data.PaymentIntentID,
		CheckoutSessionID: evt.Data.CheckoutSessionID,
		FailureCode:       evt.Data.FailureCode,
		FailureMessage:    evt.Data.FailureMessage,
	})
	if err != nil {
		return fmt.Errorf("event %s: %w", evt.ID, err)
	}

	if r.events != nil {
		r.events.Add(ctx, 1, metric.WithAttributes(
			attribute.String("event_type", evt.Type),
			attribute.String("target", string(target)),
		))
	}
	log.Printf("✅ [WEBHOOK] event %s (%s) applied to order %s", evt.ID, evt.Type, orderID)
	return nil
}

func (r *Reconciler) resolveOrder(ctx context.Context, data EventData) (uuid.UUID, error) {
	if data.OrderID != "" {
		id, err := uuid.Parse(data.OrderID)
		if err == nil {
			return id, nil
		}
		log.Printf("ℹ️  [WEBHOOK] malformed order id %q, falling back to provider ids", data.OrderID)
	}
	return r.orders.FindByCorrelation(ctx, data.PaymentIntentID, data.CheckoutSessionID)
}

// Finalize covers the client returning from the hosted page before the
// webhook arrives: the session is re-verified directly with the provider and
// the PAID transition applied if it reports success. A provider error leaves
// the order untouched; the caller can retry and the expiry sweep backstops.
func (r *Reconciler) Finalize(ctx context.Context, userID, orderID uuid.UUID) (*order.Order, error) {
	o, err := r.orders.GetOwned(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status.Terminal() {
		// Duplicate finalize is success, not an error.
		return o, nil
	}
	if o.CheckoutSessionID == "" {
		return nil, domain.ErrOrderNotPayable
	}

	session, err := r.gateway.RetrieveSession(ctx, o.CheckoutSessionID)
	if err != nil {
		return nil, err
	}
	if !session.Paid() {
		log.Printf("ℹ️  [FINALIZE] order %s session %s not paid yet (%s)", o.ID, session.ID, session.PaymentStatus)
		return o, nil
	}

	return r.orders.Transition(ctx, o.ID, order.TransitionCommand{
		Target:          order.StatusPaid,
		PaymentIntentID: session.PaymentIntentID,
	})
}
