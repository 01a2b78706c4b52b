package payment

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/shopcore/checkout/internal/domain"
	"github.com/shopcore/checkout/internal/order"
)

type mockOrderService struct {
	mock.Mock
}

func (m *mockOrderService) CreateFromCart(ctx context.Context, userID uuid.UUID, shipping order.Address) (*order.Order, error) {
	args := m.Called(ctx, userID, shipping)
	if o := args.Get(0); o != nil {
		return o.(*order.Order), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockOrderService) GetOwned(ctx context.Context, userID, orderID uuid.UUID) (*order.Order, error) {
	args := m.Called(ctx, userID, orderID)
	if o := args.Get(0); o != nil {
		return o.(*order.Order), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockOrderService) Transition(ctx context.Context, orderID uuid.UUID, cmd order.TransitionCommand) (*order.Order, error) {
	args := m.Called(ctx, orderID, cmd)
	if o := args.Get(0); o != nil {
		return o.(*order.Order), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockOrderService) FindByCorrelation(ctx context.Context, paymentIntentID, checkoutSessionID string) (uuid.UUID, error) {
	args := m.Called(ctx, paymentIntentID, checkoutSessionID)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateSession(ctx context.Context, req CreateSessionRequest) (*Session, error) {
	args := m.Called(ctx, req)
	if s := args.Get(0); s != nil {
		return s.(*Session), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockGateway) RetrieveSession(ctx context.Context, sessionID string) (*Session, error) {
	args := m.Called(ctx, sessionID)
	if s := args.Get(0); s != nil {
		return s.(*Session), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestHandleEvent_MapsEventTypesToTransitions(t *testing.T) {
	cases := []struct {
		eventType string
		target    order.Status
	}{
		{"checkout.session.completed", order.StatusPaid},
		{"checkout.session.expired", order.StatusExpired},
		{"checkout.session.async_payment_failed", order.StatusFailed},
		{"payment.failed", order.StatusFailed},
		{"payment.canceled", order.StatusCancelled},
	}

	for _, tc := range cases {
		t.Run(tc.eventType, func(t *testing.T) {
			// Arrange
			orders := new(mockOrderService)
			orderID := uuid.New()
			orders.On("Transition", mock.Anything, orderID, mock.MatchedBy(func(cmd order.TransitionCommand) bool {
				return cmd.Target == tc.target
			})).Return(&order.Order{ID: orderID, Status: tc.target}, nil)
			r := NewReconciler(orders, new(mockGateway))

			// Act
			err := r.HandleEvent(context.Background(), Event{
				ID:   "evt_1",
				Type: tc.eventType,
				Data: EventData{OrderID: orderID.String()},
			})

			// Assert
			require.NoError(t, err)
			orders.AssertExpectations(t)
		})
	}
}

func TestHandleEvent_UnknownTypeAcknowledged(t *testing.T) {
	orders := new(mockOrderService)
	r := NewReconciler(orders, new(mockGateway))

	err := r.HandleEvent(context.Background(), Event{ID: "evt_2", Type: "invoice.created"})

	assert.NoError(t, err)
	orders.AssertNotCalled(t, "Transition", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleEvent_FallsBackToCorrelationIDs(t *testing.T) {
	// Arrange: no usable order id in the payload.
	orders := new(mockOrderService)
	orderID := uuid.New()
	orders.On("FindByCorrelation", mock.Anything, "pi_123", "cs_456").Return(orderID, nil)
	orders.On("Transition", mock.Anything, orderID, mock.Anything).Return(&order.Order{ID: orderID}, nil)
	r := NewReconciler(orders, new(mockGateway))

	// Act
	err := r.HandleEvent(context.Background(), Event{
		ID:   "evt_3",
		Type: "checkout.session.completed",
		Data: EventData{OrderID: "not-a-uuid", PaymentIntentID: "pi_123", CheckoutSessionID: "cs_456"},
	})

	// Assert
	require.NoError(t, err)
	orders.AssertExpectations(t)
}

func TestHandleEvent_UnresolvableOrder(t *testing.T) {
	orders := new(mockOrderService)
	orders.On("FindByCorrelation", mock.Anything, "pi_x", "").Return(uuid.Nil, domain.ErrOrderNotFound)
	r := NewReconciler(orders, new(mockGateway))

	err := r.HandleEvent(context.Background(), Event{
		ID:   "evt_4",
		Type: "payment.failed",
		Data: EventData{PaymentIntentID: "pi_x"},
	})

	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestHandleEvent_PassesFailureDiagnostics(t *testing.T) {
	orders := new(mockOrderService)
	orderID := uuid.New()
	orders.On("Transition", mock.Anything, orderID, order.TransitionCommand{
		Target:         order.StatusFailed,
		FailureCode:    "card_declined",
		FailureMessage: "insufficient funds",
	}).Return(&order.Order{ID: orderID}, nil)
	r := NewReconciler(orders, new(mockGateway))

	err := r.HandleEvent(context.Background(), Event{
		ID:   "evt_5",
		Type: "payment.failed",
		Data: EventData{
			OrderID:        orderID.String(),
			FailureCode:    "card_declined",
			FailureMessage: "insufficient funds",
		},
	})

	require.NoError(t, err)
	orders.AssertExpectations(t)
}

func TestFinalize_AppliesPaidWhenProviderConfirms(t *testing.T) {
	// Arrange
	orders := new(mockOrderService)
	gateway := new(mockGateway)
	userID, orderID := uuid.New(), uuid.New()
	o := &order.Order{ID: orderID, UserID: userID, Status: order.StatusCheckoutCreated, CheckoutSessionID: "cs_1"}

	orders.On("GetOwned", mock.Anything, userID, orderID).Return(o, nil)
	gateway.On("RetrieveSession", mock.Anything, "cs_1").Return(&Session{
		ID:              "cs_1",
		PaymentStatus:   "paid",
		PaymentIntentID: "pi_1",
	}, nil)
	orders.On("Transition", mock.Anything, orderID, order.TransitionCommand{
		Target:          order.StatusPaid,
		PaymentIntentID: "pi_1",
	}).Return(&order.Order{ID: orderID, Status: order.StatusPaid}, nil)

	r := NewReconciler(orders, gateway)

	// Act
	got, err := r.Finalize(context.Background(), userID, orderID)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, got.Status)
	orders.AssertExpectations(t)
	gateway.AssertExpectations(t)
}

func TestFinalize_TerminalOrderIsSuccess(t *testing.T) {
	orders := new(mockOrderService)
	gateway := new(mockGateway)
	userID, orderID := uuid.New(), uuid.New()
	orders.On("GetOwned", mock.Anything, userID, orderID).Return(&order.Order{
		ID: orderID, UserID: userID, Status: order.StatusPaid,
	}, nil)

	r := NewReconciler(orders, gateway)

	got, err := r.Finalize(context.Background(), userID, orderID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, got.Status)
	gateway.AssertNotCalled(t, "RetrieveSession", mock.Anything, mock.Anything)
}

func TestFinalize_NoSession(t *testing.T) {
	orders := new(mockOrderService)
	userID, orderID := uuid.New(), uuid.New()
	orders.On("GetOwned", mock.Anything, userID, orderID).Return(&order.Order{
		ID: orderID, UserID: userID, Status: order.StatusPending,
	}, nil)

	r := NewReconciler(orders, new(mockGateway))

	_, err := r.Finalize(context.Background(), userID, orderID)
	assert.ErrorIs(t, err, domain.ErrOrderNotPayable)
}

func TestFinalize_UnpaidSessionLeavesOrderUntouched(t *testing.T) {
	orders := new(mockOrderService)
	gateway := new(mockGateway)
	userID, orderID := uuid.New(), uuid.New()
	o := &order.Order{ID: orderID, UserID: userID, Status: order.StatusCheckoutCreated, CheckoutSessionID: "cs_1"}

	orders.On("GetOwned", mock.Anything, userID, orderID).Return(o, nil)
	gateway.On("RetrieveSession", mock.Anything, "cs_1").Return(&Session{ID: "cs_1", PaymentStatus: "unpaid"}, nil)

	r := NewReconciler(orders, gateway)

	got, err := r.Finalize(context.Background(), userID, orderID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusCheckoutCreated, got.Status)
	orders.AssertNotCalled(t, "Transition", mock.Anything, mock.Anything, mock.Anything)
}

func TestFinalize_ProviderErrorPropagates(t *testing.T) {
	orders := new(mockOrderService)
	gateway := new(mockGateway)
	userID, orderID := uuid.New(), uuid.New()
	orders.On("GetOwned", mock.Anything, userID, orderID).Return(&order.Order{
		ID: orderID, UserID: userID, Status: order.StatusCheckoutCreated, CheckoutSessionID: "cs_1",
	}, nil)
	gateway.On("RetrieveSession", mock.Anything, "cs_1").Return(nil, domain.ErrProviderFailure)

	r := NewReconciler(orders, gateway)

	_, err := r.Finalize(context.Background(), userID, orderID)
	assert.ErrorIs(t, err, domain.ErrProviderFailure)
	orders.AssertNotCalled(t, "Transition", mock.Anything, mock.Anything, mock.Anything)
}
