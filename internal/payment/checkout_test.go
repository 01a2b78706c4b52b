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

func testCheckoutService(orders *mockOrderService, gateway *mockGateway) *CheckoutService {
	return NewCheckoutService(orders, gateway, "hostedpay", CheckoutConfig{
		SuccessURL: "https://shop.example/checkout/success",
		CancelURL:  "https://shop.example/checkout/cancel",
		Currency:   "usd",
	})
}

func payableOrder(userID uuid.UUID) *order.Order {
	id := uuid.New()
	return &order.Order{
		ID:            id,
		Number:        "ORD-20260828-deadbeef",
		UserID:        userID,
		Status:        order.StatusPending,
		ShippingCents: 500,
		Lines: []order.Line{{
			ID:             uuid.New(),
			OrderID:        id,
			ProductID:      uuid.New(),
			ProductName:    "Mechanical Keyboard",
			Quantity:       2,
			UnitPriceCents: 12999,
		}},
	}
}

func TestCheckout_CreatesOrderAndSession(t *testing.T) {
	// Arrange
	orders := new(mockOrderService)
	gateway := new(mockGateway)
	userID := uuid.New()
	o := payableOrder(userID)
	shipping := order.Address{Name: "Ana", Street: "Rua A", City: "SP", PostalCode: "01000", Country: "BR"}

	orders.On("CreateFromCart", mock.Anything, userID, shipping).Return(o, nil)
	gateway.On("CreateSession", mock.Anything, mock.MatchedBy(func(req CreateSessionRequest) bool {
		return req.OrderID == o.ID.String() &&
			req.IdempotencyKey == o.ID.String() &&
			req.AmountCents == int64(2*12999+500) &&
			req.Currency == "usd" &&
			len(req.LineItems) == 1
	})).Return(&Session{ID: "cs_1", URL: "https://pay.example/cs_1", PaymentIntentID: "pi_1"}, nil)
	orders.On("Transition", mock.Anything, o.ID, order.TransitionCommand{
		Target:            order.StatusCheckoutCreated,
		Provider:          "hostedpay",
		CheckoutSessionID: "cs_1",
		PaymentIntentID:   "pi_1",
	}).Return(o, nil)

	svc := testCheckoutService(orders, gateway)

	// Act
	got, url, err := svc.Checkout(context.Background(), userID, shipping)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)
	assert.Equal(t, "https://pay.example/cs_1", url)
	orders.AssertExpectations(t)
	gateway.AssertExpectations(t)
}

func TestCheckout_SessionFailureStillReturnsOrder(t *testing.T) {
	// The order exists and holds the reservation even when the provider is
	// down; the caller retries the session later.
	orders := new(mockOrderService)
	gateway := new(mockGateway)
	userID := uuid.New()
	o := payableOrder(userID)

	orders.On("CreateFromCart", mock.Anything, userID, mock.Anything).Return(o, nil)
	gateway.On("CreateSession", mock.Anything, mock.Anything).Return(nil, domain.ErrProviderFailure)

	svc := testCheckoutService(orders, gateway)

	got, url, err := svc.Checkout(context.Background(), userID, order.Address{})

	assert.ErrorIs(t, err, domain.ErrProviderFailure)
	require.NotNil(t, got)
	assert.Equal(t, o.ID, got.ID)
	assert.Empty(t, url)
	orders.AssertNotCalled(t, "Transition", mock.Anything, mock.Anything, mock.Anything)
}

func TestCheckout_CartErrorPropagates(t *testing.T) {
	orders := new(mockOrderService)
	orders.On("CreateFromCart", mock.Anything, mock.Anything, mock.Anything).Return(nil, domain.ErrCartEmpty)

	svc := testCheckoutService(orders, new(mockGateway))

	got, _, err := svc.Checkout(context.Background(), uuid.New(), order.Address{})
	assert.ErrorIs(t, err, domain.ErrCartEmpty)
	assert.Nil(t, got)
}

func TestRetrySession_ReusesExistingSession(t *testing.T) {
	// Arrange: the order already carries a session id, so no new session
	// may be created.
	orders := new(mockOrderService)
	gateway := new(mockGateway)
	userID := uuid.New()
	o := payableOrder(userID)
	o.Status = order.StatusCheckoutCreated
	o.CheckoutSessionID = "cs_1"

	orders.On("GetOwned", mock.Anything, userID, o.ID).Return(o, nil)
	gateway.On("RetrieveSession", mock.Anything, "cs_1").Return(&Session{ID: "cs_1", URL: "https://pay.example/cs_1"}, nil)

	svc := testCheckoutService(orders, gateway)

	// Act
	_, url, err := svc.RetrySession(context.Background(), userID, o.ID)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/cs_1", url)
	gateway.AssertNotCalled(t, "CreateSession", mock.Anything, mock.Anything)
}

func TestRetrySession_CreatesSessionForPendingOrder(t *testing.T) {
	orders := new(mockOrderService)
	gateway := new(mockGateway)
	userID := uuid.New()
	o := payableOrder(userID)

	orders.On("GetOwned", mock.Anything, userID, o.ID).Return(o, nil)
	gateway.On("CreateSession", mock.Anything, mock.Anything).Return(&Session{ID: "cs_2", URL: "https://pay.example/cs_2"}, nil)
	orders.On("Transition", mock.Anything, o.ID, mock.Anything).Return(o, nil)

	svc := testCheckoutService(orders, gateway)

	_, url, err := svc.RetrySession(context.Background(), userID, o.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/cs_2", url)
}

func TestRetrySession_RejectsNonPayableOrder(t *testing.T) {
	orders := new(mockOrderService)
	userID := uuid.New()
	o := payableOrder(userID)
	o.Status = order.StatusPaid

	orders.On("GetOwned", mock.Anything, userID, o.ID).Return(o, nil)

	svc := testCheckoutService(orders, new(mockGateway))

	_, _, err := svc.RetrySession(context.Background(), userID, o.ID)
	assert.ErrorIs(t, err, domain.ErrOrderNotPayable)
}

func TestEnsureSession_RejectsInvalidTotals(t *testing.T) {
	svc := testCheckoutService(new(mockOrderService), new(mockGateway))

	// No lines.
	o := &order.Order{ID: uuid.New()}
	_, err := svc.EnsureSession(context.Background(), o)
	assert.ErrorIs(t, err, domain.ErrCartEmpty)

	// Lines priced to zero.
	o.Lines = []order.Line{{Quantity: 1, UnitPriceCents: 0}}
	_, err = svc.EnsureSession(context.Background(), o)
	assert.ErrorIs(t, err, domain.ErrInvalidTotal)
}
