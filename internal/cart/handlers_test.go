package cart

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/shopcore/checkout/internal/catalog"
	"github.com/shopcore/checkout/internal/domain"
)

type mockCartUseCase struct {
	mock.Mock
}

func (m *mockCartUseCase) GetCart(ctx context.Context, userID uuid.UUID) (*Cart, error) {
	args := m.Called(ctx, userID)
	if c := args.Get(0); c != nil {
		return c.(*Cart), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockCartUseCase) Quote(ctx context.Context, productID uuid.UUID) (*catalog.Product, error) {
	args := m.Called(ctx, productID)
	if p := args.Get(0); p != nil {
		return p.(*catalog.Product), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockCartUseCase) AddLine(ctx context.Context, userID, productID uuid.UUID, qty int) (*Cart, error) {
	args := m.Called(ctx, userID, productID, qty)
	if c := args.Get(0); c != nil {
		return c.(*Cart), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockCartUseCase) UpdateLine(ctx context.Context, userID, lineID uuid.UUID, newQty int) (*Cart, error) {
	args := m.Called(ctx, userID, lineID, newQty)
	if c := args.Get(0); c != nil {
		return c.(*Cart), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockCartUseCase) RemoveLine(ctx context.Context, userID, lineID uuid.UUID) (*Cart, error) {
	args := m.Called(ctx, userID, lineID)
	if c := args.Get(0); c != nil {
		return c.(*Cart), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockCartUseCase) Clear(ctx context.Context, userID uuid.UUID) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func cartRouter(useCase UseCaseInterface, userID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	group := r.Group("/api", func(c *gin.Context) {
		c.Set("userID", userID)
	})
	NewHandler(useCase).Register(group)
	return r
}

func TestAddItemHandler(t *testing.T) {
	// Arrange
	useCase := new(mockCartUseCase)
	userID, productID := uuid.New(), uuid.New()
	useCase.On("AddLine", mock.Anything, userID, productID, 2).Return(&Cart{UserID: userID}, nil)
	r := cartRouter(useCase, userID)

	body := []byte(fmt.Sprintf(`{"product_id":%q,"quantity":2}`, productID))
	req := httptest.NewRequest(http.MethodPost, "/api/cart/items", bytes.NewReader(body))
	w := httptest.NewRecorder()

	// Act
	r.ServeHTTP(w, req)

	// Assert
	assert.Equal(t, http.StatusOK, w.Code)
	useCase.AssertExpectations(t)
}

func TestAddItemHandler_RejectsBadPayloads(t *testing.T) {
	useCase := new(mockCartUseCase)
	r := cartRouter(useCase, uuid.New())

	for _, body := range []string{
		`{"quantity":2}`,
		fmt.Sprintf(`{"product_id":%q,"quantity":0}`, uuid.New()),
		fmt.Sprintf(`{"product_id":%q,"quantity":-1}`, uuid.New()),
		`{"product_id":"nope","quantity":1}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/cart/items", bytes.NewReader([]byte(body)))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, "payload %s", body)
	}
	useCase.AssertNotCalled(t, "AddLine", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAddItemHandler_MapsDomainErrors(t *testing.T) {
	useCase := new(mockCartUseCase)
	userID, productID := uuid.New(), uuid.New()
	useCase.On("AddLine", mock.Anything, userID, productID, 99).Return(nil, domain.ErrInsufficientStock)
	r := cartRouter(useCase, userID)

	body := []byte(fmt.Sprintf(`{"product_id":%q,"quantity":99}`, productID))
	req := httptest.NewRequest(http.MethodPost, "/api/cart/items", bytes.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), domain.ECONFLICT)
}

func TestGetCartHandler(t *testing.T) {
	useCase := new(mockCartUseCase)
	userID := uuid.New()
	useCase.On("GetCart", mock.Anything, userID).Return(&Cart{
		UserID: userID,
		Lines:  []Line{{Quantity: 2, UnitPriceCents: 12999}},
	}, nil)
	r := cartRouter(useCase, userID)

	req := httptest.NewRequest(http.MethodGet, "/api/cart", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_cents":25998`)
}

func TestQuoteProductHandler(t *testing.T) {
	useCase := new(mockCartUseCase)
	userID, productID := uuid.New(), uuid.New()
	useCase.On("Quote", mock.Anything, productID).Return(&catalog.Product{
		ID:         productID,
		Name:       "Mechanical Keyboard",
		SKU:        "KB-001",
		PriceCents: 12999,
		Stock:      0,
		QuoteOnly:  true,
	}, nil)
	r := cartRouter(useCase, userID)

	req := httptest.NewRequest(http.MethodGet, "/api/products/"+productID.String()+"/quote", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"price_cents":12999`)
	assert.Contains(t, w.Body.String(), `"in_stock":false`)
	assert.Contains(t, w.Body.String(), `"quote_only":true`)
}

func TestQuoteProductHandler_UnknownProduct(t *testing.T) {
	useCase := new(mockCartUseCase)
	productID := uuid.New()
	useCase.On("Quote", mock.Anything, productID).Return(nil, domain.ErrProductNotFound)
	r := cartRouter(useCase, uuid.New())

	req := httptest.NewRequest(http.MethodGet, "/api/products/"+productID.String()+"/quote", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), domain.ENOTFOUND)
}

func TestUpdateItemHandler_InvalidLineID(t *testing.T) {
	useCase := new(mockCartUseCase)
	r := cartRouter(useCase, uuid.New())

	req := httptest.NewRequest(http.MethodPatch, "/api/cart/items/not-a-uuid", bytes.NewReader([]byte(`{"quantity":1}`)))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRemoveItemHandler(t *testing.T) {
	useCase := new(mockCartUseCase)
	userID, lineID := uuid.New(), uuid.New()
	useCase.On("RemoveLine", mock.Anything, userID, lineID).Return(&Cart{UserID: userID}, nil)
	r := cartRouter(useCase, userID)

	req := httptest.NewRequest(http.MethodDelete, "/api/cart/items/"+lineID.String(), nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	useCase.AssertExpectations(t)
}

func TestClearCartHandler(t *testing.T) {
	useCase := new(mockCartUseCase)
	userID := uuid.New()
	useCase.On("Clear", mock.Anything, userID).Return(nil)
	r := cartRouter(useCase, userID)

	req := httptest.NewRequest(http.MethodDelete, "/api/cart", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	useCase.AssertExpectations(t)
}
