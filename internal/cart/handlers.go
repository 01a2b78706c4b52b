package cart

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/shopcore/checkout/internal/catalog"
	"github.com/shopcore/checkout/internal/domain"
	"github.com/shopcore/checkout/internal/identity"
)

// UseCaseInterface is what the HTTP layer needs from the cart use case.
type UseCaseInterface interface {
	GetCart(ctx context.Context, userID uuid.UUID) (*Cart, error)
	Quote(ctx context.Context, productID uuid.UUID) (*catalog.Product, error)
	AddLine(ctx context.Context, userID, productID uuid.UUID, qty int) (*Cart, error)
	UpdateLine(ctx context.Context, userID, lineID uuid.UUID, newQty int) (*Cart, error)
	RemoveLine(ctx context.Context, userID, lineID uuid.UUID) (*Cart, error)
	Clear(ctx context.Context, userID uuid.UUID) error
}

// Handler contains the cart HTTP handlers.
type Handler struct {
	useCase UseCaseInterface
}

func NewHandler(useCase UseCaseInterface) *Handler {
	return &Handler{useCase: useCase}
}

// Register mounts the cart routes on the authenticated group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("/cart", h.GetCart)
	rg.POST("/cart/items", h.AddItem)
	rg.PATCH("/cart/items/:lineID", h.UpdateItem)
	rg.DELETE("/cart/items/:lineID", h.RemoveItem)
	rg.DELETE("/cart", h.ClearCart)
	rg.GET("/products/:productID/quote", h.QuoteProduct)
}

type addItemRequest struct {
	ProductID string `json:"product_id" binding:"required,uuid"`
	Quantity  int    `json:"quantity" binding:"required,gt=0"`
}

type updateItemRequest struct {
	Quantity int `json:"quantity" binding:"required,gt=0"`
}

func cartView(c *Cart) gin.H {
	return gin.H{
		"cart":        c,
		"total_cents": c.TotalCents(),
	}
}

func (h *Handler) GetCart(c *gin.Context) {
	cart, err := h.useCase.GetCart(c.Request.Context(), identity.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cartView(cart))
}

// QuoteProduct returns a product's current price and availability without
// touching the cart.
func (h *Handler) QuoteProduct(c *gin.Context) {
	productID, err := uuid.Parse(c.Param("productID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product id"})
		return
	}

	p, err := h.useCase.Quote(c.Request.Context(), productID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"product_id":  p.ID,
		"name":        p.Name,
		"sku":         p.SKU,
		"price_cents": p.PriceCents,
		"in_stock":    p.Stock > 0,
		"quote_only":  p.QuoteOnly,
	})
}

func (h *Handler) AddItem(c *gin.Context) {
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid product_id"})
		return
	}

	cart, err := h.useCase.AddLine(c.Request.Context(), identity.UserID(c), productID, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cartView(cart))
}

func (h *Handler) UpdateItem(c *gin.Context) {
	lineID, err := uuid.Parse(c.Param("lineID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid line id"})
		return
	}
	var req updateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cart, err := h.useCase.UpdateLine(c.Request.Context(), identity.UserID(c), lineID, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cartView(cart))
}

func (h *Handler) RemoveItem(c *gin.Context) {
	lineID, err := uuid.Parse(c.Param("lineID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid line id"})
		return
	}

	cart, err := h.useCase.RemoveLine(c.Request.Context(), identity.UserID(c), lineID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cartView(cart))
}

func (h *Handler) ClearCart(c *gin.Context) {
	if err := h.useCase.Clear(c.Request.Context(), identity.UserID(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": "success"})
}

func respondError(c *gin.Context, err error) {
	c.JSON(domain.HTTPStatus(err), gin.H{
		"error": err.Error(),
		"code":  domain.ErrorCode(err),
	})
}
