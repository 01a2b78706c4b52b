package order

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/shopcore/checkout/internal/domain"
	"github.com/shopcore/checkout/internal/identity"
)

// UseCaseInterface is what the HTTP layer needs from the order use case.
type UseCaseInterface interface {
	GetOwned(ctx context.Context, userID, orderID uuid.UUID) (*Order, error)
	GetOwnedByNumber(ctx context.Context, userID uuid.UUID, number string) (*Order, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]Order, error)
	UpdateStatusManual(ctx context.Context, orderID uuid.UUID, target Status) (*Order, error)
}

// Handler contains the order HTTP handlers.
type Handler struct {
	useCase UseCaseInterface
}

func NewHandler(useCase UseCaseInterface) *Handler {
	return &Handler{useCase: useCase}
}

// Register mounts the order routes on the authenticated group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("/orders", h.ListOrders)
	rg.GET("/orders/:orderID", h.GetOrder)
	rg.POST("/orders/:orderID/status", h.UpdateStatus)
}

func (h *Handler) ListOrders(c *gin.Context) {
	orders, err := h.useCase.ListForUser(c.Request.Context(), identity.UserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

// GetOrder accepts either the order id or the human-readable order number.
func (h *Handler) GetOrder(c *gin.Context) {
	param := c.Param("orderID")

	var o *Order
	var err error
	if orderID, parseErr := uuid.Parse(param); parseErr == nil {
		o, err = h.useCase.GetOwned(c.Request.Context(), identity.UserID(c), orderID)
	} else {
		o, err = h.useCase.GetOwnedByNumber(c.Request.Context(), identity.UserID(c), param)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": o})
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("orderID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Ownership check before any mutation.
	if _, err := h.useCase.GetOwned(c.Request.Context(), identity.UserID(c), orderID); err != nil {
		respondError(c, err)
		return
	}

	o, err := h.useCase.UpdateStatusManual(c.Request.Context(), orderID, Status(req.Status))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": o})
}

func respondError(c *gin.Context, err error) {
	c.JSON(domain.HTTPStatus(err), gin.H{
		"error": err.Error(),
		"code":  domain.ErrorCode(err),
	})
}
