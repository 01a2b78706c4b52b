package payment

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/shopcore/checkout/internal/domain"
	"github.com/shopcore/checkout/internal/identity"
	"github.com/shopcore/checkout/internal/order"
)

// Handler contains the checkout and finalize HTTP handlers.
type Handler struct {
	checkout   *CheckoutService
	reconciler *Reconciler
}

func NewHandler(checkout *CheckoutService, reconciler *Reconciler) *Handler {
	return &Handler{checkout: checkout, reconciler: reconciler}
}

// Register mounts the checkout routes on the authenticated group.
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/checkout", h.Checkout)
	rg.POST("/checkout/:orderID/session", h.RetrySession)
	rg.POST("/checkout/finalize", h.Finalize)
}

type checkoutRequest struct {
	Name       string `json:"name" binding:"required"`
	Street     string `json:"street" binding:"required"`
	City       string `json:"city" binding:"required"`
	PostalCode string `json:"postal_code" binding:"required"`
	Country    string `json:"country" binding:"required"`
}

func (h *Handler) Checkout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	o, url, err := h.checkout.Checkout(c.Request.Context(), identity.UserID(c), order.Address{
		Name:       req.Name,
		Street:     req.Street,
		City:       req.City,
		PostalCode: req.PostalCode,
		Country:    req.Country,
	})
	if err != nil {
		// The order may exist with session creation pending; return it so
		// the client can retry the session.
		if o != nil {
			c.JSON(domain.HTTPStatus(err), gin.H{
				"error": err.Error(),
				"code":  domain.ErrorCode(err),
				"order": o,
			})
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": o, "redirect_url": url})
}

func (h *Handler) RetrySession(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("orderID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	o, url, err := h.checkout.RetrySession(c.Request.Context(), identity.UserID(c), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": o, "redirect_url": url})
}

type finalizeRequest struct {
	OrderID string `json:"order_id" binding:"required,uuid"`
}

func (h *Handler) Finalize(c *gin.Context) {
	var req finalizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order_id"})
		return
	}

	o, err := h.reconciler.Finalize(c.Request.Context(), identity.UserID(c), orderID)
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
