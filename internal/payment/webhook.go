package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shopcore/checkout/internal/domain"
)

// SignatureHeader carries the provider's HMAC-SHA256 hex digest of the raw
// request body.
const SignatureHeader = "X-Payment-Signature"

// ComputeSignature produces the digest the provider is expected to send.
func ComputeSignature(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks the header value in constant time.
func VerifySignature(secret, body []byte, signature string) bool {
	expected := ComputeSignature(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// WebhookHandler is the provider-facing delivery endpoint. The contract:
// 401 on a bad signature (no retry), 2xx once the event is accepted, and the
// processing error status otherwise so the provider retries server errors.
type WebhookHandler struct {
	reconciler *Reconciler
	secret     []byte
}

func NewWebhookHandler(reconciler *Reconciler, secret []byte) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler, secret: secret}
}

func (h *WebhookHandler) Register(r gin.IRouter) {
	r.POST("/webhooks/payment", h.Handle)
}

func (h *WebhookHandler) Handle(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}

	if !VerifySignature(h.secret, body, c.GetHeader(SignatureHeader)) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": domain.ErrBadSignature.Message})
		return
	}

	var evt Event
	if err := json.Unmarshal(body, &evt); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed event payload"})
		return
	}

	if err := h.reconciler.HandleEvent(c.Request.Context(), evt); err != nil {
		c.JSON(domain.HTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
