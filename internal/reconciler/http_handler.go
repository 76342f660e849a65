package reconciler

import (
	"errors"
	"net/http"

	"welfarecheck-platform/internal/callrecords"
	"welfarecheck-platform/internal/provider"
	"welfarecheck-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// WebhookHandler receives voice provider lifecycle events.
//
// The endpoint is unauthenticated at the JWT layer; when a webhook secret is
// configured the provider's HMAC signature is verified instead. Responses
// follow webhook etiquette: acknowledge what we can, 4xx only for input the
// provider should not retry.

type WebhookHandler struct {
	Reconciler *Reconciler

	// WebhookSecret enables signature verification when non-empty.
	WebhookSecret string
}

func (h WebhookHandler) HandleEvent(c *gin.Context) {
	if h.Reconciler == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reconciler not configured"})
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	if h.WebhookSecret != "" {
		sig := c.GetHeader(provider.SignatureHeader)
		if !provider.VerifySignature(h.WebhookSecret, body, sig) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}
	}

	res, err := h.Reconciler.Process(c.Request.Context(), body)
	switch {
	case err == nil:
	case errors.Is(err, ErrMalformedPayload), errors.Is(err, ErrMissingCorrelationID):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, callrecords.ErrNotFound):
		// The provider knows a call we never scheduled. Not retryable.
		logger.From(c.Request.Context()).Warn("event for unknown call", "err", err)
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown call"})
		return
	default:
		// Conflict-after-retry and store failures are retryable on the
		// provider side.
		logger.From(c.Request.Context()).Error("event processing failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		return
	}

	if res.Ignored {
		// Unhandled event types are acknowledged so the provider stops
		// retrying them.
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "event": res.EventType})
		return
	}
	c.Status(http.StatusNoContent)
}
