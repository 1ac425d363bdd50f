package handler

import (
	"context"
	"errors"

	appintegration "github.com/erp/marketsync/internal/application/integration"
	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/infrastructure/logger"
	"github.com/erp/marketsync/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// WebhookReceiver acknowledges marketplace notifications
type WebhookReceiver interface {
	HandleWebhook(ctx context.Context, marketplace integration.MarketplaceCode, req *appintegration.WebhookNotificationRequest) (*appintegration.WebhookAck, error)
}

// WebhookHandler receives marketplace push notifications.
// Any 2xx tells the marketplace to stop redelivering, so only failures to
// record the work answer with an error status.
type WebhookHandler struct {
	BaseHandler
	receiver WebhookReceiver
}

// NewWebhookHandler creates a WebhookHandler
func NewWebhookHandler(receiver WebhookReceiver) *WebhookHandler {
	return &WebhookHandler{receiver: receiver}
}

// Receive godoc
// @ID           receiveWebhook
// @Summary      Receive a marketplace notification
// @Description  Acknowledges immediately; the resync runs in the background. Duplicates and unknown sellers are acknowledged too.
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Param        marketplace path string true "Marketplace code" Enums(mercadolibre)
// @Param        request     body appintegration.WebhookNotificationRequest true "Notification"
// @Success      200 {object} dto.Response{data=appintegration.WebhookAck}
// @Failure      400 {object} dto.Response
// @Failure      413 {object} dto.Response
// @Failure      503 {object} dto.Response
// @Router       /api/v1/webhooks/{marketplace} [post]
func (h *WebhookHandler) Receive(c *gin.Context) {
	marketplace, err := integration.ParseMarketplaceCode(c.Param("marketplace"))
	if err != nil {
		h.Error(c, dto.ErrCodeNotFound, "Unknown marketplace")
		return
	}

	var req appintegration.WebhookNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Error(c, dto.ErrCodeInvalidJSON, "Notification body must be a JSON object")
		return
	}

	ack, err := h.receiver.HandleWebhook(c.Request.Context(), marketplace, &req)
	switch {
	case err == nil:
		h.Success(c, ack)
	case errors.Is(err, integration.ErrInvalidNotification):
		h.HandleError(c, err)
	default:
		logger.GetGinLogger(c).Warn("Webhook not recorded, marketplace will redeliver",
			zap.String("marketplace", marketplace.String()),
			zap.Error(err),
		)
		h.Error(c, dto.ErrCodeUnavailable, "Notification could not be recorded")
	}
}
