package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	appintegration "github.com/erp/marketsync/internal/application/integration"
	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/infrastructure/scheduler"
	"github.com/erp/marketsync/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

const orderNotification = `{"resource":"/orders/2195160686","user_id":468424240,"topic":"orders_v2","application_id":2069392825111111,"attempts":1}`

func setupWebhookRouter(receiver WebhookReceiver) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/webhooks/:marketplace", NewWebhookHandler(receiver).Receive)
	return router
}

func postWebhook(router *gin.Engine, marketplace, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/"+marketplace, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestWebhookHandler_Accepted(t *testing.T) {
	receiver := new(mockWebhookReceiver)
	jobID := uuid.New()
	receiver.On("HandleWebhook", mock.Anything, integration.MarketplaceMercadoLibre,
		mock.MatchedBy(func(req *appintegration.WebhookNotificationRequest) bool {
			return req.Topic == "orders_v2" && req.UserID.String() == "468424240"
		}),
	).Return(&appintegration.WebhookAck{Status: appintegration.WebhookAccepted, JobID: &jobID}, nil)

	w := postWebhook(setupWebhookRouter(receiver), "mercadolibre", orderNotification)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"accepted"`)
	assert.Contains(t, w.Body.String(), jobID.String())
	receiver.AssertExpectations(t)
}

func TestWebhookHandler_DuplicateAndIgnoredAreAcked(t *testing.T) {
	for _, status := range []appintegration.WebhookAckStatus{appintegration.WebhookDuplicate, appintegration.WebhookIgnored} {
		t.Run(string(status), func(t *testing.T) {
			receiver := new(mockWebhookReceiver)
			receiver.On("HandleWebhook", mock.Anything, mock.Anything, mock.Anything).
				Return(&appintegration.WebhookAck{Status: status}, nil)

			w := postWebhook(setupWebhookRouter(receiver), "MERCADOLIBRE", orderNotification)
			assert.Equal(t, http.StatusOK, w.Code)
		})
	}
}

func TestWebhookHandler_Rejections(t *testing.T) {
	tests := []struct {
		name        string
		marketplace string
		body        string
		serviceErr  error
		status      int
		code        string
	}{
		{"unknown marketplace", "ebay", orderNotification, nil, http.StatusNotFound, dto.ErrCodeNotFound},
		{"malformed json", "mercadolibre", `{"resource":`, nil, http.StatusBadRequest, dto.ErrCodeInvalidJSON},
		{"invalid notification", "mercadolibre", orderNotification,
			fmt.Errorf("%w: missing resource", integration.ErrInvalidNotification), http.StatusBadRequest, dto.ErrCodeValidation},
		{"queue full", "mercadolibre", orderNotification,
			fmt.Errorf("dispatch webhook job: %w", scheduler.ErrJobQueueFull), http.StatusServiceUnavailable, dto.ErrCodeUnavailable},
		{"store down", "mercadolibre", orderNotification,
			errors.New("connection refused"), http.StatusServiceUnavailable, dto.ErrCodeUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			receiver := new(mockWebhookReceiver)
			if tt.serviceErr != nil {
				receiver.On("HandleWebhook", mock.Anything, mock.Anything, mock.Anything).Return(nil, tt.serviceErr)
			}

			w := postWebhook(setupWebhookRouter(receiver), tt.marketplace, tt.body)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, errorCode(t, w))
			if tt.serviceErr == nil {
				receiver.AssertNotCalled(t, "HandleWebhook", mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}
