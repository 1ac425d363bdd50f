package handler

import (
	"errors"
	"net/http"

	appintegration "github.com/erp/marketsync/internal/application/integration"
	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/infrastructure/logger"
	"github.com/erp/marketsync/internal/infrastructure/oauth"
	"github.com/erp/marketsync/internal/infrastructure/scheduler"
	"github.com/erp/marketsync/internal/interfaces/http/dto"
	"github.com/erp/marketsync/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessList sends a list response with its size and the applied limit
func (h *BaseHandler) SuccessList(c *gin.Context, data any, total, limit int) {
	c.JSON(http.StatusOK, dto.NewListResponse(data, total, limit))
}

// Accepted sends a 202 response for work that continues in the background
func (h *BaseHandler) Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(data))
}

// Error sends an error response, deriving the status code from the error code
func (h *BaseHandler) Error(c *gin.Context, code, message string) {
	c.JSON(dto.GetHTTPStatus(code), dto.NewErrorResponseWithRequestID(code, message, middleware.GetRequestID(c)))
}

// BadRequest sends a 400 validation response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, dto.ErrCodeValidation, message)
}

// errorMapping pairs a sentinel with the API error it surfaces as.
// Order matters: ErrCredentialInvalid wraps an authentication failure.
var errorMappings = []struct {
	target  error
	code    string
	message string
}{
	{integration.ErrInvalidTenantID, dto.ErrCodeValidation, "Invalid tenant"},
	{integration.ErrInvalidMarketplace, dto.ErrCodeValidation, "Unknown marketplace"},
	{integration.ErrInvalidResourceKind, dto.ErrCodeValidation, "Resource must be orders or products"},
	{integration.ErrInvalidNotification, dto.ErrCodeValidation, "Invalid notification"},
	{appintegration.ErrAuthorizationCodeRequired, dto.ErrCodeValidation, "Authorization code is required"},
	{scheduler.ErrInvalidJob, dto.ErrCodeValidation, "Invalid sync request"},
	{appintegration.ErrMarketplaceNotConfigured, dto.ErrCodeNotFound, "Marketplace is not configured"},
	{integration.ErrNotFound, dto.ErrCodeNotFound, "Resource not found"},
	{integration.ErrCredentialNotFound, dto.ErrCodeCredentialNotFound, "Marketplace account is not connected"},
	{integration.ErrCredentialInvalid, dto.ErrCodeCredentialInvalid, "Marketplace account must be re-authorized"},
	{scheduler.ErrNoActiveCredentials, dto.ErrCodeCredentialInvalid, "No active marketplace credential"},
	{oauth.ErrGrantRejected, dto.ErrCodeMarketplaceAuth, "Marketplace rejected the authorization"},
	{integration.ErrAuthentication, dto.ErrCodeMarketplaceAuth, "Marketplace authentication failed"},
	{integration.ErrRateLimitExceeded, dto.ErrCodeMarketplaceRateLimited, "Marketplace rate limit exceeded"},
	{oauth.ErrProviderUnavailable, dto.ErrCodeMarketplaceUnavailable, "Marketplace authorization server unavailable"},
	{oauth.ErrInvalidTokenResponse, dto.ErrCodeMarketplaceUnavailable, "Marketplace returned an invalid token response"},
	{integration.ErrTransientNetwork, dto.ErrCodeMarketplaceUnavailable, "Marketplace unavailable"},
	{scheduler.ErrLaneFull, dto.ErrCodeSyncInProgress, "Too many syncs pending for this marketplace, retry later"},
	{scheduler.ErrJobQueueFull, dto.ErrCodeUnavailable, "Sync queue is full, retry later"},
	{scheduler.ErrSchedulerNotRunning, dto.ErrCodeUnavailable, "Sync scheduler is not running"},
}

// HandleError converts service errors into API error responses
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			logger.GetGinLogger(c).Debug("Request failed",
				zap.String("code", m.code),
				zap.Error(err),
			)
			h.Error(c, m.code, m.message)
			return
		}
	}

	logger.GetGinLogger(c).Error("Unhandled error",
		zap.String("error_kind", integration.ErrorKind(err)),
		zap.Error(err),
	)
	h.Error(c, dto.ErrCodeInternal, "An unexpected error occurred")
}

// keyFromRequest builds the integration key of a tenant scoped route
func keyFromRequest(c *gin.Context) (integration.Key, error) {
	tenantID, ok := middleware.GetTenantUUID(c)
	if !ok {
		return integration.Key{}, integration.ErrInvalidTenantID
	}
	marketplace, err := integration.ParseMarketplaceCode(c.Param("marketplace"))
	if err != nil {
		return integration.Key{}, err
	}
	return integration.NewKey(tenantID, marketplace), nil
}
