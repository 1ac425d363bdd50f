package middleware

import (
	"github.com/erp/marketsync/internal/infrastructure/logger"
	"github.com/erp/marketsync/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	TenantIDKey     = "tenant_id"
	TenantHeaderKey = "X-Tenant-ID"
)

// Tenant requires a tenant UUID in the X-Tenant-ID header.
// The parsed tenant is stored in the gin context and the request logger
// is enriched so every service log line carries it.
func Tenant() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(TenantHeaderKey)
		if raw == "" {
			abortWithError(c, dto.ErrCodeTenantRequired, "X-Tenant-ID header is required")
			return
		}
		tenantID, err := uuid.Parse(raw)
		if err != nil || tenantID == uuid.Nil {
			abortWithError(c, dto.ErrCodeTenantInvalid, "X-Tenant-ID must be a UUID")
			return
		}

		c.Set(TenantIDKey, tenantID)

		reqLogger := logger.GetGinLogger(c)
		ctx, reqLogger := logger.WithTenantID(c.Request.Context(), reqLogger, tenantID.String())
		c.Request = c.Request.WithContext(ctx)
		logger.SetGinLogger(c, reqLogger)

		c.Next()
	}
}

// GetTenantUUID returns the tenant parsed by Tenant
func GetTenantUUID(c *gin.Context) (uuid.UUID, bool) {
	v, ok := c.Get(TenantIDKey)
	if !ok {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok && id != uuid.Nil
}

func abortWithError(c *gin.Context, code, message string) {
	logger.GetGinLogger(c).Debug("Request rejected by middleware",
		zap.String("code", code),
		zap.String("path", c.Request.URL.Path),
	)
	c.AbortWithStatusJSON(dto.GetHTTPStatus(code),
		dto.NewErrorResponseWithRequestID(code, message, GetRequestID(c)))
}
