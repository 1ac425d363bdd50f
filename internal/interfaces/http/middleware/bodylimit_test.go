package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestBodyLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	notification := `{"resource":"/orders/2000001","topic":"orders_v2","user_id":123456,"application_id":42,"attempts":1}`

	tests := []struct {
		name          string
		body          string
		contentLength int64
		status        int
	}{
		{"notification within limit", notification, int64(len(notification)), http.StatusOK},
		{"declared length over limit", strings.Repeat("x", 300), 300, http.StatusRequestEntityTooLarge},
		{"chunked body over limit", strings.Repeat("x", 300), -1, http.StatusBadRequest},
		{"chunked body within limit", notification, -1, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.Use(BodyLimit(256))
			router.POST("/webhooks/mercadolibre", func(c *gin.Context) {
				if _, err := io.ReadAll(c.Request.Body); err != nil {
					c.Status(http.StatusBadRequest)
					return
				}
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodPost, "/webhooks/mercadolibre", strings.NewReader(tt.body))
			req.ContentLength = tt.contentLength
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusRequestEntityTooLarge {
				assert.Contains(t, w.Body.String(), "ERR_REQUEST_TOO_LARGE")
			}
		})
	}
}
