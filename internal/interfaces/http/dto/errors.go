package dto

import "net/http"

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	ErrCodeUnknown  = "ERR_UNKNOWN"
	ErrCodeInternal = "ERR_INTERNAL"
	// ErrCodeUnavailable is used when a dependency (queue, store) cannot take the request now
	ErrCodeUnavailable = "ERR_UNAVAILABLE"
)

// Input error codes
const (
	ErrCodeBadRequest      = "ERR_BAD_REQUEST"
	ErrCodeValidation      = "ERR_VALIDATION"
	ErrCodeInvalidJSON     = "ERR_INVALID_JSON"
	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"
)

// Resource error codes
const (
	ErrCodeNotFound  = "ERR_NOT_FOUND"
	ErrCodeConflict  = "ERR_CONFLICT"
	ErrCodeForbidden = "ERR_FORBIDDEN"
)

// Tenant error codes
const (
	ErrCodeTenantRequired = "ERR_TENANT_REQUIRED"
	ErrCodeTenantInvalid  = "ERR_TENANT_INVALID"
)

// Marketplace integration error codes
const (
	// ErrCodeCredentialNotFound is used when the tenant never authorized the marketplace
	ErrCodeCredentialNotFound = "ERR_CREDENTIAL_NOT_FOUND"
	// ErrCodeCredentialInvalid is used when the credential needs re-authorization
	ErrCodeCredentialInvalid = "ERR_CREDENTIAL_INVALID"
	// ErrCodeMarketplaceAuth is used when the marketplace rejected our token or grant
	ErrCodeMarketplaceAuth = "ERR_MARKETPLACE_AUTH"
	// ErrCodeMarketplaceRateLimited is used when the marketplace kept answering 429
	ErrCodeMarketplaceRateLimited = "ERR_MARKETPLACE_RATE_LIMITED"
	// ErrCodeMarketplaceUnavailable is used for network failures and 5xx after retries
	ErrCodeMarketplaceUnavailable = "ERR_MARKETPLACE_UNAVAILABLE"
	// ErrCodeSyncInProgress is used when a sync of the same key already holds the lock
	ErrCodeSyncInProgress = "ERR_SYNC_IN_PROGRESS"
)

// Rate limiting error codes
const (
	ErrCodeRateLimited = "ERR_RATE_LIMITED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:     http.StatusInternalServerError,
	ErrCodeInternal:    http.StatusInternalServerError,
	ErrCodeUnavailable: http.StatusServiceUnavailable,

	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeValidation:      http.StatusBadRequest,
	ErrCodeInvalidJSON:     http.StatusBadRequest,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,

	ErrCodeNotFound:  http.StatusNotFound,
	ErrCodeConflict:  http.StatusConflict,
	ErrCodeForbidden: http.StatusForbidden,

	ErrCodeTenantRequired: http.StatusUnauthorized,
	ErrCodeTenantInvalid:  http.StatusBadRequest,

	ErrCodeCredentialNotFound:     http.StatusNotFound,
	ErrCodeCredentialInvalid:      http.StatusConflict,
	ErrCodeMarketplaceAuth:        http.StatusBadGateway,
	ErrCodeMarketplaceRateLimited: http.StatusTooManyRequests,
	ErrCodeMarketplaceUnavailable: http.StatusBadGateway,
	ErrCodeSyncInProgress:         http.StatusConflict,

	ErrCodeRateLimited: http.StatusTooManyRequests,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
