package integration

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/infrastructure/scheduler"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Webhook DTOs
// ---------------------------------------------------------------------------

// WebhookNotificationRequest is the marketplace notification body, e.g.
// {"resource":"/orders/2195160686","user_id":468424240,"topic":"orders_v2","application_id":2069392825111111,"attempts":1}
type WebhookNotificationRequest struct {
	ID            string      `json:"_id" validate:"max=128"`
	Resource      string      `json:"resource" validate:"required,max=512"`
	UserID        json.Number `json:"user_id" validate:"required,numeric"`
	Topic         string      `json:"topic" validate:"required,max=64"`
	ApplicationID json.Number `json:"application_id" validate:"omitempty,numeric"`
	Attempts      int         `json:"attempts" validate:"gte=0"`
	Sent          *time.Time  `json:"sent"`
	Received      *time.Time  `json:"received"`
}

// ToDomain converts the request into a WebhookNotification
func (r *WebhookNotificationRequest) ToDomain(marketplace integration.MarketplaceCode, receivedAt time.Time) *integration.WebhookNotification {
	n := &integration.WebhookNotification{
		ID:            r.ID,
		Marketplace:   marketplace,
		Resource:      strings.TrimSpace(r.Resource),
		UserID:        r.UserID.String(),
		Topic:         integration.WebhookTopic(strings.TrimSpace(r.Topic)),
		ApplicationID: r.ApplicationID.String(),
		Attempts:      r.Attempts,
		Received:      receivedAt,
	}
	if r.Sent != nil {
		n.Sent = *r.Sent
	}
	return n
}

// WebhookAckStatus tells what happened to a notification
type WebhookAckStatus string

const (
	WebhookAccepted  WebhookAckStatus = "accepted"
	WebhookDuplicate WebhookAckStatus = "duplicate"
	WebhookIgnored   WebhookAckStatus = "ignored"
)

// WebhookAck is returned to the marketplace before any sync work runs
type WebhookAck struct {
	Status WebhookAckStatus `json:"status"`
	Reason string           `json:"reason,omitempty"`
	JobID  *uuid.UUID       `json:"job_id,omitempty"`
}

// ---------------------------------------------------------------------------
// Sync DTOs
// ---------------------------------------------------------------------------

// SyncTriggerRequest is the optional body of a manual sync trigger
type SyncTriggerRequest struct {
	// Since overrides the order cursor watermark
	Since *time.Time `json:"since"`
}

// SyncResultResponse represents a sync run in API responses
type SyncResultResponse struct {
	TenantID       uuid.UUID                   `json:"tenant_id"`
	Marketplace    integration.MarketplaceCode `json:"marketplace"`
	Resource       integration.ResourceKind    `json:"resource"`
	Imported       int                         `json:"imported"`
	Updated        int                         `json:"updated"`
	Failed         int                         `json:"failed"`
	Errors         []integration.SyncItemError `json:"errors"`
	Warnings       []string                    `json:"warnings"`
	Pages          int                         `json:"pages"`
	CursorAdvanced bool                        `json:"cursor_advanced"`
	StartedAt      time.Time                   `json:"started_at"`
	FinishedAt     time.Time                   `json:"finished_at"`
	DurationMs     int64                       `json:"duration_ms"`
}

// ToSyncResultResponse converts a SyncResult
func ToSyncResultResponse(r *integration.SyncResult) SyncResultResponse {
	return SyncResultResponse{
		TenantID:       r.Key.TenantID,
		Marketplace:    r.Key.Marketplace,
		Resource:       r.Resource,
		Imported:       r.Imported,
		Updated:        r.Updated,
		Failed:         len(r.Errors),
		Errors:         r.Errors,
		Warnings:       r.Warnings,
		Pages:          r.Pages,
		CursorAdvanced: r.CursorAdvanced,
		StartedAt:      r.StartedAt,
		FinishedAt:     r.FinishedAt,
		DurationMs:     r.Duration().Milliseconds(),
	}
}

// SyncJobResponse represents a scheduler job in API responses
type SyncJobResponse struct {
	ID             uuid.UUID                   `json:"id"`
	TenantID       uuid.UUID                   `json:"tenant_id"`
	Marketplace    integration.MarketplaceCode `json:"marketplace"`
	Resource       integration.ResourceKind    `json:"resource"`
	ExternalID     string                      `json:"external_id,omitempty"`
	Trigger        scheduler.JobTrigger        `json:"trigger"`
	Status         scheduler.SyncJobStatus     `json:"status"`
	Error          string                      `json:"error,omitempty"`
	ErrorKind      string                      `json:"error_kind,omitempty"`
	Imported       int                         `json:"imported"`
	Updated        int                         `json:"updated"`
	Failed         int                         `json:"failed"`
	Pages          int                         `json:"pages"`
	CursorAdvanced bool                        `json:"cursor_advanced"`
	RetryCount     int                         `json:"retry_count"`
	EnqueuedAt     time.Time                   `json:"enqueued_at"`
	StartedAt      *time.Time                  `json:"started_at,omitempty"`
	CompletedAt    *time.Time                  `json:"completed_at,omitempty"`
}

// ToSyncJobResponse converts a scheduler job
func ToSyncJobResponse(j *scheduler.SyncJob) SyncJobResponse {
	return SyncJobResponse{
		ID:             j.ID,
		TenantID:       j.Key.TenantID,
		Marketplace:    j.Key.Marketplace,
		Resource:       j.Resource,
		ExternalID:     j.ExternalID,
		Trigger:        j.Trigger,
		Status:         j.Status,
		Error:          j.Error,
		ErrorKind:      j.ErrorKind,
		Imported:       j.Imported,
		Updated:        j.Updated,
		Failed:         j.Failed,
		Pages:          j.Pages,
		CursorAdvanced: j.CursorAdvanced,
		RetryCount:     j.RetryCount,
		EnqueuedAt:     j.EnqueuedAt,
		StartedAt:      j.StartedAt,
		CompletedAt:    j.CompletedAt,
	}
}

// ToSyncJobResponses converts a job history
func ToSyncJobResponses(jobs []scheduler.SyncJob) []SyncJobResponse {
	out := make([]SyncJobResponse, len(jobs))
	for i := range jobs {
		out[i] = ToSyncJobResponse(&jobs[i])
	}
	return out
}

// ---------------------------------------------------------------------------
// Mirror DTOs
// ---------------------------------------------------------------------------

// OrderResponse represents a mirrored order in API responses
type OrderResponse struct {
	ID             uuid.UUID                   `json:"id"`
	Marketplace    integration.MarketplaceCode `json:"marketplace"`
	ExternalID     string                      `json:"external_id"`
	Status         integration.OrderStatus     `json:"status"`
	RemoteStatus   string                      `json:"remote_status"`
	Total          decimal.Decimal             `json:"total"`
	Currency       string                      `json:"currency"`
	CustomerID     *uuid.UUID                  `json:"customer_id,omitempty"`
	TrackingNumber string                      `json:"tracking_number,omitempty"`
	ItemCount      int                         `json:"item_count"`
	PlacedAt       time.Time                   `json:"placed_at"`
	LastSyncAt     time.Time                   `json:"last_sync_at"`
}

// ToOrderResponses converts mirrored orders
func ToOrderResponses(orders []*integration.CanonicalOrder) []OrderResponse {
	out := make([]OrderResponse, len(orders))
	for i, o := range orders {
		out[i] = OrderResponse{
			ID:             o.ID,
			Marketplace:    o.Marketplace,
			ExternalID:     o.ExternalID,
			Status:         o.Status,
			RemoteStatus:   o.RemoteStatus,
			Total:          o.Total,
			Currency:       o.Currency,
			CustomerID:     o.CustomerID,
			TrackingNumber: o.TrackingNumber,
			ItemCount:      len(o.Items),
			PlacedAt:       o.PlacedAt,
			LastSyncAt:     o.LastSyncAt,
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Credential DTOs
// ---------------------------------------------------------------------------

// CredentialStatusResponse describes a stored credential without its secrets
type CredentialStatusResponse struct {
	TenantID       uuid.UUID                    `json:"tenant_id"`
	Marketplace    integration.MarketplaceCode  `json:"marketplace"`
	Status         integration.CredentialStatus `json:"status"`
	InvalidReason  string                       `json:"invalid_reason,omitempty"`
	ExternalUserID string                       `json:"external_user_id"`
	ExpiresAt      time.Time                    `json:"expires_at"`
	UpdatedAt      time.Time                    `json:"updated_at"`
}

// ToCredentialStatusResponse converts a credential
func ToCredentialStatusResponse(c *integration.IntegrationCredential) CredentialStatusResponse {
	return CredentialStatusResponse{
		TenantID:       c.TenantID,
		Marketplace:    c.Marketplace,
		Status:         c.Status,
		InvalidReason:  c.InvalidReason,
		ExternalUserID: c.ExternalUserID,
		ExpiresAt:      c.ExpiresAt,
		UpdatedAt:      c.UpdatedAt,
	}
}
