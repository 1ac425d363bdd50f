package integration

import (
	"context"
	"strings"
	"time"
)

// WebhookTopic is the marketplace notification topic
type WebhookTopic string

const (
	TopicOrders   WebhookTopic = "orders_v2"
	TopicOrdersV1 WebhookTopic = "orders"
	TopicItems    WebhookTopic = "items"
)

// ResourceKind maps a topic to the resource it concerns.
// Topics the engine does not mirror return false.
func (t WebhookTopic) ResourceKind() (ResourceKind, bool) {
	switch t {
	case TopicOrders, TopicOrdersV1:
		return ResourceOrders, true
	case TopicItems:
		return ResourceProducts, true
	default:
		return "", false
	}
}

// WebhookNotification is an inbound push from the marketplace, e.g.
// {"resource":"/orders/2195160686","user_id":468424240,"topic":"orders_v2"}.
type WebhookNotification struct {
	ID            string
	Marketplace   MarketplaceCode
	Resource      string
	UserID        string
	Topic         WebhookTopic
	ApplicationID string
	Attempts      int
	Sent          time.Time
	Received      time.Time
}

// Validate checks the fields every notification must carry
func (n *WebhookNotification) Validate() error {
	if !n.Marketplace.IsValid() {
		return ErrInvalidMarketplace
	}
	if strings.TrimSpace(n.Resource) == "" || n.UserID == "" || n.Topic == "" {
		return ErrInvalidNotification
	}
	if n.ResourceID() == "" {
		return ErrInvalidNotification
	}
	return nil
}

// ResourceID returns the last path segment of Resource ("/orders/123" -> "123")
func (n *WebhookNotification) ResourceID() string {
	r := strings.Trim(strings.TrimSpace(n.Resource), "/")
	if i := strings.IndexByte(r, '?'); i >= 0 {
		r = r[:i]
	}
	if i := strings.LastIndexByte(r, '/'); i >= 0 {
		return r[i+1:]
	}
	return r
}

// DedupeKey is the delivery identity: (tenant, topic, resource) plus the notification id
// when the marketplace sends one. Redeliveries share the id; without an id every
// notification of the resource inside the dedupe window collapses into one.
func (n *WebhookNotification) DedupeKey(key Key) string {
	base := key.String() + ":" + string(n.Topic) + ":" + n.ResourceID()
	if n.ID != "" {
		return base + ":" + n.ID
	}
	return base
}

// DeliveryStore remembers recently processed webhook deliveries
type DeliveryStore interface {
	// MarkProcessed returns true if the delivery was newly marked, false if seen within ttl
	MarkProcessed(ctx context.Context, deliveryKey string, ttl time.Duration) (bool, error)
	// Forget removes a mark so a failed dispatch can be redelivered
	Forget(ctx context.Context, deliveryKey string) error
	// Close releases resources
	Close() error
}
