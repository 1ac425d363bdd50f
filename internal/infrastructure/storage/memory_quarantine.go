package storage

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/erp/marketsync/internal/domain/integration"
)

// QuarantinedPayload is one payload held by MemoryQuarantine
type QuarantinedPayload struct {
	Key        integration.Key
	Resource   integration.ResourceKind
	ExternalID string
	Payload    []byte
	Reason     string
	At         time.Time
}

// MemoryQuarantine keeps the most recent payloads in memory.
// Use it for development or when no object store is configured.
type MemoryQuarantine struct {
	mu       sync.Mutex
	capacity int
	entries  []QuarantinedPayload
}

// NewMemoryQuarantine creates a MemoryQuarantine holding at most capacity payloads
func NewMemoryQuarantine(capacity int) *MemoryQuarantine {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryQuarantine{capacity: capacity}
}

// Ensure MemoryQuarantine implements integration.PayloadQuarantine
var _ integration.PayloadQuarantine = (*MemoryQuarantine)(nil)

// Quarantine stores a copy of payload, evicting the oldest entry when full
func (q *MemoryQuarantine) Quarantine(_ context.Context, key integration.Key, resource integration.ResourceKind, externalID string, payload []byte, reason string) error {
	if externalID == "" {
		return errors.New("external id is required")
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == q.capacity {
		q.entries = q.entries[1:]
	}
	q.entries = append(q.entries, QuarantinedPayload{
		Key:        key,
		Resource:   resource,
		ExternalID: externalID,
		Payload:    append([]byte(nil), payload...),
		Reason:     reason,
		At:         time.Now(),
	})
	return nil
}

// List returns the held payloads of key, oldest first
func (q *MemoryQuarantine) List(key integration.Key) []QuarantinedPayload {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []QuarantinedPayload
	for _, e := range q.entries {
		if e.Key == key {
			out = append(out, e)
		}
	}
	return out
}
