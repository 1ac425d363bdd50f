package cache

import (
	"context"
	"sync"
	"time"

	"github.com/erp/marketsync/internal/domain/integration"
)

// InMemoryDeliveryStore remembers webhook deliveries in a process-local map.
// Suitable for single-instance deployments and tests.
type InMemoryDeliveryStore struct {
	mu        sync.Mutex
	expiry    map[string]time.Time
	now       func() time.Time
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryDeliveryStore creates the store and starts its sweeper
func NewInMemoryDeliveryStore(sweepInterval time.Duration) *InMemoryDeliveryStore {
	if sweepInterval <= 0 {
		sweepInterval = 5 * time.Minute
	}
	s := &InMemoryDeliveryStore{
		expiry:   make(map[string]time.Time),
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.sweepLoop(sweepInterval)
	return s
}

// MarkProcessed returns true if deliveryKey was not seen within its ttl
func (s *InMemoryDeliveryStore) MarkProcessed(_ context.Context, deliveryKey string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if until, ok := s.expiry[deliveryKey]; ok && now.Before(until) {
		return false, nil
	}
	s.expiry[deliveryKey] = now.Add(ttl)
	return true, nil
}

// Forget drops the mark of deliveryKey
func (s *InMemoryDeliveryStore) Forget(_ context.Context, deliveryKey string) error {
	s.mu.Lock()
	delete(s.expiry, deliveryKey)
	s.mu.Unlock()
	return nil
}

// Close stops the sweeper. Safe to call more than once.
func (s *InMemoryDeliveryStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
	})
	return nil
}

// Len returns the number of remembered deliveries
func (s *InMemoryDeliveryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.expiry)
}

func (s *InMemoryDeliveryStore) sweepLoop(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep removes expired marks
func (s *InMemoryDeliveryStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, until := range s.expiry {
		if !now.Before(until) {
			delete(s.expiry, k)
		}
	}
}

// Ensure InMemoryDeliveryStore implements integration.DeliveryStore
var _ integration.DeliveryStore = (*InMemoryDeliveryStore)(nil)
