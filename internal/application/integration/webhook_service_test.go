package integration

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/infrastructure/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// MockJobSubmitter is a mock implementation of scheduler.JobSubmitter
type MockJobSubmitter struct {
	mock.Mock
}

func (m *MockJobSubmitter) SubmitJob(job *scheduler.SyncJob) error {
	args := m.Called(job)
	return args.Error(0)
}

// memDeliveries is an in-memory DeliveryStore
type memDeliveries struct {
	mu      sync.Mutex
	seen    map[string]bool
	markErr error
	forgot  []string
}

func newMemDeliveries() *memDeliveries {
	return &memDeliveries{seen: make(map[string]bool)}
}

func (d *memDeliveries) MarkProcessed(_ context.Context, key string, _ time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.markErr != nil {
		return false, d.markErr
	}
	if d.seen[key] {
		return false, nil
	}
	d.seen[key] = true
	return true, nil
}

func (d *memDeliveries) Forget(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
	d.forgot = append(d.forgot, key)
	return nil
}

func (d *memDeliveries) Close() error { return nil }

func newOrderNotification(id string) *WebhookNotificationRequest {
	return &WebhookNotificationRequest{
		ID:            id,
		Resource:      "/orders/2195160686",
		UserID:        json.Number(testSellerID),
		Topic:         "orders_v2",
		ApplicationID: "2069392825111111",
		Attempts:      1,
	}
}

type webhookFixture struct {
	key        integration.Key
	creds      *memCredentials
	deliveries *memDeliveries
	submitter  *MockJobSubmitter
	service    *WebhookService
}

func newWebhookFixture(t *testing.T, cfg WebhookServiceConfig) *webhookFixture {
	t.Helper()
	key := newTestKey()
	f := &webhookFixture{
		key:        key,
		creds:      newMemCredentials(newTestCredential(t, key)),
		deliveries: newMemDeliveries(),
		submitter:  new(MockJobSubmitter),
	}
	f.service = NewWebhookService(f.creds, f.deliveries, f.submitter, cfg, zaptest.NewLogger(t))
	return f
}

func TestWebhookService_AcceptsOrderNotification(t *testing.T) {
	f := newWebhookFixture(t, WebhookServiceConfig{})
	f.submitter.On("SubmitJob", mock.MatchedBy(func(job *scheduler.SyncJob) bool {
		return job.Key == f.key &&
			job.Resource == integration.ResourceOrders &&
			job.ExternalID == "2195160686" &&
			job.Trigger == scheduler.TriggerWebhook
	})).Return(nil).Once()

	ack, err := f.service.HandleWebhook(context.Background(), integration.MarketplaceMercadoLibre, newOrderNotification("n-1"))
	require.NoError(t, err)
	assert.Equal(t, WebhookAccepted, ack.Status)
	require.NotNil(t, ack.JobID)
	f.submitter.AssertExpectations(t)
}

func TestWebhookService_DeduplicatesRedelivery(t *testing.T) {
	f := newWebhookFixture(t, WebhookServiceConfig{})
	f.submitter.On("SubmitJob", mock.Anything).Return(nil)
	ctx := context.Background()

	ack, err := f.service.HandleWebhook(ctx, integration.MarketplaceMercadoLibre, newOrderNotification("n-1"))
	require.NoError(t, err)
	assert.Equal(t, WebhookAccepted, ack.Status)

	redelivery := newOrderNotification("n-1")
	redelivery.Attempts = 2
	ack, err = f.service.HandleWebhook(ctx, integration.MarketplaceMercadoLibre, redelivery)
	require.NoError(t, err)
	assert.Equal(t, WebhookDuplicate, ack.Status)

	ack, err = f.service.HandleWebhook(ctx, integration.MarketplaceMercadoLibre, newOrderNotification("n-2"))
	require.NoError(t, err)
	assert.Equal(t, WebhookAccepted, ack.Status, "a new notification for the same order is processed")

	f.submitter.AssertNumberOfCalls(t, "SubmitJob", 2)
}

func TestWebhookService_Ignored(t *testing.T) {
	tests := []struct {
		name   string
		cfg    WebhookServiceConfig
		mutate func(r *WebhookNotificationRequest)
		setup  func(t *testing.T, f *webhookFixture)
	}{
		{
			name:   "unsupported topic",
			mutate: func(r *WebhookNotificationRequest) { r.Topic = "questions"; r.Resource = "/questions/1" },
		},
		{
			name:   "unknown seller",
			mutate: func(r *WebhookNotificationRequest) { r.UserID = "999" },
		},
		{
			name:   "foreign application",
			cfg:    WebhookServiceConfig{ApplicationID: "1"},
			mutate: func(r *WebhookNotificationRequest) {},
		},
		{
			name:   "invalid credential",
			mutate: func(r *WebhookNotificationRequest) {},
			setup: func(t *testing.T, f *webhookFixture) {
				require.NoError(t, f.creds.MarkInvalid(context.Background(), f.key, "invalid_grant"))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newWebhookFixture(t, tt.cfg)
			if tt.setup != nil {
				tt.setup(t, f)
			}
			req := newOrderNotification("n-1")
			tt.mutate(req)

			ack, err := f.service.HandleWebhook(context.Background(), integration.MarketplaceMercadoLibre, req)
			require.NoError(t, err)
			assert.Equal(t, WebhookIgnored, ack.Status)
			assert.NotEmpty(t, ack.Reason)
			f.submitter.AssertNotCalled(t, "SubmitJob", mock.Anything)
		})
	}
}

func TestWebhookService_InvalidPayload(t *testing.T) {
	f := newWebhookFixture(t, WebhookServiceConfig{})

	tests := []struct {
		name   string
		mutate func(r *WebhookNotificationRequest)
	}{
		{"missing resource", func(r *WebhookNotificationRequest) { r.Resource = "" }},
		{"missing user", func(r *WebhookNotificationRequest) { r.UserID = "" }},
		{"non-numeric user", func(r *WebhookNotificationRequest) { r.UserID = "abc" }},
		{"missing topic", func(r *WebhookNotificationRequest) { r.Topic = "" }},
		{"resource without id", func(r *WebhookNotificationRequest) { r.Resource = "/" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newOrderNotification("n-1")
			tt.mutate(req)
			_, err := f.service.HandleWebhook(context.Background(), integration.MarketplaceMercadoLibre, req)
			assert.ErrorIs(t, err, integration.ErrInvalidNotification)
		})
	}
}

func TestWebhookService_ItemNotification(t *testing.T) {
	itemRequest := func() *WebhookNotificationRequest {
		r := newOrderNotification("n-7")
		r.Topic = "items"
		r.Resource = "/items/MLA686791111"
		return r
	}

	t.Run("resyncs only the item", func(t *testing.T) {
		f := newWebhookFixture(t, WebhookServiceConfig{})
		f.submitter.On("SubmitJob", mock.MatchedBy(func(job *scheduler.SyncJob) bool {
			return job.Resource == integration.ResourceProducts && job.ExternalID == "MLA686791111"
		})).Return(nil).Once()

		ack, err := f.service.HandleWebhook(context.Background(), integration.MarketplaceMercadoLibre, itemRequest())
		require.NoError(t, err)
		assert.Equal(t, WebhookAccepted, ack.Status)
		f.submitter.AssertExpectations(t)
	})

	t.Run("full resync when configured", func(t *testing.T) {
		f := newWebhookFixture(t, WebhookServiceConfig{FullResyncOnItem: true})
		f.submitter.On("SubmitJob", mock.MatchedBy(func(job *scheduler.SyncJob) bool {
			return job.Resource == integration.ResourceProducts && !job.IsSingleResource()
		})).Return(nil).Once()

		_, err := f.service.HandleWebhook(context.Background(), integration.MarketplaceMercadoLibre, itemRequest())
		require.NoError(t, err)
		f.submitter.AssertExpectations(t)
	})
}

func TestWebhookService_DispatchFailureAllowsRedelivery(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"scheduler queue full", scheduler.ErrJobQueueFull},
		{"key lane full", scheduler.ErrLaneFull},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newWebhookFixture(t, WebhookServiceConfig{})
			f.submitter.On("SubmitJob", mock.Anything).Return(tt.err).Once()
			f.submitter.On("SubmitJob", mock.Anything).Return(nil).Once()
			ctx := context.Background()

			_, err := f.service.HandleWebhook(ctx, integration.MarketplaceMercadoLibre, newOrderNotification("n-1"))
			assert.ErrorIs(t, err, tt.err)
			assert.Len(t, f.deliveries.forgot, 1)

			ack, err := f.service.HandleWebhook(ctx, integration.MarketplaceMercadoLibre, newOrderNotification("n-1"))
			require.NoError(t, err)
			assert.Equal(t, WebhookAccepted, ack.Status, "the redelivery is processed")
		})
	}
}

func TestWebhookService_DedupeOutageStillProcesses(t *testing.T) {
	f := newWebhookFixture(t, WebhookServiceConfig{})
	f.deliveries.markErr = errors.New("redis: connection refused")
	f.submitter.On("SubmitJob", mock.Anything).Return(nil).Once()

	ack, err := f.service.HandleWebhook(context.Background(), integration.MarketplaceMercadoLibre, newOrderNotification("n-1"))
	require.NoError(t, err)
	assert.Equal(t, WebhookAccepted, ack.Status)
	f.submitter.AssertExpectations(t)
}
