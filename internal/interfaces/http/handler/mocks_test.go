package handler

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	appintegration "github.com/erp/marketsync/internal/application/integration"
	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/erp/marketsync/internal/infrastructure/scheduler"
	"github.com/erp/marketsync/internal/interfaces/http/dto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockWebhookReceiver struct {
	mock.Mock
}

func (m *mockWebhookReceiver) HandleWebhook(ctx context.Context, marketplace integration.MarketplaceCode, req *appintegration.WebhookNotificationRequest) (*appintegration.WebhookAck, error) {
	args := m.Called(ctx, marketplace, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appintegration.WebhookAck), args.Error(1)
}

type mockCredentialConnector struct {
	mock.Mock
}

func (m *mockCredentialConnector) Authorize(ctx context.Context, key integration.Key, code string) (*appintegration.CredentialStatusResponse, error) {
	args := m.Called(ctx, key, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appintegration.CredentialStatusResponse), args.Error(1)
}

func (m *mockCredentialConnector) Status(ctx context.Context, key integration.Key) (*appintegration.CredentialStatusResponse, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*appintegration.CredentialStatusResponse), args.Error(1)
}

type mockManualTrigger struct {
	mock.Mock
}

func (m *mockManualTrigger) TriggerManualSync(ctx context.Context, key integration.Key, resource integration.ResourceKind, since time.Time) (*scheduler.SyncJob, error) {
	args := m.Called(ctx, key, resource, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scheduler.SyncJob), args.Error(1)
}

func (m *mockManualTrigger) TriggerManualResourceSync(ctx context.Context, key integration.Key, resource integration.ResourceKind, externalID string) (*scheduler.SyncJob, error) {
	args := m.Called(ctx, key, resource, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*scheduler.SyncJob), args.Error(1)
}

type mockJobHistory struct {
	mock.Mock
}

func (m *mockJobHistory) GetJobHistoryByKey(key integration.Key, limit int) []scheduler.SyncJob {
	args := m.Called(key, limit)
	return args.Get(0).([]scheduler.SyncJob)
}

type mockStaleOrderLister struct {
	mock.Mock
}

func (m *mockStaleOrderLister) ListStaleOrders(ctx context.Context, tenantID uuid.UUID, marketplace integration.MarketplaceCode, olderThan time.Duration) ([]*integration.CanonicalOrder, error) {
	args := m.Called(ctx, tenantID, marketplace, olderThan)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*integration.CanonicalOrder), args.Error(1)
}

// decodeResponse unmarshals the standard envelope
func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Error, "expected an error envelope: %s", w.Body.String())
	return resp.Error.Code
}
