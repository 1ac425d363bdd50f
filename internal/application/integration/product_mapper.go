package integration

import (
	"fmt"
	"strings"
	"time"

	"github.com/erp/marketsync/internal/domain/integration"
)

// MapProduct converts a validated remote listing into its canonical mirror record
func MapProduct(key integration.Key, requestedID string, remote *integration.RemoteProduct, now time.Time) (*integration.CanonicalProduct, error) {
	if remote == nil {
		return nil, &integration.MappingError{Resource: integration.ResourceProducts, ExternalID: requestedID, Reason: "empty listing"}
	}
	if requestedID != "" && remote.ExternalID != requestedID {
		return nil, &integration.MappingError{
			Resource:   integration.ResourceProducts,
			ExternalID: requestedID,
			Field:      "id",
			Reason:     fmt.Sprintf("expected %s, got %s", requestedID, remote.ExternalID),
			Payload:    remote.Raw,
		}
	}
	if remote.Price.IsNegative() {
		return nil, &integration.MappingError{
			Resource:   integration.ResourceProducts,
			ExternalID: requestedID,
			Field:      "price",
			Reason:     "negative",
			Payload:    remote.Raw,
		}
	}

	return &integration.CanonicalProduct{
		TenantID:          key.TenantID,
		Marketplace:       key.Marketplace,
		ExternalID:        remote.ExternalID,
		Title:             remote.Title,
		SKU:               strings.TrimSpace(remote.SKU),
		Price:             remote.Price,
		Currency:          remote.Currency,
		AvailableQuantity: remote.AvailableQuantity,
		Status:            strings.ToLower(strings.TrimSpace(remote.Status)),
		Permalink:         remote.Permalink,
		LastSyncAt:        now.UTC(),
	}, nil
}
