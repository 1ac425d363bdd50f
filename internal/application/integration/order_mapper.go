package integration

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/erp/marketsync/internal/domain/integration"
	"github.com/google/uuid"
	"golang.org/x/text/cases"
)

// ---------------------------------------------------------------------------
// Status mapping
// ---------------------------------------------------------------------------

// StatusTable maps lower-cased marketplace order statuses to internal statuses
type StatusTable map[string]integration.OrderStatus

// mercadoLibreStatuses covers every documented MercadoLibre order status
var mercadoLibreStatuses = StatusTable{
	"confirmed":          integration.OrderStatusPending,
	"payment_required":   integration.OrderStatusPending,
	"payment_in_process": integration.OrderStatusPending,
	"partially_paid":     integration.OrderStatusPending,
	"paid":               integration.OrderStatusPaid,
	"partially_refunded": integration.OrderStatusPaid,
	"refunded":           integration.OrderStatusRefunded,
	"pending_cancel":     integration.OrderStatusCancelled,
	"cancelled":          integration.OrderStatusCancelled,
	"invalid":            integration.OrderStatusCancelled,
}

var statusTables = map[integration.MarketplaceCode]StatusTable{
	integration.MarketplaceMercadoLibre: mercadoLibreStatuses,
}

// MapOrderStatus maps a raw marketplace status to an internal status.
// The mapping is total: unknown statuses become pending and known is false.
// Paid orders are refined by fulfilment signals (delivered tag, tracking number).
func MapOrderStatus(marketplace integration.MarketplaceCode, raw string, tags []string, trackingNumber string) (status integration.OrderStatus, known bool) {
	table := statusTables[marketplace]
	status, known = table[strings.ToLower(strings.TrimSpace(raw))]
	if !known {
		return integration.OrderStatusPending, false
	}
	if status != integration.OrderStatusPaid {
		return status, true
	}
	for _, tag := range tags {
		if strings.EqualFold(tag, "delivered") {
			return integration.OrderStatusDelivered, true
		}
	}
	if strings.TrimSpace(trackingNumber) != "" {
		return integration.OrderStatusShipped, true
	}
	return integration.OrderStatusPaid, true
}

// ---------------------------------------------------------------------------
// Customer normalisation
// ---------------------------------------------------------------------------

// NormalizeEmail trims and case-folds an email address so matching is case-insensitive
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	if email == "" {
		return ""
	}
	// A Caser is stateful, so one is created per call.
	return cases.Fold().String(email)
}

// NormalizeTaxID strips punctuation and whitespace from a tax document number
func NormalizeTaxID(taxID string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(taxID) {
		if (r >= '0' && r <= '9') || (r >= 'A' && r <= 'Z') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CustomerFromBuyer builds the customer candidate of an order buyer
func CustomerFromBuyer(tenantID uuid.UUID, buyer integration.RemoteBuyer) *integration.CanonicalCustomer {
	name := strings.TrimSpace(buyer.FirstName + " " + buyer.LastName)
	if name == "" {
		name = strings.TrimSpace(buyer.Nickname)
	}
	return &integration.CanonicalCustomer{
		TenantID: tenantID,
		Email:    NormalizeEmail(buyer.Email),
		TaxID:    NormalizeTaxID(buyer.TaxID),
		Name:     name,
		Phone:    strings.TrimSpace(buyer.Phone),
	}
}

// ---------------------------------------------------------------------------
// Order mapping
// ---------------------------------------------------------------------------

// MapOrder converts a validated remote order into its canonical mirror record.
// It returns warnings for recoverable oddities and *MappingError when the order
// cannot be mirrored.
func MapOrder(key integration.Key, requestedID string, remote *integration.RemoteOrder, now time.Time) (*integration.CanonicalOrder, []string, error) {
	if remote == nil {
		return nil, nil, &integration.MappingError{Resource: integration.ResourceOrders, ExternalID: requestedID, Reason: "empty order"}
	}
	fail := func(field, reason string) error {
		return &integration.MappingError{
			Resource:   integration.ResourceOrders,
			ExternalID: requestedID,
			Field:      field,
			Reason:     reason,
			Payload:    remote.Raw,
		}
	}
	if requestedID != "" && remote.ExternalID != requestedID {
		return nil, nil, fail("id", fmt.Sprintf("expected %s, got %s", requestedID, remote.ExternalID))
	}
	if remote.Total.IsNegative() {
		return nil, nil, fail("total_amount", "negative")
	}
	if remote.Currency == "" && remote.Total.IsPositive() {
		return nil, nil, fail("currency_id", "missing")
	}

	var warnings []string
	status, known := MapOrderStatus(key.Marketplace, remote.Status, remote.Tags, remote.TrackingNumber)
	if !known {
		warnings = append(warnings, fmt.Sprintf("order %s: unknown status %q mapped to %s", remote.ExternalID, remote.Status, status))
	}

	items, merged := mergeOrderItems(remote.Items)
	if merged {
		warnings = append(warnings, fmt.Sprintf("order %s: duplicate item lines merged", remote.ExternalID))
	}

	return &integration.CanonicalOrder{
		TenantID:       key.TenantID,
		Marketplace:    key.Marketplace,
		ExternalID:     remote.ExternalID,
		Status:         status,
		RemoteStatus:   remote.Status,
		Total:          remote.Total,
		PaidAmount:     remote.PaidAmount,
		Currency:       remote.Currency,
		TrackingNumber: remote.TrackingNumber,
		ShipmentID:     remote.ShipmentID,
		Items:          items,
		PlacedAt:       remote.CreatedAt.UTC(),
		RemoteUpdated:  remote.LastUpdated.UTC(),
		LastSyncAt:     now.UTC(),
	}, warnings, nil
}

// mergeOrderItems folds lines that share an item id into one line, summing quantities.
// The mirror keys order lines by item id, so duplicates would collide.
func mergeOrderItems(lines []integration.RemoteOrderItem) ([]integration.CanonicalOrderItem, bool) {
	byID := make(map[string]int, len(lines))
	items := make([]integration.CanonicalOrderItem, 0, len(lines))
	merged := false
	for _, line := range lines {
		if i, ok := byID[line.ExternalItemID]; ok {
			items[i].Quantity += line.Quantity
			merged = true
			continue
		}
		byID[line.ExternalItemID] = len(items)
		items = append(items, integration.CanonicalOrderItem{
			ExternalItemID: line.ExternalItemID,
			Title:          line.Title,
			SKU:            line.SKU,
			Quantity:       line.Quantity,
			UnitPrice:      line.UnitPrice,
		})
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].ExternalItemID < items[j].ExternalItemID
	})
	return items, merged
}
