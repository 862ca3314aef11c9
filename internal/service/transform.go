package service

import (
	"math"
	"strings"
	"time"

	"github.com/vivanti/ordersync/internal/client"
	"github.com/vivanti/ordersync/internal/domain"
)

// Airtable column names. These must match the destination table byte for byte,
// including the trailing space in "Link To Order ".
const (
	ColOrderNumber          = "Order Number"
	ColFulfillmentRemarks   = "Fulfillment Team Remarks"
	ColPhone                = "Phone"
	ColEmail                = "Email"
	ColPaymentStatus        = "Payment Status"
	ColCustomerName         = "Customer Name"
	ColOrderAgeInDays       = "Order Age - In Days"
	ColTrackingNumber       = "Tracking Number"
	ColFulfillmentStatus    = "Fulfillment Status"
	ColLinkToOrder          = "Link To Order "
	ColOrderStage           = "Order Stage"
	ColTransitAtInDays      = "Transit At - In Days"
	ColDeliveredAtInDays    = "Delivered At - In Days"
	ColDeliveryFailedStatus = "Delivery Failed Status"
)

// deliveryFailedStatuses are the event statuses that count a fulfillment as a
// failed delivery when they are the fulfillment's last event.
var deliveryFailedStatuses = map[string]bool{
	"FAILED":  true,
	"FAILURE": true,
}

// OrderNumber composes the human-readable name and the immutable legacy id.
// The push stage later splits this composition back apart to resolve the
// originating order for a freshly created Airtable record.
func OrderNumber(order *domain.Order) string {
	return order.Name + "-" + order.LegacyResourceID
}

// ExtractLegacyID recovers the legacy resource id from a composed order
// number. Returns "" when the input has no dash.
func ExtractLegacyID(orderNumber string) string {
	_, after, found := strings.Cut(orderNumber, "-")
	if !found {
		return ""
	}
	return after
}

// daysSince is ceil(|now − t| / 24h).
func daysSince(now, t time.Time) int {
	diff := now.Sub(t)
	if diff < 0 {
		diff = -diff
	}
	return int(math.Ceil(diff.Hours() / 24))
}

// OrderAgeInDays returns the elapsed days since the order was created.
func OrderAgeInDays(order *domain.Order, now time.Time) int {
	return daysSince(now, order.OrderCreatedAt)
}

// TransitAtInDays returns the max elapsed days since any fulfillment went in
// transit. Null timestamps are excluded; if none remain the result is nil.
func TransitAtInDays(fulfillments domain.Fulfillments, now time.Time) *int {
	var days []int
	for _, f := range fulfillments {
		if f.InTransitAt == nil || f.InTransitAt.IsZero() {
			continue
		}
		days = append(days, daysSince(now, *f.InTransitAt))
	}
	return maxOrNil(days)
}

// DeliveredAtInDays returns the max elapsed days since any fulfillment was
// delivered, with the same null handling as TransitAtInDays.
func DeliveredAtInDays(fulfillments domain.Fulfillments, now time.Time) *int {
	var days []int
	for _, f := range fulfillments {
		if f.DeliveredAt == nil || f.DeliveredAt.IsZero() {
			continue
		}
		days = append(days, daysSince(now, *f.DeliveredAt))
	}
	return maxOrNil(days)
}

func maxOrNil(days []int) *int {
	if len(days) == 0 {
		return nil
	}
	max := days[0]
	for _, d := range days[1:] {
		if d > max {
			max = d
		}
	}
	return &max
}

// DeliveryFailedStatus classifies failed deliveries by counting fulfillments
// whose last event (by array order, not timestamp) is FAILED or FAILURE:
// zero failures → nil, exactly one → "Failed", two or more → "Partially Failed".
func DeliveryFailedStatus(fulfillments domain.Fulfillments) *string {
	failed := 0
	for _, f := range fulfillments {
		if len(f.Events) == 0 {
			continue
		}
		if deliveryFailedStatuses[f.Events[len(f.Events)-1].Status] {
			failed++
		}
	}
	switch {
	case failed == 0:
		return nil
	case failed == 1:
		s := "Failed"
		return &s
	default:
		s := "Partially Failed"
		return &s
	}
}

// OrderStage is the status of the last event of the last fulfillment (in
// iteration order) that has any events; nil if no fulfillment has events.
func OrderStage(fulfillments domain.Fulfillments) *string {
	var stage *string
	for _, f := range fulfillments {
		if len(f.Events) == 0 {
			continue
		}
		s := f.Events[len(f.Events)-1].Status
		stage = &s
	}
	return stage
}

// fulfillmentRemarks concatenates every event message across fulfillments.
func fulfillmentRemarks(fulfillments domain.Fulfillments) string {
	var remarks []string
	for _, f := range fulfillments {
		for _, e := range f.Events {
			remarks = append(remarks, e.Message)
		}
	}
	return strings.Join(remarks, ", ")
}

// trackingNumbers concatenates every tracking number across fulfillments.
func trackingNumbers(fulfillments domain.Fulfillments) string {
	var numbers []string
	for _, f := range fulfillments {
		for _, t := range f.TrackingInfo {
			numbers = append(numbers, t.Number)
		}
	}
	return strings.Join(numbers, ", ")
}

// ToAirtableFields derives the full tabular row for an order at the given
// wall-clock time. Pure; no side effects.
func ToAirtableFields(order *domain.Order, now time.Time) client.Fields {
	fields := client.Fields{
		ColOrderNumber:        OrderNumber(order),
		ColFulfillmentRemarks: fulfillmentRemarks(order.Fulfillments),
		ColPhone:              order.Customer.Phone,
		ColEmail:              order.Customer.Email,
		ColPaymentStatus:      order.DisplayFinancialStatus,
		ColCustomerName:       order.Customer.DisplayName,
		ColOrderAgeInDays:     OrderAgeInDays(order, now),
		ColTrackingNumber:     trackingNumbers(order.Fulfillments),
		ColFulfillmentStatus:  order.DisplayFulfillmentStatus,
		ColLinkToOrder:        order.StatusPageURL,
	}

	if days := TransitAtInDays(order.Fulfillments, now); days != nil {
		fields[ColTransitAtInDays] = *days
	} else {
		fields[ColTransitAtInDays] = nil
	}
	if days := DeliveredAtInDays(order.Fulfillments, now); days != nil {
		fields[ColDeliveredAtInDays] = *days
	} else {
		fields[ColDeliveredAtInDays] = nil
	}
	if status := DeliveryFailedStatus(order.Fulfillments); status != nil {
		fields[ColDeliveryFailedStatus] = *status
	} else {
		fields[ColDeliveryFailedStatus] = nil
	}
	if stage := OrderStage(order.Fulfillments); stage != nil {
		fields[ColOrderStage] = *stage
	} else {
		fields[ColOrderStage] = nil
	}

	return fields
}

// ToCreateRecord builds the Airtable payload for an order with no downstream
// record yet.
func ToCreateRecord(order *domain.Order, now time.Time) client.Record {
	return client.Record{Fields: ToAirtableFields(order, now)}
}

// ToUpdateRecord wraps the derived fields with the stored Airtable record id.
// Callers must only use this for orders that already have a back-reference.
func ToUpdateRecord(order *domain.Order, now time.Time) client.Record {
	return client.Record{
		ID:     derefString(order.AirtableRecordID),
		Fields: ToAirtableFields(order, now),
	}
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
