package service

import (
	"testing"
	"time"

	"github.com/vivanti/ordersync/internal/domain"
)

var transformNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func hoursAgo(h float64) time.Time {
	return transformNow.Add(-time.Duration(h * float64(time.Hour)))
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func TestOrderNumberRoundTrip(t *testing.T) {
	order := &domain.Order{Name: "#1001", LegacyResourceID: "5479386284082"}

	number := OrderNumber(order)
	if number != "#1001-5479386284082" {
		t.Errorf("unexpected order number: %q", number)
	}
	if got := ExtractLegacyID(number); got != order.LegacyResourceID {
		t.Errorf("round trip lost legacy id: got %q, want %q", got, order.LegacyResourceID)
	}
}

func TestExtractLegacyIDNoDash(t *testing.T) {
	if got := ExtractLegacyID("1001"); got != "" {
		t.Errorf("expected empty legacy id, got %q", got)
	}
}

func TestDaysSince(t *testing.T) {
	testCases := []struct {
		name string
		t    time.Time
		want int
	}{
		{name: "one hour ago rounds up", t: hoursAgo(1), want: 1},
		{name: "exactly 24 hours", t: hoursAgo(24), want: 1},
		{name: "just over 24 hours", t: hoursAgo(25), want: 2},
		{name: "ten days", t: hoursAgo(240), want: 10},
		{name: "future timestamp uses absolute difference", t: hoursAgo(-3), want: 1},
		{name: "same instant", t: transformNow, want: 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := daysSince(transformNow, tc.t); got != tc.want {
				t.Errorf("daysSince = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestTransitAtInDays(t *testing.T) {
	testCases := []struct {
		name         string
		fulfillments domain.Fulfillments
		want         *int
	}{
		{
			name:         "no fulfillments",
			fulfillments: nil,
			want:         nil,
		},
		{
			name: "all timestamps null",
			fulfillments: domain.Fulfillments{
				{InTransitAt: nil},
				{InTransitAt: nil},
			},
			want: nil,
		},
		{
			name: "max across fulfillments, nulls excluded",
			fulfillments: domain.Fulfillments{
				{InTransitAt: timePtr(hoursAgo(48))},
				{InTransitAt: nil},
				{InTransitAt: timePtr(hoursAgo(120))},
			},
			want: intPtr(5),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := TransitAtInDays(tc.fulfillments, transformNow)
			assertIntPtr(t, got, tc.want)
		})
	}
}

func TestDeliveredAtInDays(t *testing.T) {
	fulfillments := domain.Fulfillments{
		{DeliveredAt: timePtr(hoursAgo(30))},
		{DeliveredAt: nil},
	}
	got := DeliveredAtInDays(fulfillments, transformNow)
	assertIntPtr(t, got, intPtr(2))

	if got := DeliveredAtInDays(nil, transformNow); got != nil {
		t.Errorf("expected nil for empty fulfillments, got %d", *got)
	}
}

func TestDeliveryFailedStatus(t *testing.T) {
	failedLast := domain.Fulfillment{Events: []domain.FulfillmentEvent{
		{Status: "IN_TRANSIT"},
		{Status: "FAILED"},
	}}
	failureLast := domain.Fulfillment{Events: []domain.FulfillmentEvent{
		{Status: "FAILURE"},
	}}
	// Failure earlier in the array does not count; only the last event does.
	recovered := domain.Fulfillment{Events: []domain.FulfillmentEvent{
		{Status: "FAILED"},
		{Status: "DELIVERED"},
	}}
	noEvents := domain.Fulfillment{}

	testCases := []struct {
		name         string
		fulfillments domain.Fulfillments
		want         *string
	}{
		{name: "no failures", fulfillments: domain.Fulfillments{recovered, noEvents}, want: nil},
		{name: "single failure", fulfillments: domain.Fulfillments{failedLast, recovered}, want: strPtr("Failed")},
		{name: "multiple failures", fulfillments: domain.Fulfillments{failedLast, failureLast}, want: strPtr("Partially Failed")},
		{name: "empty", fulfillments: nil, want: nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := DeliveryFailedStatus(tc.fulfillments)
			assertStrPtr(t, got, tc.want)
		})
	}
}

func TestOrderStage(t *testing.T) {
	fulfillments := domain.Fulfillments{
		{Events: []domain.FulfillmentEvent{{Status: "IN_TRANSIT"}, {Status: "DELIVERED"}}},
		{Events: nil},
		{Events: []domain.FulfillmentEvent{{Status: "OUT_FOR_DELIVERY"}}},
	}

	got := OrderStage(fulfillments)
	assertStrPtr(t, got, strPtr("OUT_FOR_DELIVERY"))

	if got := OrderStage(domain.Fulfillments{{Events: nil}}); got != nil {
		t.Errorf("expected nil stage when no fulfillment has events, got %q", *got)
	}
}

func TestToAirtableFields(t *testing.T) {
	order := &domain.Order{
		ShopifyID:        "gid://shopify/Order/1",
		Name:             "#1001",
		LegacyResourceID: "42",
		Customer: domain.Customer{
			Email:       "jo@example.com",
			Phone:       "+447000000000",
			DisplayName: "Jo Bloggs",
		},
		DisplayFinancialStatus:   "PAID",
		DisplayFulfillmentStatus: "FULFILLED",
		OrderCreatedAt:           hoursAgo(50),
		StatusPageURL:            "https://shop.example.com/orders/abc",
		Fulfillments: domain.Fulfillments{
			{
				InTransitAt:  timePtr(hoursAgo(26)),
				DeliveredAt:  timePtr(hoursAgo(2)),
				TrackingInfo: []domain.TrackingInfo{{Number: "TRK123"}, {Number: "TRK456"}},
				Events: []domain.FulfillmentEvent{
					{Status: "IN_TRANSIT", Message: "Departed facility"},
					{Status: "DELIVERED", Message: "Left at door"},
				},
			},
		},
	}

	fields := ToAirtableFields(order, transformNow)

	want := map[string]interface{}{
		"Order Number":             "#1001-42",
		"Fulfillment Team Remarks": "Departed facility, Left at door",
		"Phone":                    "+447000000000",
		"Email":                    "jo@example.com",
		"Payment Status":           "PAID",
		"Customer Name":            "Jo Bloggs",
		"Order Age - In Days":      3,
		"Tracking Number":          "TRK123, TRK456",
		"Fulfillment Status":       "FULFILLED",
		"Link To Order ":           "https://shop.example.com/orders/abc",
		"Order Stage":              "DELIVERED",
		"Transit At - In Days":     2,
		"Delivered At - In Days":   1,
		"Delivery Failed Status":   nil,
	}

	if len(fields) != len(want) {
		t.Errorf("field count = %d, want %d", len(fields), len(want))
	}
	for col, expected := range want {
		got, ok := fields[col]
		if !ok {
			t.Errorf("missing column %q", col)
			continue
		}
		if got != expected {
			t.Errorf("column %q = %v, want %v", col, got, expected)
		}
	}
}

func TestToAirtableFieldsNullDerivations(t *testing.T) {
	order := &domain.Order{
		Name:             "#1002",
		LegacyResourceID: "43",
		OrderCreatedAt:   hoursAgo(1),
	}

	fields := ToAirtableFields(order, transformNow)

	// Null derivations must be present with explicit nil, not omitted, so the
	// destination cell is cleared on update.
	for _, col := range []string{ColTransitAtInDays, ColDeliveredAtInDays, ColDeliveryFailedStatus, ColOrderStage} {
		got, ok := fields[col]
		if !ok {
			t.Errorf("column %q omitted, want explicit nil", col)
			continue
		}
		if got != nil {
			t.Errorf("column %q = %v, want nil", col, got)
		}
	}
}

func TestToUpdateRecord(t *testing.T) {
	recordID := "recABC123"
	order := &domain.Order{
		Name:             "#1003",
		LegacyResourceID: "44",
		OrderCreatedAt:   hoursAgo(1),
		AirtableRecordID: &recordID,
	}

	rec := ToUpdateRecord(order, transformNow)
	if rec.ID != recordID {
		t.Errorf("record ID = %q, want %q", rec.ID, recordID)
	}
	if rec.Fields[ColOrderNumber] != "#1003-44" {
		t.Errorf("unexpected order number: %v", rec.Fields[ColOrderNumber])
	}
}

func intPtr(i int) *int {
	return &i
}

func strPtr(s string) *string {
	return &s
}

func assertIntPtr(t *testing.T, got, want *int) {
	t.Helper()
	if (got == nil) != (want == nil) {
		t.Fatalf("got %v, want %v", fmtIntPtr(got), fmtIntPtr(want))
	}
	if got != nil && *got != *want {
		t.Errorf("got %d, want %d", *got, *want)
	}
}

func assertStrPtr(t *testing.T, got, want *string) {
	t.Helper()
	if (got == nil) != (want == nil) {
		t.Fatalf("got %v, want %v", fmtStrPtr(got), fmtStrPtr(want))
	}
	if got != nil && *got != *want {
		t.Errorf("got %q, want %q", *got, *want)
	}
}

func fmtIntPtr(p *int) interface{} {
	if p == nil {
		return "<nil>"
	}
	return *p
}

func fmtStrPtr(p *string) interface{} {
	if p == nil {
		return "<nil>"
	}
	return *p
}
