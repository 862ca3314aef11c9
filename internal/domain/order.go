package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Customer holds the contact fields Shopify reports for an order's customer.
type Customer struct {
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded customer, or nil for a zero value.
//   - error: non-nil if marshaling fails.
func (c Customer) Value() (driver.Value, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
// Parameters:
//   - value: raw database value to decode.
// Returns:
//   - error: non-nil if decoding fails or the type is unexpected.
func (c *Customer) Scan(value interface{}) error {
	if value == nil {
		*c = Customer{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan Customer")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, c)
}

// FulfillmentEvent is a single status event on a fulfillment, in the order
// Shopify reports them.
type FulfillmentEvent struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// TrackingInfo carries a carrier tracking number for a fulfillment.
type TrackingInfo struct {
	Number string `json:"number"`
}

// Fulfillment is one fulfillment sub-record of an order. Event order is
// significant: derivations read the last event by array position.
type Fulfillment struct {
	InTransitAt   *time.Time         `json:"in_transit_at,omitempty"`
	DeliveredAt   *time.Time         `json:"delivered_at,omitempty"`
	TrackingInfo  []TrackingInfo     `json:"tracking_info,omitempty"`
	DisplayStatus string             `json:"display_status,omitempty"`
	Events        []FulfillmentEvent `json:"events,omitempty"`
}

// Fulfillments is stored as a JSON column.
type Fulfillments []Fulfillment

// Value implements the driver.Valuer interface for database serialization.
func (f Fulfillments) Value() (driver.Value, error) {
	if f == nil {
		return "[]", nil
	}
	b, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (f *Fulfillments) Scan(value interface{}) error {
	if value == nil {
		*f = Fulfillments{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan Fulfillments")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, f)
}

// Metafield is a Shopify order metafield, kept verbatim for audit purposes.
type Metafield struct {
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

// Metafields is stored as a JSON column.
type Metafields []Metafield

// Value implements the driver.Valuer interface for database serialization.
func (m Metafields) Value() (driver.Value, error) {
	if m == nil {
		return "[]", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (m *Metafields) Scan(value interface{}) error {
	if value == nil {
		*m = Metafields{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan Metafields")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, m)
}

// Order is the intermediate-store record for one Shopify order. ShopifyID is
// the immutable upstream identifier and the merge key for upserts. The
// Airtable back-reference fields are written only by the push stage; an
// upstream-driven upsert must never touch them.
type Order struct {
	ShopifyID                string       `gorm:"column:shopify_id;type:text;primaryKey" json:"shopify_id"`
	Name                     string       `gorm:"type:text;not null" json:"name"`
	LegacyResourceID         string       `gorm:"column:legacy_resource_id;type:text;index" json:"legacy_resource_id"`
	Customer                 Customer     `gorm:"type:text" json:"customer"`
	DisplayFinancialStatus   string       `gorm:"type:text" json:"display_financial_status"`
	DisplayFulfillmentStatus string       `gorm:"type:text" json:"display_fulfillment_status"`
	OrderCreatedAt           time.Time    `gorm:"column:order_created_at" json:"order_created_at"`
	StatusPageURL            string       `gorm:"column:status_page_url;type:text" json:"status_page_url"`
	Fulfillments             Fulfillments `gorm:"type:text" json:"fulfillments"`
	Metafields               Metafields   `gorm:"type:text" json:"metafields"`
	AirtableRecordID         *string      `gorm:"column:airtable_record_id;type:text;index" json:"airtable_record_id,omitempty"`
	AirtableTableName        *string      `gorm:"column:airtable_table_name;type:text" json:"airtable_table_name,omitempty"`
	CreatedAt                time.Time    `json:"created_at"`
	UpdatedAt                time.Time    `json:"updated_at"`
}

// TableName returns the database table name for Order.
func (Order) TableName() string {
	return "orders"
}
