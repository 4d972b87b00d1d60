package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// The backend serialises numbers inconsistently: decimals arrive as "1500.00",
// ids and counts sometimes as strings. The scalar types below accept both.

// ID is a backend identifier.
type ID int64

// UnmarshalJSON accepts a number or a numeric string.
func (id *ID) UnmarshalJSON(data []byte) error {
	v, err := lenientInt(data)
	if err != nil {
		return fmt.Errorf("backend: id: %w", err)
	}
	*id = ID(v)
	return nil
}

// String renders the id for URLs.
func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Amount is a monetary value in the shop currency.
type Amount float64

// UnmarshalJSON accepts a number, a numeric string or null.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if isNull(data) {
		*a = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
		if s == "" {
			*a = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("backend: amount %q: %w", s, err)
		}
		*a = Amount(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("backend: amount: %w", err)
	}
	*a = Amount(f)
	return nil
}

// Float returns the value as float64.
func (a Amount) Float() float64 { return float64(a) }

// Count is a non-negative integer quantity.
type Count int

// UnmarshalJSON accepts a number, a numeric string or null.
func (c *Count) UnmarshalJSON(data []byte) error {
	v, err := lenientInt(data)
	if err != nil {
		return fmt.Errorf("backend: count: %w", err)
	}
	*c = Count(v)
	return nil
}

// Timestamp is a point in time as reported by the backend.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// UnmarshalJSON accepts RFC3339, MySQL datetime or a bare date.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if isNull(bytes.TrimSpace(data)) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("backend: timestamp: %w", err)
	}
	if s == "" || strings.HasPrefix(s, "0000-00-00") {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("backend: timestamp %q: unknown layout", s)
}

// MarshalJSON writes RFC3339 or null.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(time.RFC3339))
}

func lenientInt(data []byte) (int64, error) {
	data = bytes.TrimSpace(data)
	if isNull(data) {
		return 0, nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return 0, err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, nil
		}
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, err
		}
		return int64(f), nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return 0, err
	}
	return int64(f), nil
}

func isNull(data []byte) bool {
	return len(data) == 0 || string(data) == "null"
}

// User is the authenticated console operator.
type User struct {
	ID           ID        `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone,omitempty"`
	Role         string    `json:"role,omitempty"`
	BusinessName string    `json:"business_name,omitempty"`
	CreatedAt    Timestamp `json:"created_at"`
}

// Product is a catalogue entry.
type Product struct {
	ID          ID        `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       Amount    `json:"price"`
	Stock       Count     `json:"stock"`
	Category    string    `json:"category"`
	SKU         string    `json:"sku"`
	Status      string    `json:"status"`
	ImageURL    string    `json:"image_url"`
	CreatedAt   Timestamp `json:"created_at"`
}

// ProductStats summarises the catalogue.
type ProductStats struct {
	TotalProducts    Count  `json:"total_products"`
	ActiveProducts   Count  `json:"active_products"`
	LowStockProducts Count  `json:"low_stock_products"`
	OutOfStock       Count  `json:"out_of_stock"`
	InventoryValue   Amount `json:"inventory_value"`
}

// OrderItem is one line of an order.
type OrderItem struct {
	ProductID   ID     `json:"product_id"`
	ProductName string `json:"product_name"`
	Quantity    Count  `json:"quantity"`
	Price       Amount `json:"price"`
	Subtotal    Amount `json:"subtotal"`
}

// OrderCustomer is the customer summary embedded in some order payloads.
type OrderCustomer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Order is a customer order.
type Order struct {
	ID              ID             `json:"id"`
	OrderNumber     string         `json:"order_number"`
	CustomerID      ID             `json:"customer_id"`
	CustomerName    string         `json:"customer_name"`
	CustomerEmail   string         `json:"customer_email"`
	CustomerPhone   string         `json:"customer_phone"`
	Customer        *OrderCustomer `json:"customer,omitempty"`
	Status          string         `json:"status"`
	PaymentStatus   string         `json:"payment_status"`
	PaymentMethod   string         `json:"payment_method"`
	Subtotal        Amount         `json:"subtotal"`
	Total           Amount         `json:"total"`
	ShippingAddress string         `json:"shipping_address"`
	Notes           string         `json:"notes"`
	Items           []OrderItem    `json:"items"`
	CreatedAt       Timestamp      `json:"created_at"`
	UpdatedAt       Timestamp      `json:"updated_at"`
}

// BuyerName prefers the embedded customer over the flattened columns.
func (o Order) BuyerName() string {
	if o.Customer != nil && o.Customer.Name != "" {
		return o.Customer.Name
	}
	return o.CustomerName
}

// BuyerEmail prefers the embedded customer over the flattened columns.
func (o Order) BuyerEmail() string {
	if o.Customer != nil && o.Customer.Email != "" {
		return o.Customer.Email
	}
	return o.CustomerEmail
}

// PaymentLabel defaults an empty payment status to "unpaid".
func (o Order) PaymentLabel() string {
	if o.PaymentStatus == "" {
		return "unpaid"
	}
	return o.PaymentStatus
}

// Edited reports whether the order changed after it was placed.
func (o Order) Edited() bool {
	return !o.UpdatedAt.IsZero() && !o.UpdatedAt.Equal(o.CreatedAt.Time)
}

// OrderStats summarises orders.
type OrderStats struct {
	TotalOrders     Count  `json:"total_orders"`
	PendingOrders   Count  `json:"pending_orders"`
	CompletedOrders Count  `json:"completed_orders"`
	TotalRevenue    Amount `json:"total_revenue"`
}

// Customer is a shop customer. TotalSpent and OrderCount are optional in
// list payloads; nil means the backend did not send them.
type Customer struct {
	ID         ID        `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone"`
	Address    string    `json:"address"`
	CreatedAt  Timestamp `json:"created_at"`
	TotalSpent *Amount   `json:"total_spent,omitempty"`
	OrderCount *Count    `json:"order_count,omitempty"`
}

// Initial is the avatar letter.
func (c Customer) Initial() string {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return "?"
	}
	return strings.ToUpper(string([]rune(name)[0]))
}

// Spent returns TotalSpent or zero.
func (c Customer) Spent() Amount {
	if c.TotalSpent == nil {
		return 0
	}
	return *c.TotalSpent
}

// Orders returns OrderCount or zero.
func (c Customer) Orders() Count {
	if c.OrderCount == nil {
		return 0
	}
	return *c.OrderCount
}

// Annotated reports whether both aggregates are present.
func (c Customer) Annotated() bool {
	return c.TotalSpent != nil && c.OrderCount != nil
}

// Payment is a payment transaction.
type Payment struct {
	ID            ID        `json:"id"`
	OrderID       ID        `json:"order_id"`
	OrderNumber   string    `json:"order_number"`
	CustomerName  string    `json:"customer_name"`
	CustomerPhone string    `json:"customer_phone"`
	Amount        Amount    `json:"amount"`
	Method        string    `json:"payment_method"`
	Status        string    `json:"status"`
	Reference     string    `json:"reference"`
	TransactionID string    `json:"transaction_id"`
	CreatedAt     Timestamp `json:"created_at"`
}

// Ref returns the best available transaction reference.
func (p Payment) Ref() string {
	if p.Reference != "" {
		return p.Reference
	}
	return p.TransactionID
}

// PaymentStats summarises payments. The backend has used two spellings for
// the paid and unpaid totals.
type PaymentStats struct {
	TotalRevenue  Amount `json:"total_revenue"`
	PaidRevenue   Amount `json:"paid_revenue"`
	TotalPaid     Amount `json:"total_paid"`
	UnpaidRevenue Amount `json:"unpaid_revenue"`
	TotalUnpaid   Amount `json:"total_unpaid"`
	PaidCount     Count  `json:"paid_count"`
	UnpaidCount   Count  `json:"unpaid_count"`
}

// Paid returns the paid total under either spelling.
func (s PaymentStats) Paid() Amount {
	if s.PaidRevenue != 0 {
		return s.PaidRevenue
	}
	return s.TotalPaid
}

// Unpaid returns the unpaid total under either spelling.
func (s PaymentStats) Unpaid() Amount {
	if s.UnpaidRevenue != 0 {
		return s.UnpaidRevenue
	}
	return s.TotalUnpaid
}

// NotificationPreferences toggles store activity notifications per channel.
type NotificationPreferences struct {
	EmailNewOrder       bool `json:"email_new_order"`
	EmailOrderStatus    bool `json:"email_order_status"`
	EmailLowStock       bool `json:"email_low_stock"`
	SMSNewOrder         bool `json:"sms_new_order"`
	SMSOrderStatus      bool `json:"sms_order_status"`
	WhatsAppNewOrder    bool `json:"whatsapp_new_order"`
	WhatsAppOrderStatus bool `json:"whatsapp_order_status"`
}

// DefaultNotificationPreferences enables e-mail notifications only.
func DefaultNotificationPreferences() NotificationPreferences {
	return NotificationPreferences{EmailNewOrder: true, EmailOrderStatus: true, EmailLowStock: true}
}

// BusinessProfile describes the shop.
type BusinessProfile struct {
	Name          string                   `json:"name"`
	Email         string                   `json:"email"`
	Phone         string                   `json:"phone"`
	Address       string                   `json:"address"`
	City          string                   `json:"city"`
	Country       string                   `json:"country"`
	Currency      string                   `json:"currency"`
	Website       string                   `json:"website"`
	Description   string                   `json:"description"`
	Notifications *NotificationPreferences `json:"notification_preferences,omitempty"`
}
