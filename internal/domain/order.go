package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultCountry is applied to shipping addresses that omit one.
const DefaultCountry = "India"

// ValidationError names the offending field of a rejected input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Reason
}

type ShippingAddress struct {
	FullName  string `json:"full_name"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	Street    string `json:"street"`
	Apartment string `json:"apartment,omitempty"`
	City      string `json:"city"`
	State     string `json:"state"`
	Pincode   string `json:"pincode"`
	Country   string `json:"country"`
}

// Normalize trims every field and fills in the default country.
func (a ShippingAddress) Normalize() ShippingAddress {
	a.FullName = strings.TrimSpace(a.FullName)
	a.Phone = strings.TrimSpace(a.Phone)
	a.Email = strings.TrimSpace(a.Email)
	a.Street = strings.TrimSpace(a.Street)
	a.Apartment = strings.TrimSpace(a.Apartment)
	a.City = strings.TrimSpace(a.City)
	a.State = strings.TrimSpace(a.State)
	a.Pincode = strings.TrimSpace(a.Pincode)
	a.Country = strings.TrimSpace(a.Country)
	if a.Country == "" {
		a.Country = DefaultCountry
	}
	return a
}

func (a ShippingAddress) Validate() error {
	required := []struct {
		field string
		value string
	}{
		{"shipping_address.full_name", a.FullName},
		{"shipping_address.phone", a.Phone},
		{"shipping_address.email", a.Email},
		{"shipping_address.street", a.Street},
		{"shipping_address.city", a.City},
		{"shipping_address.state", a.State},
		{"shipping_address.pincode", a.Pincode},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &ValidationError{Field: r.field, Reason: "is required"}
		}
	}
	if !strings.Contains(a.Email, "@") {
		return &ValidationError{Field: "shipping_address.email", Reason: "is not an email address"}
	}
	return nil
}

// StatusEntry is one row of the append-only status history.
type StatusEntry struct {
	Status    OrderStatus `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	Note      string      `json:"note,omitempty"`
}

// Pricing is the breakdown captured when the order was created.
type Pricing struct {
	SubtotalMinor int64 `json:"subtotal_minor"`
	ShippingMinor int64 `json:"shipping_minor"`
	TaxMinor      int64 `json:"tax_minor"`
	DiscountMinor int64 `json:"discount_minor"`
	TotalMinor    int64 `json:"total_minor"`
}

// Reconciles checks total == subtotal + shipping + tax - discount.
func (p Pricing) Reconciles() bool {
	return p.TotalMinor == p.SubtotalMinor+p.ShippingMinor+p.TaxMinor-p.DiscountMinor
}

type Order struct {
	ID                uuid.UUID       `json:"id"`
	OrderNumber       string          `json:"order_number"`
	UserID            string          `json:"user_id"`
	Items             []LineItem      `json:"items"`
	ShippingAddress   ShippingAddress `json:"shipping_address"`
	PaymentMethod     PaymentMethod   `json:"payment_method"`
	CouponCode        string          `json:"coupon_code,omitempty"`
	Pricing           Pricing         `json:"pricing"`
	Currency          string          `json:"currency"`
	OrderStatus       OrderStatus     `json:"order_status"`
	PaymentStatus     PaymentStatus   `json:"payment_status"`
	IsDelivered       bool            `json:"is_delivered"`
	DeliveredAt       *time.Time      `json:"delivered_at,omitempty"`
	TrackingNumber    string          `json:"tracking_number,omitempty"`
	CourierService    string          `json:"courier_service,omitempty"`
	OrderNotes        string          `json:"order_notes,omitempty"`
	CancelReason      string          `json:"cancel_reason,omitempty"`
	RefundAmountMinor int64           `json:"refund_amount_minor,omitempty"`
	RefundReason      string          `json:"refund_reason,omitempty"`
	StatusHistory     []StatusEntry   `json:"status_history"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

func (o *Order) TotalItems() int {
	total := 0
	for _, item := range o.Items {
		total += item.Quantity
	}
	return total
}

// ItemsSubtotalMinor sums the captured line items.
func (o *Order) ItemsSubtotalMinor() int64 {
	var sum int64
	for _, item := range o.Items {
		sum += item.LineTotalMinor()
	}
	return sum
}

// OrderPatch describes a partial update. Nil fields are left untouched;
// AppendHistory is appended, never replacing earlier entries.
type OrderPatch struct {
	OrderStatus       *OrderStatus
	PaymentStatus     *PaymentStatus
	MarkDelivered     bool
	DeliveredAt       time.Time
	TrackingNumber    *string
	CourierService    *string
	CancelReason      *string
	RefundAmountMinor *int64
	RefundReason      *string
	AppendHistory     *StatusEntry
}

// ApplyTo mutates o in place the way the persistence layer applies the patch.
func (p OrderPatch) ApplyTo(o *Order) {
	if p.OrderStatus != nil {
		o.OrderStatus = *p.OrderStatus
	}
	if p.PaymentStatus != nil {
		o.PaymentStatus = *p.PaymentStatus
	}
	if p.MarkDelivered {
		o.IsDelivered = true
		if o.DeliveredAt == nil {
			at := p.DeliveredAt
			o.DeliveredAt = &at
		}
	}
	if p.TrackingNumber != nil {
		o.TrackingNumber = *p.TrackingNumber
	}
	if p.CourierService != nil {
		o.CourierService = *p.CourierService
	}
	if p.CancelReason != nil {
		o.CancelReason = *p.CancelReason
	}
	if p.RefundAmountMinor != nil {
		o.RefundAmountMinor = *p.RefundAmountMinor
	}
	if p.RefundReason != nil {
		o.RefundReason = *p.RefundReason
	}
	if p.AppendHistory != nil {
		o.StatusHistory = append(o.StatusHistory, *p.AppendHistory)
	}
}
