package domain

import "strconv"

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

// fulfillment order of the main line; side branches are not ranked.
var statusRank = map[OrderStatus]int{
	OrderStatusPending:    0,
	OrderStatusConfirmed:  1,
	OrderStatusProcessing: 2,
	OrderStatusShipped:    3,
	OrderStatusDelivered:  4,
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled || s == OrderStatusRefunded
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled, OrderStatusRefunded:
		return true
	}
	return false
}

// IsForwardOf reports whether s lies strictly after from on the fulfillment
// line. Cancelling is forward from any non-terminal status; refunding is also
// allowed after delivery.
func (s OrderStatus) IsForwardOf(from OrderStatus) bool {
	switch s {
	case OrderStatusCancelled:
		return !from.IsTerminal()
	case OrderStatusRefunded:
		return from != OrderStatusCancelled && from != OrderStatusRefunded
	}
	to, ok := statusRank[s]
	if !ok {
		return false
	}
	cur, ok := statusRank[from]
	if !ok {
		return false
	}
	return to > cur
}

// String representation (for logging)
func (s OrderStatus) String() string {
	return string(s)
}

func ParseOrderStatus(v string) (OrderStatus, error) {
	s := OrderStatus(v)
	if !s.Valid() {
		return "", &ValidationError{Field: "status", Reason: "unknown order status " + strconv.Quote(v)}
	}
	return s, nil
}

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

func ParsePaymentStatus(v string) (PaymentStatus, error) {
	switch s := PaymentStatus(v); s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed, PaymentStatusRefunded:
		return s, nil
	}
	return "", &ValidationError{Field: "payment_status", Reason: "unknown payment status " + strconv.Quote(v)}
}

type PaymentMethod string

const (
	PaymentMethodCard   PaymentMethod = "card"
	PaymentMethodUPI    PaymentMethod = "upi"
	PaymentMethodCOD    PaymentMethod = "cod"
	PaymentMethodWallet PaymentMethod = "wallet"
)

func ParsePaymentMethod(v string) (PaymentMethod, error) {
	switch m := PaymentMethod(v); m {
	case PaymentMethodCard, PaymentMethodUPI, PaymentMethodCOD, PaymentMethodWallet:
		return m, nil
	}
	return "", &ValidationError{Field: "payment_method", Reason: "invalid payment method " + strconv.Quote(v)}
}
