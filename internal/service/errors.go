package service

import (
	"errors"
	"fmt"

	"github.com/harshees/storefront/internal/domain"
)

type ErrorKind string

const (
	KindValidationFailed     ErrorKind = "validation_failed"
	KindProductNotFound      ErrorKind = "product_not_found"
	KindInsufficientStock    ErrorKind = "insufficient_stock"
	KindPersistenceFailure   ErrorKind = "persistence_failure"
	KindConsistencyViolation ErrorKind = "consistency_violation"
	KindOrderNotFound        ErrorKind = "order_not_found"
	KindForbidden            ErrorKind = "forbidden"
)

// OrderError is the failure type of every order operation. Match it by kind
// with errors.Is against the Err* values below.
type OrderError struct {
	Kind      ErrorKind
	Message   string
	ProductID string
	Size      string
	Err       error
}

func (e *OrderError) Error() string {
	msg := string(e.Kind)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Detail is the caller-facing description without the kind prefix.
func (e *OrderError) Detail() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *OrderError) Unwrap() error {
	return e.Err
}

func (e *OrderError) Is(target error) bool {
	t, ok := target.(*OrderError)
	return ok && t.Kind == e.Kind
}

var (
	ErrValidationFailed     = &OrderError{Kind: KindValidationFailed}
	ErrProductNotFound      = &OrderError{Kind: KindProductNotFound}
	ErrInsufficientStock    = &OrderError{Kind: KindInsufficientStock}
	ErrPersistenceFailure   = &OrderError{Kind: KindPersistenceFailure}
	ErrConsistencyViolation = &OrderError{Kind: KindConsistencyViolation}
	ErrOrderNotFound        = &OrderError{Kind: KindOrderNotFound}
	ErrForbidden            = &OrderError{Kind: KindForbidden}
)

// KindOf returns the kind of err, or "" when err is not an OrderError.
func KindOf(err error) ErrorKind {
	var oe *OrderError
	if errors.As(err, &oe) {
		return oe.Kind
	}
	return ""
}

func validationFailed(field, reason string) *OrderError {
	return &OrderError{
		Kind: KindValidationFailed,
		Err:  &domain.ValidationError{Field: field, Reason: reason},
	}
}

func fromValidation(err error) *OrderError {
	return &OrderError{Kind: KindValidationFailed, Err: err}
}

func productNotFound(productID string) *OrderError {
	return &OrderError{
		Kind:      KindProductNotFound,
		Message:   fmt.Sprintf("product %s does not exist", productID),
		ProductID: productID,
	}
}

// insufficientStock names the line; available < 0 means the count is unknown.
func insufficientStock(line domain.LineItem, available int) *OrderError {
	label := line.ProductID
	if line.Name != "" {
		label = line.Name
	}
	msg := fmt.Sprintf("%s in size %s is out of stock", label, line.Size)
	if available > 0 {
		msg = fmt.Sprintf("only %d of %s in size %s available, %d requested", available, label, line.Size, line.Quantity)
	}
	return &OrderError{
		Kind:      KindInsufficientStock,
		Message:   msg,
		ProductID: line.ProductID,
		Size:      line.Size,
	}
}

func persistenceFailure(op string, err error) *OrderError {
	return &OrderError{Kind: KindPersistenceFailure, Message: op, Err: err}
}

func consistencyViolation(msg string) *OrderError {
	return &OrderError{Kind: KindConsistencyViolation, Message: msg}
}
