package service

import (
	"errors"
	"fmt"
)

// Kind classifies ledger errors for callers.
type Kind string

const (
	KindInvalidArgument       Kind = "INVALID_ARGUMENT"
	KindNotFound              Kind = "NOT_FOUND"
	KindProductNotFound       Kind = "PRODUCT_NOT_FOUND"
	KindInsufficientStock     Kind = "INSUFFICIENT_STOCK"
	KindConflict              Kind = "CONFLICT"
	KindDependencyUnavailable Kind = "DEPENDENCY_UNAVAILABLE"
	KindStoreUnavailable      Kind = "STORE_UNAVAILABLE"
	KindInternal              Kind = "INTERNAL"
)

// Error is a classified ledger error.
type Error struct {
	Kind      Kind
	ProductID int64
	Message   string
	Err       error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.ProductID != 0 {
		msg = fmt.Sprintf("product %d: %s", e.ProductID, msg)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, productID int64, msg string, err error) *Error {
	return &Error{Kind: kind, ProductID: productID, Message: msg, Err: err}
}

func invalidArgument(productID int64, format string, args ...any) *Error {
	return newError(KindInvalidArgument, productID, fmt.Sprintf(format, args...), nil)
}

func storeUnavailable(productID int64, err error) *Error {
	return newError(KindStoreUnavailable, productID, "inventory store unavailable", err)
}

// KindOf returns the kind of err, or KindInternal when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err is a service error of kind k.
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}
