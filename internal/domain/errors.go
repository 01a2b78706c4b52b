package domain

import (
	"errors"
	"net/http"
)

// Machine-readable error codes. Handlers map these to HTTP statuses; callers
// branch on codes, never on message text.
const (
	ENOTFOUND     = "not_found"
	ECONFLICT     = "conflict"
	EINVALID      = "invalid"
	EUNAUTHORIZED = "unauthorized"
	EEXTERNAL     = "external_dependency"
	EINTERNAL     = "internal"
)

// Error is the tagged failure type shared by every package in the checkout
// core. Sentinel instances below are compared with errors.Is.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

var (
	ErrProductNotFound   = &Error{Code: ENOTFOUND, Message: "product not found or inactive"}
	ErrQuoteOnly         = &Error{Code: ECONFLICT, Message: "product is quote-only and cannot be added to a cart"}
	ErrInsufficientStock = &Error{Code: ECONFLICT, Message: "insufficient stock for requested quantity"}
	ErrCartNotFound      = &Error{Code: ENOTFOUND, Message: "cart not found"}
	ErrCartLineNotFound  = &Error{Code: ENOTFOUND, Message: "cart line not found"}
	ErrCartExpired       = &Error{Code: ECONFLICT, Message: "cart reservation has expired"}
	ErrCartEmpty         = &Error{Code: ECONFLICT, Message: "cart is empty, nothing to checkout"}
	ErrCartLimit         = &Error{Code: ECONFLICT, Message: "cart item limit reached"}
	ErrOrderNotFound     = &Error{Code: ENOTFOUND, Message: "order not found"}
	ErrNotOrderOwner     = &Error{Code: EUNAUTHORIZED, Message: "order does not belong to caller"}
	ErrOrderNotPayable   = &Error{Code: ECONFLICT, Message: "order is not in a payment-eligible state"}
	ErrInvalidQuantity   = &Error{Code: EINVALID, Message: "quantity must be greater than zero"}
	ErrInvalidTotal      = &Error{Code: EINVALID, Message: "order total must be strictly positive"}
	ErrUserNotFound      = &Error{Code: EUNAUTHORIZED, Message: "unknown user"}
	ErrProviderFailure   = &Error{Code: EEXTERNAL, Message: "payment provider request failed"}
	ErrBadSignature      = &Error{Code: EUNAUTHORIZED, Message: "webhook signature verification failed"}
)

// ErrorCode walks the chain and returns the code of the first *Error found,
// or EINTERNAL for untagged errors.
func ErrorCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return EINTERNAL
}

// HTTPStatus maps an error code to the response status used across handlers.
func HTTPStatus(err error) int {
	switch ErrorCode(err) {
	case ENOTFOUND:
		return http.StatusNotFound
	case ECONFLICT:
		return http.StatusConflict
	case EINVALID:
		return http.StatusBadRequest
	case EUNAUTHORIZED:
		return http.StatusUnauthorized
	case EEXTERNAL:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
