package common

import "errors"

// Error codes shared across handlers. They mirror the recoverable failure
// modes of the billing flow so clients can branch on a stable identifier.
const (
	CodeBadRequest          = "BAD_REQUEST"
	CodeNotFound            = "NOT_FOUND"
	CodeInternal            = "INTERNAL"
	CodeEmptyCart           = "EMPTY_CART"
	CodeInsufficientStock   = "INSUFFICIENT_STOCK"
	CodeInvalidPhone        = "INVALID_PHONE_NUMBER"
	CodeIndexOutOfRange     = "INDEX_OUT_OF_RANGE"
	CodeCouponNotFound      = "COUPON_NOT_FOUND"
	CodeCouponBelowMin      = "COUPON_BELOW_MINIMUM"
	CodeCouponTier          = "COUPON_TIER_INELIGIBLE"
	CodeCouponExhausted     = "COUPON_EXHAUSTED"
	CodeCouponExpired       = "COUPON_EXPIRED"
	CodeBillGeneration      = "BILL_GENERATION_ERROR"
	CodeIdempotentReplay    = "IDEMPOTENT_REPLAY"
	CodeSessionNotFound     = "SESSION_NOT_FOUND"
	CodePaymentInsufficient = "PAID_BELOW_NET"
)

// AppError carries an error code and HTTP status alongside the cause.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

// Unwrap allows errors.Is/As to inspect the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// IsAppError checks whether the error is an AppError.
func IsAppError(err error) bool {
	var target *AppError
	return errors.As(err, &target)
}
