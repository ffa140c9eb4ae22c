package billing

import "errors"

var (
	// ErrSessionNotFound indicates the session id resolves to nothing.
	ErrSessionNotFound = errors.New("billing session not found")
	// ErrEmptyCart indicates an operation that requires cart items found none.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrInsufficientStock indicates the requested quantity exceeds available stock.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrIndexOutOfRange indicates the cart line index does not exist.
	ErrIndexOutOfRange = errors.New("cart index out of range")
	// ErrInvalidPhone indicates the phone number is not exactly ten digits.
	ErrInvalidPhone = errors.New("phone number must be exactly 10 digits")
	// ErrPaidBelowNet indicates the tendered amount does not cover the net payable.
	ErrPaidBelowNet = errors.New("paid amount below net payable")
	// ErrBillGeneration wraps a failed persistence call; the session is untouched.
	ErrBillGeneration = errors.New("bill generation failed")
	// ErrInvalidInput is returned when the provided payload is invalid.
	ErrInvalidInput = errors.New("invalid input")
)
