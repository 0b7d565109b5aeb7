package service

import "errors"

var (
	ErrProductNotFound  = errors.New("product not found")
	ErrEmptyCart        = errors.New("cart is empty")
	ErrCashRequired     = errors.New("cash paid is required")
	ErrInvalidCash      = errors.New("cash paid must be a non-negative amount")
	ErrCheckoutInFlight = errors.New("checkout already in progress")
	ErrResetInFlight    = errors.New("reset already in progress")
	ErrBusy             = errors.New("till is settling or resetting")
	ErrStaleResult      = errors.New("result arrived after the session moved on")
)
