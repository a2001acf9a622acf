package service

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrInvalidProduct    = errors.New("product must have either a regular price or sale price")
	ErrForbidden         = errors.New("access denied")
	ErrIllegalTransition = errors.New("illegal order status transition")
	ErrConflict          = errors.New("concurrent update, please retry")
)
