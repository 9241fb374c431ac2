package models

import "errors"

var (
	ErrTenantRequired       = errors.New("business id is required")
	ErrItemNotFound         = errors.New("item not found")
	ErrItemInactive         = errors.New("item is inactive")
	ErrInvalidQuantity      = errors.New("quantity must be greater than zero")
	ErrInvalidSellPrice     = errors.New("sell price must not be negative")
	ErrInvalidBuyPrice      = errors.New("buy price must not be negative")
	ErrMissingPaymentMethod = errors.New("payment method is required")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrInsufficientPayment  = errors.New("amount tendered is less than total amount")
	ErrCustomerRequired     = errors.New("customer is required for credit sales")
	ErrCustomerNotFound     = errors.New("customer not found")
	ErrInvalidReason        = errors.New("invalid adjustment reason")
	ErrEmptySale            = errors.New("sale must have at least one line")
	ErrDuplicateSale        = errors.New("sale with this idempotency key already exists")
	ErrBatchNotFound        = errors.New("batch not found")
)
