package core

import "errors"

var (
	// ErrInsufficientBalance indicates the exchange rejected the action due to insufficient funds.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrNotFound indicates a lookup legitimately found nothing.
	ErrNotFound = errors.New("not found")
	// ErrInvalidOrder indicates an order failed local validation and was not sent.
	ErrInvalidOrder = errors.New("invalid order")
	// ErrOrderRejected indicates the order was rejected by exchange.
	ErrOrderRejected = errors.New("order rejected")
	// ErrStaleDepth indicates an order book snapshot failed the freshness check.
	ErrStaleDepth = errors.New("stale depth")
	// ErrEmptyBook indicates an order book snapshot had an empty side.
	ErrEmptyBook = errors.New("empty order book")
)
