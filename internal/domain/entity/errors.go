package entity

import "errors"

var (
	// ErrInvalidOwnerAddress is returned when the owner is not a valid address. Fatal to the request.
	ErrInvalidOwnerAddress = errors.New("invalid owner address")

	// ErrBalanceFetch is returned when the owner's balances could not be read. Fatal to the request.
	ErrBalanceFetch = errors.New("balance fetch failed")

	// ErrQuoteUnavailable marks a price lookup that produced no usable quote. Never fatal.
	ErrQuoteUnavailable = errors.New("quote unavailable")

	// ErrUpstreamTimeout marks a price lookup that ran out of time. Treated like ErrQuoteUnavailable.
	ErrUpstreamTimeout = errors.New("upstream timeout")
)
