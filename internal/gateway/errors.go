package gateway

import "errors"

// ErrNotFound is returned when the device, terminal, item or their
// binding does not exist in the inventory — the httpapi layer maps this
// to HTTP 404.
var ErrNotFound = errors.New("gateway: not found")

// ErrTimeout is returned when no reply arrives within the request
// timeout — mapped to HTTP 504.
var ErrTimeout = errors.New("gateway: timed out waiting for device reply")
