// services/errors.go
package services

import "errors"

// Business-rule sentinels. Handlers map these onto client-visible
// {success:false, message} responses; everything else is a server error.
var (
	// ErrInsufficientCapacity is returned when a rent request asks for more
	// hashrate than is currently available.
	ErrInsufficientCapacity = errors.New("insufficient available hashrate")

	// ErrCapacityCorrupted means a release would drive rented hashrate
	// negative. The offending item is aborted and logged; other items in the
	// same sweep keep going.
	ErrCapacityCorrupted = errors.New("capacity release would make rented hashrate negative")

	// ErrInsufficientBalance is returned when a withdrawal (or a review of a
	// rejected withdrawal) exceeds the wallet's available BTC.
	ErrInsufficientBalance = errors.New("insufficient available BTC")

	// ErrNotFound covers missing rows on user-addressed operations.
	ErrNotFound = errors.New("not found")

	// ErrValidation covers malformed input.
	ErrValidation = errors.New("invalid input")

	// ErrUpstreamUnavailable wraps transient upstream failures. Background
	// jobs log and retry next tick; synchronous endpoints surface a server
	// error.
	ErrUpstreamUnavailable = errors.New("upstream service unavailable")

	// ErrInterruptionOpen is returned by Start when another interruption is
	// still open.
	ErrInterruptionOpen = errors.New("an interruption is already open")

	// ErrNoOpenInterruption is returned by End when nothing is open.
	ErrNoOpenInterruption = errors.New("no open interruption")
)
