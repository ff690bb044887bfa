package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors, compared with errors.Is(). The math and calculator layers
// only raise; the ledger and the close-order state machine are the places that
// classify retryable vs terminal.
var (
	// ErrNotFound is returned when a position, ledger, or order does not exist.
	ErrNotFound = errors.New("not found")

	// ErrChainUnavailable is a transient upstream failure (RPC timeout, node
	// behind). Retryable.
	ErrChainUnavailable = errors.New("chain unavailable")

	// ErrDataCorrupt flags inconsistent on-chain values (all-zero state for a
	// live position, burned NFT). Not retryable without review.
	ErrDataCorrupt = errors.New("on-chain data corrupt")

	// ErrUpstreamRateLimited is returned when the raw event source throttles a
	// ledger rebuild. The previous ledger stays intact.
	ErrUpstreamRateLimited = errors.New("upstream rate limited")

	// ErrComplianceViolation rejects a swap intent whose target is not in the
	// signed strategy intent's allow list. Terminal; no signing is attempted.
	ErrComplianceViolation = errors.New("swap intent violates signed strategy")

	// ErrExecutionFailed wraps signer/broadcast failures. Retryable up to the
	// configured ceiling.
	ErrExecutionFailed = errors.New("execution failed")

	// ErrDuplicateActiveSlot is returned when an ACTIVE order already occupies
	// the (position, orderType) slot.
	ErrDuplicateActiveSlot = errors.New("active order already exists for slot")
)

// RangeError is raised by the fixed-point math when an input is outside its
// legal domain (tick bounds, zero price).
type RangeError struct {
	What  string
	Value string
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("out of range: %s = %s", e.What, e.Value)
}

// ValidationError rejects a request before any computation happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// RateLimitedError rejects a bulk refresh while the cooldown has not elapsed.
// RetryAfter tells the caller when the next attempt can succeed.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: retry after %s", e.RetryAfter)
}

// IsRetryable reports whether the failure is transient and worth another
// attempt (per the taxonomy: chain glitches and execution failures are,
// everything else is not).
func IsRetryable(err error) bool {
	return errors.Is(err, ErrChainUnavailable) || errors.Is(err, ErrExecutionFailed)
}

// IsTerminal reports whether the failure must stop the order's lifecycle
// without further attempts.
func IsTerminal(err error) bool {
	if err == nil {
		return false
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return true
	}
	return errors.Is(err, ErrComplianceViolation) || errors.Is(err, ErrDataCorrupt)
}

// IsNotFound reports whether err is the domain "does not exist" failure.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
