package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientData means a window holds fewer closed candles than required.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrStaleBuffer means a gap was detected and a backfill is pending.
	ErrStaleBuffer = errors.New("stale buffer")
	// ErrUpstreamTimeout means an external call exceeded its deadline.
	ErrUpstreamTimeout = errors.New("upstream timeout")
	// ErrComputation means indicator math produced a non-finite value.
	ErrComputation = errors.New("computation error")
	// ErrNoData means there is no usable candle at all for a key.
	ErrNoData = errors.New("no data")

	ErrNotContiguous    = errors.New("backfill not contiguous")
	ErrBackfillNotNewer = errors.New("backfill not newer than buffer")
)

// InsufficientDataError carries the shortfall.
type InsufficientDataError struct {
	Have int
	Need int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: have %d candles, need %d (short by %d)", e.Have, e.Need, e.Shortfall())
}

// Shortfall is the number of missing candles.
func (e *InsufficientDataError) Shortfall() int { return e.Need - e.Have }

func (e *InsufficientDataError) Is(target error) bool { return target == ErrInsufficientData }

// ComputationError reports a NaN or infinite indicator output.
type ComputationError struct {
	Indicator string
	Value     float64
}

func (e *ComputationError) Error() string {
	return fmt.Sprintf("computation error: %s produced %v", e.Indicator, e.Value)
}

func (e *ComputationError) Is(target error) bool { return target == ErrComputation }

// UpstreamError wraps a failed external call.
type UpstreamError struct {
	Service   string
	Retryable bool
	Timeout   bool
	Err       error
}

func (e *UpstreamError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s: upstream timeout: %v", e.Service, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstreamTimeout && e.Timeout
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrUpstreamTimeout) {
		return true
	}
	var ue *UpstreamError
	return errors.As(err, &ue) && ue.Retryable
}
