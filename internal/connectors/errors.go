package connectors

import (
	"errors"
	"fmt"
	"time"
)

var ErrUnknownTransport = errors.New("unknown maintenance transport")

// ThrottleError — модуль обслуживания попросил повторить позже.
// ReliabilityWrapper использует RetryAfter вместо экспоненциального бэкоффа.
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

func (e *ThrottleError) Unwrap() error { return e.Cause }
