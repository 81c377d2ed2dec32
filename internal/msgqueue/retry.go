package msgqueue

import "time"

// Strategy selects how retry delays grow with the attempt count.
type Strategy string

const (
	RetryImmediate     Strategy = "immediate"
	RetryExponential   Strategy = "exponential_backoff"
	RetryLinear        Strategy = "linear_backoff"
	RetryFixedInterval Strategy = "fixed_interval"
	RetryIntervalTable Strategy = "interval_table"
)

// DefaultRetryIntervals backs the interval_table strategy, in seconds.
var DefaultRetryIntervals = []int{1, 5, 15, 60}

const maxExponentialDelay = 300 * time.Second

// RetryDelay computes the wait before retry number retryCount.
// Exponential backoff caps at five minutes; the interval table clamps
// to its last entry.
func RetryDelay(strategy Strategy, retryCount int, intervals []int) time.Duration {
	switch strategy {
	case RetryImmediate:
		return 0
	case RetryExponential:
		d := time.Duration(1<<uint(retryCount)) * time.Second
		if d > maxExponentialDelay {
			d = maxExponentialDelay
		}
		return d
	case RetryLinear:
		return time.Duration(retryCount) * 30 * time.Second
	case RetryFixedInterval:
		return 60 * time.Second
	default:
		if len(intervals) == 0 {
			intervals = DefaultRetryIntervals
		}
		idx := retryCount
		if idx >= len(intervals) {
			idx = len(intervals) - 1
		}
		return time.Duration(intervals[idx]) * time.Second
	}
}
