package reliability

import "time"

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsAuthHTTPStatus classifies credential rejections, which no amount of
// retrying can fix.
func IsAuthHTTPStatus(code int) bool {
	return code == 401 || code == 403
}

// ReconnectPolicy yields the delay before a reconnect attempt. Delays are
// monotonically non-decreasing in the attempt number. A bounded policy
// reports false once attempts are exhausted, at which point the caller must
// surface a terminal failure instead of retrying.
type ReconnectPolicy interface {
	// Delay returns the wait before attempt n (1-based) and whether the
	// attempt is permitted at all.
	Delay(attempt int) (time.Duration, bool)
}

// FixedDelay retries forever with a constant delay.
type FixedDelay struct {
	Interval time.Duration
}

func (p FixedDelay) Delay(attempt int) (time.Duration, bool) {
	if attempt < 1 {
		return 0, false
	}
	return p.Interval, true
}

// ExponentialBackoff doubles the delay per attempt up to Cap, and refuses
// attempts beyond MaxAttempts (0 means unbounded).
type ExponentialBackoff struct {
	Base        time.Duration
	Cap         time.Duration
	MaxAttempts int
}

func (p ExponentialBackoff) Delay(attempt int) (time.Duration, bool) {
	if attempt < 1 {
		return 0, false
	}
	if p.MaxAttempts > 0 && attempt > p.MaxAttempts {
		return 0, false
	}
	d := p.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.Cap > 0 && d >= p.Cap {
			d = p.Cap
			break
		}
	}
	return d, true
}
