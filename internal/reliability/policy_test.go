package reliability

import (
	"testing"
	"time"
)

func TestFixedDelayRetriesForever(t *testing.T) {
	p := FixedDelay{Interval: time.Second}
	for _, attempt := range []int{1, 2, 50, 10000} {
		d, ok := p.Delay(attempt)
		if !ok {
			t.Fatalf("Delay(%d) ok = false, want true", attempt)
		}
		if d != time.Second {
			t.Fatalf("Delay(%d) = %v, want 1s", attempt, d)
		}
	}
}

func TestExponentialBackoffGrowthAndCap(t *testing.T) {
	p := ExponentialBackoff{Base: time.Second, Cap: 4 * time.Second}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second}
	for i, w := range want {
		d, ok := p.Delay(i + 1)
		if !ok {
			t.Fatalf("Delay(%d) ok = false, want true", i+1)
		}
		if d != w {
			t.Fatalf("Delay(%d) = %v, want %v", i+1, d, w)
		}
	}
}

func TestExponentialBackoffMonotone(t *testing.T) {
	p := ExponentialBackoff{Base: 250 * time.Millisecond, Cap: 30 * time.Second}
	prev := time.Duration(0)
	for attempt := 1; attempt <= 12; attempt++ {
		d, ok := p.Delay(attempt)
		if !ok {
			t.Fatalf("Delay(%d) ok = false, want true", attempt)
		}
		if d < prev {
			t.Fatalf("Delay(%d) = %v decreased from %v", attempt, d, prev)
		}
		prev = d
	}
}

func TestExponentialBackoffStopsAfterMaxAttempts(t *testing.T) {
	p := ExponentialBackoff{Base: time.Second, Cap: time.Minute, MaxAttempts: 3}
	for attempt := 1; attempt <= 3; attempt++ {
		if _, ok := p.Delay(attempt); !ok {
			t.Fatalf("Delay(%d) ok = false within budget", attempt)
		}
	}
	if _, ok := p.Delay(4); ok {
		t.Fatalf("Delay(4) ok = true, want exhausted")
	}
}

func TestRetryableHTTPStatus(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504} {
		if !IsRetryableHTTPStatus(code) {
			t.Fatalf("IsRetryableHTTPStatus(%d) = false, want true", code)
		}
	}
	for _, code := range []int{200, 204, 400, 401, 403, 404} {
		if IsRetryableHTTPStatus(code) {
			t.Fatalf("IsRetryableHTTPStatus(%d) = true, want false", code)
		}
	}
	if !IsAuthHTTPStatus(401) || !IsAuthHTTPStatus(403) || IsAuthHTTPStatus(500) {
		t.Fatalf("IsAuthHTTPStatus misclassified")
	}
}
