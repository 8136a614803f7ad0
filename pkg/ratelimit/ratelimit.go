// Package ratelimit provides one adaptive token bucket per outbound target
// (a URL host or a repository clone URL), plus the retry/backoff policy the
// acquisition and header-analyzer phases apply to that target's requests.
package ratelimit

import (
	"errors"
	"math"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Strategy is a backoff growth curve.
type Strategy string

const (
	Fixed       Strategy = "fixed"
	Linear      Strategy = "linear"
	Exponential Strategy = "exponential"
)

// Config configures one target's bucket.
type Config struct {
	RequestsPerSecond        float64
	BurstLimit               int
	Strategy                 Strategy
	BaseBackoff              time.Duration
	MaxBackoff               time.Duration
	TargetErrorRate          float64
	AdaptiveAdjustmentFactor float64
	Adaptive                 bool
}

// DefaultConfig matches the spec's defaults for a bucket that hasn't been
// explicitly tuned.
var DefaultConfig = Config{
	RequestsPerSecond:        5,
	BurstLimit:               10,
	Strategy:                 Exponential,
	BaseBackoff:              500 * time.Millisecond,
	MaxBackoff:               30 * time.Second,
	TargetErrorRate:          0.05,
	AdaptiveAdjustmentFactor: 0.8,
	Adaptive:                 true,
}

// Decision is the result of a rate-limit check.
type Decision struct {
	Allowed         bool
	Delay           time.Duration
	Reason          string
	TokensRemaining float64
	ResetTime       time.Time
}

// Event is published whenever a bucket's effective rate changes or a
// backoff is applied, so a subscriber (e.g. pkg/metrics) can observe the
// adjustment without the bucket holding a callback list.
type Event struct {
	TargetKey string
	Kind      string // "rate_adjusted" | "backoff_applied"
	Detail    map[string]any
	At        time.Time
}

const slidingWindow = 5 * time.Minute

type outcome struct {
	at      time.Time
	isError bool
}

// Bucket is one target's adaptive token bucket and backoff state.
type Bucket struct {
	mu           sync.Mutex
	cfg          Config
	limiter      *rate.Limiter
	outcomes     []outcome
	failureCount int
	backoffUntil time.Time
	events       chan Event
	targetKey    string
}

// NewBucket builds a Bucket for targetKey. events may be nil; if non-nil it
// must be read by the caller or adjustments will block once full (the
// channel is meant to be created with a small buffer and a dropping
// subscriber, per spec §5 "subscribers may drop messages under pressure").
func NewBucket(targetKey string, cfg Config, events chan Event) *Bucket {
	return &Bucket{
		targetKey: targetKey,
		cfg:       cfg,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.BurstLimit),
		events:    events,
	}
}

// Check reports whether a request against this bucket's target may proceed
// now. It never blocks; the caller honors Delay itself.
func (b *Bucket) Check(now time.Time) Decision {
	b.mu.Lock()
	defer b.mu.Unlock()

	if now.Before(b.backoffUntil) {
		return Decision{
			Allowed:   false,
			Delay:     b.backoffUntil.Sub(now),
			Reason:    "backoff",
			ResetTime: b.backoffUntil,
		}
	}

	tokens := b.limiter.TokensAt(now)
	if tokens < 1 {
		rps := float64(b.limiter.Limit())
		var delay time.Duration
		if rps > 0 {
			delay = time.Duration((1 - tokens) / rps * float64(time.Second))
		}
		return Decision{
			Allowed:         false,
			Delay:           delay,
			Reason:          "rate_limit",
			TokensRemaining: tokens,
			ResetTime:       now.Add(delay),
		}
	}

	b.limiter.AllowN(now, 1)
	return Decision{
		Allowed:         true,
		TokensRemaining: b.limiter.TokensAt(now),
	}
}

// RecordOutcome feeds a completed request's result back into the bucket:
// its status code (0 if a transport-level error, not an HTTP response),
// whether it should count as an error for the adaptive window, and whether
// it should trigger backoff per spec §4.5 triggers.
func (b *Bucket) RecordOutcome(now time.Time, statusCode int, transportErr error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	isErr := isErrorOutcome(statusCode, transportErr)
	b.outcomes = append(b.outcomes, outcome{at: now, isError: isErr})
	b.outcomes = pruneWindow(b.outcomes, now)

	if shouldBackoff(statusCode, transportErr) {
		b.failureCount++
		delay := backoffDelay(b.cfg.Strategy, b.cfg.BaseBackoff, b.cfg.MaxBackoff, b.failureCount)
		b.backoffUntil = now.Add(delay)
		b.publish(Event{TargetKey: b.targetKey, Kind: "backoff_applied", At: now,
			Detail: map[string]any{"delay": delay, "failure_count": b.failureCount}})
	} else {
		b.failureCount = 0
	}

	if b.cfg.Adaptive {
		b.adjust(now)
	}
}

func (b *Bucket) adjust(now time.Time) {
	total := len(b.outcomes)
	if total < 10 {
		return
	}
	errs := 0
	for _, o := range b.outcomes {
		if o.isError {
			errs++
		}
	}
	errRate := float64(errs) / float64(total)
	current := float64(b.limiter.Limit())
	var next float64

	switch {
	case errRate > b.cfg.TargetErrorRate:
		next = math.Max(1, current*b.cfg.AdaptiveAdjustmentFactor)
	case errRate < b.cfg.TargetErrorRate/2:
		next = math.Min(float64(b.cfg.BurstLimit), current*1.2)
	default:
		return
	}
	if next == current {
		return
	}
	b.limiter.SetLimitAt(now, rate.Limit(next))
	b.publish(Event{TargetKey: b.targetKey, Kind: "rate_adjusted", At: now,
		Detail: map[string]any{"from": current, "to": next, "error_rate": errRate}})
}

func (b *Bucket) publish(e Event) {
	if b.events == nil {
		return
	}
	select {
	case b.events <- e:
	default:
	}
}

func pruneWindow(outcomes []outcome, now time.Time) []outcome {
	cutoff := now.Add(-slidingWindow)
	i := 0
	for i < len(outcomes) && outcomes[i].at.Before(cutoff) {
		i++
	}
	return outcomes[i:]
}

func isErrorOutcome(statusCode int, transportErr error) bool {
	if transportErr != nil {
		return true
	}
	return statusCode >= 500 || statusCode == 429 || statusCode == 408
}

func shouldBackoff(statusCode int, transportErr error) bool {
	if statusCode == 429 {
		return true
	}
	if statusCode >= 500 {
		return true
	}
	switch statusCode {
	case 408, 520, 521, 522, 523, 524:
		return true
	}
	if transportErr != nil {
		return isRetryableNetworkError(transportErr)
	}
	return false
}

// isRetryableNetworkError matches the union in spec §4.5: connection
// reset/timeout/refused, DNS failures, unreachable host/network, broken
// pipe, and aborted connections.
func isRetryableNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, substr := range []string{
		"connection reset", "connection refused", "no such host",
		"network is unreachable", "host is unreachable", "broken pipe",
		"connection aborted", "timeout",
	} {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}

func backoffDelay(strategy Strategy, base, max time.Duration, failureCount int) time.Duration {
	var d time.Duration
	switch strategy {
	case Linear:
		d = base * time.Duration(failureCount)
	case Exponential:
		d = base * time.Duration(math.Pow(2, float64(failureCount-1)))
	default: // Fixed
		d = base
	}
	if d > max {
		d = max
	}
	return d
}

// RetryableStatus reports whether an HTTP status code is in the retryable
// set spec §4.5 defines, independent of any particular bucket's state.
func RetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout,
		520, 521, 522, 523, 524:
		return true
	}
	return false
}
