package gateway

import (
	"sync"
	"time"
)

// ClientRateLimiter implements sliding window rate limiting per client
type ClientRateLimiter struct {
	mu                 sync.Mutex
	requestsPerMinute  int
	maxConcurrent      int
	requests           []time.Time
	concurrentRequests int
}

// NewClientRateLimiterWithLimits creates a rate limiter with custom limits
func NewClientRateLimiterWithLimits(requestsPerMinute, maxConcurrent int) *ClientRateLimiter {
	return &ClientRateLimiter{
		requestsPerMinute: requestsPerMinute,
		maxConcurrent:     maxConcurrent,
		requests:          make([]time.Time, 0),
	}
}

// Acquire admits a request if both limits allow it and records its start.
// The returned reason is empty on success.
func (r *ClientRateLimiter) Acquire() (bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()

	if r.concurrentRequests >= r.maxConcurrent {
		return false, "too many concurrent requests"
	}

	r.prune(now)
	if len(r.requests) >= r.requestsPerMinute {
		return false, "rate limit exceeded"
	}

	r.requests = append(r.requests, now)
	r.concurrentRequests++
	return true, ""
}

// Release records the end of an admitted request
func (r *ClientRateLimiter) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.concurrentRequests > 0 {
		r.concurrentRequests--
	}
}

// Idle reports whether the limiter holds no recent or in-flight requests
func (r *ClientRateLimiter) Idle() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prune(time.Now())
	return len(r.requests) == 0 && r.concurrentRequests == 0
}

// GetStats returns current rate limiter statistics
func (r *ClientRateLimiter) GetStats() (requestCount, concurrentCount int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prune(time.Now())
	return len(r.requests), r.concurrentRequests
}

func (r *ClientRateLimiter) prune(now time.Time) {
	cutoff := now.Add(-time.Minute)
	valid := r.requests[:0]
	for _, reqTime := range r.requests {
		if reqTime.After(cutoff) {
			valid = append(valid, reqTime)
		}
	}
	r.requests = valid
}

// limiterSet hands out one limiter per client key (remote host)
type limiterSet struct {
	mu                sync.Mutex
	requestsPerMinute int
	maxConcurrent     int
	limiters          map[string]*ClientRateLimiter
}

func newLimiterSet(requestsPerMinute, maxConcurrent int) *limiterSet {
	return &limiterSet{
		requestsPerMinute: requestsPerMinute,
		maxConcurrent:     maxConcurrent,
		limiters:          make(map[string]*ClientRateLimiter),
	}
}

func (s *limiterSet) get(key string) *ClientRateLimiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.limiters[key]; ok {
		return l
	}
	if len(s.limiters) > 1024 {
		for k, l := range s.limiters {
			if l.Idle() {
				delete(s.limiters, k)
			}
		}
	}
	l := NewClientRateLimiterWithLimits(s.requestsPerMinute, s.maxConcurrent)
	s.limiters[key] = l
	return l
}
