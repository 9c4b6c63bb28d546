package webhook

import (
	"net/http"
	"time"
)

// Attempt describes one delivery try, passed to a delivery hook.
type Attempt struct {
	URL        string
	DeliveryID string
	Number     int
	StatusCode int
	Duration   time.Duration
	Err        error
}

// Option configures a Sender.
type Option func(*Sender)

func WithHTTPClient(c *http.Client) Option {
	return func(s *Sender) {
		if c != nil {
			s.client = c
		}
	}
}

// WithSecret signs every delivery with secret.
func WithSecret(secret string) Option {
	return func(s *Sender) { s.secret = secret }
}

// WithRetries sets how many times a failed delivery is retried.
func WithRetries(n int) Option {
	return func(s *Sender) {
		if n >= 0 {
			s.retries = n
		}
	}
}

func WithBackoff(b Backoff) Option {
	return func(s *Sender) {
		if b != nil {
			s.backoff = b
		}
	}
}

// WithTimeout bounds each HTTP attempt.
func WithTimeout(d time.Duration) Option {
	return func(s *Sender) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithCircuitBreaker guards the endpoint with cb.
func WithCircuitBreaker(cb *CircuitBreaker) Option {
	return func(s *Sender) { s.breaker = cb }
}

// WithAttemptHook is called after every attempt.
func WithAttemptHook(fn func(Attempt)) Option {
	return func(s *Sender) { s.hook = fn }
}
