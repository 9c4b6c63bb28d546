package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const userAgent = "paykit-webhook/1"

// Sender posts signed JSON payloads to an endpoint, retrying transient
// failures with backoff.
type Sender struct {
	client  *http.Client
	secret  string
	retries int
	backoff Backoff
	timeout time.Duration
	breaker *CircuitBreaker
	hook    func(Attempt)
	now     func() time.Time
}

// NewSender creates a Sender. Defaults: 3 retries, exponential backoff
// from 1s, 10s per attempt.
func NewSender(opts ...Option) *Sender {
	s := &Sender{
		client:  &http.Client{},
		retries: 3,
		backoff: ExponentialBackoff{Initial: time.Second, Max: 30 * time.Second, Jitter: 0.1},
		timeout: 10 * time.Second,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Send marshals data and posts it to endpoint. deliveryID travels in
// X-Paykit-Delivery so the receiver can drop duplicates across retries.
func (s *Sender) Send(ctx context.Context, endpoint, deliveryID string, data any) error {
	if err := validateURL(endpoint); err != nil {
		return err
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}
	if s.breaker != nil && !s.breaker.Allow() {
		return ErrCircuitOpen
	}

	var lastErr error
	for attempt := 0; attempt <= s.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return errors.Join(ctx.Err(), lastErr)
			case <-time.After(s.backoff.Delay(attempt)):
			}
		}

		status, took, err := s.post(ctx, endpoint, deliveryID, payload)
		if s.hook != nil {
			s.hook(Attempt{URL: endpoint, DeliveryID: deliveryID, Number: attempt + 1, StatusCode: status, Duration: took, Err: err})
		}
		if err == nil {
			if s.breaker != nil {
				s.breaker.RecordSuccess()
			}
			return nil
		}
		if s.breaker != nil {
			s.breaker.RecordFailure()
		}
		if permanent(status) {
			return errors.Join(ErrPermanentFailure, err)
		}
		lastErr = err
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrDeliveryFailed, s.retries+1, lastErr)
}

func (s *Sender) post(ctx context.Context, endpoint, deliveryID string, payload []byte) (int, time.Duration, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if deliveryID != "" {
		req.Header.Set(HeaderDelivery, deliveryID)
	}
	if s.secret != "" {
		ts := s.now()
		req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts.Unix(), 10))
		req.Header.Set(HeaderSignature, Sign(s.secret, payload, ts))
	}

	resp, err := s.client.Do(req)
	took := time.Since(start)
	if err != nil {
		return 0, took, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return resp.StatusCode, took, nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	msg := strings.TrimSpace(strings.ReplaceAll(string(body), "\n", " "))
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	return resp.StatusCode, took, fmt.Errorf("endpoint returned %d: %s", resp.StatusCode, msg)
}

// permanent reports whether a status will not change on retry.
func permanent(status int) bool {
	if status < 400 || status >= 500 {
		return false
	}
	switch status {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return false
	}
	return true
}

func validateURL(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return errors.Join(ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: host is required", ErrInvalidURL)
	}
	return nil
}
