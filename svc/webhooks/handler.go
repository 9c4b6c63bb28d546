package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/paykit/pkg/logger"
	"github.com/dmitrymomot/paykit/pkg/subscription"
)

const defaultBodyLimit = 1 << 20 // 1 MiB

// Processor applies a raw provider delivery. *subscription.WebhookProcessor
// satisfies it.
type Processor interface {
	Handle(ctx context.Context, providerSlug string, payload []byte, header http.Header) (*subscription.WebhookResult, error)
}

// Handler receives provider webhooks on POST /{provider}.
type Handler struct {
	processor Processor
	log       *slog.Logger
	metrics   *Metrics
	bodyLimit int64
}

// NewHandler creates a webhook handler backed by processor.
func NewHandler(processor Processor, opts ...Option) *Handler {
	h := &Handler{
		processor: processor,
		log:       slog.New(slog.DiscardHandler),
		metrics:   NewMetrics(nil),
		bodyLimit: defaultBodyLimit,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the router to mount under the webhook prefix.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/{provider}", h.receive)
	return r
}

type response struct {
	Received  bool   `json:"received"`
	Outcome   string `json:"outcome,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	provider := chi.URLParam(r, "provider")
	outcome := OutcomeFailed
	defer func() {
		h.metrics.observe(provider, outcome, time.Since(start).Seconds())
	}()

	ctx := r.Context()
	log := h.log.With(logger.Provider(provider))

	r.Body = http.MaxBytesReader(w, r.Body, h.bodyLimit)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		outcome = OutcomeInvalid
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, response{Outcome: outcome, Error: "failed to read request body"})
		return
	}

	res, err := h.processor.Handle(ctx, provider, payload, r.Header)
	if err != nil {
		var status int
		outcome, status = classify(err)
		if status == http.StatusInternalServerError {
			log.ErrorContext(ctx, "webhook processing failed", logger.Error(err))
		} else {
			log.WarnContext(ctx, "webhook rejected", slog.String("outcome", outcome), logger.Error(err))
		}
		writeJSON(w, status, response{Outcome: outcome, Error: http.StatusText(status)})
		return
	}

	outcome = outcomeOf(res)
	resp := response{Received: true, Outcome: outcome}
	if res != nil && res.Event != nil {
		resp.EventType = string(res.Event.Type)
	}
	writeJSON(w, http.StatusOK, resp)
}

// classify maps a processing error to an outcome label and HTTP status.
// Providers retry on 5xx, so only unexpected failures get one.
func classify(err error) (string, int) {
	switch {
	case errors.Is(err, subscription.ErrProviderNotFound):
		return OutcomeUnknownProvider, http.StatusNotFound
	case errors.Is(err, subscription.ErrWebhookVerificationFailed):
		return OutcomeRejected, http.StatusBadRequest
	case errors.Is(err, subscription.ErrInvalidWebhookPayload):
		return OutcomeInvalid, http.StatusBadRequest
	default:
		return OutcomeFailed, http.StatusInternalServerError
	}
}

func outcomeOf(res *subscription.WebhookResult) string {
	switch {
	case res == nil:
		return OutcomeProcessed
	case res.Duplicate:
		return OutcomeDuplicate
	case res.Unmatched:
		return OutcomeUnmatched
	case res.Event != nil && res.Event.Type == subscription.EventIgnored:
		return OutcomeIgnored
	default:
		return OutcomeProcessed
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
