package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/openai/openai-go"
	"github.com/sony/gobreaker"
	"google.golang.org/genai"

	"github.com/mohamadbazzy/Agentic-Rag/internal/config"
	"github.com/mohamadbazzy/Agentic-Rag/internal/metrics"
)

// ErrUnavailable is returned while the circuit breaker is open.
var ErrUnavailable = errors.New("llm temporarily unavailable")

// ResilientModel wraps a chat model with a circuit breaker, a per-call
// timeout and bounded retries with exponential backoff.
type ResilientModel struct {
	inner     model.BaseChatModel
	name      string
	cb        *gobreaker.CircuitBreaker
	retries   int
	timeout   time.Duration
	baseDelay time.Duration
	metrics   *metrics.Collector
}

var _ model.BaseChatModel = (*ResilientModel)(nil)

// ResilienceConfig configures NewResilientModel.
type ResilienceConfig struct {
	Breaker config.BreakerConfig
	Retries int
	Timeout time.Duration
	// BaseDelay is the first backoff delay. Defaults to 200ms.
	BaseDelay time.Duration
}

// NewResilientModel wraps inner. name labels metrics and breaker logs.
func NewResilientModel(inner model.BaseChatModel, name string, cfg ResilienceConfig, m *metrics.Collector) *ResilientModel {
	b := cfg.Breaker
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: b.MaxRequests,
		Interval:    b.Interval,
		Timeout:     b.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < b.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= b.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("LLM circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			m.SetBreakerOpen(name, to == gobreaker.StateOpen)
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellation says nothing about provider health.
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	delay := cfg.BaseDelay
	if delay <= 0 {
		delay = 200 * time.Millisecond
	}
	return &ResilientModel{
		inner:     inner,
		name:      name,
		cb:        cb,
		retries:   max(cfg.Retries, 0),
		timeout:   cfg.Timeout,
		baseDelay: delay,
		metrics:   m,
	}
}

// State reports the breaker state.
func (r *ResilientModel) State() gobreaker.State {
	return r.cb.State()
}

// Generate calls the wrapped model, retrying transient failures.
func (r *ResilientModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	var lastErr error
	for attempt := 0; attempt <= r.retries; attempt++ {
		if attempt > 0 {
			wait := r.baseDelay * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		start := time.Now()
		out, err := r.cb.Execute(func() (any, error) {
			callCtx := ctx
			if r.timeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, r.timeout)
				defer cancel()
			}
			return r.inner.Generate(callCtx, input, opts...)
		})
		if err == nil {
			r.metrics.RecordLLM(r.name, "ok", time.Since(start))
			return out.(*schema.Message), nil
		}

		lastErr = err
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			r.metrics.RecordLLM(r.name, "rejected", time.Since(start))
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		r.metrics.RecordLLM(r.name, "error", time.Since(start))
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !retryable(err) {
			return nil, fmt.Errorf("%s: %w", r.name, err)
		}
		slog.Warn("LLM call failed", "model", r.name, "attempt", attempt+1, "error", err)
	}
	return nil, fmt.Errorf("%s failed after %d attempts: %w", r.name, r.retries+1, lastErr)
}

// retryable reports whether err may clear up on another attempt. Provider
// errors are judged by their HTTP status; errors that carry none, such as
// dropped connections, are retried.
func retryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	code, ok := providerStatus(err)
	if !ok {
		return true
	}
	switch code {
	case http.StatusRequestTimeout, http.StatusConflict, http.StatusTooManyRequests:
		return true
	}
	return code >= http.StatusInternalServerError
}

func providerStatus(err error) (int, bool) {
	var oaErr *openai.Error
	if errors.As(err, &oaErr) {
		return oaErr.StatusCode, true
	}
	var antErr *anthropic.Error
	if errors.As(err, &antErr) {
		return antErr.StatusCode, true
	}
	var gErr genai.APIError
	if errors.As(err, &gErr) {
		return gErr.Code, true
	}
	return 0, false
}

// Stream opens a stream through the breaker. Streams are not retried once
// opened.
func (r *ResilientModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	start := time.Now()
	out, err := r.cb.Execute(func() (any, error) {
		return r.inner.Stream(ctx, input, opts...)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			r.metrics.RecordLLM(r.name, "rejected", time.Since(start))
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		r.metrics.RecordLLM(r.name, "error", time.Since(start))
		return nil, err
	}
	r.metrics.RecordLLM(r.name, "ok", time.Since(start))
	return out.(*schema.StreamReader[*schema.Message]), nil
}
