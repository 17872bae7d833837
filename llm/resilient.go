package llm

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// DefaultRetryDelay is the fixed wait before the single retry of a rate-limited call.
const DefaultRetryDelay = 2 * time.Second

// ResilientProvider applies the retry policy around another Provider:
// a rate-limited call is retried once after a fixed delay, a not-found model
// is replaced by the fallback model once, and anything else fails at once.
type ResilientProvider struct {
	next          Provider
	retryDelay    time.Duration
	fallbackModel string
	limiter       *rate.Limiter
	sleep         func(ctx context.Context, d time.Duration) error
}

// ResilientOption configures a ResilientProvider.
type ResilientOption func(*ResilientProvider)

// WithRetryDelay sets the delay before retrying a rate-limited call.
func WithRetryDelay(d time.Duration) ResilientOption {
	return func(r *ResilientProvider) {
		if d >= 0 {
			r.retryDelay = d
		}
	}
}

// WithFallbackModel sets the model used when the requested one does not exist.
func WithFallbackModel(model string) ResilientOption {
	return func(r *ResilientProvider) {
		r.fallbackModel = model
	}
}

// WithRequestsPerMinute paces calls to the provider. Zero disables pacing.
func WithRequestsPerMinute(n int) ResilientOption {
	return func(r *ResilientProvider) {
		if n > 0 {
			r.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), 1)
		}
	}
}

// NewResilientProvider wraps next.
func NewResilientProvider(next Provider, opts ...ResilientOption) *ResilientProvider {
	r := &ResilientProvider{
		next:       next,
		retryDelay: DefaultRetryDelay,
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Complete calls the wrapped provider under the retry policy.
func (r *ResilientProvider) Complete(ctx context.Context, prompt string, cfg Config) (string, error) {
	retried, fellBack := false, false
	for {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				return "", err
			}
		}

		out, err := r.next.Complete(ctx, prompt, cfg)
		if err == nil {
			return out, nil
		}

		switch kind := KindOf(err); {
		case kind == RateLimited && !retried:
			retried = true
			slog.Warn("llm rate limited, retrying once", "model", cfg.Model, "delay", r.retryDelay)
			if err := r.sleep(ctx, r.retryDelay); err != nil {
				return "", err
			}
			continue
		case kind == NotFound && !fellBack && r.fallbackModel != "" && cfg.Model != r.fallbackModel:
			fellBack = true
			slog.Warn("llm model not found, using fallback", "model", cfg.Model, "fallback", r.fallbackModel)
			cfg.Model = r.fallbackModel
			continue
		}
		return "", err
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
