// Package retry implements bounded retry with exponential backoff for model
// calls. Transient failures (timeout, rate limit, 5xx-class, network) are
// retried up to a fixed attempt count; permanent failures (auth, bad
// request) propagate immediately. The wrapped operation has no side effects
// beyond its response, so repeating it is unconditionally safe.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahrav/go-evalrun/internal/llm/configuration"
	llmerrors "github.com/ahrav/go-evalrun/internal/llm/errors"
	"github.com/ahrav/go-evalrun/internal/llm/transport"
)

// Configuration validation errors.
var (
	errMaxAttemptsInvalid     = errors.New("maxAttempts must be greater than 0")
	errInitialIntervalInvalid = errors.New("initialInterval must be greater than 0")
	errMaxIntervalInvalid     = errors.New("maxInterval must be >= initialInterval")
	errMultiplierInvalid      = errors.New("multiplier must be >= 1.0")
)

// Runtime errors.
var (
	errContextCancelledBeforeRetry = errors.New("context cancelled before retry")
	errContextCancelledDuringRetry = errors.New("context cancelled during retry")
)

// Classifier labels a failure as transient (retry) or permanent (propagate).
type Classifier func(error) bool

// RetryAfterProvider is implemented by error types that carry a
// provider-recommended wait before the next attempt.
type RetryAfterProvider interface {
	GetRetryAfter() time.Duration
}

// ExhaustedError wraps the final failure after the attempt budget is spent.
// Attempts is the exact number of provider calls made, so records can report
// it and tests can assert the bound.
type ExhaustedError struct {
	Attempts int
	Err      error
}

// Error formats the exhaustion with its cause.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%v after %d attempts: %v", llmerrors.ErrMaxRetriesExceeded, e.Attempts, e.Err)
}

// Unwrap exposes the final underlying failure.
func (e *ExhaustedError) Unwrap() error { return e.Err }

// Is matches the ErrMaxRetriesExceeded sentinel.
func (e *ExhaustedError) Is(target error) bool { return target == llmerrors.ErrMaxRetriesExceeded }

type retryMiddleware struct {
	config   configuration.RetryConfig
	classify Classifier
	logger   *slog.Logger
	backoff  backoffCalculator
}

// NewMiddleware creates retry middleware with the given policy and
// classifier. A nil classifier defaults to the shared taxonomy
// classification.
func NewMiddleware(cfg configuration.RetryConfig, classify Classifier) (transport.Middleware, error) {
	if cfg.MaxAttempts <= 0 {
		return nil, fmt.Errorf("%w, got %d", errMaxAttemptsInvalid, cfg.MaxAttempts)
	}
	if cfg.InitialInterval <= 0 {
		return nil, fmt.Errorf("%w, got %v", errInitialIntervalInvalid, cfg.InitialInterval)
	}
	if cfg.MaxInterval < cfg.InitialInterval {
		return nil, fmt.Errorf("%w, MaxInterval: %v, InitialInterval: %v",
			errMaxIntervalInvalid, cfg.MaxInterval, cfg.InitialInterval)
	}
	if cfg.Multiplier < 1.0 {
		return nil, fmt.Errorf("%w, got %f", errMultiplierInvalid, cfg.Multiplier)
	}
	if classify == nil {
		classify = llmerrors.IsTransient
	}

	rm := &retryMiddleware{
		config:   cfg,
		classify: classify,
		logger:   slog.Default().With("component", "retry"),
		backoff: backoffCalculator{
			initial:    cfg.InitialInterval,
			max:        cfg.MaxInterval,
			multiplier: cfg.Multiplier,
			jitter:     cfg.UseJitter,
		},
	}
	return rm.middleware(), nil
}

func (r *retryMiddleware) middleware() transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			// Fail fast if the run was already cancelled.
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", errContextCancelledBeforeRetry, ctx.Err())
			default:
			}

			var lastErr error
			for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
				resp, err := next.Handle(ctx, req)
				if err == nil {
					resp.Attempts = attempt
					if attempt > 1 {
						r.logger.Info("request succeeded after retry",
							"attempt", attempt,
							"provider", req.Provider,
							"model", req.Model)
					}
					return resp, nil
				}

				if !r.classify(err) {
					r.logger.Debug("permanent error, not retrying",
						"error", err,
						"attempt", attempt,
						"provider", req.Provider)
					return nil, err
				}
				lastErr = err

				if attempt == r.config.MaxAttempts {
					break
				}

				backoff := r.backoff.next(attempt, retryAfterHint(err))
				r.logger.Debug("retrying after backoff",
					"attempt", attempt,
					"backoff", backoff,
					"error", err,
					"provider", req.Provider)

				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return nil, fmt.Errorf("%w: %w", errContextCancelledDuringRetry, ctx.Err())
				}
			}

			return nil, &ExhaustedError{Attempts: r.config.MaxAttempts, Err: lastErr}
		})
	}
}

// retryAfterHint extracts provider-recommended backoff, zero when absent.
func retryAfterHint(err error) time.Duration {
	var provider RetryAfterProvider
	if errors.As(err, &provider) {
		return provider.GetRetryAfter()
	}
	return 0
}
