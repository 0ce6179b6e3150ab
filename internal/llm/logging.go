package llm

import (
	"context"
	"log/slog"
	"time"

	llmerrors "github.com/ahrav/go-evalrun/internal/llm/errors"
	"github.com/ahrav/go-evalrun/internal/llm/transport"
)

// NewLoggingMiddleware logs every model call with its outcome. Outermost in
// the chain so it observes cache hits and final retry outcomes alike.
func NewLoggingMiddleware() transport.Middleware {
	logger := slog.Default().With("component", "llm")
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			start := time.Now()
			resp, err := next.Handle(ctx, req)
			elapsed := time.Since(start)

			if err != nil {
				logger.Warn("model call failed",
					"operation", req.Operation,
					"provider", req.Provider,
					"model", req.Model,
					"request_id", req.RequestID,
					"error", err,
					"error_type", llmerrors.TypeOf(err),
					"elapsed", elapsed)
				return nil, err
			}

			logger.Debug("model call completed",
				"operation", req.Operation,
				"provider", req.Provider,
				"model", req.Model,
				"request_id", req.RequestID,
				"from_cache", resp.FromCache,
				"attempts", resp.Attempts,
				"tokens", resp.Usage.TotalTokens,
				"elapsed", elapsed)
			return resp, nil
		})
	}
}
