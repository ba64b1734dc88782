package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"bridgerpc/protocol"
)

// Logging records the dispatched method, its duration, and any error for
// every Call the runner processes.
func Logging(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *protocol.CallFrame) *protocol.ResponseFrame {
			start := time.Now()
			resp := next(ctx, call)
			fields := []zap.Field{
				zap.Int32("request_id", call.RequestID),
				zap.String("method", call.Method),
				zap.Duration("duration", time.Since(start)),
				zap.String("status", resp.Status),
			}
			if resp.Status == protocol.StatusError {
				logger.Warn("call failed", fields...)
			} else {
				logger.Debug("call dispatched", fields...)
			}
			return resp
		}
	}
}
