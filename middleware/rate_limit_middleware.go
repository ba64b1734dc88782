package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"bridgerpc/protocol"
)

// RateLimit throttles the runner's dispatch loop with a token-bucket
// limiter: tokens refill at r per second up to burst. A Call arriving with
// no token available is rejected with an error Response rather than
// blocking the dispatch loop, since the spec requires strictly sequential
// processing — a blocked limiter would stall every other in-flight Call
// too.
//
// The limiter is created once, in the outer closure, and shared by every
// Call; creating it per-call would hand every request a fresh full bucket
// and defeat the limit entirely.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *protocol.CallFrame) *protocol.ResponseFrame {
			if !limiter.Allow() {
				return errorResponse(call.RequestID, "rate limit exceeded")
			}
			return next(ctx, call)
		}
	}
}
