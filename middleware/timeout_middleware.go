package middleware

import (
	"context"
	"time"

	"bridgerpc/protocol"
)

// Timeout enforces a maximum duration for a single Call. The spec adds no
// cancellation at the protocol level by default (§9: "adding one is a
// design choice, not a bug fix") — this middleware is an explicit opt-in a
// caller wires into the runner's chain, never applied automatically.
//
// The handler goroutine is not cancelled when the timeout fires; it keeps
// running in the background and its eventual result is discarded. The
// timeout Response is returned as soon as the deadline passes, so the
// dispatch loop goes on to read the next Call frame while the abandoned
// handler goroutine may still be running.
func Timeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, call *protocol.CallFrame) *protocol.ResponseFrame {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			done := make(chan *protocol.ResponseFrame, 1)
			go func() { done <- next(ctx, call) }()

			select {
			case resp := <-done:
				return resp
			case <-ctx.Done():
				return errorResponse(call.RequestID, "request timed out")
			}
		}
	}
}
