// Package middleware implements the onion-model chain that wraps the
// runner's Call dispatch with cross-cutting concerns — structured logging,
// an optional inbound rate limit, and an optional per-call timeout — without
// the hosted service or the dispatch loop needing to know about any of
// them.
package middleware

import (
	"context"

	"bridgerpc/payload"
	"bridgerpc/protocol"
)

// HandlerFunc dispatches a decoded Call frame to a Response frame. The
// runner's method-table invocation is itself a HandlerFunc; middlewares
// wrap it without changing its signature.
type HandlerFunc func(ctx context.Context, call *protocol.CallFrame) *protocol.ResponseFrame

// Middleware takes a handler and returns a new handler that wraps it.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares into one, building right-to-left so the first
// middleware passed is the outermost layer:
//
//	Chain(A, B, C)(handler)
//	execution: A.before -> B.before -> C.before -> handler -> C.after -> B.after -> A.after
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// errorResponse builds an error Response frame whose result blob encodes
// message the same way every other value blob is encoded, so the manager
// decodes it with the ordinary single-value decoder.
func errorResponse(requestID int32, message string) *protocol.ResponseFrame {
	blob, err := payload.EncodeValue(message)
	if err != nil {
		// A plain string always encodes; this path is unreachable in
		// practice but keeps the frame well-formed if it ever isn't.
		blob = nil
	}
	return &protocol.ResponseFrame{
		RequestID: requestID,
		Status:    protocol.StatusError,
		Result:    blob,
	}
}
