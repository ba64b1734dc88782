// Package facade provides the manager-side typed calling convention a
// caller actually uses: generics-based helpers standing in for the
// reference implementation's reflective/IL-emitted proxy (spec §9 design
// note). Where the teacher's client.Call(serviceMethod, args, reply) takes
// an any-typed reply pointer the caller must pre-allocate, these helpers
// return the decoded value directly, synchronously or as a future,
// according to the spec's four async/non-async return shapes (§9).
package facade

import (
	"context"

	"bridgerpc/manager"
	"bridgerpc/payload"
)

// Result is what a Go[T] future resolves to.
type Result[T any] struct {
	Value T
	Err   error
}

// Call performs a non-awaitable-with-value invocation: it blocks until the
// Response arrives and decodes its result into T.
func Call[T any](ctx context.Context, m *manager.Manager, method string, args ...any) (T, error) {
	var zero T
	raw, err := m.SendCall(ctx, method, args...)
	if err != nil {
		return zero, err
	}
	var out T
	if err := payload.DecodeValue(raw, &out); err != nil {
		return zero, err
	}
	return out, nil
}

// CallVoid performs a non-awaitable-with-no-value invocation: it blocks
// until the Response arrives and discards the result blob.
func CallVoid(ctx context.Context, m *manager.Manager, method string, args ...any) error {
	_, err := m.SendCall(ctx, method, args...)
	return err
}

// Go performs an awaitable-with-value invocation: it returns immediately
// with a future that resolves once the Response arrives.
func Go[T any](ctx context.Context, m *manager.Manager, method string, args ...any) <-chan Result[T] {
	ch := make(chan Result[T], 1)
	go func() {
		v, err := Call[T](ctx, m, method, args...)
		ch <- Result[T]{Value: v, Err: err}
	}()
	return ch
}

// GoVoid performs an awaitable-with-no-value invocation: it returns
// immediately with a future that resolves (to nil, or the call's error)
// once the Response arrives.
func GoVoid(ctx context.Context, m *manager.Manager, method string, args ...any) <-chan error {
	ch := make(chan error, 1)
	go func() { ch <- CallVoid(ctx, m, method, args...) }()
	return ch
}

// StopAsync is special-cased: per spec §4.5/§9's "hidden coupling", it
// calls the manager's graceful-shutdown path instead of routing through an
// ordinary SendCall, so the facade's StopAsync is indistinguishable from
// the reference's intercepted method of the same name.
func StopAsync(ctx context.Context, m *manager.Manager) error {
	return m.GracefulShutdown(ctx)
}

// Subscribe registers handler against event on m's event-handler table,
// decoding each occurrence's payload into T before invoking handler. It
// returns an unsubscribe function that removes exactly this subscription.
func Subscribe[T any](m *manager.Manager, event string, handler func(T)) (unsubscribe func()) {
	decode := func(raw []byte) (any, error) {
		var v T
		if err := payload.DecodeValue(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
	invoke := func(v any) { handler(v.(T)) }

	id := m.Events().Subscribe(event, decode, invoke)
	return func() { m.Events().Unsubscribe(event, id) }
}
