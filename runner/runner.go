// Package runner implements the runner side of a bridge session: the
// process that hosts exactly one service instance, dials the manager's two
// transport endpoints, and drives the sequential dispatch loop that
// receives Call frames and replies with Response frames, forwarding events
// raised by the hosted service as they occur.
package runner

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"bridgerpc/middleware"
	"bridgerpc/payload"
	"bridgerpc/protocol"
	"bridgerpc/service"
	"bridgerpc/transport"
)

// State is the runner session's lifecycle stage (spec §4.6).
type State int32

const (
	StateUnconnected State = iota
	StateConnected
	StateServing
	StateStopping
	StateExiting
)

func (s State) String() string {
	switch s {
	case StateUnconnected:
		return "Unconnected"
	case StateConnected:
		return "Connected"
	case StateServing:
		return "Serving"
	case StateStopping:
		return "Stopping"
	case StateExiting:
		return "Exiting"
	default:
		return "Unknown"
	}
}

// Options configures a Runner.
type Options struct {
	// CommandPath/ResponsePath are the two endpoint socket paths handed
	// down by the manager via --command-pipe/--response-pipe.
	CommandPath  string
	ResponsePath string
	// NewService constructs the single hosted service instance. It is the
	// implementer-chosen factory spec §4.4 calls for ("reflection,
	// registry, or dependency-injection").
	NewService func() any
	// Middlewares wraps the dispatch handler, outermost first, composed
	// with middleware.Chain.
	Middlewares []middleware.Middleware
	// Logger receives the runner's own diagnostics. A no-op logger is
	// used if nil.
	Logger *zap.Logger
}

// Runner is a single runner-session: one hosted service instance, one
// transport pair, one sequential dispatch loop.
type Runner struct {
	opts Options

	cmdConn  *net.UnixConn // read: command stream
	respConn *net.UnixConn // write: response stream
	writeMu  sync.Mutex

	table *service.Table

	logger  *zap.Logger
	handler middleware.HandlerFunc

	state    atomic.Int32
	stopping atomic.Bool
}

// New constructs a Runner from opts. Call Run to dial and serve.
func New(opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{opts: opts, logger: logger}
}

// Run dials both transport endpoints, constructs the hosted service,
// registers its emitter hook, fires StartAsync without awaiting it, and
// runs the dispatch loop until StopAsync is received or the command stream
// closes. It returns once the loop has ended; StopAsync termination is
// signaled by ErrStopAsync.
func (r *Runner) Run(ctx context.Context) error {
	cmdConn, err := transport.Dial(r.opts.CommandPath)
	if err != nil {
		return fmt.Errorf("runner: dialing command endpoint: %w", err)
	}
	respConn, err := transport.Dial(r.opts.ResponsePath)
	if err != nil {
		cmdConn.Close()
		return fmt.Errorf("runner: dialing response endpoint: %w", err)
	}
	r.cmdConn = cmdConn
	r.respConn = respConn
	r.setState(StateConnected)

	instance := r.opts.NewService()
	r.table = service.NewTable(instance)
	if binder, ok := instance.(emitterBinder); ok {
		binder.BindEmitter(r.emit)
	}

	r.handler = middleware.Chain(r.opts.Middlewares...)(r.dispatch)

	if r.table.Has("StartAsync") {
		go func() {
			if _, err := r.table.Invoke("StartAsync", nil); err != nil {
				r.logger.Warn("StartAsync returned an error", zap.Error(err))
			}
		}()
	}

	r.setState(StateServing)
	return r.serve(ctx)
}

// emitterBinder is implemented by a hosted service that exposes a
// *service.Emitter through a BindEmitter(func(string, any) error) hook,
// matching the examples/echoservice convention.
type emitterBinder interface {
	BindEmitter(send func(name string, payload any) error)
}

func (r *Runner) emit(name string, value any) error {
	blob, err := payload.EncodeValue(value)
	if err != nil {
		return fmt.Errorf("runner: encoding event %s payload: %w", name, err)
	}
	return r.writeEvent(&protocol.EventFrame{Name: name, Payload: blob})
}

func (r *Runner) writeEvent(f *protocol.EventFrame) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return protocol.EncodeEvent(r.respConn, f)
}

func (r *Runner) writeResponse(f *protocol.ResponseFrame) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return protocol.EncodeResponse(r.respConn, f)
}

// serve is the sequential dispatch loop: only Call frames are expected on
// the command stream (spec §4.4); any other tag is ignored rather than
// treated as fatal, since it cannot be a protocol violation this process
// caused. Calls are processed one at a time — no goroutine per request —
// honoring the "this avoids requiring the service to be thread-safe" design
// constraint (spec §5).
func (r *Runner) serve(ctx context.Context) error {
	for {
		kind, err := protocol.ReadKind(r.cmdConn)
		if err != nil {
			r.setState(StateExiting)
			return nil
		}
		if kind != protocol.KindCall {
			continue
		}

		call, err := protocol.DecodeCall(r.cmdConn)
		if err != nil {
			r.logger.Warn("malformed call frame, closing command stream", zap.Error(err))
			r.setState(StateExiting)
			return err
		}

		resp := r.handler(ctx, call)
		if err := r.writeResponse(resp); err != nil {
			r.logger.Warn("failed to write response", zap.Error(err))
			r.setState(StateExiting)
			return err
		}

		if r.stopping.Load() {
			r.setState(StateExiting)
			return ErrStopAsync
		}
	}
}

// ErrStopAsync is returned by Run when the loop ended because the hosted
// service received StopAsync, distinguishing a requested shutdown from a
// transport failure.
var ErrStopAsync = fmt.Errorf("runner: stopped via StopAsync")

// dispatch is the business handler wrapped by the middleware chain: it
// looks the method up in the table, decodes its arguments, invokes it, and
// builds the Response frame. A StopAsync invocation additionally arms the
// stopping flag that serve checks after writing the response, per the
// resolved respond-before-exit ambiguity (spec §4.4/§9).
func (r *Runner) dispatch(ctx context.Context, call *protocol.CallFrame) *protocol.ResponseFrame {
	if call.Method == "StopAsync" {
		r.setState(StateStopping)
		r.stopping.Store(true)
	}

	if !r.table.Has(call.Method) {
		return errResponse(call.RequestID, fmt.Sprintf("Method %s not found", call.Method))
	}

	argsRaw, err := decodeArgs(call.Args)
	if err != nil {
		return errResponse(call.RequestID, err.Error())
	}

	result, err := r.table.Invoke(call.Method, argsRaw)
	if err != nil {
		return errResponse(call.RequestID, err.Error())
	}
	return &protocol.ResponseFrame{RequestID: call.RequestID, Status: protocol.StatusSuccess, Result: result}
}

func decodeArgs(blob []byte) ([]msgpack.RawMessage, error) {
	raw, err := payload.DecodeArgsRaw(blob)
	if err != nil {
		return nil, fmt.Errorf("decoding arguments: %w", err)
	}
	return raw, nil
}

func errResponse(requestID int32, message string) *protocol.ResponseFrame {
	blob, err := payload.EncodeValue(message)
	if err != nil {
		blob = nil
	}
	return &protocol.ResponseFrame{RequestID: requestID, Status: protocol.StatusError, Result: blob}
}

func (r *Runner) State() State { return State(r.state.Load()) }

func (r *Runner) setState(s State) { r.state.Store(int32(s)) }
