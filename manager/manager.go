// Package manager implements the manager side of a bridge session: it
// spawns the runner child process, establishes the command/response
// transport pair, maintains the pending-call registry and event-handler
// table, dispatches decoded frames, and enforces the session's lifecycle
// from spawn through graceful or crash-driven teardown.
package manager

import (
	"context"
	"fmt"
	"io"
	"net"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"bridgerpc/bridgeerr"
	"bridgerpc/middleware"
	"bridgerpc/payload"
	"bridgerpc/protocol"
	"bridgerpc/registry"
	"bridgerpc/transport"
)

// State is the manager session's lifecycle stage (spec §4.6).
type State int32

const (
	StateUnspawned State = iota
	StateSpawning
	StateReady
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUnspawned:
		return "Unspawned"
	case StateSpawning:
		return "Spawning"
	case StateReady:
		return "Ready"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// Options configures a Manager. It is plain library-style configuration,
// populated by the caller, matching the teacher's constructor-argument
// convention rather than a struct-tag env/flag loader.
type Options struct {
	// Exe is the executable to spawn — typically the manager's own
	// executable, re-invoked in runner mode (spec §4.3 step 3: "spawn a
	// child process running the same executable").
	Exe string
	// Args identifies the runner mode and target service; the command
	// and response pipe flags are appended automatically.
	Args []string
	// BaseDir is the directory endpoint socket paths are created under.
	// Empty means the OS temp directory.
	BaseDir string
	// Logger receives forwarded Log frames and the manager's own
	// diagnostics. A no-op logger is used if nil.
	Logger *zap.Logger
	// Stdout/Stderr receive the child's inherited standard streams for
	// opportunistic diagnostics (spec §6).
	Stdout, Stderr io.Writer
	// ShutdownTimeout bounds how long GracefulShutdown waits for the
	// child to exit on its own before it is killed, and how long a
	// StopAsync call is given to complete. Zero uses a default.
	ShutdownTimeout time.Duration
}

// Manager is a single manager/runner session. One Manager spawns exactly
// one child process and lives for exactly one session (spec: "Persisted
// state: none"; re-spawning yields an independent session with its own id
// space, per §8).
type Manager struct {
	opts Options

	cmd *exec.Cmd

	cmdConn  *net.UnixConn // write: command stream
	respConn *net.UnixConn // read: response stream
	writeMu  sync.Mutex

	nextID  int32
	pending *registry.PendingCalls
	events  *registry.EventTable

	logger *zap.Logger

	state    atomic.Int32
	stopOnce sync.Once

	exitedCh chan struct{}
	exitErr  error
}

// New constructs a Manager from opts. Call Start to spawn the child.
func New(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ShutdownTimeout == 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	return &Manager{
		opts:    opts,
		pending: registry.NewPendingCalls(),
		events:  registry.NewEventTable(),
		logger:  logger,
	}
}

// Events exposes the manager's event-handler table for the facade layer to
// subscribe and unsubscribe against.
func (m *Manager) Events() *registry.EventTable { return m.events }

// State reports the manager's current lifecycle stage.
func (m *Manager) State() State { return State(m.state.Load()) }

func (m *Manager) setState(s State) { m.state.Store(int32(s)) }

// Start spawns the runner child, establishes both transport endpoints in
// the spec-mandated order (command first, then response), and launches the
// reader goroutine. It returns a *bridgeerr.Error of Kind StartupFailed if
// the child exits before both endpoints connect.
func (m *Manager) Start(ctx context.Context) (err error) {
	m.setState(StateSpawning)
	defer func() {
		// Every early-return path below is a startup failure; the state
		// machine's only other transition out of Spawning is Ready (set
		// just before the reader goroutine launches), so any non-nil err
		// here means "Spawning -> Stopped" per spec.md's state diagram.
		if err != nil {
			m.setState(StateStopped)
		}
	}()

	pair, err := transport.NewPair(m.opts.BaseDir)
	if err != nil {
		return fmt.Errorf("manager: generating endpoint pair: %w", err)
	}

	cmdListener, err := transport.Listen(pair.CommandPath)
	if err != nil {
		return fmt.Errorf("manager: listening on command endpoint: %w", err)
	}
	respListener, err := transport.Listen(pair.ResponsePath)
	if err != nil {
		cmdListener.Close()
		return fmt.Errorf("manager: listening on response endpoint: %w", err)
	}

	args := append(append([]string{}, m.opts.Args...), "--command-pipe", pair.CommandPath, "--response-pipe", pair.ResponsePath)
	cmd := exec.CommandContext(ctx, m.opts.Exe, args...)
	cmd.Stdout = m.opts.Stdout
	cmd.Stderr = m.opts.Stderr

	if err := cmd.Start(); err != nil {
		cmdListener.Close()
		respListener.Close()
		return fmt.Errorf("manager: starting runner process: %w", err)
	}
	m.cmd = cmd

	m.exitedCh = make(chan struct{})
	go func() {
		m.exitErr = cmd.Wait()
		close(m.exitedCh)
	}()

	cmdConn, err := m.acceptOrFail(cmdListener)
	if err != nil {
		respListener.Close()
		return err
	}
	respConn, err := m.acceptOrFail(respListener)
	if err != nil {
		cmdConn.Close()
		return err
	}

	m.cmdConn = cmdConn
	m.respConn = respConn
	m.setState(StateReady)

	go m.readLoop()
	return nil
}

// acceptOrFail accepts one connection on l, racing it against the child
// having already exited (spec §4.3 step 5: "If the child has already
// exited at either wait step, fail startup with an error carrying the
// child's exit code"). Each listener is only needed up to this point, so
// acceptOrFail closes l itself on both the accepted and the exited path.
func (m *Manager) acceptOrFail(l net.Listener) (*net.UnixConn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	acceptedCh := make(chan result, 1)
	go func() {
		conn, err := l.Accept()
		acceptedCh <- result{conn, err}
	}()

	select {
	case r := <-acceptedCh:
		l.Close()
		if r.err != nil {
			return nil, fmt.Errorf("manager: accepting connection: %w", r.err)
		}
		return transport.AsUnixConn(r.conn)
	case <-m.exitedCh:
		l.Close()
		return nil, bridgeerr.NewStartupFailed(m.exitCode())
	}
}

func (m *Manager) exitCode() int {
	if m.exitErr == nil {
		return 0
	}
	if ee, ok := m.exitErr.(*exec.ExitError); ok {
		return ee.ExitCode()
	}
	return -1
}

// readLoop owns the response stream's read side exclusively. It runs until
// the stream closes or a read errors, then drains the pending-call registry
// with a ChildExitedUnexpectedly error (spec §4.3 "Child-exit handling").
func (m *Manager) readLoop() {
	defer m.onChildGone()

	for {
		kind, err := protocol.ReadKind(m.respConn)
		if err != nil {
			return
		}
		switch kind {
		case protocol.KindResponse:
			f, err := protocol.DecodeResponse(m.respConn)
			if err != nil {
				m.logger.Warn("malformed response frame", zap.Error(bridgeerr.NewDeserialisationFailed(err)))
				return
			}
			m.handleResponse(f)
		case protocol.KindEvent:
			f, err := protocol.DecodeEvent(m.respConn)
			if err != nil {
				m.logger.Warn("malformed event frame", zap.Error(bridgeerr.NewDeserialisationFailed(err)))
				return
			}
			m.handleEvent(f)
		case protocol.KindLog:
			f, err := protocol.DecodeLog(m.respConn)
			if err != nil {
				m.logger.Warn("malformed log frame", zap.Error(bridgeerr.NewDeserialisationFailed(err)))
				return
			}
			middleware.LogAt(m.logger, f.Severity, f.Message)
		default:
			// An unrecognized tag means the frame boundary can no longer
			// be trusted; terminate the loop rather than risk reading
			// garbage as if it were a known shape.
			m.logger.Warn("unknown frame kind, closing response stream", zap.Uint8("kind", kind))
			return
		}
	}
}

func (m *Manager) handleResponse(f *protocol.ResponseFrame) {
	var res registry.Result
	if f.Status == protocol.StatusSuccess {
		res = registry.Result{Value: f.Result}
	} else {
		var msg string
		if err := payload.DecodeValue(f.Result, &msg); err != nil {
			msg = "unknown error"
		}
		res = registry.Result{Err: bridgeerr.FromResponseMessage(msg)}
	}
	m.pending.Complete(f.RequestID, res)
}

func (m *Manager) handleEvent(f *protocol.EventFrame) {
	if _, err := m.events.Dispatch(f.Name, f.Payload); err != nil {
		m.logger.Warn("event dispatch failed", zap.String("event", f.Name), zap.Error(err))
	}
}

func (m *Manager) onChildGone() {
	// Mark the session Stopped before waking the drained callers, so a
	// caller that issues another call right after its drained error sees
	// Stopped in SendCall instead of writing to the dead command stream.
	m.setState(StateStopped)
	m.pending.DrainWithError(bridgeerr.NewChildExitedUnexpectedly())
}

// SendCall allocates a fresh request-id, registers it in the pending-call
// registry before the Call frame is flushed, writes the frame under the
// write lock, and blocks until the matching Response arrives, the child
// exits, or ctx is cancelled.
func (m *Manager) SendCall(ctx context.Context, method string, args ...any) ([]byte, error) {
	if m.State() == StateStopped {
		return nil, bridgeerr.NewChildExitedUnexpectedly()
	}

	id := atomic.AddInt32(&m.nextID, 1)
	ch, err := m.pending.Insert(id)
	if err != nil {
		return nil, err
	}

	argBlob, err := payload.EncodeArgs(args)
	if err != nil {
		return nil, fmt.Errorf("manager: encoding arguments for %s: %w", method, err)
	}

	call := &protocol.CallFrame{RequestID: id, Method: method, Args: argBlob}
	if err := m.writeCall(call); err != nil {
		m.pending.Complete(id, registry.Result{Err: err})
		return nil, bridgeerr.NewTransportClosed(err)
	}

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Value, nil
	case <-ctx.Done():
		// Abandoning the wait must not leave id live in the registry
		// forever (spec.md: a timeout "must still leave the registry
		// consistent... even if a late Response later arrives and must
		// then be dropped").
		m.pending.Cancel(id)
		return nil, ctx.Err()
	}
}

func (m *Manager) writeCall(f *protocol.CallFrame) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return protocol.EncodeCall(m.cmdConn, f)
}

// GracefulShutdown terminates the session: it sends StopAsync through the
// ordinary call path and awaits its Response (or the child's exit), closes
// both transport endpoints, forcibly kills the child if it is still
// running, and awaits its exit. It is idempotent — a second call is a
// no-op.
func (m *Manager) GracefulShutdown(ctx context.Context) error {
	m.stopOnce.Do(func() {
		m.setState(StateStopping)

		if m.cmdConn != nil && m.State() != StateStopped {
			stopCtx, cancel := context.WithTimeout(ctx, m.opts.ShutdownTimeout)
			if _, err := m.SendCall(stopCtx, "StopAsync"); err != nil {
				m.logger.Debug("StopAsync call did not complete cleanly", zap.Error(err))
			}
			cancel()
		}

		if m.cmdConn != nil {
			m.cmdConn.Close()
		}
		if m.respConn != nil {
			m.respConn.Close()
		}

		if m.cmd != nil && m.cmd.Process != nil && m.exitedCh != nil {
			select {
			case <-m.exitedCh:
			case <-time.After(m.opts.ShutdownTimeout):
				m.logger.Warn("runner did not exit after StopAsync, killing it")
				_ = m.cmd.Process.Kill()
				<-m.exitedCh
			}
		}

		m.setState(StateStopped)
	})
	return nil
}

// ExitCode reports the child's exit code once it has exited; it blocks
// until then. Intended for tests and diagnostics.
func (m *Manager) ExitCode() int {
	if m.exitedCh != nil {
		<-m.exitedCh
	}
	return m.exitCode()
}
