package service

import "sync"

// Emitter lets a hosted service raise named events without knowing anything
// about the transport underneath it. The runner binds send once at startup;
// Emit before binding is a silent no-op (there is no manager to deliver the
// event to yet).
type Emitter struct {
	mu   sync.Mutex
	send func(name string, payload any) error
}

// NewEmitter returns an unbound Emitter.
func NewEmitter() *Emitter {
	return &Emitter{}
}

// Bind wires send as the Emitter's delivery function. Called once by the
// runner at startup, after it has hooked every event/action channel of the
// service instance.
func (e *Emitter) Bind(send func(name string, payload any) error) {
	e.mu.Lock()
	e.send = send
	e.mu.Unlock()
}

// Emit raises event name carrying payload. It returns the error, if any,
// from writing the resulting Event frame.
func (e *Emitter) Emit(name string, payload any) error {
	e.mu.Lock()
	send := e.send
	e.mu.Unlock()
	if send == nil {
		return nil
	}
	return send(name, payload)
}
