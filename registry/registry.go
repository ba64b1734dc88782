// Package registry holds the two pieces of shared state on the manager
// side of a session: the pending-call registry that correlates Response
// frames back to the send_call that is waiting on them, and the
// event-handler table that routes Event frames to subscribers.
//
// Both structures are mutated from multiple goroutines — callers of
// send_call insert into the pending-call registry while the reader
// goroutine removes from it, and the facade mutates the event-handler
// table while the same reader goroutine reads it — so both are guarded by
// a plain mutex.
package registry

import (
	"fmt"
	"sync"
)

// Result is what a pending call resolves to: either a decoded result blob
// or the error carried by an error Response (or by child-exit).
type Result struct {
	Value []byte
	Err   error
}

// PendingCalls is the manager-side map from request-id to the channel a
// blocked send_call is waiting on.
type PendingCalls struct {
	mu      sync.Mutex
	pending map[int32]chan Result
}

// NewPendingCalls returns an empty registry.
func NewPendingCalls() *PendingCalls {
	return &PendingCalls{pending: make(map[int32]chan Result)}
}

// Insert registers a fresh pending entry for id, which must happen before
// the corresponding Call frame is flushed to the command stream. It
// refuses to insert (and returns an error) if id is already live, which
// tolerates request-id reuse after 32-bit wraparound without corrupting an
// in-flight call.
func (p *PendingCalls) Insert(id int32) (<-chan Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.pending[id]; ok {
		return nil, fmt.Errorf("registry: request id %d is already in flight", id)
	}
	ch := make(chan Result, 1)
	p.pending[id] = ch
	return ch, nil
}

// Complete resolves the pending entry for id, if one exists, and removes
// it. It reports whether an entry was found; a late or duplicate Response
// for an id with no pending entry is dropped silently by the caller.
func (p *PendingCalls) Complete(id int32, res Result) bool {
	p.mu.Lock()
	ch, ok := p.pending[id]
	if ok {
		delete(p.pending, id)
	}
	p.mu.Unlock()
	if !ok {
		return false
	}
	ch <- res
	return true
}

// Cancel removes id from the registry without resolving it, for a caller
// that is abandoning the wait on its own terms (e.g. its context was
// cancelled) rather than receiving a Response for it. It leaves the
// registry consistent for a late Response, which is then dropped as an
// ordinary unmatched id (spec.md: "it must still leave the registry
// consistent... even if a late Response later arrives and must then be
// dropped"). It reports whether an entry was actually removed.
func (p *PendingCalls) Cancel(id int32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.pending[id]; !ok {
		return false
	}
	delete(p.pending, id)
	return true
}

// DrainWithError resolves every still-pending entry with err and clears the
// registry. Used once when the child process exits while calls are
// in-flight.
func (p *PendingCalls) DrainWithError(err error) {
	p.mu.Lock()
	pending := p.pending
	p.pending = make(map[int32]chan Result)
	p.mu.Unlock()

	for _, ch := range pending {
		ch <- Result{Err: err}
	}
}

// Len reports the number of currently in-flight calls. Intended for tests
// and diagnostics.
func (p *PendingCalls) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Decoder decodes a raw Event payload blob into a value whose concrete type
// is declared by the event's subscribers.
type Decoder func(payload []byte) (any, error)

type subscriber struct {
	id     uint64
	invoke func(any)
}

type eventEntry struct {
	decode Decoder
	subs   []subscriber
}

// EventTable is the manager-side map from event-name to its ordered list of
// subscribers. Adding a subscriber appends; removing a subscriber removes
// the first (and, by construction, only) entry with a matching id; the
// event-name is dropped from the table once its subscriber list empties.
type EventTable struct {
	mu      sync.Mutex
	nextID  uint64
	entries map[string]*eventEntry
}

// NewEventTable returns an empty event-handler table.
func NewEventTable() *EventTable {
	return &EventTable{entries: make(map[string]*eventEntry)}
}

// Subscribe appends handler to event's subscriber list, returning an id
// that Unsubscribe uses to remove exactly this entry later. decode is only
// consulted the first time an event name is subscribed to — per the wire
// contract, every subscriber of a given event must declare the same
// parameter type, so later subscribers reuse the first decode function.
func (t *EventTable) Subscribe(event string, decode Decoder, invoke func(any)) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextID++
	id := t.nextID

	entry, ok := t.entries[event]
	if !ok {
		entry = &eventEntry{decode: decode}
		t.entries[event] = entry
	}
	entry.subs = append(entry.subs, subscriber{id: id, invoke: invoke})
	return id
}

// Unsubscribe removes the subscriber previously returned by Subscribe as id.
// If the event's subscriber list becomes empty, the event-name is dropped
// from the table entirely.
func (t *EventTable) Unsubscribe(event string, id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[event]
	if !ok {
		return
	}
	for i, s := range entry.subs {
		if s.id == id {
			entry.subs = append(entry.subs[:i], entry.subs[i+1:]...)
			break
		}
	}
	if len(entry.subs) == 0 {
		delete(t.entries, event)
	}
}

// Dispatch decodes payload using the event's registered decoder and invokes
// every current subscriber with the result. It reports handled=false (with
// a nil error) when the event has no subscribers, which is not an error —
// the spec requires a subscriber-less event to be dropped silently.
// A panic raised by one subscriber is recovered and does not prevent the
// remaining subscribers from running.
func (t *EventTable) Dispatch(event string, raw []byte) (handled bool, err error) {
	t.mu.Lock()
	entry, ok := t.entries[event]
	var subs []subscriber
	var decode Decoder
	if ok {
		decode = entry.decode
		subs = append(subs, entry.subs...)
	}
	t.mu.Unlock()

	if !ok || len(subs) == 0 {
		return false, nil
	}

	value, err := decode(raw)
	if err != nil {
		return false, fmt.Errorf("registry: decoding event %q: %w", event, err)
	}

	for _, s := range subs {
		invokeRecovering(s.invoke, value)
	}
	return true, nil
}

func invokeRecovering(invoke func(any), value any) {
	// A misbehaving subscriber must not take down the reader loop.
	defer func() { _ = recover() }()
	invoke(value)
}
