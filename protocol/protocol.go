// Package protocol implements the framed binary message protocol exchanged
// between a manager and its runner over the command and response streams.
//
// Every frame is self-delimited: a single tag byte identifies the kind,
// followed by kind-specific fixed and length-prefixed fields. Integers are
// fixed-width 32-bit big-endian; strings and opaque blobs share the same
// length-prefix convention (a 4-byte length followed by raw bytes, zero
// meaning "absent").
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Frame kind tags. Values are stable within a build; they need not match
// any other implementation's choice of tag byte.
const (
	KindCall     byte = 0x01
	KindResponse byte = 0x02
	KindEvent    byte = 0x03
	KindLog      byte = 0x04
)

// Response status strings.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// CallFrame carries a manager→runner method invocation.
type CallFrame struct {
	RequestID int32
	Method    string
	Args      []byte // msgpack-encoded array, positionally matching the method's params
}

// ResponseFrame carries a runner→manager result or error for a given RequestID.
type ResponseFrame struct {
	RequestID int32
	Status    string // StatusSuccess or StatusError
	Result    []byte // zero-length means "no payload"; on error, encodes a message string
}

// EventFrame carries a service-raised event from runner to manager.
type EventFrame struct {
	Name    string
	Payload []byte
}

// LogFrame carries a structured log record from runner to manager.
type LogFrame struct {
	Severity string // Trace|Debug|Information|Warning|Error|Critical|None
	Message  string
}

func writeInt32(w io.Writer, v int32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(v))
	_, err := w.Write(buf[:])
	return err
}

func readInt32(r io.Reader) (int32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(buf[:])), nil
}

func writeBlob(w io.Writer, b []byte) error {
	if err := writeInt32(w, int32(len(b))); err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}
	_, err := w.Write(b)
	return err
}

func readBlob(r io.Reader) ([]byte, error) {
	n, err := readInt32(r)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("protocol: negative blob length %d", n)
	}
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeString(w io.Writer, s string) error {
	return writeBlob(w, []byte(s))
}

func readString(r io.Reader) (string, error) {
	b, err := readBlob(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadKind reads the single tag byte that begins every frame. Callers use it
// to decide which Decode* function to call next.
func ReadKind(r io.Reader) (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// EncodeCall writes a complete Call frame, tag included.
func EncodeCall(w io.Writer, f *CallFrame) error {
	if _, err := w.Write([]byte{KindCall}); err != nil {
		return err
	}
	if err := writeInt32(w, f.RequestID); err != nil {
		return err
	}
	if err := writeString(w, f.Method); err != nil {
		return err
	}
	return writeBlob(w, f.Args)
}

// DecodeCall reads the fields of a Call frame; the tag byte must already
// have been consumed via ReadKind.
func DecodeCall(r io.Reader) (*CallFrame, error) {
	id, err := readInt32(r)
	if err != nil {
		return nil, err
	}
	method, err := readString(r)
	if err != nil {
		return nil, err
	}
	args, err := readBlob(r)
	if err != nil {
		return nil, err
	}
	return &CallFrame{RequestID: id, Method: method, Args: args}, nil
}

// EncodeResponse writes a complete Response frame, tag included.
func EncodeResponse(w io.Writer, f *ResponseFrame) error {
	if _, err := w.Write([]byte{KindResponse}); err != nil {
		return err
	}
	if err := writeInt32(w, f.RequestID); err != nil {
		return err
	}
	if err := writeString(w, f.Status); err != nil {
		return err
	}
	return writeBlob(w, f.Result)
}

// DecodeResponse reads the fields of a Response frame; the tag byte must
// already have been consumed via ReadKind.
func DecodeResponse(r io.Reader) (*ResponseFrame, error) {
	id, err := readInt32(r)
	if err != nil {
		return nil, err
	}
	status, err := readString(r)
	if err != nil {
		return nil, err
	}
	result, err := readBlob(r)
	if err != nil {
		return nil, err
	}
	return &ResponseFrame{RequestID: id, Status: status, Result: result}, nil
}

// EncodeEvent writes a complete Event frame, tag included.
func EncodeEvent(w io.Writer, f *EventFrame) error {
	if _, err := w.Write([]byte{KindEvent}); err != nil {
		return err
	}
	if err := writeString(w, f.Name); err != nil {
		return err
	}
	return writeBlob(w, f.Payload)
}

// DecodeEvent reads the fields of an Event frame; the tag byte must already
// have been consumed via ReadKind.
func DecodeEvent(r io.Reader) (*EventFrame, error) {
	name, err := readString(r)
	if err != nil {
		return nil, err
	}
	p, err := readBlob(r)
	if err != nil {
		return nil, err
	}
	return &EventFrame{Name: name, Payload: p}, nil
}

// EncodeLog writes a complete Log frame, tag included.
func EncodeLog(w io.Writer, f *LogFrame) error {
	if _, err := w.Write([]byte{KindLog}); err != nil {
		return err
	}
	if err := writeString(w, f.Severity); err != nil {
		return err
	}
	return writeString(w, f.Message)
}

// DecodeLog reads the fields of a Log frame; the tag byte must already have
// been consumed via ReadKind.
func DecodeLog(r io.Reader) (*LogFrame, error) {
	sev, err := readString(r)
	if err != nil {
		return nil, err
	}
	msg, err := readString(r)
	if err != nil {
		return nil, err
	}
	return &LogFrame{Severity: sev, Message: msg}, nil
}
