package service

import (
	"fmt"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"bridgerpc/payload"
)

type arith struct{}

func (a *arith) Add(x, y int) (int, error) { return x + y, nil }

func (a *arith) Reset() error { return nil }

func (a *arith) ThrowException() error {
	return fmt.Errorf("wrapped: %w", fmt.Errorf("Test exception"))
}

// BindEmitter does not match the registered-method shape (no error return)
// and must be skipped by NewTable's scan.
func (a *arith) BindEmitter(send func(string, any) error) {}

func (a *arith) Panic() error {
	var p *int
	_ = *p // nil dereference
	return nil
}

func encodeRaw(t *testing.T, args ...any) []msgpack.RawMessage {
	t.Helper()
	blob, err := payload.EncodeArgs(args)
	if err != nil {
		t.Fatalf("EncodeArgs failed: %v", err)
	}
	raw, err := payload.DecodeArgsRaw(blob)
	if err != nil {
		t.Fatalf("DecodeArgsRaw failed: %v", err)
	}
	return raw
}

func TestInvokeWithResult(t *testing.T) {
	tbl := NewTable(&arith{})
	result, err := tbl.Invoke("Add", encodeRaw(t, 5, 3))
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	var got int
	if err := payload.DecodeValue(result, &got); err != nil {
		t.Fatalf("decode result failed: %v", err)
	}
	if got != 8 {
		t.Errorf("got %d, want 8", got)
	}
}

func TestInvokeNoResult(t *testing.T) {
	tbl := NewTable(&arith{})
	result, err := tbl.Invoke("Reset", nil)
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if len(result) != 0 {
		t.Errorf("expected absent result, got %d bytes", len(result))
	}
}

func TestInvokeMethodNotFound(t *testing.T) {
	tbl := NewTable(&arith{})
	if _, err := tbl.Invoke("Missing", nil); err == nil {
		t.Fatal("expected an error for an unregistered method")
	}
}

func TestInvokeUnwrapsToRootCause(t *testing.T) {
	tbl := NewTable(&arith{})
	_, err := tbl.Invoke("ThrowException", nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	if err.Error() != "Test exception" {
		t.Errorf("expected the root cause message, got %q", err.Error())
	}
}

func TestInvokeRecoversPanicIntoError(t *testing.T) {
	tbl := NewTable(&arith{})
	_, err := tbl.Invoke("Panic", nil)
	if err == nil {
		t.Fatal("expected a panic inside the hosted method to surface as an error")
	}
}

func TestNewTableSkipsNonConformingMethods(t *testing.T) {
	tbl := NewTable(&arith{})
	if tbl.Has("BindEmitter") {
		t.Fatal("expected BindEmitter (no error return) to be filtered out of the method table")
	}
}

func TestEmitterEmitBeforeBindIsANoOp(t *testing.T) {
	e := NewEmitter()
	if err := e.Emit("on_message", "hi"); err != nil {
		t.Fatalf("expected a no-op before Bind, got error: %v", err)
	}
}

func TestEmitterEmitAfterBindDelivers(t *testing.T) {
	e := NewEmitter()
	var gotName string
	var gotPayload any
	e.Bind(func(name string, payload any) error {
		gotName, gotPayload = name, payload
		return nil
	})
	if err := e.Emit("on_message", "Echoed: World"); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}
	if gotName != "on_message" || gotPayload != "Echoed: World" {
		t.Errorf("mismatch: name=%q payload=%v", gotName, gotPayload)
	}
}
