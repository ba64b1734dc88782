// Package service implements the runner-side half of the service-binding
// layer: a reflection-based method table built once over the hosted
// service instance, and an Emitter helper the service uses to raise named
// events.
//
// A registered method's signature is one of:
//
//	func(arg1, arg2, ...) error
//	func(arg1, arg2, ...) (T, error)
//
// mirroring the spec's "Method(arg1, arg2, ...) (result, error)" shape
// (§4.5), generalised from the teacher's fixed (args *T, reply *T) error
// convention to positional variadic arguments of any declared type.
package service

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"

	"bridgerpc/payload"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

type method struct {
	fn        reflect.Value
	params    []reflect.Type
	hasResult bool
}

// Table is the method-name -> reflection-metadata map for one hosted
// service instance. Only one instance exists per runner process (spec
// §3: "Only one instance exists per runner process").
type Table struct {
	methods map[string]*method
}

// NewTable scans instance's exported methods and registers every one whose
// signature matches the RPC convention above. Methods with any other
// signature (for example an event-binding hook with no error return) are
// silently skipped, exactly as the teacher's reflection-based service scan
// skips non-conforming methods.
func NewTable(instance any) *Table {
	v := reflect.ValueOf(instance)
	t := v.Type()

	tbl := &Table{methods: make(map[string]*method)}
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		numOut := m.Type.NumOut()
		if numOut == 0 || numOut > 2 {
			continue
		}
		if m.Type.Out(numOut - 1) != errorType {
			continue
		}

		params := make([]reflect.Type, 0, m.Type.NumIn()-1)
		for p := 1; p < m.Type.NumIn(); p++ {
			params = append(params, m.Type.In(p))
		}

		tbl.methods[m.Name] = &method{
			fn:        v.Method(i),
			params:    params,
			hasResult: numOut == 2,
		}
	}
	return tbl
}

// Has reports whether name was registered.
func (t *Table) Has(name string) bool {
	_, ok := t.methods[name]
	return ok
}

// Invoke decodes argsRaw positionally into name's declared parameter types
// and calls it. It returns the encoded result blob (nil if the method has
// no result), or an error — either because name was not found, an argument
// failed to decode, or the method itself returned a non-nil error (with any
// wrapper chain unwound to the root cause).
func (t *Table) Invoke(name string, argsRaw []msgpack.RawMessage) ([]byte, error) {
	m, ok := t.methods[name]
	if !ok {
		return nil, fmt.Errorf("Method %s not found", name)
	}

	in := make([]reflect.Value, len(m.params))
	for i, pt := range m.params {
		argv := reflect.New(pt)
		if i < len(argsRaw) {
			if err := msgpack.Unmarshal(argsRaw[i], argv.Interface()); err != nil {
				return nil, fmt.Errorf("decode argument %d of %s: %w", i, name, err)
			}
		}
		in[i] = argv.Elem()
	}

	out, err := callRecovering(m.fn, in)
	if err != nil {
		return nil, err
	}

	errVal := out[len(out)-1]
	if !errVal.IsNil() {
		return nil, rootCause(errVal.Interface().(error))
	}
	if !m.hasResult {
		return nil, nil
	}
	return payload.EncodeValue(out[0].Interface())
}

// callRecovering invokes fn with in, converting a panic raised inside the
// hosted method (nil dereference, failed type assertion, index out of
// range, ...) into a plain error instead of letting it take down the
// runner process — spec.md: "the runner never crashes on a single bad
// call — it converts to an error Response."
func callRecovering(fn reflect.Value, in []reflect.Value) (out []reflect.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn.Call(in), nil
}

// rootCause unwraps a chain of wrapped errors to reach the original cause,
// standing in for the reference's TargetInvocationException unwrapping.
func rootCause(err error) error {
	for {
		cause := errors.Unwrap(err)
		if cause == nil {
			return err
		}
		err = cause
	}
}
