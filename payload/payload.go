// Package payload implements the self-describing binary serialisation used
// inside Call argument blobs, Response result blobs, and Event payload
// blobs. It is a thin wrapper over MessagePack, chosen because it natively
// supports every primitive the wire format needs — integer widths, UTF-8
// strings, booleans, a null marker, arrays, and string-keyed maps — without
// inventing a bespoke encoding.
package payload

import "github.com/vmihailenco/msgpack/v5"

// EncodeArgs wraps a method's arguments in an outer array whose elements
// positionally match the method's declared parameters.
func EncodeArgs(args []any) ([]byte, error) {
	if args == nil {
		args = []any{}
	}
	return msgpack.Marshal(args)
}

// DecodeArgsRaw splits an argument blob into its positional elements without
// committing to a Go type for any of them. The caller decodes each element
// into the method's declared parameter type. A nil/empty blob yields a nil
// slice, which callers must treat as "zero arguments".
func DecodeArgsRaw(data []byte) ([]msgpack.RawMessage, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var raw []msgpack.RawMessage
	if err := msgpack.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// EncodeValue encodes a single result, argument, or event value. A nil value
// encodes to a zero-length blob, which decodes back to "absent".
func EncodeValue(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return msgpack.Marshal(v)
}

// DecodeValue decodes a single value blob into out. A zero-length blob is a
// no-op, leaving out at its zero value.
func DecodeValue(data []byte, out any) error {
	if len(data) == 0 {
		return nil
	}
	return msgpack.Unmarshal(data, out)
}
