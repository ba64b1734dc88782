package payload

import "testing"

func TestEncodeDecodeArgsPositional(t *testing.T) {
	args := []any{5, 3}

	data, err := EncodeArgs(args)
	if err != nil {
		t.Fatalf("EncodeArgs failed: %v", err)
	}

	raw, err := DecodeArgsRaw(data)
	if err != nil {
		t.Fatalf("DecodeArgsRaw failed: %v", err)
	}
	if len(raw) != 2 {
		t.Fatalf("expected 2 positional elements, got %d", len(raw))
	}

	var a, b int
	if err := DecodeValue(raw[0], &a); err != nil {
		t.Fatalf("decode first arg: %v", err)
	}
	if err := DecodeValue(raw[1], &b); err != nil {
		t.Fatalf("decode second arg: %v", err)
	}
	if a != 5 || b != 3 {
		t.Errorf("mismatch: got a=%d b=%d, want a=5 b=3", a, b)
	}
}

func TestEncodeArgsZeroArguments(t *testing.T) {
	data, err := EncodeArgs(nil)
	if err != nil {
		t.Fatalf("EncodeArgs failed: %v", err)
	}
	raw, err := DecodeArgsRaw(data)
	if err != nil {
		t.Fatalf("DecodeArgsRaw failed: %v", err)
	}
	if len(raw) != 0 {
		t.Errorf("expected zero elements, got %d", len(raw))
	}
}

func TestDecodeArgsRawAbsentBlob(t *testing.T) {
	raw, err := DecodeArgsRaw(nil)
	if err != nil {
		t.Fatalf("DecodeArgsRaw failed: %v", err)
	}
	if raw != nil {
		t.Errorf("expected nil for an absent blob, got %v", raw)
	}
}

func TestEncodeDecodeValueRoundTrip(t *testing.T) {
	data, err := EncodeValue("Echoed: Hello")
	if err != nil {
		t.Fatalf("EncodeValue failed: %v", err)
	}
	var got string
	if err := DecodeValue(data, &got); err != nil {
		t.Fatalf("DecodeValue failed: %v", err)
	}
	if got != "Echoed: Hello" {
		t.Errorf("mismatch: got %q, want %q", got, "Echoed: Hello")
	}
}

func TestEncodeValueNilIsAbsent(t *testing.T) {
	data, err := EncodeValue(nil)
	if err != nil {
		t.Fatalf("EncodeValue failed: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("expected zero-length blob for nil, got %d bytes", len(data))
	}

	var out string
	if err := DecodeValue(data, &out); err != nil {
		t.Fatalf("DecodeValue on absent blob failed: %v", err)
	}
	if out != "" {
		t.Errorf("expected zero value, got %q", out)
	}
}

func TestEncodeDecodeMap(t *testing.T) {
	original := map[string]any{"a": int8(1), "b": "two"}
	data, err := EncodeValue(original)
	if err != nil {
		t.Fatalf("EncodeValue failed: %v", err)
	}
	var got map[string]any
	if err := DecodeValue(data, &got); err != nil {
		t.Fatalf("DecodeValue failed: %v", err)
	}
	if got["b"] != "two" {
		t.Errorf("mismatch decoding map: got %v", got)
	}
}
