package middleware

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"bridgerpc/payload"
	"bridgerpc/protocol"
)

func echoHandler(ctx context.Context, call *protocol.CallFrame) *protocol.ResponseFrame {
	return &protocol.ResponseFrame{RequestID: call.RequestID, Status: protocol.StatusSuccess}
}

func slowHandler(ctx context.Context, call *protocol.CallFrame) *protocol.ResponseFrame {
	time.Sleep(200 * time.Millisecond)
	return &protocol.ResponseFrame{RequestID: call.RequestID, Status: protocol.StatusSuccess}
}

func decodeErrorMessage(t *testing.T, resp *protocol.ResponseFrame) string {
	t.Helper()
	var msg string
	if err := payload.DecodeValue(resp.Result, &msg); err != nil {
		t.Fatalf("decoding error message failed: %v", err)
	}
	return msg
}

func TestLogging(t *testing.T) {
	handler := Logging(zap.NewNop())(echoHandler)

	resp := handler(context.Background(), &protocol.CallFrame{RequestID: 1, Method: "Add"})
	if resp.Status != protocol.StatusSuccess {
		t.Fatalf("expected success, got status %q", resp.Status)
	}
}

func TestTimeoutPass(t *testing.T) {
	handler := Timeout(500 * time.Millisecond)(echoHandler)

	resp := handler(context.Background(), &protocol.CallFrame{RequestID: 1, Method: "Add"})
	if resp.Status != protocol.StatusSuccess {
		t.Fatalf("expected success, got status %q", resp.Status)
	}
}

func TestTimeoutExceeded(t *testing.T) {
	handler := Timeout(50 * time.Millisecond)(slowHandler)

	resp := handler(context.Background(), &protocol.CallFrame{RequestID: 1, Method: "Add"})
	if resp.Status != protocol.StatusError {
		t.Fatalf("expected an error status, got %q", resp.Status)
	}
	if msg := decodeErrorMessage(t, resp); msg != "request timed out" {
		t.Fatalf("expected timeout message, got %q", msg)
	}
}

func TestRateLimit(t *testing.T) {
	handler := RateLimit(1, 2)(echoHandler)
	call := &protocol.CallFrame{RequestID: 1, Method: "Add"}

	for i := 0; i < 2; i++ {
		resp := handler(context.Background(), call)
		if resp.Status != protocol.StatusSuccess {
			t.Fatalf("request %d should pass, got status %q", i, resp.Status)
		}
	}

	resp := handler(context.Background(), call)
	if resp.Status != protocol.StatusError {
		t.Fatal("third request should be rate limited")
	}
	if msg := decodeErrorMessage(t, resp); msg != "rate limit exceeded" {
		t.Fatalf("expected rate limit message, got %q", msg)
	}
}

func TestChain(t *testing.T) {
	chained := Chain(Logging(zap.NewNop()), Timeout(500*time.Millisecond))
	handler := chained(echoHandler)

	resp := handler(context.Background(), &protocol.CallFrame{RequestID: 1, Method: "Add"})
	if resp.Status != protocol.StatusSuccess {
		t.Fatalf("expected success, got status %q", resp.Status)
	}
}

func TestLogAtUnknownSeverityDegradesToInformation(t *testing.T) {
	// An unrecognized severity and "None" are logged at Info level; Critical
	// is logged at Error level rather than panicking.
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)
	LogAt(logger, "Whatever", "a message")
	LogAt(logger, "None", "a message")
	LogAt(logger, "Critical", "a message")

	entries := logs.AllUntimed()
	if len(entries) != 3 {
		t.Fatalf("expected 3 log entries, got %d", len(entries))
	}
	if entries[0].Level != zap.InfoLevel || entries[1].Level != zap.InfoLevel {
		t.Errorf("expected Info level for unknown and None, got %v and %v", entries[0].Level, entries[1].Level)
	}
	if entries[2].Level != zap.ErrorLevel {
		t.Errorf("expected Error level for Critical, got %v", entries[2].Level)
	}
}
