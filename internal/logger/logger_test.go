package logger

import (
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestInit(t *testing.T) {
	logger := Init("test-service", slog.LevelInfo)
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestTraceID_RoundTrip(t *testing.T) {
	ctx := context.Background()

	// No trace ID set
	if tid := TraceID(ctx); tid != "" {
		t.Errorf("expected empty trace id, got %q", tid)
	}

	// Set and retrieve
	ctx = WithTraceID(ctx, "test-trace-123")
	if tid := TraceID(ctx); tid != "test-trace-123" {
		t.Errorf("expected 'test-trace-123', got %q", tid)
	}
}

func TestGenerateTraceID(t *testing.T) {
	tid := GenerateTraceID("NIFTY", "cn", "1H", 7)

	if tid == "" {
		t.Fatal("expected non-empty trace id")
	}
	if !strings.HasPrefix(tid, "NIFTY-cn-1H-") {
		t.Errorf("expected trace id to start with 'NIFTY-cn-1H-', got %s", tid)
	}
	if !strings.HasSuffix(tid, "-7") {
		t.Errorf("expected trace id to end with the run sequence, got %s", tid)
	}
}

func TestGenerateTraceID_DistinctRunSeq(t *testing.T) {
	a := GenerateTraceID("NIFTY", "cn", "1H", 1)
	b := GenerateTraceID("NIFTY", "cn", "1H", 2)
	if a == b {
		t.Errorf("expected distinct trace ids for distinct run sequences, got %q twice", a)
	}
}

func TestLogWithTrace(t *testing.T) {
	ctx := context.Background()

	// No trace ID
	attrs := LogWithTrace(ctx)
	if attrs != nil {
		t.Errorf("expected nil attrs when no trace id, got %v", attrs)
	}

	// With trace ID — returns [slog.Attr] which is a single element
	ctx = WithTraceID(ctx, "abc-123")
	attrs = LogWithTrace(ctx)
	if len(attrs) == 0 {
		t.Fatal("expected non-empty attrs with trace id set")
	}
}
