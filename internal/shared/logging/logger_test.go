package logging

import (
	"fmt"
	"testing"
)

type recordingLogger struct {
	lines []string
}

func (r *recordingLogger) Debug(format string, args ...any) { r.record("D", format, args...) }
func (r *recordingLogger) Info(format string, args ...any)  { r.record("I", format, args...) }
func (r *recordingLogger) Warn(format string, args ...any)  { r.record("W", format, args...) }
func (r *recordingLogger) Error(format string, args ...any) { r.record("E", format, args...) }

func (r *recordingLogger) record(level, format string, args ...any) {
	r.lines = append(r.lines, level+" "+fmt.Sprintf(format, args...))
}

func TestOrNop_NilVariants(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("OrNop(nil) returned nil")
	}
	var typedNil *recordingLogger
	got := OrNop(typedNil)
	if got == nil {
		t.Fatal("OrNop(typed nil) returned nil")
	}
	// must not panic
	got.Info("hello %s", "world")
}

func TestOrNop_PassthroughForNonNil(t *testing.T) {
	rec := &recordingLogger{}
	if OrNop(rec) != Logger(rec) {
		t.Fatal("expected passthrough for non-nil logger")
	}
}

func TestIsNil(t *testing.T) {
	var typedNil *recordingLogger
	tests := []struct {
		name   string
		logger Logger
		want   bool
	}{
		{"nil interface", nil, true},
		{"typed nil pointer", typedNil, true},
		{"value logger", nopLogger{}, false},
		{"pointer logger", &recordingLogger{}, false},
	}
	for _, tt := range tests {
		if got := IsNil(tt.logger); got != tt.want {
			t.Errorf("%s: IsNil = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestMulti_FansOutInOrder(t *testing.T) {
	a := &recordingLogger{}
	b := &recordingLogger{}
	m := Multi(a, nil, b)

	m.Info("n=%d", 7)
	m.Error("boom")

	for _, rec := range []*recordingLogger{a, b} {
		if len(rec.lines) != 2 {
			t.Fatalf("expected 2 lines, got %d", len(rec.lines))
		}
		if rec.lines[0] != "I n=7" || rec.lines[1] != "E boom" {
			t.Fatalf("unexpected lines: %v", rec.lines)
		}
	}
}

func TestMulti_FlattensNestedMulti(t *testing.T) {
	a := &recordingLogger{}
	b := &recordingLogger{}
	nested := Multi(a, b)
	m := Multi(nested)

	inner, ok := m.(*multiLogger)
	if !ok {
		t.Fatalf("expected *multiLogger, got %T", m)
	}
	if len(inner.loggers) != 2 {
		t.Fatalf("expected 2 flattened loggers, got %d", len(inner.loggers))
	}
}

func TestMulti_EmptyIsNop(t *testing.T) {
	m := Multi(nil, nil)
	if _, ok := m.(nopLogger); !ok {
		t.Fatalf("expected nop logger, got %T", m)
	}
}
