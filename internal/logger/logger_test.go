package logger

import (
	"strings"
	"testing"
)

func TestSanitizeKVs_RedactsSecrets(t *testing.T) {
	l := &Logger{redact: true}
	out := l.sanitizeKVs([]interface{}{"api_key", "sk-123", "unit_id", "u1"})
	if out[1] != "[REDACTED]" {
		t.Errorf("api_key not redacted: %v", out[1])
	}
	if out[3] != "u1" {
		t.Errorf("unit_id should pass through, got %v", out[3])
	}
}

func TestSanitizeKVs_HashesSessionIDs(t *testing.T) {
	l := &Logger{redact: true, salt: "pepper"}
	out := l.sanitizeKVs([]interface{}{"session_id", "s1"})
	got, ok := out[1].(string)
	if !ok || !strings.HasPrefix(got, "hash:") {
		t.Fatalf("expected hashed value, got %v", out[1])
	}
	again := l.sanitizeKVs([]interface{}{"session_id", "s1"})
	if again[1] != got {
		t.Error("hash must be stable for the same input")
	}
}

func TestSanitizeKVs_OddLengthKeepsTrailingKey(t *testing.T) {
	l := &Logger{redact: true}
	out := l.sanitizeKVs([]interface{}{"a", 1, "dangling"})
	if len(out) != 3 || out[2] != "dangling" {
		t.Fatalf("unexpected output: %v", out)
	}
}

func TestSanitizeKVs_DisabledIsPassthrough(t *testing.T) {
	l := &Logger{}
	in := []interface{}{"password", "hunter2"}
	out := l.sanitizeKVs(in)
	if out[1] != "hunter2" {
		t.Errorf("redaction disabled should not mask, got %v", out[1])
	}
}

func TestNewWithOptions_BadLevel(t *testing.T) {
	if _, err := NewWithOptions(Options{Mode: "development", Level: "loud"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
