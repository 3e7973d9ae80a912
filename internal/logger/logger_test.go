package logger

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain", "hello", "hello"},
		{"keeps tab and newline", "a\tb\nc", "a\tb\nc"},
		{"strips control", "a\x00b\x1bc", "abc"},
		{"strips delete", "a\x7fb", "ab"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Sanitize(tc.in); got != tc.want {
				t.Fatalf("Sanitize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestSanitizeLimit(t *testing.T) {
	if got := SanitizeLimit("abcdef", 3); got != "abc" {
		t.Fatalf("SanitizeLimit = %q", got)
	}
	if got := SanitizeLimit("abc", 10); got != "abc" {
		t.Fatalf("SanitizeLimit = %q", got)
	}
	if got := SanitizeLimit("abc", 0); got != "" {
		t.Fatalf("SanitizeLimit = %q", got)
	}
}

func TestStatus(t *testing.T) {
	if got := Status(nil); got != "ok" {
		t.Fatalf("Status(nil) = %q", got)
	}
	if got := Status(errors.New("boom")); got != "error" {
		t.Fatalf("Status(err) = %q", got)
	}
}

func TestRoundMS(t *testing.T) {
	if got := RoundMS(-time.Second); got != 0 {
		t.Fatalf("RoundMS(negative) = %v", got)
	}
	if got := RoundMS(1499 * time.Microsecond); got != time.Millisecond {
		t.Fatalf("RoundMS = %v", got)
	}
}

func TestBuildRID(t *testing.T) {
	if got := BuildRID("wa", "263771234567", 7); got != "wa:263771234567:7" {
		t.Fatalf("BuildRID = %q", got)
	}
}

func TestSenderContextRoundTrip(t *testing.T) {
	ctx := WithSender(context.Background(), "263771234567")
	if got := SenderFrom(ctx); got != "263771234567" {
		t.Fatalf("SenderFrom = %q", got)
	}
	if got := SenderFrom(context.Background()); got != "" {
		t.Fatalf("SenderFrom(empty) = %q", got)
	}
	if ctx := WithSender(context.Background(), ""); SenderFrom(ctx) != "" {
		t.Fatal("empty sender should not be stored")
	}
}

func TestFromContextFallsBack(t *testing.T) {
	if got := FromContext(context.Background()); got != L {
		t.Fatal("FromContext without logger should return the base logger")
	}
	child := L.With("component", "test")
	ctx := WithLogger(context.Background(), child)
	if got := FromContext(ctx); got != child {
		t.Fatal("FromContext did not return the stored logger")
	}
}
