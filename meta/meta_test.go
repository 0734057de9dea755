package meta

import (
	"context"
	"testing"
)

func TestSetGetRoundTrip(t *testing.T) {
	m := New()
	m.Set("request_id", "abc-123")

	v, ok := m.Get("request_id")
	if !ok || v != "abc-123" {
		t.Fatalf("Get() = (%v, %v), want (abc-123, true)", v, ok)
	}
}

func TestGetMissingKeyReturnsFalse(t *testing.T) {
	m := New()
	if _, ok := m.Get("missing"); ok {
		t.Fatal("expected Get of a missing key to return false")
	}
}

func TestWithContextAndFromContextRoundTrip(t *testing.T) {
	m := New()
	m.Set("principal", "1.2.3.4")

	ctx := m.WithContext(context.Background())
	recovered := FromContext(ctx)

	v, ok := recovered.Get("principal")
	if !ok || v != "1.2.3.4" {
		t.Fatalf("Get() after round trip = (%v, %v), want (1.2.3.4, true)", v, ok)
	}
}

func TestFromContextWithNoMetadataReturnsEmpty(t *testing.T) {
	md := FromContext(context.Background())
	if _, ok := md.Get("anything"); ok {
		t.Fatal("expected an empty Metadata when none was attached")
	}
}

func TestGenericGetTypeAssertsValue(t *testing.T) {
	m := New()
	m.Set("request_id", "abc-123")
	ctx := m.WithContext(context.Background())

	v, err := Get[string](ctx, "request_id")
	if err != nil {
		t.Fatalf("Get[string]: %v", err)
	}
	if v != "abc-123" {
		t.Fatalf("Get[string]() = %q, want abc-123", v)
	}
}

func TestGenericGetReturnsErrorOnTypeMismatch(t *testing.T) {
	m := New()
	m.Set("count", 42)
	ctx := m.WithContext(context.Background())

	if _, err := Get[string](ctx, "count"); err == nil {
		t.Fatal("expected Get[string] to error when the stored value is an int")
	}
}

func TestGenericGetReturnsErrorOnMissingKey(t *testing.T) {
	if _, err := Get[string](context.Background(), "missing"); err == nil {
		t.Fatal("expected Get to error on a missing key")
	}
}
