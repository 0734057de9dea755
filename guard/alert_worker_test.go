package guard

import (
	"context"
	"errors"
	"testing"
)

type fakeBroadcaster struct {
	calls int
	topic string
	args  []any
	err   error
}

func (f *fakeBroadcaster) Broadcast(ctx context.Context, topic string, args ...any) error {
	f.calls++
	f.topic = topic
	f.args = args
	return f.err
}

func TestWorkerAlertSink_PublishesToConfiguredTopic(t *testing.T) {
	fb := &fakeBroadcaster{}
	sink := NewWorkerAlertSink(fb, "shield.alerts")

	sink.Alert("malicious_client_detected", "ip:1.2.3.4")

	if fb.calls != 1 {
		t.Fatalf("expected 1 broadcast call, got %d", fb.calls)
	}
	if fb.topic != "shield.alerts" {
		t.Fatalf("expected topic shield.alerts, got %q", fb.topic)
	}
	if len(fb.args) < 2 || fb.args[0] != "malicious_client_detected" || fb.args[1] != "ip:1.2.3.4" {
		t.Fatalf("unexpected broadcast args: %+v", fb.args)
	}
}

func TestWorkerAlertSink_SwallowsBroadcastErrors(t *testing.T) {
	fb := &fakeBroadcaster{err: errors.New("boom")}
	sink := NewWorkerAlertSink(fb, "shield.alerts")

	// Must not panic, and must not propagate the error anywhere: Alert
	// has no return value by design.
	sink.Alert("rate_limit_fail_open", "ip:9.9.9.9")

	if fb.calls != 1 {
		t.Fatalf("expected the broadcast to still be attempted, got %d calls", fb.calls)
	}
}
