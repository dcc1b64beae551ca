package messaging

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

// newTestClient connects to a local NATS server. Tests skip when none is
// running.
func newTestClient(t *testing.T) *NATSClient {
	t.Helper()
	cfg := DefaultNATSConfig()
	cfg.Name = "chatmod-test"
	cfg.MaxReconnects = 0

	c, err := NewNATSClient(cfg, zap.NewNop())
	if err != nil {
		t.Skipf("nats not available: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestRequestRespond(t *testing.T) {
	c := newTestClient(t)
	subject := "test.echo." + t.Name()

	err := c.Respond(subject, func(data []byte) []byte {
		return append([]byte("echo:"), data...)
	})
	if err != nil {
		t.Fatalf("Respond: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	got, err := c.Request(ctx, subject, []byte("hi"))
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if string(got) != "echo:hi" {
		t.Errorf("reply = %q, want %q", got, "echo:hi")
	}
}

func TestRequestNoResponder(t *testing.T) {
	c := newTestClient(t)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	if _, err := c.Request(ctx, "test.nobody.home", []byte("hi")); err == nil {
		t.Fatal("expected an error without a responder")
	}
}

func TestUnsubscribeUnknown(t *testing.T) {
	c := newTestClient(t)
	if err := c.Unsubscribe("never.subscribed"); err == nil {
		t.Fatal("expected an error for an unknown subject")
	}
}
