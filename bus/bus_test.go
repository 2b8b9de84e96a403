package bus

import (
	"context"
	"testing"
	"time"
)

func recv(t *testing.T, sub *Subscription, d time.Duration) *Message {
	t.Helper()
	select {
	case m := <-sub.Channel():
		return m
	case <-time.After(d):
		t.Fatal("timeout waiting for message")
		return nil
	}
}

func expectNone(t *testing.T, sub *Subscription, d time.Duration) {
	t.Helper()
	select {
	case m := <-sub.Channel():
		t.Fatalf("unexpected message: %+v", m)
	case <-time.After(d):
	}
}

func TestBasicPubSub(t *testing.T) {
	b := NewBus(4)
	conn := b.NewConnection("test")

	sub := conn.Subscribe(Topic{"config", "hal"})
	conn.Publish(conn.NewMessage(Topic{"config", "hal"}, "hello", false))

	if got := recv(t, sub, 100*time.Millisecond); got.Payload.(string) != "hello" {
		t.Errorf("expected payload 'hello', got %v", got.Payload)
	}
}

func TestRetainedMessage(t *testing.T) {
	b := NewBus(2)
	conn := b.NewConnection("test")

	conn.Publish(conn.NewMessage(Topic{"config", "hal"}, "persist", true))

	sub := conn.Subscribe(Topic{"config", "hal"})
	if got := recv(t, sub, 100*time.Millisecond); got.Payload.(string) != "persist" {
		t.Errorf("expected retained payload 'persist', got %v", got.Payload)
	}
}

func TestRetainedClear(t *testing.T) {
	b := NewBus(2)
	conn := b.NewConnection("test")

	conn.Publish(conn.NewMessage(Topic{"config", "hal"}, "persist", true))
	conn.Publish(conn.NewMessage(Topic{"config", "hal"}, nil, true))

	sub := conn.Subscribe(Topic{"config", "hal"})
	expectNone(t, sub, 50*time.Millisecond)
}

// -----------------------------------------------------------------------------
// Wildcards
// -----------------------------------------------------------------------------

func TestWildcard_SingleLevel(t *testing.T) {
	b := NewBus(16)
	c := b.NewConnection("test")

	sub := c.Subscribe(Topic{"hal", "capability", "+", 0, "value"})

	c.Publish(c.NewMessage(Topic{"hal", "capability", "temperature", 0, "value"}, 21, false))
	c.Publish(c.NewMessage(Topic{"hal", "capability", "humidity", 0, "value"}, 45, false))
	c.Publish(c.NewMessage(Topic{"hal", "capability", "humidity", 1, "value"}, 46, false))

	if got := recv(t, sub, 100*time.Millisecond); got.Payload.(int) != 21 {
		t.Fatalf("first match: got %v", got.Payload)
	}
	if got := recv(t, sub, 100*time.Millisecond); got.Payload.(int) != 45 {
		t.Fatalf("second match: got %v", got.Payload)
	}
	expectNone(t, sub, 30*time.Millisecond)
}

func TestWildcard_Tail(t *testing.T) {
	b := NewBus(16)
	c := b.NewConnection("test")

	sub := c.Subscribe(Topic{"hal", "#"})

	c.Publish(c.NewMessage(Topic{"hal", "state"}, "ready", false))
	c.Publish(c.NewMessage(Topic{"hal", "capability", "relay", 0, "value"}, 1, false))
	c.Publish(c.NewMessage(Topic{"bridge", "state"}, "up", false))

	if got := recv(t, sub, 100*time.Millisecond); got.Payload.(string) != "ready" {
		t.Fatalf("first match: got %v", got.Payload)
	}
	if got := recv(t, sub, 100*time.Millisecond); got.Payload.(int) != 1 {
		t.Fatalf("second match: got %v", got.Payload)
	}
	expectNone(t, sub, 30*time.Millisecond)
}

func TestWildcard_RetainedDeliveredOnSubscribe(t *testing.T) {
	b := NewBus(16)
	c := b.NewConnection("test")

	c.Publish(c.NewMessage(Topic{"hal", "capability", "temperature", 0, "info"}, "t-info", true))
	c.Publish(c.NewMessage(Topic{"hal", "capability", "humidity", 0, "info"}, "h-info", true))

	sub := c.Subscribe(Topic{"hal", "capability", "+", 0, "info"})

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		m := recv(t, sub, 100*time.Millisecond)
		seen[m.Payload.(string)] = true
	}
	if !seen["t-info"] || !seen["h-info"] {
		t.Fatalf("retained fan-out incomplete: %v", seen)
	}
}

// -----------------------------------------------------------------------------
// Request / reply
// -----------------------------------------------------------------------------

func TestRequestWait(t *testing.T) {
	b := NewBus(4)
	server := b.NewConnection("server")
	client := b.NewConnection("client")

	ctrl := server.Subscribe(Topic{"hal", "control", "ping"})
	go func() {
		req := <-ctrl.Channel()
		server.Reply(req, "pong", false)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	reply, err := client.RequestWait(ctx, client.NewMessage(Topic{"hal", "control", "ping"}, nil, false))
	if err != nil {
		t.Fatalf("RequestWait error: %v", err)
	}
	if reply.Payload.(string) != "pong" {
		t.Fatalf("reply payload: %v", reply.Payload)
	}
}

func TestRequestWait_Timeout(t *testing.T) {
	b := NewBus(4)
	client := b.NewConnection("client")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := client.RequestWait(ctx, client.NewMessage(Topic{"nobody", "home"}, nil, false)); err != ErrNoReply {
		t.Fatalf("expected ErrNoReply, got %v", err)
	}
}

func TestDisconnectClosesSubscriptions(t *testing.T) {
	b := NewBus(4)
	c := b.NewConnection("test")
	sub := c.Subscribe(Topic{"a"})
	c.Disconnect()

	if _, ok := <-sub.Channel(); ok {
		t.Fatal("expected closed channel after Disconnect")
	}
}
