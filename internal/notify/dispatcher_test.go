package notify

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/micro-ha/mwan3-status/internal/events"
)

// mockSender records calls for assertion.
type mockSender struct {
	mu       sync.Mutex
	urls     []string
	calls    []string
	failNext bool
}

func (m *mockSender) Send(url, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.urls = append(m.urls, url)
	m.calls = append(m.calls, message)
	if m.failNext {
		m.failNext = false
		return fmt.Errorf("mock send error")
	}
	return nil
}

func (m *mockSender) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time { return c.now }

func newTestDispatcher(sender Sender, clock *manualClock, cooldown time.Duration, urls ...string) *Dispatcher {
	return NewDispatcher(Options{
		URLs:     urls,
		Cooldown: cooldown,
		Sender:   sender,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:    clock.Now,
	})
}

func statusChange(iface, prev, curr string) events.Event {
	e := events.NewEvent(events.InterfaceStatusChanged)
	e.Router = "Home"
	e.Interface = iface
	e.Previous = prev
	e.Current = curr
	return e
}

func TestDispatcherSendsThroughBus(t *testing.T) {
	sender := &mockSender{}
	d := newTestDispatcher(sender, &manualClock{now: time.Now()}, 0, "generic://a", "generic://b")
	bus := events.NewBus(slog.New(slog.NewTextHandler(io.Discard, nil)))

	d.Start(bus)
	bus.Publish(statusChange("wan1", "online", "offline"))
	bus.Publish(events.Event{Type: events.PollSucceeded, Router: "Home"})
	d.Stop()

	if sender.callCount() != 2 {
		t.Fatalf("expected 2 sends (one per URL), got %d", sender.callCount())
	}
	if sender.calls[0] != "[Home] interface wan1 is offline (was online)" {
		t.Fatalf("unexpected message %q", sender.calls[0])
	}
}

func TestDispatcherOnlyFirstFailure(t *testing.T) {
	sender := &mockSender{}
	d := newTestDispatcher(sender, &manualClock{now: time.Now()}, 0, "generic://a")

	first := events.Event{Type: events.PollFailed, Router: "Home", Previous: "ok", Current: "failed", Message: "timeout"}
	again := events.Event{Type: events.PollFailed, Router: "Home", Previous: "failed", Current: "failed", Message: "timeout"}
	recovered := events.Event{Type: events.PollRecovered, Router: "Home", Previous: "failed", Current: "ok", Interfaces: 2}

	d.handle(first)
	d.handle(again)
	d.handle(again)
	d.handle(recovered)

	if sender.callCount() != 2 {
		t.Fatalf("expected failure and recovery notifications only, got %d: %v", sender.callCount(), sender.calls)
	}
	if sender.calls[1] != "[Home] router reachable again, 2 interfaces reported" {
		t.Fatalf("unexpected recovery message %q", sender.calls[1])
	}
}

func TestDispatcherCooldown(t *testing.T) {
	sender := &mockSender{}
	clock := &manualClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	d := newTestDispatcher(sender, clock, 5*time.Minute, "generic://a")

	d.handle(statusChange("wan1", "online", "offline"))
	clock.now = clock.now.Add(time.Minute)
	d.handle(statusChange("wan1", "offline", "online"))
	d.handle(statusChange("wan2", "online", "offline"))

	if sender.callCount() != 2 {
		t.Fatalf("expected wan1 repeat to be suppressed, got %d sends", sender.callCount())
	}

	clock.now = clock.now.Add(5 * time.Minute)
	d.handle(statusChange("wan1", "online", "offline"))
	if sender.callCount() != 3 {
		t.Fatalf("expected send after cooldown elapsed, got %d", sender.callCount())
	}
}

func TestDispatcherSendFailureContinues(t *testing.T) {
	sender := &mockSender{failNext: true}
	d := newTestDispatcher(sender, &manualClock{now: time.Now()}, 0, "generic://a", "generic://b")

	d.handle(statusChange("wan1", "online", "offline"))

	if sender.callCount() != 2 {
		t.Fatalf("expected second URL to be tried after a failure, got %d", sender.callCount())
	}
}
