package notify

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nicholas-fedor/shoutrrr"

	"github.com/micro-ha/mwan3-status/internal/events"
)

const queueSize = 64

// Sender abstracts message dispatch so the dispatcher can be tested
// without hitting real services.
type Sender interface {
	Send(url, message string) error
}

// ShoutrrrSender dispatches via the Shoutrrr library.
type ShoutrrrSender struct{}

func (ShoutrrrSender) Send(url, message string) error {
	return shoutrrr.Send(url, message)
}

type Subscriber interface {
	Subscribe(handler events.Handler, types ...events.EventType)
}

type Options struct {
	URLs     []string
	Cooldown time.Duration
	Sender   Sender
	Logger   *slog.Logger
	Clock    func() time.Time
}

// Dispatcher turns interface transitions and router reachability changes
// into notifications on every configured Shoutrrr URL.
type Dispatcher struct {
	urls     []string
	cooldown time.Duration
	sender   Sender
	logger   *slog.Logger
	now      func() time.Time

	// last dispatch per (url, interface, event type)
	mu        sync.Mutex
	cooldowns map[string]time.Time

	queue    chan events.Event
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewDispatcher(opts Options) *Dispatcher {
	if opts.Sender == nil {
		opts.Sender = ShoutrrrSender{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Dispatcher{
		urls:      append([]string{}, opts.URLs...),
		cooldown:  opts.Cooldown,
		sender:    opts.Sender,
		logger:    opts.Logger,
		now:       opts.Clock,
		cooldowns: make(map[string]time.Time),
		queue:     make(chan events.Event, queueSize),
		stopCh:    make(chan struct{}),
	}
}

// Enabled reports whether any notification URL is configured.
func (d *Dispatcher) Enabled() bool {
	return len(d.urls) > 0
}

// Start subscribes to bus and sends notifications in a background goroutine.
func (d *Dispatcher) Start(bus Subscriber) {
	bus.Subscribe(func(e events.Event) {
		select {
		case d.queue <- e:
		default:
			d.logger.Warn("notify queue full, dropping event", "type", e.Type)
		}
	}, events.InterfaceStatusChanged, events.PollFailed, events.PollRecovered)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case e := <-d.queue:
				d.handle(e)
			case <-d.stopCh:
				for {
					select {
					case e := <-d.queue:
						d.handle(e)
					default:
						return
					}
				}
			}
		}
	}()
}

// Stop drains queued events and waits for the worker.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
	d.wg.Wait()
}

func (d *Dispatcher) handle(e events.Event) {
	if !shouldNotify(e) {
		return
	}
	msg := FormatMessage(e)
	for _, url := range d.urls {
		if !d.allow(url, e) {
			continue
		}
		if err := d.sender.Send(url, msg); err != nil {
			d.logger.Error("notification send failed", "type", e.Type, "interface", e.Interface, "err", err)
			continue
		}
		d.logger.Debug("notification sent", "type", e.Type, "interface", e.Interface)
	}
}

// shouldNotify keeps only the first failure of a failing streak.
func shouldNotify(e events.Event) bool {
	switch e.Type {
	case events.InterfaceStatusChanged, events.PollRecovered:
		return true
	case events.PollFailed:
		return e.Previous != e.Current
	default:
		return false
	}
}

func (d *Dispatcher) allow(url string, e events.Event) bool {
	if d.cooldown <= 0 {
		return true
	}
	key := url + "|" + e.Interface + "|" + string(e.Type)
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.cooldowns[key]; ok && now.Sub(last) < d.cooldown {
		return false
	}
	d.cooldowns[key] = now
	return true
}

// FormatMessage builds the notification text for e.
func FormatMessage(e events.Event) string {
	switch e.Type {
	case events.InterfaceStatusChanged:
		return fmt.Sprintf("[%s] interface %s is %s (was %s)", e.Router, e.Interface, e.Current, e.Previous)
	case events.PollFailed:
		return fmt.Sprintf("[%s] router unreachable: %s", e.Router, e.Message)
	case events.PollRecovered:
		return fmt.Sprintf("[%s] router reachable again, %d interfaces reported", e.Router, e.Interfaces)
	default:
		return fmt.Sprintf("[%s] %s", e.Router, e.Message)
	}
}
