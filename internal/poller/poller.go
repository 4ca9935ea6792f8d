package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/micro-ha/mwan3-status/internal/events"
	"github.com/micro-ha/mwan3-status/internal/model"
)

// ErrNotReady is returned when the first refresh was abandoned.
var ErrNotReady = errors.New("first refresh did not complete")

const (
	pollOK     = "ok"
	pollFailed = "failed"
)

// StatusFetcher downloads one interface snapshot from the router.
type StatusFetcher interface {
	FetchStatus(ctx context.Context) (model.Snapshot, error)
	Close() error
}

type Publisher interface {
	Publish(e events.Event)
}

// Observer receives the outcome of every completed fetch.
type Observer interface {
	ObservePoll(duration time.Duration, interfaces int, err error)
}

type Options struct {
	Name     string
	Interval time.Duration
	// KeepLastGood keeps the previous snapshot when a poll fails instead of
	// publishing an empty one.
	KeepLastGood bool
	Publisher    Publisher
	Observer     Observer
	Logger       *slog.Logger
	Clock        func() time.Time
}

// Poller refreshes the interface snapshot on a fixed interval and serves the
// latest one between ticks. Refreshes never overlap.
type Poller struct {
	fetcher      StatusFetcher
	name         string
	interval     time.Duration
	keepLastGood bool
	publisher    Publisher
	observer     Observer
	logger       *slog.Logger
	now          func() time.Time
	refreshCh    chan struct{}

	mu          sync.RWMutex
	data        model.Snapshot
	known       map[string]string
	ready       bool
	failing     bool
	lastRefresh time.Time
	lastErr     error
	listeners   []func(model.Snapshot)

	shutdownOnce sync.Once
	shutdownErr  error
}

func New(fetcher StatusFetcher, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = model.DefaultScanInterval * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Poller{
		fetcher:      fetcher,
		name:         opts.Name,
		interval:     opts.Interval,
		keepLastGood: opts.KeepLastGood,
		publisher:    opts.Publisher,
		observer:     opts.Observer,
		logger:       opts.Logger,
		now:          opts.Clock,
		refreshCh:    make(chan struct{}, 1),
		data:         model.Snapshot{},
		known:        map[string]string{},
	}
}

func (p *Poller) Name() string {
	return p.name
}

func (p *Poller) Interval() time.Duration {
	return p.interval
}

// AddListener registers a callback run after every published snapshot.
func (p *Poller) AddListener(fn func(model.Snapshot)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// Data returns a copy of the latest snapshot.
func (p *Poller) Data() model.Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.data.Clone()
}

func (p *Poller) Ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ready
}

// LastRefresh returns when the last snapshot was published and the error of that poll.
func (p *Poller) LastRefresh() (time.Time, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastRefresh, p.lastErr
}

// FirstRefresh performs the initial poll that must finish before the poller
// is considered ready. Its snapshot decides which sensors exist.
func (p *Poller) FirstRefresh(ctx context.Context) (model.Snapshot, error) {
	snapshot := p.Refresh(ctx)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotReady, err)
	}
	p.mu.Lock()
	p.ready = true
	p.mu.Unlock()
	return snapshot, nil
}

// Refresh fetches and publishes a new snapshot. Failures are logged and turn
// into an empty snapshot, or the previous one with KeepLastGood. A cancelled
// ctx publishes nothing and returns the current data.
func (p *Poller) Refresh(ctx context.Context) model.Snapshot {
	fetchCtx, cancel := context.WithTimeout(ctx, p.interval)
	defer cancel()

	startedAt := p.now()
	snapshot, err := p.fetcher.FetchStatus(fetchCtx)
	duration := p.now().Sub(startedAt)

	if ctx.Err() != nil {
		p.logger.Debug("refresh abandoned", "router", p.name, "err", ctx.Err())
		return p.Data()
	}
	if p.observer != nil {
		p.observer.ObservePoll(duration, len(snapshot), err)
	}

	if err != nil {
		p.logger.Error("error fetching status", "router", p.name, "err", err)
		next := model.Snapshot{}
		if p.keepLastGood {
			next = p.Data()
		}
		p.publish(next, err, duration)
		return next.Clone()
	}

	if snapshot == nil {
		snapshot = model.Snapshot{}
	}
	p.publish(snapshot, nil, duration)
	return snapshot.Clone()
}

// TriggerRefresh asks Run to poll now instead of waiting for the timer.
func (p *Poller) TriggerRefresh() {
	select {
	case p.refreshCh <- struct{}{}:
	default:
	}
}

// Run polls every interval until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	for {
		timer := time.NewTimer(p.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-p.refreshCh:
			timer.Stop()
		case <-timer.C:
		}
		p.Refresh(ctx)
	}
}

// Shutdown releases the fetcher. Only the first call has an effect.
func (p *Poller) Shutdown() error {
	p.shutdownOnce.Do(func() {
		p.shutdownErr = p.fetcher.Close()
	})
	return p.shutdownErr
}

func (p *Poller) publish(next model.Snapshot, err error, duration time.Duration) {
	p.mu.Lock()
	p.data = next
	p.lastRefresh = p.now()
	p.lastErr = err
	wasFailing := p.failing
	p.failing = err != nil

	var changes []events.Event
	if err == nil {
		for _, name := range next.Names() {
			current := next[name].Status
			previous, seen := p.known[name]
			if seen && previous != current {
				event := events.NewEvent(events.InterfaceStatusChanged)
				event.Interface = name
				event.Previous = previous
				event.Current = current
				event.Message = fmt.Sprintf("%s %s changed from %s to %s", p.name, name, previous, current)
				changes = append(changes, event)
			}
			p.known[name] = current
		}
	}
	listeners := append([]func(model.Snapshot){}, p.listeners...)
	p.mu.Unlock()

	p.emit(next, err, wasFailing, duration, changes)
	for _, listener := range listeners {
		listener(next.Clone())
	}
}

func (p *Poller) emit(next model.Snapshot, err error, wasFailing bool, duration time.Duration, changes []events.Event) {
	if p.publisher == nil {
		return
	}
	previous := pollOK
	if wasFailing {
		previous = pollFailed
	}

	if err != nil {
		event := events.NewEvent(events.PollFailed)
		event.Router = p.name
		event.Previous = previous
		event.Current = pollFailed
		event.Message = err.Error()
		event.Duration = duration
		p.publisher.Publish(event)
		return
	}

	if wasFailing {
		event := events.NewEvent(events.PollRecovered)
		event.Router = p.name
		event.Previous = previous
		event.Current = pollOK
		event.Message = p.name + " is reachable again"
		event.Interfaces = len(next)
		p.publisher.Publish(event)
	}

	event := events.NewEvent(events.PollSucceeded)
	event.Router = p.name
	event.Previous = previous
	event.Current = pollOK
	event.Interfaces = len(next)
	event.Duration = duration
	p.publisher.Publish(event)

	for _, change := range changes {
		change.Router = p.name
		p.publisher.Publish(change)
	}
}
