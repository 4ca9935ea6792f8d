package integration

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/micro-ha/mwan3-status/internal/luci"
	"github.com/micro-ha/mwan3-status/internal/model"
	"github.com/micro-ha/mwan3-status/internal/poller"
	"github.com/micro-ha/mwan3-status/internal/sensor"
	"github.com/micro-ha/mwan3-status/internal/setup"
)

var ErrIntegrationNotConfigured = errors.New("integration not configured")

const (
	defaultMinBackoff = time.Second
	defaultMaxBackoff = 60 * time.Second
)

// ConfigSource returns the current router options, usually a *configsync.Manager.
type ConfigSource interface {
	Get() (model.RouterConfig, bool)
}

type Options struct {
	Config     ConfigSource
	Registrars []sensor.Registrar
	Publisher  poller.Publisher
	Observer   poller.Observer
	Logger     *slog.Logger
	// LuciOptions are passed to every authenticator the integration builds.
	LuciOptions []luci.Option
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
}

// Status summarizes the running integration for the API.
type Status struct {
	Configured   bool       `json:"configured"`
	Ready        bool       `json:"ready"`
	Title        string     `json:"title,omitempty"`
	Host         string     `json:"host,omitempty"`
	Interfaces   []string   `json:"interfaces"`
	ScanInterval int        `json:"scan_interval,omitempty"`
	KeepLastGood bool       `json:"keep_last_good"`
	LastRefresh  *time.Time `json:"last_refresh,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	ErrorCode    string     `json:"error_code,omitempty"`
}

// Integration owns one configured router: it validates the options, builds
// the poller, materializes sensors from the first refresh and hands them to
// the registrars.
type Integration struct {
	config     ConfigSource
	registrars []sensor.Registrar
	registry   *sensor.Registry
	publisher  poller.Publisher
	observer   poller.Observer
	logger     *slog.Logger
	luciOpts   []luci.Option
	minBackoff time.Duration
	maxBackoff time.Duration
	reloadCh   chan struct{}

	lifecycle sync.Mutex

	mu       sync.RWMutex
	cfg      model.RouterConfig
	info     setup.Info
	poller   *poller.Poller
	cancel   context.CancelFunc
	done     chan struct{}
	startErr error
}

func New(opts Options) *Integration {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = defaultMinBackoff
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = defaultMaxBackoff
	}
	return &Integration{
		config:     opts.Config,
		registrars: opts.Registrars,
		registry:   sensor.NewRegistry(),
		publisher:  opts.Publisher,
		observer:   opts.Observer,
		logger:     opts.Logger,
		luciOpts:   append([]luci.Option{luci.WithLogger(opts.Logger)}, opts.LuciOptions...),
		minBackoff: opts.MinBackoff,
		maxBackoff: opts.MaxBackoff,
		reloadCh:   make(chan struct{}, 1),
	}
}

// Start sets up the configured router. A running setup is stopped first.
func (i *Integration) Start(ctx context.Context) error {
	i.lifecycle.Lock()
	defer i.lifecycle.Unlock()

	i.stopLocked()

	cfg, ok := i.config.Get()
	if !ok {
		i.setStartErr(ErrIntegrationNotConfigured)
		return ErrIntegrationNotConfigured
	}

	info, err := setup.ValidateInput(ctx, cfg, i.luciOpts...)
	if err != nil {
		i.setStartErr(err)
		return err
	}

	client := luci.NewRouterClient(cfg, i.luciOpts...)
	p := poller.New(client, poller.Options{
		Name:         info.Title,
		Interval:     cfg.ScanInterval(),
		KeepLastGood: cfg.KeepLastGood,
		Publisher:    i.publisher,
		Observer:     i.observer,
		Logger:       i.logger,
	})

	snapshot, err := p.FirstRefresh(ctx)
	if err != nil {
		_ = p.Shutdown()
		i.setStartErr(err)
		return err
	}

	sensors := sensor.FromSnapshot(p, info.Title, snapshot)
	i.register(sensors)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(runCtx)
	}()

	i.mu.Lock()
	i.cfg = cfg
	i.info = info
	i.poller = p
	i.cancel = cancel
	i.done = done
	i.startErr = nil
	i.mu.Unlock()

	i.logger.Info("mwan3 integration started",
		"title", info.Title,
		"interfaces", len(sensors),
		"scan_interval", cfg.ScanIntervalSec,
	)
	return nil
}

// Stop halts polling, unregisters the sensors and releases the router session.
func (i *Integration) Stop() {
	i.lifecycle.Lock()
	defer i.lifecycle.Unlock()
	i.stopLocked()
}

func (i *Integration) stopLocked() {
	i.mu.Lock()
	p, cancel, done := i.poller, i.cancel, i.done
	i.poller, i.cancel, i.done = nil, nil, nil
	i.info = setup.Info{}
	i.mu.Unlock()

	if p == nil {
		return
	}
	cancel()
	<-done
	if err := p.Shutdown(); err != nil {
		i.logger.Warn("poller shutdown failed", "err", err)
	}
	i.register(nil)
	i.logger.Info("mwan3 integration stopped")
}

// Run keeps the integration started until ctx is cancelled. Failed starts
// are retried with exponential backoff; Reload restarts it with fresh options.
func (i *Integration) Run(ctx context.Context) {
	defer i.Stop()

	retry := i.newBackOff()
	for {
		err := i.Start(ctx)
		if ctx.Err() != nil {
			return
		}

		var wait <-chan time.Time
		switch {
		case err == nil:
			retry.Reset()
		case errors.Is(err, ErrIntegrationNotConfigured):
			i.logger.Info("waiting for router options")
		default:
			delay := retry.NextBackOff()
			i.logger.Warn("mwan3 setup failed, retrying",
				"err", err,
				"code", luci.ErrorCode(err),
				"retry_in", delay.String(),
			)
			wait = time.After(delay)
		}

		select {
		case <-ctx.Done():
			return
		case <-i.reloadCh:
			retry.Reset()
		case <-wait:
		}
	}
}

func (i *Integration) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = i.minBackoff
	b.MaxInterval = i.maxBackoff
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Reload asks Run to restart with the current options.
func (i *Integration) Reload() {
	select {
	case i.reloadCh <- struct{}{}:
	default:
	}
}

// TriggerRefresh asks the running poller to poll now. It reports false when
// nothing is running.
func (i *Integration) TriggerRefresh() bool {
	i.mu.RLock()
	p := i.poller
	i.mu.RUnlock()
	if p == nil {
		return false
	}
	p.TriggerRefresh()
	return true
}

func (i *Integration) Snapshot() model.Snapshot {
	i.mu.RLock()
	p := i.poller
	i.mu.RUnlock()
	if p == nil {
		return model.Snapshot{}
	}
	return p.Data()
}

func (i *Integration) Sensors() []*sensor.Sensor {
	return i.registry.Sensors()
}

func (i *Integration) Sensor(iface string) (*sensor.Sensor, bool) {
	return i.registry.ByInterface(iface)
}

func (i *Integration) Status() Status {
	_, configured := i.config.Get()

	i.mu.RLock()
	p, info, cfg, startErr := i.poller, i.info, i.cfg, i.startErr
	i.mu.RUnlock()

	st := Status{Configured: configured, Interfaces: []string{}}
	err := startErr
	if p != nil {
		st.Ready = p.Ready()
		st.Title = info.Title
		st.Host = cfg.Host
		st.Interfaces = info.Interfaces
		st.ScanInterval = cfg.ScanIntervalSec
		st.KeepLastGood = cfg.KeepLastGood
		at, lastErr := p.LastRefresh()
		if !at.IsZero() {
			st.LastRefresh = &at
		}
		err = lastErr
	}
	if err != nil {
		st.LastError = err.Error()
		st.ErrorCode = luci.ErrorCode(err)
		if errors.Is(err, ErrIntegrationNotConfigured) {
			st.ErrorCode = "not_configured"
		}
	}
	return st
}

func (i *Integration) register(sensors []*sensor.Sensor) {
	i.registry.RegisterSensors(sensors)
	for _, r := range i.registrars {
		r.RegisterSensors(sensors)
	}
}

func (i *Integration) setStartErr(err error) {
	i.mu.Lock()
	i.startErr = err
	i.mu.Unlock()
}
