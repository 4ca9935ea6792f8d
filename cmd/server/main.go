package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/micro-ha/mwan3-status/internal/config"
	"github.com/micro-ha/mwan3-status/internal/configsync"
	"github.com/micro-ha/mwan3-status/internal/events"
	httpapi "github.com/micro-ha/mwan3-status/internal/http"
	"github.com/micro-ha/mwan3-status/internal/http/handlers"
	"github.com/micro-ha/mwan3-status/internal/integration"
	"github.com/micro-ha/mwan3-status/internal/logging"
	"github.com/micro-ha/mwan3-status/internal/luci"
	"github.com/micro-ha/mwan3-status/internal/metrics"
	"github.com/micro-ha/mwan3-status/internal/model"
	"github.com/micro-ha/mwan3-status/internal/notify"
	"github.com/micro-ha/mwan3-status/internal/sensor"
	"github.com/micro-ha/mwan3-status/internal/setup"
	"github.com/micro-ha/mwan3-status/internal/storage"
)

type globals struct {
	Config   string `help:"Path to a YAML service config file." type:"path" env:"MWAN3_CONFIG"`
	LogLevel string `help:"Override log level (debug, info, warn, error)." name:"log-level"`
}

type cli struct {
	globals

	Serve    serveCmd    `cmd:"" default:"1" help:"Run the status poller and HTTP API."`
	Validate validateCmd `cmd:"" help:"Log in to a router and list its MWAN3 interfaces."`
	Poll     pollCmd     `cmd:"" help:"Fetch one status snapshot and print it as JSON."`
}

type routerFlags struct {
	Host         string `help:"Router host or URL." required:""`
	Username     string `help:"LuCI username." default:"root"`
	Password     string `help:"LuCI password." env:"ROUTER_PASSWORD"`
	Name         string `help:"Display name for the router."`
	ScanInterval int    `help:"Scan interval in seconds." default:"30" name:"scan-interval"`
}

func (f routerFlags) routerConfig() model.RouterConfig {
	return model.RouterConfig{
		Host:            f.Host,
		Username:        f.Username,
		Password:        f.Password,
		Name:            f.Name,
		ScanIntervalSec: f.ScanInterval,
	}
}

type validateCmd struct {
	routerFlags
}

type pollCmd struct {
	routerFlags
}

type serveCmd struct{}

func main() {
	var app cli
	kctx := kong.Parse(&app,
		kong.Name("mwan3-status"),
		kong.Description("MWAN3 interface status poller for OpenWrt LuCI."),
		kong.UsageOnError(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(app.Config)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	if app.LogLevel != "" {
		cfg.LogLevel = app.LogLevel
	}
	logger := logging.New(cfg.Level(), cfg.LogFormat)
	slog.SetDefault(logger)

	kctx.BindTo(ctx, (*context.Context)(nil))
	kctx.Bind(cfg, logger)
	if err := kctx.Run(); err != nil {
		logger.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func (c *validateCmd) Run(ctx context.Context, logger *slog.Logger) error {
	return validateRouter(ctx, os.Stdout, c.routerConfig(), luci.WithLogger(logger))
}

// validateRouter runs the setup check and then probes the MWAN3 status page
// with a fresh session, printing the outcome of both.
func validateRouter(ctx context.Context, w io.Writer, cfg model.RouterConfig, opts ...luci.Option) error {
	info, err := setup.ValidateInput(ctx, cfg, opts...)
	if err != nil {
		return fmt.Errorf("%s: %w", luci.ErrorCode(err), err)
	}
	fmt.Fprintln(w, info.Title)
	fmt.Fprintln(w, info.Description())

	auth := luci.NewAuthenticator(cfg.Normalize(), opts...)
	defer auth.Close()
	ok, message := auth.ValidateConnection(ctx)
	fmt.Fprintln(w, "Status page:", message)
	if !ok {
		return fmt.Errorf("status page check failed: %s", message)
	}
	return nil
}

func (c *pollCmd) Run(ctx context.Context, logger *slog.Logger) error {
	routerCfg := c.routerConfig().Normalize()
	if err := routerCfg.Validate(); err != nil {
		return err
	}
	client := luci.NewRouterClient(routerCfg, luci.WithLogger(logger))
	defer client.Close()

	snapshot, err := client.FetchStatus(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", luci.ErrorCode(err), err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(snapshot)
}

func (c *serveCmd) Run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	if err := os.MkdirAll(cfg.DBDir(), 0o755); err != nil {
		return fmt.Errorf("create db directory: %w", err)
	}
	repo, err := storage.New(ctx, cfg.DBPath, logger)
	if err != nil {
		return fmt.Errorf("initialize storage: %w", err)
	}
	defer repo.Close()

	bus := events.NewBus(logger)
	storage.NewRecorder(repo, logger).Attach(bus)

	retention, err := storage.NewRetention(repo, cfg.HistoryRetention, cfg.RetentionSchedule, logger)
	if err != nil {
		return err
	}
	retention.Start()
	defer retention.Stop()

	dispatcher := notify.NewDispatcher(notify.Options{
		URLs:     cfg.NotifyURLs,
		Cooldown: cfg.NotifyCooldown,
		Logger:   logger,
	})
	if dispatcher.Enabled() {
		dispatcher.Start(bus)
		defer dispatcher.Stop()
	}

	exporter := metrics.NewExporter()

	cfgManager := configsync.NewManager(configsync.NewClient(cfg.AddonOptionsPath), logger)
	if _, err := cfgManager.Refresh(ctx); err != nil {
		logger.Warn("initial config refresh failed", "err", err)
	}

	in := integration.New(integration.Options{
		Config:     cfgManager,
		Registrars: []sensor.Registrar{exporter},
		Publisher:  bus,
		Observer:   exporter,
		Logger:     logger,
	})

	reload := func(source string) {
		refreshCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		changed, err := cfgManager.Refresh(refreshCtx)
		if err != nil {
			logger.Warn("config refresh failed", "source", source, "err", err)
			return
		}
		if changed {
			in.Reload()
		}
	}

	go func() {
		watcher := configsync.NewFileWatcher(cfg.AddonOptionsPath, time.Second, logger)
		if err := watcher.Run(ctx, func() { reload("file") }); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("options file watcher stopped", "err", err)
		}
	}()
	if cfg.SupervisorToken != "" {
		watcher := configsync.NewWatcher(cfg.HABaseURL, cfg.SupervisorToken, logger)
		go watcher.Run(ctx, func() { reload("websocket") })
	} else {
		logger.Warn("SUPERVISOR_TOKEN is empty; config event watcher disabled")
	}
	go runConfigFallbackRefresh(ctx, cfg.ConfigRefreshInterval, reload)

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		in.Run(ctx)
	}()

	api := handlers.New(in, repo, nil, logger)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(api, exporter.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("server starting", "addr", httpServer.Addr)
	serveErr := httpapi.RunServer(ctx, httpServer)
	stop()
	// The poller must be shut down before storage and notifications close.
	<-runDone
	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		return fmt.Errorf("server terminated: %w", serveErr)
	}
	logger.Info("server stopped")
	return nil
}

func runConfigFallbackRefresh(ctx context.Context, interval time.Duration, reload func(source string)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reload("periodic")
		}
	}
}
