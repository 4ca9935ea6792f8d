package configsync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/micro-ha/mwan3-status/internal/model"
)

type FetchResult struct {
	Configured bool
	Config     model.RouterConfig
}

// Client reads router options from the add-on options.json. ROUTER_*
// environment variables fill in or override values, and are the only source
// when the file does not exist.
type Client struct {
	path string
}

func NewClient(path string) *Client {
	return &Client{path: strings.TrimSpace(path)}
}

func (c *Client) Path() string {
	return c.path
}

type addonOptions struct {
	Host         string `json:"host" env:"ROUTER_HOST"`
	Username     string `json:"username" env:"ROUTER_USERNAME"`
	Password     string `json:"password" env:"ROUTER_PASSWORD"`
	Name         string `json:"name" env:"ROUTER_NAME"`
	ScanInterval int    `json:"scan_interval" env:"ROUTER_SCAN_INTERVAL"`
	KeepLastGood bool   `json:"keep_last_good" env:"ROUTER_KEEP_LAST_GOOD"`
}

// FetchConfig returns the current router options. Missing credentials mean
// the add-on is not configured yet; an out-of-range scan interval is an error.
func (c *Client) FetchConfig(ctx context.Context) (FetchResult, error) {
	if err := ctx.Err(); err != nil {
		return FetchResult{}, err
	}

	var opts addonOptions
	if c.fileExists() {
		if err := cleanenv.ReadConfig(c.path, &opts); err != nil {
			return FetchResult{}, fmt.Errorf("read options %s: %w", c.path, err)
		}
	} else if err := cleanenv.ReadEnv(&opts); err != nil {
		return FetchResult{}, fmt.Errorf("read router env: %w", err)
	}

	cfg := model.RouterConfig{
		Host:            opts.Host,
		Username:        opts.Username,
		Password:        opts.Password,
		Name:            opts.Name,
		ScanIntervalSec: opts.ScanInterval,
		KeepLastGood:    opts.KeepLastGood,
	}.Normalize()

	if cfg.Host == "" || cfg.Username == "" || cfg.Password == "" {
		return FetchResult{Configured: false}, nil
	}
	if err := cfg.Validate(); err != nil {
		return FetchResult{}, err
	}
	return FetchResult{Configured: true, Config: cfg}, nil
}

func (c *Client) fileExists() bool {
	if c.path == "" {
		return false
	}
	info, err := os.Stat(c.path)
	if errors.Is(err, fs.ErrNotExist) || err != nil {
		return false
	}
	return !info.IsDir()
}
