package configsync

import (
	"context"
	"log/slog"
	"sync"

	"github.com/micro-ha/mwan3-status/internal/model"
)

// Manager holds the router options currently in effect.
type Manager struct {
	client *Client
	logger *slog.Logger

	mu         sync.RWMutex
	configured bool
	config     model.RouterConfig
}

func NewManager(client *Client, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{client: client, logger: logger}
}

// Refresh re-reads the options and reports whether they changed. A failed
// read keeps the previous options.
func (m *Manager) Refresh(ctx context.Context) (bool, error) {
	res, err := m.client.FetchConfig(ctx)
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !res.Configured {
		changed := m.configured
		if changed {
			m.logger.Info("router options removed", "host", m.config.Host)
		}
		m.configured = false
		m.config = model.RouterConfig{}
		return changed, nil
	}

	if !m.configured {
		m.configured = true
		m.config = res.Config
		m.logger.Info("router options loaded",
			"host", res.Config.Host,
			"title", res.Config.DisplayName(),
			"scan_interval", res.Config.ScanIntervalSec,
			"keep_last_good", res.Config.KeepLastGood,
		)
		return true, nil
	}

	fields := changedOptions(m.config, res.Config)
	if len(fields) == 0 {
		return false, nil
	}
	attrs := []any{"host", res.Config.Host, "fields", fields}
	if m.config.ScanIntervalSec != res.Config.ScanIntervalSec {
		attrs = append(attrs,
			"scan_interval_from", m.config.ScanIntervalSec,
			"scan_interval_to", res.Config.ScanIntervalSec,
		)
	}
	m.logger.Info("router options changed", attrs...)
	m.config = res.Config
	return true, nil
}

func (m *Manager) Get() (model.RouterConfig, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.configured {
		return model.RouterConfig{}, false
	}
	return m.config, true
}

// changedOptions names the option keys that differ. Secrets are reported as
// "password" without values.
func changedOptions(prev, next model.RouterConfig) []string {
	var fields []string
	if prev.Host != next.Host {
		fields = append(fields, "host")
	}
	if prev.Username != next.Username {
		fields = append(fields, "username")
	}
	if prev.Password != next.Password {
		fields = append(fields, "password")
	}
	if prev.Name != next.Name {
		fields = append(fields, "name")
	}
	if prev.ScanIntervalSec != next.ScanIntervalSec {
		fields = append(fields, "scan_interval")
	}
	if prev.KeepLastGood != next.KeepLastGood {
		fields = append(fields, "keep_last_good")
	}
	return fields
}
