package config

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// GatewayManager hot-reloads a GatewayConfig: fsnotify watches the
// file, writes are debounced,
// and reloads are published via an atomic pointer swap so readers
// never observe a partially-applied config.
type GatewayManager struct {
	config  atomic.Pointer[GatewayConfig]
	path    string
	watcher *fsnotify.Watcher
	logger  *slog.Logger
}

// NewGatewayManager loads path immediately and returns a manager ready
// to serve Get() calls. Call Watch to start hot-reload.
func NewGatewayManager(path string, logger *slog.Logger) (*GatewayManager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg, err := LoadGatewayConfig(path)
	if err != nil {
		return nil, err
	}
	m := &GatewayManager{path: path, logger: logger}
	m.config.Store(cfg)
	return m, nil
}

// Get returns the current configuration. Safe for concurrent use.
func (m *GatewayManager) Get() *GatewayConfig {
	return m.config.Load()
}

// Watch starts watching the configuration file for changes, reloading
// atomically on write. Cancel ctx to stop watching.
func (m *GatewayManager) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(m.path); err != nil {
		_ = watcher.Close()
		return err
	}
	m.watcher = watcher
	go m.watchLoop(ctx)
	return nil
}

func (m *GatewayManager) watchLoop(ctx context.Context) {
	const debounceDelay = 500 * time.Millisecond
	var debounceTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			_ = m.watcher.Close()
			return
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDelay, m.reload)
			}
		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Error("gateway config watcher error", "error", err)
		}
	}
}

func (m *GatewayManager) reload() {
	cfg, err := LoadGatewayConfig(m.path)
	if err != nil {
		m.logger.Error("failed to reload gateway config, keeping current", "error", err)
		return
	}
	m.config.Store(cfg)
	m.logger.Info("gateway configuration reloaded", "path", m.path, "providers", len(cfg.Providers), "policies", len(cfg.Policies))
}

// Close stops the file watcher, if running.
func (m *GatewayManager) Close() error {
	if m.watcher != nil {
		return m.watcher.Close()
	}
	return nil
}
