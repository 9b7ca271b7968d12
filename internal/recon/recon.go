// Package recon owns the scan lifecycle of a running ipscan server: it
// restores persisted state, keeps the scan configuration, arms the auto-scan
// scheduler and serves the scan, results and device-name endpoints.
package recon

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/HerbHall/ipscan/internal/event"
	"github.com/HerbHall/ipscan/internal/scanner"
	"github.com/HerbHall/ipscan/internal/services"
	"github.com/HerbHall/ipscan/pkg/models"
)

// ConfigStore persists the runtime-editable scan configuration.
type ConfigStore interface {
	Load(ctx context.Context) (models.ScanConfig, error)
	Save(ctx context.Context, cfg models.ScanConfig) error
}

// Deps are the collaborators a Module needs. Coordinator is required; every
// repository may be nil, in which case that state lives only in memory.
type Deps struct {
	Coordinator *scanner.Coordinator
	Configs     ConfigStore
	Names       services.DeviceNameRepository
	Snapshots   services.SnapshotRepository
	Bus         event.Subscriber
	Defaults    models.ScanConfig
	Logger      *zap.Logger
}

// Module ties the scanner to persistence and the HTTP surface.
type Module struct {
	logger      *zap.Logger
	coordinator *scanner.Coordinator
	scheduler   *scanner.Scheduler
	configs     ConfigStore
	names       services.DeviceNameRepository
	snapshots   services.SnapshotRepository
	bus         event.Subscriber

	mu  sync.RWMutex
	cfg models.ScanConfig

	scanCtx    context.Context
	scanCancel context.CancelFunc
	wg         sync.WaitGroup
}

// NewModule creates a Module. Call Start before serving requests.
func NewModule(deps Deps) *Module {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Module{
		logger:      logger,
		coordinator: deps.Coordinator,
		configs:     deps.Configs,
		names:       deps.Names,
		snapshots:   deps.Snapshots,
		bus:         deps.Bus,
		cfg:         deps.Defaults,
	}
	m.scanCtx, m.scanCancel = context.WithCancel(context.Background())
	m.scheduler = scanner.NewScheduler(m.coordinator.Run, logger.Named("scheduler"))
	return m
}

// Start restores names, the last finalized snapshot and the stored
// configuration, then arms the scheduler.
func (m *Module) Start(ctx context.Context) error {
	if m.names != nil {
		names, err := m.names.All(ctx)
		if err != nil {
			return fmt.Errorf("load device names: %w", err)
		}
		m.coordinator.LoadNames(names)
	}

	if m.snapshots != nil {
		if n, err := m.snapshots.DiscardIncomplete(ctx); err != nil {
			return err
		} else if n > 0 {
			m.logger.Warn("discarded scans interrupted by a previous shutdown", zap.Int("count", n))
		}
		snap, err := m.snapshots.Latest(ctx)
		switch {
		case err == nil:
			m.coordinator.Restore(snap)
			m.logger.Info("restored last scan",
				zap.String("scan_id", snap.ID),
				zap.String("range", snap.Range),
				zap.Int("online", snap.Online),
			)
		case errors.Is(err, services.ErrNotFound):
		default:
			return fmt.Errorf("load last scan: %w", err)
		}
	}

	cfg := m.Config()
	if m.configs != nil {
		stored, err := m.configs.Load(ctx)
		switch {
		case err == nil:
			if verr := scanner.ValidateConfig(stored); verr != nil {
				m.logger.Warn("ignoring invalid stored scan config", zap.Error(verr))
			} else {
				cfg = stored
			}
		case errors.Is(err, services.ErrNotFound):
		default:
			m.logger.Warn("load stored scan config", zap.Error(err))
		}
	}
	if err := scanner.ValidateConfig(cfg); err != nil {
		return fmt.Errorf("scan config: %w", err)
	}
	m.setConfig(cfg)

	if err := m.scheduler.Apply(cfg); err != nil {
		return err
	}
	m.scheduler.Start()
	m.logger.Info("recon module started",
		zap.String("range", cfg.Range),
		zap.Bool("auto_scan", cfg.AutoScanEnabled),
	)
	return nil
}

// Stop cancels any running scan, discarding it, and waits for background
// scans to return.
func (m *Module) Stop() {
	m.scanCancel()
	m.scheduler.Stop()
	m.wg.Wait()
	m.logger.Info("recon module stopped")
}

// Config returns the active scan configuration.
func (m *Module) Config() models.ScanConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Module) setConfig(cfg models.ScanConfig) {
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
}

// ApplyConfig validates, persists and activates cfg and re-arms the
// scheduler. A running scan keeps the configuration it started with.
func (m *Module) ApplyConfig(ctx context.Context, cfg models.ScanConfig) (models.ScanConfig, error) {
	if err := scanner.ValidateConfig(cfg); err != nil {
		return models.ScanConfig{}, err
	}
	if m.configs != nil {
		if err := m.configs.Save(ctx, cfg); err != nil {
			return models.ScanConfig{}, fmt.Errorf("save scan config: %w", err)
		}
	}
	m.setConfig(cfg)
	if err := m.scheduler.Apply(cfg); err != nil {
		return models.ScanConfig{}, err
	}
	m.logger.Info("scan config updated",
		zap.String("range", cfg.Range),
		zap.Int("concurrency", cfg.Concurrency),
		zap.Int("timeout_ms", cfg.TimeoutMs),
		zap.Bool("auto_scan", cfg.AutoScanEnabled),
		zap.Int("interval_seconds", cfg.AutoScanIntervalSeconds),
	)
	return cfg, nil
}

// StartScan launches a scan with the active configuration. Validation and
// in-progress errors are reported synchronously; otherwise the session is
// open when StartScan returns and the channel yields its result. The scan
// runs on the module's lifetime, not the caller's.
func (m *Module) StartScan() (<-chan scanner.Result, error) {
	m.wg.Add(1)
	res, err := m.coordinator.Start(m.scanCtx, m.Config())
	if err != nil {
		m.wg.Done()
		return nil, err
	}
	out := make(chan scanner.Result, 1)
	go func() {
		defer m.wg.Done()
		out <- <-res
	}()
	return out, nil
}

// SetDeviceName stores a manual name and applies it to the current results.
// The name is persisted first, so an error leaves the results untouched.
func (m *Module) SetDeviceName(ctx context.Context, ip, name string) (string, string, error) {
	ip, name, err := normalizeDeviceName(ip, name)
	if err != nil {
		return "", "", err
	}
	if m.names != nil {
		if err := m.names.Set(ctx, ip, name); err != nil {
			return "", "", fmt.Errorf("persist device name: %w", err)
		}
	}
	return m.coordinator.SetManualName(ip, name)
}

// ImportDeviceNames validates every entry, persists them in one transaction
// and only then applies them in order. Any failure applies nothing.
func (m *Module) ImportDeviceNames(ctx context.Context, entries []DeviceNameRequest) (int, error) {
	normalized := make([]DeviceNameRequest, 0, len(entries))
	batch := make(map[string]string, len(entries))
	for _, e := range entries {
		ip, name, err := normalizeDeviceName(e.IP, e.Name)
		if err != nil {
			return 0, err
		}
		normalized = append(normalized, DeviceNameRequest{IP: ip, Name: name})
		batch[ip] = name
	}
	if m.names != nil {
		if err := m.names.SetMany(ctx, batch); err != nil {
			return 0, fmt.Errorf("persist device names: %w", err)
		}
	}
	for _, e := range normalized {
		if _, _, err := m.coordinator.SetManualName(e.IP, e.Name); err != nil {
			return 0, err
		}
	}
	m.logger.Info("device names imported", zap.Int("count", len(normalized)))
	return len(normalized), nil
}

func normalizeDeviceName(ip, name string) (string, string, error) {
	ip, err := scanner.NormalizeIP(ip)
	if err != nil {
		return "", "", err
	}
	name, err = scanner.NormalizeManualName(name)
	if err != nil {
		return "", "", err
	}
	return ip, name, nil
}
