package sessions

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/robfig/cron/v3"
)

// MaintenanceConfig tunes the scheduled store maintenance.
type MaintenanceConfig struct {
	Interval      time.Duration
	RetentionDays int
	KeepImages    int
}

// DefaultMaintenanceConfig returns the documented defaults: hourly runs,
// 30-day retention, 10 kept images.
func DefaultMaintenanceConfig() MaintenanceConfig {
	return MaintenanceConfig{
		Interval:      time.Hour,
		RetentionDays: DefaultRetentionDays,
		KeepImages:    DefaultKeepImages,
	}
}

// Maintenance runs the periodic store cleanup: old-session retention,
// image pruning for the active session, and a heap-stats log line.
// Failures are logged and swallowed; they never reach the request path.
type Maintenance struct {
	store  *Store
	config MaintenanceConfig
	logger *slog.Logger
	cron   *cron.Cron
}

// NewMaintenance constructs the maintenance runner.
func NewMaintenance(store *Store, config MaintenanceConfig, logger *slog.Logger) *Maintenance {
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	if config.RetentionDays <= 0 {
		config.RetentionDays = DefaultRetentionDays
	}
	if config.KeepImages <= 0 {
		config.KeepImages = DefaultKeepImages
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Maintenance{store: store, config: config, logger: logger}
}

// Start schedules the maintenance job. Call Stop to halt it.
func (m *Maintenance) Start() error {
	m.cron = cron.New()
	spec := fmt.Sprintf("@every %s", m.config.Interval)
	if _, err := m.cron.AddFunc(spec, func() { m.RunOnce(context.Background()) }); err != nil {
		return fmt.Errorf("schedule maintenance: %w", err)
	}
	m.cron.Start()
	m.logger.Info("session maintenance scheduled", slog.Duration("interval", m.config.Interval))
	return nil
}

// Stop halts the scheduler, waiting for an in-flight run to finish.
func (m *Maintenance) Stop() {
	if m.cron != nil {
		<-m.cron.Stop().Done()
	}
}

// RunOnce performs one maintenance pass.
func (m *Maintenance) RunOnce(ctx context.Context) {
	removed, err := m.store.DeleteOldSessions(ctx, m.config.RetentionDays)
	if err != nil {
		m.logger.Warn("old-session cleanup failed", slog.Any("error", err))
	} else if removed > 0 {
		m.logger.Info("old sessions removed", slog.Int64("count", removed))
	}

	if key := m.store.ActiveKey(); key != "" {
		pruned, err := m.store.CleanupOldImages(ctx, key, m.config.KeepImages)
		if err != nil {
			m.logger.Warn("image cleanup failed", slog.String("session_key", key), slog.Any("error", err))
		} else if pruned > 0 {
			m.logger.Info("old images pruned", slog.String("session_key", key), slog.Int64("count", pruned))
		}
	}

	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	m.logger.Info("heap stats",
		slog.Uint64("heap_alloc_bytes", stats.HeapAlloc),
		slog.Uint64("heap_objects", stats.HeapObjects),
		slog.Uint64("num_gc", uint64(stats.NumGC)))
}
