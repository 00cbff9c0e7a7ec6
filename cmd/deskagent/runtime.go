package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/deskagent/core/internal/capture"
	"github.com/deskagent/core/internal/compaction"
	"github.com/deskagent/core/internal/config"
	"github.com/deskagent/core/internal/events"
	"github.com/deskagent/core/internal/input"
	"github.com/deskagent/core/internal/localexec"
	"github.com/deskagent/core/internal/loop"
	"github.com/deskagent/core/internal/modelclient"
	"github.com/deskagent/core/internal/sessions"
	"github.com/deskagent/core/internal/skills"
	"github.com/deskagent/core/internal/toolregistry"
)

// runtime holds the wired process: every component the decision loop
// needs, plus the teardown order.
type runtime struct {
	cfg          *config.Config
	logger       *slog.Logger
	registry     *prometheus.Registry
	bus          *events.Bus
	store        *sessions.Store
	maintenance  *sessions.Maintenance
	skillLoader  *skills.Loader
	orchestrator *loop.Orchestrator
}

// buildRuntime wires the full component graph from config.
func buildRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*runtime, error) {
	model, err := buildModelClient(cfg, logger)
	if err != nil {
		return nil, err
	}

	promReg := prometheus.NewRegistry()
	bus := events.New()

	db, err := sessions.Open(cfg.Memory.DatabasePath, cfg.Memory.Driver)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	store := sessions.NewStore(db, logger)
	if err := store.InitSchema(ctx); err != nil {
		return nil, err
	}
	if _, err := store.CreateSession(ctx); err != nil {
		return nil, err
	}

	maintenance := sessions.NewMaintenance(store, sessions.MaintenanceConfig{
		Interval:      cfg.Memory.CleanupInterval(),
		RetentionDays: cfg.Memory.SessionRetentionDays,
		KeepImages:    cfg.Memory.KeepImages,
	}, logger)
	if err := maintenance.Start(); err != nil {
		return nil, err
	}

	capturer := capture.New(capture.NewExecBackend())
	capturer.SetEncoding(cfg.Capture.JPEGQuality, cfg.Capture.MaxEncodedSide)

	driver := input.New(input.ShellCommander{Bin: cfg.Executor.InputBin})
	executor := localexec.New(capturer, driver, localexec.NewMetrics(promReg))
	executor.SetActionTimeout(time.Duration(cfg.Executor.ActionTimeoutSeconds) * time.Second)
	executor.SetBoundaryWait(time.Duration(cfg.Executor.ToolWaitMS) * time.Millisecond)

	toolReg := toolregistry.New()
	toolregistry.RegisterBuiltinCatalog(toolReg)

	skillLoader := skills.NewLoader(cfg.Skills.Directory, toolReg, logger)
	if cfg.Skills.Directory != "" {
		if err := skillLoader.Reload(); err != nil {
			logger.Warn("initial skill load failed", slog.Any("error", err))
		}
		if cfg.Skills.Watch {
			if err := skillLoader.Watch(ctx); err != nil {
				logger.Warn("skill watcher failed to start", slog.Any("error", err))
			}
		}
	}

	compactor := compaction.New(model, cfg.Memory.TokenThreshold, cfg.Memory.KeepRecentMessages, logger)

	orchestrator := loop.New(loop.Config{
		MaxIterations:          cfg.Loop.MaxIterations,
		MaxConsecutiveFailures: cfg.Loop.MaxConsecutiveFailures,
		MaxCorrections:         cfg.Executor.MaxCorrections,
		Deadline:               cfg.Loop.Deadline(),
	}, capturer, executor, toolReg, model, bus, loop.Options{
		Store:     store,
		Compactor: compactor,
		Metrics:   loop.NewMetrics(promReg),
		Logger:    logger,
	})

	return &runtime{
		cfg:          cfg,
		logger:       logger,
		registry:     promReg,
		bus:          bus,
		store:        store,
		maintenance:  maintenance,
		skillLoader:  skillLoader,
		orchestrator: orchestrator,
	}, nil
}

func (r *runtime) close() {
	r.maintenance.Stop()
	_ = r.skillLoader.Close()
	r.bus.Close()
	_ = r.store.DB().Close()
}

func buildModelClient(cfg *config.Config, logger *slog.Logger) (modelclient.Client, error) {
	switch cfg.Model.Provider {
	case "openai":
		return modelclient.NewOpenAI(modelclient.OpenAIConfig{
			APIKey:     cfg.Model.APIKey,
			BaseURL:    cfg.Model.BaseURL,
			Model:      cfg.Model.Model,
			MaxRetries: cfg.Model.MaxRetries,
			Logger:     logger,
		})
	default:
		return modelclient.NewAnthropic(modelclient.AnthropicConfig{
			APIKey:     cfg.Model.APIKey,
			BaseURL:    cfg.Model.BaseURL,
			Model:      cfg.Model.Model,
			MaxRetries: cfg.Model.MaxRetries,
			Logger:     logger,
		})
	}
}
