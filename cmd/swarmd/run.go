package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"SwarmFlow/internal/ai"
	"SwarmFlow/internal/config"
	"SwarmFlow/internal/coordinator"
	"SwarmFlow/internal/event"
	"SwarmFlow/internal/observability/alerting"
	"SwarmFlow/internal/observability/metrics"
	"SwarmFlow/internal/storage/mysql"
	"SwarmFlow/internal/storage/redis"
	"SwarmFlow/internal/workspace"
	"SwarmFlow/pkg/logger"
)

func run(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Log); err != nil {
		return err
	}
	defer logger.Sync()
	log := logger.Named("swarmd")

	exporter := metrics.NewExporter()
	alerts := buildAlerts(cfg.Alerting)

	sinks, err := buildSinks(ctx, cfg.Events)
	if err != nil {
		return err
	}

	history, closeHistory, err := buildHistory(ctx, cfg.History)
	if err != nil {
		closeAll(sinks)
		return err
	}
	defer closeHistory()

	performance, err := buildPerformance(cfg)
	if err != nil {
		closeAll(sinks)
		return err
	}

	ws := cfg.Workspace
	runner := workspace.NewExecRunner(
		workspace.WithCommandTimeout(ws.CommandTimeout.Duration),
		workspace.WithCommandRate(ws.CommandRate, ws.CommandBurst),
		workspace.WithWorkingDir(ws.WorkingDir),
		workspace.WithCommandMetrics(exporter),
	)
	cli := workspace.NewCLI(runner, workspace.CLIConfig{
		Binary:            ws.DevpodBinary,
		ScriptInterpreter: ws.ScriptInterpreter,
		ProvisionScript:   ws.ProvisionScript,
	})

	coord, err := coordinator.New(coordinatorConfig(cfg), coordinator.Dependencies{
		Workspaces:  cli,
		Performance: performance,
		History:     history,
		Sinks:       sinks,
		Exporter:    exporter,
		Alerts:      alerts,
	})
	if err != nil {
		closeAll(sinks)
		return err
	}
	coord.Start(ctx)
	log.Info("SwarmFlow 已启动", slog.String("swarm_id", coord.SwarmID()), slog.String("metrics_address", cfg.Metrics.Address))

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Metrics.Address != "" {
		g.Go(func() error {
			err := metrics.StartServer(gctx, cfg.Metrics.Address, exporter)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return coord.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// loadConfig 在未指定配置文件时使用默认配置运行。
func loadConfig(path string) (*config.Config, error) {
	if path == "" && os.Getenv(config.EnvConfigPath) == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func coordinatorConfig(cfg *config.Config) coordinator.Config {
	co, ws := cfg.Coordinator, cfg.Workspace
	thresholds := ai.DefaultThresholds()
	thresholds.Utilization = co.OptimizationThreshold
	return coordinator.Config{
		SwarmID:              co.SwarmID,
		MaxAgents:            co.MaxAgents,
		MetricsInterval:      co.MetricsInterval.Duration,
		Thresholds:           thresholds,
		EnableAIOptimization: *co.EnableAIOptimization,
		OptimizationTimeout:  co.OptimizationTimeout.Duration,
		EventHistory:         co.EventHistory,
		SinkTimeout:          cfg.Events.SinkTimeout.Duration,
		Workspace: workspace.Config{
			MaxConcurrentWorkspaces:     ws.MaxConcurrentWorkspaces,
			MaxWorkspacesPerEnvironment: ws.MaxWorkspacesPerEnvironment,
			AutoShutdownAfterMinutes:    ws.AutoShutdownAfterMinutes,
			EnableCostOptimization:      *ws.EnableCostOptimization,
			EnablePredictiveScaling:     *ws.EnablePredictiveScaling,
			ResourceLimits: ai.ResourceEstimate{
				CPU:    ws.ResourceLimits.CPU,
				Memory: ws.ResourceLimits.Memory,
				Disk:   ws.ResourceLimits.Disk,
			},
			CollectConcurrency: ws.CollectConcurrency,
		},
		CollectInterval:   ws.CollectInterval.Duration,
		IdleCheckInterval: ws.IdleCheckInterval.Duration,
		OptimizeInterval:  ws.OptimizeInterval.Duration,
	}
}

func buildAlerts(cfg config.AlertingConfig) alerting.Dispatcher {
	var notifiers []alerting.Notifier
	if cfg.Log {
		notifiers = append(notifiers, alerting.LogNotifier{})
	}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, &alerting.WebhookNotifier{URL: cfg.WebhookURL})
	}
	if len(notifiers) == 0 {
		return nil
	}
	return alerting.NewFanout(notifiers...)
}

func buildSinks(ctx context.Context, cfg config.EventsConfig) ([]event.Sink, error) {
	var sinks []event.Sink
	if cfg.RabbitMQ != nil {
		sink, err := event.NewRabbitMQSink(*cfg.RabbitMQ)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sink)
	}
	if m := cfg.MySQL; m != nil {
		archive, err := mysql.NewEventArchive(ctx, mysql.Config{
			DSN:             m.DSN,
			MaxOpenConns:    m.MaxOpenConns,
			MaxIdleConns:    m.MaxIdleConns,
			ConnMaxLifetime: m.ConnMaxLifetime.Duration,
			AutoMigrate:     m.AutoMigrate,
		})
		if err != nil {
			closeAll(sinks)
			return nil, err
		}
		sinks = append(sinks, archive)
	}
	return sinks, nil
}

func buildHistory(ctx context.Context, cfg config.HistoryConfig) (workspace.HistoryStore, func(), error) {
	switch cfg.Driver {
	case "redis":
		store, err := redis.NewHistoryStore(ctx, redis.HistoryConfig{
			Address:    cfg.Redis.Address,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			KeyPrefix:  cfg.Redis.KeyPrefix,
			MaxSamples: cfg.MaxSamples,
		})
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	default:
		return workspace.NewMemoryHistory(cfg.MaxSamples), func() {}, nil
	}
}

func buildPerformance(cfg *config.Config) (ai.PerformanceOptimizer, error) {
	if cfg.AI.Provider != "script" {
		return nil, nil
	}
	opt, err := ai.NewScriptOptimizer(cfg.AI.Interpreter, cfg.AI.ScriptPath, cfg.AI.WorkingDir, cfg.AI.Timeout.Duration)
	if err != nil {
		return nil, err
	}
	return opt, nil
}

func closeAll(sinks []event.Sink) {
	for _, s := range sinks {
		if err := s.Close(); err != nil {
			logger.L().Warn("关闭事件投递目标失败", slog.String("sink", s.Name()), slog.Any("error", err))
		}
	}
}
