// Package optimize 根据指标快照决定是否启动性能优化周期，并保证任意时刻最多只有一个周期在运行。
package optimize

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"SwarmFlow/internal/ai"
	xerrors "SwarmFlow/internal/errors"
	"SwarmFlow/internal/event"
	"SwarmFlow/internal/observability/alerting"
	"SwarmFlow/internal/observability/metrics"
	"SwarmFlow/pkg/logger"
)

// DisabledReason 是关闭 AI 优化时返回的原因。
const DisabledReason = "AI optimization disabled"

var (
	// ErrInProgress 表示已有优化周期在运行。
	ErrInProgress = xerrors.New(xerrors.CodeStateConflict, "optimization already in progress")
	// ErrClosed 表示触发器已关闭。
	ErrClosed = xerrors.New(xerrors.CodeShutdown, "optimization trigger closed")
)

// Recorder 抽象事件记录能力。
type Recorder interface {
	Record(typ event.Type, data map[string]any) event.Event
}

// Result 描述一次优化调用的结果。
type Result struct {
	Applied   bool                 `json:"optimization_applied"`
	Reason    string               `json:"reason,omitempty"`
	Report    ai.PerformanceReport `json:"report"`
	Metrics   metrics.Snapshot     `json:"metrics"`
	Timestamp time.Time            `json:"timestamp"`
}

// Trigger 比较指标与阈值并调用性能优化协作方。
type Trigger struct {
	optimizing atomic.Bool
	closed     atomic.Bool
	mu         sync.RWMutex
	wg         sync.WaitGroup

	enabled    bool
	thresholds ai.Thresholds
	optimizer  ai.PerformanceOptimizer
	recorder   Recorder
	exporter   *metrics.Exporter
	alerts     alerting.Dispatcher
	timeout    time.Duration
	log        *slog.Logger
}

// Option 定义 Trigger 的可选配置。
type Option func(*Trigger)

// WithEnabled 开启或关闭 AI 优化。
func WithEnabled(enabled bool) Option {
	return func(t *Trigger) {
		t.enabled = enabled
	}
}

// WithThresholds 设置触发阈值，零值字段保留默认值。
func WithThresholds(th ai.Thresholds) Option {
	return func(t *Trigger) {
		if th.Utilization > 0 {
			t.thresholds.Utilization = th.Utilization
		}
		if th.ErrorRate > 0 {
			t.thresholds.ErrorRate = th.ErrorRate
		}
		if th.ResponseTimeMs > 0 {
			t.thresholds.ResponseTimeMs = th.ResponseTimeMs
		}
	}
}

// WithRecorder 设置事件记录器。
func WithRecorder(rec Recorder) Option {
	return func(t *Trigger) {
		t.recorder = rec
	}
}

// WithExporter 记录优化周期计数。
func WithExporter(exp *metrics.Exporter) Option {
	return func(t *Trigger) {
		t.exporter = exp
	}
}

// WithAlerts 设置告警分发器。
func WithAlerts(d alerting.Dispatcher) Option {
	return func(t *Trigger) {
		t.alerts = d
	}
}

// WithTimeout 限制单次优化的执行时间。
func WithTimeout(timeout time.Duration) Option {
	return func(t *Trigger) {
		if timeout > 0 {
			t.timeout = timeout
		}
	}
}

// NewTrigger 创建触发器。默认开启优化并使用默认阈值。
func NewTrigger(optimizer ai.PerformanceOptimizer, opts ...Option) *Trigger {
	t := &Trigger{
		enabled:    true,
		thresholds: ai.DefaultThresholds(),
		optimizer:  optimizer,
		timeout:    time.Minute,
		log:        logger.Named("optimize"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

// Enabled 返回是否开启 AI 优化。
func (t *Trigger) Enabled() bool {
	return t.enabled
}

// InFlight 返回当前是否有优化周期在运行。
func (t *Trigger) InFlight() bool {
	return t.optimizing.Load()
}

// ShouldOptimize 判断快照是否越过阈值且当前没有周期在运行。
func (t *Trigger) ShouldOptimize(s metrics.Snapshot) bool {
	if t.optimizing.Load() {
		return false
	}
	return s.ResourceUtilization > t.thresholds.Utilization ||
		s.ErrorRate > t.thresholds.ErrorRate ||
		s.AverageResponseTimeMs > t.thresholds.ResponseTimeMs
}

// Evaluate 在每次采样后调用。越过阈值且抢到守卫时在后台启动一个周期并返回 true。
func (t *Trigger) Evaluate(ctx context.Context, s metrics.Snapshot) bool {
	if !t.enabled || !t.ShouldOptimize(s) {
		return false
	}
	if !t.begin() {
		return false
	}
	go func() {
		defer t.wg.Done()
		if _, err := t.run(context.WithoutCancel(ctx), s); err != nil {
			t.log.Warn("自动优化失败", slog.Any("error", err))
		}
	}()
	return true
}

// Optimize 按需执行一次优化并等待结果。关闭优化时不触碰守卫，直接返回未应用的结果；
// 已有周期在运行时返回 ErrInProgress。
func (t *Trigger) Optimize(ctx context.Context, s metrics.Snapshot) (Result, error) {
	if t.closed.Load() {
		return Result{}, ErrClosed
	}
	if !t.enabled {
		return Result{Applied: false, Reason: DisabledReason, Metrics: s, Timestamp: time.Now().UTC()}, nil
	}
	if !t.begin() {
		if t.closed.Load() {
			return Result{}, ErrClosed
		}
		return Result{}, xerrors.Wrap(xerrors.CodeStateConflict, ErrInProgress, "optimization already in progress")
	}
	defer t.wg.Done()
	return t.run(ctx, s)
}

// Close 阻止新的周期启动，并等待运行中的周期结束。结束的周期不会再发出完成事件。
func (t *Trigger) Close() {
	t.mu.Lock()
	t.closed.Store(true)
	t.mu.Unlock()
	t.wg.Wait()
}

// begin 抢占守卫并登记运行中的周期，关闭后总是失败。
func (t *Trigger) begin() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed.Load() {
		return false
	}
	if !t.optimizing.CompareAndSwap(false, true) {
		return false
	}
	t.wg.Add(1)
	return true
}

// run 要求调用方已持有守卫，守卫在任意退出路径上复位。
func (t *Trigger) run(ctx context.Context, s metrics.Snapshot) (res Result, err error) {
	defer t.optimizing.Store(false)
	defer func() {
		if rec := recover(); rec != nil {
			err = xerrors.New(xerrors.CodeOptimization, fmt.Sprintf("optimizer panic: %v", rec))
			t.fail(ctx, err)
		}
	}()

	if t.optimizer == nil {
		err = xerrors.New(xerrors.CodeInitializationFailure, "performance optimizer not configured")
		t.fail(ctx, err)
		return Result{}, err
	}

	started := time.Now().UTC()
	t.record(event.OptimizationStarted, map[string]any{
		"metrics":   s.Fields(),
		"timestamp": started,
	})
	t.log.Info("开始性能优化",
		slog.Float64("resource_utilization", s.ResourceUtilization),
		slog.Float64("error_rate", s.ErrorRate),
		slog.Float64("average_response_time_ms", s.AverageResponseTimeMs),
	)

	runCtx := ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	report, callErr := t.optimizer.GenerateOptimizations(runCtx, s)
	if callErr != nil {
		err = xerrors.Wrap(xerrors.CodeOptimization, callErr, "performance optimization failed")
		t.fail(ctx, err)
		return Result{}, err
	}

	res = Result{Applied: true, Report: report, Metrics: s, Timestamp: time.Now().UTC()}
	if t.closed.Load() {
		t.log.Info("协调引擎已关闭，丢弃优化结果")
		t.exporter.ObserveOptimization("performance", "discarded")
		return res, nil
	}
	t.record(event.OptimizationCompleted, map[string]any{
		"recommendations":  append([]string(nil), report.Improvements...),
		"performance_gain": report.PerformanceGain,
		"resource_savings": report.ResourceSavings,
		"metrics":          s.Fields(),
		"timestamp":        res.Timestamp,
	})
	t.exporter.ObserveOptimization("performance", "completed")
	logger.Audit().Info("性能优化完成",
		slog.Int("improvements", len(report.Improvements)),
		slog.Float64("performance_gain", report.PerformanceGain),
		slog.Duration("elapsed", time.Since(started)),
	)
	return res, nil
}

func (t *Trigger) fail(ctx context.Context, err error) {
	t.log.Error("性能优化失败", slog.Any("error", err))
	t.exporter.ObserveOptimization("performance", "failed")
	if !t.closed.Load() {
		t.record(event.OptimizationFailed, map[string]any{
			"error":     err.Error(),
			"timestamp": time.Now().UTC(),
		})
	}
	alerting.NotifyError(context.WithoutCancel(ctx), t.alerts, "optimize", err)
}

func (t *Trigger) record(typ event.Type, data map[string]any) {
	if t.recorder == nil {
		return
	}
	t.recorder.Record(typ, data)
}
