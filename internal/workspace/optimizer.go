package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"SwarmFlow/internal/ai"
	xerrors "SwarmFlow/internal/errors"
	"SwarmFlow/internal/event"
	"SwarmFlow/internal/observability/alerting"
	"SwarmFlow/internal/observability/metrics"
	"SwarmFlow/pkg/logger"
)

// Config 描述资源优化器的行为。
type Config struct {
	MaxConcurrentWorkspaces     int
	MaxWorkspacesPerEnvironment int
	AutoShutdownAfterMinutes    int
	EnableCostOptimization      bool
	EnablePredictiveScaling     bool
	ResourceLimits              ai.ResourceEstimate
	CollectConcurrency          int
	HistoryWindow               int
}

// DefaultConfig 返回默认配置。
func DefaultConfig() Config {
	return Config{
		MaxConcurrentWorkspaces:     15,
		MaxWorkspacesPerEnvironment: 5,
		AutoShutdownAfterMinutes:    60,
		EnableCostOptimization:      true,
		EnablePredictiveScaling:     true,
		ResourceLimits:              ai.ResourceEstimate{CPU: 16, Memory: 32, Disk: 100},
		CollectConcurrency:          4,
		HistoryWindow:               100,
	}
}

const (
	idleCPUThreshold      = 5.0
	scalingTimeHorizon    = 24
	provisionWorkloadType = "development"
	provisionTimeHorizon  = 8
)

// Recommendation 是带风险等级的优化建议。
type Recommendation = ai.Recommendation

// Plan 是一次资源优化的结果。
type Plan struct {
	PlanID              string           `json:"plan_id"`
	Recommendations     []Recommendation `json:"recommendations"`
	TotalSavings        float64          `json:"total_savings"`
	ImplementationOrder []string         `json:"implementation_order"`
	MonitoringPlan      []string         `json:"monitoring_plan"`
	Applied             []string         `json:"applied,omitempty"`
	CreatedAt           time.Time        `json:"created_at"`
}

// ProvisionOptions 描述一次供给请求。
type ProvisionOptions struct {
	WorkloadType string
	TimeHorizon  int
	AutoShutdown bool
}

// Direction 表示扩缩方向。
type Direction string

const (
	ScaleUp   Direction = "up"
	ScaleDown Direction = "down"
)

// Workspaces 是优化器依赖的工作区管理能力，由 CLI 实现。
type Workspaces interface {
	List(ctx context.Context) ([]Inventory, error)
	Status(ctx context.Context, id string) (StatusReport, error)
	Stop(ctx context.Context, id string) error
	// Provision 以 id 作为工作区 ID 创建工作区，清单中随后以同一 ID 出现。
	Provision(ctx context.Context, id, environment string, limits ai.ResourceEstimate) error
}

// Recorder 抽象事件记录能力。
type Recorder interface {
	Record(typ event.Type, data map[string]any) event.Event
}

// Optimizer 基于资源快照执行采集、空闲回收、优化与供给。
type Optimizer struct {
	cfg        Config
	store      *MemoryStore
	workspaces Workspaces
	predictor  ai.ResourcePredictor
	cost       ai.CostOptimizer
	scaling    ai.ScalingPredictor
	history    HistoryStore
	recorder   Recorder
	exporter   *metrics.Exporter
	alerts     alerting.Dispatcher
	now        func() time.Time
	log        *slog.Logger

	group    singleflight.Group
	exportMu sync.Mutex
}

// Option 定义 Optimizer 的可选配置。
type Option func(*Optimizer)

// WithStore 替换资源快照存储。
func WithStore(store *MemoryStore) Option {
	return func(o *Optimizer) {
		if store != nil {
			o.store = store
		}
	}
}

// WithPredictor 设置资源预测协作方。
func WithPredictor(p ai.ResourcePredictor) Option {
	return func(o *Optimizer) {
		if p != nil {
			o.predictor = p
		}
	}
}

// WithCostOptimizer 设置成本优化协作方。
func WithCostOptimizer(c ai.CostOptimizer) Option {
	return func(o *Optimizer) {
		if c != nil {
			o.cost = c
		}
	}
}

// WithScalingPredictor 设置扩缩容预测协作方。
func WithScalingPredictor(s ai.ScalingPredictor) Option {
	return func(o *Optimizer) {
		if s != nil {
			o.scaling = s
		}
	}
}

// WithHistory 设置负载历史存储。
func WithHistory(h HistoryStore) Option {
	return func(o *Optimizer) {
		if h != nil {
			o.history = h
		}
	}
}

// WithRecorder 设置事件记录器。
func WithRecorder(rec Recorder) Option {
	return func(o *Optimizer) {
		o.recorder = rec
	}
}

// WithExporter 同步工作区指标。
func WithExporter(exp *metrics.Exporter) Option {
	return func(o *Optimizer) {
		o.exporter = exp
	}
}

// WithAlerts 设置告警分发器。
func WithAlerts(d alerting.Dispatcher) Option {
	return func(o *Optimizer) {
		o.alerts = d
	}
}

// WithClock 替换时间来源，主要用于测试。
func WithClock(now func() time.Time) Option {
	return func(o *Optimizer) {
		if now != nil {
			o.now = now
		}
	}
}

// NewOptimizer 创建资源优化器，未指定的协作方使用启发式默认实现。
func NewOptimizer(cfg Config, workspaces Workspaces, opts ...Option) *Optimizer {
	def := DefaultConfig()
	if cfg.CollectConcurrency <= 0 {
		cfg.CollectConcurrency = def.CollectConcurrency
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = def.HistoryWindow
	}
	o := &Optimizer{
		cfg:        cfg,
		store:      NewMemoryStore(),
		workspaces: workspaces,
		predictor:  ai.NewTablePredictor(),
		cost:       ai.NewRuleCostOptimizer(),
		scaling:    ai.NewTrendPredictor(),
		history:    NewMemoryHistory(0),
		now:        func() time.Time { return time.Now().UTC() },
		log:        logger.Named("workspace"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// Store 返回资源快照存储。
func (o *Optimizer) Store() *MemoryStore {
	return o.store
}

// Resources 返回所有资源快照。
func (o *Optimizer) Resources() []Resource {
	return o.store.List()
}

// Collect 刷新全部工作区快照。单个工作区失败时记录为 error 快照并继续；
// 清单命令失败时整个采集失败。
func (o *Optimizer) Collect(ctx context.Context) ([]Resource, error) {
	items, err := o.workspaces.List(ctx)
	if err != nil {
		o.log.Error("获取工作区清单失败", slog.Any("error", err))
		alerting.NotifyError(ctx, o.alerts, "workspace", err)
		return nil, err
	}

	results := make([]Resource, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.CollectConcurrency)
	for i, item := range items {
		g.Go(func() error {
			results[i] = o.snapshot(gctx, item)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		// 采集被取消时状态命令全部失败，不能据此覆盖已有快照。
		return nil, err
	}

	o.merge(results)
	o.recordHistory(ctx, results)
	o.exportWorkspaces()

	var total float64
	for _, r := range results {
		total += r.Cost
	}
	o.record(event.ResourcesCollected, map[string]any{
		"count":      len(results),
		"total_cost": total,
	})
	return results, nil
}

// merge 按 ID 覆盖快照，保留供给时登记的资源上限和预计关闭时间。
// 清单中已按名称出现、但 ID 不同的供给占位会被移除，避免同一工作区占用两份容量。
func (o *Optimizer) merge(results []Resource) {
	ids := make(map[string]struct{}, len(results))
	names := make(map[string]struct{}, len(results))
	for _, r := range results {
		ids[r.WorkspaceID] = struct{}{}
		if r.Name != "" {
			names[r.Name] = struct{}{}
		}
	}
	for _, existing := range o.store.List() {
		if _, ok := ids[existing.WorkspaceID]; ok {
			continue
		}
		if _, ok := names[existing.Name]; ok {
			o.store.Delete(existing.WorkspaceID)
		}
	}
	for i, r := range results {
		if prev, ok := o.store.Get(r.WorkspaceID); ok {
			if r.Limits == nil {
				r.Limits = prev.Limits
			}
			if r.PredictedShutdown == nil {
				r.PredictedShutdown = prev.PredictedShutdown
			}
			results[i] = r
		}
		o.store.Put(r)
	}
}

func (o *Optimizer) snapshot(ctx context.Context, item Inventory) Resource {
	now := o.now()
	report, err := o.workspaces.Status(ctx, item.ID)
	if err != nil {
		o.log.Error("获取工作区状态失败", slog.String("workspace_id", item.ID), slog.Any("error", err))
		return Resource{
			WorkspaceID:  item.ID,
			Name:         item.Name,
			Environment:  "unknown",
			Status:       StatusError,
			LastAccessed: now,
		}
	}
	env := item.Environment
	if env == "" {
		env = "unknown"
	}
	return Resource{
		WorkspaceID:  item.ID,
		Name:         item.Name,
		Environment:  env,
		Status:       normalizeStatus(report.Status),
		CPUUsage:     report.Resources.CPU,
		MemoryUsage:  report.Resources.Memory,
		DiskUsage:    report.Resources.Disk,
		NetworkUsage: report.Resources.Network,
		UptimeMs:     report.Uptime,
		LastAccessed: report.lastAccessed(now),
		Cost:         Cost(report.Resources.CPU, report.Resources.Memory, report.Resources.Disk),
	}
}

// CheckIdle 关闭超过空闲时长且 CPU 低于 5% 的运行中工作区，返回被关闭的 ID。
func (o *Optimizer) CheckIdle(ctx context.Context) []string {
	threshold := time.Duration(o.cfg.AutoShutdownAfterMinutes) * time.Minute
	now := o.now()
	var stopped []string
	for _, r := range o.store.List() {
		if r.Status != StatusRunning {
			continue
		}
		if now.Sub(r.LastAccessed) > threshold && r.CPUUsage < idleCPUThreshold {
			if err := o.Shutdown(ctx, r.WorkspaceID, "auto-shutdown due to inactivity"); err != nil {
				continue
			}
			stopped = append(stopped, r.WorkspaceID)
		}
	}
	return stopped
}

// Optimize 生成优化计划并自动执行低风险建议。并发调用合并为一次执行。
func (o *Optimizer) Optimize(ctx context.Context) (Plan, error) {
	v, err, _ := o.group.Do("optimize", func() (any, error) {
		return o.optimize(ctx)
	})
	if err != nil {
		return Plan{}, err
	}
	plan := v.(Plan)
	plan.Recommendations = append([]Recommendation(nil), plan.Recommendations...)
	plan.ImplementationOrder = append([]string(nil), plan.ImplementationOrder...)
	plan.MonitoringPlan = append([]string(nil), plan.MonitoringPlan...)
	plan.Applied = append([]string(nil), plan.Applied...)
	return plan, nil
}

func (o *Optimizer) optimize(ctx context.Context) (Plan, error) {
	resources := o.store.List()
	views := make([]ai.ResourceView, 0, len(resources))
	for _, r := range resources {
		views = append(views, r.view())
	}

	plan := Plan{
		PlanID:              uuid.NewString(),
		Recommendations:     []Recommendation{},
		ImplementationOrder: []string{},
		MonitoringPlan:      []string{},
		CreatedAt:           o.now(),
	}

	if o.cfg.EnableCostOptimization {
		costPlan, err := o.cost.OptimizeResources(ctx, ai.CostRequest{
			Resources: views,
			Constraints: ai.Constraints{
				MaxCPU:                  o.cfg.ResourceLimits.CPU,
				MaxMemory:               o.cfg.ResourceLimits.Memory,
				MaxDisk:                 o.cfg.ResourceLimits.Disk,
				MaxConcurrentWorkspaces: o.cfg.MaxConcurrentWorkspaces,
			},
		})
		if err != nil {
			return Plan{}, o.optimizationFailed(ctx, err, "cost optimization failed")
		}
		plan.Recommendations = append(plan.Recommendations, costPlan.Recommendations...)
		plan.ImplementationOrder = append(plan.ImplementationOrder, costPlan.ImplementationOrder...)
		plan.MonitoringPlan = append(plan.MonitoringPlan, costPlan.MonitoringPlan...)
	}

	if o.cfg.EnablePredictiveScaling {
		history, err := o.history.Recent(ctx, SeriesWorkspaces, o.cfg.HistoryWindow)
		if err != nil {
			o.log.Warn("读取负载历史失败", slog.Any("error", err))
			history = nil
		}
		scalingPlan, err := o.scaling.PredictScalingNeeds(ctx, ai.ScalingRequest{
			CurrentResources: views,
			HistoricalData:   history,
			TimeHorizon:      scalingTimeHorizon,
		})
		if err != nil {
			return Plan{}, o.optimizationFailed(ctx, err, "scaling prediction failed")
		}
		plan.Recommendations = append(plan.Recommendations, scalingPlan.Recommendations...)
	}

	for _, rec := range plan.Recommendations {
		plan.TotalSavings += rec.ExpectedSavings
	}
	plan.Applied = o.applyLowRisk(ctx, plan.Recommendations)

	o.exporter.ObserveOptimization("workspace", "completed")
	o.exporter.ObservePlanSavings(plan.TotalSavings)
	logger.Audit().Info("资源优化计划已生成",
		slog.String("plan_id", plan.PlanID),
		slog.Int("recommendations", len(plan.Recommendations)),
		slog.Float64("total_savings", plan.TotalSavings),
		slog.Int("applied", len(plan.Applied)),
	)
	o.record(event.WorkspaceOptimizationComplete, map[string]any{
		"plan_id":         plan.PlanID,
		"recommendations": len(plan.Recommendations),
		"total_savings":   plan.TotalSavings,
		"applied":         append([]string(nil), plan.Applied...),
	})
	return plan, nil
}

func (o *Optimizer) optimizationFailed(ctx context.Context, cause error, msg string) error {
	err := xerrors.Wrap(xerrors.CodeOptimization, cause, msg)
	o.log.Error("资源优化失败", slog.Any("error", err))
	o.exporter.ObserveOptimization("workspace", "failed")
	alerting.NotifyError(ctx, o.alerts, "workspace", err)
	return err
}

// applyLowRisk 逐条执行低风险建议，单条失败不影响其余建议。返回成功执行的描述。
func (o *Optimizer) applyLowRisk(ctx context.Context, recs []Recommendation) []string {
	var applied []string
	for _, rec := range recs {
		if rec.RiskLevel != ai.RiskLow {
			continue
		}
		err := o.apply(ctx, rec)
		if err != nil {
			o.log.Error("执行优化建议失败",
				slog.String("workspace_id", rec.WorkspaceID),
				slog.String("action", string(rec.Action)),
				slog.Any("error", err),
			)
			continue
		}
		target := rec.WorkspaceID
		if target == "" {
			target = "*"
		}
		applied = append(applied, fmt.Sprintf("%s:%s", rec.Action, target))
	}
	return applied
}

func (o *Optimizer) apply(ctx context.Context, rec Recommendation) error {
	switch rec.Action {
	case ai.ActionShutdown:
		return o.Shutdown(ctx, rec.WorkspaceID, rec.Reason)
	case ai.ActionScaleDown:
		return o.scaleTarget(rec.WorkspaceID, ScaleDown)
	case ai.ActionScaleUp:
		return o.scaleTarget(rec.WorkspaceID, ScaleUp)
	default:
		return xerrors.Newf(xerrors.CodeValidation, "action %s is not automated", rec.Action)
	}
}

// scaleTarget 针对整体资源池的建议作用于所有运行中的工作区。
func (o *Optimizer) scaleTarget(id string, dir Direction) error {
	if id != "" {
		_, err := o.Scale(id, dir)
		return err
	}
	for _, r := range o.store.List() {
		if r.Status != StatusRunning {
			continue
		}
		if _, err := o.Scale(r.WorkspaceID, dir); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown 停止工作区。命令失败时快照进入 error 状态。
func (o *Optimizer) Shutdown(ctx context.Context, id, reason string) error {
	if _, ok := o.store.Get(id); !ok {
		return xerrors.Wrap(xerrors.CodeNotFound, ErrNotFound, "workspace not found", xerrors.WithMetadata("workspace_id", id))
	}
	if err := o.workspaces.Stop(ctx, id); err != nil {
		_, _ = o.store.Update(id, func(r *Resource) { r.Status = StatusError })
		o.log.Error("停止工作区失败", slog.String("workspace_id", id), slog.Any("error", err))
		alerting.NotifyError(ctx, o.alerts, "workspace", err)
		return err
	}
	_, _ = o.store.Update(id, func(r *Resource) { r.Status = StatusStopped })
	logger.Audit().Info("工作区已停止", slog.String("workspace_id", id), slog.String("reason", reason))
	o.record(event.WorkspaceShutdown, map[string]any{
		"workspace_id": id,
		"reason":       reason,
	})
	return nil
}

// Scale 调整工作区的资源上限。上限每次翻倍或减半，并限制在配置的资源上限之内。
// 工作区 CLI 不提供在线调整，新的上限在下次供给时生效。
func (o *Optimizer) Scale(id string, dir Direction) (Resource, error) {
	if dir != ScaleUp && dir != ScaleDown {
		return Resource{}, xerrors.Newf(xerrors.CodeValidation, "unknown scale direction %q", dir)
	}
	max := o.cfg.ResourceLimits
	updated, err := o.store.Update(id, func(r *Resource) {
		limits := ai.ResourceEstimate{CPU: 1, Memory: 1, Disk: 1}
		if r.Limits != nil {
			limits = *r.Limits
		}
		if dir == ScaleUp {
			limits = ai.ResourceEstimate{CPU: limits.CPU * 2, Memory: limits.Memory * 2, Disk: limits.Disk * 2, Network: limits.Network}
		} else {
			limits = ai.ResourceEstimate{CPU: halve(limits.CPU), Memory: halve(limits.Memory), Disk: halve(limits.Disk), Network: limits.Network}
		}
		limits = clampEstimate(limits, max)
		r.Limits = &limits
	})
	if err != nil {
		return Resource{}, err
	}
	o.log.Info("工作区资源上限已调整", slog.String("workspace_id", id), slog.String("direction", string(dir)))
	o.record(event.WorkspaceScaled, map[string]any{
		"workspace_id": id,
		"direction":    string(dir),
		"cpu":          updated.Limits.CPU,
		"memory":       updated.Limits.Memory,
		"disk":         updated.Limits.Disk,
	})
	return updated, nil
}

// Provision 为指定环境供给一个新工作区并返回其 ID。容量检查与占位登记是原子的。
func (o *Optimizer) Provision(ctx context.Context, environment string, opts ProvisionOptions) (string, error) {
	if environment == "" {
		return "", xerrors.New(xerrors.CodeValidation, "environment is required", xerrors.WithMetadata("field", "environment"))
	}
	now := o.now()
	id := uuid.NewString()
	placeholder := Resource{
		WorkspaceID:  id,
		Name:         environment + "-" + id,
		Environment:  environment,
		Status:       StatusProvisioning,
		LastAccessed: now,
	}
	if opts.AutoShutdown {
		ts := now.Add(time.Duration(o.cfg.AutoShutdownAfterMinutes) * time.Minute)
		placeholder.PredictedShutdown = &ts
	}
	if err := o.store.Reserve(placeholder, Limits{
		MaxConcurrent:     o.cfg.MaxConcurrentWorkspaces,
		MaxPerEnvironment: o.cfg.MaxWorkspacesPerEnvironment,
	}); err != nil {
		o.log.Warn("工作区容量不足", slog.String("environment", environment), slog.Any("error", err))
		return "", err
	}

	workload := opts.WorkloadType
	if workload == "" {
		workload = provisionWorkloadType
	}
	horizon := opts.TimeHorizon
	if horizon <= 0 {
		horizon = provisionTimeHorizon
	}
	estimate, err := o.predictor.PredictResourceNeeds(ctx, environment, workload, horizon)
	if err != nil {
		o.store.Delete(id)
		return "", xerrors.Wrap(xerrors.CodeOptimization, err, "resource prediction failed")
	}
	estimate = clampEstimate(estimate, o.cfg.ResourceLimits)

	if err := o.workspaces.Provision(ctx, id, environment, estimate); err != nil {
		_, _ = o.store.Update(id, func(r *Resource) { r.Status = StatusError })
		o.log.Error("供给工作区失败", slog.String("environment", environment), slog.Any("error", err))
		alerting.NotifyError(ctx, o.alerts, "workspace", err)
		return "", err
	}
	_, _ = o.store.Update(id, func(r *Resource) {
		r.Status = StatusRunning
		r.Limits = &estimate
	})
	o.exportWorkspaces()

	logger.Audit().Info("工作区已供给",
		slog.String("workspace_id", id),
		slog.String("environment", environment),
		slog.Int("cpu", estimate.CPU),
		slog.Int("memory", estimate.Memory),
		slog.Int("disk", estimate.Disk),
	)
	o.record(event.WorkspaceProvisioned, map[string]any{
		"workspace_id":  id,
		"environment":   environment,
		"auto_shutdown": opts.AutoShutdown,
		"cpu":           estimate.CPU,
		"memory":        estimate.Memory,
		"disk":          estimate.Disk,
	})
	return id, nil
}

func (o *Optimizer) recordHistory(ctx context.Context, resources []Resource) {
	var cpu, mem float64
	running := 0
	for _, r := range resources {
		if r.Status != StatusRunning {
			continue
		}
		cpu += r.CPUUsage
		mem += r.MemoryUsage
		running++
	}
	if running == 0 {
		return
	}
	point := ai.HistoryPoint{
		Timestamp: o.now(),
		Load:      cpu / float64(running),
		CPU:       cpu / float64(running),
		Memory:    mem / float64(running),
	}
	if err := o.history.Append(ctx, SeriesWorkspaces, point); err != nil {
		o.log.Warn("写入负载历史失败", slog.Any("error", err))
	}
}

func (o *Optimizer) exportWorkspaces() {
	if o.exporter == nil {
		return
	}
	o.exportMu.Lock()
	defer o.exportMu.Unlock()
	counts := make(map[metrics.WorkspaceKey]int)
	var total float64
	for _, r := range o.store.List() {
		counts[metrics.WorkspaceKey{Environment: r.Environment, Status: string(r.Status)}]++
		total += r.Cost
	}
	o.exporter.ObserveWorkspaces(counts, total)
}

func (o *Optimizer) record(typ event.Type, data map[string]any) {
	if o.recorder == nil {
		return
	}
	o.recorder.Record(typ, data)
}

func halve(v int) int {
	if v <= 1 {
		return 1
	}
	return v / 2
}

func clampEstimate(e, max ai.ResourceEstimate) ai.ResourceEstimate {
	clamp := func(v, limit int) int {
		if limit > 0 && v > limit {
			return limit
		}
		return v
	}
	e.CPU = clamp(e.CPU, max.CPU)
	e.Memory = clamp(e.Memory, max.Memory)
	e.Disk = clamp(e.Disk, max.Disk)
	return e
}
