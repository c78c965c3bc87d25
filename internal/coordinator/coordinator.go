// Package coordinator 组装智能体池、任务注册表、指标采集、优化触发与工作区资源优化，
// 对外提供统一的操作入口和两组周期任务。
package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"SwarmFlow/internal/agent"
	"SwarmFlow/internal/ai"
	xerrors "SwarmFlow/internal/errors"
	"SwarmFlow/internal/event"
	"SwarmFlow/internal/observability/alerting"
	"SwarmFlow/internal/observability/metrics"
	"SwarmFlow/internal/optimize"
	"SwarmFlow/internal/scheduler"
	"SwarmFlow/internal/task"
	"SwarmFlow/internal/workspace"
	"SwarmFlow/pkg/logger"
)

// PredictionDisabledReason 是关闭 AI 优化时资源预测返回的原因。
const PredictionDisabledReason = "AI optimization disabled"

// ErrShutdown 表示协调器已关闭。
var ErrShutdown = xerrors.New(xerrors.CodeShutdown, "coordinator shut down")

// Config 描述协调器的运行参数。
type Config struct {
	SwarmID              string
	MaxAgents            int
	MetricsInterval      time.Duration
	Thresholds           ai.Thresholds
	EnableAIOptimization bool
	OptimizationTimeout  time.Duration
	EventHistory         int
	SinkTimeout          time.Duration

	Workspace         workspace.Config
	CollectInterval   time.Duration
	IdleCheckInterval time.Duration
	OptimizeInterval  time.Duration
}

// DefaultConfig 返回默认配置。
func DefaultConfig() Config {
	return Config{
		MaxAgents:            agent.DefaultMaxAgents,
		MetricsInterval:      10 * time.Second,
		Thresholds:           ai.DefaultThresholds(),
		EnableAIOptimization: true,
		OptimizationTimeout:  time.Minute,
		EventHistory:         1000,
		Workspace:            workspace.DefaultConfig(),
		CollectInterval:      30 * time.Second,
		IdleCheckInterval:    15 * time.Minute,
		OptimizeInterval:     time.Hour,
	}
}

// Dependencies 是协调器的外部协作方，未提供时使用默认实现。
// Workspaces 为空时不启用工作区资源优化。
type Dependencies struct {
	Workspaces  workspace.Workspaces
	Performance ai.PerformanceOptimizer
	Load        ai.LoadPredictor
	History     workspace.HistoryStore
	Sinks       []event.Sink
	Exporter    *metrics.Exporter
	Alerts      alerting.Dispatcher
	Clock       func() time.Time
}

// Coordinator 是 SwarmFlow 引擎的门面。
type Coordinator struct {
	cfg       Config
	swarmID   string
	startedAt time.Time
	now       func() time.Time

	recorder  *event.Recorder
	agents    *agent.Registry
	tasks     *task.Registry
	collector *metrics.Collector
	trigger   *optimize.Trigger
	resources *workspace.Optimizer
	history   workspace.HistoryStore
	load      ai.LoadPredictor
	alerts    alerting.Dispatcher
	scheduler *scheduler.Scheduler
	log       *slog.Logger

	closed   atomic.Bool
	stopOnce sync.Once
}

// New 创建协调器。调用 Start 后周期任务才开始运行。
func New(cfg Config, deps Dependencies) (*Coordinator, error) {
	def := DefaultConfig()
	if cfg.MaxAgents <= 0 {
		cfg.MaxAgents = def.MaxAgents
	}
	if cfg.MetricsInterval <= 0 {
		cfg.MetricsInterval = def.MetricsInterval
	}
	if cfg.Thresholds == (ai.Thresholds{}) {
		cfg.Thresholds = def.Thresholds
	}
	if cfg.EventHistory <= 0 {
		cfg.EventHistory = def.EventHistory
	}
	if cfg.CollectInterval <= 0 {
		cfg.CollectInterval = def.CollectInterval
	}
	if cfg.IdleCheckInterval <= 0 {
		cfg.IdleCheckInterval = def.IdleCheckInterval
	}
	if cfg.OptimizeInterval <= 0 {
		cfg.OptimizeInterval = def.OptimizeInterval
	}

	now := deps.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	swarmID := cfg.SwarmID
	if swarmID == "" {
		swarmID = uuid.NewString()
	}

	c := &Coordinator{
		cfg:       cfg,
		swarmID:   swarmID,
		startedAt: now(),
		now:       now,
		history:   deps.History,
		load:      deps.Load,
		alerts:    deps.Alerts,
		log:       logger.Named("coordinator"),
	}
	if c.history == nil {
		c.history = workspace.NewMemoryHistory(0)
	}
	if c.load == nil {
		c.load = ai.NewTrendPredictor()
	}

	c.recorder = event.NewRecorder(
		event.WithCapacity(cfg.EventHistory),
		event.WithSwarmID(swarmID),
		event.WithSinks(deps.Sinks...),
		event.WithSinkTimeout(cfg.SinkTimeout),
	)
	c.agents = agent.NewRegistry(
		agent.WithMaxAgents(cfg.MaxAgents),
		agent.WithRecorder(c.recorder),
		agent.WithClock(now),
	)
	c.tasks = task.NewRegistry(c.agents,
		task.WithRecorder(c.recorder),
		task.WithClock(now),
	)
	c.collector = metrics.NewCollector(c.agents, c.tasks,
		metrics.WithRecorder(c.recorder),
		metrics.WithExporter(deps.Exporter),
		metrics.WithClock(now),
	)

	performance := deps.Performance
	if performance == nil {
		performance = ai.NewHeuristicOptimizer(cfg.Thresholds)
	}
	c.trigger = optimize.NewTrigger(performance,
		optimize.WithEnabled(cfg.EnableAIOptimization),
		optimize.WithThresholds(cfg.Thresholds),
		optimize.WithRecorder(c.recorder),
		optimize.WithExporter(deps.Exporter),
		optimize.WithAlerts(deps.Alerts),
		optimize.WithTimeout(cfg.OptimizationTimeout),
	)

	if deps.Workspaces != nil {
		c.resources = workspace.NewOptimizer(cfg.Workspace, deps.Workspaces,
			workspace.WithHistory(c.history),
			workspace.WithRecorder(c.recorder),
			workspace.WithExporter(deps.Exporter),
			workspace.WithAlerts(deps.Alerts),
			workspace.WithClock(now),
		)
	}

	c.scheduler = scheduler.New(scheduler.WithErrorHandler(c.jobFailed))
	if err := c.registerJobs(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Coordinator) registerJobs() error {
	jobs := []scheduler.Job{
		{Name: "metrics", Interval: c.cfg.MetricsInterval, Run: c.metricsTick},
	}
	if c.resources != nil {
		jobs = append(jobs,
			scheduler.Job{Name: "resource-collect", Interval: c.cfg.CollectInterval, Immediate: true, Run: c.collectTick},
			scheduler.Job{Name: "idle-check", Interval: c.cfg.IdleCheckInterval, Run: c.idleTick},
			scheduler.Job{Name: "resource-optimize", Interval: c.cfg.OptimizeInterval, Run: c.optimizeTick},
		)
	}
	for _, job := range jobs {
		if err := c.scheduler.Add(job); err != nil {
			return err
		}
	}
	return nil
}

// Start 启动周期任务。
func (c *Coordinator) Start(ctx context.Context) {
	if c.closed.Load() {
		return
	}
	c.scheduler.Start(ctx)
	logger.Audit().Info("协调器已启动", slog.String("swarm_id", c.swarmID), slog.Int("max_agents", c.cfg.MaxAgents))
}

// SwarmID 返回集群 ID。
func (c *Coordinator) SwarmID() string {
	return c.swarmID
}

// Agents 返回智能体注册表。
func (c *Coordinator) Agents() *agent.Registry {
	return c.agents
}

// Tasks 返回任务注册表。
func (c *Coordinator) Tasks() *task.Registry {
	return c.tasks
}

// Events 返回事件记录器，可用于订阅。
func (c *Coordinator) Events() *event.Recorder {
	return c.recorder
}

// Resources 返回工作区资源优化器，未启用时为 nil。
func (c *Coordinator) Resources() *workspace.Optimizer {
	return c.resources
}

// SpawnAgent 创建智能体。
func (c *Coordinator) SpawnAgent(agentType, name string, capabilities []string) (string, error) {
	if c.closed.Load() {
		return "", ErrShutdown
	}
	return c.agents.Spawn(agentType, name, capabilities)
}

// CreateTask 创建任务。
func (c *Coordinator) CreateTask(name string, priority int, dependencies []string) (string, error) {
	if c.closed.Load() {
		return "", ErrShutdown
	}
	return c.tasks.Create(name, priority, dependencies)
}

// AssignTask 将任务分配给空闲智能体。
func (c *Coordinator) AssignTask(taskID, agentID string) bool {
	if c.closed.Load() {
		return false
	}
	return c.tasks.Assign(taskID, agentID)
}

// CompleteTask 完成进行中的任务。
func (c *Coordinator) CompleteTask(taskID string, result any) bool {
	return c.tasks.Complete(taskID, result)
}

// FailTask 将任务标记为失败。
func (c *Coordinator) FailTask(taskID, reason string) bool {
	return c.tasks.Fail(taskID, reason)
}

// LatestMetrics 返回最近一次采样。
func (c *Coordinator) LatestMetrics() (metrics.Snapshot, bool) {
	return c.collector.Latest()
}

// SampleMetrics 立即采样一次，记录集群负载历史并评估是否需要优化。
func (c *Coordinator) SampleMetrics(ctx context.Context) metrics.Snapshot {
	s := c.collector.Sample()
	point := ai.HistoryPoint{Timestamp: s.Timestamp, Load: s.ResourceUtilization * 100}
	if err := c.history.Append(ctx, workspace.SeriesSwarm, point); err != nil {
		c.log.Warn("写入集群负载历史失败", slog.Any("error", err))
	}
	if !c.closed.Load() {
		c.trigger.Evaluate(ctx, s)
	}
	return s
}

// Optimize 按需执行一次性能优化，使用最新的采样结果。
func (c *Coordinator) Optimize(ctx context.Context) (optimize.Result, error) {
	if c.closed.Load() {
		return optimize.Result{}, ErrShutdown
	}
	s, ok := c.collector.Latest()
	if !ok {
		s = c.collector.Sample()
	}
	return c.trigger.Optimize(ctx, s)
}

// RecentEvents 返回最近 limit 条事件，limit<=0 时返回 100 条。
func (c *Coordinator) RecentEvents(limit int) []event.Event {
	return c.recorder.Recent(limit)
}

// Status 汇总集群状态。
func (c *Coordinator) Status() Status {
	total, busy, idle := c.agents.Counts()
	st := Status{
		SwarmID:              c.swarmID,
		StartedAt:            c.startedAt,
		UptimeMs:             c.now().Sub(c.startedAt).Milliseconds(),
		Agents:               AgentSummary{Total: total, Busy: busy, Idle: idle, Max: c.agents.MaxAgents()},
		Tasks:                c.tasks.Stats(),
		OptimizationInFlight: c.trigger.InFlight(),
		ShuttingDown:         c.closed.Load(),
		LastUpdated:          c.now(),
	}
	if s, ok := c.collector.Latest(); ok {
		st.Metrics = &s
	}
	if c.resources != nil {
		for _, r := range c.resources.Resources() {
			if r.Status.Active() {
				st.ActiveWorkspaces++
			}
		}
	}
	return st
}

// PredictResourceNeeds 基于集群负载历史预测 timeHorizon 小时内所需的智能体数量。
func (c *Coordinator) PredictResourceNeeds(ctx context.Context, timeHorizon int) (Prediction, error) {
	if !c.cfg.EnableAIOptimization {
		return Prediction{Applied: false, Reason: PredictionDisabledReason}, nil
	}
	history, err := c.history.Recent(ctx, workspace.SeriesSwarm, 0)
	if err != nil {
		return Prediction{}, err
	}
	forecast, err := c.load.PredictLoad(ctx, history, timeHorizon)
	if err != nil {
		return Prediction{}, xerrors.Wrap(xerrors.CodeOptimization, err, "load prediction failed")
	}
	return Prediction{Applied: true, Forecast: &forecast}, nil
}

// Shutdown 停止周期任务、发出 shutdown 事件并等待运行中的优化周期结束。
// 运行中的周期结果会被丢弃，可重复调用。
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.stopOnce.Do(func() {
		c.closed.Store(true)
		c.recorder.Record(event.Shutdown, map[string]any{"swarm_id": c.swarmID})
		c.scheduler.Stop()

		done := make(chan struct{})
		go func() {
			c.trigger.Close()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			c.log.Warn("等待优化周期结束超时", slog.Any("error", ctx.Err()))
		}
		if err := c.recorder.Close(); err != nil {
			c.log.Error("关闭事件投递失败", slog.Any("error", err))
		}
		logger.Audit().Info("协调器已关闭", slog.String("swarm_id", c.swarmID))
	})
	return nil
}

func (c *Coordinator) metricsTick(ctx context.Context) error {
	c.SampleMetrics(ctx)
	return nil
}

func (c *Coordinator) collectTick(ctx context.Context) error {
	_, err := c.resources.Collect(ctx)
	return err
}

func (c *Coordinator) idleTick(ctx context.Context) error {
	c.resources.CheckIdle(ctx)
	return nil
}

func (c *Coordinator) optimizeTick(ctx context.Context) error {
	_, err := c.resources.Optimize(ctx)
	return err
}

func (c *Coordinator) jobFailed(job string, err error) {
	c.log.Warn("周期任务本轮失败，等待下一轮", slog.String("job", job), slog.String("code", string(xerrors.CodeOf(err))))
}
