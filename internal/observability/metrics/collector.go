package metrics

import (
	"log/slog"
	"sync"
	"time"

	"SwarmFlow/internal/event"
	"SwarmFlow/internal/task"
	"SwarmFlow/pkg/logger"
)

// AgentSource 提供智能体数量统计，由 agent.Registry 实现。
type AgentSource interface {
	Counts() (total, busy, idle int)
}

// TaskSource 提供任务统计，由 task.Registry 实现。
type TaskSource interface {
	Stats() task.Stats
}

// Recorder 抽象事件记录能力。
type Recorder interface {
	Record(typ event.Type, data map[string]any) event.Event
}

// Collector 从两个注册表采样聚合指标。采样只读内存，不做任何 I/O。
type Collector struct {
	agents   AgentSource
	tasks    TaskSource
	recorder Recorder
	exporter *Exporter
	now      func() time.Time
	log      *slog.Logger

	mu     sync.RWMutex
	latest Snapshot
	has    bool
}

// CollectorOption 定义 Collector 的可选配置。
type CollectorOption func(*Collector)

// WithRecorder 设置事件记录器。
func WithRecorder(rec Recorder) CollectorOption {
	return func(c *Collector) {
		c.recorder = rec
	}
}

// WithExporter 将每次采样同步到 Prometheus 指标。
func WithExporter(exp *Exporter) CollectorOption {
	return func(c *Collector) {
		c.exporter = exp
	}
}

// WithClock 替换时间来源，主要用于测试。
func WithClock(now func() time.Time) CollectorOption {
	return func(c *Collector) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCollector 创建指标采集器。
func NewCollector(agents AgentSource, tasks TaskSource, opts ...CollectorOption) *Collector {
	c := &Collector{
		agents: agents,
		tasks:  tasks,
		now:    func() time.Time { return time.Now().UTC() },
		log:    logger.Named("metrics"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Sample 计算一次快照，保存为最新值并发出 metrics.collected 事件。
func (c *Collector) Sample() Snapshot {
	total, busy, idle := c.agents.Counts()
	stats := c.tasks.Stats()

	active := total
	if active < 1 {
		active = 1
	}
	snap := Snapshot{
		ActiveAgents:          total,
		BusyAgents:            busy,
		IdleAgents:            idle,
		ResourceUtilization:   float64(busy) / float64(active),
		TotalTasks:            stats.Total,
		CompletedTasks:        stats.Completed,
		PendingTasks:          stats.Pending,
		InProgressTasks:       stats.InProgress,
		FailedTasks:           stats.Failed,
		AverageResponseTimeMs: stats.AverageResponseTimeMs,
		Throughput:            stats.Completed,
		ErrorRate:             stats.ErrorRate(),
		Timestamp:             c.now(),
	}

	c.mu.Lock()
	c.latest = snap
	c.has = true
	c.mu.Unlock()

	if c.exporter != nil {
		c.exporter.ObserveSnapshot(snap)
	}
	if c.recorder != nil {
		c.recorder.Record(event.MetricsCollected, snap.Fields())
	}
	c.log.Debug("指标采样完成",
		slog.Int("active_agents", snap.ActiveAgents),
		slog.Float64("resource_utilization", snap.ResourceUtilization),
		slog.Int("pending_tasks", snap.PendingTasks),
	)
	return snap
}

// Latest 返回最近一次采样结果，尚未采样时第二个返回值为 false。
func (c *Collector) Latest() (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latest, c.has
}
