package task

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	xerrors "SwarmFlow/internal/errors"
	"SwarmFlow/internal/event"
	"SwarmFlow/pkg/logger"
)

// AgentPool 是 Registry 驱动智能体状态转换所需的最小接口，由 agent.Registry 实现。
type AgentPool interface {
	MarkBusy(agentID, taskID string) bool
	MarkIdle(agentID string, duration time.Duration) bool
	Release(agentID string) bool
}

// Recorder 抽象事件记录能力。
type Recorder interface {
	Record(typ event.Type, data map[string]any) event.Event
}

// Registry 持有所有任务记录。任务锁在智能体锁之前获取，
// 分配与完成对两个注册表的修改因此互相原子。
type Registry struct {
	mu       sync.RWMutex
	tasks    map[string]*Task
	agents   AgentPool
	recorder Recorder
	now      func() time.Time
	log      *slog.Logger
}

// Option 定义 Registry 的可选配置。
type Option func(*Registry)

// WithRecorder 设置事件记录器。
func WithRecorder(rec Recorder) Option {
	return func(r *Registry) {
		r.recorder = rec
	}
}

// WithClock 替换时间来源，主要用于测试。
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry 创建任务注册表。
func NewRegistry(agents AgentPool, opts ...Option) *Registry {
	r := &Registry{
		tasks:  make(map[string]*Task),
		agents: agents,
		now:    func() time.Time { return time.Now().UTC() },
		log:    logger.Named("task"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Create 新建一个待处理任务并返回其 ID。依赖按给定顺序保存，不做存在性校验。
func (r *Registry) Create(name string, priority int, dependencies []string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", xerrors.Wrap(xerrors.CodeValidation, ErrInvalidTask, "task name is required", xerrors.WithMetadata("field", "name"))
	}
	if priority <= 0 {
		return "", xerrors.Wrap(xerrors.CodeValidation, ErrInvalidTask, "task priority must be positive", xerrors.WithMetadata("field", "priority"))
	}

	t := &Task{
		ID:           uuid.NewString(),
		Name:         name,
		Priority:     priority,
		Dependencies: append([]string(nil), dependencies...),
		Status:       StatusPending,
		CreatedAt:    r.now(),
	}

	r.mu.Lock()
	r.tasks[t.ID] = t
	r.mu.Unlock()

	r.record(event.TaskCreated, map[string]any{
		"task_id":      t.ID,
		"name":         t.Name,
		"priority":     t.Priority,
		"dependencies": append([]string(nil), t.Dependencies...),
	})
	return t.ID, nil
}

// Get 返回任务副本。
func (r *Registry) Get(id string) (Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	if !ok {
		return Task{}, false
	}
	return cloneTask(t), true
}

// Lookup 与 Get 相同，但在任务不存在时返回 ErrTaskNotFound。
func (r *Registry) Lookup(id string) (Task, error) {
	t, ok := r.Get(id)
	if !ok {
		return Task{}, xerrors.Wrap(CodeTaskNotFound, ErrTaskNotFound, "task not found", xerrors.WithMetadata("task_id", id))
	}
	return t, nil
}

// List 按选项返回任务副本。
func (r *Registry) List(opts ...ListOption) []Task {
	options := buildListOptions(opts)

	r.mu.RLock()
	out := make([]Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		if options.matches(t.Status) {
			out = append(out, cloneTask(t))
		}
	}
	r.mu.RUnlock()

	sortTasks(out, options.Order)
	if options.Limit > 0 && len(out) > options.Limit {
		out = out[:options.Limit]
	}
	return out
}

// Ready 返回所有依赖均已完成的待处理任务，按优先级降序、创建时间升序排列。
func (r *Registry) Ready() []Task {
	r.mu.RLock()
	out := make([]Task, 0)
	for _, t := range r.tasks {
		if t.Status != StatusPending {
			continue
		}
		if r.dependenciesMetLocked(t) {
			out = append(out, cloneTask(t))
		}
	}
	r.mu.RUnlock()
	sortTasks(out, SortByPriority)
	return out
}

// Assign 将待处理任务分配给空闲智能体。任务或智能体不存在、任务非 pending、
// 智能体非 idle 时返回 false 且不修改任何状态。
func (r *Registry) Assign(taskID, agentID string) bool {
	r.mu.Lock()
	t, ok := r.tasks[taskID]
	if !ok || t.Status != StatusPending {
		r.mu.Unlock()
		return false
	}
	if r.agents == nil || !r.agents.MarkBusy(agentID, taskID) {
		r.mu.Unlock()
		return false
	}
	started := r.now()
	t.Status = StatusInProgress
	t.AssignedAgentID = agentID
	t.StartedAt = &started
	r.mu.Unlock()

	logger.Audit().Info("任务已分配",
		slog.String("task_id", taskID),
		slog.String("agent_id", agentID),
	)
	r.record(event.TaskAssigned, map[string]any{
		"task_id":  taskID,
		"agent_id": agentID,
	})
	return true
}

// Complete 结束进行中的任务并释放其智能体。任务不存在或非 in_progress 时返回 false。
func (r *Registry) Complete(taskID string, result any) bool {
	r.mu.Lock()
	t, ok := r.tasks[taskID]
	if !ok || t.Status != StatusInProgress {
		r.mu.Unlock()
		return false
	}
	completed := r.now()
	t.Status = StatusCompleted
	t.CompletedAt = &completed
	t.Result = result
	duration := completed.Sub(*t.StartedAt)
	agentID := t.AssignedAgentID
	if r.agents != nil && !r.agents.MarkIdle(agentID, duration) {
		r.log.Error("释放智能体失败", slog.String("task_id", taskID), slog.String("agent_id", agentID))
	}
	r.mu.Unlock()

	logger.Audit().Info("任务已完成",
		slog.String("task_id", taskID),
		slog.String("agent_id", agentID),
		slog.Duration("duration", duration),
	)
	r.record(event.TaskCompleted, map[string]any{
		"task_id":     taskID,
		"agent_id":    agentID,
		"duration_ms": duration.Milliseconds(),
	})
	return true
}

// Fail 将未结束的任务标记为失败。进行中的任务会释放智能体但不计入完成数。
func (r *Registry) Fail(taskID, reason string) bool {
	r.mu.Lock()
	t, ok := r.tasks[taskID]
	if !ok || t.Status.Terminal() {
		r.mu.Unlock()
		return false
	}
	wasRunning := t.Status == StatusInProgress
	completed := r.now()
	t.Status = StatusFailed
	t.CompletedAt = &completed
	t.Error = reason
	agentID := t.AssignedAgentID
	if wasRunning && r.agents != nil && !r.agents.Release(agentID) {
		r.log.Error("释放智能体失败", slog.String("task_id", taskID), slog.String("agent_id", agentID))
	}
	r.mu.Unlock()

	r.log.Warn("任务失败", slog.String("task_id", taskID), slog.String("reason", reason))
	r.record(event.TaskFailed, map[string]any{
		"task_id":  taskID,
		"agent_id": agentID,
		"reason":   reason,
	})
	return true
}

// Stats 返回任务状态统计。平均响应时间只计入同时具备开始与结束时间的已完成任务。
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var (
		stats Stats
		total time.Duration
		timed int
	)
	stats.Total = len(r.tasks)
	for _, t := range r.tasks {
		switch t.Status {
		case StatusPending:
			stats.Pending++
		case StatusInProgress:
			stats.InProgress++
		case StatusCompleted:
			stats.Completed++
			if d, ok := t.Duration(); ok {
				total += d
				timed++
			}
		case StatusFailed:
			stats.Failed++
		}
	}
	if timed > 0 {
		stats.AverageResponseTimeMs = float64(total) / float64(timed) / float64(time.Millisecond)
	}
	return stats
}

func (r *Registry) dependenciesMetLocked(t *Task) bool {
	for _, dep := range t.Dependencies {
		d, ok := r.tasks[dep]
		if !ok || d.Status != StatusCompleted {
			return false
		}
	}
	return true
}

func (r *Registry) record(typ event.Type, data map[string]any) {
	if r.recorder == nil {
		return
	}
	r.recorder.Record(typ, data)
}

func sortTasks(tasks []Task, order SortOrder) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if order == SortByPriority && a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID < b.ID
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}
