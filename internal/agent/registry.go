package agent

import (
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	xerrors "SwarmFlow/internal/errors"
	"SwarmFlow/internal/event"
	"SwarmFlow/pkg/logger"
)

// DefaultMaxAgents 是未配置时的智能体数量上限。
const DefaultMaxAgents = 25

var (
	// ErrInvalidAgent 表示创建参数不合法。
	ErrInvalidAgent = xerrors.New(xerrors.CodeValidation, "invalid agent")
	// ErrCapacityReached 表示智能体数量已达上限。
	ErrCapacityReached = xerrors.New(xerrors.CodeCapacity, "maximum number of agents reached")
	// ErrNotFound 表示智能体不存在。
	ErrNotFound = xerrors.New(xerrors.CodeNotFound, "agent not found")
)

// Recorder 抽象事件记录能力，由 event.Recorder 实现。
type Recorder interface {
	Record(typ event.Type, data map[string]any) event.Event
}

// Registry 持有所有智能体记录。容量检查与插入在同一临界区内完成。
type Registry struct {
	mu        sync.RWMutex
	agents    map[string]*Agent
	maxAgents int
	recorder  Recorder
	now       func() time.Time
	log       *slog.Logger
}

// Option 定义 Registry 的可选配置。
type Option func(*Registry)

// WithMaxAgents 设置智能体数量上限。
func WithMaxAgents(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxAgents = n
		}
	}
}

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

// NewRegistry 创建智能体注册表。
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		agents:    make(map[string]*Agent),
		maxAgents: DefaultMaxAgents,
		now:       func() time.Time { return time.Now().UTC() },
		log:       logger.Named("agent"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// MaxAgents 返回配置的上限。
func (r *Registry) MaxAgents() int {
	return r.maxAgents
}

// Spawn 创建一个空闲智能体并返回其 ID。
func (r *Registry) Spawn(agentType, name string, capabilities []string) (string, error) {
	agentType = strings.TrimSpace(agentType)
	name = strings.TrimSpace(name)
	caps := normalizeCapabilities(capabilities)
	switch {
	case agentType == "":
		return "", xerrors.Wrap(xerrors.CodeValidation, ErrInvalidAgent, "agent type is required", xerrors.WithMetadata("field", "type"))
	case name == "":
		return "", xerrors.Wrap(xerrors.CodeValidation, ErrInvalidAgent, "agent name is required", xerrors.WithMetadata("field", "name"))
	case len(caps) == 0:
		return "", xerrors.Wrap(xerrors.CodeValidation, ErrInvalidAgent, "agent capabilities are required", xerrors.WithMetadata("field", "capabilities"))
	}

	now := r.now()
	ag := &Agent{
		ID:           uuid.NewString(),
		Type:         agentType,
		Name:         name,
		Capabilities: caps,
		Status:       StatusIdle,
		LastActivity: now,
		CreatedAt:    now,
	}

	r.mu.Lock()
	if len(r.agents) >= r.maxAgents {
		r.mu.Unlock()
		r.log.Warn("智能体数量已达上限", slog.Int("max_agents", r.maxAgents))
		return "", xerrors.Wrap(xerrors.CodeCapacity, ErrCapacityReached, "maximum number of agents reached",
			xerrors.WithMetadata("limit", "max_agents"),
			xerrors.WithMetadata("value", strconv.Itoa(r.maxAgents)),
		)
	}
	r.agents[ag.ID] = ag
	r.mu.Unlock()

	logger.Audit().Info("智能体已创建",
		slog.String("agent_id", ag.ID),
		slog.String("agent_type", ag.Type),
		slog.String("agent_name", ag.Name),
	)
	r.record(event.AgentSpawned, map[string]any{
		"agent_id":     ag.ID,
		"type":         ag.Type,
		"name":         ag.Name,
		"capabilities": append([]string(nil), caps...),
	})
	return ag.ID, nil
}

// Get 返回智能体的副本。
func (r *Registry) Get(id string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ag, ok := r.agents[id]
	if !ok {
		return Agent{}, false
	}
	return ag.clone(), true
}

// List 按创建时间返回所有智能体的副本。
func (r *Registry) List() []Agent {
	r.mu.RLock()
	out := make([]Agent, 0, len(r.agents))
	for _, ag := range r.agents {
		out = append(out, ag.clone())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Counts 返回智能体总数与各状态数量。
func (r *Registry) Counts() (total, busy, idle int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ag := range r.agents {
		switch ag.Status {
		case StatusBusy:
			busy++
		case StatusIdle:
			idle++
		}
	}
	return len(r.agents), busy, idle
}

// MarkBusy 将空闲智能体绑定到任务。智能体不存在或非空闲时返回 false。
func (r *Registry) MarkBusy(id, taskID string) bool {
	if taskID == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ag, ok := r.agents[id]
	if !ok || ag.Status != StatusIdle {
		return false
	}
	ag.Status = StatusBusy
	ag.CurrentTaskID = taskID
	ag.LastActivity = r.now()
	return true
}

// MarkIdle 在任务完成后释放智能体，累计完成数并更新平均响应时间。
func (r *Registry) MarkIdle(id string, duration time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ag, ok := r.agents[id]
	if !ok || ag.Status != StatusBusy {
		return false
	}
	ag.Status = StatusIdle
	ag.CurrentTaskID = ""
	ag.TasksCompleted++
	n := float64(ag.TasksCompleted)
	ms := float64(duration) / float64(time.Millisecond)
	ag.AverageResponseTimeMs = (ag.AverageResponseTimeMs*(n-1) + ms) / n
	ag.LastActivity = r.now()
	return true
}

// Release 在任务失败时释放智能体，不计入完成数。
func (r *Registry) Release(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ag, ok := r.agents[id]
	if !ok || ag.Status != StatusBusy {
		return false
	}
	ag.Status = StatusIdle
	ag.CurrentTaskID = ""
	ag.LastActivity = r.now()
	return true
}

func (r *Registry) record(typ event.Type, data map[string]any) {
	if r.recorder == nil {
		return
	}
	r.recorder.Record(typ, data)
}
