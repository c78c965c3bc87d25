// Package event 提供协调引擎的生命周期事件记录器：只追加、容量受限，
// 订阅者按事件类型注册处理函数，外部观察者通过 Sink 接收事件副本。
package event

import (
	"time"

	"github.com/google/uuid"
)

// Type 标识一种生命周期事件。
type Type string

const (
	AgentSpawned                  Type = "agent.spawned"
	TaskCreated                   Type = "task.created"
	TaskAssigned                  Type = "task.assigned"
	TaskCompleted                 Type = "task.completed"
	TaskFailed                    Type = "task.failed"
	MetricsCollected              Type = "metrics.collected"
	OptimizationStarted           Type = "optimization.started"
	OptimizationCompleted         Type = "optimization.completed"
	OptimizationFailed            Type = "optimization.failed"
	ResourcesCollected            Type = "resources.collected"
	WorkspaceProvisioned          Type = "workspace.provisioned"
	WorkspaceShutdown             Type = "workspace.shutdown"
	WorkspaceScaled               Type = "workspace.scaled"
	WorkspaceOptimizationComplete Type = "workspace.optimization.completed"
	Shutdown                      Type = "shutdown"
)

// Event 是一次记录下来的生命周期事件，发布后视为不可变。
type Event struct {
	ID        string         `json:"id"`
	Type      Type           `json:"type"`
	SwarmID   string         `json:"swarm_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// New 构造一个带唯一 ID 与 UTC 时间戳的事件。
func New(typ Type, swarmID string, data map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      typ,
		SwarmID:   swarmID,
		Data:      cloneData(data),
		Timestamp: time.Now().UTC(),
	}
}

func cloneData(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	cloned := make(map[string]any, len(data))
	for k, v := range data {
		cloned[k] = v
	}
	return cloned
}

func (e Event) clone() Event {
	e.Data = cloneData(e.Data)
	return e
}
