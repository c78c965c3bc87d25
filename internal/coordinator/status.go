package coordinator

import (
	"time"

	"SwarmFlow/internal/ai"
	"SwarmFlow/internal/observability/metrics"
	"SwarmFlow/internal/task"
)

// AgentSummary 是智能体数量汇总。
type AgentSummary struct {
	Total int `json:"total"`
	Busy  int `json:"busy"`
	Idle  int `json:"idle"`
	Max   int `json:"max"`
}

// Status 是集群状态快照。
type Status struct {
	SwarmID              string            `json:"swarm_id"`
	StartedAt            time.Time         `json:"started_at"`
	UptimeMs             int64             `json:"uptime_ms"`
	Agents               AgentSummary      `json:"agents"`
	Tasks                task.Stats        `json:"tasks"`
	Metrics              *metrics.Snapshot `json:"metrics,omitempty"`
	ActiveWorkspaces     int               `json:"active_workspaces"`
	OptimizationInFlight bool              `json:"optimization_in_flight"`
	ShuttingDown         bool              `json:"shutting_down"`
	LastUpdated          time.Time         `json:"last_updated"`
}

// Prediction 是资源需求预测的结果。
type Prediction struct {
	Applied  bool             `json:"prediction_applied"`
	Reason   string           `json:"reason,omitempty"`
	Forecast *ai.LoadForecast `json:"forecast,omitempty"`
}
