package metrics

import "time"

// Snapshot 是一次采样得到的聚合指标，完全由注册表内容计算得出。
type Snapshot struct {
	ActiveAgents          int       `json:"active_agents"`
	BusyAgents            int       `json:"busy_agents"`
	IdleAgents            int       `json:"idle_agents"`
	ResourceUtilization   float64   `json:"resource_utilization"`
	TotalTasks            int       `json:"total_tasks"`
	CompletedTasks        int       `json:"completed_tasks"`
	PendingTasks          int       `json:"pending_tasks"`
	InProgressTasks       int       `json:"in_progress_tasks"`
	FailedTasks           int       `json:"failed_tasks"`
	AverageResponseTimeMs float64   `json:"average_response_time_ms"`
	Throughput            int       `json:"throughput"`
	ErrorRate             float64   `json:"error_rate"`
	Timestamp             time.Time `json:"timestamp"`
}

// Fields 以事件载荷形式返回快照。
func (s Snapshot) Fields() map[string]any {
	return map[string]any{
		"active_agents":            s.ActiveAgents,
		"busy_agents":              s.BusyAgents,
		"idle_agents":              s.IdleAgents,
		"resource_utilization":     s.ResourceUtilization,
		"total_tasks":              s.TotalTasks,
		"completed_tasks":          s.CompletedTasks,
		"pending_tasks":            s.PendingTasks,
		"in_progress_tasks":        s.InProgressTasks,
		"failed_tasks":             s.FailedTasks,
		"average_response_time_ms": s.AverageResponseTimeMs,
		"throughput":               s.Throughput,
		"error_rate":               s.ErrorRate,
		"timestamp":                s.Timestamp,
	}
}
