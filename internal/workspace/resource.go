package workspace

import (
	"strings"
	"time"

	"SwarmFlow/internal/ai"
)

// Status 表示工作区状态。provisioning → running → stopped，命令失败时任意状态可进入 error。
type Status string

const (
	StatusProvisioning Status = "provisioning"
	StatusRunning      Status = "running"
	StatusStopped      Status = "stopped"
	StatusError        Status = "error"
)

// Active 判断工作区是否占用容量。
func (s Status) Active() bool {
	return s == StatusProvisioning || s == StatusRunning
}

func normalizeStatus(raw string) Status {
	switch s := Status(strings.ToLower(strings.TrimSpace(raw))); s {
	case StatusProvisioning, StatusRunning, StatusStopped, StatusError:
		return s
	default:
		return StatusError
	}
}

// Resource 是一个工作区的资源快照。用量字段为百分比，UptimeMs 为毫秒。
type Resource struct {
	WorkspaceID       string               `json:"workspace_id"`
	Name              string               `json:"name"`
	Environment       string               `json:"environment"`
	Status            Status               `json:"status"`
	CPUUsage          float64              `json:"cpu_usage"`
	MemoryUsage       float64              `json:"memory_usage"`
	DiskUsage         float64              `json:"disk_usage"`
	NetworkUsage      float64              `json:"network_usage"`
	UptimeMs          int64                `json:"uptime_ms"`
	LastAccessed      time.Time            `json:"last_accessed"`
	Cost              float64              `json:"cost"`
	PredictedShutdown *time.Time           `json:"predicted_shutdown,omitempty"`
	Limits            *ai.ResourceEstimate `json:"limits,omitempty"`
}

// Cost 按 CPU、内存、磁盘用量估算每小时成本。
func Cost(cpu, memory, disk float64) float64 {
	return cpu*0.02 + memory*0.01 + disk*0.001
}

func (r Resource) clone() Resource {
	if r.PredictedShutdown != nil {
		ts := *r.PredictedShutdown
		r.PredictedShutdown = &ts
	}
	if r.Limits != nil {
		l := *r.Limits
		r.Limits = &l
	}
	return r
}

func (r Resource) view() ai.ResourceView {
	return ai.ResourceView{
		WorkspaceID:  r.WorkspaceID,
		Environment:  r.Environment,
		Status:       string(r.Status),
		CPUUsage:     r.CPUUsage,
		MemoryUsage:  r.MemoryUsage,
		DiskUsage:    r.DiskUsage,
		NetworkUsage: r.NetworkUsage,
		Cost:         r.Cost,
	}
}
