package agent

import (
	"sort"
	"strings"
	"time"
)

// Status 表示智能体当前状态。
type Status string

const (
	StatusIdle  Status = "idle"
	StatusBusy  Status = "busy"
	StatusError Status = "error"
)

// Agent 描述一个逻辑智能体。Status 为 busy 当且仅当 CurrentTaskID 非空。
type Agent struct {
	ID                    string    `json:"id"`
	Type                  string    `json:"type"`
	Name                  string    `json:"name"`
	Capabilities          []string  `json:"capabilities"`
	Status                Status    `json:"status"`
	CurrentTaskID         string    `json:"current_task_id,omitempty"`
	TasksCompleted        int       `json:"tasks_completed"`
	AverageResponseTimeMs float64   `json:"average_response_time_ms"`
	LastActivity          time.Time `json:"last_activity"`
	CreatedAt             time.Time `json:"created_at"`
}

// HasCapability 判断智能体是否具备指定能力。
func (a Agent) HasCapability(capability string) bool {
	i := sort.SearchStrings(a.Capabilities, capability)
	return i < len(a.Capabilities) && a.Capabilities[i] == capability
}

func (a Agent) clone() Agent {
	a.Capabilities = append([]string(nil), a.Capabilities...)
	return a
}

// normalizeCapabilities 去除空白与重复项并排序，能力按集合语义保存。
func normalizeCapabilities(capabilities []string) []string {
	seen := make(map[string]struct{}, len(capabilities))
	out := make([]string, 0, len(capabilities))
	for _, c := range capabilities {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
