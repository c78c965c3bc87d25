package task

import (
	"time"

	xerrors "SwarmFlow/internal/errors"
)

// Status 表示任务在生命周期中的状态，只能单调前进。
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal 判断状态是否为终态。
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Task 描述一个待分配给智能体的任务。
type Task struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Priority        int        `json:"priority"`
	Dependencies    []string   `json:"dependencies,omitempty"`
	Status          Status     `json:"status"`
	AssignedAgentID string     `json:"assigned_agent_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	Result          any        `json:"result,omitempty"`
	Error           string     `json:"error,omitempty"`
}

// Duration 返回任务从开始到结束的耗时，未结束时返回 false。
func (t Task) Duration() (time.Duration, bool) {
	if t.StartedAt == nil || t.CompletedAt == nil {
		return 0, false
	}
	return t.CompletedAt.Sub(*t.StartedAt), true
}

const (
	CodeTaskNotFound   xerrors.Code = "TASK_NOT_FOUND"
	CodeTaskValidation xerrors.Code = "TASK_VALIDATION_FAILED"
)

var (
	// ErrTaskNotFound 表示指定的任务不存在。
	ErrTaskNotFound = xerrors.New(CodeTaskNotFound, "task not found")
	// ErrInvalidTask 表示创建参数不合法。
	ErrInvalidTask = xerrors.New(CodeTaskValidation, "task validation failed")
)

func init() {
	xerrors.Register(CodeTaskNotFound, xerrors.Attributes{
		Message:  "task not found",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeTaskValidation, xerrors.Attributes{
		Message:  "task validation failed",
		Severity: xerrors.SeverityInfo,
	})
}

// IsValidStatus 检查给定的任务状态是否为支持的枚举值。
func IsValidStatus(status Status) bool {
	switch status {
	case StatusPending, StatusInProgress, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

func cloneTask(t *Task) Task {
	out := *t
	out.Dependencies = append([]string(nil), t.Dependencies...)
	if t.StartedAt != nil {
		ts := *t.StartedAt
		out.StartedAt = &ts
	}
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		out.CompletedAt = &ts
	}
	return out
}
