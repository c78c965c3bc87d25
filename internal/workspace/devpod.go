package workspace

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"SwarmFlow/internal/ai"
	xerrors "SwarmFlow/internal/errors"
)

// Inventory 是工作区 CLI 列表命令中的一项。
type Inventory struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Environment string `json:"environment"`
}

// Usage 是状态命令报告的资源用量。
type Usage struct {
	CPU     float64 `json:"cpu"`
	Memory  float64 `json:"memory"`
	Disk    float64 `json:"disk"`
	Network float64 `json:"network"`
}

// StatusReport 是工作区 CLI 状态命令的输出。
type StatusReport struct {
	Status       string `json:"status"`
	Resources    Usage  `json:"resources"`
	Uptime       int64  `json:"uptime"`
	LastAccessed string `json:"lastAccessed"`
}

// CLIConfig 描述工作区 CLI 与供给脚本的位置。
type CLIConfig struct {
	Binary            string
	ScriptInterpreter string
	ProvisionScript   string
}

// CLI 封装工作区管理命令。
type CLI struct {
	runner CommandRunner
	cfg    CLIConfig
}

// NewCLI 创建 CLI，空字段使用默认的 devpod 与 nushell 脚本。
func NewCLI(runner CommandRunner, cfg CLIConfig) *CLI {
	if cfg.Binary == "" {
		cfg.Binary = "devpod"
	}
	if cfg.ScriptInterpreter == "" {
		cfg.ScriptInterpreter = "nu"
	}
	if cfg.ProvisionScript == "" {
		cfg.ProvisionScript = "host-tooling/devpod-management/manage-devpod.nu"
	}
	return &CLI{runner: runner, cfg: cfg}
}

// List 返回工作区清单。
func (c *CLI) List(ctx context.Context) ([]Inventory, error) {
	out, err := c.runner.Run(ctx, c.cfg.Binary, "list", "--output", "json")
	if err != nil {
		return nil, err
	}
	var items []Inventory
	if err := json.Unmarshal(out, &items); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeExternalCommand, err, "decode workspace list")
	}
	return items, nil
}

// Status 返回单个工作区的状态。
func (c *CLI) Status(ctx context.Context, id string) (StatusReport, error) {
	out, err := c.runner.Run(ctx, c.cfg.Binary, "status", id, "--output", "json")
	if err != nil {
		return StatusReport{}, err
	}
	var report StatusReport
	if err := json.Unmarshal(out, &report); err != nil {
		return StatusReport{}, xerrors.Wrap(xerrors.CodeExternalCommand, err, "decode workspace status", xerrors.WithMetadata("workspace_id", id))
	}
	return report, nil
}

// Stop 停止工作区。
func (c *CLI) Stop(ctx context.Context, id string) error {
	_, err := c.runner.Run(ctx, c.cfg.Binary, "stop", id)
	return err
}

// Provision 调用供给脚本，以预测的资源作为上限，并指定工作区 ID。
func (c *CLI) Provision(ctx context.Context, id, environment string, limits ai.ResourceEstimate) error {
	_, err := c.runner.Run(ctx, c.cfg.ScriptInterpreter, c.ProvisionArgs(id, environment, limits)...)
	return err
}

// ProvisionArgs 构造供给脚本参数。
func (c *CLI) ProvisionArgs(id, environment string, limits ai.ResourceEstimate) []string {
	return []string{
		c.cfg.ProvisionScript,
		"provision",
		environment,
		"--id=" + id,
		fmt.Sprintf("--cpu-limit=%d", limits.CPU),
		fmt.Sprintf("--memory-limit=%d", limits.Memory),
		fmt.Sprintf("--disk-limit=%d", limits.Disk),
	}
}

// lastAccessed 解析 RFC3339 时间，缺失或无法解析时返回 fallback。
func (s StatusReport) lastAccessed(fallback time.Time) time.Time {
	if s.LastAccessed == "" {
		return fallback
	}
	ts, err := time.Parse(time.RFC3339, s.LastAccessed)
	if err != nil {
		return fallback
	}
	return ts.UTC()
}
