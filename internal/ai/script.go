package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"SwarmFlow/internal/observability/metrics"
)

// ScriptOptimizer 通过外部脚本生成性能优化方案。指标快照以 JSON 写入标准输入，
// 脚本需在标准输出返回 PerformanceReport 结构。
type ScriptOptimizer struct {
	interpreter string
	scriptPath  string
	workingDir  string
	timeout     time.Duration
}

// NewScriptOptimizer 创建 ScriptOptimizer，interpreter 为空时使用 python3。
func NewScriptOptimizer(interpreter, scriptPath, workingDir string, timeout time.Duration) (*ScriptOptimizer, error) {
	if scriptPath == "" {
		return nil, fmt.Errorf("未指定优化脚本路径")
	}
	if interpreter == "" {
		interpreter = "python3"
	}
	return &ScriptOptimizer{
		interpreter: interpreter,
		scriptPath:  scriptPath,
		workingDir:  workingDir,
		timeout:     timeout,
	}, nil
}

// GenerateOptimizations 实现 PerformanceOptimizer 接口。
func (o *ScriptOptimizer) GenerateOptimizations(ctx context.Context, s metrics.Snapshot) (PerformanceReport, error) {
	encoded, err := json.Marshal(map[string]any{
		"metrics":   s,
		"timestamp": time.Now().Unix(),
	})
	if err != nil {
		return PerformanceReport{}, fmt.Errorf("序列化指标失败: %w", err)
	}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	command := exec.CommandContext(ctx, o.interpreter, o.scriptPath)
	if o.workingDir != "" {
		command.Dir = o.workingDir
	}
	command.Stdin = bytes.NewReader(encoded)

	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return PerformanceReport{}, fmt.Errorf("执行优化脚本失败: %w, stderr=%s", err, strings.TrimSpace(stderr.String()))
	}

	var report PerformanceReport
	if err := json.Unmarshal(stdout.Bytes(), &report); err != nil {
		return PerformanceReport{}, fmt.Errorf("解析优化脚本输出失败: %w", err)
	}
	return report, nil
}

// ResolveScriptPath 根据工作目录推导脚本路径。
func ResolveScriptPath(baseDir, script string) string {
	if script == "" {
		return ""
	}
	if filepath.IsAbs(script) {
		return script
	}
	if baseDir == "" {
		return script
	}
	return filepath.Join(baseDir, script)
}
