package workspace

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/time/rate"

	xerrors "SwarmFlow/internal/errors"
	"SwarmFlow/internal/observability/metrics"
)

// CommandRunner 执行外部命令并返回标准输出。
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner 通过 os/exec 执行命令，支持超时与速率限制。
type ExecRunner struct {
	timeout  time.Duration
	limiter  *rate.Limiter
	dir      string
	exporter *metrics.Exporter
}

// ExecOption 定义 ExecRunner 的可选配置。
type ExecOption func(*ExecRunner)

// WithCommandTimeout 设置单条命令的超时时间。
func WithCommandTimeout(timeout time.Duration) ExecOption {
	return func(r *ExecRunner) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// WithCommandRate 限制每秒执行的命令数量，burst 为突发上限。
func WithCommandRate(perSecond float64, burst int) ExecOption {
	return func(r *ExecRunner) {
		if perSecond <= 0 {
			r.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithWorkingDir 设置命令的工作目录。
func WithWorkingDir(dir string) ExecOption {
	return func(r *ExecRunner) {
		r.dir = dir
	}
}

// WithCommandMetrics 记录命令耗时。
func WithCommandMetrics(exp *metrics.Exporter) ExecOption {
	return func(r *ExecRunner) {
		r.exporter = exp
	}
}

// NewExecRunner 创建 ExecRunner，默认超时 30 秒。
func NewExecRunner(opts ...ExecOption) *ExecRunner {
	r := &ExecRunner{timeout: 30 * time.Second}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Run 实现 CommandRunner 接口。失败与超时都返回 EXTERNAL_COMMAND_FAILED，超时附带 timeout=true 元数据。
func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	commandLine := strings.TrimSpace(name + " " + strings.Join(args, " "))
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeExternalCommand, err, "command rate limit wait aborted", xerrors.WithMetadata("command", commandLine))
		}
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	if r.dir != "" {
		cmd.Dir = r.dir
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	err := cmd.Run()
	r.exporter.ObserveCommand(commandLabel(name, args), err, time.Since(started))
	if err != nil {
		opts := []xerrors.Option{
			xerrors.WithMetadata("command", commandLine),
			xerrors.WithMetadata("stderr", strings.TrimSpace(stderr.String())),
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			opts = append(opts, xerrors.WithMetadata("timeout", "true"))
			return nil, xerrors.Wrap(xerrors.CodeExternalCommand, err, "command timed out", opts...)
		}
		return nil, xerrors.Wrap(xerrors.CodeExternalCommand, err, "command failed", opts...)
	}
	return stdout.Bytes(), nil
}

// commandLabel 只保留命令与子命令，避免工作区 ID 进入指标标签。
func commandLabel(name string, args []string) string {
	label := name
	for _, a := range args {
		if strings.HasPrefix(a, "-") || strings.Contains(a, "/") {
			continue
		}
		return label + "_" + a
	}
	return label
}
