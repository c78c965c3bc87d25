// Package scheduler 以固定间隔运行后台任务：单次失败只记录日志，循环继续，
// Stop 取消所有任务并等待正在执行的一轮结束。
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	xerrors "SwarmFlow/internal/errors"
	"SwarmFlow/pkg/logger"
)

// Job 描述一个周期任务。
type Job struct {
	Name     string
	Interval time.Duration
	// Immediate 为 true 时启动后立即执行一次。
	Immediate bool
	Run       func(ctx context.Context) error
}

// Scheduler 管理一组周期任务。
type Scheduler struct {
	mu      sync.Mutex
	jobs    []Job
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	stopped bool
	log     *slog.Logger
	onError func(job string, err error)
}

// Option 定义 Scheduler 的可选配置。
type Option func(*Scheduler)

// WithErrorHandler 在任务返回错误时回调，例如触发告警。
func WithErrorHandler(fn func(job string, err error)) Option {
	return func(s *Scheduler) {
		s.onError = fn
	}
}

// New 创建 Scheduler。
func New(opts ...Option) *Scheduler {
	s := &Scheduler{log: logger.Named("scheduler")}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Add 注册任务，必须在 Start 之前调用。
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil || job.Interval <= 0 {
		return xerrors.New(xerrors.CodeValidation, "job requires a name, an interval and a run function",
			xerrors.WithMetadata("job", job.Name))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return xerrors.New(xerrors.CodeStateConflict, "scheduler already started", xerrors.WithMetadata("job", job.Name))
	}
	s.jobs = append(s.jobs, job)
	return nil
}

// Start 为每个任务启动一个协程。重复调用无效。
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, job)
	}
	s.log.Info("调度器已启动", slog.Int("jobs", len(s.jobs)))
}

// Stop 取消所有任务并等待退出，可重复调用。
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	s.log.Info("调度器已停止")
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	defer s.wg.Done()
	if job.Immediate {
		s.runOnce(ctx, job)
	}
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, job)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, job Job) {
	if ctx.Err() != nil {
		return
	}
	err := s.safeRun(ctx, job)
	if err == nil || ctx.Err() != nil {
		return
	}
	s.log.Error("周期任务执行失败", slog.String("job", job.Name), slog.Any("error", err))
	if s.onError != nil {
		s.onError(job.Name, err)
	}
}

func (s *Scheduler) safeRun(ctx context.Context, job Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = xerrors.New(xerrors.CodeUnknown, fmt.Sprintf("job %s panicked: %v", job.Name, rec))
		}
	}()
	return job.Run(ctx)
}
