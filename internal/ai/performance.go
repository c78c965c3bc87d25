package ai

import (
	"context"
	"math"

	"SwarmFlow/internal/observability/metrics"
)

// Thresholds 与优化触发条件保持一致。
type Thresholds struct {
	Utilization    float64
	ErrorRate      float64
	ResponseTimeMs float64
}

// DefaultThresholds 返回默认阈值。
func DefaultThresholds() Thresholds {
	return Thresholds{Utilization: 0.7, ErrorRate: 0.1, ResponseTimeMs: 5000}
}

// HeuristicOptimizer 根据越过的阈值给出固定的改进项。
type HeuristicOptimizer struct {
	thresholds Thresholds
}

// NewHeuristicOptimizer 创建 HeuristicOptimizer，零值阈值使用默认值。
func NewHeuristicOptimizer(t Thresholds) *HeuristicOptimizer {
	def := DefaultThresholds()
	if t.Utilization <= 0 {
		t.Utilization = def.Utilization
	}
	if t.ErrorRate <= 0 {
		t.ErrorRate = def.ErrorRate
	}
	if t.ResponseTimeMs <= 0 {
		t.ResponseTimeMs = def.ResponseTimeMs
	}
	return &HeuristicOptimizer{thresholds: t}
}

// GenerateOptimizations 实现 PerformanceOptimizer 接口。
func (o *HeuristicOptimizer) GenerateOptimizations(ctx context.Context, s metrics.Snapshot) (PerformanceReport, error) {
	if err := ctx.Err(); err != nil {
		return PerformanceReport{}, err
	}
	report := PerformanceReport{Improvements: []string{}, ImplementationPlan: []string{}}

	if s.ResourceUtilization > o.thresholds.Utilization {
		report.Improvements = append(report.Improvements, "Spawn additional agents to lower utilization")
		report.ImplementationPlan = append(report.ImplementationPlan, "Increase agent pool towards the configured maximum")
		report.PerformanceGain += 0.1
	}
	if s.ErrorRate > o.thresholds.ErrorRate {
		report.Improvements = append(report.Improvements, "Investigate failing tasks before reassigning them")
		report.ImplementationPlan = append(report.ImplementationPlan, "Review task.failed events and retry transient failures")
		report.PerformanceGain += 0.05
	}
	if s.AverageResponseTimeMs > o.thresholds.ResponseTimeMs {
		report.Improvements = append(report.Improvements, "Split long-running tasks into smaller dependent tasks")
		report.ImplementationPlan = append(report.ImplementationPlan, "Break tasks above the response-time threshold into subtasks")
		report.PerformanceGain += 0.1
	}
	if s.PendingTasks > 0 && s.IdleAgents > 0 {
		report.Improvements = append(report.Improvements, "Assign pending tasks to idle agents")
		report.ImplementationPlan = append(report.ImplementationPlan, "Drain ready tasks in priority order")
		report.PerformanceGain += 0.05
	}
	if s.ActiveAgents > 0 {
		report.ResourceSavings = float64(s.IdleAgents) / float64(s.ActiveAgents) * 0.2
	}
	report.PerformanceGain = math.Min(report.PerformanceGain, 0.5)
	return report, nil
}
