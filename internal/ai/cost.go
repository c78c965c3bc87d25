package ai

import (
	"context"
	"fmt"
)

const (
	idleCPUThreshold        = 10.0
	overProvisionedMemory   = 80.0
	shutdownSavingsRatio    = 0.8
	scaleDownSavingsRatio   = 0.3
	shutdownImplementation  = 60_000
	scaleDownImplementation = 300_000
)

// RuleCostOptimizer 用固定规则识别空闲与内存过度分配的工作区。
type RuleCostOptimizer struct{}

// NewRuleCostOptimizer 创建 RuleCostOptimizer。
func NewRuleCostOptimizer() *RuleCostOptimizer {
	return &RuleCostOptimizer{}
}

// OptimizeResources 实现 CostOptimizer 接口。
func (o *RuleCostOptimizer) OptimizeResources(ctx context.Context, req CostRequest) (CostPlan, error) {
	if err := ctx.Err(); err != nil {
		return CostPlan{}, err
	}
	plan := CostPlan{Recommendations: []Recommendation{}, ImplementationOrder: []string{}}

	for _, r := range req.Resources {
		if r.Status == "running" && r.CPUUsage < idleCPUThreshold {
			plan.add(Recommendation{
				WorkspaceID:          r.WorkspaceID,
				Action:               ActionShutdown,
				Reason:               "Low CPU utilization",
				ExpectedSavings:      r.Cost * shutdownSavingsRatio,
				RiskLevel:            RiskLow,
				ImplementationTimeMs: shutdownImplementation,
			})
		}
	}
	for _, r := range req.Resources {
		if r.MemoryUsage > overProvisionedMemory {
			plan.add(Recommendation{
				WorkspaceID:          r.WorkspaceID,
				Action:               ActionScaleDown,
				Reason:               "Over-provisioned memory",
				ExpectedSavings:      r.Cost * scaleDownSavingsRatio,
				RiskLevel:            RiskLow,
				ImplementationTimeMs: scaleDownImplementation,
			})
		}
	}

	plan.MonitoringPlan = []string{"Monitor CPU usage", "Monitor memory usage", "Track cost savings"}
	if c := req.Constraints; c.MaxCPU > 0 || c.MaxMemory > 0 || c.MaxDisk > 0 {
		plan.MonitoringPlan = append(plan.MonitoringPlan,
			fmt.Sprintf("Keep workspaces within cpu=%d memory=%d disk=%d", c.MaxCPU, c.MaxMemory, c.MaxDisk))
	}
	return plan, nil
}

func (p *CostPlan) add(rec Recommendation) {
	p.Recommendations = append(p.Recommendations, rec)
	p.TotalSavings += rec.ExpectedSavings
	p.ImplementationOrder = append(p.ImplementationOrder, rec.WorkspaceID)
}
