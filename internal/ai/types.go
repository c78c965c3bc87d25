package ai

import (
	"context"
	"time"

	"SwarmFlow/internal/observability/metrics"
)

// Action 表示资源优化建议的动作。
type Action string

const (
	ActionScaleDown   Action = "scale_down"
	ActionScaleUp     Action = "scale_up"
	ActionShutdown    Action = "shutdown"
	ActionMigrate     Action = "migrate"
	ActionConsolidate Action = "consolidate"
)

// RiskLevel 表示执行建议的风险等级，只有 low 会被自动执行。
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Recommendation 是一条资源优化建议。WorkspaceID 为空表示针对整体资源池。
type Recommendation struct {
	WorkspaceID          string    `json:"workspace_id,omitempty"`
	Action               Action    `json:"action"`
	Reason               string    `json:"reason"`
	ExpectedSavings      float64   `json:"expected_savings"`
	RiskLevel            RiskLevel `json:"risk_level"`
	ImplementationTimeMs int64     `json:"implementation_time_ms"`
}

// ResourceView 是提交给协作方的工作区资源视图，用量为百分比。
type ResourceView struct {
	WorkspaceID  string  `json:"workspace_id"`
	Environment  string  `json:"environment"`
	Status       string  `json:"status"`
	CPUUsage     float64 `json:"cpu_usage"`
	MemoryUsage  float64 `json:"memory_usage"`
	DiskUsage    float64 `json:"disk_usage"`
	NetworkUsage float64 `json:"network_usage"`
	Cost         float64 `json:"cost"`
}

// ResourceEstimate 是一次资源需求预测，CPU 为核数，内存与磁盘单位为 GB。
type ResourceEstimate struct {
	CPU     int `json:"cpu"`
	Memory  int `json:"memory"`
	Disk    int `json:"disk"`
	Network int `json:"network"`
}

// Constraints 描述资源优化时需要遵守的上限。
type Constraints struct {
	MaxCPU                  int `json:"max_cpu"`
	MaxMemory               int `json:"max_memory"`
	MaxDisk                 int `json:"max_disk"`
	MaxConcurrentWorkspaces int `json:"max_concurrent_workspaces"`
}

// CostRequest 是成本优化的输入。
type CostRequest struct {
	Resources   []ResourceView `json:"resources"`
	Constraints Constraints    `json:"constraints"`
}

// CostPlan 是成本优化的输出。
type CostPlan struct {
	Recommendations     []Recommendation `json:"recommendations"`
	TotalSavings        float64          `json:"total_savings"`
	ImplementationOrder []string         `json:"implementation_order"`
	MonitoringPlan      []string         `json:"monitoring_plan"`
}

// HistoryPoint 是一次负载采样，Load 取值 0-100。
type HistoryPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Load      float64   `json:"load"`
	CPU       float64   `json:"cpu,omitempty"`
	Memory    float64   `json:"memory,omitempty"`
}

// ScalingRequest 是扩缩容预测的输入，TimeHorizon 单位为小时。
type ScalingRequest struct {
	CurrentResources []ResourceView `json:"current_resources"`
	HistoricalData   []HistoryPoint `json:"historical_data"`
	TimeHorizon      int            `json:"time_horizon"`
}

// ScalingPlan 是扩缩容预测的输出。
type ScalingPlan struct {
	Recommendations []Recommendation `json:"recommendations"`
	PredictedLoad   float64          `json:"predicted_load"`
	Trend           string           `json:"trend"`
}

// LoadForecast 是整体负载预测。
type LoadForecast struct {
	TimeHorizon       int      `json:"time_horizon"`
	PredictedLoad     float64  `json:"predicted_load"`
	Trend             string   `json:"trend"`
	RecommendedAgents int      `json:"recommended_agents"`
	ConfidenceMin     float64  `json:"confidence_min"`
	ConfidenceMax     float64  `json:"confidence_max"`
	ScalingTriggers   []string `json:"scaling_triggers"`
}

// PerformanceReport 是性能优化协作方的输出。
type PerformanceReport struct {
	Improvements       []string `json:"improvements"`
	PerformanceGain    float64  `json:"performance_gain"`
	ResourceSavings    float64  `json:"resource_savings"`
	ImplementationPlan []string `json:"implementation_plan"`
}

// ResourcePredictor 预测指定环境在时间窗口内的资源需求。
type ResourcePredictor interface {
	PredictResourceNeeds(ctx context.Context, environment, workloadType string, timeHorizon int) (ResourceEstimate, error)
}

// CostOptimizer 基于当前资源生成成本优化建议。
type CostOptimizer interface {
	OptimizeResources(ctx context.Context, req CostRequest) (CostPlan, error)
}

// ScalingPredictor 基于当前资源与历史负载生成扩缩容建议。
type ScalingPredictor interface {
	PredictScalingNeeds(ctx context.Context, req ScalingRequest) (ScalingPlan, error)
}

// LoadPredictor 预测整体负载与所需智能体数量。
type LoadPredictor interface {
	PredictLoad(ctx context.Context, history []HistoryPoint, timeHorizon int) (LoadForecast, error)
}

// PerformanceOptimizer 根据指标快照生成性能优化方案。
type PerformanceOptimizer interface {
	GenerateOptimizations(ctx context.Context, snapshot metrics.Snapshot) (PerformanceReport, error)
}
