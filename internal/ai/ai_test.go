package ai

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"SwarmFlow/internal/observability/metrics"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestTablePredictor(t *testing.T) {
	p := NewTablePredictor()
	tests := []struct {
		env, workload string
		horizon       int
		want          ResourceEstimate
	}{
		{"python", "development", 1, ResourceEstimate{CPU: 2, Memory: 4, Disk: 10, Network: 1}},
		{"rust", "production", 8, ResourceEstimate{CPU: 12, Memory: 24, Disk: 60, Network: 3}},
		{"typescript", "testing", 4, ResourceEstimate{CPU: 6, Memory: 11, Disk: 27, Network: 4}},
		{"cobol", "unknown", 24, ResourceEstimate{CPU: 4, Memory: 8, Disk: 20, Network: 2}},
	}
	for _, tt := range tests {
		got, err := p.PredictResourceNeeds(context.Background(), tt.env, tt.workload, tt.horizon)
		if err != nil {
			t.Fatalf("%s/%s: %v", tt.env, tt.workload, err)
		}
		if got != tt.want {
			t.Fatalf("%s/%s/%d: got %+v, want %+v", tt.env, tt.workload, tt.horizon, got, tt.want)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.PredictResourceNeeds(ctx, "go", "development", 1); err == nil {
		t.Fatalf("expected cancelled context error")
	}
}

func TestRuleCostOptimizer(t *testing.T) {
	o := NewRuleCostOptimizer()
	plan, err := o.OptimizeResources(context.Background(), CostRequest{
		Resources: []ResourceView{
			{WorkspaceID: "idle", Status: "running", CPUUsage: 5, MemoryUsage: 20, Cost: 1},
			{WorkspaceID: "stopped", Status: "stopped", CPUUsage: 0, MemoryUsage: 10, Cost: 1},
			{WorkspaceID: "hungry", Status: "running", CPUUsage: 60, MemoryUsage: 90, Cost: 2},
		},
		Constraints: Constraints{MaxCPU: 16, MaxMemory: 32, MaxDisk: 100},
	})
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if len(plan.Recommendations) != 2 {
		t.Fatalf("expected 2 recommendations, got %+v", plan.Recommendations)
	}
	shutdown, scale := plan.Recommendations[0], plan.Recommendations[1]
	if shutdown.WorkspaceID != "idle" || shutdown.Action != ActionShutdown || !almostEqual(shutdown.ExpectedSavings, 0.8) {
		t.Fatalf("unexpected shutdown recommendation: %+v", shutdown)
	}
	if scale.WorkspaceID != "hungry" || scale.Action != ActionScaleDown || scale.Reason != "Over-provisioned memory" || scale.RiskLevel != RiskLow {
		t.Fatalf("unexpected scale-down recommendation: %+v", scale)
	}
	if !almostEqual(plan.TotalSavings, 0.8+0.6) {
		t.Fatalf("unexpected total savings: %v", plan.TotalSavings)
	}
	if len(plan.ImplementationOrder) != 2 || plan.ImplementationOrder[0] != "idle" {
		t.Fatalf("unexpected implementation order: %v", plan.ImplementationOrder)
	}
	if len(plan.MonitoringPlan) != 4 {
		t.Fatalf("expected constraint monitoring entry, got %v", plan.MonitoringPlan)
	}
}

func TestTrendPredictorScaling(t *testing.T) {
	p := NewTrendPredictor()

	plan, err := p.PredictScalingNeeds(context.Background(), ScalingRequest{})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if plan.PredictedLoad != 50 || len(plan.Recommendations) != 0 {
		t.Fatalf("expected default load without recommendations, got %+v", plan)
	}

	history := make([]HistoryPoint, 0, 15)
	for i := 0; i < 5; i++ {
		history = append(history, HistoryPoint{Load: 0})
	}
	for i := 0; i < 10; i++ {
		history = append(history, HistoryPoint{Load: 90})
	}
	plan, _ = p.PredictScalingNeeds(context.Background(), ScalingRequest{
		HistoricalData: history,
		CurrentResources: []ResourceView{
			{Status: "running", CPUUsage: 5},
			{Status: "running", CPUUsage: 10},
			{Status: "running", CPUUsage: 15},
		},
	})
	if plan.PredictedLoad != 90 || plan.Trend != "increasing" {
		t.Fatalf("expected average over last 10 points, got %+v", plan)
	}
	if len(plan.Recommendations) != 2 {
		t.Fatalf("expected scale up and consolidate, got %+v", plan.Recommendations)
	}
	if plan.Recommendations[0].Action != ActionScaleUp || plan.Recommendations[0].RiskLevel != RiskLow {
		t.Fatalf("unexpected first recommendation: %+v", plan.Recommendations[0])
	}
	if c := plan.Recommendations[1]; c.Action != ActionConsolidate || c.RiskLevel != RiskMedium || c.ExpectedSavings != 25 {
		t.Fatalf("unexpected consolidate recommendation: %+v", c)
	}
}

func TestTrendPredictorLoadForecast(t *testing.T) {
	p := NewTrendPredictor()
	forecast, err := p.PredictLoad(context.Background(), []HistoryPoint{{Load: 30}, {Load: 50}}, 4)
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	if forecast.PredictedLoad != 40 || forecast.RecommendedAgents != 4 || forecast.TimeHorizon != 4 {
		t.Fatalf("unexpected forecast: %+v", forecast)
	}
	if forecast.ConfidenceMin != 30 || forecast.ConfidenceMax != 50 {
		t.Fatalf("unexpected confidence interval: %+v", forecast)
	}
}

func TestHeuristicOptimizer(t *testing.T) {
	o := NewHeuristicOptimizer(Thresholds{})
	report, err := o.GenerateOptimizations(context.Background(), metrics.Snapshot{
		ActiveAgents:          4,
		IdleAgents:            1,
		BusyAgents:            3,
		ResourceUtilization:   0.75,
		ErrorRate:             0.2,
		PendingTasks:          2,
		AverageResponseTimeMs: 100,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(report.Improvements) != 3 || len(report.ImplementationPlan) != 3 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if !almostEqual(report.PerformanceGain, 0.2) || !almostEqual(report.ResourceSavings, 0.05) {
		t.Fatalf("unexpected gains: %+v", report)
	}
}

func TestScriptOptimizer(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "optimize.sh")
	body := "cat > /dev/null\necho '{\"improvements\":[\"cache results\"],\"performance_gain\":0.3,\"implementation_plan\":[\"step\"]}'\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}

	o, err := NewScriptOptimizer("sh", ResolveScriptPath(dir, "optimize.sh"), dir, 5*time.Second)
	if err != nil {
		t.Fatalf("new script optimizer: %v", err)
	}
	report, err := o.GenerateOptimizations(context.Background(), metrics.Snapshot{ActiveAgents: 1})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(report.Improvements) != 1 || report.Improvements[0] != "cache results" || report.PerformanceGain != 0.3 {
		t.Fatalf("unexpected report: %+v", report)
	}

	if _, err := NewScriptOptimizer("", "", "", 0); err == nil {
		t.Fatalf("expected error for empty script path")
	}
}
