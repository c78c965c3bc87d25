package ai

import (
	"context"
	"math"
)

const (
	defaultPredictedLoad = 50.0
	trendWindow          = 10
	scaleUpLoad          = 80.0
	increasingLoad       = 70.0
	consolidateCPU       = 20.0
	consolidateRunning   = 2
	consolidateSavings   = 25.0
)

// TrendPredictor 以最近若干次负载的均值作为预测值，同时实现 ScalingPredictor 与 LoadPredictor。
type TrendPredictor struct{}

// NewTrendPredictor 创建 TrendPredictor。
func NewTrendPredictor() *TrendPredictor {
	return &TrendPredictor{}
}

// PredictScalingNeeds 实现 ScalingPredictor 接口。
func (p *TrendPredictor) PredictScalingNeeds(ctx context.Context, req ScalingRequest) (ScalingPlan, error) {
	if err := ctx.Err(); err != nil {
		return ScalingPlan{}, err
	}
	load, trend := predictLoad(req.HistoricalData)
	plan := ScalingPlan{Recommendations: []Recommendation{}, PredictedLoad: load, Trend: trend}

	if load > scaleUpLoad {
		plan.Recommendations = append(plan.Recommendations, Recommendation{
			Action:               ActionScaleUp,
			Reason:               "High predicted load",
			RiskLevel:            RiskLow,
			ImplementationTimeMs: 300_000,
		})
	}

	if len(req.CurrentResources) > 0 {
		var cpu float64
		running := 0
		for _, r := range req.CurrentResources {
			cpu += r.CPUUsage
			if r.Status == "running" {
				running++
			}
		}
		if cpu/float64(len(req.CurrentResources)) < consolidateCPU && running > consolidateRunning {
			plan.Recommendations = append(plan.Recommendations, Recommendation{
				Action:               ActionConsolidate,
				Reason:               "Low resource utilization",
				ExpectedSavings:      consolidateSavings,
				RiskLevel:            RiskMedium,
				ImplementationTimeMs: 600_000,
			})
		}
	}
	return plan, nil
}

// PredictLoad 实现 LoadPredictor 接口，每 10 点负载推荐一个智能体。
func (p *TrendPredictor) PredictLoad(ctx context.Context, history []HistoryPoint, timeHorizon int) (LoadForecast, error) {
	if err := ctx.Err(); err != nil {
		return LoadForecast{}, err
	}
	load, trend := predictLoad(history)
	spread := loadStdDev(recentPoints(history))
	agents := int(math.Ceil(load / 10))
	if agents < 1 {
		agents = 1
	}
	forecast := LoadForecast{
		TimeHorizon:       timeHorizon,
		PredictedLoad:     load,
		Trend:             trend,
		RecommendedAgents: agents,
		ConfidenceMin:     math.Max(0, load-spread),
		ConfidenceMax:     math.Min(100, load+spread),
		ScalingTriggers:   []string{"Scale up when load exceeds 80%"},
	}
	if load < consolidateCPU {
		forecast.ScalingTriggers = append(forecast.ScalingTriggers, "Scale down when load stays below 20%")
	}
	return forecast, nil
}

// predictLoad 少于两个样本时返回默认负载。
func predictLoad(history []HistoryPoint) (float64, string) {
	if len(history) < 2 {
		return defaultPredictedLoad, "stable"
	}
	recent := recentPoints(history)
	var sum float64
	for _, h := range recent {
		sum += h.Load
	}
	avg := sum / float64(len(recent))
	if avg > increasingLoad {
		return avg, "increasing"
	}
	return avg, "stable"
}

func recentPoints(history []HistoryPoint) []HistoryPoint {
	if len(history) > trendWindow {
		return history[len(history)-trendWindow:]
	}
	return history
}

func loadStdDev(points []HistoryPoint) float64 {
	if len(points) < 2 {
		return 0
	}
	var sum float64
	for _, p := range points {
		sum += p.Load
	}
	mean := sum / float64(len(points))
	var sq float64
	for _, p := range points {
		d := p.Load - mean
		sq += d * d
	}
	return math.Sqrt(sq / float64(len(points)))
}
