package ai

import (
	"context"
	"math"
	"strings"
)

type baseline struct {
	cpu, memory, disk, network float64
}

var environmentBaselines = map[string]baseline{
	"python":     {cpu: 2, memory: 4, disk: 10, network: 1},
	"typescript": {cpu: 3, memory: 6, disk: 15, network: 2},
	"rust":       {cpu: 4, memory: 8, disk: 20, network: 1},
	"go":         {cpu: 2, memory: 4, disk: 12, network: 1},
	"nushell":    {cpu: 1, memory: 2, disk: 5, network: 1},
}

var workloadMultipliers = map[string]float64{
	"development": 1.0,
	"testing":     1.5,
	"production":  2.0,
}

// TablePredictor 按环境基线、负载类型倍数与时间窗口系数估算资源需求。
// 未知环境按 python 处理，未知负载类型倍数为 1。
type TablePredictor struct{}

// NewTablePredictor 创建 TablePredictor。
func NewTablePredictor() *TablePredictor {
	return &TablePredictor{}
}

// PredictResourceNeeds 实现 ResourcePredictor 接口，结果向上取整。
func (p *TablePredictor) PredictResourceNeeds(ctx context.Context, environment, workloadType string, timeHorizon int) (ResourceEstimate, error) {
	if err := ctx.Err(); err != nil {
		return ResourceEstimate{}, err
	}
	base, ok := environmentBaselines[strings.ToLower(environment)]
	if !ok {
		base = environmentBaselines["python"]
	}
	multiplier, ok := workloadMultipliers[strings.ToLower(workloadType)]
	if !ok {
		multiplier = 1.0
	}
	factor := horizonFactor(timeHorizon)
	scale := func(v float64) int {
		return int(math.Ceil(v * multiplier * factor))
	}
	return ResourceEstimate{
		CPU:     scale(base.cpu),
		Memory:  scale(base.memory),
		Disk:    scale(base.disk),
		Network: scale(base.network),
	}, nil
}

func horizonFactor(hours int) float64 {
	switch {
	case hours <= 1:
		return 1.0
	case hours <= 4:
		return 1.2
	case hours <= 8:
		return 1.5
	default:
		return 2.0
	}
}
