package workspace

import (
	"context"
	"sync"

	"SwarmFlow/internal/ai"
)

// 历史序列名称。
const (
	SeriesWorkspaces = "workspaces"
	SeriesSwarm      = "swarm"
)

// HistoryStore 保存按序列划分的负载历史，Recent 按时间正序返回最近 n 个点。
type HistoryStore interface {
	Append(ctx context.Context, series string, point ai.HistoryPoint) error
	Recent(ctx context.Context, series string, n int) ([]ai.HistoryPoint, error)
}

// MemoryHistory 是进程内的 HistoryStore，每个序列最多保留 max 个点。
type MemoryHistory struct {
	mu     sync.Mutex
	max    int
	series map[string][]ai.HistoryPoint
}

// NewMemoryHistory 创建 MemoryHistory，max<=0 时保留 1000 个点。
func NewMemoryHistory(max int) *MemoryHistory {
	if max <= 0 {
		max = 1000
	}
	return &MemoryHistory{max: max, series: make(map[string][]ai.HistoryPoint)}
}

// Append 实现 HistoryStore 接口。
func (h *MemoryHistory) Append(_ context.Context, series string, point ai.HistoryPoint) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	points := append(h.series[series], point)
	if len(points) > h.max {
		points = append([]ai.HistoryPoint(nil), points[len(points)-h.max:]...)
	}
	h.series[series] = points
	return nil
}

// Recent 实现 HistoryStore 接口。
func (h *MemoryHistory) Recent(_ context.Context, series string, n int) ([]ai.HistoryPoint, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	points := h.series[series]
	if n > 0 && len(points) > n {
		points = points[len(points)-n:]
	}
	return append([]ai.HistoryPoint(nil), points...), nil
}
