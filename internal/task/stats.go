package task

// Stats 聚合了任务状态的统计信息，供指标采集与状态查询使用。
type Stats struct {
	Total                 int     `json:"total"`
	Pending               int     `json:"pending"`
	InProgress            int     `json:"in_progress"`
	Completed             int     `json:"completed"`
	Failed                int     `json:"failed"`
	AverageResponseTimeMs float64 `json:"average_response_time_ms"`
}

// ErrorRate 返回失败任务占已结束任务的比例。
func (s Stats) ErrorRate() float64 {
	finished := s.Completed + s.Failed
	if finished < 1 {
		finished = 1
	}
	return float64(s.Failed) / float64(finished)
}
