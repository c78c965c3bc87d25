package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "swarmflow"

// Exporter 维护协调引擎的 Prometheus 指标，使用独立的 Registry。
type Exporter struct {
	registry *prometheus.Registry

	agents           *prometheus.GaugeVec
	tasks            *prometheus.GaugeVec
	utilization      prometheus.Gauge
	errorRate        prometheus.Gauge
	responseTime     prometheus.Gauge
	samples          prometheus.Counter
	optimizations    *prometheus.CounterVec
	workspaces       *prometheus.GaugeVec
	workspaceCost    prometheus.Gauge
	commandDurations *prometheus.HistogramVec
	planSavings      prometheus.Gauge
}

// NewExporter 创建并注册全部指标。
func NewExporter() *Exporter {
	e := &Exporter{
		registry: prometheus.NewRegistry(),
		agents: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agents",
			Help:      "Number of agents by status.",
		}, []string{"status"}),
		tasks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks",
			Help:      "Number of tasks by status.",
		}, []string{"status"}),
		utilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "resource_utilization_ratio",
			Help:      "Busy agents divided by active agents.",
		}),
		errorRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "task_error_ratio",
			Help:      "Failed tasks divided by finished tasks.",
		}),
		responseTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "task_average_response_milliseconds",
			Help:      "Mean duration of completed tasks.",
		}),
		samples: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metrics_samples_total",
			Help:      "Number of metrics samples taken.",
		}),
		optimizations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "optimization_cycles_total",
			Help:      "Optimization cycles by kind and result.",
		}, []string{"kind", "result"}),
		workspaces: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workspaces",
			Help:      "Known workspaces by environment and status.",
		}, []string{"environment", "status"}),
		workspaceCost: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workspace_cost",
			Help:      "Sum of the estimated cost of all workspaces.",
		}),
		commandDurations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workspace_command_duration_seconds",
			Help:      "Duration of external workspace commands.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"command", "result"}),
		planSavings: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "optimization_plan_savings",
			Help:      "Total expected savings of the latest optimization plan.",
		}),
	}
	e.registry.MustRegister(
		e.agents, e.tasks, e.utilization, e.errorRate, e.responseTime, e.samples,
		e.optimizations, e.workspaces, e.workspaceCost, e.commandDurations, e.planSavings,
	)
	return e
}

// Registry 返回底层 Registry，便于测试或额外注册指标。
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// ObserveSnapshot 同步一次指标采样。
func (e *Exporter) ObserveSnapshot(s Snapshot) {
	if e == nil {
		return
	}
	e.agents.WithLabelValues("busy").Set(float64(s.BusyAgents))
	e.agents.WithLabelValues("idle").Set(float64(s.IdleAgents))
	e.agents.WithLabelValues("error").Set(float64(s.ActiveAgents - s.BusyAgents - s.IdleAgents))
	e.tasks.WithLabelValues("pending").Set(float64(s.PendingTasks))
	e.tasks.WithLabelValues("in_progress").Set(float64(s.InProgressTasks))
	e.tasks.WithLabelValues("completed").Set(float64(s.CompletedTasks))
	e.tasks.WithLabelValues("failed").Set(float64(s.FailedTasks))
	e.utilization.Set(s.ResourceUtilization)
	e.errorRate.Set(s.ErrorRate)
	e.responseTime.Set(s.AverageResponseTimeMs)
	e.samples.Inc()
}

// ObserveOptimization 记录一次优化周期的结果，kind 为 performance 或 workspace。
func (e *Exporter) ObserveOptimization(kind, result string) {
	if e == nil {
		return
	}
	e.optimizations.WithLabelValues(kind, result).Inc()
}

// ObservePlanSavings 记录最近一次资源优化计划的预计节省。
func (e *Exporter) ObservePlanSavings(total float64) {
	if e == nil {
		return
	}
	e.planSavings.Set(total)
}

// WorkspaceKey 标识工作区指标的标签组合。
type WorkspaceKey struct {
	Environment string
	Status      string
}

// ObserveWorkspaces 以完整替换的方式同步工作区数量与总成本。
func (e *Exporter) ObserveWorkspaces(counts map[WorkspaceKey]int, totalCost float64) {
	if e == nil {
		return
	}
	e.workspaces.Reset()
	for key, n := range counts {
		e.workspaces.WithLabelValues(key.Environment, key.Status).Set(float64(n))
	}
	e.workspaceCost.Set(totalCost)
}

// ObserveCommand 记录一次外部命令的耗时。
func (e *Exporter) ObserveCommand(command string, err error, duration time.Duration) {
	if e == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	e.commandDurations.WithLabelValues(command, result).Observe(duration.Seconds())
}

// Handler 以 Prometheus 文本格式暴露指标。
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}
