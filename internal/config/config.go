package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	xerrors "SwarmFlow/internal/errors"
	"SwarmFlow/internal/event"
	"SwarmFlow/pkg/logger"
)

// EnvConfigPath 是未通过命令行指定配置文件时读取的环境变量。
const EnvConfigPath = "SWARMFLOW_CONFIG"

// Config 描述了 SwarmFlow 在启动阶段需要加载的全部配置。
type Config struct {
	Coordinator CoordinatorConfig `yaml:"coordinator" json:"coordinator"`
	Workspace   WorkspaceConfig   `yaml:"workspace" json:"workspace"`
	AI          AIConfig          `yaml:"ai" json:"ai"`
	Events      EventsConfig      `yaml:"events" json:"events"`
	History     HistoryConfig     `yaml:"history" json:"history"`
	Metrics     MetricsConfig     `yaml:"metrics" json:"metrics"`
	Alerting    AlertingConfig    `yaml:"alerting" json:"alerting"`
	Log         logger.Config     `yaml:"log" json:"log"`
}

// CoordinatorConfig 控制智能体池、指标采样与优化触发。
type CoordinatorConfig struct {
	SwarmID               string   `yaml:"swarm_id" json:"swarm_id"`
	MaxAgents             int      `yaml:"max_agents" json:"max_agents"`
	MetricsInterval       Duration `yaml:"metrics_interval" json:"metrics_interval"`
	OptimizationThreshold float64  `yaml:"optimization_threshold" json:"optimization_threshold"`
	EnableAIOptimization  *bool    `yaml:"enable_ai_optimization" json:"enable_ai_optimization"`
	OptimizationTimeout   Duration `yaml:"optimization_timeout" json:"optimization_timeout"`
	EventHistory          int      `yaml:"event_history" json:"event_history"`
}

// ResourceLimits 是单个工作区允许的资源上限。
type ResourceLimits struct {
	CPU    int `yaml:"cpu" json:"cpu"`
	Memory int `yaml:"memory" json:"memory"`
	Disk   int `yaml:"disk" json:"disk"`
}

// WorkspaceConfig 控制资源采集、空闲回收与供给。
type WorkspaceConfig struct {
	MaxConcurrentWorkspaces     int            `yaml:"max_concurrent_workspaces" json:"max_concurrent_workspaces"`
	MaxWorkspacesPerEnvironment int            `yaml:"max_workspaces_per_environment" json:"max_workspaces_per_environment"`
	AutoShutdownAfterMinutes    int            `yaml:"auto_shutdown_after_minutes" json:"auto_shutdown_after_minutes"`
	CollectInterval             Duration       `yaml:"collect_interval" json:"collect_interval"`
	IdleCheckInterval           Duration       `yaml:"idle_check_interval" json:"idle_check_interval"`
	OptimizeInterval            Duration       `yaml:"optimize_interval" json:"optimize_interval"`
	CommandTimeout              Duration       `yaml:"command_timeout" json:"command_timeout"`
	CommandRate                 float64        `yaml:"command_rate" json:"command_rate"`
	CommandBurst                int            `yaml:"command_burst" json:"command_burst"`
	CollectConcurrency          int            `yaml:"collect_concurrency" json:"collect_concurrency"`
	DevpodBinary                string         `yaml:"devpod_binary" json:"devpod_binary"`
	ScriptInterpreter           string         `yaml:"script_interpreter" json:"script_interpreter"`
	ProvisionScript             string         `yaml:"provision_script" json:"provision_script"`
	WorkingDir                  string         `yaml:"working_dir" json:"working_dir"`
	ResourceLimits              ResourceLimits `yaml:"resource_limits" json:"resource_limits"`
	EnableCostOptimization      *bool          `yaml:"enable_cost_optimization" json:"enable_cost_optimization"`
	EnablePredictiveScaling     *bool          `yaml:"enable_predictive_scaling" json:"enable_predictive_scaling"`
}

// AIConfig 描述性能优化协作方。provider 为 heuristic 时使用内置规则，
// 为 script 时调用外部脚本。
type AIConfig struct {
	Provider    string   `yaml:"provider" json:"provider"`
	Interpreter string   `yaml:"interpreter" json:"interpreter"`
	ScriptPath  string   `yaml:"script_path" json:"script_path"`
	WorkingDir  string   `yaml:"working_dir" json:"working_dir"`
	Timeout     Duration `yaml:"timeout" json:"timeout"`
}

// EventsConfig 描述事件的外部投递目标，均为可选。
type EventsConfig struct {
	RabbitMQ    *event.RabbitMQConfig `yaml:"rabbitmq" json:"rabbitmq"`
	MySQL       *MySQLConfig          `yaml:"mysql" json:"mysql"`
	SinkTimeout Duration              `yaml:"sink_timeout" json:"sink_timeout"`
}

// MySQLConfig 描述事件归档数据库。
type MySQLConfig struct {
	DSN             string   `yaml:"dsn" json:"dsn"`
	MaxOpenConns    int      `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int      `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	AutoMigrate     bool     `yaml:"auto_migrate" json:"auto_migrate"`
}

// HistoryConfig 描述负载历史的存储方式。
type HistoryConfig struct {
	Driver     string      `yaml:"driver" json:"driver"`
	MaxSamples int         `yaml:"max_samples" json:"max_samples"`
	Redis      RedisConfig `yaml:"redis" json:"redis"`
}

// RedisConfig 描述 Redis 连接参数。
type RedisConfig struct {
	Address   string `yaml:"address" json:"address"`
	Password  string `yaml:"password" json:"password"`
	DB        int    `yaml:"db" json:"db"`
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`
}

// MetricsConfig 控制 Prometheus 指标服务，地址为空时不启动。
type MetricsConfig struct {
	Address string `yaml:"address" json:"address"`
}

// AlertingConfig 描述告警渠道。
type AlertingConfig struct {
	Log        bool   `yaml:"log" json:"log"`
	WebhookURL string `yaml:"webhook_url" json:"webhook_url"`
}

// Load 负责解析指定路径的配置文件，.json 后缀按 JSON 解析，其余按 YAML 解析。
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		return nil, xerrors.New(xerrors.CodeValidation, "配置文件路径为空")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "读取配置文件失败", xerrors.WithMetadata("path", path))
	}

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(content, &cfg)
	} else {
		err = yaml.Unmarshal(content, &cfg)
	}
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeValidation, err, "解析配置失败", xerrors.WithMetadata("path", path))
	}

	cfg.applyDefaults(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default 返回全部使用默认值的配置。
func Default() *Config {
	var cfg Config
	cfg.applyDefaults(".")
	return &cfg
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	co := &c.Coordinator
	if co.MaxAgents == 0 {
		co.MaxAgents = 25
	}
	if co.MetricsInterval.Duration == 0 {
		co.MetricsInterval.Duration = 10 * time.Second
	}
	if co.OptimizationThreshold == 0 {
		co.OptimizationThreshold = 0.7
	}
	if co.EnableAIOptimization == nil {
		co.EnableAIOptimization = boolPtr(true)
	}
	if co.OptimizationTimeout.Duration == 0 {
		co.OptimizationTimeout.Duration = time.Minute
	}
	if co.EventHistory == 0 {
		co.EventHistory = 1000
	}

	ws := &c.Workspace
	if ws.MaxConcurrentWorkspaces == 0 {
		ws.MaxConcurrentWorkspaces = 15
	}
	if ws.MaxWorkspacesPerEnvironment == 0 {
		ws.MaxWorkspacesPerEnvironment = 5
	}
	if ws.AutoShutdownAfterMinutes == 0 {
		ws.AutoShutdownAfterMinutes = 60
	}
	if ws.CollectInterval.Duration == 0 {
		ws.CollectInterval.Duration = 30 * time.Second
	}
	if ws.IdleCheckInterval.Duration == 0 {
		ws.IdleCheckInterval.Duration = 15 * time.Minute
	}
	if ws.OptimizeInterval.Duration == 0 {
		ws.OptimizeInterval.Duration = time.Hour
	}
	if ws.CommandTimeout.Duration == 0 {
		ws.CommandTimeout.Duration = 30 * time.Second
	}
	if ws.CollectConcurrency == 0 {
		ws.CollectConcurrency = 4
	}
	if ws.DevpodBinary == "" {
		ws.DevpodBinary = "devpod"
	}
	if ws.ScriptInterpreter == "" {
		ws.ScriptInterpreter = "nu"
	}
	if ws.ProvisionScript == "" {
		ws.ProvisionScript = "host-tooling/devpod-management/manage-devpod.nu"
	}
	ws.WorkingDir = resolvePath(baseDir, ws.WorkingDir)
	if ws.ResourceLimits.CPU == 0 {
		ws.ResourceLimits.CPU = 16
	}
	if ws.ResourceLimits.Memory == 0 {
		ws.ResourceLimits.Memory = 32
	}
	if ws.ResourceLimits.Disk == 0 {
		ws.ResourceLimits.Disk = 100
	}
	if ws.EnableCostOptimization == nil {
		ws.EnableCostOptimization = boolPtr(true)
	}
	if ws.EnablePredictiveScaling == nil {
		ws.EnablePredictiveScaling = boolPtr(true)
	}

	if c.AI.Provider == "" {
		c.AI.Provider = "heuristic"
	}
	if c.AI.Interpreter == "" {
		c.AI.Interpreter = "python3"
	}
	if c.AI.Timeout.Duration == 0 {
		c.AI.Timeout.Duration = 30 * time.Second
	}
	c.AI.WorkingDir = resolvePath(baseDir, c.AI.WorkingDir)
	if c.AI.ScriptPath != "" && !filepath.IsAbs(c.AI.ScriptPath) {
		c.AI.ScriptPath = filepath.Join(c.AI.WorkingDir, c.AI.ScriptPath)
	}

	if c.Events.SinkTimeout.Duration == 0 {
		c.Events.SinkTimeout.Duration = 5 * time.Second
	}
	if m := c.Events.MySQL; m != nil {
		if m.MaxOpenConns == 0 {
			m.MaxOpenConns = 10
		}
		if m.MaxIdleConns == 0 {
			m.MaxIdleConns = 5
		}
		if m.ConnMaxLifetime.Duration == 0 {
			m.ConnMaxLifetime.Duration = 30 * time.Minute
		}
	}

	if c.History.Driver == "" {
		c.History.Driver = "memory"
	}
	if c.History.MaxSamples == 0 {
		c.History.MaxSamples = 1000
	}
	if c.History.Redis.KeyPrefix == "" {
		c.History.Redis.KeyPrefix = "swarmflow:history"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Log.Audit.Path != "" {
		c.Log.Audit.Path = resolvePath(baseDir, c.Log.Audit.Path)
	}
}

// Validate 检查配置取值是否合法。
func (c *Config) Validate() error {
	invalid := func(field, msg string) error {
		return xerrors.New(xerrors.CodeValidation, msg, xerrors.WithMetadata("field", field))
	}
	switch {
	case c.Coordinator.MaxAgents < 1:
		return invalid("coordinator.max_agents", "max_agents 必须大于 0")
	case c.Coordinator.OptimizationThreshold <= 0 || c.Coordinator.OptimizationThreshold > 1:
		return invalid("coordinator.optimization_threshold", "optimization_threshold 必须在 (0, 1] 范围内")
	case c.Coordinator.MetricsInterval.Duration <= 0:
		return invalid("coordinator.metrics_interval", "metrics_interval 必须为正数")
	case c.Workspace.MaxConcurrentWorkspaces < 1:
		return invalid("workspace.max_concurrent_workspaces", "max_concurrent_workspaces 必须大于 0")
	case c.Workspace.MaxWorkspacesPerEnvironment < 1:
		return invalid("workspace.max_workspaces_per_environment", "max_workspaces_per_environment 必须大于 0")
	case c.Workspace.AutoShutdownAfterMinutes < 1:
		return invalid("workspace.auto_shutdown_after_minutes", "auto_shutdown_after_minutes 必须大于 0")
	case c.Workspace.CommandRate < 0:
		return invalid("workspace.command_rate", "command_rate 不能为负数")
	}
	for field, d := range map[string]time.Duration{
		"workspace.collect_interval":    c.Workspace.CollectInterval.Duration,
		"workspace.idle_check_interval": c.Workspace.IdleCheckInterval.Duration,
		"workspace.optimize_interval":   c.Workspace.OptimizeInterval.Duration,
	} {
		if d <= 0 {
			return invalid(field, field+" 必须为正数")
		}
	}
	switch c.AI.Provider {
	case "heuristic":
	case "script":
		if c.AI.ScriptPath == "" {
			return invalid("ai.script_path", "provider 为 script 时必须指定 script_path")
		}
	default:
		return invalid("ai.provider", fmt.Sprintf("不支持的 ai.provider: %s", c.AI.Provider))
	}
	switch c.History.Driver {
	case "memory":
	case "redis":
		if c.History.Redis.Address == "" {
			return invalid("history.redis.address", "driver 为 redis 时必须指定 address")
		}
	default:
		return invalid("history.driver", fmt.Sprintf("不支持的 history.driver: %s", c.History.Driver))
	}
	if c.Events.RabbitMQ != nil && c.Events.RabbitMQ.URL == "" {
		return invalid("events.rabbitmq.url", "启用 RabbitMQ 时必须指定 url")
	}
	if c.Events.MySQL != nil && c.Events.MySQL.DSN == "" {
		return invalid("events.mysql.dsn", "启用 MySQL 归档时必须指定 dsn")
	}
	return nil
}

func resolvePath(baseDir, p string) string {
	if p == "" {
		return baseDir
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}

func boolPtr(v bool) *bool {
	return &v
}
