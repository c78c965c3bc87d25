// Package config 负责加载 SwarmFlow 的 YAML/JSON 配置文件，填充默认值并做
// 启动前校验。配置路径可由命令行指定，缺省时读取 SWARMFLOW_CONFIG 环境变量。
package config
