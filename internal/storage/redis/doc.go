// Package redis 提供基于 Redis list 的负载历史存储，多个 SwarmFlow 实例可以共享
// 同一份历史数据作为扩缩容预测的输入。
package redis
