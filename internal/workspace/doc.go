// Package workspace 维护计算工作区的资源快照，并基于快照执行采集、空闲回收、
// 成本优化与按需供给。所有对工作区的真实操作都经由外部命令完成。
package workspace
