// Package agent 维护逻辑智能体的生命周期记录，负责容量限制与忙闲状态转换。
// 智能体只是一条记录，不对应任何进程；任务分配由 task 包驱动。
package agent
