package event

import (
	"context"
	"errors"
	"fmt"
)

// Sink 接收记录器转发的事件副本，例如消息队列或归档存储。
type Sink interface {
	Name() string
	Deliver(ctx context.Context, ev Event) error
	Close() error
}

// SinkFunc 将普通函数适配为 Sink，主要用于测试与进程内观察者。
type SinkFunc func(ctx context.Context, ev Event) error

// Name 返回固定名称。
func (f SinkFunc) Name() string { return "func" }

// Deliver 调用函数本身。
func (f SinkFunc) Deliver(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Close 无需操作。
func (f SinkFunc) Close() error { return nil }

func deliverAll(ctx context.Context, sinks []Sink, ev Event) error {
	var errs []error
	for _, sink := range sinks {
		if err := sink.Deliver(ctx, ev); err != nil {
			errs = append(errs, fmt.Errorf("sink %s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func closeSinks(sinks []Sink) error {
	var errs []error
	for _, sink := range sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("sink %s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}
