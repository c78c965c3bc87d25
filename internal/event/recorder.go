package event

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"SwarmFlow/pkg/logger"
)

const (
	defaultCapacity   = 1000
	defaultSinkBuffer = 256
	wildcard          = Type("*")
)

// Handler 处理一条事件。处理函数在 Record 的调用方协程中同步执行。
type Handler func(Event)

type subscription struct {
	id      string
	handler Handler
}

// Recorder 保存最近的事件并将其分发给订阅者与外部 Sink。
type Recorder struct {
	mu       sync.RWMutex
	events   []Event
	capacity int
	swarmID  string
	subs     map[Type][]subscription
	nextID   atomic.Uint64

	sinks       []Sink
	sinkCh      chan Event
	sinkTimeout time.Duration
	dropped     atomic.Uint64
	closeOnce   sync.Once
	wg          sync.WaitGroup
	log         *slog.Logger
}

// Option 定义 Recorder 的可选配置。
type Option func(*Recorder)

// WithCapacity 设置保留的事件数量上限。
func WithCapacity(capacity int) Option {
	return func(r *Recorder) {
		if capacity > 0 {
			r.capacity = capacity
		}
	}
}

// WithSwarmID 为每条事件附加所属的 swarm ID。
func WithSwarmID(id string) Option {
	return func(r *Recorder) {
		r.swarmID = id
	}
}

// WithSinks 注册外部 Sink，事件经由有界缓冲异步投递。
func WithSinks(sinks ...Sink) Option {
	return func(r *Recorder) {
		for _, s := range sinks {
			if s != nil {
				r.sinks = append(r.sinks, s)
			}
		}
	}
}

// WithSinkTimeout 设置单次投递的超时时间。
func WithSinkTimeout(timeout time.Duration) Option {
	return func(r *Recorder) {
		if timeout > 0 {
			r.sinkTimeout = timeout
		}
	}
}

// NewRecorder 创建事件记录器。
func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{
		capacity:    defaultCapacity,
		subs:        make(map[Type][]subscription),
		sinkTimeout: 5 * time.Second,
		log:         logger.Named("event"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	r.events = make([]Event, 0, r.capacity)
	if len(r.sinks) > 0 {
		r.sinkCh = make(chan Event, defaultSinkBuffer)
		r.wg.Add(1)
		go r.dispatch(r.sinkCh)
	}
	return r
}

// Record 追加一条事件并同步通知订阅者，返回记录下来的事件。
func (r *Recorder) Record(typ Type, data map[string]any) Event {
	ev := New(typ, r.swarmID, data)

	r.mu.Lock()
	r.events = append(r.events, ev)
	if len(r.events) > r.capacity {
		trimmed := make([]Event, r.capacity, r.capacity)
		copy(trimmed, r.events[len(r.events)-r.capacity:])
		r.events = trimmed
	}
	specific := append([]subscription(nil), r.subs[typ]...)
	wild := append([]subscription(nil), r.subs[wildcard]...)
	r.mu.Unlock()

	for _, sub := range specific {
		r.safeCall(sub.handler, ev)
	}
	for _, sub := range wild {
		r.safeCall(sub.handler, ev)
	}
	r.forward(ev)
	return ev
}

// Subscribe 为指定事件类型注册处理函数，返回可用于取消订阅的 ID。
func (r *Recorder) Subscribe(typ Type, handler Handler) string {
	if handler == nil {
		return ""
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id := "sub-" + strconv.FormatUint(r.nextID.Add(1), 10)
	r.subs[typ] = append(r.subs[typ], subscription{id: id, handler: handler})
	return id
}

// SubscribeAll 注册接收所有事件的处理函数。
func (r *Recorder) SubscribeAll(handler Handler) string {
	return r.Subscribe(wildcard, handler)
}

// Unsubscribe 按 ID 移除订阅。
func (r *Recorder) Unsubscribe(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for typ, subs := range r.subs {
		for i, sub := range subs {
			if sub.id == id {
				r.subs[typ] = append(subs[:i:i], subs[i+1:]...)
				return true
			}
		}
	}
	return false
}

// Recent 按时间顺序返回最近 limit 条事件，limit<=0 时默认 100 条。
func (r *Recorder) Recent(limit int) []Event {
	if limit <= 0 {
		limit = 100
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit > len(r.events) {
		limit = len(r.events)
	}
	out := make([]Event, 0, limit)
	for _, ev := range r.events[len(r.events)-limit:] {
		out = append(out, ev.clone())
	}
	return out
}

// Len 返回当前保留的事件数量。
func (r *Recorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.events)
}

// Dropped 返回因 Sink 缓冲已满而未投递的事件数量。
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Close 停止 Sink 投递协程，等待缓冲中的事件投递完成后关闭所有 Sink。
func (r *Recorder) Close() error {
	var err error
	r.closeOnce.Do(func() {
		r.mu.Lock()
		ch := r.sinkCh
		r.sinkCh = nil
		r.mu.Unlock()
		if ch != nil {
			close(ch)
			r.wg.Wait()
		}
		err = closeSinks(r.sinks)
	})
	return err
}

func (r *Recorder) forward(ev Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.sinkCh == nil {
		return
	}
	select {
	case r.sinkCh <- ev:
	default:
		r.dropped.Add(1)
		r.log.Warn("事件投递缓冲已满，丢弃事件", slog.String("event_type", string(ev.Type)), slog.String("event_id", ev.ID))
	}
}

func (r *Recorder) dispatch(ch <-chan Event) {
	defer r.wg.Done()
	for ev := range ch {
		ctx, cancel := context.WithTimeout(context.Background(), r.sinkTimeout)
		if err := deliverAll(ctx, r.sinks, ev); err != nil {
			r.log.Error("事件投递失败", slog.Any("error", err), slog.String("event_type", string(ev.Type)))
		}
		cancel()
	}
}

func (r *Recorder) safeCall(handler Handler, ev Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("事件处理函数发生 panic",
				slog.String("event_type", string(ev.Type)),
				slog.String("panic", fmt.Sprint(rec)),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()
	handler(ev.clone())
}
