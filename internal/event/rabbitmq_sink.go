package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	xerrors "SwarmFlow/internal/errors"
)

// RabbitMQConfig 描述事件发布所用的 RabbitMQ 连接参数。
type RabbitMQConfig struct {
	URL      string `yaml:"url" json:"url"`
	Exchange string `yaml:"exchange" json:"exchange"`
	Durable  bool   `yaml:"durable" json:"durable"`
}

// RabbitMQSink 将事件以 JSON 形式发布到 topic exchange，路由键为事件类型。
type RabbitMQSink struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// NewRabbitMQSink 连接 RabbitMQ 并声明 exchange。
func NewRabbitMQSink(cfg RabbitMQConfig) (*RabbitMQSink, error) {
	if cfg.URL == "" {
		return nil, xerrors.New(xerrors.CodeValidation, "RabbitMQ URL 不能为空")
	}
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = "swarmflow.events"
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "连接 RabbitMQ 失败")
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "创建 RabbitMQ channel 失败")
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, cfg.Durable, !cfg.Durable, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "声明 RabbitMQ exchange 失败")
	}
	return &RabbitMQSink{conn: conn, ch: ch, exchange: exchange}, nil
}

// Name 返回 Sink 名称。
func (s *RabbitMQSink) Name() string { return "rabbitmq" }

// Deliver 发布一条事件。
func (s *RabbitMQSink) Deliver(ctx context.Context, ev Event) error {
	if s == nil || s.ch == nil {
		return errors.New("RabbitMQ sink 未初始化")
	}
	msg, err := encodePublishing(ev)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ch.PublishWithContext(ctx, s.exchange, string(ev.Type), false, false, msg); err != nil {
		return xerrors.Wrap(xerrors.CodePublishFailure, err, fmt.Sprintf("发布事件 %s 失败", ev.ID))
	}
	return nil
}

// Close 关闭 channel 与连接。
func (s *RabbitMQSink) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch != nil {
		_ = s.ch.Close()
		s.ch = nil
	}
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		return err
	}
	return nil
}

func encodePublishing(ev Event) (amqp.Publishing, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return amqp.Publishing{}, xerrors.Wrap(xerrors.CodePublishFailure, err, "序列化事件失败")
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    ev.ID,
		Timestamp:    ev.Timestamp,
		Type:         string(ev.Type),
		DeliveryMode: amqp.Persistent,
		Body:         body,
	}, nil
}

var _ Sink = (*RabbitMQSink)(nil)
