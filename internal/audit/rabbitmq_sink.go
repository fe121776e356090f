package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	xerrors "Empleaido-Core/internal/errors"
)

// RabbitMQConfig 描述审计事件的发布目标。
type RabbitMQConfig struct {
	URL      string
	Exchange string
	Queue    string
	Durable  bool
}

// publishTimeout 限制单次发布的最长耗时。
const publishTimeout = 5 * time.Second

// publisher 抽象出 amqp.Channel 的发布能力，便于测试。
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQSink 将审计事件以 JSON 形式发布到 RabbitMQ。
type RabbitMQSink struct {
	conn     *amqp.Connection
	ch       publisher
	exchange string
	queue    string
}

// NewRabbitMQSink 连接 RabbitMQ 并声明目标队列或交换机。
func NewRabbitMQSink(cfg RabbitMQConfig) (*RabbitMQSink, error) {
	if cfg.URL == "" {
		return nil, errors.New("RabbitMQ URL 不能为空")
	}
	queue := cfg.Queue
	if queue == "" && cfg.Exchange == "" {
		queue = "empleaido.audit"
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("连接 RabbitMQ 失败: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("创建 RabbitMQ channel 失败: %w", err)
	}
	if cfg.Exchange != "" {
		if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeTopic, cfg.Durable, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("声明 RabbitMQ 交换机失败: %w", err)
		}
	}
	if queue != "" {
		if _, err := ch.QueueDeclare(queue, cfg.Durable, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("声明 RabbitMQ 队列失败: %w", err)
		}
		if cfg.Exchange != "" {
			if err := ch.QueueBind(queue, "audit.#", cfg.Exchange, false, nil); err != nil {
				ch.Close()
				conn.Close()
				return nil, fmt.Errorf("绑定 RabbitMQ 队列失败: %w", err)
			}
		}
	}
	return &RabbitMQSink{conn: conn, ch: ch, exchange: cfg.Exchange, queue: queue}, nil
}

// routingKey 有交换机时按事件类型路由，否则直接投递到队列。
func (s *RabbitMQSink) routingKey(kind Kind) string {
	if s.exchange != "" {
		return "audit." + string(kind)
	}
	return s.queue
}

// Append 实现 Sink 接口。
func (s *RabbitMQSink) Append(ctx context.Context, event Event) error {
	if s == nil || s.ch == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "RabbitMQ 审计未初始化")
	}
	event.Normalize()
	body, err := json.Marshal(event)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "序列化审计事件失败")
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	err = s.ch.PublishWithContext(ctx, s.exchange, s.routingKey(event.Kind), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Timestamp:    event.Timestamp,
		Type:         string(event.Kind),
		Body:         body,
	})
	if err != nil {
		return xerrors.Wrap(xerrors.CodePublishFailure, err, "发布审计事件失败",
			xerrors.WithMetadata("event_id", event.ID))
	}
	return nil
}

// Close 关闭 RabbitMQ 连接。
func (s *RabbitMQSink) Close() error {
	if s == nil {
		return nil
	}
	if s.ch != nil {
		_ = s.ch.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

var _ Sink = (*RabbitMQSink)(nil)
