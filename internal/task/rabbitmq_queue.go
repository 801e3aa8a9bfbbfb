package task

import (
	"context"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	xerrors "AgentDesk/internal/errors"
	"AgentDesk/pkg/logger"
)

// RabbitMQConfig 描述 RabbitMQ 队列的连接参数。
type RabbitMQConfig struct {
	URL        string `json:"url" yaml:"url"`
	Queue      string `json:"queue" yaml:"queue"`
	Prefetch   int    `json:"prefetch" yaml:"prefetch"`
	Durable    bool   `json:"durable" yaml:"durable"`
	AutoDelete bool   `json:"auto_delete" yaml:"auto_delete"`
}

// RabbitMQQueue 使用 RabbitMQ 实现任务队列。
type RabbitMQQueue struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
	cfg   RabbitMQConfig
	log   *slog.Logger
}

// NewRabbitMQQueue 创建 RabbitMQ 队列实例。
func NewRabbitMQQueue(cfg RabbitMQConfig) (*RabbitMQQueue, error) {
	if cfg.URL == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "rabbitmq url must not be empty")
	}
	queue := cfg.Queue
	if queue == "" {
		queue = "agentdesk.runs"
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "connect to rabbitmq")
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "open rabbitmq channel")
	}
	if cfg.Prefetch > 0 {
		if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
			ch.Close()
			conn.Close()
			return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "set rabbitmq qos")
		}
	}
	if _, err := ch.QueueDeclare(queue, cfg.Durable, cfg.AutoDelete, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "declare rabbitmq queue")
	}
	return &RabbitMQQueue{conn: conn, ch: ch, queue: queue, cfg: cfg, log: logger.Named("rabbitmq-queue")}, nil
}

// Publish 将任务投递到 RabbitMQ。
func (q *RabbitMQQueue) Publish(ctx context.Context, taskID string) error {
	if q == nil || q.ch == nil {
		return ErrQueueClosed
	}
	err := q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "text/plain",
		DeliveryMode: amqp.Persistent,
		Body:         []byte(taskID),
	})
	if err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "publish run to rabbitmq")
	}
	return nil
}

// Len 通过被动声明读取队列中等待的消息数。
func (q *RabbitMQQueue) Len(context.Context) (int64, error) {
	if q == nil || q.ch == nil {
		return 0, ErrQueueClosed
	}
	info, err := q.ch.QueueDeclarePassive(q.queue, q.cfg.Durable, q.cfg.AutoDelete, false, false, nil)
	if err != nil {
		return 0, xerrors.Wrap(xerrors.CodeQueueFailure, err, "inspect rabbitmq queue")
	}
	return int64(info.Messages), nil
}

// Consume 以手动确认模式订阅队列。可重试的失败 Nack 并重新入队，其余一律 Ack。
func (q *RabbitMQQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if q == nil || q.ch == nil {
		return ErrQueueClosed
	}
	deliveries, err := q.ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "subscribe rabbitmq queue")
	}
	return runWorkers(ctx, workerCount, func(ctx context.Context) error {
		for {
			var (
				msg    amqp.Delivery
				ok     bool
				ackErr error
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case msg, ok = <-deliveries:
			}
			if !ok {
				return nil
			}
			if deliver(ctx, q.log, handler, string(msg.Body)) {
				ackErr = msg.Nack(false, true)
			} else {
				ackErr = msg.Ack(false)
			}
			if ackErr != nil {
				q.log.Error("确认消息失败", slog.String("task_id", string(msg.Body)), slog.Any("error", ackErr))
			}
		}
	})
}

// Close 关闭 RabbitMQ 连接。
func (q *RabbitMQQueue) Close() error {
	if q == nil {
		return nil
	}
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

var (
	_ Queue   = (*RabbitMQQueue)(nil)
	_ Depther = (*RabbitMQQueue)(nil)
)
