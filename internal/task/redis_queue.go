package task

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	xerrors "AgentDesk/internal/errors"
	"AgentDesk/pkg/logger"
)

// RedisQueueConfig 描述 Redis 队列的连接参数。
type RedisQueueConfig struct {
	Address   string        `json:"address" yaml:"address"`
	Password  string        `json:"password" yaml:"password"`
	DB        int           `json:"db" yaml:"db"`
	Queue     string        `json:"queue" yaml:"queue"`
	BlockWait time.Duration `json:"block_wait" yaml:"block_wait"`
}

const defaultRedisQueue = "agentdesk:runs"

// RedisQueue 使用 Redis list 实现任务队列。
type RedisQueue struct {
	client redis.UniversalClient
	queue  string
	wait   time.Duration
	log    *slog.Logger
}

// NewRedisQueue 创建 Redis 队列实例。
func NewRedisQueue(ctx context.Context, cfg RedisQueueConfig) (*RedisQueue, error) {
	if cfg.Address == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "redis address must not be empty")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "connect to redis")
	}
	return NewRedisQueueWithClient(client, cfg.Queue, cfg.BlockWait), nil
}

// NewRedisQueueWithClient 复用已有客户端。
func NewRedisQueueWithClient(client redis.UniversalClient, queue string, wait time.Duration) *RedisQueue {
	if queue == "" {
		queue = defaultRedisQueue
	}
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &RedisQueue{client: client, queue: queue, wait: wait, log: logger.Named("redis-queue")}
}

// Publish 将任务投递到 Redis。
func (q *RedisQueue) Publish(ctx context.Context, taskID string) error {
	if err := q.client.LPush(ctx, q.queue, taskID).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "publish run to redis")
	}
	return nil
}

// Len 返回队列中等待的任务数。
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	n, err := q.client.LLen(ctx, q.queue).Result()
	if err != nil {
		return 0, xerrors.Wrap(xerrors.CodeQueueFailure, err, "read redis queue length")
	}
	return n, nil
}

// Consume 通过 BRPOP 取出运行 ID；可重试的失败放回队尾，等待其他工作协程重新领取。
func (q *RedisQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	return runWorkers(ctx, workerCount, func(ctx context.Context) error {
		for ctx.Err() == nil {
			values, err := q.client.BRPop(ctx, q.wait, q.queue).Result()
			switch {
			case errors.Is(err, redis.Nil):
				continue
			case err != nil && ctx.Err() != nil:
				return ctx.Err()
			case errors.Is(err, redis.ErrClosed):
				return ErrQueueClosed
			case err != nil:
				return xerrors.Wrap(xerrors.CodeQueueFailure, err, "pop run from redis")
			case len(values) != 2:
				continue
			}
			runID := values[1]
			if deliver(ctx, q.log, handler, runID) {
				if err := q.client.RPush(ctx, q.queue, runID).Err(); err != nil {
					q.log.Error("运行重新入队失败", slog.String("task_id", runID), slog.Any("error", err))
				}
			}
		}
		return ctx.Err()
	})
}

// Close 关闭 Redis 连接。
func (q *RedisQueue) Close() error {
	if q == nil || q.client == nil {
		return nil
	}
	return q.client.Close()
}

var (
	_ Queue   = (*RedisQueue)(nil)
	_ Depther = (*RedisQueue)(nil)
)
