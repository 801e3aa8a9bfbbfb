package task

import (
	"context"
	"log/slog"
	"sync"

	"AgentDesk/pkg/logger"
)

const defaultMemoryQueueSize = 64

// MemoryQueue 是基于 channel 的进程内队列，适用于测试和单进程部署。
// 处理失败且可重试的运行会重新放回 channel。
type MemoryQueue struct {
	mu     sync.RWMutex
	ch     chan string
	closed bool
	log    *slog.Logger
}

// NewMemoryQueue 创建容量为 size 的内存队列。
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = defaultMemoryQueueSize
	}
	return &MemoryQueue{ch: make(chan string, size), log: logger.Named("memory-queue")}
}

// Publish 投递运行 ID；队列已满时阻塞到 ctx 取消。
func (q *MemoryQueue) Publish(ctx context.Context, runID string) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- runID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// offer 非阻塞地放回运行 ID，消费协程不能等待自己腾出的空间。
func (q *MemoryQueue) offer(runID string) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}
	select {
	case q.ch <- runID:
		return true
	default:
		return false
	}
}

// Len 返回尚未被消费的运行数量。
func (q *MemoryQueue) Len(context.Context) (int64, error) {
	return int64(len(q.ch)), nil
}

// Consume 实现 Consumer。
func (q *MemoryQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	return runWorkers(ctx, workerCount, func(ctx context.Context) error {
		for {
			var (
				runID string
				ok    bool
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case runID, ok = <-q.ch:
			}
			if !ok {
				return nil
			}
			if deliver(ctx, q.log, handler, runID) && !q.offer(runID) {
				q.log.Warn("队列已满或已关闭，放弃重新入队", slog.String("task_id", runID))
			}
		}
	})
}

// Close 关闭队列，之后的 Publish 返回 ErrQueueClosed，消费者在排空后退出。
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.ch)
	return nil
}

var (
	_ Queue   = (*MemoryQueue)(nil)
	_ Depther = (*MemoryQueue)(nil)
)
