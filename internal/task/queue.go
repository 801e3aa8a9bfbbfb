package task

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	xerrors "AgentDesk/internal/errors"
)

// Handler 处理队列中的一次运行投递，参数为运行 ID。
type Handler func(ctx context.Context, runID string) error

// Producer 投递运行 ID。
type Producer interface {
	Publish(ctx context.Context, runID string) error
	Close() error
}

// Consumer 以固定数量的工作协程消费运行 ID，阻塞直到 ctx 取消或队列关闭。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 同时具备生产者与消费者能力。
type Queue interface {
	Producer
	Consumer
}

// Depther 由能够报告积压长度的队列实现，处理器据此上报队列深度。
type Depther interface {
	Len(ctx context.Context) (int64, error)
}

// ErrQueueClosed 表示队列已关闭。
var ErrQueueClosed = xerrors.New(xerrors.CodeQueueFailure, "queue closed")

// runWorkers 启动 n 个协程执行同一个消费循环，任一循环返回错误都会取消其余循环。
func runWorkers(ctx context.Context, n int, loop func(ctx context.Context) error) error {
	if n <= 0 {
		n = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	for range n {
		g.Go(func() error { return loop(gctx) })
	}
	return g.Wait()
}

// deliver 调用处理函数并报告该投递是否应当重新入队。
// 只有可重试的错误才重新入队；其余错误只记录日志，避免毒消息反复投递。
func deliver(ctx context.Context, log *slog.Logger, handler Handler, runID string) (requeue bool) {
	err := handler(ctx, runID)
	if err == nil {
		return false
	}
	requeue = xerrors.RetryableError(err) && ctx.Err() == nil
	log.Warn("处理运行失败",
		slog.String("task_id", runID),
		slog.String("error_code", string(xerrors.CodeOf(err))),
		slog.Bool("requeue", requeue),
		slog.Any("error", err),
	)
	return requeue
}
