package task

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"time"

	xerrors "AgentDesk/internal/errors"
	"AgentDesk/internal/observability/alerting"
	"AgentDesk/internal/observability/metrics"
	"AgentDesk/pkg/logger"
)

// Executor 执行一次工作流。失败时仍可返回已经产生的结果（例如失败回复）。
type Executor interface {
	Execute(ctx context.Context, task *Task) (ExecutionResult, error)
}

// ExecutorFunc 让普通函数实现 Executor。
type ExecutorFunc func(ctx context.Context, task *Task) (ExecutionResult, error)

// Execute 实现 Executor。
func (f ExecutorFunc) Execute(ctx context.Context, task *Task) (ExecutionResult, error) {
	return f(ctx, task)
}

// Processor 负责从队列消费任务并交给执行器。
type Processor struct {
	executor    Executor
	store       Store
	consumer    Consumer
	producer    Producer
	workerCount int
	logger      *slog.Logger
	alerter     alerting.Dispatcher

	depthInterval time.Duration
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithDepthInterval 设置队列深度的采样间隔，0 表示不采样。
func WithDepthInterval(d time.Duration) ProcessorOption {
	return func(p *Processor) {
		p.depthInterval = d
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.alerter = dispatcher
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(executor Executor, store Store, consumer Consumer, producer Producer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		executor:    executor,
		store:       store,
		consumer:    consumer,
		producer:    producer,
		workerCount: 1,
		logger:      logger.Named("task-processor"),

		depthInterval: 15 * time.Second,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Start 启动任务处理循环，阻塞直到 ctx 取消或消费者退出。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "task consumer is not configured")
	}
	depther, ok := p.consumer.(Depther)
	if !ok || p.depthInterval <= 0 {
		return p.consumer.Consume(ctx, p.workerCount, p.Handle)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go p.sampleDepth(ctx, depther)
	return p.consumer.Consume(ctx, p.workerCount, p.Handle)
}

func (p *Processor) sampleDepth(ctx context.Context, d Depther) {
	ticker := time.NewTicker(p.depthInterval)
	defer ticker.Stop()
	for {
		if n, err := d.Len(ctx); err == nil {
			metrics.SetQueueDepth(n)
		} else if ctx.Err() == nil {
			p.logger.Debug("读取队列深度失败", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Handle 处理单个任务 ID。只有存储层失败会返回错误，执行失败记录在任务上。
func (p *Processor) Handle(ctx context.Context, taskID string) error {
	if p.store == nil || p.executor == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "task processor is not initialised")
	}
	task, err := p.store.Claim(ctx, taskID)
	if err != nil {
		if skippable(err) {
			p.logger.Debug("跳过任务", slog.String("task_id", taskID), slog.String("reason", err.Error()))
			return nil
		}
		logger.L().Error("领取任务失败", slog.Any("error", err), slog.String("task_id", taskID))
		p.emitAlert(ctx, &Task{ID: taskID}, CodeTaskProcessing, err, "claim")
		return err
	}

	started := time.Now()
	result, execErr := p.executor.Execute(ctx, task)
	if execErr != nil {
		return p.handleExecutionFailure(ctx, task, result, execErr)
	}

	if err := p.store.MarkSucceeded(ctx, task.ID, result); err != nil {
		logger.L().Error("标记任务成功状态失败", slog.Any("error", err), slog.String("task_id", task.ID))
		return err
	}
	metrics.ObserveWorkflowRun(string(StatusSucceeded))
	logger.Audit().Info("workflow run finished",
		slog.String("task_id", task.ID),
		slog.String("agent_id", task.AgentID),
		slog.String("task_name", task.TaskName),
		slog.String("tool", result.Tool),
		slog.String("outcome", result.Outcome),
		slog.Duration("elapsed", time.Since(started)),
	)
	return nil
}

func (p *Processor) handleExecutionFailure(ctx context.Context, task *Task, result ExecutionResult, execErr error) error {
	code := xerrors.CodeOf(execErr)
	if code == xerrors.CodeUnknown {
		code = CodeTaskProcessing
	}
	retryable := xerrors.RetryableError(execErr)
	terminal := task.Attempts >= task.MaxRetries || !retryable

	if storeErr := p.store.MarkFailed(ctx, task.ID, code, xerrors.MessageOf(execErr), &result); storeErr != nil {
		logger.L().Error("标记任务失败状态出错", slog.Any("error", storeErr), slog.String("task_id", task.ID))
		return storeErr
	}
	logger.Audit().Warn("workflow run failed",
		slog.String("task_id", task.ID),
		slog.String("agent_id", task.AgentID),
		slog.String("task_name", task.TaskName),
		slog.Bool("terminal", terminal),
		slog.String("error", execErr.Error()),
		slog.String("error_code", string(code)),
		slog.Int("attempts", task.Attempts),
		slog.Int("max_retries", task.MaxRetries),
	)

	if terminal {
		metrics.ObserveWorkflowRun(string(StatusFailed))
		stage := "terminal"
		if !retryable {
			stage = "non_retryable"
		}
		p.emitAlert(ctx, task, code, execErr, stage)
		return nil
	}

	metrics.ObserveWorkflowRun("retried")
	if p.producer == nil {
		return nil
	}
	if pubErr := p.producer.Publish(ctx, task.ID); pubErr != nil {
		return xerrors.Wrap(CodeTaskPublish, pubErr, fmt.Sprintf("requeue run %s", task.ID))
	}
	p.logger.Debug("任务已重新排队", slog.String("task_id", task.ID), slog.Int("attempts", task.Attempts))
	return nil
}

func (p *Processor) emitAlert(ctx context.Context, task *Task, code xerrors.Code, cause error, stage string) {
	if p == nil || p.alerter == nil || task == nil {
		return
	}
	attrs := xerrors.AttributesOf(code)
	message := attrs.Message
	metadata := map[string]string{}
	if cause != nil {
		message = xerrors.MessageOf(cause)
		maps.Copy(metadata, xerrors.MetadataOf(cause))
		metadata["cause"] = cause.Error()
	}
	metadata["stage"] = stage
	event := alerting.Event{
		Code:       code,
		Message:    message,
		Severity:   attrs.Severity,
		RunID:      task.ID,
		AgentID:    task.AgentID,
		TaskName:   task.TaskName,
		Attempts:   task.Attempts,
		MaxRetries: task.MaxRetries,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}
	if err := p.alerter.Notify(ctx, event); err != nil {
		logger.L().Error("告警通知失败",
			slog.Any("error", err),
			slog.String("task_id", task.ID),
			slog.String("stage", stage),
		)
	}
}
