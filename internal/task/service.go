package task

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	xerrors "AgentDesk/internal/errors"
	"AgentDesk/internal/tool"
	"AgentDesk/pkg/logger"
)

// DefaultMaxRetries 是未配置时的最大执行次数。
const DefaultMaxRetries = 3

// SubmitRequest 描述一次"立即运行"的工作流提交。
type SubmitRequest struct {
	ID                 string   `json:"id,omitempty"`
	AgentID            string   `json:"agent_id"`
	TaskName           string   `json:"task_name"`
	WorkflowDefinition string   `json:"workflow_definition"`
	ToolsToUse         []string `json:"tools_to_use"`
}

// Service 负责任务的创建与查询。
type Service struct {
	store      Store
	producer   Producer
	maxRetries int
}

// NewService 构造任务服务。
func NewService(store Store, producer Producer, maxRetries int) *Service {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Service{store: store, producer: producer, maxRetries: maxRetries}
}

// Submit 校验请求、落库并入队。带 ID 的重复提交直接返回已有运行，不会再次入队。
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Task, error) {
	run, err := s.newTask(req)
	if err != nil {
		return nil, err
	}
	if s.store == nil || s.producer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "task service is not initialised")
	}

	if strings.TrimSpace(req.ID) != "" {
		if existing, found, err := s.lookup(ctx, run.ID); err != nil || found {
			return existing, err
		}
	}
	if err := s.store.Create(ctx, run); err != nil {
		if !stdErrors.Is(err, ErrTaskConflict) {
			return nil, err
		}
		// 并发提交同一 ID 时，后到者读取先到者写入的运行。
		if existing, found, lookupErr := s.lookup(ctx, run.ID); lookupErr != nil || found {
			return existing, lookupErr
		}
		return nil, err
	}

	if err := s.producer.Publish(ctx, run.ID); err != nil {
		logger.L().Error("工作流运行入队失败", slog.Any("error", err), slog.String("run_id", run.ID))
		wrapped := xerrors.Wrap(CodeTaskPublish, err, "publish run to queue")
		_ = s.store.MarkFailed(ctx, run.ID, CodeTaskPublish, wrapped.Error(), nil)
		return nil, wrapped
	}
	logger.Audit().Info("workflow run queued",
		slog.String("run_id", run.ID),
		slog.String("agent_id", run.AgentID),
		slog.String("task_name", run.TaskName),
		slog.Any("integrations", run.Integrations),
		slog.Int("max_retries", run.MaxRetries),
	)
	return run, nil
}

func (s *Service) newTask(req SubmitRequest) (*Task, error) {
	agentID := strings.TrimSpace(req.AgentID)
	if agentID == "" {
		return nil, xerrors.New(CodeTaskValidation, "agent_id must not be empty")
	}
	definition := strings.TrimSpace(req.WorkflowDefinition)
	if definition == "" {
		return nil, xerrors.New(CodeTaskValidation, "workflow_definition must not be empty")
	}
	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.NewString()
	}
	name := strings.TrimSpace(req.TaskName)
	if name == "" {
		name = "workflow"
	}
	return &Task{
		ID:                 id,
		AgentID:            agentID,
		TaskName:           name,
		WorkflowDefinition: definition,
		Integrations:       tool.ParseIntegrations(req.ToolsToUse...),
		Status:             StatusPending,
		MaxRetries:         s.maxRetries,
	}, nil
}

// lookup 区分"不存在"与存储错误。
func (s *Service) lookup(ctx context.Context, id string) (*Task, bool, error) {
	run, err := s.store.Get(ctx, id)
	switch {
	case err == nil:
		return run, true, nil
	case stdErrors.Is(err, ErrTaskNotFound):
		return nil, false, nil
	default:
		return nil, false, err
	}
}

// Get 返回指定任务的状态。
func (s *Service) Get(ctx context.Context, id string) (*Task, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "task store is not initialised")
	}
	return s.store.Get(ctx, id)
}

// List 返回符合过滤条件的任务列表。
func (s *Service) List(ctx context.Context, opts ...ListOption) ([]*Task, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "task store is not initialised")
	}
	return s.store.List(ctx, BuildListOptions(opts))
}

// Stats 返回符合过滤条件的任务统计信息。
func (s *Service) Stats(ctx context.Context, opts ...ListOption) (TaskStats, error) {
	if s.store == nil {
		return TaskStats{}, xerrors.New(xerrors.CodeInitializationFailure, "task store is not initialised")
	}
	return s.store.Stats(ctx, BuildListOptions(opts))
}

// Close 释放资源。
func (s *Service) Close() error {
	var errs []error
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	if s.producer != nil {
		errs = append(errs, s.producer.Close())
	}
	return stdErrors.Join(errs...)
}

// WaitUntilCompleted 轮询任务状态直到结束或 ctx 取消。
func (s *Service) WaitUntilCompleted(ctx context.Context, id string, interval time.Duration) (*Task, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		task, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if task.Status.Finished() {
			return task, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
