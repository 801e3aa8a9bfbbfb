package task

import (
	"context"
	"fmt"

	"AgentDesk/internal/agent"
	xerrors "AgentDesk/internal/errors"
)

// EngineExecutor 以一次性会话执行工作流：工作流定义作为唯一的用户输入。
type EngineExecutor struct {
	sessions *agent.SessionManager
}

// NewEngineExecutor 创建基于会话管理器的执行器。
func NewEngineExecutor(sessions *agent.SessionManager) *EngineExecutor {
	return &EngineExecutor{sessions: sessions}
}

// Execute 实现 Executor。
//
// 限流、适配器与补全服务失败在工作流层面视为可重试，由处理器重新排队；
// 其余失败（校验、歧义、未找到）重跑也不会改变结果。
func (e *EngineExecutor) Execute(ctx context.Context, task *Task) (ExecutionResult, error) {
	if e.sessions == nil {
		return ExecutionResult{}, xerrors.New(xerrors.CodeInitializationFailure, "session manager is not configured")
	}
	sess, err := e.sessions.Open(ctx, agent.OpenRequest{
		SessionID:    fmt.Sprintf("run-%s-%d", task.ID, task.Attempts),
		AgentID:      task.AgentID,
		Integrations: task.Integrations,
		SkipGreeting: true,
	})
	if err != nil {
		return ExecutionResult{}, err
	}
	defer e.sessions.Close(sess.ID())

	outcome, err := e.sessions.Send(ctx, sess.ID(), task.WorkflowDefinition)
	if err != nil {
		return ExecutionResult{}, err
	}

	result := ExecutionResult{Reply: outcome.Reply, Outcome: string(outcome.Path)}
	if outcome.Result == nil {
		return result, nil
	}
	result.Tool = string(outcome.Result.Tool)
	result.Outcome = outcome.Result.Kind()
	if failure := outcome.Result.Failure; failure != nil {
		return result, xerrors.New(xerrors.Code(failure.Kind), failure.Message,
			xerrors.WithRetryable(retryableKind(failure.Kind)),
			xerrors.WithMetadata("task_id", task.ID))
	}
	return result, nil
}

func retryableKind(kind agent.FailureKind) bool {
	switch kind {
	case agent.FailureRateLimited, agent.FailureAdapter, agent.FailureCompletionService:
		return true
	default:
		return false
	}
}

var _ Executor = (*EngineExecutor)(nil)
