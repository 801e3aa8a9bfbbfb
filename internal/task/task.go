// Package task 管理工作流执行：提交、排队、由引擎以单轮会话执行并记录结果。
package task

import (
	"slices"

	xerrors "AgentDesk/internal/errors"
	"AgentDesk/internal/tool"
)

// Status 表示任务在生命周期中的状态。
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// ExecutionResult 保存一次工作流执行的结果。
type ExecutionResult struct {
	Reply   string `json:"reply"`
	Tool    string `json:"tool,omitempty"`
	Outcome string `json:"outcome,omitempty"`
}

func (r *ExecutionResult) empty() bool {
	return r == nil || (r.Reply == "" && r.Tool == "" && r.Outcome == "")
}

// Task 描述一次排队执行的工作流。
type Task struct {
	ID                 string             `json:"id"`
	AgentID            string             `json:"agent_id"`
	TaskName           string             `json:"task_name"`
	WorkflowDefinition string             `json:"workflow_definition"`
	Integrations       []tool.Integration `json:"integrations,omitempty"`
	Status             Status             `json:"status"`
	Attempts           int                `json:"attempts"`
	MaxRetries         int                `json:"max_retries"`
	LastError          string             `json:"last_error,omitempty"`
	ErrorCode          string             `json:"error_code,omitempty"`
	Result             *ExecutionResult   `json:"result,omitempty"`
	CreatedAt          int64              `json:"created_at"`
	UpdatedAt          int64              `json:"updated_at"`
}

const (
	CodeTaskNotFound   xerrors.Code = "TASK_NOT_FOUND"
	CodeTaskConflict   xerrors.Code = "TASK_CONFLICT"
	CodeTaskCompleted  xerrors.Code = "TASK_COMPLETED"
	CodeTaskExhausted  xerrors.Code = "TASK_RETRIES_EXHAUSTED"
	CodeTaskValidation xerrors.Code = "TASK_VALIDATION_FAILED"
	CodeTaskPublish    xerrors.Code = "TASK_PUBLISH_FAILED"
	CodeTaskProcessing xerrors.Code = "TASK_PROCESSING_FAILED"
)

func init() {
	for code, attr := range map[xerrors.Code]xerrors.Attributes{
		CodeTaskNotFound:   {Message: "workflow run not found", Severity: xerrors.SeverityInfo},
		CodeTaskConflict:   {Message: "workflow run state conflict", Severity: xerrors.SeverityWarning},
		CodeTaskCompleted:  {Message: "workflow run already succeeded", Severity: xerrors.SeverityInfo},
		CodeTaskExhausted:  {Message: "workflow run has no attempts left", Severity: xerrors.SeverityCritical, Alert: true},
		CodeTaskValidation: {Message: "workflow run request is invalid", Severity: xerrors.SeverityInfo},
		CodeTaskPublish:    {Message: "failed to enqueue workflow run", Severity: xerrors.SeverityCritical, Retryable: true, Alert: true},
		CodeTaskProcessing: {Message: "workflow run failed", Severity: xerrors.SeverityWarning, Retryable: true, Alert: true},
	} {
		xerrors.Register(code, attr)
	}
}

// 存储层返回的哨兵错误，按错误码比较，可用 errors.Is 判断。
// 包级变量先于 init 初始化，因此这里显式给出提示文本。
var (
	ErrTaskNotFound  = xerrors.New(CodeTaskNotFound, "workflow run not found")
	ErrTaskConflict  = xerrors.New(CodeTaskConflict, "workflow run state conflict")
	ErrTaskCompleted = xerrors.New(CodeTaskCompleted, "workflow run already succeeded")
	ErrTaskExhausted = xerrors.New(CodeTaskExhausted, "workflow run has no attempts left")
)

// IsTaskError 判断 err 是否携带给定的任务错误码。
func IsTaskError(err error, target xerrors.Code) bool {
	return err != nil && xerrors.CodeOf(err) == target
}

// skippable 报告领取失败是否只说明这次投递已经过期，无需重试或告警。
func skippable(err error) bool {
	switch xerrors.CodeOf(err) {
	case CodeTaskNotFound, CodeTaskConflict, CodeTaskCompleted, CodeTaskExhausted:
		return true
	default:
		return false
	}
}

// Finished 报告最近一次尝试是否已经结束。失败的运行之后仍可能被重新领取。
func (s Status) Finished() bool { return s == StatusSucceeded || s == StatusFailed }

// IsValidStatus 检查给定的任务状态是否为支持的枚举值。
func IsValidStatus(status Status) bool {
	switch status {
	case StatusPending, StatusRunning, StatusSucceeded, StatusFailed:
		return true
	default:
		return false
	}
}

func (t *Task) clone() *Task {
	out := *t
	if t.Result != nil {
		result := *t.Result
		out.Result = &result
	}
	out.Integrations = slices.Clone(t.Integrations)
	return &out
}
