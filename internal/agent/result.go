package agent

import (
	"context"
	stdErrors "errors"
	"fmt"

	xerrors "AgentDesk/internal/errors"
	"AgentDesk/internal/tool"
)

// FailureKind 是工具执行失败的分类，与错误码一一对应。
type FailureKind string

const (
	FailureUnknownTool       = FailureKind(xerrors.CodeUnknownTool)
	FailureMissingArgument   = FailureKind(xerrors.CodeMissingArgument)
	FailureInvalidArgument   = FailureKind(xerrors.CodeInvalidArgument)
	FailureAmbiguousEntity   = FailureKind(xerrors.CodeAmbiguousEntity)
	FailureNotFound          = FailureKind(xerrors.CodeNotFound)
	FailureAdapter           = FailureKind(xerrors.CodeAdapterFailure)
	FailureRateLimited       = FailureKind(xerrors.CodeRateLimited)
	FailureCompletionService = FailureKind(xerrors.CodeCompletionFailure)
)

// timeoutMessage 是超时失败统一使用的消息。
const timeoutMessage = "timeout"

// Failure 描述一次失败的工具执行或补全调用。
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Reply 返回写入对话的文本。
// 歧义与未找到原样展示，引导用户补充信息；服务类失败附带致歉。
func (f *Failure) Reply() string {
	switch f.Kind {
	case FailureAmbiguousEntity, FailureNotFound:
		return f.Message
	case FailureUnknownTool, FailureMissingArgument, FailureInvalidArgument:
		return "I couldn't run that request: " + f.Message
	default:
		return "Sorry, something went wrong while handling your request: " + f.Message
	}
}

// Result 是工具执行的两种结果之一：成功文本或失败。
type Result struct {
	Tool    tool.Name `json:"tool,omitempty"`
	Action  string    `json:"action,omitempty"`
	Text    string    `json:"text,omitempty"`
	Failure *Failure  `json:"failure,omitempty"`
}

// OK 判断是否成功。
func (r Result) OK() bool { return r.Failure == nil }

// Kind 返回结果分类，成功时为 "SUCCESS"。
func (r Result) Kind() string {
	if r.Failure == nil {
		return "SUCCESS"
	}
	return string(r.Failure.Kind)
}

func success(call tool.Call, text string) Result {
	return Result{Tool: call.Tool, Action: string(call.Action), Text: text}
}

// classify 把适配器或校验返回的 error 归一化为失败分类。
func classify(err error, deadline FailureKind) *Failure {
	if err == nil {
		return nil
	}
	if stdErrors.Is(err, context.DeadlineExceeded) {
		return &Failure{Kind: deadline, Message: timeoutMessage}
	}
	msg := xerrors.MessageOf(err)
	switch code := xerrors.CodeOf(err); code {
	case xerrors.CodeUnknownTool, xerrors.CodeMissingArgument, xerrors.CodeInvalidArgument,
		xerrors.CodeAmbiguousEntity, xerrors.CodeNotFound, xerrors.CodeRateLimited,
		xerrors.CodeAdapterFailure, xerrors.CodeCompletionFailure:
		return &Failure{Kind: FailureKind(code), Message: msg}
	case xerrors.CodeTimeout:
		return &Failure{Kind: deadline, Message: timeoutMessage}
	default:
		return &Failure{Kind: deadline, Message: msg}
	}
}
