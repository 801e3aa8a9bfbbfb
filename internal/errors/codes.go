package errors

import "sync"

// Code 是跨模块统一的错误码，同时出现在 API 响应、运行记录和告警里。
type Code string

const (
	CodeUnknown               Code = "UNKNOWN"
	CodeInvalidArgument       Code = "INVALID_ARGUMENT"
	CodeConflict              Code = "CONFLICT"
	CodeInitializationFailure Code = "INITIALIZATION_FAILURE"
	CodeStorageFailure        Code = "STORAGE_FAILURE"
	CodeQueueFailure          Code = "QUEUE_FAILURE"
	CodeTimeout               Code = "TIMEOUT"
	CodeSessionBusy           Code = "SESSION_BUSY"

	// 工具编排的失败分类。
	CodeUnknownTool       Code = "UNKNOWN_TOOL"
	CodeMissingArgument   Code = "MISSING_ARGUMENT"
	CodeAmbiguousEntity   Code = "AMBIGUOUS_ENTITY"
	CodeNotFound          Code = "NOT_FOUND"
	CodeAdapterFailure    Code = "ADAPTER_FAILURE"
	CodeRateLimited       Code = "RATE_LIMITED"
	CodeCompletionFailure Code = "COMPLETION_SERVICE_FAILURE"
)

// Severity 决定告警级别。
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Attributes 是错误码的默认行为，单个错误可以通过 Option 覆盖 Retryable 与 Severity。
type Attributes struct {
	Message  string
	Severity Severity
	// Retryable 表示同一请求稍后重放可能成功，工作流队列据此决定是否重新投递。
	Retryable bool
	Alert     bool
	// Recoverable 表示用户可以通过补充输入在下一轮对话中解决该错误。
	Recoverable bool
}

var (
	registryMu sync.RWMutex
	registry   = map[Code]Attributes{
		CodeUnknown:               {Message: "unknown error", Severity: SeverityCritical, Alert: true},
		CodeInvalidArgument:       {Message: "invalid argument", Severity: SeverityInfo, Recoverable: true},
		CodeConflict:              {Message: "resource conflict", Severity: SeverityWarning},
		CodeInitializationFailure: {Message: "service not initialized", Severity: SeverityWarning, Retryable: true, Alert: true},
		CodeStorageFailure:        {Message: "storage failure", Severity: SeverityCritical, Retryable: true, Alert: true},
		CodeQueueFailure:          {Message: "queue failure", Severity: SeverityCritical, Retryable: true, Alert: true},
		CodeTimeout:               {Message: "timeout", Severity: SeverityWarning, Retryable: true, Alert: true},
		CodeSessionBusy:           {Message: "session is processing another turn", Severity: SeverityInfo},
		CodeUnknownTool:           {Message: "unknown tool", Severity: SeverityInfo},
		CodeMissingArgument:       {Message: "missing required argument", Severity: SeverityInfo, Recoverable: true},
		CodeAmbiguousEntity:       {Message: "more than one record matches", Severity: SeverityInfo, Recoverable: true},
		CodeNotFound:              {Message: "resource not found", Severity: SeverityInfo, Recoverable: true},
		CodeAdapterFailure:        {Message: "adapter failure", Severity: SeverityWarning, Alert: true},
		CodeRateLimited:           {Message: "rate limited", Severity: SeverityWarning},
		CodeCompletionFailure:     {Message: "completion service failure", Severity: SeverityWarning, Alert: true},
	}
)

// Register 在初始化阶段登记或覆盖错误码。已登记的码可被再次覆盖，以最后一次为准。
func Register(code Code, attr Attributes) {
	registryMu.Lock()
	registry[code] = attr
	registryMu.Unlock()
}

// AttributesOf 返回错误码的属性，未登记的码按 UNKNOWN 处理。
func AttributesOf(code Code) Attributes {
	registryMu.RLock()
	defer registryMu.RUnlock()
	attr, ok := registry[code]
	if !ok {
		attr = registry[CodeUnknown]
	}
	return attr
}

// Registered 报告错误码是否已登记。
func Registered(code Code) bool {
	registryMu.RLock()
	_, ok := registry[code]
	registryMu.RUnlock()
	return ok
}
