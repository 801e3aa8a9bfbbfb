// Package errors 定义带错误码的统一错误类型。
//
// 每个错误码在注册表里带有默认的提示、严重程度和重试语义；
// 调用方通过 CodeOf、RetryableError 等函数判断任意 error，不需要关心包裹层数。
package errors

import (
	stdErrors "errors"
	"fmt"
	"log/slog"
	"maps"
)

// Error 是带错误码的错误。零值不可用，请使用 New 或 Wrap。
type Error struct {
	code     Code
	message  string
	cause    error
	metadata map[string]string

	retryable *bool
	severity  *Severity
}

// Option 调整单个错误的属性。
type Option func(*Error)

// WithMetadata 附加一条键值信息，会出现在日志和告警里。
func WithMetadata(key, value string) Option {
	return func(e *Error) {
		if e.metadata == nil {
			e.metadata = make(map[string]string, 2)
		}
		e.metadata[key] = value
	}
}

// WithRetryable 覆盖错误码默认的重试语义。
func WithRetryable(retryable bool) Option {
	return func(e *Error) { e.retryable = &retryable }
}

// WithSeverity 覆盖错误码默认的严重程度。
func WithSeverity(sev Severity) Option {
	return func(e *Error) { e.severity = &sev }
}

// New 创建错误；message 为空时使用错误码的默认提示。
func New(code Code, message string, opts ...Option) *Error {
	e := &Error{code: code, message: message}
	if e.message == "" {
		e.message = AttributesOf(code).Message
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Wrap 用错误码包裹 cause。cause 为 nil 时等同于 New。
func Wrap(code Code, cause error, message string, opts ...Option) *Error {
	e := New(code, message, opts...)
	e.cause = cause
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause == nil {
		return fmt.Sprintf("[%s] %s", e.code, e.message)
	}
	return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is 按错误码比较，因此 errors.Is(err, ErrX) 对同码的不同实例都成立。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e != nil && t != nil && e.code == t.code
}

// LogValue 让错误在 slog 中展开为结构化字段。
func (e *Error) LogValue() slog.Value {
	if e == nil {
		return slog.StringValue("")
	}
	attrs := []slog.Attr{
		slog.String("code", string(e.code)),
		slog.String("message", e.message),
	}
	if e.cause != nil {
		attrs = append(attrs, slog.String("cause", e.cause.Error()))
	}
	for k, v := range e.metadata {
		attrs = append(attrs, slog.String(k, v))
	}
	return slog.GroupValue(attrs...)
}

// Code 返回错误码。
func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

// Message 返回不含错误码前缀的提示，可直接展示给用户。
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Metadata 返回附加信息的副本。
func (e *Error) Metadata() map[string]string {
	if e == nil || len(e.metadata) == 0 {
		return nil
	}
	return maps.Clone(e.metadata)
}

func (e *Error) Retryable() bool {
	switch {
	case e == nil:
		return false
	case e.retryable != nil:
		return *e.retryable
	default:
		return AttributesOf(e.code).Retryable
	}
}

func (e *Error) Severity() Severity {
	switch {
	case e == nil:
		return SeverityInfo
	case e.severity != nil:
		return *e.severity
	default:
		return AttributesOf(e.code).Severity
	}
}

// From 在错误链中查找第一个 *Error。
func From(err error) (*Error, bool) {
	var target *Error
	if err == nil || !stdErrors.As(err, &target) {
		return nil, false
	}
	return target, true
}

// CodeOf 返回错误码，链中没有 *Error 时返回 UNKNOWN。
func CodeOf(err error) Code {
	e, _ := From(err)
	return e.Code()
}

// MessageOf 返回适合展示的提示；普通 error 返回 err.Error()。
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	if e, ok := From(err); ok {
		return e.Message()
	}
	return err.Error()
}

// MetadataOf 返回错误链中第一个 *Error 的附加信息。
func MetadataOf(err error) map[string]string {
	e, _ := From(err)
	return e.Metadata()
}

// RetryableError 判断任意 error 是否可重试。
func RetryableError(err error) bool {
	e, _ := From(err)
	return e.Retryable()
}

// ShouldAlert 判断错误码是否需要告警。普通 error 不告警。
func ShouldAlert(err error) bool {
	e, ok := From(err)
	return ok && AttributesOf(e.Code()).Alert
}

// SeverityOf 返回严重程度；普通 error 按 UNKNOWN 处理。
func SeverityOf(err error) Severity {
	if e, ok := From(err); ok {
		return e.Severity()
	}
	return AttributesOf(CodeUnknown).Severity
}
