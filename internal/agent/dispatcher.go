package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"AgentDesk/internal/adapter"
	"AgentDesk/internal/llm"
	"AgentDesk/internal/tool"
	"AgentDesk/pkg/logger"
)

// DefaultAdapterTimeout 是单次适配器调用的默认上限。
const DefaultAdapterTimeout = 30 * time.Second

// Dispatcher 校验工具调用并路由到适配器。
//
// 校验失败不会触达适配器；适配器的 panic 在此处恢复并归类为 ADAPTER_FAILURE。
type Dispatcher struct {
	adapters *adapter.Set
	timeout  time.Duration
	observer Observer
}

// NewDispatcher 创建分发器，timeout 非正时使用默认值。
func NewDispatcher(adapters *adapter.Set, timeout time.Duration, observer Observer) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultAdapterTimeout
	}
	if observer == nil {
		observer = nopObserver{}
	}
	if adapters == nil {
		adapters = adapter.NewSet()
	}
	return &Dispatcher{adapters: adapters, timeout: timeout, observer: observer}
}

// Dispatch 执行一次工具调用，总是返回两种结果之一。
func (d *Dispatcher) Dispatch(ctx context.Context, active *tool.ActiveSet, decision llm.ToolCall) Result {
	start := time.Now()
	call, err := active.Prepare(decision.Name, decision.Arguments)
	if err != nil {
		result := Result{Tool: tool.Name(decision.Name), Failure: classify(err, FailureAdapter)}
		d.observer.ToolDispatched(result.Tool, result.Kind(), time.Since(start))
		return result
	}

	result := d.invoke(ctx, call)
	elapsed := time.Since(start)
	d.observer.ToolDispatched(call.Tool, result.Kind(), elapsed)

	logger.Audit().Info("tool executed",
		slog.String("tool", string(call.Tool)),
		slog.String("action", string(call.Action)),
		slog.String("outcome", result.Kind()),
		slog.Duration("duration", elapsed),
	)
	return result
}

func (d *Dispatcher) invoke(ctx context.Context, call tool.Call) Result {
	impl, ok := d.adapters.Lookup(call.Tool)
	if !ok {
		return Result{Tool: call.Tool, Action: string(call.Action), Failure: &Failure{
			Kind:    FailureAdapter,
			Message: fmt.Sprintf("no adapter configured for %s", call.Tool),
		}}
	}

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	type outcome struct {
		text     string
		err      error
		panicked bool
	}
	// 缓冲为 1，超时返回后适配器协程仍可写入并退出。
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.L().Error("适配器发生 panic",
					slog.String("tool", string(call.Tool)),
					slog.Any("panic", r))
				done <- outcome{panicked: true}
			}
		}()
		text, err := impl.Invoke(callCtx, call)
		done <- outcome{text: text, err: err}
	}()

	select {
	case out := <-done:
		switch {
		case out.panicked:
			return Result{Tool: call.Tool, Action: string(call.Action), Failure: &Failure{
				Kind:    FailureAdapter,
				Message: fmt.Sprintf("%s failed unexpectedly", call.Tool),
			}}
		case out.err != nil:
			return Result{Tool: call.Tool, Action: string(call.Action), Failure: classify(out.err, FailureAdapter)}
		default:
			return success(call, out.text)
		}
	case <-callCtx.Done():
		return Result{Tool: call.Tool, Action: string(call.Action), Failure: classify(callCtx.Err(), FailureAdapter)}
	}
}
