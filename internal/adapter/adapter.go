// Package adapter 定义工具调用的执行端。
//
// 适配器负责把领域结果格式化为人类可读的文本；调度器只关心成功文本或错误。
package adapter

import (
	"context"
	"fmt"
	"sync"

	xerrors "AgentDesk/internal/errors"
	"AgentDesk/internal/tool"
)

// Adapter 执行一次经过校验的工具调用。
type Adapter interface {
	Invoke(ctx context.Context, call tool.Call) (string, error)
}

// Func 允许以函数形式实现 Adapter。
type Func func(ctx context.Context, call tool.Call) (string, error)

// Invoke 实现 Adapter。
func (f Func) Invoke(ctx context.Context, call tool.Call) (string, error) {
	return f(ctx, call)
}

// Set 按工具名索引适配器。
type Set struct {
	mu       sync.RWMutex
	adapters map[tool.Name]Adapter
}

// NewSet 创建空的适配器集合。
func NewSet() *Set {
	return &Set{adapters: make(map[tool.Name]Adapter)}
}

// Register 注册适配器，同名覆盖。
func (s *Set) Register(name tool.Name, a Adapter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adapters[name] = a
}

// Lookup 返回工具对应的适配器。
func (s *Set) Lookup(name tool.Name) (Adapter, bool) {
	if s == nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.adapters[name]
	return a, ok
}

// Names 返回已注册的工具名。
func (s *Set) Names() []tool.Name {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]tool.Name, 0, len(s.adapters))
	for name := range s.adapters {
		names = append(names, name)
	}
	return names
}

// UnsupportedAction 返回适配器不支持某个 action 时的统一错误。
func UnsupportedAction(call tool.Call) error {
	return xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("unsupported action %q for %s", call.Action, call.Tool))
}

// WrongArguments 表示调用携带的参数类型与工具不符，属于编程错误。
func WrongArguments(call tool.Call) error {
	return xerrors.New(xerrors.CodeAdapterFailure, fmt.Sprintf("unexpected arguments %T for %s", call.Arguments, call.Tool))
}
