package tool

import (
	"fmt"

	xerrors "AgentDesk/internal/errors"
)

// ActiveTools 返回会话启用的集成所对应的工具，顺序与注册表一致。
func ActiveTools(r *Registry, enabled []Integration) []Descriptor {
	if r == nil {
		return nil
	}
	tags := r.Expand(enabled)
	var out []Descriptor
	for _, desc := range r.Descriptors() {
		if _, ok := tags[desc.Integration]; ok {
			out = append(out, desc)
		}
	}
	return out
}

// ActiveSet 是单个会话可用的工具子集，也是原始工具名进入系统的唯一边界。
type ActiveSet struct {
	registry *Registry
	tools    []Descriptor
	index    map[Name]Descriptor
}

// NewActiveSet 基于会话的集成开关构建可用工具集合。
func NewActiveSet(r *Registry, enabled []Integration) *ActiveSet {
	tools := ActiveTools(r, enabled)
	index := make(map[Name]Descriptor, len(tools))
	for _, desc := range tools {
		index[desc.Name] = desc
	}
	return &ActiveSet{registry: r, tools: tools, index: index}
}

// Descriptors 返回可用工具描述。
func (s *ActiveSet) Descriptors() []Descriptor {
	return append([]Descriptor(nil), s.tools...)
}

// Len 返回可用工具数量。
func (s *ActiveSet) Len() int { return len(s.tools) }

// Resolve 把补全服务给出的工具名映射到可用工具，不在集合内时返回 UNKNOWN_TOOL。
func (s *ActiveSet) Resolve(raw string) (Descriptor, error) {
	name, ok := ParseName(raw)
	if ok {
		if desc, active := s.index[name]; active {
			return desc, nil
		}
	}
	return Descriptor{}, xerrors.New(xerrors.CodeUnknownTool,
		fmt.Sprintf("tool %q is not available in this conversation", raw),
		xerrors.WithMetadata("tool", raw))
}

// Prepare 解析工具名并校验参数。
func (s *ActiveSet) Prepare(raw string, args map[string]any) (Call, error) {
	desc, err := s.Resolve(raw)
	if err != nil {
		return Call{}, err
	}
	return s.registry.Validate(desc, args)
}
