package llm

import (
	"context"
	"encoding/json"
	"strings"
)

// Request 描述一次补全调用。OutputSchema 为空时表示自由文本（合成阶段）。
type Request struct {
	Prompt       string
	OutputSchema map[string]any
	Temperature  float64
}

// ToolCall 是补全服务选择的工具调用，名称仍是未经校验的原始字符串。
type ToolCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Response 是补全服务的归一化输出。
type Response struct {
	Text     string
	ToolCall *ToolCall
}

// Client 定义了调用补全服务的统一接口。
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// ClientFunc 允许以函数形式实现 Client。
type ClientFunc func(ctx context.Context, req Request) (*Response, error)

// Generate 实现 Client。
func (f ClientFunc) Generate(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// DecisionSchema 返回决策调用的输出结构。
func DecisionSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"response": map[string]any{
				"type":        "string",
				"description": "Reply shown to the user. When calling a tool, a short acknowledgement.",
			},
			"tool_to_call": map[string]any{
				"type":        []any{"object", "null"},
				"description": "The tool to call, or null when no tool is needed.",
				"properties": map[string]any{
					"name":      map[string]any{"type": "string"},
					"arguments": map[string]any{"type": "object"},
				},
				"required": []any{"name", "arguments"},
			},
		},
		"required": []any{"response"},
	}
}

// ParseDecision 解析补全服务返回的文本。
//
// 兼容被 Markdown 代码块包裹的 JSON；无法解析为 {"response": ...} 时整体视为回复文本。
func ParseDecision(content string) *Response {
	content = strings.TrimSpace(content)
	body := stripFence(content)

	var decoded struct {
		Response   *string   `json:"response"`
		ToolToCall *ToolCall `json:"tool_to_call"`
	}
	if err := json.Unmarshal([]byte(body), &decoded); err != nil || decoded.Response == nil {
		return &Response{Text: content}
	}

	resp := &Response{Text: strings.TrimSpace(*decoded.Response)}
	if decoded.ToolToCall != nil && strings.TrimSpace(decoded.ToolToCall.Name) != "" {
		call := *decoded.ToolToCall
		if call.Arguments == nil {
			call.Arguments = map[string]any{}
		}
		resp.ToolCall = &call
	}
	return resp
}

func stripFence(content string) string {
	if !strings.HasPrefix(content, "```") {
		return content
	}
	body := strings.TrimPrefix(content, "```")
	if idx := strings.IndexByte(body, '\n'); idx >= 0 {
		body = body[idx+1:]
	}
	body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	return strings.TrimSpace(body)
}
