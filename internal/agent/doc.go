// Package agent 实现对话式工具编排引擎。
//
// 每个用户轮次依次经过决策、校验、分发，以及可选的结果合成：
//
//	Idle → Deciding → (NoAction | Executing) → (Synthesizing | Idle)
//
// 会话之间不共享可变状态；同一会话内的轮次严格串行。
package agent
