package agent

import (
	"sync"
	"time"

	"AgentDesk/internal/prompt"
)

// Sender 标识轮次的发送方。
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAgent Sender = "agent"
)

// Turn 是对话中的一条消息，追加后不再修改。
type Turn struct {
	Seq       int       `json:"seq"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation 是只追加的轮次序列。
type Conversation struct {
	mu    sync.RWMutex
	turns []Turn
}

// NewConversation 以已有轮次初始化对话，用于从持久化存储恢复。
func NewConversation(turns ...Turn) *Conversation {
	return &Conversation{turns: append([]Turn(nil), turns...)}
}

// Append 追加一条轮次并返回带序号的副本。
func (c *Conversation) Append(sender Sender, text string, at time.Time) Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	turn := Turn{Seq: len(c.turns) + 1, Sender: sender, Text: text, Timestamp: at.UTC()}
	c.turns = append(c.turns, turn)
	return turn
}

// Turns 返回全部轮次的副本。
func (c *Conversation) Turns() []Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Turn(nil), c.turns...)
}

// Len 返回轮次数量。
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.turns)
}

// lines 转换为提示词使用的历史记录。
func (c *Conversation) lines() []prompt.Line {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]prompt.Line, 0, len(c.turns))
	for _, t := range c.turns {
		out = append(out, prompt.Line{Sender: string(t.Sender), Text: t.Text})
	}
	return out
}

// State 是单个会话的分发状态。
type State string

const (
	StateIdle         State = "idle"
	StateDeciding     State = "deciding"
	StateNoAction     State = "no_action"
	StateExecuting    State = "executing"
	StateSynthesizing State = "synthesizing"
)
