package agent

import (
	"time"

	"AgentDesk/internal/tool"
)

// Observer 接收引擎的运行指标。
type Observer interface {
	ToolDispatched(name tool.Name, outcome string, elapsed time.Duration)
	CompletionFinished(stage string, elapsed time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) ToolDispatched(tool.Name, string, time.Duration)  {}
func (nopObserver) CompletionFinished(string, time.Duration, error) {}

const (
	stageDecision  = "decision"
	stageSynthesis = "synthesis"
)
