package agent

import (
	"strings"

	"AgentDesk/internal/knowledge"
	"AgentDesk/internal/prompt"
)

// DefaultDecisionTemperature 保证决策调用的输出可复现。
const DefaultDecisionTemperature = 0

// DefaultSynthesisTemperature 是结果合成调用的默认温度。
const DefaultSynthesisTemperature = 0.7

// Profile 描述一个智能体的人设与知识来源。
type Profile struct {
	ID           string
	Name         string
	Personality  string
	SystemPrompt string
	Greeting     string
	// Temperature 非空时同时覆盖决策与合成调用的温度。
	Temperature *float64
	Knowledge   knowledge.Provider
}

func (p Profile) persona() prompt.Persona {
	return prompt.Persona{Name: p.Name, Personality: p.Personality, SystemPrompt: p.SystemPrompt}
}

func (p Profile) decisionTemperature() float64 {
	if p.Temperature != nil {
		return *p.Temperature
	}
	return DefaultDecisionTemperature
}

func (p Profile) synthesisTemperature() float64 {
	if p.Temperature != nil {
		return *p.Temperature
	}
	return DefaultSynthesisTemperature
}

// greeting 返回会话开场白。
func (p Profile) greeting() string {
	if g := strings.TrimSpace(p.Greeting); g != "" {
		return g
	}
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return "Hi! How can I help you today?"
	}
	return "Hi! I'm " + name + ". How can I help you today?"
}
