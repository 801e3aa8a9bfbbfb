package agent

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"strings"
	"time"

	"AgentDesk/internal/adapter"
	xerrors "AgentDesk/internal/errors"
	"AgentDesk/internal/knowledge"
	"AgentDesk/internal/llm"
	"AgentDesk/internal/prompt"
	"AgentDesk/internal/tool"
	"AgentDesk/pkg/logger"
)

// DefaultAcknowledgement 是决策未给出文本时使用的过渡回复。
const DefaultAcknowledgement = "Working on it..."

// FallbackReply 是无需调用工具且决策文本为空时的回复。
const FallbackReply = "Sorry, I didn't catch that. Could you tell me a bit more?"

// DefaultCompletionTimeout 是单次补全调用的默认上限。
const DefaultCompletionTimeout = 60 * time.Second

// Engine 协调补全服务与适配器，处理单个用户轮次。
type Engine struct {
	llmClient         llm.Client
	registry          *tool.Registry
	adapters          *adapter.Set
	knowledge         knowledge.Provider
	completionTimeout time.Duration
	adapterTimeout    time.Duration
	observer          Observer
	now               func() time.Time

	dispatcher *Dispatcher
}

// Option 定义可选的 Engine 配置。
type Option func(*Engine)

// WithCompletionTimeout 设置补全调用的超时时间。
func WithCompletionTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		e.completionTimeout = timeout
	}
}

// WithAdapterTimeout 设置适配器调用的超时时间。
func WithAdapterTimeout(timeout time.Duration) Option {
	return func(e *Engine) {
		e.adapterTimeout = timeout
	}
}

// WithKnowledgeProvider 配置默认知识库，智能体自带知识库时优先使用后者。
func WithKnowledgeProvider(provider knowledge.Provider) Option {
	return func(e *Engine) {
		e.knowledge = provider
	}
}

// WithObserver 配置指标观察者。
func WithObserver(observer Observer) Option {
	return func(e *Engine) {
		if observer != nil {
			e.observer = observer
		}
	}
}

// WithClock 替换时间来源，主要用于测试。
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// New 创建引擎。
func New(client llm.Client, registry *tool.Registry, adapters *adapter.Set, opts ...Option) *Engine {
	e := &Engine{
		llmClient:         client,
		registry:          registry,
		adapters:          adapters,
		completionTimeout: DefaultCompletionTimeout,
		adapterTimeout:    DefaultAdapterTimeout,
		observer:          nopObserver{},
		now:               time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if e.completionTimeout <= 0 {
		e.completionTimeout = DefaultCompletionTimeout
	}
	e.dispatcher = NewDispatcher(e.adapters, e.adapterTimeout, e.observer)
	return e
}

// Registry 返回引擎使用的工具注册表。
func (e *Engine) Registry() *tool.Registry { return e.registry }

// Outcome 汇总一个用户轮次的处理结果。
type Outcome struct {
	// Path 是本轮经过的终止状态：no_action、synthesizing 或 executing（失败时）。
	Path State `json:"path"`
	// Turns 是本轮新增的轮次，第一条为用户轮次。
	Turns  []Turn  `json:"turns"`
	Result *Result `json:"result,omitempty"`
	// Reply 是本轮最后一条智能体回复。
	Reply string `json:"reply"`
}

// HandleTurn 处理一条用户输入。调用方负责保证同一会话不会并发调用。
func (e *Engine) HandleTurn(ctx context.Context, sess *Session, utterance string) (*Outcome, error) {
	if e.llmClient == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "completion client is not configured")
	}
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "message must not be empty")
	}

	history := sess.conv.lines()
	out := &Outcome{}
	out.Turns = append(out.Turns, sess.append(ctx, SenderUser, utterance, e.now()))
	defer sess.setState(StateIdle)

	reply := func(text string) {
		out.Turns = append(out.Turns, sess.append(ctx, SenderAgent, text, e.now()))
		out.Reply = text
	}

	sess.setState(StateDeciding)
	decision, failure := e.decide(ctx, sess, history, utterance)
	if failure != nil {
		out.Path = StateDeciding
		out.Result = &Result{Failure: failure}
		reply(failure.Reply())
		return out, nil
	}

	if decision.ToolCall == nil {
		sess.setState(StateNoAction)
		out.Path = StateNoAction
		text := strings.TrimSpace(decision.Text)
		if text == "" {
			text = FallbackReply
		}
		reply(text)
		return out, nil
	}

	sess.setState(StateExecuting)
	ack := strings.TrimSpace(decision.Text)
	if ack == "" {
		ack = DefaultAcknowledgement
	}
	reply(ack)

	result := e.dispatcher.Dispatch(ctx, sess.active, *decision.ToolCall)
	out.Result = &result
	if !result.OK() {
		out.Path = StateExecuting
		reply(result.Failure.Reply())
		return out, nil
	}

	sess.setState(StateSynthesizing)
	out.Path = StateSynthesizing
	reply(e.synthesize(ctx, sess, utterance, result))
	return out, nil
}

func (e *Engine) decide(ctx context.Context, sess *Session, history []prompt.Line, utterance string) (*llm.Response, *Failure) {
	text, err := prompt.BuildDecision(prompt.DecisionInput{
		Persona:   sess.profile.persona(),
		History:   history,
		Tools:     sess.active.Descriptors(),
		Knowledge: e.knowledgeText(sess.profile, utterance),
		Utterance: utterance,
	})
	if err != nil {
		return nil, &Failure{Kind: FailureCompletionService, Message: err.Error()}
	}

	resp, err := e.complete(ctx, stageDecision, llm.Request{
		Prompt:       text,
		OutputSchema: llm.DecisionSchema(),
		Temperature:  sess.profile.decisionTemperature(),
	})
	if err != nil {
		logger.L().Warn("决策调用失败",
			slog.String("session_id", sess.id),
			slog.Any("error", err))
		return nil, completionFailure(err)
	}
	return resp, nil
}

func (e *Engine) synthesize(ctx context.Context, sess *Session, utterance string, result Result) string {
	resp, err := e.complete(ctx, stageSynthesis, llm.Request{
		Prompt: prompt.BuildSynthesis(prompt.SynthesisInput{
			Persona:   sess.profile.persona(),
			Utterance: utterance,
			Tool:      result.Tool,
			Result:    result.Text,
		}),
		Temperature: sess.profile.synthesisTemperature(),
	})
	if err != nil || strings.TrimSpace(resp.Text) == "" {
		logger.L().Warn("结果合成失败，直接返回工具结果",
			slog.String("session_id", sess.id),
			slog.String("tool", string(result.Tool)),
			slog.Any("error", err))
		return result.Text
	}
	return resp.Text
}

func (e *Engine) complete(ctx context.Context, stage string, req llm.Request) (*llm.Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.completionTimeout)
	defer cancel()

	start := time.Now()
	resp, err := e.llmClient.Generate(callCtx, req)
	if err == nil && resp == nil {
		err = xerrors.New(xerrors.CodeCompletionFailure, "completion service returned no response")
	}
	e.observer.CompletionFinished(stage, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (e *Engine) knowledgeText(profile Profile, utterance string) string {
	provider := profile.Knowledge
	if provider == nil {
		provider = e.knowledge
	}
	if provider == nil {
		return ""
	}
	return knowledge.Render(provider.Query(utterance))
}

func completionFailure(err error) *Failure {
	if stdErrors.Is(err, context.DeadlineExceeded) || xerrors.CodeOf(err) == xerrors.CodeTimeout {
		return &Failure{Kind: FailureCompletionService, Message: timeoutMessage}
	}
	return &Failure{Kind: FailureCompletionService, Message: xerrors.MessageOf(err)}
}
