// Package langchain adapts any langchaingo model to the llm.Client contract.
package langchain

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	lcopenai "github.com/tmc/langchaingo/llms/openai"

	"AgentDesk/internal/llm"
)

// Config 描述 langchain 提供方的连接参数。
type Config struct {
	// Backend 取值 ollama 或 openai（任意 OpenAI 兼容服务）。
	Backend   string
	Model     string
	ServerURL string
	APIKey    string
}

// Client 通过 langchaingo 模型生成回复。
type Client struct {
	model llms.Model
}

// New 包装已有的 langchaingo 模型。
func New(model llms.Model) (*Client, error) {
	if model == nil {
		return nil, errors.New("langchain model is required")
	}
	return &Client{model: model}, nil
}

// NewFromConfig 按配置构造底层模型。
func NewFromConfig(cfg Config) (*Client, error) {
	var (
		model llms.Model
		err   error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", "ollama":
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.ServerURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.ServerURL))
		}
		model, err = ollama.New(opts...)
	case "openai":
		opts := []lcopenai.Option{lcopenai.WithModel(cfg.Model)}
		if cfg.APIKey != "" {
			opts = append(opts, lcopenai.WithToken(cfg.APIKey))
		}
		if cfg.ServerURL != "" {
			opts = append(opts, lcopenai.WithBaseURL(cfg.ServerURL))
		}
		model, err = lcopenai.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported langchain backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("init langchain %s backend: %w", cfg.Backend, err)
	}
	return New(model)
}

// Generate 实现 llm.Client。带 schema 的请求开启 JSON 模式并按决策结构解析。
func (c *Client) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, errors.New("completion request has no prompt")
	}

	opts := []llms.CallOption{llms.WithTemperature(req.Temperature)}
	if req.OutputSchema != nil {
		opts = append(opts, llms.WithJSONMode())
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt),
	}
	result, err := c.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return nil, fmt.Errorf("langchain generate: %w", err)
	}
	if result == nil || len(result.Choices) == 0 {
		return nil, errors.New("langchain response has no choices")
	}

	content := strings.TrimSpace(result.Choices[0].Content)
	if content == "" {
		return nil, errors.New("langchain response is empty")
	}
	if req.OutputSchema == nil {
		return &llm.Response{Text: content}, nil
	}
	return llm.ParseDecision(content), nil
}
