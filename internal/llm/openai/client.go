// Package openai 通过 Chat Completions 接口实现 llm.Client。
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	xerrors "AgentDesk/internal/errors"
	"AgentDesk/internal/llm"
)

const (
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultModelName = "gpt-4o-mini"
	defaultTimeout   = 60 * time.Second

	maxErrorBody = 4 << 10
)

// Config 是 OpenAI 兼容服务的连接参数。BaseURL 可以指向任何兼容网关。
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	Organization string
	Timeout      time.Duration
}

// Client 调用 Chat Completions。决策请求带 json_schema 响应格式，合成请求返回自由文本。
type Client struct {
	cfg        Config
	endpoint   string
	httpClient *http.Client
}

// NewClient 校验配置并补齐默认值。
func NewClient(cfg Config) (*Client, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIKey == "" {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "openai api key is required",
			xerrors.WithRetryable(false))
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model = strings.TrimSpace(cfg.Model); cfg.Model == "" {
		cfg.Model = defaultModelName
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		cfg:        cfg,
		endpoint:   cfg.BaseURL + "/chat/completions",
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type jsonSchemaFormat struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
}

type responseFormat struct {
	Type       string            `json:"type"`
	JSONSchema *jsonSchemaFormat `json:"json_schema,omitempty"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Generate 实现 llm.Client。
func (c *Client) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "completion request has no prompt")
	}
	payload, err := json.Marshal(c.newChatRequest(req))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeCompletionFailure, err, "encode openai request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeCompletionFailure, err, "build openai request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.Organization != "" {
		httpReq.Header.Set("OpenAI-Organization", c.cfg.Organization)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if stdErrors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return nil, xerrors.Wrap(xerrors.CodeTimeout, err, "openai request timed out")
		}
		return nil, xerrors.Wrap(xerrors.CodeCompletionFailure, err, "call openai", xerrors.WithRetryable(true))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, statusError(resp)
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeCompletionFailure, err, "decode openai response")
	}
	if len(decoded.Choices) == 0 {
		return nil, xerrors.New(xerrors.CodeCompletionFailure, "openai response has no choices")
	}
	content := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if content == "" {
		return nil, xerrors.New(xerrors.CodeCompletionFailure, "openai response is empty",
			xerrors.WithMetadata("finish_reason", decoded.Choices[0].FinishReason))
	}

	if req.OutputSchema == nil {
		return &llm.Response{Text: content}, nil
	}
	return llm.ParseDecision(content), nil
}

func (c *Client) newChatRequest(req llm.Request) chatRequest {
	out := chatRequest{
		Model:       c.cfg.Model,
		Temperature: req.Temperature,
		Messages: []chatMessage{
			{Role: "system", Content: synthesisSystemPrompt},
			{Role: "user", Content: req.Prompt},
		},
	}
	if req.OutputSchema != nil {
		out.Messages[0].Content = decisionSystemPrompt
		out.ResponseFormat = &responseFormat{
			Type:       "json_schema",
			JSONSchema: &jsonSchemaFormat{Name: "agent_decision", Schema: req.OutputSchema},
		}
	}
	return out
}

// statusError 把 HTTP 错误映射到错误码：429 与 5xx 可重试，其余视为请求本身有误。
func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	message := strings.TrimSpace(string(body))
	var decoded apiError
	if json.Unmarshal(body, &decoded) == nil && decoded.Error.Message != "" {
		message = decoded.Error.Message
	}

	retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError
	return xerrors.New(xerrors.CodeCompletionFailure,
		fmt.Sprintf("openai returned %d: %s", resp.StatusCode, message),
		xerrors.WithRetryable(retryable),
		xerrors.WithMetadata("status", strconv.Itoa(resp.StatusCode)),
		xerrors.WithMetadata("provider", "openai"),
	)
}

const (
	decisionSystemPrompt = "" +
		"You are the decision layer of a business assistant. " +
		"Always respond with a JSON object matching the supplied schema: " +
		"{\"response\": string, \"tool_to_call\": {\"name\": string, \"arguments\": object} | null}."
	synthesisSystemPrompt = "You are a helpful business assistant. Answer in plain natural language."
)
