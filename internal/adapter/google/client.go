// Package google 通过 HTTP functions 后端访问邮件、日历、文件、表格与文档服务。
//
// 每个服务对应一个 manage_* 工具。请求体为 {action, ...参数}，响应体为
// {success, error, code, ...载荷}。
package google

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	xerrors "AgentDesk/internal/errors"
	"AgentDesk/internal/tool"
)

const (
	defaultTimeout = 30 * time.Second
	// rateLimitCode 是 functions 后端表示配额耗尽的错误码。
	rateLimitCode = "RATE_LIMIT_EXCEEDED"
)

// Config 描述 functions 后端。
type Config struct {
	BaseURL string        `json:"base_url" yaml:"base_url"`
	APIKey  string        `json:"api_key" yaml:"api_key"`
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
	// RatePerSecond 为 0 时不做客户端限流。
	RatePerSecond float64 `json:"rate_per_second" yaml:"rate_per_second"`
	Burst         int     `json:"burst" yaml:"burst"`
}

// Client 是 functions 后端的 HTTP 客户端。
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Option 自定义客户端。
type Option func(*Client)

// WithHTTPClient 替换底层 HTTP 客户端。
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		if c != nil {
			client.httpClient = c
		}
	}
}

// WithLimiter 替换客户端限流器。
func WithLimiter(l *rate.Limiter) Option {
	return func(client *Client) {
		client.limiter = l
	}
}

// NewClient 创建 functions 客户端。
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "functions base url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := &Client{
		baseURL:    base,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		client.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

type envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`

	Emails    []message `json:"emails"`
	Email     *message  `json:"email"`
	Events    []event   `json:"events"`
	Event     *event    `json:"event"`
	Available *bool     `json:"available"`
	Files     []file    `json:"files"`
	File      *file     `json:"file"`
	Content   string    `json:"content"`
	Values    [][]any   `json:"values"`
	Document  *document `json:"document"`
}

type message struct {
	ID      string `json:"id"`
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Date    string `json:"date"`
	Snippet string `json:"snippet"`
	Body    string `json:"body"`
}

type event struct {
	ID       string `json:"id"`
	Summary  string `json:"summary"`
	Start    string `json:"start"`
	End      string `json:"end"`
	HTMLLink string `json:"htmlLink"`
}

type file struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MimeType    string `json:"mimeType"`
	WebViewLink string `json:"webViewLink"`
}

type document struct {
	ID      string `json:"documentId"`
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// call 向指定服务发送一次请求。
func (c *Client) call(ctx context.Context, service string, call tool.Call) (*envelope, error) {
	if c.limiter != nil && !c.limiter.Allow() {
		return nil, xerrors.New(xerrors.CodeRateLimited,
			fmt.Sprintf("%s quota exhausted, please try again shortly", service),
			xerrors.WithMetadata("service", service))
	}

	payload := make(map[string]any, len(call.Raw)+1)
	for k, v := range call.Raw {
		payload[k] = v
	}
	payload["action"] = string(call.Action)
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeAdapterFailure, err, "encode functions request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/google/"+service, bytes.NewReader(body))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeAdapterFailure, err, "build functions request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, xerrors.Wrap(xerrors.CodeAdapterFailure, err, fmt.Sprintf("%s request failed", service))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeAdapterFailure, err, fmt.Sprintf("read %s response", service))
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode == http.StatusTooManyRequests || env.Code == rateLimitCode {
		msg := env.Error
		if msg == "" {
			msg = fmt.Sprintf("%s rate limit exceeded, please try again shortly", service)
		}
		return nil, xerrors.New(xerrors.CodeRateLimited, msg, xerrors.WithMetadata("service", service))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		msg := env.Error
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return nil, xerrors.New(xerrors.CodeAdapterFailure,
			fmt.Sprintf("%s returned status %d: %s", service, resp.StatusCode, msg),
			xerrors.WithMetadata("service", service))
	}
	if decodeErr != nil {
		return nil, xerrors.Wrap(xerrors.CodeAdapterFailure, decodeErr, fmt.Sprintf("decode %s response", service))
	}
	if !env.Success {
		msg := env.Error
		if msg == "" {
			msg = "unknown error"
		}
		return nil, xerrors.New(xerrors.CodeAdapterFailure, msg, xerrors.WithMetadata("service", service))
	}
	return &env, nil
}
