// Package agentdesk is a typed client for the AgentDesk REST API.
package agentdesk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"
)

// DefaultHTTPTimeout is used by clients created without a custom http.Client.
// Sending a message waits for up to two completions plus a tool call, so it is
// longer than a typical REST timeout.
const DefaultHTTPTimeout = 3 * time.Minute

// Client wraps the HTTP interactions with the AgentDesk API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// Agent is a configured agent profile.
type Agent struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Personality string `json:"personality,omitempty"`
}

// Tool describes a tool offered to the completion service.
type Tool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Integration string `json:"integration"`
}

// Turn is one entry of a conversation.
type Turn struct {
	Seq       int       `json:"seq"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is a conversation together with the tools it may use.
type Session struct {
	ID           string   `json:"id"`
	AgentID      string   `json:"agent_id"`
	Integrations []string `json:"integrations"`
	Tools        []Tool   `json:"tools"`
	State        string   `json:"state"`
	Turns        []Turn   `json:"turns"`
}

// SessionSummary is the list view of a session.
type SessionSummary struct {
	SessionID    string `json:"session_id"`
	AgentID      string `json:"agent_id"`
	Turns        int    `json:"turns"`
	LastActivity int64  `json:"last_activity"`
}

// OpenSessionRequest opens a new conversation.
type OpenSessionRequest struct {
	SessionID    string   `json:"session_id,omitempty"`
	AgentID      string   `json:"agent_id"`
	Integrations []string `json:"integrations,omitempty"`
}

// Failure describes a failed tool execution.
type Failure struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ToolResult is the outcome of a dispatched tool call.
type ToolResult struct {
	Tool    string   `json:"tool,omitempty"`
	Action  string   `json:"action,omitempty"`
	Text    string   `json:"text,omitempty"`
	Failure *Failure `json:"failure,omitempty"`
}

// MessageOutcome is returned after a user message has been handled.
type MessageOutcome struct {
	Path   string      `json:"path"`
	Turns  []Turn      `json:"turns"`
	Result *ToolResult `json:"result,omitempty"`
	Reply  string      `json:"reply"`
}

// Customer is a CRM record.
type Customer struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Company      string    `json:"company"`
	Phone        string    `json:"phone,omitempty"`
	Status       string    `json:"status"`
	Notes        string    `json:"notes,omitempty"`
	CustomField1 string    `json:"custom_field_1,omitempty"`
	CustomField2 string    `json:"custom_field_2,omitempty"`
	CustomField3 string    `json:"custom_field_3,omitempty"`
	CustomField4 string    `json:"custom_field_4,omitempty"`
	CustomField5 string    `json:"custom_field_5,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CustomerFilter narrows a customer listing. Empty filters return recent records.
type CustomerFilter struct {
	Name    string
	Email   string
	Company string
	Phone   string
	Status  string
	Limit   int
}

// CustomerPage is a customer listing.
type CustomerPage struct {
	Customers []Customer `json:"customers"`
	Total     int        `json:"total"`
}

// RunSubmission is the payload required to start a workflow run.
type RunSubmission struct {
	ID                 string   `json:"id,omitempty"`
	AgentID            string   `json:"agent_id"`
	TaskName           string   `json:"task_name,omitempty"`
	WorkflowDefinition string   `json:"workflow_definition"`
	ToolsToUse         []string `json:"tools_to_use,omitempty"`
}

// RunResult is the reply recorded for a finished run.
type RunResult struct {
	Reply   string `json:"reply"`
	Tool    string `json:"tool,omitempty"`
	Outcome string `json:"outcome,omitempty"`
}

// Run is a workflow run. Timestamps are Unix milliseconds.
type Run struct {
	ID                 string     `json:"id"`
	AgentID            string     `json:"agent_id"`
	TaskName           string     `json:"task_name"`
	WorkflowDefinition string     `json:"workflow_definition"`
	Integrations       []string   `json:"integrations,omitempty"`
	Status             string     `json:"status"`
	Attempts           int        `json:"attempts"`
	MaxRetries         int        `json:"max_retries"`
	LastError          string     `json:"last_error,omitempty"`
	ErrorCode          string     `json:"error_code,omitempty"`
	Result             *RunResult `json:"result,omitempty"`
	CreatedAt          int64      `json:"created_at"`
	UpdatedAt          int64      `json:"updated_at"`
}

// Finished reports whether the run reached a terminal status.
func (r Run) Finished() bool {
	return r.Status == "succeeded" || r.Status == "failed"
}

// RunQuery filters a run listing.
type RunQuery struct {
	Limit    int
	Offset   int
	Statuses []string
	AgentID  string
	Query    string
	Since    time.Time
}

// RunStats aggregates runs by status.
type RunStats struct {
	Total           int   `json:"total"`
	Pending         int   `json:"pending"`
	Running         int   `json:"running"`
	Succeeded       int   `json:"succeeded"`
	Failed          int   `json:"failed"`
	OldestUpdatedAt int64 `json:"oldest_updated_at,omitempty"`
	NewestUpdatedAt int64 `json:"newest_updated_at,omitempty"`
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("agentdesk api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("agentdesk api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the AgentDesk API. When httpClient is
// nil, a default client is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// Agents lists the configured agents.
func (c *Client) Agents(ctx context.Context) ([]Agent, error) {
	var out []Agent
	return out, c.get(ctx, "/api/v1/agents", nil, &out)
}

// Tools lists the tools available for the given integration toggles. Without
// toggles every registered tool is returned.
func (c *Client) Tools(ctx context.Context, integrations ...string) ([]Tool, error) {
	query := url.Values{}
	if len(integrations) > 0 {
		query.Set("integrations", strings.Join(integrations, ","))
	}
	var out []Tool
	return out, c.get(ctx, "/api/v1/tools", query, &out)
}

// OpenSession starts a conversation with an agent.
func (c *Client) OpenSession(ctx context.Context, req OpenSessionRequest) (Session, error) {
	var out Session
	return out, c.post(ctx, "/api/v1/sessions", req, &out)
}

// Session fetches a session and its turns.
func (c *Client) Session(ctx context.Context, id string) (Session, error) {
	var out Session
	return out, c.get(ctx, "/api/v1/sessions/"+id, nil, &out)
}

// Sessions lists recent sessions.
func (c *Client) Sessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var out []SessionSummary
	return out, c.get(ctx, "/api/v1/sessions", query, &out)
}

// CloseSession ends a session. Closing an unknown session is not an error.
func (c *Client) CloseSession(ctx context.Context, id string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/api/v1/sessions/"+id, nil, nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// SendMessage submits one user utterance and waits for the agent reply.
func (c *Client) SendMessage(ctx context.Context, sessionID, text string) (MessageOutcome, error) {
	var out MessageOutcome
	body := map[string]string{"text": text}
	return out, c.post(ctx, "/api/v1/sessions/"+sessionID+"/messages", body, &out)
}

// Customers lists CRM records.
func (c *Client) Customers(ctx context.Context, filter CustomerFilter) (CustomerPage, error) {
	query := url.Values{}
	for key, value := range map[string]string{
		"name":    filter.Name,
		"email":   filter.Email,
		"company": filter.Company,
		"phone":   filter.Phone,
		"status":  filter.Status,
	} {
		if value != "" {
			query.Set(key, value)
		}
	}
	if filter.Limit > 0 {
		query.Set("limit", strconv.Itoa(filter.Limit))
	}
	var out CustomerPage
	return out, c.get(ctx, "/api/v1/customers", query, &out)
}

// SubmitRun queues a workflow run.
func (c *Client) SubmitRun(ctx context.Context, submission RunSubmission) (Run, error) {
	var out Run
	return out, c.post(ctx, "/api/v1/runs", submission, &out)
}

// Run fetches a workflow run by identifier.
func (c *Client) Run(ctx context.Context, id string) (Run, error) {
	var out Run
	return out, c.get(ctx, "/api/v1/runs/"+id, nil, &out)
}

// Runs lists workflow runs.
func (c *Client) Runs(ctx context.Context, q RunQuery) ([]Run, error) {
	var out []Run
	return out, c.get(ctx, "/api/v1/runs", q.values(), &out)
}

// RunStats aggregates workflow runs matching the query.
func (c *Client) RunStats(ctx context.Context, q RunQuery) (RunStats, error) {
	var out RunStats
	return out, c.get(ctx, "/api/v1/runs/stats", q.values(), &out)
}

// WaitForRun polls a run until it finishes or ctx is done.
func (c *Client) WaitForRun(ctx context.Context, id string, interval time.Duration) (Run, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		run, err := c.Run(ctx, id)
		if err != nil {
			return Run{}, err
		}
		if run.Finished() {
			return run, nil
		}
		select {
		case <-ctx.Done():
			return run, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (q RunQuery) values() url.Values {
	query := url.Values{}
	if q.Limit > 0 {
		query.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		query.Set("offset", strconv.Itoa(q.Offset))
	}
	if len(q.Statuses) > 0 {
		query.Set("status", strings.Join(q.Statuses, ","))
	}
	if q.AgentID != "" {
		query.Set("agent_id", q.AgentID)
	}
	if q.Query != "" {
		query.Set("q", q.Query)
	}
	if !q.Since.IsZero() {
		query.Set("since", q.Since.UTC().Format(time.RFC3339))
	}
	return query
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, query url.Values, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, query, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, query url.Values, body io.Reader) (*http.Request, error) {
	u := *c.baseURL
	u.Path = path.Join(c.baseURL.Path, endpoint)
	u.RawPath = ""
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &struct {
				Error *APIError `json:"error"`
			}{Error: apiErr}); err != nil {
				_ = json.Unmarshal(data, apiErr)
			}
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
