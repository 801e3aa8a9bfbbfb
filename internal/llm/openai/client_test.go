package openai

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "AgentDesk/internal/errors"
	"AgentDesk/internal/llm"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{APIKey: " test ", BaseURL: srv.URL + "/", Organization: "org-1", Timeout: time.Second})
	require.NoError(t, err)
	client.httpClient = srv.Client()
	return client
}

func reply(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"choices": []map[string]any{{"message": map[string]any{"role": "assistant", "content": content}, "finish_reason": "stop"}},
	})
}

func TestNewClientDefaults(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Equal(t, xerrors.CodeInitializationFailure, xerrors.CodeOf(err))

	client, err := NewClient(Config{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, defaultBaseURL+"/chat/completions", client.endpoint)
	assert.Equal(t, defaultModelName, client.cfg.Model)
	assert.Equal(t, defaultTimeout, client.httpClient.Timeout)
}

func TestGenerateDecision(t *testing.T) {
	var (
		headers http.Header
		body    chatRequest
	)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		assert.Equal(t, "/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		reply(w, "```json\n{\"response\":\"Looking up Dana\",\"tool_to_call\":{\"name\":\"manage_crm\",\"arguments\":{\"action\":\"search_customers\",\"name\":\"Dana\"}}}\n```")
	})

	resp, err := client.Generate(t.Context(), llm.Request{Prompt: "find Dana", OutputSchema: llm.DecisionSchema()})
	require.NoError(t, err)
	assert.Equal(t, "Looking up Dana", resp.Text)
	require.NotNil(t, resp.ToolCall)
	assert.Equal(t, "manage_crm", resp.ToolCall.Name)
	assert.Equal(t, "Dana", resp.ToolCall.Arguments["name"])

	assert.Equal(t, "Bearer test", headers.Get("Authorization"))
	assert.Equal(t, "org-1", headers.Get("OpenAI-Organization"))
	assert.Equal(t, defaultModelName, body.Model)
	assert.Zero(t, body.Temperature)
	require.NotNil(t, body.ResponseFormat)
	assert.Equal(t, "json_schema", body.ResponseFormat.Type)
	assert.Equal(t, decisionSystemPrompt, body.Messages[0].Content)
	assert.Equal(t, "find Dana", body.Messages[1].Content)
}

func TestGenerateSynthesisReturnsPlainText(t *testing.T) {
	var body map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		reply(w, `{"response":"not parsed"}`)
	})

	resp, err := client.Generate(t.Context(), llm.Request{Prompt: "summarise", Temperature: 0.7})
	require.NoError(t, err)
	assert.Equal(t, `{"response":"not parsed"}`, resp.Text)
	assert.Nil(t, resp.ToolCall)
	assert.NotContains(t, body, "response_format")
	assert.InDelta(t, 0.7, body["temperature"], 1e-9)
}

func TestGenerateStatusErrors(t *testing.T) {
	cases := []struct {
		status    int
		retryable bool
	}{
		{http.StatusBadRequest, false},
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
	}
	for _, tc := range cases {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte(`{"error":{"message":"quota exceeded","type":"requests"}}`))
		})
		_, err := client.Generate(t.Context(), llm.Request{Prompt: "hi"})
		require.Error(t, err)
		assert.Equal(t, xerrors.CodeCompletionFailure, xerrors.CodeOf(err), "status %d", tc.status)
		assert.Equal(t, tc.retryable, xerrors.RetryableError(err), "status %d", tc.status)
		assert.Contains(t, xerrors.MessageOf(err), "quota exceeded")
		assert.Equal(t, "openai", xerrors.MetadataOf(err)["provider"])
	}
}

func TestGenerateEmptyResponses(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	})
	_, err := client.Generate(t.Context(), llm.Request{Prompt: "hi"})
	assert.Equal(t, xerrors.CodeCompletionFailure, xerrors.CodeOf(err))

	client = newTestClient(t, func(w http.ResponseWriter, r *http.Request) { reply(w, "   ") })
	_, err = client.Generate(t.Context(), llm.Request{Prompt: "hi"})
	assert.Equal(t, "stop", xerrors.MetadataOf(err)["finish_reason"])
}

func TestGenerateRequiresPrompt(t *testing.T) {
	client, err := NewClient(Config{APIKey: "test"})
	require.NoError(t, err)
	_, err = client.Generate(t.Context(), llm.Request{Prompt: "  "})
	assert.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))
}
