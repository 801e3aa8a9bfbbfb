package agentdesk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AgentDesk/internal/adapter"
	"AgentDesk/internal/adapter/crm"
	"AgentDesk/internal/agent"
	"AgentDesk/internal/api"
	"AgentDesk/internal/customer"
	"AgentDesk/internal/llm"
	"AgentDesk/internal/task"
	"AgentDesk/internal/tool"
)

// searchingClient asks for a CRM search on every decision and echoes the tool
// output during synthesis.
func searchingClient() llm.Client {
	return llm.ClientFunc(func(_ context.Context, req llm.Request) (*llm.Response, error) {
		if req.OutputSchema != nil {
			return &llm.Response{ToolCall: &llm.ToolCall{
				Name:      "manage_crm",
				Arguments: map[string]any{"action": "search_customers", "name": "Dana"},
			}}, nil
		}
		return &llm.Response{Text: "Dana Levi works at Acme."}, nil
	})
}

func newTestServer(t *testing.T) *Client {
	t.Helper()
	store := customer.NewMemoryStore(
		customer.Record{ID: "c-1", Name: "Dana Levi", Email: "dana@acme.io", Company: "Acme", Status: customer.StatusLead},
	)
	resolver := customer.NewResolver(store)
	adapters := adapter.NewSet()
	adapters.Register(tool.NameCRM, crm.New(resolver))

	engine := agent.New(searchingClient(), tool.MustDefault(), adapters)
	sessions := agent.NewSessionManager(engine, []agent.Profile{{ID: "sales", Name: "Maya", Greeting: "Hi, I'm Maya."}})

	runStore := task.NewMemoryStore()
	queue := task.NewMemoryQueue(16)
	runs := task.NewService(runStore, queue, 2)
	processor := task.NewProcessor(task.NewEngineExecutor(sessions), runStore, queue, queue, task.WithWorkerCount(2))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = processor.Start(ctx)
	}()

	srv := httptest.NewServer(api.NewServer(":0", api.Dependencies{
		Sessions:  sessions,
		Tasks:     runs,
		Customers: resolver,
	}).Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})

	client, err := NewClient(srv.URL, srv.Client())
	require.NoError(t, err)
	return client
}

func TestConversationRoundTrip(t *testing.T) {
	client := newTestServer(t)
	ctx := context.Background()

	agents, err := client.Agents(ctx)
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, "Maya", agents[0].Name)

	tools, err := client.Tools(ctx, "crm")
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "manage_crm", tools[0].Name)

	sess, err := client.OpenSession(ctx, OpenSessionRequest{AgentID: "sales", Integrations: []string{"crm"}})
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)

	outcome, err := client.SendMessage(ctx, sess.ID, "who is Dana?")
	require.NoError(t, err)
	assert.Equal(t, "synthesizing", outcome.Path)
	require.NotNil(t, outcome.Result)
	assert.Nil(t, outcome.Result.Failure)
	assert.Equal(t, "manage_crm", outcome.Result.Tool)
	assert.Equal(t, "Dana Levi works at Acme.", outcome.Reply)

	fetched, err := client.Session(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "idle", fetched.State)
	assert.GreaterOrEqual(t, len(fetched.Turns), 2)

	summaries, err := client.Sessions(ctx, 10)
	require.NoError(t, err)
	assert.NotEmpty(t, summaries)

	require.NoError(t, client.CloseSession(ctx, sess.ID))
	_, err = client.Session(ctx, sess.ID)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestCustomersListing(t *testing.T) {
	client := newTestServer(t)

	page, err := client.Customers(context.Background(), CustomerFilter{})
	require.NoError(t, err)
	require.Len(t, page.Customers, 1)
	assert.Equal(t, "dana@acme.io", page.Customers[0].Email)

	page, err = client.Customers(context.Background(), CustomerFilter{Name: "Nobody"})
	require.NoError(t, err)
	assert.Empty(t, page.Customers)
}

func TestWorkflowRunCompletes(t *testing.T) {
	client := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	run, err := client.SubmitRun(ctx, RunSubmission{
		AgentID:            "sales",
		TaskName:           "lookup",
		WorkflowDefinition: "Find Dana in the CRM",
		ToolsToUse:         []string{"crm"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)

	finished, err := client.WaitForRun(ctx, run.ID, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "succeeded", finished.Status)
	require.NotNil(t, finished.Result)
	assert.Equal(t, "Dana Levi works at Acme.", finished.Result.Reply)

	runs, err := client.Runs(ctx, RunQuery{AgentID: "sales", Statuses: []string{"succeeded"}})
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	stats, err := client.RunStats(ctx, RunQuery{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Succeeded)
}

func TestAPIErrorDecoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"code": "SESSION_BUSY", "message": "a turn is already in progress"},
		})
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	require.NoError(t, err)

	_, err = client.SendMessage(context.Background(), "s-1", "hello")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.StatusCode)
	assert.Equal(t, "SESSION_BUSY", apiErr.Code)
}

func TestRunQueryValues(t *testing.T) {
	since := time.Date(2024, 1, 15, 14, 0, 0, 0, time.UTC)
	values := RunQuery{Limit: 5, Offset: 10, Statuses: []string{"pending", "failed"}, Query: "dana", Since: since}.values()
	assert.Equal(t, "5", values.Get("limit"))
	assert.Equal(t, "10", values.Get("offset"))
	assert.Equal(t, "pending,failed", values.Get("status"))
	assert.Equal(t, "dana", values.Get("q"))
	assert.Equal(t, "2024-01-15T14:00:00Z", values.Get("since"))
}
