package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"AgentDesk/internal/adapter"
	"AgentDesk/internal/adapter/crm"
	"AgentDesk/internal/customer"
	xerrors "AgentDesk/internal/errors"
	"AgentDesk/internal/llm"
	"AgentDesk/internal/storage/mysql"
	"AgentDesk/internal/tool"
)

type step func(ctx context.Context, req llm.Request) (*llm.Response, error)

// scriptedLLM 依次返回预设的补全结果，并记录收到的请求。
type scriptedLLM struct {
	mu       sync.Mutex
	steps    []step
	requests []llm.Request
}

func (s *scriptedLLM) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	if len(s.steps) == 0 {
		s.mu.Unlock()
		return nil, errors.New("unexpected completion call")
	}
	next := s.steps[0]
	s.steps = s.steps[1:]
	s.mu.Unlock()
	return next(ctx, req)
}

func (s *scriptedLLM) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func decide(text, name string, args map[string]any) step {
	return func(context.Context, llm.Request) (*llm.Response, error) {
		resp := &llm.Response{Text: text}
		if name != "" {
			resp.ToolCall = &llm.ToolCall{Name: name, Arguments: args}
		}
		return resp, nil
	}
}

func say(text string) step {
	return func(context.Context, llm.Request) (*llm.Response, error) {
		return &llm.Response{Text: text}, nil
	}
}

func fail(err error) step {
	return func(context.Context, llm.Request) (*llm.Response, error) {
		return nil, err
	}
}

// spyAdapter 记录调用次数，可替换真实适配器。
type spyAdapter struct {
	calls atomic.Int32
	fn    func(ctx context.Context, call tool.Call) (string, error)
}

func (s *spyAdapter) Invoke(ctx context.Context, call tool.Call) (string, error) {
	s.calls.Add(1)
	if s.fn == nil {
		return "ok", nil
	}
	return s.fn(ctx, call)
}

var testProfile = Profile{ID: "sales", Name: "Maya", Personality: "friendly"}

func seedStore() *customer.MemoryStore {
	return customer.NewMemoryStore(
		customer.Record{ID: "c-1", Name: "Dana Levi", Email: "dana@acme.io", Company: "Acme", Status: customer.StatusLead},
		customer.Record{ID: "c-2", Name: "Dana Levi", Email: "dana.levi@globex.com", Company: "Globex", Status: customer.StatusCustomer},
		customer.Record{ID: "c-3", Name: "Yossi Cohen", Email: "yossi@initech.com", Company: "Initech", Phone: "03-5550000", Status: customer.StatusProspect},
	)
}

type fixture struct {
	llm     *scriptedLLM
	manager *SessionManager
	session *Session
}

func newFixture(t *testing.T, adapters *adapter.Set, integrations []tool.Integration, steps []step, opts ...Option) *fixture {
	t.Helper()
	client := &scriptedLLM{steps: steps}
	engine := New(client, tool.MustDefault(), adapters, opts...)
	manager := NewSessionManager(engine, []Profile{testProfile})
	sess, err := manager.Open(context.Background(), OpenRequest{AgentID: "sales", Integrations: integrations})
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	return &fixture{llm: client, manager: manager, session: sess}
}

func (f *fixture) send(t *testing.T, text string) *Outcome {
	t.Helper()
	out, err := f.manager.Send(context.Background(), f.session.ID(), text)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	return out
}

func crmAdapters(store customer.Store) *adapter.Set {
	set := adapter.NewSet()
	set.Register(tool.NameCRM, crm.New(customer.NewResolver(store)))
	return set
}

func crmOnly() []tool.Integration { return []tool.Integration{tool.IntegrationCRM} }

func TestNoActionAppendsExactlyOneAgentTurn(t *testing.T) {
	f := newFixture(t, adapter.NewSet(), crmOnly(), []step{decide("Hello there!", "", nil)})
	before := f.session.conv.Len()

	out := f.send(t, "hi")
	turns := f.session.Turns()
	if len(turns) != before+2 {
		t.Fatalf("expected user + agent turn, got %d new", len(turns)-before)
	}
	last := turns[len(turns)-1]
	if last.Sender != SenderAgent || last.Text != "Hello there!" {
		t.Fatalf("unexpected agent turn: %+v", last)
	}
	if out.Path != StateNoAction || out.Result != nil {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if f.session.State() != StateIdle {
		t.Fatalf("session must return to idle, got %s", f.session.State())
	}
}

func TestNoActionWithBlankTextUsesFallbackReply(t *testing.T) {
	f := newFixture(t, adapter.NewSet(), crmOnly(), []step{decide("  ", "", nil)})
	before := f.session.conv.Len()

	out := f.send(t, "hmm")
	turns := f.session.Turns()
	if len(turns) != before+2 {
		t.Fatalf("expected user + agent turn, got %d new", len(turns)-before)
	}
	last := turns[len(turns)-1]
	if out.Reply != FallbackReply || last.Sender != SenderAgent || last.Text != FallbackReply {
		t.Fatalf("expected fallback reply, got %q / %+v", out.Reply, last)
	}
}

func TestDecisionRequestUsesSchemaAndDeterministicTemperature(t *testing.T) {
	f := newFixture(t, adapter.NewSet(), crmOnly(), []step{decide("ok", "", nil)})
	f.send(t, "hi")

	req := f.llm.requests[0]
	if req.OutputSchema == nil || req.Temperature != 0 {
		t.Fatalf("unexpected decision request: schema=%v temperature=%v", req.OutputSchema != nil, req.Temperature)
	}
	if !strings.Contains(req.Prompt, `"name": "manage_crm"`) || strings.Contains(req.Prompt, `"name": "manage_gmail"`) {
		t.Fatalf("prompt must only list active tools")
	}
	if !strings.Contains(req.Prompt, "No knowledge base provided.") {
		t.Fatalf("prompt must carry the empty knowledge placeholder")
	}
}

func TestUnknownToolNeverReachesAdapter(t *testing.T) {
	spy := &spyAdapter{}
	set := adapter.NewSet()
	set.Register(tool.NameGmail, spy)
	f := newFixture(t, set, crmOnly(), []step{
		decide("Sending now", "manage_gmail", map[string]any{"action": "send_email", "to": "a@b.c", "subject": "x", "body": "y"}),
	})

	out := f.send(t, "email a@b.c")
	if out.Result == nil || out.Result.Failure == nil || out.Result.Failure.Kind != FailureUnknownTool {
		t.Fatalf("expected UNKNOWN_TOOL, got %+v", out.Result)
	}
	if spy.calls.Load() != 0 {
		t.Fatalf("adapter must not be invoked")
	}
	if f.llm.calls() != 1 {
		t.Fatalf("no synthesis on failure, got %d completion calls", f.llm.calls())
	}
}

func TestMissingArgumentNeverReachesAdapter(t *testing.T) {
	spy := &spyAdapter{}
	set := adapter.NewSet()
	set.Register(tool.NameCRM, spy)
	f := newFixture(t, set, crmOnly(), []step{
		decide("", "manage_crm", map[string]any{"action": "create_customer", "name": "Noa"}),
	})

	out := f.send(t, "add Noa")
	if out.Result.Failure == nil || out.Result.Failure.Kind != FailureMissingArgument {
		t.Fatalf("expected MISSING_ARGUMENT, got %+v", out.Result)
	}
	if spy.calls.Load() != 0 {
		t.Fatalf("adapter must not be invoked")
	}
	turns := f.session.Turns()
	if turns[len(turns)-2].Text != DefaultAcknowledgement {
		t.Fatalf("expected default acknowledgement, got %q", turns[len(turns)-2].Text)
	}
}

func TestScenarioASearchListsBothRecords(t *testing.T) {
	f := newFixture(t, crmAdapters(seedStore()), crmOnly(), []step{
		decide("Looking up Dana", "manage_crm", map[string]any{"action": "search_customers", "name": "Dana Levi"}),
		fail(errors.New("synthesis down")),
	})

	out := f.send(t, "Who is Dana Levi?")
	if !out.Result.OK() {
		t.Fatalf("search must succeed, got %+v", out.Result.Failure)
	}
	if !strings.Contains(out.Reply, "Found 2 customers") || !strings.Contains(out.Reply, "c-1") || !strings.Contains(out.Reply, "c-2") {
		t.Fatalf("raw tool text expected after synthesis failure, got %q", out.Reply)
	}
}

func TestScenarioAUpdateIsAmbiguous(t *testing.T) {
	store := seedStore()
	f := newFixture(t, crmAdapters(store), crmOnly(), []step{
		decide("Updating", "manage_crm", map[string]any{
			"action": "update_customer", "name": "Dana Levi", "data_to_update": map[string]any{"status": "churned"},
		}),
	})

	out := f.send(t, "Mark Dana Levi as churned")
	if out.Result.Failure == nil || out.Result.Failure.Kind != FailureAmbiguousEntity {
		t.Fatalf("expected AMBIGUOUS_ENTITY, got %+v", out.Result)
	}
	if !strings.Contains(out.Reply, "c-1") || !strings.Contains(out.Reply, "c-2") {
		t.Fatalf("reply must list both candidates verbatim: %q", out.Reply)
	}
	if strings.HasPrefix(out.Reply, "Sorry") {
		t.Fatalf("ambiguity is surfaced without an apology: %q", out.Reply)
	}
}

func TestScenarioBUpdateByName(t *testing.T) {
	store := seedStore()
	f := newFixture(t, crmAdapters(store), crmOnly(), []step{
		decide("Updating Yossi", "manage_crm", map[string]any{
			"action": "update_customer", "name": "Yossi Cohen", "data_to_update": map[string]any{"phone": "050-1234567"},
		}),
		say("Done! Yossi's phone is now 050-1234567."),
	})

	out := f.send(t, "Add phone 050-1234567 to Yossi Cohen")
	if !out.Result.OK() || out.Path != StateSynthesizing {
		t.Fatalf("expected success, got %+v", out)
	}
	if out.Reply != "Done! Yossi's phone is now 050-1234567." {
		t.Fatalf("unexpected reply: %q", out.Reply)
	}
	rec, err := store.Get(context.Background(), "c-3")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Phone != "050-1234567" || rec.Email != "yossi@initech.com" || rec.Status != customer.StatusProspect {
		t.Fatalf("unexpected record: %+v", rec)
	}

	synth := f.llm.requests[1]
	if synth.OutputSchema != nil || !strings.Contains(synth.Prompt, "Add phone 050-1234567 to Yossi Cohen") {
		t.Fatalf("unexpected synthesis request: %+v", synth)
	}
}

func TestScenarioCGetUnknownIDIsSuccess(t *testing.T) {
	f := newFixture(t, crmAdapters(seedStore()), crmOnly(), []step{
		decide("Checking", "manage_crm", map[string]any{"action": "get_customer_by_id", "customer_id": "nope"}),
		say("I couldn't find that customer."),
	})

	out := f.send(t, "Get customer nope")
	if !out.Result.OK() || !strings.Contains(out.Result.Text, "No customer found") {
		t.Fatalf("expected success not-found text, got %+v", out.Result)
	}
}

func TestScenarioDDeleteWithoutReference(t *testing.T) {
	spy := &spyAdapter{}
	set := adapter.NewSet()
	set.Register(tool.NameCRM, spy)
	f := newFixture(t, set, crmOnly(), []step{
		decide("Deleting", "manage_crm", map[string]any{"action": "delete_customer"}),
	})

	out := f.send(t, "delete that customer")
	if out.Result.Failure == nil || out.Result.Failure.Kind != FailureMissingArgument {
		t.Fatalf("expected MISSING_ARGUMENT, got %+v", out.Result)
	}
	if spy.calls.Load() != 0 {
		t.Fatalf("adapter must not be invoked")
	}
}

func TestScenarioEAdapterTimeout(t *testing.T) {
	spy := &spyAdapter{fn: func(ctx context.Context, call tool.Call) (string, error) {
		time.Sleep(200 * time.Millisecond)
		return "late", nil
	}}
	set := adapter.NewSet()
	set.Register(tool.NameCRM, spy)
	f := newFixture(t, set, crmOnly(), []step{
		decide("One moment", "manage_crm", map[string]any{"action": "list_recent_customers"}),
	}, WithAdapterTimeout(20*time.Millisecond))
	before := f.session.conv.Len()

	out := f.send(t, "show recent customers")
	if out.Result.Failure == nil || out.Result.Failure.Kind != FailureAdapter || out.Result.Failure.Message != "timeout" {
		t.Fatalf("expected ADAPTER_FAILURE timeout, got %+v", out.Result)
	}
	if f.llm.calls() != 1 {
		t.Fatalf("no synthesis after failure, got %d completion calls", f.llm.calls())
	}
	// 用户轮次、过渡回复、致歉各一条。
	turns := f.session.Turns()
	if len(turns)-before != 3 {
		t.Fatalf("expected 3 new turns, got %d", len(turns)-before)
	}
	if !strings.HasPrefix(turns[len(turns)-1].Text, "Sorry") || !strings.HasSuffix(turns[len(turns)-1].Text, "timeout") {
		t.Fatalf("unexpected apology: %q", turns[len(turns)-1].Text)
	}
}

func TestCompletionFailureYieldsOneAgentTurn(t *testing.T) {
	f := newFixture(t, adapter.NewSet(), crmOnly(), []step{fail(errors.New("upstream 503"))})
	before := f.session.conv.Len()

	out := f.send(t, "hi")
	if out.Result == nil || out.Result.Failure.Kind != FailureCompletionService {
		t.Fatalf("expected COMPLETION_SERVICE_FAILURE, got %+v", out.Result)
	}
	if f.session.conv.Len()-before != 2 {
		t.Fatalf("expected user turn and one agent turn")
	}
	if !strings.Contains(out.Reply, "upstream 503") {
		t.Fatalf("reply must carry the message: %q", out.Reply)
	}
}

func TestCompletionTimeout(t *testing.T) {
	slow := func(ctx context.Context, req llm.Request) (*llm.Response, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	f := newFixture(t, adapter.NewSet(), crmOnly(), []step{slow}, WithCompletionTimeout(10*time.Millisecond))

	out := f.send(t, "hi")
	if out.Result.Failure.Kind != FailureCompletionService || out.Result.Failure.Message != "timeout" {
		t.Fatalf("expected completion timeout, got %+v", out.Result.Failure)
	}
}

func TestAdapterPanicAndRateLimit(t *testing.T) {
	set := adapter.NewSet()
	set.Register(tool.NameCRM, adapter.Func(func(context.Context, tool.Call) (string, error) {
		panic("boom")
	}))
	set.Register(tool.NameDrive, adapter.Func(func(context.Context, tool.Call) (string, error) {
		return "", xerrors.New(xerrors.CodeRateLimited, "drive quota exceeded")
	}))
	f := newFixture(t, set, []tool.Integration{tool.IntegrationCRM, tool.IntegrationGoogle}, []step{
		decide("", "manage_crm", map[string]any{"action": "list_recent_customers"}),
		decide("", "manage_drive", map[string]any{"action": "search_files", "query": "q3"}),
	})

	out := f.send(t, "recent")
	if out.Result.Failure == nil || out.Result.Failure.Kind != FailureAdapter {
		t.Fatalf("panic must become ADAPTER_FAILURE, got %+v", out.Result)
	}
	out = f.send(t, "find q3")
	if out.Result.Failure == nil || out.Result.Failure.Kind != FailureRateLimited {
		t.Fatalf("expected RATE_LIMITED, got %+v", out.Result)
	}
}

func TestSessionBusyRejectsConcurrentTurn(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	blocking := func(ctx context.Context, req llm.Request) (*llm.Response, error) {
		close(started)
		<-release
		return &llm.Response{Text: "done"}, nil
	}
	f := newFixture(t, adapter.NewSet(), crmOnly(), []step{blocking})

	errCh := make(chan error, 1)
	go func() {
		_, err := f.manager.Send(context.Background(), f.session.ID(), "first")
		errCh <- err
	}()
	<-started

	before := f.session.conv.Len()
	_, err := f.manager.Send(context.Background(), f.session.ID(), "second")
	if xerrors.CodeOf(err) != xerrors.CodeSessionBusy {
		t.Fatalf("expected SESSION_BUSY, got %v", err)
	}
	if f.session.conv.Len() != before {
		t.Fatalf("rejected turn must not change the conversation")
	}
	if f.session.State() != StateDeciding {
		t.Fatalf("expected deciding state, got %s", f.session.State())
	}
	close(release)
	if err := <-errCh; err != nil {
		t.Fatalf("first turn: %v", err)
	}
}

type denyLease struct{}

func (denyLease) Acquire(context.Context, string) (func(), error) {
	return nil, xerrors.New(xerrors.CodeSessionBusy, "held elsewhere")
}

func TestLeaseRejection(t *testing.T) {
	engine := New(&scriptedLLM{}, tool.MustDefault(), adapter.NewSet())
	manager := NewSessionManager(engine, []Profile{testProfile}, WithLease(denyLease{}))
	sess, err := manager.Open(context.Background(), OpenRequest{AgentID: "sales"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := manager.Send(context.Background(), sess.ID(), "hi"); xerrors.CodeOf(err) != xerrors.CodeSessionBusy {
		t.Fatalf("expected SESSION_BUSY, got %v", err)
	}
}

func TestSessionPersistsAndRestores(t *testing.T) {
	repo, err := mysql.NewMemoryConversationRepository(t.TempDir())
	if err != nil {
		t.Fatalf("repo: %v", err)
	}
	engine := New(&scriptedLLM{steps: []step{decide("Hello!", "", nil)}}, tool.MustDefault(), adapter.NewSet())
	manager := NewSessionManager(engine, []Profile{testProfile}, WithRepository(repo))

	sess, err := manager.Open(context.Background(), OpenRequest{AgentID: "sales", Integrations: crmOnly()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if turns := sess.Turns(); len(turns) != 1 || !strings.Contains(turns[0].Text, "Maya") {
		t.Fatalf("expected greeting, got %+v", turns)
	}
	if _, err := manager.Send(context.Background(), sess.ID(), "hi"); err != nil {
		t.Fatalf("send: %v", err)
	}

	manager.Close(sess.ID())
	restored, err := manager.Open(context.Background(), OpenRequest{SessionID: sess.ID(), AgentID: "sales"})
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	turns := restored.Turns()
	if len(turns) != 3 || turns[1].Text != "hi" || turns[2].Text != "Hello!" {
		t.Fatalf("unexpected restored turns: %+v", turns)
	}

	summaries, err := manager.Summaries(context.Background(), 10)
	if err != nil || len(summaries) != 1 || summaries[0].Turns != 3 {
		t.Fatalf("unexpected summaries: %+v %v", summaries, err)
	}
}

func TestOpenUnknownAgentAndEmptyMessage(t *testing.T) {
	f := newFixture(t, adapter.NewSet(), crmOnly(), nil)
	if _, err := f.manager.Open(context.Background(), OpenRequest{AgentID: "ghost"}); xerrors.CodeOf(err) != xerrors.CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
	if _, err := f.manager.Send(context.Background(), f.session.ID(), "   "); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected INVALID_ARGUMENT, got %v", err)
	}
	if f.llm.calls() != 0 {
		t.Fatalf("empty message must not reach the completion service")
	}
}

func TestProfileTemperatureOverride(t *testing.T) {
	temp := 0.3
	p := Profile{ID: "x", Temperature: &temp}
	if p.decisionTemperature() != 0.3 || p.synthesisTemperature() != 0.3 {
		t.Fatalf("override not applied")
	}
	if (Profile{}).decisionTemperature() != DefaultDecisionTemperature {
		t.Fatalf("decision default must be deterministic")
	}
}
