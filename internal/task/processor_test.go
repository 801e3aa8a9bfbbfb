package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	xerrors "AgentDesk/internal/errors"
	"AgentDesk/internal/observability/alerting"
)

type fakeExecutor struct {
	processed atomic.Int32
	latency   time.Duration
	fn        func(task *Task) (ExecutionResult, error)
}

func (f *fakeExecutor) Execute(ctx context.Context, task *Task) (ExecutionResult, error) {
	if f.latency > 0 {
		select {
		case <-time.After(f.latency):
		case <-ctx.Done():
			return ExecutionResult{}, ctx.Err()
		}
	}
	f.processed.Add(1)
	if f.fn != nil {
		return f.fn(task)
	}
	return ExecutionResult{Reply: "done: " + task.WorkflowDefinition, Outcome: "no_action"}, nil
}

type recordingAlerts struct {
	mu     sync.Mutex
	events []alerting.Event
}

func (r *recordingAlerts) Notify(_ context.Context, event alerting.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingAlerts) all() []alerting.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]alerting.Event(nil), r.events...)
}

func TestProcessorHandlesConcurrentTasks(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(1024)
	executor := &fakeExecutor{latency: 10 * time.Millisecond}

	service := NewService(store, queue, 3)
	processor := NewProcessor(executor, store, queue, queue, WithWorkerCount(8))

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := processor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("processor exited: %v", err)
		}
	}()

	total := 200
	for i := 0; i < total; i++ {
		req := SubmitRequest{AgentID: "sales", TaskName: fmt.Sprintf("run-%d", i), WorkflowDefinition: fmt.Sprintf("workflow %d", i)}
		if _, err := service.Submit(ctx, req); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}

	deadline := time.After(5 * time.Second)
	for int(executor.processed.Load()) < total {
		select {
		case <-deadline:
			t.Fatalf("runs not processed in time, finished %d", executor.processed.Load())
		case <-time.After(50 * time.Millisecond):
		}
	}
	cancel()
	<-done

	stats, err := service.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Succeeded != total {
		t.Fatalf("expected %d succeeded runs, got %+v", total, stats)
	}
}

func TestProcessorRetriesRetryableFailures(t *testing.T) {
	store := NewMemoryStore()
	queue := NewMemoryQueue(8)
	alerts := &recordingAlerts{}
	executor := &fakeExecutor{fn: func(task *Task) (ExecutionResult, error) {
		return ExecutionResult{Reply: "Sorry, something went wrong while handling your request: quota", Outcome: string(xerrors.CodeRateLimited)},
			xerrors.New(xerrors.CodeRateLimited, "quota", xerrors.WithRetryable(true))
	}}
	service := NewService(store, queue, 2)
	processor := NewProcessor(executor, store, queue, queue, WithAlertDispatcher(alerts))

	ctx := context.Background()
	run, err := service.Submit(ctx, SubmitRequest{AgentID: "sales", WorkflowDefinition: "send the report"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// 第一次失败重新入队，第二次耗尽重试。
	for attempt := 1; attempt <= 2; attempt++ {
		id := <-queue.ch
		if err := processor.Handle(ctx, id); err != nil {
			t.Fatalf("attempt %d: %v", attempt, err)
		}
	}
	select {
	case id := <-queue.ch:
		t.Fatalf("run %s should not be requeued after the last attempt", id)
	default:
	}

	got, err := service.Get(ctx, run.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusFailed || got.Attempts != 2 || got.ErrorCode != string(xerrors.CodeRateLimited) {
		t.Fatalf("unexpected run state: %+v", got)
	}
	if got.LastError != "quota" || got.Result == nil || got.Result.Reply == "" {
		t.Fatalf("failure details not recorded: %+v", got)
	}

	events := alerts.all()
	if len(events) != 1 || events[0].RunID != run.ID || events[0].Metadata["stage"] != "terminal" {
		t.Fatalf("expected one terminal alert, got %+v", events)
	}
}

func TestProcessorDoesNotRetryPermanentFailures(t *testing.T) {
	store := NewMemoryStore()
	queue := NewMemoryQueue(8)
	alerts := &recordingAlerts{}
	executor := &fakeExecutor{fn: func(*Task) (ExecutionResult, error) {
		return ExecutionResult{Reply: "Multiple customers match"}, xerrors.New(xerrors.CodeAmbiguousEntity, "Multiple customers match")
	}}
	service := NewService(store, queue, 3)
	processor := NewProcessor(executor, store, queue, queue, WithAlertDispatcher(alerts))

	ctx := context.Background()
	run, err := service.Submit(ctx, SubmitRequest{AgentID: "sales", WorkflowDefinition: "update Dana"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := processor.Handle(ctx, <-queue.ch); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(queue.ch) != 0 {
		t.Fatalf("permanent failure must not be requeued")
	}
	got, _ := service.Get(ctx, run.ID)
	if got.Status != StatusFailed || got.Attempts != 1 {
		t.Fatalf("unexpected run state: %+v", got)
	}
	if events := alerts.all(); len(events) != 1 || events[0].Metadata["stage"] != "non_retryable" {
		t.Fatalf("unexpected alerts: %+v", events)
	}

	// 已完成或不存在的任务直接跳过。
	if err := processor.Handle(ctx, "unknown"); err != nil {
		t.Fatalf("unknown run should be skipped: %v", err)
	}
}

func TestServiceSubmitValidationAndIdempotency(t *testing.T) {
	store := NewMemoryStore()
	queue := NewMemoryQueue(8)
	service := NewService(store, queue, 0)
	ctx := context.Background()

	if _, err := service.Submit(ctx, SubmitRequest{AgentID: "sales"}); xerrors.CodeOf(err) != CodeTaskValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := service.Submit(ctx, SubmitRequest{WorkflowDefinition: "x"}); xerrors.CodeOf(err) != CodeTaskValidation {
		t.Fatalf("expected validation error, got %v", err)
	}

	req := SubmitRequest{ID: "fixed", AgentID: "sales", WorkflowDefinition: "list customers", ToolsToUse: []string{"crm", "google"}}
	first, err := service.Submit(ctx, req)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if first.MaxRetries != DefaultMaxRetries || first.TaskName != "workflow" || len(first.Integrations) != 2 {
		t.Fatalf("unexpected run: %+v", first)
	}
	second, err := service.Submit(ctx, req)
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if second.ID != first.ID || len(queue.ch) != 1 {
		t.Fatalf("resubmission should not enqueue twice")
	}

	queue.Close()
	if _, err := service.Submit(ctx, SubmitRequest{AgentID: "sales", WorkflowDefinition: "again"}); xerrors.CodeOf(err) != CodeTaskPublish {
		t.Fatalf("expected publish failure, got %v", err)
	}
	failed, err := service.List(ctx, WithStatuses(StatusFailed))
	if err != nil || len(failed) != 1 || failed[0].ErrorCode != string(CodeTaskPublish) {
		t.Fatalf("publish failure should be recorded: %+v %v", failed, err)
	}
}
