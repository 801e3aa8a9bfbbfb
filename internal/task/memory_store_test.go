package task

import (
	"context"
	"testing"
	"time"

	xerrors "AgentDesk/internal/errors"
)

func seedStore(t *testing.T, store Store, tasks ...*Task) {
	t.Helper()
	for _, task := range tasks {
		if err := store.Create(context.Background(), task); err != nil {
			t.Fatalf("create task %s: %v", task.ID, err)
		}
	}
}

func TestMemoryStoreListWithFilters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Now().Add(-2 * time.Minute)

	seedStore(t, store,
		&Task{ID: "t1", AgentID: "sales", TaskName: "weekly digest", WorkflowDefinition: "list recent customers", Status: StatusPending, MaxRetries: 3},
		&Task{ID: "t2", AgentID: "sales", TaskName: "follow up", WorkflowDefinition: "email Dana", Status: StatusPending, MaxRetries: 3},
		&Task{ID: "t3", AgentID: "support", TaskName: "report", WorkflowDefinition: "read the sheet", Status: StatusPending, MaxRetries: 3},
	)

	if err := store.MarkFailed(ctx, "t2", xerrors.CodeAdapterFailure, "gmail unavailable", nil); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := store.MarkSucceeded(ctx, "t3", ExecutionResult{Reply: "Sheet summary", Tool: "manage_sheets", Outcome: "SUCCESS"}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	store.mu.Lock()
	store.tasks["t1"].UpdatedAt = base.UnixMilli()
	store.tasks["t2"].UpdatedAt = base.Add(30 * time.Second).UnixMilli()
	store.tasks["t3"].UpdatedAt = base.Add(60 * time.Second).UnixMilli()
	store.mu.Unlock()

	all, err := store.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 || all[0].ID != "t3" {
		t.Fatalf("expected newest task first, got %+v", all)
	}

	failed, err := store.List(ctx, BuildListOptions([]ListOption{WithStatuses(StatusFailed)}))
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != "t2" || failed[0].ErrorCode != string(xerrors.CodeAdapterFailure) {
		t.Fatalf("unexpected failed list: %+v", failed)
	}

	withResult, err := store.List(ctx, BuildListOptions([]ListOption{WithResultPresence(true)}))
	if err != nil {
		t.Fatalf("list with result: %v", err)
	}
	if len(withResult) != 1 || withResult[0].Result.Tool != "manage_sheets" {
		t.Fatalf("unexpected result list: %+v", withResult)
	}

	recent, err := store.List(ctx, BuildListOptions([]ListOption{WithUpdatedSince(base.Add(15 * time.Second))}))
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 tasks to match since filter, got %d", len(recent))
	}

	byAgent, err := store.List(ctx, BuildListOptions([]ListOption{WithAgent("sales"), WithSortOrder(SortByUpdatedAsc)}))
	if err != nil {
		t.Fatalf("list by agent: %v", err)
	}
	if len(byAgent) != 2 || byAgent[0].ID != "t1" {
		t.Fatalf("unexpected agent list: %+v", byAgent)
	}

	byQuery, err := store.List(ctx, BuildListOptions([]ListOption{WithQuery("GMAIL")}))
	if err != nil {
		t.Fatalf("list by query: %v", err)
	}
	if len(byQuery) != 1 || byQuery[0].ID != "t2" {
		t.Fatalf("query should match last error, got %+v", byQuery)
	}

	page, err := store.List(ctx, BuildListOptions([]ListOption{WithLimit(1), WithOffset(1)}))
	if err != nil {
		t.Fatalf("list page: %v", err)
	}
	if len(page) != 1 || page[0].ID != "t2" {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestMemoryStoreStats(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Now().Add(-3 * time.Minute)
	seedStore(t, store,
		&Task{ID: "a", AgentID: "sales", WorkflowDefinition: "w1", Status: StatusPending, MaxRetries: 3},
		&Task{ID: "b", AgentID: "sales", WorkflowDefinition: "w2", Status: StatusPending, MaxRetries: 3},
		&Task{ID: "c", AgentID: "sales", WorkflowDefinition: "w3", Status: StatusPending, MaxRetries: 3},
	)

	if err := store.MarkFailed(ctx, "b", CodeTaskProcessing, "boom", nil); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := store.MarkSucceeded(ctx, "c", ExecutionResult{Reply: "ok"}); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	store.mu.Lock()
	store.tasks["a"].UpdatedAt = base.UnixMilli()
	store.tasks["b"].UpdatedAt = base.Add(30 * time.Second).UnixMilli()
	store.tasks["c"].UpdatedAt = base.Add(2 * time.Minute).UnixMilli()
	store.mu.Unlock()

	stats, err := store.Stats(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 || stats.Pending != 1 || stats.Failed != 1 || stats.Succeeded != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.NewestUpdatedAt != base.Add(2*time.Minute).UnixMilli() {
		t.Fatalf("unexpected newest timestamp: %d", stats.NewestUpdatedAt)
	}
	if stats.OldestUpdatedAt != base.UnixMilli() {
		t.Fatalf("unexpected oldest timestamp: %d", stats.OldestUpdatedAt)
	}

	withoutResults, err := store.Stats(ctx, BuildListOptions([]ListOption{WithResultPresence(false)}))
	if err != nil {
		t.Fatalf("stats without result: %v", err)
	}
	if withoutResults.Total != 2 || withoutResults.Pending != 1 || withoutResults.Failed != 1 {
		t.Fatalf("unexpected stats without result: %+v", withoutResults)
	}
}

func TestMemoryStoreClaimLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seedStore(t, store, &Task{ID: "r1", AgentID: "sales", WorkflowDefinition: "w", Status: StatusPending, MaxRetries: 2})

	task, err := store.Claim(ctx, "r1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if task.Status != StatusRunning || task.Attempts != 1 {
		t.Fatalf("unexpected claimed task: %+v", task)
	}
	if _, err := store.Claim(ctx, "r1"); !IsTaskError(err, CodeTaskConflict) {
		t.Fatalf("expected conflict while running, got %v", err)
	}

	reply := &ExecutionResult{Reply: "Sorry, something went wrong", Outcome: string(xerrors.CodeRateLimited)}
	if err := store.MarkFailed(ctx, "r1", xerrors.CodeRateLimited, "quota", reply); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if _, err := store.Claim(ctx, "r1"); err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if err := store.MarkFailed(ctx, "r1", xerrors.CodeRateLimited, "quota", nil); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if _, err := store.Claim(ctx, "r1"); !IsTaskError(err, CodeTaskExhausted) {
		t.Fatalf("expected exhausted, got %v", err)
	}

	got, err := store.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Result == nil || got.Result.Reply != reply.Reply {
		t.Fatalf("failure reply should be kept, got %+v", got.Result)
	}

	if _, err := store.Claim(ctx, "missing"); !IsTaskError(err, CodeTaskNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := store.Create(ctx, &Task{ID: "r1"}); !IsTaskError(err, CodeTaskConflict) {
		t.Fatalf("duplicate create should conflict, got %v", err)
	}
}
