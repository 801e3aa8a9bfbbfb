package task

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "AgentDesk/internal/errors"
)

func TestMemoryQueueRequeuesOnlyRetryableFailures(t *testing.T) {
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()

	queue := NewMemoryQueue(4)
	require.NoError(t, queue.Publish(ctx, "flaky"))
	require.NoError(t, queue.Publish(ctx, "broken"))
	n, err := queue.Len(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	attempts := map[string]int{}
	consumeCtx, stop := context.WithCancel(ctx)
	defer stop()
	errCh := make(chan error, 1)
	go func() {
		errCh <- queue.Consume(consumeCtx, 1, func(_ context.Context, id string) error {
			attempts[id]++
			switch {
			case id == "flaky" && attempts[id] == 1:
				return xerrors.New(xerrors.CodeStorageFailure, "db down", xerrors.WithRetryable(true))
			case id == "broken":
				return xerrors.New(xerrors.CodeInvalidArgument, "bad payload")
			case id == "flaky":
				stop()
			}
			return nil
		})
	}()

	select {
	case err := <-errCh:
		assert.True(t, errors.Is(err, context.Canceled), "unexpected consume error: %v", err)
	case <-ctx.Done():
		t.Fatal("consumer did not finish")
	}
	assert.Equal(t, 2, attempts["flaky"])
	assert.Equal(t, 1, attempts["broken"])
}

func TestMemoryQueueClose(t *testing.T) {
	queue := NewMemoryQueue(0)
	require.NoError(t, queue.Publish(t.Context(), "r1"))
	require.NoError(t, queue.Close())
	require.NoError(t, queue.Close())

	err := queue.Publish(t.Context(), "r2")
	assert.Equal(t, xerrors.CodeQueueFailure, xerrors.CodeOf(err))

	var seen []string
	err = queue.Consume(t.Context(), 2, func(_ context.Context, id string) error {
		seen = append(seen, id)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, seen)
}
