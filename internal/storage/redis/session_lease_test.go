package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "AgentDesk/internal/errors"
)

func newLease(t *testing.T) (*SessionLease, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewSessionLeaseWithClient(client, "test:", time.Minute), mr
}

func TestSessionLeaseIsExclusive(t *testing.T) {
	lease, _ := newLease(t)
	ctx := context.Background()

	release, err := lease.Acquire(ctx, "s-1")
	require.NoError(t, err)

	_, err = lease.Acquire(ctx, "s-1")
	assert.Equal(t, xerrors.CodeSessionBusy, xerrors.CodeOf(err))

	other, err := lease.Acquire(ctx, "s-2")
	require.NoError(t, err)
	other()

	release()
	again, err := lease.Acquire(ctx, "s-1")
	require.NoError(t, err)
	again()
}

func TestSessionLeaseExpires(t *testing.T) {
	lease, mr := newLease(t)
	ctx := context.Background()

	stale, err := lease.Acquire(ctx, "s-1")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)
	fresh, err := lease.Acquire(ctx, "s-1")
	require.NoError(t, err)

	// 过期租约的释放不能删掉新持有者的键。
	stale()
	_, err = lease.Acquire(ctx, "s-1")
	assert.Equal(t, xerrors.CodeSessionBusy, xerrors.CodeOf(err))
	fresh()
}

func TestNewSessionLeaseValidation(t *testing.T) {
	_, err := NewSessionLease(context.Background(), SessionLeaseConfig{})
	assert.Equal(t, xerrors.CodeInvalidArgument, xerrors.CodeOf(err))

	mr := miniredis.RunT(t)
	lease, err := NewSessionLease(context.Background(), SessionLeaseConfig{Address: mr.Addr()})
	require.NoError(t, err)
	require.NoError(t, lease.Close())
}
