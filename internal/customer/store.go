package customer

import (
	"context"

	xerrors "AgentDesk/internal/errors"
)

// RecentLimit 是 list_recent_customers 返回的条数。
const RecentLimit = 10

// ErrNotFound 表示记录不存在。
var ErrNotFound = xerrors.New(xerrors.CodeNotFound, "customer not found")

// Store 抽象客户记录的持久化。
type Store interface {
	Create(ctx context.Context, record Record) (Record, error)
	Get(ctx context.Context, id string) (Record, error)
	Find(ctx context.Context, filter Filter) ([]Record, error)
	// Recent 按更新时间倒序返回最近的记录。
	Recent(ctx context.Context, limit int) ([]Record, error)
	Update(ctx context.Context, id string, patch Patch) (Record, error)
	Delete(ctx context.Context, id string) error
	Close() error
}
