package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	xerrors "AgentDesk/internal/errors"
)

const (
	defaultLeasePrefix = "agentdesk:session:"
	defaultLeaseTTL    = 2 * time.Minute
)

var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// SessionLeaseConfig 描述会话租约参数。
type SessionLeaseConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string
	// TTL 应大于一轮对话的最长耗时（补全超时两次加适配器超时）。
	TTL time.Duration
}

// SessionLease 通过 SETNX 保证同一会话同时只有一轮对话在处理。
type SessionLease struct {
	client goredis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewSessionLease 连接 Redis 并创建租约管理器。
func NewSessionLease(ctx context.Context, cfg SessionLeaseConfig) (*SessionLease, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "Redis address 不能为空")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 Redis 失败")
	}
	return NewSessionLeaseWithClient(client, cfg.Prefix, cfg.TTL), nil
}

// NewSessionLeaseWithClient 复用已有客户端。
func NewSessionLeaseWithClient(client goredis.UniversalClient, prefix string, ttl time.Duration) *SessionLease {
	if prefix == "" {
		prefix = defaultLeasePrefix
	}
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	return &SessionLease{client: client, prefix: prefix, ttl: ttl}
}

// Acquire 获取会话租约。会话已被占用时返回 SESSION_BUSY。
func (l *SessionLease) Acquire(ctx context.Context, sessionID string) (func(), error) {
	key := l.prefix + sessionID
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取会话租约失败")
	}
	if !ok {
		return nil, xerrors.New(xerrors.CodeSessionBusy,
			fmt.Sprintf("session %s is processing another turn", sessionID),
			xerrors.WithMetadata("session_id", sessionID))
	}
	return func() {
		// 释放不受调用方 ctx 取消影响。
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
	}, nil
}

// Close 关闭 Redis 客户端。
func (l *SessionLease) Close() error {
	if l == nil || l.client == nil {
		return nil
	}
	return l.client.Close()
}
