package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	xerrors "AgentDesk/internal/errors"
	"AgentDesk/internal/storage/mysql"
	"AgentDesk/internal/tool"
	"AgentDesk/pkg/logger"
)

// Session 是一段对话及其启用的工具集合。
type Session struct {
	id           string
	profile      Profile
	integrations []tool.Integration
	active       *tool.ActiveSet
	conv         *Conversation
	repo         mysql.ConversationRepository

	// turn 保证同一会话同时只处理一个轮次。
	turn  sync.Mutex
	state atomic.Value
}

func newSession(id string, profile Profile, integrations []tool.Integration, active *tool.ActiveSet, repo mysql.ConversationRepository, history []Turn) *Session {
	s := &Session{
		id:           id,
		profile:      profile,
		integrations: append([]tool.Integration(nil), integrations...),
		active:       active,
		conv:         NewConversation(history...),
		repo:         repo,
	}
	s.state.Store(StateIdle)
	return s
}

// ID 返回会话标识。
func (s *Session) ID() string { return s.id }

// AgentID 返回会话所属智能体。
func (s *Session) AgentID() string { return s.profile.ID }

// Integrations 返回会话启用的集成开关。
func (s *Session) Integrations() []tool.Integration {
	return append([]tool.Integration(nil), s.integrations...)
}

// Tools 返回会话可用的工具描述。
func (s *Session) Tools() []tool.Descriptor { return s.active.Descriptors() }

// Turns 返回会话的全部轮次。
func (s *Session) Turns() []Turn { return s.conv.Turns() }

// State 返回当前分发状态。
func (s *Session) State() State { return s.state.Load().(State) }

func (s *Session) setState(state State) { s.state.Store(state) }

// append 追加轮次并持久化。持久化失败只记录日志，对话本身不受影响。
func (s *Session) append(ctx context.Context, sender Sender, text string, at time.Time) Turn {
	turn := s.conv.Append(sender, text, at)
	if s.repo == nil {
		return turn
	}
	record := mysql.TurnRecord{
		ID:        uuid.NewString(),
		SessionID: s.id,
		AgentID:   s.profile.ID,
		Seq:       turn.Seq,
		Sender:    string(turn.Sender),
		Text:      turn.Text,
		CreatedAt: turn.Timestamp.UnixMilli(),
	}
	if err := s.repo.Append(context.WithoutCancel(ctx), record); err != nil {
		logger.L().Warn("保存对话轮次失败",
			slog.String("session_id", s.id),
			slog.Int("seq", turn.Seq),
			slog.Any("error", err))
	}
	return turn
}

// Lease 是跨实例的会话互斥租约，例如基于 Redis 的实现。
type Lease interface {
	Acquire(ctx context.Context, sessionID string) (release func(), err error)
}

// OpenRequest 描述打开会话的参数。
type OpenRequest struct {
	// SessionID 为空时生成新会话；仓库中已有该会话时恢复其历史。
	SessionID    string             `json:"session_id,omitempty"`
	AgentID      string             `json:"agent_id"`
	Integrations []tool.Integration `json:"integrations"`
	// SkipGreeting 为真时新会话不写入开场白，用于一次性的工作流执行。
	SkipGreeting bool `json:"-"`
}

// SessionManager 管理会话生命周期并保证轮次串行。
type SessionManager struct {
	engine   *Engine
	profiles map[string]Profile
	repo     mysql.ConversationRepository
	lease    Lease

	mu       sync.RWMutex
	sessions map[string]*Session
}

// ManagerOption 定义可选的 SessionManager 配置。
type ManagerOption func(*SessionManager)

// WithRepository 配置对话持久化仓库。
func WithRepository(repo mysql.ConversationRepository) ManagerOption {
	return func(m *SessionManager) {
		m.repo = repo
	}
}

// WithLease 配置跨实例租约。
func WithLease(lease Lease) ManagerOption {
	return func(m *SessionManager) {
		m.lease = lease
	}
}

// NewSessionManager 创建会话管理器。
func NewSessionManager(engine *Engine, profiles []Profile, opts ...ManagerOption) *SessionManager {
	m := &SessionManager{
		engine:   engine,
		profiles: make(map[string]Profile, len(profiles)),
		sessions: make(map[string]*Session),
	}
	for _, p := range profiles {
		m.profiles[p.ID] = p
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Profiles 按 ID 排序返回全部智能体。
func (m *SessionManager) Profiles() []Profile {
	out := make([]Profile, 0, len(m.profiles))
	for _, p := range m.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Profile 返回指定智能体。
func (m *SessionManager) Profile(id string) (Profile, bool) {
	p, ok := m.profiles[id]
	return p, ok
}

// Open 创建或恢复会话。
func (m *SessionManager) Open(ctx context.Context, req OpenRequest) (*Session, error) {
	profile, ok := m.profiles[strings.TrimSpace(req.AgentID)]
	if !ok {
		return nil, xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("agent %q not found", req.AgentID))
	}
	id := strings.TrimSpace(req.SessionID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if id != "" {
		if existing, ok := m.sessions[id]; ok {
			if existing.AgentID() != profile.ID {
				return nil, xerrors.New(xerrors.CodeConflict, fmt.Sprintf("session %s belongs to agent %s", id, existing.AgentID()))
			}
			return existing, nil
		}
	} else {
		id = uuid.NewString()
	}

	history, err := m.loadHistory(ctx, id)
	if err != nil {
		return nil, err
	}

	active := tool.NewActiveSet(m.engine.Registry(), req.Integrations)
	sess := newSession(id, profile, req.Integrations, active, m.repo, history)
	if len(history) == 0 && !req.SkipGreeting {
		sess.append(ctx, SenderAgent, profile.greeting(), m.engine.now())
	}
	m.sessions[id] = sess

	logger.L().Info("会话已打开",
		slog.String("session_id", id),
		slog.String("agent_id", profile.ID),
		slog.Int("tools", active.Len()),
		slog.Bool("restored", len(history) > 0))
	return sess, nil
}

func (m *SessionManager) loadHistory(ctx context.Context, id string) ([]Turn, error) {
	if m.repo == nil {
		return nil, nil
	}
	records, err := m.repo.ListSession(ctx, id)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "load conversation history")
	}
	turns := make([]Turn, 0, len(records))
	for _, r := range records {
		turns = append(turns, Turn{
			Seq:       r.Seq,
			Sender:    Sender(r.Sender),
			Text:      r.Text,
			Timestamp: time.UnixMilli(r.CreatedAt).UTC(),
		})
	}
	return turns, nil
}

// Get 返回内存中的会话。
func (m *SessionManager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("session %q not found", id))
	}
	return sess, nil
}

// Send 在会话中处理一条用户输入。上一轮尚未结束时返回 SESSION_BUSY，且不改变会话状态。
func (m *SessionManager) Send(ctx context.Context, sessionID, text string) (*Outcome, error) {
	sess, err := m.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.turn.TryLock() {
		return nil, busy(sessionID)
	}
	defer sess.turn.Unlock()

	if m.lease != nil {
		release, err := m.lease.Acquire(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		defer release()
	}
	return m.engine.HandleTurn(ctx, sess, text)
}

// Close 把会话移出内存，已持久化的轮次不受影响。
func (m *SessionManager) Close(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
}

// Summaries 返回最近的会话摘要，优先读取持久化仓库。
func (m *SessionManager) Summaries(ctx context.Context, limit int) ([]mysql.SessionSummary, error) {
	if m.repo != nil {
		summaries, err := m.repo.ListSessions(ctx, limit)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "list sessions")
		}
		return summaries, nil
	}

	m.mu.RLock()
	summaries := make([]mysql.SessionSummary, 0, len(m.sessions))
	for id, sess := range m.sessions {
		turns := sess.Turns()
		var last int64
		if len(turns) > 0 {
			last = turns[len(turns)-1].Timestamp.UnixMilli()
		}
		summaries = append(summaries, mysql.SessionSummary{
			SessionID:    id,
			AgentID:      sess.AgentID(),
			Turns:        len(turns),
			LastActivity: last,
		})
	}
	m.mu.RUnlock()

	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].LastActivity == summaries[j].LastActivity {
			return summaries[i].SessionID < summaries[j].SessionID
		}
		return summaries[i].LastActivity > summaries[j].LastActivity
	})
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}

func busy(sessionID string) error {
	return xerrors.New(xerrors.CodeSessionBusy,
		"the previous message is still being processed, please wait",
		xerrors.WithMetadata("session_id", sessionID))
}
