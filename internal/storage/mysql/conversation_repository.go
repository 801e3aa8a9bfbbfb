package mysql

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	xerrors "AgentDesk/internal/errors"
)

// TurnRecord 表示一条落库的对话轮次。
type TurnRecord struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`
	AgentID   string `json:"agent_id"`
	Seq       int    `json:"seq"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"created_at"`
}

// SessionSummary 汇总一个会话的持久化状态。
type SessionSummary struct {
	SessionID    string `json:"session_id"`
	AgentID      string `json:"agent_id"`
	Turns        int    `json:"turns"`
	LastActivity int64  `json:"last_activity"`
}

// ConversationRepository 抽象对话轮次的持久化接口。轮次只追加，不修改。
type ConversationRepository interface {
	Append(ctx context.Context, record TurnRecord) error
	ListSession(ctx context.Context, sessionID string) ([]TurnRecord, error)
	ListSessions(ctx context.Context, limit int) ([]SessionSummary, error)
}

// MemoryConversationRepository 使用本地 JSON Lines 文件保存对话，方便迭代开发。
type MemoryConversationRepository struct {
	mu       sync.RWMutex
	dataFile string
	sessions map[string][]TurnRecord
}

// NewMemoryConversationRepository 创建仓库并从磁盘恢复已有对话。
func NewMemoryConversationRepository(dataDir string) (*MemoryConversationRepository, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	path := filepath.Join(dataDir, "conversations.log")
	repo := &MemoryConversationRepository{dataFile: path, sessions: make(map[string][]TurnRecord)}
	if err := repo.loadFromDisk(); err != nil {
		return nil, err
	}
	return repo, nil
}

// Append 以追加写的方式记录轮次。
func (m *MemoryConversationRepository) Append(_ context.Context, record TurnRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	file, err := os.OpenFile(m.dataFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("打开对话日志失败: %w", err)
	}
	defer file.Close()

	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("序列化对话记录失败: %w", err)
	}
	if _, err := file.Write(append(encoded, '\n')); err != nil {
		return fmt.Errorf("写入对话日志失败: %w", err)
	}

	m.sessions[record.SessionID] = append(m.sessions[record.SessionID], record)
	return nil
}

// ListSession 按顺序返回会话的全部轮次。
func (m *MemoryConversationRepository) ListSession(_ context.Context, sessionID string) ([]TurnRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	turns := m.sessions[sessionID]
	out := make([]TurnRecord, len(turns))
	copy(out, turns)
	return out, nil
}

// ListSessions 按最近活动时间倒序返回会话摘要。
func (m *MemoryConversationRepository) ListSessions(_ context.Context, limit int) ([]SessionSummary, error) {
	m.mu.RLock()
	summaries := make([]SessionSummary, 0, len(m.sessions))
	for id, turns := range m.sessions {
		if len(turns) == 0 {
			continue
		}
		last := turns[len(turns)-1]
		summaries = append(summaries, SessionSummary{
			SessionID:    id,
			AgentID:      last.AgentID,
			Turns:        len(turns),
			LastActivity: last.CreatedAt,
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

func (m *MemoryConversationRepository) loadFromDisk() error {
	file, err := os.OpenFile(m.dataFile, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("读取对话日志失败: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var record TurnRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue
		}
		m.sessions[record.SessionID] = append(m.sessions[record.SessionID], record)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("解析对话日志失败: %w", err)
	}
	for id, turns := range m.sessions {
		sort.SliceStable(turns, func(i, j int) bool { return turns[i].Seq < turns[j].Seq })
		m.sessions[id] = turns
	}
	return nil
}

// SQLConversationRepository 使用数据库存储对话轮次。
type SQLConversationRepository struct {
	db *sql.DB
}

// NewSQLConversationRepository 打开数据库并执行迁移。
func NewSQLConversationRepository(ctx context.Context, cfg Config) (*SQLConversationRepository, error) {
	db, err := Open(ctx, cfg)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化对话存储失败")
	}
	return &SQLConversationRepository{db: db}, nil
}

// NewSQLConversationRepositoryWithDB 复用已完成迁移的连接池。
func NewSQLConversationRepositoryWithDB(db *sql.DB) *SQLConversationRepository {
	return &SQLConversationRepository{db: db}
}

// Append 将轮次写入数据库。
func (s *SQLConversationRepository) Append(ctx context.Context, record TurnRecord) error {
	const stmt = `INSERT INTO conversation_turns
        (id, session_id, agent_id, seq, sender, text, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`

	if _, err := s.db.ExecContext(ctx, stmt,
		record.ID,
		record.SessionID,
		record.AgentID,
		record.Seq,
		record.Sender,
		record.Text,
		record.CreatedAt,
	); err != nil {
		if IsDuplicateKey(err) {
			return xerrors.Wrap(xerrors.CodeConflict, err, "对话轮次已存在")
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入对话轮次失败")
	}
	return nil
}

// ListSession 按序号返回会话轮次。
func (s *SQLConversationRepository) ListSession(ctx context.Context, sessionID string) ([]TurnRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, session_id, agent_id, seq, sender, text, created_at
        FROM conversation_turns WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询对话轮次失败")
	}
	defer rows.Close()

	var records []TurnRecord
	for rows.Next() {
		var record TurnRecord
		if err := rows.Scan(&record.ID, &record.SessionID, &record.AgentID, &record.Seq, &record.Sender, &record.Text, &record.CreatedAt); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析对话轮次失败")
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历对话轮次失败")
	}
	return records, nil
}

// ListSessions 查询最近活跃的会话。
func (s *SQLConversationRepository) ListSessions(ctx context.Context, limit int) ([]SessionSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT session_id, MAX(agent_id), COUNT(*), MAX(created_at) AS last_activity
        FROM conversation_turns GROUP BY session_id ORDER BY last_activity DESC, session_id LIMIT ?`, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询会话列表失败")
	}
	defer rows.Close()

	var summaries []SessionSummary
	for rows.Next() {
		var summary SessionSummary
		if err := rows.Scan(&summary.SessionID, &summary.AgentID, &summary.Turns, &summary.LastActivity); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析会话列表失败")
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历会话列表失败")
	}
	return summaries, nil
}

// Close 关闭底层数据库连接。
func (s *SQLConversationRepository) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var (
	_ ConversationRepository = (*MemoryConversationRepository)(nil)
	_ ConversationRepository = (*SQLConversationRepository)(nil)
)
