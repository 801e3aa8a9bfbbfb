package customer

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	xerrors "AgentDesk/internal/errors"
)

// MemoryStore 在内存中保存客户记录，适合开发与测试。
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
	now     func() time.Time
}

// NewMemoryStore 创建内存存储，可选地预置记录。
func NewMemoryStore(seed ...Record) *MemoryStore {
	s := &MemoryStore{
		records: make(map[string]Record, len(seed)),
		now:     time.Now,
	}
	for _, r := range seed {
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		if r.CreatedAt.IsZero() {
			r.CreatedAt = s.now().UTC()
		}
		if r.UpdatedAt.IsZero() {
			r.UpdatedAt = r.CreatedAt
		}
		s.records[r.ID] = r
	}
	return s
}

// Create 插入新记录，未指定状态时默认为 lead。
func (s *MemoryStore) Create(_ context.Context, record Record) (Record, error) {
	record = PrepareCreate(record, s.now())
	if err := record.Validate(); err != nil {
		return Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.ID]; exists {
		return Record{}, xerrors.New(xerrors.CodeConflict, "customer id already exists")
	}
	s.records[record.ID] = record
	return record, nil
}

// Get 返回指定记录。
func (s *MemoryStore) Get(_ context.Context, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[strings.TrimSpace(id)]
	if !ok {
		return Record{}, ErrNotFound
	}
	return record, nil
}

// Find 返回满足条件的记录，顺序不作保证。
func (s *MemoryStore) Find(_ context.Context, filter Filter) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, record := range s.records {
		if filter.Matches(record) {
			out = append(out, record)
		}
	}
	return out, nil
}

// Recent 按更新时间倒序返回记录。
func (s *MemoryStore) Recent(_ context.Context, limit int) ([]Record, error) {
	s.mu.RLock()
	out := make([]Record, 0, len(s.records))
	for _, record := range s.records {
		out = append(out, record)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Update 应用补丁并刷新更新时间。
func (s *MemoryStore) Update(_ context.Context, id string, patch Patch) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	updated, err := patch.Apply(record)
	if err != nil {
		return Record{}, err
	}
	updated.UpdatedAt = s.now().UTC()
	s.records[id] = updated
	return updated, nil
}

// Delete 物理删除记录。
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return ErrNotFound
	}
	delete(s.records, id)
	return nil
}

// Close 实现 Store。
func (s *MemoryStore) Close() error { return nil }

// PrepareCreate 为新记录补齐 ID、默认状态与时间戳，供其他 Store 实现复用。
func PrepareCreate(record Record, now time.Time) Record {
	record.Name = strings.TrimSpace(record.Name)
	record.Email = strings.TrimSpace(record.Email)
	record.Company = strings.TrimSpace(record.Company)
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Status == "" {
		record.Status = StatusLead
	}
	now = now.UTC()
	record.CreatedAt = now
	record.UpdatedAt = now
	return record
}

var _ Store = (*MemoryStore)(nil)
