package task

// TaskStats 汇总工作流运行的状态分布，时间戳为 Unix 毫秒。
type TaskStats struct {
	Total           int   `json:"total"`
	Pending         int   `json:"pending"`
	Running         int   `json:"running"`
	Succeeded       int   `json:"succeeded"`
	Failed          int   `json:"failed"`
	OldestUpdatedAt int64 `json:"oldest_updated_at,omitempty"`
	NewestUpdatedAt int64 `json:"newest_updated_at,omitempty"`
}

// observe 把一条运行计入统计。
func (s *TaskStats) observe(t *Task) {
	s.Total++
	switch t.Status {
	case StatusPending:
		s.Pending++
	case StatusRunning:
		s.Running++
	case StatusSucceeded:
		s.Succeeded++
	case StatusFailed:
		s.Failed++
	}
	if t.UpdatedAt == 0 {
		return
	}
	if t.UpdatedAt > s.NewestUpdatedAt {
		s.NewestUpdatedAt = t.UpdatedAt
	}
	if s.OldestUpdatedAt == 0 || t.UpdatedAt < s.OldestUpdatedAt {
		s.OldestUpdatedAt = t.UpdatedAt
	}
}
