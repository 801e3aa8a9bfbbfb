package task

import (
	"slices"
	"strings"
	"time"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// SortOrder 决定列表按更新时间的排序方向。
type SortOrder int

const (
	SortByUpdatedDesc SortOrder = iota
	SortByUpdatedAsc
)

// ListOptions 是列表与统计共用的过滤条件。UpdatedGTE/UpdatedLTE 为 Unix 毫秒，0 表示不限。
type ListOptions struct {
	Limit      int
	Offset     int
	Statuses   []Status
	AgentID    string
	UpdatedGTE int64
	UpdatedLTE int64
	HasResult  *bool
	Query      string
	Order      SortOrder
}

// ListOption 修改 ListOptions。
type ListOption func(*ListOptions)

func WithLimit(limit int) ListOption   { return func(o *ListOptions) { o.Limit = limit } }
func WithOffset(offset int) ListOption { return func(o *ListOptions) { o.Offset = offset } }

// WithStatuses 只保留指定状态，未知状态会被忽略。
func WithStatuses(statuses ...Status) ListOption {
	return func(o *ListOptions) { o.Statuses = slices.Clone(statuses) }
}

// WithAgent 只保留某个智能体的运行。
func WithAgent(agentID string) ListOption {
	return func(o *ListOptions) { o.AgentID = agentID }
}

// WithUpdatedSince 只保留 ts 之后（含）更新的运行。
func WithUpdatedSince(ts time.Time) ListOption {
	return func(o *ListOptions) { o.UpdatedGTE = millis(ts) }
}

// WithUpdatedUntil 只保留 ts 之前（含）更新的运行。
func WithUpdatedUntil(ts time.Time) ListOption {
	return func(o *ListOptions) { o.UpdatedLTE = millis(ts) }
}

// WithResultPresence 按是否已有回复过滤。
func WithResultPresence(has bool) ListOption {
	return func(o *ListOptions) { o.HasResult = &has }
}

// WithQuery 在任务名、工作流定义、错误信息与回复中做不区分大小写的子串匹配。
func WithQuery(query string) ListOption {
	return func(o *ListOptions) { o.Query = query }
}

func WithSortOrder(order SortOrder) ListOption {
	return func(o *ListOptions) { o.Order = order }
}

// BuildListOptions 依次应用选项并归一化。
func BuildListOptions(opts []ListOption) ListOptions {
	var o ListOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	o.applyDefaults()
	return o
}

func (o *ListOptions) applyDefaults() {
	switch {
	case o.Limit <= 0:
		o.Limit = defaultListLimit
	case o.Limit > maxListLimit:
		o.Limit = maxListLimit
	}
	o.Offset = max(o.Offset, 0)
	if o.Order != SortByUpdatedAsc {
		o.Order = SortByUpdatedDesc
	}
	o.Statuses = normalizeStatuses(o.Statuses)
	o.AgentID = strings.TrimSpace(o.AgentID)
	o.Query = strings.TrimSpace(o.Query)
}

// matches 判断运行是否满足过滤条件，分页与排序不在此处理。
func (o ListOptions) matches(t *Task) bool {
	if len(o.Statuses) > 0 && !slices.Contains(o.Statuses, t.Status) {
		return false
	}
	if o.AgentID != "" && t.AgentID != o.AgentID {
		return false
	}
	if o.UpdatedGTE > 0 && t.UpdatedAt < o.UpdatedGTE {
		return false
	}
	if o.UpdatedLTE > 0 && t.UpdatedAt > o.UpdatedLTE {
		return false
	}
	if o.HasResult != nil && t.Result.empty() == *o.HasResult {
		return false
	}
	if o.Query == "" {
		return true
	}
	needle := strings.ToLower(o.Query)
	fields := []string{t.TaskName, t.WorkflowDefinition, t.LastError}
	if t.Result != nil {
		fields = append(fields, t.Result.Reply)
	}
	return slices.ContainsFunc(fields, func(field string) bool {
		return strings.Contains(strings.ToLower(field), needle)
	})
}

func normalizeStatuses(in []Status) []Status {
	var out []Status
	for _, s := range in {
		if IsValidStatus(s) && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

func millis(ts time.Time) int64 {
	if ts.IsZero() {
		return 0
	}
	return ts.UnixMilli()
}
