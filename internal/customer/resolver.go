package customer

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	xerrors "AgentDesk/internal/errors"
)

const (
	DefaultSearchLimit = 5
	MaxSearchLimit     = 20
	// MaxAmbiguityCandidates 是歧义提示中最多列出的候选数量。
	MaxAmbiguityCandidates = 3
)

// Query 描述一次单记录定位请求。ID 非空时优先按 ID 查找。
type Query struct {
	ID     string
	Filter Filter
}

// AmbiguityError 表示线索命中多条记录，调用方必须让用户按 ID 指定。
type AmbiguityError struct {
	Candidates []Record
	Total      int
	err        *xerrors.Error
}

func (e *AmbiguityError) Error() string { return e.err.Error() }

// Unwrap 暴露 AMBIGUOUS_ENTITY 错误码。
func (e *AmbiguityError) Unwrap() error { return e.err }

// Resolver 把姓名、邮箱等线索解析为具体记录，从不在多条记录中自行挑选。
type Resolver struct {
	store Store
	tag   language.Tag
}

// ResolverOption 自定义解析器。
type ResolverOption func(*Resolver)

// WithLocale 指定姓名排序使用的语言。
func WithLocale(tag language.Tag) ResolverOption {
	return func(r *Resolver) { r.tag = tag }
}

// NewResolver 创建解析器。
func NewResolver(store Store, opts ...ResolverOption) *Resolver {
	r := &Resolver{store: store, tag: language.Und}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Store 返回底层存储。
func (r *Resolver) Store() Store { return r.store }

// Candidates 返回满足条件的全部记录，按姓名升序排列。
//
// 精确匹配为空且只提供了姓名时，回退为不区分大小写的姓名子串匹配。
func (r *Resolver) Candidates(ctx context.Context, filter Filter) ([]Record, error) {
	if filter.Empty() {
		return nil, xerrors.New(xerrors.CodeMissingArgument, "at least one search criterion is required")
	}
	records, err := r.store.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 && filter.OnlyName() {
		records, err = r.store.Find(ctx, Filter{NameContains: filter.Name})
		if err != nil {
			return nil, err
		}
	}
	r.sortByName(records)
	return records, nil
}

// SearchResult 是搜索的结果页。
type SearchResult struct {
	Records []Record
	Total   int
}

// Search 返回最多 limit 条匹配记录；limit 非正时取默认值，超过上限时截断到上限。
func (r *Resolver) Search(ctx context.Context, filter Filter, limit int) (SearchResult, error) {
	records, err := r.Candidates(ctx, filter)
	if err != nil {
		return SearchResult{}, err
	}
	if len(records) == 0 {
		return SearchResult{}, notFound(filter)
	}
	limit = clampLimit(limit)
	total := len(records)
	if len(records) > limit {
		records = records[:limit]
	}
	return SearchResult{Records: records, Total: total}, nil
}

// ResolveOne 把线索解析为唯一记录，用于更新与删除。
func (r *Resolver) ResolveOne(ctx context.Context, q Query) (Record, error) {
	if id := strings.TrimSpace(q.ID); id != "" {
		record, err := r.store.Get(ctx, id)
		if err != nil {
			if xerrors.CodeOf(err) == xerrors.CodeNotFound {
				return Record{}, xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("No customer found with id %q.", id))
			}
			return Record{}, err
		}
		return record, nil
	}

	records, err := r.Candidates(ctx, q.Filter)
	if err != nil {
		return Record{}, err
	}
	switch len(records) {
	case 1:
		return records[0], nil
	case 0:
		split, err := r.splitNameEmail(ctx, q.Filter)
		if err != nil {
			return Record{}, err
		}
		if len(split) > 1 {
			return Record{}, ambiguous(q.Filter, split)
		}
		return Record{}, notFound(q.Filter)
	default:
		return Record{}, ambiguous(q.Filter, records)
	}
}

// splitNameEmail 处理姓名与邮箱组合查询为空、但二者分别命中不同记录的情况。
// 结果作为歧义候选返回，不以任何一方为准。
func (r *Resolver) splitNameEmail(ctx context.Context, filter Filter) ([]Record, error) {
	if filter.Name == "" || filter.Email == "" {
		return nil, nil
	}
	byName, err := r.store.Find(ctx, Filter{Name: filter.Name})
	if err != nil {
		return nil, err
	}
	byEmail, err := r.store.Find(ctx, Filter{Email: filter.Email})
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(byName)+len(byEmail))
	var union []Record
	for _, record := range append(byName, byEmail...) {
		if _, ok := seen[record.ID]; ok {
			continue
		}
		seen[record.ID] = struct{}{}
		union = append(union, record)
	}
	if len(byName) == 0 || len(byEmail) == 0 {
		return nil, nil
	}
	r.sortByName(union)
	return union, nil
}

func (r *Resolver) sortByName(records []Record) {
	if len(records) < 2 {
		return
	}
	c := collate.New(r.tag)
	sort.SliceStable(records, func(i, j int) bool {
		if cmp := c.CompareString(records[i].Name, records[j].Name); cmp != 0 {
			return cmp < 0
		}
		return records[i].ID < records[j].ID
	})
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		return MaxSearchLimit
	}
	return limit
}

func ambiguous(filter Filter, records []Record) error {
	shown := records
	if len(shown) > MaxAmbiguityCandidates {
		shown = shown[:MaxAmbiguityCandidates]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d customers matching %s. Please tell me which one by id:", len(records), describe(filter))
	for _, record := range shown {
		fmt.Fprintf(&b, "\n- %s (id: %s)", record.Name, record.ID)
	}
	if extra := len(records) - len(shown); extra > 0 {
		fmt.Fprintf(&b, "\n...and %d more.", extra)
	}
	ids := make([]string, 0, len(shown))
	for _, record := range shown {
		ids = append(ids, record.ID)
	}
	return &AmbiguityError{
		Candidates: append([]Record(nil), shown...),
		Total:      len(records),
		err: xerrors.New(xerrors.CodeAmbiguousEntity, b.String(),
			xerrors.WithMetadata("candidates", strings.Join(ids, ","))),
	}
}

func notFound(filter Filter) error {
	return xerrors.New(xerrors.CodeNotFound, fmt.Sprintf("No customer found matching %s.", describe(filter)))
}

func describe(filter Filter) string {
	var parts []string
	add := func(label, value string) {
		if value != "" {
			parts = append(parts, fmt.Sprintf("%s %q", label, value))
		}
	}
	add("name", filter.Name)
	add("name containing", filter.NameContains)
	add("email", filter.Email)
	add("company", filter.Company)
	add("phone", filter.Phone)
	add("status", string(filter.Status))
	if len(parts) == 0 {
		return "the given details"
	}
	return strings.Join(parts, " and ")
}
