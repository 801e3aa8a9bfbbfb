package customer

import (
	"fmt"
	"sort"
	"strings"

	xerrors "AgentDesk/internal/errors"
)

// Patch 是允许修改的字段到新值的映射。
type Patch map[string]string

var patchFields = map[string]func(*Record, string){
	"name":           func(r *Record, v string) { r.Name = v },
	"email":          func(r *Record, v string) { r.Email = v },
	"company":        func(r *Record, v string) { r.Company = v },
	"phone":          func(r *Record, v string) { r.Phone = v },
	"status":         func(r *Record, v string) { r.Status = Status(v) },
	"notes":          func(r *Record, v string) { r.Notes = v },
	"custom_field_1": func(r *Record, v string) { r.CustomField1 = v },
	"custom_field_2": func(r *Record, v string) { r.CustomField2 = v },
	"custom_field_3": func(r *Record, v string) { r.CustomField3 = v },
	"custom_field_4": func(r *Record, v string) { r.CustomField4 = v },
	"custom_field_5": func(r *Record, v string) { r.CustomField5 = v },
}

// ParsePatch 把补全服务给出的 data_to_update 转换为 Patch。
func ParsePatch(raw map[string]any) (Patch, error) {
	if len(raw) == 0 {
		return nil, xerrors.New(xerrors.CodeMissingArgument, "data_to_update must contain at least one field")
	}
	patch := make(Patch, len(raw))
	var unknown []string
	for key, value := range raw {
		field := strings.ToLower(strings.TrimSpace(key))
		if _, ok := patchFields[field]; !ok || field == "" {
			unknown = append(unknown, key)
			continue
		}
		switch v := value.(type) {
		case string:
			patch[field] = strings.TrimSpace(v)
		case nil:
			patch[field] = ""
		case fmt.Stringer:
			patch[field] = v.String()
		case float64, int, int64:
			patch[field] = fmt.Sprint(v)
		default:
			return nil, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("field %s must be a string", key))
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("cannot update unknown field(s): %s", strings.Join(unknown, ", ")))
	}
	return patch, nil
}

// Fields 返回排序后的字段名。
func (p Patch) Fields() []string {
	fields := make([]string, 0, len(p))
	for field := range p {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	return fields
}

// Apply 返回应用修改后的副本并校验结果，原记录保持不变。
func (p Patch) Apply(r Record) (Record, error) {
	updated := r
	for field, value := range p {
		set, ok := patchFields[field]
		if !ok {
			return Record{}, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("cannot update field %s", field))
		}
		set(&updated, value)
	}
	if err := updated.Validate(); err != nil {
		return Record{}, err
	}
	return updated, nil
}
